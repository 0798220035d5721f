package crypto

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strings"
)

const signatureScheme = "ed25519="

var ErrBadSignature = errors.New("malformed signature header")

// Signer produces the value of the webhook signature header: the Ed25519
// signature over the SHA-256 of the request body, base64 encoded.
type Signer struct {
	key ed25519.PrivateKey
}

func NewSigner(key ed25519.PrivateKey) *Signer {
	return &Signer{key: key}
}

func (s *Signer) PublicKey() ed25519.PublicKey {
	return s.key.Public().(ed25519.PublicKey)
}

func (s *Signer) Sign(body []byte) string {
	sum := sha256.Sum256(body)
	return signatureScheme + base64.StdEncoding.EncodeToString(ed25519.Sign(s.key, sum[:]))
}

// VerifySignature checks a header produced by Signer.Sign.
func VerifySignature(pub ed25519.PublicKey, body []byte, header string) (bool, error) {
	if !strings.HasPrefix(header, signatureScheme) {
		return false, ErrBadSignature
	}
	sig, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(header, signatureScheme))
	if err != nil {
		return false, ErrBadSignature
	}
	sum := sha256.Sum256(body)
	return ed25519.Verify(pub, sum[:], sig), nil
}
