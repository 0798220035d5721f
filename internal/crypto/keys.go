package crypto

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"
)

var (
	ErrInvalidSeedSize = errors.New("invalid ed25519 seed size")
	ErrEmptyKey        = errors.New("empty key file")
)

func KeyPairFromSeed(seed []byte) (ed25519.PrivateKey, ed25519.PublicKey, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, nil, ErrInvalidSeedSize
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return priv, priv.Public().(ed25519.PublicKey), nil
}

// LoadSigningKey reads an Ed25519 key used to sign webhooks. The file holds
// a 32-byte seed or a 64-byte private key, raw or as hex/base64 text with an
// optional "hex:" or "base64:" prefix.
func LoadSigningKey(path string) (ed25519.PrivateKey, error) {
	// #nosec G304 -- path is operator-configured.
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	data, err := decodeKey(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	switch len(data) {
	case ed25519.PrivateKeySize:
		return ed25519.PrivateKey(data), nil
	case ed25519.SeedSize:
		return ed25519.NewKeyFromSeed(data), nil
	default:
		return nil, fmt.Errorf("%s: unsupported key length %d", path, len(data))
	}
}

func decodeKey(raw []byte) ([]byte, error) {
	if len(raw) == ed25519.PrivateKeySize || len(raw) == ed25519.SeedSize {
		return raw, nil
	}
	text := strings.TrimSpace(string(raw))
	switch {
	case text == "":
		return nil, ErrEmptyKey
	case strings.HasPrefix(text, "hex:"):
		return hex.DecodeString(strings.TrimPrefix(text, "hex:"))
	case strings.HasPrefix(text, "base64:"):
		return base64.StdEncoding.DecodeString(strings.TrimPrefix(text, "base64:"))
	}
	if out, err := hex.DecodeString(text); err == nil {
		return out, nil
	}
	if out, err := base64.StdEncoding.DecodeString(text); err == nil {
		return out, nil
	}
	return nil, errors.New("unrecognized key encoding")
}
