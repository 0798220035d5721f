// Package crypto holds the content digests recorded for uploaded
// certificates and the Ed25519 signatures attached to outgoing webhooks.
package crypto

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const digestPrefix = "sha256:"

// Digest returns the SHA-256 digest of data as "sha256:<hex>".
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return digestPrefix + hex.EncodeToString(sum[:])
}

// MatchesDigest reports whether digest was produced by Digest for data.
func MatchesDigest(digest string, data []byte) bool {
	return strings.EqualFold(digest, Digest(data))
}
