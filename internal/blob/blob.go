// Package blob stores uploaded certificate files.
package blob

import (
	"context"
	"errors"
	"io"
	"strings"
)

var ErrNotFound = errors.New("blob not found")

// Store keeps files by key. Put is idempotent: writing a key that already
// exists leaves the stored object untouched and still returns its URI.
type Store interface {
	Put(ctx context.Context, key, contentType string, data []byte) (string, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// Key derives a storage key from a document id and the file digest so a
// re-upload of the same bytes lands on the same object.
func Key(documentID, digest, fileName string) string {
	hash := strings.TrimPrefix(digest, "sha256:")
	if len(hash) > 16 {
		hash = hash[:16]
	}
	ext := ""
	if i := strings.LastIndexByte(fileName, '.'); i >= 0 && i < len(fileName)-1 {
		ext = strings.ToLower(fileName[i:])
	}
	return documentID + "/" + hash + ext
}
