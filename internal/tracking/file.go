package tracking

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/davidahmann/coitrack/internal/blob"
	"github.com/davidahmann/coitrack/internal/crypto"
	"github.com/davidahmann/coitrack/internal/store"
)

type StoredFile struct {
	Name        string
	ContentType string
	Digest      string
	Data        []byte
}

// OpenFile reads back the certificate attached to a document and checks it
// against the digest recorded at upload.
func (s *Service) OpenFile(ctx context.Context, id string) (StoredFile, error) {
	if s.blobs == nil {
		return StoredFile{}, fmt.Errorf("%w: blob storage", ErrUnavailable)
	}
	doc, err := s.tracker.Get(ctx, id)
	if err != nil {
		return StoredFile{}, err
	}
	if doc.FileHash == "" {
		return StoredFile{}, fmt.Errorf("document %s has no file: %w", id, store.ErrNotFound)
	}

	rc, err := s.blobs.Open(ctx, blob.Key(doc.ID, doc.FileHash, doc.FileName))
	if errors.Is(err, blob.ErrNotFound) {
		return StoredFile{}, fmt.Errorf("file for document %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return StoredFile{}, err
	}
	defer func() { _ = rc.Close() }()
	data, err := io.ReadAll(rc)
	if err != nil {
		return StoredFile{}, fmt.Errorf("read file: %w", err)
	}
	if !crypto.MatchesDigest(doc.FileHash, data) {
		s.logger.Error("stored file digest mismatch", "document_id", id, "want", doc.FileHash)
		return StoredFile{}, fmt.Errorf("%w: document %s", ErrIntegrity, id)
	}
	return StoredFile{
		Name:        doc.FileName,
		ContentType: http.DetectContentType(data),
		Digest:      doc.FileHash,
		Data:        data,
	}, nil
}
