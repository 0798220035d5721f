package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
)

// GCS stores files in a Cloud Storage bucket. Objects are written only if
// absent.
type GCS struct {
	client *storage.Client
	bucket string
	prefix string
	logger *slog.Logger
}

func NewGCS(ctx context.Context, bucket, prefix string, logger *slog.Logger) (*GCS, error) {
	if bucket == "" {
		return nil, fmt.Errorf("gcs blob store: bucket is required")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("storage.NewClient: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GCS{client: client, bucket: bucket, prefix: prefix, logger: logger}, nil
}

func (g *GCS) Close() error {
	return g.client.Close()
}

func (g *GCS) object(key string) string {
	if g.prefix == "" {
		return key
	}
	return g.prefix + "/" + key
}

func (g *GCS) Put(ctx context.Context, key, contentType string, data []byte) (string, error) {
	name := g.object(key)
	uri := fmt.Sprintf("gs://%s/%s", g.bucket, name)

	w := g.client.Bucket(g.bucket).Object(name).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		_ = w.Close()
		if alreadyExists(err) {
			g.logger.Info("blob already stored", "object", name)
			return uri, nil
		}
		return "", fmt.Errorf("write gcs object %s: %w", name, err)
	}
	if err := w.Close(); err != nil {
		if alreadyExists(err) {
			g.logger.Info("blob already stored", "object", name)
			return uri, nil
		}
		return "", fmt.Errorf("finalize gcs object %s: %w", name, err)
	}
	return uri, nil
}

func (g *GCS) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	r, err := g.client.Bucket(g.bucket).Object(g.object(key)).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, ErrNotFound
	}
	return r, err
}

func alreadyExists(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed
}
