// Package verify extracts insurance policies from an uploaded certificate.
// Verifiers are pluggable: a deterministic Mock for development and tests,
// and a Vertex AI backed extractor for real certificates.
package verify

import (
	"context"
	"errors"

	"github.com/davidahmann/coitrack/pkg/types"
)

var ErrEmptyResponse = errors.New("verifier returned no content")

// Submission is one certificate handed to a Verifier. Data carries the file
// bytes; URI may point at a stored copy instead (gs:// for Vertex).
type Submission struct {
	DocumentID  string
	VendorName  string
	FileName    string
	ContentType string
	Data        []byte
	URI         string
}

// Verifier must return promptly once ctx is done.
type Verifier interface {
	Verify(ctx context.Context, sub Submission) (types.VerificationPayload, error)
}
