package tracking

import "errors"

var (
	// ErrInvalid wraps input the caller must fix.
	ErrInvalid = errors.New("invalid request")
	// ErrConflict means the document is not in a state that allows the
	// operation, e.g. reversing a review decision.
	ErrConflict = errors.New("conflict")
	// ErrOverrideRequired is returned when approving a document with failed
	// compliance items without a justification.
	ErrOverrideRequired = errors.New("override reason required when compliance checks failed")
	// ErrUnavailable means an optional dependency (blob storage, verifier)
	// is not configured.
	ErrUnavailable = errors.New("not configured")
	// ErrIntegrity means a stored file no longer matches the digest recorded
	// at upload.
	ErrIntegrity = errors.New("stored file does not match recorded digest")
)
