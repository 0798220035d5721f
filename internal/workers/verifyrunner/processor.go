package verifyrunner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/davidahmann/coitrack/internal/compliance"
	"github.com/davidahmann/coitrack/internal/store"
	"github.com/davidahmann/coitrack/internal/verify"
	"github.com/davidahmann/coitrack/pkg/types"
)

// ErrSuperseded means the document moved on (re-upload or review) while the
// run was in flight. The run's results are discarded.
var ErrSuperseded = errors.New("verification superseded")

// Job is one queued verification.
type Job struct {
	RunID        string
	Submission   verify.Submission
	Requirements []types.Requirement
}

// Processor verifies a certificate and records the compliance outcome on
// its document.
type Processor struct {
	Verifier verify.Verifier
	Tracker  *store.Tracker
	Now      func() time.Time
}

func (p Processor) Process(ctx context.Context, job Job) (types.VerificationPayload, error) {
	payload, err := p.Verifier.Verify(ctx, job.Submission)
	if err != nil {
		return types.VerificationPayload{}, fmt.Errorf("verify: %w", err)
	}

	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	result := compliance.Evaluate(payload, job.Requirements, now())

	_, err = p.Tracker.SetVerificationResults(ctx, job.Submission.DocumentID, store.VerificationResults{
		VerificationID:     job.RunID,
		Items:              result.Items,
		EarliestExpiration: result.EarliestExpiration,
	}, func(doc types.Document) error {
		if doc.Status != types.StatusUploaded || doc.VerificationID != job.RunID {
			return ErrSuperseded
		}
		return nil
	})
	if err != nil {
		return types.VerificationPayload{}, err
	}
	return payload, nil
}
