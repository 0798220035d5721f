package verifyrunner

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/davidahmann/coitrack/pkg/types"
)

var ErrRunNotFound = errors.New("verification run not found")

type RunStatus string

const (
	RunQueued    RunStatus = "queued"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// Run is the pollable state of one verification.
type Run struct {
	ID         string                     `json:"id"`
	DocumentID string                     `json:"documentId"`
	Status     RunStatus                  `json:"status"`
	Payload    *types.VerificationPayload `json:"payload,omitempty"`
	Error      string                     `json:"error,omitempty"`
	CreatedAt  time.Time                  `json:"createdAt"`
	UpdatedAt  time.Time                  `json:"updatedAt"`
}

// Registry keeps runs in memory.
type Registry struct {
	mu   sync.RWMutex
	runs map[string]Run
	now  func() time.Time
}

func NewRegistry(now func() time.Time) *Registry {
	if now == nil {
		now = time.Now
	}
	return &Registry{runs: make(map[string]Run), now: now}
}

// Create registers a queued run for documentID.
func (r *Registry) Create(documentID string) Run {
	now := r.now().UTC()
	run := Run{ID: uuid.NewString(), DocumentID: documentID, Status: RunQueued, CreatedAt: now, UpdatedAt: now}
	r.mu.Lock()
	r.runs[run.ID] = run
	r.mu.Unlock()
	return run
}

func (r *Registry) Get(id string) (Run, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	run, ok := r.runs[id]
	if !ok {
		return Run{}, ErrRunNotFound
	}
	return run, nil
}

// ForDocument returns the runs started for documentID, oldest first.
func (r *Registry) ForDocument(documentID string) []Run {
	r.mu.RLock()
	var out []Run
	for _, run := range r.runs {
		if run.DocumentID == documentID {
			out = append(out, run)
		}
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Fail marks a run that will never be processed, for example because the
// upload that created it was refused.
func (r *Registry) Fail(id string, err error) Run { return r.markFailed(id, err) }

func (r *Registry) update(id string, fn func(*Run)) Run {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[id]
	if !ok {
		return Run{}
	}
	fn(&run)
	run.UpdatedAt = r.now().UTC()
	r.runs[id] = run
	return run
}

func (r *Registry) markRunning(id string) Run {
	return r.update(id, func(run *Run) { run.Status = RunRunning })
}

func (r *Registry) markCompleted(id string, payload types.VerificationPayload) Run {
	return r.update(id, func(run *Run) {
		run.Status = RunCompleted
		run.Payload = &payload
		run.Error = ""
	})
}

func (r *Registry) markFailed(id string, err error) Run {
	return r.update(id, func(run *Run) {
		run.Status = RunFailed
		run.Error = err.Error()
	})
}
