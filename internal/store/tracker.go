package store

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/davidahmann/coitrack/pkg/types"
)

type EventKind string

const (
	EventAdded        EventKind = "document.added"
	EventFileAttached EventKind = "document.file_attached"
	EventVerified     EventKind = "document.verified"
	EventApproved     EventKind = "document.approved"
	EventRejected     EventKind = "document.rejected"
	EventExpired      EventKind = "document.expired"
)

// Event describes one successful mutation. Version is the tracker version
// after the mutation.
type Event struct {
	Kind     EventKind      `json:"kind"`
	Document types.Document `json:"document"`
	Version  uint64         `json:"version"`
}

type Listener func(Event)

// Check is evaluated against the current record under the mutation lock.
// A non-nil error aborts the mutation and is returned unchanged.
type Check func(types.Document) error

// FileMeta describes a stored certificate file. VerificationID names the
// verification run started for it, if any.
type FileMeta struct {
	Name           string
	URL            string
	Hash           string
	VerificationID string
}

type VerificationResults struct {
	VerificationID     string
	Items              []types.ComplianceLineItem
	EarliestExpiration *time.Time
}

// Tracker is the state container for COI documents. Mutations are applied
// one at a time and every listener is called synchronously once the write
// has landed. Listeners see events in version order. They run outside the
// mutation lock and may read from the tracker, but must not mutate it.
type Tracker struct {
	backend Backend
	now     func() time.Time
	newID   func() string

	mu      sync.Mutex
	nmu     sync.Mutex
	version atomic.Uint64

	lmu          sync.RWMutex
	listeners    map[uint64]Listener
	nextListener uint64
}

type TrackerOption func(*Tracker)

func WithClock(now func() time.Time) TrackerOption {
	return func(t *Tracker) { t.now = now }
}

func WithIDGenerator(newID func() string) TrackerOption {
	return func(t *Tracker) { t.newID = newID }
}

func NewTracker(backend Backend, opts ...TrackerOption) *Tracker {
	t := &Tracker{
		backend:   backend,
		now:       time.Now,
		newID:     uuid.NewString,
		listeners: make(map[uint64]Listener),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Backend exposes the underlying persistence for directory records.
func (t *Tracker) Backend() Backend { return t.backend }

// Version increases by one on every successful mutation.
func (t *Tracker) Version() uint64 { return t.version.Load() }

// Subscribe registers l and returns a function that removes it. The returned
// function is safe to call more than once.
func (t *Tracker) Subscribe(l Listener) func() {
	t.lmu.Lock()
	id := t.nextListener
	t.nextListener++
	t.listeners[id] = l
	t.lmu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			t.lmu.Lock()
			delete(t.listeners, id)
			t.lmu.Unlock()
		})
	}
}

func (t *Tracker) List(ctx context.Context, q DocumentQuery) ([]types.Document, error) {
	return t.backend.ListDocuments(ctx, q)
}

func (t *Tracker) Get(ctx context.Context, id string) (types.Document, error) {
	return t.backend.GetDocument(ctx, id)
}

// Add stores doc with generated id and timestamps. A caller-supplied id is
// kept and must not already exist. An empty status becomes pending_upload.
func (t *Tracker) Add(ctx context.Context, doc types.Document) (types.Document, error) {
	t.mu.Lock()
	if doc.ID == "" {
		doc.ID = t.newID()
	} else if _, err := t.backend.GetDocument(ctx, doc.ID); err == nil {
		t.mu.Unlock()
		return types.Document{}, fmt.Errorf("document %s: %w", doc.ID, ErrExists)
	}
	now := t.now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now
	if doc.Status == "" {
		doc.Status = types.StatusPendingUpload
	}
	if err := t.backend.PutDocument(ctx, doc); err != nil {
		t.mu.Unlock()
		return types.Document{}, err
	}
	t.publish(EventAdded, doc)
	return doc, nil
}

// AttachFile records an uploaded certificate on an existing document and
// moves it to uploaded. Earlier verification output is replaced.
func (t *Tracker) AttachFile(ctx context.Context, id string, file FileMeta, checks ...Check) (types.Document, error) {
	return t.mutate(ctx, id, EventFileAttached, checks, func(doc *types.Document, now time.Time) {
		doc.FileName = file.Name
		doc.FileURL = file.URL
		doc.FileHash = file.Hash
		doc.UploadedAt = &now
		doc.Status = types.StatusUploaded
		doc.VerificationID = file.VerificationID
		doc.ComplianceResults = nil
		doc.EarliestExpiration = nil
	})
}

// SetVerificationResults stores the verification output and moves the
// document to under_review.
func (t *Tracker) SetVerificationResults(ctx context.Context, id string, res VerificationResults, checks ...Check) (types.Document, error) {
	return t.mutate(ctx, id, EventVerified, checks, func(doc *types.Document, _ time.Time) {
		doc.VerificationID = res.VerificationID
		doc.ComplianceResults = append([]types.ComplianceLineItem(nil), res.Items...)
		doc.EarliestExpiration = res.EarliestExpiration
		doc.Status = types.StatusUnderReview
	})
}

// Approve records an approval. overrideReason is stored as given; whether
// it was needed is the caller's concern. Approving again overwrites.
func (t *Tracker) Approve(ctx context.Context, id, reviewer, overrideReason string, checks ...Check) (types.Document, error) {
	return t.mutate(ctx, id, EventApproved, checks, func(doc *types.Document, now time.Time) {
		doc.Status = types.StatusApproved
		doc.ReviewerName = reviewer
		doc.ReviewedAt = &now
		doc.OverrideReason = overrideReason
		doc.RejectionReason = ""
	})
}

// Reject records a rejection. The reason is not validated here.
func (t *Tracker) Reject(ctx context.Context, id, reviewer, reason string, checks ...Check) (types.Document, error) {
	return t.mutate(ctx, id, EventRejected, checks, func(doc *types.Document, now time.Time) {
		doc.Status = types.StatusRejected
		doc.ReviewerName = reviewer
		doc.ReviewedAt = &now
		doc.RejectionReason = reason
		doc.OverrideReason = ""
	})
}

func (t *Tracker) MarkExpired(ctx context.Context, id string, checks ...Check) (types.Document, error) {
	return t.mutate(ctx, id, EventExpired, checks, func(doc *types.Document, _ time.Time) {
		doc.Status = types.StatusExpired
	})
}

func (t *Tracker) mutate(ctx context.Context, id string, kind EventKind, checks []Check, apply func(*types.Document, time.Time)) (types.Document, error) {
	t.mu.Lock()
	doc, err := t.backend.GetDocument(ctx, id)
	if err != nil {
		t.mu.Unlock()
		return types.Document{}, err
	}
	for _, check := range checks {
		if err := check(doc); err != nil {
			t.mu.Unlock()
			return types.Document{}, err
		}
	}
	now := t.now().UTC()
	apply(&doc, now)
	doc.UpdatedAt = now
	if err := t.backend.PutDocument(ctx, doc); err != nil {
		t.mu.Unlock()
		return types.Document{}, err
	}
	t.publish(kind, doc)
	return doc, nil
}

// publish bumps the version and delivers the event. It is called with mu
// held and releases it; nmu is taken first so the next mutation cannot
// overtake this delivery.
func (t *Tracker) publish(kind EventKind, doc types.Document) {
	version := t.version.Add(1)
	t.nmu.Lock()
	t.mu.Unlock()
	defer t.nmu.Unlock()
	t.notify(Event{Kind: kind, Document: doc.Clone(), Version: version})
}

func (t *Tracker) notify(ev Event) {
	t.lmu.RLock()
	listeners := make([]Listener, 0, len(t.listeners))
	for _, l := range t.listeners {
		listeners = append(listeners, l)
	}
	t.lmu.RUnlock()

	for _, l := range listeners {
		l(ev)
	}
}
