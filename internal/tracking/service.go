// Package tracking is the COI review workflow: it validates requests, runs
// uploads through storage and verification, and enforces review rules on
// top of the document tracker.
package tracking

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/davidahmann/coitrack/internal/blob"
	"github.com/davidahmann/coitrack/internal/filter"
	"github.com/davidahmann/coitrack/internal/store"
	"github.com/davidahmann/coitrack/internal/workers/verifyrunner"
	"github.com/davidahmann/coitrack/pkg/types"
)

type Service struct {
	tracker    *store.Tracker
	blobs      blob.Store
	runner     *verifyrunner.Runner
	classifier filter.Classifier
	maxUpload  int64
	now        func() time.Time
	newID      func() string
	logger     *slog.Logger
}

type Option func(*Service)

func WithBlobStore(b blob.Store) Option { return func(s *Service) { s.blobs = b } }

func WithRunner(r *verifyrunner.Runner) Option { return func(s *Service) { s.runner = r } }

func WithWindowDays(days int) Option {
	return func(s *Service) { s.classifier = filter.Classifier{WindowDays: days} }
}

func WithMaxUploadBytes(n int64) Option { return func(s *Service) { s.maxUpload = n } }

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func WithIDGenerator(newID func() string) Option { return func(s *Service) { s.newID = newID } }

func WithLogger(l *slog.Logger) Option { return func(s *Service) { s.logger = l } }

func New(tracker *store.Tracker, opts ...Option) *Service {
	s := &Service{
		tracker: tracker,
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.newID == nil {
		s.newID = defaultID
	}
	return s
}

func (s *Service) Tracker() *store.Tracker { return s.tracker }

func (s *Service) backend() store.Backend { return s.tracker.Backend() }

// ListQuery narrows a document listing. Bucket is applied after the
// store-level filters.
type ListQuery struct {
	VendorID   string
	BuildingID string
	Status     types.Status
	Bucket     filter.Bucket
}

func (s *Service) ListDocuments(ctx context.Context, q ListQuery) ([]DocumentView, error) {
	docs, err := s.tracker.List(ctx, store.DocumentQuery{VendorID: q.VendorID, BuildingID: q.BuildingID, Status: q.Status})
	if err != nil {
		return nil, err
	}
	now := s.now()
	if q.Bucket != "" {
		docs = s.classifier.Filter(docs, q.Bucket, now)
	}
	out := make([]DocumentView, 0, len(docs))
	for _, doc := range docs {
		out = append(out, s.view(doc, now))
	}
	return out, nil
}

func (s *Service) GetDocument(ctx context.Context, id string) (DocumentView, error) {
	doc, err := s.tracker.Get(ctx, id)
	if err != nil {
		return DocumentView{}, err
	}
	return s.view(doc, s.now()), nil
}

// Counts returns bucket sizes over the documents matching q's store-level
// filters.
func (s *Service) Counts(ctx context.Context, q ListQuery) (filter.Counts, error) {
	docs, err := s.tracker.List(ctx, store.DocumentQuery{VendorID: q.VendorID, BuildingID: q.BuildingID})
	if err != nil {
		return filter.Counts{}, err
	}
	return s.classifier.Count(docs, s.now()), nil
}

type NewDocument struct {
	VendorID   string `json:"vendorId"`
	BuildingID string `json:"buildingId"`
	TemplateID string `json:"templateId,omitempty"`
}

// RequestDocument records that a certificate is expected from a vendor for
// a building. The document starts in pending_upload.
func (s *Service) RequestDocument(ctx context.Context, in NewDocument) (DocumentView, error) {
	vendor, building, err := s.resolveRefs(ctx, in.VendorID, in.BuildingID)
	if err != nil {
		return DocumentView{}, err
	}
	if in.TemplateID != "" {
		if _, err := s.template(ctx, in.TemplateID); err != nil {
			return DocumentView{}, err
		}
	}
	doc, err := s.tracker.Add(ctx, types.Document{
		Vendor:     types.Ref{ID: vendor.ID, Name: vendor.Name},
		Building:   types.Ref{ID: building.ID, Name: building.Name},
		TemplateID: in.TemplateID,
		Status:     types.StatusPendingUpload,
	})
	if err != nil {
		return DocumentView{}, err
	}
	s.logger.Info("document requested", "document_id", doc.ID, "vendor_id", vendor.ID, "building_id", building.ID)
	return s.view(doc, s.now()), nil
}

// Approve records an approval by reviewer. Approving a document with
// failed compliance items needs a non-empty overrideReason. Approving an
// approved document again overwrites the decision; approving a rejected one
// is a conflict.
func (s *Service) Approve(ctx context.Context, id, reviewer, overrideReason string) (DocumentView, error) {
	reviewer = strings.TrimSpace(reviewer)
	if reviewer == "" {
		return DocumentView{}, fmt.Errorf("%w: reviewer is required", ErrInvalid)
	}
	overrideReason = strings.TrimSpace(overrideReason)

	doc, err := s.tracker.Approve(ctx, id, reviewer, overrideReason, func(current types.Document) error {
		if err := decidable(current, types.StatusApproved); err != nil {
			return err
		}
		if current.FailedItems() > 0 && overrideReason == "" {
			return ErrOverrideRequired
		}
		return nil
	})
	if err != nil {
		return DocumentView{}, err
	}
	s.logger.Info("document approved", "document_id", id, "reviewer", reviewer, "override", overrideReason != "")
	return s.view(doc, s.now()), nil
}

// Reject records a rejection. The reason is required.
func (s *Service) Reject(ctx context.Context, id, reviewer, reason string) (DocumentView, error) {
	reviewer = strings.TrimSpace(reviewer)
	if reviewer == "" {
		return DocumentView{}, fmt.Errorf("%w: reviewer is required", ErrInvalid)
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return DocumentView{}, fmt.Errorf("%w: rejection reason is required", ErrInvalid)
	}

	doc, err := s.tracker.Reject(ctx, id, reviewer, reason, func(current types.Document) error {
		return decidable(current, types.StatusRejected)
	})
	if err != nil {
		return DocumentView{}, err
	}
	s.logger.Info("document rejected", "document_id", id, "reviewer", reviewer)
	return s.view(doc, s.now()), nil
}

// decidable allows a decision from under_review, or re-applying the same
// decision.
func decidable(doc types.Document, decision types.Status) error {
	if doc.Status == types.StatusUnderReview || doc.Status == decision {
		return nil
	}
	return fmt.Errorf("%w: document %s is %s", ErrConflict, doc.ID, doc.Status)
}

func (s *Service) resolveRefs(ctx context.Context, vendorID, buildingID string) (types.Vendor, types.Building, error) {
	if vendorID == "" || buildingID == "" {
		return types.Vendor{}, types.Building{}, fmt.Errorf("%w: vendor_id and building_id are required", ErrInvalid)
	}
	vendor, err := s.backend().GetVendor(ctx, vendorID)
	if err != nil {
		return types.Vendor{}, types.Building{}, unknownRef("vendor", vendorID, err)
	}
	building, err := s.backend().GetBuilding(ctx, buildingID)
	if err != nil {
		return types.Vendor{}, types.Building{}, unknownRef("building", buildingID, err)
	}
	return vendor, building, nil
}

func (s *Service) template(ctx context.Context, id string) (types.Template, error) {
	tpl, err := s.backend().GetTemplate(ctx, id)
	if err != nil {
		return types.Template{}, unknownRef("template", id, err)
	}
	return tpl, nil
}
