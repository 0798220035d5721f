package tracking

import (
	"context"
	"errors"
	"fmt"

	"github.com/davidahmann/coitrack/internal/blob"
	"github.com/davidahmann/coitrack/internal/store"
	"github.com/davidahmann/coitrack/internal/verify"
	"github.com/davidahmann/coitrack/internal/workers/verifyrunner"
	"github.com/davidahmann/coitrack/pkg/types"
)

type UploadRequest struct {
	VendorID   string
	BuildingID string
	TemplateID string
	// DocumentID attaches the file to an existing pending_upload or
	// uploaded document instead of creating a new one.
	DocumentID string
	FileName   string
	Data       []byte
	// Wait runs verification before returning.
	Wait bool
}

type UploadResult struct {
	Document     DocumentView     `json:"document"`
	Verification verifyrunner.Run `json:"verification"`
}

// Upload stores a certificate, attaches it to its document and starts
// verification. With Wait set the verification outcome is part of the
// result; otherwise the returned run is queued and can be polled.
func (s *Service) Upload(ctx context.Context, req UploadRequest) (UploadResult, error) {
	if s.blobs == nil || s.runner == nil {
		return UploadResult{}, fmt.Errorf("%w: uploads need blob storage and a verifier", ErrUnavailable)
	}
	vendor, building, err := s.resolveRefs(ctx, req.VendorID, req.BuildingID)
	if err != nil {
		return UploadResult{}, err
	}
	if req.FileName == "" {
		return UploadResult{}, fmt.Errorf("%w: file name is required", ErrInvalid)
	}
	info, err := blob.Inspect(req.Data, s.maxUpload)
	if err != nil {
		return UploadResult{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	doc, existing, err := s.uploadTarget(ctx, req, vendor, building)
	if err != nil {
		return UploadResult{}, err
	}
	var requirements []types.Requirement
	if doc.TemplateID != "" {
		tpl, err := s.template(ctx, doc.TemplateID)
		if err != nil {
			return UploadResult{}, err
		}
		requirements = tpl.Requirements
	}

	// The file is stored before any record is written so a storage failure
	// leaves nothing behind.
	uri, err := s.blobs.Put(ctx, blob.Key(doc.ID, info.Digest, req.FileName), info.ContentType, req.Data)
	if err != nil {
		return UploadResult{}, fmt.Errorf("store file: %w", err)
	}
	if !existing {
		if doc, err = s.tracker.Add(ctx, doc); err != nil {
			return UploadResult{}, err
		}
	}

	registry := s.runner.Registry()
	run := registry.Create(doc.ID)
	doc, err = s.tracker.AttachFile(ctx, doc.ID, store.FileMeta{
		Name:           req.FileName,
		URL:            uri,
		Hash:           info.Digest,
		VerificationID: run.ID,
	}, func(current types.Document) error {
		return attachable(current)
	})
	if err != nil {
		registry.Fail(run.ID, err)
		return UploadResult{}, err
	}
	s.logger.Info("certificate uploaded", "document_id", doc.ID, "run_id", run.ID, "content_type", info.ContentType, "pages", info.Pages, "size", info.Size)

	job := verifyrunner.Job{
		RunID: run.ID,
		Submission: verify.Submission{
			DocumentID:  doc.ID,
			VendorName:  vendor.Name,
			FileName:    req.FileName,
			ContentType: info.ContentType,
			Data:        req.Data,
			URI:         uri,
		},
		Requirements: requirements,
	}

	if req.Wait {
		run, err = s.runner.ProcessInline(ctx, job)
		if err != nil && !errors.Is(err, verifyrunner.ErrSuperseded) {
			s.logger.Warn("inline verification failed", "document_id", doc.ID, "run_id", run.ID, "error", err)
		}
		if latest, getErr := s.tracker.Get(ctx, doc.ID); getErr == nil {
			doc = latest
		}
	} else if err := s.runner.Submit(job); err != nil {
		return UploadResult{}, err
	}
	if current, err := registry.Get(run.ID); err == nil {
		run = current
	}
	return UploadResult{Document: s.view(doc, s.now()), Verification: run}, nil
}

// uploadTarget resolves the document a file belongs to. A new document is
// returned unsaved with its id already assigned; existing reports whether
// it is already stored.
func (s *Service) uploadTarget(ctx context.Context, req UploadRequest, vendor types.Vendor, building types.Building) (doc types.Document, existing bool, err error) {
	if req.DocumentID != "" {
		doc, err := s.tracker.Get(ctx, req.DocumentID)
		if err != nil {
			return types.Document{}, false, err
		}
		if doc.Vendor.ID != vendor.ID || doc.Building.ID != building.ID {
			return types.Document{}, false, fmt.Errorf("%w: document %s belongs to a different vendor or building", ErrInvalid, doc.ID)
		}
		if err := attachable(doc); err != nil {
			return types.Document{}, false, err
		}
		if req.TemplateID != "" && req.TemplateID != doc.TemplateID {
			return types.Document{}, false, fmt.Errorf("%w: template_id does not match document %s", ErrInvalid, doc.ID)
		}
		return doc, true, nil
	}

	if req.TemplateID != "" {
		if _, err := s.template(ctx, req.TemplateID); err != nil {
			return types.Document{}, false, err
		}
	}
	return types.Document{
		ID:         s.newID(),
		Vendor:     types.Ref{ID: vendor.ID, Name: vendor.Name},
		Building:   types.Ref{ID: building.ID, Name: building.Name},
		TemplateID: req.TemplateID,
		Status:     types.StatusPendingUpload,
	}, false, nil
}

// attachable allows a file on a document awaiting one, or replacing a file
// whose verification has not finished.
func attachable(doc types.Document) error {
	switch doc.Status {
	case types.StatusPendingUpload, types.StatusUploaded:
		return nil
	}
	return fmt.Errorf("%w: document %s is %s", ErrConflict, doc.ID, doc.Status)
}

// Verification returns a verification run by id.
func (s *Service) Verification(id string) (verifyrunner.Run, error) {
	if s.runner == nil {
		return verifyrunner.Run{}, fmt.Errorf("%w: verification", ErrUnavailable)
	}
	return s.runner.Registry().Get(id)
}
