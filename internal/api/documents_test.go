package api

import (
	"bytes"
	"net/http"
	"testing"

	"github.com/davidahmann/coitrack/internal/filter"
	"github.com/davidahmann/coitrack/internal/tracking"
	"github.com/davidahmann/coitrack/internal/workers/verifyrunner"
	"github.com/davidahmann/coitrack/pkg/types"
)

func seedDirectory(t *testing.T, h harness) (types.Vendor, types.Building) {
	t.Helper()
	res := h.do(t, http.MethodPost, "/api/vendors", map[string]string{"name": "Acme Plumbing", "website": "https://www.acme.com"})
	expectStatus(t, res, http.StatusCreated)
	vendor := decode[types.Vendor](t, res)

	res = h.do(t, http.MethodPost, "/api/buildings", map[string]string{"name": "Tower A"})
	expectStatus(t, res, http.StatusCreated)
	building := decode[types.Building](t, res)
	return vendor, building
}

func underReview(vendor types.Vendor, building types.Building) types.Document {
	return types.Document{
		Vendor:   types.Ref{ID: vendor.ID, Name: vendor.Name},
		Building: types.Ref{ID: building.ID, Name: building.Name},
		Status:   types.StatusUnderReview,
	}
}

func TestUploadReviewFlow(t *testing.T) {
	h := newHarness(t)
	vendor, building := seedDirectory(t, h)
	fields := map[string]string{"vendor_id": vendor.ID, "building_id": building.ID}

	// Even-length name: clean certificate.
	res := h.upload(t, "?wait=true", fields, "cert.png", pngHeader)
	expectStatus(t, res, http.StatusOK)
	clean := decode[tracking.UploadResult](t, res)
	if clean.Verification.Status != verifyrunner.RunCompleted {
		t.Fatalf("expected completed run, got %s", clean.Verification.Status)
	}
	if clean.Document.Status != types.StatusUnderReview || clean.Document.CompliancePercentage != 100 {
		t.Fatalf("unexpected document: %+v", clean.Document)
	}

	res = h.do(t, http.MethodGet, idPath("/api/coi/verifications", clean.Verification.ID), nil)
	expectStatus(t, res, http.StatusOK)

	res = h.do(t, http.MethodPost, "/api/coi/documents/"+clean.Document.ID+"/approve", nil)
	expectStatus(t, res, http.StatusOK)
	approved := decode[tracking.DocumentView](t, res)
	if approved.Status != types.StatusApproved || approved.ReviewerName != "dev" {
		t.Fatalf("unexpected approval: %+v", approved)
	}

	// Approving twice is allowed, reversing is not.
	res = h.do(t, http.MethodPost, "/api/coi/documents/"+clean.Document.ID+"/approve", ApproveRequest{})
	expectStatus(t, res, http.StatusOK)
	res = h.do(t, http.MethodPost, "/api/coi/documents/"+clean.Document.ID+"/reject", RejectRequest{Reason: "late"})
	expectStatus(t, res, http.StatusConflict)

	// Odd-length name: partial certificate with failed items.
	res = h.upload(t, "?wait=1", fields, "acme1.png", pngHeader)
	expectStatus(t, res, http.StatusOK)
	partial := decode[tracking.UploadResult](t, res)
	if partial.Document.CompliancePercentage >= 100 || partial.Document.FailedItems() == 0 {
		t.Fatalf("expected failed items, got %+v", partial.Document.ComplianceResults)
	}
	if !partial.Document.ExpiringSoon {
		t.Fatalf("expected partial certificate to be expiring soon")
	}

	res = h.do(t, http.MethodPost, "/api/coi/documents/"+partial.Document.ID+"/approve", nil)
	expectStatus(t, res, http.StatusUnprocessableEntity)
	res = h.do(t, http.MethodPost, "/api/coi/documents/"+partial.Document.ID+"/approve", ApproveRequest{OverrideReason: "umbrella policy"})
	expectStatus(t, res, http.StatusOK)

	res = h.do(t, http.MethodGet, "/api/coi/documents?bucket=non_compliant", nil)
	expectStatus(t, res, http.StatusOK)
	nonCompliant := decode[[]tracking.DocumentView](t, res)
	if len(nonCompliant) != 1 || nonCompliant[0].ID != partial.Document.ID {
		t.Fatalf("unexpected non_compliant list: %+v", nonCompliant)
	}

	res = h.do(t, http.MethodGet, "/api/coi/documents/counts", nil)
	expectStatus(t, res, http.StatusOK)
	counts := decode[filter.Counts](t, res)
	if counts.All != 2 || counts.Approved != 2 || counts.NonCompliant != 1 || counts.ExpiringSoon != 1 {
		t.Fatalf("unexpected counts: %+v", counts)
	}
}

func TestUploadQueuedReturnsAccepted(t *testing.T) {
	h := newHarness(t)
	vendor, building := seedDirectory(t, h)

	res := h.do(t, http.MethodPost, "/api/coi/documents", tracking.NewDocument{VendorID: vendor.ID, BuildingID: building.ID})
	expectStatus(t, res, http.StatusCreated)
	pending := decode[tracking.DocumentView](t, res)
	if pending.Status != types.StatusPendingUpload {
		t.Fatalf("expected pending_upload, got %s", pending.Status)
	}

	res = h.upload(t, "", map[string]string{"vendor_id": vendor.ID, "building_id": building.ID, "document_id": pending.ID}, "cert.png", pngHeader)
	expectStatus(t, res, http.StatusAccepted)
	queued := decode[tracking.UploadResult](t, res)
	if queued.Verification.Status != verifyrunner.RunQueued {
		t.Fatalf("expected queued run, got %s", queued.Verification.Status)
	}
	if queued.Document.ID != pending.ID || queued.Document.Status != types.StatusUploaded {
		t.Fatalf("unexpected document: %+v", queued.Document)
	}
}

func TestUploadValidation(t *testing.T) {
	h := newHarness(t)
	vendor, building := seedDirectory(t, h)
	fields := map[string]string{"vendor_id": vendor.ID, "building_id": building.ID}

	expectStatus(t, h.upload(t, "", fields, "", nil), http.StatusBadRequest)
	expectStatus(t, h.upload(t, "", fields, "notes.txt", []byte("plain text")), http.StatusBadRequest)
	expectStatus(t, h.upload(t, "", map[string]string{"vendor_id": "nope", "building_id": building.ID}, "cert.png", pngHeader), http.StatusBadRequest)
	expectStatus(t, h.upload(t, "?wait=maybe", fields, "cert.png", pngHeader), http.StatusBadRequest)
}

func TestDocumentQueries(t *testing.T) {
	h := newHarness(t)
	vendor, building := seedDirectory(t, h)
	doc, err := h.tracker.Add(t.Context(), underReview(vendor, building))
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	res := h.do(t, http.MethodGet, "/api/coi/documents/"+doc.ID, nil)
	expectStatus(t, res, http.StatusOK)

	expectStatus(t, h.do(t, http.MethodGet, "/api/coi/documents/missing", nil), http.StatusNotFound)
	expectStatus(t, h.do(t, http.MethodGet, "/api/coi/documents?bucket=soon", nil), http.StatusBadRequest)
	expectStatus(t, h.do(t, http.MethodGet, "/api/coi/documents?status=lost", nil), http.StatusBadRequest)
	expectStatus(t, h.do(t, http.MethodGet, "/api/coi/verifications/missing", nil), http.StatusNotFound)

	res = h.do(t, http.MethodGet, "/api/coi/documents?status=under_review&vendor_id="+vendor.ID, nil)
	expectStatus(t, res, http.StatusOK)
	if docs := decode[[]tracking.DocumentView](t, res); len(docs) != 1 {
		t.Fatalf("expected one document, got %d", len(docs))
	}
	res = h.do(t, http.MethodGet, "/api/coi/documents?vendor_id=other", nil)
	expectStatus(t, res, http.StatusOK)
	if docs := decode[[]tracking.DocumentView](t, res); len(docs) != 0 {
		t.Fatalf("expected no documents, got %d", len(docs))
	}
}

func TestRejectNeedsReason(t *testing.T) {
	h := newHarness(t)
	vendor, building := seedDirectory(t, h)
	doc, err := h.tracker.Add(t.Context(), underReview(vendor, building))
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	expectStatus(t, h.do(t, http.MethodPost, "/api/coi/documents/"+doc.ID+"/reject", RejectRequest{}), http.StatusBadRequest)
	expectStatus(t, h.do(t, http.MethodPost, "/api/coi/documents/"+doc.ID+"/reject", map[string]string{"why": "x"}), http.StatusBadRequest)

	res := h.do(t, http.MethodPost, "/api/coi/documents/"+doc.ID+"/reject", RejectRequest{Reason: "wrong holder"})
	expectStatus(t, res, http.StatusOK)
	rejected := decode[tracking.DocumentView](t, res)
	if rejected.Status != types.StatusRejected || rejected.RejectionReason != "wrong holder" {
		t.Fatalf("unexpected rejection: %+v", rejected)
	}
	expectStatus(t, h.do(t, http.MethodPost, "/api/coi/documents/missing/reject", RejectRequest{Reason: "x"}), http.StatusNotFound)
}

func TestGetDocumentFile(t *testing.T) {
	h := newHarness(t)
	vendor, building := seedDirectory(t, h)
	fields := map[string]string{"vendor_id": vendor.ID, "building_id": building.ID}

	res := h.upload(t, "?wait=true", fields, "cert.png", pngHeader)
	expectStatus(t, res, http.StatusOK)
	uploaded := decode[tracking.UploadResult](t, res)

	res = h.do(t, http.MethodGet, "/api/coi/documents/"+uploaded.Document.ID+"/file", nil)
	expectStatus(t, res, http.StatusOK)
	if ct := res.Header().Get("Content-Type"); ct != "image/png" {
		t.Fatalf("unexpected content type %q", ct)
	}
	if got := res.Header().Get("Digest"); got != uploaded.Document.FileHash {
		t.Fatalf("expected digest %s, got %s", uploaded.Document.FileHash, got)
	}
	if !bytes.Equal(res.Body.Bytes(), pngHeader) {
		t.Fatalf("unexpected body %q", res.Body.Bytes())
	}

	res = h.do(t, http.MethodPost, "/api/coi/documents", tracking.NewDocument{VendorID: vendor.ID, BuildingID: building.ID})
	expectStatus(t, res, http.StatusCreated)
	pending := decode[tracking.DocumentView](t, res)
	res = h.do(t, http.MethodGet, "/api/coi/documents/"+pending.ID+"/file", nil)
	expectStatus(t, res, http.StatusNotFound)
}
