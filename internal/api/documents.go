package api

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/davidahmann/coitrack/internal/filter"
	"github.com/davidahmann/coitrack/internal/tracking"
	"github.com/davidahmann/coitrack/pkg/types"
)

const defaultMaxUploadBytes = 20 << 20

type ApproveRequest struct {
	OverrideReason string `json:"overrideReason,omitempty"`
}

type RejectRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	svc, ok := h.service(w)
	if !ok {
		return
	}
	q, err := listQuery(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	docs, err := svc.ListDocuments(r.Context(), q)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, docs)
}

func (h *Handler) Counts(w http.ResponseWriter, r *http.Request) {
	svc, ok := h.service(w)
	if !ok {
		return
	}
	q, err := listQuery(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	counts, err := svc.Counts(r.Context(), q)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

func listQuery(r *http.Request) (tracking.ListQuery, error) {
	values := r.URL.Query()
	q := tracking.ListQuery{
		VendorID:   values.Get("vendor_id"),
		BuildingID: values.Get("building_id"),
	}
	if raw := values.Get("status"); raw != "" {
		status, ok := types.ParseStatus(raw)
		if !ok {
			return q, fmt.Errorf("%w: unknown status %q", tracking.ErrInvalid, raw)
		}
		q.Status = status
	}
	if raw := values.Get("bucket"); raw != "" {
		bucket, ok := filter.ParseBucket(raw)
		if !ok {
			return q, fmt.Errorf("%w: unknown bucket %q", tracking.ErrInvalid, raw)
		}
		q.Bucket = bucket
	}
	return q, nil
}

func (h *Handler) GetDocument(w http.ResponseWriter, r *http.Request) {
	svc, ok := h.service(w)
	if !ok {
		return
	}
	doc, err := svc.GetDocument(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// GetDocumentFile serves the stored certificate after checking its digest.
func (h *Handler) GetDocumentFile(w http.ResponseWriter, r *http.Request) {
	svc, ok := h.service(w)
	if !ok {
		return
	}
	file, err := svc.OpenFile(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", file.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(file.Data)))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("inline", map[string]string{"filename": file.Name}))
	w.Header().Set("Digest", file.Digest)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(file.Data)
}

func (h *Handler) CreateDocument(w http.ResponseWriter, r *http.Request) {
	svc, ok := h.service(w)
	if !ok {
		return
	}
	var req tracking.NewDocument
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	doc, err := svc.RequestDocument(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	svc, ok := h.service(w)
	if !ok {
		return
	}
	// The body is optional.
	var req ApproveRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	doc, err := svc.Approve(r.Context(), chi.URLParam(r, "id"), claimsFrom(r.Context()).Reviewer, req.OverrideReason)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (h *Handler) Reject(w http.ResponseWriter, r *http.Request) {
	svc, ok := h.service(w)
	if !ok {
		return
	}
	var req RejectRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	doc, err := svc.Reject(r.Context(), chi.URLParam(r, "id"), claimsFrom(r.Context()).Reviewer, req.Reason)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// Upload accepts multipart form fields file, vendor_id and building_id, plus
// optional template_id and document_id. With ?wait=true the response carries
// the finished verification; otherwise it is 202 with a queued run.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	svc, ok := h.service(w)
	if !ok {
		return
	}
	limit := h.MaxUploadBytes
	if limit <= 0 {
		limit = defaultMaxUploadBytes
	}
	wait := false
	if raw := r.URL.Query().Get("wait"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "wait must be a boolean"})
			return
		}
		wait = parsed
	}

	// Headroom for the other form fields.
	r.Body = http.MaxBytesReader(w, r.Body, limit+1<<20)
	if err := r.ParseMultipartForm(limit); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "upload too large"})
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid multipart form"})
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing file"})
		return
	}
	defer func() { _ = file.Close() }()
	data, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "read file"})
		return
	}

	res, err := svc.Upload(r.Context(), tracking.UploadRequest{
		VendorID:   r.FormValue("vendor_id"),
		BuildingID: r.FormValue("building_id"),
		TemplateID: r.FormValue("template_id"),
		DocumentID: r.FormValue("document_id"),
		FileName:   header.Filename,
		Data:       data,
		Wait:       wait,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	status := http.StatusAccepted
	if wait {
		status = http.StatusOK
	}
	writeJSON(w, status, res)
}

func (h *Handler) GetVerification(w http.ResponseWriter, r *http.Request) {
	svc, ok := h.service(w)
	if !ok {
		return
	}
	run, err := svc.Verification(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}
