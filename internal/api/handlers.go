// Package api serves the COI tracking REST surface.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/davidahmann/coitrack/internal/auth"
	"github.com/davidahmann/coitrack/internal/store"
	"github.com/davidahmann/coitrack/internal/tracking"
	"github.com/davidahmann/coitrack/internal/workers/verifyrunner"
)

type Handler struct {
	Auth    auth.Authenticator
	Service *tracking.Service
	Logger  *slog.Logger
	// MaxUploadBytes bounds the multipart body; zero means 20 MiB.
	MaxUploadBytes int64

	initOnce  sync.Once
	closeOnce sync.Once
	closing   chan struct{}
}

func (h *Handler) closingCh() chan struct{} {
	h.initOnce.Do(func() { h.closing = make(chan struct{}) })
	return h.closing
}

// Close ends every open event stream. It is meant for
// http.Server.RegisterOnShutdown, since Shutdown does not cancel handlers
// that are still writing.
func (h *Handler) Close() {
	h.closeOnce.Do(func() { close(h.closingCh()) })
}

func NewRouter(h *Handler) http.Handler {
	if h.Logger == nil {
		h.Logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.logRequests)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(h.requireAuth)

		r.Route("/api/coi", func(r chi.Router) {
			r.Get("/events", h.Events)
			r.Get("/verifications/{id}", h.GetVerification)

			r.Route("/documents", func(r chi.Router) {
				r.Get("/", h.ListDocuments)
				r.Post("/", h.CreateDocument)
				r.Get("/counts", h.Counts)
				r.Post("/upload", h.Upload)
				r.Get("/{id}", h.GetDocument)
				r.Get("/{id}/file", h.GetDocumentFile)
				r.Post("/{id}/approve", h.Approve)
				r.Post("/{id}/reject", h.Reject)
			})
		})

		r.Route("/api/vendors", func(r chi.Router) {
			r.Get("/", h.ListVendors)
			r.Post("/", h.CreateVendor)
			r.Get("/{id}", h.GetVendor)
			r.Put("/{id}", h.ReplaceVendor)
			r.Delete("/{id}", h.DeleteVendor)
		})
		r.Route("/api/buildings", func(r chi.Router) {
			r.Get("/", h.ListBuildings)
			r.Post("/", h.CreateBuilding)
			r.Get("/{id}", h.GetBuilding)
			r.Put("/{id}", h.ReplaceBuilding)
			r.Delete("/{id}", h.DeleteBuilding)
		})
		r.Route("/api/templates", func(r chi.Router) {
			r.Get("/", h.ListTemplates)
			r.Post("/", h.CreateTemplate)
			r.Get("/{id}", h.GetTemplate)
			r.Put("/{id}", h.ReplaceTemplate)
			r.Delete("/{id}", h.DeleteTemplate)
		})
	})
	return r
}

type claimsKey struct{}

func (h *Handler) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.Auth == nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "authentication not configured"})
			return
		}
		claims, err := h.Auth.Authenticate(r)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": err.Error()})
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey{}, claims)))
	})
}

func claimsFrom(ctx context.Context) auth.Claims {
	claims, _ := ctx.Value(claimsKey{}).(auth.Claims)
	return claims
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		h.Logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (h *Handler) service(w http.ResponseWriter) (*tracking.Service, bool) {
	if h.Service == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "tracking service not configured"})
		return nil, false
	}
	return h.Service, true
}

// writeError maps domain errors to status codes.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.Logger.Error("request failed", "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, tracking.ErrInvalid):
		return http.StatusBadRequest
	case errors.Is(err, auth.ErrMissingBearer), errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, store.ErrNotFound), errors.Is(err, verifyrunner.ErrRunNotFound):
		return http.StatusNotFound
	case errors.Is(err, tracking.ErrConflict), errors.Is(err, store.ErrExists):
		return http.StatusConflict
	case errors.Is(err, tracking.ErrOverrideRequired):
		return http.StatusUnprocessableEntity
	case errors.Is(err, tracking.ErrUnavailable):
		return http.StatusNotImplemented
	case errors.Is(err, verifyrunner.ErrQueueFull):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return err
		}
		return errors.New("invalid json")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(payload)
}
