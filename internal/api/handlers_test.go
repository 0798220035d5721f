package api

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/davidahmann/coitrack/internal/auth"
	"github.com/davidahmann/coitrack/internal/store"
	"github.com/davidahmann/coitrack/internal/tracking"
	"github.com/davidahmann/coitrack/internal/workers/verifyrunner"
)

func TestHealthzNeedsNoAuth(t *testing.T) {
	h := newHarness(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	res := httptest.NewRecorder()
	h.router.ServeHTTP(res, req)
	expectStatus(t, res, http.StatusOK)
}

func TestDocumentsRequireAuth(t *testing.T) {
	h := newHarness(t)

	for _, header := range []string{"", "Bearer wrong", "Token " + testToken} {
		req := httptest.NewRequest(http.MethodGet, "/api/coi/documents", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		res := httptest.NewRecorder()
		h.router.ServeHTTP(res, req)
		expectStatus(t, res, http.StatusUnauthorized)
	}
}

func TestMappedTokenIsReviewer(t *testing.T) {
	h := newHarness(t)
	ctx := t.Context()
	vendor, building := seedDirectory(t, h)
	doc, err := h.tracker.Add(ctx, underReview(vendor, building))
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/coi/documents/"+doc.ID+"/approve", nil)
	req.Header.Set("Authorization", "Bearer tok-dana")
	res := httptest.NewRecorder()
	h.router.ServeHTTP(res, req)
	expectStatus(t, res, http.StatusOK)

	view := decode[tracking.DocumentView](t, res)
	if view.ReviewerName != "Dana" {
		t.Fatalf("expected reviewer Dana, got %q", view.ReviewerName)
	}
}

func TestServiceNotConfigured(t *testing.T) {
	router := NewRouter(&Handler{Auth: auth.NewTokenAuthenticator(testToken, nil)})
	req := httptest.NewRequest(http.MethodGet, "/api/coi/documents", nil)
	req.Header.Set("Authorization", "Bearer "+testToken)
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)
	expectStatus(t, res, http.StatusNotImplemented)
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: bad", tracking.ErrInvalid), http.StatusBadRequest},
		{auth.ErrInvalidToken, http.StatusUnauthorized},
		{fmt.Errorf("document x: %w", store.ErrNotFound), http.StatusNotFound},
		{verifyrunner.ErrRunNotFound, http.StatusNotFound},
		{tracking.ErrConflict, http.StatusConflict},
		{tracking.ErrOverrideRequired, http.StatusUnprocessableEntity},
		{tracking.ErrUnavailable, http.StatusNotImplemented},
		{verifyrunner.ErrQueueFull, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := statusFor(tc.err); got != tc.want {
			t.Fatalf("%v: expected %d, got %d", tc.err, tc.want, got)
		}
	}
}

func TestUnknownRouteIs404(t *testing.T) {
	h := newHarness(t)
	res := h.do(t, http.MethodGet, "/api/coi/nothing", nil)
	expectStatus(t, res, http.StatusNotFound)
}
