package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/davidahmann/coitrack/internal/auth"
	"github.com/davidahmann/coitrack/internal/blob"
	"github.com/davidahmann/coitrack/internal/store"
	"github.com/davidahmann/coitrack/internal/tracking"
	"github.com/davidahmann/coitrack/internal/verify"
	"github.com/davidahmann/coitrack/internal/workers/verifyrunner"
)

const testToken = "test-token"

var (
	testNow   = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
)

type harness struct {
	handler *Handler
	router  http.Handler
	tracker *store.Tracker
	svc     *tracking.Service
}

func newHarness(t *testing.T) harness {
	t.Helper()
	clock := func() time.Time { return testNow }
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tracker := store.NewTracker(store.NewInMemoryStore(), store.WithClock(clock))

	blobs, err := blob.NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("blob store: %v", err)
	}
	runner := verifyrunner.New(verifyrunner.Config{}, verifyrunner.NewRegistry(clock), verifyrunner.Processor{
		Verifier: &verify.Mock{Now: clock},
		Tracker:  tracker,
		Now:      clock,
	}, logger)

	svc := tracking.New(tracker,
		tracking.WithBlobStore(blobs),
		tracking.WithRunner(runner),
		tracking.WithClock(clock),
		tracking.WithLogger(logger),
	)
	h := &Handler{
		Auth:    auth.NewTokenAuthenticator(testToken, map[string]string{"tok-dana": "Dana"}),
		Service: svc,
		Logger:  logger,
	}
	return harness{handler: h, router: NewRouter(h), tracker: tracker, svc: svc}
}

func (h harness) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Authorization", "Bearer "+testToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	res := httptest.NewRecorder()
	h.router.ServeHTTP(res, req)
	return res
}

func (h harness) upload(t *testing.T, query string, fields map[string]string, fileName string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("field: %v", err)
		}
	}
	if fileName != "" {
		fw, err := mw.CreateFormFile("file", fileName)
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		if _, err := fw.Write(data); err != nil {
			t.Fatalf("write file: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/coi/documents/upload"+query, &buf)
	req.Header.Set("Authorization", "Bearer "+testToken)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	res := httptest.NewRecorder()
	h.router.ServeHTTP(res, req)
	return res
}

func decode[T any](t *testing.T, res *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(res.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %s: %v", res.Body.String(), err)
	}
	return out
}

func expectStatus(t *testing.T, res *httptest.ResponseRecorder, want int) {
	t.Helper()
	if res.Code != want {
		t.Fatalf("expected %d, got %d: %s", want, res.Code, res.Body.String())
	}
}

func idPath(prefix, id string) string { return fmt.Sprintf("%s/%s", prefix, id) }
