package slack

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/davidahmann/coitrack/internal/notify"
	"github.com/davidahmann/coitrack/internal/store"
	"github.com/davidahmann/coitrack/pkg/types"
)

func sampleDoc() types.Document {
	return types.Document{
		ID:             "doc-1",
		Vendor:         types.Ref{ID: "v1", Name: "Acme"},
		Building:       types.Ref{ID: "b1", Name: "Tower"},
		Status:         types.StatusApproved,
		ReviewerName:   "Dana",
		OverrideReason: "umbrella policy",
		UpdatedAt:      time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestMessage(t *testing.T) {
	text, ok := Message(store.EventApproved, sampleDoc())
	if !ok || !strings.Contains(text, "approved by Dana") || !strings.Contains(text, "Override: umbrella policy") {
		t.Fatalf("unexpected approved message: %q", text)
	}

	doc := sampleDoc()
	doc.RejectionReason = "wrong holder"
	if text, _ := Message(store.EventRejected, doc); !strings.Contains(text, "Reason: wrong holder") {
		t.Fatalf("unexpected rejected message: %q", text)
	}

	doc.ComplianceResults = []types.ComplianceLineItem{{Passed: true}, {Passed: false}}
	if text, _ := Message(store.EventVerified, doc); !strings.Contains(text, "50% compliant, 1 failed") {
		t.Fatalf("unexpected verified message: %q", text)
	}

	if _, ok := Message(store.EventAdded, doc); ok {
		t.Fatalf("expected no message for added documents")
	}
}

func TestSendPostsText(t *testing.T) {
	var got message
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	ev, err := notify.NewEvent(notify.DefaultSource, store.Event{Kind: store.EventApproved, Document: sampleDoc(), Version: 3})
	if err != nil {
		t.Fatalf("event: %v", err)
	}
	if err := NewPoster(server.URL).Send(context.Background(), ev); err != nil {
		t.Fatalf("send: %v", err)
	}
	if !strings.Contains(got.Text, "Acme / Tower") {
		t.Fatalf("unexpected text: %q", got.Text)
	}
}

func TestSendClassifiesFailures(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusNotFound)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(int(status.Load()))
	}))
	defer server.Close()

	ev, err := notify.NewEvent(notify.DefaultSource, store.Event{Kind: store.EventRejected, Document: sampleDoc(), Version: 1})
	if err != nil {
		t.Fatalf("event: %v", err)
	}
	poster := NewPoster(server.URL)

	if err := poster.Send(context.Background(), ev); !errors.Is(err, notify.ErrRejected) {
		t.Fatalf("expected rejected, got %v", err)
	}

	status.Store(http.StatusServiceUnavailable)
	err = poster.Send(context.Background(), ev)
	if err == nil || errors.Is(err, notify.ErrRejected) {
		t.Fatalf("expected retryable error, got %v", err)
	}
}

func TestSendSkipsUnlistedKinds(t *testing.T) {
	ev, err := notify.NewEvent(notify.DefaultSource, store.Event{Kind: store.EventFileAttached, Document: sampleDoc(), Version: 1})
	if err != nil {
		t.Fatalf("event: %v", err)
	}
	if err := NewPoster("http://127.0.0.1:0").Send(context.Background(), ev); err != nil {
		t.Fatalf("expected skip, got %v", err)
	}
}
