package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davidahmann/coitrack/internal/crypto"
	"github.com/davidahmann/coitrack/internal/store"
	"github.com/davidahmann/coitrack/pkg/types"
)

type flakySender struct {
	mu    sync.Mutex
	calls int
	fail  int
	err   error
	sent  []cloudevents.Event
}

func (s *flakySender) Send(_ context.Context, ev cloudevents.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.calls <= s.fail {
		return s.err
	}
	s.sent = append(s.sent, ev)
	return nil
}

func (s *flakySender) sentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleEvent() store.Event {
	return store.Event{
		Kind: store.EventApproved,
		Document: types.Document{
			ID:           "doc-7",
			Status:       types.StatusApproved,
			ReviewerName: "dana",
			UpdatedAt:    time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC),
		},
		Version: 12,
	}
}

func TestNewEvent(t *testing.T) {
	ce, err := NewEvent("/test", sampleEvent())
	require.NoError(t, err)
	assert.Equal(t, "doc-7-12", ce.ID())
	assert.Equal(t, "com.coitrack.document.approved", ce.Type())
	assert.Equal(t, "doc-7", ce.Subject())
	assert.Equal(t, "/test", ce.Source())

	var data EventData
	require.NoError(t, json.Unmarshal(ce.Data(), &data))
	assert.Equal(t, uint64(12), data.Version)
	assert.Equal(t, "dana", data.Document.ReviewerName)
}

func TestDeliverRetriesThenSucceeds(t *testing.T) {
	sender := &flakySender{fail: 2, err: errors.New("connection refused")}
	p := NewPublisher(sender, Config{BaseBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond}, quietLogger())

	ce, err := NewEvent(DefaultSource, sampleEvent())
	require.NoError(t, err)
	require.NoError(t, p.Deliver(context.Background(), ce))
	assert.Equal(t, 3, sender.calls)
	assert.Equal(t, 1, sender.sentCount())
}

func TestDeliverGivesUp(t *testing.T) {
	sender := &flakySender{fail: 100, err: errors.New("503")}
	p := NewPublisher(sender, Config{BaseBackoff: time.Millisecond, MaxBackoff: time.Millisecond, MaxRetries: 2}, quietLogger())

	ce, err := NewEvent(DefaultSource, sampleEvent())
	require.NoError(t, err)
	assert.Error(t, p.Deliver(context.Background(), ce))
	assert.Equal(t, 3, sender.calls)
}

func TestDeliverDoesNotRetryRejected(t *testing.T) {
	sender := &flakySender{fail: 100, err: ErrRejected}
	p := NewPublisher(sender, Config{BaseBackoff: time.Millisecond}, quietLogger())

	ce, err := NewEvent(DefaultSource, sampleEvent())
	require.NoError(t, err)
	assert.ErrorIs(t, p.Deliver(context.Background(), ce), ErrRejected)
	assert.Equal(t, 1, sender.calls)
}

func TestListenerFiltersAndDrops(t *testing.T) {
	sender := &flakySender{}
	p := NewPublisher(sender, Config{QueueSize: 1, Kinds: []store.EventKind{store.EventApproved, store.EventRejected}}, quietLogger())
	listener := p.Listener()

	ignored := sampleEvent()
	ignored.Kind = store.EventAdded
	listener(ignored)
	assert.Len(t, p.queue, 0)

	listener(sampleEvent())
	listener(sampleEvent())
	assert.Len(t, p.queue, 1)
	assert.Equal(t, uint64(1), p.Dropped())
}

func TestRunDeliversTrackerEvents(t *testing.T) {
	sender := &flakySender{}
	p := NewPublisher(sender, Config{}, quietLogger())

	tracker := store.NewTracker(store.NewInMemoryStore())
	unsubscribe := tracker.Subscribe(p.Listener())
	defer unsubscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	doc, err := tracker.Add(context.Background(), types.Document{Status: types.StatusUnderReview})
	require.NoError(t, err)
	_, err = tracker.Approve(context.Background(), doc.ID, "dana", "")
	require.NoError(t, err)

	require.Eventually(t, func() bool { return sender.sentCount() == 2 }, time.Second, 5*time.Millisecond)
}

func TestWebhookSendsSignedBinaryEvent(t *testing.T) {
	priv, pub, err := crypto.KeyPairFromSeed(bytes.Repeat([]byte{0x03}, 32))
	require.NoError(t, err)

	type received struct {
		header http.Header
		body   []byte
	}
	got := make(chan received, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got <- received{header: r.Header.Clone(), body: body}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	hook, err := NewWebhook(srv.URL, crypto.NewSigner(priv))
	require.NoError(t, err)

	ce, err := NewEvent(DefaultSource, sampleEvent())
	require.NoError(t, err)
	require.NoError(t, hook.Send(context.Background(), ce))

	req := <-got
	assert.Equal(t, "com.coitrack.document.approved", req.header.Get("Ce-Type"))
	assert.Equal(t, "doc-7-12", req.header.Get("Ce-Id"))
	assert.JSONEq(t, string(ce.Data()), string(req.body))
	ok, err := crypto.VerifySignature(pub, req.body, req.header.Get(SignatureHeader))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestWebhookClassifiesFailures(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusBadRequest)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(int(status.Load()))
	}))
	defer srv.Close()

	hook, err := NewWebhook(srv.URL, nil)
	require.NoError(t, err)
	ce, err := NewEvent(DefaultSource, sampleEvent())
	require.NoError(t, err)

	assert.ErrorIs(t, hook.Send(context.Background(), ce), ErrRejected)

	status.Store(http.StatusServiceUnavailable)
	err = hook.Send(context.Background(), ce)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrRejected))
}
