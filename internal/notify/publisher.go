// Package notify forwards document events to an external endpoint as
// CloudEvents. Delivery happens off the mutation path: the tracker listener
// only enqueues, and a worker drains the queue with exponential backoff.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/sethvargo/go-retry"

	"github.com/davidahmann/coitrack/internal/store"
	"github.com/davidahmann/coitrack/pkg/types"
)

const (
	DefaultSource    = "/coitrack"
	eventTypePrefix  = "com.coitrack."
	defaultQueueSize = 256
)

// ErrRejected marks a delivery the receiver refused. It is not retried.
var ErrRejected = errors.New("event rejected by receiver")

type Sender interface {
	Send(ctx context.Context, ev cloudevents.Event) error
}

type Config struct {
	Source      string
	QueueSize   int
	MaxRetries  uint64
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	// Kinds limits which tracker events are published. Empty means all.
	Kinds []store.EventKind
}

type Publisher struct {
	sender Sender
	cfg    Config
	queue  chan cloudevents.Event
	kinds  map[store.EventKind]bool
	logger *slog.Logger

	dropped atomic.Uint64
}

func NewPublisher(sender Sender, cfg Config, logger *slog.Logger) *Publisher {
	if cfg.Source == "" {
		cfg.Source = DefaultSource
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = 500 * time.Millisecond
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = time.Minute
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 5
	}
	if logger == nil {
		logger = slog.Default()
	}
	var kinds map[store.EventKind]bool
	if len(cfg.Kinds) > 0 {
		kinds = make(map[store.EventKind]bool, len(cfg.Kinds))
		for _, k := range cfg.Kinds {
			kinds[k] = true
		}
	}
	return &Publisher{
		sender: sender,
		cfg:    cfg,
		queue:  make(chan cloudevents.Event, cfg.QueueSize),
		kinds:  kinds,
		logger: logger,
	}
}

// Listener returns a tracker listener that enqueues events without
// blocking. Events arriving while the queue is full are dropped.
func (p *Publisher) Listener() store.Listener {
	return func(ev store.Event) {
		if p.kinds != nil && !p.kinds[ev.Kind] {
			return
		}
		ce, err := NewEvent(p.cfg.Source, ev)
		if err != nil {
			p.logger.Error("build cloudevent", "error", err, "document_id", ev.Document.ID)
			return
		}
		select {
		case p.queue <- ce:
		default:
			p.dropped.Add(1)
			p.logger.Warn("notification queue full, dropping event", "type", ce.Type(), "document_id", ev.Document.ID)
		}
	}
}

// Dropped counts events discarded because the queue was full.
func (p *Publisher) Dropped() uint64 { return p.dropped.Load() }

// Run delivers queued events until ctx is done.
func (p *Publisher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-p.queue:
			if err := p.Deliver(ctx, ev); err != nil && ctx.Err() == nil {
				p.logger.Error("event delivery failed", "type", ev.Type(), "id", ev.ID(), "error", err)
			}
		}
	}
}

// Deliver sends ev, retrying transient failures with capped exponential
// backoff.
func (p *Publisher) Deliver(ctx context.Context, ev cloudevents.Event) error {
	backoff := retry.NewExponential(p.cfg.BaseBackoff)
	backoff = retry.WithCappedDuration(p.cfg.MaxBackoff, backoff)
	backoff = retry.WithMaxRetries(p.cfg.MaxRetries, backoff)

	attempt := 0
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		err := p.sender.Send(ctx, ev)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, ErrRejected):
			return err
		default:
			p.logger.Warn("event delivery attempt failed", "type", ev.Type(), "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
	})
}

// EventData is the JSON payload of every published event.
type EventData struct {
	Document types.Document `json:"document"`
	Version  uint64         `json:"version"`
}

// NewEvent maps a tracker event to a CloudEvent. The id is stable for a
// given document version so receivers can deduplicate retries.
func NewEvent(source string, ev store.Event) (cloudevents.Event, error) {
	ce := cloudevents.NewEvent()
	ce.SetID(fmt.Sprintf("%s-%d", ev.Document.ID, ev.Version))
	ce.SetSource(source)
	ce.SetType(eventTypePrefix + string(ev.Kind))
	ce.SetSubject(ev.Document.ID)
	ce.SetTime(ev.Document.UpdatedAt)
	if err := ce.SetData(cloudevents.ApplicationJSON, EventData{Document: ev.Document, Version: ev.Version}); err != nil {
		return cloudevents.Event{}, err
	}
	if err := ce.Validate(); err != nil {
		return cloudevents.Event{}, err
	}
	return ce, nil
}

// KindOf recovers the tracker event kind from a CloudEvent built by NewEvent.
func KindOf(ev cloudevents.Event) store.EventKind {
	return store.EventKind(strings.TrimPrefix(ev.Type(), eventTypePrefix))
}
