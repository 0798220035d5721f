// Package expiry marks documents whose coverage has lapsed as expired.
package expiry

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/davidahmann/coitrack/internal/filter"
	"github.com/davidahmann/coitrack/internal/store"
	"github.com/davidahmann/coitrack/pkg/types"
)

const DefaultInterval = time.Hour

type Sweeper struct {
	tracker  *store.Tracker
	interval time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

func NewSweeper(tracker *store.Tracker, interval time.Duration, now func() time.Time, logger *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{tracker: tracker, interval: interval, now: now, logger: logger}
}

// Run sweeps once immediately and then on every tick until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("expiry sweep failed", "error", err)
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error("expiry sweep failed", "error", err)
			}
		}
	}
}

// Sweep marks every eligible document expired and returns how many changed.
// Only documents still awaiting a decision are eligible; approved and
// rejected documents keep their decision and surface through the
// expiring_soon bucket instead.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	now := s.now()
	docs, err := s.tracker.List(ctx, store.DocumentQuery{})
	if err != nil {
		return 0, err
	}
	marked := 0
	for _, doc := range docs {
		if !eligible(doc, now) {
			continue
		}
		_, err := s.tracker.MarkExpired(ctx, doc.ID, func(current types.Document) error {
			if !eligible(current, now) {
				return errSkip
			}
			return nil
		})
		switch {
		case errors.Is(err, errSkip), errors.Is(err, store.ErrNotFound):
			continue
		case err != nil:
			return marked, err
		}
		marked++
		s.logger.Info("document expired", "document_id", doc.ID, "earliest_expiration", doc.EarliestExpiration)
	}
	return marked, nil
}

var errSkip = errors.New("no longer eligible")

func eligible(doc types.Document, now time.Time) bool {
	switch doc.Status {
	case types.StatusPendingUpload, types.StatusUploaded, types.StatusUnderReview:
		return filter.IsPastExpiration(doc, now)
	}
	return false
}
