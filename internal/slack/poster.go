// Package slack posts review notifications to a Slack incoming webhook.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"

	"github.com/davidahmann/coitrack/internal/filter"
	"github.com/davidahmann/coitrack/internal/notify"
	"github.com/davidahmann/coitrack/internal/store"
	"github.com/davidahmann/coitrack/pkg/types"
)

// Kinds are the events worth a message; pass them as the publisher filter.
var Kinds = []store.EventKind{store.EventVerified, store.EventApproved, store.EventRejected, store.EventExpired}

type Poster struct {
	WebhookURL string
	HTTP       *http.Client
}

func NewPoster(webhookURL string) *Poster {
	return &Poster{WebhookURL: webhookURL, HTTP: &http.Client{Timeout: 10 * time.Second}}
}

type message struct {
	Text string `json:"text"`
}

// Send implements notify.Sender. Events without a message are ignored.
func (p *Poster) Send(ctx context.Context, ev cloudevents.Event) error {
	var data notify.EventData
	if err := ev.DataAs(&data); err != nil {
		return fmt.Errorf("%w: decode event data: %v", notify.ErrRejected, err)
	}
	text, ok := Message(notify.KindOf(ev), data.Document)
	if !ok {
		return nil
	}

	body, err := json.Marshal(message{Text: text})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	client := p.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests:
		return fmt.Errorf("%w: slack returned %d", notify.ErrRejected, resp.StatusCode)
	default:
		return fmt.Errorf("slack returned %d", resp.StatusCode)
	}
}

// Message renders the text for a document event.
func Message(kind store.EventKind, doc types.Document) (string, bool) {
	subject := fmt.Sprintf("%s / %s", doc.Vendor.Name, doc.Building.Name)
	switch kind {
	case store.EventVerified:
		return fmt.Sprintf(":mag: COI ready for review: %s (%d%% compliant, %d failed checks)",
			subject, filter.CompliancePercentage(doc), doc.FailedItems()), true
	case store.EventApproved:
		text := fmt.Sprintf(":white_check_mark: COI approved by %s: %s", doc.ReviewerName, subject)
		if doc.OverrideReason != "" {
			text += fmt.Sprintf("\n>Override: %s", doc.OverrideReason)
		}
		return text, true
	case store.EventRejected:
		return fmt.Sprintf(":x: COI rejected by %s: %s\n>Reason: %s", doc.ReviewerName, subject, doc.RejectionReason), true
	case store.EventExpired:
		expired := "unknown date"
		if doc.EarliestExpiration != nil {
			expired = doc.EarliestExpiration.Format("2006-01-02")
		}
		return fmt.Sprintf(":warning: COI expired on %s: %s", expired, subject), true
	default:
		return "", false
	}
}
