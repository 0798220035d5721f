package notify

import (
	"context"
	"fmt"
	"net/http"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	cehttp "github.com/cloudevents/sdk-go/v2/protocol/http"

	"github.com/davidahmann/coitrack/internal/crypto"
)

// SignatureHeader carries the Ed25519 signature of the request body.
const SignatureHeader = "X-Coitrack-Signature"

// Webhook posts events to an HTTP endpoint in binary content mode, so the
// request body is exactly the event data.
type Webhook struct {
	client cloudevents.Client
	signer *crypto.Signer
}

func NewWebhook(target string, signer *crypto.Signer) (*Webhook, error) {
	protocol, err := cloudevents.NewHTTP(cloudevents.WithTarget(target))
	if err != nil {
		return nil, fmt.Errorf("cloudevents http protocol: %w", err)
	}
	client, err := cloudevents.NewClient(protocol, cloudevents.WithTimeNow(), cloudevents.WithUUIDs())
	if err != nil {
		return nil, fmt.Errorf("cloudevents client: %w", err)
	}
	return &Webhook{client: client, signer: signer}, nil
}

func (w *Webhook) Send(ctx context.Context, ev cloudevents.Event) error {
	ctx = cloudevents.WithEncodingBinary(ctx)
	if w.signer != nil {
		header := http.Header{}
		header.Set(SignatureHeader, w.signer.Sign(ev.Data()))
		ctx = cehttp.WithCustomHeader(ctx, header)
	}

	result := w.client.Send(ctx, ev)
	if cloudevents.IsACK(result) {
		return nil
	}
	var httpResult *cehttp.Result
	if cloudevents.ResultAs(result, &httpResult) {
		code := httpResult.StatusCode
		if code >= 400 && code < 500 && code != http.StatusTooManyRequests {
			return fmt.Errorf("%w: %v", ErrRejected, result)
		}
	}
	return result
}
