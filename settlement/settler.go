package settlement

import (
	"context"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"

	"curveExchange/entity"
)

// Settler executes the value transfer instructions emitted by the exchange.
// The exchange never holds native currency itself.
type Settler interface {
	Settle(ctx context.Context, s entity.Settlement) error
}

// Discard drops every instruction. Used when the host reads the response
// headers and no webhook is configured.
type Discard struct{}

func (Discard) Settle(context.Context, entity.Settlement) error { return nil }

type WebhookOptions struct {
	URL        string
	Timeout    time.Duration
	RetryCount int
	Token      string
}

// Webhook POSTs every instruction as JSON to a host-side endpoint.
type Webhook struct {
	client *resty.Client
	url    string
}

func NewWebhook(opts WebhookOptions) *Webhook {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}

	client := resty.New().
		SetTimeout(opts.Timeout).
		SetRetryCount(opts.RetryCount).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			return err != nil || resp.StatusCode() >= 500
		})
	if opts.Token != "" {
		client.SetAuthToken(opts.Token)
	}

	return &Webhook{client: client, url: strings.TrimSuffix(opts.URL, "/")}
}

type webhookBody struct {
	Kind      entity.SettlementKind `json:"kind"`
	Recipient string                `json:"recipient"`
	Amount    int64                 `json:"amount"`
}

func (w *Webhook) Settle(ctx context.Context, s entity.Settlement) error {
	resp, err := w.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(webhookBody{Kind: s.Kind, Recipient: s.Recipient, Amount: s.Amount}).
		Post(w.url)
	if err != nil {
		return errors.Wrapf(err, "post %v of %v to %v", s.Kind, s.Amount, s.Recipient)
	}
	if resp.IsError() {
		return errors.Errorf("settlement webhook answered %v for %v of %v to %v",
			resp.StatusCode(), s.Kind, s.Amount, s.Recipient)
	}
	return nil
}
