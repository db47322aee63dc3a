package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
	"github.com/stripe/stripe-go/v79/webhook"
)

const Provider = "stripe"

var ErrNotConfigured = errors.New("payments: stripe not configured")

// ErrMalformedEvent marks an authenticated event whose payment intent could not
// be decoded. VerifyEvent still returns the event envelope alongside it.
var ErrMalformedEvent = errors.New("payments: malformed event object")

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	// Tolerance bounds the signature timestamp age. Zero uses the library default.
	Tolerance time.Duration
	// Backends overrides the API endpoint, used by tests.
	Backends *stripe.Backends
}

// StripeGateway uses an explicitly constructed client instead of the package-level key.
type StripeGateway struct {
	api           *client.API
	webhookSecret string
	tolerance     time.Duration
}

func NewStripeGateway(cfg StripeConfig) *StripeGateway {
	g := &StripeGateway{
		webhookSecret: strings.TrimSpace(cfg.WebhookSecret),
		tolerance:     cfg.Tolerance,
	}
	if g.tolerance <= 0 {
		g.tolerance = webhook.DefaultTolerance
	}
	if key := strings.TrimSpace(cfg.SecretKey); key != "" {
		g.api = client.New(key, cfg.Backends)
	}
	return g
}

func (g *StripeGateway) CreateIntent(ctx context.Context, req IntentRequest) (Intent, error) {
	if g.api == nil {
		return Intent{}, ErrNotConfigured
	}
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.AmountCents),
		Currency: stripe.String(strings.ToLower(req.Currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
		Metadata: req.Metadata,
	}
	if req.Description != "" {
		params.Description = stripe.String(req.Description)
	}
	if req.IdempotencyKey != "" {
		params.IdempotencyKey = stripe.String(req.IdempotencyKey)
	}
	params.Context = ctx

	pi, err := g.api.PaymentIntents.New(params)
	if err != nil {
		return Intent{}, fmt.Errorf("payments: create intent: %w", err)
	}
	return Intent{ID: pi.ID, ClientSecret: pi.ClientSecret, Status: string(pi.Status)}, nil
}

func (g *StripeGateway) VerifyEvent(payload []byte, signatureHeader string) (Event, error) {
	if g.webhookSecret == "" {
		return Event{}, ErrNotConfigured
	}
	if strings.TrimSpace(signatureHeader) == "" {
		return Event{}, errors.New("payments: missing signature header")
	}
	evt, err := webhook.ConstructEventWithOptions(payload, signatureHeader, g.webhookSecret, webhook.ConstructEventOptions{
		Tolerance:                g.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return Event{}, fmt.Errorf("payments: verify event: %w", err)
	}

	out := Event{
		ID:      evt.ID,
		Type:    string(evt.Type),
		Created: time.Unix(evt.Created, 0).UTC(),
	}
	if strings.HasPrefix(out.Type, "payment_intent.") && evt.Data != nil {
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(evt.Data.Raw, &pi); err != nil {
			var ref struct {
				ID string `json:"id"`
			}
			_ = json.Unmarshal(evt.Data.Raw, &ref)
			out.PaymentIntentID = ref.ID
			return out, fmt.Errorf("%w: decode payment intent: %v", ErrMalformedEvent, err)
		}
		out.PaymentIntentID = pi.ID
		out.AmountCents = pi.Amount
		out.Currency = string(pi.Currency)
		out.Metadata = pi.Metadata
	}
	return out, nil
}

var _ Gateway = (*StripeGateway)(nil)
