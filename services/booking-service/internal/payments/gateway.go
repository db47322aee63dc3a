// Package payments adapts the card processor used for booking and sale payments.
package payments

import (
	"context"
	"time"
)

// Metadata keys written on payment intents and read back at confirmation.
const (
	MetaPurpose        = "purpose"
	MetaProfessionalID = "professional_id"
	MetaPetID          = "pet_id"
	MetaServiceID      = "service_id"
	MetaOwnerID        = "owner_id"
	MetaStartTime      = "start_time"
	MetaActorID        = "actor_id"
	MetaSaleID         = "sale_id"
)

const (
	PurposeBooking = "booking"
	PurposeSale    = "sale"
)

const EventPaymentSucceeded = "payment_intent.succeeded"

type IntentRequest struct {
	AmountCents    int64
	Currency       string
	Description    string
	Metadata       map[string]string
	IdempotencyKey string
}

type Intent struct {
	ID           string
	ClientSecret string
	Status       string
}

// Event is a verified processor notification.
type Event struct {
	ID              string
	Type            string
	Created         time.Time
	PaymentIntentID string
	AmountCents     int64
	Currency        string
	Metadata        map[string]string
}

// Purpose resolves the payment purpose, inferring "sale" from a sale_id when unset.
func (e Event) Purpose() string {
	if p := e.Metadata[MetaPurpose]; p != "" {
		return p
	}
	if e.Metadata[MetaSaleID] != "" {
		return PurposeSale
	}
	return PurposeBooking
}

type Gateway interface {
	CreateIntent(ctx context.Context, req IntentRequest) (Intent, error)
	// VerifyEvent authenticates payload against the signature header. An error
	// wrapping ErrMalformedEvent comes with a trusted envelope (ID, Type,
	// PaymentIntentID when readable); any other error means the payload must
	// not be trusted.
	VerifyEvent(payload []byte, signatureHeader string) (Event, error)
}
