package booking

import (
	"context"
	"time"

	"github.com/md-rashed-zaman/vetbook/libs/apperr"
	"github.com/md-rashed-zaman/vetbook/libs/auth"
	"github.com/md-rashed-zaman/vetbook/services/booking-service/internal/conflict"
	"github.com/md-rashed-zaman/vetbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/vetbook/services/booking-service/internal/payments"
	"github.com/md-rashed-zaman/vetbook/services/booking-service/internal/policy"
)

type IntentInput struct {
	PetID          string
	ServiceID      string
	ProfessionalID string
	StartTime      string
	IdempotencyKey string
}

// Draft is the appointment that will be created once payment is confirmed.
type Draft struct {
	ProfessionalID string    `json:"professional_id"`
	PetID          string    `json:"pet_id"`
	ServiceID      string    `json:"service_id"`
	OwnerID        string    `json:"owner_id"`
	Start          time.Time `json:"start_time"`
	End            time.Time `json:"end_time"`
	PriceCents     int64     `json:"price_cents"`
	Currency       string    `json:"currency"`
}

type IntentResult struct {
	ClientSecret    string `json:"client_secret"`
	PaymentIntentID string `json:"payment_intent_id"`
	Draft           Draft  `json:"draft"`
}

// CreateIntent validates a prospective booking and opens a payment intent for it.
// No appointment is written; the slot is not held while the client pays.
func (m *Manager) CreateIntent(ctx context.Context, in IntentInput, a auth.Actor) (res IntentResult, err error) {
	defer func() { m.observe("create_intent", err) }()

	if in.PetID == "" || in.ServiceID == "" || in.ProfessionalID == "" || in.StartTime == "" {
		return IntentResult{}, apperr.Validation("pet_id, service_id, professional_id and start_time are required")
	}
	petID, err := parseID("pet_id", in.PetID)
	if err != nil {
		return IntentResult{}, err
	}
	serviceID, err := parseID("service_id", in.ServiceID)
	if err != nil {
		return IntentResult{}, err
	}
	professionalID, err := parseID("professional_id", in.ProfessionalID)
	if err != nil {
		return IntentResult{}, err
	}
	start, err := parseStart(in.StartTime)
	if err != nil {
		return IntentResult{}, err
	}

	pet, err := m.repo.GetPet(ctx, petID)
	if err != nil {
		return IntentResult{}, lookupErr("pet", err)
	}
	svc, err := m.repo.GetService(ctx, serviceID)
	if err != nil {
		return IntentResult{}, lookupErr("service", err)
	}
	pro, err := m.repo.GetProfessional(ctx, professionalID)
	if err != nil {
		return IntentResult{}, lookupErr("professional", err)
	}

	if !policy.CanBookFor(a, pet) {
		return IntentResult{}, apperr.Forbidden("clients may only book for their own pets")
	}
	if required, ok := model.RequiredRole(svc.Category); !ok || required != pro.Role {
		return IntentResult{}, apperr.Validation("professional cannot perform %s services", svc.Category)
	}

	end := start.Add(svc.Duration())
	busy, err := conflict.Check(ctx, m.repo, pro.ID, start, end, "")
	if err != nil {
		return IntentResult{}, apperr.Internal("check availability", err)
	}
	if busy {
		return IntentResult{}, apperr.Conflict("time slot is not available")
	}

	draft := Draft{
		ProfessionalID: pro.ID,
		PetID:          pet.ID,
		ServiceID:      svc.ID,
		OwnerID:        pet.OwnerID,
		Start:          start.UTC(),
		End:            end.UTC(),
		PriceCents:     svc.PriceCents,
		Currency:       svc.Currency,
	}
	if draft.Currency == "" {
		draft.Currency = m.currency
	}

	intent, err := m.gateway.CreateIntent(ctx, payments.IntentRequest{
		AmountCents: draft.PriceCents,
		Currency:    draft.Currency,
		Description: svc.Name + " for " + pet.Name,
		Metadata: map[string]string{
			payments.MetaPurpose:        payments.PurposeBooking,
			payments.MetaProfessionalID: draft.ProfessionalID,
			payments.MetaPetID:          draft.PetID,
			payments.MetaServiceID:      draft.ServiceID,
			payments.MetaOwnerID:        draft.OwnerID,
			payments.MetaStartTime:      draft.Start.Format(time.RFC3339),
			payments.MetaActorID:        a.ID,
		},
		IdempotencyKey: in.IdempotencyKey,
	})
	if err != nil {
		return IntentResult{}, apperr.Internal("create payment intent", err)
	}

	m.logger.Info("payment intent created",
		"payment_intent_id", intent.ID,
		"professional_id", draft.ProfessionalID,
		"start_time", draft.Start.Format(time.RFC3339),
	)
	return IntentResult{ClientSecret: intent.ClientSecret, PaymentIntentID: intent.ID, Draft: draft}, nil
}
