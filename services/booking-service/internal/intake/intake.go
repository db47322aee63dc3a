// Package intake turns verified payment confirmations into appointments.
package intake

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/vetbook/libs/apperr"
	"github.com/md-rashed-zaman/vetbook/services/booking-service/internal/conflict"
	"github.com/md-rashed-zaman/vetbook/services/booking-service/internal/metrics"
	"github.com/md-rashed-zaman/vetbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/vetbook/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/vetbook/services/booking-service/internal/payments"
	"github.com/md-rashed-zaman/vetbook/services/booking-service/internal/storage"
)

// Result statuses acknowledged to the payment processor.
const (
	StatusProcessed = "processed"
	StatusDuplicate = "duplicate"
	StatusIgnored   = "ignored"
	StatusError     = "error"
	StatusConflict  = "conflict"
)

type Result struct {
	Status        string `json:"status"`
	EventID       string `json:"event_id,omitempty"`
	AppointmentID string `json:"appointment_id,omitempty"`
	Reason        string `json:"reason,omitempty"`
}

type Handler struct {
	repo    storage.Repository
	gateway payments.Gateway
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewHandler(repo storage.Repository, gateway payments.Gateway, logger *slog.Logger, m *metrics.Metrics) *Handler {
	return &Handler{repo: repo, gateway: gateway, logger: logger, metrics: m}
}

// processingError is a confirmation that is acknowledged but cannot become an appointment.
type processingError struct {
	reason string
	detail string
}

func (e *processingError) Error() string { return e.reason + ": " + e.detail }

// Handle verifies and applies one processor notification. A returned error is
// either a signature failure (reject, never retry) or an infrastructure
// failure (nothing committed, processor should retry). Authenticated events
// that cannot be decoded are recorded and acknowledged.
func (h *Handler) Handle(ctx context.Context, payload []byte, signatureHeader string) (res Result, err error) {
	started := time.Now()
	defer func() {
		status := res.Status
		if err != nil {
			status = apperr.KindOf(err).String()
		}
		h.metrics.ObserveIntake(status, res.Reason, time.Since(started).Seconds())
	}()

	evt, err := h.gateway.VerifyEvent(payload, signatureHeader)
	var decodeErr error
	switch {
	case errors.Is(err, payments.ErrMalformedEvent):
		decodeErr = err
	case err != nil:
		h.logger.Warn("payment event rejected", "err", err)
		return Result{}, apperr.Signature(err)
	}
	log := h.logger.With("provider", payments.Provider, "provider_event_id", evt.ID, "event_type", evt.Type)

	err = h.repo.InTx(ctx, func(tx storage.Tx) error {
		if err := tx.RecordProviderEvent(ctx, payments.Provider, evt.ID, evt.Type); err != nil {
			if errors.Is(err, storage.ErrDuplicateEvent) {
				res = Result{Status: StatusDuplicate}
				return nil
			}
			return err
		}
		if evt.Type != payments.EventPaymentSucceeded {
			res = Result{Status: StatusIgnored}
			return nil
		}

		var perr error
		switch purpose := evt.Purpose(); {
		case decodeErr != nil:
			perr = &processingError{reason: storage.ReasonInvalidMetadata, detail: decodeErr.Error()}
		case purpose == payments.PurposeSale:
			res, perr = h.forwardSale(ctx, tx, evt)
		case purpose == payments.PurposeBooking:
			res, perr = h.book(ctx, tx, evt)
		default:
			perr = &processingError{reason: storage.ReasonInvalidMetadata, detail: fmt.Sprintf("unknown purpose %q", purpose)}
		}

		var pe *processingError
		if errors.As(perr, &pe) {
			res = Result{Status: StatusError, Reason: pe.reason}
			return h.recordFailure(ctx, tx, evt, pe)
		}
		return perr
	})
	if err != nil {
		log.Error("payment event processing failed", "err", err)
		return Result{}, apperr.Internal("process payment event", err)
	}

	res.EventID = evt.ID
	switch res.Status {
	case StatusError, StatusConflict:
		log.Warn("payment event needs operator follow-up", "status", res.Status, "reason", res.Reason, "payment_intent_id", evt.PaymentIntentID)
	default:
		log.Info("payment event handled", "status", res.Status, "appointment_id", res.AppointmentID)
	}
	return res, nil
}

func (h *Handler) recordFailure(ctx context.Context, tx storage.Tx, evt payments.Event, pe *processingError) error {
	return tx.RecordIntakeFailure(ctx, storage.IntakeFailure{
		Provider:        payments.Provider,
		EventID:         evt.ID,
		PaymentIntentID: evt.PaymentIntentID,
		Reason:          pe.reason,
		Detail:          pe.detail,
		Metadata:        evt.Metadata,
	})
}

func (h *Handler) forwardSale(ctx context.Context, tx storage.Tx, evt payments.Event) (Result, error) {
	saleID := evt.Metadata[payments.MetaSaleID]
	if saleID == "" {
		return Result{}, &processingError{reason: storage.ReasonMissingMetadata, detail: "missing " + payments.MetaSaleID}
	}
	out, err := outbox.NewEvent("sale", saleID, outbox.TypeSalePaid, map[string]any{
		"sale_id":           saleID,
		"payment_intent_id": evt.PaymentIntentID,
		"amount_cents":      evt.AmountCents,
		"currency":          evt.Currency,
		"metadata":          evt.Metadata,
	})
	if err != nil {
		return Result{}, err
	}
	if err := tx.EnqueueEvent(ctx, out); err != nil {
		return Result{}, err
	}
	return Result{Status: StatusProcessed}, nil
}

var requiredBookingKeys = []string{
	payments.MetaProfessionalID,
	payments.MetaPetID,
	payments.MetaServiceID,
	payments.MetaOwnerID,
	payments.MetaStartTime,
}

func (h *Handler) book(ctx context.Context, tx storage.Tx, evt payments.Event) (Result, error) {
	md := evt.Metadata
	for _, k := range requiredBookingKeys {
		if md[k] == "" {
			return Result{}, &processingError{reason: storage.ReasonMissingMetadata, detail: "missing " + k}
		}
	}
	for _, k := range requiredBookingKeys[:4] {
		if _, err := uuid.Parse(md[k]); err != nil {
			return Result{}, &processingError{reason: storage.ReasonInvalidMetadata, detail: k + " is not a uuid"}
		}
	}
	start, err := time.Parse(time.RFC3339, md[payments.MetaStartTime])
	if err != nil {
		return Result{}, &processingError{reason: storage.ReasonInvalidMetadata, detail: "start_time is not RFC3339"}
	}

	svc, err := tx.GetService(ctx, md[payments.MetaServiceID])
	if err != nil {
		return Result{}, refErr("service", err)
	}
	if _, err := tx.GetProfessional(ctx, md[payments.MetaProfessionalID]); err != nil {
		return Result{}, refErr("professional", err)
	}
	if _, err := tx.GetPet(ctx, md[payments.MetaPetID]); err != nil {
		return Result{}, refErr("pet", err)
	}

	appt := model.Appointment{
		ProfessionalID:  md[payments.MetaProfessionalID],
		PetID:           md[payments.MetaPetID],
		ServiceID:       svc.ID,
		OwnerID:         md[payments.MetaOwnerID],
		Start:           start.UTC(),
		End:             start.Add(svc.Duration()).UTC(),
		Status:          model.StatusPaid,
		TotalPriceCents: evt.AmountCents,
		Currency:        evt.Currency,
		PaymentIntentID: evt.PaymentIntentID,
	}
	if appt.TotalPriceCents <= 0 {
		appt.TotalPriceCents = svc.PriceCents
	}
	if appt.Currency == "" {
		appt.Currency = svc.Currency
	}

	if err := tx.LockProfessional(ctx, appt.ProfessionalID); err != nil {
		return Result{}, err
	}
	busy, err := conflict.Check(ctx, tx, appt.ProfessionalID, appt.Start, appt.End, "")
	if err != nil {
		return Result{}, err
	}
	if busy {
		return h.slotConflict(ctx, tx, evt, appt)
	}

	switch err := tx.CreateAppointment(ctx, &appt); {
	case errors.Is(err, storage.ErrOverlap):
		return h.slotConflict(ctx, tx, evt, appt)
	case errors.Is(err, storage.ErrDuplicateEvent):
		return Result{Status: StatusDuplicate}, nil
	case err != nil:
		return Result{}, err
	}

	out, err := outbox.NewEvent("appointment", appt.ID, outbox.TypeAppointmentBooked, map[string]any{
		"appointment_id":    appt.ID,
		"professional_id":   appt.ProfessionalID,
		"pet_id":            appt.PetID,
		"service_id":        appt.ServiceID,
		"owner_id":          appt.OwnerID,
		"start_time":        appt.Start.Format(time.RFC3339),
		"end_time":          appt.End.Format(time.RFC3339),
		"total_price_cents": appt.TotalPriceCents,
		"currency":          appt.Currency,
		"payment_intent_id": appt.PaymentIntentID,
	})
	if err != nil {
		return Result{}, err
	}
	if err := tx.EnqueueEvent(ctx, out); err != nil {
		return Result{}, err
	}
	return Result{Status: StatusProcessed, AppointmentID: appt.ID}, nil
}

func refErr(what string, err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return &processingError{reason: storage.ReasonUnknownRef, detail: what + " not found"}
	}
	return err
}

// slotConflict records a paid-but-unbookable confirmation so an operator can refund it.
func (h *Handler) slotConflict(ctx context.Context, tx storage.Tx, evt payments.Event, appt model.Appointment) (Result, error) {
	pe := &processingError{
		reason: storage.ReasonSlotConflict,
		detail: fmt.Sprintf("professional %s is booked at %s", appt.ProfessionalID, appt.Start.Format(time.RFC3339)),
	}
	if err := h.recordFailure(ctx, tx, evt, pe); err != nil {
		return Result{}, err
	}
	out, err := outbox.NewEvent("payment", evt.PaymentIntentID, outbox.TypeIntakeConflict, map[string]any{
		"provider":          payments.Provider,
		"provider_event_id": evt.ID,
		"payment_intent_id": evt.PaymentIntentID,
		"amount_cents":      evt.AmountCents,
		"currency":          evt.Currency,
		"professional_id":   appt.ProfessionalID,
		"start_time":        appt.Start.Format(time.RFC3339),
		"end_time":          appt.End.Format(time.RFC3339),
	})
	if err != nil {
		return Result{}, err
	}
	if err := tx.EnqueueEvent(ctx, out); err != nil {
		return Result{}, err
	}
	return Result{Status: StatusConflict, Reason: storage.ReasonSlotConflict}, nil
}
