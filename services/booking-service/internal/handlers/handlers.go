// Package handlers exposes the booking operations over HTTP.
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/md-rashed-zaman/vetbook/libs/auth"
	"github.com/md-rashed-zaman/vetbook/libs/httpx"
	"github.com/md-rashed-zaman/vetbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/vetbook/services/booking-service/internal/intake"
	"github.com/md-rashed-zaman/vetbook/services/booking-service/internal/model"
)

type SlotFinder interface {
	Slots(ctx context.Context, professionalID, serviceID, date string) ([]string, error)
}

type Bookings interface {
	CreateIntent(ctx context.Context, in booking.IntentInput, a auth.Actor) (booking.IntentResult, error)
	Reschedule(ctx context.Context, appointmentID, newStart string, a auth.Actor) (model.Appointment, error)
	Cancel(ctx context.Context, appointmentID string, a auth.Actor) (booking.CancelResult, error)
	Get(ctx context.Context, appointmentID string, a auth.Actor) (model.Appointment, error)
}

type PaymentIntake interface {
	Handle(ctx context.Context, payload []byte, signatureHeader string) (intake.Result, error)
}

type BookingHandler struct {
	slots    SlotFinder
	bookings Bookings
	intake   PaymentIntake
	logger   *slog.Logger
}

// StripeWebhookPath receives processor notifications; it is unauthenticated and signature-checked.
const StripeWebhookPath = "/api/v1/webhooks/stripe"

func NewBookingHandler(slots SlotFinder, bookings Bookings, in PaymentIntake, logger *slog.Logger) *BookingHandler {
	return &BookingHandler{slots: slots, bookings: bookings, intake: in, logger: logger}
}

// Register mounts the routes on mux. requireActor guards every route that acts
// on behalf of a signed-in user; slots and the processor webhook are public.
func (h *BookingHandler) Register(mux *http.ServeMux, requireActor func(http.Handler) http.Handler) {
	mux.HandleFunc("GET /api/v1/slots", h.Slots)
	mux.HandleFunc("POST "+StripeWebhookPath, h.StripeWebhook)
	mux.Handle("POST /api/v1/booking-intents", requireActor(http.HandlerFunc(h.CreateIntent)))
	mux.Handle("POST /api/v1/appointments/{id}/reschedule", requireActor(http.HandlerFunc(h.Reschedule)))
	mux.Handle("POST /api/v1/appointments/{id}/cancel", requireActor(http.HandlerFunc(h.Cancel)))
	mux.Handle("GET /api/v1/appointments/{id}", requireActor(http.HandlerFunc(h.Get)))
}

type appointmentResponse struct {
	AppointmentID   string `json:"appointment_id"`
	ProfessionalID  string `json:"professional_id"`
	PetID           string `json:"pet_id"`
	ServiceID       string `json:"service_id"`
	OwnerID         string `json:"owner_id"`
	StartTime       string `json:"start_time"`
	EndTime         string `json:"end_time"`
	Status          string `json:"status"`
	TotalPriceCents int64  `json:"total_price_cents"`
	Currency        string `json:"currency"`
	PaymentIntentID string `json:"payment_intent_id,omitempty"`
	CancelledAt     string `json:"cancelled_at,omitempty"`
	CreatedAt       string `json:"created_at"`
}

func toResponse(a model.Appointment) appointmentResponse {
	resp := appointmentResponse{
		AppointmentID:   a.ID,
		ProfessionalID:  a.ProfessionalID,
		PetID:           a.PetID,
		ServiceID:       a.ServiceID,
		OwnerID:         a.OwnerID,
		StartTime:       a.Start.UTC().Format(time.RFC3339),
		EndTime:         a.End.UTC().Format(time.RFC3339),
		Status:          string(a.Status),
		TotalPriceCents: a.TotalPriceCents,
		Currency:        a.Currency,
		PaymentIntentID: a.PaymentIntentID,
		CreatedAt:       a.CreatedAt.UTC().Format(time.RFC3339),
	}
	if a.CancelledAt != nil {
		resp.CancelledAt = a.CancelledAt.UTC().Format(time.RFC3339)
	}
	return resp
}

func (h *BookingHandler) actor(w http.ResponseWriter, r *http.Request) (auth.Actor, bool) {
	a, ok := auth.ActorFromContext(r.Context())
	if !ok {
		httpx.WriteJSON(w, http.StatusUnauthorized, httpx.ErrorBody{Error: "authentication required"})
	}
	return a, ok
}

func (h *BookingHandler) Slots(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	slots, err := h.slots.Slots(r.Context(), q.Get("professional_id"), q.Get("service_id"), q.Get("date"))
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, slots)
}

type createIntentRequest struct {
	PetID          string `json:"pet_id"`
	ServiceID      string `json:"service_id"`
	ProfessionalID string `json:"professional_id"`
	StartTime      string `json:"start_time"`
}

func (h *BookingHandler) CreateIntent(w http.ResponseWriter, r *http.Request) {
	a, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req createIntentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	res, err := h.bookings.CreateIntent(r.Context(), booking.IntentInput{
		PetID:          req.PetID,
		ServiceID:      req.ServiceID,
		ProfessionalID: req.ProfessionalID,
		StartTime:      req.StartTime,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	}, a)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, res)
}

type rescheduleRequest struct {
	StartTime string `json:"start_time"`
}

func (h *BookingHandler) Reschedule(w http.ResponseWriter, r *http.Request) {
	a, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req rescheduleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	appt, err := h.bookings.Reschedule(r.Context(), r.PathValue("id"), req.StartTime, a)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toResponse(appt))
}

type cancelResponse struct {
	AppointmentID string `json:"appointment_id"`
	Status        string `json:"status"`
	CancelledAt   string `json:"cancelled_at,omitempty"`
}

type refusalResponse struct {
	Refused bool   `json:"refused"`
	Message string `json:"message"`
}

// Cancel answers 200 both when the appointment was cancelled and when policy
// refused it; the body tells them apart.
func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	a, ok := h.actor(w, r)
	if !ok {
		return
	}
	res, err := h.bookings.Cancel(r.Context(), r.PathValue("id"), a)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	if res.Refused {
		httpx.WriteJSON(w, http.StatusOK, refusalResponse{Refused: true, Message: res.Message})
		return
	}
	resp := cancelResponse{AppointmentID: res.Appointment.ID, Status: string(res.Appointment.Status)}
	if res.Appointment.CancelledAt != nil {
		resp.CancelledAt = res.Appointment.CancelledAt.UTC().Format(time.RFC3339)
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

func (h *BookingHandler) Get(w http.ResponseWriter, r *http.Request) {
	a, ok := h.actor(w, r)
	if !ok {
		return
	}
	appt, err := h.bookings.Get(r.Context(), r.PathValue("id"), a)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toResponse(appt))
}
