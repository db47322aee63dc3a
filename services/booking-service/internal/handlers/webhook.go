package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/md-rashed-zaman/vetbook/libs/apperr"
	"github.com/md-rashed-zaman/vetbook/libs/httpx"
)

const maxWebhookBody = 1 << 20

// StripeWebhook acknowledges every verified event with 200. Only signature
// failures (400) and infrastructure failures (500) ask the processor to stop or retry.
func (h *BookingHandler) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			httpx.WriteError(w, r, h.logger, apperr.Validation("payload too large"))
			return
		}
		httpx.WriteError(w, r, h.logger, apperr.Validation("unreadable body"))
		return
	}

	res, err := h.intake.Handle(r.Context(), payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, res)
}
