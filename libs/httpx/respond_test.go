package httpx

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/md-rashed-zaman/vetbook/libs/apperr"
)

func TestWriteErrorMapsKinds(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	cases := []struct {
		err  error
		code int
		msg  string
	}{
		{apperr.Validation("start_time is required"), http.StatusBadRequest, "start_time is required"},
		{apperr.Forbidden("not your appointment"), http.StatusForbidden, "not your appointment"},
		{apperr.NotFound("appointment not found"), http.StatusNotFound, "appointment not found"},
		{apperr.Conflict("time slot already booked"), http.StatusConflict, "time slot already booked"},
		{errors.New("boom"), http.StatusInternalServerError, "internal error"},
	}
	for _, tc := range cases {
		rw := httptest.NewRecorder()
		WriteError(rw, httptest.NewRequest(http.MethodGet, "/", nil), logger, tc.err)
		if rw.Code != tc.code {
			t.Errorf("%v: expected %d, got %d", tc.err, tc.code, rw.Code)
		}
		var body ErrorBody
		if err := json.Unmarshal(rw.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body.Error != tc.msg {
			t.Errorf("expected message %q, got %q", tc.msg, body.Error)
		}
	}
}

func TestDecodeJSONRejectsUnknownFields(t *testing.T) {
	var dst struct {
		StartTime string `json:"start_time"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"start_time":"x","extra":1}`))
	if err := DecodeJSON(req, &dst); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"start_time":"x"}`))
	if err := DecodeJSON(req, &dst); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
