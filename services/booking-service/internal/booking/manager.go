// Package booking implements the appointment lifecycle: payment intents ahead
// of a booking, reschedule, cancel and completion.
package booking

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/vetbook/libs/apperr"
	"github.com/md-rashed-zaman/vetbook/libs/auth"
	"github.com/md-rashed-zaman/vetbook/services/booking-service/internal/metrics"
	"github.com/md-rashed-zaman/vetbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/vetbook/services/booking-service/internal/notify"
	"github.com/md-rashed-zaman/vetbook/services/booking-service/internal/payments"
	"github.com/md-rashed-zaman/vetbook/services/booking-service/internal/policy"
	"github.com/md-rashed-zaman/vetbook/services/booking-service/internal/storage"
)

type CancellationNotifier interface {
	NotifyCancellation(ctx context.Context, c notify.Cancellation)
}

type Config struct {
	Rules policy.Rules
	// DefaultCurrency applies to services stored without one.
	DefaultCurrency string
	Now             func() time.Time
}

type Manager struct {
	repo     storage.Repository
	gateway  payments.Gateway
	notifier CancellationNotifier
	logger   *slog.Logger
	metrics  *metrics.Metrics
	rules    policy.Rules
	currency string
	now      func() time.Time
}

func NewManager(repo storage.Repository, gateway payments.Gateway, notifier CancellationNotifier, logger *slog.Logger, m *metrics.Metrics, cfg Config) *Manager {
	if cfg.Rules.LeadTime <= 0 {
		cfg.Rules = policy.DefaultRules()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.DefaultCurrency == "" {
		cfg.DefaultCurrency = "eur"
	}
	return &Manager{
		repo:     repo,
		gateway:  gateway,
		notifier: notifier,
		logger:   logger,
		metrics:  m,
		rules:    cfg.Rules,
		currency: cfg.DefaultCurrency,
		now:      cfg.Now,
	}
}

func parseID(field, v string) (string, error) {
	v = strings.TrimSpace(v)
	if _, err := uuid.Parse(v); err != nil {
		return "", apperr.Validation("%s must be a uuid", field)
	}
	return v, nil
}

func parseStart(v string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(v))
	if err != nil {
		return time.Time{}, apperr.Validation("start_time must be RFC3339")
	}
	return t, nil
}

// lookupErr maps a storage lookup failure onto the caller-facing taxonomy.
func lookupErr(what string, err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return apperr.NotFound("%s not found", what)
	}
	return apperr.Internal("load "+what, err)
}

// Get returns the appointment if a may view it.
func (m *Manager) Get(ctx context.Context, appointmentID string, a auth.Actor) (model.Appointment, error) {
	id, err := parseID("appointment id", appointmentID)
	if err != nil {
		return model.Appointment{}, err
	}
	appt, err := m.repo.GetAppointment(ctx, id)
	if err != nil {
		return model.Appointment{}, lookupErr("appointment", err)
	}
	if !policy.CanView(a, appt) {
		return model.Appointment{}, apperr.Forbidden("not allowed to view this appointment")
	}
	return appt, nil
}

func (m *Manager) observe(op string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = apperr.KindOf(err).String()
	}
	m.metrics.ObserveLifecycle(op, outcome)
}
