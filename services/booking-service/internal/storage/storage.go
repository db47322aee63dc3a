// Package storage persists appointments and the catalog lookups booking needs.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/md-rashed-zaman/vetbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/vetbook/services/booking-service/internal/outbox"
)

var (
	ErrNotFound       = errors.New("storage: not found")
	ErrOverlap        = errors.New("storage: overlapping appointment")
	ErrDuplicateEvent = errors.New("storage: duplicate event")
)

// Reader holds the lookups usable both inside and outside a transaction.
type Reader interface {
	GetService(ctx context.Context, id string) (model.Service, error)
	GetProfessional(ctx context.Context, id string) (model.Professional, error)
	GetPet(ctx context.Context, id string) (model.Pet, error)
	GetAppointment(ctx context.Context, id string) (model.Appointment, error)
	// ListActiveIntervals returns non-cancelled appointments with start < to and end > from.
	ListActiveIntervals(ctx context.Context, professionalID string, from, to time.Time) ([]model.Booked, error)
}

type Tx interface {
	Reader
	// LockProfessional serializes writers for one professional until the transaction ends.
	LockProfessional(ctx context.Context, professionalID string) error
	GetAppointmentForUpdate(ctx context.Context, id string) (model.Appointment, error)
	// CreateAppointment fills in ID and timestamps. ErrOverlap if the schedule constraint fires,
	// ErrDuplicateEvent if the payment intent already produced an appointment.
	CreateAppointment(ctx context.Context, appt *model.Appointment) error
	UpdateSchedule(ctx context.Context, id string, start, end time.Time) (model.Appointment, error)
	UpdateStatus(ctx context.Context, id string, status model.Status, at time.Time) (model.Appointment, error)
	// RecordProviderEvent returns ErrDuplicateEvent when the event was seen before.
	RecordProviderEvent(ctx context.Context, provider, eventID, eventType string) error
	RecordIntakeFailure(ctx context.Context, f IntakeFailure) error
	EnqueueEvent(ctx context.Context, evt outbox.Event) error
}

type Repository interface {
	Reader
	// InTx commits when fn returns nil and rolls back otherwise.
	InTx(ctx context.Context, fn func(Tx) error) error
}

// Intake failure reasons.
const (
	ReasonMissingMetadata = "missing_metadata"
	ReasonInvalidMetadata = "invalid_metadata"
	ReasonUnknownRef      = "unknown_reference"
	ReasonSlotConflict    = "slot_conflict"
)

// IntakeFailure is a confirmed payment that could not become an appointment.
type IntakeFailure struct {
	Provider        string
	EventID         string
	PaymentIntentID string
	Reason          string
	Detail          string
	Metadata        map[string]string
}
