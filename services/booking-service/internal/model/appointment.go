package model

import "time"

type Status string

const (
	StatusPaid      Status = "paid"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

type Appointment struct {
	ID              string
	ProfessionalID  string
	PetID           string
	ServiceID       string
	OwnerID         string
	Start           time.Time
	End             time.Time
	Status          Status
	TotalPriceCents int64
	Currency        string
	ReminderSent    bool
	PaymentIntentID string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	CancelledAt     *time.Time
}

// Booked is the projection the conflict and availability checks read.
type Booked struct {
	AppointmentID   string
	Start           time.Time
	End             time.Time
	Status          Status
	ServiceDuration time.Duration
}
