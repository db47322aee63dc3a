package outbox

import (
	"encoding/json"
	"fmt"
)

// Event types. The Kafka topic name equals the event type.
const (
	TypeAppointmentBooked      = "booking.appointment.booked.v1"
	TypeAppointmentRescheduled = "booking.appointment.rescheduled.v1"
	TypeAppointmentCancelled   = "booking.appointment.cancelled.v1"
	TypeIntakeConflict         = "booking.intake.conflict.v1"
	TypeSalePaid               = "billing.sale.paid.v1"
)

// Event is the domain event envelope written to the outbox table.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// NewEvent marshals payload as JSON into an envelope.
func NewEvent(aggregateType, aggregateID, eventType string, payload any) (Event, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("outbox: marshal %s: %w", eventType, err)
	}
	return Event{
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       b,
	}, nil
}
