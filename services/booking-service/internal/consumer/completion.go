package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// TopicAppointmentCompleted is published by the medical-records service once a visit is closed.
const TopicAppointmentCompleted = "records.appointment.completed.v1"

type Completer interface {
	Complete(ctx context.Context, appointmentID string) (bool, error)
}

type completedPayload struct {
	AppointmentID string `json:"appointment_id"`
}

// CompletionHandler marks paid appointments completed. Malformed payloads are
// dropped; only storage failures are returned.
func CompletionHandler(c Completer, logger *slog.Logger) Handler {
	return func(ctx context.Context, msg kafka.Message) error {
		var p completedPayload
		if err := json.Unmarshal(msg.Value, &p); err != nil {
			logger.Warn("completion payload dropped", "err", err, "offset", msg.Offset)
			return nil
		}
		if _, err := uuid.Parse(p.AppointmentID); err != nil {
			logger.Warn("completion payload dropped", "appointment_id", p.AppointmentID)
			return nil
		}
		applied, err := c.Complete(ctx, p.AppointmentID)
		if err != nil {
			return fmt.Errorf("complete %s: %w", p.AppointmentID, err)
		}
		logger.Info("appointment completion handled", "appointment_id", p.AppointmentID, "applied", applied)
		return nil
	}
}
