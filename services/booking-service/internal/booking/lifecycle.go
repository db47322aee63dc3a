package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/md-rashed-zaman/vetbook/libs/apperr"
	"github.com/md-rashed-zaman/vetbook/libs/auth"
	"github.com/md-rashed-zaman/vetbook/services/booking-service/internal/conflict"
	"github.com/md-rashed-zaman/vetbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/vetbook/services/booking-service/internal/notify"
	"github.com/md-rashed-zaman/vetbook/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/vetbook/services/booking-service/internal/policy"
	"github.com/md-rashed-zaman/vetbook/services/booking-service/internal/storage"
)

const aggregateAppointment = "appointment"

// Reschedule moves a paid appointment to newStart. Only start and end change.
func (m *Manager) Reschedule(ctx context.Context, appointmentID, newStart string, a auth.Actor) (appt model.Appointment, err error) {
	defer func() { m.observe("reschedule", err) }()

	id, err := parseID("appointment id", appointmentID)
	if err != nil {
		return model.Appointment{}, err
	}
	start, err := parseStart(newStart)
	if err != nil {
		return model.Appointment{}, err
	}

	err = m.repo.InTx(ctx, func(tx storage.Tx) error {
		cur, err := tx.GetAppointmentForUpdate(ctx, id)
		if err != nil {
			return lookupErr("appointment", err)
		}
		if !policy.CanReschedule(a, cur) {
			return apperr.Forbidden("not allowed to reschedule this appointment")
		}
		if cur.Status != model.StatusPaid {
			return apperr.Validation("only paid appointments can be rescheduled")
		}
		if policy.IsOwningClient(a, cur) && m.rules.InsideLeadTime(m.now(), cur.Start) {
			return apperr.Forbidden("appointments starting within %s cannot be rescheduled by the client", leadTimeText(m.rules))
		}

		length := cur.End.Sub(cur.Start)
		if svc, err := tx.GetService(ctx, cur.ServiceID); err == nil {
			length = svc.Duration()
		} else if !errors.Is(err, storage.ErrNotFound) {
			return apperr.Internal("load service", err)
		}
		end := start.Add(length)

		if err := tx.LockProfessional(ctx, cur.ProfessionalID); err != nil {
			return apperr.Internal("lock professional", err)
		}
		busy, err := conflict.Check(ctx, tx, cur.ProfessionalID, start, end, cur.ID)
		if err != nil {
			return apperr.Internal("check availability", err)
		}
		if busy {
			return apperr.Conflict("time slot is not available")
		}

		updated, err := tx.UpdateSchedule(ctx, cur.ID, start, end)
		if err != nil {
			if errors.Is(err, storage.ErrOverlap) {
				return apperr.Conflict("time slot is not available")
			}
			return apperr.Internal("update schedule", err)
		}

		evt, err := outbox.NewEvent(aggregateAppointment, cur.ID, outbox.TypeAppointmentRescheduled, map[string]any{
			"appointment_id":      cur.ID,
			"professional_id":     cur.ProfessionalID,
			"pet_id":              cur.PetID,
			"previous_start_time": cur.Start.UTC().Format(time.RFC3339),
			"start_time":          updated.Start.UTC().Format(time.RFC3339),
			"end_time":            updated.End.UTC().Format(time.RFC3339),
			"actor_id":            a.ID,
		})
		if err != nil {
			return apperr.Internal("build event", err)
		}
		if err := tx.EnqueueEvent(ctx, evt); err != nil {
			return apperr.Internal("enqueue event", err)
		}
		appt = updated
		return nil
	})
	if err != nil {
		return model.Appointment{}, err
	}
	m.logger.Info("appointment rescheduled", "appointment_id", appt.ID, "start_time", appt.Start.UTC().Format(time.RFC3339), "actor_id", a.ID)
	return appt, nil
}

// CancelResult is a successful cancel call. Refused is set when policy kept
// the appointment in place; Message then explains why.
type CancelResult struct {
	Appointment model.Appointment
	Refused     bool
	Message     string
}

func leadTimeText(r policy.Rules) string {
	return fmt.Sprintf("%d hours", int(r.LeadTime.Hours()))
}

// Cancel cancels an appointment on behalf of a. Late cancellations by anyone
// other than the owning client are refused without error.
func (m *Manager) Cancel(ctx context.Context, appointmentID string, a auth.Actor) (res CancelResult, err error) {
	defer func() {
		if err == nil && res.Refused {
			m.metrics.ObserveLifecycle("cancel", "refused")
			return
		}
		m.observe("cancel", err)
	}()

	id, err := parseID("appointment id", appointmentID)
	if err != nil {
		return CancelResult{}, err
	}

	cancelled := false
	err = m.repo.InTx(ctx, func(tx storage.Tx) error {
		cur, err := tx.GetAppointmentForUpdate(ctx, id)
		if err != nil {
			return lookupErr("appointment", err)
		}
		if !policy.CanCancel(a, cur) {
			return apperr.Forbidden("not allowed to cancel this appointment")
		}
		switch cur.Status {
		case model.StatusCancelled:
			res = CancelResult{Appointment: cur}
			return nil
		case model.StatusCompleted:
			return apperr.Validation("completed appointments cannot be cancelled")
		}

		now := m.now()
		if m.rules.InsideLeadTime(now, cur.Start) && !policy.IsOwningClient(a, cur) {
			res = CancelResult{
				Appointment: cur,
				Refused:     true,
				Message:     fmt.Sprintf("appointments starting within %s can only be cancelled by the pet's owner", leadTimeText(m.rules)),
			}
			return nil
		}

		updated, err := tx.UpdateStatus(ctx, cur.ID, model.StatusCancelled, now.UTC())
		if err != nil {
			return apperr.Internal("cancel appointment", err)
		}
		evt, err := outbox.NewEvent(aggregateAppointment, cur.ID, outbox.TypeAppointmentCancelled, map[string]any{
			"appointment_id":  cur.ID,
			"professional_id": cur.ProfessionalID,
			"pet_id":          cur.PetID,
			"owner_id":        cur.OwnerID,
			"start_time":      cur.Start.UTC().Format(time.RFC3339),
			"end_time":        cur.End.UTC().Format(time.RFC3339),
			"cancelled_at":    now.UTC().Format(time.RFC3339),
			"actor_id":        a.ID,
		})
		if err != nil {
			return apperr.Internal("build event", err)
		}
		if err := tx.EnqueueEvent(ctx, evt); err != nil {
			return apperr.Internal("enqueue event", err)
		}
		res = CancelResult{Appointment: updated}
		cancelled = true
		return nil
	})
	if err != nil {
		return CancelResult{}, err
	}
	if cancelled {
		m.logger.Info("appointment cancelled", "appointment_id", res.Appointment.ID, "actor_id", a.ID)
		m.notifyCancellation(ctx, res.Appointment)
	}
	return res, nil
}

func (m *Manager) notifyCancellation(ctx context.Context, appt model.Appointment) {
	if m.notifier == nil {
		return
	}
	c := notify.Cancellation{Appointment: appt}
	var err error
	if c.Pet, err = m.repo.GetPet(ctx, appt.PetID); err != nil {
		m.logger.Error("cancellation notice lookup failed", "appointment_id", appt.ID, "what", "pet", "err", err)
		return
	}
	if c.Service, err = m.repo.GetService(ctx, appt.ServiceID); err != nil {
		m.logger.Error("cancellation notice lookup failed", "appointment_id", appt.ID, "what", "service", "err", err)
		return
	}
	if c.Professional, err = m.repo.GetProfessional(ctx, appt.ProfessionalID); err != nil {
		m.logger.Error("cancellation notice lookup failed", "appointment_id", appt.ID, "what", "professional", "err", err)
		return
	}
	m.notifier.NotifyCancellation(ctx, c)
}

// Complete marks a paid appointment completed. It reports false when the
// appointment is unknown or not in the paid state.
func (m *Manager) Complete(ctx context.Context, appointmentID string) (applied bool, err error) {
	defer func() {
		if err == nil && !applied {
			m.metrics.ObserveLifecycle("complete", "ignored")
			return
		}
		m.observe("complete", err)
	}()

	err = m.repo.InTx(ctx, func(tx storage.Tx) error {
		cur, err := tx.GetAppointmentForUpdate(ctx, appointmentID)
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		if err != nil {
			return apperr.Internal("load appointment", err)
		}
		if cur.Status != model.StatusPaid {
			return nil
		}
		if _, err := tx.UpdateStatus(ctx, cur.ID, model.StatusCompleted, m.now().UTC()); err != nil {
			return apperr.Internal("complete appointment", err)
		}
		applied = true
		return nil
	})
	return applied, err
}
