package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/md-rashed-zaman/vetbook/libs/db"
	"github.com/md-rashed-zaman/vetbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/vetbook/services/booking-service/internal/outbox"
)

// Pool is satisfied by *db.Pool and pgxmock pools.
type Pool interface {
	querier
	Begin(ctx context.Context) (pgx.Tx, error)
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Postgres struct {
	reader
	pool Pool
}

func NewPostgres(pool Pool) *Postgres {
	return &Postgres{reader: reader{q: pool}, pool: pool}
}

func (p *Postgres) InTx(ctx context.Context, fn func(Tx) error) error {
	return db.InTx(ctx, p.pool, func(tx pgx.Tx) error {
		return fn(&pgTx{reader: reader{q: tx}, tx: tx})
	})
}

type reader struct {
	q querier
}

const appointmentColumns = `id::text, professional_id::text, pet_id::text, service_id::text, owner_id::text,
	start_time, end_time, status, total_price_cents, currency, reminder_sent,
	COALESCE(payment_intent_id, ''), created_at, updated_at, cancelled_at`

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var a model.Appointment
	var status string
	err := row.Scan(
		&a.ID,
		&a.ProfessionalID,
		&a.PetID,
		&a.ServiceID,
		&a.OwnerID,
		&a.Start,
		&a.End,
		&status,
		&a.TotalPriceCents,
		&a.Currency,
		&a.ReminderSent,
		&a.PaymentIntentID,
		&a.CreatedAt,
		&a.UpdatedAt,
		&a.CancelledAt,
	)
	if err != nil {
		return model.Appointment{}, notFound(err)
	}
	a.Status = model.Status(status)
	return a, nil
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (r reader) GetService(ctx context.Context, id string) (model.Service, error) {
	var s model.Service
	var category string
	err := r.q.QueryRow(ctx, `
		SELECT id::text, name, duration_minutes, price_cents, currency, category
		FROM services
		WHERE id = $1
	`, id).Scan(&s.ID, &s.Name, &s.DurationMinutes, &s.PriceCents, &s.Currency, &category)
	if err != nil {
		return model.Service{}, fmt.Errorf("storage: get service: %w", notFound(err))
	}
	s.Category = model.Category(category)
	return s, nil
}

func (r reader) GetProfessional(ctx context.Context, id string) (model.Professional, error) {
	var p model.Professional
	var role string
	err := r.q.QueryRow(ctx, `
		SELECT id::text, name, email, role
		FROM professionals
		WHERE id = $1
	`, id).Scan(&p.ID, &p.Name, &p.Email, &role)
	if err != nil {
		return model.Professional{}, fmt.Errorf("storage: get professional: %w", notFound(err))
	}
	p.Role = model.Role(role)
	return p, nil
}

func (r reader) GetPet(ctx context.Context, id string) (model.Pet, error) {
	var p model.Pet
	err := r.q.QueryRow(ctx, `
		SELECT id::text, name, owner_id::text, owner_name, owner_email
		FROM pets
		WHERE id = $1
	`, id).Scan(&p.ID, &p.Name, &p.OwnerID, &p.OwnerName, &p.OwnerEmail)
	if err != nil {
		return model.Pet{}, fmt.Errorf("storage: get pet: %w", notFound(err))
	}
	return p, nil
}

func (r reader) GetAppointment(ctx context.Context, id string) (model.Appointment, error) {
	a, err := scanAppointment(r.q.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id))
	if err != nil {
		return model.Appointment{}, fmt.Errorf("storage: get appointment: %w", err)
	}
	return a, nil
}

func (r reader) ListActiveIntervals(ctx context.Context, professionalID string, from, to time.Time) ([]model.Booked, error) {
	rows, err := r.q.Query(ctx, `
		SELECT a.id::text, a.start_time, a.end_time, a.status, COALESCE(s.duration_minutes, 0)
		FROM appointments a
		LEFT JOIN services s ON s.id = a.service_id
		WHERE a.professional_id = $1
			AND a.status <> 'cancelled'
			AND a.start_time < $3
			AND a.end_time > $2
		ORDER BY a.start_time ASC
	`, professionalID, from, to)
	if err != nil {
		return nil, fmt.Errorf("storage: list intervals: %w", err)
	}
	defer rows.Close()

	var out []model.Booked
	for rows.Next() {
		var b model.Booked
		var status string
		var minutes int
		if err := rows.Scan(&b.AppointmentID, &b.Start, &b.End, &status, &minutes); err != nil {
			return nil, fmt.Errorf("storage: scan interval: %w", err)
		}
		b.Status = model.Status(status)
		b.ServiceDuration = time.Duration(minutes) * time.Minute
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: list intervals: %w", err)
	}
	return out, nil
}

type pgTx struct {
	reader
	tx pgx.Tx
}

// lockKey folds a professional id into the bigint keyspace of pg_advisory_xact_lock.
func lockKey(professionalID string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte("professional:" + professionalID))
	return int64(h.Sum64())
}

func (t *pgTx) LockProfessional(ctx context.Context, professionalID string) error {
	if _, err := t.tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, lockKey(professionalID)); err != nil {
		return fmt.Errorf("storage: lock professional: %w", err)
	}
	return nil
}

func (t *pgTx) GetAppointmentForUpdate(ctx context.Context, id string) (model.Appointment, error) {
	a, err := scanAppointment(t.tx.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return model.Appointment{}, fmt.Errorf("storage: get appointment for update: %w", err)
	}
	return a, nil
}

// CreateAppointment runs the insert under a savepoint so a rejected row leaves
// the surrounding transaction usable for recording the failure.
func (t *pgTx) CreateAppointment(ctx context.Context, appt *model.Appointment) error {
	var paymentIntent *string
	if appt.PaymentIntentID != "" {
		paymentIntent = &appt.PaymentIntentID
	}
	sp, err := t.tx.Begin(ctx)
	if err != nil {
		return fmt.Errorf("storage: savepoint: %w", err)
	}
	err = sp.QueryRow(ctx, `
		INSERT INTO appointments
			(professional_id, pet_id, service_id, owner_id, start_time, end_time, status, total_price_cents, currency, payment_intent_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id::text, created_at, updated_at
	`, appt.ProfessionalID, appt.PetID, appt.ServiceID, appt.OwnerID, appt.Start, appt.End,
		string(appt.Status), appt.TotalPriceCents, appt.Currency, paymentIntent).Scan(&appt.ID, &appt.CreatedAt, &appt.UpdatedAt)
	if err != nil {
		_ = sp.Rollback(ctx)
	}
	switch {
	case err == nil:
		if err := sp.Commit(ctx); err != nil {
			return fmt.Errorf("storage: release savepoint: %w", err)
		}
		return nil
	case db.HasCode(err, db.CodeExclusionViolation):
		return ErrOverlap
	case db.HasCode(err, db.CodeUniqueViolation):
		return ErrDuplicateEvent
	default:
		return fmt.Errorf("storage: create appointment: %w", err)
	}
}

func (t *pgTx) UpdateSchedule(ctx context.Context, id string, start, end time.Time) (model.Appointment, error) {
	a, err := scanAppointment(t.tx.QueryRow(ctx, `
		UPDATE appointments
		SET start_time = $2, end_time = $3, updated_at = now()
		WHERE id = $1
		RETURNING `+appointmentColumns, id, start, end))
	if err != nil {
		if db.HasCode(err, db.CodeExclusionViolation) {
			return model.Appointment{}, ErrOverlap
		}
		return model.Appointment{}, fmt.Errorf("storage: update schedule: %w", err)
	}
	return a, nil
}

func (t *pgTx) UpdateStatus(ctx context.Context, id string, status model.Status, at time.Time) (model.Appointment, error) {
	var cancelledAt *time.Time
	if status == model.StatusCancelled {
		cancelledAt = &at
	}
	a, err := scanAppointment(t.tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2, cancelled_at = COALESCE($3, cancelled_at), updated_at = now()
		WHERE id = $1
		RETURNING `+appointmentColumns, id, string(status), cancelledAt))
	if err != nil {
		return model.Appointment{}, fmt.Errorf("storage: update status: %w", err)
	}
	return a, nil
}

func (t *pgTx) RecordProviderEvent(ctx context.Context, provider, eventID, eventType string) error {
	tag, err := t.tx.Exec(ctx, `
		INSERT INTO provider_events (provider, event_id, event_type)
		VALUES ($1, $2, $3)
		ON CONFLICT (provider, event_id) DO NOTHING
	`, provider, eventID, eventType)
	if err != nil {
		return fmt.Errorf("storage: record provider event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDuplicateEvent
	}
	return nil
}

func (t *pgTx) RecordIntakeFailure(ctx context.Context, f IntakeFailure) error {
	md := f.Metadata
	if md == nil {
		md = map[string]string{}
	}
	meta, err := json.Marshal(md)
	if err != nil {
		return fmt.Errorf("storage: marshal intake metadata: %w", err)
	}
	_, err = t.tx.Exec(ctx, `
		INSERT INTO intake_failures (provider, event_id, payment_intent_id, reason, detail, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, f.Provider, f.EventID, f.PaymentIntentID, f.Reason, f.Detail, meta)
	if err != nil {
		return fmt.Errorf("storage: record intake failure: %w", err)
	}
	return nil
}

func (t *pgTx) EnqueueEvent(ctx context.Context, evt outbox.Event) error {
	if err := outbox.Insert(ctx, t.tx, evt); err != nil {
		return fmt.Errorf("storage: enqueue %s: %w", evt.EventType, err)
	}
	return nil
}
