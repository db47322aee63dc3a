package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/md-rashed-zaman/vetbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/vetbook/services/booking-service/internal/outbox"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"
)

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

func TestGetServiceNotFound(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery("FROM services").
		WithArgs("svc-1").
		WillReturnError(pgx.ErrNoRows)

	_, err := NewPostgres(mock).GetService(context.Background(), "svc-1")
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetService(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery("FROM services").
		WithArgs("svc-1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "duration_minutes", "price_cents", "currency", "category"}).
			AddRow("svc-1", "Vaccination", 30, int64(4500), "eur", "medical"))

	svc, err := NewPostgres(mock).GetService(context.Background(), "svc-1")
	require.NoError(t, err)
	require.Equal(t, model.CategoryMedical, svc.Category)
	require.Equal(t, 30*time.Minute, svc.Duration())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListActiveIntervals(t *testing.T) {
	mock := newMock(t)
	from := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	to := from.Add(9 * time.Hour)
	mock.ExpectQuery("FROM appointments a").
		WithArgs("pro-1", from, to).
		WillReturnRows(pgxmock.NewRows([]string{"id", "start_time", "end_time", "status", "duration_minutes"}).
			AddRow("a1", from.Add(time.Hour), from.Add(90*time.Minute), "paid", 30).
			AddRow("a2", from.Add(3*time.Hour), from.Add(4*time.Hour), "completed", 0))

	got, err := NewPostgres(mock).ListActiveIntervals(context.Background(), "pro-1", from, to)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, model.StatusPaid, got[0].Status)
	require.Equal(t, 30*time.Minute, got[0].ServiceDuration)
	require.Zero(t, got[1].ServiceDuration)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateAppointmentMapsExclusionViolation(t *testing.T) {
	mock := newMock(t)
	start := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	appt := &model.Appointment{
		ProfessionalID:  "pro-1",
		PetID:           "pet-1",
		ServiceID:       "svc-1",
		OwnerID:         "own-1",
		Start:           start,
		End:             start.Add(30 * time.Minute),
		Status:          model.StatusPaid,
		TotalPriceCents: 4500,
		Currency:        "eur",
		PaymentIntentID: "pi_1",
	}

	mock.ExpectBegin()
	mock.ExpectExec("pg_advisory_xact_lock").
		WithArgs(lockKey("pro-1")).
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO appointments").
		WithArgs("pro-1", "pet-1", "svc-1", "own-1", appt.Start, appt.End, "paid", int64(4500), "eur", pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23P01"})
	mock.ExpectRollback()
	mock.ExpectExec("INSERT INTO intake_failures").
		WithArgs("stripe", "evt_1", "pi_1", ReasonSlotConflict, "", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	err := NewPostgres(mock).InTx(context.Background(), func(tx Tx) error {
		if err := tx.LockProfessional(context.Background(), "pro-1"); err != nil {
			return err
		}
		err := tx.CreateAppointment(context.Background(), appt)
		require.ErrorIs(t, err, ErrOverlap)
		return tx.RecordIntakeFailure(context.Background(), IntakeFailure{
			Provider:        "stripe",
			EventID:         "evt_1",
			PaymentIntentID: "pi_1",
			Reason:          ReasonSlotConflict,
		})
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateAppointment(t *testing.T) {
	mock := newMock(t)
	start := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	created := start.Add(-48 * time.Hour)
	appt := &model.Appointment{
		ProfessionalID: "pro-1", PetID: "pet-1", ServiceID: "svc-1", OwnerID: "own-1",
		Start: start, End: start.Add(30 * time.Minute), Status: model.StatusPaid,
	}

	mock.ExpectBegin()
	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO appointments").
		WithArgs("pro-1", "pet-1", "svc-1", "own-1", appt.Start, appt.End, "paid", int64(0), "", pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow("a1", created, created))
	mock.ExpectCommit()
	mock.ExpectCommit()

	err := NewPostgres(mock).InTx(context.Background(), func(tx Tx) error {
		return tx.CreateAppointment(context.Background(), appt)
	})
	require.NoError(t, err)
	require.Equal(t, "a1", appt.ID)
	require.True(t, appt.CreatedAt.Equal(created))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordProviderEventDuplicate(t *testing.T) {
	mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO provider_events").
		WithArgs("stripe", "evt_1", "payment_intent.succeeded").
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectRollback()

	err := NewPostgres(mock).InTx(context.Background(), func(tx Tx) error {
		return tx.RecordProviderEvent(context.Background(), "stripe", "evt_1", "payment_intent.succeeded")
	})
	require.True(t, errors.Is(err, ErrDuplicateEvent), "got %v", err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIntakeFailureAndOutboxCommit(t *testing.T) {
	mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO intake_failures").
		WithArgs("stripe", "evt_2", "pi_2", ReasonSlotConflict, "overlaps a1", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO outbox_events").
		WithArgs("payment", "pi_2", outbox.TypeIntakeConflict, []byte(`{}`), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	err := NewPostgres(mock).InTx(context.Background(), func(tx Tx) error {
		if err := tx.RecordIntakeFailure(context.Background(), IntakeFailure{
			Provider:        "stripe",
			EventID:         "evt_2",
			PaymentIntentID: "pi_2",
			Reason:          ReasonSlotConflict,
			Detail:          "overlaps a1",
			Metadata:        map[string]string{"professional_id": "pro-1"},
		}); err != nil {
			return err
		}
		return tx.EnqueueEvent(context.Background(), outbox.Event{
			AggregateType: "payment",
			AggregateID:   "pi_2",
			EventType:     outbox.TypeIntakeConflict,
			Payload:       []byte(`{}`),
		})
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateStatusCancelledSetsTimestamp(t *testing.T) {
	mock := newMock(t)
	at := time.Date(2026, 3, 9, 8, 0, 0, 0, time.UTC)
	start := at.Add(48 * time.Hour)
	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE appointments").
		WithArgs("a1", "cancelled", pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "professional_id", "pet_id", "service_id", "owner_id",
			"start_time", "end_time", "status", "total_price_cents", "currency", "reminder_sent",
			"payment_intent_id", "created_at", "updated_at", "cancelled_at",
		}).AddRow("a1", "pro-1", "pet-1", "svc-1", "own-1",
			start, start.Add(30*time.Minute), "cancelled", int64(4500), "eur", false,
			"pi_1", at, at, &at))
	mock.ExpectCommit()

	var got model.Appointment
	err := NewPostgres(mock).InTx(context.Background(), func(tx Tx) error {
		var err error
		got, err = tx.UpdateStatus(context.Background(), "a1", model.StatusCancelled, at)
		return err
	})
	require.NoError(t, err)
	require.Equal(t, model.StatusCancelled, got.Status)
	require.NotNil(t, got.CancelledAt)
	require.True(t, got.CancelledAt.Equal(at))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIntakeFailureWithoutMetadataStoresEmptyObject(t *testing.T) {
	mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO intake_failures").
		WithArgs("stripe", "evt_3", "pi_3", ReasonInvalidMetadata, "undecodable", []byte(`{}`)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	err := NewPostgres(mock).InTx(context.Background(), func(tx Tx) error {
		return tx.RecordIntakeFailure(context.Background(), IntakeFailure{
			Provider: "stripe", EventID: "evt_3", PaymentIntentID: "pi_3",
			Reason: ReasonInvalidMetadata, Detail: "undecodable",
		})
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
