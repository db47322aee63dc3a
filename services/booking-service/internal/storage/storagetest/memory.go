// Package storagetest provides an in-memory storage.Repository for tests.
package storagetest

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/vetbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/vetbook/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/vetbook/services/booking-service/internal/storage"
)

type state struct {
	services       map[string]model.Service
	professionals  map[string]model.Professional
	pets           map[string]model.Pet
	appointments   map[string]model.Appointment
	providerEvents map[string]string
	failures       []storage.IntakeFailure
	events         []outbox.Event
}

func (s *state) clone() *state {
	return &state{
		services:       maps.Clone(s.services),
		professionals:  maps.Clone(s.professionals),
		pets:           maps.Clone(s.pets),
		appointments:   maps.Clone(s.appointments),
		providerEvents: maps.Clone(s.providerEvents),
		failures:       slices.Clone(s.failures),
		events:         slices.Clone(s.events),
	}
}

// Memory runs every transaction under one lock, so concurrent InTx calls are
// fully serialized. Writes become visible on commit only.
type Memory struct {
	mu sync.Mutex
	st *state

	// TxErr, when set, is returned by InTx without running fn.
	TxErr error
}

func New() *Memory {
	return &Memory{st: &state{
		services:       map[string]model.Service{},
		professionals:  map[string]model.Professional{},
		pets:           map[string]model.Pet{},
		appointments:   map[string]model.Appointment{},
		providerEvents: map[string]string{},
	}}
}

func (m *Memory) AddService(s model.Service) model.Service {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	m.st.services[s.ID] = s
	return s
}

func (m *Memory) AddProfessional(p model.Professional) model.Professional {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	m.st.professionals[p.ID] = p
	return p
}

func (m *Memory) AddPet(p model.Pet) model.Pet {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	m.st.pets[p.ID] = p
	return p
}

// AddAppointment stores a directly without the overlap backstop.
func (m *Memory) AddAppointment(a model.Appointment) model.Appointment {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Status == "" {
		a.Status = model.StatusPaid
	}
	m.st.appointments[a.ID] = a
	return a
}

func (m *Memory) Appointments() []model.Appointment {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := slices.Collect(maps.Values(m.st.appointments))
	slices.SortFunc(out, func(a, b model.Appointment) int { return a.Start.Compare(b.Start) })
	return out
}

func (m *Memory) Failures() []storage.IntakeFailure {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.st.failures)
}

func (m *Memory) Events() []outbox.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.st.events)
}

// EventTypes lists enqueued event types in order.
func (m *Memory) EventTypes() []string {
	var out []string
	for _, e := range m.Events() {
		out = append(out, e.EventType)
	}
	return out
}

func (m *Memory) InTx(ctx context.Context, fn func(storage.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.TxErr != nil {
		return m.TxErr
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	work := m.st.clone()
	if err := fn(&memTx{view{work}}); err != nil {
		return err
	}
	m.st = work
	return nil
}

func (m *Memory) read() view {
	return view{m.st}
}

func (m *Memory) GetService(ctx context.Context, id string) (model.Service, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.read().GetService(ctx, id)
}

func (m *Memory) GetProfessional(ctx context.Context, id string) (model.Professional, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.read().GetProfessional(ctx, id)
}

func (m *Memory) GetPet(ctx context.Context, id string) (model.Pet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.read().GetPet(ctx, id)
}

func (m *Memory) GetAppointment(ctx context.Context, id string) (model.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.read().GetAppointment(ctx, id)
}

func (m *Memory) ListActiveIntervals(ctx context.Context, professionalID string, from, to time.Time) ([]model.Booked, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.read().ListActiveIntervals(ctx, professionalID, from, to)
}

type view struct {
	st *state
}

func (v view) GetService(_ context.Context, id string) (model.Service, error) {
	s, ok := v.st.services[id]
	if !ok {
		return model.Service{}, storage.ErrNotFound
	}
	return s, nil
}

func (v view) GetProfessional(_ context.Context, id string) (model.Professional, error) {
	p, ok := v.st.professionals[id]
	if !ok {
		return model.Professional{}, storage.ErrNotFound
	}
	return p, nil
}

func (v view) GetPet(_ context.Context, id string) (model.Pet, error) {
	p, ok := v.st.pets[id]
	if !ok {
		return model.Pet{}, storage.ErrNotFound
	}
	return p, nil
}

func (v view) GetAppointment(_ context.Context, id string) (model.Appointment, error) {
	a, ok := v.st.appointments[id]
	if !ok {
		return model.Appointment{}, storage.ErrNotFound
	}
	return a, nil
}

func (v view) ListActiveIntervals(_ context.Context, professionalID string, from, to time.Time) ([]model.Booked, error) {
	var out []model.Booked
	for _, a := range v.st.appointments {
		if a.ProfessionalID != professionalID || a.Status == model.StatusCancelled {
			continue
		}
		if !a.Start.Before(to) || !a.End.After(from) {
			continue
		}
		b := model.Booked{AppointmentID: a.ID, Start: a.Start, End: a.End, Status: a.Status}
		if s, ok := v.st.services[a.ServiceID]; ok {
			b.ServiceDuration = s.Duration()
		}
		out = append(out, b)
	}
	slices.SortFunc(out, func(a, b model.Booked) int { return a.Start.Compare(b.Start) })
	return out, nil
}

type memTx struct {
	view
}

func (t *memTx) LockProfessional(context.Context, string) error { return nil }

func (t *memTx) GetAppointmentForUpdate(ctx context.Context, id string) (model.Appointment, error) {
	return t.GetAppointment(ctx, id)
}

// overlapsRaw mirrors the database exclusion constraint: plain half-open overlap.
func (t *memTx) overlapsRaw(a model.Appointment) bool {
	for _, e := range t.st.appointments {
		if e.ID == a.ID || e.ProfessionalID != a.ProfessionalID || e.Status == model.StatusCancelled {
			continue
		}
		if e.Start.Before(a.End) && a.Start.Before(e.End) {
			return true
		}
	}
	return false
}

func (t *memTx) CreateAppointment(_ context.Context, appt *model.Appointment) error {
	if appt.PaymentIntentID != "" {
		for _, e := range t.st.appointments {
			if e.PaymentIntentID == appt.PaymentIntentID {
				return storage.ErrDuplicateEvent
			}
		}
	}
	if t.overlapsRaw(*appt) {
		return storage.ErrOverlap
	}
	now := time.Now().UTC()
	appt.ID = uuid.NewString()
	appt.CreatedAt = now
	appt.UpdatedAt = now
	t.st.appointments[appt.ID] = *appt
	return nil
}

func (t *memTx) UpdateSchedule(_ context.Context, id string, start, end time.Time) (model.Appointment, error) {
	a, ok := t.st.appointments[id]
	if !ok {
		return model.Appointment{}, storage.ErrNotFound
	}
	a.Start, a.End = start, end
	if t.overlapsRaw(a) {
		return model.Appointment{}, storage.ErrOverlap
	}
	a.UpdatedAt = time.Now().UTC()
	t.st.appointments[id] = a
	return a, nil
}

func (t *memTx) UpdateStatus(_ context.Context, id string, status model.Status, at time.Time) (model.Appointment, error) {
	a, ok := t.st.appointments[id]
	if !ok {
		return model.Appointment{}, storage.ErrNotFound
	}
	a.Status = status
	if status == model.StatusCancelled {
		a.CancelledAt = &at
	}
	a.UpdatedAt = at
	t.st.appointments[id] = a
	return a, nil
}

func (t *memTx) RecordProviderEvent(_ context.Context, provider, eventID, eventType string) error {
	key := provider + "/" + eventID
	if _, ok := t.st.providerEvents[key]; ok {
		return storage.ErrDuplicateEvent
	}
	t.st.providerEvents[key] = eventType
	return nil
}

func (t *memTx) RecordIntakeFailure(_ context.Context, f storage.IntakeFailure) error {
	t.st.failures = append(t.st.failures, f)
	return nil
}

func (t *memTx) EnqueueEvent(_ context.Context, evt outbox.Event) error {
	t.st.events = append(t.st.events, evt)
	return nil
}

var _ storage.Repository = (*Memory)(nil)
