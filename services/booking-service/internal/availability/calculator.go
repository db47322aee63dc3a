package availability

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/vetbook/libs/apperr"
	"github.com/md-rashed-zaman/vetbook/services/booking-service/internal/conflict"
	"github.com/md-rashed-zaman/vetbook/services/booking-service/internal/metrics"
	"github.com/md-rashed-zaman/vetbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/vetbook/services/booking-service/internal/storage"
)

const (
	dateLayout = "2006-01-02"
	slotLayout = "15:04"
)

type Store interface {
	conflict.Lister
	GetService(ctx context.Context, id string) (model.Service, error)
	GetProfessional(ctx context.Context, id string) (model.Professional, error)
}

// Config is the clinic's single daily working window.
type Config struct {
	DayStart time.Duration // offset from midnight
	DayEnd   time.Duration
	Location *time.Location
	Metrics  *metrics.Metrics
}

type Calculator struct {
	store Store
	cfg   Config
}

func NewCalculator(store Store, cfg Config) *Calculator {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.DayStart == 0 && cfg.DayEnd == 0 {
		cfg.DayStart, cfg.DayEnd = 9*time.Hour, 18*time.Hour
	}
	return &Calculator{store: store, cfg: cfg}
}

// Window returns the working window on the calendar day of day, in the clinic location.
func (c *Calculator) Window(day time.Time) Interval {
	day = day.In(c.cfg.Location)
	return Interval{
		Start: wallClock(day, c.cfg.DayStart, c.cfg.Location),
		End:   wallClock(day, c.cfg.DayEnd, c.cfg.Location),
	}
}

func wallClock(day time.Time, offset time.Duration, loc *time.Location) time.Time {
	h := int(offset / time.Hour)
	m := int(offset % time.Hour / time.Minute)
	return time.Date(day.Year(), day.Month(), day.Day(), h, m, 0, 0, loc)
}

// Slots lists bookable "HH:MM" start times for the service with the
// professional on date ("YYYY-MM-DD").
func (c *Calculator) Slots(ctx context.Context, professionalID, serviceID, date string) (slots []string, err error) {
	defer func() {
		switch {
		case err != nil:
			c.cfg.Metrics.ObserveSlotQuery(apperr.KindOf(err).String())
		case len(slots) == 0:
			c.cfg.Metrics.ObserveSlotQuery("empty")
		default:
			c.cfg.Metrics.ObserveSlotQuery("ok")
		}
	}()

	if _, err := uuid.Parse(professionalID); err != nil {
		return nil, apperr.Validation("professional_id must be a uuid")
	}
	if _, err := uuid.Parse(serviceID); err != nil {
		return nil, apperr.Validation("service_id must be a uuid")
	}
	day, err := time.ParseInLocation(dateLayout, date, c.cfg.Location)
	if err != nil {
		return nil, apperr.Validation("date must be YYYY-MM-DD")
	}

	svc, err := c.store.GetService(ctx, serviceID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, apperr.NotFound("service not found")
		}
		return nil, apperr.Internal("load service", err)
	}
	if _, err := c.store.GetProfessional(ctx, professionalID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, apperr.NotFound("professional not found")
		}
		return nil, apperr.Internal("load professional", err)
	}

	window := c.Window(day)
	booked, err := c.store.ListActiveIntervals(ctx, professionalID, window.Start, window.End)
	if err != nil {
		return nil, apperr.Internal("load booked intervals", err)
	}

	duration := svc.Duration()
	busy := make([]Interval, 0, len(booked))
	for _, b := range booked {
		d := b.ServiceDuration
		if d <= 0 {
			d = duration
		}
		busy = append(busy, Interval{Start: b.Start, End: b.Start.Add(d)})
	}

	out := []string{}
	for t := range Walk(window, duration, busy) {
		out = append(out, t.In(c.cfg.Location).Format(slotLayout))
	}
	return out, nil
}
