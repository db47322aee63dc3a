// Package conflict decides whether a candidate time range collides with a
// professional's existing appointments.
package conflict

import (
	"context"
	"fmt"
	"time"

	"github.com/md-rashed-zaman/vetbook/services/booking-service/internal/model"
)

// GuardBand is the minimum gap required after an existing appointment ends
// before a new one may start.
const GuardBand = time.Minute

// Lister returns the non-cancelled appointments of a professional that
// intersect [from, to).
type Lister interface {
	ListActiveIntervals(ctx context.Context, professionalID string, from, to time.Time) ([]model.Booked, error)
}

// Overlaps reports whether existing [eStart, eEnd) blocks candidate [cStart, cEnd).
// The candidate may end exactly when the existing one starts, but it may not
// start within GuardBand of the existing one's end.
func Overlaps(eStart, eEnd, cStart, cEnd time.Time) bool {
	return eStart.Before(cEnd) && eEnd.After(cStart.Add(-GuardBand))
}

// Check reports whether [start, end) conflicts with any active appointment of
// the professional other than excludeID.
func Check(ctx context.Context, l Lister, professionalID string, start, end time.Time, excludeID string) (bool, error) {
	booked, err := l.ListActiveIntervals(ctx, professionalID, start.Add(-GuardBand), end)
	if err != nil {
		return false, fmt.Errorf("conflict: list intervals: %w", err)
	}
	return AnyOverlap(booked, start, end, excludeID), nil
}

// AnyOverlap applies Overlaps to a pre-fetched set.
func AnyOverlap(booked []model.Booked, start, end time.Time, excludeID string) bool {
	for _, b := range booked {
		if b.Status == model.StatusCancelled {
			continue
		}
		if excludeID != "" && b.AppointmentID == excludeID {
			continue
		}
		if Overlaps(b.Start, b.End, start, end) {
			return true
		}
	}
	return false
}
