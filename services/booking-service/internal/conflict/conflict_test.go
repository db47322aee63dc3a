package conflict

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/md-rashed-zaman/vetbook/services/booking-service/internal/model"
)

type fakeLister struct {
	booked   []model.Booked
	err      error
	from, to time.Time
}

func (f *fakeLister) ListActiveIntervals(_ context.Context, _ string, from, to time.Time) ([]model.Booked, error) {
	f.from, f.to = from, to
	return f.booked, f.err
}

func at(h, m int) time.Time {
	return time.Date(2026, 3, 10, h, m, 0, 0, time.UTC)
}

func TestOverlaps(t *testing.T) {
	cases := []struct {
		name         string
		eStart, eEnd time.Time
		cStart, cEnd time.Time
		want         bool
	}{
		{"identical", at(10, 0), at(10, 30), at(10, 0), at(10, 30), true},
		{"partial", at(10, 0), at(10, 30), at(10, 15), at(10, 45), true},
		{"candidate contains existing", at(10, 10), at(10, 20), at(10, 0), at(10, 30), true},
		{"starts exactly at existing end", at(10, 0), at(10, 30), at(10, 30), at(11, 0), true},
		{"starts inside guard band", at(10, 0), at(10, 30), at(10, 30).Add(30 * time.Second), at(11, 0), true},
		{"starts after guard band", at(10, 0), at(10, 30), at(10, 31), at(11, 1), false},
		{"ends exactly at existing start", at(10, 0), at(10, 30), at(9, 30), at(10, 0), false},
		{"well before", at(10, 0), at(10, 30), at(8, 0), at(8, 30), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Overlaps(tc.eStart, tc.eEnd, tc.cStart, tc.cEnd); got != tc.want {
				t.Fatalf("Overlaps = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestCheckExcludesSelfAndCancelled(t *testing.T) {
	l := &fakeLister{booked: []model.Booked{
		{AppointmentID: "self", Start: at(10, 0), End: at(10, 30), Status: model.StatusPaid},
		{AppointmentID: "gone", Start: at(10, 0), End: at(10, 30), Status: model.StatusCancelled},
	}}

	hit, err := Check(context.Background(), l, "p1", at(10, 0), at(10, 30), "self")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if hit {
		t.Fatal("self and cancelled appointments must not conflict")
	}
	if !l.from.Equal(at(10, 0).Add(-GuardBand)) || !l.to.Equal(at(10, 30)) {
		t.Fatalf("unexpected query window %s..%s", l.from, l.to)
	}

	hit, err = Check(context.Background(), l, "p1", at(10, 0), at(10, 30), "")
	if err != nil || !hit {
		t.Fatalf("expected conflict without exclusion, hit=%v err=%v", hit, err)
	}
}

func TestCheckPropagatesErrors(t *testing.T) {
	boom := errors.New("db down")
	_, err := Check(context.Background(), &fakeLister{err: boom}, "p1", at(10, 0), at(10, 30), "")
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}
