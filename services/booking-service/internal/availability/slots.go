package availability

import (
	"iter"
	"time"
)

type Interval struct {
	Start time.Time
	End   time.Time
}

// Walk yields candidate start times in window for a booking of length duration.
// The cursor starts at window.Start and always advances by duration; a candidate
// is yielded when [t, t+duration) does not overlap any busy interval. The walk
// stops at the first candidate that would end after window.End.
func Walk(window Interval, duration time.Duration, busy []Interval) iter.Seq[time.Time] {
	return func(yield func(time.Time) bool) {
		if duration <= 0 || !window.End.After(window.Start) {
			return
		}
		for t := window.Start; !t.Add(duration).After(window.End); t = t.Add(duration) {
			if overlapsAny(t, t.Add(duration), busy) {
				continue
			}
			if !yield(t) {
				return
			}
		}
	}
}

func overlapsAny(start, end time.Time, busy []Interval) bool {
	for _, b := range busy {
		// Half-open intervals: [start,end) overlaps [b.Start,b.End) iff start < b.End && b.Start < end.
		if start.Before(b.End) && b.Start.Before(end) {
			return true
		}
	}
	return false
}
