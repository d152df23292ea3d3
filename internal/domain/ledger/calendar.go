package ledger

import (
	"context"
	"sort"
	"time"

	"github.com/example/stock-ledger/internal/domain/resource"
)

// DayAvailability is the min/max availability of one calendar day.
type DayAvailability struct {
	Date time.Time      `json:"date"`
	Min  resource.Stock `json:"min"`
	Max  resource.Stock `json:"max"`
}

// Calendar is the per-day availability over a date range.
type Calendar struct {
	Days         []DayAvailability `json:"days"`
	MinAvailable resource.Stock    `json:"min_available"`
	MaxAvailable resource.Stock    `json:"max_available"`
}

// TimelinePoint is one evaluation instant of a day timeline.
type TimelinePoint struct {
	At        time.Time      `json:"at"`
	Available resource.Stock `json:"available"`
}

// Calendar sweeps the range one day at a time. For each day the
// availability is evaluated at the day boundaries plus every claim window
// boundary inside the day; the extremes of those evaluations are the day's
// min and max. Intraday changes are captured without simulating every
// second: availability only moves at entry boundaries.
func (s *Service) Calendar(ctx context.Context, res *resource.Resource, from, until time.Time) (*Calendar, error) {
	if !res.ManagesStock {
		return unboundedCalendar(from, until), nil
	}

	l, err := s.load(ctx, res.ID)
	if err != nil {
		return nil, err
	}

	cal := &Calendar{}
	first := true
	for day := startOfDay(from); !day.After(until); day = day.AddDate(0, 0, 1) {
		dayEnd := day.AddDate(0, 0, 1)

		min, max := 0, 0
		for i, t := range dayInstants(l, day, dayEnd) {
			v := l.AvailableAt(t)
			if i == 0 || v < min {
				min = v
			}
			if i == 0 || v > max {
				max = v
			}
		}

		cal.Days = append(cal.Days, DayAvailability{
			Date: day,
			Min:  resource.Bounded(min),
			Max:  resource.Bounded(max),
		})
		if first {
			cal.MinAvailable = resource.Bounded(min)
			cal.MaxAvailable = resource.Bounded(max)
			first = false
		} else {
			cal.MinAvailable = cal.MinAvailable.Min(resource.Bounded(min))
			cal.MaxAvailable = cal.MaxAvailable.Max(resource.Bounded(max))
		}
	}
	return cal, nil
}

// DayTimeline returns the availability at each instant it can change
// within one day, in chronological order.
func (s *Service) DayTimeline(ctx context.Context, res *resource.Resource, date time.Time) ([]TimelinePoint, error) {
	day := startOfDay(date)
	dayEnd := day.AddDate(0, 0, 1)

	if !res.ManagesStock {
		return []TimelinePoint{
			{At: day, Available: resource.Unbounded()},
			{At: dayEnd, Available: resource.Unbounded()},
		}, nil
	}

	l, err := s.load(ctx, res.ID)
	if err != nil {
		return nil, err
	}

	var points []TimelinePoint
	for _, t := range dayInstants(l, day, dayEnd) {
		points = append(points, TimelinePoint{At: t, Available: resource.Bounded(l.AvailableAt(t))})
	}
	return points, nil
}

// dayInstants returns the sorted, deduplicated evaluation instants of one
// day: its boundaries plus every entry boundary strictly inside it.
func dayInstants(l *Ledger, day, dayEnd time.Time) []time.Time {
	instants := append([]time.Time{day, dayEnd}, l.boundariesWithin(day, dayEnd)...)
	sort.Slice(instants, func(i, j int) bool { return instants[i].Before(instants[j]) })

	dedup := instants[:1]
	for _, t := range instants[1:] {
		if !t.Equal(dedup[len(dedup)-1]) {
			dedup = append(dedup, t)
		}
	}
	return dedup
}

func unboundedCalendar(from, until time.Time) *Calendar {
	cal := &Calendar{
		MinAvailable: resource.Unbounded(),
		MaxAvailable: resource.Unbounded(),
	}
	for day := startOfDay(from); !day.After(until); day = day.AddDate(0, 0, 1) {
		cal.Days = append(cal.Days, DayAvailability{
			Date: day,
			Min:  resource.Unbounded(),
			Max:  resource.Unbounded(),
		})
	}
	return cal
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
