// Package marketphase resolves which of the four trading phases
// (pre-market, regular, after-hours, closed) governs the current cycle
// cadence (spec.md §4.J), adapted from the teacher's dominant-exchange
// market state detector down to catalyst-bot's single US-equities
// calendar.
package marketphase

import (
	"sync"
	"time"
)

// Phase is one of the four cadence-governing trading windows.
type Phase string

const (
	PreMarket  Phase = "pre_market"
	Regular    Phase = "regular"
	AfterHours Phase = "after_hours"
	Closed     Phase = "closed"
)

// Cadence durations, selected per spec.md §4.J's example schedule.
const (
	CadencePreMarket  = 90 * time.Second
	CadenceRegular    = 60 * time.Second
	CadenceAfterHours = 120 * time.Second
	CadenceClosed     = 15 * time.Minute
)

// HolidayCalendar reports full-day market closures (NYSE/NASDAQ
// holidays). A nil calendar means weekends are the only closures.
type HolidayCalendar interface {
	IsHoliday(date time.Time) bool
}

// staticCalendar holds a fixed set of US equity market holidays.
type staticCalendar struct {
	dates map[string]struct{}
}

// NewStaticCalendar builds a HolidayCalendar from a list of dates
// (any time.Time; only the Y-M-D components are significant).
func NewStaticCalendar(dates []time.Time) HolidayCalendar {
	m := make(map[string]struct{}, len(dates))
	for _, d := range dates {
		m[d.Format("2006-01-02")] = struct{}{}
	}
	return &staticCalendar{dates: m}
}

func (c *staticCalendar) IsHoliday(date time.Time) bool {
	_, ok := c.dates[date.Format("2006-01-02")]
	return ok
}

// Detector resolves the current Phase using US Eastern market hours:
// pre-market 04:00-09:30 ET, regular 09:30-16:00 ET, after-hours
// 16:00-20:00 ET, closed otherwise (including weekends and holidays).
type Detector struct {
	calendar HolidayCalendar
	loc      *time.Location

	mu   sync.Mutex
	last Phase
}

// New returns a Detector. calendar may be nil (weekends-only closures).
func New(calendar HolidayCalendar) (*Detector, error) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		loc = time.UTC
	}
	return &Detector{calendar: calendar, loc: loc}, nil
}

// Resolve returns the trading phase for now.
func (d *Detector) Resolve(now time.Time) Phase {
	local := now.In(d.loc)

	if local.Weekday() == time.Saturday || local.Weekday() == time.Sunday {
		return Closed
	}
	if d.calendar != nil && d.calendar.IsHoliday(local) {
		return Closed
	}

	minutesOfDay := local.Hour()*60 + local.Minute()
	switch {
	case minutesOfDay >= 4*60 && minutesOfDay < 9*60+30:
		return PreMarket
	case minutesOfDay >= 9*60+30 && minutesOfDay < 16*60:
		return Regular
	case minutesOfDay >= 16*60 && minutesOfDay < 20*60:
		return AfterHours
	default:
		return Closed
	}
}

// Cadence maps a Phase onto its cycle interval.
func Cadence(p Phase) time.Duration {
	switch p {
	case PreMarket:
		return CadencePreMarket
	case Regular:
		return CadenceRegular
	case AfterHours:
		return CadenceAfterHours
	default:
		return CadenceClosed
	}
}

// Transition reports whether phase changed since the last call, and
// records the new phase for the next comparison. The first call never
// reports a transition regardless of resolved phase.
func (d *Detector) Transition(now time.Time) (phase Phase, changed bool, previous Phase) {
	resolved := d.Resolve(now)

	d.mu.Lock()
	defer d.mu.Unlock()

	prev := d.last
	changed = d.last != "" && d.last != resolved
	d.last = resolved
	return resolved, changed, prev
}
