package marketphase

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nyTime(t *testing.T, s string) time.Time {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	parsed, err := time.ParseInLocation("2006-01-02 15:04", s, loc)
	require.NoError(t, err)
	return parsed
}

func TestResolvePreMarket(t *testing.T) {
	d, err := New(nil)
	require.NoError(t, err)
	// Wednesday
	assert.Equal(t, PreMarket, d.Resolve(nyTime(t, "2026-07-29 07:00")))
}

func TestResolveRegular(t *testing.T) {
	d, err := New(nil)
	require.NoError(t, err)
	assert.Equal(t, Regular, d.Resolve(nyTime(t, "2026-07-29 11:00")))
}

func TestResolveAfterHours(t *testing.T) {
	d, err := New(nil)
	require.NoError(t, err)
	assert.Equal(t, AfterHours, d.Resolve(nyTime(t, "2026-07-29 18:00")))
}

func TestResolveClosedOvernight(t *testing.T) {
	d, err := New(nil)
	require.NoError(t, err)
	assert.Equal(t, Closed, d.Resolve(nyTime(t, "2026-07-29 23:00")))
}

func TestResolveClosedOnWeekend(t *testing.T) {
	d, err := New(nil)
	require.NoError(t, err)
	// Saturday
	assert.Equal(t, Closed, d.Resolve(nyTime(t, "2026-08-01 11:00")))
}

func TestResolveClosedOnHoliday(t *testing.T) {
	holiday := nyTime(t, "2026-07-03 00:00")
	cal := NewStaticCalendar([]time.Time{holiday})
	d, err := New(cal)
	require.NoError(t, err)
	assert.Equal(t, Closed, d.Resolve(nyTime(t, "2026-07-03 11:00")))
}

func TestCadenceMapsEachPhase(t *testing.T) {
	assert.Equal(t, CadencePreMarket, Cadence(PreMarket))
	assert.Equal(t, CadenceRegular, Cadence(Regular))
	assert.Equal(t, CadenceAfterHours, Cadence(AfterHours))
	assert.Equal(t, CadenceClosed, Cadence(Closed))
}

func TestTransitionDetectsPhaseChange(t *testing.T) {
	d, err := New(nil)
	require.NoError(t, err)

	_, changed, _ := d.Transition(nyTime(t, "2026-07-29 07:00"))
	assert.False(t, changed, "first call never reports a transition")

	phase, changed, previous := d.Transition(nyTime(t, "2026-07-29 11:00"))
	assert.True(t, changed)
	assert.Equal(t, Regular, phase)
	assert.Equal(t, PreMarket, previous)
}

func TestTransitionNoChangeWithinSamePhase(t *testing.T) {
	d, err := New(nil)
	require.NoError(t, err)

	d.Transition(nyTime(t, "2026-07-29 11:00"))
	_, changed, _ := d.Transition(nyTime(t, "2026-07-29 11:30"))
	assert.False(t, changed)
}
