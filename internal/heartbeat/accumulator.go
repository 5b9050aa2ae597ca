// Package heartbeat implements the cycle-stats accumulator and the
// nightly backtest/recommendation report spec.md §4.K describes.
package heartbeat

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/amenzel91/catalyst-bot/internal/events"
)

// DefaultWindow is the heartbeat accumulation window (spec.md §4.K).
const DefaultWindow = 60 * time.Minute

// SystemStats reports process/host health to append to each summary.
// The default implementation samples via gopsutil; tests substitute a
// fixed-value stub.
type SystemStats func() (cpuPercent, memPercent float64)

// GopsutilStats is the default SystemStats, grounded on
// internal/server/system_handlers.go's getSystemStats.
func GopsutilStats() (float64, float64) {
	cpuPct, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil || len(cpuPct) == 0 {
		cpuPct = []float64{0}
	}
	memStat, err := mem.VirtualMemory()
	if err != nil {
		return cpuPct[0], 0
	}
	return cpuPct[0], memStat.UsedPercent
}

// Accumulator sums cycle stats over a rolling window and emits a
// HeartbeatSummary event when the window elapses, then resets.
type Accumulator struct {
	mu          sync.Mutex
	windowStart time.Time
	window      time.Duration
	cycles      int
	scanned     int
	alerted     int
	errors      int
	byReason    map[string]int

	sysStats SystemStats
	bus      *events.Bus
	log      zerolog.Logger

	stop    chan struct{}
	stopped bool
}

// New returns an Accumulator. window <= 0 falls back to DefaultWindow;
// sysStats nil falls back to GopsutilStats.
func New(window time.Duration, sysStats SystemStats, bus *events.Bus, log zerolog.Logger) *Accumulator {
	if window <= 0 {
		window = DefaultWindow
	}
	if sysStats == nil {
		sysStats = GopsutilStats
	}
	return &Accumulator{
		windowStart: time.Now().UTC(),
		window:      window,
		byReason:    make(map[string]int),
		sysStats:    sysStats,
		bus:         bus,
		log:         log.With().Str("component", "heartbeat").Logger(),
		stop:        make(chan struct{}),
	}
}

// RecordCycle folds one cycle's stats into the running window. Called by
// the cycle orchestrator once per pass.
func (a *Accumulator) RecordCycle(scanned, alerted, errored int, byReason map[string]int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cycles++
	a.scanned += scanned
	a.alerted += alerted
	a.errors += errored
	for reason, n := range byReason {
		a.byReason[reason] += n
	}
}

// Run ticks every minute, flushing the window once it has elapsed.
// Checking more often than the window length lets a short window (as
// used in tests) still land close to its boundary.
func (a *Accumulator) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-a.stop:
			return
		case <-ticker.C:
			a.maybeFlush()
		}
	}
}

// Stop ends a running Run loop.
func (a *Accumulator) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped {
		return
	}
	a.stopped = true
	close(a.stop)
}

func (a *Accumulator) maybeFlush() {
	a.mu.Lock()
	if time.Since(a.windowStart) < a.window {
		a.mu.Unlock()
		return
	}
	a.mu.Unlock()
	a.Flush()
}

// Flush emits the current window's summary regardless of elapsed time,
// then resets, letting callers force an out-of-band summary (e.g. on
// shutdown) without waiting for Run's ticker.
func (a *Accumulator) Flush() {
	a.mu.Lock()
	start := a.windowStart
	cycles, scanned, alerted, errs := a.cycles, a.scanned, a.alerted, a.errors
	byReason := make(map[string]int, len(a.byReason))
	for k, v := range a.byReason {
		byReason[k] = v
	}
	now := time.Now().UTC()
	a.windowStart = now
	a.cycles, a.scanned, a.alerted, a.errors = 0, 0, 0, 0
	a.byReason = make(map[string]int)
	a.mu.Unlock()

	cpuPct, memPct := a.sysStats()

	a.log.Info().
		Int("cycles", cycles).
		Int("scanned", scanned).
		Int("alerted", alerted).
		Int("errors", errs).
		Float64("cpu_percent", cpuPct).
		Float64("mem_percent", memPct).
		Msg("heartbeat summary")

	if a.bus != nil {
		a.bus.Emit(events.HeartbeatSummary, "heartbeat", &events.HeartbeatSummaryData{
			WindowStart: start.Format(time.RFC3339),
			WindowEnd:   now.Format(time.RFC3339),
			Cycles:      cycles,
			Scanned:     scanned,
			Alerted:     alerted,
			Errors:      errs,
			ByReason:    byReason,
			CPUPercent:  cpuPct,
			MemPercent:  memPct,
		})
	}
}
