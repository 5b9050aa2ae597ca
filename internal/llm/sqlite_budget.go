package llm

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/amenzel91/catalyst-bot/internal/database"
	"github.com/amenzel91/catalyst-bot/internal/events"
)

// BudgetLimits is the pair of cost ceilings Reserve enforces.
type BudgetLimits struct {
	DailyUSD    float64
	MonthlyUSD  float64
	WarnAtRatio float64 // fraction of either ceiling that triggers a soft warning, e.g. 0.8
}

// DefaultBudgetLimits mirrors spec.md §4.G/§6's cost-ceiling guidance:
// the router fails closed on the hard stop and warns at 80% of either.
func DefaultBudgetLimits() BudgetLimits {
	return BudgetLimits{DailyUSD: 10.0, MonthlyUSD: 200.0, WarnAtRatio: 0.8}
}

// SQLiteBudget tracks running daily/monthly spend in the llm_budget
// table and enforces DefaultBudgetLimits (or a caller-supplied variant).
type SQLiteBudget struct {
	db     *sql.DB
	limits BudgetLimits
	bus    *events.Bus

	mu      sync.Mutex
	warned  map[string]bool // window keys already warned this process
}

func NewSQLiteBudget(db *database.DB, limits BudgetLimits, bus *events.Bus) *SQLiteBudget {
	return &SQLiteBudget{db: db.Conn(), limits: limits, bus: bus, warned: make(map[string]bool)}
}

// Reserve adds cost to both the daily and monthly counters, rejecting
// (without recording the spend) if either would exceed its ceiling.
func (b *SQLiteBudget) Reserve(cost float64) (bool, BudgetStatus, error) {
	now := time.Now().UTC()
	dailyKey := "daily:" + now.Format("2006-01-02")
	monthlyKey := "monthly:" + now.Format("2006-01")

	dailySpent, err := b.spent(dailyKey)
	if err != nil {
		return false, BudgetStatus{}, err
	}
	monthlySpent, err := b.spent(monthlyKey)
	if err != nil {
		return false, BudgetStatus{}, err
	}

	if dailySpent+cost > b.limits.DailyUSD {
		return false, BudgetStatus{Window: "daily", SpentUSD: dailySpent, LimitUSD: b.limits.DailyUSD}, nil
	}
	if monthlySpent+cost > b.limits.MonthlyUSD {
		return false, BudgetStatus{Window: "monthly", SpentUSD: monthlySpent, LimitUSD: b.limits.MonthlyUSD}, nil
	}

	if err := b.add(dailyKey, cost); err != nil {
		return false, BudgetStatus{}, err
	}
	if err := b.add(monthlyKey, cost); err != nil {
		return false, BudgetStatus{}, err
	}

	b.maybeWarn(dailyKey, dailySpent+cost, b.limits.DailyUSD, "daily")
	b.maybeWarn(monthlyKey, monthlySpent+cost, b.limits.MonthlyUSD, "monthly")

	return true, BudgetStatus{}, nil
}

func (b *SQLiteBudget) spent(windowKey string) (float64, error) {
	var spent float64
	err := b.db.QueryRow(`SELECT spent_usd FROM llm_budget WHERE window_key = ?`, windowKey).Scan(&spent)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("llm budget read: %w", err)
	}
	return spent, nil
}

func (b *SQLiteBudget) add(windowKey string, cost float64) error {
	_, err := b.db.Exec(
		`INSERT INTO llm_budget (window_key, spent_usd) VALUES (?, ?)
		 ON CONFLICT(window_key) DO UPDATE SET spent_usd = spent_usd + excluded.spent_usd`,
		windowKey, cost,
	)
	if err != nil {
		return fmt.Errorf("llm budget write: %w", err)
	}
	return nil
}

// maybeWarn emits one LLMBudgetWarning event per window key per process
// once spend crosses WarnAtRatio of its ceiling.
func (b *SQLiteBudget) maybeWarn(windowKey string, spent, limit float64, window string) {
	if b.bus == nil || limit <= 0 || spent/limit < b.limits.WarnAtRatio {
		return
	}

	b.mu.Lock()
	already := b.warned[windowKey]
	if !already {
		b.warned[windowKey] = true
	}
	b.mu.Unlock()

	if already {
		return
	}
	b.bus.Emit(events.LLMBudgetWarning, "llm_router", &events.LLMBudgetData{
		SpentUSD: spent,
		LimitUSD: limit,
		Window:   window,
	})
}
