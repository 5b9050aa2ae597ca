package events

// PhaseChangedData describes a market-phase transition observed by the
// cycle orchestrator.
type PhaseChangedData struct {
	Previous string
	Current  string
	Cadence  string // new cycle interval, formatted via time.Duration.String()
}

func (d *PhaseChangedData) EventType() EventType { return PhaseChanged }

// FeedOutageData is emitted after a source has returned zero items for
// ConsecutiveEmpty consecutive cycles.
type FeedOutageData struct {
	Feed             string
	ConsecutiveEmpty int
	LastError        string
}

func (d *FeedOutageData) EventType() EventType { return FeedOutage }

// FeedRecoveredData is emitted the first time a previously-outaged feed
// produces items again.
type FeedRecoveredData struct {
	Feed string
}

func (d *FeedRecoveredData) EventType() EventType { return FeedRecovered }

// ConfigAppliedData describes a committed parameter-store mutation.
type ConfigAppliedData struct {
	Revision int
	Author   string
	Action   string // "apply" or "rollback"
	Keys     []string
}

func (d *ConfigAppliedData) EventType() EventType { return ConfigApplied }

// AlertDispatchedData describes a successfully delivered alert.
type AlertDispatchedData struct {
	Ticker    string
	MessageID string
}

func (d *AlertDispatchedData) EventType() EventType { return AlertDispatched }

// LLMBudgetData describes the router's cost-ceiling state at the moment
// a warning or hard-stop threshold was crossed.
type LLMBudgetData struct {
	SpentUSD  float64
	LimitUSD  float64
	Window    string // "daily" or "monthly"
}

func (d *LLMBudgetData) EventType() EventType { return LLMBudgetWarning }

// LLMBudgetExceededData is the hard-stop counterpart of LLMBudgetData.
type LLMBudgetExceededData struct {
	SpentUSD float64
	LimitUSD float64
	Window   string
}

func (d *LLMBudgetExceededData) EventType() EventType { return LLMBudgetExceeded }

// HeartbeatSummaryData is the compact rollup posted when the heartbeat
// accumulator's window elapses.
type HeartbeatSummaryData struct {
	WindowStart string
	WindowEnd   string
	Cycles      int
	Scanned     int
	Alerted     int
	Errors      int
	ByReason    map[string]int
	CPUPercent  float64
	MemPercent  float64
}

func (d *HeartbeatSummaryData) EventType() EventType { return HeartbeatSummary }

// NightlyReportData is the backtest/recommendation rollup posted by the
// nightly report job.
type NightlyReportData struct {
	ReportDate        string
	WinRate           float64
	SampleSize        int
	TopCategories     []string
	BottomCategories  []string
	Recommendations   []string
}

func (d *NightlyReportData) EventType() EventType { return NightlyReport }
