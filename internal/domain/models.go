package domain

import "fmt"

// Side identifies the direction of an open position or a completed trade.
type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// ExitReason records why a position was closed.
type ExitReason string

const (
	ExitSignal    ExitReason = "SIGNAL"     // closed by the policy's own decision
	ExitStopLoss  ExitReason = "STOP_LOSS"  // forced close after an adverse stop cross
	ExitEndOfData ExitReason = "END_OF_DATA" // still open when the bar series ran out
)

// Bar is one time-indexed OHLCV row. Feature columns live alongside the bars
// in a Dataset rather than on the bar itself, so the hot loop reads columns.
type Bar struct {
	Timestamp int64   `json:"timestamp"` // unix milliseconds, strictly increasing
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
}

// Action is one trading decision. Exactly two concrete shapes exist:
// DiscreteAction for the basic long/flat machine and ContinuousAction for the
// advanced machine with sizing, shorting and stop placement. Both feed the
// same position engine.
type Action interface {
	isAction()
}

// DiscreteAction is the basic hold/buy/sell decision.
type DiscreteAction int

const (
	Hold DiscreteAction = iota
	Buy
	Sell
)

func (DiscreteAction) isAction() {}

// String implements fmt.Stringer for audit logging.
func (a DiscreteAction) String() string {
	switch a {
	case Hold:
		return "HOLD"
	case Buy:
		return "BUY"
	case Sell:
		return "SELL"
	}
	return fmt.Sprintf("DiscreteAction(%d)", int(a))
}

// ContinuousAction is the advanced decision: a direction in [-1, 1], a
// position size fraction in [0, 1] and a stop-loss distance fraction.
// Out-of-range values are clamped at execution, never rejected.
type ContinuousAction struct {
	Direction    float64 `json:"direction"`
	Size         float64 `json:"size"`
	StopDistance float64 `json:"stop_distance"`
}

func (ContinuousAction) isAction() {}

// TradeRecord is created when a position transitions to flat (or reverses)
// and is immutable once appended to a run's ledger.
type TradeRecord struct {
	Side        Side       `json:"side"`
	EntryIndex  int        `json:"entry_index"`
	ExitIndex   int        `json:"exit_index"`
	EntryPrice  float64    `json:"entry_price"`
	ExitPrice   float64    `json:"exit_price"`
	Quantity    float64    `json:"quantity"`
	GrossProfit float64    `json:"gross_profit"`
	Commission  float64    `json:"commission"`
	NetProfit   float64    `json:"net_profit"`
	ProfitPct   float64    `json:"profit_pct"`
	ExitReason  ExitReason `json:"exit_reason"`
}

// Won reports whether the completed trade realized a positive net profit.
func (t TradeRecord) Won() bool {
	return t.NetProfit > 0
}

// Metrics is the computed performance record of one backtest run.
type Metrics struct {
	InitialCapital   float64 `json:"initial_capital"`
	FinalValue       float64 `json:"final_value"`
	TotalProfit      float64 `json:"total_profit"`
	TotalReturn      float64 `json:"total_return"`
	AnnualizedReturn float64 `json:"annualized_return"`

	Volatility           float64 `json:"volatility"`
	AnnualizedVolatility float64 `json:"annualized_volatility"`
	SharpeRatio          float64 `json:"sharpe_ratio"`
	SortinoRatio         float64 `json:"sortino_ratio"`
	MaxDrawdown          float64 `json:"max_drawdown"`
	MaxDrawdownDuration  int     `json:"max_drawdown_duration_steps"`

	TotalTrades     int     `json:"total_trades"`
	CompletedTrades int     `json:"completed_trades"`
	WinningTrades   int     `json:"winning_trades"`
	LosingTrades    int     `json:"losing_trades"`
	WinRate         float64 `json:"win_rate"`
	ProfitFactor    float64 `json:"profit_factor"`
	AvgWin          float64 `json:"avg_win"`
	AvgLoss         float64 `json:"avg_loss"`
	AvgProfit       float64 `json:"avg_profit"`

	BuyAndHoldReturn float64 `json:"buy_and_hold_return"`
	Alpha            float64 `json:"alpha"`
	Outperformed     bool    `json:"outperformed"`
}

// WalkForwardWindow is one train/test split over the bar sequence.
// All ranges are half-open bar-index intervals.
type WalkForwardWindow struct {
	TrainStart int `json:"train_start"`
	TrainEnd   int `json:"train_end"`
	TestStart  int `json:"test_start"`
	TestEnd    int `json:"test_end"`
}

// BacktestResult is the read-only outcome of one completed run.
type BacktestResult struct {
	RunID            string             `json:"run_id"`
	Steps            int                `json:"steps"`
	TotalReward      float64            `json:"total_reward"`
	FinalValue       float64            `json:"final_value"`
	PortfolioHistory []float64          `json:"portfolio_history"`
	Trades           []TradeRecord      `json:"trades"`
	Metrics          Metrics            `json:"metrics"`
	Window           *WalkForwardWindow `json:"window,omitempty"`
}
