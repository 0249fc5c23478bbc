package engine

import (
	"errors"
	"fmt"
	"math"

	"github.com/solquant/soltrader/internal/domain"
)

// ErrInvalidPrice signals a non-finite or non-positive price reaching the
// position engine. Prices are validated at dataset construction, so this is
// a data-quality failure and is never masked by clamping.
var ErrInvalidPrice = errors.New("engine: price must be positive and finite")

// Target position direction.
const (
	targetShort = -1
	targetFlat  = 0
	targetLong  = 1
)

// Config holds the position-engine and step-machine parameters. Invalid
// values fail at construction; per-action inputs are clamped instead.
type Config struct {
	InitialCapital     float64
	CommissionRate     float64 // flat fraction of notional, charged on entry and exit
	WindowSize         int
	MaxPositionSize    float64 // upper bound for the per-action size fraction, in (0, 1]
	EnableShort        bool
	MaxStopDistance    float64 // upper bound for the per-action stop distance, in [0, 1)
	TruncationFraction float64 // episode truncates when value <= fraction * initial capital
}

// Validate checks the configuration invariants.
func (c Config) Validate() error {
	if c.InitialCapital <= 0 {
		return fmt.Errorf("engine: initial capital must be positive, got %v", c.InitialCapital)
	}
	if c.CommissionRate < 0 || c.CommissionRate >= 1 {
		return fmt.Errorf("engine: commission rate must be in [0, 1), got %v", c.CommissionRate)
	}
	if c.WindowSize < 2 {
		return fmt.Errorf("engine: window size must be at least 2, got %d", c.WindowSize)
	}
	if c.MaxPositionSize <= 0 || c.MaxPositionSize > 1 {
		return fmt.Errorf("engine: max position size must be in (0, 1], got %v", c.MaxPositionSize)
	}
	if c.MaxStopDistance < 0 || c.MaxStopDistance >= 1 {
		return fmt.Errorf("engine: max stop distance must be in [0, 1), got %v", c.MaxStopDistance)
	}
	if c.TruncationFraction < 0 || c.TruncationFraction >= 1 {
		return fmt.Errorf("engine: truncation fraction must be in [0, 1), got %v", c.TruncationFraction)
	}
	return nil
}

// Portfolio owns the cash balance, holdings and open-position state, and the
// rules for opening, closing and reversing positions against a price. It is
// mutated in place and must not be shared across concurrent runs.
type Portfolio struct {
	cfg Config

	cash       float64
	holdings   float64 // signed: positive = long, negative = short
	position   int     // -1, 0, 1; always sign-consistent with holdings
	sizeFrac   float64 // fraction of cash committed at entry, in [0, 1]
	entryPrice float64
	entryIndex int
	entryFee   float64 // commission paid at entry, realized into the trade record on close
	stopPrice  float64 // 0 = no stop armed
}

// NewPortfolio creates a flat portfolio holding the full initial capital.
func NewPortfolio(cfg Config) (*Portfolio, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Portfolio{cfg: cfg, cash: cfg.InitialCapital}, nil
}

// Reset returns the portfolio to its initial flat state.
func (p *Portfolio) Reset() {
	p.cash = p.cfg.InitialCapital
	p.holdings = 0
	p.position = targetFlat
	p.sizeFrac = 0
	p.entryPrice = 0
	p.entryIndex = 0
	p.entryFee = 0
	p.stopPrice = 0
}

// Cash returns the current cash balance.
func (p *Portfolio) Cash() float64 { return p.cash }

// Holdings returns the signed holdings quantity.
func (p *Portfolio) Holdings() float64 { return p.holdings }

// Direction returns -1 (short), 0 (flat) or 1 (long).
func (p *Portfolio) Direction() int { return p.position }

// SizeFraction returns the size fraction of the open position, 0 when flat.
func (p *Portfolio) SizeFraction() float64 { return p.sizeFrac }

// EntryPrice returns the open position's entry price, 0 when flat.
func (p *Portfolio) EntryPrice() float64 { return p.entryPrice }

// StopPrice returns the armed stop level and whether one is armed.
func (p *Portfolio) StopPrice() (float64, bool) {
	return p.stopPrice, p.stopPrice > 0
}

// MarkToMarket values the portfolio at the given price: cash when flat,
// cash plus holdings value when long, cash minus the buy-back cost when short
// (the cash balance already holds the short sale proceeds). It never mutates
// state.
func (p *Portfolio) MarkToMarket(price float64) float64 {
	switch p.position {
	case targetLong:
		return p.cash + p.holdings*price
	case targetShort:
		return p.cash - math.Abs(p.holdings)*price
	default:
		return p.cash
	}
}

// Apply executes one action, expressed as a target direction with a size
// fraction and stop distance, against the given price. It returns a trade
// record when a position was closed, nil otherwise.
//
// A request for the already-held direction is a no-op. Any change of target
// closes the current position first (exit reason SIGNAL) and then opens the
// new one, so a reversal is two sub-operations inside one call. Size and stop
// distance are clamped to the configured bounds; a short request with
// shorting disabled leaves the state unchanged.
func (p *Portfolio) Apply(target int, size, stopDistance, price float64, barIndex int) (*domain.TradeRecord, error) {
	if !finitePositive(price) {
		return nil, fmt.Errorf("%w: %v at bar %d", ErrInvalidPrice, price, barIndex)
	}

	// A short request with shorting disabled leaves the current state
	// unchanged; it never degrades into a close.
	if target == targetShort && !p.cfg.EnableShort {
		target = p.position
	}
	size = clamp(size, 0, p.cfg.MaxPositionSize)
	stopDistance = clamp(stopDistance, 0, p.cfg.MaxStopDistance)

	if target == p.position {
		return nil, nil
	}

	var closed *domain.TradeRecord
	if p.position != targetFlat {
		closed = p.close(price, barIndex, domain.ExitSignal)
	}

	if target != targetFlat && size > 0 {
		p.open(target, size, stopDistance, price, barIndex)
	}

	return closed, nil
}

// CheckStop force-closes the open position when the price has crossed the
// armed stop in the adverse direction. It runs before any new action in the
// same step and takes priority over it.
func (p *Portfolio) CheckStop(price float64, barIndex int) (*domain.TradeRecord, error) {
	if !finitePositive(price) {
		return nil, fmt.Errorf("%w: %v at bar %d", ErrInvalidPrice, price, barIndex)
	}
	if p.stopPrice == 0 {
		return nil, nil
	}

	if (p.position == targetLong && price <= p.stopPrice) ||
		(p.position == targetShort && price >= p.stopPrice) {
		return p.close(price, barIndex, domain.ExitStopLoss), nil
	}

	return nil, nil
}

// ForceClose realizes any open position with the given exit reason. Used at
// the end of the bar series so every opened position yields a trade record.
func (p *Portfolio) ForceClose(price float64, barIndex int, reason domain.ExitReason) (*domain.TradeRecord, error) {
	if !finitePositive(price) {
		return nil, fmt.Errorf("%w: %v at bar %d", ErrInvalidPrice, price, barIndex)
	}
	if p.position == targetFlat {
		return nil, nil
	}
	return p.close(price, barIndex, reason), nil
}

func (p *Portfolio) open(target int, size, stopDistance, price float64, barIndex int) {
	available := p.cash * size
	fee := available * p.cfg.CommissionRate

	if target == targetLong {
		p.holdings = (available - fee) / price
		p.cash -= available
		if stopDistance > 0 {
			p.stopPrice = price * (1 - stopDistance)
		}
	} else {
		// Short entry credits the sale proceeds net of commission; the only
		// path where cash increases on entry.
		quantity := available / price
		p.holdings = -quantity
		p.cash += available - fee
		if stopDistance > 0 {
			p.stopPrice = price * (1 + stopDistance)
		}
	}

	p.position = target
	p.sizeFrac = size
	p.entryPrice = price
	p.entryIndex = barIndex
	p.entryFee = fee
}

func (p *Portfolio) close(price float64, barIndex int, reason domain.ExitReason) *domain.TradeRecord {
	quantity := math.Abs(p.holdings)
	exitFee := quantity * price * p.cfg.CommissionRate

	var side domain.Side
	var gross float64
	if p.position == targetLong {
		side = domain.SideLong
		gross = (price - p.entryPrice) * quantity
		p.cash += quantity*price - exitFee
	} else {
		side = domain.SideShort
		gross = (p.entryPrice - price) * quantity
		p.cash -= quantity*price + exitFee
	}

	record := &domain.TradeRecord{
		Side:        side,
		EntryIndex:  p.entryIndex,
		ExitIndex:   barIndex,
		EntryPrice:  p.entryPrice,
		ExitPrice:   price,
		Quantity:    quantity,
		GrossProfit: gross,
		Commission:  p.entryFee + exitFee,
		NetProfit:   gross - p.entryFee - exitFee,
		ExitReason:  reason,
	}
	if p.entryPrice != 0 {
		if side == domain.SideLong {
			record.ProfitPct = (price - p.entryPrice) / p.entryPrice
		} else {
			record.ProfitPct = (p.entryPrice - price) / p.entryPrice
		}
	}

	p.holdings = 0
	p.position = targetFlat
	p.sizeFrac = 0
	p.entryPrice = 0
	p.entryIndex = 0
	p.entryFee = 0
	p.stopPrice = 0

	return record
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func finitePositive(f float64) bool {
	return f > 0 && !math.IsInf(f, 1) && !math.IsNaN(f)
}
