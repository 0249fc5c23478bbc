package engine

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solquant/soltrader/internal/domain"
)

func testConfig() Config {
	return Config{
		InitialCapital:     10_000,
		CommissionRate:     0.001,
		WindowSize:         10,
		MaxPositionSize:    1.0,
		EnableShort:        true,
		MaxStopDistance:    0.2,
		TruncationFraction: 0.5,
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero capital", func(c *Config) { c.InitialCapital = 0 }},
		{"negative commission", func(c *Config) { c.CommissionRate = -0.01 }},
		{"commission of one", func(c *Config) { c.CommissionRate = 1 }},
		{"window too small", func(c *Config) { c.WindowSize = 1 }},
		{"zero max size", func(c *Config) { c.MaxPositionSize = 0 }},
		{"max size above one", func(c *Config) { c.MaxPositionSize = 1.5 }},
		{"stop distance of one", func(c *Config) { c.MaxStopDistance = 1 }},
		{"truncation of one", func(c *Config) { c.TruncationFraction = 1 }},
	}

	require.NoError(t, testConfig().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestRoundTripWithoutCommission(t *testing.T) {
	cfg := testConfig()
	cfg.CommissionRate = 0
	p, err := NewPortfolio(cfg)
	require.NoError(t, err)

	trade, err := p.Apply(targetLong, 1.0, 0, 100, 0)
	require.NoError(t, err)
	assert.Nil(t, trade)
	assert.Equal(t, targetLong, p.Direction())
	assert.InDelta(t, 100.0, p.Holdings(), 1e-9)
	assert.InDelta(t, 0.0, p.Cash(), 1e-9)

	trade, err = p.Apply(targetFlat, 0, 0, 100, 1)
	require.NoError(t, err)
	require.NotNil(t, trade)
	assert.InDelta(t, 0.0, trade.NetProfit, 1e-9)
	assert.InDelta(t, 10_000.0, p.Cash(), 1e-9)
	assert.Equal(t, targetFlat, p.Direction())
}

func TestLongTradeAccounting(t *testing.T) {
	p, err := NewPortfolio(testConfig())
	require.NoError(t, err)

	_, err = p.Apply(targetLong, 1.0, 0, 100, 0)
	require.NoError(t, err)
	assert.InDelta(t, 99.9, p.Holdings(), 1e-9)
	assert.InDelta(t, 0.0, p.Cash(), 1e-9)

	trade, err := p.Apply(targetFlat, 0, 0, 110, 5)
	require.NoError(t, err)
	require.NotNil(t, trade)

	assert.Equal(t, domain.SideLong, trade.Side)
	assert.Equal(t, domain.ExitSignal, trade.ExitReason)
	assert.Equal(t, 0, trade.EntryIndex)
	assert.Equal(t, 5, trade.ExitIndex)
	assert.InDelta(t, 99.9, trade.Quantity, 1e-9)
	assert.InDelta(t, 999.0, trade.GrossProfit, 1e-9)
	assert.InDelta(t, 10+10.989, trade.Commission, 1e-9)
	assert.InDelta(t, 978.011, trade.NetProfit, 1e-9)
	assert.InDelta(t, 0.1, trade.ProfitPct, 1e-9)
	assert.True(t, trade.Won())

	assert.InDelta(t, 10_978.011, p.Cash(), 1e-9)
	assert.InDelta(t, 10_978.011, p.MarkToMarket(110), 1e-9)
}

func TestShortStopLoss(t *testing.T) {
	p, err := NewPortfolio(testConfig())
	require.NoError(t, err)

	_, err = p.Apply(targetShort, 0.5, 0.05, 100, 0)
	require.NoError(t, err)
	assert.InDelta(t, -50.0, p.Holdings(), 1e-9)
	assert.InDelta(t, 14_995.0, p.Cash(), 1e-9)
	stop, armed := p.StopPrice()
	require.True(t, armed)
	assert.InDelta(t, 105.0, stop, 1e-9)

	// Price still below the stop: nothing fires.
	trade, err := p.CheckStop(104, 1)
	require.NoError(t, err)
	assert.Nil(t, trade)

	trade, err = p.CheckStop(106, 2)
	require.NoError(t, err)
	require.NotNil(t, trade)
	assert.Equal(t, domain.SideShort, trade.Side)
	assert.Equal(t, domain.ExitStopLoss, trade.ExitReason)
	assert.InDelta(t, -300.0, trade.GrossProfit, 1e-9)
	assert.InDelta(t, -310.3, trade.NetProfit, 1e-9)
	assert.False(t, trade.Won())

	assert.Equal(t, targetFlat, p.Direction())
	assert.InDelta(t, 10_000-310.3, p.Cash(), 1e-9)
	_, armed = p.StopPrice()
	assert.False(t, armed)
}

func TestReversalClosesThenOpens(t *testing.T) {
	p, err := NewPortfolio(testConfig())
	require.NoError(t, err)

	_, err = p.Apply(targetLong, 0.5, 0, 100, 0)
	require.NoError(t, err)

	trade, err := p.Apply(targetShort, 0.5, 0, 105, 3)
	require.NoError(t, err)
	require.NotNil(t, trade)
	assert.Equal(t, domain.SideLong, trade.Side)
	assert.Equal(t, targetShort, p.Direction())
	assert.Negative(t, p.Holdings())
}

func TestShortDisabledLeavesStateUnchanged(t *testing.T) {
	cfg := testConfig()
	cfg.EnableShort = false
	p, err := NewPortfolio(cfg)
	require.NoError(t, err)

	trade, err := p.Apply(targetShort, 0.5, 0, 100, 0)
	require.NoError(t, err)
	assert.Nil(t, trade)
	assert.Equal(t, targetFlat, p.Direction())
	assert.InDelta(t, 10_000.0, p.Cash(), 1e-9)

	// An open long survives a short request untouched.
	_, err = p.Apply(targetLong, 1.0, 0, 100, 1)
	require.NoError(t, err)
	trade, err = p.Apply(targetShort, 0.5, 0, 110, 2)
	require.NoError(t, err)
	assert.Nil(t, trade)
	assert.Equal(t, targetLong, p.Direction())
}

func TestSameDirectionIsNoOp(t *testing.T) {
	p, err := NewPortfolio(testConfig())
	require.NoError(t, err)

	_, err = p.Apply(targetLong, 0.5, 0, 100, 0)
	require.NoError(t, err)
	holdings := p.Holdings()

	trade, err := p.Apply(targetLong, 1.0, 0, 110, 1)
	require.NoError(t, err)
	assert.Nil(t, trade)
	assert.Equal(t, holdings, p.Holdings())
	assert.InDelta(t, 0.5, p.SizeFraction(), 1e-9)
}

func TestClampingAndInvalidPrice(t *testing.T) {
	p, err := NewPortfolio(testConfig())
	require.NoError(t, err)

	// Oversized request clamps to the configured maximum.
	_, err = p.Apply(targetLong, 5.0, 0.9, 100, 0)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, p.SizeFraction(), 1e-9)
	stop, armed := p.StopPrice()
	require.True(t, armed)
	assert.InDelta(t, 100*(1-0.2), stop, 1e-9)

	for _, price := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		_, err = p.Apply(targetFlat, 0, 0, price, 1)
		assert.ErrorIs(t, err, ErrInvalidPrice)
	}
}

func TestForceClose(t *testing.T) {
	p, err := NewPortfolio(testConfig())
	require.NoError(t, err)

	trade, err := p.ForceClose(100, 0, domain.ExitEndOfData)
	require.NoError(t, err)
	assert.Nil(t, trade)

	_, err = p.Apply(targetLong, 1.0, 0, 100, 0)
	require.NoError(t, err)
	trade, err = p.ForceClose(102, 9, domain.ExitEndOfData)
	require.NoError(t, err)
	require.NotNil(t, trade)
	assert.Equal(t, domain.ExitEndOfData, trade.ExitReason)
	assert.Equal(t, targetFlat, p.Direction())
}

func TestMarkToMarketIdempotent(t *testing.T) {
	p, err := NewPortfolio(testConfig())
	require.NoError(t, err)

	_, err = p.Apply(targetShort, 0.5, 0, 100, 0)
	require.NoError(t, err)

	first := p.MarkToMarket(98)
	second := p.MarkToMarket(98)
	assert.Equal(t, first, second)
	assert.Equal(t, targetShort, p.Direction())

	// Short gains as the price falls.
	assert.Greater(t, p.MarkToMarket(90), p.MarkToMarket(100))
}
