package backtest

import (
	"fmt"
	"math"
	"strings"

	"github.com/solquant/soltrader/internal/domain"
	"github.com/solquant/soltrader/pkg/formulas"
)

// ComputeMetrics derives the performance record of one run from its portfolio
// value history, its trade ledger and the close prices it ran over. history
// and prices must cover the same bar range so the buy-and-hold baseline is
// comparable. The computation is pure: no state, no I/O.
func ComputeMetrics(history []float64, trades []domain.TradeRecord, prices []float64, initialCapital, riskFreeRate float64, periodsPerYear int) domain.Metrics {
	m := domain.Metrics{
		InitialCapital: initialCapital,
		FinalValue:     initialCapital,
	}

	if len(history) > 0 {
		m.FinalValue = history[len(history)-1]
	}
	m.TotalProfit = m.FinalValue - initialCapital
	if initialCapital > 0 {
		m.TotalReturn = m.TotalProfit / initialCapital
	}

	steps := len(history) - 1
	if steps > 0 && m.TotalReturn > -1 {
		m.AnnualizedReturn = math.Pow(1+m.TotalReturn, float64(periodsPerYear)/float64(steps)) - 1
	}

	returns := formulas.ValueReturns(history)
	m.Volatility = formulas.StdDev(returns)
	m.AnnualizedVolatility = formulas.AnnualizedVolatility(returns, periodsPerYear)
	m.SharpeRatio = formulas.SharpeRatio(returns, riskFreeRate, periodsPerYear)
	m.SortinoRatio = formulas.SortinoRatio(returns, riskFreeRate, periodsPerYear)
	m.MaxDrawdown = formulas.MaxDrawdown(history)
	m.MaxDrawdownDuration = formulas.MaxDrawdownDuration(history)

	m.TotalTrades = len(trades)
	var grossWins, grossLosses float64
	for _, t := range trades {
		m.CompletedTrades++
		if t.Won() {
			m.WinningTrades++
			grossWins += t.NetProfit
		} else {
			m.LosingTrades++
			grossLosses += -t.NetProfit
		}
	}
	if m.CompletedTrades > 0 {
		m.WinRate = float64(m.WinningTrades) / float64(m.CompletedTrades)
		m.AvgProfit = (grossWins - grossLosses) / float64(m.CompletedTrades)
	}
	if m.WinningTrades > 0 {
		m.AvgWin = grossWins / float64(m.WinningTrades)
		if grossLosses == 0 {
			// Wins without a single loss: the factor is unbounded.
			m.ProfitFactor = math.Inf(1)
		} else {
			m.ProfitFactor = grossWins / grossLosses
		}
	}
	if m.LosingTrades > 0 {
		m.AvgLoss = grossLosses / float64(m.LosingTrades)
	}

	if len(prices) > 1 && prices[0] > 0 {
		m.BuyAndHoldReturn = (prices[len(prices)-1] - prices[0]) / prices[0]
	}
	m.Alpha = m.TotalReturn - m.BuyAndHoldReturn
	m.Outperformed = m.Alpha > 0

	return m
}

// FormatReport renders the metrics as a human-readable text block for the CLI
// and for log output.
func FormatReport(m domain.Metrics) string {
	var b strings.Builder

	line := func(format string, args ...interface{}) {
		fmt.Fprintf(&b, format+"\n", args...)
	}

	line("==================================================")
	line("BACKTEST RESULTS")
	line("==================================================")
	line("Initial capital:       %12.2f", m.InitialCapital)
	line("Final value:           %12.2f", m.FinalValue)
	line("Total profit:          %12.2f", m.TotalProfit)
	line("Total return:          %11.2f%%", m.TotalReturn*100)
	line("Annualized return:     %11.2f%%", m.AnnualizedReturn*100)
	line("")
	line("Volatility (step):     %12.4f", m.Volatility)
	line("Volatility (annual):   %12.4f", m.AnnualizedVolatility)
	line("Sharpe ratio:          %12.2f", m.SharpeRatio)
	line("Sortino ratio:         %12.2f", m.SortinoRatio)
	line("Max drawdown:          %11.2f%%", m.MaxDrawdown*100)
	line("Max drawdown duration: %9d steps", m.MaxDrawdownDuration)
	line("")
	line("Trades:                %12d", m.CompletedTrades)
	line("Winning / losing:      %6d / %d", m.WinningTrades, m.LosingTrades)
	line("Win rate:              %11.2f%%", m.WinRate*100)
	line("Profit factor:         %12.2f", m.ProfitFactor)
	line("Avg win / avg loss:    %8.2f / %.2f", m.AvgWin, m.AvgLoss)
	line("")
	line("Buy & hold return:     %11.2f%%", m.BuyAndHoldReturn*100)
	line("Alpha:                 %11.2f%%", m.Alpha*100)
	line("Outperformed baseline: %12v", m.Outperformed)
	line("==================================================")

	return b.String()
}
