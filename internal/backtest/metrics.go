package backtest

import (
	"math"
	"time"

	"github.com/montanaflynn/stats"

	"backtest-api/internal/exchange"
)

// Metrics 记录回测绩效指标。
type Metrics struct {
	TotalReturn float64
	MaxDrawdown float64
	SharpeRatio float64
	Trades      int
}

func calculateMetrics(result Result, timeframe string) Metrics {
	equity := result.Values()
	if len(equity) == 0 {
		return Metrics{}
	}

	initial := equity[0]
	final := equity[len(equity)-1]
	totalReturn := 0.0
	if initial > 0 {
		totalReturn = final/initial - 1
	}

	return Metrics{
		TotalReturn: totalReturn,
		MaxDrawdown: computeDrawdown(equity),
		SharpeRatio: computeSharpe(stepReturns(equity), periodsPerYear(timeframe)),
		Trades:      len(result.Trades),
	}
}

func stepReturns(equity []float64) []float64 {
	if len(equity) < 2 {
		return nil
	}
	returns := make([]float64, 0, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		if equity[i-1] == 0 {
			continue
		}
		returns = append(returns, equity[i]/equity[i-1]-1)
	}
	return returns
}

func computeDrawdown(equity []float64) float64 {
	var peak float64
	maxDD := 0.0
	for _, v := range equity {
		if v > peak {
			peak = v
		}
		if peak <= 0 {
			continue
		}
		dd := (v - peak) / peak
		if dd < maxDD {
			maxDD = dd
		}
	}
	return math.Abs(maxDD)
}

func computeSharpe(returns []float64, annualPeriods float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	mean, err := stats.Mean(returns)
	if err != nil {
		return 0
	}
	std, err := stats.StandardDeviationSample(returns)
	if err != nil || std == 0 || math.IsNaN(std) {
		return 0
	}
	return (mean / std) * math.Sqrt(annualPeriods)
}

// periodsPerYear 按K线周期换算年化系数，无法解析时按小时线处理。
func periodsPerYear(timeframe string) float64 {
	d, ok := exchange.TimeframeDuration(timeframe)
	if !ok {
		return 24 * 365
	}
	return float64(365*24*time.Hour) / float64(d)
}
