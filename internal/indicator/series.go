package indicator

import (
	"math"

	"backtest-api/internal/exchange"
)

// Series 将K线数据拆分为策略用到的价格列。
type Series struct {
	High  []float64
	Low   []float64
	Close []float64
}

// NewSeries 从交易所K线创建 Series，保持输入顺序。
func NewSeries(candles []exchange.Candle) Series {
	length := len(candles)
	series := Series{
		High:  make([]float64, length),
		Low:   make([]float64, length),
		Close: make([]float64, length),
	}

	for i, candle := range candles {
		series.High[i] = candle.High
		series.Low[i] = candle.Low
		series.Close[i] = candle.Close
	}

	return series
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
