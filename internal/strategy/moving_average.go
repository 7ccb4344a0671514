package strategy

import (
	"fmt"
	"math"

	"backtest-api/internal/exchange"
	"backtest-api/internal/indicator"
)

// MovingAverage 为短期/长期简单均线交叉策略。
type MovingAverage struct {
	ShortWindow int
	LongWindow  int
}

// NewMovingAverage 创建均线交叉策略。
func NewMovingAverage(shortWindow, longWindow int) (*MovingAverage, error) {
	if shortWindow <= 0 || longWindow <= 0 {
		return nil, fmt.Errorf("%w: 均线窗口必须大于0 (short=%d, long=%d)", ErrInvalidParams, shortWindow, longWindow)
	}
	return &MovingAverage{ShortWindow: shortWindow, LongWindow: longWindow}, nil
}

func (m *MovingAverage) Kind() Kind { return KindMovingAverage }

// Annotate 短均线严格高于长均线时买入，否则（含相等）卖出。
func (m *MovingAverage) Annotate(candles []exchange.Candle) ([]Point, error) {
	need := max(m.ShortWindow, m.LongWindow)
	if len(candles) < need {
		return nil, fmt.Errorf("%w: 需要至少 %d 根K线，实际 %d", ErrInsufficientData, need, len(candles))
	}

	series := indicator.NewSeries(candles)
	shortMA := indicator.RollingMean(series.Close, m.ShortWindow)
	longMA := indicator.RollingMean(series.Close, m.LongWindow)

	points := make([]Point, len(candles))
	for i, candle := range candles {
		p := Point{
			Candle: candle,
			Signal: SignalSell,
			Indicators: Indicators{
				ShortMA:    shortMA[i],
				LongMA:     longMA[i],
				RSI:        math.NaN(),
				Volatility: math.NaN(),
			},
		}
		if !math.IsNaN(shortMA[i]) && !math.IsNaN(longMA[i]) {
			p.Ready = true
			if shortMA[i] > longMA[i] {
				p.Signal = SignalBuy
			}
		}
		points[i] = p
	}

	applyPositions(points)
	return points, nil
}
