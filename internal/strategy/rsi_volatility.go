package strategy

import (
	"fmt"
	"math"

	"backtest-api/internal/exchange"
	"backtest-api/internal/indicator"
)

const (
	rsiOversold   = 30
	rsiOverbought = 70
)

// RSIVolatility 在超卖且振幅足够时买入，超买时卖出。
type RSIVolatility struct {
	Period              int
	VolatilityThreshold float64
}

// NewRSIVolatility 创建 RSI + 波动率策略。
func NewRSIVolatility(period int, threshold float64) (*RSIVolatility, error) {
	if period <= 0 {
		return nil, fmt.Errorf("%w: rsi_period 必须大于0 (got %d)", ErrInvalidParams, period)
	}
	if threshold < 0 || math.IsNaN(threshold) {
		return nil, fmt.Errorf("%w: volatility_threshold 不能为负 (got %v)", ErrInvalidParams, threshold)
	}
	return &RSIVolatility{Period: period, VolatilityThreshold: threshold}, nil
}

func (r *RSIVolatility) Kind() Kind { return KindRSIVolatility }

// Annotate RSI<30 且振幅高于阈值时买入；RSI>70 时卖出；
// 介于两者之间同样记为卖出，不存在单独的持有信号。
func (r *RSIVolatility) Annotate(candles []exchange.Candle) ([]Point, error) {
	if len(candles) < r.Period {
		return nil, fmt.Errorf("%w: 需要至少 %d 根K线，实际 %d", ErrInsufficientData, r.Period, len(candles))
	}

	series := indicator.NewSeries(candles)
	rsi := indicator.RSI(series.Close, r.Period)
	volatility := indicator.Volatility(series.High, series.Low)

	points := make([]Point, len(candles))
	for i, candle := range candles {
		p := Point{
			Candle: candle,
			Signal: SignalSell,
			Indicators: Indicators{
				ShortMA:    math.NaN(),
				LongMA:     math.NaN(),
				RSI:        rsi[i],
				Volatility: volatility[i],
			},
		}
		if !math.IsNaN(rsi[i]) {
			p.Ready = true
			switch {
			case rsi[i] < rsiOversold && volatility[i] > r.VolatilityThreshold:
				p.Signal = SignalBuy
			case rsi[i] > rsiOverbought:
				p.Signal = SignalSell
			default:
				// TODO: 中性区间沿用卖出，待确认是否需要独立的持有信号。
				p.Signal = SignalSell
			}
		}
		points[i] = p
	}

	applyPositions(points)
	return points, nil
}
