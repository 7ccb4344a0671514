package backtest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backtest-api/internal/exchange"
	"backtest-api/internal/strategy"
)

var t0 = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

func candle(i int, close float64) exchange.Candle {
	return exchange.Candle{
		Timestamp: t0.Add(time.Duration(i) * time.Hour),
		Open:      close,
		High:      close,
		Low:       close,
		Close:     close,
		Volume:    1,
	}
}

func point(i int, close float64, signal strategy.Signal) strategy.Point {
	return strategy.Point{Candle: candle(i, close), Ready: true, Signal: signal}
}

func linearCandles(n int, from, to float64) []exchange.Candle {
	out := make([]exchange.Candle, n)
	step := (to - from) / float64(n-1)
	for i := range out {
		out[i] = candle(i, from+step*float64(i))
	}
	return out
}

func TestSimulator_InitialValueEqualsBalance(t *testing.T) {
	sim := NewSimulator(nil)
	points := []strategy.Point{
		point(0, 100, strategy.SignalBuy),
		point(1, 110, strategy.SignalSell),
	}

	result, err := sim.Run(points, 2500)
	require.NoError(t, err)
	assert.Equal(t, 2500.0, result.Portfolio[0].Value)
	assert.Equal(t, 2500.0, result.InitialValue)
	// 首根K线不交易。
	assert.Empty(t, result.Trades)
	assert.Equal(t, 2500.0, result.FinalValue)
}

func TestSimulator_BuyThenSell(t *testing.T) {
	sim := NewSimulator(nil)
	points := []strategy.Point{
		point(0, 100, strategy.SignalSell),
		point(1, 100, strategy.SignalBuy),
		point(2, 120, strategy.SignalBuy),
		point(3, 150, strategy.SignalSell),
		point(4, 90, strategy.SignalSell),
	}

	result, err := sim.Run(points, 1000)
	require.NoError(t, err)

	require.Len(t, result.Trades, 2)
	assert.Equal(t, SideBuy, result.Trades[0].Side)
	assert.Equal(t, 1, result.Trades[0].Index)
	assert.InDelta(t, 10.0, result.Trades[0].Quantity, 1e-12)
	assert.Equal(t, SideSell, result.Trades[1].Side)
	assert.Equal(t, 3, result.Trades[1].Index)

	values := result.Values()
	assert.InDelta(t, 1000.0, values[1], 1e-9)
	assert.InDelta(t, 1200.0, values[2], 1e-9)
	assert.InDelta(t, 1500.0, values[3], 1e-9)
	assert.InDelta(t, 1500.0, values[4], 1e-9)
	assert.InDelta(t, 50.0, result.ReturnPct, 1e-9)
}

func TestSimulator_RepeatedBuyDoesNotAverage(t *testing.T) {
	sim := NewSimulator(nil)
	points := []strategy.Point{
		point(0, 10, strategy.SignalBuy),
		point(1, 10, strategy.SignalBuy),
		point(2, 20, strategy.SignalBuy),
		point(3, 40, strategy.SignalBuy),
	}

	result, err := sim.Run(points, 100)
	require.NoError(t, err)
	require.Len(t, result.Trades, 1)
	assert.InDelta(t, 400.0, result.FinalValue, 1e-9)
}

func TestSimulator_CashAndQuantityAreExclusive(t *testing.T) {
	sim := NewSimulator(nil)
	signals := []strategy.Signal{
		strategy.SignalSell, strategy.SignalBuy, strategy.SignalSell, strategy.SignalSell,
		strategy.SignalBuy, strategy.SignalBuy, strategy.SignalSell, strategy.SignalBuy,
	}
	closes := []float64{50, 52, 49, 47, 51, 55, 53, 58}
	points := make([]strategy.Point, len(signals))
	for i := range signals {
		points[i] = point(i, closes[i], signals[i])
	}

	result, err := sim.Run(points, 1000)
	require.NoError(t, err)
	require.NotEmpty(t, result.Trades)

	first := result.Trades[0].Index
	for i, p := range result.Portfolio {
		assert.GreaterOrEqual(t, p.Cash, 0.0)
		assert.GreaterOrEqual(t, p.Quantity, 0.0)
		if i >= first {
			assert.True(t, (p.Cash == 0) != (p.Quantity == 0), "index %d cash=%v qty=%v", i, p.Cash, p.Quantity)
		}
	}
}

func TestSimulator_NotReadyPointsNeverTrade(t *testing.T) {
	sim := NewSimulator(nil)
	points := []strategy.Point{
		point(0, 10, strategy.SignalSell),
		{Candle: candle(1, 10), Ready: false, Signal: strategy.SignalBuy},
		point(2, 12, strategy.SignalSell),
	}

	result, err := sim.Run(points, 100)
	require.NoError(t, err)
	assert.Empty(t, result.Trades)
	assert.Equal(t, 100.0, result.FinalValue)
}

func TestSimulator_Idempotent(t *testing.T) {
	sim := NewSimulator(nil)
	s, err := strategy.New(strategy.KindMovingAverage, strategy.Params{ShortWindow: 2, LongWindow: 4})
	require.NoError(t, err)
	closes := []float64{10, 11, 9, 12, 14, 13, 9, 8, 10, 15, 16, 11}
	candles := make([]exchange.Candle, len(closes))
	for i, c := range closes {
		candles[i] = candle(i, c)
	}
	points, err := s.Annotate(candles)
	require.NoError(t, err)

	first, err := sim.Run(points, 777)
	require.NoError(t, err)
	second, err := sim.Run(points, 777)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestSimulator_InvalidPrice(t *testing.T) {
	sim := NewSimulator(nil)
	points := []strategy.Point{
		point(0, 10, strategy.SignalSell),
		point(1, 0, strategy.SignalBuy),
	}

	result, err := sim.Run(points, 100)
	require.ErrorIs(t, err, ErrInvalidPrice)
	assert.Empty(t, result.Portfolio)
}

func TestSimulator_RejectsEmptyAndBadBalance(t *testing.T) {
	sim := NewSimulator(nil)

	_, err := sim.Run(nil, 100)
	require.ErrorIs(t, err, exchange.ErrDataUnavailable)

	_, err = sim.Run([]strategy.Point{point(0, 1, strategy.SignalSell)}, 0)
	require.ErrorIs(t, err, ErrInvalidBalance)
}

func TestSimulator_MovingAverageEndToEnd(t *testing.T) {
	candles := linearCandles(20, 100, 120)
	s, err := strategy.New(strategy.KindMovingAverage, strategy.Params{ShortWindow: 5, LongWindow: 15})
	require.NoError(t, err)
	points, err := s.Annotate(candles)
	require.NoError(t, err)

	result, err := NewSimulator(nil).Run(points, 10000)
	require.NoError(t, err)

	require.Len(t, result.Trades, 1)
	buy := result.Trades[0]
	assert.Equal(t, SideBuy, buy.Side)
	assert.Equal(t, 14, buy.Index)

	want := 10000 / candles[14].Close * candles[19].Close
	assert.InDelta(t, want, result.FinalValue, 1e-9)
	assert.InDelta(t, (want-10000)/10000*100, result.ReturnPct, 1e-9)
	for i := 0; i < 14; i++ {
		assert.Equal(t, 10000.0, result.Portfolio[i].Value)
	}
}
