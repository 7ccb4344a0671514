package exchange

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func hourly(i int, close float64) Candle {
	return Candle{
		Timestamp: baseTime.Add(time.Duration(i) * time.Hour),
		Open:      close,
		High:      close + 1,
		Low:       close - 1,
		Close:     close,
		Volume:    10,
	}
}

// fakeHistory 模拟一个持有 [0, total) 小时K线、按游标向前分页的数据源。
type fakeHistory struct {
	total    int
	requests []PageRequest
	reverse  bool
}

func (f *fakeHistory) FetchPage(_ context.Context, req PageRequest) ([]Candle, error) {
	f.requests = append(f.requests, req)
	end := f.total
	if !req.Until.IsZero() {
		end = int(req.Until.Sub(baseTime) / time.Hour)
	}
	start := max(end-req.Limit, 0)
	out := make([]Candle, 0, end-start)
	for i := start; i < end; i++ {
		out = append(out, hourly(i, float64(100+i)))
	}
	if f.reverse {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return out, nil
}

func assertStrictlyAscending(t *testing.T, candles []Candle) {
	t.Helper()
	for i := 1; i < len(candles); i++ {
		require.True(t, candles[i].Timestamp.After(candles[i-1].Timestamp),
			"candle %d not after candle %d", i, i-1)
	}
}

func TestFetcher_PagesBackwardUntilCount(t *testing.T) {
	src := &fakeHistory{total: 1000}
	f := NewFetcher(src, 200, 0, nil)

	candles, err := f.Fetch(context.Background(), FetchRequest{Symbol: "BTC/USDT", Timeframe: "1h", Count: 450})
	require.NoError(t, err)

	require.Len(t, candles, 450)
	assertStrictlyAscending(t, candles)
	assert.Equal(t, hourly(550, 0).Timestamp, candles[0].Timestamp)
	assert.Equal(t, hourly(999, 0).Timestamp, candles[len(candles)-1].Timestamp)

	require.Len(t, src.requests, 3)
	assert.True(t, src.requests[0].Until.IsZero())
	assert.Equal(t, 200, src.requests[0].Limit)
	assert.Equal(t, hourly(800, 0).Timestamp, src.requests[1].Until)
	assert.Equal(t, hourly(600, 0).Timestamp, src.requests[2].Until)
	assert.Equal(t, 50, src.requests[2].Limit)
}

func TestFetcher_StopsWhenHistoryExhausted(t *testing.T) {
	src := &fakeHistory{total: 250}
	f := NewFetcher(src, 200, 0, nil)

	candles, err := f.Fetch(context.Background(), FetchRequest{Symbol: "BTC/USDT", Timeframe: "1h", Count: 1000})
	require.NoError(t, err)

	assert.Len(t, candles, 250)
	assertStrictlyAscending(t, candles)
	// 第三次请求返回空页后结束。
	assert.Len(t, src.requests, 3)
}

func TestFetcher_SortsOutOfOrderPages(t *testing.T) {
	src := &fakeHistory{total: 300, reverse: true}
	f := NewFetcher(src, 100, 0, nil)

	candles, err := f.Fetch(context.Background(), FetchRequest{Symbol: "BTC/USDT", Timeframe: "1h", Count: 300})
	require.NoError(t, err)

	require.Len(t, candles, 300)
	assertStrictlyAscending(t, candles)
	assert.Equal(t, 100.0, candles[0].Close)
	assert.Equal(t, 399.0, candles[299].Close)
}

func TestFetcher_DeduplicatesOverlappingPages(t *testing.T) {
	calls := 0
	src := PageSourceFunc(func(_ context.Context, req PageRequest) ([]Candle, error) {
		calls++
		switch calls {
		case 1:
			return []Candle{hourly(7, 7), hourly(5, 5), hourly(6, 6)}, nil
		case 2:
			// 上游游标包含边界，返回一根重复K线。
			return []Candle{hourly(5, 55), hourly(3, 3), hourly(4, 4)}, nil
		default:
			return nil, nil
		}
	})
	f := NewFetcher(src, 3, 0, nil)

	candles, err := f.Fetch(context.Background(), FetchRequest{Symbol: "X", Timeframe: "1h", Count: 10})
	require.NoError(t, err)

	require.Len(t, candles, 5)
	assertStrictlyAscending(t, candles)
	assert.Equal(t, 5.0, candles[2].Close, "keeps the first-seen candle")
}

func TestFetcher_FirstEmptyPageIsDataUnavailable(t *testing.T) {
	src := PageSourceFunc(func(context.Context, PageRequest) ([]Candle, error) { return nil, nil })
	f := NewFetcher(src, 200, 0, nil)

	_, err := f.Fetch(context.Background(), FetchRequest{Symbol: "X", Timeframe: "1h", Count: 10})
	require.ErrorIs(t, err, ErrDataUnavailable)
}

func TestFetcher_StopsOnStalledCursor(t *testing.T) {
	calls := 0
	src := PageSourceFunc(func(context.Context, PageRequest) ([]Candle, error) {
		calls++
		return []Candle{hourly(1, 1), hourly(2, 2)}, nil
	})
	f := NewFetcher(src, 2, 0, nil)

	candles, err := f.Fetch(context.Background(), FetchRequest{Symbol: "X", Timeframe: "1h", Count: 10})
	require.NoError(t, err)
	assert.Len(t, candles, 2)
	assert.Equal(t, 2, calls)
}

func TestFetcher_BoundsPageCount(t *testing.T) {
	src := &fakeHistory{total: 10000}
	f := NewFetcher(src, 10, 3, nil)

	candles, err := f.Fetch(context.Background(), FetchRequest{Symbol: "X", Timeframe: "1h", Count: 500})
	require.NoError(t, err)
	assert.Len(t, candles, 30)
	assert.Len(t, src.requests, 3)
}

func TestFetcher_PropagatesSourceError(t *testing.T) {
	boom := errors.New("boom")
	src := PageSourceFunc(func(context.Context, PageRequest) ([]Candle, error) { return nil, boom })
	f := NewFetcher(src, 200, 0, nil)

	_, err := f.Fetch(context.Background(), FetchRequest{Symbol: "X", Timeframe: "1h", Count: 10})
	require.ErrorIs(t, err, boom)
}

func TestFetcher_RejectsInvalidRequest(t *testing.T) {
	f := NewFetcher(&fakeHistory{total: 10}, 200, 0, nil)

	for _, req := range []FetchRequest{
		{Symbol: "", Timeframe: "1h", Count: 1},
		{Symbol: "X", Timeframe: "", Count: 1},
		{Symbol: "X", Timeframe: "1h", Count: 0},
	} {
		_, err := f.Fetch(context.Background(), req)
		assert.ErrorIs(t, err, ErrInvalidRequest)
	}
}

func TestTimeframeDuration(t *testing.T) {
	cases := map[string]time.Duration{
		"1m":  time.Minute,
		"15m": 15 * time.Minute,
		"4h":  4 * time.Hour,
		"1d":  24 * time.Hour,
		"1w":  7 * 24 * time.Hour,
	}
	for tf, want := range cases {
		got, ok := TimeframeDuration(tf)
		require.True(t, ok, tf)
		assert.Equal(t, want, got, tf)
	}

	for _, bad := range []string{"", "h", "0h", "5x", "minute60"} {
		_, ok := TimeframeDuration(bad)
		assert.False(t, ok, bad)
	}
}

func TestBinanceSymbol(t *testing.T) {
	assert.Equal(t, "BTCUSDT", BinanceSymbol("BTC/USDT:USDT"))
	assert.Equal(t, "ETHUSDT", BinanceSymbol("eth/usdt"))
	assert.Equal(t, "BTCUSDT", BinanceSymbol("BTCUSDT"))
}
