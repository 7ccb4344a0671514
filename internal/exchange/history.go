package exchange

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultMaxPages 限制单次拉取的分页请求数量，防止上游停滞时无限循环。
const DefaultMaxPages = 50

// PageSource 为任意支持分页 OHLCV 查询的数据源。
type PageSource interface {
	FetchPage(ctx context.Context, req PageRequest) ([]Candle, error)
}

// PageSourceFunc 允许使用函数作为数据源。
type PageSourceFunc func(ctx context.Context, req PageRequest) ([]Candle, error)

// FetchPage 实现 PageSource。
func (f PageSourceFunc) FetchPage(ctx context.Context, req PageRequest) ([]Candle, error) {
	return f(ctx, req)
}

// Fetcher 按时间向后翻页拉取历史K线。
type Fetcher struct {
	source   PageSource
	pageSize int
	maxPages int
	logger   *zap.Logger
}

// NewFetcher 创建历史数据拉取器。
func NewFetcher(source PageSource, pageSize, maxPages int, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}
	return &Fetcher{
		source:   source,
		pageSize: pageSize,
		maxPages: maxPages,
		logger:   logger,
	}
}

// Fetch 拉取最多 req.Count 根K线，返回按时间升序、无重复的序列。
func (f *Fetcher) Fetch(ctx context.Context, req FetchRequest) ([]Candle, error) {
	if err := validateFetch(req); err != nil {
		return nil, err
	}

	seen := make(map[int64]struct{}, req.Count)
	var collected []Candle
	cursor := req.Until

	for page := 0; len(seen) < req.Count; page++ {
		if page >= f.maxPages {
			f.logger.Warn("分页请求次数达到上限，提前结束",
				zap.String("symbol", req.Symbol),
				zap.Int("pages", page),
				zap.Int("collected", len(seen)),
			)
			break
		}

		limit := min(f.pageSize, req.Count-len(seen))
		candles, err := f.source.FetchPage(ctx, PageRequest{
			Symbol:    req.Symbol,
			Timeframe: req.Timeframe,
			Limit:     limit,
			Until:     cursor,
		})
		if err != nil {
			return nil, fmt.Errorf("拉取第 %d 页K线失败: %w", page+1, err)
		}

		if len(candles) == 0 {
			if page == 0 {
				return nil, fmt.Errorf("%w: %s %s", ErrDataUnavailable, req.Symbol, req.Timeframe)
			}
			f.logger.Debug("历史数据已耗尽",
				zap.String("symbol", req.Symbol),
				zap.Int("pages", page),
			)
			break
		}

		fresh := make([]Candle, 0, len(candles)+len(collected))
		for _, c := range candles {
			key := c.Timestamp.UnixNano()
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			fresh = append(fresh, c)
		}

		if len(fresh) == 0 {
			f.logger.Warn("数据源未返回新的K线，停止翻页",
				zap.String("symbol", req.Symbol),
				zap.Time("cursor", cursor),
			)
			break
		}

		// 新到达的页更早，插入前部；最终顺序由 NormalizeSeries 保证。
		collected = append(fresh, collected...)
		cursor = earliest(candles)
	}

	series := NormalizeSeries(collected)
	if len(series) > req.Count {
		series = series[len(series)-req.Count:]
	}

	f.logger.Debug("历史K线拉取完成",
		zap.String("symbol", req.Symbol),
		zap.String("timeframe", req.Timeframe),
		zap.Int("requested", req.Count),
		zap.Int("returned", len(series)),
	)

	return series, nil
}

// NormalizeSeries 按时间升序排列并去除重复时间戳，保留先出现的K线。
func NormalizeSeries(candles []Candle) []Candle {
	out := make([]Candle, len(candles))
	copy(out, candles)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})

	deduped := out[:0]
	for i, c := range out {
		if i > 0 && c.Timestamp.Equal(deduped[len(deduped)-1].Timestamp) {
			continue
		}
		deduped = append(deduped, c)
	}
	return deduped
}

func validateFetch(req FetchRequest) error {
	switch {
	case strings.TrimSpace(req.Symbol) == "":
		return fmt.Errorf("%w: symbol 不能为空", ErrInvalidRequest)
	case strings.TrimSpace(req.Timeframe) == "":
		return fmt.Errorf("%w: timeframe 不能为空", ErrInvalidRequest)
	case req.Count <= 0:
		return fmt.Errorf("%w: count 必须大于0", ErrInvalidRequest)
	}
	return nil
}

func earliest(candles []Candle) time.Time {
	ts := candles[0].Timestamp
	for _, c := range candles[1:] {
		if c.Timestamp.Before(ts) {
			ts = c.Timestamp
		}
	}
	return ts
}
