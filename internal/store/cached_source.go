package store

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"backtest-api/internal/exchange"
)

// CachedSource 在上游数据源之前加一层 SQLite K线缓存。
// 只有带游标的历史分页才会命中缓存，最新一页总是访问上游。
type CachedSource struct {
	upstream exchange.PageSource
	repo     *CandleRepository
	logger   *zap.Logger

	hits   atomic.Int64
	misses atomic.Int64
}

var _ exchange.PageSource = (*CachedSource)(nil)

// NewCachedSource 创建带缓存的数据源。
func NewCachedSource(upstream exchange.PageSource, repo *CandleRepository, logger *zap.Logger) *CachedSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedSource{upstream: upstream, repo: repo, logger: logger}
}

// FetchPage 实现 exchange.PageSource。
func (s *CachedSource) FetchPage(ctx context.Context, req exchange.PageRequest) ([]exchange.Candle, error) {
	if cached, ok := s.lookup(ctx, req); ok {
		s.hits.Add(1)
		return cached, nil
	}
	s.misses.Add(1)

	candles, err := s.upstream.FetchPage(ctx, req)
	if err != nil {
		return nil, err
	}

	if err := s.repo.Upsert(ctx, req.Symbol, req.Timeframe, candles); err != nil {
		s.logger.Warn("写入K线缓存失败",
			zap.String("symbol", req.Symbol),
			zap.String("timeframe", req.Timeframe),
			zap.Error(err),
		)
	}
	return candles, nil
}

// Stats 返回缓存命中与未命中次数。
func (s *CachedSource) Stats() (hits, misses int64) {
	return s.hits.Load(), s.misses.Load()
}

func (s *CachedSource) lookup(ctx context.Context, req exchange.PageRequest) ([]exchange.Candle, bool) {
	if req.Until.IsZero() || req.Limit <= 0 {
		return nil, false
	}
	step, ok := exchange.TimeframeDuration(req.Timeframe)
	if !ok {
		return nil, false
	}

	cached, err := s.repo.Before(ctx, req.Symbol, req.Timeframe, req.Until, req.Limit)
	if err != nil {
		s.logger.Warn("读取K线缓存失败", zap.Error(err))
		return nil, false
	}
	if !contiguous(cached, req.Limit, req.Until, step) {
		return nil, false
	}
	return cached, true
}

// contiguous 判断缓存是否为紧邻 until 之前、无缺口的 limit 根K线。
func contiguous(candles []exchange.Candle, limit int, until time.Time, step time.Duration) bool {
	if len(candles) != limit {
		return false
	}
	if !candles[len(candles)-1].Timestamp.Add(step).Equal(until) {
		return false
	}
	for i := 1; i < len(candles); i++ {
		if candles[i].Timestamp.Sub(candles[i-1].Timestamp) != step {
			return false
		}
	}
	return true
}
