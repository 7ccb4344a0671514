package store

import (
	"context"
	"fmt"
	"time"

	"backtest-api/internal/exchange"
)

// CandleRepository 读写本地缓存的K线。
type CandleRepository struct {
	store *Store
}

// NewCandleRepository 创建K线仓库。
func NewCandleRepository(store *Store) *CandleRepository {
	return &CandleRepository{store: store}
}

// Upsert 以 (symbol, timeframe, ts) 为键写入或覆盖K线。
func (r *CandleRepository) Upsert(ctx context.Context, symbol, timeframe string, candles []exchange.Candle) error {
	if len(candles) == 0 {
		return nil
	}

	tx, err := r.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("开启事务失败: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO candles (symbol, timeframe, ts, open, high, low, close, volume)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(symbol, timeframe, ts) DO UPDATE SET
	open = excluded.open,
	high = excluded.high,
	low = excluded.low,
	close = excluded.close,
	volume = excluded.volume`)
	if err != nil {
		return fmt.Errorf("准备写入语句失败: %w", err)
	}
	defer stmt.Close()

	for _, c := range candles {
		if _, err := stmt.ExecContext(ctx,
			symbol, timeframe, c.Timestamp.UnixMilli(),
			c.Open, c.High, c.Low, c.Close, c.Volume,
		); err != nil {
			return fmt.Errorf("写入K线失败: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("提交K线失败: %w", err)
	}
	return nil
}

// Before 返回 until 之前最近的 limit 根K线，按时间升序。
func (r *CandleRepository) Before(ctx context.Context, symbol, timeframe string, until time.Time, limit int) ([]exchange.Candle, error) {
	rows, err := r.store.db.QueryContext(ctx, `
SELECT ts, open, high, low, close, volume FROM candles
WHERE symbol = ? AND timeframe = ? AND ts < ?
ORDER BY ts DESC LIMIT ?`,
		symbol, timeframe, until.UnixMilli(), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("查询K线缓存失败: %w", err)
	}
	defer rows.Close()

	candles := make([]exchange.Candle, 0, limit)
	for rows.Next() {
		var (
			ts int64
			c  exchange.Candle
		)
		if err := rows.Scan(&ts, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("解析K线缓存失败: %w", err)
		}
		c.Timestamp = time.UnixMilli(ts).UTC()
		candles = append(candles, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("读取K线缓存失败: %w", err)
	}

	for i, j := 0, len(candles)-1; i < j; i, j = i+1, j-1 {
		candles[i], candles[j] = candles[j], candles[i]
	}
	return candles, nil
}
