package exchange

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	binance "github.com/adshao/go-binance/v2"
	"go.uber.org/zap"

	"backtest-api/internal/config"
)

const binanceMaxLimit = 1000

// BinanceSource 通过 go-binance 现货 K 线接口提供分页数据。
type BinanceSource struct {
	client *binance.Client
	symbol string
	logger *zap.Logger
	retry  retrier
}

var _ PageSource = (*BinanceSource)(nil)

// NewBinanceSource 创建 Binance 现货数据源。
func NewBinanceSource(cfg config.ExchangeConfig, logger *zap.Logger) *BinanceSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.UseSandbox {
		binance.UseTestnet = true
	}
	return &BinanceSource{
		client: binance.NewClient(cfg.APIKey, cfg.APISecret),
		symbol: cfg.Market,
		logger: logger,
		retry:  newRetrier(cfg.Retry, logger),
	}
}

// FetchPage 拉取 Until 之前的一页K线。
func (s *BinanceSource) FetchPage(ctx context.Context, req PageRequest) ([]Candle, error) {
	symbol := req.Symbol
	if symbol == "" {
		symbol = s.symbol
	}
	limit := req.Limit
	if limit <= 0 {
		limit = DefaultPageSize
	}
	limit = min(limit, binanceMaxLimit)

	var klines []*binance.Kline
	err := s.retry.do(ctx, fmt.Sprintf("klines_%s", req.Timeframe), func() error {
		svc := s.client.NewKlinesService().
			Symbol(BinanceSymbol(symbol)).
			Interval(req.Timeframe).
			Limit(limit)
		if !req.Until.IsZero() {
			svc = svc.EndTime(req.Until.UnixMilli() - 1)
		}
		result, err := svc.Do(ctx)
		if err != nil {
			return err
		}
		klines = result
		return nil
	})
	if err != nil {
		return nil, err
	}

	candles := make([]Candle, 0, len(klines))
	for _, kl := range klines {
		if kl == nil {
			continue
		}
		candle, err := convertKline(kl)
		if err != nil {
			s.logger.Warn("忽略无法解析的K线", zap.Int64("open_time", kl.OpenTime), zap.Error(err))
			continue
		}
		if !req.Until.IsZero() && !candle.Timestamp.Before(req.Until) {
			continue
		}
		candles = append(candles, candle)
	}
	return candles, nil
}

// BinanceSymbol 将 "BTC/USDT:USDT" 形式的统一符号转换为 "BTCUSDT"。
func BinanceSymbol(symbol string) string {
	s := strings.TrimSpace(symbol)
	if idx := strings.Index(s, ":"); idx >= 0 {
		s = s[:idx]
	}
	s = strings.NewReplacer("/", "", "-", "").Replace(s)
	return strings.ToUpper(s)
}

func convertKline(kl *binance.Kline) (Candle, error) {
	fields := [...]string{kl.Open, kl.High, kl.Low, kl.Close, kl.Volume}
	var values [len(fields)]float64
	for i, raw := range fields {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return Candle{}, fmt.Errorf("解析K线字段失败: %w", err)
		}
		values[i] = v
	}
	return Candle{
		Timestamp: time.UnixMilli(kl.OpenTime).UTC(),
		Open:      values[0],
		High:      values[1],
		Low:       values[2],
		Close:     values[3],
		Volume:    values[4],
	}, nil
}
