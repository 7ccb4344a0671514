package exchange

import (
	"context"
	"fmt"
	"sync"
	"time"

	ccxt "github.com/ccxt/ccxt/go/v4"
	"go.uber.org/zap"

	"backtest-api/internal/config"
)

// Client 基于 ccxt 拉取 Binance USDⓈ-M 的分页K线。
type Client struct {
	cfg      config.ExchangeConfig
	logger   *zap.Logger
	exchange *ccxt.Binanceusdm
	symbol   string
	retry    retrier

	marketsMu     sync.Mutex
	marketsLoaded bool
}

var _ PageSource = (*Client)(nil)

// NewClient 构造 ccxt 客户端，cfg.Market 作为请求未指定交易对时的默认值。
func NewClient(cfg config.ExchangeConfig, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	userConfig := map[string]interface{}{
		"enableRateLimit": true,
		"options": map[string]interface{}{
			"adjustForTimeDifference": true,
			"defaultType":             "future",
		},
	}

	if cfg.APIKey != "" {
		userConfig["apiKey"] = cfg.APIKey
	}
	if cfg.APISecret != "" {
		userConfig["secret"] = cfg.APISecret
	}
	if cfg.APIPass != "" {
		userConfig["password"] = cfg.APIPass
	}

	ex := ccxt.NewBinanceusdm(userConfig)
	if cfg.UseSandbox {
		ex.SetSandboxMode(true)
	}

	return &Client{
		cfg:      cfg,
		logger:   logger,
		exchange: ex,
		symbol:   cfg.Market,
		retry:    newRetrier(cfg.Retry, logger),
	}, nil
}

// FetchPage 拉取 Until 之前的一页K线，按交易所返回顺序给出。
func (c *Client) FetchPage(ctx context.Context, req PageRequest) ([]Candle, error) {
	symbol := req.Symbol
	if symbol == "" {
		symbol = c.symbol
	}
	limit := int64(req.Limit)
	if limit <= 0 {
		limit = DefaultPageSize
	}

	var raw []ccxt.OHLCV

	err := c.retry.do(ctx, fmt.Sprintf("fetch_ohlcv_%s", req.Timeframe), func() error {
		if err := c.ensureMarketsLoaded(ctx); err != nil {
			return err
		}

		var (
			result []ccxt.OHLCV
			err    error
		)
		if req.Until.IsZero() {
			result, err = c.exchange.FetchOHLCV(
				symbol,
				ccxt.WithFetchOHLCVTimeframe(req.Timeframe),
				ccxt.WithFetchOHLCVLimit(limit),
			)
		} else {
			// until 为闭区间，减 1ms 保证严格早于游标。
			result, err = c.exchange.FetchOHLCV(
				symbol,
				ccxt.WithFetchOHLCVTimeframe(req.Timeframe),
				ccxt.WithFetchOHLCVLimit(limit),
				ccxt.WithFetchOHLCVParams(map[string]interface{}{
					"until": req.Until.UnixMilli() - 1,
				}),
			)
		}
		if err != nil {
			return err
		}

		raw = result
		return nil
	})
	if err != nil {
		return nil, err
	}

	candles := make([]Candle, 0, len(raw))
	for _, item := range raw {
		ts := time.UnixMilli(item.Timestamp).UTC()
		if !req.Until.IsZero() && !ts.Before(req.Until) {
			continue
		}
		candles = append(candles, Candle{
			Timestamp: ts,
			Open:      item.Open,
			High:      item.High,
			Low:       item.Low,
			Close:     item.Close,
			Volume:    item.Volume,
		})
	}

	return candles, nil
}

func (c *Client) ensureMarketsLoaded(ctx context.Context) error {
	c.marketsMu.Lock()
	defer c.marketsMu.Unlock()

	if c.marketsLoaded {
		return nil
	}

	loadErr := c.retry.do(ctx, "load_markets", func() error {
		_, err := c.exchange.LoadMarkets()
		return err
	})
	if loadErr != nil {
		return loadErr
	}

	c.marketsLoaded = true
	c.logger.Info("已完成市场元数据加载",
		zap.String("exchange", c.cfg.Name),
		zap.String("symbol", c.symbol),
	)
	return nil
}
