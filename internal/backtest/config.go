package backtest

import (
	"time"

	"backtest-api/internal/strategy"
)

// Config 定义回测请求的默认参数。
type Config struct {
	Symbol         string          // 交易对名称
	Timeframe      string          // K线周期
	Count          int             // 拉取的K线数量
	InitialBalance float64         // 初始资金
	Params         strategy.Params // 策略默认参数
}

func (c *Config) normalize() Config {
	cfg := *c
	if cfg.Timeframe == "" {
		cfg.Timeframe = "1h"
	}
	if cfg.Count <= 0 {
		cfg.Count = 200
	}
	if cfg.InitialBalance <= 0 {
		cfg.InitialBalance = 10000
	}
	if cfg.Params == (strategy.Params{}) {
		cfg.Params = strategy.DefaultParams()
	}
	return cfg
}

// Request 描述一次回测，零值字段取 Config 中的默认值。
type Request struct {
	Symbol         string
	Timeframe      string
	Count          int
	Until          time.Time
	Kind           strategy.Kind
	Params         *strategy.Params
	InitialBalance float64
}

func (r Request) withDefaults(cfg Config) Request {
	if r.Symbol == "" {
		r.Symbol = cfg.Symbol
	}
	if r.Timeframe == "" {
		r.Timeframe = cfg.Timeframe
	}
	if r.Count <= 0 {
		r.Count = cfg.Count
	}
	if r.Kind == "" {
		r.Kind = strategy.KindMovingAverage
	}
	if r.Params == nil {
		params := cfg.Params
		r.Params = &params
	}
	if r.InitialBalance == 0 {
		r.InitialBalance = cfg.InitialBalance
	}
	return r
}
