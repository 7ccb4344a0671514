package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"backtest-api/internal/backtest"
	"backtest-api/internal/config"
	"backtest-api/internal/exchange"
	"backtest-api/internal/monitor"
	"backtest-api/internal/store"
	"backtest-api/internal/strategy"
	"backtest-api/internal/visual"
)

// App 聚合核心依赖并驱动系统生命周期。
type App struct {
	cfg      *config.Config
	logger   *zap.Logger
	store    *store.Store
	source   exchange.PageSource
	cache    *store.CachedSource
	runner   *backtest.Runner
	monitor  *monitor.Service
	renderer *visual.Renderer
}

// Option 调整 App 的构建方式。
type Option func(*options)

type options struct {
	source exchange.PageSource
}

// WithPageSource 使用给定数据源替代按配置创建的交易所客户端。
func WithPageSource(source exchange.PageSource) Option {
	return func(o *options) {
		o.source = source
	}
}

// New 创建 App 实例。
func New(cfg *config.Config, logger *zap.Logger, st *store.Store, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: 配置不能为空")
	}
	if st == nil {
		return nil, errors.New("app: 存储不能为空")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	source := o.source
	if source == nil {
		var err error
		source, err = newPageSource(cfg.Exchange, logger)
		if err != nil {
			return nil, err
		}
	}

	var cache *store.CachedSource
	if cfg.Cache.Enabled {
		cache = store.NewCachedSource(source, store.NewCandleRepository(st), logger)
		source = cache
	}

	fetcher := exchange.NewFetcher(source, cfg.Exchange.PageSize, cfg.Exchange.MaxPages, logger)
	runner, err := backtest.NewRunner(backtest.Config{
		Symbol:         cfg.Exchange.Market,
		Timeframe:      cfg.Backtest.Timeframe,
		Count:          cfg.Backtest.Count,
		InitialBalance: cfg.Backtest.InitialBalance,
		Params: strategy.Params{
			ShortWindow:         cfg.Strategy.MovingAverage.ShortWindow,
			LongWindow:          cfg.Strategy.MovingAverage.LongWindow,
			RSIPeriod:           cfg.Strategy.RSIVolatility.Period,
			VolatilityThreshold: cfg.Strategy.RSIVolatility.VolatilityThreshold,
		},
	}, fetcher, logger)
	if err != nil {
		return nil, err
	}

	monitorSvc, err := monitor.NewService(st, logger)
	if err != nil {
		return nil, err
	}

	var renderer *visual.Renderer
	if cfg.Visualization.Enabled {
		renderer = visual.NewRenderer(cfg.Visualization.OutputPath, logger)
	}

	return &App{
		cfg:      cfg,
		logger:   logger,
		store:    st,
		source:   source,
		cache:    cache,
		runner:   runner,
		monitor:  monitorSvc,
		renderer: renderer,
	}, nil
}

func newPageSource(cfg config.ExchangeConfig, logger *zap.Logger) (exchange.PageSource, error) {
	switch strings.ToLower(cfg.Driver) {
	case "binance":
		return exchange.NewBinanceSource(cfg, logger), nil
	case "ccxt", "":
		return exchange.NewClient(cfg, logger)
	default:
		return nil, fmt.Errorf("app: 不支持的数据源 %q", cfg.Driver)
	}
}

// Outcome 为一次回测及其附属产物。
type Outcome struct {
	RunID     string
	Report    backtest.Report
	Summary   backtest.Summary
	ChartPath string
}

// Backtest 执行回测，记录监控事件并在启用时输出图表。
func (a *App) Backtest(ctx context.Context, req backtest.Request) (Outcome, error) {
	runID := monitor.NewRunID()
	started := time.Now()

	report, err := a.runner.Run(ctx, req)
	if err != nil {
		if !errors.Is(err, strategy.ErrUnknownStrategy) {
			a.monitor.RecordError(ctx, runID, "回测失败", err, map[string]interface{}{
				"strategy":  string(req.Kind),
				"symbol":    req.Symbol,
				"timeframe": req.Timeframe,
			})
		}
		return Outcome{}, err
	}

	out := Outcome{
		RunID:   runID,
		Report:  report,
		Summary: backtest.Summarize(report.Result, a.cfg.Backtest.QuoteUnit),
	}

	if a.renderer != nil {
		path, renderErr := a.renderer.Render(visual.ChartInput{
			Symbol:    report.Request.Symbol,
			Strategy:  string(report.Request.Kind),
			Timeframe: report.Request.Timeframe,
			Result:    report.Result,
		})
		if renderErr != nil {
			a.logger.Warn("生成回测图表失败", zap.String("run_id", runID), zap.Error(renderErr))
		} else {
			out.ChartPath = path
		}
	}

	a.monitor.RecordRun(ctx, monitor.RunPayload{
		RunID:          runID,
		Strategy:       string(report.Request.Kind),
		Symbol:         report.Request.Symbol,
		Timeframe:      report.Request.Timeframe,
		Candles:        len(report.Candles),
		InitialValue:   report.Result.InitialValue,
		FinalValue:     report.Result.FinalValue,
		ReturnPct:      report.Result.ReturnPct,
		MaxDrawdown:    report.Metrics.MaxDrawdown,
		SharpeRatio:    report.Metrics.SharpeRatio,
		Trades:         report.Metrics.Trades,
		DurationMillis: time.Since(started).Milliseconds(),
	})

	if a.cache != nil {
		hits, misses := a.cache.Stats()
		a.logger.Debug("K线缓存统计", zap.Int64("hits", hits), zap.Int64("misses", misses))
	}

	return out, nil
}

// Defaults 返回回测默认参数。
func (a *App) Defaults() backtest.Config {
	return a.runner.Defaults()
}

// Monitor 返回监控事件服务。
func (a *App) Monitor() *monitor.Service {
	return a.monitor
}

// Run 启动 HTTP 服务并阻塞直到收到退出信号。
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("回测服务已初始化",
		zap.String("environment", a.cfg.App.Environment),
		zap.String("driver", a.cfg.Exchange.Driver),
		zap.String("market", a.cfg.Exchange.Market),
		zap.Bool("cache", a.cache != nil),
	)

	if a.cfg.App.Environment != "development" {
		gin.SetMode(gin.ReleaseMode)
	}
	server := NewServer(a, a.cfg.Server, a.logger)

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := server.Start(ctx); err != nil {
			return fmt.Errorf("HTTP 服务异常: %w", err)
		}
		return nil
	})

	if err := group.Wait(); err != nil {
		return err
	}
	a.logger.Info("系统收到退出信号，正在停止")
	return nil
}
