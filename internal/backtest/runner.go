package backtest

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"backtest-api/internal/exchange"
	"backtest-api/internal/strategy"
)

// HistoryFetcher 提供按时间升序排列的历史K线。
type HistoryFetcher interface {
	Fetch(ctx context.Context, req exchange.FetchRequest) ([]exchange.Candle, error)
}

// Report 为一次完整回测的产出。
type Report struct {
	Request Request
	Candles []exchange.Candle
	Points  []strategy.Point
	Result  Result
	Metrics Metrics
}

// Runner 串联历史数据、策略与模拟器。
type Runner struct {
	cfg       Config
	fetcher   HistoryFetcher
	simulator *Simulator
	logger    *zap.Logger
}

// NewRunner 构建回测执行器。
func NewRunner(cfg Config, fetcher HistoryFetcher, logger *zap.Logger) (*Runner, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("backtest: fetcher 不能为空")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Runner{
		cfg:       cfg.normalize(),
		fetcher:   fetcher,
		simulator: NewSimulator(logger),
		logger:    logger,
	}, nil
}

// Defaults 返回归一化后的默认参数。
func (r *Runner) Defaults() Config {
	return r.cfg
}

// Run 拉取K线、生成信号并模拟交易。
func (r *Runner) Run(ctx context.Context, req Request) (Report, error) {
	req = req.withDefaults(r.cfg)

	strat, err := strategy.New(req.Kind, *req.Params)
	if err != nil {
		return Report{}, err
	}
	if req.InitialBalance <= 0 {
		return Report{}, fmt.Errorf("%w: %v", ErrInvalidBalance, req.InitialBalance)
	}

	logger := r.logger.With(
		zap.String("strategy", string(req.Kind)),
		zap.String("symbol", req.Symbol),
		zap.String("timeframe", req.Timeframe),
	)

	candles, err := r.fetcher.Fetch(ctx, exchange.FetchRequest{
		Symbol:    req.Symbol,
		Timeframe: req.Timeframe,
		Count:     req.Count,
		Until:     req.Until,
	})
	if err != nil {
		logger.Warn("拉取历史K线失败", zap.Error(err))
		return Report{}, err
	}
	logger.Debug("历史K线已就绪", zap.Int("candles", len(candles)))

	points, err := strat.Annotate(candles)
	if err != nil {
		logger.Warn("策略计算失败", zap.Error(err))
		return Report{}, err
	}

	result, err := r.simulator.Run(points, req.InitialBalance)
	if err != nil {
		logger.Warn("回测模拟失败", zap.Error(err))
		return Report{}, err
	}

	metrics := calculateMetrics(result, req.Timeframe)
	logger.Info("回测完成",
		zap.Int("candles", len(candles)),
		zap.Int("trades", metrics.Trades),
		zap.Float64("final_value", result.FinalValue),
		zap.Float64("return_pct", result.ReturnPct),
		zap.Float64("max_drawdown", metrics.MaxDrawdown),
	)

	return Report{
		Request: req,
		Candles: candles,
		Points:  points,
		Result:  result,
		Metrics: metrics,
	}, nil
}
