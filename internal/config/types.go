package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/multierr"
)

// Config 聚合了系统运行所需的全部配置项。
type Config struct {
	App           AppConfig           `mapstructure:"app"`
	Server        ServerConfig        `mapstructure:"server"`
	Exchange      ExchangeConfig      `mapstructure:"exchange"`
	Backtest      BacktestConfig      `mapstructure:"backtest"`
	Strategy      StrategyConfig      `mapstructure:"strategy"`
	Cache         CacheConfig         `mapstructure:"cache"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	Visualization VisualizationConfig `mapstructure:"visualization"`
}

// AppConfig 控制应用级参数。
type AppConfig struct {
	Environment string `mapstructure:"environment"`
}

// ServerConfig 描述 HTTP 服务参数。
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// ExchangeConfig 描述行情数据源。
type ExchangeConfig struct {
	Driver     string      `mapstructure:"driver"`
	Name       string      `mapstructure:"name"`
	Market     string      `mapstructure:"market"`
	APIKey     string      `mapstructure:"api_key"`
	APISecret  string      `mapstructure:"api_secret"`
	APIPass    string      `mapstructure:"api_password"`
	UseSandbox bool        `mapstructure:"use_sandbox"`
	PageSize   int         `mapstructure:"page_size"`
	MaxPages   int         `mapstructure:"max_pages"`
	Retry      RetryConfig `mapstructure:"retry"`
}

// RetryConfig 统一控制重试机制。
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	MinDelay    time.Duration `mapstructure:"min_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
}

// BacktestConfig 为回测请求提供默认值。
type BacktestConfig struct {
	Timeframe      string  `mapstructure:"timeframe"`
	Count          int     `mapstructure:"count"`
	InitialBalance float64 `mapstructure:"initial_balance"`
	QuoteUnit      string  `mapstructure:"quote_unit"`
}

// StrategyConfig 保存各策略的默认参数。
type StrategyConfig struct {
	MovingAverage MovingAverageConfig `mapstructure:"moving_average"`
	RSIVolatility RSIVolatilityConfig `mapstructure:"rsi_volatility"`
}

// MovingAverageConfig 为均线交叉策略参数。
type MovingAverageConfig struct {
	ShortWindow int `mapstructure:"short_window"`
	LongWindow  int `mapstructure:"long_window"`
}

// RSIVolatilityConfig 为 RSI + 波动率策略参数。
type RSIVolatilityConfig struct {
	Period              int     `mapstructure:"period"`
	VolatilityThreshold float64 `mapstructure:"volatility_threshold"`
}

// CacheConfig 控制K线本地缓存。
type CacheConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// DatabaseConfig 管理数据库连接。
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	InMemory        bool          `mapstructure:"in_memory"`
}

// LoggingConfig 控制日志输出。
type LoggingConfig struct {
	Level            string   `mapstructure:"level"`
	Encoding         string   `mapstructure:"encoding"`
	Development      bool     `mapstructure:"development"`
	OutputPaths      []string `mapstructure:"output_paths"`
	ErrorOutputPaths []string `mapstructure:"error_output_paths"`
}

// VisualizationConfig 控制回测图表输出。
type VisualizationConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	OutputPath string `mapstructure:"output_path"`
}

// Validate 对配置进行基本校验。
func (c *Config) Validate() error {
	var err error

	if c.App.Environment == "" {
		err = multierr.Append(err, errors.New("app.environment 不能为空"))
	}
	if c.Server.Addr == "" {
		err = multierr.Append(err, errors.New("server.addr 不能为空"))
	}
	if c.Server.ShutdownTimeout <= 0 {
		err = multierr.Append(err, errors.New("server.shutdown_timeout 必须大于0"))
	}
	switch strings.ToLower(c.Exchange.Driver) {
	case "ccxt", "binance":
	default:
		err = multierr.Append(err, fmt.Errorf("exchange.driver 不支持: %q", c.Exchange.Driver))
	}
	if c.Exchange.Market == "" {
		err = multierr.Append(err, errors.New("exchange.market 不能为空"))
	}
	if c.Exchange.PageSize <= 0 {
		err = multierr.Append(err, errors.New("exchange.page_size 必须大于0"))
	}
	if c.Exchange.MaxPages <= 0 {
		err = multierr.Append(err, errors.New("exchange.max_pages 必须大于0"))
	}
	if c.Exchange.Retry.MaxAttempts <= 0 {
		err = multierr.Append(err, errors.New("exchange.retry.max_attempts 必须大于0"))
	}
	if c.Exchange.Retry.MinDelay <= 0 || c.Exchange.Retry.MaxDelay <= 0 {
		err = multierr.Append(err, errors.New("exchange.retry.delay 必须为正"))
	}
	if c.Exchange.Retry.MinDelay > c.Exchange.Retry.MaxDelay {
		err = multierr.Append(err, errors.New("exchange.retry.min_delay 不能大于 max_delay"))
	}
	if c.Backtest.Timeframe == "" {
		err = multierr.Append(err, errors.New("backtest.timeframe 不能为空"))
	}
	if c.Backtest.Count <= 0 {
		err = multierr.Append(err, errors.New("backtest.count 必须大于0"))
	}
	if c.Backtest.InitialBalance <= 0 {
		err = multierr.Append(err, errors.New("backtest.initial_balance 必须大于0"))
	}
	if c.Strategy.MovingAverage.ShortWindow <= 0 || c.Strategy.MovingAverage.LongWindow <= 0 {
		err = multierr.Append(err, errors.New("strategy.moving_average 窗口必须大于0"))
	}
	if c.Strategy.RSIVolatility.Period <= 0 {
		err = multierr.Append(err, errors.New("strategy.rsi_volatility.period 必须大于0"))
	}
	if c.Strategy.RSIVolatility.VolatilityThreshold < 0 {
		err = multierr.Append(err, errors.New("strategy.rsi_volatility.volatility_threshold 不能为负"))
	}
	if c.Database.Path == "" && !c.Database.InMemory {
		err = multierr.Append(err, errors.New("database.path 不能为空"))
	}
	if c.Database.MaxOpenConns <= 0 {
		err = multierr.Append(err, errors.New("database.max_open_conns 必须大于0"))
	}
	if c.Database.MaxIdleConns < 0 {
		err = multierr.Append(err, errors.New("database.max_idle_conns 不能为负"))
	}
	if c.Database.ConnMaxLifetime < 0 {
		err = multierr.Append(err, errors.New("database.conn_max_lifetime 不能为负"))
	}
	if c.Logging.Level == "" {
		err = multierr.Append(err, errors.New("logging.level 不能为空"))
	}
	if c.Logging.Encoding == "" {
		err = multierr.Append(err, errors.New("logging.encoding 不能为空"))
	}
	if len(c.Logging.OutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.output_paths 至少包含一个输出目标"))
	}
	if len(c.Logging.ErrorOutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.error_output_paths 至少包含一个输出目标"))
	}
	if c.Visualization.Enabled && c.Visualization.OutputPath == "" {
		err = multierr.Append(err, errors.New("visualization.output_path 不能为空"))
	}

	if err != nil {
		return fmt.Errorf("配置校验失败: %w", err)
	}

	return nil
}
