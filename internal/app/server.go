package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"backtest-api/internal/backtest"
	"backtest-api/internal/config"
	"backtest-api/internal/exchange"
	"backtest-api/internal/monitor"
	"backtest-api/internal/strategy"
)

const (
	defaultEventLimit = 200
	maxEventLimit     = 1000
)

// 错误码。
const (
	codeDataUnavailable  = "data_unavailable"
	codeInsufficientData = "insufficient_data"
	codeInvalidPrice     = "invalid_price"
	codeInvalidRequest   = "invalid_request"
	codeInternal         = "internal_error"
)

// Server 提供回测 HTTP 接口。
type Server struct {
	app    *App
	cfg    config.ServerConfig
	logger *zap.Logger
	router *gin.Engine
}

type backtestResponse struct {
	backtest.Summary
	Strategy             string `json:"strategy,omitempty"`
	VisualizationSavedAt string `json:"visualization_saved_at,omitempty"`
}

// NewServer 构建 HTTP 服务并注册路由。
func NewServer(app *App, cfg config.ServerConfig, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger))

	s := &Server{
		app:    app,
		cfg:    cfg,
		logger: logger,
		router: router,
	}
	s.registerRoutes()
	return s
}

// Handler 返回路由处理器。
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) registerRoutes() {
	s.router.GET("/", s.handleRoot)
	s.router.GET("/hello/:name", s.handleHello)
	s.router.GET("/backtest", s.handleDefaultBacktest)
	s.router.GET("/backtest/:strategy", s.handleNamedBacktest)
	s.router.GET("/events", s.handleEvents)
	s.router.GET("/events/stats", s.handleEventStats)
}

// Start 监听端口，ctx 结束时优雅关闭。
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	s.logger.Info("HTTP 服务已启动", zap.String("addr", s.cfg.Addr))

	select {
	case <-ctx.Done():
		timeout := s.cfg.ShutdownTimeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		shCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := srv.Shutdown(shCtx); err != nil {
			s.logger.Warn("关闭 HTTP 服务失败", zap.Error(err))
		}
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "Hello World"})
}

func (s *Server) handleHello(c *gin.Context) {
	name := c.Param("name")
	s.logger.Debug("收到问候请求", zap.String("name", name))
	c.JSON(http.StatusOK, gin.H{"message": fmt.Sprintf("Hello %s", name)})
}

func (s *Server) handleDefaultBacktest(c *gin.Context) {
	req, err := s.parseRequest(c, strategy.KindMovingAverage)
	if err != nil {
		s.writeError(c, err)
		return
	}
	out, err := s.app.Backtest(c.Request.Context(), req)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, backtestResponse{Summary: out.Summary})
}

func (s *Server) handleNamedBacktest(c *gin.Context) {
	kind, err := strategy.ParseKind(c.Param("strategy"))
	if err != nil {
		// 未知策略返回 200 与错误描述，兼容既有调用方。
		c.JSON(http.StatusOK, gin.H{"error": "Invalid strategy name"})
		return
	}
	req, err := s.parseRequest(c, kind)
	if err != nil {
		s.writeError(c, err)
		return
	}
	out, err := s.app.Backtest(c.Request.Context(), req)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, backtestResponse{
		Summary:              out.Summary,
		Strategy:             string(kind),
		VisualizationSavedAt: out.ChartPath,
	})
}

func (s *Server) handleEvents(c *gin.Context) {
	q := monitor.Query{
		Limit: defaultEventLimit,
		RunID: strings.TrimSpace(c.Query("run_id")),
	}
	if qs := c.Query("limit"); qs != "" {
		if v, err := strconv.Atoi(qs); err == nil && v > 0 {
			q.Limit = min(v, maxEventLimit)
		}
	}
	if typ := strings.TrimSpace(c.Query("type")); typ != "" {
		q.Type = monitor.EventType(strings.ToLower(typ))
	}

	events, err := s.app.Monitor().ListEvents(c.Request.Context(), q)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, events)
}

func (s *Server) handleEventStats(c *gin.Context) {
	counts, err := s.app.Monitor().Counts(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, counts)
}

// parseRequest 读取查询参数覆盖默认回测参数。
func (s *Server) parseRequest(c *gin.Context, kind strategy.Kind) (backtest.Request, error) {
	defaults := s.app.Defaults()
	params := defaults.Params
	req := backtest.Request{
		Kind:      kind,
		Symbol:    strings.TrimSpace(c.Query("symbol")),
		Timeframe: strings.TrimSpace(c.Query("timeframe")),
	}

	if req.Timeframe != "" {
		if _, ok := exchange.TimeframeDuration(req.Timeframe); !ok {
			return backtest.Request{}, fmt.Errorf("%w: timeframe %q", exchange.ErrInvalidRequest, req.Timeframe)
		}
	}

	var err error
	if req.Count, err = queryInt(c, "count", 0); err != nil {
		return backtest.Request{}, err
	}
	if c.Query("count") != "" && req.Count <= 0 {
		return backtest.Request{}, fmt.Errorf("%w: count 必须大于0", exchange.ErrInvalidRequest)
	}
	if req.InitialBalance, err = queryFloat(c, "initial_balance", 0); err != nil {
		return backtest.Request{}, err
	}
	if c.Query("initial_balance") != "" && req.InitialBalance <= 0 {
		return backtest.Request{}, fmt.Errorf("%w: initial_balance 必须大于0", backtest.ErrInvalidBalance)
	}
	if params.ShortWindow, err = queryInt(c, "short_window", params.ShortWindow); err != nil {
		return backtest.Request{}, err
	}
	if params.LongWindow, err = queryInt(c, "long_window", params.LongWindow); err != nil {
		return backtest.Request{}, err
	}
	if params.RSIPeriod, err = queryInt(c, "rsi_period", params.RSIPeriod); err != nil {
		return backtest.Request{}, err
	}
	if params.VolatilityThreshold, err = queryFloat(c, "volatility_threshold", params.VolatilityThreshold); err != nil {
		return backtest.Request{}, err
	}
	req.Params = &params

	if raw := strings.TrimSpace(c.Query("until")); raw != "" {
		until, parseErr := parseUntil(raw)
		if parseErr != nil {
			return backtest.Request{}, parseErr
		}
		req.Until = until
	}
	return req, nil
}

func queryInt(c *gin.Context, key string, fallback int) (int, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q 不是整数", exchange.ErrInvalidRequest, key, raw)
	}
	return v, nil
}

func queryFloat(c *gin.Context, key string, fallback float64) (float64, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q 不是数字", exchange.ErrInvalidRequest, key, raw)
	}
	return v, nil
}

// parseUntil 接受毫秒时间戳或 RFC3339 时间。
func parseUntil(raw string) (time.Time, error) {
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: until=%q", exchange.ErrInvalidRequest, raw)
	}
	return ts.UTC(), nil
}

func (s *Server) writeError(c *gin.Context, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("请求处理失败", zap.String("path", c.FullPath()), zap.Error(err))
	} else {
		s.logger.Warn("请求处理失败", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(status, gin.H{"error": code, "message": err.Error()})
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, exchange.ErrDataUnavailable):
		return http.StatusBadGateway, codeDataUnavailable
	case errors.Is(err, strategy.ErrInsufficientData):
		return http.StatusUnprocessableEntity, codeInsufficientData
	case errors.Is(err, backtest.ErrInvalidPrice):
		return http.StatusUnprocessableEntity, codeInvalidPrice
	case errors.Is(err, exchange.ErrInvalidRequest),
		errors.Is(err, strategy.ErrInvalidParams),
		errors.Is(err, backtest.ErrInvalidBalance):
		return http.StatusUnprocessableEntity, codeInvalidRequest
	default:
		return http.StatusInternalServerError, codeInternal
	}
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("HTTP 请求",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}
