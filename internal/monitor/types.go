package monitor

import (
	"time"

	"github.com/google/uuid"
)

// EventType 表示监控事件类型。
type EventType string

const (
	EventBacktestRun EventType = "backtest_run"
	EventError       EventType = "error"
)

// Event 封装通用监控事件。
type Event struct {
	Type      EventType   `json:"type"`
	RunID     string      `json:"run_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// RunPayload 记录一次回测的参数与结果摘要，不含逐笔成交。
type RunPayload struct {
	RunID          string  `json:"run_id"`
	Strategy       string  `json:"strategy"`
	Symbol         string  `json:"symbol"`
	Timeframe      string  `json:"timeframe"`
	Candles        int     `json:"candles"`
	InitialValue   float64 `json:"initial_value"`
	FinalValue     float64 `json:"final_value"`
	ReturnPct      float64 `json:"return_pct"`
	MaxDrawdown    float64 `json:"max_drawdown"`
	SharpeRatio    float64 `json:"sharpe_ratio"`
	Trades         int     `json:"trades"`
	DurationMillis int64   `json:"duration_ms"`
}

// ErrorPayload 记录异常。
type ErrorPayload struct {
	RunID   string                 `json:"run_id,omitempty"`
	Message string                 `json:"message"`
	Error   string                 `json:"error"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// Query 描述事件检索条件，零值字段不参与过滤。
type Query struct {
	Type  EventType
	RunID string
	Limit int
}

// NewRunID 生成回测运行标识。
func NewRunID() string {
	return uuid.NewString()
}
