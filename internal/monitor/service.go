package monitor

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"backtest-api/internal/store"
)

const defaultListLimit = 100

const schema = `
CREATE TABLE IF NOT EXISTS monitor_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT NOT NULL DEFAULT '',
	event_type TEXT NOT NULL,
	payload TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_monitor_events_type ON monitor_events(event_type);
CREATE INDEX IF NOT EXISTS idx_monitor_events_run ON monitor_events(run_id);
`

// Service 将回测运行与异常写入 monitor_events 表。
type Service struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewService 初始化监控服务，创建所需表结构。
func NewService(st *store.Store, logger *zap.Logger) (*Service, error) {
	if st == nil {
		return nil, fmt.Errorf("monitor: store 不能为空")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if _, err := st.DB().Exec(schema); err != nil {
		return nil, fmt.Errorf("monitor: 初始化表失败: %w", err)
	}
	return &Service{db: st.DB(), logger: logger}, nil
}

// Record 写入单个事件，时间戳按毫秒保存。
func (s *Service) Record(ctx context.Context, event Event) error {
	body, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("monitor: 序列化事件失败: %w", err)
	}
	ts := event.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO monitor_events (run_id, event_type, payload, created_at) VALUES (?, ?, ?, ?)`,
		event.RunID, string(event.Type), string(body), ts.UTC().UnixMilli(),
	); err != nil {
		return fmt.Errorf("monitor: 写入事件失败: %w", err)
	}
	return nil
}

// RecordRun 记录回测结果摘要，失败只告警。
func (s *Service) RecordRun(ctx context.Context, payload RunPayload) {
	event := Event{Type: EventBacktestRun, RunID: payload.RunID, Payload: payload}
	if err := s.Record(ctx, event); err != nil {
		s.logger.Warn("记录回测事件失败", zap.String("run_id", payload.RunID), zap.Error(err))
	}
}

// RecordError 记录一次失败的回测。
func (s *Service) RecordError(ctx context.Context, runID, msg string, cause error, details map[string]interface{}) {
	payload := ErrorPayload{RunID: runID, Message: msg, Context: details}
	if cause != nil {
		payload.Error = cause.Error()
	}
	if err := s.Record(ctx, Event{Type: EventError, RunID: runID, Payload: payload}); err != nil {
		s.logger.Warn("记录异常事件失败", zap.String("run_id", runID), zap.Error(err))
	}
}

// ListEvents 按条件返回最近的事件，新事件在前。
func (s *Service) ListEvents(ctx context.Context, q Query) ([]Event, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	var (
		where []string
		args  []interface{}
	)
	if q.Type != "" {
		where = append(where, "event_type = ?")
		args = append(args, string(q.Type))
	}
	if q.RunID != "" {
		where = append(where, "run_id = ?")
		args = append(args, q.RunID)
	}

	query := `SELECT run_id, event_type, payload, created_at FROM monitor_events`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("monitor: 查询事件失败: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			ev      Event
			typ     string
			payload string
			created int64
		)
		if err := rows.Scan(&ev.RunID, &typ, &payload, &created); err != nil {
			return nil, fmt.Errorf("monitor: 解析事件失败: %w", err)
		}
		ev.Type = EventType(typ)
		ev.Timestamp = time.UnixMilli(created).UTC()
		ev.Payload = json.RawMessage(payload)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("monitor: 读取事件失败: %w", err)
	}
	if events == nil {
		events = []Event{}
	}
	return events, nil
}

// Counts 统计各类型事件数量。
func (s *Service) Counts(ctx context.Context) (map[EventType]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT event_type, COUNT(*) FROM monitor_events GROUP BY event_type`)
	if err != nil {
		return nil, fmt.Errorf("monitor: 统计事件失败: %w", err)
	}
	defer rows.Close()

	counts := make(map[EventType]int)
	for rows.Next() {
		var (
			typ string
			n   int
		)
		if err := rows.Scan(&typ, &n); err != nil {
			return nil, fmt.Errorf("monitor: 解析统计失败: %w", err)
		}
		counts[EventType(typ)] = n
	}
	return counts, rows.Err()
}
