package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backtest-api/internal/config"
	"backtest-api/internal/store"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	st, err := store.NewSQLite(config.DatabaseConfig{InMemory: true, MaxOpenConns: 1})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	svc, err := NewService(st, nil)
	require.NoError(t, err)
	return svc
}

func TestService_RecordAndListEvents(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	runID := NewRunID()
	svc.RecordRun(ctx, RunPayload{RunID: runID, Strategy: "moving_average", Symbol: "BTC/USDT", FinalValue: 123.45})
	svc.RecordError(ctx, "other", "拉取失败", errors.New("timeout"), map[string]interface{}{"symbol": "BTC/USDT"})

	all, err := svc.ListEvents(ctx, Query{Limit: 10})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, EventError, all[0].Type)
	assert.Equal(t, "other", all[0].RunID)
	assert.Equal(t, EventBacktestRun, all[1].Type)
	assert.False(t, all[1].Timestamp.IsZero())

	runs, err := svc.ListEvents(ctx, Query{Type: EventBacktestRun})
	require.NoError(t, err)
	require.Len(t, runs, 1)

	raw, ok := runs[0].Payload.(json.RawMessage)
	require.True(t, ok)
	var payload RunPayload
	require.NoError(t, json.Unmarshal(raw, &payload))
	assert.Equal(t, runID, payload.RunID)
	assert.Equal(t, 123.45, payload.FinalValue)
}

func TestService_FilterByRunID(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	target := NewRunID()
	svc.RecordRun(ctx, RunPayload{RunID: NewRunID()})
	svc.RecordError(ctx, target, "模拟失败", errors.New("invalid price"), nil)
	svc.RecordRun(ctx, RunPayload{RunID: NewRunID()})

	events, err := svc.ListEvents(ctx, Query{RunID: target})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, EventError, events[0].Type)

	none, err := svc.ListEvents(ctx, Query{RunID: target, Type: EventBacktestRun})
	require.NoError(t, err)
	assert.Empty(t, none)
	assert.NotNil(t, none)
}

func TestService_ListRespectsLimit(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		svc.RecordRun(ctx, RunPayload{RunID: NewRunID()})
	}

	events, err := svc.ListEvents(ctx, Query{Type: EventBacktestRun, Limit: 3})
	require.NoError(t, err)
	assert.Len(t, events, 3)
}

func TestService_Counts(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	svc.RecordRun(ctx, RunPayload{RunID: NewRunID()})
	svc.RecordRun(ctx, RunPayload{RunID: NewRunID()})
	svc.RecordError(ctx, "", "失败", errors.New("boom"), nil)

	counts, err := svc.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[EventType]int{EventBacktestRun: 2, EventError: 1}, counts)
}

func TestNewService_RequiresStore(t *testing.T) {
	_, err := NewService(nil, nil)
	require.Error(t, err)
}
