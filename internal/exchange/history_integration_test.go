//go:build integration
// +build integration

package exchange

import (
	"context"
	"os"
	"testing"
	"time"

	"go.uber.org/zap"

	"backtest-api/internal/config"
)

func integrationConfig(t *testing.T) *config.Config {
	t.Helper()
	configPath := os.Getenv("BACKTEST_CONFIG")
	if configPath == "" {
		configPath = "../../configs/config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("加载配置失败: %v", err)
	}
	return cfg
}

func assertAscendingUnique(t *testing.T, candles []Candle) {
	t.Helper()
	for i := 1; i < len(candles); i++ {
		if !candles[i].Timestamp.After(candles[i-1].Timestamp) {
			t.Fatalf("K线未严格升序: %s >= %s", candles[i-1].Timestamp, candles[i].Timestamp)
		}
	}
}

func TestFetcherIntegration_CCXTPagesBackward(t *testing.T) {
	cfg := integrationConfig(t)

	client, err := NewClient(cfg.Exchange, zap.NewNop())
	if err != nil {
		t.Fatalf("初始化 ccxt 客户端失败: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	// 页大小小于总数，强制至少两次翻页。
	fetcher := NewFetcher(client, 100, 5, zap.NewNop())
	candles, err := fetcher.Fetch(ctx, FetchRequest{Symbol: cfg.Exchange.Market, Timeframe: "1h", Count: 250})
	if err != nil {
		t.Fatalf("拉取历史K线失败: %v", err)
	}
	if len(candles) != 250 {
		t.Fatalf("期望 250 根K线，实际 %d", len(candles))
	}
	assertAscendingUnique(t, candles)
}

func TestFetcherIntegration_BinanceSpot(t *testing.T) {
	cfg := integrationConfig(t)
	cfg.Exchange.Market = "BTC/USDT"

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	fetcher := NewFetcher(NewBinanceSource(cfg.Exchange, zap.NewNop()), 200, 5, zap.NewNop())
	until := time.Now().UTC().Truncate(time.Hour)
	candles, err := fetcher.Fetch(ctx, FetchRequest{Symbol: "BTC/USDT", Timeframe: "1h", Count: 300, Until: until})
	if err != nil {
		t.Fatalf("拉取历史K线失败: %v", err)
	}
	if len(candles) != 300 {
		t.Fatalf("期望 300 根K线，实际 %d", len(candles))
	}
	assertAscendingUnique(t, candles)
	if last := candles[len(candles)-1].Timestamp; !last.Before(until) {
		t.Fatalf("最后一根K线 %s 未早于 until %s", last, until)
	}
}
