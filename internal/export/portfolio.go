package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/gocarina/gocsv"

	"backtest-api/internal/backtest"
)

// PortfolioRow 为组合净值曲线的一行 CSV 记录。
type PortfolioRow struct {
	Timestamp string  `csv:"timestamp"`
	Close     float64 `csv:"close"`
	Cash      float64 `csv:"cash"`
	Quantity  float64 `csv:"quantity"`
	Value     float64 `csv:"portfolio_value"`
	Trade     string  `csv:"trade"`
}

// Rows 将模拟结果转换为 CSV 行，成交所在行标注买卖方向。
func Rows(result backtest.Result) []PortfolioRow {
	sides := make(map[int]backtest.TradeSide, len(result.Trades))
	for _, t := range result.Trades {
		sides[t.Index] = t.Side
	}

	rows := make([]PortfolioRow, len(result.Portfolio))
	for i, p := range result.Portfolio {
		rows[i] = PortfolioRow{
			Timestamp: p.Timestamp.UTC().Format(time.RFC3339),
			Close:     p.Close,
			Cash:      p.Cash,
			Quantity:  p.Quantity,
			Value:     p.Value,
			Trade:     string(sides[i]),
		}
	}
	return rows
}

// WritePortfolio 以 CSV 格式写出组合净值曲线。
func WritePortfolio(w io.Writer, result backtest.Result) error {
	rows := Rows(result)
	if err := gocsv.Marshal(&rows, w); err != nil {
		return fmt.Errorf("export: 写入 CSV 失败: %w", err)
	}
	return nil
}

// SavePortfolio 将组合净值曲线写入 path。
func SavePortfolio(path string, result backtest.Result) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("export: 创建目录 %q 失败: %w", dir, err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("export: 创建文件 %q 失败: %w", path, err)
	}
	if err := WritePortfolio(f, result); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
