package visual

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"go.uber.org/zap"

	"backtest-api/internal/backtest"
)

const (
	chartWidth  = "1200px"
	chartHeight = "420px"
)

// ChartInput 为绘制回测图表所需的数据，直接使用模拟器输出。
type ChartInput struct {
	Symbol    string
	Strategy  string
	Timeframe string
	Result    backtest.Result
}

// Renderer 将回测结果绘制为 HTML 图表并写入固定路径。
type Renderer struct {
	outputPath string
	logger     *zap.Logger

	mu sync.Mutex
}

// NewRenderer 创建图表渲染器。
func NewRenderer(outputPath string, logger *zap.Logger) *Renderer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Renderer{outputPath: outputPath, logger: logger}
}

// Render 绘制图表并原子替换输出文件，返回写入路径。
func (r *Renderer) Render(input ChartInput) (string, error) {
	if r.outputPath == "" {
		return "", errors.New("visual: 未配置输出路径")
	}
	if len(input.Result.Portfolio) == 0 {
		return "", errors.New("visual: 组合净值为空")
	}

	var buf bytes.Buffer
	if err := Write(&buf, input); err != nil {
		return "", err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	dir := filepath.Dir(r.outputPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("visual: 创建目录 %q 失败: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".chart-*.html")
	if err != nil {
		return "", fmt.Errorf("visual: 创建临时文件失败: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("visual: 写入图表失败: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("visual: 写入图表失败: %w", err)
	}
	if err := os.Rename(tmp.Name(), r.outputPath); err != nil {
		return "", fmt.Errorf("visual: 保存图表失败: %w", err)
	}

	r.logger.Debug("回测图表已保存",
		zap.String("path", r.outputPath),
		zap.Int("points", len(input.Result.Portfolio)),
	)
	return r.outputPath, nil
}

// Write 将价格与组合净值两张折线图渲染到 w。
func Write(w io.Writer, input ChartInput) error {
	points := input.Result.Portfolio
	xAxis := make([]string, len(points))
	closes := make([]opts.LineData, len(points))
	values := make([]opts.LineData, len(points))
	for i, p := range points {
		xAxis[i] = p.Timestamp.UTC().Format(time.DateTime)
		closes[i] = opts.LineData{Value: p.Close}
		values[i] = opts.LineData{Value: p.Value}
	}

	title := strings.TrimSpace(fmt.Sprintf("%s %s", strings.ToUpper(input.Symbol), input.Timeframe))

	price := newLine(title, fmt.Sprintf("strategy: %s", input.Strategy))
	price.SetXAxis(xAxis).AddSeries("Close", closes)
	markTrades(price, xAxis, input.Result.Trades)

	subtitle := fmt.Sprintf("initial %s / final %s / return %s",
		backtest.FormatAmount(input.Result.InitialValue, ""),
		backtest.FormatAmount(input.Result.FinalValue, ""),
		backtest.FormatPercent(input.Result.ReturnPct),
	)
	equity := newLine("Portfolio Value", subtitle)
	equity.SetXAxis(xAxis).AddSeries("Portfolio", values)

	page := components.NewPage()
	page.PageTitle = "Backtest Result"
	page.AddCharts(price, equity)
	return page.Render(w)
}

func newLine(title, subtitle string) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: chartWidth, Height: chartHeight}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", XAxisIndex: []int{0}}),
		charts.WithYAxisOpts(opts.YAxis{Scale: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)
	line.SetSeriesOptions(charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))
	return line
}

func markTrades(line *charts.Line, xAxis []string, trades []backtest.Trade) {
	if len(trades) == 0 {
		return
	}
	items := make([]opts.MarkPointNameCoordItem, 0, len(trades))
	for _, t := range trades {
		if t.Index < 0 || t.Index >= len(xAxis) {
			continue
		}
		items = append(items, opts.MarkPointNameCoordItem{
			Name:       string(t.Side),
			Coordinate: []interface{}{xAxis[t.Index], t.Price},
		})
	}
	line.SetSeriesOptions(charts.WithMarkPointNameCoordItemOpts(items...))
}
