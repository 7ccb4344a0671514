package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"backtest-api/internal/app"
	"backtest-api/internal/backtest"
	"backtest-api/internal/export"
	"backtest-api/internal/strategy"
)

type runFlags struct {
	strategy  string
	symbol    string
	timeframe string
	count     int
	balance   float64
	until     string
	csvPath   string
}

func newRunCmd(configPath *string) *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "run",
		Short: "执行一次回测并打印结果",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(cmd.Context(), *configPath, flags, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&flags.strategy, "strategy", string(strategy.KindMovingAverage), "策略名称: moving_average | rsi_volatility")
	cmd.Flags().StringVar(&flags.symbol, "symbol", "", "交易对，默认取 exchange.market")
	cmd.Flags().StringVar(&flags.timeframe, "timeframe", "", "K线周期，默认取 backtest.timeframe")
	cmd.Flags().IntVar(&flags.count, "count", 0, "K线数量，默认取 backtest.count")
	cmd.Flags().Float64Var(&flags.balance, "balance", 0, "初始资金，默认取 backtest.initial_balance")
	cmd.Flags().StringVar(&flags.until, "until", "", "截止时间 (RFC3339)，默认为当前")
	cmd.Flags().StringVar(&flags.csvPath, "csv", "", "导出组合净值曲线的 CSV 路径")
	return cmd
}

func runOnce(ctx context.Context, configPath string, flags runFlags, out io.Writer) error {
	kind, err := strategy.ParseKind(flags.strategy)
	if err != nil {
		return err
	}

	req := backtest.Request{
		Kind:           kind,
		Symbol:         flags.symbol,
		Timeframe:      flags.timeframe,
		Count:          flags.count,
		InitialBalance: flags.balance,
	}
	if flags.until != "" {
		until, err := time.Parse(time.RFC3339, flags.until)
		if err != nil {
			return fmt.Errorf("解析 --until 失败: %w", err)
		}
		req.Until = until.UTC()
	}

	rt, err := bootstrap(configPath)
	if err != nil {
		return err
	}
	defer rt.close()

	outcome, err := rt.app.Backtest(ctx, req)
	if err != nil {
		return err
	}

	if flags.csvPath != "" {
		if err := export.SavePortfolio(flags.csvPath, outcome.Report.Result); err != nil {
			return err
		}
		rt.logger.Info("组合净值曲线已导出", zap.String("path", flags.csvPath))
	}

	printSummary(out, outcome, flags.csvPath)
	return nil
}

func printSummary(out io.Writer, outcome app.Outcome, csvPath string) {
	report := outcome.Report
	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"Item", "Value"})
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoWrapText(false)

	table.Append([]string{"Run ID", outcome.RunID})
	table.Append([]string{"Strategy", string(report.Request.Kind)})
	table.Append([]string{"Symbol", report.Request.Symbol})
	table.Append([]string{"Timeframe", report.Request.Timeframe})
	table.Append([]string{"Candles", strconv.Itoa(len(report.Candles))})
	table.Append([]string{"Initial Portfolio Value", outcome.Summary.InitialPortfolioValue})
	table.Append([]string{"Final Portfolio Value", outcome.Summary.FinalPortfolioValue})
	table.Append([]string{"Total Returns", outcome.Summary.TotalReturns})
	table.Append([]string{"Max Drawdown", backtest.FormatPercent(report.Metrics.MaxDrawdown * 100)})
	table.Append([]string{"Sharpe Ratio", strconv.FormatFloat(report.Metrics.SharpeRatio, 'f', 2, 64)})
	table.Append([]string{"Trades", strconv.Itoa(report.Metrics.Trades)})
	if outcome.ChartPath != "" {
		table.Append([]string{"Chart", outcome.ChartPath})
	}
	if csvPath != "" {
		table.Append([]string{"CSV", csvPath})
	}
	table.Render()
}
