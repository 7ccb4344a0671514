package backtest

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Summary 为对外返回的回测摘要，数值统一保留两位小数。
type Summary struct {
	InitialPortfolioValue string `json:"initial_portfolio_value"`
	FinalPortfolioValue   string `json:"final_portfolio_value"`
	TotalReturns          string `json:"total_returns"`
}

// Summarize 将结果格式化为带单位的字符串。
func Summarize(result Result, unit string) Summary {
	return Summary{
		InitialPortfolioValue: FormatAmount(result.InitialValue, unit),
		FinalPortfolioValue:   FormatAmount(result.FinalValue, unit),
		TotalReturns:          FormatPercent(result.ReturnPct),
	}
}

// FormatAmount 格式化金额，例如 "10000.00 USDT"。
func FormatAmount(v float64, unit string) string {
	s := decimal.NewFromFloat(v).StringFixed(2)
	if unit = strings.TrimSpace(unit); unit != "" {
		s += " " + unit
	}
	return s
}

// FormatPercent 格式化百分比，例如 "12.34%"。
func FormatPercent(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2) + "%"
}
