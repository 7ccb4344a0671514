package indicator

import (
	"math"

	talib "github.com/markcheno/go-talib"
)

// RollingMean 计算尾随 window 个值的简单均值，不足 window 的位置为 NaN。
// 窗口内取值全部相同时，均值精确等于该值。
func RollingMean(values []float64, window int) []float64 {
	out := nanSlice(len(values))
	if window <= 0 || len(values) < window {
		return out
	}

	sma := talib.Sma(values, window)
	copy(out[window-1:], sma[window-1:])

	// talib 滚动求和会残留浮点误差，平坦窗口直接取原值。
	for i, flat := range flatWindows(values, window) {
		if flat {
			out[i] = values[i]
		}
	}
	return out
}

// RSI 以 period 窗口的简单均值计算涨跌幅均值，首根K线的变动记为 0。
// 平均跌幅恰为 0 时以 1 代替，结果为有限值而非 100。
func RSI(closes []float64, period int) []float64 {
	n := len(closes)
	gains := make([]float64, n)
	losses := make([]float64, n)
	for i := 1; i < n; i++ {
		delta := closes[i] - closes[i-1]
		switch {
		case delta > 0:
			gains[i] = delta
		case delta < 0:
			losses[i] = -delta
		}
	}

	avgGain := RollingMean(gains, period)
	avgLoss := RollingMean(losses, period)

	out := nanSlice(n)
	for i := range out {
		if math.IsNaN(avgGain[i]) || math.IsNaN(avgLoss[i]) {
			continue
		}
		gain := avgGain[i]
		loss := avgLoss[i]
		if loss == 0 {
			loss = 1
		}
		rs := gain / loss
		out[i] = 100 - 100/(1+rs)
	}
	return out
}

// Volatility 计算单根K线振幅 (high-low)/low，low 为 0 时以 1 代替。
func Volatility(high, low []float64) []float64 {
	n := min(len(high), len(low))
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		denominator := low[i]
		if denominator == 0 {
			denominator = 1
		}
		out[i] = (high[i] - low[i]) / denominator
	}
	return out
}

// flatWindows 标记以 i 结尾的 window 窗口内是否全部取值相同。
func flatWindows(values []float64, window int) []bool {
	out := make([]bool, len(values))
	if window <= 0 {
		return out
	}
	run := 0
	for i, v := range values {
		if i > 0 && v == values[i-1] {
			run++
		} else {
			run = 1
		}
		out[i] = run >= window
	}
	return out
}
