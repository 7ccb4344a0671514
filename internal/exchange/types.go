package exchange

import (
	"strconv"
	"strings"
	"time"
)

// DefaultPageSize 为单次分页请求的最大K线数量。
const DefaultPageSize = 200

// Candle 代表单根K线。
type Candle struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// PageRequest 描述一次分页拉取，返回 Until 之前（不含）的最多 Limit 根K线。
// Until 为零值时表示从最新K线开始。
type PageRequest struct {
	Symbol    string
	Timeframe string
	Limit     int
	Until     time.Time
}

// FetchRequest 描述一次历史数据拉取。
type FetchRequest struct {
	Symbol    string
	Timeframe string
	Count     int
	Until     time.Time
}

// TimeframeDuration 将 "15m"、"1h"、"1d" 之类的周期解析为时长。
func TimeframeDuration(timeframe string) (time.Duration, bool) {
	tf := strings.TrimSpace(timeframe)
	if len(tf) < 2 {
		return 0, false
	}

	n, err := strconv.Atoi(tf[:len(tf)-1])
	if err != nil || n <= 0 {
		return 0, false
	}

	var unit time.Duration
	switch tf[len(tf)-1] {
	case 's':
		unit = time.Second
	case 'm':
		unit = time.Minute
	case 'h':
		unit = time.Hour
	case 'd':
		unit = 24 * time.Hour
	case 'w':
		unit = 7 * 24 * time.Hour
	case 'M':
		unit = 30 * 24 * time.Hour
	default:
		return 0, false
	}

	return time.Duration(n) * unit, true
}
