package strategy

import (
	"errors"
	"fmt"

	"backtest-api/internal/exchange"
)

var (
	// ErrUnknownStrategy 表示策略名称不在支持列表中。
	ErrUnknownStrategy = errors.New("unknown strategy")
	// ErrInsufficientData 表示K线数量少于策略所需的最小窗口。
	ErrInsufficientData = errors.New("insufficient data")
	// ErrInvalidParams 表示策略参数不合法。
	ErrInvalidParams = errors.New("invalid strategy params")
)

// Kind 为封闭的策略类型集合。
type Kind string

const (
	KindMovingAverage Kind = "moving_average"
	KindRSIVolatility Kind = "rsi_volatility"
)

// Kinds 返回全部支持的策略类型。
func Kinds() []Kind {
	return []Kind{KindMovingAverage, KindRSIVolatility}
}

// ParseKind 将名称解析为策略类型，名称须完全一致。
func ParseKind(name string) (Kind, error) {
	for _, k := range Kinds() {
		if string(k) == name {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
}

// Signal 为单根K线的交易信号，没有持有状态。
type Signal int

const (
	SignalSell Signal = -1
	SignalBuy  Signal = 1
)

func (s Signal) String() string {
	if s == SignalBuy {
		return "buy"
	}
	return "sell"
}

// Position 表示该K线是否持有标的，滞后信号一根K线。
type Position int

const (
	PositionNotHeld Position = 0
	PositionHeld    Position = 1
)

// Indicators 记录信号计算用到的指标值，未定义时为 NaN。
type Indicators struct {
	ShortMA    float64
	LongMA     float64
	RSI        float64
	Volatility float64
}

// Point 为附带信号的K线。Ready 为 false 时指标尚未定义，不参与交易。
type Point struct {
	Candle     exchange.Candle
	Ready      bool
	Signal     Signal
	Position   Position
	Indicators Indicators
}

// Params 汇总所有策略的参数，各策略只读取自己关心的字段。
type Params struct {
	ShortWindow         int
	LongWindow          int
	RSIPeriod           int
	VolatilityThreshold float64
}

// DefaultParams 返回默认策略参数。
func DefaultParams() Params {
	return Params{
		ShortWindow:         5,
		LongWindow:          15,
		RSIPeriod:           14,
		VolatilityThreshold: 0.02,
	}
}

// Strategy 将K线序列标注为带信号与仓位的序列。
type Strategy interface {
	Kind() Kind
	Annotate(candles []exchange.Candle) ([]Point, error)
}

// New 根据策略类型构造策略，是唯一的分派入口。
func New(kind Kind, params Params) (Strategy, error) {
	switch kind {
	case KindMovingAverage:
		return NewMovingAverage(params.ShortWindow, params.LongWindow)
	case KindRSIVolatility:
		return NewRSIVolatility(params.RSIPeriod, params.VolatilityThreshold)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, string(kind))
	}
}

// applyPositions 将仓位设为上一根K线的信号，首根K线不持仓。
func applyPositions(points []Point) {
	for i := range points {
		points[i].Position = PositionNotHeld
		if i == 0 {
			continue
		}
		prev := points[i-1]
		if prev.Ready && prev.Signal == SignalBuy {
			points[i].Position = PositionHeld
		}
	}
}
