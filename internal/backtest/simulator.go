package backtest

import (
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"backtest-api/internal/exchange"
	"backtest-api/internal/strategy"
)

// TradeSide 为模拟成交方向。
type TradeSide string

const (
	SideBuy  TradeSide = "buy"
	SideSell TradeSide = "sell"
)

// Trade 记录一次全仓买入或全部卖出。
type Trade struct {
	Index     int
	Timestamp time.Time
	Side      TradeSide
	Price     float64
	Quantity  float64
	Value     float64
}

// PortfolioPoint 为每根K线收盘后的账户状态。
type PortfolioPoint struct {
	Timestamp time.Time
	Close     float64
	Cash      float64
	Quantity  float64
	Value     float64
}

// Result 汇总一次回测结果。
type Result struct {
	InitialValue float64
	FinalValue   float64
	ReturnPct    float64
	Portfolio    []PortfolioPoint
	Trades       []Trade
}

// Values 返回组合净值序列。
func (r Result) Values() []float64 {
	values := make([]float64, len(r.Portfolio))
	for i, p := range r.Portfolio {
		values[i] = p.Value
	}
	return values
}

// account 为单次回测独占的资金状态：要么全现金，要么全持仓。
type account struct {
	cash     float64
	quantity float64
}

func (a *account) buy(price float64) (Trade, error) {
	if price <= 0 || math.IsNaN(price) {
		return Trade{}, fmt.Errorf("%w: 买入价格 %v", ErrInvalidPrice, price)
	}
	spent := a.cash
	a.quantity = a.cash / price
	a.cash = 0
	return Trade{Side: SideBuy, Price: price, Quantity: a.quantity, Value: spent}, nil
}

func (a *account) sell(price float64) Trade {
	sold := a.quantity
	a.cash = a.quantity * price
	a.quantity = 0
	return Trade{Side: SideSell, Price: price, Quantity: sold, Value: a.cash}
}

func (a *account) value(price float64) float64 {
	return a.cash + a.quantity*price
}

// Simulator 按时间顺序回放带信号的K线并模拟全进全出的交易。
type Simulator struct {
	logger *zap.Logger
}

// NewSimulator 创建回测模拟器。
func NewSimulator(logger *zap.Logger) *Simulator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Simulator{logger: logger}
}

// Run 回放 points 并返回组合净值曲线。相同输入总是得到相同结果；
// 出错时不返回任何部分结果。
func (s *Simulator) Run(points []strategy.Point, initialBalance float64) (Result, error) {
	if len(points) == 0 {
		return Result{}, fmt.Errorf("%w: 回测序列为空", exchange.ErrDataUnavailable)
	}
	if initialBalance <= 0 || math.IsNaN(initialBalance) || math.IsInf(initialBalance, 0) {
		return Result{}, fmt.Errorf("%w: %v", ErrInvalidBalance, initialBalance)
	}

	acct := account{cash: initialBalance}
	portfolio := make([]PortfolioPoint, 0, len(points))
	portfolio = append(portfolio, PortfolioPoint{
		Timestamp: points[0].Candle.Timestamp,
		Close:     points[0].Candle.Close,
		Cash:      acct.cash,
		Quantity:  acct.quantity,
		Value:     initialBalance,
	})
	var trades []Trade

	for i := 1; i < len(points); i++ {
		p := points[i]
		price := p.Candle.Close

		if p.Ready {
			switch {
			case p.Signal == strategy.SignalBuy && acct.quantity == 0:
				trade, err := acct.buy(price)
				if err != nil {
					return Result{}, fmt.Errorf("第 %d 根K线 (%s): %w", i, p.Candle.Timestamp.Format(time.RFC3339), err)
				}
				trade.Index = i
				trade.Timestamp = p.Candle.Timestamp
				trades = append(trades, trade)
			case p.Signal == strategy.SignalSell && acct.quantity > 0:
				trade := acct.sell(price)
				trade.Index = i
				trade.Timestamp = p.Candle.Timestamp
				trades = append(trades, trade)
			}
		}

		portfolio = append(portfolio, PortfolioPoint{
			Timestamp: p.Candle.Timestamp,
			Close:     price,
			Cash:      acct.cash,
			Quantity:  acct.quantity,
			Value:     acct.value(price),
		})
	}

	final := portfolio[len(portfolio)-1].Value
	result := Result{
		InitialValue: initialBalance,
		FinalValue:   final,
		ReturnPct:    (final - initialBalance) / initialBalance * 100,
		Portfolio:    portfolio,
		Trades:       trades,
	}

	s.logger.Debug("回测模拟完成",
		zap.Int("candles", len(points)),
		zap.Int("trades", len(trades)),
		zap.Float64("initial_value", result.InitialValue),
		zap.Float64("final_value", result.FinalValue),
		zap.Float64("return_pct", result.ReturnPct),
	)

	return result, nil
}
