package backtest

import "errors"

var (
	// ErrInvalidPrice 表示以非正价格成交。
	ErrInvalidPrice = errors.New("invalid price")
	// ErrInvalidBalance 表示初始资金非正。
	ErrInvalidBalance = errors.New("invalid initial balance")
)
