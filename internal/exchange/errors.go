package exchange

import (
	"errors"
	"net"

	binancecommon "github.com/adshao/go-binance/v2/common"
	ccxt "github.com/ccxt/ccxt/go/v4"
)

var (
	// ErrMaintenance 表示交易所处于维护状态，需要上层跳过本次请求。
	ErrMaintenance = errors.New("exchange on maintenance")
	// ErrDataUnavailable 表示数据源在首次请求时即未返回任何K线。
	ErrDataUnavailable = errors.New("data unavailable")
	// ErrInvalidRequest 表示拉取参数不合法。
	ErrInvalidRequest = errors.New("invalid fetch request")
)

// IsRetryable 判断错误是否可重试。
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var ccxtErr *ccxt.Error
	if errors.As(err, &ccxtErr) {
		switch ccxtErr.Type {
		case ccxt.NetworkErrorErrType,
			ccxt.RequestTimeoutErrType,
			ccxt.ExchangeNotAvailableErrType,
			ccxt.RateLimitExceededErrType,
			ccxt.DDoSProtectionErrType,
			ccxt.BadResponseErrType,
			ccxt.NullResponseErrType:
			return true
		default:
			return false
		}
	}

	var apiErr *binancecommon.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case -1001, -1003, -1007, -1015:
			return true
		default:
			return false
		}
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}
