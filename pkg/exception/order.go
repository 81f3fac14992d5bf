package exception

import "github.com/yanun0323/errors"

var (
	ErrOrderInvalidRequest    = errors.New("order: invalid request")
	ErrOrderUnknown           = errors.New("order: unknown order")
	ErrOrderDuplicate         = errors.New("order: duplicate order id")
	ErrOrderNotExecutable     = errors.New("order: not executable")
	ErrOrderMarketClosed      = errors.New("order: market closed")
	ErrOrderRiskRejected      = errors.New("order: rejected by risk guard")
	ErrOrderRunnerUnavailable = errors.New("order: runner not tradable")
)

var (
	ErrChunkFailed   = errors.New("backtest: chunk failed")
	ErrMarketFailed  = errors.New("backtest: market failed")
	ErrChunkMismatch = errors.New("backtest: merged chunk count differs from expected")
)
