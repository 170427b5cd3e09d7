package runtime

import "errors"

var (
	// ErrCallbackResultCountMismatch signals that a callback observed a number
	// of promise results other than the one it was chained to.
	ErrCallbackResultCountMismatch = errors.New("callback expected exactly one promise result")

	// ErrExecutorStopped is returned for submissions after shutdown started.
	ErrExecutorStopped = errors.New("executor stopped")

	// ErrExceededPrepaidGas occurs when scheduling would spend more gas than
	// the call was given, or when an outbound call runs out of time.
	ErrExceededPrepaidGas = errors.New("exceeded the prepaid gas")

	// ErrReceiptNotFound is returned for unknown or evicted receipt ids.
	ErrReceiptNotFound = errors.New("receipt not found")

	// ErrPromiseResultIndex occurs when a handler reads a result that does not exist.
	ErrPromiseResultIndex = errors.New("promise result index out of range")
)
