package onchain

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrValidation        = errors.New("validation failure")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrNoOutputs         = errors.New("no outputs available")
	ErrFeeEstimate       = errors.New("fee estimation failure")
	ErrBroadcast         = errors.New("broadcast failure")
	// ErrOutputReserved is returned by a reserving resolver for outputs that
	// another payment attempt currently holds.
	ErrOutputReserved = errors.New("output reserved")
)

// BroadcastError is returned when the server rejected a transaction. It
// matches ErrBroadcast and unwraps to the server's error.
type BroadcastError struct {
	TxID  string
	cause error
}

func (e *BroadcastError) Error() string {
	return fmt.Sprintf("%v: transaction %s", ErrBroadcast, e.TxID)
}

func (e *BroadcastError) Is(target error) bool {
	return target == ErrBroadcast
}

func (e *BroadcastError) Unwrap() error {
	return e.cause
}

// Cause implements the pkg/errors causer interface.
func (e *BroadcastError) Cause() error {
	return e.cause
}

// kindError tags cause with one of the package sentinels.
type kindError struct {
	kind  error
	msg   string
	cause error
}

func withKind(kind, cause error, format string, args ...interface{}) error {
	return &kindError{kind: kind, msg: fmt.Sprintf(format, args...), cause: cause}
}

func (e *kindError) Error() string {
	return fmt.Sprintf("%v: %s: %v", e.kind, e.msg, e.cause)
}

func (e *kindError) Is(target error) bool {
	return target == e.kind
}

func (e *kindError) Unwrap() error {
	return e.cause
}
