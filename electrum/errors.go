package electrum

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrConnection is returned when the transport could not be established
	// or broke while a request was written.
	ErrConnection = errors.New("electrum connection failure")
	// ErrProtocol is returned for server reported rpc errors and responses
	// that can not be decoded.
	ErrProtocol = errors.New("electrum protocol failure")
	// ErrTimeout is returned when no correlated response arrived within the
	// request timeout. The pending entry is evicted.
	ErrTimeout = errors.New("electrum request timed out")
	// ErrInvalidAddress is returned when an address can not be turned into
	// a script hash.
	ErrInvalidAddress = errors.New("invalid address")
)

// RPCError is an error object returned by the server.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("%d:%s", e.Code, e.Message)
}

// Is lets errors.Is(err, ErrProtocol) match server errors.
func (e *RPCError) Is(target error) bool {
	return target == ErrProtocol
}
