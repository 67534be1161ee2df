package bus

import "errors"

var (
	ErrBusClosed  = errors.New("event bus is closed")
	ErrNilHandler = errors.New("event handler is nil")
)
