package can

import "errors"

var (
	ErrIllegalArgument = errors.New("error in function arguments")
	ErrNotConnected    = errors.New("no active connection")
)
