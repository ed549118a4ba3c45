package server

import "errors"

var (
	ErrHandlerRequired = errors.New("server: handler required")
	ErrConnClosed      = errors.New("server: connection closed or in error")
	ErrAlreadyReplied  = errors.New("server: request already replied")
	ErrEncodeResult    = errors.New("server: result encode failed")
)
