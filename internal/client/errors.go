package client

import "errors"

var (
	ErrAddressRequired    = errors.New("client: address required")
	ErrUnsupportedNetwork = errors.New("client: unsupported network")
	ErrNotConnected       = errors.New("client: not connected")
	ErrInvalidResponse    = errors.New("client: invalid response")
	ErrRequestTimeout     = errors.New("client: request timeout")
	ErrCanceled           = errors.New("client: request canceled")
	ErrCallPending        = errors.New("client: call still pending")
	ErrIDExhausted        = errors.New("client: could not allocate a unique request id")
)

// Cancellation reasons attached to ErrCanceled.
const (
	ReasonParsingError     = "response parsing error"
	ReasonConnectionClosed = "connection closed"
)
