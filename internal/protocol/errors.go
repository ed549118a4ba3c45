package protocol

import (
	"errors"
	"fmt"
)

const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603

	// Implementation-defined server errors.
	CustomCodeMin = -32099
	CustomCodeMax = -32000
)

const (
	MsgParseError          = "invalid JSON"
	MsgBatchNotSupported   = "batch mode not supported"
	MsgInvalidRequest      = "invalid request"
	MsgInvalidReqID        = "invalid request id"
	MsgInvalidReqJSONRPC   = "invalid request jsonrpc"
	MsgInvalidReqMethod    = "invalid request method"
	MsgInvalidReqParams    = "invalid request params"
	MsgMethodNotFound      = "method not found"
	MsgInvalidParams       = "invalid params"
	MsgInternalError       = "internal error"
	MsgResponseEncodeError = "response encode error"
)

var (
	ErrInvalidParams    = errors.New("protocol: params must be an array or an object")
	ErrInvalidMethod    = errors.New("protocol: method must be a non-empty string")
	ErrCustomCodeRange  = fmt.Errorf("protocol: custom error code must be an integer between %d and %d", CustomCodeMin, CustomCodeMax)
	ErrRandomnessSource = errors.New("protocol: randomness source required")
)

// ErrorObject is the JSON-RPC error member. It doubles as a Go error so
// structured peer failures can travel through error returns.
type ErrorObject struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func NewError(code int, message string) *ErrorObject {
	return &ErrorObject{Code: code, Message: message}
}

func (e *ErrorObject) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// IsCustomErrorCode reports whether code is in the application range.
func IsCustomErrorCode(code int) bool {
	return code >= CustomCodeMin && code <= CustomCodeMax
}
