package protocol

import (
	"encoding/json"
	"strings"
)

// Version is the only accepted value of the "jsonrpc" member.
const Version = "2.0"

const (
	KeyJSONRPC = "jsonrpc"
	KeyID      = "id"
	KeyMethod  = "method"
	KeyParams  = "params"
	KeyResult  = "result"
	KeyError   = "error"
	KeyCode    = "code"
	KeyMessage = "message"
)

// Request is the outgoing request envelope.
type Request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      any    `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// Notification is a request without an id; no response is ever sent for it.
type Notification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// result and error responses are split so that a null result is still
// written as "result": null.
type resultResponse struct {
	JSONRPC string `json:"jsonrpc"`
	ID      any    `json:"id"`
	Result  any    `json:"result"`
}

type errorResponse struct {
	JSONRPC string       `json:"jsonrpc"`
	ID      any          `json:"id"`
	Error   *ErrorObject `json:"error"`
}

var (
	ParseErrorResponse        = mustEncodeError(nil, CodeParseError, MsgParseError)
	BatchNotSupportedResponse = mustEncodeError(nil, CodeInvalidRequest, MsgBatchNotSupported)
)

// IsValidID reports whether v is an acceptable request id: a string, an
// integer, or null.
func IsValidID(v any) bool {
	switch id := v.(type) {
	case nil, string:
		return true
	case json.Number:
		_, err := id.Int64()
		return err == nil
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return true
	default:
		return false
	}
}

// IsValidParams reports whether v is absent, an array, or an object.
func IsValidParams(v any) bool {
	switch v.(type) {
	case nil, []any, map[string]any:
		return true
	default:
		return false
	}
}

// EncodeError returns the canonical error envelope.
func EncodeError(id any, code int, message string) ([]byte, error) {
	return json.Marshal(errorResponse{
		JSONRPC: Version,
		ID:      id,
		Error:   NewError(code, message),
	})
}

// EncodeResult returns the canonical success envelope.
func EncodeResult(id any, result any) ([]byte, error) {
	return json.Marshal(resultResponse{
		JSONRPC: Version,
		ID:      id,
		Result:  result,
	})
}

// EncodeRequest returns a request envelope. params must encode to a JSON
// array or object, or be nil.
func EncodeRequest(id any, method string, params any) ([]byte, error) {
	if strings.TrimSpace(method) == "" {
		return nil, ErrInvalidMethod
	}
	raw, err := encodeParams(params)
	if err != nil {
		return nil, err
	}
	req := Request{JSONRPC: Version, ID: id, Method: method}
	if raw != nil {
		req.Params = raw
	}
	return json.Marshal(req)
}

// EncodeNotification returns a notification envelope.
func EncodeNotification(method string, params any) ([]byte, error) {
	if strings.TrimSpace(method) == "" {
		return nil, ErrInvalidMethod
	}
	raw, err := encodeParams(params)
	if err != nil {
		return nil, err
	}
	n := Notification{JSONRPC: Version, Method: method}
	if raw != nil {
		n.Params = raw
	}
	return json.Marshal(n)
}

func encodeParams(params any) (json.RawMessage, error) {
	if params == nil {
		return nil, nil
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	trimmed := strings.TrimSpace(string(raw))
	switch {
	case trimmed == "null":
		return nil, nil
	case strings.HasPrefix(trimmed, "["), strings.HasPrefix(trimmed, "{"):
		return raw, nil
	default:
		return nil, ErrInvalidParams
	}
}

func mustEncodeError(id any, code int, message string) []byte {
	b, err := EncodeError(id, code, message)
	if err != nil {
		panic("protocol: encode fixed response: " + err.Error())
	}
	return b
}
