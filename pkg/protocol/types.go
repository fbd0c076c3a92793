package protocol

import "encoding/json"

// Version is the bridge protocol version reported by the handshake method.
const Version = "1.0"

// Reserved method names handled by the dispatch loop itself, never by
// registered domain handlers.
const (
	MethodHandshake = "handshake"
	MethodHeartbeat = "heartbeat"
)

// Error codes form a closed set. The -32700..-32600 block follows JSON-RPC;
// the -32000..-32099 block is reserved for game-level conditions.
const (
	CodeParseError     int32 = -32700
	CodeInvalidRequest int32 = -32600
	CodeMethodNotFound int32 = -32601
	CodeInvalidParams  int32 = -32602
	CodeHandlerFailure int32 = -32603

	CodeEntityNotFound    int32 = -32000
	CodeHandshakeRequired int32 = -32001
	CodeVersionMismatch   int32 = -32002
	CodeUnavailable       int32 = -32003
)

// Request is one command from the peer. Params stays raw so handlers decode
// their own shapes and key order survives untouched.
type Request struct {
	ID     int64           `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Response answers exactly one Request. Exactly one of Result/Error is set;
// Error marshals as an explicit null on success because the original mod
// always emitted the field.
type Response struct {
	ID     int64           `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *ErrorEnvelope  `json:"error"`
}

// ErrorEnvelope is the structured failure carried inside a Response.
type ErrorEnvelope struct {
	Code    int32  `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Errorf builds an ErrorEnvelope.
func Errorf(code int32, message string, data any) *ErrorEnvelope {
	return &ErrorEnvelope{Code: code, Message: message, Data: data}
}

// ValidationError reports a handler-level parameter failure with the reason
// echoed under data.reason.
func ValidationError(reason string) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    CodeInvalidParams,
		Message: "invalid params",
		Data:    map[string]any{"reason": reason},
	}
}

// OK builds a success Response, marshaling result.
func OK(id int64, result any) (Response, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return Response{}, err
	}
	return Response{ID: id, Result: raw}, nil
}

// Fail builds an error Response.
func Fail(id int64, envelope *ErrorEnvelope) Response {
	return Response{ID: id, Error: envelope}
}
