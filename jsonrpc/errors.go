package jsonrpc

import (
	"fmt"
	"reflect"
)

const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

var messages = map[int]string{
	CodeParseError:     "Parse error",
	CodeInvalidRequest: "Invalid request",
	CodeMethodNotFound: "Method not found",
	CodeInvalidParams:  "Invalid params",
	CodeInternalError:  "Internal error",
}

// Message returns the fixed message for a protocol error code, or the empty
// string for codes outside the reserved set.
func Message(code int) string {
	return messages[code]
}

// Error is the error object carried by a JSON-RPC error response.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return e.Message
}

// NewError builds a protocol error with the fixed message for code.
// data is dropped when it is nil or empty.
func NewError(code int, data any) *Error {
	msg := Message(code)
	if msg == "" {
		msg = fmt.Sprintf("error %d", code)
	}
	return &Error{Code: code, Message: msg, Data: normalizeData(data)}
}

// Fault is an application error returned by a member. The dispatcher copies
// its code and message into the response and passes Data through the
// configured Translator.
type Fault struct {
	Code    int
	Message string
	Data    any
}

func (f *Fault) Error() string {
	return fmt.Sprintf("fault %d: %s", f.Code, f.Message)
}

// NewFault returns a Fault with the given code, message and optional data.
func NewFault(code int, message string, data any) *Fault {
	return &Fault{Code: code, Message: message, Data: data}
}

// ParamsError reports a mismatch between request params and a member's
// declared parameters.
type ParamsError struct {
	Reason string
	Data   map[string]any
}

func (e *ParamsError) Error() string {
	return "invalid params: " + e.Reason
}

// normalizeData returns nil for values that should not be emitted as "data".
func normalizeData(data any) any {
	if data == nil {
		return nil
	}
	v := reflect.ValueOf(data)
	switch v.Kind() {
	case reflect.String, reflect.Slice, reflect.Map, reflect.Array:
		if v.Len() == 0 {
			return nil
		}
	case reflect.Pointer, reflect.Interface:
		if v.IsNil() {
			return nil
		}
	}
	return data
}
