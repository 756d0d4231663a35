package jsonrpc

import (
	"bytes"
	"encoding/json"
)

// Version is the only protocol version accepted in the "jsonrpc" member.
const Version = "2.0"

// Request is a single JSON-RPC request. Fields may be empty: a Request is
// classified by the Dispatcher, not validated on construction.
type Request struct {
	JSONRPC string
	// Method is the name as sent. Decoding rejects a request without one;
	// an empty name is looked up like any other.
	Method string
	// Params is nil when the request carries no "params" member.
	Params json.RawMessage
	// ID is nil when the request carries no "id" member.
	ID json.RawMessage
}

// decodeRequest parses body into a Request. It returns a parse error when
// body is not JSON or is JSON null, and an invalid-request error when body
// is not an object, "method" is missing or null, or a member has the wrong
// JSON type. In the latter cases
// the returned Request still carries the id, if one could be read.
func decodeRequest(body []byte) (*Request, *Error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 || !json.Valid(body) {
		return nil, NewError(CodeParseError, nil)
	}
	if bytes.Equal(body, []byte("null")) {
		return nil, NewError(CodeParseError, nil)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		// Valid JSON that is not an object: an array (batch) or a scalar.
		return &Request{}, NewError(CodeInvalidRequest, nil)
	}

	req := &Request{ID: fields["id"]}
	if raw, ok := fields["jsonrpc"]; ok {
		if err := json.Unmarshal(raw, &req.JSONRPC); err != nil {
			return req, NewError(CodeInvalidRequest, nil)
		}
	}
	raw, ok := fields["method"]
	if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return req, NewError(CodeInvalidRequest, nil)
	}
	if err := json.Unmarshal(raw, &req.Method); err != nil {
		return req, NewError(CodeInvalidRequest, nil)
	}
	if raw, ok := fields["params"]; ok {
		req.Params = raw
	}
	return req, nil
}

// Response is a JSON-RPC response. Exactly one of Result and Error is
// serialized; ID is always serialized, as null when unknown.
type Response struct {
	JSONRPC string
	Result  any
	Error   *Error
	ID      any
}

type successEnvelope struct {
	JSONRPC string `json:"jsonrpc"`
	Result  any    `json:"result"`
	ID      any    `json:"id"`
}

type errorEnvelope struct {
	JSONRPC string `json:"jsonrpc"`
	Error   *Error `json:"error"`
	ID      any    `json:"id"`
}

// Success builds a success response.
func Success(id any, result any) *Response {
	return &Response{JSONRPC: Version, Result: result, ID: id}
}

// Failure builds an error response.
func Failure(id any, err *Error) *Response {
	if err == nil {
		err = NewError(CodeInternalError, nil)
	}
	return &Response{JSONRPC: Version, Error: err, ID: id}
}

// IsError reports whether r is an error response.
func (r *Response) IsError() bool {
	return r != nil && r.Error != nil
}

func (r *Response) envelope() any {
	if r.Error != nil {
		return errorEnvelope{JSONRPC: Version, Error: r.Error, ID: r.ID}
	}
	return successEnvelope{JSONRPC: Version, Result: r.Result, ID: r.ID}
}

// MarshalJSON implements json.Marshaler.
func (r *Response) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.envelope())
}

// idValue converts a raw request id to the value echoed in the response.
// Numbers keep their literal form.
func idValue(raw json.RawMessage) any {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil
	}
	return v
}
