package jsonrpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/fxamacker/cbor/v2"
)

// Serializer writes a response body.
type Serializer interface {
	// ContentType is the media type written with the body.
	ContentType() string
	Encode(w io.Writer, v any) error
}

// JSONSerializer encodes values with encoding/json. HTML characters are not
// escaped.
type JSONSerializer struct {
	EscapeHTML bool
}

func (JSONSerializer) ContentType() string {
	return "application/json"
}

func (s JSONSerializer) Encode(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(s.EscapeHTML)
	return enc.Encode(v)
}

// CBORSerializer encodes values as CBOR using Mode. Responses are written
// with the same member names as their JSON form.
type CBORSerializer struct {
	// Mode is the encoding configuration. When nil, canonical encoding
	// options are used.
	Mode cbor.EncMode
}

// NewCBORSerializer returns a CBORSerializer using core deterministic
// encoding.
func NewCBORSerializer() (*CBORSerializer, error) {
	mode, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		return nil, err
	}
	return &CBORSerializer{Mode: mode}, nil
}

func (*CBORSerializer) ContentType() string {
	return "application/cbor"
}

func (s *CBORSerializer) Encode(w io.Writer, v any) error {
	mode := s.Mode
	if mode == nil {
		var err error
		if mode, err = cbor.CanonicalEncOptions().EncMode(); err != nil {
			return err
		}
	}
	if r, ok := v.(*Response); ok {
		v = cborEnvelope(r)
	}
	return mode.NewEncoder(w).Encode(normalizeNumbers(v))
}

// Encode serializes resp with s. When resp cannot be encoded, for example
// a result holding a non-finite float, the failure is logged and an
// INTERNAL_ERROR response with the same id is encoded instead.
func (d *Dispatcher) Encode(s Serializer, resp *Response) ([]byte, error) {
	var buf bytes.Buffer
	err := s.Encode(&buf, resp)
	if err == nil {
		return buf.Bytes(), nil
	}
	d.logger.Error("jsonrpc: encode response", "content_type", s.ContentType(), "error", err)

	buf.Reset()
	if err := s.Encode(&buf, Failure(resp.ID, NewError(CodeInternalError, nil))); err != nil {
		return nil, fmt.Errorf("jsonrpc: encode response: %w", err)
	}
	return buf.Bytes(), nil
}

// cborEnvelope returns r as a map so member names match the JSON form and
// the null id and null result are kept.
func cborEnvelope(r *Response) map[string]any {
	out := map[string]any{"jsonrpc": Version, "id": r.ID}
	if r.Error != nil {
		e := map[string]any{"code": r.Error.Code, "message": r.Error.Message}
		if r.Error.Data != nil {
			e["data"] = r.Error.Data
		}
		out["error"] = e
	} else {
		out["result"] = r.Result
	}
	return out
}

// normalizeNumbers replaces json.Number values, which CBOR would otherwise
// encode as text, with integers or floats.
func normalizeNumbers(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := strconv.ParseInt(string(t), 10, 64); err == nil {
			return i
		}
		if f, err := strconv.ParseFloat(string(t), 64); err == nil {
			return f
		}
		return string(t)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = normalizeNumbers(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalizeNumbers(e)
		}
		return out
	}
	return v
}
