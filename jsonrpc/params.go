package jsonrpc

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Param declares one positional parameter of a member.
type Param struct {
	Name     string
	Optional bool
}

// ParamSpec is the ordered parameter list of a member.
type ParamSpec []Param

// Params builds a ParamSpec of required parameters.
func Params(names ...string) ParamSpec {
	spec := make(ParamSpec, len(names))
	for i, n := range names {
		spec[i] = Param{Name: n}
	}
	return spec
}

// Optional appends optional parameters to spec.
func (s ParamSpec) Optional(names ...string) ParamSpec {
	out := append(ParamSpec(nil), s...)
	for _, n := range names {
		out = append(out, Param{Name: n, Optional: true})
	}
	return out
}

// Required returns the minimum number of positional arguments: the position
// of the last required parameter plus one.
func (s ParamSpec) Required() int {
	for i := len(s) - 1; i >= 0; i-- {
		if !s[i].Optional {
			return i + 1
		}
	}
	return 0
}

// Total returns the number of declared parameters.
func (s ParamSpec) Total() int {
	return len(s)
}

// Args is an adapted positional argument list. A nil entry stands for an
// optional parameter that was not supplied.
type Args []json.RawMessage

// Len returns the number of arguments.
func (a Args) Len() int {
	return len(a)
}

// Present reports whether argument i was supplied with a non-null value.
func (a Args) Present(i int) bool {
	if i < 0 || i >= len(a) || a[i] == nil {
		return false
	}
	return !bytes.Equal(bytes.TrimSpace(a[i]), []byte("null"))
}

// Decode unmarshals argument i into dst. Missing and placeholder arguments
// leave dst unchanged. Decoding failures are reported as invalid params.
func (a Args) Decode(i int, dst any) error {
	if i < 0 || i >= len(a) || a[i] == nil {
		return nil
	}
	if err := json.Unmarshal(a[i], dst); err != nil {
		return &ParamsError{
			Reason: fmt.Sprintf("param %d: %v", i, err),
			Data:   map[string]any{"position": i},
		}
	}
	return nil
}

// Adapt reconciles request params with spec and returns positional
// arguments.
//
// Absent or null params are an empty list. An array is accepted unchanged
// when its length is between spec.Required() and spec.Total(). An object is
// mapped onto spec in declared order; missing optional parameters become
// nil placeholders. Any other JSON value is passed through as a single
// argument without validation.
func Adapt(spec ParamSpec, params json.RawMessage) (Args, error) {
	params = bytes.TrimSpace(params)
	if len(params) == 0 || bytes.Equal(params, []byte("null")) {
		params = json.RawMessage("[]")
	}

	switch params[0] {
	case '[':
		var list []json.RawMessage
		if err := json.Unmarshal(params, &list); err != nil {
			return nil, &ParamsError{Reason: err.Error()}
		}
		return adaptList(spec, list)
	case '{':
		var named map[string]json.RawMessage
		if err := json.Unmarshal(params, &named); err != nil {
			return nil, &ParamsError{Reason: err.Error()}
		}
		return adaptNamed(spec, named)
	default:
		return Args{params}, nil
	}
}

func adaptList(spec ParamSpec, list []json.RawMessage) (Args, error) {
	given, required, total := len(list), spec.Required(), spec.Total()
	if given < required || given > total {
		reason := fmt.Sprintf("given %d params, expected between %d and %d", given, required, total)
		if required == total {
			reason = fmt.Sprintf("given %d params, expected %d", given, total)
		}
		return nil, &ParamsError{
			Reason: reason,
			Data: map[string]any{
				"given":    given,
				"required": required,
				"total":    total,
			},
		}
	}
	return Args(list), nil
}

func adaptNamed(spec ParamSpec, named map[string]json.RawMessage) (Args, error) {
	args := make(Args, 0, len(spec))
	for _, p := range spec {
		v, ok := named[p.Name]
		switch {
		case ok:
			args = append(args, v)
		case p.Optional:
			args = append(args, nil)
		default:
			return nil, &ParamsError{
				Reason: "missing required param: " + p.Name,
				Data:   map[string]any{"missing": p.Name},
			}
		}
	}
	return args, nil
}
