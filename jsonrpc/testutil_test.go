package jsonrpc

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"
)

// newTestDispatcher registers a small set of members covering every
// dispatch outcome.
func newTestDispatcher(opts ...Option) *Dispatcher {
	registry := NewRegistry(map[string]Descriptor{
		"add":        {Service: "math", Member: "add"},
		"zero":       {Service: "math", Member: "zero"},
		"inf":        {Service: "math", Member: "inf"},
		"opt":        {Service: "math", Member: "opt"},
		"fault":      {Service: "faults", Member: "fault"},
		"faultMap":   {Service: "faults", Member: "faultMap"},
		"boom":       {Service: "faults", Member: "boom"},
		"panic":      {Service: "faults", Member: "panic"},
		"protocol":   {Service: "faults", Member: "protocol"},
		"noService":  {Service: "missing", Member: "add"},
		"noMember":   {Service: "math", Member: "missing"},
		"nilService": {Service: "nil", Member: "add"},
	})

	locator := Services{
		"math": Members{
			"add": Func(Params("a", "b"), func(_ context.Context, args Args) (any, error) {
				var a, b int
				if err := args.Decode(0, &a); err != nil {
					return nil, err
				}
				if err := args.Decode(1, &b); err != nil {
					return nil, err
				}
				return a + b, nil
			}),
			"zero": Func(nil, func(context.Context, Args) (any, error) {
				return "zero-result", nil
			}),
			"inf": Func(nil, func(context.Context, Args) (any, error) {
				return math.Inf(1), nil
			}),
			// opt reports which positions were supplied.
			"opt": Func(Params("a").Optional("b", "c"), func(_ context.Context, args Args) (any, error) {
				present := make([]bool, args.Len())
				for i := range present {
					present[i] = args.Present(i)
				}
				return present, nil
			}),
		},
		"faults": Members{
			"fault": Func(nil, func(context.Context, Args) (any, error) {
				return nil, NewFault(1001, "bad state", []string{"x"})
			}),
			"faultMap": Func(nil, func(context.Context, Args) (any, error) {
				return nil, fmtWrap(NewFault(42, "wrapped", map[string]any{"field": "x", "n": 1}))
			}),
			"boom": Func(nil, func(context.Context, Args) (any, error) {
				return nil, errors.New("database password is hunter2")
			}),
			"panic": Func(nil, func(context.Context, Args) (any, error) {
				panic("kaboom")
			}),
			"protocol": Func(nil, func(context.Context, Args) (any, error) {
				return nil, NewError(CodeInvalidParams, "custom detail")
			}),
		},
		"nil": nil,
	}
	return NewDispatcher(registry, locator, opts...)
}

type wrapErr struct{ err error }

func (w wrapErr) Error() string { return "wrapped: " + w.err.Error() }
func (w wrapErr) Unwrap() error { return w.err }

func fmtWrap(err error) error { return wrapErr{err: err} }

// wire marshals resp and decodes it back into a generic map.
func wire(t *testing.T, resp *Response) map[string]any {
	t.Helper()
	raw, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("marshal response: %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("unmarshal response %s: %v", raw, err)
	}
	return out
}

// wireError returns the error object of out, failing the test if absent.
func wireError(t *testing.T, out map[string]any) map[string]any {
	t.Helper()
	if _, ok := out["result"]; ok {
		t.Fatalf("expected error response, got result: %v", out)
	}
	e, ok := out["error"].(map[string]any)
	if !ok {
		t.Fatalf("expected error object, got %v", out)
	}
	return e
}

func wireCode(t *testing.T, out map[string]any) int {
	t.Helper()
	return int(wireError(t, out)["code"].(float64))
}
