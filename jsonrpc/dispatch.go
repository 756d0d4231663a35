package jsonrpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"time"
)

// Observer receives the outcome of every dispatched call. method is empty
// when the request did not name a registered method; code is 0 on success.
type Observer interface {
	ObserveCall(method string, code int, elapsed time.Duration)
}

// Dispatcher runs the JSON-RPC request pipeline against a Registry and a
// Locator. It holds no per-request state and is safe for concurrent use.
type Dispatcher struct {
	registry   *Registry
	locator    Locator
	translator Translator
	logger     *slog.Logger
	observer   Observer
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithTranslator sets the translator applied to fault data.
func WithTranslator(t Translator) Option {
	return func(d *Dispatcher) {
		d.translator = t
	}
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithObserver sets the call observer.
func WithObserver(o Observer) Option {
	return func(d *Dispatcher) {
		d.observer = o
	}
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(registry *Registry, locator Locator, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		registry: registry,
		locator:  locator,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Registry returns the dispatcher's method registry.
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// Dispatch decodes body and handles it. It always returns a response.
func (d *Dispatcher) Dispatch(ctx context.Context, body []byte) *Response {
	start := time.Now()
	req, rpcErr := decodeRequest(body)
	if rpcErr != nil {
		var id any
		if req != nil {
			id = idValue(req.ID)
		}
		resp := Failure(id, rpcErr)
		d.observe("", resp, start)
		return resp
	}
	return d.Handle(ctx, req)
}

// Reject answers a request refused by the transport before it could be
// parsed. The id is null.
func (d *Dispatcher) Reject(rpcErr *Error) *Response {
	resp := Failure(nil, rpcErr)
	d.observe("", resp, time.Now())
	return resp
}

// Handle runs a decoded request through envelope validation, method
// resolution, parameter adaptation and invocation. It always returns a
// response and never panics on behalf of a member.
func (d *Dispatcher) Handle(ctx context.Context, req *Request) (resp *Response) {
	start := time.Now()
	if req == nil {
		resp = Failure(nil, NewError(CodeParseError, nil))
		d.observe("", resp, start)
		return resp
	}

	id := idValue(req.ID)
	resolved := ""
	defer func() {
		d.observe(resolved, resp, start)
	}()

	if req.JSONRPC != Version {
		return Failure(id, NewError(CodeInvalidRequest, nil))
	}

	desc, ok := d.registry.Resolve(req.Method)
	if !ok {
		return Failure(id, NewError(CodeMethodNotFound, nil))
	}
	member, ok := d.member(desc)
	if !ok {
		d.logger.Warn("jsonrpc: registered method is not callable", "method", req.Method, "target", desc.String())
		return Failure(id, NewError(CodeMethodNotFound, nil))
	}
	resolved = req.Method

	args, err := Adapt(member.Params(), req.Params)
	if err != nil {
		return Failure(id, d.errorFor(req.Method, err))
	}

	result, err := d.invoke(ctx, member, args)
	if err != nil {
		return Failure(id, d.errorFor(req.Method, err))
	}
	return Success(id, result)
}

func (d *Dispatcher) member(desc Descriptor) (Member, bool) {
	if d.locator == nil {
		return nil, false
	}
	svc, ok := d.locator.Service(desc.Service)
	if !ok {
		return nil, false
	}
	return svc.Member(desc.Member)
}

// invoke calls m, converting a panic into an error.
func (d *Dispatcher) invoke(ctx context.Context, m Member, args Args) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("jsonrpc: panic: %v", r)
		}
	}()
	return m.Invoke(ctx, args)
}

// errorFor maps an adaptation or invocation error to an error object.
func (d *Dispatcher) errorFor(method string, err error) *Error {
	if isNilPointer(err) {
		d.logger.Error("jsonrpc: method returned a nil error value", "method", method, "type", fmt.Sprintf("%T", err))
		return NewError(CodeInternalError, nil)
	}

	var pe *ParamsError
	if errors.As(err, &pe) && pe != nil {
		data := map[string]any{"reason": pe.Reason}
		for k, v := range pe.Data {
			data[k] = v
		}
		return NewError(CodeInvalidParams, data)
	}

	var fault *Fault
	if errors.As(err, &fault) && fault != nil {
		return &Error{
			Code:    fault.Code,
			Message: fault.Message,
			Data:    normalizeData(translateData(d.translator, fault.Data)),
		}
	}

	var rpcErr *Error
	if errors.As(err, &rpcErr) && rpcErr != nil {
		return &Error{Code: rpcErr.Code, Message: rpcErr.Message, Data: normalizeData(rpcErr.Data)}
	}

	d.logger.Error("jsonrpc: method failed", "method", method, "error", errorText(err))
	return NewError(CodeInternalError, nil)
}

// isNilPointer reports whether err is a nil pointer stored in a non-nil
// error interface.
func isNilPointer(err error) bool {
	v := reflect.ValueOf(err)
	return v.Kind() == reflect.Pointer && v.IsNil()
}

// errorText returns err.Error(), or a placeholder when a wrapped nil
// pointer makes Error panic.
func errorText(err error) (text string) {
	defer func() {
		if r := recover(); r != nil {
			text = fmt.Sprintf("%T (Error panicked: %v)", err, r)
		}
	}()
	return err.Error()
}

func (d *Dispatcher) observe(method string, resp *Response, start time.Time) {
	elapsed := time.Since(start)
	code := 0
	if resp.IsError() {
		code = resp.Error.Code
	}
	d.logger.Debug("jsonrpc: call", "method", method, "code", code, "elapsed", elapsed)
	if d.observer != nil {
		d.observer.ObserveCall(method, code, elapsed)
	}
}
