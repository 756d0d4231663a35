package jsonrpc

import (
	"context"
	"fmt"
	"reflect"
	"strings"
)

var (
	contextType = reflect.TypeFor[context.Context]()
	errorType   = reflect.TypeFor[error]()
)

// reflectMember holds reflection data for a method derived by Reflect.
type reflectMember struct {
	receiver    reflect.Value
	method      reflect.Method
	paramType   reflect.Type // nil for methods without a params struct
	paramFields []int        // struct field index per declared parameter
	params      ParamSpec
}

func (m *reflectMember) Params() ParamSpec {
	return m.params
}

func (m *reflectMember) Invoke(ctx context.Context, args Args) (any, error) {
	if len(args) > len(m.paramFields) {
		return nil, &ParamsError{
			Reason: fmt.Sprintf("given %d params, method accepts %d", len(args), len(m.paramFields)),
		}
	}

	in := []reflect.Value{m.receiver, reflect.ValueOf(ctx)}
	if m.paramType != nil {
		param := reflect.New(m.paramType)
		for i := range args {
			field := param.Elem().Field(m.paramFields[i])
			if err := args.Decode(i, field.Addr().Interface()); err != nil {
				return nil, err
			}
		}
		in = append(in, param.Elem())
	}

	out := m.method.Func.Call(in)
	var err error
	if !out[1].IsNil() {
		err = out[1].Interface().(error)
	}
	return out[0].Interface(), err
}

// Reflect derives a Service from the exported methods of receiver. The
// parameter list of each member is computed here, once.
//
// Accepted signatures:
//
//	func(ctx context.Context) (R, error)
//	func(ctx context.Context, params P) (R, error)
//
// where P is a struct whose exported fields are the parameters in
// declaration order. The parameter name is taken from the json tag, falling
// back to the field name; a field tagged `jsonrpc:"optional"` is optional.
// A `_` field tagged `jsonrpc:"name"` overrides the member name. Methods
// with other signatures are ignored.
func Reflect(receiver any) Members {
	val := reflect.ValueOf(receiver)
	typ := val.Type()

	members := make(Members)
	for i := 0; i < typ.NumMethod(); i++ {
		method := typ.Method(i)
		if !method.IsExported() {
			continue
		}
		m, name := parseMethod(val, method)
		if m == nil {
			continue
		}
		if _, exists := members[name]; exists {
			panic("jsonrpc: member name collision: " + name)
		}
		members[name] = m
	}
	return members
}

// parseMethod returns nil for methods whose signature is not accepted.
func parseMethod(receiver reflect.Value, method reflect.Method) (*reflectMember, string) {
	ft := method.Func.Type()

	if ft.NumIn() != 2 && ft.NumIn() != 3 {
		return nil, ""
	}
	if ft.In(1) != contextType {
		return nil, ""
	}
	if ft.NumOut() != 2 || ft.Out(1) != errorType {
		return nil, ""
	}

	m := &reflectMember{
		receiver: receiver,
		method:   method,
		params:   ParamSpec{},
	}
	name := method.Name
	if ft.NumIn() == 2 {
		return m, name
	}

	paramType := ft.In(2)
	if paramType.Kind() != reflect.Struct {
		return nil, ""
	}
	m.paramType = paramType

	for i := 0; i < paramType.NumField(); i++ {
		field := paramType.Field(i)
		if field.Name == "_" {
			if tag := field.Tag.Get("jsonrpc"); tag != "" {
				name = tag
			}
			continue
		}
		if !field.IsExported() {
			continue
		}
		pname := field.Name
		if jsonTag := field.Tag.Get("json"); jsonTag != "" {
			pname, _, _ = strings.Cut(jsonTag, ",")
			if pname == "-" {
				continue
			}
			if pname == "" {
				pname = field.Name
			}
		}
		m.params = append(m.params, Param{
			Name:     pname,
			Optional: field.Tag.Get("jsonrpc") == "optional",
		})
		m.paramFields = append(m.paramFields, i)
	}
	return m, name
}
