// Package jsonrpc implements a JSON-RPC 2.0 request dispatcher.
//
// This package implements the JSON-RPC 2.0 specification (https://www.jsonrpc.org/specification)
// for single requests, and JSON-RPC over HTTP (https://www.simple-is-better.org/json-rpc/transport_http.html)
// through the endpoint package.
//
// # Basic Usage
//
// Public method names are mapped to a service reference and a member name.
// Services are located by reference at dispatch time:
//
//	registry := jsonrpc.NewRegistry(map[string]jsonrpc.Descriptor{
//	    "add": {Service: "math", Member: "Add"},
//	})
//	services := jsonrpc.Services{"math": jsonrpc.Reflect(&MathService{})}
//	d := jsonrpc.NewDispatcher(registry, services)
//	http.Handle("/rpc", jsonrpc.NewHandler(d, nil))
//
// The registry may also be built from configuration:
//
//	registry, err := jsonrpc.RegistryFromConfig(map[string]string{"add": "math::Add"})
//
// # Members
//
// A member publishes its parameter list when it is registered. Use Func to
// declare it explicitly:
//
//	jsonrpc.Members{
//	    "Add": jsonrpc.Func(jsonrpc.Params("a", "b"), func(ctx context.Context, args jsonrpc.Args) (any, error) {
//	        var a, b int
//	        if err := args.Decode(0, &a); err != nil {
//	            return nil, err
//	        }
//	        if err := args.Decode(1, &b); err != nil {
//	            return nil, err
//	        }
//	        return a + b, nil
//	    }),
//	}
//
// or Reflect to derive it from a params struct:
//
//	type AddParams struct {
//	    A int `json:"a"`
//	    B int `json:"b"`
//	    C int `json:"c" jsonrpc:"optional"`
//	}
//
//	func (m *MathService) Add(ctx context.Context, p AddParams) (int, error)
//
// # Params
//
// Array params are passed through when their length lies between the number
// of required and the number of declared parameters. Object params are
// mapped onto the declared parameters by name; missing optional parameters
// are passed as absent. Adaptation failures produce CodeInvalidParams.
//
// # Faults
//
// Members report application errors by returning a *Fault:
//
//	return nil, jsonrpc.NewFault(1001, "bad state", []string{"x"})
//
// The fault's code and message are copied into the error response. String
// entries of its data are passed through the Translator set with
// WithTranslator. Any other error, or a panic, is reported as
// CodeInternalError.
//
// Standard error codes are defined as constants:
//   - CodeParseError (-32700)
//   - CodeInvalidRequest (-32600)
//   - CodeMethodNotFound (-32601)
//   - CodeInvalidParams (-32602)
//   - CodeInternalError (-32603)
package jsonrpc
