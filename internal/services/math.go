package services

import (
	"context"
	"math"

	"github.com/mnehpets/rpcserve/jsonrpc"
)

// Fault codes returned by the math service.
const (
	CodeDivisionByZero = 1001
	CodeNotFinite      = 1002
)

// Fault data messages. They are catalog keys.
const (
	MsgDivisorZero     = "divisor must not be zero"
	MsgResultNotFinite = "result is out of range"
)

// finite rejects results that have no JSON representation.
func finite(v float64) (float64, error) {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, jsonrpc.NewFault(CodeNotFinite, "result not finite", []string{MsgResultNotFinite})
	}
	return v, nil
}

type mathService struct{}

type binaryParams struct {
	A float64 `json:"a"`
	B float64 `json:"b"`
}

func (mathService) Add(_ context.Context, p binaryParams) (float64, error) {
	return finite(p.A + p.B)
}

type subtractParams struct {
	Minuend    float64 `json:"minuend"`
	Subtrahend float64 `json:"subtrahend"`
}

func (mathService) Subtract(_ context.Context, p subtractParams) (float64, error) {
	return finite(p.Minuend - p.Subtrahend)
}

type divideParams struct {
	Dividend float64 `json:"dividend"`
	Divisor  float64 `json:"divisor"`
}

func (mathService) Divide(_ context.Context, p divideParams) (float64, error) {
	if p.Divisor == 0 {
		return 0, jsonrpc.NewFault(CodeDivisionByZero, "division by zero", []string{MsgDivisorZero})
	}
	return finite(p.Dividend / p.Divisor)
}

var sumParams = jsonrpc.Params("a", "b", "c").Optional("c")

// sum adds two or three numbers.
func sum(_ context.Context, args jsonrpc.Args) (any, error) {
	var total float64
	for i := 0; i < args.Len(); i++ {
		var v float64
		if err := args.Decode(i, &v); err != nil {
			return nil, err
		}
		total += v
	}
	return finite(total)
}

// Math returns the math service: Add, Subtract, Divide and Sum.
func Math() jsonrpc.Members {
	members := jsonrpc.Reflect(mathService{})
	members["Sum"] = jsonrpc.Func(sumParams, sum)
	return members
}
