package services

import (
	"context"

	"github.com/mnehpets/rpcserve/jsonrpc"
)

// System returns the system service: Ping, ListMethods and Version.
func System(listMethods func() []string, version string) jsonrpc.Members {
	return jsonrpc.Members{
		"Ping": jsonrpc.Func(nil, func(context.Context, jsonrpc.Args) (any, error) {
			return "pong", nil
		}),
		"ListMethods": jsonrpc.Func(nil, func(context.Context, jsonrpc.Args) (any, error) {
			if listMethods == nil {
				return []string{}, nil
			}
			return listMethods(), nil
		}),
		"Version": jsonrpc.Func(nil, func(context.Context, jsonrpc.Args) (any, error) {
			return version, nil
		}),
	}
}
