// Package services holds the RPC services built into rpcserved.
package services

import (
	"github.com/mnehpets/rpcserve/jsonrpc"
)

// DefaultMethods is the method table used when the configuration does not
// name one.
func DefaultMethods() map[string]string {
	return map[string]string{
		"system.ping":        "system::Ping",
		"system.listMethods": "system::ListMethods",
		"system.version":     "system::Version",
		"math.add":           "math::Add",
		"math.subtract":      "math::Subtract",
		"math.divide":        "math::Divide",
		"math.sum":           "math::Sum",
	}
}

// Locator returns the built-in services. listMethods reports the public
// method names for system.listMethods.
func Locator(listMethods func() []string, version string) jsonrpc.Services {
	return jsonrpc.Services{
		"system": System(listMethods, version),
		"math":   Math(),
	}
}
