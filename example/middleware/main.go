package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"

	"github.com/mnehpets/rpcserve/endpoint"
	"github.com/mnehpets/rpcserve/jsonrpc"
	"github.com/mnehpets/rpcserve/middleware"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	registry := jsonrpc.NewRegistry(map[string]jsonrpc.Descriptor{
		"ping": {Service: "system", Member: "ping"},
	})
	locator := jsonrpc.Services{
		"system": jsonrpc.Members{
			"ping": jsonrpc.Func(nil, func(context.Context, jsonrpc.Args) (any, error) {
				return "pong", nil
			}),
		},
	}
	d := jsonrpc.NewDispatcher(registry, locator, jsonrpc.WithLogger(logger))

	// Processors run in order before the JSON-RPC endpoint. CORS preflight
	// requests are answered by the headers processor.
	processors := []endpoint.Processor{
		middleware.NewAccessLogProcessor(logger),
		middleware.NewHeadersProcessor(
			middleware.WithHSTS(7776000),
			middleware.WithCORS(&middleware.CORSConfig{
				AllowedOrigins: []string{"https://app.example.com"},
				MaxAge:         3600,
			}),
		),
		middleware.NewRateLimitProcessor(5, 10),
	}

	http.Handle("/rpc", jsonrpc.NewHandler(d, jsonrpc.JSONSerializer{}, processors...))

	log.Println("Server starting on :8080")
	if err := http.ListenAndServe(":8080", nil); err != nil {
		log.Fatal(err)
	}
}
