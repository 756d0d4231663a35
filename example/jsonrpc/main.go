package main

import (
	"context"
	"log"
	"net/http"
	"strings"

	"github.com/mnehpets/rpcserve/jsonrpc"
)

// Greeter is exposed with jsonrpc.Reflect. Each exported method with a
// params struct becomes a member.
type Greeter struct{}

type HelloParams struct {
	Name     string `json:"name"`
	Greeting string `json:"greeting" jsonrpc:"optional"`
}

func (g *Greeter) Hello(ctx context.Context, p HelloParams) (string, error) {
	if p.Greeting == "" {
		p.Greeting = "Hello"
	}
	return p.Greeting + ", " + p.Name + "!", nil
}

type ShoutParams struct {
	_    struct{} `jsonrpc:"shout"`
	Text string   `json:"text"`
}

func (g *Greeter) Shout(ctx context.Context, p ShoutParams) (string, error) {
	if p.Text == "" {
		return "", jsonrpc.NewFault(100, "nothing to shout", []string{"text must not be empty"})
	}
	return strings.ToUpper(p.Text), nil
}

func main() {
	registry := jsonrpc.NewRegistry(map[string]jsonrpc.Descriptor{
		"greeter.hello": {Service: "greeter", Member: "Hello"},
		"greeter.shout": {Service: "greeter", Member: "shout"},
		"strings.join":  {Service: "strings", Member: "join"},
	})

	locator := jsonrpc.Services{
		"greeter": jsonrpc.Reflect(&Greeter{}),
		"strings": jsonrpc.Members{
			// join(parts, sep?) declared explicitly.
			"join": jsonrpc.Func(jsonrpc.Params("parts").Optional("sep"), func(ctx context.Context, args jsonrpc.Args) (any, error) {
				var parts []string
				sep := " "
				if err := args.Decode(0, &parts); err != nil {
					return nil, err
				}
				if err := args.Decode(1, &sep); err != nil {
					return nil, err
				}
				return strings.Join(parts, sep), nil
			}),
		},
	}

	d := jsonrpc.NewDispatcher(registry, locator,
		jsonrpc.WithTranslator(jsonrpc.Catalog{"text must not be empty": "le texte ne doit pas être vide"}))

	http.Handle("/rpc", jsonrpc.NewHandler(d, nil))

	log.Println("Starting server on :8080")
	log.Println(`Try: curl -d '{"jsonrpc":"2.0","method":"greeter.hello","params":{"name":"World"},"id":1}' localhost:8080/rpc`)
	log.Fatal(http.ListenAndServe(":8080", nil))
}
