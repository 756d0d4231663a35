// Command rpcserved serves the built-in JSON-RPC services over HTTP and,
// optionally, NATS.
package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"
)

// Set at build time with -ldflags.
var (
	version = "dev"
	commit  = "none"
)

// Globals are the flags shared by every command.
type Globals struct {
	Config   string `help:"Path to a config file (yaml, toml or json)." type:"path"`
	Listen   string `help:"HTTP listen address. Overrides LISTEN_ADDR."`
	LogLevel string `name:"log-level" help:"DEBUG, INFO, WARN or ERROR. Overrides LOG_LEVEL."`
}

type CLI struct {
	Globals

	Serve   ServeCmd   `cmd:"" default:"1" help:"Run the JSON-RPC server"`
	Methods MethodsCmd `cmd:"" help:"Print the method table and exit"`
	Version VersionCmd `cmd:"" help:"Show version information"`
}

type VersionCmd struct{}

func (VersionCmd) Run() error {
	fmt.Printf("rpcserved %s (%s)\n", version, commit)
	return nil
}

func main() {
	cli := &CLI{}
	ctx := kong.Parse(cli,
		kong.Name("rpcserved"),
		kong.Description("JSON-RPC 2.0 server"),
		kong.ConfigureHelp(kong.HelpOptions{Compact: true}),
	)
	if err := ctx.Run(&cli.Globals); err != nil {
		fmt.Fprintln(os.Stderr, "rpcserved:", err)
		os.Exit(1)
	}
}
