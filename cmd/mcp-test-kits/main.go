// Command mcp-test-kits serves the MCP test tools over streamable HTTP,
// optionally behind the built-in OAuth 2.1 authorization server.
package main

import (
	"os"

	"github.com/midodimori/mcp-test-kits/cmd/mcp-test-kits/app"
)

func main() {
	if err := app.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
