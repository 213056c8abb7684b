// Selia is a multi-agent chat orchestration daemon.
//
// A supervisor routes each user question through worker agents backed
// by MCP tool servers, with long-term memory and per-chat history.
package main

import (
	"os"

	"github.com/mfadhlan/selia/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
