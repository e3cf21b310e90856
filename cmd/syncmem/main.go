// Package main provides the syncmem CLI.
package main

import (
	"os"

	"github.com/born-ml/syncmem/cmd/syncmem/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
