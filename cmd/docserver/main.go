// Package main provides the entry point for the docserver CLI.
package main

import (
	"os"

	"github.com/Aman-CERP/amanmcp/cmd/docserver/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
