// Package main provides the CLI for the Themis database health-check engine.
package main

import (
	"os"

	"github.com/leapstack-labs/themis/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
