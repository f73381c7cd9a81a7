// Command signalhub is the entry point for the signal hub. It loads
// configuration, wires dependencies and runs the configured mode until
// SIGINT or SIGTERM.
package main

import (
	"os"

	"github.com/alanyoungcy/signalhub/internal/cli"
)

func main() {
	if err := cli.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
