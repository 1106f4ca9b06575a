// Package main is the entry point for the Arisa moderation bot.
package main

import (
	"fmt"
	"os"

	"github.com/danielolaszy/arisa/cmd"
	"github.com/danielolaszy/arisa/internal/logging"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// main is the entry point of the application.
// It executes the root command and handles any errors that occur.
func main() {
	logging.Info("starting arisa", "version", version)

	if err := cmd.Execute(); err != nil {
		logging.Error("command execution failed", "error", err)
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
