// Package main is the entry point for the gfl CLI application.
package main

import (
	"fmt"
	"os"

	"github.com/danielolaszy/gfl/cmd"
	"github.com/danielolaszy/gfl/internal/logging"
)

func main() {
	if err := cmd.Execute(); err != nil {
		logging.Error("command execution failed", "error", err)
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
