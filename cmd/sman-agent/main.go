// Package main provides the entry point for the sman-agent CLI.
package main

import (
	"fmt"
	"os"

	"github.com/smancode/sman-sub006/cmd/sman-agent/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
