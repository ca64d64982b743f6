// Package main provides the entry point for the forge CLI.
package main

import (
	"fmt"
	"os"

	"github.com/sk8tingusmc/forge/cmd/forge/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
