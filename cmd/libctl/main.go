// Package main provides the entry point for libctl, the Libris operator tool.
package main

import (
	"fmt"
	"os"

	"github.com/libris/libris-server/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
