// Package main is the entry point for the jobctl application.
package main

import (
	"os"

	"github.com/jmylchreest/jobctl/cmd/jobctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(cmd.ExitCode(err))
	}
}
