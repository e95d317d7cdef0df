// Package main is the entry point for the cpx pipeline CLI.
package main

import (
	"os"

	"github.com/clearpath-media/cp-whisperx/cmd/cpx/cmd"
	"github.com/clearpath-media/cp-whisperx/internal/pipeline/core"
)

func main() {
	os.Exit(core.ExitCode(cmd.Execute()))
}
