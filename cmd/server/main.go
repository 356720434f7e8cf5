// Package main is the entry point for the runquest binary.
//
// MAIN PACKAGE IN GO:
// main should stay minimal. Everything else (flags, config, wiring) lives in
// internal/cli and the packages it calls, where it can be tested.
//
// WHY cmd/server/?
// The cmd/ directory is a Go convention for executable entry points. The
// binary's default job is serving the dashboard; its other subcommands run
// the same services from a terminal.
package main

import (
	"os"

	"github.com/sakif/runquest/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
