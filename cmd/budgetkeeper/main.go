// Package main is the budgetkeeper command: an offline-first budget that
// syncs through Dropbox, WebDAV or S3.
package main

import (
	"fmt"
	"os"

	"github.com/atinyakov/BudgetKeeper/internal/cli"
)

var (
	// version holds the build version set via ldflags.
	version string
	// buildDate holds the build timestamp set via ldflags.
	buildDate string
)

func main() {
	cmd := cli.NewRootCommand(cli.BuildInfo{Version: version, BuildDate: buildDate})
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
