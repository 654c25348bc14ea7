package main

import (
	"os"

	"github.com/FridaySalami/spapi-sync/internal/cli"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := cli.Execute(version); err != nil {
		os.Exit(cli.GetExitCode(err))
	}
}
