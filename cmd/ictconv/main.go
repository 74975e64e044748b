package main

import (
	"os"
	_ "time/tzdata"

	"github.com/ict-report/backend/internal/cli"
)

// Build variables set by ldflags
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	cmd := cli.NewRootCommand(Version, BuildTime)
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
