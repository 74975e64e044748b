// Package cli implements the ictconv command line tool.
package cli

import (
	"fmt"
	"runtime"
	"time"

	"github.com/ict-report/backend/internal/logging"
	"github.com/ict-report/backend/internal/parser"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	verbose    bool
	partNumber string
	argsFile   string
	timeZone   string
)

// NewRootCommand creates the root command
func NewRootCommand(version, buildTime string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "ictconv",
		Short: "Convert SPEA ICT 3030 test logs into UUT reports",
		Long: `ictconv reads the semicolon-separated logs written by SPEA ICT 3030 in-circuit
testers and converts every test run into a structured UUT report with its
measurements grouped by component category.

Reports can be written as JSON, CSV or msgpack, or a drop folder can be
watched and every new log imported as it arrives.`,
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&partNumber, "part-number", "", "part number stamped on every report (default PN1)")
	rootCmd.PersistentFlags().StringVar(&argsFile, "args", "", "YAML file with converter arguments")
	rootCmd.PersistentFlags().StringVar(&timeZone, "tz", "", "IANA time zone the tester clock runs in (default local)")

	rootCmd.AddCommand(newConvertCommand())
	rootCmd.AddCommand(newWatchCommand())
	rootCmd.AddCommand(newVersionCommand(version, buildTime))

	return rootCmd
}

func newVersionCommand(version, buildTime string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			if version == "" || version == "dev" {
				version = "development"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ictconv %s built %s\n", version, buildTime)
			fmt.Fprintf(cmd.OutOrStdout(), "Go version: %s\n", runtime.Version())
			fmt.Fprintf(cmd.OutOrStdout(), "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}

// newLogger returns the console logger for the current verbosity.
func newLogger() (*zap.Logger, error) {
	level := "warn"
	if verbose {
		level = "debug"
	}
	return logging.New(level, true)
}

// newRegistry builds the converter registry from the global flags.
func newRegistry(logger *zap.Logger) (*parser.Registry, error) {
	args := parser.DefaultArguments()
	if argsFile != "" {
		loaded, err := parser.LoadArguments(argsFile)
		if err != nil {
			return nil, fmt.Errorf("loading converter arguments: %w", err)
		}
		args = loaded
	}
	args = args.Merge(parser.Arguments{parser.ArgPartNumber: partNumber})

	loc := time.Local
	if timeZone != "" {
		var err error
		if loc, err = time.LoadLocation(timeZone); err != nil {
			return nil, fmt.Errorf("invalid time zone %q: %w", timeZone, err)
		}
	}

	return parser.NewRegistry(args,
		parser.WithLogger(logger.Named("converter")),
		parser.WithLocation(loc)), nil
}
