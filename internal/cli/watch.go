package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/ict-report/backend/internal/models"
	"github.com/ict-report/backend/internal/parser"
	"github.com/ict-report/backend/internal/report"
	"github.com/ict-report/backend/internal/watch"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	watchSettle time.Duration
	watchDB     string
)

func newWatchCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch <dir>",
		Short: "Import every log dropped into a directory",
		Long: `Watch a drop folder and convert every log file written into it.

Converted files are moved to done/, files that fail are moved to error/.
Each report is printed as it is finalized and, with --db, stored in a
DuckDB report database. Press Ctrl+C to stop watching.

Examples:
  ictconv watch /srv/ict/drop
  ictconv watch --db reports.duckdb --tz Europe/Berlin /srv/ict/drop`,
		Args: cobra.ExactArgs(1),
		RunE: runWatch,
	}

	cmd.Flags().DurationVar(&watchSettle, "settle", 500*time.Millisecond, "quiet time before a new file is imported")
	cmd.Flags().StringVar(&watchDB, "db", "", "DuckDB report database to store reports in")

	return cmd
}

// reportPrinter writes one line per finalized report.
type reportPrinter struct {
	mu sync.Mutex
	w  io.Writer
}

func (p *reportPrinter) Submit(r *models.UUTReport) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.w, reportLine(r))
}

func runWatch(cmd *cobra.Command, args []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	registry, err := newRegistry(logger)
	if err != nil {
		return err
	}

	sink := report.Multi{&reportPrinter{w: cmd.OutOrStdout()}}
	if watchDB != "" {
		store, err := report.NewDuckStore(watchDB, report.DefaultStoreConfig(), logger.Named("reports"))
		if err != nil {
			return fmt.Errorf("opening report database: %w", err)
		}
		defer store.Close()
		sink = append(report.Multi{store}, sink...)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return watchDir(ctx, cmd.ErrOrStderr(), args[0], registry, sink, logger.Named("watch"))
}

func watchDir(ctx context.Context, status io.Writer, dir string, registry *parser.Registry, sink parser.Submitter, logger *zap.Logger) error {
	w := watch.New(dir, registry, sink, logger)
	w.SetSettle(watchSettle)

	fmt.Fprintln(status, mutedStyle.Render("watching "+dir+" (Ctrl+C to stop)"))
	if err := w.Run(ctx); err != nil {
		return err
	}

	stats := w.Stats()
	fmt.Fprintln(status, mutedStyle.Render(fmt.Sprintf(
		"%d files imported, %d failed, %d reports", stats.Imported, stats.Failed, stats.Reports)))
	return nil
}
