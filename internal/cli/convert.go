package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"

	"github.com/ict-report/backend/internal/models"
	"github.com/ict-report/backend/internal/parser"
	"github.com/ict-report/backend/internal/report"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	convertFormat string
	convertOut    string
	convertJobs   int
)

// fileResult is the outcome of converting one input file.
type fileResult struct {
	name       string
	reports    []*models.UUTReport
	incomplete bool
	err        error
}

func (r fileResult) counts() (passed, failed int) {
	for _, rep := range r.reports {
		if rep.Status == models.UUTStatusPassed {
			passed++
		} else {
			failed++
		}
	}
	return passed, failed
}

func newConvertCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "convert [files...]",
		Short: "Convert tester logs to UUT reports",
		Long: `Convert one or more ICT 3030 logs and write all reports in one document.

Files are converted in parallel. A file with a malformed line stops at that
line; reports finished before it are still written. A summary per file is
printed to stderr.

Examples:
  ictconv convert board1.log board2.log
  ictconv convert --format csv --out results.csv logs/*.log
  ictconv convert --part-number 4711-0815 --tz Europe/Berlin --format msgpack -o out.msgpack board.log`,
		Args: cobra.MinimumNArgs(1),
		RunE: runConvert,
	}

	cmd.Flags().StringVarP(&convertFormat, "format", "f", "json", "output format (json, csv, msgpack)")
	cmd.Flags().StringVarP(&convertOut, "out", "o", "", "output file (default stdout)")
	cmd.Flags().IntVarP(&convertJobs, "jobs", "j", runtime.NumCPU(), "files converted in parallel")

	return cmd
}

func runConvert(cmd *cobra.Command, files []string) error {
	switch convertFormat {
	case "json", "csv", "msgpack":
	default:
		return fmt.Errorf("unsupported output format %q", convertFormat)
	}

	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	registry, err := newRegistry(logger)
	if err != nil {
		return err
	}

	results := make([]fileResult, len(files))
	g := new(errgroup.Group)
	if convertJobs > 0 {
		g.SetLimit(convertJobs)
	}
	for i, path := range files {
		g.Go(func() error {
			results[i] = convertFile(registry, path)
			if results[i].err != nil {
				logger.Warn("conversion failed", zap.String("file", path), zap.Error(results[i].err))
			}
			return nil
		})
	}
	g.Wait()

	var reports []*models.UUTReport
	failed := 0
	for _, r := range results {
		reports = append(reports, r.reports...)
		if r.err != nil {
			failed++
		}
	}

	out := cmd.OutOrStdout()
	if convertOut != "" {
		f, err := os.Create(convertOut)
		if err != nil {
			return fmt.Errorf("creating output file: %w", err)
		}
		defer f.Close()
		out = f
	}

	if err := writeReports(out, reports); err != nil {
		return fmt.Errorf("writing reports: %w", err)
	}

	printSummary(cmd.ErrOrStderr(), results)

	if failed > 0 {
		return fmt.Errorf("%d of %d files failed to convert", failed, len(files))
	}
	return nil
}

// convertFile converts one log; reports stay in input order.
func convertFile(registry *parser.Registry, path string) fileResult {
	res := fileResult{name: filepath.Base(path)}

	c, err := registry.FindConverter(path)
	if err != nil {
		res.err = err
		return res
	}

	collector := report.NewCollector()
	result, err := c.ConvertFile(path, collector)
	res.reports = collector.Reports()
	res.err = err
	if result != nil {
		res.incomplete = result.Incomplete
	}
	return res
}

func writeReports(w io.Writer, reports []*models.UUTReport) error {
	switch convertFormat {
	case "csv":
		cw, err := report.NewCSVWriter(w)
		if err != nil {
			return err
		}
		for _, r := range reports {
			if err := cw.Write(r); err != nil {
				return err
			}
		}
		return nil
	case "msgpack":
		return report.WriteMsgpack(w, reports)
	default:
		return report.WriteJSON(w, reports)
	}
}
