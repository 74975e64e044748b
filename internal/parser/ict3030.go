package parser

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ict-report/backend/internal/models"
	"go.uber.org/zap"
)

const (
	// progressInterval is the number of lines between progress callbacks.
	progressInterval = 1000
	maxLineSize      = 1024 * 1024
	utf8BOM          = "\uFEFF"
)

// detectLines is how many lines CanParse reads looking for a start header.
const detectLines = 200

// ICT3030Converter converts SPEA ICT 3030 test logs into UUT reports.
// It only holds configuration: every Convert call runs its own State, so one
// converter may serve several inputs concurrently.
type ICT3030Converter struct {
	classifier *Classifier
	opts       Options
	logger     *zap.Logger
}

// Option configures an ICT3030Converter.
type Option func(*ICT3030Converter)

// WithLogger sets the logger used for conversion diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return func(p *ICT3030Converter) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithLocation sets the time zone the tester's local timestamps are written in.
func WithLocation(loc *time.Location) Option {
	return func(p *ICT3030Converter) {
		if loc != nil {
			p.opts.Location = loc
		}
	}
}

// NewICT3030Converter creates a converter from converter arguments.
func NewICT3030Converter(args Arguments, options ...Option) *ICT3030Converter {
	p := &ICT3030Converter{
		classifier: NewClassifier(),
		opts: Options{
			PartNumber: args.PartNumber(),
			Location:   time.Local,
		},
		logger: zap.NewNop(),
	}
	for _, opt := range options {
		opt(p)
	}
	return p
}

func (p *ICT3030Converter) Name() string {
	return "spea_ict3030"
}

// PartNumber returns the part number applied to every report.
func (p *ICT3030Converter) PartNumber() string {
	return p.opts.PartNumber
}

func (p *ICT3030Converter) CanParse(filePath string) (bool, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return false, err
	}
	defer file.Close()

	// Banner lines ahead of the first run are skipped during conversion, so
	// any start header near the top of the file is enough.
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	for n := 0; n < detectLines && scanner.Scan(); n++ {
		line := strings.TrimSpace(strings.TrimPrefix(scanner.Text(), utf8BOM))
		if strings.HasPrefix(line, "START;") {
			return true, nil
		}
	}
	return false, scanner.Err()
}

func (p *ICT3030Converter) ConvertFile(filePath string, sink Submitter) (*Result, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return p.Convert(file, WithSourceFile(filepath.Base(filePath), sink))
}

func (p *ICT3030Converter) Convert(r io.Reader, sink Submitter) (*Result, error) {
	return p.ConvertWithProgress(r, 0, sink, nil)
}

func (p *ICT3030Converter) ConvertWithProgress(r io.Reader, totalBytes int64, sink Submitter, onProgress ProgressCallback) (*Result, error) {
	counter := &countingReader{r: r}
	scanner := bufio.NewScanner(counter)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	result := &Result{ReportIDs: make([]string, 0)}
	st := NewState()

	for scanner.Scan() {
		result.Lines++
		raw := scanner.Text()
		if result.Lines == 1 {
			raw = strings.TrimPrefix(raw, utf8BOM)
		}

		rec, err := p.classifier.Classify(PreprocessLine(raw), st.Import)
		if err != nil {
			p.logger.Warn("aborting conversion on malformed field",
				zap.Int("line", result.Lines),
				zap.Error(err))
			return result, &LineError{Line: result.Lines, Content: raw, Err: err}
		}
		if rec == nil {
			result.SkippedLines++
		} else {
			p.checkOrder(st, rec, result.Lines)

			var done *models.UUTReport
			st, done = Advance(st, rec, p.opts)
			if done != nil {
				p.logger.Info("report finalized",
					zap.String("id", done.ID),
					zap.String("serialNumber", done.SerialNumber),
					zap.String("status", string(done.Status)),
					zap.Int("steps", done.Root.StepCount()),
					zap.Float64("executionTime", done.ExecutionTime))
				result.ReportIDs = append(result.ReportIDs, done.ID)
				sink.Submit(done)
			}
		}

		if onProgress != nil && result.Lines%progressInterval == 0 {
			onProgress(result.Lines, counter.n, totalBytes)
		}
	}

	if err := scanner.Err(); err != nil {
		return result, err
	}

	if onProgress != nil {
		onProgress(result.Lines, counter.n, totalBytes)
	}

	if st.Import == InTest {
		result.Incomplete = true
		p.logger.Warn("input ended inside a test run; report discarded",
			zap.String("serialNumber", st.Report.SerialNumber))
	}

	return result, nil
}

// checkOrder logs records that arrive outside their expected import state. They
// are still applied.
func (p *ICT3030Converter) checkOrder(st State, rec Record, line int) {
	kind := rec.Kind()
	switch {
	case kind == KindStart && st.Import == InTest:
		p.logger.Warn("start header inside an open test run",
			zap.Int("line", line))
	case kind != KindStart && st.Import == AwaitingHeader:
		p.logger.Warn("record before start header",
			zap.Int("line", line),
			zap.Stringer("kind", kind))
	}
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(b []byte) (int, error) {
	n, err := c.r.Read(b)
	c.n += int64(n)
	return n, err
}
