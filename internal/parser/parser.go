package parser

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/ict-report/backend/internal/models"
)

// ProgressCallback is called periodically during conversion to report progress.
type ProgressCallback func(linesProcessed int, bytesProcessed int64, totalBytes int64)

// Submitter receives finished reports. Ownership of the report passes to the
// submitter; the converter never touches it again.
type Submitter interface {
	Submit(report *models.UUTReport)
}

// SubmitterFunc adapts a function to the Submitter interface.
type SubmitterFunc func(report *models.UUTReport)

func (f SubmitterFunc) Submit(report *models.UUTReport) { f(report) }

// WithSourceFile returns a submitter that stamps each report with name before
// passing it on to sink.
func WithSourceFile(name string, sink Submitter) Submitter {
	return SubmitterFunc(func(report *models.UUTReport) {
		report.SourceFile = name
		sink.Submit(report)
	})
}

// Result summarizes one converted input.
type Result struct {
	Lines        int      `json:"lines"`
	SkippedLines int      `json:"skippedLines"`
	ReportIDs    []string `json:"reportIds"`
	// Incomplete is true when the input ended inside a test run.
	Incomplete bool `json:"incomplete"`
}

// Converter defines the interface for test log converters.
type Converter interface {
	// Name returns the unique name of the converter.
	Name() string
	// CanParse returns true if this converter can handle the given file.
	CanParse(filePath string) (bool, error)
	// Convert reads r to the end and submits every finished report to sink.
	Convert(r io.Reader, sink Submitter) (*Result, error)
	// ConvertWithProgress converts with progress callbacks for large inputs.
	ConvertWithProgress(r io.Reader, totalBytes int64, sink Submitter, onProgress ProgressCallback) (*Result, error)
	// ConvertFile converts the file at filePath, stamping each report with
	// the file's base name.
	ConvertFile(filePath string, sink Submitter) (*Result, error)
}

const (
	dateLayout      = "01/02/2006"
	timeOfDayLayout = "15:04:05"
)

// ParseDate parses an MM/dd/yyyy date.
func ParseDate(raw string) (time.Time, error) {
	return time.Parse(dateLayout, strings.TrimSpace(raw))
}

// ParseTimeOfDay parses an HH:mm:ss time of day into an offset from midnight.
func ParseTimeOfDay(raw string) (time.Duration, error) {
	t, err := time.Parse(timeOfDayLayout, strings.TrimSpace(raw))
	if err != nil {
		return 0, err
	}
	return time.Duration(t.Hour())*time.Hour +
		time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second, nil
}

// ParseFloat parses a measurement number. The literal NaN is accepted.
func ParseFloat(raw string) (float64, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, fmt.Errorf("empty number")
	}
	return strconv.ParseFloat(s, 64)
}

// CombineDateTime joins a parsed date and time of day in loc. The time of
// day is a wall clock reading, so DST changes on that date do not shift it.
func CombineDateTime(date time.Time, timeOfDay time.Duration, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	y, m, d := date.Date()
	hh := int(timeOfDay / time.Hour)
	mm := int(timeOfDay % time.Hour / time.Minute)
	ss := int(timeOfDay % time.Minute / time.Second)
	return time.Date(y, m, d, hh, mm, ss, 0, loc)
}
