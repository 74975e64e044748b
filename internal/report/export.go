package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"sync"

	"github.com/ict-report/backend/internal/models"
	"github.com/vmihailenco/msgpack/v5"
)

// WriteJSON writes the reports as an indented JSON array.
func WriteJSON(w io.Writer, reports []*models.UUTReport) error {
	if reports == nil {
		reports = []*models.UUTReport{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(reports)
}

// WriteMsgpack writes the reports as one msgpack array.
func WriteMsgpack(w io.Writer, reports []*models.UUTReport) error {
	return msgpack.NewEncoder(w).Encode(reports)
}

// ReadMsgpack decodes reports written by WriteMsgpack.
func ReadMsgpack(r io.Reader) ([]*models.UUTReport, error) {
	var reports []*models.UUTReport
	if err := msgpack.NewDecoder(r).Decode(&reports); err != nil {
		return nil, fmt.Errorf("failed to decode reports: %w", err)
	}
	return reports, nil
}

var csvHeader = []string{
	"report_id", "part_number", "serial_number", "start_utc", "execution_time_s", "uut_status",
	"group", "group_status", "step", "step_type", "step_status",
	"pass_fail", "value", "comp_op", "low_limit", "high_limit", "unit",
}

// CSVWriter writes one row per step. It is safe for concurrent use and
// implements parser.Submitter.
type CSVWriter struct {
	writer *csv.Writer
	mu     sync.Mutex
	err    error
}

// NewCSVWriter writes the header row and returns the writer.
func NewCSVWriter(w io.Writer) (*CSVWriter, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return nil, err
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return nil, err
	}
	return &CSVWriter{writer: cw}, nil
}

// Write appends the steps of one report and flushes.
func (cw *CSVWriter) Write(report *models.UUTReport) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	base := []string{
		report.ID,
		report.PartNumber,
		report.SerialNumber,
		report.StartDateTimeUTC.Format("2006-01-02T15:04:05Z07:00"),
		fmt.Sprintf("%.3f", report.ExecutionTime),
		string(report.Status),
	}

	if report.Root != nil {
		for _, group := range report.Root.SequenceCalls {
			for _, step := range group.Steps {
				record := append(append([]string{}, base...),
					group.Name,
					string(group.Status),
					step.Name,
					string(step.Type),
					string(step.Status),
				)
				record = append(record, stepColumns(step)...)
				if err := cw.writer.Write(record); err != nil {
					return err
				}
			}
		}
	}

	cw.writer.Flush()
	return cw.writer.Error()
}

// Submit writes the report, keeping the first error for Err.
func (cw *CSVWriter) Submit(report *models.UUTReport) {
	if err := cw.Write(report); err != nil {
		cw.mu.Lock()
		if cw.err == nil {
			cw.err = err
		}
		cw.mu.Unlock()
	}
}

// Err returns the first error seen by Submit.
func (cw *CSVWriter) Err() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	return cw.err
}

func stepColumns(step *models.Step) []string {
	if step.Numeric == nil {
		pf := ""
		if step.PassFail != nil {
			pf = strconv.FormatBool(*step.PassFail)
		}
		return []string{pf, "", "", "", "", ""}
	}
	m := step.Numeric
	return []string{
		"",
		formatFloat(m.Value),
		string(m.CompOp),
		formatFloat(m.LowLimit),
		formatFloat(m.HighLimit),
		m.Unit,
	}
}

func formatFloat(f models.Float) string {
	v := float64(f)
	if math.IsNaN(v) {
		return "NaN"
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}
