package parser

import (
	"fmt"
	"time"

	"github.com/ict-report/backend/internal/models"
)

// RecordKind tags the record types of an ICT 3030 log.
type RecordKind int

const (
	KindNoMatch RecordKind = iota
	KindStart
	KindMeasurement
	KindSerialNumber
	KindFooter
)

func (k RecordKind) String() string {
	switch k {
	case KindStart:
		return "Start"
	case KindMeasurement:
		return "Measurement"
	case KindSerialNumber:
		return "SerialNumber"
	case KindFooter:
		return "Footer"
	default:
		return "NoMatch"
	}
}

// Record is one classified log line. A nil Record means the line matched nothing.
type Record interface {
	Kind() RecordKind
}

// StartRecord is the START; header that opens a test run.
type StartRecord struct {
	Program         string
	SequenceName    string
	SequenceVersion string
	Operator        string
	Date            time.Time     // midnight of the start date
	TimeOfDay       time.Duration // offset from midnight
}

func (StartRecord) Kind() RecordKind { return KindStart }

// MeasurementRecord is one ANL; measurement line.
type MeasurementRecord struct {
	StepRef   string
	StepName  string
	Result    string
	Measured  float64
	LowLimit  float64
	HighLimit float64
	Unit      string
}

func (MeasurementRecord) Kind() RecordKind { return KindMeasurement }

// SerialNumberRecord carries the SN; value verbatim.
type SerialNumberRecord struct {
	SerialNumber string
}

func (SerialNumberRecord) Kind() RecordKind { return KindSerialNumber }

// FooterRecord is the END; line that closes a test run.
type FooterRecord struct {
	Status    models.UUTStatus
	Date      time.Time
	TimeOfDay time.Duration
}

func (FooterRecord) Kind() RecordKind { return KindFooter }

// KindOf returns the kind of rec, KindNoMatch for nil.
func KindOf(rec Record) RecordKind {
	if rec == nil {
		return KindNoMatch
	}
	return rec.Kind()
}

// FieldFormatError reports a matched sub-field whose value does not parse as its
// declared type.
type FieldFormatError struct {
	Record RecordKind
	Field  string
	Value  string
	Err    error
}

func (e *FieldFormatError) Error() string {
	return fmt.Sprintf("%s field %s: invalid value %q: %v", e.Record, e.Field, e.Value, e.Err)
}

func (e *FieldFormatError) Unwrap() error {
	return e.Err
}

// LineError locates a conversion failure in the input.
type LineError struct {
	Line    int
	Content string
	Err     error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *LineError) Unwrap() error {
	return e.Err
}

// ParseError converts the failure to the form stored on import sessions.
func (e *LineError) ParseError() models.ParseError {
	return models.ParseError{Line: e.Line, Content: e.Content, Reason: e.Err.Error()}
}
