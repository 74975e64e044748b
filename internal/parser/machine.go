package parser

import (
	"strings"
	"time"

	"github.com/ict-report/backend/internal/models"
)

// ImportState tracks where the converter is within a test run.
type ImportState int

const (
	AwaitingHeader ImportState = iota
	InTest
)

func (s ImportState) String() string {
	if s == InTest {
		return "InTest"
	}
	return "AwaitingHeader"
}

// Options are the per-converter settings the state machine applies to every report.
type Options struct {
	PartNumber string
	Location   *time.Location
}

// State is the complete conversion context of one input. It is owned by a single
// conversion and must not be shared between inputs.
type State struct {
	Import ImportState
	// Report is the run under construction.
	Report *models.UUTReport
	// PrevCategory is the step group name of the previous measurement.
	PrevCategory string
	// Group receives the measurements of PrevCategory.
	Group *models.SequenceCall
}

// NewState returns the state for the beginning of an input.
func NewState() State {
	return State{Import: AwaitingHeader, Report: models.NewUUTReport()}
}

// Advance applies one record to the state. When rec is a footer the finished
// report is returned and the state is reset for the next run in the same input.
// A nil record leaves the state unchanged.
func Advance(st State, rec Record, opts Options) (State, *models.UUTReport) {
	switch r := rec.(type) {
	case StartRecord:
		start := CombineDateTime(r.Date, r.TimeOfDay, opts.Location)
		st.Report.StartDateTime = start
		st.Report.StartDateTimeUTC = start.UTC()
		st.Report.PartNumber = opts.PartNumber
		st.Report.SequenceName = r.SequenceName
		st.Report.SequenceVersion = r.SequenceVersion
		st.Report.Operator = r.Operator
		st.Import = InTest

	case SerialNumberRecord:
		st.Report.SerialNumber = r.SerialNumber

	case MeasurementRecord:
		category := CategoryForReference(r.StepRef)
		if st.Group == nil || category != st.PrevCategory {
			st.Group = st.Report.Root.AddSequenceCall(category)
			st.PrevCategory = category
		}
		addMeasurementStep(st.Group, r)

	case FooterRecord:
		report := st.Report
		if !report.StartDateTime.IsZero() {
			end := CombineDateTime(r.Date, r.TimeOfDay, opts.Location)
			report.ExecutionTime = end.Sub(report.StartDateTime).Seconds()
		}
		report.Status = r.Status
		return NewState(), report
	}

	return st, nil
}

// addMeasurementStep creates the step for one measurement. A reading of zero with
// both limits zero is a presence/continuity check and becomes a pass/fail step;
// a genuine zero reading with zero limits is indistinguishable and is treated the
// same way.
func addMeasurementStep(group *models.SequenceCall, r MeasurementRecord) *models.Step {
	passed := strings.HasPrefix(r.Result, "PASS")

	if r.Measured == 0 && r.LowLimit == 0 && r.HighLimit == 0 {
		return group.AddPassFailStep(r.StepName, passed)
	}

	m := models.NumericMeasurement{
		Value:     models.Float(r.Measured),
		LowLimit:  models.Float(r.LowLimit),
		HighLimit: models.Float(r.HighLimit),
		Unit:      r.Unit,
	}
	switch {
	case r.HighLimit == 0:
		m.CompOp = models.CompOpGE
	case r.LowLimit == 0:
		m.CompOp = models.CompOpLE
	default:
		m.CompOp = models.CompOpGELE
	}
	return group.AddNumericLimitStep(r.StepName, m, passed)
}
