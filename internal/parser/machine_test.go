package parser

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/ict-report/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var utcOptions = Options{PartNumber: "PN9", Location: time.UTC}

func startAt(date string, tod time.Duration) StartRecord {
	d, err := ParseDate(date)
	if err != nil {
		panic(err)
	}
	return StartRecord{SequenceName: "SEQ", SequenceVersion: "1.0", Operator: "OP1", Date: d, TimeOfDay: tod}
}

func footerAt(status models.UUTStatus, date string, tod time.Duration) FooterRecord {
	d, err := ParseDate(date)
	if err != nil {
		panic(err)
	}
	return FooterRecord{Status: status, Date: d, TimeOfDay: tod}
}

func measure(ref, name, result string, meas, lo, hi float64) MeasurementRecord {
	return MeasurementRecord{StepRef: ref, StepName: name, Result: result, Measured: meas, LowLimit: lo, HighLimit: hi, Unit: "V"}
}

// run feeds records through Advance and returns the final state and any
// finished reports.
func run(records ...Record) (State, []*models.UUTReport) {
	st := NewState()
	var done []*models.UUTReport
	for _, rec := range records {
		var r *models.UUTReport
		st, r = Advance(st, rec, utcOptions)
		if r != nil {
			done = append(done, r)
		}
	}
	return st, done
}

func TestAdvance_StartSetsHeader(t *testing.T) {
	st, done := run(startAt("01/15/2024", 9*time.Hour))
	require.Empty(t, done)

	assert.Equal(t, InTest, st.Import)
	assert.Equal(t, "PN9", st.Report.PartNumber)
	assert.Equal(t, "SEQ", st.Report.SequenceName)
	assert.Equal(t, "OP1", st.Report.Operator)
	assert.True(t, st.Report.StartDateTimeUTC.Equal(time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)))
}

func TestAdvance_GroupsConsecutiveCategories(t *testing.T) {
	st, _ := run(
		startAt("01/15/2024", 9*time.Hour),
		measure("R1", "a", "PASS", 0, 0, 0),
		measure("R2", "b", "PASS", 0, 0, 0),
		measure("C1", "c", "PASS", 0, 0, 0),
		measure("R3", "d", "PASS", 0, 0, 0),
	)

	groups := st.Report.Root.SequenceCalls
	require.Len(t, groups, 3)
	assert.Equal(t, "Resistors", groups[0].Name)
	assert.Len(t, groups[0].Steps, 2)
	assert.Equal(t, "Capacitors", groups[1].Name)
	assert.Equal(t, "Resistors", groups[2].Name)
	assert.Len(t, groups[2].Steps, 1)
	assert.Equal(t, "Resistors", st.PrevCategory)
}

func TestAdvance_GroupFailureIsSticky(t *testing.T) {
	st, _ := run(
		startAt("01/15/2024", 9*time.Hour),
		measure("R1", "a", "FAIL", 0, 0, 0),
		measure("R2", "b", "PASS", 0, 0, 0),
	)

	group := st.Report.Root.SequenceCalls[0]
	assert.Equal(t, models.StepStatusFailed, group.Status)
	assert.Equal(t, models.StepStatusFailed, group.Steps[0].Status)
	assert.Equal(t, models.StepStatusPassed, group.Steps[1].Status)
}

func TestAdvance_StepKinds(t *testing.T) {
	tests := []struct {
		name     string
		rec      MeasurementRecord
		wantType models.StepType
		wantOp   models.CompOperator
		passed   bool
	}{
		{"all zero is pass/fail", measure("J1", "short", "PASS", 0, 0, 0), models.StepTypePassFail, "", true},
		{"zero high limit is GE", measure("R1", "r", "PASS", 5, 1, 0), models.StepTypeNumericLimit, models.CompOpGE, true},
		{"zero low limit is LE", measure("R1", "r", "PASS", 5, 0, 10), models.StepTypeNumericLimit, models.CompOpLE, true},
		{"both limits is GELE", measure("U1", "u", "FAIL", 12.5, 10, 15), models.StepTypeNumericLimit, models.CompOpGELE, false},
		{"result prefix passes", measure("R1", "r", "PASSED", 5, 1, 10), models.StepTypeNumericLimit, models.CompOpGELE, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st, _ := run(startAt("01/15/2024", 9*time.Hour), tt.rec)
			step := st.Report.Root.SequenceCalls[0].Steps[0]

			assert.Equal(t, tt.wantType, step.Type)
			assert.Equal(t, tt.passed, step.Passed())
			if tt.wantType == models.StepTypePassFail {
				require.NotNil(t, step.PassFail)
				assert.Equal(t, tt.passed, *step.PassFail)
				assert.Nil(t, step.Numeric)
				return
			}
			require.NotNil(t, step.Numeric)
			assert.Nil(t, step.PassFail)
			want := models.NumericMeasurement{
				Value:     models.Float(tt.rec.Measured),
				CompOp:    tt.wantOp,
				LowLimit:  models.Float(tt.rec.LowLimit),
				HighLimit: models.Float(tt.rec.HighLimit),
				Unit:      "V",
			}
			if diff := cmp.Diff(want, *step.Numeric); diff != "" {
				t.Errorf("measurement mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestAdvance_FooterFinalizesAndResets(t *testing.T) {
	st, done := run(
		startAt("01/15/2024", 9*time.Hour),
		SerialNumberRecord{SerialNumber: "SN1"},
		measure("R1", "a", "PASS", 0, 0, 0),
		footerAt(models.UUTStatusPassed, "01/15/2024", 9*time.Hour+5*time.Second),
	)

	require.Len(t, done, 1)
	r := done[0]
	assert.Equal(t, "SN1", r.SerialNumber)
	assert.Equal(t, models.UUTStatusPassed, r.Status)
	assert.Equal(t, 5.0, r.ExecutionTime)

	assert.Equal(t, AwaitingHeader, st.Import)
	assert.NotEqual(t, r.ID, st.Report.ID)
	assert.Empty(t, st.Report.Root.SequenceCalls)
	assert.Empty(t, st.PrevCategory)
	assert.Nil(t, st.Group)
}

func TestAdvance_FooterAcrossMidnight(t *testing.T) {
	_, done := run(
		startAt("01/15/2024", 23*time.Hour+59*time.Minute+58*time.Second),
		footerAt(models.UUTStatusFailed, "01/16/2024", 3*time.Second),
	)
	require.Len(t, done, 1)
	assert.Equal(t, 5.0, done[0].ExecutionTime)
}

func TestAdvance_FooterWithoutStart(t *testing.T) {
	st, done := run(
		measure("R1", "a", "PASS", 0, 0, 0),
		footerAt(models.UUTStatusError, "01/15/2024", time.Hour),
	)
	require.Len(t, done, 1)
	assert.Equal(t, 0.0, done[0].ExecutionTime)
	assert.Equal(t, models.UUTStatusError, done[0].Status)
	assert.Equal(t, AwaitingHeader, st.Import)
}

func TestAdvance_NilRecordIsNoop(t *testing.T) {
	before := NewState()
	after, done := Advance(before, nil, utcOptions)
	assert.Nil(t, done)
	assert.Equal(t, before, after)
}
