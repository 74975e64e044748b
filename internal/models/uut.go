// Package models contains domain types for the ICT report converter.
package models

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

// UUTStatus is the overall outcome of one unit-under-test run.
type UUTStatus string

const (
	UUTStatusPassed     UUTStatus = "Passed"
	UUTStatusFailed     UUTStatus = "Failed"
	UUTStatusError      UUTStatus = "Error"
	UUTStatusTerminated UUTStatus = "Terminated"
)

// ParseUUTStatus maps the result field of a footer line to a UUTStatus.
// Matching is case-insensitive and accepts the short forms the tester writes.
func ParseUUTStatus(raw string) (UUTStatus, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "PASS", "PASSED", "P", "OK":
		return UUTStatusPassed, nil
	case "FAIL", "FAILED", "F", "KO":
		return UUTStatusFailed, nil
	case "ERROR", "ERR", "E":
		return UUTStatusError, nil
	case "TERMINATED", "ABORT", "ABORTED", "T":
		return UUTStatusTerminated, nil
	}
	return "", fmt.Errorf("unknown UUT status %q", raw)
}

// StepStatus is the outcome of a single step or step group.
type StepStatus string

const (
	StepStatusPassed StepStatus = "Passed"
	StepStatusFailed StepStatus = "Failed"
)

// StepType discriminates the step variants.
type StepType string

const (
	StepTypePassFail     StepType = "PassFail"
	StepTypeNumericLimit StepType = "NumericLimit"
)

// CompOperator is the limit comparison applied to a numeric measurement.
type CompOperator string

const (
	CompOpGE   CompOperator = "GE"   // measured >= low
	CompOpLE   CompOperator = "LE"   // measured <= high
	CompOpGELE CompOperator = "GELE" // low <= measured <= high
)

// Float is a float64 that encodes NaN and infinities as JSON null.
type Float float64

func (f Float) MarshalJSON() ([]byte, error) {
	v := float64(f)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return []byte("null"), nil
	}
	return json.Marshal(v)
}

func (f *Float) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = Float(math.NaN())
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = Float(v)
	return nil
}

// NumericMeasurement holds the measured value and limits of a numeric-limit step.
type NumericMeasurement struct {
	Value     Float        `json:"value" msgpack:"value"`
	CompOp    CompOperator `json:"compOp" msgpack:"compOp"`
	LowLimit  Float        `json:"lowLimit" msgpack:"lowLimit"`
	HighLimit Float        `json:"highLimit" msgpack:"highLimit"`
	Unit      string       `json:"unit" msgpack:"unit"`
}

// Step is one measurement outcome. Exactly one of PassFail and Numeric is set,
// matching Type.
type Step struct {
	Name     string              `json:"name" msgpack:"name"`
	Type     StepType            `json:"type" msgpack:"type"`
	Status   StepStatus          `json:"status" msgpack:"status"`
	PassFail *bool               `json:"passFail,omitempty" msgpack:"passFail,omitempty"`
	Numeric  *NumericMeasurement `json:"numeric,omitempty" msgpack:"numeric,omitempty"`
}

// Passed reports whether the step outcome is Passed.
func (s *Step) Passed() bool {
	return s.Status == StepStatusPassed
}

// SequenceCall is a named group of steps. The root sequence of a report holds
// the component-category groups; each group holds the measurement steps.
type SequenceCall struct {
	Name          string          `json:"name" msgpack:"name"`
	Status        StepStatus      `json:"status" msgpack:"status"`
	SequenceCalls []*SequenceCall `json:"sequenceCalls,omitempty" msgpack:"sequenceCalls,omitempty"`
	Steps         []*Step         `json:"steps,omitempty" msgpack:"steps,omitempty"`
}

// NewSequenceCall creates an empty, passing sequence.
func NewSequenceCall(name string) *SequenceCall {
	return &SequenceCall{Name: name, Status: StepStatusPassed}
}

// AddSequenceCall appends a child sequence and returns it.
func (sc *SequenceCall) AddSequenceCall(name string) *SequenceCall {
	child := NewSequenceCall(name)
	sc.SequenceCalls = append(sc.SequenceCalls, child)
	return child
}

// AddPassFailStep appends a boolean step.
func (sc *SequenceCall) AddPassFailStep(name string, passed bool) *Step {
	step := &Step{
		Name:     name,
		Type:     StepTypePassFail,
		Status:   statusOf(passed),
		PassFail: &passed,
	}
	sc.addStep(step)
	return step
}

// AddNumericLimitStep appends a numeric-limit step.
func (sc *SequenceCall) AddNumericLimitStep(name string, m NumericMeasurement, passed bool) *Step {
	step := &Step{
		Name:    name,
		Type:    StepTypeNumericLimit,
		Status:  statusOf(passed),
		Numeric: &m,
	}
	sc.addStep(step)
	return step
}

// addStep appends the step and rolls a failure up into the sequence.
// A failed sequence stays failed.
func (sc *SequenceCall) addStep(step *Step) {
	sc.Steps = append(sc.Steps, step)
	if step.Status == StepStatusFailed {
		sc.Status = StepStatusFailed
	}
}

// StepCount returns the number of steps below this sequence, recursively.
func (sc *SequenceCall) StepCount() int {
	n := len(sc.Steps)
	for _, child := range sc.SequenceCalls {
		n += child.StepCount()
	}
	return n
}

func statusOf(passed bool) StepStatus {
	if passed {
		return StepStatusPassed
	}
	return StepStatusFailed
}

// UUTReport represents one test run of one unit.
type UUTReport struct {
	ID               string        `json:"id" msgpack:"id"`
	PartNumber       string        `json:"partNumber" msgpack:"partNumber"`
	SerialNumber     string        `json:"serialNumber" msgpack:"serialNumber"`
	SequenceName     string        `json:"sequenceName,omitempty" msgpack:"sequenceName,omitempty"`
	SequenceVersion  string        `json:"sequenceVersion,omitempty" msgpack:"sequenceVersion,omitempty"`
	Operator         string        `json:"operator,omitempty" msgpack:"operator,omitempty"`
	StartDateTime    time.Time     `json:"startDateTime" msgpack:"startDateTime"`
	StartDateTimeUTC time.Time     `json:"startDateTimeUtc" msgpack:"startDateTimeUtc"`
	ExecutionTime    float64       `json:"executionTime" msgpack:"executionTime"` // seconds
	Status           UUTStatus     `json:"status" msgpack:"status"`
	SourceFile       string        `json:"sourceFile,omitempty" msgpack:"sourceFile,omitempty"`
	Root             *SequenceCall `json:"root" msgpack:"root"`
}

// NewUUTReport creates an empty report with a fresh ID and an empty root sequence.
func NewUUTReport() *UUTReport {
	return &UUTReport{
		ID:   uuid.New().String(),
		Root: NewSequenceCall("MainSequence"),
	}
}

// UUTSummary is the flat listing form of a stored report.
type UUTSummary struct {
	ID               string    `json:"id"`
	PartNumber       string    `json:"partNumber"`
	SerialNumber     string    `json:"serialNumber"`
	SequenceName     string    `json:"sequenceName,omitempty"`
	Operator         string    `json:"operator,omitempty"`
	StartDateTimeUTC time.Time `json:"startDateTimeUtc"`
	ExecutionTime    float64   `json:"executionTime"`
	Status           UUTStatus `json:"status"`
	StepCount        int       `json:"stepCount"`
	SourceFile       string    `json:"sourceFile,omitempty"`
}

// Summary returns the listing form of the report.
func (r *UUTReport) Summary() UUTSummary {
	steps := 0
	if r.Root != nil {
		steps = r.Root.StepCount()
	}
	return UUTSummary{
		ID:               r.ID,
		PartNumber:       r.PartNumber,
		SerialNumber:     r.SerialNumber,
		SequenceName:     r.SequenceName,
		Operator:         r.Operator,
		StartDateTimeUTC: r.StartDateTimeUTC,
		ExecutionTime:    r.ExecutionTime,
		Status:           r.Status,
		StepCount:        steps,
		SourceFile:       r.SourceFile,
	}
}
