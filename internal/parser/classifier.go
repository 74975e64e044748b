package parser

import (
	"regexp"
	"strings"

	"github.com/ict-report/backend/internal/models"
)

const serialNumberPrefix = "SN;"

// Classifier recognizes ICT 3030 record lines and extracts their typed fields.
// It holds only compiled patterns and is safe for concurrent use.
type Classifier struct {
	startRegex   *regexp.Regexp
	measureRegex *regexp.Regexp
	footerRegex  *regexp.Regexp
}

// NewClassifier compiles the record patterns.
// Format:
//
//	START;prog;seq;seqVer;seq2;operator;MM/dd/yyyy;HH:mm:ss
//	ANL;nr;ref;nr;nr;name;f;result;meas;lo;hi;unit[;f[;nr]]
//	SN;serial
//	END;result;MM/dd/yyyy;HH:mm:ss
func NewClassifier() *Classifier {
	return &Classifier{
		startRegex: regexp.MustCompile(`^START;(?P<Prog>[^;]*);(?P<Seq>[^;]*);(?P<SeqVer>[^;]*);(?P<Seq2>[^;]*);(?P<Oper>[^;]*);(?P<StartDate>[^;]*);(?P<StartTime>[^;]*)`),
		measureRegex: regexp.MustCompile(`^ANL;(?P<Nr1>[^;]*);(?P<StepRef>[^;]*);(?P<Nr2>[^;]*);(?P<Nr3>[^;]*);(?P<StepName>[^;]*);(?P<F1>[^;]*);(?P<Result>[^;]*);(?P<Meas>[^;]*);(?P<LoLim>[^;]*);(?P<HiLim>[^;]*);(?P<Unit>[^;]*)(?:;(?P<F2>[^;]*))?(?:;(?P<Nr4>[^;]*))?`),
		footerRegex:  regexp.MustCompile(`^END;(?P<Result>[^;]*);(?P<Date>[^;]*);(?P<Time>[^;]*)`),
	}
}

// Classify tries the Start, Measurement, SerialNumber and Footer patterns in
// that order and returns the first match. A line that matches nothing returns a
// nil Record and a nil error. The import state does not gate matching; it is
// accepted so callers can classify in context.
func (c *Classifier) Classify(line string, state ImportState) (Record, error) {
	if m := c.startRegex.FindStringSubmatch(line); m != nil {
		return c.start(m)
	}
	if m := c.measureRegex.FindStringSubmatch(line); m != nil {
		return c.measurement(m)
	}
	if strings.HasPrefix(line, serialNumberPrefix) {
		return SerialNumberRecord{SerialNumber: line[len(serialNumberPrefix):]}, nil
	}
	if m := c.footerRegex.FindStringSubmatch(line); m != nil {
		return c.footer(m)
	}
	return nil, nil
}

func (c *Classifier) start(m []string) (Record, error) {
	group := func(name string) string { return m[c.startRegex.SubexpIndex(name)] }

	date, err := ParseDate(group("StartDate"))
	if err != nil {
		return nil, fieldError(KindStart, "StartDate", group("StartDate"), err)
	}
	tod, err := ParseTimeOfDay(group("StartTime"))
	if err != nil {
		return nil, fieldError(KindStart, "StartTime", group("StartTime"), err)
	}

	return StartRecord{
		Program:         group("Prog"),
		SequenceName:    group("Seq"),
		SequenceVersion: group("SeqVer"),
		Operator:        group("Oper"),
		Date:            date,
		TimeOfDay:       tod,
	}, nil
}

func (c *Classifier) measurement(m []string) (Record, error) {
	group := func(name string) string { return m[c.measureRegex.SubexpIndex(name)] }

	rec := MeasurementRecord{
		StepRef:  group("StepRef"),
		StepName: group("StepName"),
		Result:   group("Result"),
		Unit:     group("Unit"),
	}

	numbers := []struct {
		field string
		dst   *float64
	}{
		{"Meas", &rec.Measured},
		{"LoLim", &rec.LowLimit},
		{"HiLim", &rec.HighLimit},
	}
	for _, n := range numbers {
		v, err := ParseFloat(group(n.field))
		if err != nil {
			return nil, fieldError(KindMeasurement, n.field, group(n.field), err)
		}
		*n.dst = v
	}

	return rec, nil
}

func (c *Classifier) footer(m []string) (Record, error) {
	group := func(name string) string { return m[c.footerRegex.SubexpIndex(name)] }

	status, err := models.ParseUUTStatus(group("Result"))
	if err != nil {
		return nil, fieldError(KindFooter, "Result", group("Result"), err)
	}
	date, err := ParseDate(group("Date"))
	if err != nil {
		return nil, fieldError(KindFooter, "Date", group("Date"), err)
	}
	tod, err := ParseTimeOfDay(group("Time"))
	if err != nil {
		return nil, fieldError(KindFooter, "Time", group("Time"), err)
	}

	return FooterRecord{Status: status, Date: date, TimeOfDay: tod}, nil
}

func fieldError(kind RecordKind, field, value string, err error) *FieldFormatError {
	return &FieldFormatError{Record: kind, Field: field, Value: value, Err: err}
}
