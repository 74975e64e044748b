package parser

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/google/go-cmp/cmp"
	"github.com/ict-report/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleLog = `START;P1;SEQ;1.0;;OP1;01/15/2024;09:00:00
ANL;1;R12;0;0;Check1;0;PASS;0;0;0;0;0
ANL;2;U3;0;0;Check2;0;FAIL;12.5;10;15;V;0;0
SN;SN12345
END;FAIL;01/15/2024;09:00:05
`

const passingLog = `START;P1;SEQ;1.0;;OP2;01/15/2024;10:00:00
ANL;1;C1;0;0;Cap;0;PASS;1.1;1;1.2;uF
SN;SN67890
END;PASS;01/15/2024;10:00:02
`

func collect() (*[]*models.UUTReport, Submitter) {
	var reports []*models.UUTReport
	return &reports, SubmitterFunc(func(r *models.UUTReport) {
		reports = append(reports, r)
	})
}

func newUTCConverter(args Arguments) *ICT3030Converter {
	return NewICT3030Converter(args, WithLocation(time.UTC))
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestConvert_SingleReport(t *testing.T) {
	reports, sink := collect()
	result, err := newUTCConverter(DefaultArguments()).Convert(strings.NewReader(sampleLog), sink)
	require.NoError(t, err)

	require.Len(t, *reports, 1)
	r := (*reports)[0]
	assert.Equal(t, []string{r.ID}, result.ReportIDs)
	assert.Equal(t, 5, result.Lines)
	assert.Equal(t, 0, result.SkippedLines)
	assert.False(t, result.Incomplete)

	assert.Equal(t, "PN1", r.PartNumber)
	assert.Equal(t, "SN12345", r.SerialNumber)
	assert.Equal(t, "SEQ", r.SequenceName)
	assert.Equal(t, "1.0", r.SequenceVersion)
	assert.Equal(t, "OP1", r.Operator)
	assert.Equal(t, models.UUTStatusFailed, r.Status)
	assert.Equal(t, 5.0, r.ExecutionTime)
	assert.True(t, r.StartDateTimeUTC.Equal(time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)))

	want := models.NewSequenceCall("MainSequence")
	want.AddSequenceCall("Resistors").AddPassFailStep("Check1", true)
	want.AddSequenceCall("ICs").AddNumericLimitStep("Check2", models.NumericMeasurement{
		Value:     12.5,
		CompOp:    models.CompOpGELE,
		LowLimit:  10,
		HighLimit: 15,
		Unit:      "V",
	}, false)

	if diff := cmp.Diff(want, r.Root); diff != "" {
		t.Errorf("step tree mismatch (-want +got):\n%s", diff)
	}
}

func TestConvert_MultipleReports(t *testing.T) {
	input := "tester banner line\n" + sampleLog + "\n" + passingLog
	reports, sink := collect()
	result, err := newUTCConverter(Arguments{ArgPartNumber: "4711-0815"}).Convert(strings.NewReader(input), sink)
	require.NoError(t, err)

	require.Len(t, *reports, 2)
	assert.Equal(t, "SN12345", (*reports)[0].SerialNumber)
	assert.Equal(t, "SN67890", (*reports)[1].SerialNumber)
	assert.Equal(t, models.UUTStatusPassed, (*reports)[1].Status)
	assert.Equal(t, "4711-0815", (*reports)[1].PartNumber)
	assert.Equal(t, 2.0, (*reports)[1].ExecutionTime)
	assert.Equal(t, []string{(*reports)[0].ID, (*reports)[1].ID}, result.ReportIDs)
	assert.Equal(t, 2, result.SkippedLines)
	assert.NotEqual(t, (*reports)[0].ID, (*reports)[1].ID)
}

func TestConvert_MalformedLineAborts(t *testing.T) {
	input := sampleLog + "START;P1;SEQ;1.0;;OP1;01/15/2024;10:00:00\nANL;1;R1;0;0;x;0;PASS;abc;1;2;V\n" + passingLog
	reports, sink := collect()
	result, err := newUTCConverter(DefaultArguments()).Convert(strings.NewReader(input), sink)

	var lineErr *LineError
	require.ErrorAs(t, err, &lineErr)
	assert.Equal(t, 7, lineErr.Line)
	assert.Equal(t, "ANL;1;R1;0;0;x;0;PASS;abc;1;2;V", lineErr.Content)

	var fe *FieldFormatError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "Meas", fe.Field)

	// Reports finished before the bad line stay submitted.
	require.Len(t, *reports, 1)
	assert.Equal(t, 7, result.Lines)
	assert.Len(t, result.ReportIDs, 1)

	pe := lineErr.ParseError()
	assert.Equal(t, 7, pe.Line)
	assert.Contains(t, pe.Reason, "Meas")
}

func TestConvert_ByteOrderMark(t *testing.T) {
	reports, sink := collect()
	_, err := newUTCConverter(DefaultArguments()).Convert(strings.NewReader("\uFEFF"+sampleLog), sink)
	require.NoError(t, err)
	require.Len(t, *reports, 1)
	assert.Equal(t, "OP1", (*reports)[0].Operator)
}

func TestConvert_IncompleteRun(t *testing.T) {
	input := "START;P1;SEQ;1.0;;OP1;01/15/2024;09:00:00\nANL;1;R12;0;0;Check1;0;PASS;0;0;0;0;0\n"
	reports, sink := collect()
	result, err := newUTCConverter(DefaultArguments()).Convert(strings.NewReader(input), sink)
	require.NoError(t, err)
	assert.True(t, result.Incomplete)
	assert.Empty(t, *reports)
	assert.Empty(t, result.ReportIDs)
}

func TestConvert_Location(t *testing.T) {
	cet := time.FixedZone("CET", 3600)
	reports, sink := collect()
	c := NewICT3030Converter(DefaultArguments(), WithLocation(cet))
	_, err := c.Convert(strings.NewReader(sampleLog), sink)
	require.NoError(t, err)

	r := (*reports)[0]
	assert.Equal(t, 9, r.StartDateTime.Hour())
	assert.True(t, r.StartDateTimeUTC.Equal(time.Date(2024, 1, 15, 8, 0, 0, 0, time.UTC)))
	assert.Equal(t, time.UTC, r.StartDateTimeUTC.Location())
}

func TestConvert_DaylightSavingDay(t *testing.T) {
	newYork, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	// Clocks jumped from 02:00 to 03:00 on this date.
	input := `START;P1;SEQ;1.0;;OP1;03/10/2024;09:00:00
ANL;1;R12;0;0;Check1;0;PASS;0;0;0;0;0
SN;SN12345
END;PASS;03/10/2024;09:00:05
`
	reports, sink := collect()
	c := NewICT3030Converter(DefaultArguments(), WithLocation(newYork))
	_, err = c.Convert(strings.NewReader(input), sink)
	require.NoError(t, err)
	require.Len(t, *reports, 1)

	r := (*reports)[0]
	assert.Equal(t, 9, r.StartDateTime.Hour())
	assert.Zero(t, r.StartDateTime.Minute())
	assert.True(t, r.StartDateTimeUTC.Equal(time.Date(2024, 3, 10, 13, 0, 0, 0, time.UTC)))
	assert.InDelta(t, 5.0, r.ExecutionTime, 1e-9)
}

func TestConvert_NaNNeighbours(t *testing.T) {
	input := `START;P1;SEQ;1.0;;OP1;01/15/2024;09:00:00
ANL;1;R12;0;0;Check1;0;FAIL;-NAN;-NAN;-NAN;V;0;0
SN;SN12345
END;FAIL;01/15/2024;09:00:05
`
	reports, sink := collect()
	_, err := newUTCConverter(DefaultArguments()).Convert(strings.NewReader(input), sink)
	require.NoError(t, err)
	require.Len(t, *reports, 1)
}

func TestConvertWithProgress(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 2500; i++ {
		sb.WriteString("noise\n")
	}
	input := sb.String()

	var calls []int
	var lastBytes int64
	_, sink := collect()
	result, err := newUTCConverter(DefaultArguments()).ConvertWithProgress(
		strings.NewReader(input), int64(len(input)), sink,
		func(lines int, bytesRead, total int64) {
			calls = append(calls, lines)
			lastBytes = bytesRead
			assert.Equal(t, int64(len(input)), total)
		})
	require.NoError(t, err)

	assert.Equal(t, []int{1000, 2000, 2500}, calls)
	assert.Equal(t, int64(len(input)), lastBytes)
	assert.Equal(t, 2500, result.SkippedLines)
}

func TestConvertFile_SetsSourceFile(t *testing.T) {
	path := writeFile(t, "board7.log", sampleLog)
	reports, sink := collect()
	_, err := newUTCConverter(DefaultArguments()).ConvertFile(path, sink)
	require.NoError(t, err)
	require.Len(t, *reports, 1)
	assert.Equal(t, "board7.log", (*reports)[0].SourceFile)
}

func TestCanParse(t *testing.T) {
	c := newUTCConverter(DefaultArguments())

	ok, err := c.CanParse(writeFile(t, "a.log", sampleLog))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.CanParse(writeFile(t, "b.txt", "just some\ntext file\n"))
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = c.CanParse(writeFile(t, "banner.log",
		"SPEA ICT 3030\nLeonardo test station\n\n==========\nOperator shift B\n"+sampleLog))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.CanParse(writeFile(t, "records.log", "ANL;1;R12;0;0;Check1;0;PASS;0;0;0;0;0\n"))
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = c.CanParse(writeFile(t, "empty.log", ""))
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = c.CanParse(filepath.Join(t.TempDir(), "missing.log"))
	assert.Error(t, err)
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry(DefaultArguments())

	c, err := reg.FindConverter(writeFile(t, "a.log", sampleLog))
	require.NoError(t, err)
	assert.Equal(t, "spea_ict3030", c.Name())

	_, err = reg.FindConverter(writeFile(t, "b.txt", "nothing to see\n"))
	assert.Error(t, err)

	reports, sink := collect()
	banner := writeFile(t, "board.log", "Station L3\nSoftware 4.2\n*****\n\nLot 17\n"+sampleLog)
	c, err = reg.FindConverter(banner)
	require.NoError(t, err)
	_, err = c.ConvertFile(banner, sink)
	require.NoError(t, err)
	require.Len(t, *reports, 1)
	assert.Equal(t, "board.log", (*reports)[0].SourceFile)
}

func TestArguments(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		assert.Equal(t, "PN1", DefaultArguments().PartNumber())
		assert.Equal(t, "PN1", Arguments{}.PartNumber())
	})

	t.Run("merge ignores empty values", func(t *testing.T) {
		merged := DefaultArguments().Merge(Arguments{ArgPartNumber: "", "station": "A"})
		assert.Equal(t, "PN1", merged.PartNumber())
		assert.Equal(t, "A", merged["station"])
	})

	t.Run("yaml", func(t *testing.T) {
		args, err := LoadArgumentsFromReader(strings.NewReader("partNumber: \"4711-0815\"\nstation: A\n"))
		require.NoError(t, err)
		assert.Equal(t, "4711-0815", args.PartNumber())
		assert.Equal(t, "A", args["station"])
	})

	t.Run("empty yaml keeps defaults", func(t *testing.T) {
		args, err := LoadArgumentsFromReader(strings.NewReader(""))
		require.NoError(t, err)
		assert.Equal(t, "PN1", args.PartNumber())
	})

	t.Run("file", func(t *testing.T) {
		args, err := LoadArguments(writeFile(t, "args.yaml", "partNumber: X9\n"))
		require.NoError(t, err)
		assert.Equal(t, "X9", args.PartNumber())

		_, err = LoadArguments(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})

	t.Run("invalid yaml", func(t *testing.T) {
		_, err := LoadArgumentsFromReader(strings.NewReader("- a\n- b\n"))
		assert.Error(t, err)
	})
}
