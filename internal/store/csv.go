package store

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sweeney/roast-timer/internal/logic"
)

// Column names of the CSV log.
const (
	colDate         = "Date"
	colTime         = "Time"
	colOrigin       = "Bean Origin"
	colDecaf        = "Decaf"
	colBatch        = "Batch Size (lbs)"
	colLoadingTemp  = "Loading Temp"
	colEarlyNotes   = "Early Notes"
	colYellowTime   = "Yellow Time"
	colDropTemp     = "Drop Temp"
	colTotal        = "Total Roast Time (min)"
	colTarget       = "Target Roast Level"
	colRating       = "Roast Level (1-10)"
	colColor        = "Actual Color"
	colNotes        = "Notes"
	colTastingNotes = "Tasting Notes (added later)"
	colID           = "Roast ID"

	// Written before first crack had a distinct start and end.
	colLegacyFCTime = "First Crack Time"
	colLegacyFCTemp = "First Crack Temp"
	colLegacySCTime = "Second Crack Time"
	colLegacySCTemp = "Second Crack Temp"
)

var legacyAlias = map[string]string{
	"First Crack Start Time":  colLegacyFCTime,
	"First Crack Start Temp":  colLegacyFCTemp,
	"Second Crack Start Time": colLegacySCTime,
	"Second Crack Start Temp": colLegacySCTemp,
}

type phaseColumns struct {
	time, temp, ror string
}

var phaseCols = map[logic.Phase]phaseColumns{
	logic.PhaseTurnaround:       {"Turnaround Time", "Turnaround Temp", "Turnaround ROR"},
	logic.PhaseFirstCrackStart:  {"First Crack Start Time", "First Crack Start Temp", "FC Start ROR"},
	logic.PhaseFirstCrackEnd:    {"First Crack End Time", "First Crack End Temp", "FC End ROR"},
	logic.PhaseSecondCrackStart: {"Second Crack Start Time", "Second Crack Start Temp", "SC Start ROR"},
	logic.PhaseEnd:              {"End Time", "End Temp", "End ROR"},
}

// Header is the column layout of a new log file.
var Header = []string{
	colDate, colTime, colOrigin, colDecaf, colBatch,
	colLoadingTemp, "Turnaround Time", "Turnaround Temp", "Turnaround ROR", colEarlyNotes,
	colYellowTime,
	"First Crack Start Time", "First Crack Start Temp", "FC Start ROR",
	"First Crack End Time", "First Crack End Temp", "FC End ROR",
	"Second Crack Start Time", "Second Crack Start Temp", "SC Start ROR",
	"End Time", "End Temp", "End ROR",
	colDropTemp, colTotal, colTarget, colRating, colColor, colNotes, colTastingNotes,
	colID,
}

const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04"
)

// CSV is a Store backed by a CSV file with a header row. Columns are
// matched by name, so older layouts remain readable.
type CSV struct {
	path string
	log  logrus.FieldLogger
}

// NewCSV returns a CSV store for path. The file is created on first Append.
func NewCSV(path string, log logrus.FieldLogger) *CSV {
	return &CSV{path: path, log: log.WithField("path", path)}
}

// All reads every row. A missing file is an empty log.
func (s *CSV) All(ctx context.Context) ([]logic.SessionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open log: %w", err)
	}
	defer f.Close()

	r := newReader(f)
	header, err := r.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read log header: %w", err)
	}

	var records []logic.SessionRecord
	for line := 2; ; line++ {
		fields, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read log line %d: %w", line, err)
		}
		row := rowOf(header, fields)
		if row.empty() {
			continue
		}
		records = append(records, row.record())
	}
	s.log.WithField("records", len(records)).Debug("store: loaded log")
	return records, nil
}

// Append writes rec using the file's existing header, creating the file
// with Header when it does not exist. Fields the file has no column for
// are dropped with a warning.
func (s *CSV) Append(ctx context.Context, rec logic.SessionRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	header, err := s.header()
	if err != nil {
		return err
	}

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log for append: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if header == nil {
		header = Header
		if err := w.Write(header); err != nil {
			return fmt.Errorf("write log header: %w", err)
		}
	}

	values := fieldsOf(rec)
	known := make(map[string]bool, len(header))
	out := make([]string, len(header))
	for i, col := range header {
		known[col] = true
		out[i] = values[col]
	}
	var dropped []string
	for _, col := range Header {
		if alias, ok := legacyAlias[col]; ok && known[alias] {
			continue
		}
		if !known[col] && values[col] != "" {
			dropped = append(dropped, col)
		}
	}
	if len(dropped) > 0 {
		s.log.WithField("columns", dropped).Warn("store: log has no column for some fields")
	}

	if err := w.Write(out); err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush log: %w", err)
	}
	return nil
}

// header returns the existing header, or nil for a missing or empty file.
func (s *CSV) header() ([]string, error) {
	f, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open log: %w", err)
	}
	defer f.Close()

	header, err := newReader(f).Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read log header: %w", err)
	}
	return header, nil
}

// Close is a no-op; the file is opened per operation.
func (s *CSV) Close() error {
	return nil
}

func newReader(r io.Reader) *csv.Reader {
	cr := csv.NewReader(r)
	// Older logs have rows with trailing empty fields beyond the header.
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	return cr
}

// row maps column names to raw values.
type row map[string]string

func rowOf(header, fields []string) row {
	r := make(row, len(header))
	for i, col := range header {
		if i < len(fields) {
			r[strings.TrimSpace(col)] = strings.TrimSpace(fields[i])
		}
	}
	return r
}

func (r row) empty() bool {
	for _, v := range r {
		if v != "" {
			return false
		}
	}
	return true
}

func (r row) phase(cols phaseColumns) logic.PhaseData {
	return logic.PhaseData{
		Time: logic.ParseDuration(r[cols.time]),
		Temp: logic.ParseNumber(r[cols.temp]),
		ROR:  logic.ParseNumber(r[cols.ror]),
	}
}

func (r row) record() logic.SessionRecord {
	rec := logic.SessionRecord{
		ID:           r[colID],
		RoastedAt:    parseTimestamp(r[colDate], r[colTime]),
		Origin:       r[colOrigin],
		Decaf:        parseYes(r[colDecaf]),
		BatchSize:    r[colBatch],
		TargetLevel:  r[colTarget],
		LoadingTemp:  logic.ParseNumber(r[colLoadingTemp]),
		EarlyNotes:   r[colEarlyNotes],
		YellowTime:   logic.ParseDuration(r[colYellowTime]),
		Phases:       make(map[logic.Phase]logic.PhaseData, len(phaseCols)),
		DropTemp:     logic.ParseNumber(r[colDropTemp]),
		Rating:       logic.ParseNumber(r[colRating]),
		Color:        r[colColor],
		Notes:        r[colNotes],
		TastingNotes: r[colTastingNotes],
		LegacyFirstCrack: logic.PhaseData{
			Time: logic.ParseDuration(r[colLegacyFCTime]),
			Temp: logic.ParseNumber(r[colLegacyFCTemp]),
		},
		LegacySecondCrack: logic.PhaseData{
			Time: logic.ParseDuration(r[colLegacySCTime]),
			Temp: logic.ParseNumber(r[colLegacySCTemp]),
		},
	}
	for p, cols := range phaseCols {
		rec.Phases[p] = r.phase(cols)
	}
	// Older rows carry only the total in minutes.
	if end := rec.Phases[logic.PhaseEnd]; !end.Time.Valid {
		if mins := logic.ParseNumber(r[colTotal]); mins.Valid {
			end.Time = logic.Some(mins.Float64 * 60)
			rec.Phases[logic.PhaseEnd] = end
		}
	}
	return rec
}

func parseYes(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "yes", "y", "true", "1":
		return true
	}
	return false
}

func parseTimestamp(date, clock string) time.Time {
	if date == "" {
		return time.Time{}
	}
	if clock != "" {
		if t, err := time.ParseInLocation(dateLayout+" "+timeLayout, date+" "+clock, time.Local); err == nil {
			return t
		}
	}
	t, err := time.ParseInLocation(dateLayout, date, time.Local)
	if err != nil {
		return time.Time{}
	}
	return t
}

func number(v logic.NullFloat) string {
	if !v.Valid {
		return ""
	}
	return strconv.FormatFloat(v.Float64, 'f', -1, 64)
}

func clock(v logic.NullFloat) string {
	if !v.Valid {
		return ""
	}
	return logic.FormatClock(math.Round(v.Float64))
}

// fieldsOf renders rec by column name.
func fieldsOf(rec logic.SessionRecord) map[string]string {
	decaf := "No"
	if rec.Decaf {
		decaf = "Yes"
	}
	out := map[string]string{
		colOrigin:       rec.Origin,
		colDecaf:        decaf,
		colBatch:        rec.BatchSize,
		colLoadingTemp:  number(rec.LoadingTemp),
		colEarlyNotes:   rec.EarlyNotes,
		colYellowTime:   clock(rec.YellowTime),
		colDropTemp:     number(rec.DropTemp),
		colTarget:       rec.TargetLevel,
		colRating:       number(rec.Rating),
		colColor:        rec.Color,
		colNotes:        rec.Notes,
		colTastingNotes: rec.TastingNotes,
		colID:           rec.ID,
	}
	if !rec.RoastedAt.IsZero() {
		out[colDate] = rec.RoastedAt.Format(dateLayout)
		out[colTime] = rec.RoastedAt.Format(timeLayout)
	}
	if mins := rec.TotalMinutes(); mins.Valid {
		out[colTotal] = fmt.Sprintf("%.1f", mins.Float64)
	}
	for p, cols := range phaseCols {
		d := rec.Phases[p]
		out[cols.time] = clock(d.Time)
		out[cols.temp] = number(d.Temp)
		out[cols.ror] = number(d.ROR)
	}
	// Files still using the legacy crack columns get the start values there.
	out[colLegacyFCTime] = clock(rec.PhaseTime(logic.PhaseFirstCrackStart))
	out[colLegacyFCTemp] = number(rec.PhaseTemp(logic.PhaseFirstCrackStart))
	out[colLegacySCTime] = clock(rec.PhaseTime(logic.PhaseSecondCrackStart))
	out[colLegacySCTemp] = number(rec.PhaseTemp(logic.PhaseSecondCrackStart))
	return out
}
