package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/sweeney/roast-timer/internal/logic"
)

// SQLite is a Store backed by a SQLite database.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens or creates the database at path.
func OpenSQLite(path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer; avoids SQLITE_BUSY between pooled connections.
	db.SetMaxOpenConns(1)
	s := &SQLite{db: db}
	if err := s.ensureSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLite) ensureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS roasts (
  seq INTEGER PRIMARY KEY AUTOINCREMENT,
  id TEXT,
  roasted_at TEXT,
  origin TEXT NOT NULL DEFAULT '',
  decaf INTEGER NOT NULL,
  batch_size TEXT NOT NULL DEFAULT '',
  target_level TEXT NOT NULL DEFAULT '',
  loading_temp REAL,
  early_notes TEXT NOT NULL DEFAULT '',
  yellow_time REAL,
  turnaround_time REAL, turnaround_temp REAL, turnaround_ror REAL,
  fc_start_time REAL, fc_start_temp REAL, fc_start_ror REAL,
  fc_end_time REAL, fc_end_temp REAL, fc_end_ror REAL,
  sc_start_time REAL, sc_start_temp REAL, sc_start_ror REAL,
  end_time REAL, end_temp REAL, end_ror REAL,
  legacy_fc_time REAL, legacy_fc_temp REAL,
  legacy_sc_time REAL, legacy_sc_temp REAL,
  drop_temp REAL,
  rating REAL,
  color TEXT NOT NULL DEFAULT '',
  notes TEXT NOT NULL DEFAULT '',
  tasting_notes TEXT NOT NULL DEFAULT ''
);
`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create roasts table: %w", err)
	}
	return nil
}

const roastColumns = `id, roasted_at, origin, decaf, batch_size, target_level, loading_temp, early_notes, yellow_time,
  turnaround_time, turnaround_temp, turnaround_ror,
  fc_start_time, fc_start_temp, fc_start_ror,
  fc_end_time, fc_end_temp, fc_end_ror,
  sc_start_time, sc_start_temp, sc_start_ror,
  end_time, end_temp, end_ror,
  legacy_fc_time, legacy_fc_temp, legacy_sc_time, legacy_sc_temp,
  drop_temp, rating, color, notes, tasting_notes`

// sqlPhases is the column order of the per-phase triples.
var sqlPhases = []logic.Phase{
	logic.PhaseTurnaround,
	logic.PhaseFirstCrackStart,
	logic.PhaseFirstCrackEnd,
	logic.PhaseSecondCrackStart,
	logic.PhaseEnd,
}

func nullable(v logic.NullFloat) sql.NullFloat64 {
	return sql.NullFloat64{Float64: v.Float64, Valid: v.Valid}
}

func fromNullable(v sql.NullFloat64) logic.NullFloat {
	return logic.NullFloat{Float64: v.Float64, Valid: v.Valid}
}

// Append inserts rec.
func (s *SQLite) Append(ctx context.Context, rec logic.SessionRecord) error {
	var roastedAt sql.NullString
	if !rec.RoastedAt.IsZero() {
		roastedAt = sql.NullString{String: rec.RoastedAt.Format(time.RFC3339), Valid: true}
	}
	args := []interface{}{
		rec.ID, roastedAt, rec.Origin, rec.Decaf, rec.BatchSize, rec.TargetLevel,
		nullable(rec.LoadingTemp), rec.EarlyNotes, nullable(rec.YellowTime),
	}
	for _, p := range sqlPhases {
		d := rec.Phases[p]
		args = append(args, nullable(d.Time), nullable(d.Temp), nullable(d.ROR))
	}
	args = append(args,
		nullable(rec.LegacyFirstCrack.Time), nullable(rec.LegacyFirstCrack.Temp),
		nullable(rec.LegacySecondCrack.Time), nullable(rec.LegacySecondCrack.Temp),
		nullable(rec.DropTemp), nullable(rec.Rating), rec.Color, rec.Notes, rec.TastingNotes,
	)

	placeholders := "?"
	for i := 1; i < len(args); i++ {
		placeholders += ", ?"
	}
	stmt := `INSERT INTO roasts (` + roastColumns + `) VALUES (` + placeholders + `)`
	if _, err := s.db.ExecContext(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert roast: %w", err)
	}
	return nil
}

// All returns every roast in insertion order.
func (s *SQLite) All(ctx context.Context) ([]logic.SessionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+roastColumns+` FROM roasts ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("query roasts: %w", err)
	}
	defer rows.Close()

	var out []logic.SessionRecord
	for rows.Next() {
		rec, err := scanRoast(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate roasts: %w", err)
	}
	return out, nil
}

func scanRoast(rows *sql.Rows) (logic.SessionRecord, error) {
	var (
		id, roastedAt                      sql.NullString
		rec                                logic.SessionRecord
		loading, yellow                    sql.NullFloat64
		phases                             [15]sql.NullFloat64
		lfcTime, lfcTemp, lscTime, lscTemp sql.NullFloat64
		drop, rating                       sql.NullFloat64
	)
	dest := []interface{}{
		&id, &roastedAt, &rec.Origin, &rec.Decaf, &rec.BatchSize, &rec.TargetLevel,
		&loading, &rec.EarlyNotes, &yellow,
	}
	for i := range phases {
		dest = append(dest, &phases[i])
	}
	dest = append(dest, &lfcTime, &lfcTemp, &lscTime, &lscTemp, &drop, &rating,
		&rec.Color, &rec.Notes, &rec.TastingNotes)

	if err := rows.Scan(dest...); err != nil {
		return logic.SessionRecord{}, fmt.Errorf("scan roast: %w", err)
	}

	rec.ID = id.String
	if roastedAt.Valid {
		t, err := time.Parse(time.RFC3339, roastedAt.String)
		if err != nil {
			return logic.SessionRecord{}, fmt.Errorf("parse roasted_at %q: %w", roastedAt.String, err)
		}
		rec.RoastedAt = t
	}
	rec.LoadingTemp = fromNullable(loading)
	rec.YellowTime = fromNullable(yellow)
	rec.Phases = make(map[logic.Phase]logic.PhaseData, len(sqlPhases))
	for i, p := range sqlPhases {
		rec.Phases[p] = logic.PhaseData{
			Time: fromNullable(phases[3*i]),
			Temp: fromNullable(phases[3*i+1]),
			ROR:  fromNullable(phases[3*i+2]),
		}
	}
	rec.LegacyFirstCrack = logic.PhaseData{Time: fromNullable(lfcTime), Temp: fromNullable(lfcTemp)}
	rec.LegacySecondCrack = logic.PhaseData{Time: fromNullable(lscTime), Temp: fromNullable(lscTemp)}
	rec.DropTemp = fromNullable(drop)
	rec.Rating = fromNullable(rating)
	return rec, nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}
