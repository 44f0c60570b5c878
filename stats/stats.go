// Package stats implements StatsSink (spec.md §4.I): collecting the
// per-tick population/energy/grass-timer totals read back from the
// device and writing the tab-separated statistics table (spec.md §6's
// "Statistics file").
package stats

import (
	"bufio"
	"database/sql"
	"fmt"
	"io"
	"os"

	_ "github.com/mattn/go-sqlite3"

	"github.com/sarchlab/predprey/ppcerr"
)

// Totals is one tick's raw counters, read back from the device's
// statistics buffer by the driver. Sink derives the means.
type Totals struct {
	Sheep            int
	Wolves           int
	Grass            int
	SheepEnergyTotal int64
	WolfEnergyTotal  int64
	GrassTimerTotal  int64
	GridXY           int
}

// Row is one rendered line of the statistics table.
type Row struct {
	Sheep           int
	Wolves          int
	Grass           int
	MeanSheepEnergy float64
	MeanWolfEnergy  float64
	MeanGrassTimer  float64
}

// Derive computes a Row's means from Totals (spec.md §4.I: "total/count or
// 0 if count == 0; grass mean uses total / grid_xy").
func Derive(t Totals) Row {
	r := Row{Sheep: t.Sheep, Wolves: t.Wolves, Grass: t.Grass}
	if t.Sheep > 0 {
		r.MeanSheepEnergy = float64(t.SheepEnergyTotal) / float64(t.Sheep)
	}
	if t.Wolves > 0 {
		r.MeanWolfEnergy = float64(t.WolfEnergyTotal) / float64(t.Wolves)
	}
	if t.GridXY > 0 {
		r.MeanGrassTimer = float64(t.GrassTimerTotal) / float64(t.GridXY)
	}
	return r
}

// Sink accumulates rows and writes them as a tab-separated table, one row
// per tick (0..iters inclusive), optionally mirroring each row into a
// sqlite database as it arrives.
type Sink struct {
	w      *bufio.Writer
	closer io.Closer
	db     *sql.DB
	runID  string
	rows   int
}

// Open creates the tab-separated statistics file at path, truncating any
// existing file at once. Rows are buffered and reach the file when the
// buffer fills or on Close; the file is never removed, so a failure after
// Open keeps whatever was already flushed (spec.md §7's partial retention
// rule).
func Open(path string) (*Sink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, ppcerr.Wrap(ppcerr.StatsSaveFailed, err, "creating statistics file %q", path)
	}
	return &Sink{w: bufio.NewWriter(f), closer: f}, nil
}

// WithSQLiteMirror additionally appends each row to a `ticks` table in a
// sqlite database at dbPath (SPEC_FULL.md's --stats-db addition). runID
// tags every row so multiple runs against the same database stay
// distinguishable.
func (s *Sink) WithSQLiteMirror(dbPath string, runID string) error {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return ppcerr.Wrap(ppcerr.StatsSaveFailed, err, "opening stats database %q", dbPath)
	}

	const schema = `CREATE TABLE IF NOT EXISTS ticks (
		run_id TEXT NOT NULL,
		tick INTEGER NOT NULL,
		sheep INTEGER NOT NULL,
		wolves INTEGER NOT NULL,
		grass INTEGER NOT NULL,
		mean_sheep_energy REAL NOT NULL,
		mean_wolf_energy REAL NOT NULL,
		mean_grass_timer REAL NOT NULL
	)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return ppcerr.Wrap(ppcerr.StatsSaveFailed, err, "creating ticks table in %q", dbPath)
	}

	s.db = db
	s.runID = runID
	return nil
}

// Write renders one row for the current tick and appends it to the file
// (and, if enabled, the sqlite mirror).
func (s *Sink) Write(r Row) error {
	_, err := fmt.Fprintf(s.w, "%d\t%d\t%d\t%g\t%g\t%g\n",
		r.Sheep, r.Wolves, r.Grass, r.MeanSheepEnergy, r.MeanWolfEnergy, r.MeanGrassTimer)
	if err != nil {
		return ppcerr.Wrap(ppcerr.StatsSaveFailed, err, "writing statistics row %d", s.rows)
	}

	if s.db != nil {
		_, err := s.db.Exec(
			`INSERT INTO ticks (run_id, tick, sheep, wolves, grass, mean_sheep_energy, mean_wolf_energy, mean_grass_timer)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			s.runID, s.rows, r.Sheep, r.Wolves, r.Grass, r.MeanSheepEnergy, r.MeanWolfEnergy, r.MeanGrassTimer)
		if err != nil {
			return ppcerr.Wrap(ppcerr.StatsSaveFailed, err, "mirroring statistics row %d to sqlite", s.rows)
		}
	}

	s.rows++
	return nil
}

// Rows reports how many rows have been successfully written so far.
func (s *Sink) Rows() int {
	return s.rows
}

// Close flushes the file and closes both the file and, if opened, the
// sqlite mirror. A partially flushed file from a prior failed Write is
// preserved, per spec.md §7: Close never truncates or removes it.
func (s *Sink) Close() error {
	var firstErr error

	if err := s.w.Flush(); err != nil {
		firstErr = ppcerr.Wrap(ppcerr.StatsSaveFailed, err, "flushing statistics file")
	}
	if err := s.closer.Close(); err != nil && firstErr == nil {
		firstErr = ppcerr.Wrap(ppcerr.StatsSaveFailed, err, "closing statistics file")
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil && firstErr == nil {
			firstErr = ppcerr.Wrap(ppcerr.StatsSaveFailed, err, "closing statistics database")
		}
	}

	return firstErr
}
