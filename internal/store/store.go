// Package store persists polar engine state in sqlite: one JSON state
// document plus an append-only log of accepted samples.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/saildata/polar.report/internal/polar"
)

type DB struct {
	*sql.DB
}

// NewDB opens (creating if necessary) the sqlite database at path and
// ensures the schema exists.
func NewDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS polar_state (
			id          INTEGER PRIMARY KEY CHECK (id = 1),
			doc         TEXT NOT NULL,
			updated_at  TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
		CREATE TABLE IF NOT EXISTS polar_samples (
			twa         DOUBLE,
			tws         DOUBLE,
			bsp         DOUBLE,
			cell        TEXT,
			timestamp   TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_polar_samples_cell
			ON polar_samples(cell);
	`)
	if err != nil {
		return nil, err
	}

	return &DB{db}, nil
}

// LoadState returns the saved engine state document, or nil if the database
// has never been written.
func (db *DB) LoadState() (*polar.State, error) {
	var doc string
	err := db.QueryRow("SELECT doc FROM polar_state WHERE id = 1").Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load state doc: %w", err)
	}

	var state polar.State
	if err := json.Unmarshal([]byte(doc), &state); err != nil {
		return nil, fmt.Errorf("failed to parse state doc: %w", err)
	}
	return &state, nil
}

// SaveState replaces the single state document row.
func (db *DB) SaveState(state *polar.State) error {
	doc, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal state doc: %w", err)
	}

	_, err = db.Exec(`
		INSERT INTO polar_state (id, doc, updated_at) VALUES (1, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET doc = excluded.doc, updated_at = CURRENT_TIMESTAMP
	`, string(doc))
	if err != nil {
		return fmt.Errorf("failed to save state doc: %w", err)
	}
	return nil
}

// RecordSample appends one accepted observation to the sample log.
func (db *DB) RecordSample(twa, tws, bsp float64, cell string, ts time.Time) error {
	_, err := db.Exec(
		"INSERT INTO polar_samples (twa, tws, bsp, cell, timestamp) VALUES (?, ?, ?, ?, ?)",
		twa, tws, bsp, cell, ts.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return err
	}
	return nil
}

type Sample struct {
	TWA       float64
	TWS       float64
	BSP       float64
	Cell      string
	Timestamp string
}

func (s *Sample) String() string {
	return fmt.Sprintf("TWA: %.1f, TWS: %.2f, BSP: %.2f, Cell: %s", s.TWA, s.TWS, s.BSP, s.Cell)
}

// Samples returns the most recent accepted observations, newest first.
func (db *DB) Samples(limit int) ([]Sample, error) {
	rows, err := db.Query(
		"SELECT twa, tws, bsp, cell, timestamp FROM polar_samples ORDER BY rowid DESC LIMIT ?",
		limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var samples []Sample
	for rows.Next() {
		var s Sample
		if err := rows.Scan(&s.TWA, &s.TWS, &s.BSP, &s.Cell, &s.Timestamp); err != nil {
			return nil, err
		}
		samples = append(samples, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return samples, nil
}

// SampleCount returns the total number of logged observations.
func (db *DB) SampleCount() (int64, error) {
	var n int64
	err := db.QueryRow("SELECT COUNT(*) FROM polar_samples").Scan(&n)
	return n, err
}
