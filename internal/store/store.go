// Package store provides an optional sqlite-backed audit trail of emitted
// Observations and tracker zone-transition Events, for deployments that
// want a queryable history beyond the live TelemetryBus/Alerter taps.
//
// Grounded on orbo's internal/database/database.go: modernc.org/sqlite
// (pure-Go, no cgo), WAL + foreign_keys pragmas on open, a migrations
// slice applied in order with "duplicate column" tolerated as already-run,
// and fmt.Errorf-wrapped query methods.
package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/orbo-vision/coreflow/internal/frame"
)

// Store wraps a sqlite connection recording Observations and zone Events.
type Store struct {
	db *sql.DB
}

// Open opens (creating if absent) the sqlite database at path and enables
// WAL mode, matching database.go's New.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store.Open: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("store.Open: enable WAL: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("store.Open: enable foreign keys: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying connection.
func (s *Store) Close() error { return s.db.Close() }

// Migrate applies schema migrations, tolerating "duplicate column" errors
// from ALTER TABLE statements already applied in a prior run.
func (s *Store) Migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS observations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			frame_seq INTEGER NOT NULL,
			timestamp DATETIME NOT NULL,
			summary TEXT NOT NULL,
			description TEXT,
			triggered INTEGER DEFAULT 0,
			matched_triggers TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS zone_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			track_id INTEGER NOT NULL,
			kind TEXT NOT NULL,
			zone TEXT,
			occurred DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_observations_time ON observations(timestamp DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_zone_events_track ON zone_events(track_id, occurred DESC)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			if strings.Contains(err.Error(), "duplicate column") {
				continue
			}
			return fmt.Errorf("store.Migrate: %w", err)
		}
	}
	return nil
}

// SaveObservation records one emitted Observation.
func (s *Store) SaveObservation(obs *frame.Observation) error {
	triggered := 0
	if obs.Triggered {
		triggered = 1
	}
	_, err := s.db.Exec(
		`INSERT INTO observations (frame_seq, timestamp, summary, description, triggered, matched_triggers)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		obs.FrameSeq, obs.Timestamp, obs.Summary, obs.Description, triggered, strings.Join(obs.MatchedTriggers, ","),
	)
	if err != nil {
		return fmt.Errorf("store.SaveObservation: %w", err)
	}
	return nil
}

// SaveZoneEvents records tracker zone/entry/exit Events.
func (s *Store) SaveZoneEvents(events []frame.Event) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("store.SaveZoneEvents: %w", err)
	}
	stmt, err := tx.Prepare(`INSERT INTO zone_events (track_id, kind, zone, occurred) VALUES (?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("store.SaveZoneEvents: %w", err)
	}
	defer stmt.Close()

	for _, ev := range events {
		if _, err := stmt.Exec(ev.TrackID, string(ev.Kind), ev.Zone, ev.Occurred); err != nil {
			tx.Rollback()
			return fmt.Errorf("store.SaveZoneEvents: %w", err)
		}
	}
	return tx.Commit()
}

// ObservationRecord is a row from the observations table.
type ObservationRecord struct {
	FrameSeq  uint64
	Timestamp time.Time
	Summary   string
	Triggered bool
}

// RecentObservations returns the most recent limit observations, newest
// first.
func (s *Store) RecentObservations(limit int) ([]ObservationRecord, error) {
	rows, err := s.db.Query(
		`SELECT frame_seq, timestamp, summary, triggered FROM observations ORDER BY timestamp DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("store.RecentObservations: %w", err)
	}
	defer rows.Close()

	var out []ObservationRecord
	for rows.Next() {
		var rec ObservationRecord
		var triggered int
		if err := rows.Scan(&rec.FrameSeq, &rec.Timestamp, &rec.Summary, &triggered); err != nil {
			return nil, fmt.Errorf("store.RecentObservations: %w", err)
		}
		rec.Triggered = triggered == 1
		out = append(out, rec)
	}
	return out, nil
}
