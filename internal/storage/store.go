// Package storage persists sweep sessions and their detected peaks.
// Raw spectra are never written to disk; only the derived peak report
// is kept.
package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/openrf/wsasweep/internal/spectrum"
)

//go:embed schema.sql
var schemaSQL string

const (
	insertSessionSQL = `
INSERT INTO sessions (start_time,
                      device_addr,
                      mode,
                      fstart,
                      fstop,
                      rbw,
                      config)
VALUES (CURRENT_TIMESTAMP, ?, ?, ?, ?, ?, ?)`

	insertPeakSQL = `
INSERT INTO peaks (session_id,
                   timestamp,
                   frequency,
                   power,
                   bin_width)
VALUES (?, ?, ?, ?, ?)`

	selectSessionSQL = `
SELECT
    id,
    start_time,
    device_addr,
    mode,
    fstart,
    fstop,
    rbw,
    config
FROM sessions
WHERE
    id = ?`

	selectPeaksSQL = `
SELECT
    timestamp,
    frequency,
    power,
    bin_width
FROM peaks
WHERE
    session_id = ?
ORDER BY power DESC, frequency ASC`
)

// Session is one recorded sweep run against an instrument.
type Session struct {
	ID         int64
	StartTime  time.Time
	DeviceAddr string
	Mode       string
	FStart     uint64
	FStop      uint64
	RBW        uint32
	Config     *string // optional device configuration, JSON
}

// PeakRecord is one stored peak, with the resolution it was measured
// at and when the sweep completed.
type PeakRecord struct {
	Timestamp time.Time
	Frequency float64
	Power     float64
	BinWidth  float64
}

// Store handles database operations. Writes and reads use separate
// connections so a long report query never blocks a sweep in progress.
type Store struct {
	dbPath string

	writeDB     *sql.DB
	writeDBOnce sync.Once
	writeDBErr  error

	readDB     *sql.DB
	readDBOnce sync.Once
	readDBErr  error

	closeOnce sync.Once
	closeErr  error
}

// New creates a store backed by the Sqlite database at dbPath. The
// schema is initialized lazily on first write.
func New(dbPath string) *Store {
	return &Store{dbPath: dbPath}
}

func (s *Store) getWriteDB() (*sql.DB, error) {
	s.writeDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "_journal_mode=WAL&_synchronous=NORMAL"))
		if err != nil {
			s.writeDBErr = fmt.Errorf("opening write connection: %w", err)
			return
		}

		if _, err = db.Exec(schemaSQL); err != nil {
			_ = db.Close()
			s.writeDBErr = fmt.Errorf("initializing schema: %w", err)
			return
		}

		s.writeDB = db
	})

	return s.writeDB, s.writeDBErr
}

func (s *Store) getReadDB() (*sql.DB, error) {
	s.readDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?mode=ro", s.dbPath))
		if err != nil {
			s.readDBErr = fmt.Errorf("opening read connection: %w", err)
			return
		}
		s.readDB = db
	})

	return s.readDB, s.readDBErr
}

// CreateSession records a new sweep run and returns its ID. config may
// be nil, a string, raw bytes or any JSON-serializable value.
func (s *Store) CreateSession(ctx context.Context, deviceAddr string, cfg *spectrum.Config, config any) (sessionID int64, err error) {
	var configData sql.NullString
	switch v := config.(type) {
	case nil:
	case string:
		configData = sql.NullString{String: v, Valid: true}
	case []byte:
		configData = sql.NullString{String: string(v), Valid: true}
	default:
		var p []byte
		if p, err = json.Marshal(config); err != nil {
			return 0, fmt.Errorf("marshaling config: %w", err)
		}
		configData = sql.NullString{String: string(p), Valid: true}
	}

	db, err := s.getWriteDB()
	if err != nil {
		return 0, fmt.Errorf("getting write connection: %w", err)
	}

	stmt, err := db.PrepareContext(ctx, insertSessionSQL)
	if err != nil {
		return 0, fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	result, err := stmt.ExecContext(ctx, deviceAddr, cfg.Mode, cfg.FStart, cfg.FStop, cfg.RBW, configData)
	if err != nil {
		return 0, fmt.Errorf("inserting session: %w", err)
	}

	sessionID, err = result.LastInsertId()
	if err != nil {
		err = fmt.Errorf("getting session ID: %w", err)
	}
	return sessionID, err
}

// StorePeaks saves a sweep's detected peaks in a single transaction.
func (s *Store) StorePeaks(ctx context.Context, sessionID int64, binWidth float64, peaks []spectrum.Peak) (err error) {
	if len(peaks) == 0 {
		return nil
	}

	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if err != nil {
			rollbackWithError(tx, &err)
		}
	}()

	stmt, err := tx.PrepareContext(ctx, insertPeakSQL)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	now := time.Now().UTC()
	for _, p := range peaks {
		if _, err = stmt.ExecContext(ctx, sessionID, now, p.Frequency, p.Power, binWidth); err != nil {
			return fmt.Errorf("inserting peak at %f Hz: %w", p.Frequency, err)
		}
	}

	return tx.Commit()
}

// Session returns a stored session by its ID.
func (s *Store) Session(ctx context.Context, id int64) (session *Session, err error) {
	db, err := s.getReadDB()
	if err != nil {
		return nil, fmt.Errorf("getting read connection: %w", err)
	}

	stmt, err := db.PrepareContext(ctx, selectSessionSQL)
	if err != nil {
		return nil, fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	var sess Session
	var config sql.NullString
	if err = stmt.QueryRowContext(ctx, id).Scan(&sess.ID, &sess.StartTime, &sess.DeviceAddr,
		&sess.Mode, &sess.FStart, &sess.FStop, &sess.RBW, &config); err != nil {
		return nil, fmt.Errorf("scanning session: %w", err)
	}
	if config.Valid {
		sess.Config = &config.String
	}

	return &sess, nil
}

// Peaks returns a session's stored peaks ordered by descending power,
// ties by ascending frequency.
func (s *Store) Peaks(ctx context.Context, sessionID int64) (peaks []PeakRecord, err error) {
	db, err := s.getReadDB()
	if err != nil {
		return nil, fmt.Errorf("getting read connection: %w", err)
	}

	rows, err := db.QueryContext(ctx, selectPeaksSQL, sessionID)
	if err != nil {
		return nil, fmt.Errorf("querying peaks: %w", err)
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var p PeakRecord
		if err = rows.Scan(&p.Timestamp, &p.Frequency, &p.Power, &p.BinWidth); err != nil {
			return nil, fmt.Errorf("scanning peak: %w", err)
		}
		peaks = append(peaks, p)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating peaks: %w", err)
	}

	return peaks, nil
}

// Close releases both database connections. Safe to call multiple
// times.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		if s.writeDB != nil {
			if err := s.writeDB.Close(); err != nil {
				s.closeErr = fmt.Errorf("closing write connection: %w", err)
			}
		}
		if s.readDB != nil {
			if err := s.readDB.Close(); err != nil && s.closeErr == nil {
				s.closeErr = fmt.Errorf("closing read connection: %w", err)
			}
		}
	})
	return s.closeErr
}

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}

func rollbackWithError(rb interface{ Rollback() error }, err *error) {
	if rErr := rb.Rollback(); rErr != nil && *err == nil {
		*err = rErr
	}
}
