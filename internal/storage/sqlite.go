package storage

import (
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/habtools/groundstation/internal/telemetry"
)

// SqliteStore implements Store on a sqlite database file.
type SqliteStore struct {
	dbPath string

	dbOnce sync.Once
	db     *sql.DB
	dbErr  error

	closeOnce sync.Once
	closeErr  error
}

// NewSqliteStore creates a store writing to dbPath. The database is opened
// lazily on first use.
func NewSqliteStore(dbPath string) *SqliteStore {
	return &SqliteStore{dbPath: dbPath}
}

func (s *SqliteStore) getDB() (*sql.DB, error) {
	s.dbOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_journal_mode=WAL&_synchronous=NORMAL", s.dbPath))
		if err != nil {
			s.dbErr = fmt.Errorf("opening database: %w", err)
			return
		}
		if _, err = db.Exec(initSchemaSQL); err != nil {
			_ = db.Close()
			s.dbErr = fmt.Errorf("initializing schema: %w", err)
			return
		}
		s.db = db
	})
	return s.db, s.dbErr
}

func (s *SqliteStore) CreateSession(mode string, baudRate, sampleRate int, config any) (int64, error) {
	db, err := s.getDB()
	if err != nil {
		return 0, err
	}

	var configData sql.NullString
	if config != nil {
		switch v := config.(type) {
		case string:
			configData = sql.NullString{String: v, Valid: true}
		case []byte:
			configData = sql.NullString{String: string(v), Valid: true}
		default:
			p, err := json.Marshal(config)
			if err != nil {
				return 0, fmt.Errorf("marshaling session config: %w", err)
			}
			configData = sql.NullString{String: string(p), Valid: true}
		}
	}

	res, err := db.Exec(insertSessionSQL, mode, baudRate, sampleRate, configData)
	if err != nil {
		return 0, fmt.Errorf("creating session: %w", err)
	}
	return res.LastInsertId()
}

func (s *SqliteStore) Session(id int64) (*Session, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	sess, err := scanSession(db.QueryRow(selectSessionSQL, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return sess, err
}

func (s *SqliteStore) Sessions() ([]*Session, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.Query(selectSessionsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

func (s *SqliteStore) StoreTelemetry(sessionID int64, rec *telemetry.Record) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	var fCentre sql.NullFloat64
	if rec.CentreFrequency != nil {
		fCentre = sql.NullFloat64{Float64: *rec.CentreFrequency, Valid: true}
	}
	var modulation sql.NullString
	if rec.ModulationDetail != "" {
		modulation = sql.NullString{String: rec.ModulationDetail, Valid: true}
	}

	_, err = db.Exec(insertTelemetrySQL,
		sessionID, rec.Received.UTC(), rec.Callsign, rec.Time,
		rec.Latitude, rec.Longitude, rec.Altitude,
		rec.SNR, rec.BaudRate, modulation, fCentre, rec.Raw)
	if err != nil {
		return fmt.Errorf("storing telemetry: %w", err)
	}
	return nil
}

func (s *SqliteStore) StoreSpectrum(sessionID int64, snap *SpectrumSnapshot) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	_, err = db.Exec(insertSpectrumSQL,
		sessionID, snap.Timestamp.UTC(), snap.FreqLow, snap.FreqHigh, snap.DBFS,
		encodeMagnitudes(snap.Magnitudes))
	if err != nil {
		return fmt.Errorf("storing spectrum snapshot: %w", err)
	}
	return nil
}

func (s *SqliteStore) Spectra(sessionID int64, fn func(*SpectrumSnapshot) error) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	rows, err := db.Query(selectSpectraSQL, sessionID)
	if err != nil {
		return fmt.Errorf("querying spectra: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var snap SpectrumSnapshot
		var blob []byte
		if err := rows.Scan(&snap.Timestamp, &snap.FreqLow, &snap.FreqHigh, &snap.DBFS, &blob); err != nil {
			return fmt.Errorf("scanning spectrum row: %w", err)
		}
		snap.Magnitudes = decodeMagnitudes(blob)

		if err := fn(&snap); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Close releases the database. Safe to call multiple times.
func (s *SqliteStore) Close() error {
	s.closeOnce.Do(func() {
		if s.db != nil {
			s.closeErr = s.db.Close()
		}
	})
	return s.closeErr
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*Session, error) {
	var sess Session
	var config sql.NullString
	if err := row.Scan(&sess.ID, &sess.StartTime, &sess.Mode, &sess.BaudRate, &sess.SampleRate, &config); err != nil {
		return nil, err
	}
	if config.Valid {
		sess.Config = &config.String
	}
	return &sess, nil
}

// Magnitudes are archived as little-endian float32, halving storage at a
// precision far beyond what a waterfall pixel needs.
func encodeMagnitudes(magnitudes []float64) []byte {
	blob := make([]byte, 4*len(magnitudes))
	for i, m := range magnitudes {
		binary.LittleEndian.PutUint32(blob[i*4:], math.Float32bits(float32(m)))
	}
	return blob
}

func decodeMagnitudes(blob []byte) []float64 {
	magnitudes := make([]float64, len(blob)/4)
	for i := range magnitudes {
		magnitudes[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:])))
	}
	return magnitudes
}
