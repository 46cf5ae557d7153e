// Package storage archives decode sessions in a sqlite database: session
// metadata, every validated telemetry record, and periodic spectrum
// snapshots for offline waterfall rendering.
package storage

import (
	"time"

	"github.com/habtools/groundstation/internal/telemetry"
)

// Session describes one recorded decode session.
type Session struct {
	ID         int64
	StartTime  time.Time
	Mode       string // Modem mode name
	BaudRate   int
	SampleRate int
	Config     *string // Session configuration as JSON, if recorded
}

// SpectrumSnapshot is one archived spectrum: a row of magnitudes over a
// contiguous bin range at a point in time.
type SpectrumSnapshot struct {
	Timestamp  time.Time
	FreqLow    float64 // Hz of the first bin
	FreqHigh   float64 // Hz of the last bin
	DBFS       float64
	Magnitudes []float64 // dB per bin
}

// Store is the session archive. All writes are atomic; implementations are
// safe for use from a single writer goroutine.
type Store interface {
	// CreateSession records a new decode session and returns its ID.
	CreateSession(mode string, baudRate, sampleRate int, config any) (int64, error)

	// Session retrieves one session's metadata, nil when not found.
	Session(id int64) (*Session, error)

	// Sessions lists all recorded sessions ordered by start time.
	Sessions() ([]*Session, error)

	// StoreTelemetry archives a validated record under a session.
	StoreTelemetry(sessionID int64, rec *telemetry.Record) error

	// StoreSpectrum archives a spectrum snapshot under a session.
	StoreSpectrum(sessionID int64, snap *SpectrumSnapshot) error

	// Spectra iterates the archived snapshots of a session in time
	// order, calling fn for each; iteration stops on the first error.
	Spectra(sessionID int64, fn func(*SpectrumSnapshot) error) error

	// Close releases the database. Safe to call multiple times.
	Close() error
}
