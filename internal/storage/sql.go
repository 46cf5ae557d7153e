package storage

const initSchemaSQL = `
CREATE TABLE IF NOT EXISTS sessions (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    start_time  DATETIME NOT NULL,
    mode        TEXT NOT NULL,
    baud_rate   INTEGER NOT NULL,
    sample_rate INTEGER NOT NULL,
    config      TEXT
);

CREATE TABLE IF NOT EXISTS telemetry (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id  INTEGER NOT NULL REFERENCES sessions(id),
    received    DATETIME NOT NULL,
    callsign    TEXT NOT NULL,
    time        TEXT NOT NULL,
    latitude    REAL NOT NULL,
    longitude   REAL NOT NULL,
    altitude    INTEGER NOT NULL,
    snr         REAL,
    baud_rate   INTEGER,
    modulation  TEXT,
    f_centre    REAL,
    raw         TEXT
);

CREATE INDEX IF NOT EXISTS idx_telemetry_session ON telemetry(session_id, received);

CREATE TABLE IF NOT EXISTS spectra (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id INTEGER NOT NULL REFERENCES sessions(id),
    timestamp  DATETIME NOT NULL,
    freq_low   REAL NOT NULL,
    freq_high  REAL NOT NULL,
    dbfs       REAL NOT NULL,
    magnitudes BLOB NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_spectra_session ON spectra(session_id, timestamp);
`

const (
	insertSessionSQL = `
INSERT INTO sessions (start_time, mode, baud_rate, sample_rate, config)
VALUES (CURRENT_TIMESTAMP, ?, ?, ?, ?)`

	selectSessionSQL = `
SELECT id, start_time, mode, baud_rate, sample_rate, config
FROM sessions
WHERE id = ?`

	selectSessionsSQL = `
SELECT id, start_time, mode, baud_rate, sample_rate, config
FROM sessions
ORDER BY start_time`

	insertTelemetrySQL = `
INSERT INTO telemetry (session_id, received, callsign, time,
                       latitude, longitude, altitude,
                       snr, baud_rate, modulation, f_centre, raw)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	insertSpectrumSQL = `
INSERT INTO spectra (session_id, timestamp, freq_low, freq_high, dbfs, magnitudes)
VALUES (?, ?, ?, ?, ?, ?)`

	selectSpectraSQL = `
SELECT timestamp, freq_low, freq_high, dbfs, magnitudes
FROM spectra
WHERE session_id = ?
ORDER BY timestamp`
)
