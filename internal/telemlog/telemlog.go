// Package telemlog writes decoded telemetry to per-callsign log files on
// disk, in CSV or line-delimited JSON, draining a bounded queue on its own
// goroutine so sinks never block the decode pipeline.
package telemlog

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/habtools/groundstation/internal/telemetry"
)

// Format selects the on-disk log format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"

	queueDepth = 256
)

// WithLogger sets the logger for a Logger.
func WithLogger(logger *slog.Logger) func(*Logger) {
	return func(l *Logger) {
		l.logger = logger.With(slog.String("component", "telemlog"))
	}
}

// Logger is the queued telemetry disk logger. One file is opened per
// callsign per session; a failure to create a file in the configured
// directory disables logging until the directory is reconfigured.
type Logger struct {
	format Format

	mu        sync.Mutex
	directory string
	files     map[string]string // callsign -> path
	disabled  bool

	input   chan *telemetry.Record
	dropped atomic.Uint64

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	logger  *slog.Logger
}

// New creates a logger writing to the given directory. An empty directory
// disables logging until SetDirectory is called.
func New(directory string, format Format, options ...func(*Logger)) (*Logger, error) {
	switch format {
	case FormatCSV, FormatJSON:
	default:
		return nil, fmt.Errorf("unknown telemetry log format %q", format)
	}

	l := Logger{
		format:    format,
		directory: directory,
		files:     make(map[string]string),
		input:     make(chan *telemetry.Record, queueDepth),
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&l)
	}

	return &l, nil
}

// Start launches the drain goroutine.
func (l *Logger) Start(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return fmt.Errorf("telemetry logger is already running")
	}

	ctx, l.cancel = context.WithCancel(ctx)

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case rec := <-l.input:
				if err := l.write(rec); err != nil {
					l.logger.Error("writing telemetry log", slog.String("error", err.Error()))
				}
			}
		}
	}()

	return nil
}

// Stop halts the drain goroutine. Idempotent.
func (l *Logger) Stop() {
	if !l.running.CompareAndSwap(true, false) {
		return
	}
	l.cancel()
	l.wg.Wait()
}

// Add queues a record for logging. Never blocks; when the queue is full the
// record is dropped and the overrun logged.
func (l *Logger) Add(rec *telemetry.Record) {
	l.mu.Lock()
	enabled := l.directory != "" && !l.disabled
	l.mu.Unlock()
	if !enabled {
		return
	}

	select {
	case l.input <- rec:
	default:
		n := l.dropped.Add(1)
		l.logger.Error("telemetry log queue full, dropping record", slog.Uint64("dropped", n))
	}
}

// SetDirectory points the logger at a new output directory, re-enabling it
// after a previous open failure. Open files are abandoned; new ones are
// created on the next record.
func (l *Logger) SetDirectory(directory string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.directory = directory
	l.disabled = false
	l.files = make(map[string]string)
}

func (l *Logger) write(rec *telemetry.Record) error {
	l.mu.Lock()
	directory := l.directory
	disabled := l.disabled
	path, havePath := l.files[rec.Callsign]
	l.mu.Unlock()

	if directory == "" || disabled {
		return nil
	}

	newFile := !havePath
	if newFile {
		name := fmt.Sprintf("%s_%s.%s", time.Now().UTC().Format("20060102-150405"), rec.Callsign, l.format)
		path = filepath.Join(directory, name)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		if newFile {
			// The directory itself is unusable; disable until the
			// operator reconfigures it.
			l.mu.Lock()
			l.disabled = true
			l.mu.Unlock()
			return fmt.Errorf("cannot create log file in %s, logging disabled: %w", directory, err)
		}
		// The established file went away; forget it and try a fresh
		// one on the next record.
		l.mu.Lock()
		delete(l.files, rec.Callsign)
		l.mu.Unlock()
		return fmt.Errorf("reopening log file %s: %w", path, err)
	}
	defer f.Close()

	if newFile {
		l.mu.Lock()
		l.files[rec.Callsign] = path
		l.mu.Unlock()
		l.logger.Info("opened telemetry log file", slog.String("path", path))
	}

	switch l.format {
	case FormatJSON:
		return l.writeJSON(f, rec)
	default:
		return l.writeCSV(f, rec, newFile)
	}
}

func (l *Logger) writeJSON(w io.Writer, rec *telemetry.Record) error {
	payload, err := json.Marshal(recordFields(rec))
	if err != nil {
		return fmt.Errorf("encoding record: %w", err)
	}
	_, err = w.Write(append(payload, '\n'))
	return err
}

func (l *Logger) writeCSV(w io.Writer, rec *telemetry.Record, header bool) error {
	fields := recordFields(rec)

	// Stable column order: primary fields first, then the payload's
	// custom fields in transmission order.
	columns := []string{"time", "callsign", "latitude", "longitude", "altitude", "snr", "baud_rate"}
	columns = append(columns, rec.CustomFieldNames...)

	cw := csv.NewWriter(w)
	if header {
		if err := cw.Write(columns); err != nil {
			return err
		}
	}

	row := make([]string, len(columns))
	for i, col := range columns {
		row[i] = fmt.Sprint(fields[col])
	}
	if err := cw.Write(row); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

func recordFields(rec *telemetry.Record) map[string]any {
	fields := map[string]any{
		"time":      rec.Time,
		"callsign":  rec.Callsign,
		"latitude":  strconv.FormatFloat(rec.Latitude, 'f', 5, 64),
		"longitude": strconv.FormatFloat(rec.Longitude, 'f', 5, 64),
		"altitude":  rec.Altitude,
		"snr":       strconv.FormatFloat(rec.SNR, 'f', 1, 64),
		"baud_rate": rec.BaudRate,
	}
	if rec.ModulationDetail != "" {
		fields["modulation_detail"] = rec.ModulationDetail
	}
	if rec.CentreFrequency != nil {
		fields["f_centre"] = *rec.CentreFrequency
	}
	if rec.BatteryVoltage != nil {
		fields["batt_voltage"] = *rec.BatteryVoltage
	}
	if rec.Satellites != nil {
		fields["sats"] = *rec.Satellites
	}
	if rec.Temperature != nil {
		fields["temp"] = *rec.Temperature
	}
	for name, value := range rec.CustomFields {
		fields[name] = value
	}
	return fields
}
