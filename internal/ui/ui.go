// Package ui decouples the decode pipeline from whatever renders it. All
// updates flow through bounded queues into a single drain goroutine that
// batches them onto a Display at a fixed tick, so a slow or stalled frontend
// can never hold up audio processing.
package ui

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/habtools/groundstation/internal/demod"
	"github.com/habtools/groundstation/internal/spectrum"
	"github.com/habtools/groundstation/internal/telemetry"
)

const (
	// drainInterval is the display refresh tick. Queued updates are
	// batched; only the newest spectrum and statistics survive a tick.
	drainInterval = 100 * time.Millisecond

	// scaleTC is the smoothing coefficient for the spectrum autoscale
	// and audio level, an IIR single-pole filter per applied update.
	scaleTC = 0.1

	spectrumQueueDepth = 16
	statsQueueDepth    = 16
	recordQueueDepth   = 16
	logQueueDepth      = 64
)

// Display is the rendering surface the drain feeds. Implementations are
// only ever called from the drain goroutine.
type Display interface {
	// UpdateSpectrum renders the newest spectrum with the smoothed
	// y-axis bounds.
	UpdateSpectrum(frequencies, magnitudes []float64, scaleLow, scaleHigh float64)

	// UpdateAudioLevel renders the smoothed input level and its
	// classification string.
	UpdateAudioLevel(dbfs float64, status string)

	// UpdateModemStats renders the newest modem statistics together
	// with the rolling SNR window.
	UpdateModemStats(stats *demod.Stats, snrTimes []time.Time, snrValues []float64)

	// ShowRecord renders a validated telemetry record.
	ShowRecord(rec *telemetry.Record)

	// AppendLog appends one line to the scrolling log pane.
	AppendLog(line string)
}

// WithLogger sets the logger for a Drain.
func WithLogger(logger *slog.Logger) func(*Drain) {
	return func(d *Drain) {
		d.logger = logger.With(slog.String("component", "ui"))
	}
}

// Drain is the queue-and-tick bridge between the pipeline and a Display.
// The Push methods never block; when a queue is full the update is dropped,
// which for spectrum and statistics just means a stale tick.
type Drain struct {
	display Display
	history *telemetry.SNRHistory

	spectra chan *spectrum.Update
	stats   chan *demod.Stats
	records chan *telemetry.Record
	lines   chan string

	// Smoothed display state, touched only by the drain goroutine.
	scaleLow   float64
	scaleHigh  float64
	scaleInit  bool
	levelDBFS  float64
	levelInit  bool

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	logger  *slog.Logger
}

// NewDrain creates a drain feeding the given display. The SNR history is
// shared with the pipeline and read at render time.
func NewDrain(display Display, history *telemetry.SNRHistory, options ...func(*Drain)) *Drain {
	d := Drain{
		display: display,
		history: history,
		spectra: make(chan *spectrum.Update, spectrumQueueDepth),
		stats:   make(chan *demod.Stats, statsQueueDepth),
		records: make(chan *telemetry.Record, recordQueueDepth),
		lines:   make(chan string, logQueueDepth),
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&d)
	}

	return &d
}

// Start launches the drain goroutine.
func (d *Drain) Start(ctx context.Context) error {
	if !d.running.CompareAndSwap(false, true) {
		return fmt.Errorf("display drain is already running")
	}

	ctx, d.cancel = context.WithCancel(ctx)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		ticker := time.NewTicker(drainInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				d.tick()
			}
		}
	}()

	return nil
}

// Stop halts the drain goroutine. Idempotent.
func (d *Drain) Stop() {
	if !d.running.CompareAndSwap(true, false) {
		return
	}
	d.cancel()
	d.wg.Wait()
}

// PushSpectrum queues a spectrum update. Never blocks.
func (d *Drain) PushSpectrum(u *spectrum.Update) {
	select {
	case d.spectra <- u:
	default:
	}
}

// PushStats queues a modem statistics report. Never blocks.
func (d *Drain) PushStats(s *demod.Stats) {
	select {
	case d.stats <- s:
	default:
	}
}

// PushRecord queues a validated telemetry record. Never blocks.
func (d *Drain) PushRecord(rec *telemetry.Record) {
	select {
	case d.records <- rec:
	default:
	}
}

// Log queues one line for the scrolling log pane. Never blocks.
func (d *Drain) Log(format string, args ...any) {
	select {
	case d.lines <- fmt.Sprintf(format, args...):
	default:
	}
}

// tick drains every queue and applies the results. Spectra and statistics
// collapse to the newest entry; records and log lines apply in order.
func (d *Drain) tick() {
	if u := latest(d.spectra); u != nil {
		d.applySpectrum(u)
	}

	if s := latest(d.stats); s != nil {
		var times []time.Time
		var values []float64
		if d.history != nil {
			times, values = d.history.Samples()
		}
		d.display.UpdateModemStats(s, times, values)
	}

records:
	for {
		select {
		case rec := <-d.records:
			d.display.ShowRecord(rec)
		default:
			break records
		}
	}

	for {
		select {
		case line := <-d.lines:
			d.display.AppendLog(line)
		default:
			return
		}
	}
}

func latest[T any](ch chan *T) *T {
	var newest *T
	for {
		select {
		case v := <-ch:
			newest = v
		default:
			return newest
		}
	}
}

func (d *Drain) applySpectrum(u *spectrum.Update) {
	lo, hi, ok := finiteBounds(u.Magnitudes)
	if ok {
		if !d.scaleInit {
			d.scaleLow, d.scaleHigh = lo, hi
			d.scaleInit = true
		} else {
			d.scaleLow = d.scaleLow*(1-scaleTC) + lo*scaleTC
			d.scaleHigh = d.scaleHigh*(1-scaleTC) + hi*scaleTC
		}
	}
	d.display.UpdateSpectrum(u.Frequencies, u.Magnitudes, d.scaleLow, d.scaleHigh)

	if math.IsNaN(u.DBFS) || math.IsInf(u.DBFS, 0) {
		return
	}
	if !d.levelInit {
		d.levelDBFS = u.DBFS
		d.levelInit = true
	} else {
		d.levelDBFS = d.levelDBFS*(1-scaleTC) + u.DBFS*scaleTC
	}
	d.display.UpdateAudioLevel(d.levelDBFS, levelStatus(d.levelDBFS))
}

// finiteBounds returns the min and max over the finite values of the
// slice, false when there are none (an all-NaN silence spectrum).
func finiteBounds(values []float64) (float64, float64, bool) {
	var lo, hi float64
	found := false
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		if !found {
			lo, hi = v, v
			found = true
			continue
		}
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi, found
}

// levelStatus classifies an input level for the operator: clipping,
// absent, weak, or usable audio.
func levelStatus(dbfs float64) string {
	switch {
	case dbfs > -5:
		return "TOO HIGH"
	case dbfs < -90:
		return "NO AUDIO?"
	case dbfs < -50:
		return "LOW"
	default:
		return "GOOD"
	}
}
