package app

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/habtools/groundstation/internal/demod"
	"github.com/habtools/groundstation/internal/telemetry"
)

// consoleDisplay renders the decode session onto the structured log. It is
// the headless stand-in for a graphical frontend; anything implementing
// ui.Display can replace it.
type consoleDisplay struct {
	logger *slog.Logger

	lastStatus string
	lastStats  time.Time
}

func newConsoleDisplay(logger *slog.Logger) *consoleDisplay {
	return &consoleDisplay{logger: logger.With(slog.String("component", "display"))}
}

// UpdateSpectrum drops the spectrum rows; a console has nowhere to draw
// them. The data still reaches the session archive for offline rendering.
func (d *consoleDisplay) UpdateSpectrum([]float64, []float64, float64, float64) {}

func (d *consoleDisplay) UpdateAudioLevel(dbfs float64, status string) {
	if status == d.lastStatus {
		return
	}
	d.lastStatus = status
	d.logger.Info("audio level",
		slog.String("status", status),
		slog.String("level", fmt.Sprintf("%.1f dBFS", dbfs)))
}

func (d *consoleDisplay) UpdateModemStats(stats *demod.Stats, _ []time.Time, _ []float64) {
	// Stats arrive several times a second; one line a minute is plenty
	// for a scrollback log.
	if time.Since(d.lastStats) < time.Minute {
		return
	}
	d.lastStats = time.Now()

	attrs := []any{
		slog.String("snr", fmt.Sprintf("%.1f dB", stats.SNR)),
		slog.Bool("sync", stats.Sync),
	}
	if mean, ok := stats.Extended.EstimatorMean(); ok {
		attrs = append(attrs, slog.String("tones", fmt.Sprintf("%.0f Hz", mean)))
	}
	d.logger.Info("modem", attrs...)
}

func (d *consoleDisplay) ShowRecord(rec *telemetry.Record) {
	d.logger.Info("telemetry",
		slog.String("callsign", rec.Callsign),
		slog.Int("seq", rec.Sequence),
		slog.String("time", rec.Time),
		slog.Float64("lat", rec.Latitude),
		slog.Float64("lon", rec.Longitude),
		slog.Int("alt", rec.Altitude),
		slog.String("snr", fmt.Sprintf("%.1f dB", rec.SNR)))
}

func (d *consoleDisplay) AppendLog(line string) {
	d.logger.Info(line)
}
