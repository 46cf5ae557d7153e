package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/habtools/groundstation/internal/audio"
	"github.com/habtools/groundstation/internal/demod"
	"github.com/habtools/groundstation/internal/forward"
	"github.com/habtools/groundstation/internal/pipeline"
	"github.com/habtools/groundstation/internal/rotator"
	"github.com/habtools/groundstation/internal/spectrum"
	"github.com/habtools/groundstation/internal/storage"
	"github.com/habtools/groundstation/internal/telemetry"
	"github.com/habtools/groundstation/internal/telemlog"
	"github.com/habtools/groundstation/internal/ui"
)

const (
	storageDir = "data"

	// spectrumArchiveDecimation thins the spectra reaching the session
	// archive; the display gets every update, the database one in ten.
	spectrumArchiveDecimation = 10
)

// Build-time seams for the two components backed by native libraries. A
// build without them still runs as a spectrum monitor on UDP audio.
var (
	// NewDemodulator builds the modem adapter for the configured mode.
	NewDemodulator func(config ModemConfig, sampleRate int, frames demod.FrameFunc) (demod.Demodulator, error)

	// NewCaptureDriver opens the platform audio capture backend.
	NewCaptureDriver func() (audio.CaptureDriver, error)
)

func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	mode, err := demod.ParseMode(config.Modem.Mode)
	if err != nil {
		return err
	}

	var store storage.Store
	var sessionID int64
	if config.Storage.Enabled {
		if store, sessionID, err = createSession(config, mode, logger); err != nil {
			return fmt.Errorf("failed to create session archive: %w", err)
		}
		defer store.Close()
	}

	display := newConsoleDisplay(logger)

	// The drain is created after the pipeline (it renders the pipeline's
	// SNR history) but receives its output, hence the indirection.
	var drain *ui.Drain

	opts := []func(*pipeline.Pipeline){
		pipeline.WithLogger(logger),
		pipeline.WithRecordFunc(func(rec *telemetry.Record) { drain.PushRecord(rec) }),
		pipeline.WithStatsFunc(func(stats *demod.Stats) { drain.PushStats(stats) }),
	}

	if config.Forward.SummaryEnabled || config.Forward.OziMuxEnabled {
		sender := forward.NewSender(config.Forward.SummaryPort, config.Forward.OziMuxPort,
			forward.WithLogger(logger), withComment(config.Forward.Comment))
		opts = append(opts, pipeline.WithForwarder(sender, config.Forward.SummaryEnabled, config.Forward.OziMuxEnabled))
	}

	if config.Logging.Directory != "" {
		telemLog, err := telemlog.New(config.Logging.Directory, telemlog.Format(config.Logging.Format),
			telemlog.WithLogger(logger))
		if err != nil {
			return fmt.Errorf("failed to create telemetry logger: %w", err)
		}
		if err = telemLog.Start(ctx); err != nil {
			return err
		}
		defer telemLog.Stop()
		opts = append(opts, pipeline.WithTelemetryLog(telemLog))
	}

	if config.Rotator.Type != RotatorNone {
		rot, err := connectRotator(&config.Rotator, logger)
		if err != nil {
			return fmt.Errorf("failed to connect rotator: %w", err)
		}
		defer rot.Close()
		opts = append(opts, pipeline.WithRotator(rot))
	}

	if store != nil {
		opts = append(opts, pipeline.WithArchive(store, sessionID))
	}

	pl := pipeline.New(pipeline.Config{
		Mode:           mode,
		BaudRate:       config.Modem.BaudRate,
		StatsRate:      config.Modem.StatsRate,
		RTTYLookback:   secondsToDuration(config.Modem.RTTYLookback),
		BinaryLookback: secondsToDuration(config.Modem.BinaryLookback),
		DialFrequency:  config.Station.DialFrequency,
		Station: telemetry.StationPosition{
			Latitude:  config.Station.Latitude,
			Longitude: config.Station.Longitude,
			Altitude:  config.Station.Altitude,
		},
		HideCRCErrors: config.Modem.HideCRCErrors,
		RangeInhibit:  config.Rotator.RangeInhibit,
		InhibitRange:  config.Rotator.InhibitRange,
	}, opts...)

	drain = ui.NewDrain(display, pl.History(), ui.WithLogger(logger))
	if err = drain.Start(ctx); err != nil {
		return err
	}
	defer drain.Stop()

	var archived uint64
	engine, err := spectrum.NewEngine(spectrum.Config{
		NFFT:             config.Spectrum.NFFT,
		Stride:           config.Spectrum.Stride,
		SampleRate:       config.Audio.SampleRate,
		UpdateDecimation: config.Spectrum.UpdateDecimation,
		RangeLow:         config.Spectrum.RangeLow,
		RangeHigh:        config.Spectrum.RangeHigh,
	}, func(u spectrum.Update) {
		drain.PushSpectrum(&u)

		if store != nil {
			if archived%spectrumArchiveDecimation == 0 {
				snap := storage.SpectrumSnapshot{
					Timestamp:  time.Now(),
					FreqLow:    u.Frequencies[0],
					FreqHigh:   u.Frequencies[len(u.Frequencies)-1],
					DBFS:       u.DBFS,
					Magnitudes: u.Magnitudes,
				}
				if err := store.StoreSpectrum(sessionID, &snap); err != nil {
					logger.Error("archiving spectrum", slog.String("error", err.Error()))
				}
			}
			archived++
		}
	}, spectrum.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("failed to create spectrum engine: %w", err)
	}
	if err = engine.Start(ctx); err != nil {
		return err
	}
	defer engine.Stop()

	var dm demod.Demodulator
	if NewDemodulator != nil {
		if dm, err = NewDemodulator(config.Modem, config.Audio.SampleRate, pl.HandleFrame); err != nil {
			return fmt.Errorf("failed to create demodulator: %w", err)
		}
		defer dm.Close()

		if config.Modem.EstimatorHigh > config.Modem.EstimatorLow && config.Modem.EstimatorLow > 0 {
			if err = dm.SetEstimatorLimits(config.Modem.EstimatorLow, config.Modem.EstimatorHigh); err != nil {
				return fmt.Errorf("failed to set estimator limits: %w", err)
			}
		}
	} else {
		logger.Warn("no modem library in this build, running as a spectrum monitor")
	}

	hooks := audio.Hooks{
		Spectrum: engine.AddSamples,
		Stats:    pl.HandleStats,
	}
	if dm != nil {
		hooks.Demod = dm.AddSamples
	}

	source, err := createSource(config, hooks, logger)
	if err != nil {
		return fmt.Errorf("failed to create audio source: %w", err)
	}
	if err = source.Start(ctx); err != nil {
		return fmt.Errorf("failed to start audio source: %w", err)
	}
	defer source.Stop()

	logger.Info("ground station running",
		slog.String("mode", mode.String()),
		slog.Int("baud", config.Modem.BaudRate),
		slog.Int("sampleRate", config.Audio.SampleRate))

	<-ctx.Done()

	logger.Info("session finished",
		slog.String("decoded", humanize.Comma(int64(pl.Decoded()))),
		slog.String("crcErrors", humanize.Comma(int64(pl.CRCErrors()))),
		slog.String("parseErrors", humanize.Comma(int64(pl.ParseErrors()))),
		slog.String("overruns", humanize.Comma(int64(engine.Dropped()))))
	return nil
}

func createSource(config *Config, hooks audio.Hooks, logger *slog.Logger) (audio.Source, error) {
	switch config.Audio.Source {
	case AudioSourceDevice:
		if NewCaptureDriver == nil {
			return nil, fmt.Errorf("no audio capture backend in this build, use the udp source")
		}
		driver, err := NewCaptureDriver()
		if err != nil {
			return nil, err
		}
		return audio.NewDeviceSource(driver, config.Audio.DeviceIndex, config.Audio.SampleRate,
			config.Audio.BlockSize, hooks, audio.WithDeviceLogger(logger)), nil

	default:
		return audio.NewUDPSource(config.Audio.UDPPort, config.Audio.SampleRate, hooks,
			audio.WithUDPLogger(logger)), nil
	}
}

func connectRotator(config *RotatorConfig, logger *slog.Logger) (rotator.Rotator, error) {
	var rot rotator.Rotator
	switch config.Type {
	case RotatorRotctld:
		rot = rotator.NewRotctld(config.Host, config.Port, rotator.WithRotctldLogger(logger))
	case RotatorPSTRotator:
		rot = rotator.NewPSTRotator(config.Host, config.Port, rotator.WithPSTRotatorLogger(logger))
	default:
		return nil, fmt.Errorf("unknown rotator type %q", config.Type)
	}

	if err := rot.Connect(); err != nil {
		return nil, err
	}
	return rot, nil
}

func createSession(config *Config, mode demod.Mode, logger *slog.Logger) (storage.Store, int64, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get current working directory: %w", err)
	}

	dir := config.Storage.DataDirectory
	if dir == "" {
		dir = storageDir
	}
	dbDir := filepath.Join(wd, dir)

	stat, err := os.Stat(dbDir)
	if err != nil {
		return nil, 0, fmt.Errorf("storage directory '%s' does not exist: %w", dbDir, err)
	}
	if !stat.IsDir() {
		return nil, 0, fmt.Errorf("invalid storage directory '%s'", dbDir)
	}

	dbPath := filepath.Join(dbDir, fmt.Sprintf("telemetry_session_%s.sqlite", time.Now().UTC().Format("20060102_150405")))
	store := storage.NewSqliteStore(dbPath)

	sessionID, err := store.CreateSession(mode.String(), config.Modem.BaudRate, config.Audio.SampleRate, config)
	if err != nil {
		_ = store.Close()
		return nil, 0, err
	}

	logger.Info("session archive created", slog.String("path", dbPath), slog.Int64("session", sessionID))
	return store, sessionID, nil
}

func secondsToDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}

// withComment keeps the sender's default when no comment is configured.
func withComment(comment string) func(*forward.Sender) {
	if comment == "" {
		return func(*forward.Sender) {}
	}
	return forward.WithComment(comment)
}
