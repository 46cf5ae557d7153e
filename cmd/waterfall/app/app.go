package app

import (
	"context"
	"fmt"
	"image/jpeg"
	"image/png"
	"log/slog"
	"os"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/habtools/groundstation/internal/storage"
)

func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	if _, err := os.Stat(config.DBPath); err != nil && os.IsNotExist(err) {
		return fmt.Errorf("database file '%s' does not exist: %w", config.DBPath, err)
	}

	store := storage.NewSqliteStore(config.DBPath)
	defer store.Close()

	return renderSession(ctx, store, config, logger)
}

func renderSession(ctx context.Context, store storage.Store, config *Config, logger *slog.Logger) error {
	sess, err := store.Session(config.SessionID)
	if err != nil {
		return err
	}
	if sess == nil {
		return fmt.Errorf("session %d not found", config.SessionID)
	}

	logger.Info("reading archived spectra",
		slog.Int64("session", sess.ID),
		slog.String("mode", sess.Mode),
		slog.String("started", sess.StartTime.Local().Format(time.DateTime)))

	data := NewWaterfallData(NewSmoothBounds(0.3))
	err = store.Spectra(config.SessionID, func(snap *storage.SpectrumSnapshot) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		data.Update(snap)
		return nil
	})
	if err != nil {
		return err
	}
	if data.Height == 0 {
		return fmt.Errorf("session %d holds no spectra", config.SessionID)
	}

	bounds := data.BoundsTracker.Current()
	if config.MinPower != nil {
		bounds.Min = *config.MinPower
	}
	if config.MaxPower != nil {
		bounds.Max = *config.MaxPower
	}

	logger.Info("finished reading spectra",
		slog.Group("stats",
			slog.String("rows", humanize.Comma(int64(data.Height))),
			slog.String("minTimestamp", data.TimestampStart.Local().Format(time.DateTime)),
			slog.String("maxTimestamp", data.TimestampEnd.Local().Format(time.DateTime)),
			slog.String("minFreq", formatFrequency(data.FreqLow)),
			slog.String("maxFreq", formatFrequency(data.FreqHigh)),
			slog.String("minPower", fmt.Sprintf("%0.2fdB", bounds.Min)),
			slog.String("maxPower", fmt.Sprintf("%0.2fdB", bounds.Max)),
		))

	renderer := NewRenderer(RenderConfig{
		Theme:    config.Theme,
		FontPath: config.FontPath,
	})

	logger.Info("rendering waterfall",
		slog.Group("image",
			slog.String("destination", config.OutputFile),
			slog.String("format", string(config.Format)),
			slog.String("theme", string(config.Theme)),
			slog.Int("width", data.Width),
			slog.Int("height", data.Height),
		))

	img, err := renderer.Render(data, bounds)
	if err != nil {
		return fmt.Errorf("rendering waterfall: %w", err)
	}

	out, err := os.Create(config.OutputFile)
	if err != nil {
		return err
	}
	defer out.Close()

	switch config.Format {
	case ImageJPEG:
		err = jpeg.Encode(out, img, &jpeg.Options{Quality: 98})
	default:
		err = png.Encode(out, img)
	}
	return err
}
