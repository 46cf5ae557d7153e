package app

import (
	"math"
	"time"

	"github.com/habtools/groundstation/internal/storage"
)

// WaterfallData accumulates a session's archived spectra into the pixel
// grid to render: one row per snapshot, one column per frequency bin.
type WaterfallData struct {
	Width, Height                int
	FreqLow, FreqHigh            float64
	TimestampStart, TimestampEnd time.Time
	BoundsTracker                *SmoothBounds
	Rows                         [][]float64
}

func NewWaterfallData(b *SmoothBounds) *WaterfallData {
	return &WaterfallData{
		FreqLow:       math.MaxFloat64,
		BoundsTracker: b,
		Rows:          make([][]float64, 0),
	}
}

// Update appends one archived snapshot. Snapshots arrive in time order.
func (w *WaterfallData) Update(snap *storage.SpectrumSnapshot) {
	w.Width = max(w.Width, len(snap.Magnitudes))
	w.Height++

	w.FreqLow = min(w.FreqLow, snap.FreqLow)
	w.FreqHigh = max(w.FreqHigh, snap.FreqHigh)

	if w.TimestampStart.IsZero() || w.TimestampStart.After(snap.Timestamp) {
		w.TimestampStart = snap.Timestamp
	}
	if w.TimestampEnd.IsZero() || w.TimestampEnd.Before(snap.Timestamp) {
		w.TimestampEnd = snap.Timestamp
	}

	row := make([]float64, len(snap.Magnitudes))
	copy(row, snap.Magnitudes)
	for _, m := range row {
		w.BoundsTracker.Update(m)
	}
	w.Rows = append(w.Rows, row)
}
