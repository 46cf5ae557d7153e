package telemetry

import (
	"sync"
	"time"
)

// SNRHistory is a bounded, time-ordered window of modem SNR samples. The
// value reported for a just-decoded frame is the maximum over a trailing
// lookback span, not the most recent sample: the demodulator buffers audio
// internally, so the SNR at decode time can be a transient dip long after
// the frame's signal actually arrived.
type SNRHistory struct {
	mu      sync.Mutex
	times   []time.Time
	values  []float64
	maxSize int
}

// NewSNRHistory creates a history retaining at most maxSize samples.
func NewSNRHistory(maxSize int) *SNRHistory {
	if maxSize <= 0 {
		maxSize = 200
	}
	return &SNRHistory{maxSize: maxSize}
}

// Add appends an SNR sample observed at the given time, evicting the oldest
// sample once the window is full.
func (h *SNRHistory) Add(at time.Time, snr float64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.times = append(h.times, at)
	h.values = append(h.values, snr)
	if len(h.values) > h.maxSize {
		h.times = h.times[1:]
		h.values = h.values[1:]
	}
}

// Lookback returns the maximum SNR over the most recent n samples. When
// fewer than n samples exist the whole history is used. Returns 0 and false
// on an empty history.
func (h *SNRHistory) Lookback(n int) (float64, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.values) == 0 {
		return 0, false
	}

	start := 0
	if n > 0 && len(h.values) > n {
		start = len(h.values) - n
	}

	best := h.values[start]
	for _, v := range h.values[start+1:] {
		if v > best {
			best = v
		}
	}
	return best, true
}

// Samples returns a copy of the current (time, SNR) window, oldest first.
// Used by the display layer for the rolling SNR plot.
func (h *SNRHistory) Samples() ([]time.Time, []float64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	times := make([]time.Time, len(h.times))
	values := make([]float64, len(h.values))
	copy(times, h.times)
	copy(values, h.values)
	return times, values
}

// Len returns the number of samples currently held.
func (h *SNRHistory) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.values)
}

// Reset clears the window, used when a new decode session starts.
func (h *SNRHistory) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.times = h.times[:0]
	h.values = h.values[:0]
}
