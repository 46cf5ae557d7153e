// Package demod defines the contract with the external FSK/RTTY demodulator
// and the frame/statistics types it produces. The demodulation itself (bit
// sync, symbol demapping, FEC) happens inside a native library behind the
// Demodulator interface; this package only shapes what goes in and out.
package demod

import (
	"fmt"
	"time"
)

// MaxFrequencyEstimators is the number of tone frequency estimators the
// modem reports positions for.
const MaxFrequencyEstimators = 4

// Mode identifies a demodulator operating mode.
type Mode int

const (
	ModeBinaryV1 Mode = iota
	ModeBinaryV2_128Bit
	ModeBinaryV2_256Bit
	ModeRTTY7N1
	ModeRTTY7N2
	ModeRTTY8N2
)

func (m Mode) String() string {
	switch m {
	case ModeBinaryV1:
		return "Horus Binary v1"
	case ModeBinaryV2_128Bit:
		return "Horus Binary v2 (128 bit)"
	case ModeBinaryV2_256Bit:
		return "Horus Binary v2 (256 bit)"
	case ModeRTTY7N1:
		return "RTTY (7N1)"
	case ModeRTTY7N2:
		return "RTTY (7N2)"
	case ModeRTTY8N2:
		return "RTTY (8N2)"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// IsRTTY reports whether the mode emits textual UKHAS sentences rather than
// binary packets. The distinction also drives the SNR lookback window, since
// the RTTY demodulator buffers far more audio internally before a decoded
// sentence surfaces.
func (m Mode) IsRTTY() bool {
	switch m {
	case ModeRTTY7N1, ModeRTTY7N2, ModeRTTY8N2:
		return true
	}
	return false
}

// ParseMode resolves a configuration string into a Mode.
func ParseMode(s string) (Mode, error) {
	for _, m := range []Mode{
		ModeBinaryV1, ModeBinaryV2_128Bit, ModeBinaryV2_256Bit,
		ModeRTTY7N1, ModeRTTY7N2, ModeRTTY8N2,
	} {
		if m.String() == s {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown modem mode %q", s)
}

// ModeInfo describes the tunable parameters of a modem mode.
type ModeInfo struct {
	BaudRates        []int  // Supported baud rates
	DefaultBaudRate  int    // Baud rate used when none is configured
	DefaultSpacing   int    // Default tone spacing in Hz
	UseMaskEstimator bool   // Bias the frequency estimator with known tone spacing
	ModulationDetail string // Extra detail reported with telemetry ("7N2" etc), empty if none
}

var modeTable = map[Mode]ModeInfo{
	// 25 baud omitted until the underlying modem handles it reliably.
	ModeBinaryV1:        {BaudRates: []int{50, 100, 300}, DefaultBaudRate: 100, DefaultSpacing: 270, UseMaskEstimator: true},
	ModeBinaryV2_128Bit: {BaudRates: []int{50, 100, 300}, DefaultBaudRate: 100, DefaultSpacing: 270, UseMaskEstimator: true},
	ModeBinaryV2_256Bit: {BaudRates: []int{50, 100, 300}, DefaultBaudRate: 100, DefaultSpacing: 270, UseMaskEstimator: true},
	ModeRTTY7N1:         {BaudRates: []int{50, 75, 100, 200, 300, 600, 1000}, DefaultBaudRate: 100, DefaultSpacing: 425, ModulationDetail: "7N1"},
	ModeRTTY7N2:         {BaudRates: []int{50, 75, 100, 200, 300, 600, 1000}, DefaultBaudRate: 100, DefaultSpacing: 425, ModulationDetail: "7N2"},
	ModeRTTY8N2:         {BaudRates: []int{50, 75, 100, 200, 300, 600, 1000}, DefaultBaudRate: 100, DefaultSpacing: 425, ModulationDetail: "8N2"},
}

// Info returns the parameter table entry for the mode.
func (m Mode) Info() ModeInfo {
	return modeTable[m]
}

// ExtendedStats carries the modem internals reported alongside SNR.
type ExtendedStats struct {
	FrequencyEstimators [MaxFrequencyEstimators]float64 // Tone position estimates in Hz, 0 when unused
	SyncMetric          float64
	ClockOffsetPPM      float64
	FrequencyOffset     float64
}

// EstimatorMean returns the mean of the non-zero frequency estimator
// positions, and false when no estimator has locked.
func (s *ExtendedStats) EstimatorMean() (float64, bool) {
	var sum float64
	var n int
	for _, f := range s.FrequencyEstimators {
		if f != 0 {
			sum += f
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

// Stats is the intermediate statistics report the modem produces between
// full frame decodes, used for live SNR and tone-position display.
type Stats struct {
	Timestamp time.Time
	SNR       float64
	Sync      bool
	Extended  ExtendedStats
}

// Frame is one decoded unit of modem output, prior to telemetry parsing.
// Data holds raw packet bytes for the binary modes and an ASCII sentence
// for the RTTY modes (Text reports which).
type Frame struct {
	Data     []byte
	Text     bool
	Sync     bool
	CRCPass  bool
	SNR      float64
	Extended ExtendedStats
}

// FrameFunc receives every fully decoded frame. It is invoked from the
// demodulator's delivery goroutine and must not block.
type FrameFunc func(Frame)

// Demodulator is the adapter over the external modem library.
//
// AddSamples feeds a block of 16-bit little-endian mono PCM and returns
// intermediate statistics when the modem produced them for that block, or
// nil. Decoded frames are delivered out of band through the FrameFunc
// registered at construction.
type Demodulator interface {
	AddSamples(block []byte) (*Stats, error)

	// SetEstimatorLimits narrows the frequency search window of the
	// modem's tone estimators.
	SetEstimatorLimits(lowHz, highHz float64) error

	Close() error
}
