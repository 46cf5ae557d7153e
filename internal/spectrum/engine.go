// Package spectrum implements the streaming FFT engine: it accumulates PCM
// sample blocks, performs windowed FFTs at a fixed stride (overlap-add), and
// emits masked magnitude spectra plus a wideband dBFS level estimate.
package spectrum

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
	"gonum.org/v1/gonum/floats"
)

const (
	// SilenceDBFS is the sentinel level emitted for an all-zero window,
	// letting the sink distinguish true silence from a very quiet signal.
	SilenceDBFS = -99.0

	sampleWidth = 2 // bytes per 16-bit mono PCM sample

	DefaultNFFT       = 8192
	DefaultStride     = 4096
	DefaultQueueDepth = 512
)

// Update is one spectrum result: magnitudes in dB over the masked frequency
// bins, the matching frequency axis in Hz, and the wideband input level.
// Updates are ephemeral; consumers must not retain the slices.
type Update struct {
	Magnitudes  []float64
	Frequencies []float64
	DBFS        float64
}

// UpdateFunc consumes spectrum updates. It is called from the engine's
// processing goroutine.
type UpdateFunc func(Update)

// Config holds the engine's FFT parameters.
type Config struct {
	NFFT             int     // FFT length in samples
	Stride           int     // Buffer advance per FFT; overlap is NFFT-Stride
	SampleRate       int     // Input sample rate in Hz
	UpdateDecimation int     // Emit every Nth computed spectrum (>= 1)
	RangeLow         float64 // Lower display frequency bound in Hz
	RangeHigh        float64 // Upper display frequency bound in Hz
	QueueDepth       int     // Input queue capacity in blocks
}

// WithLogger sets the logger for the engine.
func WithLogger(logger *slog.Logger) func(*Engine) {
	return func(e *Engine) {
		e.logger = logger.With(slog.String("component", "spectrum"))
	}
}

// Engine is the streaming FFT processor. Sample blocks are pushed through
// AddSamples from the capture thread and processed on the engine's own
// goroutine; the capture thread is never blocked, blocks are dropped when
// the input queue is full.
type Engine struct {
	nfft       int
	stride     int
	sampleRate int
	decimation int

	fft       *fourier.FFT
	hann      []float64
	freqs     []float64 // masked frequency axis, precomputed
	maskLo    int       // first masked bin (inclusive)
	maskHi    int       // last masked bin (exclusive)
	frame     []float64 // scratch: normalized windowed samples
	coeffs    []complex128

	buf     []byte
	counter uint64

	input   chan []byte
	dropped atomic.Uint64
	emit    UpdateFunc

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	logger *slog.Logger
}

// NewEngine creates an engine for the given parameters. The emit callback
// receives every UpdateDecimation'th spectrum.
func NewEngine(config Config, emit UpdateFunc, options ...func(*Engine)) (*Engine, error) {
	if config.NFFT <= 0 {
		config.NFFT = DefaultNFFT
	}
	if config.Stride <= 0 {
		config.Stride = DefaultStride
	}
	if config.Stride > config.NFFT {
		return nil, fmt.Errorf("stride %d exceeds nfft %d", config.Stride, config.NFFT)
	}
	if config.SampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate %d", config.SampleRate)
	}
	if config.UpdateDecimation <= 0 {
		config.UpdateDecimation = 1
	}
	if config.QueueDepth <= 0 {
		config.QueueDepth = DefaultQueueDepth
	}
	if config.RangeHigh <= config.RangeLow {
		return nil, fmt.Errorf("invalid display range %f..%f Hz", config.RangeLow, config.RangeHigh)
	}

	e := Engine{
		nfft:       config.NFFT,
		stride:     config.Stride,
		sampleRate: config.SampleRate,
		decimation: config.UpdateDecimation,
		fft:        fourier.NewFFT(config.NFFT),
		frame:      make([]float64, config.NFFT),
		coeffs:     make([]complex128, config.NFFT/2+1),
		input:      make(chan []byte, config.QueueDepth),
		emit:       emit,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	// Precompute Hann coefficients by windowing a unit sequence.
	e.hann = make([]float64, config.NFFT)
	for i := range e.hann {
		e.hann[i] = 1
	}
	window.Hann(e.hann)

	// The display mask covers positive frequencies only, so the real-input
	// half spectrum carries every bin we need. Bin i sits at i*fs/nfft Hz.
	binHz := float64(config.SampleRate) / float64(config.NFFT)
	e.maskLo = int(math.Floor(config.RangeLow/binHz)) + 1 // first bin strictly above RangeLow
	e.maskHi = int(math.Ceil(config.RangeHigh / binHz))   // bins strictly below RangeHigh
	if e.maskHi > len(e.coeffs) {
		e.maskHi = len(e.coeffs)
	}
	if e.maskLo >= e.maskHi {
		return nil, fmt.Errorf("display range %f..%f Hz selects no bins at fs=%d nfft=%d",
			config.RangeLow, config.RangeHigh, config.SampleRate, config.NFFT)
	}
	e.freqs = make([]float64, e.maskHi-e.maskLo)
	for i := range e.freqs {
		e.freqs[i] = float64(e.maskLo+i) * binHz
	}

	for _, option := range options {
		option(&e)
	}

	return &e, nil
}

// Start launches the processing goroutine. It returns an error if the
// engine is already running.
func (e *Engine) Start(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		return fmt.Errorf("spectrum engine is already running")
	}

	ctx, e.cancel = context.WithCancel(ctx)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.logger.Debug("spectrum processing started")
		for {
			select {
			case <-ctx.Done():
				e.logger.Debug("spectrum processing stopped")
				return
			case block := <-e.input:
				e.ProcessBlock(block)
			}
		}
	}()

	return nil
}

// Stop halts the processing goroutine. Safe to call multiple times and on
// an engine that never started.
func (e *Engine) Stop() {
	if !e.running.CompareAndSwap(true, false) {
		return
	}
	e.cancel()
	e.wg.Wait()
}

// AddSamples queues a block of 16-bit PCM bytes for processing. It never
// blocks: when the queue is full the block is dropped and the overrun is
// logged, trading spectrum smoothness for real-time safety of the caller.
func (e *Engine) AddSamples(block []byte) {
	select {
	case e.input <- block:
	default:
		n := e.dropped.Add(1)
		e.logger.Error("spectrum input overrun, dropping block", slog.Uint64("dropped", n))
	}
}

// Dropped returns the number of blocks discarded due to input overruns.
func (e *Engine) Dropped() uint64 {
	return e.dropped.Load()
}

// ProcessBlock appends a block to the sample buffer and performs FFTs while
// a full window is buffered. Framing is invariant to how the input stream
// is chunked.
func (e *Engine) ProcessBlock(block []byte) {
	e.buf = append(e.buf, block...)

	for len(e.buf) >= e.nfft*sampleWidth {
		e.performFFT()
	}
}

// Flush discards buffered samples, used when a decode session restarts.
// Must not be called concurrently with ProcessBlock.
func (e *Engine) Flush() {
	e.buf = e.buf[:0]
}

func (e *Engine) performFFT() {
	// Normalize the first nfft samples to [-1, 1).
	peak := 0.0
	for i := 0; i < e.nfft; i++ {
		s := float64(int16(binary.LittleEndian.Uint16(e.buf[i*sampleWidth:]))) / (1 << 15)
		e.frame[i] = s
		if a := math.Abs(s); a > peak {
			peak = a
		}
	}

	// Advance by the stride; the remaining nfft-stride samples overlap
	// into the next window.
	e.buf = e.buf[e.stride*sampleWidth:]

	magnitudes := make([]float64, e.maskHi-e.maskLo)
	dbfs := SilenceDBFS
	if peak > 0 {
		floats.Mul(e.frame, e.hann)
		e.fft.Coefficients(e.coeffs, e.frame)

		// The nfft normalization term keeps levels comparable between
		// calls and between FFT lengths.
		norm := 20 * math.Log10(float64(e.nfft))
		for i := range magnitudes {
			magnitudes[i] = 20*math.Log10(cmplxAbs(e.coeffs[e.maskLo+i])) - norm
		}
		dbfs = 20 * math.Log10(peak)
	} else {
		for i := range magnitudes {
			magnitudes[i] = math.NaN()
		}
	}

	if e.emit != nil && e.counter%uint64(e.decimation) == 0 {
		freqs := make([]float64, len(e.freqs))
		copy(freqs, e.freqs)
		e.emit(Update{Magnitudes: magnitudes, Frequencies: freqs, DBFS: dbfs})
	}
	e.counter++
}

// Frequencies returns the masked frequency axis.
func (e *Engine) Frequencies() []float64 {
	freqs := make([]float64, len(e.freqs))
	copy(freqs, e.freqs)
	return freqs
}

func cmplxAbs(c complex128) float64 {
	return math.Hypot(real(c), imag(c))
}
