package audio

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
)

// CaptureStream is an open capture session on a sound device. Delivery
// happens on a thread owned by the audio driver.
type CaptureStream interface {
	io.Closer
}

// CaptureDriver opens capture streams on the host's sound hardware. The
// concrete implementation wraps whichever native audio API the build links
// against; it sits outside this package so the pipeline stays testable.
type CaptureDriver interface {
	// OpenCapture starts a mono 16-bit capture stream on the device with
	// the given index, invoking callback once per block of blockSize
	// frames. The callback must return promptly and must not panic.
	OpenCapture(deviceIndex, sampleRate, blockSize int, callback func(block []byte, frames int)) (CaptureStream, error)
}

// WithDeviceLogger sets the logger for a DeviceSource.
func WithDeviceLogger(logger *slog.Logger) func(*DeviceSource) {
	return func(s *DeviceSource) {
		s.logger = logger.With(slog.String("component", "audio"))
	}
}

// DeviceSource produces sample blocks from a sound card capture device.
type DeviceSource struct {
	driver      CaptureDriver
	deviceIndex int
	sampleRate  int
	blockSize   int
	hooks       Hooks

	stream  CaptureStream
	running atomic.Bool
	logger  *slog.Logger
}

// NewDeviceSource creates a source reading from the capture device with the
// given index at the given sample rate, delivering blockSize frames per
// block.
func NewDeviceSource(driver CaptureDriver, deviceIndex, sampleRate, blockSize int, hooks Hooks, options ...func(*DeviceSource)) *DeviceSource {
	s := DeviceSource{
		driver:      driver,
		deviceIndex: deviceIndex,
		sampleRate:  sampleRate,
		blockSize:   blockSize,
		hooks:       hooks,
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&s)
	}

	return &s
}

// SampleRate returns the configured capture sample rate.
func (s *DeviceSource) SampleRate() int {
	return s.sampleRate
}

// Start opens the capture stream. A device open failure is returned
// synchronously; no callback fires before Start returns nil.
func (s *DeviceSource) Start(_ context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return fmt.Errorf("device source is already running")
	}

	stream, err := s.driver.OpenCapture(s.deviceIndex, s.sampleRate, s.blockSize, s.handleBlock)
	if err != nil {
		s.running.Store(false)
		return fmt.Errorf("opening capture device %d: %w", s.deviceIndex, err)
	}

	s.stream = stream
	s.logger.Info("capture started",
		slog.Int("device", s.deviceIndex),
		slog.Int("sampleRate", s.sampleRate),
		slog.Int("blockSize", s.blockSize))
	return nil
}

// handleBlock runs on the driver's callback thread.
func (s *DeviceSource) handleBlock(block []byte, _ int) {
	// The driver refills its callback buffer as soon as this returns, and
	// downstream consumers may retain the block past this callback.
	copied := make([]byte, len(block))
	copy(copied, block)
	s.hooks.dispatch(copied, s.logger)
}

// Stop closes the capture stream. Safe to call repeatedly and on a source
// whose stream failed to open.
func (s *DeviceSource) Stop() {
	if !s.running.CompareAndSwap(true, false) {
		return
	}
	if s.stream == nil {
		return
	}
	if err := s.stream.Close(); err != nil {
		s.logger.Error("closing capture stream", slog.String("error", err.Error()))
	}
	s.stream = nil
}
