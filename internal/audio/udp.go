package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// udpReadTimeout bounds how long the receive loop blocks, so the stop
	// flag is observed within one iteration.
	udpReadTimeout = time.Second

	maxDatagram = 65535
)

// WithUDPLogger sets the logger for a UDPSource.
func WithUDPLogger(logger *slog.Logger) func(*UDPSource) {
	return func(s *UDPSource) {
		s.logger = logger.With(slog.String("component", "audio"))
	}
}

// UDPSource produces sample blocks from raw PCM datagrams sent by an SDR
// receiver (GQRX, SDR++ and friends stream s16 mono at 48 kHz).
type UDPSource struct {
	port       int
	sampleRate int
	hooks      Hooks

	conn    *net.UDPConn
	running atomic.Bool
	wg      sync.WaitGroup
	logger  *slog.Logger
}

// NewUDPSource creates a source listening on 127.0.0.1:port. A port of 0
// selects the conventional default.
func NewUDPSource(port, sampleRate int, hooks Hooks, options ...func(*UDPSource)) *UDPSource {
	if port <= 0 {
		port = DefaultUDPPort
	}

	s := UDPSource{
		port:       port,
		sampleRate: sampleRate,
		hooks:      hooks,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&s)
	}

	return &s
}

// SampleRate returns the declared sample rate of the incoming stream.
func (s *UDPSource) SampleRate() int {
	return s.sampleRate
}

// Start binds the socket and launches the receive loop. A bind failure is
// returned synchronously.
func (s *UDPSource) Start(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return fmt.Errorf("udp source is already running")
	}

	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: s.port})
	if err != nil {
		s.running.Store(false)
		return fmt.Errorf("binding udp audio port %d: %w", s.port, err)
	}
	s.conn = conn

	s.wg.Add(1)
	go s.receiveLoop(ctx)

	s.logger.Info("udp audio listener started", slog.Int("port", s.port), slog.Int("sampleRate", s.sampleRate))
	return nil
}

func (s *UDPSource) receiveLoop(ctx context.Context) {
	defer s.wg.Done()
	defer s.conn.Close()

	buf := make([]byte, maxDatagram)
	for s.running.Load() {
		if ctx.Err() != nil {
			return
		}

		if err := s.conn.SetReadDeadline(time.Now().Add(udpReadTimeout)); err != nil {
			s.logger.Error("setting read deadline", slog.String("error", err.Error()))
			return
		}

		n, _, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue // re-check the stop flag
			}
			if s.running.Load() {
				s.logger.Error("udp receive", slog.String("error", err.Error()))
			}
			continue
		}
		if n == 0 {
			continue
		}

		// The receive buffer is reused, and downstream consumers may
		// retain the block past this iteration.
		block := make([]byte, n)
		copy(block, buf[:n])
		s.hooks.dispatch(block, s.logger)
	}

	s.logger.Debug("udp audio listener stopped")
}

// Stop signals the receive loop to exit and waits for it to close the
// socket. Safe to call repeatedly and on a source that never started.
func (s *UDPSource) Stop() {
	if !s.running.CompareAndSwap(true, false) {
		return
	}
	s.wg.Wait()
}
