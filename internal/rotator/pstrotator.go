package rotator

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// DefaultPSTRotatorPort is PSTRotator's standard command port; position
	// echoes arrive on port+1.
	DefaultPSTRotatorPort = 12000

	pstPollInterval = time.Second
	pstReadTimeout  = time.Second
)

// WithPSTRotatorLogger sets the logger for a PSTRotator client.
func WithPSTRotatorLogger(logger *slog.Logger) func(*PSTRotator) {
	return func(r *PSTRotator) {
		r.logger = logger.With(slog.String("component", "rotator"))
	}
}

// PSTRotator is a client for the PSTRotator UDP protocol: fire-and-forget
// XML move commands, with a separate listener receiving AZ/EL position
// echoes and a poll loop soliciting them.
type PSTRotator struct {
	host string
	port int

	mu        sync.Mutex
	currentAz float64
	currentEl float64
	known     bool

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	logger  *slog.Logger
}

// NewPSTRotator creates a client for PSTRotator at host:port. A port of 0
// selects the standard port.
func NewPSTRotator(host string, port int, options ...func(*PSTRotator)) *PSTRotator {
	if port <= 0 {
		port = DefaultPSTRotatorPort
	}

	r := PSTRotator{
		host:   host,
		port:   port,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&r)
	}

	return &r
}

// Connect starts the position listener and the poll loop. The command path
// itself is connectionless, so no handshake happens here; a bad host only
// surfaces as missing position echoes.
func (r *PSTRotator) Connect() error {
	if !r.running.CompareAndSwap(false, true) {
		return fmt.Errorf("already started")
	}

	listener, err := net.ListenUDP("udp", &net.UDPAddr{Port: r.port + 1})
	if err != nil {
		r.running.Store(false)
		return fmt.Errorf("binding position echo port %d: %w", r.port+1, err)
	}

	var ctx context.Context
	ctx, r.cancel = context.WithCancel(context.Background())

	r.wg.Add(2)
	go r.echoLoop(ctx, listener)
	go r.pollLoop(ctx)

	return nil
}

// SetAzEl sends a move command. PSTRotator never acknowledges, so
// checkResponse is ignored.
func (r *PSTRotator) SetAzEl(azimuth, elevation float64, _ bool) error {
	az, el := clampAzEl(azimuth, elevation)
	cmd := fmt.Sprintf("<PST><TRACK>0</TRACK><AZIMUTH>%.1f</AZIMUTH><ELEVATION>%.1f</ELEVATION></PST>", az, el)
	return r.sendCommand(cmd)
}

// Position returns the last position echoed by PSTRotator.
func (r *PSTRotator) Position() (float64, float64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.currentAz, r.currentEl, r.known
}

// Close stops the listener and poll loops. Idempotent.
func (r *PSTRotator) Close() error {
	if !r.running.CompareAndSwap(true, false) {
		return nil
	}
	r.cancel()
	r.wg.Wait()
	return nil
}

func (r *PSTRotator) sendCommand(cmd string) error {
	conn, err := net.Dial("udp", net.JoinHostPort(r.host, strconv.Itoa(r.port)))
	if err != nil {
		return fmt.Errorf("dialing pstrotator: %w", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte(cmd)); err != nil {
		return fmt.Errorf("sending pstrotator command: %w", err)
	}
	return nil
}

// pollLoop periodically solicits position echoes.
func (r *PSTRotator) pollLoop(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(pstPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, probe := range []string{"<PST>AZ?</PST>", "<PST>EL?</PST>"} {
				if err := r.sendCommand(probe); err != nil {
					r.logger.Debug("position poll failed", slog.String("error", err.Error()))
					break
				}
			}
		}
	}
}

// echoLoop receives AZ/EL position reports.
func (r *PSTRotator) echoLoop(ctx context.Context, conn *net.UDPConn) {
	defer r.wg.Done()
	defer conn.Close()

	buf := make([]byte, 512)
	for {
		if ctx.Err() != nil {
			return
		}

		_ = conn.SetReadDeadline(time.Now().Add(pstReadTimeout))
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			continue // timeout or transient error, re-check ctx
		}

		data := strings.TrimSpace(string(buf[:n]))
		r.handleEcho(data)
	}
}

func (r *PSTRotator) handleEcho(data string) {
	if len(data) < 3 {
		return
	}

	value, err := strconv.ParseFloat(strings.TrimSpace(data[3:]), 64)
	if err != nil {
		r.logger.Debug("unparseable position echo", slog.String("data", data))
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	switch data[:2] {
	case "AZ":
		r.currentAz = value
		r.known = true
	case "EL":
		r.currentEl = value
		r.known = true
	}
}
