package audio

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/habtools/groundstation/internal/demod"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// blockRecorder collects dispatched blocks behind a mutex, since hooks run
// on the source's receive goroutine.
type blockRecorder struct {
	mu       sync.Mutex
	spectrum [][]byte
	demodIn  [][]byte
	stats    []*demod.Stats
}

func (r *blockRecorder) hooks(statsEvery int) Hooks {
	return Hooks{
		Spectrum: func(block []byte) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.spectrum = append(r.spectrum, block)
		},
		Demod: func(block []byte) (*demod.Stats, error) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.demodIn = append(r.demodIn, block)
			if statsEvery > 0 && len(r.demodIn)%statsEvery == 0 {
				return &demod.Stats{SNR: 10}, nil
			}
			return nil, nil
		},
		Stats: func(s *demod.Stats) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.stats = append(r.stats, s)
		},
	}
}

func (r *blockRecorder) counts() (int, int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.spectrum), len(r.demodIn), len(r.stats)
}

func freePort(t *testing.T) int {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("finding free port: %v", err)
	}
	port := conn.LocalAddr().(*net.UDPAddr).Port
	conn.Close()
	return port
}

func TestUDPSource_FanOut(t *testing.T) {
	rec := &blockRecorder{}
	port := freePort(t)

	src := NewUDPSource(port, 48000, rec.hooks(2))
	if err := src.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer src.Stop()

	out, err := net.DialUDP("udp", nil, &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: port})
	if err != nil {
		t.Fatalf("dialing source: %v", err)
	}
	defer out.Close()

	block := []byte{1, 2, 3, 4}
	for i := 0; i < 4; i++ {
		if _, err := out.Write(block); err != nil {
			t.Fatalf("sending datagram: %v", err)
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		nSpec, nDemod, nStats := rec.counts()
		if nSpec == 4 && nDemod == 4 && nStats == 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("fan-out incomplete: spectrum=%d demod=%d stats=%d", nSpec, nDemod, nStats)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestUDPSource_StartFailsOnBusyPort(t *testing.T) {
	port := freePort(t)
	holder, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: port})
	if err != nil {
		t.Fatalf("occupying port: %v", err)
	}
	defer holder.Close()

	src := NewUDPSource(port, 48000, Hooks{})
	if err := src.Start(context.Background()); err == nil {
		src.Stop()
		t.Fatal("Start on a busy port should fail synchronously")
	}

	// Stop on a source that failed to start must be a no-op.
	src.Stop()
}

func TestUDPSource_StopIdempotent(t *testing.T) {
	src := NewUDPSource(freePort(t), 48000, Hooks{})
	if err := src.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	src.Stop()
	src.Stop()

	if err := src.Start(context.Background()); err != nil {
		t.Fatalf("restart failed: %v", err)
	}
	src.Stop()
}

func TestHooks_PanicDoesNotPropagate(t *testing.T) {
	hooks := Hooks{
		Spectrum: func([]byte) { panic("boom") },
	}

	// Dispatch runs on driver-owned threads and must swallow panics.
	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("panic escaped dispatch: %v", r)
		}
	}()
	hooks.dispatch([]byte{0}, discardLogger())
}

func TestHooks_DemodErrorDropsStats(t *testing.T) {
	var statsCalled bool
	hooks := Hooks{
		Demod: func([]byte) (*demod.Stats, error) {
			return &demod.Stats{}, errors.New("modem gone")
		},
		Stats: func(*demod.Stats) { statsCalled = true },
	}

	hooks.dispatch([]byte{0}, discardLogger())
	if statsCalled {
		t.Error("stats callback fired despite demodulator error")
	}
}
