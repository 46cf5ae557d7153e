// Package audio abstracts the acquisition of 16-bit mono PCM sample blocks,
// either from a sound card capture device or from a UDP audio stream, and
// fans each block out to the spectrum and demodulator consumers.
package audio

import (
	"context"
	"log/slog"

	"github.com/habtools/groundstation/internal/demod"
)

// DefaultUDPPort is the conventional port SDR receivers stream demodulated
// audio to.
const DefaultUDPPort = 7355

// Source is a running sample producer. Start must fail synchronously when
// the underlying device or socket cannot be opened, so the caller can abort
// the decode session before any worker starts. Stop is idempotent and safe
// on a source that failed to start.
type Source interface {
	Start(ctx context.Context) error
	Stop()
}

// Hooks are the downstream consumers of every captured block. Each block is
// delivered to both Spectrum and Demod; when Demod returns statistics they
// are forwarded to Stats. Blocks must be treated as read-only by consumers.
type Hooks struct {
	Spectrum func(block []byte)
	Demod    func(block []byte) (*demod.Stats, error)
	Stats    func(*demod.Stats)
}

// dispatch fans one block out to the hooks. It is called on the capture
// goroutine (or the driver's callback thread) and must never panic or block
// across that boundary: internal errors are logged and the block dropped.
func (h Hooks) dispatch(block []byte, logger *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic while handling sample block, block dropped", slog.Any("panic", r))
		}
	}()

	if h.Spectrum != nil {
		h.Spectrum(block)
	}
	if h.Demod != nil {
		stats, err := h.Demod(block)
		if err != nil {
			logger.Error("demodulator rejected block", slog.String("error", err.Error()))
			return
		}
		if stats != nil && h.Stats != nil {
			h.Stats(stats)
		}
	}
}
