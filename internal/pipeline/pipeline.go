// Package pipeline connects demodulator output to the telemetry sinks. It
// turns decoded frames into validated records, enriches them with
// receiver-side context (lookback SNR, baud rate, centre frequency), and
// fans each record out to the display, the UDP forwarders, the disk logger,
// the session archive and the rotator.
package pipeline

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/habtools/groundstation/internal/demod"
	"github.com/habtools/groundstation/internal/forward"
	"github.com/habtools/groundstation/internal/rotator"
	"github.com/habtools/groundstation/internal/storage"
	"github.com/habtools/groundstation/internal/telemetry"
	"github.com/habtools/groundstation/internal/telemlog"
)

const (
	// DefaultStatsRate is the rate, in reports per second, at which the
	// modem emits intermediate statistics. It sizes the SNR lookback
	// window together with the per-mode lookback duration.
	DefaultStatsRate = 2.0

	// DefaultRTTYLookback covers the RTTY demodulator's deep internal
	// buffering: a decoded sentence can surface long after its signal.
	DefaultRTTYLookback = 15 * time.Second

	// DefaultBinaryLookback covers the much shallower binary modem.
	DefaultBinaryLookback = 4 * time.Second

	// DefaultInhibitRange is the slant range, in metres, below which
	// rotator commands are suppressed when range inhibit is enabled.
	// Payloads on the ground next to the station would otherwise swing
	// the antenna wildly on every GPS wander.
	DefaultInhibitRange = 250.0

	historySize = 200
)

// BinaryDecoder converts a raw binary packet into a validated telemetry
// record. Decoding (FEC, struct unpacking, checksum) happens inside the
// external payload library; this is the adapter seam.
type BinaryDecoder interface {
	Decode(packet []byte) (*telemetry.Record, error)
}

// Config carries the per-session parameters of the pipeline.
type Config struct {
	Mode     demod.Mode
	BaudRate int

	// StatsRate is the modem statistics rate in reports per second.
	// Zero selects DefaultStatsRate.
	StatsRate float64

	// RTTYLookback and BinaryLookback override the per-mode SNR lookback
	// spans. Zero selects the defaults.
	RTTYLookback   time.Duration
	BinaryLookback time.Duration

	// DialFrequency is the receiver dial frequency in Hz. When set, each
	// record carries an absolute centre frequency derived from the
	// modem's tone estimators.
	DialFrequency float64

	Station telemetry.StationPosition

	// HideCRCErrors suppresses the log line for frames failing CRC,
	// whether the modem flagged the failure or the sentence parser found
	// a checksum mismatch. The frames are discarded either way.
	HideCRCErrors bool

	// RangeInhibit suppresses rotator commands for payloads closer than
	// InhibitRange metres. Zero range selects DefaultInhibitRange.
	RangeInhibit bool
	InhibitRange float64
}

// WithLogger sets the logger for a Pipeline.
func WithLogger(logger *slog.Logger) func(*Pipeline) {
	return func(p *Pipeline) {
		p.logger = logger.With(slog.String("component", "pipeline"))
	}
}

// WithBinaryDecoder sets the decoder used for binary-mode frames.
func WithBinaryDecoder(dec BinaryDecoder) func(*Pipeline) {
	return func(p *Pipeline) {
		p.decoder = dec
	}
}

// WithRecordFunc registers a callback invoked with every validated record,
// before the other sinks. Used by the display layer.
func WithRecordFunc(fn func(*telemetry.Record)) func(*Pipeline) {
	return func(p *Pipeline) {
		p.recordFunc = fn
	}
}

// WithStatsFunc registers a callback invoked with every modem statistics
// report, after the SNR history is updated.
func WithStatsFunc(fn func(*demod.Stats)) func(*Pipeline) {
	return func(p *Pipeline) {
		p.statsFunc = fn
	}
}

// WithForwarder attaches the UDP forwarder; the two wire formats are
// enabled independently.
func WithForwarder(sender *forward.Sender, summary, oziMux bool) func(*Pipeline) {
	return func(p *Pipeline) {
		p.forwarder = sender
		p.forwardSummary = summary
		p.forwardOziMux = oziMux
	}
}

// WithTelemetryLog attaches the disk logger.
func WithTelemetryLog(l *telemlog.Logger) func(*Pipeline) {
	return func(p *Pipeline) {
		p.telemLog = l
	}
}

// WithArchive attaches the session archive; records are stored under the
// given session.
func WithArchive(store storage.Store, sessionID int64) func(*Pipeline) {
	return func(p *Pipeline) {
		p.archive = store
		p.sessionID = sessionID
	}
}

// WithRotator attaches a connected rotator for automatic tracking.
func WithRotator(rot rotator.Rotator) func(*Pipeline) {
	return func(p *Pipeline) {
		p.rotator = rot
	}
}

// Pipeline is the frame-to-sinks processor. HandleFrame and HandleStats are
// called from the demodulator's delivery goroutine; fan-out is synchronous,
// so records reach every sink in decode order.
type Pipeline struct {
	cfg      Config
	modeInfo demod.ModeInfo
	lookback int // SNR lookback window in samples

	history *telemetry.SNRHistory

	decoder    BinaryDecoder
	recordFunc func(*telemetry.Record)
	statsFunc  func(*demod.Stats)

	forwarder      *forward.Sender
	forwardSummary bool
	forwardOziMux  bool

	telemLog  *telemlog.Logger
	archive   storage.Store
	sessionID int64
	rotator   rotator.Rotator

	decoded     atomic.Uint64
	crcErrors   atomic.Uint64
	parseErrors atomic.Uint64

	logger *slog.Logger
}

// New creates a pipeline for one decode session.
func New(cfg Config, options ...func(*Pipeline)) *Pipeline {
	if cfg.StatsRate <= 0 {
		cfg.StatsRate = DefaultStatsRate
	}
	if cfg.RTTYLookback <= 0 {
		cfg.RTTYLookback = DefaultRTTYLookback
	}
	if cfg.BinaryLookback <= 0 {
		cfg.BinaryLookback = DefaultBinaryLookback
	}
	if cfg.InhibitRange <= 0 {
		cfg.InhibitRange = DefaultInhibitRange
	}

	span := cfg.BinaryLookback
	if cfg.Mode.IsRTTY() {
		span = cfg.RTTYLookback
	}

	p := Pipeline{
		cfg:      cfg,
		modeInfo: cfg.Mode.Info(),
		lookback: int(cfg.StatsRate * span.Seconds()),
		history:  telemetry.NewSNRHistory(historySize),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&p)
	}

	return &p
}

// History exposes the rolling SNR window for the display layer.
func (p *Pipeline) History() *telemetry.SNRHistory {
	return p.history
}

// Decoded returns the number of frames that produced a validated record.
func (p *Pipeline) Decoded() uint64 { return p.decoded.Load() }

// CRCErrors returns the number of frames discarded for failing CRC,
// counting both modem-flagged failures and parser checksum mismatches.
func (p *Pipeline) CRCErrors() uint64 { return p.crcErrors.Load() }

// ParseErrors returns the number of frames rejected for reasons other
// than CRC.
func (p *Pipeline) ParseErrors() uint64 { return p.parseErrors.Load() }

// HandleStats records a modem statistics report. SNR samples feed the
// lookback window consulted when a frame later decodes.
func (p *Pipeline) HandleStats(stats *demod.Stats) {
	if stats == nil {
		return
	}

	at := stats.Timestamp
	if at.IsZero() {
		at = time.Now()
	}
	p.history.Add(at, stats.SNR)

	if p.statsFunc != nil {
		p.statsFunc(stats)
	}
}

// HandleFrame processes one decoded frame end to end: validation, parsing,
// enrichment, and fan-out to every attached sink.
func (p *Pipeline) HandleFrame(frame demod.Frame) {
	if len(frame.Data) == 0 {
		return
	}

	raw := p.displayForm(frame)

	if !frame.CRCPass {
		p.crcErrors.Add(1)
		if !p.cfg.HideCRCErrors {
			p.logger.Info("frame failed CRC", slog.String("raw", raw))
		}
		return
	}

	rec, err := p.parse(frame)
	if err != nil {
		// Checksum rejections surfaced by the parser are CRC failures the
		// modem could not catch itself, so the operator toggle covers them
		// too.
		var pe *telemetry.ParseError
		if errors.As(err, &pe) && pe.Kind == telemetry.ErrChecksum {
			p.crcErrors.Add(1)
			if !p.cfg.HideCRCErrors {
				p.logger.Info("frame failed CRC", slog.String("raw", raw), slog.String("error", err.Error()))
			}
			return
		}
		p.parseErrors.Add(1)
		p.logger.Error("rejecting frame", slog.String("raw", raw), slog.String("error", err.Error()))
		return
	}

	p.enrich(rec, frame, raw)
	p.decoded.Add(1)
	p.dispatch(rec)
}

// displayForm renders the frame the way it is logged and archived: the
// ASCII sentence for text modes, upper-case hex for binary packets.
func (p *Pipeline) displayForm(frame demod.Frame) string {
	if frame.Text {
		return strings.TrimRight(string(frame.Data), "\r\n")
	}
	return strings.ToUpper(fmt.Sprintf("%x", frame.Data))
}

func (p *Pipeline) parse(frame demod.Frame) (*telemetry.Record, error) {
	if frame.Text {
		return telemetry.ParseSentence(string(frame.Data))
	}
	if p.decoder == nil {
		return nil, fmt.Errorf("no binary decoder configured for %s", p.cfg.Mode)
	}
	return p.decoder.Decode(frame.Data)
}

func (p *Pipeline) enrich(rec *telemetry.Record, frame demod.Frame, raw string) {
	rec.Received = time.Now()
	rec.Raw = raw
	rec.BaudRate = p.cfg.BaudRate
	rec.ModulationDetail = p.modeInfo.ModulationDetail

	// The SNR at decode time can be a transient dip long after the
	// frame's signal arrived; report the best SNR over the lookback span
	// instead.
	if snr, ok := p.history.Lookback(p.lookback); ok {
		rec.SNR = snr
	} else {
		rec.SNR = frame.SNR
	}

	if p.cfg.DialFrequency > 0 {
		if offset, ok := frame.Extended.EstimatorMean(); ok {
			centre := p.cfg.DialFrequency + offset
			rec.CentreFrequency = &centre
		}
	}
}

// dispatch fans a record out to every sink. Sink failures are isolated:
// one forwarder being down never costs the disk log its record.
func (p *Pipeline) dispatch(rec *telemetry.Record) {
	if p.recordFunc != nil {
		p.recordFunc(rec)
	}

	if p.forwarder != nil {
		if p.forwardSummary {
			if err := p.forwarder.SendSummary(rec); err != nil {
				p.logger.Error("sending payload summary", slog.String("error", err.Error()))
			}
		}
		if p.forwardOziMux {
			if err := p.forwarder.SendOziMux(rec); err != nil {
				p.logger.Error("sending ozimux telemetry", slog.String("error", err.Error()))
			}
		}
	}

	if p.telemLog != nil {
		p.telemLog.Add(rec)
	}

	if p.archive != nil {
		if err := p.archive.StoreTelemetry(p.sessionID, rec); err != nil {
			p.logger.Error("archiving telemetry", slog.String("error", err.Error()))
		}
	}

	p.track(rec)
}

// track points the rotator at the payload when both positions are known.
func (p *Pipeline) track(rec *telemetry.Record) {
	if p.rotator == nil || !p.cfg.Station.Valid() || !rec.HasPosition() {
		return
	}

	angles := telemetry.PositionInfo(p.cfg.Station, rec.Latitude, rec.Longitude, float64(rec.Altitude))

	if p.cfg.RangeInhibit && angles.StraightDistance < p.cfg.InhibitRange {
		p.logger.Info("payload within inhibit range, not moving rotator",
			slog.Float64("range_m", angles.StraightDistance))
		return
	}

	if err := p.rotator.SetAzEl(angles.Bearing, angles.Elevation, false); err != nil {
		p.logger.Error("commanding rotator", slog.String("error", err.Error()))
		return
	}
	p.logger.Debug("rotator commanded",
		slog.Float64("azimuth", angles.Bearing),
		slog.Float64("elevation", angles.Elevation))
}
