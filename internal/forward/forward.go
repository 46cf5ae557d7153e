// Package forward sends decoded telemetry to other tools on the local
// network over UDP, in two independent wire formats: a JSON payload summary
// and the line-oriented OziMux tracker format.
package forward

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/habtools/groundstation/internal/telemetry"
)

const (
	// DefaultSummaryPort is the conventional payload summary port.
	DefaultSummaryPort = 55672

	// DefaultOziMuxPort is the conventional OziMux telemetry port.
	DefaultOziMuxPort = 55683

	sendTimeout = time.Second
)

// payloadSummary is the JSON wire format. Unknown sensor values are sent as
// -1, which consumers of this format expect.
type payloadSummary struct {
	Type        string  `json:"type"`
	Callsign    string  `json:"callsign"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	Altitude    int     `json:"altitude"`
	Speed       float64 `json:"speed"`
	Heading     float64 `json:"heading"`
	Time        string  `json:"time"`
	Comment     string  `json:"comment"`
	Temp        float64 `json:"temp"`
	Sats        int     `json:"sats"`
	BattVoltage float64 `json:"batt_voltage"`
	SNR         float64 `json:"snr"`
}

// WithLogger sets the logger for a Sender.
func WithLogger(logger *slog.Logger) func(*Sender) {
	return func(s *Sender) {
		s.logger = logger.With(slog.String("component", "forward"))
	}
}

// WithComment sets the comment string embedded in payload summaries.
func WithComment(comment string) func(*Sender) {
	return func(s *Sender) {
		s.comment = comment
	}
}

// Sender broadcasts telemetry datagrams on the local network. Each send
// opens a short-lived socket; when the broadcast write fails (typically no
// network interface is up) the datagram goes to loopback instead so local
// consumers keep working.
type Sender struct {
	summaryPort int
	oziPort     int
	comment     string
	target      net.IP // primary destination, broadcast unless overridden
	logger      *slog.Logger
}

// NewSender creates a sender using the given ports; zero ports select the
// conventional defaults.
func NewSender(summaryPort, oziPort int, options ...func(*Sender)) *Sender {
	if summaryPort <= 0 {
		summaryPort = DefaultSummaryPort
	}
	if oziPort <= 0 {
		oziPort = DefaultOziMuxPort
	}

	s := Sender{
		summaryPort: summaryPort,
		oziPort:     oziPort,
		comment:     "HAB Ground Station",
		target:      net.IPv4bcast,
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&s)
	}

	return &s
}

// SendSummary broadcasts a JSON payload summary for the record. Records
// without a position are not sent.
func (s *Sender) SendSummary(rec *telemetry.Record) error {
	if !rec.HasPosition() {
		return fmt.Errorf("zero latitude/longitude, not forwarding")
	}

	summary := payloadSummary{
		Type:        "PAYLOAD_SUMMARY",
		Callsign:    rec.Callsign,
		Latitude:    rec.Latitude,
		Longitude:   rec.Longitude,
		Altitude:    rec.Altitude,
		Speed:       orUnknown(rec.Speed),
		Heading:     orUnknown(rec.Heading),
		Time:        rec.Time,
		Comment:     s.comment,
		Temp:        orUnknown(rec.Temperature),
		Sats:        -1,
		BattVoltage: orUnknown(rec.BatteryVoltage),
		SNR:         rec.SNR,
	}
	if rec.Satellites != nil {
		summary.Sats = *rec.Satellites
	}

	payload, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("encoding payload summary: %w", err)
	}

	return s.send(payload, s.summaryPort)
}

// SendOziMux sends the record in the OziMux line format:
// TELEMETRY,HH:MM:SS,lat,lon,alt\n
func (s *Sender) SendOziMux(rec *telemetry.Record) error {
	if !rec.HasPosition() {
		return fmt.Errorf("zero latitude/longitude, not forwarding")
	}

	line := fmt.Sprintf("TELEMETRY,%s,%.5f,%.5f,%d\n", rec.Time, rec.Latitude, rec.Longitude, rec.Altitude)
	return s.send([]byte(line), s.oziPort)
}

func (s *Sender) send(payload []byte, port int) error {
	conn, err := net.ListenUDP("udp4", nil)
	if err != nil {
		return fmt.Errorf("opening udp socket: %w", err)
	}
	defer conn.Close()

	enableBroadcast(conn)
	_ = conn.SetWriteDeadline(time.Now().Add(sendTimeout))

	_, err = conn.WriteToUDP(payload, &net.UDPAddr{IP: s.target, Port: port})
	if err != nil {
		// No usable network interface; local consumers still get the
		// datagram via loopback.
		s.logger.Debug("broadcast failed, sending to loopback", slog.String("error", err.Error()))
		_, err = conn.WriteToUDP(payload, &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: port})
	}
	if err != nil {
		return fmt.Errorf("sending datagram to port %d: %w", port, err)
	}
	return nil
}

func orUnknown(v *float64) float64 {
	if v == nil {
		return -1
	}
	return *v
}
