// Package telemetry defines the validated telemetry record extracted from
// demodulated frames, the UKHAS sentence parser that produces it, the SNR
// history window, and the station-relative position math.
package telemetry

import "time"

// Record is one validated set of payload telemetry fields. A Record is only
// ever handed to sinks after parsing and validation succeeded in full;
// optional fields are nil when the payload did not carry them.
type Record struct {
	Callsign  string
	Time      string // Payload-reported time, HH:MM:SS
	Latitude  float64
	Longitude float64
	Altitude  int

	Sequence int // Sentence sequence number

	BatteryVoltage *float64
	Satellites     *int
	Temperature    *float64
	Speed          *float64 // m/s, ground speed
	Heading        *float64

	// Custom payload fields, in transmission order.
	CustomFieldNames []string
	CustomFields     map[string]string

	// Receiver-side enrichment, attached by the pipeline.
	SNR              float64
	BaudRate         int
	ModulationDetail string   // "7N2" etc, empty for modes without one
	CentreFrequency  *float64 // Absolute centre frequency in Hz, when dial frequency is known

	Received time.Time // Local receipt time
	Raw      string    // Raw sentence / hex packet as displayed
}

// HasPosition reports whether the record carries a usable position.
// A 0.0/0.0 coordinate pair is treated as "no GPS lock", never as a real
// position on the Gulf of Guinea.
func (r *Record) HasPosition() bool {
	return r.Latitude != 0.0 || r.Longitude != 0.0
}

// StationPosition is the operator-configured receiver location.
// A zero latitude and longitude means "not configured".
type StationPosition struct {
	Latitude  float64
	Longitude float64
	Altitude  float64 // metres
}

// Valid reports whether a station position has been configured.
func (p StationPosition) Valid() bool {
	return p.Latitude != 0.0 || p.Longitude != 0.0
}
