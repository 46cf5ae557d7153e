package telemetry

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseErrorKind classifies why a sentence was rejected, so callers can act
// on the category (e.g. optionally suppress checksum failures) without
// matching on error text.
type ParseErrorKind int

const (
	ErrFormat       ParseErrorKind = iota // Sentence structure is wrong
	ErrChecksum                           // CRC16 mismatch
	ErrTime                               // Time field does not parse as HH:MM:SS
	ErrZeroPosition                       // Latitude and longitude are both 0.0
	ErrAltitude                           // Altitude outside [0, 65535]
	ErrField                              // A mandatory field failed to parse
)

func (k ParseErrorKind) String() string {
	switch k {
	case ErrFormat:
		return "invalid sentence format"
	case ErrChecksum:
		return "checksum mismatch"
	case ErrTime:
		return "invalid time"
	case ErrZeroPosition:
		return "zero latitude/longitude"
	case ErrAltitude:
		return "altitude out of range"
	case ErrField:
		return "invalid field"
	default:
		return "parse error"
	}
}

// ParseError is the typed rejection reason for a telemetry sentence.
type ParseError struct {
	Kind   ParseErrorKind
	Detail string
}

func (e *ParseError) Error() string {
	if e.Detail == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func parseErr(kind ParseErrorKind, format string, args ...any) *ParseError {
	return &ParseError{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// CRC16CCITT computes the CRC16-CCITT (false) checksum used on UKHAS
// sentences: polynomial 0x1021, initial value 0xFFFF, no reflection.
func CRC16CCITT(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

// ParseSentence parses a UKHAS-compatible ASCII telemetry sentence into a
// Record. Supported structure:
//
//	$$CALLSIGN,sequence,HH:MM:SS,lat,lon,alt[,extra...]*CRC16
//
// with decimal-degree coordinates and a CRC16-CCITT checksum over the
// portion between the leading $$ and the *. Extra fields beyond altitude
// are kept as custom fields but not interpreted.
//
// On rejection the returned error is a *ParseError carrying the reason.
func ParseSentence(sentence string) (*Record, error) {
	s := strings.TrimSpace(sentence)

	// Take everything after the last "$$" to cope with repeated sync
	// characters at the start of a transmission.
	if idx := strings.LastIndex(s, "$$"); idx >= 0 {
		s = s[idx+2:]
	}
	s = strings.TrimLeft(s, "$")

	payload, crcField, found := strings.Cut(s, "*")
	if !found || payload == "" {
		return nil, parseErr(ErrFormat, "no checksum delimiter")
	}

	want, err := strconv.ParseUint(strings.TrimSpace(crcField), 16, 16)
	if err != nil {
		return nil, parseErr(ErrFormat, "bad checksum field %q", crcField)
	}
	if got := CRC16CCITT([]byte(payload)); got != uint16(want) {
		return nil, parseErr(ErrChecksum, "calculated %04X, sentence has %04X", got, want)
	}

	fields := strings.Split(payload, ",")
	if len(fields) < 6 {
		return nil, parseErr(ErrFormat, "%d fields, need at least 6", len(fields))
	}

	rec := Record{
		Callsign: fields[0],
		Time:     fields[2],
		Raw:      sentence,
	}

	if rec.Sequence, err = strconv.Atoi(fields[1]); err != nil {
		// Some payloads send non-numeric sequence IDs; tolerate them.
		rec.Sequence = -1
	}

	if _, err = time.Parse("15:04:05", rec.Time); err != nil {
		return nil, parseErr(ErrTime, "%q", rec.Time)
	}

	if rec.Latitude, err = strconv.ParseFloat(fields[3], 64); err != nil {
		return nil, parseErr(ErrField, "latitude %q", fields[3])
	}
	if rec.Longitude, err = strconv.ParseFloat(fields[4], 64); err != nil {
		return nil, parseErr(ErrField, "longitude %q", fields[4])
	}
	if rec.Latitude == 0.0 && rec.Longitude == 0.0 {
		return nil, parseErr(ErrZeroPosition, "0.0, 0.0")
	}

	// Altitude is carried on the payload as a uint16, so anything outside
	// that range is corruption that survived the CRC field split.
	alt, err := strconv.ParseFloat(fields[5], 64)
	if err != nil {
		return nil, parseErr(ErrField, "altitude %q", fields[5])
	}
	if alt < 0 || alt > 65535 {
		return nil, parseErr(ErrAltitude, "%.0f", alt)
	}
	rec.Altitude = int(alt)

	for i, extra := range fields[6:] {
		name := fmt.Sprintf("field_%d", i+6)
		rec.CustomFieldNames = append(rec.CustomFieldNames, name)
		if rec.CustomFields == nil {
			rec.CustomFields = make(map[string]string)
		}
		rec.CustomFields[name] = extra
	}

	return &rec, nil
}

// AppendChecksum appends the CRC16 checksum delimiter and value to a
// telemetry payload (without the $$ prefix), forming a transmittable
// sentence body. Used by tests and by payload simulation tooling.
func AppendChecksum(payload string) string {
	return fmt.Sprintf("%s*%04X", payload, CRC16CCITT([]byte(payload)))
}
