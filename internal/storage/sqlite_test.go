package storage

import (
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/habtools/groundstation/internal/telemetry"
)

func TestMagnitudeBlobRoundTrip(t *testing.T) {
	in := []float64{-120.5, -80.25, 0, 3.5, math.Inf(-1)}
	out := decodeMagnitudes(encodeMagnitudes(in))

	if len(out) != len(in) {
		t.Fatalf("length = %d, want %d", len(out), len(in))
	}
	for i := range in {
		if float32(in[i]) != float32(out[i]) {
			t.Errorf("bin %d = %v, want %v", i, out[i], in[i])
		}
	}
}

func TestSqliteStore_RoundTrip(t *testing.T) {
	store := NewSqliteStore(filepath.Join(t.TempDir(), "session.sqlite"))
	defer store.Close()

	id, err := store.CreateSession("RTTY (7N2)", 100, 48000, map[string]any{"port": 7355})
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	sess, err := store.Session(id)
	if err != nil {
		t.Fatalf("Session failed: %v", err)
	}
	if sess == nil || sess.Mode != "RTTY (7N2)" || sess.BaudRate != 100 {
		t.Fatalf("session = %+v", sess)
	}
	if sess.Config == nil {
		t.Error("session config was not recorded")
	}

	rec := &telemetry.Record{
		Callsign:  "TESTING",
		Time:      "01:02:03",
		Latitude:  -34.5,
		Longitude: 138.6,
		Altitude:  1000,
		SNR:       9.5,
		BaudRate:  100,
		Received:  time.Now(),
	}
	if err := store.StoreTelemetry(id, rec); err != nil {
		t.Fatalf("StoreTelemetry failed: %v", err)
	}

	snap := &SpectrumSnapshot{
		Timestamp:  time.Now(),
		FreqLow:    100,
		FreqHigh:   4000,
		DBFS:       -20,
		Magnitudes: []float64{-90, -85, -40, -88},
	}
	if err := store.StoreSpectrum(id, snap); err != nil {
		t.Fatalf("StoreSpectrum failed: %v", err)
	}

	var got []*SpectrumSnapshot
	err = store.Spectra(id, func(s *SpectrumSnapshot) error {
		got = append(got, s)
		return nil
	})
	if err != nil {
		t.Fatalf("Spectra failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d snapshots, want 1", len(got))
	}
	if len(got[0].Magnitudes) != 4 || float32(got[0].Magnitudes[2]) != -40 {
		t.Errorf("magnitudes = %v", got[0].Magnitudes)
	}

	// Missing session lookups return nil, not an error.
	missing, err := store.Session(9999)
	if err != nil {
		t.Fatalf("Session(9999) failed: %v", err)
	}
	if missing != nil {
		t.Errorf("missing session = %+v, want nil", missing)
	}
}

func TestSqliteStore_CloseIdempotent(t *testing.T) {
	store := NewSqliteStore(filepath.Join(t.TempDir(), "session.sqlite"))
	if _, err := store.CreateSession("Horus Binary v1", 100, 48000, nil); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
}
