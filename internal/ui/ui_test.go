package ui

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/habtools/groundstation/internal/demod"
	"github.com/habtools/groundstation/internal/spectrum"
	"github.com/habtools/groundstation/internal/telemetry"
)

type fakeDisplay struct {
	mu sync.Mutex

	spectra    int
	magnitudes []float64
	scaleLow   float64
	scaleHigh  float64

	levels []float64
	status string

	stats   int
	records []*telemetry.Record
	lines   []string
}

func (f *fakeDisplay) UpdateSpectrum(_, magnitudes []float64, scaleLow, scaleHigh float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.spectra++
	f.magnitudes = magnitudes
	f.scaleLow = scaleLow
	f.scaleHigh = scaleHigh
}

func (f *fakeDisplay) UpdateAudioLevel(dbfs float64, status string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.levels = append(f.levels, dbfs)
	f.status = status
}

func (f *fakeDisplay) UpdateModemStats(*demod.Stats, []time.Time, []float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stats++
}

func (f *fakeDisplay) ShowRecord(rec *telemetry.Record) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, rec)
}

func (f *fakeDisplay) AppendLog(line string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lines = append(f.lines, line)
}

func (f *fakeDisplay) statsCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stats
}

func update(dbfs float64, magnitudes ...float64) *spectrum.Update {
	return &spectrum.Update{Magnitudes: magnitudes, DBFS: dbfs}
}

func TestDrain_CollapsesToNewestSpectrum(t *testing.T) {
	display := &fakeDisplay{}
	d := NewDrain(display, nil)

	d.PushSpectrum(update(-20, -90, -80))
	d.PushSpectrum(update(-20, -85, -75))
	d.PushSpectrum(update(-20, -70, -60))
	d.tick()

	if display.spectra != 1 {
		t.Fatalf("display rendered %d spectra, want only the newest", display.spectra)
	}
	if display.magnitudes[0] != -70 {
		t.Errorf("magnitudes = %v, want the last pushed update", display.magnitudes)
	}
}

func TestDrain_Autoscale(t *testing.T) {
	display := &fakeDisplay{}
	d := NewDrain(display, nil)

	// First update seeds the scale directly.
	d.PushSpectrum(update(-20, -90, -40))
	d.tick()
	if display.scaleLow != -90 || display.scaleHigh != -40 {
		t.Fatalf("initial scale = [%v, %v], want [-90, -40]", display.scaleLow, display.scaleHigh)
	}

	// Later updates move it 10% toward the new bounds.
	d.PushSpectrum(update(-20, -80, -30))
	d.tick()
	if math.Abs(display.scaleLow - -89) > 1e-9 || math.Abs(display.scaleHigh - -39) > 1e-9 {
		t.Errorf("smoothed scale = [%v, %v], want [-89, -39]", display.scaleLow, display.scaleHigh)
	}
}

func TestDrain_SilenceKeepsScale(t *testing.T) {
	display := &fakeDisplay{}
	d := NewDrain(display, nil)

	d.PushSpectrum(update(-20, -90, -40))
	d.tick()

	d.PushSpectrum(update(spectrum.SilenceDBFS, math.NaN(), math.NaN()))
	d.tick()

	if display.spectra != 2 {
		t.Fatalf("display rendered %d spectra, want 2", display.spectra)
	}
	if display.scaleLow != -90 || display.scaleHigh != -40 {
		t.Errorf("silence moved the scale to [%v, %v]", display.scaleLow, display.scaleHigh)
	}
}

func TestDrain_LevelSmoothingAndStatus(t *testing.T) {
	display := &fakeDisplay{}
	d := NewDrain(display, nil)

	d.PushSpectrum(update(-20, -80))
	d.tick()
	if len(display.levels) != 1 || display.levels[0] != -20 {
		t.Fatalf("levels = %v, want seeded [-20]", display.levels)
	}
	if display.status != "GOOD" {
		t.Errorf("status = %q, want GOOD", display.status)
	}

	d.PushSpectrum(update(-10, -80))
	d.tick()
	if got := display.levels[1]; math.Abs(got - -19) > 1e-9 {
		t.Errorf("smoothed level = %v, want -19", got)
	}
}

func TestDrain_NonFiniteLevelSkipped(t *testing.T) {
	display := &fakeDisplay{}
	d := NewDrain(display, nil)

	d.PushSpectrum(update(math.NaN(), -80))
	d.tick()
	d.PushSpectrum(update(math.Inf(-1), -80))
	d.tick()

	if len(display.levels) != 0 {
		t.Errorf("non-finite levels reached the display: %v", display.levels)
	}
	if display.spectra != 2 {
		t.Errorf("spectra still render: got %d, want 2", display.spectra)
	}
}

func TestLevelStatus(t *testing.T) {
	tests := []struct {
		dbfs float64
		want string
	}{
		{-3, "TOO HIGH"},
		{-5, "GOOD"},
		{-20, "GOOD"},
		{-50, "LOW"},
		{-90, "LOW"},
		{-99, "NO AUDIO?"},
	}
	for _, tc := range tests {
		if got := levelStatus(tc.dbfs); got != tc.want {
			t.Errorf("levelStatus(%v) = %q, want %q", tc.dbfs, got, tc.want)
		}
	}
}

func TestDrain_RecordsAndLogsApplyInOrder(t *testing.T) {
	display := &fakeDisplay{}
	d := NewDrain(display, nil)

	d.PushRecord(&telemetry.Record{Callsign: "FIRST"})
	d.PushRecord(&telemetry.Record{Callsign: "SECOND"})
	d.Log("decoded %d frames", 2)
	d.Log("session closed")
	d.tick()

	if len(display.records) != 2 || display.records[0].Callsign != "FIRST" {
		t.Errorf("records = %v", display.records)
	}
	if len(display.lines) != 2 || display.lines[0] != "decoded 2 frames" {
		t.Errorf("lines = %v", display.lines)
	}
}

func TestDrain_StartStop(t *testing.T) {
	display := &fakeDisplay{}
	history := telemetry.NewSNRHistory(10)
	d := NewDrain(display, history)

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := d.Start(context.Background()); err == nil {
		t.Error("second Start should fail")
	}

	d.PushStats(&demod.Stats{SNR: 10})

	deadline := time.Now().Add(2 * time.Second)
	for display.statsCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("queued stats never reached the display")
		}
		time.Sleep(10 * time.Millisecond)
	}

	d.Stop()
	d.Stop()
}
