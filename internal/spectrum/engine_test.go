package spectrum

import (
	"context"
	"encoding/binary"
	"math"
	"testing"
)

func testConfig() Config {
	return Config{
		NFFT:             64,
		Stride:           32,
		SampleRate:       8000,
		UpdateDecimation: 1,
		RangeLow:         100,
		RangeHigh:        4000,
		QueueDepth:       8,
	}
}

// sinePCM builds n samples of a sine at freq Hz as 16-bit LE PCM bytes.
func sinePCM(n int, freq float64, sampleRate int, amplitude float64) []byte {
	out := make([]byte, n*2)
	for i := 0; i < n; i++ {
		s := amplitude * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate))
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(s*32767)))
	}
	return out
}

func collectUpdates(t *testing.T, config Config, feed func(*Engine)) []Update {
	t.Helper()

	var updates []Update
	e, err := NewEngine(config, func(u Update) {
		updates = append(updates, u)
	})
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	feed(e)
	return updates
}

func TestEngine_NormalizationStable(t *testing.T) {
	pcm := sinePCM(256, 1000, 8000, 0.5)

	run := func() []Update {
		return collectUpdates(t, testConfig(), func(e *Engine) {
			e.ProcessBlock(pcm)
		})
	}

	first := run()
	second := run()

	if len(first) == 0 {
		t.Fatal("no updates emitted")
	}
	if len(first) != len(second) {
		t.Fatalf("update counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		for j := range first[i].Magnitudes {
			if first[i].Magnitudes[j] != second[i].Magnitudes[j] {
				t.Fatalf("update %d bin %d differs: %v vs %v",
					i, j, first[i].Magnitudes[j], second[i].Magnitudes[j])
			}
		}
	}
}

func TestEngine_ChunkSizeInvariant(t *testing.T) {
	pcm := sinePCM(512, 700, 8000, 0.8)

	whole := collectUpdates(t, testConfig(), func(e *Engine) {
		e.ProcessBlock(pcm)
	})
	bytewise := collectUpdates(t, testConfig(), func(e *Engine) {
		for i := range pcm {
			e.ProcessBlock(pcm[i : i+1])
		}
	})

	if len(whole) == 0 {
		t.Fatal("no updates emitted")
	}
	if len(whole) != len(bytewise) {
		t.Fatalf("update counts differ: whole=%d bytewise=%d", len(whole), len(bytewise))
	}
	for i := range whole {
		for j := range whole[i].Magnitudes {
			if whole[i].Magnitudes[j] != bytewise[i].Magnitudes[j] {
				t.Fatalf("update %d bin %d differs between chunkings", i, j)
			}
		}
	}
}

func TestEngine_SilenceSentinel(t *testing.T) {
	updates := collectUpdates(t, testConfig(), func(e *Engine) {
		e.ProcessBlock(make([]byte, 64*2))
	})

	if len(updates) != 1 {
		t.Fatalf("got %d updates, want 1", len(updates))
	}
	if updates[0].DBFS != SilenceDBFS {
		t.Errorf("DBFS = %v, want %v", updates[0].DBFS, SilenceDBFS)
	}
	for i, m := range updates[0].Magnitudes {
		if !math.IsNaN(m) {
			t.Fatalf("bin %d = %v, want NaN for silence", i, m)
		}
	}
}

func TestEngine_ToneAppearsInCorrectBin(t *testing.T) {
	config := testConfig()
	binHz := float64(config.SampleRate) / float64(config.NFFT) // 125 Hz

	// A full-scale tone centred on bin 8 (1 kHz).
	updates := collectUpdates(t, config, func(e *Engine) {
		e.ProcessBlock(sinePCM(config.NFFT, 8*binHz, config.SampleRate, 0.9))
	})
	if len(updates) == 0 {
		t.Fatal("no updates emitted")
	}

	u := updates[0]
	best := 0
	for i := range u.Magnitudes {
		if u.Magnitudes[i] > u.Magnitudes[best] {
			best = i
		}
	}
	if got := u.Frequencies[best]; got != 8*binHz {
		t.Errorf("peak at %v Hz, want %v Hz", got, 8*binHz)
	}
	if u.DBFS > 0 || u.DBFS < -3 {
		t.Errorf("DBFS = %v, want near 20*log10(0.9)", u.DBFS)
	}
}

func TestEngine_UpdateDecimation(t *testing.T) {
	config := testConfig()
	config.UpdateDecimation = 4

	updates := collectUpdates(t, config, func(e *Engine) {
		// 16 strides of 32 samples after the first full window:
		// 64 + 15*32 = 544 samples yields 16 FFTs.
		e.ProcessBlock(sinePCM(544, 500, 8000, 0.5))
	})

	if len(updates) != 4 {
		t.Errorf("got %d updates with decimation 4 over 16 FFTs, want 4", len(updates))
	}
}

func TestEngine_OverflowDropsNotBlocks(t *testing.T) {
	config := testConfig()
	config.QueueDepth = 4

	e, err := NewEngine(config, nil)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	// The engine is not started, so nothing drains the queue. Pushes
	// beyond capacity must return immediately and drop.
	block := make([]byte, 128)
	for i := 0; i < 10; i++ {
		e.AddSamples(block)
	}

	if got := e.Dropped(); got != 6 {
		t.Errorf("Dropped() = %d, want 6", got)
	}
}

func TestEngine_Flush(t *testing.T) {
	config := testConfig()

	var count int
	e, err := NewEngine(config, func(Update) { count++ })
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	// Half a window, flushed, then half a window: no FFT may fire, since
	// the flush discarded the first half.
	e.ProcessBlock(make([]byte, 64))
	e.Flush()
	e.ProcessBlock(make([]byte, 64))

	if count != 0 {
		t.Errorf("emitted %d updates across a flush, want 0", count)
	}
}

func TestEngine_MaskBounds(t *testing.T) {
	e, err := NewEngine(testConfig(), nil)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	freqs := e.Frequencies()
	if len(freqs) == 0 {
		t.Fatal("empty frequency axis")
	}
	if freqs[0] <= 100 {
		t.Errorf("first bin %v Hz, want > 100", freqs[0])
	}
	if freqs[len(freqs)-1] >= 4000 {
		t.Errorf("last bin %v Hz, want < 4000", freqs[len(freqs)-1])
	}
}

func TestEngine_StopIdempotent(t *testing.T) {
	e, err := NewEngine(testConfig(), nil)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	// Stop before start, twice after start.
	e.Stop()
	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	e.Stop()
	e.Stop()
}
