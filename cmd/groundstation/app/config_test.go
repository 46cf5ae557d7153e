package app

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/habtools/groundstation/internal/rotator"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	config, err := LoadConfig(writeConfig(t, `
modem:
  mode: "RTTY (7N2)"
`))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if config.Audio.Source != AudioSourceUDP || config.Audio.SampleRate != 48000 {
		t.Errorf("audio = %+v", config.Audio)
	}
	if config.Modem.BaudRate != 100 {
		t.Errorf("baud = %d, want the mode default 100", config.Modem.BaudRate)
	}
	if config.Modem.ToneSpacing != 425 {
		t.Errorf("spacing = %d, want the RTTY default 425", config.Modem.ToneSpacing)
	}
	if config.Spectrum.RangeLow != 100 || config.Spectrum.RangeHigh != 4000 {
		t.Errorf("spectrum range = %+v", config.Spectrum)
	}
}

func TestLoadConfig_RotatorPortDefaults(t *testing.T) {
	config, err := LoadConfig(writeConfig(t, `
rotator:
  type: rotctld
`))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if config.Rotator.Port != rotator.DefaultRotctldPort {
		t.Errorf("port = %d, want %d", config.Rotator.Port, rotator.DefaultRotctldPort)
	}

	config, err = LoadConfig(writeConfig(t, `
rotator:
  type: pstrotator
  port: 12500
`))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if config.Rotator.Port != 12500 {
		t.Errorf("port = %d, explicit value should win", config.Rotator.Port)
	}
}

func TestLoadConfig_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"unknown mode", "modem:\n  mode: SSTV\n"},
		{"unsupported baud", "modem:\n  mode: Horus Binary v1\n  baudRate: 75\n"},
		{"unknown audio source", "audio:\n  source: pipe\n"},
		{"unknown log format", "logging:\n  format: xml\n"},
		{"unknown rotator", "rotator:\n  type: serial\n"},
		{"unknown log level", "settings:\n  logLevel: chatty\n"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := LoadConfig(writeConfig(t, tc.content)); err == nil {
				t.Error("LoadConfig should have failed")
			}
		})
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("LoadConfig should fail on a missing file")
	}
}
