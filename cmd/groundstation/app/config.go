package app

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/habtools/groundstation/internal/audio"
	"github.com/habtools/groundstation/internal/demod"
	"github.com/habtools/groundstation/internal/forward"
	"github.com/habtools/groundstation/internal/rotator"
	"github.com/habtools/groundstation/internal/spectrum"
	"github.com/habtools/groundstation/internal/telemlog"
)

const (
	AudioSourceUDP    = "udp"
	AudioSourceDevice = "device"

	RotatorNone       = ""
	RotatorRotctld    = "rotctld"
	RotatorPSTRotator = "pstrotator"

	defaultSampleRate = 48000
	defaultRangeLow   = 100.0
	defaultRangeHigh  = 4000.0
)

// Config represents the main application configuration
type Config struct {
	Settings SettingsConfig `yaml:"settings"`
	Audio    AudioConfig    `yaml:"audio"`
	Spectrum SpectrumConfig `yaml:"spectrum"`
	Modem    ModemConfig    `yaml:"modem"`
	Station  StationConfig  `yaml:"station"`
	Forward  ForwardConfig  `yaml:"forward"`
	Logging  LoggingConfig  `yaml:"logging"`
	Rotator  RotatorConfig  `yaml:"rotator"`
	Storage  StorageConfig  `yaml:"storage"`
}

// SettingsConfig represents global application settings
type SettingsConfig struct {
	LogLevel string `yaml:"logLevel"`
}

// AudioConfig selects and parameterizes the sample source
type AudioConfig struct {
	Source      string `yaml:"source"` // "udp" or "device"
	DeviceIndex int    `yaml:"deviceIndex"`
	UDPPort     int    `yaml:"udpPort"`
	SampleRate  int    `yaml:"sampleRate"`
	BlockSize   int    `yaml:"blockSize"`
}

// SpectrumConfig holds the FFT engine parameters
type SpectrumConfig struct {
	NFFT             int     `yaml:"nfft"`
	Stride           int     `yaml:"stride"`
	UpdateDecimation int     `yaml:"updateDecimation"`
	RangeLow         float64 `yaml:"rangeLow"`
	RangeHigh        float64 `yaml:"rangeHigh"`
}

// ModemConfig holds the demodulator parameters
type ModemConfig struct {
	Mode          string  `yaml:"mode"`
	BaudRate      int     `yaml:"baudRate"`
	ToneSpacing   int     `yaml:"toneSpacing"`
	EstimatorLow  float64 `yaml:"estimatorLow"`  // Hz, estimator search window
	EstimatorHigh float64 `yaml:"estimatorHigh"` // Hz
	StatsRate     float64 `yaml:"statsRate"`     // modem stats reports per second

	// Lookback spans in seconds for the reported SNR, per mode class.
	RTTYLookback   float64 `yaml:"rttyLookback"`
	BinaryLookback float64 `yaml:"binaryLookback"`

	HideCRCErrors bool `yaml:"hideCrcErrors"`
}

// StationConfig is the receiver location and dial frequency
type StationConfig struct {
	Latitude      float64 `yaml:"latitude"`
	Longitude     float64 `yaml:"longitude"`
	Altitude      float64 `yaml:"altitude"`      // metres
	DialFrequency float64 `yaml:"dialFrequency"` // Hz, 0 when unknown
}

// ForwardConfig toggles the UDP telemetry outputs
type ForwardConfig struct {
	SummaryEnabled bool   `yaml:"summaryEnabled"`
	SummaryPort    int    `yaml:"summaryPort"`
	OziMuxEnabled  bool   `yaml:"ozimuxEnabled"`
	OziMuxPort     int    `yaml:"ozimuxPort"`
	Comment        string `yaml:"comment"`
}

// LoggingConfig configures the on-disk telemetry log
type LoggingConfig struct {
	Directory string `yaml:"directory"`
	Format    string `yaml:"format"` // "csv" or "json"
}

// RotatorConfig configures automatic antenna tracking
type RotatorConfig struct {
	Type         string  `yaml:"type"` // "", "rotctld" or "pstrotator"
	Host         string  `yaml:"host"`
	Port         int     `yaml:"port"`
	RangeInhibit bool    `yaml:"rangeInhibit"`
	InhibitRange float64 `yaml:"inhibitRange"` // metres
}

// StorageConfig represents session archive settings
type StorageConfig struct {
	Enabled       bool   `yaml:"enabled"`
	DataDirectory string `yaml:"dataDirectory"`
}

// LoadConfig reads and validates a configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading configuration: %w", err)
	}

	config := defaultConfig()
	if err = yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	if err = config.validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func defaultConfig() *Config {
	return &Config{
		Settings: SettingsConfig{LogLevel: "info"},
		Audio: AudioConfig{
			Source:     AudioSourceUDP,
			UDPPort:    audio.DefaultUDPPort,
			SampleRate: defaultSampleRate,
		},
		Spectrum: SpectrumConfig{
			NFFT:      spectrum.DefaultNFFT,
			Stride:    spectrum.DefaultStride,
			RangeLow:  defaultRangeLow,
			RangeHigh: defaultRangeHigh,
		},
		Modem: ModemConfig{Mode: demod.ModeBinaryV1.String()},
		Forward: ForwardConfig{
			SummaryEnabled: true,
			SummaryPort:    forward.DefaultSummaryPort,
			OziMuxPort:     forward.DefaultOziMuxPort,
		},
		Logging: LoggingConfig{Format: string(telemlog.FormatCSV)},
		Rotator: RotatorConfig{
			Host: "localhost",
		},
	}
}

func (c *Config) validate() error {
	if _, err := c.SlogLevel(); err != nil {
		return err
	}

	switch c.Audio.Source {
	case AudioSourceUDP, AudioSourceDevice:
	default:
		return fmt.Errorf("unknown audio source %q", c.Audio.Source)
	}
	if c.Audio.SampleRate <= 0 {
		return fmt.Errorf("invalid sample rate %d", c.Audio.SampleRate)
	}

	mode, err := demod.ParseMode(c.Modem.Mode)
	if err != nil {
		return err
	}
	info := mode.Info()
	if c.Modem.BaudRate == 0 {
		c.Modem.BaudRate = info.DefaultBaudRate
	} else if !validBaudRate(info, c.Modem.BaudRate) {
		return fmt.Errorf("mode %s does not support %d baud", mode, c.Modem.BaudRate)
	}
	if c.Modem.ToneSpacing == 0 {
		c.Modem.ToneSpacing = info.DefaultSpacing
	}

	switch telemlog.Format(c.Logging.Format) {
	case telemlog.FormatCSV, telemlog.FormatJSON:
	default:
		return fmt.Errorf("unknown telemetry log format %q", c.Logging.Format)
	}

	switch c.Rotator.Type {
	case RotatorNone, RotatorRotctld, RotatorPSTRotator:
	default:
		return fmt.Errorf("unknown rotator type %q", c.Rotator.Type)
	}
	if c.Rotator.Port == 0 {
		switch c.Rotator.Type {
		case RotatorRotctld:
			c.Rotator.Port = rotator.DefaultRotctldPort
		case RotatorPSTRotator:
			c.Rotator.Port = rotator.DefaultPSTRotatorPort
		}
	}

	return nil
}

func validBaudRate(info demod.ModeInfo, baud int) bool {
	for _, b := range info.BaudRates {
		if b == baud {
			return true
		}
	}
	return false
}

// SlogLevel resolves the configured log level.
func (c *Config) SlogLevel() (slog.Level, error) {
	switch strings.ToLower(c.Settings.LogLevel) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", c.Settings.LogLevel)
	}
}
