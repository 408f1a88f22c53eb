package app

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults mirror the instrument's common setup: a 2-3 GHz sweep at
// 100 kHz rbw in super-heterodyne mode.
const (
	defaultMode                = "SH"
	defaultFStart              = 2_000_000_000
	defaultFStop               = 3_000_000_000
	defaultRBW                 = 100_000
	defaultPeaks               = 1
	defaultMaxCaptureBandwidth = 125_000_000
	defaultSamplesPerPacket    = 1024
	defaultPacketsPerBlock     = 1
	defaultReadTimeout         = 5 * time.Second
)

// Duration wraps time.Duration so YAML values like "5s" parse.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Config represents the main application configuration
type Config struct {
	Settings Settings      `yaml:"settings"`
	Device   DeviceConfig  `yaml:"device"`
	Sweep    SweepConfig   `yaml:"sweep"`
	Storage  StorageConfig `yaml:"storage"`
	Render   RenderConfig  `yaml:"render"`
}

// Settings represents global application settings
type Settings struct {
	LogLevel string `yaml:"logLevel"`
}

// Level parses the configured log level, defaulting to info.
func (s Settings) Level() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// DeviceConfig describes the instrument connection and capture
// geometry.
type DeviceConfig struct {
	Address             string   `yaml:"address"`
	Mode                string   `yaml:"mode"`
	MaxCaptureBandwidth uint64   `yaml:"maxCaptureBandwidth"`
	SamplesPerPacket    int      `yaml:"samplesPerPacket"`
	PacketsPerBlock     int      `yaml:"packetsPerBlock"`
	ReadTimeout         Duration `yaml:"readTimeout"`
}

// SweepConfig describes the requested band and peak count.
type SweepConfig struct {
	FStart uint64 `yaml:"fstart"`
	FStop  uint64 `yaml:"fstop"`
	RBW    uint32 `yaml:"rbw"`
	Peaks  int    `yaml:"peaks"`
}

// StorageConfig enables persisting the peak report.
type StorageConfig struct {
	Enabled       bool   `yaml:"enabled"`
	DataDirectory string `yaml:"dataDirectory"`
}

// RenderConfig enables rendering the sweep spectrum as a PNG chart.
type RenderConfig struct {
	Enabled    bool   `yaml:"enabled"`
	OutputPath string `yaml:"outputPath"`
	FontPath   string `yaml:"fontPath"`
	Width      int    `yaml:"width"`
	Height     int    `yaml:"height"`
}

// LoadConfig reads, parses and validates the YAML configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading configuration: %w", err)
	}

	config := Config{
		Device: DeviceConfig{
			Mode:                defaultMode,
			MaxCaptureBandwidth: defaultMaxCaptureBandwidth,
			SamplesPerPacket:    defaultSamplesPerPacket,
			PacketsPerBlock:     defaultPacketsPerBlock,
			ReadTimeout:         Duration(defaultReadTimeout),
		},
		Sweep: SweepConfig{
			FStart: defaultFStart,
			FStop:  defaultFStop,
			RBW:    defaultRBW,
			Peaks:  defaultPeaks,
		},
	}
	if err = yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	if config.Device.Address == "" {
		return nil, fmt.Errorf("no device address specified in configuration")
	}
	if config.Sweep.Peaks <= 0 {
		return nil, fmt.Errorf("invalid peak count %d", config.Sweep.Peaks)
	}
	if config.Render.Enabled && config.Render.OutputPath == "" {
		return nil, fmt.Errorf("render enabled without an output path")
	}

	return &config, nil
}
