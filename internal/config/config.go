// Package config loads and validates the voicerec configuration from a YAML
// file, environment variables (VOICEREC_*) and built-in defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Audio     AudioConfig     `mapstructure:"audio" yaml:"audio"`
	Recording RecordingConfig `mapstructure:"recording" yaml:"recording"`
	Output    OutputConfig    `mapstructure:"output" yaml:"output"`
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
}

type AudioConfig struct {
	SampleRate int    `mapstructure:"sample_rate" yaml:"sample_rate"`
	Channels   int    `mapstructure:"channels" yaml:"channels"`
	Backend    string `mapstructure:"backend" yaml:"backend"` // "malgo", "portaudio", "auto"
	Device     string `mapstructure:"device" yaml:"device"`   // empty = system default
}

type RecordingConfig struct {
	// TimeLimitSeconds caps the recording duration; 0 means unlimited.
	TimeLimitSeconds int `mapstructure:"time_limit_seconds" yaml:"time_limit_seconds"`
	// TimeSliceMs enables chunked delivery of captured audio; 0 disables it.
	TimeSliceMs int `mapstructure:"time_slice_ms" yaml:"time_slice_ms"`
	// ByteMonitor enables periodic frequency-data polling during capture.
	ByteMonitor       bool `mapstructure:"byte_monitor" yaml:"byte_monitor"`
	MonitorIntervalMs int  `mapstructure:"monitor_interval_ms" yaml:"monitor_interval_ms"`
}

type OutputConfig struct {
	Directory string `mapstructure:"directory" yaml:"directory"`
	Format    string `mapstructure:"format" yaml:"format"`
}

type ServerConfig struct {
	Port string `mapstructure:"port" yaml:"port"`
}

var defaultConfig = Config{
	Audio: AudioConfig{
		SampleRate: 44100,
		Channels:   1,
		Backend:    "auto",
	},
	Recording: RecordingConfig{
		TimeLimitSeconds:  0,
		TimeSliceMs:       0,
		ByteMonitor:       false,
		MonitorIntervalMs: 100,
	},
	Output: OutputConfig{
		Directory: filepath.Join(os.Getenv("HOME"), "Audio", "VoiceRec"),
		Format:    "wav",
	},
	Server: ServerConfig{
		Port: "8080",
	},
}

// Load reads the configuration from configFile. An empty path yields the
// defaults merged with environment overrides; a named file that cannot be
// read is an error.
func Load(configFile string) (*Config, error) {
	v := viper.New()

	v.SetDefault("audio.sample_rate", defaultConfig.Audio.SampleRate)
	v.SetDefault("audio.channels", defaultConfig.Audio.Channels)
	v.SetDefault("audio.backend", defaultConfig.Audio.Backend)
	v.SetDefault("audio.device", defaultConfig.Audio.Device)
	v.SetDefault("recording.time_limit_seconds", defaultConfig.Recording.TimeLimitSeconds)
	v.SetDefault("recording.time_slice_ms", defaultConfig.Recording.TimeSliceMs)
	v.SetDefault("recording.byte_monitor", defaultConfig.Recording.ByteMonitor)
	v.SetDefault("recording.monitor_interval_ms", defaultConfig.Recording.MonitorIntervalMs)
	v.SetDefault("output.directory", defaultConfig.Output.Directory)
	v.SetDefault("output.format", defaultConfig.Output.Format)
	v.SetDefault("server.port", defaultConfig.Server.Port)

	v.SetEnvPrefix("VOICEREC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	cfg.Output.Directory = expandPath(cfg.Output.Directory)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for values the recorder cannot work with.
func (c *Config) Validate() error {
	if c.Audio.SampleRate < 8000 || c.Audio.SampleRate > 192000 {
		return fmt.Errorf("audio.sample_rate must be between 8000 and 192000, got %d", c.Audio.SampleRate)
	}
	if c.Audio.Channels != 1 && c.Audio.Channels != 2 {
		return fmt.Errorf("audio.channels must be 1 or 2, got %d", c.Audio.Channels)
	}
	switch strings.ToLower(c.Audio.Backend) {
	case "auto", "malgo", "portaudio":
	default:
		return fmt.Errorf("audio.backend must be 'auto', 'malgo' or 'portaudio', got: %s", c.Audio.Backend)
	}
	if c.Recording.TimeLimitSeconds < 0 {
		return fmt.Errorf("recording.time_limit_seconds must be >= 0, got %d", c.Recording.TimeLimitSeconds)
	}
	if c.Recording.TimeSliceMs < 0 {
		return fmt.Errorf("recording.time_slice_ms must be >= 0, got %d", c.Recording.TimeSliceMs)
	}
	if c.Recording.MonitorIntervalMs <= 0 {
		return fmt.Errorf("recording.monitor_interval_ms must be > 0, got %d", c.Recording.MonitorIntervalMs)
	}
	if c.Output.Format != "wav" {
		return fmt.Errorf("output.format must be 'wav', got: %s", c.Output.Format)
	}
	if c.Output.Directory == "" {
		return fmt.Errorf("output.directory is required")
	}
	return nil
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, path[2:])
	}
	return path
}
