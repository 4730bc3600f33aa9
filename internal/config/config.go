// SPDX-License-Identifier: MIT
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"spectrum/pkg/bitint"
)

// Core limits and defaults shared with the CLI layer.
const (
	MinDeviceID     = -1     // -1 represents the system default device
	MinSampleRate   = 8000   // Minimum usable sample rate (Hz)
	MaxSampleRate   = 192000 // Maximum supported sample rate (Hz)
	MaxBufferFrames = 8192   // Maximum frames per buffer (power of 2)

	// FileExtension is the only container the file-open affordance accepts.
	FileExtension = ".wav"
)

// Config represents the main application configuration structure, loaded from YAML.
type Config struct {
	Debug     bool            `yaml:"debug"`     // Enable debug mode (verbose logging).
	LogLevel  string          `yaml:"log_level"` // Logging level (e.g., "debug", "info", "warn", "error").
	LogFile   string          `yaml:"log_file"`  // File the TUI logs to while it owns the terminal.
	Audio     AudioConfig     `yaml:"audio"`     // Audio engine settings.
	Analyser  AnalyserConfig  `yaml:"analyser"`  // Coordinator and visual sink settings.
	Recording RecordingConfig `yaml:"recording"` // Capture-to-file settings.
	Transport TransportConfig `yaml:"transport"` // Snapshot transport settings.
}

// AudioConfig holds settings related to audio input/output and processing.
type AudioConfig struct {
	InputDevice     int           `yaml:"input_device"`      // PortAudio device index for capture (-1 for default).
	OutputDevice    int           `yaml:"output_device"`     // PortAudio device index for playback (-1 for default).
	SampleRate      float64       `yaml:"sample_rate"`       // Capture sample rate in Hz (e.g., 44100, 48000).
	FramesPerBuffer int           `yaml:"frames_per_buffer"` // Frames per device buffer.
	LowLatency      bool          `yaml:"low_latency"`       // Request low latency settings from PortAudio device.
	InputChannels   int           `yaml:"input_channels"`    // Number of capture channels (1 mono, 2 stereo).
	FFTWindow       string        `yaml:"fft_window"`        // Window function for spectrum analysis (e.g., "Hann").
	SpectrumLength  int           `yaml:"spectrum_length"`   // Samples per analysed window (power of 2).
	NotifyInterval  time.Duration `yaml:"notify_interval"`   // Interval between position/level/spectrum events.
	Playback        bool          `yaml:"playback"`          // Play loaded files through the output device.
	GateThreshold   float64       `yaml:"gate_threshold"`    // Capture noise gate threshold in [0, 1]; 0 disables.
}

// AnalyserConfig holds settings for the coordinator and its visual sinks.
type AnalyserConfig struct {
	SpectrumBands          int           `yaml:"spectrum_bands"`           // Number of spectrograph bars.
	SpectrumLowFreq        float64       `yaml:"spectrum_low_freq"`        // Lowest frequency shown (Hz).
	SpectrumHighFreq       float64       `yaml:"spectrum_high_freq"`       // Highest frequency shown (Hz).
	Waveform               bool          `yaml:"waveform"`                 // Include the waveform sink.
	WaveformTileLength     int64         `yaml:"waveform_tile_length"`     // Bytes summarised per waveform tile.
	WaveformWindowDuration time.Duration `yaml:"waveform_window_duration"` // Span of audio shown by the waveform.
	AllowEmptyAnalysis     bool          `yaml:"allow_empty_analysis"`     // Permit analysis of a zero-length source.
	LevelMeterDecay        time.Duration `yaml:"level_meter_decay"`        // Peak-hold decay time of the level meter.
}

// RecordingConfig holds settings related to capture-to-file.
type RecordingConfig struct {
	OutputDir   string        `yaml:"output_dir"`   // Directory for captures started without an explicit path.
	BitDepth    int           `yaml:"bit_depth"`    // Bit depth for recorded audio (16 or 32).
	MaxDuration time.Duration `yaml:"max_duration"` // Capture stops once this much audio is recorded.
}

// TransportConfig holds settings related to publishing coordinator snapshots.
type TransportConfig struct {
	PublishInterval  time.Duration `yaml:"publish_interval"`   // Interval between published snapshots.
	WebSocketEnabled bool          `yaml:"websocket_enabled"`  // Serve snapshots over WebSocket.
	WebSocketAddress string        `yaml:"websocket_address"`  // Listen address, e.g. ":8080".
	UDPEnabled       bool          `yaml:"udp_enabled"`        // Send spectrum packets over UDP.
	UDPTargetAddress string        `yaml:"udp_target_address"` // Target address and port (e.g., "127.0.0.1:9090").
	NATSEnabled      bool          `yaml:"nats_enabled"`       // Publish snapshots to NATS.
	NATSURL          string        `yaml:"nats_url"`           // NATS server URL.
	NATSSubject      string        `yaml:"nats_subject"`       // Subject snapshots are published on.
	LogSnapshots     bool          `yaml:"log_snapshots"`      // Log every published snapshot at debug level.
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Debug:    false,
		LogLevel: "info",
		LogFile:  "spectrum.log",
		Audio: AudioConfig{
			InputDevice:     MinDeviceID,
			OutputDevice:    MinDeviceID,
			SampleRate:      44100,
			FramesPerBuffer: 1024,
			LowLatency:      false,
			InputChannels:   1,
			FFTWindow:       "Hann",
			SpectrumLength:  4096,
			NotifyInterval:  100 * time.Millisecond,
			Playback:        true,
			GateThreshold:   0.001,
		},
		Analyser: AnalyserConfig{
			SpectrumBands:          10,
			SpectrumLowFreq:        0,
			SpectrumHighFreq:       1000,
			Waveform:               true,
			WaveformTileLength:     4096,
			WaveformWindowDuration: 500 * time.Millisecond,
			AllowEmptyAnalysis:     true,
			LevelMeterDecay:        1500 * time.Millisecond,
		},
		Recording: RecordingConfig{
			OutputDir:   "./recordings",
			BitDepth:    16,
			MaxDuration: 5 * time.Minute,
		},
		Transport: TransportConfig{
			PublishInterval:  33 * time.Millisecond, // ~30Hz.
			WebSocketAddress: ":8080",
			UDPTargetAddress: "127.0.0.1:9090",
			NATSURL:          "nats://127.0.0.1:4222",
			NATSSubject:      "spectrum.snapshot",
		},
	}
}

// LoadConfig loads configuration from a YAML file specified by path. If path is empty,
// it searches default locations ("config.yaml"). If no file is found, it uses built-in
// defaults. After loading defaults or from file, it applies environment variable
// overrides and validates the final configuration.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		for _, candidate := range []string{"config.yaml", "spectrum.yaml"} {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// Apply environment variable overrides AFTER loading from file.
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate checks that the configuration is usable by the engine and sinks.
func (c *Config) Validate() error {
	if c.Audio.SampleRate < MinSampleRate || c.Audio.SampleRate > MaxSampleRate {
		return fmt.Errorf("audio.sample_rate %.0f outside [%d, %d]", c.Audio.SampleRate, MinSampleRate, MaxSampleRate)
	}
	if c.Audio.FramesPerBuffer <= 0 || c.Audio.FramesPerBuffer > MaxBufferFrames {
		return fmt.Errorf("audio.frames_per_buffer %d outside (0, %d]", c.Audio.FramesPerBuffer, MaxBufferFrames)
	}
	if c.Audio.InputChannels < 1 || c.Audio.InputChannels > 2 {
		return fmt.Errorf("audio.input_channels must be 1 or 2, got %d", c.Audio.InputChannels)
	}
	if c.Audio.InputDevice < MinDeviceID || c.Audio.OutputDevice < MinDeviceID {
		return fmt.Errorf("device IDs must be >= %d", MinDeviceID)
	}
	if !bitint.IsPowerOfTwo(c.Audio.SpectrumLength) {
		return fmt.Errorf("audio.spectrum_length must be a power of 2, got %d", c.Audio.SpectrumLength)
	}
	if c.Audio.NotifyInterval <= 0 {
		return fmt.Errorf("audio.notify_interval must be positive")
	}
	if c.Audio.GateThreshold < 0 || c.Audio.GateThreshold > 1 {
		return fmt.Errorf("audio.gate_threshold must be within [0, 1], got %f", c.Audio.GateThreshold)
	}

	if c.Analyser.SpectrumBands <= 0 {
		return fmt.Errorf("analyser.spectrum_bands must be positive, got %d", c.Analyser.SpectrumBands)
	}
	if c.Analyser.SpectrumLowFreq < 0 || c.Analyser.SpectrumHighFreq <= c.Analyser.SpectrumLowFreq {
		return fmt.Errorf("analyser spectrum range [%.0f, %.0f) is empty",
			c.Analyser.SpectrumLowFreq, c.Analyser.SpectrumHighFreq)
	}
	if c.Analyser.Waveform {
		if c.Analyser.WaveformTileLength <= 0 {
			return fmt.Errorf("analyser.waveform_tile_length must be positive")
		}
		if c.Analyser.WaveformWindowDuration <= 0 {
			return fmt.Errorf("analyser.waveform_window_duration must be positive")
		}
	}

	if c.Recording.BitDepth != 16 && c.Recording.BitDepth != 32 {
		return fmt.Errorf("recording.bit_depth must be 16 or 32, got %d", c.Recording.BitDepth)
	}
	if c.Recording.MaxDuration <= 0 {
		return fmt.Errorf("recording.max_duration must be positive")
	}

	if c.Transport.WebSocketEnabled || c.Transport.UDPEnabled || c.Transport.NATSEnabled || c.Transport.LogSnapshots {
		if c.Transport.PublishInterval <= 0 {
			return fmt.Errorf("transport.publish_interval must be positive when a transport is enabled")
		}
	}
	if c.Transport.UDPEnabled && !strings.Contains(c.Transport.UDPTargetAddress, ":") {
		return fmt.Errorf("transport.udp_target_address '%s' appears invalid (missing port?)", c.Transport.UDPTargetAddress)
	}
	if c.Transport.NATSEnabled && c.Transport.NATSSubject == "" {
		return fmt.Errorf("transport.nats_subject must be set when NATS is enabled")
	}

	return nil
}

// applyEnvOverrides applies ENV_* variables on top of file/default values.
// Unparseable values are ignored.
func (c *Config) applyEnvOverrides() {
	// ENV_DEBUG
	if val, ok := os.LookupEnv("ENV_DEBUG"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			c.Debug = bVal
		}
	}
	// ENV_LOG_LEVEL
	if val, ok := os.LookupEnv("ENV_LOG_LEVEL"); ok && val != "" {
		c.LogLevel = val
	}
	// ENV_ALLOW_EMPTY_ANALYSIS
	if val, ok := os.LookupEnv("ENV_ALLOW_EMPTY_ANALYSIS"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			c.Analyser.AllowEmptyAnalysis = bVal
		}
	}

	// ENV_UDP_{...}
	if val, ok := os.LookupEnv("ENV_UDP_ENABLED"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			c.Transport.UDPEnabled = bVal
		}
	}
	if val, ok := os.LookupEnv("ENV_UDP_TARGET_ADDRESS"); ok {
		c.Transport.UDPTargetAddress = val
	}

	// ENV_WS_{...}
	if val, ok := os.LookupEnv("ENV_WS_ENABLED"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			c.Transport.WebSocketEnabled = bVal
		}
	}
	if val, ok := os.LookupEnv("ENV_WS_ADDRESS"); ok {
		c.Transport.WebSocketAddress = val
	}

	// ENV_NATS_{...}
	if val, ok := os.LookupEnv("ENV_NATS_ENABLED"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			c.Transport.NATSEnabled = bVal
		}
	}
	if val, ok := os.LookupEnv("ENV_NATS_URL"); ok {
		c.Transport.NATSURL = val
	}

	if val, ok := os.LookupEnv("ENV_PUBLISH_INTERVAL"); ok {
		if dur, err := time.ParseDuration(val); err == nil {
			c.Transport.PublishInterval = dur
		}
	}
}
