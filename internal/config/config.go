// SPDX-License-Identifier: MIT
package config

import "time"

// Core configuration constants that define the boundaries and defaults
// for the sync engine.
const (
	// Analysis defaults
	DefaultSampleRate = 44100  // Hz, mono PCM fed to the analyzer
	DefaultFrameSize  = 2048   // FFT frame in samples (power of 2)
	DefaultHopSize    = 512    // frame advance in samples
	DefaultWindow     = "Hann" // FFT window function

	// Stream defaults
	DefaultSegmentDuration     = 20 * time.Second
	DefaultBufferAhead         = 40 * time.Second
	DefaultFirstSegmentTimeout = 2 * time.Minute
	DefaultEventBuffer         = 32

	// Fixed audio/video pipeline latency budget.
	DefaultPipelineLatencyMS = 1350

	// Haptic defaults
	DefaultHapticDriver      = "udp"
	DefaultKeepaliveInterval = 250 * time.Millisecond
	DefaultShakerFrequency   = 45.0 // Hz
	DefaultShakerGate        = 0.02

	// Hardware and processing limits
	MinSampleRate = 8000   // Minimum usable sample rate (Hz)
	MaxSampleRate = 192000 // Maximum supported sample rate (Hz)
	MaxFrameSize  = 8192   // Maximum analysis frame (power of 2)
)

// Haptic driver names accepted in haptic.driver.
const (
	DriverUDP       = "udp"
	DriverWebSocket = "websocket"
	DriverShaker    = "shaker"
	DriverLog       = "log"
)

// Config represents the main application configuration structure, loaded from YAML.
type Config struct {
	Debug    bool           `yaml:"debug"`     // Enable debug mode.
	LogLevel string         `yaml:"log_level"` // Logging level (e.g., "debug", "info", "warn", "error").
	Sync     SyncSettings   `yaml:"sync"`      // User facing sync settings, hot-reloadable.
	Analysis AnalysisConfig `yaml:"analysis"`  // Spectral analysis parameters.
	Stream   StreamConfig   `yaml:"stream"`    // Segment streaming behaviour.
	Pipeline PipelineConfig `yaml:"pipeline"`  // End-to-end latency budget.
	Haptic   HapticConfig   `yaml:"haptic"`    // Output device selection.
	Server   ServerConfig   `yaml:"server"`    // Player-facing HTTP/websocket API.
}

// AnalysisConfig holds the analyzer framing parameters.
type AnalysisConfig struct {
	SampleRate int    `yaml:"sample_rate"` // Decode sample rate in Hz.
	FrameSize  int    `yaml:"frame_size"`  // FFT frame size in samples.
	HopSize    int    `yaml:"hop_size"`    // Hop between frames in samples.
	Window     string `yaml:"window"`      // Window function name (e.g., "Hann", "Hamming").
}

// StreamConfig controls segment production.
type StreamConfig struct {
	SegmentDuration     time.Duration `yaml:"segment_duration"`
	BufferAhead         time.Duration `yaml:"buffer_ahead"`
	FirstSegmentTimeout time.Duration `yaml:"first_segment_timeout"`
	FFmpegBin           string        `yaml:"ffmpeg_bin"`
	FFprobeBin          string        `yaml:"ffprobe_bin"`
	EventBuffer         int           `yaml:"event_buffer"` // Capacity of the coordinator event channel.
}

// PipelineConfig describes the fixed latency between decode and the viewer.
type PipelineConfig struct {
	LatencyMS int `yaml:"latency_ms"`
}

// HapticConfig selects and tunes the output device.
type HapticConfig struct {
	Driver                string        `yaml:"driver"`                  // udp, websocket, shaker or log.
	UDPTargetAddress      string        `yaml:"udp_target_address"`      // host:port of the actuator bridge.
	KeepaliveInterval     time.Duration `yaml:"keepalive_interval"`      // Resend interval for the last UDP command (0 disables).
	AnticipationLatencyMS int           `yaml:"anticipation_latency_ms"` // Device reaction time compensated for by lookahead.
	ShakerDevice          int           `yaml:"shaker_device"`           // PortAudio output device index (-1 for default).
	ShakerFrequency       float64       `yaml:"shaker_frequency"`        // Carrier frequency for the shaker in Hz.
	ShakerGate            float64       `yaml:"shaker_gate"`             // Intensities below this are rendered as silence.
}

// ServerConfig configures the player bridge.
type ServerConfig struct {
	ListenAddress  string   `yaml:"listen_address"`
	MetricsEnabled bool     `yaml:"metrics_enabled"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// Default returns a Config populated with built-in defaults.
func Default() Config {
	return Config{
		LogLevel: "info",
		Sync:     DefaultSyncSettings(),
		Analysis: AnalysisConfig{
			SampleRate: DefaultSampleRate,
			FrameSize:  DefaultFrameSize,
			HopSize:    DefaultHopSize,
			Window:     DefaultWindow,
		},
		Stream: StreamConfig{
			SegmentDuration:     DefaultSegmentDuration,
			BufferAhead:         DefaultBufferAhead,
			FirstSegmentTimeout: DefaultFirstSegmentTimeout,
			FFmpegBin:           "ffmpeg",
			FFprobeBin:          "ffprobe",
			EventBuffer:         DefaultEventBuffer,
		},
		Pipeline: PipelineConfig{LatencyMS: DefaultPipelineLatencyMS},
		Haptic: HapticConfig{
			Driver:                DefaultHapticDriver,
			UDPTargetAddress:      "127.0.0.1:9090",
			KeepaliveInterval:     DefaultKeepaliveInterval,
			AnticipationLatencyMS: 50,
			ShakerDevice:          -1,
			ShakerFrequency:       DefaultShakerFrequency,
			ShakerGate:            DefaultShakerGate,
		},
		Server: ServerConfig{
			ListenAddress:  "127.0.0.1:8787",
			MetricsEnabled: true,
			AllowedOrigins: []string{"*"},
		},
	}
}
