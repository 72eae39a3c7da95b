// SPDX-License-Identifier: MIT
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"hapsync/internal/log"
	"hapsync/pkg/bitint"
)

// Candidate file names searched, in order, when LoadConfig is given no path.
var candidates = []string{
	"hapsync.yaml",
	"config.yaml",
}

// LoadConfig loads configuration from a YAML file specified by path. If path is empty,
// it searches the candidate locations. If no file is found, it uses built-in
// defaults. Environment overrides are applied last, then the result is validated.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		for _, candidate := range candidates {
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

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if err := c.Sync.Validate(); err != nil {
		return err
	}

	a := c.Analysis
	if a.SampleRate < MinSampleRate || a.SampleRate > MaxSampleRate {
		return fmt.Errorf("analysis.sample_rate %d outside [%d, %d]", a.SampleRate, MinSampleRate, MaxSampleRate)
	}
	if !bitint.IsPowerOfTwo(a.FrameSize) || a.FrameSize > MaxFrameSize {
		return fmt.Errorf("analysis.frame_size %d must be a power of 2 <= %d", a.FrameSize, MaxFrameSize)
	}
	if a.HopSize <= 0 || a.HopSize > a.FrameSize {
		return fmt.Errorf("analysis.hop_size %d must be within (0, frame_size]", a.HopSize)
	}

	s := c.Stream
	if s.SegmentDuration <= 0 {
		return errors.New("stream.segment_duration must be positive")
	}
	if s.SegmentDuration < time.Duration(a.FrameSize)*time.Second/time.Duration(a.SampleRate) {
		return errors.New("stream.segment_duration shorter than one analysis frame")
	}
	if s.BufferAhead < 0 || s.FirstSegmentTimeout <= 0 {
		return errors.New("stream.buffer_ahead and stream.first_segment_timeout must be positive")
	}
	if s.EventBuffer < 0 {
		return errors.New("stream.event_buffer must not be negative")
	}

	if c.Pipeline.LatencyMS < 0 {
		return errors.New("pipeline.latency_ms must not be negative")
	}

	h := c.Haptic
	switch h.Driver {
	case DriverUDP:
		if _, _, err := net.SplitHostPort(h.UDPTargetAddress); err != nil {
			return fmt.Errorf("haptic.udp_target_address '%s' appears invalid: %w", h.UDPTargetAddress, err)
		}
	case DriverShaker:
		if h.ShakerFrequency <= 0 || h.ShakerFrequency >= float64(a.SampleRate)/2 {
			return fmt.Errorf("haptic.shaker_frequency %.1f outside (0, nyquist)", h.ShakerFrequency)
		}
	case DriverWebSocket, DriverLog:
	default:
		return fmt.Errorf("haptic.driver '%s' is not one of udp, websocket, shaker, log", h.Driver)
	}
	if h.KeepaliveInterval < 0 || h.AnticipationLatencyMS < 0 {
		return errors.New("haptic.keepalive_interval and haptic.anticipation_latency_ms must not be negative")
	}

	if c.Server.ListenAddress == "" {
		return errors.New("server.listen_address must be set")
	}
	return nil
}

// applyEnvOverrides applies HAPSYNC_* variables on top of file and default
// values. Unparseable values are logged and ignored.
func (cfg *Config) applyEnvOverrides() {
	// HAPSYNC_{...}
	// General overrides.
	envBool("HAPSYNC_DEBUG", &cfg.Debug)
	envString("HAPSYNC_LOG_LEVEL", &cfg.LogLevel)

	// HAPSYNC_SYNC_{...}
	envBool("HAPSYNC_SYNC_ENABLED", &cfg.Sync.Enabled)
	envFloat("HAPSYNC_SYNC_SENSITIVITY", &cfg.Sync.Sensitivity)
	envFloat("HAPSYNC_SYNC_MIN_INTENSITY", &cfg.Sync.MinIntensity)
	envFloat("HAPSYNC_SYNC_MAX_INTENSITY", &cfg.Sync.MaxIntensity)
	envInt("HAPSYNC_SYNC_LATENCY_OFFSET_MS", &cfg.Sync.LatencyOffsetMS)

	// HAPSYNC_STREAM_{...}
	envDuration("HAPSYNC_STREAM_SEGMENT_DURATION", &cfg.Stream.SegmentDuration)
	envDuration("HAPSYNC_STREAM_BUFFER_AHEAD", &cfg.Stream.BufferAhead)
	envString("HAPSYNC_STREAM_FFMPEG_BIN", &cfg.Stream.FFmpegBin)
	envString("HAPSYNC_STREAM_FFPROBE_BIN", &cfg.Stream.FFprobeBin)

	// HAPSYNC_HAPTIC_{...}
	envString("HAPSYNC_HAPTIC_DRIVER", &cfg.Haptic.Driver)
	envString("HAPSYNC_HAPTIC_UDP_TARGET_ADDRESS", &cfg.Haptic.UDPTargetAddress)
	envDuration("HAPSYNC_HAPTIC_KEEPALIVE_INTERVAL", &cfg.Haptic.KeepaliveInterval)

	// HAPSYNC_SERVER_{...}
	envString("HAPSYNC_SERVER_LISTEN_ADDRESS", &cfg.Server.ListenAddress)
	if val, ok := os.LookupEnv("HAPSYNC_SERVER_ALLOWED_ORIGINS"); ok {
		cfg.Server.AllowedOrigins = strings.Split(val, ",")
		log.Infof("configuration: overriding server.allowed_origins from env: %s", val)
	}
}

func envString(key string, dst *string) {
	if val, ok := os.LookupEnv(key); ok {
		*dst = val
		log.Infof("configuration: overriding %s from env: %s", key, val)
	}
}

func envBool(key string, dst *bool) {
	val, ok := os.LookupEnv(key)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		log.Warnf("configuration: ignoring %s=%q: %v", key, val, err)
		return
	}
	*dst = b
	log.Infof("configuration: overriding %s from env: %v", key, b)
}

func envInt(key string, dst *int) {
	val, ok := os.LookupEnv(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		log.Warnf("configuration: ignoring %s=%q: %v", key, val, err)
		return
	}
	*dst = n
	log.Infof("configuration: overriding %s from env: %d", key, n)
}

func envFloat(key string, dst *float64) {
	val, ok := os.LookupEnv(key)
	if !ok {
		return
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		log.Warnf("configuration: ignoring %s=%q: %v", key, val, err)
		return
	}
	*dst = f
	log.Infof("configuration: overriding %s from env: %g", key, f)
}

func envDuration(key string, dst *time.Duration) {
	val, ok := os.LookupEnv(key)
	if !ok {
		return
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		log.Warnf("configuration: ignoring %s=%q: %v", key, val, err)
		return
	}
	*dst = d
	log.Infof("configuration: overriding %s from env: %s", key, d)
}
