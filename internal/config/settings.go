// SPDX-License-Identifier: MIT
package config

import (
	"errors"
	"sync/atomic"
)

// SyncSettings are the user-tunable parameters applied to every analyzed
// frame and every playback tick.
type SyncSettings struct {
	Enabled         bool    `yaml:"enabled"`
	Sensitivity     float64 `yaml:"sensitivity"`       // Gamma exponent; output is v^(1/Sensitivity).
	MinIntensity    float64 `yaml:"min_intensity"`     // Lower clamp for non-silent output.
	MaxIntensity    float64 `yaml:"max_intensity"`     // Upper clamp.
	LatencyOffsetMS int     `yaml:"latency_offset_ms"` // User trim added to the lookahead.
}

// DefaultSyncSettings returns settings that pass intensities through unchanged.
func DefaultSyncSettings() SyncSettings {
	return SyncSettings{
		Enabled:      true,
		Sensitivity:  1.0,
		MinIntensity: 0,
		MaxIntensity: 1,
	}
}

// Validate reports the first invalid field.
func (s SyncSettings) Validate() error {
	switch {
	case s.Sensitivity <= 0:
		return errors.New("sync.sensitivity must be > 0")
	case s.MinIntensity < 0 || s.MinIntensity > 1:
		return errors.New("sync.min_intensity must be within [0, 1]")
	case s.MaxIntensity < 0 || s.MaxIntensity > 1:
		return errors.New("sync.max_intensity must be within [0, 1]")
	case s.MinIntensity > s.MaxIntensity:
		return errors.New("sync.min_intensity must not exceed sync.max_intensity")
	}
	return nil
}

// SettingsStore publishes SyncSettings snapshots to concurrent readers.
// The zero value is not usable; use NewSettingsStore.
type SettingsStore struct {
	v atomic.Pointer[SyncSettings]
}

func NewSettingsStore(s SyncSettings) *SettingsStore {
	st := &SettingsStore{}
	st.v.Store(&s)
	return st
}

// Load returns the current snapshot.
func (st *SettingsStore) Load() SyncSettings {
	return *st.v.Load()
}

// Store validates and publishes s. Invalid settings leave the store unchanged.
func (st *SettingsStore) Store(s SyncSettings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	st.v.Store(&s)
	return nil
}
