// SPDX-License-Identifier: MIT
package stream

import (
	"hapsync/internal/analysis"
	"hapsync/internal/config"
)

// SegmentAnalyzer converts one segment of mono PCM into per-frame channels.
// Calls come from the single producer goroutine, in segment order.
type SegmentAnalyzer interface {
	// AnalyzeSegment analyzes samples starting at start seconds. reset
	// discards running state first (new session or discontinuous seek).
	AnalyzeSegment(start float64, samples []float32, reset bool) analysis.Output
	// FrameDuration is the time step between output values in seconds.
	FrameDuration() float64
}

// SessionAnalyzer threads an analysis.State through consecutive segments
// and reads the current sync settings for every segment.
type SessionAnalyzer struct {
	analyzer *analysis.Analyzer
	settings *config.SettingsStore
	state    analysis.State
}

func NewSessionAnalyzer(a *analysis.Analyzer, settings *config.SettingsStore) *SessionAnalyzer {
	return &SessionAnalyzer{analyzer: a, settings: settings}
}

func (s *SessionAnalyzer) AnalyzeSegment(_ float64, samples []float32, reset bool) analysis.Output {
	if reset {
		s.state.Reset()
	}
	out, next := s.analyzer.Analyze(samples, 1, s.state, s.settings.Load())
	s.state = next
	return out
}

func (s *SessionAnalyzer) FrameDuration() float64 {
	return s.analyzer.FrameDuration()
}

// State returns a copy of the running state.
func (s *SessionAnalyzer) State() analysis.State {
	return s.state
}
