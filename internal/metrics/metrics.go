// SPDX-License-Identifier: MIT

// Package metrics holds the process prometheus collectors. Collectors are
// always safe to update; they only become visible once Register is called.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	SegmentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "hapsync_segments_total", Help: "Segments processed by outcome"},
		[]string{"outcome"},
	)
	SegmentDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hapsync_segment_stage_seconds",
			Help:    "Time spent per segment stage",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"stage"},
	)
	EventsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "hapsync_events_dropped_total", Help: "Coordinator events dropped on a full channel"},
	)
	BufferedAhead = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "hapsync_buffered_ahead_seconds", Help: "Analyzed audio ahead of the playback position"},
	)
	HapticCommands = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "hapsync_haptic_commands_total", Help: "Commands delivered to the haptic device"},
		[]string{"kind"},
	)
	HapticCoalesced = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "hapsync_haptic_coalesced_total", Help: "Intensity commands replaced before delivery"},
	)
	HapticErrors = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "hapsync_haptic_errors_total", Help: "Device send failures"},
	)
	TicksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "hapsync_ticks_total", Help: "Playback ticks by result"},
		[]string{"result"},
	)
	Sessions = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "hapsync_sessions_total", Help: "Video sessions started"},
	)
)

var once sync.Once

// Register adds all collectors to the default registry. Safe to call repeatedly.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			SegmentsTotal,
			SegmentDuration,
			EventsDropped,
			BufferedAhead,
			HapticCommands,
			HapticCoalesced,
			HapticErrors,
			TicksTotal,
			Sessions,
		)
	})
}
