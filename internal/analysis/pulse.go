// SPDX-License-Identifier: MIT
package analysis

// pulseParams describes a trigger-and-decay pulse: on trigger the pulse
// jumps to level, otherwise it decays geometrically and is zeroed below
// floor. A trigger is only honoured while the pulse is below refractory.
type pulseParams struct {
	level      float64
	decay      float64
	refractory float64
	floor      float64
}

var (
	dropPulse  = pulseParams{level: 1.0, decay: 0.85, refractory: 0.2, floor: 0.01}
	voicePulse = pulseParams{level: 0.90, decay: 0.65, refractory: 0.2, floor: 0.01}
)

// step advances the pulse by one frame.
func (p pulseParams) step(current float64, triggered bool) float64 {
	if triggered && current < p.refractory {
		return p.level
	}
	next := current * p.decay
	if next < p.floor {
		return 0
	}
	return next
}
