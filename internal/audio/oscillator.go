// SPDX-License-Identifier: MIT
package audio

import "math"

// glideTime is the time constant used to move between intensity levels so
// step changes do not click.
const glideTime = 0.005

// oscillator renders a sine carrier whose amplitude follows a target level.
type oscillator struct {
	phase float64
	step  float64
	level float64
	glide float64
}

func newOscillator(frequency, sampleRate float64) oscillator {
	return oscillator{
		step:  2 * math.Pi * frequency / sampleRate,
		glide: 1 - math.Exp(-1/(glideTime*sampleRate)),
	}
}

// render fills out with the carrier, gliding the amplitude toward target.
// It does not allocate.
func (o *oscillator) render(out []float32, target float64) {
	target = max(0, min(1, target))
	for i := range out {
		o.level += (target - o.level) * o.glide
		out[i] = float32(o.level * math.Sin(o.phase))
		o.phase += o.step
		if o.phase >= 2*math.Pi {
			o.phase -= 2 * math.Pi
		}
	}
}
