// Package stage provides built-in pipeline stages: channel downmix, a
// noise gate, a soft limiter and a capture tap.
package stage

import "math"

// dbToLinear converts a dBFS value to a linear amplitude factor.
func dbToLinear(db float64) float64 {
	return math.Pow(10, db/20)
}
