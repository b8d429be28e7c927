package params

import (
	"math"
	"math/rand/v2"

	"golang.org/x/image/math/f32"
)

// NewAgentGrid places one agent on every integer lattice point of a w×h
// grid, row by row, with a heading drawn uniformly from [0, 2π).
// A nil rng uses the global source.
func NewAgentGrid(w, h int, rng *rand.Rand) []Agent {
	if w <= 0 || h <= 0 {
		return nil
	}
	angle := rand.Float64
	if rng != nil {
		angle = rng.Float64
	}
	agents := make([]Agent, 0, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			agents = append(agents, Agent{
				Position: f32.Vec2{float32(x), float32(y)},
				Angle:    heading(angle()),
			})
		}
	}
	return agents
}

// heading maps u in [0, 1) to [0, 2π) in float32; rounding can land on 2π,
// which wraps to 0.
func heading(u float64) float32 {
	a := float32(u * 2 * math.Pi)
	if a >= float32(2*math.Pi) {
		return 0
	}
	return a
}
