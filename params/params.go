// Package params holds the CPU-side shader parameters and the agent list,
// and packs them into the byte layouts the compute shaders expect.
package params

import (
	"encoding/binary"
	"math"

	"golang.org/x/image/math/f32"
)

// GPU sizes of the packed structs.
const (
	SimulationSize = 48
	SensorSize     = 16
	BehaviorSize   = 16
	AgentStride    = 16
)

// SimulationParams are the simulation-wide values shared by every pass.
type SimulationParams struct {
	// Size is the canvas size in pixels.
	Size f32.Vec2

	// DeltaTime is the time since the previous frame in seconds.
	DeltaTime float32

	// Elapsed is the total simulated time in seconds.
	Elapsed float32

	// Diffusion is the blend factor per second towards the 3x3 mean.
	Diffusion float32

	// Evaporation is the intensity lost per second.
	Evaporation float32

	// Frame counts calls to UpdateDeltaTime.
	Frame uint32

	// AgentCount is the length of the agent list.
	AgentCount uint32

	// Extents is the fractal view rectangle (min x, min y, max x, max y).
	Extents f32.Vec4
}

// SensorParams tune how agents sample the trail map.
type SensorParams struct {
	// Angle is the offset of the left and right sensors in radians.
	Angle float32

	// Distance is how far ahead the sensors sit, in pixels.
	Distance float32

	// Size is the sensor half-width in pixels; 0 samples a single pixel.
	Size int32
}

// AgentBehaviorParams tune agent movement.
type AgentBehaviorParams struct {
	// MoveSpeed is in pixels per second.
	MoveSpeed float32

	// TurnSpeed is in turns per second.
	TurnSpeed float32
}

// Agent is one simulated particle.
type Agent struct {
	Position f32.Vec2
	Angle    float32
}

// DefaultSimulation returns the parameters used when none are configured.
func DefaultSimulation() SimulationParams {
	return SimulationParams{
		Diffusion:   3,
		Evaporation: 0.2,
		Extents:     f32.Vec4{-1, -1, 1, 1},
	}
}

// DefaultSensor returns the default sensor tuning.
func DefaultSensor() SensorParams {
	return SensorParams{Angle: math.Pi / 4, Distance: 9, Size: 1}
}

// DefaultBehavior returns the default movement tuning.
func DefaultBehavior() AgentBehaviorParams {
	return AgentBehaviorParams{MoveSpeed: 30, TurnSpeed: 2}
}

// Bytes packs p in the SimParams uniform layout.
func (p SimulationParams) Bytes() []byte {
	b := make([]byte, SimulationSize)
	putF32(b[0:], p.Size[0])
	putF32(b[4:], p.Size[1])
	putF32(b[8:], p.DeltaTime)
	putF32(b[12:], p.Elapsed)
	putF32(b[16:], p.Diffusion)
	putF32(b[20:], p.Evaporation)
	binary.LittleEndian.PutUint32(b[24:], p.Frame)
	binary.LittleEndian.PutUint32(b[28:], p.AgentCount)
	for i, v := range p.Extents {
		putF32(b[32+4*i:], v)
	}
	return b
}

// Bytes packs p in the SensorParams uniform layout.
func (p SensorParams) Bytes() []byte {
	b := make([]byte, SensorSize)
	putF32(b[0:], p.Angle)
	putF32(b[4:], p.Distance)
	binary.LittleEndian.PutUint32(b[8:], uint32(p.Size)) //nolint:gosec // bit pattern of i32
	return b
}

// Bytes packs p in the AgentParams uniform layout.
func (p AgentBehaviorParams) Bytes() []byte {
	b := make([]byte, BehaviorSize)
	putF32(b[0:], p.MoveSpeed)
	putF32(b[4:], p.TurnSpeed)
	return b
}

// AgentBytes packs agents in the storage buffer layout.
func AgentBytes(agents []Agent) []byte {
	b := make([]byte, len(agents)*AgentStride)
	for i, a := range agents {
		o := i * AgentStride
		putF32(b[o:], a.Position[0])
		putF32(b[o+4:], a.Position[1])
		putF32(b[o+8:], a.Angle)
	}
	return b
}

func putF32(b []byte, v float32) {
	binary.LittleEndian.PutUint32(b, math.Float32bits(v))
}
