package params

import (
	"sync"
	"time"

	"golang.org/x/image/math/f32"
)

// Snapshot is a consistent copy of every parameter, taken once per frame.
type Snapshot struct {
	Simulation SimulationParams
	Sensor     SensorParams
	Behavior   AgentBehaviorParams

	// AgentsVersion changes whenever the agent list is replaced.
	AgentsVersion uint64
}

// Store owns the live parameters and the agent list.
//
// The frame loop calls UpdateDeltaTime and UpdateSize once per frame and then
// takes a Snapshot. Editors may call the Set methods from any goroutine.
type Store struct {
	mu            sync.Mutex
	sim           SimulationParams
	sensor        SensorParams
	behavior      AgentBehaviorParams
	agents        []Agent
	agentsVersion uint64
}

// NewStore returns a store seeded with the given parameters and no agents.
func NewStore(sim SimulationParams, sensor SensorParams, behavior AgentBehaviorParams) *Store {
	sim.AgentCount = 0
	return &Store{sim: sim, sensor: sensor, behavior: behavior}
}

// UpdateDeltaTime records the frame time, advances the elapsed time and
// increments the frame counter.
func (s *Store) UpdateDeltaTime(dt time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	secs := float32(dt.Seconds())
	s.sim.DeltaTime = secs
	s.sim.Elapsed += secs
	s.sim.Frame++
}

// UpdateSize records the canvas size.
func (s *Store) UpdateSize(w, h int) {
	s.mu.Lock()
	s.sim.Size = f32.Vec2{float32(w), float32(h)}
	s.mu.Unlock()
}

// SetExtents replaces the fractal view rectangle.
func (s *Store) SetExtents(e f32.Vec4) {
	s.mu.Lock()
	s.sim.Extents = e
	s.mu.Unlock()
}

// SetRates replaces the diffusion and evaporation rates.
func (s *Store) SetRates(diffusion, evaporation float32) {
	s.mu.Lock()
	s.sim.Diffusion = diffusion
	s.sim.Evaporation = evaporation
	s.mu.Unlock()
}

// SetSensor replaces the sensor tuning.
func (s *Store) SetSensor(p SensorParams) {
	s.mu.Lock()
	s.sensor = p
	s.mu.Unlock()
}

// SetBehavior replaces the movement tuning.
func (s *Store) SetBehavior(p AgentBehaviorParams) {
	s.mu.Lock()
	s.behavior = p
	s.mu.Unlock()
}

// SetAgents replaces the agent list. The store keeps the slice; callers must
// not modify it afterwards.
func (s *Store) SetAgents(agents []Agent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.agents = agents
	s.sim.AgentCount = uint32(len(agents)) //nolint:gosec // bounded by buffer limits
	s.agentsVersion++
}

// Agents returns the agent list and its version.
func (s *Store) Agents() ([]Agent, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.agents, s.agentsVersion
}

// Snapshot returns a copy of the current parameters.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Simulation:    s.sim,
		Sensor:        s.sensor,
		Behavior:      s.behavior,
		AgentsVersion: s.agentsVersion,
	}
}
