package binder

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/gogpu/computeplay/gpucore"
	"github.com/gogpu/computeplay/internal/texture"
	"github.com/gogpu/computeplay/params"
)

var (
	// ErrResourceNotReady is returned by Prepare when a resource the bind
	// sets need is missing or rejected by the adapter. The frame should be
	// skipped and retried next frame.
	ErrResourceNotReady = errors.New("binder: resource not ready")

	// ErrAgentsTooLarge is returned when the agent list exceeds the
	// adapter's storage binding limit.
	ErrAgentsTooLarge = errors.New("binder: agent buffer exceeds storage binding limit")
)

// AgentSource provides the agent list and its version.
type AgentSource interface {
	Agents() ([]params.Agent, uint64)
}

// Sets are the bind groups for one frame.
type Sets struct {
	// Data binds the uniform buffers (group 0).
	Data gpucore.BindGroupID

	// TextureA writes texture A and samples B; TextureB is the reverse.
	TextureA gpucore.BindGroupID
	TextureB gpucore.BindGroupID

	// Agents binds the agent list (group 2). An empty list binds a zeroed
	// one-agent buffer with AgentCount 0, since every group of the pipeline
	// layout must be set at dispatch. InvalidID without an agents layout.
	Agents gpucore.BindGroupID

	// Pair is the texture pair the texture sets reference.
	Pair texture.Pair

	// AgentCount is the number of agents in the bound buffer.
	AgentCount int
}

// Report tells which sets Prepare rebuilt.
type Report struct {
	Textures bool
	Agents   bool
}

// Binder owns the parameter buffers and derives bind sets from them.
// It is not safe for concurrent use; the frame loop owns it.
type Binder struct {
	adapter gpucore.GPUAdapter
	layouts *Layouts
	log     *slog.Logger

	simBuf      gpucore.BufferID
	sensorBuf   gpucore.BufferID
	behaviorBuf gpucore.BufferID

	agentsBuf     gpucore.BufferID
	agentsSize    int
	agentsVersion uint64

	textureVersion uint64

	sets Sets
}

// New creates the uniform buffers and the data set.
func New(adapter gpucore.GPUAdapter, layouts *Layouts) (*Binder, error) {
	b := &Binder{adapter: adapter, layouts: layouts}

	sizes := []struct {
		dst   *gpucore.BufferID
		size  int
		label string
	}{
		{&b.simBuf, params.SimulationSize, "computeplay_sim"},
		{&b.sensorBuf, params.SensorSize, "computeplay_sensor"},
		{&b.behaviorBuf, params.BehaviorSize, "computeplay_behavior"},
	}
	for _, s := range sizes {
		id, err := adapter.CreateBuffer(s.size, gpucore.BufferUsageUniform|gpucore.BufferUsageCopyDst, s.label)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("binder: create %s: %w", s.label, err)
		}
		*s.dst = id
	}

	data, err := b.bind(DataLayout(), layouts.Data, []gpucore.BindGroupEntry{
		{Binding: 0, Buffer: b.simBuf},
		{Binding: 1, Buffer: b.sensorBuf},
		{Binding: 2, Buffer: b.behaviorBuf},
	})
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("binder: create data set: %w", err)
	}
	b.sets.Data = data
	return b, nil
}

// Prepare writes this frame's uniforms and rebuilds whichever sets are stale:
// texture sets when textureVersion changed, the agent buffer and set when the
// snapshot's agents version changed. Uniforms are written every call.
//
// Every failure wraps ErrResourceNotReady; the previous sets stay intact.
func (b *Binder) Prepare(pair texture.Pair, textureVersion uint64, snap params.Snapshot, agents AgentSource) (Sets, Report, error) {
	var report Report
	if !pair.Valid() {
		return b.sets, report, fmt.Errorf("%w: texture pair not allocated", ErrResourceNotReady)
	}

	writes := []struct {
		id   gpucore.BufferID
		data []byte
	}{
		{b.simBuf, snap.Simulation.Bytes()},
		{b.sensorBuf, snap.Sensor.Bytes()},
		{b.behaviorBuf, snap.Behavior.Bytes()},
	}
	for _, w := range writes {
		if err := b.adapter.WriteBuffer(w.id, 0, w.data); err != nil {
			return b.sets, report, fmt.Errorf("%w: write uniforms: %w", ErrResourceNotReady, err)
		}
	}

	if b.layouts.HasAgents() && agents != nil && (snap.AgentsVersion != b.agentsVersion || b.sets.Agents == gpucore.InvalidID) {
		if err := b.uploadAgents(agents); err != nil {
			return b.sets, report, err
		}
		report.Agents = true
	}

	if textureVersion != b.textureVersion || b.sets.Pair != pair {
		if err := b.bindTextures(pair); err != nil {
			return b.sets, report, err
		}
		b.textureVersion = textureVersion
		report.Textures = true
	}

	return b.sets, report, nil
}

// SetLogger logs this binder's rebuilds to l. Pass nil to use the package
// logger.
func (b *Binder) SetLogger(l *slog.Logger) { b.log = l }

func (b *Binder) logger() *slog.Logger {
	if b.log != nil {
		return b.log
	}
	return slogger()
}

// Sets returns the most recently prepared sets.
func (b *Binder) Sets() Sets { return b.sets }

func (b *Binder) uploadAgents(src AgentSource) error {
	list, version := src.Agents()
	data := params.AgentBytes(list)

	if len(data) == 0 {
		data = make([]byte, params.AgentStride)
	}
	if limit := b.adapter.Capabilities().MaxStorageBufferBindingSize; limit > 0 && uint64(len(data)) > limit {
		return fmt.Errorf("%w: %d bytes, limit %d", ErrAgentsTooLarge, len(data), limit)
	}

	if len(data) != b.agentsSize {
		buf, err := b.adapter.CreateBuffer(len(data), gpucore.BufferUsageStorage|gpucore.BufferUsageCopyDst, "computeplay_agents")
		if err != nil {
			return fmt.Errorf("%w: create agent buffer: %w", ErrResourceNotReady, err)
		}
		group, err := b.bind(AgentsLayout(), b.layouts.Agents, []gpucore.BindGroupEntry{{Binding: 0, Buffer: buf}})
		if err != nil {
			b.adapter.DestroyBuffer(buf)
			return fmt.Errorf("%w: create agent set: %w", ErrResourceNotReady, err)
		}
		b.dropAgents()
		b.agentsBuf, b.agentsSize, b.sets.Agents = buf, len(data), group
		b.logger().Debug("binder: agent buffer allocated", "bytes", len(data))
	}

	if err := b.adapter.WriteBuffer(b.agentsBuf, 0, data); err != nil {
		return fmt.Errorf("%w: upload agents: %w", ErrResourceNotReady, err)
	}
	b.sets.AgentCount = len(list)
	b.agentsVersion = version
	return nil
}

func (b *Binder) dropAgents() {
	if b.sets.Agents != gpucore.InvalidID {
		b.adapter.DestroyBindGroup(b.sets.Agents)
	}
	if b.agentsBuf != gpucore.InvalidID {
		b.adapter.DestroyBuffer(b.agentsBuf)
	}
	b.agentsBuf, b.agentsSize, b.sets.Agents, b.sets.AgentCount = gpucore.InvalidID, 0, gpucore.InvalidID, 0
}

func (b *Binder) bindTextures(pair texture.Pair) error {
	a, err := b.bind(TextureLayout(), b.layouts.Texture, []gpucore.BindGroupEntry{
		{Binding: 0, Texture: pair.A},
		{Binding: 1, Texture: pair.B},
	})
	if err != nil {
		return fmt.Errorf("%w: create texture set A: %w", ErrResourceNotReady, err)
	}
	bb, err := b.bind(TextureLayout(), b.layouts.Texture, []gpucore.BindGroupEntry{
		{Binding: 0, Texture: pair.B},
		{Binding: 1, Texture: pair.A},
	})
	if err != nil {
		b.adapter.DestroyBindGroup(a)
		return fmt.Errorf("%w: create texture set B: %w", ErrResourceNotReady, err)
	}

	b.dropTextures()
	b.sets.TextureA, b.sets.TextureB, b.sets.Pair = a, bb, pair
	b.logger().Debug("binder: texture sets rebuilt", "width", pair.Width, "height", pair.Height)
	return nil
}

func (b *Binder) dropTextures() {
	for _, id := range []gpucore.BindGroupID{b.sets.TextureA, b.sets.TextureB} {
		if id != gpucore.InvalidID {
			b.adapter.DestroyBindGroup(id)
		}
	}
	b.sets.TextureA, b.sets.TextureB, b.sets.Pair = gpucore.InvalidID, gpucore.InvalidID, texture.Pair{}
}

func (b *Binder) bind(layout gpucore.BindGroupLayoutDesc, id gpucore.BindGroupLayoutID, entries []gpucore.BindGroupEntry) (gpucore.BindGroupID, error) {
	mustMatch(layout, entries)
	return b.adapter.CreateBindGroup(&gpucore.BindGroupDesc{Label: layout.Label, Layout: id, Entries: entries})
}

// Close destroys every set and buffer the binder owns.
func (b *Binder) Close() {
	b.dropTextures()
	b.dropAgents()
	if b.sets.Data != gpucore.InvalidID {
		b.adapter.DestroyBindGroup(b.sets.Data)
		b.sets.Data = gpucore.InvalidID
	}
	for _, id := range []gpucore.BufferID{b.simBuf, b.sensorBuf, b.behaviorBuf} {
		if id != gpucore.InvalidID {
			b.adapter.DestroyBuffer(id)
		}
	}
	b.simBuf, b.sensorBuf, b.behaviorBuf = gpucore.InvalidID, gpucore.InvalidID, gpucore.InvalidID
}
