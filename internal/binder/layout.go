// Package binder declares the bind group layouts shared by every compute
// pipeline and derives the concrete bind sets from the current textures,
// parameters and agent list.
package binder

import (
	"fmt"

	"github.com/gogpu/computeplay/gpucore"
	"github.com/gogpu/computeplay/internal/texture"
	"github.com/gogpu/computeplay/params"
)

// Bind group indices, as declared by the shaders.
const (
	GroupData    = 0
	GroupTexture = 1
	GroupAgents  = 2
)

// DataLayout declares group 0: the three uniform blocks.
func DataLayout() gpucore.BindGroupLayoutDesc {
	return gpucore.BindGroupLayoutDesc{
		Label: "computeplay_data",
		Entries: []gpucore.BindGroupLayoutEntry{
			{Binding: 0, Type: gpucore.BindingTypeUniformBuffer, MinBindingSize: params.SimulationSize},
			{Binding: 1, Type: gpucore.BindingTypeUniformBuffer, MinBindingSize: params.SensorSize},
			{Binding: 2, Type: gpucore.BindingTypeUniformBuffer, MinBindingSize: params.BehaviorSize},
		},
	}
}

// TextureLayout declares group 1: the write target at binding 0 and the
// previous frame at binding 1.
func TextureLayout() gpucore.BindGroupLayoutDesc {
	return gpucore.BindGroupLayoutDesc{
		Label: "computeplay_texture",
		Entries: []gpucore.BindGroupLayoutEntry{
			{Binding: 0, Type: gpucore.BindingTypeStorageTexture, Format: texture.Format},
			{Binding: 1, Type: gpucore.BindingTypeSampledTexture},
		},
	}
}

// AgentsLayout declares group 2: the read-write agent list.
func AgentsLayout() gpucore.BindGroupLayoutDesc {
	return gpucore.BindGroupLayoutDesc{
		Label: "computeplay_agents",
		Entries: []gpucore.BindGroupLayoutEntry{
			{Binding: 0, Type: gpucore.BindingTypeStorageBuffer, MinBindingSize: params.AgentStride},
		},
	}
}

// Layouts holds the created bind group and pipeline layouts.
type Layouts struct {
	adapter gpucore.GPUAdapter

	Data    gpucore.BindGroupLayoutID
	Texture gpucore.BindGroupLayoutID
	Agents  gpucore.BindGroupLayoutID

	// Pipeline is the layout every pipeline is compiled against:
	// data and texture, plus agents when agents are enabled.
	Pipeline gpucore.PipelineLayoutID
}

// NewLayouts creates the layouts on adapter. The agents group is only
// created when withAgents is set.
func NewLayouts(adapter gpucore.GPUAdapter, withAgents bool) (*Layouts, error) {
	l := &Layouts{adapter: adapter}
	var err error

	create := func(desc gpucore.BindGroupLayoutDesc) gpucore.BindGroupLayoutID {
		if err != nil {
			return gpucore.InvalidID
		}
		var id gpucore.BindGroupLayoutID
		id, err = adapter.CreateBindGroupLayout(&desc)
		if err != nil {
			err = fmt.Errorf("binder: create layout %s: %w", desc.Label, err)
		}
		return id
	}

	l.Data = create(DataLayout())
	l.Texture = create(TextureLayout())
	groups := []gpucore.BindGroupLayoutID{l.Data, l.Texture}
	if withAgents {
		l.Agents = create(AgentsLayout())
		groups = append(groups, l.Agents)
	}
	if err != nil {
		l.Close()
		return nil, err
	}

	l.Pipeline, err = adapter.CreatePipelineLayout(groups, "computeplay_pipeline")
	if err != nil {
		l.Close()
		return nil, fmt.Errorf("binder: create pipeline layout: %w", err)
	}
	return l, nil
}

// HasAgents reports whether the agents group exists.
func (l *Layouts) HasAgents() bool { return l.Agents != gpucore.InvalidID }

// Close destroys every layout.
func (l *Layouts) Close() {
	if l.Pipeline != gpucore.InvalidID {
		l.adapter.DestroyPipelineLayout(l.Pipeline)
	}
	for _, id := range []gpucore.BindGroupLayoutID{l.Data, l.Texture, l.Agents} {
		if id != gpucore.InvalidID {
			l.adapter.DestroyBindGroupLayout(id)
		}
	}
	*l = Layouts{adapter: l.adapter}
}

// mustMatch panics when entries do not satisfy the layout declaration.
// A mismatch means the code building the set disagrees with the shaders,
// which no retry can fix.
func mustMatch(layout gpucore.BindGroupLayoutDesc, entries []gpucore.BindGroupEntry) {
	if len(entries) != len(layout.Entries) {
		panic(fmt.Sprintf("binder: %s: %d entries for %d bindings", layout.Label, len(entries), len(layout.Entries)))
	}
	for i, decl := range layout.Entries {
		e := entries[i]
		if e.Binding != decl.Binding {
			panic(fmt.Sprintf("binder: %s: entry %d has binding %d, layout declares %d", layout.Label, i, e.Binding, decl.Binding))
		}
		switch {
		case decl.Type.IsBuffer() && (e.Buffer == gpucore.InvalidID || e.Texture != gpucore.InvalidID):
			panic(fmt.Sprintf("binder: %s: binding %d expects a %s buffer", layout.Label, decl.Binding, decl.Type))
		case decl.Type.IsTexture() && (e.Texture == gpucore.InvalidID || e.Buffer != gpucore.InvalidID):
			panic(fmt.Sprintf("binder: %s: binding %d expects a %s", layout.Label, decl.Binding, decl.Type))
		}
	}
}
