// Package graph implements the per-frame compute node: a small state machine
// that waits for pipelines to compile and then records the agent and image
// passes against the ping-pong texture sets.
package graph

import (
	"errors"
	"fmt"

	"github.com/gogpu/computeplay/gpucore"
	"github.com/gogpu/computeplay/internal/binder"
	"github.com/gogpu/computeplay/internal/pipeline"
	"github.com/gogpu/computeplay/internal/texture"
)

// Default workgroup sizes. They must match the @workgroup_size attributes
// of the shaders.
const (
	DefaultAgentWorkgroupSize = 64
	DefaultImageWorkgroupSize = 8
)

// ErrDispatchTooLarge is returned when a pass needs more workgroups in one
// dimension than the adapter allows.
var ErrDispatchTooLarge = errors.New("graph: dispatch exceeds workgroups per dimension")

// State is the node's pipeline readiness.
type State int

// Node states. The node only ever moves forward.
const (
	StateLoading State = iota
	StateInit
	StateUpdate
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "Loading"
	case StateInit:
		return "Init"
	case StateUpdate:
		return "Update"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Pass identifies a recorded compute pass.
type Pass int

// Passes in recording order.
const (
	PassInit Pass = iota
	PassAgents
	PassImage
)

func (p Pass) String() string {
	switch p {
	case PassInit:
		return "init"
	case PassAgents:
		return "agents"
	case PassImage:
		return "image"
	default:
		return fmt.Sprintf("Pass(%d)", int(p))
	}
}

// Dispatch describes one recorded dispatch.
type Dispatch struct {
	Pass     Pass
	Groups   [3]uint32
	BindSets []gpucore.BindGroupID
}

// Pipelines reports compile status. *pipeline.Cache implements it.
type Pipelines interface {
	State(id pipeline.ID) pipeline.State
	Pipeline(id pipeline.ID) (gpucore.ComputePipelineID, bool)
}

// Config selects the entry points a node runs. A zero pipeline ID means the
// entry point is not used by this variant.
type Config struct {
	Init   pipeline.ID
	Update pipeline.ID
	Image  pipeline.ID

	// InitOverAgents dispatches init once per agent instead of per pixel.
	InitOverAgents bool

	// AgentWorkgroupSize is the invocation count of one agent workgroup.
	// If 0, defaults to DefaultAgentWorkgroupSize.
	AgentWorkgroupSize uint32

	// ImageWorkgroupSize is the edge length of one square image workgroup.
	// If 0, defaults to DefaultImageWorkgroupSize.
	ImageWorkgroupSize uint32

	// SyncPasses submits after the agent pass so the image pass starts in a
	// separate submission.
	SyncPasses bool
}

// Node is the frame node.
type Node struct {
	cfg      Config
	state    State
	initDone bool
}

// NewNode returns a node in StateLoading.
func NewNode(cfg Config) *Node {
	if cfg.AgentWorkgroupSize == 0 {
		cfg.AgentWorkgroupSize = DefaultAgentWorkgroupSize
	}
	if cfg.ImageWorkgroupSize == 0 {
		cfg.ImageWorkgroupSize = DefaultImageWorkgroupSize
	}
	return &Node{cfg: cfg}
}

// State returns the current state.
func (n *Node) State() State { return n.state }

// Update advances the state machine by polling pipeline status.
// Loading moves to Init once the init pipeline is ready; Init moves to
// Update once the init pass has been submitted and the update pipeline is
// ready. Entry points the variant does not use count as ready, and a node
// without an init pipeline passes through Init in the same call.
func (n *Node) Update(p Pipelines) State {
	for {
		switch n.state {
		case StateLoading:
			if !ready(p, n.cfg.Init) {
				return n.state
			}
			n.state = StateInit
			if n.cfg.Init != 0 {
				return n.state
			}
		case StateInit:
			if (n.cfg.Init == 0 || n.initDone) && ready(p, n.cfg.Update) {
				n.state = StateUpdate
			}
			return n.state
		default:
			return n.state
		}
	}
}

func ready(p Pipelines, id pipeline.ID) bool {
	return id == 0 || p.State(id) == pipeline.StateOk
}

// TextureSets returns the texture sets for the agent pass and the image pass
// of a frame. Even frames write A in the agent pass and B in the image pass;
// odd frames swap the roles.
func TextureSets(frame uint64, sets binder.Sets) (agent, image gpucore.BindGroupID) {
	if frame%2 == 0 {
		return sets.TextureA, sets.TextureB
	}
	return sets.TextureB, sets.TextureA
}

// Output returns the texture the image pass writes in a frame.
func Output(frame uint64, pair texture.Pair) gpucore.TextureID {
	if frame%2 == 0 {
		return pair.B
	}
	return pair.A
}

// WorkgroupCount returns the number of groups of size needed to cover n
// invocations.
func WorkgroupCount(n, size uint32) uint32 {
	if n == 0 {
		return 0
	}
	return (n + size - 1) / size
}

// step is a pass chosen for recording.
type step struct {
	pass     Pass
	pipeline gpucore.ComputePipelineID
	groups   [3]uint32
	tex      gpucore.BindGroupID
}

// Run records this frame's passes and submits them.
//
//  1. Agent pass: init in StateInit, update in StateUpdate, nothing while
//     Loading. Agent dispatches are rounded up; shaders mask the excess.
//  2. Image pass: whenever the image pipeline is ready, regardless of state.
//
// Every pass is checked against the workgroup limit before any is recorded,
// so an oversized frame leaves nothing pending on the adapter. Run returns
// the dispatches that were submitted; on error it returns nil.
func (n *Node) Run(adapter gpucore.GPUAdapter, p Pipelines, frame uint64, sets binder.Sets) ([]Dispatch, error) {
	steps := n.plan(p, frame, sets)
	if len(steps) == 0 {
		return nil, nil
	}

	limit := adapter.Capabilities().MaxComputeWorkgroupsPerDimension
	for _, st := range steps {
		g := st.groups
		if limit > 0 && (g[0] > limit || g[1] > limit || g[2] > limit) {
			return nil, fmt.Errorf("%w: %s pass needs %v, limit %d", ErrDispatchTooLarge, st.pass, g, limit)
		}
	}

	recorded := make([]Dispatch, 0, len(steps))
	initPending := false
	for i, st := range steps {
		recorded = append(recorded, n.record(adapter, st, sets))
		initPending = initPending || st.pass == PassInit
		if i < len(steps)-1 && !n.cfg.SyncPasses {
			continue
		}
		if err := adapter.Submit(); err != nil {
			return nil, fmt.Errorf("graph: submit %s pass: %w", st.pass, err)
		}
		if initPending {
			n.initDone = true
		}
	}
	return recorded, nil
}

// plan picks this frame's passes in recording order.
func (n *Node) plan(p Pipelines, frame uint64, sets binder.Sets) []step {
	agentTex, imageTex := TextureSets(frame, sets)
	var steps []step

	if pass, id, groups, ok := n.agentPass(sets); ok {
		if pl, ready := p.Pipeline(id); ready {
			steps = append(steps, step{pass: pass, pipeline: pl, groups: groups, tex: agentTex})
		}
	}
	if n.cfg.Image != 0 {
		if pl, ready := p.Pipeline(n.cfg.Image); ready {
			steps = append(steps, step{pass: PassImage, pipeline: pl, groups: n.imageGroups(sets.Pair), tex: imageTex})
		}
	}
	return steps
}

// agentPass decides what the agent pass runs this frame.
func (n *Node) agentPass(sets binder.Sets) (Pass, pipeline.ID, [3]uint32, bool) {
	agents := uint32(sets.AgentCount) //nolint:gosec // bounded by buffer limits
	hasAgents := sets.Agents != gpucore.InvalidID && agents > 0

	switch n.state {
	case StateInit:
		if n.cfg.Init == 0 {
			break
		}
		if n.cfg.InitOverAgents {
			if !hasAgents {
				// Nothing to seed.
				n.initDone = true
				break
			}
			return PassInit, n.cfg.Init, [3]uint32{WorkgroupCount(agents, n.cfg.AgentWorkgroupSize), 1, 1}, true
		}
		return PassInit, n.cfg.Init, n.imageGroups(sets.Pair), true
	case StateUpdate:
		if n.cfg.Update == 0 || !hasAgents {
			break
		}
		return PassAgents, n.cfg.Update, [3]uint32{WorkgroupCount(agents, n.cfg.AgentWorkgroupSize), 1, 1}, true
	}
	return 0, 0, [3]uint32{}, false
}

func (n *Node) imageGroups(pair texture.Pair) [3]uint32 {
	w := uint32(pair.Width)  //nolint:gosec // texture sizes are positive
	h := uint32(pair.Height) //nolint:gosec // texture sizes are positive
	return [3]uint32{WorkgroupCount(w, n.cfg.ImageWorkgroupSize), WorkgroupCount(h, n.cfg.ImageWorkgroupSize), 1}
}

func (n *Node) record(adapter gpucore.GPUAdapter, st step, sets binder.Sets) Dispatch {
	bindSets := []gpucore.BindGroupID{sets.Data, st.tex}
	if sets.Agents != gpucore.InvalidID {
		bindSets = append(bindSets, sets.Agents)
	}

	enc := adapter.BeginComputePass("computeplay_" + st.pass.String())
	enc.SetPipeline(st.pipeline)
	for i, g := range bindSets {
		enc.SetBindGroup(uint32(i), g) //nolint:gosec // at most three groups
	}
	enc.Dispatch(st.groups[0], st.groups[1], st.groups[2])
	enc.End()

	return Dispatch{Pass: st.pass, Groups: st.groups, BindSets: bindSets}
}
