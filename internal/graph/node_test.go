package graph

import (
	"errors"
	"testing"

	"github.com/gogpu/computeplay/gpucore"
	"github.com/gogpu/computeplay/gpucore/gpucoretest"
	"github.com/gogpu/computeplay/internal/binder"
	"github.com/gogpu/computeplay/internal/pipeline"
	"github.com/gogpu/computeplay/internal/texture"
)

// =============================================================================
// Test Helpers
// =============================================================================

const (
	initID   pipeline.ID = 1
	updateID pipeline.ID = 2
	imageID  pipeline.ID = 3
)

// fakePipelines reports a fixed state per id. Ok pipelines map to
// ComputePipelineID 100+id.
type fakePipelines map[pipeline.ID]pipeline.State

func (f fakePipelines) State(id pipeline.ID) pipeline.State {
	s, ok := f[id]
	if !ok {
		return pipeline.StateErr
	}
	return s
}

func (f fakePipelines) Pipeline(id pipeline.ID) (gpucore.ComputePipelineID, bool) {
	if f[id] != pipeline.StateOk {
		return gpucore.InvalidID, false
	}
	return gpucore.ComputePipelineID(100 + id), true
}

func allOk() fakePipelines {
	return fakePipelines{initID: pipeline.StateOk, updateID: pipeline.StateOk, imageID: pipeline.StateOk}
}

func testSets(w, h, agents int) binder.Sets {
	s := binder.Sets{
		Data:     10,
		TextureA: 11,
		TextureB: 12,
		Pair:     texture.Pair{A: 1, B: 2, Width: w, Height: h},
	}
	if agents > 0 {
		s.Agents = 13
		s.AgentCount = agents
	}
	return s
}

func physarumConfig() Config {
	return Config{Init: initID, Update: updateID, Image: imageID, InitOverAgents: true}
}

// toUpdate drives n through Init into Update, submitting the init pass on a
// scratch adapter.
func toUpdate(t *testing.T, n *Node, p Pipelines, sets binder.Sets) {
	t.Helper()
	a := gpucoretest.New()
	for range 3 {
		if n.Update(p) == StateUpdate {
			return
		}
		if _, err := n.Run(a, p, 0, sets); err != nil {
			t.Fatalf("Run failed: %v", err)
		}
	}
	t.Fatalf("expected Update, got %v", n.State())
}

// =============================================================================
// State Machine Tests
// =============================================================================

func TestNodeStartsLoading(t *testing.T) {
	n := NewNode(physarumConfig())
	if n.State() != StateLoading {
		t.Errorf("expected Loading, got %v", n.State())
	}
}

func TestNodeWaitsForInit(t *testing.T) {
	n := NewNode(physarumConfig())
	p := fakePipelines{initID: pipeline.StateCreating, updateID: pipeline.StateOk, imageID: pipeline.StateOk}

	for range 3 {
		if s := n.Update(p); s != StateLoading {
			t.Fatalf("expected Loading while init compiles, got %v", s)
		}
	}

	p[initID] = pipeline.StateOk
	if s := n.Update(p); s != StateInit {
		t.Fatalf("expected Init, got %v", s)
	}
	if _, err := n.Run(gpucoretest.New(), p, 0, testSets(200, 200, 10)); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if s := n.Update(p); s != StateUpdate {
		t.Fatalf("expected Update, got %v", s)
	}
}

func TestNodeStaysInInitUntilUpdateReady(t *testing.T) {
	n := NewNode(physarumConfig())
	p := fakePipelines{initID: pipeline.StateOk, updateID: pipeline.StateQueued}

	n.Update(p)
	if _, err := n.Run(gpucoretest.New(), p, 0, testSets(200, 200, 10)); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	for range 3 {
		if s := n.Update(p); s != StateInit {
			t.Fatalf("expected Init while update compiles, got %v", s)
		}
	}
	p[updateID] = pipeline.StateOk
	if s := n.Update(p); s != StateUpdate {
		t.Errorf("expected Update, got %v", s)
	}
}

func TestNodeFailedPipelineNeverAdvances(t *testing.T) {
	n := NewNode(physarumConfig())
	p := fakePipelines{initID: pipeline.StateErr}
	for range 5 {
		if s := n.Update(p); s != StateLoading {
			t.Fatalf("expected Loading with failed init, got %v", s)
		}
	}
}

func TestNodeIsMonotonic(t *testing.T) {
	a := gpucoretest.New()
	n := NewNode(physarumConfig())
	p := allOk()
	sets := testSets(200, 200, 10)
	prev := n.State()
	for i := range uint64(10) {
		if i == 5 {
			// A pipeline reported as failed later must not move the node back.
			p[initID] = pipeline.StateErr
			p[updateID] = pipeline.StateErr
		}
		s := n.Update(p)
		if s < prev {
			t.Fatalf("state went backwards: %v -> %v", prev, s)
		}
		prev = s
		if _, err := n.Run(a, p, i, sets); err != nil {
			t.Fatalf("Run failed: %v", err)
		}
	}
	if prev != StateUpdate {
		t.Errorf("expected Update, got %v", prev)
	}
}

func TestNodeWithoutInitOrUpdate(t *testing.T) {
	n := NewNode(Config{Image: imageID})
	if s := n.Update(fakePipelines{}); s != StateUpdate {
		t.Errorf("expected image-only node to reach Update at once, got %v", s)
	}
}

func TestNodeInitSurvivesSkippedFrame(t *testing.T) {
	a := gpucoretest.New()
	n := NewNode(Config{Init: initID, Image: imageID})
	p := allOk()

	if s := n.Update(p); s != StateInit {
		t.Fatalf("expected Init, got %v", s)
	}
	// The frame that reached Init never ran its passes.
	for range 3 {
		if s := n.Update(p); s != StateInit {
			t.Fatalf("expected Init until the init pass runs, got %v", s)
		}
	}

	got, err := n.Run(a, p, 0, testSets(200, 200, 0))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if got[0].Pass != PassInit {
		t.Fatalf("expected init pass, got %v", got[0].Pass)
	}
	if s := n.Update(p); s != StateUpdate {
		t.Errorf("expected Update after the init pass, got %v", s)
	}
}

func TestNodeInitRetriedAfterSubmitFailure(t *testing.T) {
	a := gpucoretest.New()
	n := NewNode(Config{Init: initID, Image: imageID})
	p := allOk()
	sets := testSets(200, 200, 0)
	n.Update(p)

	a.Fail(gpucoretest.OpSubmit, errors.New("lost"))
	if _, err := n.Run(a, p, 0, sets); err == nil {
		t.Fatal("expected submit error")
	}
	if s := n.Update(p); s != StateInit {
		t.Fatalf("expected Init after a failed init submit, got %v", s)
	}

	a.Fail(gpucoretest.OpSubmit, nil)
	got, err := n.Run(a, p, 0, sets)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if got[0].Pass != PassInit {
		t.Errorf("expected init pass on retry, got %v", got[0].Pass)
	}
	if s := n.Update(p); s != StateUpdate {
		t.Errorf("expected Update, got %v", s)
	}
}

func TestNodeInitOverNoAgents(t *testing.T) {
	a := gpucoretest.New()
	n := NewNode(physarumConfig())
	p := allOk()
	n.Update(p)

	got, err := n.Run(a, p, 0, testSets(200, 200, 0))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(got) != 1 || got[0].Pass != PassImage {
		t.Fatalf("expected only the image pass without agents, got %+v", got)
	}
	if s := n.Update(p); s != StateUpdate {
		t.Errorf("expected Update with nothing to seed, got %v", s)
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		s    State
		want string
	}{
		{StateLoading, "Loading"},
		{StateInit, "Init"},
		{StateUpdate, "Update"},
		{State(7), "State(7)"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("expected %q, got %q", tt.want, got)
		}
	}
}

// =============================================================================
// Dispatch Geometry Tests
// =============================================================================

func TestWorkgroupCount(t *testing.T) {
	tests := []struct {
		n, size, want uint32
	}{
		{0, 64, 0},
		{1, 64, 1},
		{64, 64, 1},
		{65, 64, 2},
		{1_000_000, 64, 15625},
		{1000, 8, 125},
		{1001, 8, 126},
	}
	for _, tt := range tests {
		if got := WorkgroupCount(tt.n, tt.size); got != tt.want {
			t.Errorf("WorkgroupCount(%d, %d): expected %d, got %d", tt.n, tt.size, tt.want, got)
		}
	}
}

func TestTextureSetsAlternate(t *testing.T) {
	sets := testSets(100, 100, 0)
	for frame := uint64(0); frame < 4; frame++ {
		agent, image := TextureSets(frame, sets)
		if agent == image {
			t.Fatalf("frame %d: both passes use set %d", frame, agent)
		}
		wantAgent := sets.TextureA
		if frame%2 == 1 {
			wantAgent = sets.TextureB
		}
		if agent != wantAgent {
			t.Errorf("frame %d: expected agent set %d, got %d", frame, wantAgent, agent)
		}
	}
}

func TestOutputIsImagePassTarget(t *testing.T) {
	pair := texture.Pair{A: 1, B: 2, Width: 200, Height: 200}
	if got := Output(0, pair); got != pair.B {
		t.Errorf("even frame: expected B, got %d", got)
	}
	if got := Output(1, pair); got != pair.A {
		t.Errorf("odd frame: expected A, got %d", got)
	}
}

// =============================================================================
// Run Tests
// =============================================================================

func TestRunLoadingOnlyImage(t *testing.T) {
	a := gpucoretest.New()
	n := NewNode(physarumConfig())
	p := fakePipelines{initID: pipeline.StateQueued, imageID: pipeline.StateOk}
	n.Update(p)

	got, err := n.Run(a, p, 0, testSets(1000, 1000, 500))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(got) != 1 || got[0].Pass != PassImage {
		t.Fatalf("expected only the image pass while Loading, got %+v", got)
	}
	if got[0].Groups != [3]uint32{125, 125, 1} {
		t.Errorf("expected 125x125x1 groups, got %v", got[0].Groups)
	}
}

func TestRunNothingReady(t *testing.T) {
	a := gpucoretest.New()
	n := NewNode(physarumConfig())
	p := fakePipelines{}

	got, err := n.Run(a, p, 0, testSets(200, 200, 10))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if got != nil {
		t.Errorf("expected no dispatches, got %+v", got)
	}
	if len(a.Submissions()) != 0 {
		t.Errorf("expected no submission, got %d", len(a.Submissions()))
	}
}

func TestRunInitOverAgents(t *testing.T) {
	a := gpucoretest.New()
	n := NewNode(physarumConfig())
	p := allOk()
	if s := n.Update(p); s != StateInit {
		t.Fatalf("expected Init, got %v", s)
	}

	got, err := n.Run(a, p, 0, testSets(200, 200, 130))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected init and image passes, got %d", len(got))
	}
	if got[0].Pass != PassInit || got[0].Groups != [3]uint32{3, 1, 1} {
		t.Errorf("expected init over 3 groups, got %v %v", got[0].Pass, got[0].Groups)
	}
}

func TestRunInitOverImage(t *testing.T) {
	a := gpucoretest.New()
	n := NewNode(Config{Init: initID, Image: imageID})
	p := allOk()
	n.Update(p)

	got, err := n.Run(a, p, 0, testSets(100, 60, 0))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if got[0].Pass != PassInit || got[0].Groups != [3]uint32{13, 8, 1} {
		t.Errorf("expected full-frame init of 13x8 groups, got %v %v", got[0].Pass, got[0].Groups)
	}
	if len(got[0].BindSets) != 2 {
		t.Errorf("expected 2 bind sets without agents, got %d", len(got[0].BindSets))
	}
}

func TestRunUpdatePingPong(t *testing.T) {
	a := gpucoretest.New()
	n := NewNode(physarumConfig())
	p := allOk()
	sets := testSets(1000, 1000, 1000)
	toUpdate(t, n, p, sets)

	for frame := uint64(0); frame < 4; frame++ {
		if _, err := n.Run(a, p, frame, sets); err != nil {
			t.Fatalf("frame %d: Run failed: %v", frame, err)
		}
		batch := a.LastSubmission()
		if len(batch) != 2 {
			t.Fatalf("frame %d: expected 2 passes in one submission, got %d", frame, len(batch))
		}
		agentPass, imagePass := batch[0], batch[1]

		wantAgent, wantImage := sets.TextureA, sets.TextureB
		if frame%2 == 1 {
			wantAgent, wantImage = sets.TextureB, sets.TextureA
		}
		if agentPass.BindGroups[binder.GroupTexture] != wantAgent {
			t.Errorf("frame %d: expected agent pass set %d, got %d", frame, wantAgent, agentPass.BindGroups[binder.GroupTexture])
		}
		if imagePass.BindGroups[binder.GroupTexture] != wantImage {
			t.Errorf("frame %d: expected image pass set %d, got %d", frame, wantImage, imagePass.BindGroups[binder.GroupTexture])
		}
		if agentPass.Pipeline != 100+gpucore.ComputePipelineID(updateID) {
			t.Errorf("frame %d: expected update pipeline, got %d", frame, agentPass.Pipeline)
		}
		if agentPass.Dispatches[0] != [3]uint32{16, 1, 1} {
			t.Errorf("frame %d: expected 16 agent groups, got %v", frame, agentPass.Dispatches[0])
		}
		if imagePass.BindGroups[binder.GroupAgents] != sets.Agents {
			t.Errorf("frame %d: expected agents bound in image pass", frame)
		}
		if imagePass.BindGroups[binder.GroupData] != sets.Data {
			t.Errorf("frame %d: expected data set bound", frame)
		}
	}
}

func TestRunSyncPasses(t *testing.T) {
	a := gpucoretest.New()
	cfg := physarumConfig()
	cfg.SyncPasses = true
	n := NewNode(cfg)
	p := allOk()
	sets := testSets(200, 200, 64)
	toUpdate(t, n, p, sets)

	if _, err := n.Run(a, p, 0, sets); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	subs := a.Submissions()
	if len(subs) != 2 {
		t.Fatalf("expected 2 submissions, got %d", len(subs))
	}
	if len(subs[0]) != 1 || len(subs[1]) != 1 {
		t.Errorf("expected one pass per submission, got %d and %d", len(subs[0]), len(subs[1]))
	}
}

func TestRunSkipsAgentPassWithoutAgents(t *testing.T) {
	a := gpucoretest.New()
	n := NewNode(physarumConfig())
	p := allOk()
	sets := testSets(200, 200, 0)
	toUpdate(t, n, p, sets)

	got, err := n.Run(a, p, 0, sets)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(got) != 1 || got[0].Pass != PassImage {
		t.Errorf("expected only the image pass, got %+v", got)
	}
}

func TestRunDispatchTooLarge(t *testing.T) {
	a := gpucoretest.New()
	caps := gpucore.DefaultCapabilities()
	caps.MaxComputeWorkgroupsPerDimension = 100
	a.SetCapabilities(caps)
	n := NewNode(Config{Image: imageID})
	p := allOk()
	n.Update(p)

	_, err := n.Run(a, p, 0, testSets(1000, 1000, 0))
	if !errors.Is(err, ErrDispatchTooLarge) {
		t.Errorf("expected ErrDispatchTooLarge, got %v", err)
	}
}

func TestRunDispatchTooLargeRecordsNothing(t *testing.T) {
	a := gpucoretest.New()
	n := NewNode(physarumConfig())
	p := allOk()
	sets := testSets(2000, 2000, 100)
	toUpdate(t, n, p, sets)

	caps := gpucore.DefaultCapabilities()
	caps.MaxComputeWorkgroupsPerDimension = 200
	a.SetCapabilities(caps)

	// The agent pass fits; the image pass needs 250 groups per side.
	got, err := n.Run(a, p, 0, sets)
	if !errors.Is(err, ErrDispatchTooLarge) {
		t.Fatalf("expected ErrDispatchTooLarge, got %v", err)
	}
	if got != nil {
		t.Errorf("expected no dispatches, got %+v", got)
	}

	a.SetCapabilities(gpucore.DefaultCapabilities())
	if _, err := n.Run(a, p, 1, sets); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	subs := a.Submissions()
	if len(subs) != 1 {
		t.Fatalf("expected one submission, got %d", len(subs))
	}
	if len(subs[0]) != 2 || subs[0][0].Label != "computeplay_agents" || subs[0][1].Label != "computeplay_image" {
		t.Errorf("expected agents then image, got %+v", subs[0])
	}
}

func TestRunSubmitFailure(t *testing.T) {
	a := gpucoretest.New()
	boom := errors.New("lost")
	a.Fail(gpucoretest.OpSubmit, boom)
	n := NewNode(Config{Image: imageID})
	p := allOk()
	n.Update(p)

	_, err := n.Run(a, p, 0, testSets(200, 200, 0))
	if !errors.Is(err, boom) {
		t.Errorf("expected submit error, got %v", err)
	}
}
