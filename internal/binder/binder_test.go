package binder

import (
	"bytes"
	"encoding/binary"
	"errors"
	"log/slog"
	"math"
	"strings"
	"testing"

	"github.com/gogpu/computeplay/gpucore"
	"github.com/gogpu/computeplay/gpucore/gpucoretest"
	"github.com/gogpu/computeplay/internal/texture"
	"github.com/gogpu/computeplay/params"
)

// =============================================================================
// Test Helpers
// =============================================================================

type fixture struct {
	adapter  *gpucoretest.Adapter
	layouts  *Layouts
	binder   *Binder
	textures *texture.Manager
	store    *params.Store
}

func newFixture(t *testing.T, withAgents bool) *fixture {
	t.Helper()
	a := gpucoretest.New()
	layouts, err := NewLayouts(a, withAgents)
	if err != nil {
		t.Fatalf("NewLayouts failed: %v", err)
	}
	b, err := New(a, layouts)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	tm, err := texture.NewManager(a, 200, 150)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	store := params.NewStore(params.DefaultSimulation(), params.DefaultSensor(), params.DefaultBehavior())
	store.UpdateSize(200, 150)
	return &fixture{adapter: a, layouts: layouts, binder: b, textures: tm, store: store}
}

func (f *fixture) prepare(t *testing.T) (Sets, Report) {
	t.Helper()
	sets, report, err := f.binder.Prepare(f.textures.Pair(), f.textures.Version(), f.store.Snapshot(), f.store)
	if err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}
	return sets, report
}

func textureIDs(t *testing.T, a *gpucoretest.Adapter, id gpucore.BindGroupID) (storage, sampled gpucore.TextureID) {
	t.Helper()
	desc, ok := a.BindGroup(id)
	if !ok {
		t.Fatalf("bind group %d not live", id)
	}
	return desc.Entries[0].Texture, desc.Entries[1].Texture
}

// =============================================================================
// Layouts
// =============================================================================

func TestNewLayouts(t *testing.T) {
	tests := []struct {
		name       string
		withAgents bool
		wantGroups int
	}{
		{"image only", false, 2},
		{"with agents", true, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := gpucoretest.New()
			l, err := NewLayouts(a, tt.withAgents)
			if err != nil {
				t.Fatalf("NewLayouts failed: %v", err)
			}
			if l.HasAgents() != tt.withAgents {
				t.Errorf("expected HasAgents=%v", tt.withAgents)
			}
			if a.Live() != tt.wantGroups+1 {
				t.Errorf("expected %d layouts, got %d", tt.wantGroups+1, a.Live())
			}
			l.Close()
			if a.Live() != 0 {
				t.Errorf("expected Close to destroy layouts, %d left", a.Live())
			}
		})
	}
}

func TestTextureLayoutShape(t *testing.T) {
	l := TextureLayout()
	if len(l.Entries) != 2 {
		t.Fatalf("expected 2 bindings, got %d", len(l.Entries))
	}
	if l.Entries[0].Binding != 0 || l.Entries[0].Type != gpucore.BindingTypeStorageTexture {
		t.Errorf("expected binding 0 to be the storage texture, got %+v", l.Entries[0])
	}
	if l.Entries[0].Format != gpucore.TextureFormatRGBA8Unorm {
		t.Errorf("expected RGBA8Unorm storage format, got %v", l.Entries[0].Format)
	}
	if l.Entries[1].Type != gpucore.BindingTypeSampledTexture {
		t.Errorf("expected binding 1 to be sampled, got %v", l.Entries[1].Type)
	}
}

func TestMustMatchPanics(t *testing.T) {
	tests := []struct {
		name    string
		layout  gpucore.BindGroupLayoutDesc
		entries []gpucore.BindGroupEntry
	}{
		{"count", TextureLayout(), []gpucore.BindGroupEntry{{Binding: 0, Texture: 1}}},
		{"binding", TextureLayout(), []gpucore.BindGroupEntry{{Binding: 0, Texture: 1}, {Binding: 2, Texture: 2}}},
		{"buffer for texture", TextureLayout(), []gpucore.BindGroupEntry{{Binding: 0, Buffer: 1}, {Binding: 1, Texture: 2}}},
		{"texture for buffer", AgentsLayout(), []gpucore.BindGroupEntry{{Binding: 0, Texture: 1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Error("expected panic on layout mismatch")
				}
			}()
			mustMatch(tt.layout, tt.entries)
		})
	}
}

func TestMustMatchAccepts(t *testing.T) {
	mustMatch(DataLayout(), []gpucore.BindGroupEntry{
		{Binding: 0, Buffer: 1}, {Binding: 1, Buffer: 2}, {Binding: 2, Buffer: 3},
	})
}

// =============================================================================
// Prepare
// =============================================================================

func TestPrepareBuildsPingPongSets(t *testing.T) {
	f := newFixture(t, false)
	sets, report := f.prepare(t)

	if !report.Textures {
		t.Error("expected texture sets to be built on first Prepare")
	}
	pair := f.textures.Pair()
	storage, sampled := textureIDs(t, f.adapter, sets.TextureA)
	if storage != pair.A || sampled != pair.B {
		t.Errorf("set A: expected (A=%d, B=%d), got (%d, %d)", pair.A, pair.B, storage, sampled)
	}
	storage, sampled = textureIDs(t, f.adapter, sets.TextureB)
	if storage != pair.B || sampled != pair.A {
		t.Errorf("set B: expected (B=%d, A=%d), got (%d, %d)", pair.B, pair.A, storage, sampled)
	}
	if sets.Agents != gpucore.InvalidID {
		t.Error("expected no agent set without agents layout")
	}
}

func TestBinderLogger(t *testing.T) {
	f := newFixture(t, false)
	var buf bytes.Buffer
	f.binder.SetLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))

	f.prepare(t)
	if !strings.Contains(buf.String(), "binder: texture sets rebuilt") {
		t.Errorf("expected rebuild in binder logger, got: %s", buf.String())
	}
}

func TestPrepareWritesUniformsEveryFrame(t *testing.T) {
	f := newFixture(t, false)
	f.prepare(t)
	f.store.SetRates(7, 0.5)
	f.prepare(t)

	buf, ok := f.adapter.Buffer(f.binder.simBuf)
	if !ok {
		t.Fatal("sim buffer not live")
	}
	if buf.Writes != 2 {
		t.Errorf("expected 2 uniform writes, got %d", buf.Writes)
	}
	if got := math.Float32frombits(binary.LittleEndian.Uint32(buf.Data[16:])); got != 7 {
		t.Errorf("expected diffusion 7 in uniform, got %v", got)
	}
}

func TestPrepareTextureSetsOnlyOnVersionChange(t *testing.T) {
	f := newFixture(t, false)
	first, _ := f.prepare(t)
	second, report := f.prepare(t)

	if report.Textures {
		t.Error("expected no rebuild without texture change")
	}
	if first.TextureA != second.TextureA || first.TextureB != second.TextureB {
		t.Error("expected texture sets to be reused")
	}

	old := f.textures.Pair()
	if _, replaced, err := f.textures.Resize(640, 480); err != nil || !replaced {
		t.Fatalf("Resize failed: replaced=%v err=%v", replaced, err)
	}
	third, report := f.prepare(t)
	if !report.Textures {
		t.Fatal("expected rebuild after resize")
	}
	if _, ok := f.adapter.BindGroup(first.TextureA); ok {
		t.Error("expected old set A to be destroyed")
	}
	for _, id := range []gpucore.BindGroupID{third.TextureA, third.TextureB} {
		s, p := textureIDs(t, f.adapter, id)
		if s == old.A || s == old.B || p == old.A || p == old.B {
			t.Errorf("set %d still references a replaced texture", id)
		}
	}
}

func TestPrepareAgentsOnlyOnVersionChange(t *testing.T) {
	f := newFixture(t, true)
	f.store.SetAgents(params.NewAgentGrid(10, 10, nil))

	sets, report := f.prepare(t)
	if !report.Agents {
		t.Fatal("expected agents upload on first Prepare")
	}
	if sets.AgentCount != 100 {
		t.Errorf("expected 100 agents, got %d", sets.AgentCount)
	}
	buf, _ := f.adapter.Buffer(f.binder.agentsBuf)
	if buf.Writes != 1 || len(buf.Data) != 100*params.AgentStride {
		t.Fatalf("expected one write of %d bytes, got %d writes of %d", 100*params.AgentStride, buf.Writes, len(buf.Data))
	}

	for i := 0; i < 3; i++ {
		f.store.UpdateDeltaTime(0)
		if _, report := f.prepare(t); report.Agents {
			t.Fatal("expected no agent upload without version change")
		}
	}
	buf, _ = f.adapter.Buffer(f.binder.agentsBuf)
	if buf.Writes != 1 {
		t.Errorf("expected agent buffer written once, got %d", buf.Writes)
	}

	// Same size: buffer reused, data rewritten.
	agentsBuf := f.binder.agentsBuf
	f.store.SetAgents(params.NewAgentGrid(10, 10, nil))
	if _, report := f.prepare(t); !report.Agents {
		t.Fatal("expected upload after SetAgents")
	}
	if f.binder.agentsBuf != agentsBuf {
		t.Error("expected same-size upload to reuse the buffer")
	}

	// New size: buffer and set replaced.
	f.store.SetAgents(params.NewAgentGrid(4, 4, nil))
	sets2, _ := f.prepare(t)
	if sets2.Agents == sets.Agents {
		t.Error("expected agent set to be rebuilt for a new size")
	}
	if _, ok := f.adapter.Buffer(agentsBuf); ok {
		t.Error("expected old agent buffer to be destroyed")
	}
}

func TestPrepareEmptyAgentsBindsPlaceholder(t *testing.T) {
	f := newFixture(t, true)
	f.store.SetAgents(params.NewAgentGrid(10, 10, nil))
	f.prepare(t)

	f.store.SetAgents(nil)
	sets, report := f.prepare(t)
	if !report.Agents {
		t.Fatal("expected agents rebuilt for the empty list")
	}
	if sets.Agents == gpucore.InvalidID {
		t.Fatal("expected an agents set for the empty list")
	}
	if sets.AgentCount != 0 {
		t.Errorf("expected 0 agents, got %d", sets.AgentCount)
	}
	buf, ok := f.adapter.Buffer(f.binder.agentsBuf)
	if !ok {
		t.Fatal("placeholder buffer not live")
	}
	if len(buf.Data) != params.AgentStride {
		t.Errorf("expected %d byte placeholder, got %d", params.AgentStride, len(buf.Data))
	}

	f.store.SetAgents(params.NewAgentGrid(2, 2, nil))
	sets, _ = f.prepare(t)
	if sets.AgentCount != 4 || sets.Agents == gpucore.InvalidID {
		t.Errorf("expected 4 agents bound after refill, got %d in set %d", sets.AgentCount, sets.Agents)
	}
}

func TestPrepareResourceNotReady(t *testing.T) {
	t.Run("no textures", func(t *testing.T) {
		f := newFixture(t, false)
		_, _, err := f.binder.Prepare(texture.Pair{}, 1, f.store.Snapshot(), f.store)
		if !errors.Is(err, ErrResourceNotReady) {
			t.Errorf("expected ErrResourceNotReady, got %v", err)
		}
	})

	t.Run("destroyed texture", func(t *testing.T) {
		f := newFixture(t, false)
		pair := f.textures.Pair()
		f.adapter.DestroyTexture(pair.B)
		_, _, err := f.binder.Prepare(pair, f.textures.Version(), f.store.Snapshot(), f.store)
		if !errors.Is(err, ErrResourceNotReady) {
			t.Errorf("expected ErrResourceNotReady, got %v", err)
		}
		if !errors.Is(err, gpucore.ErrResourceNotFound) {
			t.Errorf("expected wrapped ErrResourceNotFound, got %v", err)
		}
		if f.adapter.LiveBindGroups() != 1 {
			t.Errorf("expected only the data set to remain, got %d sets", f.adapter.LiveBindGroups())
		}
	})

	t.Run("write failure then recovery", func(t *testing.T) {
		f := newFixture(t, true)
		f.store.SetAgents(params.NewAgentGrid(3, 3, nil))
		f.adapter.Fail(gpucoretest.OpWriteBuffer, gpucore.ErrResourceNotFound)
		if _, _, err := f.binder.Prepare(f.textures.Pair(), f.textures.Version(), f.store.Snapshot(), f.store); !errors.Is(err, ErrResourceNotReady) {
			t.Fatalf("expected ErrResourceNotReady, got %v", err)
		}
		f.adapter.Fail(gpucoretest.OpWriteBuffer, nil)
		sets, report := f.prepare(t)
		if !report.Agents || !report.Textures || sets.AgentCount != 9 {
			t.Errorf("expected full rebuild after recovery, got %+v with %d agents", report, sets.AgentCount)
		}
	})
}

func TestPrepareAgentsTooLarge(t *testing.T) {
	f := newFixture(t, true)
	caps := gpucore.DefaultCapabilities()
	caps.MaxStorageBufferBindingSize = 64
	f.adapter.SetCapabilities(caps)
	f.store.SetAgents(params.NewAgentGrid(5, 1, nil))

	_, _, err := f.binder.Prepare(f.textures.Pair(), f.textures.Version(), f.store.Snapshot(), f.store)
	if !errors.Is(err, ErrAgentsTooLarge) {
		t.Errorf("expected ErrAgentsTooLarge, got %v", err)
	}
}

func TestClose(t *testing.T) {
	f := newFixture(t, true)
	f.store.SetAgents(params.NewAgentGrid(2, 2, nil))
	f.prepare(t)

	f.binder.Close()
	f.textures.Close()
	f.layouts.Close()
	if f.adapter.Live() != 0 {
		t.Errorf("expected everything destroyed, %d live", f.adapter.Live())
	}
}
