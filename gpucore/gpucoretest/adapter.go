// Package gpucoretest provides a recording gpucore.GPUAdapter for tests.
//
// The Adapter keeps every created resource in memory, records compute passes
// and submissions, and can be told to fail individual operations. It performs
// no GPU work: dispatches are only recorded.
package gpucoretest

import (
	"fmt"
	"sync"

	"github.com/gogpu/computeplay/gpucore"
)

// Op names an adapter operation for failure injection.
type Op int

// Operations that can be made to fail.
const (
	OpCreateShaderModule Op = iota
	OpCreateBuffer
	OpWriteBuffer
	OpCreateTexture
	OpWriteTexture
	OpCreateBindGroupLayout
	OpCreatePipelineLayout
	OpCreateComputePipeline
	OpCreateBindGroup
	OpSubmit
)

// Buffer is the recorded state of a buffer.
type Buffer struct {
	Label  string
	Usage  gpucore.BufferUsage
	Data   []byte
	Writes int
}

// Texture is the recorded state of a texture.
type Texture struct {
	Desc   gpucore.TextureDesc
	Data   []byte
	Writes int
}

// Pass is a recorded compute pass.
type Pass struct {
	Label      string
	Pipeline   gpucore.ComputePipelineID
	BindGroups map[uint32]gpucore.BindGroupID
	Dispatches [][3]uint32
	Ended      bool
}

// Adapter is an in-memory gpucore.GPUAdapter.
type Adapter struct {
	mu     sync.Mutex
	nextID uint64
	caps   gpucore.AdapterCapabilities

	modules         map[gpucore.ShaderModuleID]string
	buffers         map[gpucore.BufferID]*Buffer
	textures        map[gpucore.TextureID]*Texture
	layouts         map[gpucore.BindGroupLayoutID]gpucore.BindGroupLayoutDesc
	pipelineLayouts map[gpucore.PipelineLayoutID][]gpucore.BindGroupLayoutID
	pipelines       map[gpucore.ComputePipelineID]gpucore.ComputePipelineDesc
	bindGroups      map[gpucore.BindGroupID]gpucore.BindGroupDesc

	failures map[Op]error

	pending     []*Pass
	submissions [][]Pass
	destroyed   int
}

var _ gpucore.GPUAdapter = (*Adapter)(nil)

// New returns an empty adapter reporting gpucore.DefaultCapabilities.
func New() *Adapter {
	caps := gpucore.DefaultCapabilities()
	caps.Name = "gpucoretest"
	return &Adapter{
		caps:            caps,
		modules:         make(map[gpucore.ShaderModuleID]string),
		buffers:         make(map[gpucore.BufferID]*Buffer),
		textures:        make(map[gpucore.TextureID]*Texture),
		layouts:         make(map[gpucore.BindGroupLayoutID]gpucore.BindGroupLayoutDesc),
		pipelineLayouts: make(map[gpucore.PipelineLayoutID][]gpucore.BindGroupLayoutID),
		pipelines:       make(map[gpucore.ComputePipelineID]gpucore.ComputePipelineDesc),
		bindGroups:      make(map[gpucore.BindGroupID]gpucore.BindGroupDesc),
		failures:        make(map[Op]error),
	}
}

// Fail makes every subsequent call of op return err. A nil err clears it.
func (a *Adapter) Fail(op Op, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err == nil {
		delete(a.failures, op)
		return
	}
	a.failures[op] = err
}

// SetCapabilities overrides the reported capabilities.
func (a *Adapter) SetCapabilities(caps gpucore.AdapterCapabilities) {
	a.mu.Lock()
	a.caps = caps
	a.mu.Unlock()
}

func (a *Adapter) id() uint64 {
	a.nextID++
	return a.nextID
}

// =============================================================================
// gpucore.GPUAdapter
// =============================================================================

// Capabilities implements gpucore.GPUAdapter.
func (a *Adapter) Capabilities() gpucore.AdapterCapabilities {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.caps
}

// CreateShaderModule implements gpucore.GPUAdapter.
func (a *Adapter) CreateShaderModule(spirv []uint32, label string) (gpucore.ShaderModuleID, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.failures[OpCreateShaderModule]; err != nil {
		return gpucore.InvalidID, err
	}
	if len(spirv) == 0 {
		return gpucore.InvalidID, fmt.Errorf("gpucoretest: empty SPIR-V: %w", gpucore.ErrInvalidDescriptor)
	}
	id := gpucore.ShaderModuleID(a.id())
	a.modules[id] = label
	return id, nil
}

// DestroyShaderModule implements gpucore.GPUAdapter.
func (a *Adapter) DestroyShaderModule(id gpucore.ShaderModuleID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.modules[id]; ok {
		delete(a.modules, id)
		a.destroyed++
	}
}

// CreateBuffer implements gpucore.GPUAdapter.
func (a *Adapter) CreateBuffer(size int, usage gpucore.BufferUsage, label string) (gpucore.BufferID, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.failures[OpCreateBuffer]; err != nil {
		return gpucore.InvalidID, err
	}
	if size <= 0 {
		return gpucore.InvalidID, fmt.Errorf("gpucoretest: buffer size %d: %w", size, gpucore.ErrInvalidDescriptor)
	}
	id := gpucore.BufferID(a.id())
	a.buffers[id] = &Buffer{Label: label, Usage: usage, Data: make([]byte, size)}
	return id, nil
}

// DestroyBuffer implements gpucore.GPUAdapter.
func (a *Adapter) DestroyBuffer(id gpucore.BufferID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.buffers[id]; ok {
		delete(a.buffers, id)
		a.destroyed++
	}
}

// WriteBuffer implements gpucore.GPUAdapter.
func (a *Adapter) WriteBuffer(id gpucore.BufferID, offset uint64, data []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.failures[OpWriteBuffer]; err != nil {
		return err
	}
	b, ok := a.buffers[id]
	if !ok {
		return fmt.Errorf("gpucoretest: buffer %d: %w", id, gpucore.ErrResourceNotFound)
	}
	if offset+uint64(len(data)) > uint64(len(b.Data)) {
		return fmt.Errorf("gpucoretest: write of %d bytes at %d overflows buffer of %d: %w",
			len(data), offset, len(b.Data), gpucore.ErrInvalidDescriptor)
	}
	copy(b.Data[offset:], data)
	b.Writes++
	return nil
}

// ReadBuffer implements gpucore.GPUAdapter.
func (a *Adapter) ReadBuffer(id gpucore.BufferID, offset, size uint64) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	b, ok := a.buffers[id]
	if !ok {
		return nil, fmt.Errorf("gpucoretest: buffer %d: %w", id, gpucore.ErrResourceNotFound)
	}
	if offset+size > uint64(len(b.Data)) {
		return nil, fmt.Errorf("gpucoretest: read out of range: %w", gpucore.ErrInvalidDescriptor)
	}
	out := make([]byte, size)
	copy(out, b.Data[offset:offset+size])
	return out, nil
}

// CreateTexture implements gpucore.GPUAdapter.
func (a *Adapter) CreateTexture(desc *gpucore.TextureDesc) (gpucore.TextureID, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.failures[OpCreateTexture]; err != nil {
		return gpucore.InvalidID, err
	}
	if desc == nil || desc.Width <= 0 || desc.Height <= 0 || desc.Format.BytesPerPixel() == 0 {
		return gpucore.InvalidID, fmt.Errorf("gpucoretest: texture: %w", gpucore.ErrInvalidDescriptor)
	}
	id := gpucore.TextureID(a.id())
	a.textures[id] = &Texture{Desc: *desc}
	return id, nil
}

// DestroyTexture implements gpucore.GPUAdapter.
func (a *Adapter) DestroyTexture(id gpucore.TextureID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.textures[id]; ok {
		delete(a.textures, id)
		a.destroyed++
	}
}

// WriteTexture implements gpucore.GPUAdapter.
func (a *Adapter) WriteTexture(id gpucore.TextureID, data []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.failures[OpWriteTexture]; err != nil {
		return err
	}
	t, ok := a.textures[id]
	if !ok {
		return fmt.Errorf("gpucoretest: texture %d: %w", id, gpucore.ErrResourceNotFound)
	}
	want := t.Desc.Width * t.Desc.Height * t.Desc.Format.BytesPerPixel()
	if len(data) != want {
		return fmt.Errorf("gpucoretest: texture data %d bytes, expected %d: %w", len(data), want, gpucore.ErrInvalidDescriptor)
	}
	t.Data = append(t.Data[:0], data...)
	t.Writes++
	return nil
}

// CreateBindGroupLayout implements gpucore.GPUAdapter.
func (a *Adapter) CreateBindGroupLayout(desc *gpucore.BindGroupLayoutDesc) (gpucore.BindGroupLayoutID, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.failures[OpCreateBindGroupLayout]; err != nil {
		return gpucore.InvalidID, err
	}
	if desc == nil {
		return gpucore.InvalidID, gpucore.ErrInvalidDescriptor
	}
	id := gpucore.BindGroupLayoutID(a.id())
	a.layouts[id] = *desc
	return id, nil
}

// DestroyBindGroupLayout implements gpucore.GPUAdapter.
func (a *Adapter) DestroyBindGroupLayout(id gpucore.BindGroupLayoutID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.layouts[id]; ok {
		delete(a.layouts, id)
		a.destroyed++
	}
}

// CreatePipelineLayout implements gpucore.GPUAdapter.
func (a *Adapter) CreatePipelineLayout(layouts []gpucore.BindGroupLayoutID, _ string) (gpucore.PipelineLayoutID, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.failures[OpCreatePipelineLayout]; err != nil {
		return gpucore.InvalidID, err
	}
	for _, l := range layouts {
		if _, ok := a.layouts[l]; !ok {
			return gpucore.InvalidID, fmt.Errorf("gpucoretest: bind group layout %d: %w", l, gpucore.ErrResourceNotFound)
		}
	}
	id := gpucore.PipelineLayoutID(a.id())
	a.pipelineLayouts[id] = append([]gpucore.BindGroupLayoutID(nil), layouts...)
	return id, nil
}

// DestroyPipelineLayout implements gpucore.GPUAdapter.
func (a *Adapter) DestroyPipelineLayout(id gpucore.PipelineLayoutID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.pipelineLayouts[id]; ok {
		delete(a.pipelineLayouts, id)
		a.destroyed++
	}
}

// CreateComputePipeline implements gpucore.GPUAdapter.
func (a *Adapter) CreateComputePipeline(desc *gpucore.ComputePipelineDesc) (gpucore.ComputePipelineID, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.failures[OpCreateComputePipeline]; err != nil {
		return gpucore.InvalidID, err
	}
	if desc == nil || desc.EntryPoint == "" {
		return gpucore.InvalidID, gpucore.ErrInvalidDescriptor
	}
	if _, ok := a.modules[desc.ShaderModule]; !ok {
		return gpucore.InvalidID, fmt.Errorf("gpucoretest: shader module %d: %w", desc.ShaderModule, gpucore.ErrResourceNotFound)
	}
	if _, ok := a.pipelineLayouts[desc.Layout]; !ok {
		return gpucore.InvalidID, fmt.Errorf("gpucoretest: pipeline layout %d: %w", desc.Layout, gpucore.ErrResourceNotFound)
	}
	id := gpucore.ComputePipelineID(a.id())
	a.pipelines[id] = *desc
	return id, nil
}

// DestroyComputePipeline implements gpucore.GPUAdapter.
func (a *Adapter) DestroyComputePipeline(id gpucore.ComputePipelineID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.pipelines[id]; ok {
		delete(a.pipelines, id)
		a.destroyed++
	}
}

// CreateBindGroup implements gpucore.GPUAdapter.
func (a *Adapter) CreateBindGroup(desc *gpucore.BindGroupDesc) (gpucore.BindGroupID, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.failures[OpCreateBindGroup]; err != nil {
		return gpucore.InvalidID, err
	}
	if desc == nil {
		return gpucore.InvalidID, gpucore.ErrInvalidDescriptor
	}
	if _, ok := a.layouts[desc.Layout]; !ok {
		return gpucore.InvalidID, fmt.Errorf("gpucoretest: bind group layout %d: %w", desc.Layout, gpucore.ErrResourceNotFound)
	}
	for _, e := range desc.Entries {
		if e.Texture != gpucore.InvalidID {
			if _, ok := a.textures[e.Texture]; !ok {
				return gpucore.InvalidID, fmt.Errorf("gpucoretest: texture %d: %w", e.Texture, gpucore.ErrResourceNotFound)
			}
			continue
		}
		if _, ok := a.buffers[e.Buffer]; !ok {
			return gpucore.InvalidID, fmt.Errorf("gpucoretest: buffer %d: %w", e.Buffer, gpucore.ErrResourceNotFound)
		}
	}
	id := gpucore.BindGroupID(a.id())
	d := *desc
	d.Entries = append([]gpucore.BindGroupEntry(nil), desc.Entries...)
	a.bindGroups[id] = d
	return id, nil
}

// DestroyBindGroup implements gpucore.GPUAdapter.
func (a *Adapter) DestroyBindGroup(id gpucore.BindGroupID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.bindGroups[id]; ok {
		delete(a.bindGroups, id)
		a.destroyed++
	}
}

// BeginComputePass implements gpucore.GPUAdapter.
func (a *Adapter) BeginComputePass(label string) gpucore.ComputePassEncoder {
	a.mu.Lock()
	defer a.mu.Unlock()
	p := &Pass{Label: label, BindGroups: make(map[uint32]gpucore.BindGroupID)}
	a.pending = append(a.pending, p)
	return &passEncoder{adapter: a, pass: p}
}

// Submit implements gpucore.GPUAdapter.
func (a *Adapter) Submit() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.failures[OpSubmit]; err != nil {
		a.pending = nil
		return err
	}
	batch := make([]Pass, 0, len(a.pending))
	for _, p := range a.pending {
		if !p.Ended {
			return fmt.Errorf("gpucoretest: submit with open pass %q", p.Label)
		}
		batch = append(batch, *p)
	}
	a.pending = nil
	a.submissions = append(a.submissions, batch)
	return nil
}

// WaitIdle implements gpucore.GPUAdapter.
func (a *Adapter) WaitIdle() error { return nil }

type passEncoder struct {
	adapter *Adapter
	pass    *Pass
}

func (e *passEncoder) SetPipeline(p gpucore.ComputePipelineID) {
	e.adapter.mu.Lock()
	e.pass.Pipeline = p
	e.adapter.mu.Unlock()
}

func (e *passEncoder) SetBindGroup(index uint32, g gpucore.BindGroupID) {
	e.adapter.mu.Lock()
	e.pass.BindGroups[index] = g
	e.adapter.mu.Unlock()
}

func (e *passEncoder) Dispatch(x, y, z uint32) {
	e.adapter.mu.Lock()
	e.pass.Dispatches = append(e.pass.Dispatches, [3]uint32{x, y, z})
	e.adapter.mu.Unlock()
}

func (e *passEncoder) End() {
	e.adapter.mu.Lock()
	e.pass.Ended = true
	e.adapter.mu.Unlock()
}

// =============================================================================
// Inspection
// =============================================================================

// Submissions returns every submitted batch of passes, oldest first.
func (a *Adapter) Submissions() [][]Pass {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([][]Pass(nil), a.submissions...)
}

// LastSubmission returns the most recent batch, or nil.
func (a *Adapter) LastSubmission() []Pass {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.submissions) == 0 {
		return nil
	}
	return a.submissions[len(a.submissions)-1]
}

// Texture returns the recorded state of a live texture.
func (a *Adapter) Texture(id gpucore.TextureID) (Texture, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	t, ok := a.textures[id]
	if !ok {
		return Texture{}, false
	}
	return *t, true
}

// Buffer returns the recorded state of a live buffer.
func (a *Adapter) Buffer(id gpucore.BufferID) (Buffer, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	b, ok := a.buffers[id]
	if !ok {
		return Buffer{}, false
	}
	return *b, true
}

// BindGroup returns the descriptor of a live bind group.
func (a *Adapter) BindGroup(id gpucore.BindGroupID) (gpucore.BindGroupDesc, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	g, ok := a.bindGroups[id]
	return g, ok
}

// ComputePipeline returns the descriptor of a live compute pipeline.
func (a *Adapter) ComputePipeline(id gpucore.ComputePipelineID) (gpucore.ComputePipelineDesc, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	p, ok := a.pipelines[id]
	return p, ok
}

// Live returns the number of live resources of every kind.
func (a *Adapter) Live() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.modules) + len(a.buffers) + len(a.textures) + len(a.layouts) +
		len(a.pipelineLayouts) + len(a.pipelines) + len(a.bindGroups)
}

// LiveTextures returns the number of live textures.
func (a *Adapter) LiveTextures() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.textures)
}

// LiveBindGroups returns the number of live bind groups.
func (a *Adapter) LiveBindGroups() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.bindGroups)
}

// LiveModules returns the number of live shader modules.
func (a *Adapter) LiveModules() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.modules)
}

// Destroyed returns how many resources have been destroyed.
func (a *Adapter) Destroyed() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.destroyed
}
