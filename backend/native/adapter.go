//go:build !nogpu

// Package native implements gpucore.GPUAdapter on top of gogpu/wgpu/hal.
package native

import (
	"fmt"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/gogpu/computeplay/gpucore"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

type buffer struct {
	raw   hal.Buffer
	size  uint64
	usage gpucore.BufferUsage
}

type texture struct {
	raw  hal.Texture
	view hal.TextureView
	desc gpucore.TextureDesc
}

type submission struct {
	index uint64
	cmd   hal.CommandBuffer
}

// HALAdapter implements gpucore.GPUAdapter using a hal.Device and hal.Queue.
//
// Resource calls are safe for concurrent use; the pipeline cache creates
// pipelines from worker goroutines while the frame loop records passes.
type HALAdapter struct {
	mu     sync.RWMutex
	device hal.Device
	queue  hal.Queue
	caps   gpucore.AdapterCapabilities

	// owned is set when Close must destroy the device.
	owned    bool
	instance hal.Instance

	nextID atomic.Uint64

	buffers          map[gpucore.BufferID]*buffer
	textures         map[gpucore.TextureID]*texture
	shaderModules    map[gpucore.ShaderModuleID]hal.ShaderModule
	computePipelines map[gpucore.ComputePipelineID]hal.ComputePipeline
	bindGroupLayouts map[gpucore.BindGroupLayoutID]hal.BindGroupLayout
	pipelineLayouts  map[gpucore.PipelineLayoutID]hal.PipelineLayout
	bindGroups       map[gpucore.BindGroupID]hal.BindGroup

	// Command encoder for the current submission.
	encoder   hal.CommandEncoder
	encodeErr error
	inflight  []submission
}

// NewHALAdapter wraps device and queue. If limits is nil, default limits
// are used. The caller keeps ownership of the device.
func NewHALAdapter(device hal.Device, queue hal.Queue, limits *gputypes.Limits) *HALAdapter {
	lim := gputypes.DefaultLimits()
	if limits != nil {
		lim = *limits
	}

	a := &HALAdapter{
		device: device,
		queue:  queue,
		caps: gpucore.AdapterCapabilities{
			SupportsCompute:                  true,
			MaxWorkgroupSizeX:                lim.MaxComputeWorkgroupSizeX,
			MaxWorkgroupInvocations:          lim.MaxComputeInvocationsPerWorkgroup,
			MaxBufferSize:                    lim.MaxBufferSize,
			MaxStorageBufferBindingSize:      lim.MaxStorageBufferBindingSize,
			MaxComputeWorkgroupsPerDimension: lim.MaxComputeWorkgroupsPerDimension,
		},
		buffers:          make(map[gpucore.BufferID]*buffer),
		textures:         make(map[gpucore.TextureID]*texture),
		shaderModules:    make(map[gpucore.ShaderModuleID]hal.ShaderModule),
		computePipelines: make(map[gpucore.ComputePipelineID]hal.ComputePipeline),
		bindGroupLayouts: make(map[gpucore.BindGroupLayoutID]hal.BindGroupLayout),
		pipelineLayouts:  make(map[gpucore.PipelineLayoutID]hal.PipelineLayout),
		bindGroups:       make(map[gpucore.BindGroupID]hal.BindGroup),
	}

	// 0 is InvalidID.
	a.nextID.Store(1)
	return a
}

func (a *HALAdapter) newID() uint64 {
	return a.nextID.Add(1) - 1
}

// === Capabilities ===

// Capabilities implements gpucore.GPUAdapter.
func (a *HALAdapter) Capabilities() gpucore.AdapterCapabilities {
	return a.caps
}

// === Shader Modules ===

// CreateShaderModule creates a shader module from SPIR-V words.
func (a *HALAdapter) CreateShaderModule(spirv []uint32, label string) (gpucore.ShaderModuleID, error) {
	if len(spirv) == 0 {
		return gpucore.InvalidID, fmt.Errorf("%w: empty SPIR-V for %q", gpucore.ErrInvalidDescriptor, label)
	}
	module, err := a.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  label,
		Source: hal.ShaderSource{SPIRV: spirv},
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("native: create shader module %q: %w", label, err)
	}

	id := gpucore.ShaderModuleID(a.newID())
	a.mu.Lock()
	a.shaderModules[id] = module
	a.mu.Unlock()
	return id, nil
}

// DestroyShaderModule releases a shader module.
func (a *HALAdapter) DestroyShaderModule(id gpucore.ShaderModuleID) {
	a.mu.Lock()
	module, ok := a.shaderModules[id]
	delete(a.shaderModules, id)
	a.mu.Unlock()
	if ok {
		a.device.DestroyShaderModule(module)
	}
}

// === Buffers ===

// CreateBuffer allocates a buffer of size bytes.
func (a *HALAdapter) CreateBuffer(size int, usage gpucore.BufferUsage, label string) (gpucore.BufferID, error) {
	if size <= 0 {
		return gpucore.InvalidID, fmt.Errorf("%w: buffer %q size %d", gpucore.ErrInvalidDescriptor, label, size)
	}
	raw, err := a.device.CreateBuffer(&hal.BufferDescriptor{
		Label: label,
		Size:  uint64(size),
		Usage: convertBufferUsage(usage),
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("native: create buffer %q: %w", label, err)
	}

	id := gpucore.BufferID(a.newID())
	a.mu.Lock()
	a.buffers[id] = &buffer{raw: raw, size: uint64(size), usage: usage}
	a.mu.Unlock()
	slogger().Debug("native: buffer created", "label", label, "bytes", size)
	return id, nil
}

// DestroyBuffer releases a buffer.
func (a *HALAdapter) DestroyBuffer(id gpucore.BufferID) {
	a.mu.Lock()
	b, ok := a.buffers[id]
	delete(a.buffers, id)
	a.mu.Unlock()
	if ok {
		a.device.DestroyBuffer(b.raw)
	}
}

// WriteBuffer uploads data at offset through the queue.
func (a *HALAdapter) WriteBuffer(id gpucore.BufferID, offset uint64, data []byte) error {
	a.mu.RLock()
	b, ok := a.buffers[id]
	a.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: buffer %d", gpucore.ErrResourceNotFound, id)
	}
	if offset+uint64(len(data)) > b.size {
		return fmt.Errorf("%w: write of %d bytes at %d overflows buffer %d (%d bytes)",
			gpucore.ErrInvalidDescriptor, len(data), offset, id, b.size)
	}
	if err := a.queue.WriteBuffer(b.raw, offset, data); err != nil {
		return fmt.Errorf("native: write buffer %d: %w", id, err)
	}
	return nil
}

// ReadBuffer maps a MapRead buffer and copies size bytes from offset.
func (a *HALAdapter) ReadBuffer(id gpucore.BufferID, offset, size uint64) ([]byte, error) {
	a.mu.RLock()
	b, ok := a.buffers[id]
	a.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: buffer %d", gpucore.ErrResourceNotFound, id)
	}
	if b.usage&gpucore.BufferUsageMapRead == 0 {
		return nil, fmt.Errorf("%w: buffer %d lacks MapRead usage", gpucore.ErrInvalidDescriptor, id)
	}
	if offset+size > b.size {
		return nil, fmt.Errorf("%w: read of %d bytes at %d overflows buffer %d", gpucore.ErrInvalidDescriptor, size, offset, id)
	}
	if size == 0 {
		return []byte{}, nil
	}

	if err := a.WaitIdle(); err != nil {
		return nil, err
	}
	mapping, err := a.device.MapBuffer(b.raw, offset, size)
	if err != nil {
		return nil, fmt.Errorf("native: map buffer %d: %w", id, err)
	}
	out := make([]byte, size)
	copy(out, unsafe.Slice((*byte)(mapping.Ptr), size))
	if err := a.device.UnmapBuffer(b.raw); err != nil {
		return nil, fmt.Errorf("native: unmap buffer %d: %w", id, err)
	}
	return out, nil
}

// === Textures ===

// CreateTexture allocates a 2D texture and its default view.
func (a *HALAdapter) CreateTexture(desc *gpucore.TextureDesc) (gpucore.TextureID, error) {
	if desc == nil || desc.Width <= 0 || desc.Height <= 0 {
		return gpucore.InvalidID, fmt.Errorf("%w: texture size", gpucore.ErrInvalidDescriptor)
	}
	format, err := convertTextureFormat(desc.Format)
	if err != nil {
		return gpucore.InvalidID, err
	}

	raw, err := a.device.CreateTexture(&hal.TextureDescriptor{
		Label: desc.Label,
		Size: hal.Extent3D{
			Width:              uint32(desc.Width),  //nolint:gosec // checked positive above
			Height:             uint32(desc.Height), //nolint:gosec // checked positive above
			DepthOrArrayLayers: 1,
		},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        format,
		Usage:         convertTextureUsage(desc.Usage),
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("native: create texture %q: %w", desc.Label, err)
	}
	view, err := a.device.CreateTextureView(raw, &hal.TextureViewDescriptor{
		Label:           desc.Label + "_view",
		Format:          format,
		Dimension:       gputypes.TextureViewDimension2D,
		Aspect:          gputypes.TextureAspectAll,
		MipLevelCount:   1,
		ArrayLayerCount: 1,
	})
	if err != nil {
		a.device.DestroyTexture(raw)
		return gpucore.InvalidID, fmt.Errorf("native: create texture view %q: %w", desc.Label, err)
	}

	id := gpucore.TextureID(a.newID())
	a.mu.Lock()
	a.textures[id] = &texture{raw: raw, view: view, desc: *desc}
	a.mu.Unlock()
	return id, nil
}

// DestroyTexture releases a texture and its view.
func (a *HALAdapter) DestroyTexture(id gpucore.TextureID) {
	a.mu.Lock()
	t, ok := a.textures[id]
	delete(a.textures, id)
	a.mu.Unlock()
	if ok {
		a.device.DestroyTextureView(t.view)
		a.device.DestroyTexture(t.raw)
	}
}

// WriteTexture uploads a full image of tightly packed rows.
func (a *HALAdapter) WriteTexture(id gpucore.TextureID, data []byte) error {
	a.mu.RLock()
	t, ok := a.textures[id]
	a.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: texture %d", gpucore.ErrResourceNotFound, id)
	}

	bpp := t.desc.Format.BytesPerPixel()
	if want := t.desc.Width * t.desc.Height * bpp; len(data) != want {
		return fmt.Errorf("%w: texture %d expects %d bytes, got %d", gpucore.ErrInvalidDescriptor, id, want, len(data))
	}

	w := uint32(t.desc.Width)  //nolint:gosec // validated at creation
	h := uint32(t.desc.Height) //nolint:gosec // validated at creation
	err := a.queue.WriteTexture(
		&hal.ImageCopyTexture{Texture: t.raw, Aspect: gputypes.TextureAspectAll},
		data,
		&hal.ImageDataLayout{BytesPerRow: w * uint32(bpp), RowsPerImage: h}, //nolint:gosec // bpp is 4
		&hal.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1},
	)
	if err != nil {
		return fmt.Errorf("native: write texture %d: %w", id, err)
	}
	return nil
}

// === Layouts ===

// CreateBindGroupLayout creates a bind group layout visible to compute.
func (a *HALAdapter) CreateBindGroupLayout(desc *gpucore.BindGroupLayoutDesc) (gpucore.BindGroupLayoutID, error) {
	entries := make([]gputypes.BindGroupLayoutEntry, len(desc.Entries))
	for i, e := range desc.Entries {
		entry, err := convertBindGroupLayoutEntry(e)
		if err != nil {
			return gpucore.InvalidID, fmt.Errorf("native: layout %q: %w", desc.Label, err)
		}
		entries[i] = entry
	}

	layout, err := a.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{Label: desc.Label, Entries: entries})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("native: create bind group layout %q: %w", desc.Label, err)
	}

	id := gpucore.BindGroupLayoutID(a.newID())
	a.mu.Lock()
	a.bindGroupLayouts[id] = layout
	a.mu.Unlock()
	return id, nil
}

// DestroyBindGroupLayout releases a bind group layout.
func (a *HALAdapter) DestroyBindGroupLayout(id gpucore.BindGroupLayoutID) {
	a.mu.Lock()
	layout, ok := a.bindGroupLayouts[id]
	delete(a.bindGroupLayouts, id)
	a.mu.Unlock()
	if ok {
		a.device.DestroyBindGroupLayout(layout)
	}
}

// CreatePipelineLayout creates a pipeline layout from bind group layouts in
// group order.
func (a *HALAdapter) CreatePipelineLayout(layouts []gpucore.BindGroupLayoutID, label string) (gpucore.PipelineLayoutID, error) {
	a.mu.RLock()
	groups := make([]hal.BindGroupLayout, len(layouts))
	for i, id := range layouts {
		l, ok := a.bindGroupLayouts[id]
		if !ok {
			a.mu.RUnlock()
			return gpucore.InvalidID, fmt.Errorf("%w: bind group layout %d", gpucore.ErrResourceNotFound, id)
		}
		groups[i] = l
	}
	a.mu.RUnlock()

	layout, err := a.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{Label: label, BindGroupLayouts: groups})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("native: create pipeline layout %q: %w", label, err)
	}

	id := gpucore.PipelineLayoutID(a.newID())
	a.mu.Lock()
	a.pipelineLayouts[id] = layout
	a.mu.Unlock()
	return id, nil
}

// DestroyPipelineLayout releases a pipeline layout.
func (a *HALAdapter) DestroyPipelineLayout(id gpucore.PipelineLayoutID) {
	a.mu.Lock()
	layout, ok := a.pipelineLayouts[id]
	delete(a.pipelineLayouts, id)
	a.mu.Unlock()
	if ok {
		a.device.DestroyPipelineLayout(layout)
	}
}

// === Compute Pipelines ===

// CreateComputePipeline creates a compute pipeline.
func (a *HALAdapter) CreateComputePipeline(desc *gpucore.ComputePipelineDesc) (gpucore.ComputePipelineID, error) {
	a.mu.RLock()
	module, okModule := a.shaderModules[desc.ShaderModule]
	layout, okLayout := a.pipelineLayouts[desc.Layout]
	a.mu.RUnlock()
	if !okModule {
		return gpucore.InvalidID, fmt.Errorf("%w: shader module %d", gpucore.ErrResourceNotFound, desc.ShaderModule)
	}
	if !okLayout {
		return gpucore.InvalidID, fmt.Errorf("%w: pipeline layout %d", gpucore.ErrResourceNotFound, desc.Layout)
	}

	pipeline, err := a.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:   desc.Label,
		Layout:  layout,
		Compute: hal.ComputeState{Module: module, EntryPoint: desc.EntryPoint},
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("native: create compute pipeline %q: %w", desc.Label, err)
	}

	id := gpucore.ComputePipelineID(a.newID())
	a.mu.Lock()
	a.computePipelines[id] = pipeline
	a.mu.Unlock()
	return id, nil
}

// DestroyComputePipeline releases a compute pipeline.
func (a *HALAdapter) DestroyComputePipeline(id gpucore.ComputePipelineID) {
	a.mu.Lock()
	pipeline, ok := a.computePipelines[id]
	delete(a.computePipelines, id)
	a.mu.Unlock()
	if ok {
		a.device.DestroyComputePipeline(pipeline)
	}
}

// === Bind Groups ===

// CreateBindGroup creates a bind group. Buffers bind whole; textures bind
// through their default view.
func (a *HALAdapter) CreateBindGroup(desc *gpucore.BindGroupDesc) (gpucore.BindGroupID, error) {
	a.mu.RLock()
	layout, ok := a.bindGroupLayouts[desc.Layout]
	if !ok {
		a.mu.RUnlock()
		return gpucore.InvalidID, fmt.Errorf("%w: bind group layout %d", gpucore.ErrResourceNotFound, desc.Layout)
	}
	entries := make([]gputypes.BindGroupEntry, len(desc.Entries))
	for i, e := range desc.Entries {
		entry, err := a.convertBindGroupEntry(e)
		if err != nil {
			a.mu.RUnlock()
			return gpucore.InvalidID, fmt.Errorf("native: bind group %q: %w", desc.Label, err)
		}
		entries[i] = entry
	}
	a.mu.RUnlock()

	group, err := a.device.CreateBindGroup(&hal.BindGroupDescriptor{Label: desc.Label, Layout: layout, Entries: entries})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("native: create bind group %q: %w", desc.Label, err)
	}

	id := gpucore.BindGroupID(a.newID())
	a.mu.Lock()
	a.bindGroups[id] = group
	a.mu.Unlock()
	return id, nil
}

// DestroyBindGroup releases a bind group.
func (a *HALAdapter) DestroyBindGroup(id gpucore.BindGroupID) {
	a.mu.Lock()
	group, ok := a.bindGroups[id]
	delete(a.bindGroups, id)
	a.mu.Unlock()
	if ok {
		a.device.DestroyBindGroup(group)
	}
}

// === Conversions ===

// gpucore usage bits share their values with gputypes.
func convertBufferUsage(usage gpucore.BufferUsage) gputypes.BufferUsage {
	return gputypes.BufferUsage(usage)
}

func convertTextureUsage(usage gpucore.TextureUsage) gputypes.TextureUsage {
	return gputypes.TextureUsage(usage)
}

func convertTextureFormat(format gpucore.TextureFormat) (gputypes.TextureFormat, error) {
	switch format {
	case gpucore.TextureFormatRGBA8Unorm:
		return gputypes.TextureFormatRGBA8Unorm, nil
	case gpucore.TextureFormatBGRA8Unorm:
		return gputypes.TextureFormatBGRA8Unorm, nil
	default:
		return 0, fmt.Errorf("%w: texture format %d", gpucore.ErrInvalidDescriptor, format)
	}
}

func convertBindGroupLayoutEntry(e gpucore.BindGroupLayoutEntry) (gputypes.BindGroupLayoutEntry, error) {
	out := gputypes.BindGroupLayoutEntry{Binding: e.Binding, Visibility: gputypes.ShaderStageCompute}

	switch e.Type {
	case gpucore.BindingTypeUniformBuffer:
		out.Buffer = &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform, MinBindingSize: e.MinBindingSize}
	case gpucore.BindingTypeStorageBuffer:
		out.Buffer = &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeStorage, MinBindingSize: e.MinBindingSize}
	case gpucore.BindingTypeReadOnlyStorageBuffer:
		out.Buffer = &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeReadOnlyStorage, MinBindingSize: e.MinBindingSize}
	case gpucore.BindingTypeSampledTexture:
		out.Texture = &gputypes.TextureBindingLayout{
			SampleType:    gputypes.TextureSampleTypeFloat,
			ViewDimension: gputypes.TextureViewDimension2D,
		}
	case gpucore.BindingTypeStorageTexture:
		format, err := convertTextureFormat(e.Format)
		if err != nil {
			return out, err
		}
		out.StorageTexture = &gputypes.StorageTextureBindingLayout{
			Access:        gputypes.StorageTextureAccessReadWrite,
			Format:        format,
			ViewDimension: gputypes.TextureViewDimension2D,
		}
	default:
		return out, fmt.Errorf("%w: binding type %v", gpucore.ErrInvalidDescriptor, e.Type)
	}
	return out, nil
}

// convertBindGroupEntry must be called with a.mu held.
func (a *HALAdapter) convertBindGroupEntry(e gpucore.BindGroupEntry) (gputypes.BindGroupEntry, error) {
	switch {
	case e.Buffer != gpucore.InvalidID:
		b, ok := a.buffers[e.Buffer]
		if !ok {
			return gputypes.BindGroupEntry{}, fmt.Errorf("%w: buffer %d", gpucore.ErrResourceNotFound, e.Buffer)
		}
		size := e.Size
		if size == 0 {
			size = b.size - e.Offset
		}
		return gputypes.BindGroupEntry{
			Binding:  e.Binding,
			Resource: gputypes.BufferBinding{Buffer: b.raw.NativeHandle(), Offset: e.Offset, Size: size},
		}, nil
	case e.Texture != gpucore.InvalidID:
		t, ok := a.textures[e.Texture]
		if !ok {
			return gputypes.BindGroupEntry{}, fmt.Errorf("%w: texture %d", gpucore.ErrResourceNotFound, e.Texture)
		}
		return gputypes.BindGroupEntry{
			Binding:  e.Binding,
			Resource: gputypes.TextureViewBinding{TextureView: t.view.NativeHandle()},
		}, nil
	default:
		return gputypes.BindGroupEntry{}, fmt.Errorf("%w: binding %d has no resource", gpucore.ErrInvalidDescriptor, e.Binding)
	}
}
