//go:build !nogpu

package native

import (
	"fmt"
	"strings"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// ParseBackend maps a backend name to its variant. "auto" and "" select the
// best registered backend and report ok=false.
func ParseBackend(name string) (variant gputypes.Backend, ok bool, err error) {
	switch strings.ToLower(name) {
	case "", "auto":
		return 0, false, nil
	case "vulkan":
		return gputypes.BackendVulkan, true, nil
	case "metal":
		return gputypes.BackendMetal, true, nil
	case "dx12":
		return gputypes.BackendDX12, true, nil
	case "gl", "gles":
		return gputypes.BackendGL, true, nil
	case "cpu", "software", "noop":
		return gputypes.BackendEmpty, true, nil
	default:
		return 0, false, fmt.Errorf("%w: %q", ErrUnknownBackend, name)
	}
}

// Open creates an instance on the named backend, picks an adapter and opens a
// device on it. Backends must be registered first, usually by importing
// github.com/gogpu/wgpu/hal/allbackends. Close releases everything Open
// created.
func Open(backendName string) (*HALAdapter, error) {
	variant, explicit, err := ParseBackend(backendName)
	if err != nil {
		return nil, err
	}

	var backend hal.Backend
	if explicit {
		b, ok := hal.GetBackend(variant)
		if !ok {
			return nil, fmt.Errorf("%w: %s", hal.ErrBackendNotFound, backendName)
		}
		backend = b
	} else {
		backend, err = hal.SelectBestBackend()
		if err != nil {
			return nil, fmt.Errorf("native: select backend: %w", err)
		}
	}

	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{})
	if err != nil {
		return nil, fmt.Errorf("native: create instance: %w", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, ErrNoGPU
	}

	selected := &adapters[0]
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}

	limits := gputypes.DefaultLimits()
	open, err := selected.Adapter.Open(gputypes.Features(0), limits)
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("native: open device: %w", err)
	}

	a := NewHALAdapter(open.Device, open.Queue, &limits)
	a.caps.Name = selected.Info.Name
	a.owned = true
	a.instance = instance
	slogger().Info("native: device opened",
		"backend", backend.Variant().String(),
		"adapter", selected.Info.Name,
		"type", selected.Info.DeviceType.String())
	return a, nil
}

// NewFromProvider wraps the device of a host application, such as a gogpu
// window. The provider must implement HalDevice() any and HalQueue() any
// returning hal.Device and hal.Queue. The host keeps ownership of the device.
func NewFromProvider(provider any) (*HALAdapter, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, fmt.Errorf("%w: missing HalDevice/HalQueue", ErrProviderUnsupported)
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("%w: HalDevice is not hal.Device", ErrProviderUnsupported)
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("%w: HalQueue is not hal.Queue", ErrProviderUnsupported)
	}
	slogger().Info("native: using shared device")
	return NewHALAdapter(device, queue, nil), nil
}

// Close waits for the device to go idle and destroys every resource still
// registered. Devices from Open are destroyed as well.
func (a *HALAdapter) Close() {
	if err := a.WaitIdle(); err != nil {
		slogger().Warn("native: close", "err", err)
	}

	a.mu.Lock()
	if a.encoder != nil {
		a.encoder.DiscardEncoding()
		a.encoder = nil
	}
	for id, g := range a.bindGroups {
		a.device.DestroyBindGroup(g)
		delete(a.bindGroups, id)
	}
	for id, p := range a.computePipelines {
		a.device.DestroyComputePipeline(p)
		delete(a.computePipelines, id)
	}
	for id, l := range a.pipelineLayouts {
		a.device.DestroyPipelineLayout(l)
		delete(a.pipelineLayouts, id)
	}
	for id, l := range a.bindGroupLayouts {
		a.device.DestroyBindGroupLayout(l)
		delete(a.bindGroupLayouts, id)
	}
	for id, m := range a.shaderModules {
		a.device.DestroyShaderModule(m)
		delete(a.shaderModules, id)
	}
	for id, t := range a.textures {
		a.device.DestroyTextureView(t.view)
		a.device.DestroyTexture(t.raw)
		delete(a.textures, id)
	}
	for id, b := range a.buffers {
		a.device.DestroyBuffer(b.raw)
		delete(a.buffers, id)
	}
	owned, instance := a.owned, a.instance
	a.owned, a.instance = false, nil
	a.mu.Unlock()

	if owned {
		a.device.Destroy()
		if instance != nil {
			instance.Destroy()
		}
	}
}
