//go:build !nogpu

package native

import (
	"fmt"

	"github.com/gogpu/computeplay/gpucore"
	"github.com/gogpu/wgpu/hal"
)

// BeginComputePass opens a compute pass on the current command encoder,
// creating the encoder on first use. Encoding errors are reported by the
// next Submit; the returned encoder then ignores all calls.
func (a *HALAdapter) BeginComputePass(label string) gpucore.ComputePassEncoder {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.encodeErr != nil {
		return &computePassEncoder{adapter: a}
	}
	if a.encoder == nil {
		encoder, err := a.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "computeplay_frame"})
		if err != nil {
			a.encodeErr = fmt.Errorf("native: create command encoder: %w", err)
			return &computePassEncoder{adapter: a}
		}
		if err := encoder.BeginEncoding("computeplay_frame"); err != nil {
			a.encodeErr = fmt.Errorf("native: begin encoding: %w", err)
			return &computePassEncoder{adapter: a}
		}
		a.encoder = encoder
	}

	return &computePassEncoder{
		adapter: a,
		pass:    a.encoder.BeginComputePass(&hal.ComputePassDescriptor{Label: label}),
	}
}

// Submit ends the current encoder and submits it. Command buffers are freed
// once the queue reports their submission complete.
func (a *HALAdapter) Submit() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.encodeErr; err != nil {
		a.encodeErr = nil
		if a.encoder != nil {
			a.encoder.DiscardEncoding()
			a.encoder = nil
		}
		return err
	}
	if a.encoder == nil {
		return nil
	}

	cmd, err := a.encoder.EndEncoding()
	a.encoder = nil
	if err != nil {
		return fmt.Errorf("native: end encoding: %w", err)
	}

	index, err := a.queue.Submit([]hal.CommandBuffer{cmd})
	if err != nil {
		a.device.FreeCommandBuffer(cmd)
		return fmt.Errorf("native: submit: %w", err)
	}
	a.inflight = append(a.inflight, submission{index: index, cmd: cmd})
	a.reclaim(a.queue.PollCompleted())
	return nil
}

// WaitIdle blocks until the device is idle and frees every in-flight command
// buffer.
func (a *HALAdapter) WaitIdle() error {
	if err := a.device.WaitIdle(); err != nil {
		return fmt.Errorf("native: wait idle: %w", err)
	}
	a.mu.Lock()
	a.reclaim(^uint64(0))
	a.mu.Unlock()
	return nil
}

// reclaim frees command buffers of submissions up to completed. a.mu must be
// held.
func (a *HALAdapter) reclaim(completed uint64) {
	kept := a.inflight[:0]
	for _, s := range a.inflight {
		if s.index <= completed {
			a.device.FreeCommandBuffer(s.cmd)
			continue
		}
		kept = append(kept, s)
	}
	a.inflight = kept
}

// Inflight returns the number of submissions not yet reclaimed.
func (a *HALAdapter) Inflight() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.inflight)
}

// computePassEncoder records into a hal compute pass. A nil pass means
// encoding already failed.
type computePassEncoder struct {
	adapter *HALAdapter
	pass    hal.ComputePassEncoder
}

func (e *computePassEncoder) SetPipeline(id gpucore.ComputePipelineID) {
	if e.pass == nil {
		return
	}
	e.adapter.mu.Lock()
	defer e.adapter.mu.Unlock()
	pipeline, ok := e.adapter.computePipelines[id]
	if !ok {
		e.adapter.fail(fmt.Errorf("%w: compute pipeline %d", gpucore.ErrResourceNotFound, id))
		return
	}
	e.pass.SetPipeline(pipeline)
}

func (e *computePassEncoder) SetBindGroup(index uint32, id gpucore.BindGroupID) {
	if e.pass == nil {
		return
	}
	e.adapter.mu.Lock()
	defer e.adapter.mu.Unlock()
	group, ok := e.adapter.bindGroups[id]
	if !ok {
		e.adapter.fail(fmt.Errorf("%w: bind group %d at index %d", gpucore.ErrResourceNotFound, id, index))
		return
	}
	e.pass.SetBindGroup(index, group, nil)
}

func (e *computePassEncoder) Dispatch(x, y, z uint32) {
	if e.pass == nil {
		return
	}
	e.pass.Dispatch(x, y, z)
}

func (e *computePassEncoder) End() {
	if e.pass == nil {
		return
	}
	e.pass.End()
	e.pass = nil
}

// fail records the first encoding error. a.mu must be held.
func (a *HALAdapter) fail(err error) {
	if a.encodeErr == nil {
		a.encodeErr = err
	}
}
