// Package gpucore provides the GPU abstractions shared by the computeplay
// orchestrator and its backends.
//
// This package defines the [GPUAdapter] interface. The orchestrator records
// compute passes against it using opaque resource IDs, and thin adapters
// translate those calls to a concrete backend:
//   - backend/hal (gogpu/wgpu HAL: Vulkan, Metal, DX12, GL, noop)
//   - gpucore/gpucoretest (recording fake for tests)
//
// # Architecture
//
//	               +------------------+
//	               |   computeplay    |
//	               | (Playground)     |
//	               +--------+---------+
//	                        |
//	               +--------v---------+
//	               |     gpucore      |
//	               |   (GPUAdapter)   |
//	               +--------+---------+
//	                        |
//	         +--------------+--------------+
//	         |                             |
//	+--------v--------+          +--------v--------+
//	|   backend/hal   |          |  gpucoretest    |
//	|  (hal.Device)   |          |  (recording)    |
//	+-----------------+          +-----------------+
//
// # Resource IDs
//
// Resources are referred to by opaque uint64 IDs. The zero value
// [InvalidID] never names a live resource. Adapters return
// [ErrResourceNotFound] (possibly wrapped) when an operation names an ID
// they do not know, which the orchestrator treats as "not ready yet".
//
// # Thread Safety
//
// Implementations of [GPUAdapter] must be safe for concurrent use: the
// pipeline cache creates shader modules and pipelines from background
// goroutines while the frame loop records passes.
package gpucore
