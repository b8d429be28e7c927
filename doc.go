// Package computeplay runs compute-shader simulations on a GPU texture pair.
//
// # Overview
//
// A [Playground] owns two same-sized RGBA8 storage textures and alternates
// between them every frame. Each frame records up to two compute passes:
// an agent pass that seeds or moves agents, and an image pass that
// post-processes the trail map. The image pass of one frame writes the
// texture the next frame reads.
//
// Three variants are built in:
//   - physarum: agents sense and deposit trails, the image pass diffuses them
//   - blur: noise seeded once, then diffused every frame
//   - fractal: a Newton fractal over a view rectangle with click-to-zoom
//
// # Quick Start
//
//	import (
//	    "github.com/gogpu/computeplay"
//	    "github.com/gogpu/computeplay/backend/native"
//	    _ "github.com/gogpu/wgpu/hal/allbackends"
//	)
//
//	adapter, err := native.Open("")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer adapter.Close()
//
//	pg, err := computeplay.New(adapter, computeplay.Config{Variant: computeplay.VariantPhysarum})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer pg.Close()
//
//	for range 600 {
//	    if err := pg.Frame(16 * time.Millisecond); err != nil {
//	        log.Fatal(err)
//	    }
//	}
//
// # Frame Lifecycle
//
// Pipelines compile on background goroutines. Until they are ready the
// frame node stays in Loading and frames record nothing. Once the init
// pipeline is ready the node runs the init dispatch for one frame, then
// moves to Update for good. Frames that cannot bind their resources are
// skipped and retried; they never panic.
//
// # Backends
//
// The package talks to the GPU through [gpucore.GPUAdapter]. The
// backend/native package implements it on gogpu/wgpu; gpucore/gpucoretest
// provides an in-memory adapter for tests.
//
// # Logging and Metrics
//
// Logging is silent until [SetLogger] is called. Prometheus instruments
// are recorded when a collector is passed with [WithMetrics].
package computeplay
