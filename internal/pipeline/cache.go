// Package pipeline compiles compute pipelines in the background and lets the
// frame loop poll their status without blocking.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/gogpu/computeplay/gpucore"
	"github.com/gogpu/computeplay/internal/shader"
)

// Pipeline cache errors.
var (
	// ErrEntryPointNotFound is reported when the shader has no compute entry
	// point with the requested name.
	ErrEntryPointNotFound = errors.New("pipeline: entry point not found")

	// ErrClosed is reported for pipelines queued on a closed cache.
	ErrClosed = errors.New("pipeline: cache closed")

	// ErrUnknownID is returned for IDs the cache never issued.
	ErrUnknownID = errors.New("pipeline: unknown id")
)

// DefaultWorkers bounds concurrent compilations when WithWorkers is not given.
const DefaultWorkers = 2

// State is the compile status of a queued pipeline.
type State int32

// Pipeline states. A pipeline moves Queued -> Creating -> Ok or Err.
const (
	StateQueued State = iota
	StateCreating
	StateOk
	StateErr
)

func (s State) String() string {
	switch s {
	case StateQueued:
		return "Queued"
	case StateCreating:
		return "Creating"
	case StateOk:
		return "Ok"
	case StateErr:
		return "Err"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// ID identifies a queued pipeline. The zero ID is never issued.
type ID uint32

// Descriptor names a compute entry point of a WGSL source compiled against
// a pipeline layout.
type Descriptor struct {
	Label      string
	Layout     gpucore.PipelineLayoutID
	Source     string
	EntryPoint string
}

// CompileFunc turns WGSL source into a compiled module.
type CompileFunc func(label, source string) (*shader.Module, error)

// Option configures a Cache.
type Option func(*Cache)

// WithWorkers bounds the number of concurrent compilations.
// If n <= 0, DefaultWorkers is used.
func WithWorkers(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.workers = n
		}
	}
}

// WithCompiler replaces the WGSL compiler. Defaults to shader.Compile.
func WithCompiler(f CompileFunc) Option {
	return func(c *Cache) {
		if f != nil {
			c.compile = f
		}
	}
}

// WithLogger logs this cache's compile results to l instead of the package
// logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) {
		c.log = l
	}
}

type key struct {
	layout     gpucore.PipelineLayoutID
	source     string
	entryPoint string
}

type entry struct {
	desc     Descriptor
	state    State
	pipeline gpucore.ComputePipelineID
	err      error
}

type module struct {
	once sync.Once
	id   gpucore.ShaderModuleID
	info *shader.Module
	err  error
}

// Cache queues compute pipelines and builds them on a bounded set of
// background goroutines. Identical descriptors share one pipeline and
// identical sources share one shader module.
//
// Thread Safety:
// Cache is safe for concurrent use.
type Cache struct {
	adapter gpucore.GPUAdapter
	compile CompileFunc
	workers int
	log     *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	group  errgroup.Group

	mu      sync.Mutex
	entries []*entry
	index   map[key]ID
	modules map[string]*module
	closed  bool
}

// New creates an empty cache building pipelines on adapter.
func New(adapter gpucore.GPUAdapter, opts ...Option) *Cache {
	c := &Cache{
		adapter: adapter,
		compile: shader.Compile,
		workers: DefaultWorkers,
		index:   make(map[key]ID),
		modules: make(map[string]*module),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.group.SetLimit(c.workers)
	return c
}

// Queue registers a pipeline and returns immediately. Queuing an identical
// descriptor again returns the existing ID. Compilation starts on the next
// Process call.
func (c *Cache) Queue(desc Descriptor) ID {
	c.mu.Lock()
	defer c.mu.Unlock()

	k := key{layout: desc.Layout, source: desc.Source, entryPoint: desc.EntryPoint}
	if id, ok := c.index[k]; ok {
		return id
	}
	e := &entry{desc: desc, state: StateQueued}
	if c.closed {
		e.state, e.err = StateErr, ErrClosed
	}
	c.entries = append(c.entries, e)
	id := ID(len(c.entries))
	c.index[k] = id
	return id
}

// Process hands queued pipelines to the background workers. Pipelines that
// do not fit under the worker limit stay queued until a later call.
// It returns the number of compilations started.
func (c *Cache) Process() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0
	}

	started := 0
	for i, e := range c.entries {
		if e.state != StateQueued {
			continue
		}
		id := ID(i + 1)
		e.state = StateCreating
		if !c.group.TryGo(func() error {
			c.build(id)
			return nil
		}) {
			e.state = StateQueued
			break
		}
		started++
	}
	return started
}

// State returns the status of a pipeline.
func (c *Cache) State(id ID) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.lookup(id)
	if e == nil {
		return StateErr
	}
	return e.state
}

// Pipeline returns the compiled pipeline once its state is StateOk.
func (c *Cache) Pipeline(id ID) (gpucore.ComputePipelineID, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.lookup(id)
	if e == nil || e.state != StateOk {
		return gpucore.InvalidID, false
	}
	return e.pipeline, true
}

// Err returns the failure of a pipeline in StateErr, or nil.
func (c *Cache) Err(id ID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.lookup(id)
	if e == nil {
		return fmt.Errorf("%w: %d", ErrUnknownID, id)
	}
	return e.err
}

// Close stops accepting work, waits for running compilations and destroys
// every pipeline and shader module the cache created.
func (c *Cache) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	_ = c.group.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.entries {
		if e.state == StateOk {
			c.adapter.DestroyComputePipeline(e.pipeline)
		}
		if e.state != StateErr {
			e.state, e.pipeline, e.err = StateErr, gpucore.InvalidID, ErrClosed
		}
	}
	for _, m := range c.modules {
		if m.err == nil && m.id != gpucore.InvalidID {
			c.adapter.DestroyShaderModule(m.id)
		}
	}
	c.modules = make(map[string]*module)
}

func (c *Cache) lookup(id ID) *entry {
	if id == 0 || int(id) > len(c.entries) {
		return nil
	}
	return c.entries[id-1]
}

// build runs on a worker goroutine.
func (c *Cache) build(id ID) {
	c.mu.Lock()
	e := c.entries[id-1]
	desc := e.desc
	mod, ok := c.modules[desc.Source]
	if !ok {
		mod = &module{}
		c.modules[desc.Source] = mod
	}
	c.mu.Unlock()

	pipeline, err := c.create(desc, mod)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		e.state, e.err = StateErr, err
		c.logger().Warn("pipeline: compile failed", "label", desc.Label, "entry", desc.EntryPoint, "err", err)
		return
	}
	e.state, e.pipeline = StateOk, pipeline
	c.logger().Debug("pipeline: ready", "label", desc.Label, "entry", desc.EntryPoint)
}

func (c *Cache) logger() *slog.Logger {
	if c.log != nil {
		return c.log
	}
	return slogger()
}

func (c *Cache) create(desc Descriptor, mod *module) (gpucore.ComputePipelineID, error) {
	if err := c.ctx.Err(); err != nil {
		return gpucore.InvalidID, ErrClosed
	}

	mod.once.Do(func() {
		info, err := c.compile(desc.Label, desc.Source)
		if err != nil {
			mod.err = err
			return
		}
		id, err := c.adapter.CreateShaderModule(info.SPIRV, desc.Label)
		if err != nil {
			mod.err = fmt.Errorf("pipeline: create shader module %s: %w", desc.Label, err)
			return
		}
		mod.info, mod.id = info, id
	})
	if mod.err != nil {
		return gpucore.InvalidID, mod.err
	}

	if _, ok := mod.info.EntryPoint(desc.EntryPoint); !ok {
		return gpucore.InvalidID, fmt.Errorf("%w: %q in %s", ErrEntryPointNotFound, desc.EntryPoint, desc.Label)
	}

	id, err := c.adapter.CreateComputePipeline(&gpucore.ComputePipelineDesc{
		Label:        desc.Label + "_" + desc.EntryPoint,
		Layout:       desc.Layout,
		ShaderModule: mod.id,
		EntryPoint:   desc.EntryPoint,
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("pipeline: create %s/%s: %w", desc.Label, desc.EntryPoint, err)
	}
	return id, nil
}
