package computeplay

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/gogpu/computeplay/gpucore"
	"github.com/gogpu/computeplay/internal/binder"
	"github.com/gogpu/computeplay/internal/graph"
	"github.com/gogpu/computeplay/internal/pipeline"
	"github.com/gogpu/computeplay/internal/texture"
	"github.com/gogpu/computeplay/metrics"
	"github.com/gogpu/computeplay/params"
	"github.com/gogpu/computeplay/zoom"
	"github.com/gogpu/gpucontext"
)

var (
	// ErrUnknownVariant is returned for an unrecognized variant.
	ErrUnknownVariant = errors.New("computeplay: unknown variant")

	// ErrClosed is returned by Frame after Close.
	ErrClosed = errors.New("computeplay: playground closed")
)

// Playground owns every resource of one running simulation: the texture
// pair, parameter buffers, bind sets, pipelines and the frame node.
//
// Frame must be called from a single goroutine. Resize, HandlePointer and
// the parameter store may be used from any goroutine; their effects apply
// at the start of the next frame.
type Playground struct {
	adapter gpucore.GPUAdapter
	cfg     Config
	prog    program
	log     *slog.Logger
	metrics *metrics.Collector

	store    *params.Store
	textures *texture.Manager
	layouts  *binder.Layouts
	binder   *binder.Binder
	cache    *pipeline.Cache
	node     *graph.Node
	zoom     *zoom.Controller
	queued   []pipeline.ID

	mu        sync.Mutex
	resizeW   int
	resizeH   int
	hasResize bool

	frame  uint64
	output gpucore.TextureID
	closed bool
}

// New creates a playground on adapter and queues its pipelines for
// compilation. The adapter stays owned by the caller.
func New(adapter gpucore.GPUAdapter, cfg Config, opts ...Option) (*Playground, error) {
	cfg = cfg.withDefaults()
	prog, err := cfg.Variant.program()
	if err != nil {
		return nil, err
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}
	log := o.logger
	if log == nil {
		log = Logger()
	}
	propagateLogger(adapter, log)

	p := &Playground{
		adapter: adapter,
		cfg:     cfg,
		prog:    prog,
		log:     log,
		metrics: o.metrics,
	}

	sim := params.DefaultSimulation()
	sim.Diffusion = cfg.Diffusion
	sim.Evaporation = cfg.Evaporation
	p.store = params.NewStore(sim, cfg.Sensor, cfg.Behavior)
	p.store.UpdateSize(cfg.Width, cfg.Height)

	if prog.agents {
		seed := o.seed
		if !o.seeded {
			seed = rand.Uint64()
		}
		rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)) //nolint:gosec // not security sensitive
		p.store.SetAgents(params.NewAgentGrid(cfg.AgentGridWidth, cfg.AgentGridHeight, rng))
	}
	if prog.zoom {
		view := zoom.DefaultExtents()
		p.zoom = zoom.NewController(view, cfg.Width, cfg.Height)
		p.store.SetExtents(view.Vec4())
	}

	if p.textures, err = texture.NewManager(adapter, cfg.Width, cfg.Height); err != nil {
		return nil, fmt.Errorf("computeplay: create textures: %w", err)
	}
	if p.layouts, err = binder.NewLayouts(adapter, prog.agents); err != nil {
		p.Close()
		return nil, fmt.Errorf("computeplay: create layouts: %w", err)
	}
	if p.binder, err = binder.New(adapter, p.layouts); err != nil {
		p.Close()
		return nil, fmt.Errorf("computeplay: create parameter buffers: %w", err)
	}

	if o.logger != nil {
		p.binder.SetLogger(o.logger)
	}

	cacheOpts := []pipeline.Option{pipeline.WithWorkers(cfg.Workers)}
	if o.logger != nil {
		cacheOpts = append(cacheOpts, pipeline.WithLogger(o.logger))
	}
	if o.compiler != nil {
		cacheOpts = append(cacheOpts, pipeline.WithCompiler(o.compiler))
	}
	p.cache = pipeline.New(adapter, cacheOpts...)

	p.node = graph.NewNode(graph.Config{
		Init:           p.queue(prog.init),
		Update:         p.queue(prog.update),
		Image:          p.queue(prog.image),
		InitOverAgents: prog.initOverAgents,
		SyncPasses:     o.syncPasses,
	})
	p.metrics.NodeState(int(p.node.State()))

	p.log.Info("computeplay: playground created",
		"variant", cfg.Variant.String(),
		"width", cfg.Width,
		"height", cfg.Height,
		"agents", p.agentCount())
	return p, nil
}

func (p *Playground) queue(e *entry) pipeline.ID {
	if e == nil {
		return 0
	}
	id := p.cache.Queue(pipeline.Descriptor{
		Label:      p.prog.label,
		Layout:     p.layouts.Pipeline,
		Source:     e.source,
		EntryPoint: e.name,
	})
	p.queued = append(p.queued, id)
	return id
}

// Compiled reports whether every pipeline has finished compiling, and
// returns the first compile error.
func (p *Playground) Compiled() (bool, error) {
	done := true
	for _, id := range p.queued {
		switch p.cache.State(id) {
		case pipeline.StateErr:
			return true, p.cache.Err(id)
		case pipeline.StateOk:
		default:
			done = false
		}
	}
	return done, nil
}

func (p *Playground) agentCount() int {
	agents, _ := p.store.Agents()
	return len(agents)
}

// Resize requests new texture dimensions. Requests with either dimension at
// or below 100 are ignored when applied. Only the latest request before a
// frame takes effect.
func (p *Playground) Resize(width, height int) {
	p.mu.Lock()
	p.resizeW, p.resizeH, p.hasResize = width, height, true
	p.mu.Unlock()
}

// HandlePointer forwards a pointer event to the zoom controller. It reports
// whether the event changed the zoom target; variants without zoom ignore
// every event.
func (p *Playground) HandlePointer(ev gpucontext.PointerEvent) bool {
	if p.zoom == nil {
		return false
	}
	return p.zoom.HandlePointer(ev)
}

// Attach registers resize and pointer callbacks on a host event source.
// Pointer events are taken from OnPointer when the source implements
// gpucontext.PointerEventSource, otherwise from OnMouseRelease.
func (p *Playground) Attach(src gpucontext.EventSource) {
	src.OnResize(p.Resize)
	if p.zoom == nil {
		return
	}
	if pes, ok := src.(gpucontext.PointerEventSource); ok {
		pes.OnPointer(func(ev gpucontext.PointerEvent) { p.HandlePointer(ev) })
		return
	}
	src.OnMouseRelease(p.zoom.HandleMouseRelease)
}

// Frame advances the simulation by dt and records this frame's passes.
//
//  1. Apply the latest resize request.
//  2. Update time, size and zoom parameters.
//  3. Start queued pipeline compilations and advance the frame node.
//  4. Prepare bind sets. A missing resource skips the frame without error.
//  5. Record and submit the passes.
func (p *Playground) Frame(dt time.Duration) error {
	if p.closed {
		return ErrClosed
	}
	start := time.Now()

	p.applyResize()
	p.store.UpdateDeltaTime(dt)
	if p.zoom != nil {
		p.store.SetExtents(p.zoom.Tick(dt).Vec4())
	}

	p.cache.Process()
	prev := p.node.State()
	if state := p.node.Update(p.cache); state != prev {
		p.log.Info("computeplay: node state changed", "from", prev.String(), "to", state.String())
		p.metrics.NodeState(int(state))
	}

	sets, report, err := p.binder.Prepare(p.textures.Pair(), p.textures.Version(), p.store.Snapshot(), p.store)
	if report.Textures {
		p.metrics.BindSetRebuilt("texture")
	}
	if report.Agents {
		p.metrics.BindSetRebuilt("agents")
	}
	if err != nil {
		if errors.Is(err, binder.ErrResourceNotReady) {
			p.log.Warn("computeplay: frame skipped", "frame", p.frame, "err", err)
			p.metrics.FrameSkipped(metrics.ReasonResource)
			return nil
		}
		return fmt.Errorf("computeplay: prepare bind sets: %w", err)
	}

	dispatches, err := p.node.Run(p.adapter, p.cache, p.frame, sets)
	if err != nil {
		p.metrics.FrameSkipped(metrics.ReasonBackend)
		return fmt.Errorf("computeplay: frame %d: %w", p.frame, err)
	}
	if len(dispatches) == 0 {
		return nil
	}

	for _, d := range dispatches {
		p.metrics.Dispatch(d.Pass.String())
		if d.Pass == graph.PassImage {
			p.output = graph.Output(p.frame, sets.Pair)
		}
	}
	p.frame++
	p.metrics.FrameDone(time.Since(start))
	return nil
}

func (p *Playground) applyResize() {
	p.mu.Lock()
	w, h, ok := p.resizeW, p.resizeH, p.hasResize
	p.hasResize = false
	p.mu.Unlock()
	if !ok {
		return
	}

	pair, replaced, err := p.textures.Resize(w, h)
	if err != nil {
		p.log.Warn("computeplay: resize failed, keeping textures", "width", w, "height", h, "err", err)
		return
	}
	if !replaced {
		p.log.Debug("computeplay: resize ignored", "width", w, "height", h)
		return
	}

	p.store.UpdateSize(pair.Width, pair.Height)
	if p.zoom != nil {
		p.zoom.SetCanvasSize(pair.Width, pair.Height)
	}
	p.output = gpucore.InvalidID
	p.metrics.Resized()
	p.log.Info("computeplay: textures resized", "width", pair.Width, "height", pair.Height)
}

// Output returns the texture written by the most recent image pass, or
// InvalidID before the first one and right after a resize.
func (p *Playground) Output() gpucore.TextureID { return p.output }

// Size returns the current texture dimensions.
func (p *Playground) Size() (width, height int) {
	pair := p.textures.Pair()
	return pair.Width, pair.Height
}

// State returns the frame node state.
func (p *Playground) State() graph.State { return p.node.State() }

// Frames returns the number of frames that recorded at least one pass.
func (p *Playground) Frames() uint64 { return p.frame }

// Params returns the live parameter store. Editors may change rates,
// sensor and behavior parameters, or replace the agent list, at any time.
func (p *Playground) Params() *params.Store { return p.store }

// Zoom returns the zoom controller, or nil for variants without zoom.
func (p *Playground) Zoom() *zoom.Controller { return p.zoom }

// Variant returns the running variant.
func (p *Playground) Variant() Variant { return p.cfg.Variant }

// Close releases every GPU resource the playground created. It waits for
// in-flight compilations. The adapter itself is not closed.
func (p *Playground) Close() {
	if p.closed {
		return
	}
	p.closed = true
	if p.cache != nil {
		p.cache.Close()
	}
	if p.binder != nil {
		p.binder.Close()
	}
	if p.layouts != nil {
		p.layouts.Close()
	}
	if p.textures != nil {
		p.textures.Close()
	}
	p.log.Debug("computeplay: playground closed", "frames", p.frame)
}
