package computeplay

import (
	"log/slog"

	"github.com/gogpu/computeplay/internal/pipeline"
	"github.com/gogpu/computeplay/metrics"
	"github.com/gogpu/computeplay/params"
)

// Default sizes.
const (
	DefaultWidth     = 1000
	DefaultHeight    = 1000
	DefaultAgentGrid = 200
)

// Config describes a playground. Zero fields take their defaults.
type Config struct {
	// Variant selects the simulation. The zero value is VariantPhysarum.
	Variant Variant

	// Width and Height are the initial texture size.
	// If 0, default to DefaultWidth and DefaultHeight.
	Width  int
	Height int

	// AgentGridWidth and AgentGridHeight size the initial agent lattice of
	// the Physarum variant. If 0, default to DefaultAgentGrid.
	AgentGridWidth  int
	AgentGridHeight int

	// Workers bounds concurrent pipeline compilations.
	// If 0, defaults to 2.
	Workers int

	// Diffusion and Evaporation are the trail rates.
	// If 0, default to the params package defaults.
	Diffusion   float32
	Evaporation float32

	// Sensor and Behavior tune agent steering. A zero struct takes the
	// params package defaults.
	Sensor   params.SensorParams
	Behavior params.AgentBehaviorParams
}

func (c Config) withDefaults() Config {
	if c.Width == 0 {
		c.Width = DefaultWidth
	}
	if c.Height == 0 {
		c.Height = DefaultHeight
	}
	if c.AgentGridWidth == 0 {
		c.AgentGridWidth = DefaultAgentGrid
	}
	if c.AgentGridHeight == 0 {
		c.AgentGridHeight = DefaultAgentGrid
	}
	if c.Workers == 0 {
		c.Workers = pipeline.DefaultWorkers
	}
	sim := params.DefaultSimulation()
	if c.Diffusion == 0 {
		c.Diffusion = sim.Diffusion
	}
	if c.Evaporation == 0 {
		c.Evaporation = sim.Evaporation
	}
	if c.Sensor == (params.SensorParams{}) {
		c.Sensor = params.DefaultSensor()
	}
	if c.Behavior == (params.AgentBehaviorParams{}) {
		c.Behavior = params.DefaultBehavior()
	}
	return c
}

// Option configures a Playground during creation.
//
// Example:
//
//	reg := prometheus.NewRegistry()
//	pg, err := computeplay.New(adapter, computeplay.Config{},
//	    computeplay.WithMetrics(metrics.NewCollector(reg)),
//	    computeplay.WithSeed(42),
//	)
type Option func(*options)

type options struct {
	logger     *slog.Logger
	metrics    *metrics.Collector
	seed       uint64
	seeded     bool
	syncPasses bool
	compiler   pipeline.CompileFunc
}

// WithLogger overrides the package logger for one playground. It covers
// the playground, its bind sets and its pipeline compilations. Adapters that
// accept a logger receive it too, which for the native backend replaces that
// package's logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithMetrics records frame statistics into c.
func WithMetrics(c *metrics.Collector) Option {
	return func(o *options) {
		o.metrics = c
	}
}

// WithSeed makes the initial agent headings reproducible.
func WithSeed(seed uint64) Option {
	return func(o *options) {
		o.seed = seed
		o.seeded = true
	}
}

// WithSyncPasses submits the agent pass separately from the image pass.
// Use it on backends that do not order storage texture writes between
// passes of one submission.
func WithSyncPasses(enabled bool) Option {
	return func(o *options) {
		o.syncPasses = enabled
	}
}

// withCompiler replaces the shader compiler.
func withCompiler(f pipeline.CompileFunc) Option {
	return func(o *options) {
		o.compiler = f
	}
}
