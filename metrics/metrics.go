// Package metrics exposes the playground's Prometheus instruments.
//
// A nil *Collector is valid and records nothing, so callers never need to
// check whether metrics are enabled.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Skip reasons for FramesSkipped.
const (
	ReasonResource = "resource"
	ReasonBackend  = "backend"
)

// Collector groups the playground instruments on one registry.
type Collector struct {
	registry *prometheus.Registry

	frames         prometheus.Counter
	framesSkipped  *prometheus.CounterVec
	dispatches     *prometheus.CounterVec
	bindsetRebuild *prometheus.CounterVec
	nodeState      prometheus.Gauge
	resizes        prometheus.Counter
	frameSeconds   prometheus.Histogram
}

// NewCollector registers the instruments on reg. If reg is nil a fresh
// registry is created.
func NewCollector(reg *prometheus.Registry) *Collector {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)

	return &Collector{
		registry: reg,
		frames: f.NewCounter(prometheus.CounterOpts{
			Name: "computeplay_frames_total",
			Help: "Frames whose passes were submitted",
		}),
		framesSkipped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "computeplay_frames_skipped_total",
			Help: "Frames skipped, by reason",
		}, []string{"reason"}),
		dispatches: f.NewCounterVec(prometheus.CounterOpts{
			Name: "computeplay_dispatches_total",
			Help: "Compute dispatches submitted, by pass",
		}, []string{"pass"}),
		bindsetRebuild: f.NewCounterVec(prometheus.CounterOpts{
			Name: "computeplay_bindset_rebuilds_total",
			Help: "Bind set rebuilds, by set",
		}, []string{"set"}),
		nodeState: f.NewGauge(prometheus.GaugeOpts{
			Name: "computeplay_node_state",
			Help: "Frame node state: 0 Loading, 1 Init, 2 Update",
		}),
		resizes: f.NewCounter(prometheus.CounterOpts{
			Name: "computeplay_texture_resizes_total",
			Help: "Texture pair reallocations caused by resize events",
		}),
		frameSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "computeplay_frame_seconds",
			Help:    "CPU time spent recording a frame",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 12),
		}),
	}
}

// Registry returns the registry the instruments live on.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// FrameDone counts a submitted frame and observes how long it took to record.
func (c *Collector) FrameDone(d time.Duration) {
	if c == nil {
		return
	}
	c.frames.Inc()
	c.frameSeconds.Observe(d.Seconds())
}

// FrameSkipped counts a skipped frame.
func (c *Collector) FrameSkipped(reason string) {
	if c == nil {
		return
	}
	c.framesSkipped.WithLabelValues(reason).Inc()
}

// Dispatch counts a submitted dispatch.
func (c *Collector) Dispatch(pass string) {
	if c == nil {
		return
	}
	c.dispatches.WithLabelValues(pass).Inc()
}

// BindSetRebuilt counts a rebuilt bind set ("texture" or "agents").
func (c *Collector) BindSetRebuilt(set string) {
	if c == nil {
		return
	}
	c.bindsetRebuild.WithLabelValues(set).Inc()
}

// NodeState records the frame node state.
func (c *Collector) NodeState(state int) {
	if c == nil {
		return
	}
	c.nodeState.Set(float64(state))
}

// Resized counts a texture reallocation.
func (c *Collector) Resized() {
	if c == nil {
		return
	}
	c.resizes.Inc()
}
