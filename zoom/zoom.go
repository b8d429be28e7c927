// Package zoom maps clicks on the canvas to a new view rectangle and animates
// the view towards it.
//
// Screen coordinates have their origin at the top-left corner with y growing
// downwards. View coordinates have y growing upwards, so screen row 0 maps to
// MaxY.
package zoom

import (
	"time"

	"golang.org/x/image/math/f32"
)

// Zoom factors applied to the half-extents of the view.
const (
	// ZoomInDivisor divides the half-extents on a primary click.
	ZoomInDivisor = 2.8

	// ZoomOutFactor multiplies the half-extents on a secondary click.
	ZoomOutFactor = 1.8

	// DefaultDuration is the length of the zoom animation.
	DefaultDuration = time.Second
)

// Extents is an axis-aligned view rectangle.
type Extents struct {
	MinX, MinY, MaxX, MaxY float64
}

// DefaultExtents is the [-1,1]² view.
func DefaultExtents() Extents {
	return Extents{MinX: -1, MinY: -1, MaxX: 1, MaxY: 1}
}

// FromVec4 converts (minX, minY, maxX, maxY).
func FromVec4(v f32.Vec4) Extents {
	return Extents{MinX: float64(v[0]), MinY: float64(v[1]), MaxX: float64(v[2]), MaxY: float64(v[3])}
}

// Vec4 returns (minX, minY, maxX, maxY) as uploaded to the shaders.
func (e Extents) Vec4() f32.Vec4 {
	return f32.Vec4{float32(e.MinX), float32(e.MinY), float32(e.MaxX), float32(e.MaxY)}
}

// Center returns the midpoint of the rectangle.
func (e Extents) Center() (x, y float64) {
	return (e.MinX + e.MaxX) / 2, (e.MinY + e.MaxY) / 2
}

// HalfSize returns half the width and half the height.
func (e Extents) HalfSize() (hw, hh float64) {
	return (e.MaxX - e.MinX) / 2, (e.MaxY - e.MinY) / 2
}

// Lerp interpolates linearly between e and to. t is clamped to [0, 1].
func (e Extents) Lerp(to Extents, t float64) Extents {
	switch {
	case t <= 0:
		return e
	case t >= 1:
		return to
	}
	mix := func(a, b float64) float64 { return a + (b-a)*t }
	return Extents{
		MinX: mix(e.MinX, to.MinX),
		MinY: mix(e.MinY, to.MinY),
		MaxX: mix(e.MaxX, to.MaxX),
		MaxY: mix(e.MaxY, to.MaxY),
	}
}

// Remap converts the screen position (x, y) on a width×height canvas to view
// coordinates inside e.
func Remap(x, y float64, width, height int, e Extents) (fx, fy float64) {
	if width <= 0 || height <= 0 {
		return e.Center()
	}
	fx = e.MinX + x/float64(width)*(e.MaxX-e.MinX)
	fy = e.MaxY - y/float64(height)*(e.MaxY-e.MinY)
	return fx, fy
}

// Around returns a rectangle centred on (cx, cy) with the half-extents of e
// multiplied by scale.
func (e Extents) Around(cx, cy, scale float64) Extents {
	hw, hh := e.HalfSize()
	hw *= scale
	hh *= scale
	return Extents{MinX: cx - hw, MinY: cy - hh, MaxX: cx + hw, MaxY: cy + hh}
}

// In returns the target after a primary click at view point (cx, cy).
func (e Extents) In(cx, cy float64) Extents {
	return e.Around(cx, cy, 1/ZoomInDivisor)
}

// Out returns the target after a secondary click at view point (cx, cy).
func (e Extents) Out(cx, cy float64) Extents {
	return e.Around(cx, cy, ZoomOutFactor)
}
