package zoom

import (
	"math"
	"testing"
	"time"

	"github.com/gogpu/gpucontext"
	"golang.org/x/image/math/f32"
)

const eps = 1e-9

func near(a, b float64) bool { return math.Abs(a-b) < eps }

func sameExtents(a, b Extents) bool {
	return near(a.MinX, b.MinX) && near(a.MinY, b.MinY) && near(a.MaxX, b.MaxX) && near(a.MaxY, b.MaxY)
}

// =============================================================================
// Extents Tests
// =============================================================================

func TestRemap(t *testing.T) {
	e := DefaultExtents()
	tests := []struct {
		name   string
		x, y   float64
		fx, fy float64
	}{
		{"top-left", 0, 0, -1, 1},
		{"bottom-right", 800, 600, 1, -1},
		{"centre", 400, 300, 0, 0},
		{"quarter", 200, 150, -0.5, 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx, fy := Remap(tt.x, tt.y, 800, 600, e)
			if !near(fx, tt.fx) || !near(fy, tt.fy) {
				t.Errorf("expected (%v, %v), got (%v, %v)", tt.fx, tt.fy, fx, fy)
			}
		})
	}
}

func TestRemapEmptyCanvas(t *testing.T) {
	e := Extents{MinX: 2, MinY: 4, MaxX: 6, MaxY: 8}
	fx, fy := Remap(10, 10, 0, 0, e)
	if fx != 4 || fy != 6 {
		t.Errorf("expected centre (4, 6), got (%v, %v)", fx, fy)
	}
}

func TestZoomInAtCentre(t *testing.T) {
	got := DefaultExtents().In(0, 0)
	h := 1 / ZoomInDivisor
	want := Extents{MinX: -h, MinY: -h, MaxX: h, MaxY: h}
	if !sameExtents(got, want) {
		t.Errorf("expected %+v, got %+v", want, got)
	}
}

func TestZoomOutCentredOnPoint(t *testing.T) {
	got := DefaultExtents().Out(0.5, -0.25)
	want := Extents{MinX: 0.5 - 1.8, MinY: -0.25 - 1.8, MaxX: 0.5 + 1.8, MaxY: -0.25 + 1.8}
	if !sameExtents(got, want) {
		t.Errorf("expected %+v, got %+v", want, got)
	}
}

func TestVec4RoundTrip(t *testing.T) {
	e := Extents{MinX: -2, MinY: -1.5, MaxX: 0.5, MaxY: 1.5}
	v := e.Vec4()
	if v != (f32.Vec4{-2, -1.5, 0.5, 1.5}) {
		t.Errorf("unexpected vec4 %v", v)
	}
	if got := FromVec4(v); got != e {
		t.Errorf("expected %+v, got %+v", e, got)
	}
}

// =============================================================================
// Animator Tests
// =============================================================================

func TestAnimatorTiming(t *testing.T) {
	start := DefaultExtents()
	target := start.In(0, 0)
	a := NewAnimator(start, 0)
	a.SetTarget(target)

	half := a.Tick(500 * time.Millisecond)
	if want := start.Lerp(target, 0.5); !sameExtents(half, want) {
		t.Errorf("at 0.5s expected midpoint %+v, got %+v", want, half)
	}
	if !a.Animating() {
		t.Error("expected animation in progress at 0.5s")
	}

	done := a.Tick(500 * time.Millisecond)
	if done != target {
		t.Errorf("at 1s expected exact target %+v, got %+v", target, done)
	}
	if a.Animating() {
		t.Error("expected animation finished at 1s")
	}

	if got := a.Tick(3 * time.Second); got != target {
		t.Errorf("expected to stay on target, got %+v", got)
	}
}

func TestAnimatorRestartsFromCurrent(t *testing.T) {
	start := DefaultExtents()
	a := NewAnimator(start, time.Second)
	a.SetTarget(start.In(0, 0))
	mid := a.Tick(250 * time.Millisecond)

	second := start.Out(0, 0)
	a.SetTarget(second)
	if a.Current() != mid {
		t.Fatalf("expected restart from %+v, got %+v", mid, a.Current())
	}
	got := a.Tick(500 * time.Millisecond)
	if want := mid.Lerp(second, 0.5); !sameExtents(got, want) {
		t.Errorf("expected %+v, got %+v", want, got)
	}
	if a.Target() != second {
		t.Errorf("expected latest target to win")
	}
}

func TestAnimatorAtRest(t *testing.T) {
	e := DefaultExtents()
	a := NewAnimator(e, time.Second)
	if a.Animating() {
		t.Error("expected new animator at rest")
	}
	if got := a.Tick(time.Millisecond); got != e {
		t.Errorf("expected %+v, got %+v", e, got)
	}
}

// =============================================================================
// Controller Tests
// =============================================================================

func TestControllerCentreClick(t *testing.T) {
	c := NewController(DefaultExtents(), 1000, 1000)
	used := c.HandlePointer(gpucontext.PointerEvent{Type: gpucontext.PointerUp, X: 500, Y: 500, Button: gpucontext.ButtonLeft})
	if !used {
		t.Fatal("expected left PointerUp to be used")
	}

	got := c.Tick(time.Second)
	h := 1 / ZoomInDivisor
	if want := (Extents{MinX: -h, MinY: -h, MaxX: h, MaxY: h}); !sameExtents(got, want) {
		t.Errorf("expected %+v, got %+v", want, got)
	}
}

func TestControllerIgnoresOtherEvents(t *testing.T) {
	c := NewController(DefaultExtents(), 100, 100)
	events := []gpucontext.PointerEvent{
		{Type: gpucontext.PointerDown, Button: gpucontext.ButtonLeft},
		{Type: gpucontext.PointerMove, Button: gpucontext.ButtonNone},
		{Type: gpucontext.PointerUp, Button: gpucontext.ButtonMiddle},
	}
	for _, ev := range events {
		if c.HandlePointer(ev) {
			t.Errorf("expected event %+v to be ignored", ev)
		}
	}
	if c.Target() != DefaultExtents() {
		t.Errorf("expected target unchanged, got %+v", c.Target())
	}
}

func TestControllerMouseRelease(t *testing.T) {
	c := NewController(DefaultExtents(), 200, 200)
	c.HandleMouseRelease(gpucontext.MouseButtonRight, 0, 0)

	want := DefaultExtents().Out(-1, 1)
	if got := c.Target(); !sameExtents(got, want) {
		t.Errorf("expected %+v, got %+v", want, got)
	}
}

func TestControllerUsesExtentsAtClickTime(t *testing.T) {
	c := NewController(DefaultExtents(), 100, 100)
	c.Click(50, 50, true)
	mid := c.Tick(500 * time.Millisecond)

	// Top-left corner of the partially zoomed view.
	got := c.Click(0, 0, true)
	want := mid.In(mid.MinX, mid.MaxY)
	if !sameExtents(got, want) {
		t.Errorf("expected %+v, got %+v", want, got)
	}
}
