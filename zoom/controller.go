package zoom

import (
	"sync"
	"time"

	"github.com/gogpu/gpucontext"
)

// Controller turns pointer releases into zoom targets. Events may arrive on
// the UI goroutine while Tick runs on the frame goroutine.
type Controller struct {
	mu       sync.Mutex
	animator *Animator
	width    int
	height   int
}

// NewController returns a controller showing e on a width×height canvas.
func NewController(e Extents, width, height int) *Controller {
	return &Controller{animator: NewAnimator(e, DefaultDuration), width: width, height: height}
}

// SetCanvasSize updates the size used to remap screen positions.
func (c *Controller) SetCanvasSize(width, height int) {
	c.mu.Lock()
	c.width, c.height = width, height
	c.mu.Unlock()
}

// Click zooms at the screen position (x, y): in when primary is set,
// out otherwise. It returns the new target.
func (c *Controller) Click(x, y float64, primary bool) Extents {
	c.mu.Lock()
	defer c.mu.Unlock()

	cur := c.animator.Current()
	fx, fy := Remap(x, y, c.width, c.height, cur)
	target := cur.Out(fx, fy)
	if primary {
		target = cur.In(fx, fy)
	}
	c.animator.SetTarget(target)
	return target
}

// HandlePointer handles a pointer event. Only PointerUp with the left or
// right button zooms; it reports whether the event was used.
func (c *Controller) HandlePointer(ev gpucontext.PointerEvent) bool {
	if ev.Type != gpucontext.PointerUp {
		return false
	}
	switch ev.Button {
	case gpucontext.ButtonLeft:
		c.Click(ev.X, ev.Y, true)
	case gpucontext.ButtonRight:
		c.Click(ev.X, ev.Y, false)
	default:
		return false
	}
	return true
}

// HandleMouseRelease has the signature of gpucontext.EventSource.OnMouseRelease
// callbacks.
func (c *Controller) HandleMouseRelease(button gpucontext.MouseButton, x, y float64) {
	switch button {
	case gpucontext.MouseButtonLeft:
		c.Click(x, y, true)
	case gpucontext.MouseButtonRight:
		c.Click(x, y, false)
	}
}

// Tick advances the animation and returns the extents for this frame.
func (c *Controller) Tick(dt time.Duration) Extents {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.animator.Tick(dt)
}

// Target returns the current zoom target.
func (c *Controller) Target() Extents {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.animator.Target()
}
