package computeplay

import (
	"fmt"
	"strings"

	"github.com/gogpu/computeplay/internal/shader"
)

// Variant selects which simulation the playground runs.
type Variant int

const (
	// VariantPhysarum moves agents that deposit trails, then blurs and
	// evaporates the trail map.
	VariantPhysarum Variant = iota

	// VariantBlur seeds noise once and diffuses it every frame.
	VariantBlur

	// VariantFractal renders a Newton fractal over the zoomable view.
	VariantFractal
)

// String returns the lowercase variant name.
func (v Variant) String() string {
	switch v {
	case VariantPhysarum:
		return "physarum"
	case VariantBlur:
		return "blur"
	case VariantFractal:
		return "fractal"
	default:
		return fmt.Sprintf("Variant(%d)", int(v))
	}
}

// ParseVariant parses a name as returned by String.
func ParseVariant(name string) (Variant, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "physarum":
		return VariantPhysarum, nil
	case "blur":
		return VariantBlur, nil
	case "fractal":
		return VariantFractal, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownVariant, name)
	}
}

// entry names one shader entry point.
type entry struct {
	source string
	name   string
}

// program describes the pipelines and resources a variant needs.
type program struct {
	label  string
	init   *entry
	update *entry
	image  *entry

	agents         bool
	initOverAgents bool
	zoom           bool
}

func (v Variant) program() (program, error) {
	switch v {
	case VariantPhysarum:
		return program{
			label:          "physarum",
			init:           &entry{shader.Physarum, "init"},
			update:         &entry{shader.Physarum, "update"},
			image:          &entry{shader.Blur, "image"},
			agents:         true,
			initOverAgents: true,
		}, nil
	case VariantBlur:
		return program{
			label: "blur",
			init:  &entry{shader.Blur, "init"},
			image: &entry{shader.Blur, "image"},
		}, nil
	case VariantFractal:
		return program{
			label: "fractal",
			image: &entry{shader.Fractal, "image"},
			zoom:  true,
		}, nil
	default:
		return program{}, fmt.Errorf("%w: %v", ErrUnknownVariant, v)
	}
}
