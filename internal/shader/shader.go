// Package shader compiles the playground's WGSL sources to SPIR-V with naga
// and reports their compute entry points.
package shader

import (
	_ "embed"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/gogpu/naga"
	"github.com/gogpu/naga/ir"
)

// Embedded WGSL sources.
var (
	//go:embed shaders/physarum.wgsl
	Physarum string

	//go:embed shaders/blur.wgsl
	Blur string

	//go:embed shaders/fractal.wgsl
	Fractal string
)

// ErrInvalidSPIRV is returned when compiled output is not a whole number of
// 32-bit words.
var ErrInvalidSPIRV = errors.New("shader: SPIR-V length is not a multiple of 4")

// EntryPoint describes one compute entry point of a module.
type EntryPoint struct {
	Name      string
	Workgroup [3]uint32
}

// Module is a compiled shader.
type Module struct {
	Label       string
	SPIRV       []uint32
	EntryPoints map[string]EntryPoint
}

// EntryPoint looks up a compute entry point by name.
func (m *Module) EntryPoint(name string) (EntryPoint, bool) {
	ep, ok := m.EntryPoints[name]
	return ep, ok
}

// Compile parses, validates and compiles WGSL source to SPIR-V.
func Compile(label, source string) (*Module, error) {
	ast, err := naga.Parse(source)
	if err != nil {
		return nil, fmt.Errorf("shader %s: parse: %w", label, err)
	}
	lowered, err := naga.LowerWithSource(ast, source)
	if err != nil {
		return nil, fmt.Errorf("shader %s: lower: %w", label, err)
	}

	entryPoints := make(map[string]EntryPoint, len(lowered.EntryPoints))
	for _, ep := range lowered.EntryPoints {
		if ep.Stage != ir.StageCompute {
			continue
		}
		entryPoints[ep.Name] = EntryPoint{Name: ep.Name, Workgroup: ep.Workgroup}
	}

	spirvBytes, err := naga.CompileWithOptions(source, naga.DefaultOptions())
	if err != nil {
		return nil, fmt.Errorf("shader %s: compile: %w", label, err)
	}
	words, err := Words(spirvBytes)
	if err != nil {
		return nil, fmt.Errorf("shader %s: %w", label, err)
	}

	return &Module{Label: label, SPIRV: words, EntryPoints: entryPoints}, nil
}

// Words converts little-endian SPIR-V bytes to 32-bit words.
func Words(b []byte) ([]uint32, error) {
	if len(b)%4 != 0 {
		return nil, ErrInvalidSPIRV
	}
	words := make([]uint32, len(b)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(b[i*4:])
	}
	return words, nil
}
