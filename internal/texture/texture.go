// Package texture manages the ping-pong texture pair the compute passes
// read from and write to.
package texture

import (
	"errors"
	"fmt"

	"github.com/gogpu/computeplay/gpucore"
)

// MinDimension is the debounce threshold: resize requests with either
// dimension at or below it are ignored.
const MinDimension = 100

// Format is the texel format of both textures.
const Format = gpucore.TextureFormatRGBA8Unorm

// Usage allows a texture to be a compute storage target, a sampled source,
// an upload destination and a copy source for readback or presentation.
const Usage = gpucore.TextureUsageCopyDst | gpucore.TextureUsageCopySrc |
	gpucore.TextureUsageStorageBinding | gpucore.TextureUsageTextureBinding

// ErrInvalidSize is returned when creating a texture with a non-positive size.
var ErrInvalidSize = errors.New("texture: invalid size")

// Pair is two same-sized textures used in alternation.
type Pair struct {
	A, B          gpucore.TextureID
	Width, Height int
}

// Valid reports whether both textures are allocated.
func (p Pair) Valid() bool {
	return p.A != gpucore.InvalidID && p.B != gpucore.InvalidID
}

// Manager owns the texture pair and replaces it on resize.
// It is not safe for concurrent use; the frame loop owns it.
type Manager struct {
	adapter gpucore.GPUAdapter
	pair    Pair
	version uint64
}

// NewManager allocates the initial pair. Construction ignores the debounce
// threshold so small canvases can still start.
func NewManager(adapter gpucore.GPUAdapter, width, height int) (*Manager, error) {
	m := &Manager{adapter: adapter}
	pair, err := m.createPair(width, height)
	if err != nil {
		return nil, err
	}
	m.pair = pair
	m.version = 1
	return m, nil
}

// Create allocates one RGBA8 texture filled with opaque black.
func (m *Manager) Create(width, height int) (gpucore.TextureID, error) {
	if width <= 0 || height <= 0 {
		return gpucore.InvalidID, fmt.Errorf("%w: %dx%d", ErrInvalidSize, width, height)
	}
	id, err := m.adapter.CreateTexture(&gpucore.TextureDesc{
		Label:  "computeplay_texture",
		Width:  width,
		Height: height,
		Format: Format,
		Usage:  Usage,
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("texture: create %dx%d: %w", width, height, err)
	}
	if err := m.adapter.WriteTexture(id, blackPixels(width, height)); err != nil {
		m.adapter.DestroyTexture(id)
		return gpucore.InvalidID, fmt.Errorf("texture: clear %dx%d: %w", width, height, err)
	}
	return id, nil
}

// Resize replaces both textures with fresh ones of the given size and
// returns the new pair. Requests with either dimension at or below
// MinDimension return the current pair unchanged. The old contents are
// discarded. On failure the current pair is kept.
func (m *Manager) Resize(width, height int) (Pair, bool, error) {
	if width <= MinDimension || height <= MinDimension {
		return m.pair, false, nil
	}
	pair, err := m.createPair(width, height)
	if err != nil {
		return m.pair, false, err
	}
	m.destroyPair()
	m.pair = pair
	m.version++
	return m.pair, true, nil
}

// Pair returns the current pair.
func (m *Manager) Pair() Pair { return m.pair }

// Version changes every time the pair is replaced. Consumers holding
// bindings to the pair compare it to detect staleness.
func (m *Manager) Version() uint64 { return m.version }

// Close destroys both textures.
func (m *Manager) Close() {
	m.destroyPair()
	m.pair = Pair{}
}

func (m *Manager) createPair(width, height int) (Pair, error) {
	a, err := m.Create(width, height)
	if err != nil {
		return Pair{}, err
	}
	b, err := m.Create(width, height)
	if err != nil {
		m.adapter.DestroyTexture(a)
		return Pair{}, err
	}
	return Pair{A: a, B: b, Width: width, Height: height}, nil
}

func (m *Manager) destroyPair() {
	if m.pair.A != gpucore.InvalidID {
		m.adapter.DestroyTexture(m.pair.A)
	}
	if m.pair.B != gpucore.InvalidID {
		m.adapter.DestroyTexture(m.pair.B)
	}
}

// blackPixels returns RGBA8 data with zero colour channels and opaque alpha.
func blackPixels(width, height int) []byte {
	data := make([]byte, width*height*4)
	for i := 3; i < len(data); i += 4 {
		data[i] = 0xFF
	}
	return data
}
