// Package config loads playground settings from YAML.
//
// Example file:
//
//	variant: physarum
//	width: 1280
//	height: 720
//	agents:
//	  width: 300
//	  height: 300
//	simulation:
//	  diffusion: 4
//	  evaporation: 0.3
//	sensor:
//	  angle: 0.5
//	  distance: 12
//	  size: 1
//	behavior:
//	  move_speed: 40
//	  turn_speed: 0.5
//	metrics:
//	  addr: ":9090"
//	backend: vulkan
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/gogpu/computeplay"
	"github.com/gogpu/computeplay/params"
)

// ErrInvalid is returned for values that parse but cannot be used.
var ErrInvalid = errors.New("config: invalid value")

// File mirrors the YAML layout. Omitted keys keep the playground defaults.
type File struct {
	Variant string `yaml:"variant"`
	Width   int    `yaml:"width"`
	Height  int    `yaml:"height"`
	Workers int    `yaml:"workers"`

	// Seed makes agent headings reproducible when set.
	Seed       *uint64 `yaml:"seed"`
	SyncPasses bool    `yaml:"sync_passes"`

	Agents struct {
		Width  int `yaml:"width"`
		Height int `yaml:"height"`
	} `yaml:"agents"`

	Simulation struct {
		Diffusion   float32 `yaml:"diffusion"`
		Evaporation float32 `yaml:"evaporation"`
	} `yaml:"simulation"`

	Sensor struct {
		Angle    *float32 `yaml:"angle"`
		Distance *float32 `yaml:"distance"`
		Size     *int32   `yaml:"size"`
	} `yaml:"sensor"`

	Behavior struct {
		MoveSpeed *float32 `yaml:"move_speed"`
		TurnSpeed *float32 `yaml:"turn_speed"`
	} `yaml:"behavior"`

	Metrics struct {
		Addr string `yaml:"addr"`
	} `yaml:"metrics"`

	// Backend names the HAL backend for cmd/computeplay.
	Backend string `yaml:"backend"`
}

// Load reads and parses the file at path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return f, nil
}

// Parse decodes YAML. Unknown keys are rejected.
func Parse(data []byte) (*File, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	return &f, nil
}

// Config converts the file to a playground configuration.
func (f *File) Config() (computeplay.Config, error) {
	v, err := computeplay.ParseVariant(f.Variant)
	if err != nil {
		return computeplay.Config{}, err
	}

	checks := []struct {
		name  string
		value int
	}{
		{"width", f.Width},
		{"height", f.Height},
		{"workers", f.Workers},
		{"agents.width", f.Agents.Width},
		{"agents.height", f.Agents.Height},
	}
	for _, c := range checks {
		if c.value < 0 {
			return computeplay.Config{}, fmt.Errorf("%w: %s = %d", ErrInvalid, c.name, c.value)
		}
	}
	if f.Simulation.Diffusion < 0 || f.Simulation.Evaporation < 0 {
		return computeplay.Config{}, fmt.Errorf("%w: negative simulation rate", ErrInvalid)
	}

	if f.Sensor.Size != nil && *f.Sensor.Size < 0 {
		return computeplay.Config{}, fmt.Errorf("%w: sensor.size = %d", ErrInvalid, *f.Sensor.Size)
	}

	sensor := params.DefaultSensor()
	set(&sensor.Angle, f.Sensor.Angle)
	set(&sensor.Distance, f.Sensor.Distance)
	set(&sensor.Size, f.Sensor.Size)

	behavior := params.DefaultBehavior()
	set(&behavior.MoveSpeed, f.Behavior.MoveSpeed)
	set(&behavior.TurnSpeed, f.Behavior.TurnSpeed)

	return computeplay.Config{
		Variant:         v,
		Width:           f.Width,
		Height:          f.Height,
		AgentGridWidth:  f.Agents.Width,
		AgentGridHeight: f.Agents.Height,
		Workers:         f.Workers,
		Diffusion:       f.Simulation.Diffusion,
		Evaporation:     f.Simulation.Evaporation,
		Sensor:          sensor,
		Behavior:        behavior,
	}, nil
}

func set[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

// Options returns the playground options the file selects.
func (f *File) Options() []computeplay.Option {
	var opts []computeplay.Option
	if f.Seed != nil {
		opts = append(opts, computeplay.WithSeed(*f.Seed))
	}
	if f.SyncPasses {
		opts = append(opts, computeplay.WithSyncPasses(true))
	}
	return opts
}
