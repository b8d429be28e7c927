package config

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/gogpu/computeplay"
	"github.com/gogpu/computeplay/params"
)

const sample = `
variant: fractal
width: 1280
height: 720
workers: 3
seed: 42
sync_passes: true
agents:
  width: 50
  height: 40
simulation:
  diffusion: 4
  evaporation: 0.5
sensor:
  distance: 12
  size: 0
behavior:
  move_speed: 40
metrics:
  addr: ":9090"
backend: vulkan
`

func TestParse(t *testing.T) {
	f, err := Parse([]byte(sample))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if f.Metrics.Addr != ":9090" {
		t.Errorf("expected metrics addr :9090, got %q", f.Metrics.Addr)
	}
	if f.Backend != "vulkan" {
		t.Errorf("expected backend vulkan, got %q", f.Backend)
	}

	cfg, err := f.Config()
	if err != nil {
		t.Fatalf("Config failed: %v", err)
	}
	want := computeplay.Config{
		Variant:         computeplay.VariantFractal,
		Width:           1280,
		Height:          720,
		AgentGridWidth:  50,
		AgentGridHeight: 40,
		Workers:         3,
		Diffusion:       4,
		Evaporation:     0.5,
		Sensor:          params.SensorParams{Angle: math.Pi / 4, Distance: 12, Size: 0},
		Behavior:        params.AgentBehaviorParams{MoveSpeed: 40, TurnSpeed: params.DefaultBehavior().TurnSpeed},
	}
	if cfg != want {
		t.Errorf("expected %+v, got %+v", want, cfg)
	}
	if n := len(f.Options()); n != 2 {
		t.Errorf("expected seed and sync options, got %d", n)
	}
}

func TestParseEmpty(t *testing.T) {
	f, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	cfg, err := f.Config()
	if err != nil {
		t.Fatalf("Config failed: %v", err)
	}
	if cfg.Variant != computeplay.VariantPhysarum {
		t.Errorf("expected physarum, got %v", cfg.Variant)
	}
	if cfg.Sensor != params.DefaultSensor() || cfg.Behavior != params.DefaultBehavior() {
		t.Errorf("expected default tuning, got %+v %+v", cfg.Sensor, cfg.Behavior)
	}
	if len(f.Options()) != 0 {
		t.Error("expected no options")
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown key", "colour: red\n"},
		{"wrong type", "width: wide\n"},
		{"bad syntax", "width: [1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.yaml)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want error
	}{
		{"unknown variant", "variant: plasma\n", computeplay.ErrUnknownVariant},
		{"negative width", "width: -5\n", ErrInvalid},
		{"negative agents", "agents:\n  height: -1\n", ErrInvalid},
		{"negative rate", "simulation:\n  evaporation: -0.1\n", ErrInvalid},
		{"negative sensor size", "sensor:\n  size: -2\n", ErrInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := Parse([]byte(tt.yaml))
			if err != nil {
				t.Fatalf("Parse failed: %v", err)
			}
			if _, err := f.Config(); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "computeplay.yaml")
	if err := os.WriteFile(path, []byte(sample), 0o600); err != nil {
		t.Fatal(err)
	}
	f, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if f.Width != 1280 {
		t.Errorf("expected width 1280, got %d", f.Width)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected os.ErrNotExist, got %v", err)
	}
}
