package tuning

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	TickRateHz     int `yaml:"tick_rate_hz"`
	FrameRateHz    int `yaml:"frame_rate_hz"`
	MaxFrameMs     int `yaml:"max_frame_ms"`
	SendDelayTicks int `yaml:"send_delay_ticks"`

	// Local virtual server only: one-way latency applied to inputs and bundles.
	LatencyMs int `yaml:"latency_ms"`

	SnapshotEveryTicks int `yaml:"snapshot_every_ticks"`
	MaxHistoryTicks    int `yaml:"max_history_ticks"`

	FlowField FlowField           `yaml:"flow_field"`
	Units     map[string]UnitSpec `yaml:"units"`
}

type FlowField struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

type UnitSpec struct {
	Radius   float64 `yaml:"radius"`
	MaxSpeed float64 `yaml:"max_speed"`
	Health   int     `yaml:"health"`
}

func Defaults() Tuning {
	return Tuning{
		ProtocolVersion:    "1.0",
		TickRateHz:         20,
		FrameRateHz:        60,
		MaxFrameMs:         250,
		SendDelayTicks:     3,
		LatencyMs:          50,
		SnapshotEveryTicks: 600,
		MaxHistoryTicks:    72000,
		FlowField:          FlowField{Width: 100, Height: 100},
		Units: map[string]UnitSpec{
			"worker":  {Radius: 0.5, MaxSpeed: 0.4, Health: 40},
			"soldier": {Radius: 0.6, MaxSpeed: 0.5, Health: 100},
		},
	}
}

// Load reads path over Defaults(); fields absent from the file keep their default.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	var errs []error
	if t.TickRateHz <= 0 {
		errs = append(errs, fmt.Errorf("tick_rate_hz must be > 0 (got %d)", t.TickRateHz))
	}
	if t.FrameRateHz <= 0 {
		errs = append(errs, fmt.Errorf("frame_rate_hz must be > 0 (got %d)", t.FrameRateHz))
	}
	if t.MaxFrameMs <= 0 {
		errs = append(errs, fmt.Errorf("max_frame_ms must be > 0 (got %d)", t.MaxFrameMs))
	}
	if t.SendDelayTicks < 1 {
		errs = append(errs, fmt.Errorf("send_delay_ticks must be >= 1 (got %d)", t.SendDelayTicks))
	}
	if t.LatencyMs < 0 {
		errs = append(errs, fmt.Errorf("latency_ms must be >= 0 (got %d)", t.LatencyMs))
	}
	if t.FlowField.Width <= 0 || t.FlowField.Height <= 0 {
		errs = append(errs, fmt.Errorf("flow_field must be positive (got %dx%d)", t.FlowField.Width, t.FlowField.Height))
	}
	for _, name := range t.UnitKinds() {
		u := t.Units[name]
		if u.Radius <= 0 || u.MaxSpeed <= 0 {
			errs = append(errs, fmt.Errorf("unit %q: radius and max_speed must be > 0", name))
		}
	}
	return errors.Join(errs...)
}

// UnitKinds returns the unit catalog keys in sorted order.
func (t Tuning) UnitKinds() []string {
	out := make([]string, 0, len(t.Units))
	for k := range t.Units {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
