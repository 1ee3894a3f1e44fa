package core

import (
	"errors"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// MaxShapeProfiles is the size of the shader's shape variant table.
const MaxShapeProfiles = 8

// BladeParams is one blade's instance record. Height <= 0 marks a slot that
// does not hold a live blade; the shader collapses it.
type BladeParams struct {
	Position               mgl32.Vec3
	FacingAngle            float32
	Height                 float32
	Width                  float32
	CurvatureStrength      float32
	Lean                   float32
	ShapeProfileID         int32
	ColorVariationSeed     float32
	BladeHash              float32
	Stiffness              float32
	WindPhaseOffset        float32
	WindStrengthMultiplier float32
}

// Live reports whether the record represents a visible blade.
func (b *BladeParams) Live() bool {
	return b.Height > 0
}

// Range is a closed interval sampled uniformly. Angle ranges treat Max as
// exclusive.
type Range struct {
	Min float32 `yaml:"min"`
	Max float32 `yaml:"max"`
}

func (r Range) Lerp(t float32) float32 {
	return r.Min + (r.Max-r.Min)*t
}

func (r Range) Contains(v float32) bool {
	return v >= r.Min && v <= r.Max
}

// ParamRanges are the tunable content ranges blades are drawn from.
type ParamRanges struct {
	Height         Range `yaml:"height"`
	Width          Range `yaml:"width"`
	Curvature      Range `yaml:"curvature"`
	Lean           Range `yaml:"lean"`
	Stiffness      Range `yaml:"stiffness"`
	FacingAngle    Range `yaml:"facing_angle"`
	WindPhase      Range `yaml:"wind_phase"`
	WindStrength   Range `yaml:"wind_strength"`
	ColorVariation Range `yaml:"color_variation"`
	ShapeProfiles  int32 `yaml:"shape_profiles"`
}

func DefaultParamRanges() ParamRanges {
	return ParamRanges{
		Height:         Range{0.5, 1.5},
		Width:          Range{0.02, 0.04},
		Curvature:      Range{-0.4, 0.4},
		Lean:           Range{-0.2, 0.2},
		Stiffness:      Range{0.3, 0.8},
		FacingAngle:    Range{0, 2 * math.Pi},
		WindPhase:      Range{0, 2 * math.Pi},
		WindStrength:   Range{0.8, 1.2},
		ColorVariation: Range{0, 1},
		ShapeProfiles:  MaxShapeProfiles,
	}
}

// Validate reports every inverted range and an out-of-table profile count.
func (p ParamRanges) Validate() error {
	var errs []error
	check := func(name string, r Range) {
		if math.IsNaN(float64(r.Min)) || math.IsNaN(float64(r.Max)) || r.Min > r.Max {
			errs = append(errs, fmt.Errorf("%s range [%g, %g] is invalid", name, r.Min, r.Max))
		}
	}
	check("height", p.Height)
	check("width", p.Width)
	check("curvature", p.Curvature)
	check("lean", p.Lean)
	check("stiffness", p.Stiffness)
	check("facing_angle", p.FacingAngle)
	check("wind_phase", p.WindPhase)
	check("wind_strength", p.WindStrength)
	check("color_variation", p.ColorVariation)
	if p.ShapeProfiles < 1 || p.ShapeProfiles > MaxShapeProfiles {
		errs = append(errs, fmt.Errorf("shape_profiles %d outside 1..%d", p.ShapeProfiles, MaxShapeProfiles))
	}
	return errors.Join(errs...)
}
