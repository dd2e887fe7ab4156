package onboard

import (
	"fmt"
	"io/ioutil"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/michaelmargolis/6DoF-Coaster/onboard/errors"
	"github.com/michaelmargolis/6DoF-Coaster/onboard/hardware"
	"github.com/michaelmargolis/6DoF-Coaster/ride"
	"gopkg.in/yaml.v2"
)

// Point is an attachment coordinate written as a flow list [x, y, z] in mm.
type Point mgl64.Vec3

func (p Point) MarshalYAML() (interface{}, error) {
	return []float64{p[0], p[1], p[2]}, nil
}

func (p *Point) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var coords []float64
	if err := unmarshal(&coords); err != nil {
		return err
	}
	if len(coords) != 3 {
		return errors.ConfigError{Field: "point", Reason: fmt.Sprintf("expected [x, y, z], got %d values", len(coords))}
	}
	*p = Point{coords[0], coords[1], coords[2]}
	return nil
}

// DOFLimits is the travel for each axis, mm for translations and degrees for rotations.
type DOFLimits [6]float64

// Pose converts the limits to mm and radians.
func (d DOFLimits) Pose() (p ride.Pose) {
	for i, v := range d {
		if i >= ride.Roll {
			v = mgl64.DegToRad(v)
		}
		p[i] = v
	}
	return
}

// ChairConfig describes one chair: geometry, muscle dimensions and motion limits.
type ChairConfig struct {
	Name      string  `yaml:"name"`
	Base      []Point `yaml:"base,flow"`
	Platform  []Point `yaml:"platform,flow"`
	MidHeight float64 `yaml:"mid_height"`

	MaxMuscleLength float64 `yaml:"max_muscle_length"` // at minimum pressure
	MinMuscleLength float64 `yaml:"min_muscle_length"` // at maximum pressure
	FixedLength     float64 `yaml:"fixed_length"`      // mounting hardware
	DisabledFactor  float64 `yaml:"disabled_factor"`   // of max actuator length
	ProppingFactor  float64 `yaml:"propping_factor"`   // of max actuator length

	UnloadedWeight float64 `yaml:"unloaded_weight"`
	PayloadWeight  float64 `yaml:"payload_weight"`

	Limits1DOF DOFLimits `yaml:"limits_1dof,flow"`
	Limits6DOF DOFLimits `yaml:"limits_6dof,flow"`

	SwellHold time.Duration `yaml:"swell_hold"`
	HasPiston bool          `yaml:"has_piston"`
}

// DefaultChairConfig is the V3 chair with the wide front attachment spacing.
func DefaultChairConfig() ChairConfig {
	return ChairConfig{
		Name:            "Chair v3",
		Base:            []Point{{379.8, -515.1, 0}, {258.7, -585.4, 0}, {-636.0, -71.4, 0}},
		Platform:        []Point{{617.0, -170.0, 0}, {-256.2, -586.5, 0}, {-377.6, -516.7, 0}},
		MidHeight:       -715,
		MaxMuscleLength: 800,
		MinMuscleLength: 600,
		FixedLength:     200,
		DisabledFactor:  .95,
		ProppingFactor:  .92,
		UnloadedWeight:  25,
		PayloadWeight:   65,
		Limits1DOF:      DOFLimits{100, 122, 140, 15, 20, 12},
		Limits6DOF:      DOFLimits{80, 80, 80, 12, 12, 10},
		SwellHold:       3 * time.Second,
	}
}

// LoadChairConfig reads a YAML chair description over the defaults and validates it.
func LoadChairConfig(path string) (c ChairConfig, err error) {
	c = DefaultChairConfig()
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return c, fmt.Errorf("reading chair config: %w", err)
	}
	if err = yaml.Unmarshal(data, &c); err != nil {
		return c, fmt.Errorf("parsing chair config %s: %w", path, err)
	}
	return c, c.Validate()
}

func (c ChairConfig) Validate() error {
	if _, err := c.Geometry(); err != nil {
		return err
	}
	if c.MaxMuscleLength <= 0 {
		return errors.ConfigError{Field: "max_muscle_length", Reason: "must be positive"}
	}
	if c.MinMuscleLength <= 0 || c.MinMuscleLength >= c.MaxMuscleLength {
		return errors.ConfigError{Field: "min_muscle_length", Reason: "must be between zero and max_muscle_length"}
	}
	if c.FixedLength < 0 {
		return errors.ConfigError{Field: "fixed_length", Reason: "must not be negative"}
	}
	for _, f := range []struct {
		name string
		v    float64
	}{{"disabled_factor", c.DisabledFactor}, {"propping_factor", c.ProppingFactor}} {
		if f.v <= 0 || f.v > 1 {
			return errors.ConfigError{Field: f.name, Reason: "must be in (0, 1]"}
		}
	}
	for i, v := range c.Limits1DOF {
		if v <= 0 {
			return errors.ConfigError{Field: "limits_1dof", Reason: fmt.Sprintf("axis %d must be positive", i)}
		}
	}
	return nil
}

func points(pts []Point) []mgl64.Vec3 {
	out := make([]mgl64.Vec3, len(pts))
	for i, p := range pts {
		out[i] = mgl64.Vec3(p)
	}
	return out
}

// Geometry returns the mirrored six leg geometry.
func (c ChairConfig) Geometry() (Geometry, error) {
	return NewGeometry(points(c.Base), points(c.Platform), c.MidHeight)
}

// ActuatorLimits derives the actuator length envelope.
func (c ChairConfig) ActuatorLimits() hardware.Limits {
	maxLen := c.MaxMuscleLength + c.FixedLength
	return hardware.Limits{
		MinLength:      c.MinMuscleLength + c.FixedLength,
		MaxLength:      maxLen,
		FixedLength:    c.FixedLength,
		DisabledLength: maxLen * c.DisabledFactor,
		ProppingLength: maxLen * c.ProppingFactor,
	}
}

// TotalWeight is the moving mass with the default passenger.
func (c ChairConfig) TotalWeight() float64 {
	return c.UnloadedWeight + c.PayloadWeight
}
