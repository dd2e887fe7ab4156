package onboard

import (
	"github.com/michaelmargolis/6DoF-Coaster/calcs"
	"github.com/michaelmargolis/6DoF-Coaster/ride"
)

// Shaper scales normalized poses to real travel using the single axis limits and
// the operator intensity.
type Shaper struct {
	limits    ride.Pose
	intensity float64
}

func NewShaper(limits ride.Pose) *Shaper {
	return &Shaper{limits: limits, intensity: 1}
}

// SetIntensity takes a level from ride.MinIntensity to ride.MaxIntensity.
func (s *Shaper) SetIntensity(level int) {
	s.intensity = calcs.Clamp(float64(level)*0.1, 0, 1)
}

// Intensity is the overall gain, 0 to 1.
func (s *Shaper) Intensity() float64 {
	return s.intensity
}

func (s *Shaper) Limits() ride.Pose {
	return s.limits
}

// Shape converts a normalized pose to mm and radians, never exceeding the limits.
func (s *Shaper) Shape(p ride.Pose) (out ride.Pose) {
	for i, v := range p {
		out[i] = calcs.Clamp(v, -1, 1) * s.limits[i] * s.intensity
	}
	return
}
