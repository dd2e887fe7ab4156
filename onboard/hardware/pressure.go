package hardware

import (
	"github.com/michaelmargolis/6DoF-Coaster/calcs"
)

const (
	MinPressure = 0.05 // bar
	MaxPressure = 6.0  // bar
)

// Limits describes the actuator length envelope in mm. An actuator is a muscle plus
// fixed mounting hardware.
type Limits struct {
	MinLength      float64
	MaxLength      float64
	FixedLength    float64
	DisabledLength float64 // propped rest position
	ProppingLength float64 // raised enough to fit the access stairs
}

// PressureFor converts a muscle length (actuator length less fixed hardware) into a
// pressure in bar. Out of range lengths are clamped through the pressure limits.
func PressureFor(l Limits, muscleLen float64) float64 {
	span := l.MaxLength - l.FixedLength
	percent := (span - muscleLen) / span
	p := 35*percent*percent + 15*percent + .03
	return calcs.Clamp(p, MinPressure, MaxPressure)
}

// PressureCommand is one frame for the actuator driver.
type PressureCommand struct {
	Lengths   [6]float64 // requested actuator lengths, mm
	Pressures [6]float64 // bar
	Piston    bool       // park piston extended (unparked)
}

// Millibar returns the six pressures in mbar followed by the piston flag.
func (c PressureCommand) Millibar() (words [7]int) {
	for i, p := range c.Pressures {
		words[i] = int(1000 * p)
	}
	if c.Piston {
		words[6] = 1
	}
	return
}
