package ride

// Axis indexes into a Pose.
const (
	Surge = iota
	Sway
	Heave
	Roll
	Pitch
	Yaw
)

// Pose is a platform request as surge, sway, heave (mm) and roll, pitch, yaw (radians).
// Poses produced by the orientation decoder are normalized to roughly -1..1 on every axis.
type Pose [6]float64

// Lengths holds one actuator length in mm per leg, in geometry order.
type Lengths [6]float64

// Uniform returns lengths with every leg set to l.
func Uniform(l float64) (ls Lengths) {
	for i := range ls {
		ls[i] = l
	}
	return
}
