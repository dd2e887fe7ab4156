package coaster

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/michaelmargolis/6DoF-Coaster/calcs"
	"github.com/michaelmargolis/6DoF-Coaster/coaster/nl2"
	"github.com/michaelmargolis/6DoF-Coaster/ride"
)

const (
	DefaultGain       = 0.6
	DefaultLiftHeight = 32.0 // metres
)

// Transform turns telemetry samples into normalized platform poses.
// The host reports Y up, Z forward and X to the side.
type Transform struct {
	Gain       float64
	LiftHeight float64 // highest track point seen so far, never decreases

	prevYaw    float64
	hasPrevYaw bool
}

func NewTransform() *Transform {
	return &Transform{Gain: DefaultGain, LiftHeight: DefaultLiftHeight}
}

// Reset forgets the previous yaw. Call it on every dispatch.
func (t *Transform) Reset() {
	t.hasPrevYaw = false
	t.prevYaw = 0
}

func (t *Transform) SetGain(gain float64) {
	t.Gain = gain
}

func (t *Transform) SetLiftHeight(h float64) {
	t.LiftHeight = h
}

// Decode returns surge, sway, heave, roll, pitch and yaw rate for a sample.
func (t *Transform) Decode(tm *nl2.TelemetrySample) (pose ride.Pose) {
	q := tm.Quat()

	pose[ride.Roll] = t.Gain * (RollFromYUp(q) / math.Pi)
	pose[ride.Pitch] = t.Gain * -PitchFromYUp(q)
	pose[ride.Yaw] = t.Gain * t.yawRate(-YawFromYUp(q))

	posY := float64(tm.PosY)
	if posY > t.LiftHeight {
		t.LiftHeight = posY
	}
	denom := t.LiftHeight
	if denom == 0 {
		denom = 1
	}
	pose[ride.Heave] = (posY*2)/denom - 1

	pose[ride.Surge] = calcs.SignedSqrt(float64(tm.GForceZ))
	pose[ride.Sway] = calcs.SignedSqrt(float64(tm.GForceX))
	return
}

// yawRate unwraps the change in yaw across the ±π seam, limits it to ±π, halves it
// and compresses it with a signed square root. The first sample yields zero.
func (t *Transform) yawRate(yaw float64) float64 {
	var rate float64
	if t.hasPrevYaw {
		dy := yaw - t.prevYaw
		switch {
		case dy > math.Pi:
			rate = (t.prevYaw - yaw) + 2*math.Pi
		case dy < -math.Pi:
			rate = (t.prevYaw - yaw) - 2*math.Pi
		default:
			rate = t.prevYaw - yaw
		}
	}
	t.prevYaw = yaw
	t.hasPrevYaw = true

	rate = calcs.Clamp(rate, -math.Pi, math.Pi)
	return calcs.SignedSqrt(rate / 2)
}

func PitchFromYUp(q mgl64.Quat) float64 {
	x, y, z, w := q.V[0], q.V[1], q.V[2], q.W
	vx := 2 * (x*y + w*y)
	vy := 2 * (w*x - y*z)
	vz := 1 - 2*(x*x+y*y)
	return math.Atan2(vy, math.Sqrt(vx*vx+vz*vz))
}

func YawFromYUp(q mgl64.Quat) float64 {
	x, y, w := q.V[0], q.V[1], q.W
	return math.Atan2(2*(x*y+w*y), 1-2*(x*x+y*y))
}

func RollFromYUp(q mgl64.Quat) float64 {
	x, y, z, w := q.V[0], q.V[1], q.V[2], q.W
	return math.Atan2(2*(x*y+w*z), 1-2*(x*x+z*z))
}
