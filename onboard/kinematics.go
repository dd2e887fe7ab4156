package onboard

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/michaelmargolis/6DoF-Coaster/onboard/errors"
	"github.com/michaelmargolis/6DoF-Coaster/ride"
)

// Geometry holds the attachment points of an inverted Stewart platform. The base is
// the fixed upper frame, the platform the moving seat below it.
type Geometry struct {
	Base      [6]mgl64.Vec3
	Platform  [6]mgl64.Vec3
	MidHeight float64 // platform z at mid stroke, negative when hanging below the base
}

// NewGeometry builds a six leg geometry. Three points per side describe the left half
// only and are mirrored across the X axis.
func NewGeometry(base, platform []mgl64.Vec3, mid float64) (g Geometry, err error) {
	if len(base) != len(platform) || (len(base) != 3 && len(base) != 6) {
		return g, errors.GeometryError{Base: len(base), Platform: len(platform)}
	}
	if len(base) == 3 {
		base, platform = mirror(base), mirror(platform)
	}
	copy(g.Base[:], base)
	copy(g.Platform[:], platform)
	g.MidHeight = mid
	return g, nil
}

// mirror appends the points in reverse order with Y negated.
func mirror(pts []mgl64.Vec3) []mgl64.Vec3 {
	out := make([]mgl64.Vec3, 0, 2*len(pts))
	out = append(out, pts...)
	for i := len(pts) - 1; i >= 0; i-- {
		p := pts[i]
		out = append(out, mgl64.Vec3{p.X(), -p.Y(), p.Z()})
	}
	return out
}

// Rotation is the 3-2-1 (yaw, pitch, roll) rotation matrix.
func Rotation(roll, pitch, yaw float64) mgl64.Mat3 {
	return mgl64.Rotate3DZ(yaw).Mul3(mgl64.Rotate3DY(pitch)).Mul3(mgl64.Rotate3DX(roll))
}

// Solver computes actuator lengths for a platform pose.
type Solver struct {
	geometry Geometry
}

func NewSolver(g Geometry) *Solver {
	return &Solver{geometry: g}
}

func (s *Solver) SetGeometry(g Geometry) {
	s.geometry = g
}

func (s *Solver) Geometry() Geometry {
	return s.geometry
}

// Solve returns the leg lengths for a request in mm and radians. Heave is an offset
// from mid height and is inverted when the platform hangs below the base. Positive
// pitch is nose down.
func (s *Solver) Solve(req ride.Pose) (l ride.Lengths) {
	g := &s.geometry

	z := g.MidHeight + req[ride.Heave]
	if g.MidHeight < 0 {
		z = -z
	}
	t := mgl64.Vec3{req[ride.Surge], req[ride.Sway], z}
	r := Rotation(req[ride.Roll], -req[ride.Pitch], req[ride.Yaw])

	for i := range l {
		leg := t.Sub(g.Base[i]).Add(r.Mul3x1(g.Platform[i]))
		l[i] = leg.Len()
	}
	return
}

// Span is the difference between the longest and shortest leg.
func Span(l ride.Lengths) float64 {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range l {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return hi - lo
}
