package calcs

import "math"

// SignedSqrt compresses v while keeping its sign.
func SignedSqrt(v float64) float64 {
	if v >= 0 {
		return math.Sqrt(v)
	}
	return -math.Sqrt(-v)
}

func Clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// Scale maps v from the src range onto the dst range without clamping.
func Scale(v float64, src, dst [2]float64) float64 {
	return (v-src[0])*(dst[1]-dst[0])/(src[1]-src[0]) + dst[0]
}

// Lerp returns the point t of the way between a and b.
func Lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}
