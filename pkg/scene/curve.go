package scene

import "github.com/chazu/stepwise/pkg/project"

const (
	// CurveSegments is the number of segments a connection curve is
	// sampled into.
	CurveSegments = 24
	// CurveLift raises the control point by this fraction of the chord.
	CurveLift = 0.15
	// MarkerLift raises a connection marker above the curve apex.
	MarkerLift = 0.5
)

// bezier samples the quadratic curve from a to b whose control point sits
// above the chord midpoint.
func bezier(a, b project.Vec3, segments int) []project.Vec3 {
	ctrl := controlPoint(a, b)
	pts := make([]project.Vec3, segments+1)
	for i := 0; i <= segments; i++ {
		t := float64(i) / float64(segments)
		u := 1 - t
		pts[i] = a.Scale(u * u).Add(ctrl.Scale(2 * u * t)).Add(b.Scale(t * t))
	}
	return pts
}

func controlPoint(a, b project.Vec3) project.Vec3 {
	mid := a.Lerp(b, 0.5)
	mid.Y += CurveLift * a.Dist(b)
	return mid
}

// apex is the curve point at t = 0.5.
func apex(a, b project.Vec3) project.Vec3 {
	ctrl := controlPoint(a, b)
	return a.Scale(0.25).Add(ctrl.Scale(0.5)).Add(b.Scale(0.25))
}
