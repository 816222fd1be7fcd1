package asset

import (
	"math"

	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// mat4 is a column-major 4x4 affine transform, the layout glTF node
// matrices use.
type mat4 [16]float64

func identity() mat4 {
	return mat4{1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1}
}

func (a mat4) mul(b mat4) mat4 {
	var out mat4
	for c := 0; c < 4; c++ {
		for r := 0; r < 4; r++ {
			var sum float64
			for k := 0; k < 4; k++ {
				sum += a[k*4+r] * b[c*4+k]
			}
			out[c*4+r] = sum
		}
	}
	return out
}

// trs composes translation * rotation * scale. r is a unit quaternion
// (x, y, z, w).
func trs(t [3]float64, r [4]float64, s [3]float64) mat4 {
	x, y, z, w := r[0], r[1], r[2], r[3]
	if x == 0 && y == 0 && z == 0 && w == 0 {
		w = 1
	}
	if s == [3]float64{} {
		s = [3]float64{1, 1, 1}
	}
	xx, yy, zz := x*x, y*y, z*z
	xy, xz, yz := x*y, x*z, y*z
	wx, wy, wz := w*x, w*y, w*z

	return mat4{
		(1 - 2*(yy+zz)) * s[0], 2 * (xy + wz) * s[0], 2 * (xz - wy) * s[0], 0,
		2 * (xy - wz) * s[1], (1 - 2*(xx+zz)) * s[1], 2 * (yz + wx) * s[1], 0,
		2 * (xz + wy) * s[2], 2 * (yz - wx) * s[2], (1 - 2*(xx+yy)) * s[2], 0,
		t[0], t[1], t[2], 1,
	}
}

// local returns a node's local transform. An explicit matrix wins over
// the TRS properties unless it is zero or identity.
func local(matrix [16]float64, t [3]float64, r [4]float64, s [3]float64) mat4 {
	m := mat4(matrix)
	if m != (mat4{}) && m != identity() {
		return m
	}
	return trs(t, r, s)
}

func (a mat4) apply(v v3.Vec) v3.Vec {
	return v3.Vec{
		X: a[0]*v.X + a[4]*v.Y + a[8]*v.Z + a[12],
		Y: a[1]*v.X + a[5]*v.Y + a[9]*v.Z + a[13],
		Z: a[2]*v.X + a[6]*v.Y + a[10]*v.Z + a[14],
	}
}

// box transforms the eight corners of b and returns their bounds.
func (a mat4) box(b sdf.Box3) sdf.Box3 {
	min := v3.Vec{X: math.Inf(1), Y: math.Inf(1), Z: math.Inf(1)}
	max := v3.Vec{X: math.Inf(-1), Y: math.Inf(-1), Z: math.Inf(-1)}
	for i := 0; i < 8; i++ {
		c := v3.Vec{X: b.Min.X, Y: b.Min.Y, Z: b.Min.Z}
		if i&1 != 0 {
			c.X = b.Max.X
		}
		if i&2 != 0 {
			c.Y = b.Max.Y
		}
		if i&4 != 0 {
			c.Z = b.Max.Z
		}
		p := a.apply(c)
		min = min.Min(p)
		max = max.Max(p)
	}
	return sdf.Box3{Min: min, Max: max}
}

// shift translates b by d.
func shift(b sdf.Box3, d v3.Vec) sdf.Box3 {
	return sdf.Box3{Min: b.Min.Add(d), Max: b.Max.Add(d)}
}

// union returns the smallest box containing a and b.
func union(a, b sdf.Box3) sdf.Box3 {
	return sdf.Box3{Min: a.Min.Min(b.Min), Max: a.Max.Max(b.Max)}
}
