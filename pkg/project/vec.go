package project

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	v3 "github.com/deadsy/sdfx/vec/v3"
)

// Vec2 is an authored 2D layout position.
type Vec2 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Vec3 is a world-space position. Y is height.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func (v Vec3) Add(o Vec3) Vec3 { return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }
func (v Vec3) Sub(o Vec3) Vec3 { return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }
func (v Vec3) Scale(k float64) Vec3 { return Vec3{v.X * k, v.Y * k, v.Z * k} }
func (v Vec3) Length() float64 { return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z) }
func (v Vec3) Dist(o Vec3) float64 { return v.Sub(o).Length() }
func (v Vec3) V3() v3.Vec { return v3.Vec{X: v.X, Y: v.Y, Z: v.Z} }
func FromV3(v v3.Vec) Vec3 { return Vec3{X: v.X, Y: v.Y, Z: v.Z} }

// Lerp moves v toward o by fraction t.
func (v Vec3) Lerp(o Vec3, t float64) Vec3 {
	return Vec3{
		X: v.X + (o.X-v.X)*t,
		Y: v.Y + (o.Y-v.Y)*t,
		Z: v.Z + (o.Z-v.Z)*t,
	}
}

// Color is a "#rrggbb" hex color.
type Color string

// RGB parses the color into 0..1 channels.
func (c Color) RGB() ([3]float64, error) {
	s := strings.TrimPrefix(strings.TrimSpace(string(c)), "#")
	if len(s) == 3 {
		s = string([]byte{s[0], s[0], s[1], s[1], s[2], s[2]})
	}
	if len(s) != 6 {
		return [3]float64{}, fmt.Errorf("project: invalid color %q", string(c))
	}
	n, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return [3]float64{}, fmt.Errorf("project: invalid color %q: %w", string(c), err)
	}
	return [3]float64{
		float64((n>>16)&0xff) / 255,
		float64((n>>8)&0xff) / 255,
		float64(n&0xff) / 255,
	}, nil
}

// Valid reports whether the color parses.
func (c Color) Valid() bool {
	_, err := c.RGB()
	return err == nil
}
