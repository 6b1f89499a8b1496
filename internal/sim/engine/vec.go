package engine

import "math"

// Vec2 is a double-precision 2D vector.
//
// Every product is wrapped in an explicit float64 conversion so the compiler may not
// fuse it into an FMA, which keeps results bit-identical on amd64 and arm64.
type Vec2 struct {
	X float64
	Y float64
}

func (v Vec2) Add(o Vec2) Vec2 { return Vec2{X: v.X + o.X, Y: v.Y + o.Y} }
func (v Vec2) Sub(o Vec2) Vec2 { return Vec2{X: v.X - o.X, Y: v.Y - o.Y} }
func (v Vec2) Neg() Vec2       { return Vec2{X: -v.X, Y: -v.Y} }

func (v Vec2) Scale(s float64) Vec2 {
	return Vec2{X: float64(v.X * s), Y: float64(v.Y * s)}
}

func (v Vec2) Dot(o Vec2) float64 {
	return float64(v.X*o.X) + float64(v.Y*o.Y)
}

func (v Vec2) LengthSquared() float64 { return v.Dot(v) }
func (v Vec2) Length() float64        { return math.Sqrt(v.LengthSquared()) }

func (v Vec2) DistanceSquared(o Vec2) float64 { return v.Sub(o).LengthSquared() }

// NormalizeOrZero returns the unit vector, or zero for a zero-length input.
func (v Vec2) NormalizeOrZero() Vec2 {
	l := v.Length()
	if l == 0 || math.IsNaN(l) || math.IsInf(l, 0) {
		return Vec2{}
	}
	return Vec2{X: v.X / l, Y: v.Y / l}
}

func (v Vec2) IsZero() bool { return v.X == 0 && v.Y == 0 }
