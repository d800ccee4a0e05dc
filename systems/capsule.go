// Package systems provides the ECS processors and spatial primitives of the simulation.
package systems

import (
	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/squadsim/components"
)

// smallNumber guards divisions on degenerate segments.
const smallNumber = 1e-8

// Capsule is a swept sphere: segment A-B inflated by R.
type Capsule struct {
	A, B r3.Vec
	R    float64
}

// MakeCapsule builds the world-space capsule for an entity.
// Forward capsules are centered on the rotated offset and extend half the
// length each way along the facing; vertical capsules rise from the offset base.
func MakeCapsule(p components.CapsuleParams, t components.Transform) Capsule {
	rot := r3.NewRotation(t.Yaw, components.Up)
	base := r3.Add(t.Location, rot.Rotate(p.CenterOffset))
	if p.AlongForward {
		half := r3.Scale(p.Length/2, t.Forward())
		return Capsule{A: r3.Sub(base, half), B: r3.Add(base, half), R: p.Radius}
	}
	return Capsule{A: base, B: r3.Add(base, r3.Scale(p.Length, components.Up)), R: p.Radius}
}

// Bounds returns the XY footprint of the capsule.
func (c Capsule) Bounds() r2.Box {
	return r2.Box{
		Min: r2.Vec{X: min(c.A.X, c.B.X) - c.R, Y: min(c.A.Y, c.B.Y) - c.R},
		Max: r2.Vec{X: max(c.A.X, c.B.X) + c.R, Y: max(c.A.Y, c.B.Y) + c.R},
	}
}

// Center returns the segment midpoint.
func (c Capsule) Center() r3.Vec {
	return r3.Scale(0.5, r3.Add(c.A, c.B))
}

// ClosestPointSegmentSegment computes closest points c1 = p1 + s*(q1-p1) and
// c2 = p2 + t*(q2-p2) between two segments, returning s, t, the points and
// their squared distance. Zero-length segments degrade to point queries.
func ClosestPointSegmentSegment(p1, q1, p2, q2 r3.Vec) (s, t float64, c1, c2 r3.Vec, distSq float64) {
	d1 := r3.Sub(q1, p1)
	d2 := r3.Sub(q2, p2)
	r := r3.Sub(p1, p2)
	a := r3.Dot(d1, d1)
	e := r3.Dot(d2, d2)
	f := r3.Dot(d2, r)

	if a <= smallNumber && e <= smallNumber {
		return 0, 0, p1, p2, r3.Norm2(r3.Sub(p1, p2))
	}

	if a <= smallNumber {
		s = 0
		t = clamp(f/e, 0, 1)
	} else {
		c := r3.Dot(d1, r)
		if e <= smallNumber {
			t = 0
			s = clamp(-c/a, 0, 1)
		} else {
			b := r3.Dot(d1, d2)
			denom := a*e - b*b
			// Parallel segments: pick s = 0 and let t resolve it
			if denom != 0 {
				s = clamp((b*f-c*e)/denom, 0, 1)
			}
			t = (b*s + f) / e
			if t < 0 {
				t = 0
				s = clamp(-c/a, 0, 1)
			} else if t > 1 {
				t = 1
				s = clamp((b-c)/a, 0, 1)
			}
		}
	}

	c1 = r3.Add(p1, r3.Scale(s, d1))
	c2 = r3.Add(p2, r3.Scale(t, d2))
	return s, t, c1, c2, r3.Norm2(r3.Sub(c1, c2))
}

// TestCapsuleCapsule reports whether two capsules overlap or touch.
func TestCapsuleCapsule(c1, c2 Capsule) bool {
	_, _, _, _, distSq := ClosestPointSegmentSegment(c1.A, c1.B, c2.A, c2.B)
	radius := c1.R + c2.R
	return distSq <= radius*radius
}

// ClosestPointOnSegment projects p onto segment a-b.
func ClosestPointOnSegment(p, a, b r3.Vec) r3.Vec {
	ab := r3.Sub(b, a)
	lenSq := r3.Norm2(ab)
	if lenSq <= smallNumber {
		return a
	}
	t := clamp(r3.Dot(r3.Sub(p, a), ab)/lenSq, 0, 1)
	return r3.Add(a, r3.Scale(t, ab))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}

// safeNormal returns the unit vector of v, or zero when v is too short.
func safeNormal(v r3.Vec) r3.Vec {
	n := r3.Norm(v)
	if n <= smallNumber {
		return r3.Vec{}
	}
	return r3.Scale(1/n, v)
}

func safeNormalOr(v, fallback r3.Vec) r3.Vec {
	n := r3.Norm(v)
	if n <= smallNumber {
		return fallback
	}
	return r3.Scale(1/n, v)
}

// flat drops the Z component.
func flat(v r3.Vec) r3.Vec {
	return r3.Vec{X: v.X, Y: v.Y}
}

// boxAround returns the XY box centered at p with the given half extents.
func boxAround(p r3.Vec, halfX, halfY float64) r2.Box {
	return r2.Box{
		Min: r2.Vec{X: p.X - halfX, Y: p.Y - halfY},
		Max: r2.Vec{X: p.X + halfX, Y: p.Y + halfY},
	}
}
