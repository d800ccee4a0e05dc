package systems

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/squadsim/config"
)

// Wall is a static axis-aligned blocker standing on the ground.
type Wall struct {
	Box r3.Box
}

// NavEdge is a boundary segment of walkable space. Normal points into the
// walkable side.
type NavEdge struct {
	Start, End r3.Vec
	Normal     r3.Vec
}

// Environment is the static world used for traces and avoidance edges.
// It is immutable once built, so concurrent readers need no locking.
type Environment struct {
	walls     []Wall
	grid      *HashGrid[int, int]
	edges     []NavEdge
	bounds    r2.Box
	hasBounds bool
}

// NewEnvironment indexes walls for fast queries.
func NewEnvironment(c config.GridConfig, walls []Wall) *Environment {
	env := &Environment{
		walls: walls,
		grid:  NewHashGridFromConfig[int, int](c),
	}
	for i, w := range walls {
		env.grid.Add(i, i, r2.Box{
			Min: r2.Vec{X: w.Box.Min.X, Y: w.Box.Min.Y},
			Max: r2.Vec{X: w.Box.Max.X, Y: w.Box.Max.Y},
		})
		env.edges = append(env.edges, wallEdges(w)...)
	}
	return env
}

// SetBounds adds the playfield perimeter as inward-facing nav edges.
func (env *Environment) SetBounds(b r2.Box) {
	env.bounds = b
	env.hasBounds = true
}

// Walls returns the indexed walls.
func (env *Environment) Walls() []Wall {
	return env.walls
}

func wallEdges(w Wall) []NavEdge {
	lo, hi := w.Box.Min, w.Box.Max
	c00 := r3.Vec{X: lo.X, Y: lo.Y}
	c10 := r3.Vec{X: hi.X, Y: lo.Y}
	c11 := r3.Vec{X: hi.X, Y: hi.Y}
	c01 := r3.Vec{X: lo.X, Y: hi.Y}
	return []NavEdge{
		{Start: c00, End: c10, Normal: r3.Vec{Y: -1}},
		{Start: c10, End: c11, Normal: r3.Vec{X: 1}},
		{Start: c11, End: c01, Normal: r3.Vec{Y: 1}},
		{Start: c01, End: c00, Normal: r3.Vec{X: -1}},
	}
}

// LineTrace reports the first wall hit along a-b and the hit point.
func (env *Environment) LineTrace(a, b r3.Vec) (bool, r3.Vec) {
	return env.sweep(a, b, 0)
}

// SphereTrace reports whether a sphere of radius r swept from a to b hits a wall.
func (env *Environment) SphereTrace(a, b r3.Vec, r float64) bool {
	hit, _ := env.sweep(a, b, r)
	return hit
}

func (env *Environment) sweep(a, b r3.Vec, r float64) (bool, r3.Vec) {
	if env == nil || len(env.walls) == 0 {
		return false, b
	}
	query := r2.Box{
		Min: r2.Vec{X: min(a.X, b.X) - r, Y: min(a.Y, b.Y) - r},
		Max: r2.Vec{X: max(a.X, b.X) + r, Y: max(a.Y, b.Y) + r},
	}
	best := math.Inf(1)
	env.grid.Visit(query, func(_ int, i int, _ r2.Box) bool {
		box := env.walls[i].Box
		if r > 0 {
			pad := r3.Vec{X: r, Y: r, Z: r}
			box = r3.Box{Min: r3.Sub(box.Min, pad), Max: r3.Add(box.Max, pad)}
		}
		if t, ok := segmentBoxHit(a, b, box); ok && t < best {
			best = t
		}
		return true
	})
	if math.IsInf(best, 1) {
		return false, b
	}
	return true, r3.Add(a, r3.Scale(best, r3.Sub(b, a)))
}

// segmentBoxHit intersects segment a-b with a box using the slab method and
// returns the entry parameter in [0,1].
func segmentBoxHit(a, b r3.Vec, box r3.Box) (float64, bool) {
	d := r3.Sub(b, a)
	tmin, tmax := 0.0, 1.0
	origin := [3]float64{a.X, a.Y, a.Z}
	dir := [3]float64{d.X, d.Y, d.Z}
	lo := [3]float64{box.Min.X, box.Min.Y, box.Min.Z}
	hi := [3]float64{box.Max.X, box.Max.Y, box.Max.Z}
	for i := 0; i < 3; i++ {
		if math.Abs(dir[i]) < smallNumber {
			if origin[i] < lo[i] || origin[i] > hi[i] {
				return 0, false
			}
			continue
		}
		inv := 1 / dir[i]
		t1 := (lo[i] - origin[i]) * inv
		t2 := (hi[i] - origin[i]) * inv
		if t1 > t2 {
			t1, t2 = t2, t1
		}
		tmin = max(tmin, t1)
		tmax = min(tmax, t2)
		if tmin > tmax {
			return 0, false
		}
	}
	return tmin, true
}

// EdgesNear appends nav edges whose segment touches box. Wall faces turned
// away from the box center are skipped.
func (env *Environment) EdgesNear(box r2.Box, dst []NavEdge) []NavEdge {
	if env == nil {
		return dst
	}
	center := r3.Vec{X: (box.Min.X + box.Max.X) / 2, Y: (box.Min.Y + box.Max.Y) / 2}
	env.grid.Visit(box, func(_ int, i int, _ r2.Box) bool {
		for _, e := range env.edges[i*4 : i*4+4] {
			if r3.Dot(e.Normal, r3.Sub(center, e.Start)) < 0 {
				continue
			}
			eb := r2.Box{
				Min: r2.Vec{X: min(e.Start.X, e.End.X), Y: min(e.Start.Y, e.End.Y)},
				Max: r2.Vec{X: max(e.Start.X, e.End.X), Y: max(e.Start.Y, e.End.Y)},
			}
			if boxesOverlap(eb, box) {
				dst = append(dst, e)
			}
		}
		return true
	})
	if env.hasBounds {
		dst = appendBoundsEdges(env.bounds, box, dst)
	}
	return dst
}

func appendBoundsEdges(b, query r2.Box, dst []NavEdge) []NavEdge {
	c00 := r3.Vec{X: b.Min.X, Y: b.Min.Y}
	c10 := r3.Vec{X: b.Max.X, Y: b.Min.Y}
	c11 := r3.Vec{X: b.Max.X, Y: b.Max.Y}
	c01 := r3.Vec{X: b.Min.X, Y: b.Max.Y}
	perimeter := [4]NavEdge{
		{Start: c10, End: c00, Normal: r3.Vec{Y: 1}},
		{Start: c11, End: c10, Normal: r3.Vec{X: -1}},
		{Start: c01, End: c11, Normal: r3.Vec{Y: -1}},
		{Start: c00, End: c01, Normal: r3.Vec{X: 1}},
	}
	for _, e := range perimeter {
		eb := r2.Box{
			Min: r2.Vec{X: min(e.Start.X, e.End.X), Y: min(e.Start.Y, e.End.Y)},
			Max: r2.Vec{X: max(e.Start.X, e.End.X), Y: max(e.Start.Y, e.End.Y)},
		}
		if boxesOverlap(eb, query) {
			dst = append(dst, e)
		}
	}
	return dst
}
