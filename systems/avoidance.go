package systems

import (
	"math"
	"sort"

	"github.com/mlange-42/ark/ecs"
	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"
)

// maxObstacleResults bounds the neighbours considered per agent.
const maxObstacleResults = 24

// ClosestPointOfApproachSegment returns the time in [0,timeHoriz] at which a
// disc of radius rad moving with vel first touches segment a-b, or the time
// of closest approach when it never touches.
func ClosestPointOfApproachSegment(pos, vel r2.Vec, rad float64, a, b r2.Vec, timeHoriz float64) float64 {
	segDir := r2.Sub(b, a)
	relPos := r2.Sub(pos, a)
	velSq := r2.Dot(vel, vel)
	segDirSq := r2.Dot(segDir, segDir)
	dirVel := r2.Dot(segDir, vel)
	dirRelPos := r2.Dot(segDir, relPos)
	velRelPos := r2.Dot(vel, relPos)
	relPosSq := r2.Dot(relPos, relPos)

	qa := segDirSq*velSq - dirVel*dirVel
	qb := segDirSq*velRelPos - dirRelPos*dirVel
	qc := segDirSq*relPosSq - dirRelPos*dirRelPos - rad*rad*segDirSq
	h := max(0, qb*qb-qa*qc)
	t := 0.0
	if math.Abs(qa) > smallNumber {
		t = (-qb - math.Sqrt(h)) / qa
	}
	y := dirRelPos + t*dirVel
	if y > 0 && y < segDirSq {
		return clamp(t, 0, timeHoriz)
	}

	// caps
	capRel := relPos
	if y > 0 {
		capRel = r2.Sub(pos, b)
	}
	cb := r2.Dot(vel, capRel)
	cc := r2.Dot(capRel, capRel) - rad*rad
	ch := max(0, cb*cb-velSq*cc)
	t1 := 0.0
	if velSq > smallNumber {
		t1 = (-cb - math.Sqrt(ch)) / velSq
	}
	return clamp(t1, 0, timeHoriz)
}

// ClosestPointOfApproach returns the time in [0,timeHoriz] of first contact
// between two discs, or of closest approach when they never touch.
func ClosestPointOfApproach(relPos, relVel r3.Vec, totalRadius, timeHoriz float64) float64 {
	a := r3.Dot(relVel, relVel)
	inv2A := 0.0
	if a > smallNumber {
		inv2A = 1 / (2 * a)
	}
	b := min(0, 2*r3.Dot(relVel, relPos))
	c := r3.Dot(relPos, relPos) - totalRadius*totalRadius
	discr := math.Sqrt(max(0, b*b-4*a*c))
	return clamp((-b-discr)*inv2A, 0, timeHoriz)
}

// ClampVector limits the length of v.
func ClampVector(v r3.Vec, maxLen float64) r3.Vec {
	n2 := r3.Norm2(v)
	if n2 <= maxLen*maxLen || n2 <= smallNumber {
		return v
	}
	return r3.Scale(maxLen/math.Sqrt(n2), v)
}

// smoothStep is the cubic hermite ease on [0,1].
func smoothStep(x float64) float64 {
	return x * x * (3 - 2*x)
}

// projectOnSegment returns the clamped parameter of p projected on a-b.
func projectOnSegment(p, a, b r2.Vec) float64 {
	ab := r2.Sub(b, a)
	d := r2.Dot(ab, ab)
	if d <= smallNumber {
		return 0
	}
	return clamp(r2.Dot(r2.Sub(p, a), ab)/d, 0, 1)
}

// exponentialSmoothing moves v toward target with the given smoothing time,
// using the rational approximation of exp.
func exponentialSmoothing(v, target r3.Vec, dt, smoothingTime float64) r3.Vec {
	if smoothingTime <= smallNumber {
		return target
	}
	a := dt / smoothingTime
	alpha := 1 - 1/(1+a+0.48*a*a+0.235*a*a*a)
	return r3.Add(v, r3.Scale(alpha, r3.Sub(target, v)))
}

func vec2(v r3.Vec) r2.Vec {
	return r2.Vec{X: v.X, Y: v.Y}
}

type sortedObstacle struct {
	item   ObstacleItem
	distSq float64
}

// findCloseObstacles collects neighbours within radius, nearest first.
func findCloseObstacles(sub *Substrate, grid *ObstacleGrid, self ecs.Entity, center r3.Vec, radius float64, scratch []ObstacleItem, out []sortedObstacle) ([]ObstacleItem, []sortedObstacle) {
	scratch = grid.Query(boxAround(center, radius, radius), scratch[:0])
	out = out[:0]
	cutoff := radius * radius
	for _, it := range scratch {
		if it.Entity == self || !sub.IsValid(it.Entity) {
			continue
		}
		d := r3.Norm2(flat(r3.Sub(it.Location, center)))
		if d > cutoff {
			continue
		}
		out = append(out, sortedObstacle{item: it, distSq: d})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].distSq < out[j].distSq })
	if len(out) > maxObstacleResults {
		out = out[:maxObstacleResults]
	}
	return scratch, out
}
