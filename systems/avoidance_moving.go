package systems

import (
	"math"

	"github.com/mlange-42/ark/ecs"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/squadsim/components"
	"github.com/pthm-cable/squadsim/config"
)

// contactMergeDistance is how close two edge contacts with agreeing normals
// must be to count as one.
const contactMergeDistance = 10.0

type envContact struct {
	position r3.Vec
	normal   r3.Vec
	distance float64
}

type avoidCollider struct {
	location r3.Vec
	velocity r3.Vec
	radius   float64
	canAvoid bool
	isMoving bool
}

type movingScratch struct {
	edges     []NavEdge
	contacts  []envContact
	items     []ObstacleItem
	close     []sortedObstacle
	colliders []avoidCollider
}

type movingRow struct {
	entity ecs.Entity
	force  *components.Force
	loc    r3.Vec
	vel    r3.Vec
	radius float64
	mt     components.MoveTarget
}

// MovingAvoidance accumulates steering forces that keep moving agents off
// walls and out of each other's way.
type MovingAvoidance struct {
	grid     *ObstacleGrid
	env      *Environment
	params   config.MovingAvoidanceConfig
	maxAccel float64
	maxSpeed float64

	filter  *ecs.Filter5[components.Force, components.Transform, components.Velocity, components.AgentRadius, components.MoveTarget]
	rows    []movingRow
	scratch []movingScratch
}

// NewMovingAvoidance creates the processor.
func NewMovingAvoidance(sub *Substrate, grid *ObstacleGrid, env *Environment, c *config.Config) *MovingAvoidance {
	return &MovingAvoidance{
		grid:     grid,
		env:      env,
		params:   c.Avoidance.Moving,
		maxAccel: c.Avoidance.MaxAcceleration,
		maxSpeed: c.Movement.MaxSpeed,
		filter: ecs.NewFilter5[components.Force, components.Transform, components.Velocity, components.AgentRadius, components.MoveTarget](sub.World).
			With(ecs.C[components.AvoidsObstacles]()),
	}
}

// SetParams swaps the tuning parameters.
func (ma *MovingAvoidance) SetParams(p config.MovingAvoidanceConfig) {
	ma.params = p
}

// Execute runs avoidance for every moving agent. Each agent writes only its
// own Force.
func (ma *MovingAvoidance) Execute(ctx *TickContext) {
	ma.rows = ma.rows[:0]
	query := ma.filter.Query()
	for query.Next() {
		f, t, v, r, mt := query.Get()
		if mt.Action != components.ActionMove {
			continue
		}
		ma.rows = append(ma.rows, movingRow{
			entity: query.Entity(), force: f, loc: t.Location, vel: v.Value, radius: r.Radius, mt: *mt,
		})
	}
	if len(ma.scratch) < ctx.Runner.Workers() {
		ma.scratch = make([]movingScratch, ctx.Runner.Workers())
	}
	ctx.Runner.ParallelFor(len(ma.rows), func(worker, start, end int) {
		s := &ma.scratch[worker]
		for i := start; i < end; i++ {
			r := &ma.rows[i]
			r.force.Value = ma.steer(ctx, r, s)
		}
	})
}

func (ma *MovingAvoidance) steer(ctx *TickContext, r *movingRow, s *movingScratch) r3.Vec {
	p := &ma.params
	dt := ctx.DT
	invPredTime := 1 / p.PredictiveAvoidanceTime
	agentVel := flat(r.vel)
	sepRadius := r.radius * p.SeparationRadiusScale
	predRadius := r.radius * p.PredictiveAvoidanceRadiusScale
	force := r.force.Value

	nearStartFade, nearEndFade := 1.0, 1.0
	if r.mt.PreviousAction != components.ActionMove {
		nearStartFade = min((ctx.Sub.Now-r.mt.ActionStartTime)/p.StartOfPathDuration, 1)
	}
	if r.mt.IntentAtGoal == components.ActionStand {
		approach := max(1, p.EndOfPathDuration*r.mt.DesiredSpeed)
		nearEndFade = clamp(r.mt.DistanceToGoal/approach, 0, 1)
	}
	nearStartScaling := lerp(p.StartOfPathAvoidanceScale, 1, nearStartFade)
	nearEndScaling := lerp(p.EndOfPathAvoidanceScale, 1, nearEndFade)

	// Environment
	s.edges = ma.env.EdgesNear(boxAround(r.loc, p.ObstacleDetectionDistance, p.ObstacleDetectionDistance), s.edges[:0])
	desAcc := ClampVector(force, ma.maxAccel)
	desVel := ClampVector(r3.Add(agentVel, r3.Scale(dt, desAcc)), ma.maxSpeed)

	s.contacts = s.contacts[:0]
	for _, edge := range s.edges {
		diff := flat(r3.Sub(edge.End, edge.Start))
		edgeLen := r3.Norm(diff)
		if edgeLen <= smallNumber {
			continue
		}
		edgeDir := r3.Scale(1/edgeLen, diff)
		toStart := flat(r3.Sub(r.loc, edge.Start))
		along := r3.Dot(edgeDir, toStart)
		away := r3.Dot(edge.Normal, toStart)

		var c envContact
		behind := false
		if away < 0 {
			switch {
			case along < 0:
				c = envContact{position: edge.Start, normal: r3.Scale(-1, edgeDir), distance: -along}
			case along > edgeLen:
				c = envContact{position: edge.End, normal: edgeDir, distance: along}
			default:
				c = envContact{position: r3.Add(edge.Start, r3.Scale(along, edgeDir)), normal: edge.Normal}
				behind = true
			}
		} else {
			switch {
			case along < 0:
				d := flat(r3.Sub(r.loc, edge.Start))
				c = envContact{position: edge.Start, normal: safeNormal(d), distance: r3.Norm(d)}
			case along > edgeLen:
				d := flat(r3.Sub(r.loc, edge.End))
				c = envContact{position: edge.End, normal: safeNormal(d), distance: r3.Norm(d)}
			default:
				c = envContact{position: r3.Add(edge.Start, r3.Scale(along, edgeDir)), normal: edge.Normal, distance: away}
			}
		}
		s.contacts = mergeContact(s.contacts, c)

		if behind {
			continue
		}
		cpa := ClosestPointOfApproachSegment(vec2(r.loc), vec2(desVel), r.radius, vec2(edge.Start), vec2(edge.End), p.PredictiveAvoidanceTime)
		hitAgent := r3.Add(r.loc, r3.Scale(cpa, desVel))
		et := projectOnSegment(vec2(hitAgent), vec2(edge.Start), vec2(edge.End))
		hitOb := r3.Add(edge.Start, r3.Scale(et, r3.Sub(edge.End, edge.Start)))
		rel := flat(r3.Sub(hitAgent, hitOb))
		dist := r3.Norm(rel)
		normal := r3.Vec{X: 1}
		if dist > 0 {
			normal = r3.Scale(1/dist, rel)
		}
		pen := (predRadius + p.PredictiveAvoidanceDistance) - dist
		mag := math.Pow(clamp(pen/p.PredictiveAvoidanceDistance, 0, 1), 2)
		magDist := 1 + math.Pow(1-cpa*invPredTime, 2)
		force = r3.Add(force, r3.Scale(mag*magDist*p.EnvironmentPredictiveAvoidanceStiffness*nearEndScaling, normal))
	}
	for _, c := range s.contacts {
		pen := (sepRadius + p.EnvironmentSeparationDistance) - c.distance
		mag := smoothStep(clamp(pen/p.EnvironmentSeparationDistance, 0, 1))
		force = r3.Add(force, r3.Scale(p.EnvironmentSeparationStiffness*mag, safeNormal(c.normal)))
	}

	// Agents
	desAcc = ClampVector(force, ma.maxAccel)
	desVel = ClampVector(r3.Add(agentVel, r3.Scale(dt, desAcc)), ma.maxSpeed)
	s.items, s.close = findCloseObstacles(ctx.Sub, ma.grid, r.entity, r.loc, p.ObstacleDetectionDistance, s.items, s.close)
	s.colliders = buildColliders(s.close, p.MaxColliders, s.colliders[:0])

	minClearance := 2 * r.radius * p.StaticObstacleClearanceScale
	for _, col := range s.colliders {
		hasForced := false
		var forced r3.Vec
		if !col.canAvoid {
			maxDist := -1.0
			var closest r3.Vec
			for _, edge := range s.edges {
				pt := ClosestPointOnSegment(col.location, edge.Start, edge.End)
				off := flat(r3.Sub(col.location, pt))
				if r3.Dot(off, edge.Normal) < 0 {
					continue
				}
				l := r3.Norm(off)
				if l-col.radius < minClearance && l > maxDist {
					maxDist = l
					closest = pt
				}
			}
			if maxDist != -1 {
				forced = safeNormal(flat(r3.Sub(col.location, closest)))
				hasForced = true
			}
		}

		relPos := flat(r3.Sub(r.loc, col.location))
		relVel := r3.Sub(desVel, col.velocity)
		relVel.Z = 0
		conDist := r3.Norm(relPos)
		conNorm := r3.Vec{X: 1}
		if conDist > 0 {
			conNorm = r3.Scale(1/conDist, relPos)
		}
		sepNormal := conNorm
		if hasForced {
			blend := max(0, -r3.Dot(conNorm, safeNormal(relVel)))
			sepNormal = safeNormal(lerpVec(conNorm, forced, blend))
		}
		standingScaling := 1.0
		if !col.isMoving {
			standingScaling = p.StandingObstacleAvoidanceScale
		}

		penSep := (sepRadius + col.radius + p.ObstacleSeparationDistance) - conDist
		sepMag := math.Pow(clamp(penSep/p.ObstacleSeparationDistance, 0, 1), 2)
		force = r3.Add(force, r3.Scale(p.ObstacleSeparationStiffness*sepMag*standingScaling, sepNormal))

		cpa := ClosestPointOfApproach(relPos, relVel, predRadius+col.radius, p.PredictiveAvoidanceTime)
		avoidRel := r3.Add(relPos, r3.Scale(cpa, relVel))
		avoidDist := r3.Norm(avoidRel)
		avoidNormal := r3.Vec{X: 1}
		if avoidDist > 0 {
			avoidNormal = r3.Scale(1/avoidDist, avoidRel)
		}
		if hasForced {
			blend := max(0, -r3.Dot(avoidNormal, safeNormal(relVel)))
			avoidNormal = safeNormal(lerpVec(avoidNormal, forced, blend))
		}
		avoidPen := (predRadius + col.radius + p.PredictiveAvoidanceDistance) - avoidDist
		avoidMag := math.Pow(clamp(avoidPen/p.PredictiveAvoidanceDistance, 0, 1), 2)
		avoidMagDist := 1 - cpa*invPredTime
		force = r3.Add(force, r3.Scale(avoidMag*avoidMagDist*p.ObstaclePredictiveAvoidanceStiffness*standingScaling, avoidNormal))
	}

	force = r3.Scale(nearStartScaling*nearEndScaling, force)
	return ClampVector(force, ma.maxAccel)
}

// mergeContact folds c into an existing contact at the same place facing the
// same way, keeping the closer one.
func mergeContact(contacts []envContact, c envContact) []envContact {
	for i := range contacts {
		existing := &contacts[i]
		if r3.Dot(existing.normal, c.normal) > 0 && math.Abs(r3.Dot(c.normal, r3.Sub(existing.position, c.position))) < contactMergeDistance {
			if c.distance < existing.distance {
				*existing = c
			}
			return contacts
		}
	}
	return append(contacts, c)
}

// buildColliders turns neighbours into point colliders. Pills become two.
func buildColliders(close []sortedObstacle, maxColliders int, out []avoidCollider) []avoidCollider {
	for _, o := range close {
		if len(out) >= maxColliders {
			break
		}
		it := o.item
		base := avoidCollider{location: it.Location, velocity: it.Velocity, radius: it.Radius, canAvoid: it.CanAvoid, isMoving: it.IsMoving}
		switch it.Collider.Shape {
		case components.ColliderCircle:
			base.radius = it.Collider.Radius
			out = append(out, base)
		case components.ColliderPill:
			base.radius = it.Collider.Radius
			front := base
			front.location = r3.Add(it.Location, r3.Scale(it.Collider.HalfLength, it.Forward))
			out = append(out, front)
			if len(out) < maxColliders {
				back := base
				back.location = r3.Add(it.Location, r3.Scale(-it.Collider.HalfLength, it.Forward))
				out = append(out, back)
			}
		default:
			out = append(out, base)
		}
	}
	return out
}

func lerpVec(a, b r3.Vec, t float64) r3.Vec {
	return r3.Add(a, r3.Scale(t, r3.Sub(b, a)))
}
