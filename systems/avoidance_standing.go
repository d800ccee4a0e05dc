package systems

import (
	"github.com/mlange-42/ark/ecs"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/squadsim/components"
	"github.com/pthm-cable/squadsim/config"
)

// ghostSteeringMinDistance is the distance below which a ghost stops seeking.
const ghostSteeringMinDistance = 1.0

type standingRow struct {
	entity ecs.Entity
	ghost  *components.Ghost
	loc    r3.Vec
	radius float64
	mt     components.MoveTarget
}

type standingScratch struct {
	items []ObstacleItem
	close []sortedObstacle
}

// StandingAvoidance simulates a ghost position per standing agent that
// settles into the crowd. The real agent follows its ghost downstream.
type StandingAvoidance struct {
	grid   *ObstacleGrid
	params config.StandingAvoidanceConfig

	filter  *ecs.Filter4[components.Ghost, components.Transform, components.AgentRadius, components.MoveTarget]
	rows    []standingRow
	scratch []standingScratch
}

// NewStandingAvoidance creates the processor.
func NewStandingAvoidance(sub *Substrate, grid *ObstacleGrid, c *config.Config) *StandingAvoidance {
	return &StandingAvoidance{
		grid:   grid,
		params: c.Avoidance.Standing,
		filter: ecs.NewFilter4[components.Ghost, components.Transform, components.AgentRadius, components.MoveTarget](sub.World).
			With(ecs.C[components.AvoidsObstacles]()),
	}
}

// SetParams swaps the tuning parameters.
func (sa *StandingAvoidance) SetParams(p config.StandingAvoidanceConfig) {
	sa.params = p
}

// Execute steps every standing agent's ghost. Each agent writes only its own
// Ghost.
func (sa *StandingAvoidance) Execute(ctx *TickContext) {
	sa.rows = sa.rows[:0]
	query := sa.filter.Query()
	for query.Next() {
		g, t, r, mt := query.Get()
		if mt.Action != components.ActionStand {
			continue
		}
		if !g.IsValid(mt.ActionID) {
			// New stand action: the ghost starts where the agent is.
			*g = components.Ghost{Location: t.Location, LastActionID: mt.ActionID, Valid: true}
			continue
		}
		sa.rows = append(sa.rows, standingRow{entity: query.Entity(), ghost: g, loc: t.Location, radius: r.Radius, mt: *mt})
	}
	if len(sa.scratch) < ctx.Runner.Workers() {
		sa.scratch = make([]standingScratch, ctx.Runner.Workers())
	}
	ctx.Runner.ParallelFor(len(sa.rows), func(worker, start, end int) {
		s := &sa.scratch[worker]
		for i := start; i < end; i++ {
			sa.step(ctx, &sa.rows[i], s)
		}
	})
}

func (sa *StandingAvoidance) step(ctx *TickContext, r *standingRow, s *standingScratch) {
	p := &sa.params
	dt := ctx.DT
	g := r.ghost
	ghostSepDist := p.GhostSeparationDistance
	ghostSepStiff := p.GhostSeparationStiffness
	movingSepDist := p.GhostSeparationDistance * p.MovingObstacleAvoidanceScale
	movingSepStiff := p.GhostSeparationStiffness * p.MovingObstacleAvoidanceScale

	steerK := 1 / p.GhostSteeringReactionTime
	delta := flat(r3.Sub(r.mt.Center, g.Location))
	dist := r3.Norm(delta)
	var steerDir r3.Vec
	speedFade := 0.0
	if dist > ghostSteeringMinDistance {
		steerDir = r3.Scale(1/dist, delta)
		speedFade = clamp(dist/max(1e-4, p.GhostStandSlowdownRadius), 0, 1)
	}
	desired := r3.Scale(p.GhostMaxSpeed*speedFade, steerDir)
	force := r3.Scale(steerK, r3.Sub(desired, g.Velocity))

	s.items, s.close = findCloseObstacles(ctx.Sub, sa.grid, r.entity, r.loc, p.GhostObstacleDetectionDistance, s.items, s.close)
	ghostRadius := r.radius * p.GhostSeparationRadiusScale
	n := min(len(s.close), p.MaxColliders)
	for _, o := range s.close[:n] {
		other := o.item
		total := ghostRadius + other.Radius
		if other.HasGhost {
			// Push harder against ghosts that are far from their own goal.
			otherFade := clamp(r3.Norm(r3.Sub(other.GhostLocation, other.MoveCenter))/p.GhostToTargetMaxDeviation, 0, 1)
			stiffness := lerp(ghostSepStiff, movingSepStiff, otherFade)
			rel := flat(r3.Sub(g.Location, other.GhostLocation))
			conDist := r3.Norm(rel)
			conNorm := r3.Vec{X: 1}
			if conDist > 0 {
				conNorm = r3.Scale(1/conDist, rel)
			}
			pen := (total + ghostSepDist) - conDist
			mag := smoothStep(clamp(pen/ghostSepDist, 0, 1))
			force = r3.Add(force, r3.Scale(stiffness*mag, conNorm))
			continue
		}

		// Treat a non-ghost agent as a capsule protruding along its forward.
		dirToOther := safeNormal(r3.Sub(other.Location, g.Location))
		dirFade := max(0, r3.Dot(r.mt.Forward, dirToOther))
		dirScale := lerp(p.MovingObstacleDirectionalScale, 1, dirFade*dirFade)
		personal := r3.Add(other.Location, r3.Scale(other.Radius*p.MovingObstaclePersonalSpaceScale*dirScale, other.Forward))
		closest := ClosestPointOnSegment(g.Location, other.Location, personal)
		rel := flat(r3.Sub(g.Location, closest))
		conDist := r3.Norm(rel)
		conNorm := r3.Vec{X: 1}
		if conDist > 0 {
			conNorm = r3.Scale(1/conDist, rel)
		}
		pen := (total + movingSepDist) - conDist
		mag := smoothStep(clamp(pen/movingSepDist, 0, 1))
		force = r3.Add(force, r3.Scale(movingSepStiff*mag, conNorm))
	}

	force.Z = 0
	force = ClampVector(force, p.GhostMaxAcceleration)
	g.Velocity = r3.Add(g.Velocity, r3.Scale(dt, force))
	g.Velocity.Z = 0
	g.Velocity = exponentialSmoothing(g.Velocity, r3.Vec{}, dt, p.GhostVelocityDampingTime)
	g.Location = r3.Add(g.Location, r3.Scale(dt, g.Velocity))

	toCenter := r3.Sub(g.Location, r.mt.Center)
	if d := r3.Norm(toCenter); d > p.GhostToTargetMaxDeviation {
		g.Location = r3.Add(r.mt.Center, r3.Scale(p.GhostToTargetMaxDeviation/d, toCenter))
	}
}
