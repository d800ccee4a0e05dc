package systems

import (
	"math"

	"github.com/mlange-42/ark/ecs"
	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/squadsim/components"
	"github.com/pthm-cable/squadsim/config"
)

// Steering computes the goal-seeking force each tick, before avoidance adds
// to it, and completes Move actions on arrival.
type Steering struct {
	params config.MovementConfig
	filter *ecs.Filter4[components.Force, components.Transform, components.Velocity, components.MoveTarget]
}

// NewSteering creates the processor.
func NewSteering(sub *Substrate, c config.MovementConfig) *Steering {
	return &Steering{
		params: c,
		filter: ecs.NewFilter4[components.Force, components.Transform, components.Velocity, components.MoveTarget](sub.World),
	}
}

// Execute resets and recomputes Force for every agent.
func (st *Steering) Execute(ctx *TickContext) {
	buf := ctx.Cmds.Main()
	k := st.params.SteeringK
	query := st.filter.Query()
	for query.Next() {
		f, t, v, mt := query.Get()
		e := query.Entity()

		var desired r3.Vec
		switch mt.Action {
		case components.ActionMove:
			delta := flat(r3.Sub(mt.Center, t.Location))
			mt.DistanceToGoal = r3.Norm(delta)
			if mt.DistanceToGoal <= st.params.ArrivalDistance {
				mt.CreateNewAction(mt.IntentAtGoal, ctx.Sub.Now)
				mt.Center = t.Location
				mt.DistanceToGoal = 0
				buf.Signal(e, SignalNewTaskRequired)
				break
			}
			speed := mt.DesiredSpeed
			if mt.IntentAtGoal == components.ActionStand {
				speed *= clamp(mt.DistanceToGoal/(4*st.params.ArrivalDistance), 0.25, 1)
			}
			desired = r3.Scale(speed/mt.DistanceToGoal, delta)
			mt.Forward = safeNormalOr(delta, mt.Forward)
		case components.ActionStand:
			if ctx.Sub.Ghosts.Has(e) {
				g := ctx.Sub.Ghosts.Get(e)
				if g.IsValid(mt.ActionID) {
					toGhost := flat(r3.Sub(g.Location, t.Location))
					desired = ClampVector(r3.Scale(k, toGhost), mt.DesiredSpeed)
				}
			}
		}
		f.Value = r3.Scale(k, r3.Sub(desired, flat(v.Value)))
	}
	ctx.Flush()
}

// Integrator advances agents from their Force and turns them toward their
// move-target forward.
type Integrator struct {
	params config.MovementConfig
	bounds r2.Box
	filter *ecs.Filter4[components.Force, components.Transform, components.Velocity, components.MoveTarget]
}

// NewIntegrator creates the processor. Agents are kept inside bounds.
func NewIntegrator(sub *Substrate, c config.MovementConfig, bounds r2.Box) *Integrator {
	return &Integrator{
		params: c,
		bounds: bounds,
		filter: ecs.NewFilter4[components.Force, components.Transform, components.Velocity, components.MoveTarget](sub.World),
	}
}

// Execute integrates one tick.
func (in *Integrator) Execute(ctx *TickContext) {
	dt := ctx.DT
	maxTurn := in.params.TurnRate * dt
	query := in.filter.Query()
	for query.Next() {
		f, t, v, mt := query.Get()
		v.Value = ClampVector(flat(r3.Add(v.Value, r3.Scale(dt, f.Value))), in.params.MaxSpeed)
		t.Location = r3.Add(t.Location, r3.Scale(dt, v.Value))
		t.Location.X = clamp(t.Location.X, in.bounds.Min.X, in.bounds.Max.X)
		t.Location.Y = clamp(t.Location.Y, in.bounds.Min.Y, in.bounds.Max.Y)

		if r3.Norm2(mt.Forward) < smallNumber {
			continue
		}
		d := YawDelta(t.Yaw, components.YawFromDirection(mt.Forward))
		t.Yaw += clamp(d, -maxTurn, maxTurn)
		t.Yaw = math.Remainder(t.Yaw, 2*math.Pi)
	}
}
