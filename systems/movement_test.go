package systems

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/squadsim/components"
)

var wideBounds = r2.Box{Min: r2.Vec{X: -10000, Y: -10000}, Max: r2.Vec{X: 10000, Y: 10000}}

func TestSteeringArrives(t *testing.T) {
	sub := NewSubstrate()
	ctx := newTestContext(sub)
	steer := NewSteering(sub, ctx.Cfg.Movement)
	integrate := NewIntegrator(sub, ctx.Cfg.Movement, wideBounds)

	goal := r3.Vec{X: 500}
	e := spawnAgent(sub, r3.Vec{}, movingTo(goal, 300), 40)

	arrived := -1
	for tick := 0; tick < 600 && arrived < 0; tick++ {
		steer.Execute(ctx)
		integrate.Execute(ctx)
		if countSignals(ctx.Cmds.TakeSignals(), e, SignalNewTaskRequired) > 0 {
			arrived = tick
		}
		require.LessOrEqual(t, r3.Norm(sub.Velocities.Get(e).Value), ctx.Cfg.Movement.MaxSpeed+1e-9)
	}

	require.GreaterOrEqual(t, arrived, 0, "never arrived")
	mt := sub.MoveTargets.Get(e)
	assert.Equal(t, components.ActionStand, mt.Action)
	assert.Equal(t, components.ActionMove, mt.PreviousAction)
	assert.Equal(t, uint16(2), mt.ActionID)
	assert.Less(t, r3.Norm(r3.Sub(sub.Transforms.Get(e).Location, goal)), ctx.Cfg.Movement.ArrivalDistance+1)
}

func TestIntegratorTurnsAtTurnRate(t *testing.T) {
	sub := NewSubstrate()
	ctx := newTestContext(sub)
	integrate := NewIntegrator(sub, ctx.Cfg.Movement, wideBounds)

	mt := components.MoveTarget{Forward: r3.Vec{Y: 1}, Action: components.ActionStand, ActionID: 1}
	e := spawnAgent(sub, r3.Vec{}, mt, 40)
	sub.Transforms.Get(e).Yaw = 0

	integrate.Execute(ctx)
	step := ctx.Cfg.Movement.TurnRate * ctx.DT
	assert.InDelta(t, step, sub.Transforms.Get(e).Yaw, 1e-9)

	for i := 0; i < 120; i++ {
		integrate.Execute(ctx)
	}
	assert.InDelta(t, math.Pi/2, sub.Transforms.Get(e).Yaw, 1e-9)
}

func TestIntegratorKeepsInsideBounds(t *testing.T) {
	sub := NewSubstrate()
	ctx := newTestContext(sub)
	bounds := r2.Box{Max: r2.Vec{X: 100, Y: 100}}
	integrate := NewIntegrator(sub, ctx.Cfg.Movement, bounds)

	e := spawnAgent(sub, r3.Vec{X: 95, Y: 50}, movingTo(r3.Vec{X: 1000, Y: 50}, 300), 40)
	sub.Velocities.Get(e).Value = r3.Vec{X: 500}
	for i := 0; i < 10; i++ {
		integrate.Execute(ctx)
	}
	assert.Equal(t, 100.0, sub.Transforms.Get(e).Location.X)
}
