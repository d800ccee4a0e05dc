package systems

import (
	"math"
	"testing"

	"github.com/mlange-42/ark/ecs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/squadsim/components"
)

func TestClosestPointOfApproach(t *testing.T) {
	tests := []struct {
		name           string
		relPos, relVel r3.Vec
		want           float64
	}{
		{"closing head on", r3.Vec{X: 100}, r3.Vec{X: -100}, 0.8},
		{"separating", r3.Vec{X: 100}, r3.Vec{X: 100}, 0},
		{"static", r3.Vec{X: 100}, r3.Vec{}, 0},
		{"beyond horizon", r3.Vec{X: 10000}, r3.Vec{X: -100}, 5},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.want, ClosestPointOfApproach(tc.relPos, tc.relVel, 20, 5), 1e-9)
		})
	}
}

func TestClosestPointOfApproachSegment(t *testing.T) {
	a, b := r2.Vec{X: -50}, r2.Vec{X: 50}

	got := ClosestPointOfApproachSegment(r2.Vec{Y: -100}, r2.Vec{Y: 100}, 10, a, b, 5)
	assert.InDelta(t, 0.9, got, 1e-9)

	// Heading for the end cap.
	got = ClosestPointOfApproachSegment(r2.Vec{X: 150}, r2.Vec{X: -100}, 10, a, b, 5)
	assert.InDelta(t, 0.9, got, 1e-9)

	// Moving parallel and clear of the segment never touches.
	got = ClosestPointOfApproachSegment(r2.Vec{X: -200, Y: 100}, r2.Vec{X: 100}, 10, a, b, 1)
	assert.GreaterOrEqual(t, got, 0.0)
	assert.LessOrEqual(t, got, 1.0)
}

func TestClampVector(t *testing.T) {
	v := ClampVector(r3.Vec{X: 30, Y: 40}, 10)
	assert.InDelta(t, 10, r3.Norm(v), 1e-9)
	assert.InDelta(t, 0.6, v.X/10, 1e-9)
	assert.Equal(t, r3.Vec{X: 3, Y: 4}, ClampVector(r3.Vec{X: 3, Y: 4}, 10))
	assert.Equal(t, r3.Vec{}, ClampVector(r3.Vec{}, 10))
}

func TestExponentialSmoothing(t *testing.T) {
	v := r3.Vec{X: 100}
	for i := 0; i < 200; i++ {
		next := exponentialSmoothing(v, r3.Vec{}, 1.0/60, 0.4)
		require.Less(t, next.X, v.X)
		require.Greater(t, next.X, 0.0)
		v = next
	}
	assert.Less(t, v.X, 1.0)
	assert.Equal(t, r3.Vec{X: 7}, exponentialSmoothing(r3.Vec{}, r3.Vec{X: 7}, 0.1, 0))
}

func movingTo(goal r3.Vec, speed float64) components.MoveTarget {
	return components.MoveTarget{
		Center: goal, Forward: r3.Vec{X: 1}, DesiredSpeed: speed, DistanceToGoal: 1000,
		Action: components.ActionMove, PreviousAction: components.ActionMove,
		IntentAtGoal: components.ActionStand, ActionID: 1,
	}
}

func TestMovingAvoidancePushesApart(t *testing.T) {
	sub := NewSubstrate()
	ctx := newTestContext(sub)
	grid := NewObstacleGrid(sub, ctx.Cfg.Grids.Obstacle)
	env := NewEnvironment(ctx.Cfg.Grids.Environment, nil)
	ma := NewMovingAvoidance(sub, grid, env, ctx.Cfg)

	a := spawnAgent(sub, r3.Vec{}, movingTo(r3.Vec{X: 1000}, 300), 40)
	bMt := movingTo(r3.Vec{X: -1000}, 300)
	bMt.Forward = r3.Vec{X: -1}
	b := spawnAgent(sub, r3.Vec{X: 150}, bMt, 40)
	sub.Velocities.Get(a).Value = r3.Vec{X: 300}
	sub.Velocities.Get(b).Value = r3.Vec{X: -300}

	grid.Execute(ctx)
	require.Equal(t, 2, grid.Len())
	ma.Execute(ctx)

	fa := sub.Forces.Get(a).Value
	fb := sub.Forces.Get(b).Value
	assert.Less(t, fa.X, 0.0)
	assert.Greater(t, fb.X, 0.0)
	assert.InDelta(t, -fa.X, fb.X, 1e-6)
	assert.LessOrEqual(t, r3.Norm(fa), ctx.Cfg.Avoidance.MaxAcceleration+1e-9)
}

func TestMovingAvoidanceWall(t *testing.T) {
	sub := NewSubstrate()
	ctx := newTestContext(sub)
	grid := NewObstacleGrid(sub, ctx.Cfg.Grids.Obstacle)
	wall := Wall{Box: r3.Box{Min: r3.Vec{X: 100, Y: -500}, Max: r3.Vec{X: 200, Y: 500, Z: 250}}}
	env := NewEnvironment(ctx.Cfg.Grids.Environment, []Wall{wall})
	ma := NewMovingAvoidance(sub, grid, env, ctx.Cfg)

	a := spawnAgent(sub, r3.Vec{}, movingTo(r3.Vec{X: 1000}, 300), 40)
	sub.Velocities.Get(a).Value = r3.Vec{X: 300}

	grid.Execute(ctx)
	ma.Execute(ctx)

	assert.Less(t, sub.Forces.Get(a).Value.X, 0.0)
}

func TestMovingAvoidanceFadesAtPathStart(t *testing.T) {
	sub := NewSubstrate()
	ctx := newTestContext(sub)
	grid := NewObstacleGrid(sub, ctx.Cfg.Grids.Obstacle)
	ma := NewMovingAvoidance(sub, grid, NewEnvironment(ctx.Cfg.Grids.Environment, nil), ctx.Cfg)

	mt := movingTo(r3.Vec{X: 1000}, 300)
	mt.PreviousAction = components.ActionStand
	a := spawnAgent(sub, r3.Vec{}, mt, 40)
	spawnAgent(sub, r3.Vec{X: 60}, movingTo(r3.Vec{X: -1000}, 300), 40)

	grid.Execute(ctx)
	ma.Execute(ctx)

	// Start-of-path scale is zero and the action just started.
	assert.Equal(t, r3.Vec{}, sub.Forces.Get(a).Value)
}

func TestStandingGhostsSpreadWithinDeviation(t *testing.T) {
	sub := NewSubstrate()
	ctx := newTestContext(sub)
	grid := NewObstacleGrid(sub, ctx.Cfg.Grids.Obstacle)
	sa := NewStandingAvoidance(sub, grid, ctx.Cfg)
	maxDev := ctx.Cfg.Avoidance.Standing.GhostToTargetMaxDeviation

	center := r3.Vec{X: 500, Y: 500}
	var agents []ecs.Entity
	for i := 0; i < 5; i++ {
		ang := 2 * math.Pi * float64(i) / 5
		loc := r3.Add(center, r3.Vec{X: 10 * math.Cos(ang), Y: 10 * math.Sin(ang)})
		mt := components.MoveTarget{Center: center, Forward: r3.Vec{X: 1}, Action: components.ActionStand, ActionID: 1}
		agents = append(agents, spawnAgent(sub, loc, mt, 40))
	}

	minPairwise := func() float64 {
		best := math.Inf(1)
		for i := range agents {
			for j := i + 1; j < len(agents); j++ {
				d := r3.Norm(r3.Sub(sub.Ghosts.Get(agents[i]).Location, sub.Ghosts.Get(agents[j]).Location))
				best = min(best, d)
			}
		}
		return best
	}

	grid.Execute(ctx)
	sa.Execute(ctx)
	for _, e := range agents {
		g := sub.Ghosts.Get(e)
		require.True(t, g.IsValid(1))
		require.Equal(t, sub.Transforms.Get(e).Location, g.Location)
	}
	before := minPairwise()

	for tick := 0; tick < 240; tick++ {
		grid.Execute(ctx)
		sa.Execute(ctx)
		for _, e := range agents {
			dev := r3.Norm(r3.Sub(sub.Ghosts.Get(e).Location, center))
			require.LessOrEqual(t, dev, maxDev+1e-6, "tick %d", tick)
		}
	}
	assert.Greater(t, minPairwise(), before)
}

func TestStandingGhostResetsOnNewAction(t *testing.T) {
	sub := NewSubstrate()
	ctx := newTestContext(sub)
	grid := NewObstacleGrid(sub, ctx.Cfg.Grids.Obstacle)
	sa := NewStandingAvoidance(sub, grid, ctx.Cfg)

	mt := components.MoveTarget{Center: r3.Vec{}, Forward: r3.Vec{X: 1}, Action: components.ActionStand, ActionID: 1}
	e := spawnAgent(sub, r3.Vec{X: 5}, mt, 40)
	grid.Execute(ctx)
	sa.Execute(ctx)
	require.True(t, sub.Ghosts.Get(e).IsValid(1))

	sub.Transforms.Get(e).Location = r3.Vec{X: 300}
	sub.MoveTargets.Get(e).CreateNewAction(components.ActionStand, 1)
	sa.Execute(ctx)

	g := sub.Ghosts.Get(e)
	assert.True(t, g.IsValid(2))
	assert.Equal(t, r3.Vec{X: 300}, g.Location)
}
