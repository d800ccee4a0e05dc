package systems

import (
	"testing"

	"github.com/mlange-42/ark/ecs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/squadsim/components"
)

// engage wires shooter onto target as if acquisition had succeeded.
func engage(sub *Substrate, shooter, target ecs.Entity) {
	sub.Targets.Get(shooter).Entity = target
	sub.RemoveTag(shooter, TagNeedsEnemyTarget)
	sub.AddTag(shooter, TagWillNeedEnemyTarget)
}

func assertBackToAcquisition(t *testing.T, sub *Substrate, e ecs.Entity) {
	t.Helper()
	assert.True(t, sub.HasTag(e, TagNeedsEnemyTarget))
	assert.False(t, sub.HasTag(e, TagWillNeedEnemyTarget))
	assert.False(t, sub.HasTag(e, TagTrackTarget))
	assert.False(t, sub.Targets.Get(e).HasTarget())
}

func TestDestroyedTargetInvalidatedSameTick(t *testing.T) {
	sub := NewSubstrate()
	ctx := newTestContext(sub)
	finder := NewDestroyedTargetFinder(sub, ctx.Cfg.TargetFinder.DestroyedMaxRange)

	e1 := spawnSoldier(sub, r3.Vec{}, 0, true, 5)
	e2 := spawnSoldier(sub, r3.Vec{X: 100}, 0, false, 5)
	engage(sub, e1, e2)
	sub.AddTag(e1, TagTrackTarget)

	ctx.Cmds.Main().Destroy(e2)
	ctx.Flush()
	require.False(t, sub.IsValid(e2))

	finder.Execute(ctx)

	assertBackToAcquisition(t, sub, e1)
	assert.Equal(t, 1, countSignals(ctx.Cmds.Signals(), e1, SignalTargetLost))
	assert.Equal(t, 1, ctx.Stats.TargetsLost)
}

func TestDestroyedTargetFinderRange(t *testing.T) {
	sub := NewSubstrate()
	ctx := newTestContext(sub)
	finder := NewDestroyedTargetFinder(sub, 1000)

	e1 := spawnSoldier(sub, r3.Vec{}, 0, true, 5)
	e2 := spawnSoldier(sub, r3.Vec{X: 900}, 0, false, 5)
	engage(sub, e1, e2)

	finder.Execute(ctx)
	assert.True(t, sub.HasTag(e1, TagWillNeedEnemyTarget))
	assert.Equal(t, e2, sub.Targets.Get(e1).Entity)

	sub.Transforms.Get(e2).Location = r3.Vec{X: 1200}
	finder.Execute(ctx)
	assertBackToAcquisition(t, sub, e1)
}

func TestInvalidTargetFinder(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(sub *Substrate, ctx *TickContext, shooter, target ecs.Entity)
		wantValid bool
	}{
		{
			name:      "still valid",
			mutate:    func(*Substrate, *TickContext, ecs.Entity, ecs.Entity) {},
			wantValid: true,
		},
		{
			name: "out of engagement range",
			mutate: func(sub *Substrate, _ *TickContext, _, target ecs.Entity) {
				sub.Transforms.Get(target).Location = r3.Vec{X: 5500}
			},
		},
		{
			name: "armor upgraded",
			mutate: func(sub *Substrate, _ *TickContext, _, target ecs.Entity) {
				sub.Damageables.Get(target).MinCaliberForDamage = 50
			},
		},
		{
			name: "friend stepped into the line of fire",
			mutate: func(sub *Substrate, _ *TickContext, _, _ ecs.Entity) {
				spawnSoldier(sub, r3.Vec{X: 500}, 0, true, 5)
			},
		},
		{
			name: "invalidate all toggle",
			mutate: func(_ *Substrate, ctx *TickContext, _, _ ecs.Entity) {
				ctx.Toggles.InvalidateAllTargets = true
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			sub := NewSubstrate()
			ctx := newTestContext(sub)
			grid := NewTargetGrid(sub, ctx.Cfg.Grids.Target)
			env := NewEnvironment(ctx.Cfg.Grids.Environment, nil)
			finder := NewInvalidTargetFinder(sub, grid, env, NewFinderParams(ctx.Cfg))

			shooter := spawnSoldier(sub, r3.Vec{}, 0, true, 5)
			target := spawnSoldier(sub, r3.Vec{X: 1000}, 0, false, 5)
			engage(sub, shooter, target)

			tc.mutate(sub, ctx, shooter, target)
			grid.Execute(ctx)
			finder.Execute(ctx)

			if tc.wantValid {
				assert.True(t, sub.HasTag(shooter, TagWillNeedEnemyTarget))
				assert.Equal(t, target, sub.Targets.Get(shooter).Entity)
				assert.Zero(t, ctx.Stats.TargetsLost)
				return
			}
			assertBackToAcquisition(t, sub, shooter)
			assert.Equal(t, 1, countSignals(ctx.Cmds.Signals(), shooter, SignalTargetLost))
		})
	}
}

func TestInvalidationRestoresStashedMove(t *testing.T) {
	sub := NewSubstrate()
	ctx := newTestContext(sub)
	finder := NewDestroyedTargetFinder(sub, 7000)

	e1 := spawnSoldier(sub, r3.Vec{}, 0, true, 5)
	e2 := spawnSoldier(sub, r3.Vec{X: 300}, 0, false, 5)
	goal := r3.Vec{X: 2000, Y: 2000}
	*sub.MoveTargets.Get(e1) = components.MoveTarget{Center: goal, Action: components.ActionMove, ActionID: 4, DesiredSpeed: 300}
	engage(sub, e1, e2)

	require.True(t, LookAtTarget(sub, ctx.Cmds.Main(), e1, ctx.Log))
	ctx.Flush()
	require.Equal(t, components.ActionStand, sub.MoveTargets.Get(e1).Action)
	require.True(t, sub.HasTag(e1, TagTrackTarget))

	ctx.Cmds.Main().Destroy(e2)
	ctx.Flush()
	finder.Execute(ctx)

	mt := sub.MoveTargets.Get(e1)
	assert.Equal(t, components.ActionMove, mt.Action)
	assert.Equal(t, goal, mt.Center)
	assert.Equal(t, 300.0, mt.DesiredSpeed)
	assert.False(t, sub.HasTag(e1, TagHasStashedMoveTarget))
	assert.False(t, sub.HasTag(e1, TagNeedsForwardCompleteSignal))
	assertBackToAcquisition(t, sub, e1)
}
