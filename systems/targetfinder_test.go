package systems

import (
	"math"
	"testing"

	"github.com/mlange-42/ark/ecs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/squadsim/config"
)

func shooterFor(sub *Substrate, e ecs.Entity) Shooter {
	t := sub.Transforms.Get(e)
	target := sub.Targets.Get(e)
	return Shooter{
		Entity:          e,
		Location:        t.Location,
		Forward:         t.Forward(),
		IsOnTeam1:       sub.Teams.Get(e).IsOnTeam1,
		Caliber:         target.Caliber,
		Range:           target.EngagementRange,
		IsSoldier:       target.IsSoldier,
		ProjectileSpeed: 9000,
	}
}

func TestBestTargetCaliberGate(t *testing.T) {
	cfg := config.Default()
	p := NewFinderParams(cfg)
	env := NewEnvironment(cfg.Grids.Environment, nil)

	tests := []struct {
		name      string
		minCal    float64
		wantFound bool
	}{
		{"damageable enemy", 5, true},
		{"armor above caliber", 15, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			sub := NewSubstrate()
			e1 := spawnSoldier(sub, r3.Vec{}, 0, true, 5)
			e2 := spawnSoldier(sub, r3.Vec{X: 100}, 0, false, tc.minCal)

			got, ok := BestTarget(shooterFor(sub, e1), []TargetGridItem{itemFor(sub, e1), itemFor(sub, e2)}, env, p)
			assert.Equal(t, tc.wantFound, ok)
			if tc.wantFound {
				assert.Equal(t, e2, got.Entity)
			}
		})
	}
}

func TestBestTargetPrefersArmorThenDistance(t *testing.T) {
	cfg := config.Default()
	p := NewFinderParams(cfg)
	env := NewEnvironment(cfg.Grids.Environment, nil)
	sub := NewSubstrate()

	shooter := spawnSoldier(sub, r3.Vec{}, 0, true, 5)
	near := spawnSoldier(sub, r3.Vec{X: 100, Y: 300}, 0, false, 5)
	armoredFar := spawnSoldier(sub, r3.Vec{X: 1000, Y: -300}, 0, false, 8)
	armoredNear := spawnSoldier(sub, r3.Vec{X: 500}, 0, false, 8)
	outOfRange := spawnSoldier(sub, r3.Vec{X: 6000}, 0, false, 9)

	cands := []TargetGridItem{
		itemFor(sub, near), itemFor(sub, armoredFar), itemFor(sub, armoredNear), itemFor(sub, outOfRange),
	}
	got, ok := BestTarget(shooterFor(sub, shooter), cands, env, p)
	require.True(t, ok)
	assert.Equal(t, armoredNear, got.Entity)
}

func TestBestTargetObstruction(t *testing.T) {
	cfg := config.Default()
	p := NewFinderParams(cfg)

	t.Run("friendly in the line of fire", func(t *testing.T) {
		sub := NewSubstrate()
		env := NewEnvironment(cfg.Grids.Environment, nil)
		shooter := spawnSoldier(sub, r3.Vec{}, 0, true, 5)
		enemy := spawnSoldier(sub, r3.Vec{X: 1000}, 0, false, 5)
		friend := spawnSoldier(sub, r3.Vec{X: 500}, 0, true, 5)

		cands := []TargetGridItem{itemFor(sub, enemy), itemFor(sub, friend)}
		_, ok := BestTarget(shooterFor(sub, shooter), cands, env, p)
		assert.False(t, ok)

		// Step the friend aside and the shot opens up.
		sub.Transforms.Get(friend).Location = r3.Vec{X: 500, Y: 400}
		cands[1] = itemFor(sub, friend)
		got, ok := BestTarget(shooterFor(sub, shooter), cands, env, p)
		require.True(t, ok)
		assert.Equal(t, enemy, got.Entity)
	})

	t.Run("wall between", func(t *testing.T) {
		sub := NewSubstrate()
		wall := Wall{Box: r3.Box{Min: r3.Vec{X: 400, Y: -100}, Max: r3.Vec{X: 600, Y: 100, Z: 250}}}
		env := NewEnvironment(cfg.Grids.Environment, []Wall{wall})
		shooter := spawnSoldier(sub, r3.Vec{}, 0, true, 5)
		enemy := spawnSoldier(sub, r3.Vec{X: 1000}, 0, false, 5)

		_, ok := BestTarget(shooterFor(sub, shooter), []TargetGridItem{itemFor(sub, enemy)}, env, p)
		assert.False(t, ok)
	})
}

func TestSolveVerticalAim(t *testing.T) {
	const g = 980.0
	vz := SolveVerticalAim(1000, 0, 1000, g)
	assert.InDelta(t, 490, vz, 1e-9)

	// The projectile arrives at the requested height after the flight time.
	for _, dz := range []float64{-200, 0, 150} {
		vz := SolveVerticalAim(2000, dz, 4000, g)
		tFlight := 2000.0 / 4000.0
		assert.InDelta(t, dz, vz*tFlight-0.5*g*tFlight*tFlight, 1e-9)
	}

	assert.Zero(t, SolveVerticalAim(1000, 50, 0, g))
	assert.Zero(t, SolveVerticalAim(0, 50, 1000, g))
}

func TestBoxForPhaseCoversBox(t *testing.T) {
	box := r2.Box{Min: r2.Vec{X: -100, Y: 0}, Max: r2.Vec{X: 100, Y: 200}}
	assert.Equal(t, box, BoxForPhase(box, 1, 5))

	sub := BoxForPhase(box, 2, 3)
	assert.Equal(t, r2.Box{Min: r2.Vec{X: 0, Y: 100}, Max: r2.Vec{X: 100, Y: 200}}, sub)

	area := 0.0
	for phase := 0; phase < 9; phase++ {
		b := BoxForPhase(box, 3, phase)
		area += (b.Max.X - b.Min.X) * (b.Max.Y - b.Min.Y)
		assert.GreaterOrEqual(t, b.Min.X, box.Min.X-1e-9)
		assert.LessOrEqual(t, b.Max.Y, box.Max.Y+1e-9)
	}
	assert.InDelta(t, 200*200, area, 1e-6)
}

func TestSearchBoxIsForwardBiased(t *testing.T) {
	s := Shooter{Location: r3.Vec{X: 10, Y: 20}, Forward: r3.Vec{Y: 1}, Range: 1000}
	box := SearchBox(s)
	assert.InDelta(t, 20, box.Min.Y, 1e-9)
	assert.InDelta(t, 1020, box.Max.Y, 1e-9)
	assert.InDelta(t, -490, box.Min.X, 1e-9)
}

func TestEnemyTargetFinderAcquires(t *testing.T) {
	sub := NewSubstrate()
	ctx := newTestContext(sub)
	grid := NewTargetGrid(sub, ctx.Cfg.Grids.Target)
	env := NewEnvironment(ctx.Cfg.Grids.Environment, nil)
	finder := NewEnemyTargetFinder(sub, grid, env, NewFinderParams(ctx.Cfg))

	e1 := spawnSoldier(sub, r3.Vec{}, 0, true, 5)
	e2 := spawnSoldier(sub, r3.Vec{X: 100}, 0, false, 5)

	grid.Execute(ctx)
	require.Equal(t, 2, grid.Len())
	finder.Execute(ctx)

	target := sub.Targets.Get(e1)
	assert.Equal(t, e2, target.Entity)
	assert.Equal(t, 10.0, target.Caliber)
	assert.False(t, sub.HasTag(e1, TagNeedsEnemyTarget))
	assert.True(t, sub.HasTag(e1, TagWillNeedEnemyTarget))
	assert.Equal(t, 1, countSignals(ctx.Cmds.Signals(), e1, SignalTargetAcquired))
	assert.Equal(t, 1, ctx.Stats.TargetsAcquired)

	// e2 faces away from e1 and keeps searching.
	assert.True(t, sub.HasTag(e2, TagNeedsEnemyTarget))
	assert.False(t, sub.Targets.Get(e2).HasTarget())
}

func TestEnemyTargetFinderSkipToggle(t *testing.T) {
	sub := NewSubstrate()
	ctx := newTestContext(sub)
	ctx.Toggles.SkipFindingTargets = true
	grid := NewTargetGrid(sub, ctx.Cfg.Grids.Target)
	finder := NewEnemyTargetFinder(sub, grid, NewEnvironment(ctx.Cfg.Grids.Environment, nil), NewFinderParams(ctx.Cfg))

	e1 := spawnSoldier(sub, r3.Vec{}, 0, true, 5)
	spawnSoldier(sub, r3.Vec{X: 100}, 0, false, 5)
	grid.Execute(ctx)
	finder.Execute(ctx)

	assert.True(t, sub.HasTag(e1, TagNeedsEnemyTarget))
	assert.Zero(t, ctx.Stats.TargetsAcquired)
}

func TestVerticalAimOffsetVehicle(t *testing.T) {
	p := FinderParams{Gravity: 980, SoldierSpawnZOffset: 150, VehicleSpawnZOffset: 300, VehicleAimZOffset: 100}
	s := Shooter{Location: r3.Vec{}, ProjectileSpeed: 1000}
	target := TargetGridItem{Location: r3.Vec{X: 1000}}
	// Vehicle to vehicle: muzzle at 300, aim at 100.
	want := SolveVerticalAim(1000, -200, 1000, 980)
	assert.InDelta(t, want, p.VerticalAimOffset(s, target), 1e-9)
	assert.False(t, math.IsNaN(want))
}
