package systems

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/squadsim/components"
	"github.com/pthm-cable/squadsim/config"
)

func newTestSounds(ttl int) *SoundPerception {
	return NewSoundPerception(config.GridConfig{CellSize: 1000, Levels: 2, Ratio: 4}, config.SoundConfig{TTLTicks: ttl, QueryRadius: 10000, Extent: 3})
}

func TestSoundRouting(t *testing.T) {
	tests := []struct {
		name         string
		source       SoundSource
		team1, team2 int
	}{
		{"team1 shot heard by team2", SourceTeam1, 0, 1},
		{"team2 shot heard by team1", SourceTeam2, 1, 0},
		{"environment heard by both", SourceEnvironment, 1, 1},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			sp := newTestSounds(2)
			sp.AddSoundPerception(r3.Vec{X: 10}, tc.source)
			assert.Zero(t, sp.Len(true)+sp.Len(false), "visible before update")

			sp.Update()
			assert.Equal(t, tc.team1, sp.Len(true))
			assert.Equal(t, tc.team2, sp.Len(false))
		})
	}
}

func TestSoundTTL(t *testing.T) {
	sp := newTestSounds(2)
	sp.AddSoundPerception(r3.Vec{}, SourceEnvironment)

	assert.Equal(t, 1, sp.Update())
	assert.Equal(t, 1, sp.Len(true))
	assert.Zero(t, sp.Update())
	assert.Equal(t, 1, sp.Len(true))
	sp.Update()
	assert.Zero(t, sp.Len(true))
	assert.Zero(t, sp.Len(false))
	assert.Empty(t, sp.GetSoundsNearLocation(true, r3.Vec{}, 100, nil))
}

func TestGetClosestSoundWithLineOfSight(t *testing.T) {
	cfg := config.Default()
	wall := Wall{Box: r3.Box{Min: r3.Vec{X: 90, Y: -50}, Max: r3.Vec{X: 110, Y: 50, Z: 300}}}
	env := NewEnvironment(cfg.Grids.Environment, []Wall{wall})

	sp := newTestSounds(5)
	hidden := r3.Vec{X: 200, Z: 100}
	visible := r3.Vec{Y: 400, Z: 100}
	sp.AddSoundPerception(hidden, SourceTeam2)
	sp.AddSoundPerception(visible, SourceTeam2)
	sp.Update()

	near := sp.GetSoundsNearLocation(true, r3.Vec{Z: 100}, 1000, nil)
	assert.Len(t, near, 2)

	got, ok := sp.GetClosestSoundWithLineOfSight(true, r3.Vec{Z: 100}, 1000, env)
	require.True(t, ok)
	assert.Equal(t, visible, got.Location)

	_, ok = sp.GetClosestSoundWithLineOfSight(false, r3.Vec{Z: 100}, 1000, env)
	assert.False(t, ok)
}

func TestAudioPerceptionTurnsListener(t *testing.T) {
	sub := NewSubstrate()
	ctx := newTestContext(sub)
	sp := newTestSounds(5)
	env := NewEnvironment(ctx.Cfg.Grids.Environment, nil)
	ap := NewAudioPerception(sub, sp, env, NewFinderParams(ctx.Cfg), ctx.Cfg)

	listener := spawnSoldier(sub, r3.Vec{}, 0, true, 5)
	sp.AddSoundPerception(r3.Vec{Y: 500}, SourceTeam2)
	sp.Update()

	ap.Execute(ctx)

	mt := sub.MoveTargets.Get(listener)
	assert.InDelta(t, 0, mt.Forward.X, 1e-9)
	assert.InDelta(t, 1, mt.Forward.Y, 1e-9)
	assert.True(t, sub.HasTag(listener, TagTrackSound))
	assert.Equal(t, 1, countSignals(ctx.Cmds.Signals(), listener, SignalSoundHeard))
	assert.Equal(t, 1, ctx.Stats.SoundsTracked)

	// Still turning: nothing changes.
	ap.Execute(ctx)
	assert.True(t, sub.HasTag(listener, TagTrackSound))

	// Turned: the forward-complete signal ends the track.
	signaler := NewForwardCompleteSignaler(sub, ctx.Cfg.TargetFinder.FacingToleranceRad)
	sub.Transforms.Get(listener).Yaw = components.YawFromDirection(sub.MoveTargets.Get(listener).Forward)
	signaler.Execute(ctx)
	assert.Equal(t, 1, countSignals(ctx.Cmds.Signals(), listener, SignalNewTaskRequired))
	assert.False(t, FinishTrackSound(sub, listener), "standing listener had no move order")
	assert.False(t, sub.HasTag(listener, TagTrackSound))
}

func TestAudioPerceptionStashesMoveOrder(t *testing.T) {
	sub := NewSubstrate()
	ctx := newTestContext(sub)
	sp := newTestSounds(5)
	ap := NewAudioPerception(sub, sp, NewEnvironment(ctx.Cfg.Grids.Environment, nil), NewFinderParams(ctx.Cfg), ctx.Cfg)
	steer := NewSteering(sub, ctx.Cfg.Movement)
	signaler := NewForwardCompleteSignaler(sub, ctx.Cfg.TargetFinder.FacingToleranceRad)

	listener := spawnSoldier(sub, r3.Vec{}, 0, true, 5)
	sub.Velocities.Add(listener, &components.Velocity{})
	sub.Forces.Add(listener, &components.Force{})
	order := movingTo(r3.Vec{X: 2000}, 300)
	*sub.MoveTargets.Get(listener) = order

	sp.AddSoundPerception(r3.Vec{Y: 500}, SourceTeam2)
	sp.Update()
	ap.Execute(ctx)

	mt := sub.MoveTargets.Get(listener)
	require.Equal(t, components.ActionStand, mt.Action)
	assert.Equal(t, components.ActionMove, mt.IntentAtGoal)
	assert.Equal(t, r3.Vec{}, mt.Center)
	assert.True(t, sub.HasTag(listener, TagTrackSound))
	assert.True(t, sub.HasTag(listener, TagNeedsForwardCompleteSignal))
	assert.True(t, sub.HasTag(listener, TagHasStashedMoveTarget))

	// Steering must not pull the forward back toward the old goal.
	steer.Execute(ctx)
	mt = sub.MoveTargets.Get(listener)
	assert.InDelta(t, 0, mt.Forward.X, 1e-9)
	assert.InDelta(t, 1, mt.Forward.Y, 1e-9)

	ap.Execute(ctx)
	signaler.Execute(ctx)
	assert.True(t, sub.HasTag(listener, TagTrackSound), "still turning")
	assert.Zero(t, countSignals(ctx.Cmds.Signals(), listener, SignalNewTaskRequired))

	sub.Transforms.Get(listener).Yaw = components.YawFromDirection(mt.Forward)
	signaler.Execute(ctx)
	require.Equal(t, 1, countSignals(ctx.Cmds.Signals(), listener, SignalNewTaskRequired))

	require.True(t, FinishTrackSound(sub, listener))
	mt = sub.MoveTargets.Get(listener)
	assert.Equal(t, components.ActionMove, mt.Action)
	assert.Equal(t, order.Center, mt.Center)
	assert.Equal(t, order.IntentAtGoal, mt.IntentAtGoal)
	assert.False(t, sub.HasTag(listener, TagTrackSound))
	assert.False(t, sub.HasTag(listener, TagHasStashedMoveTarget))
}

func TestAudioPerceptionClearsAbandonedTrack(t *testing.T) {
	sub := NewSubstrate()
	ctx := newTestContext(sub)
	sp := newTestSounds(5)
	ap := NewAudioPerception(sub, sp, NewEnvironment(ctx.Cfg.Grids.Environment, nil), NewFinderParams(ctx.Cfg), ctx.Cfg)

	listener := spawnSoldier(sub, r3.Vec{}, 0, true, 5)
	sp.AddSoundPerception(r3.Vec{Y: 500}, SourceTeam2)
	sp.Update()
	ap.Execute(ctx)
	require.True(t, sub.HasTag(listener, TagTrackSound))

	// A look-at consumed the forward-complete signal.
	sub.RemoveTag(listener, TagNeedsForwardCompleteSignal)
	ap.Execute(ctx)
	assert.False(t, sub.HasTag(listener, TagTrackSound))
}

func TestAudioPerceptionIgnoresOwnTeam(t *testing.T) {
	sub := NewSubstrate()
	ctx := newTestContext(sub)
	sp := newTestSounds(5)
	ap := NewAudioPerception(sub, sp, NewEnvironment(ctx.Cfg.Grids.Environment, nil), NewFinderParams(ctx.Cfg), ctx.Cfg)

	listener := spawnSoldier(sub, r3.Vec{}, 0, true, 5)
	sp.AddSoundPerception(r3.Vec{Y: 500}, SourceTeam1)
	sp.Update()
	ap.Execute(ctx)

	assert.False(t, sub.HasTag(listener, TagTrackSound))
	assert.Zero(t, ctx.Stats.SoundsTracked)
}
