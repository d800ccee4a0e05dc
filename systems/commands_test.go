package systems

import (
	"testing"

	"github.com/mlange-42/ark/ecs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pthm-cable/squadsim/components"
)

func TestDrainCollapsesDestroys(t *testing.T) {
	sub := NewSubstrate()
	hooks := 0
	sub.OnDestroy(func(ecs.Entity) { hooks++ })

	e := sub.Spawn(components.Transform{})
	other := sub.Spawn(components.Transform{})
	cmds := NewCommands(2)
	cmds.Buffer(0).Destroy(e)
	cmds.Buffer(1).Destroy(e)
	cmds.Buffer(1).AddTag(e, TagSoldier)
	cmds.Buffer(1).AddTag(other, TagSoldier)

	stats := cmds.Drain(sub)

	assert.Equal(t, 1, hooks)
	assert.Equal(t, 1, stats.Destroyed)
	assert.Equal(t, 2, stats.Skipped)
	assert.Equal(t, 2, stats.Applied)
	assert.False(t, sub.IsValid(e))
	assert.True(t, sub.HasTag(other, TagSoldier))
	assert.Zero(t, cmds.Pending())
}

func TestDrainOrderAndSignals(t *testing.T) {
	sub := NewSubstrate()
	a := sub.Spawn(components.Transform{})
	b := sub.Spawn(components.Transform{})

	cmds := NewCommands(2)
	cmds.Buffer(1).Signal(b, SignalDeath)
	cmds.Buffer(0).Signal(a, SignalTargetAcquired)
	cmds.Buffer(0).AddTag(a, TagTrackTarget)
	cmds.Buffer(1).RemoveTag(a, TagTrackTarget)
	require.Equal(t, 4, cmds.Pending())

	cmds.Drain(sub)

	// Worker order: buffer 0 first, so the later remove wins.
	assert.False(t, sub.HasTag(a, TagTrackTarget))
	signals := cmds.TakeSignals()
	require.Len(t, signals, 2)
	assert.Equal(t, SignalEvent{Entity: a, Signal: SignalTargetAcquired}, signals[0])
	assert.Equal(t, SignalEvent{Entity: b, Signal: SignalDeath}, signals[1])
	assert.Empty(t, cmds.Signals())
}

func TestSetFragmentDeferred(t *testing.T) {
	sub := NewSubstrate()
	e := sub.Spawn(components.Transform{})
	sub.Healths.Add(e, &components.Health{Value: 10})

	cmds := NewCommands(1)
	SetFragment(cmds.Main(), sub.Healths, e, components.Health{Value: 3, Max: 10})
	assert.Equal(t, int16(10), sub.Healths.Get(e).Value)

	cmds.Drain(sub)
	assert.Equal(t, components.Health{Value: 3, Max: 10}, *sub.Healths.Get(e))
}

func TestTagNames(t *testing.T) {
	assert.Equal(t, "needs_enemy_target", TagNeedsEnemyTarget.String())
	assert.Equal(t, "avoids_obstacles", TagAvoidsObstacles.String())
	assert.Equal(t, "unknown", Tag(200).String())
}
