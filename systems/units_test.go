package systems

import (
	"errors"
	"testing"

	"github.com/mlange-42/ark/ecs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/squadsim/components"
	"github.com/pthm-cable/squadsim/config"
)

func TestUnitCommanderPromotion(t *testing.T) {
	sub := NewSubstrate()
	ctx := newTestContext(sub)
	reg := NewUnitRegistry(sub)

	u := reg.NewUnit(true)
	var members []ecs.Entity
	for i := 0; i < 3; i++ {
		e := spawnSoldier(sub, r3.Vec{X: float64(i) * 100}, 0, true, 5)
		sub.UnitMembers.Add(e, &components.UnitMember{})
		reg.Join(u, e)
		members = append(members, e)
	}
	require.Equal(t, members[0], u.Commander)
	assert.True(t, sub.UnitMembers.Get(members[0]).IsCommander)
	assert.False(t, sub.UnitMembers.Get(members[1]).IsCommander)

	ctx.Cmds.Main().Destroy(members[0])
	ctx.Flush()

	deaths := reg.TakeDeaths()
	require.Len(t, deaths, 1)
	assert.True(t, deaths[0].WasCommander)
	assert.Equal(t, members[1], deaths[0].Promoted)
	assert.Equal(t, members[1], u.Commander)
	assert.True(t, sub.UnitMembers.Get(members[1]).IsCommander)

	ctx.Cmds.Main().Destroy(members[2])
	ctx.Flush()
	deaths = reg.TakeDeaths()
	require.Len(t, deaths, 1)
	assert.False(t, deaths[0].WasCommander)
	assert.Equal(t, 1, reg.Len())

	ctx.Cmds.Main().Destroy(members[1])
	ctx.Flush()
	assert.Zero(t, reg.Len())
	_, ok := reg.Unit(u.ID)
	assert.False(t, ok)
}

func TestEffectQueue(t *testing.T) {
	sub := NewSubstrate()
	ctx := newTestContext(sub)
	q := NewEffectQueue([]config.EffectConfig{{Name: "explosion", LifetimeSeconds: 0.05}})

	_, err := q.Lookup(3)
	assert.True(t, errors.Is(err, ErrUnknownEffect))
	cfg, err := q.Lookup(0)
	require.NoError(t, err)
	assert.Equal(t, "explosion", cfg.Name)

	q.Spawn(0, r3.Vec{X: 5})
	q.Spawn(7, r3.Vec{X: 6})
	assert.Equal(t, 2, q.Pending())
	assert.Equal(t, 1, q.Drain(ctx))
	assert.Zero(t, q.Pending())

	destroyer := NewDelayedDestroyer(sub)
	alive := func() int {
		n := 0
		query := ecs.NewFilter1[components.Effect](sub.World).Query()
		for query.Next() {
			n++
		}
		return n
	}
	require.Equal(t, 1, alive())

	// 0.05s lifetime at 60Hz lasts three ticks.
	for i := 0; i < 2; i++ {
		destroyer.Execute(ctx)
	}
	assert.Equal(t, 1, alive())
	destroyer.Execute(ctx)
	assert.Zero(t, alive())
}
