package game

import (
	"github.com/mlange-42/ark/ecs"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/squadsim/components"
)

// RespawnPlayer puts a dead player back at its spawn point with full health.
// Players are never destroyed, so anything targeting them keeps a valid
// handle and re-evaluates visibility on its own.
func (g *Game) RespawnPlayer(e ecs.Entity) {
	sub := g.sub
	if !sub.IsValid(e) || !sub.SpawnPoints.Has(e) {
		g.log.Warn("respawn skipped, no spawn point", "entity", e.ID())
		return
	}
	sp := *sub.SpawnPoints.Get(e)

	t := sub.Transforms.Get(e)
	t.Location = sp.Location
	t.Yaw = sp.Yaw

	if sub.Healths.Has(e) {
		h := sub.Healths.Get(e)
		h.Value = h.Max
	}
	if sub.Velocities.Has(e) {
		sub.Velocities.Get(e).Value = r3.Vec{}
	}
	if sub.MoveTargets.Has(e) {
		mt := sub.MoveTargets.Get(e)
		mt.CreateNewAction(components.ActionStand, sub.Now)
		mt.Center = sp.Location
		mt.Forward = t.Forward()
		mt.DistanceToGoal = 0
	}
	if sub.PrevLocs.Has(e) {
		sub.PrevLocs.Get(e).Location = sp.Location
	}

	g.log.Info("player respawned",
		"entity", e.ID(),
		"tick", g.tick,
		"x", sp.Location.X,
		"y", sp.Location.Y,
	)
}
