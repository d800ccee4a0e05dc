package systems

import (
	"io"
	"log/slog"

	"github.com/mlange-42/ark/ecs"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/squadsim/components"
	"github.com/pthm-cable/squadsim/config"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestContext(sub *Substrate) *TickContext {
	cfg := config.Default()
	return &TickContext{
		Sub:     sub,
		Cfg:     cfg,
		Toggles: cfg.Toggles,
		Runner:  SerialRunner{},
		Cmds:    NewCommands(1),
		Stats:   &TickStats{},
		Log:     discardLogger(),
		DT:      cfg.Simulation.DT,
	}
}

// spawnSoldier creates a soldier with everything the combat processors need,
// waiting for a target.
func spawnSoldier(sub *Substrate, loc r3.Vec, yaw float64, team1 bool, minCal float64) ecs.Entity {
	e := sub.Spawn(components.Transform{Location: loc, Yaw: yaw})
	sub.Teams.Add(e, &components.TeamMember{IsOnTeam1: team1})
	sub.Damageables.Add(e, &components.Damageable{MinCaliberForDamage: minCal, IsSoldier: true})
	sub.Capsules.Add(e, &components.CapsuleParams{Radius: 40, Length: 200})
	sub.TargetCells.Add(e, &components.TargetGridCell{})
	sub.Healths.Add(e, &components.Health{Value: 100, Max: 100})
	sub.Targets.Add(e, &components.TargetEntity{Caliber: 10, EngagementRange: 5000, IsSoldier: true})
	sub.MoveTargets.Add(e, &components.MoveTarget{Center: loc, Forward: components.Transform{Yaw: yaw}.Forward()})
	sub.Stashed.Add(e, &components.StashedMoveTarget{})
	sub.AddTag(e, TagSoldier)
	sub.AddTag(e, TagNeedsEnemyTarget)
	return e
}

// spawnAgent creates a navigating agent for the avoidance processors.
func spawnAgent(sub *Substrate, loc r3.Vec, mt components.MoveTarget, radius float64) ecs.Entity {
	e := sub.Spawn(components.Transform{Location: loc, Yaw: components.YawFromDirection(mt.Forward)})
	sub.Velocities.Add(e, &components.Velocity{})
	sub.Forces.Add(e, &components.Force{})
	sub.Radii.Add(e, &components.AgentRadius{Radius: radius})
	sub.ObstacleCell.Add(e, &components.ObstacleGridCell{})
	sub.MoveTargets.Add(e, &mt)
	sub.Ghosts.Add(e, &components.Ghost{})
	sub.AddTag(e, TagAvoidsObstacles)
	return e
}

func itemFor(sub *Substrate, e ecs.Entity) TargetGridItem {
	item, ok := TargetItem(sub, e)
	if !ok {
		panic("entity is not targetable")
	}
	return item
}

func countSignals(events []SignalEvent, e ecs.Entity, s Signal) int {
	n := 0
	for _, ev := range events {
		if ev.Entity == e && ev.Signal == s {
			n++
		}
	}
	return n
}
