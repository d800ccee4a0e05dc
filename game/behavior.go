package game

import (
	"github.com/mlange-42/ark/ecs"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/squadsim/components"
	"github.com/pthm-cable/squadsim/systems"
)

// advanceFraction is how far into the field one advance order reaches.
const advanceFraction = 1.0 / 6.0

// handleSignals is the behavior layer. It turns the signals drained this
// tick into orders and collects squad death notices.
func (g *Game) handleSignals(ctx *systems.TickContext) {
	buf := ctx.Cmds.Main()
	for _, ev := range ctx.Cmds.TakeSignals() {
		e := ev.Entity
		if !g.sub.IsValid(e) || g.sub.HasTag(e, systems.TagPlayerControlled) {
			continue
		}
		switch ev.Signal {
		case systems.SignalTargetAcquired:
			systems.LookAtTarget(g.sub, buf, e, ctx.Log)
		case systems.SignalNewTaskRequired:
			if g.sub.HasTag(e, systems.TagTrackTarget) {
				break
			}
			if systems.FinishTrackSound(g.sub, e) {
				break
			}
			g.assignTask(e)
		case systems.SignalTargetLost:
			// Entities that had a move order stashed got it back already.
			if g.sub.MoveTargets.Has(e) && g.sub.MoveTargets.Get(e).Action != components.ActionMove {
				g.assignTask(e)
			}
		}
	}

	for _, d := range g.units.TakeDeaths() {
		if d.WasCommander {
			ctx.Log.Debug("commander lost",
				"unit", d.UnitID,
				"team1", d.IsOnTeam1,
				"promoted", !d.Promoted.IsZero(),
			)
		}
		g.deaths = append(g.deaths, d)
	}
	ctx.Flush()
}

// assignTask gives an idle entity its next order. Commanders and vehicles
// advance toward the enemy; commanders pull idle squad members along.
// Members follow their squad goal.
func (g *Game) assignTask(e ecs.Entity) {
	sub := g.sub
	if !sub.MoveTargets.Has(e) || !sub.Transforms.Has(e) || !sub.Teams.Has(e) {
		return
	}
	loc := sub.Transforms.Get(e).Location
	team1 := sub.Teams.Get(e).IsOnTeam1

	if !sub.UnitMembers.Has(e) {
		if goal, ok := g.advanceGoal(loc, team1); ok {
			g.order(e, goal)
		}
		return
	}

	member := sub.UnitMembers.Get(e)
	unit, ok := g.units.Unit(member.UnitID)
	if !ok {
		return
	}
	if !member.IsCommander {
		if goal, ok := g.unitGoals[unit.ID]; ok {
			g.order(e, g.formationSlot(unit, e, goal))
			return
		}
		if goal, ok := g.advanceGoal(loc, team1); ok {
			g.order(e, goal)
		}
		return
	}

	goal, ok := g.advanceGoal(loc, team1)
	if !ok {
		return
	}
	g.unitGoals[unit.ID] = goal
	g.order(e, g.formationSlot(unit, e, goal))
	for _, m := range unit.Members {
		if m == e || !g.isIdle(m) {
			continue
		}
		g.order(m, g.formationSlot(unit, m, goal))
	}
}

// advanceGoal picks the next waypoint toward the enemy side. It reports
// false when the entity is already as far as it can go.
func (g *Game) advanceGoal(from r3.Vec, team1 bool) (r3.Vec, bool) {
	sc := g.cfg.Scenario
	step := sc.FieldDepth * advanceFraction
	dir := 1.0
	if !team1 {
		dir = -1
	}
	goal := r3.Vec{
		X: from.X + (g.rng.Float64()*2-1)*step/4,
		Y: from.Y + dir*step,
	}
	goal = g.clampToField(goal)
	if r3.Norm(r3.Sub(goal, from)) <= g.cfg.Movement.ArrivalDistance {
		return r3.Vec{}, false
	}
	return goal, true
}

// formationSlot spreads squad members in a line across the goal.
func (g *Game) formationSlot(unit *systems.Unit, e ecs.Entity, goal r3.Vec) r3.Vec {
	idx := 0
	for i, m := range unit.Members {
		if m == e {
			idx = i
			break
		}
	}
	spacing := 4 * g.cfg.Scenario.Soldier.AgentRadius
	offset := (float64(idx) - float64(len(unit.Members)-1)/2) * spacing
	return g.clampToField(r3.Vec{X: goal.X + offset, Y: goal.Y})
}

// isIdle reports whether an entity is standing without a target.
func (g *Game) isIdle(e ecs.Entity) bool {
	if !g.sub.IsValid(e) || !g.sub.MoveTargets.Has(e) || g.sub.HasTag(e, systems.TagTrackTarget) {
		return false
	}
	return g.sub.MoveTargets.Get(e).Action == components.ActionStand
}

// order starts a Move action to goal, standing on arrival. Goals within
// arrival distance are ignored so arrived entities do not re-order forever.
func (g *Game) order(e ecs.Entity, goal r3.Vec) bool {
	loc := g.sub.Transforms.Get(e).Location
	d := r3.Vec{X: goal.X - loc.X, Y: goal.Y - loc.Y}
	dist := r3.Norm(d)
	if dist <= g.cfg.Movement.ArrivalDistance {
		return false
	}
	mt := g.sub.MoveTargets.Get(e)
	mt.CreateNewAction(components.ActionMove, g.sub.Now)
	mt.Center = goal
	mt.IntentAtGoal = components.ActionStand
	mt.DistanceToGoal = dist
	mt.Forward = r3.Scale(1/dist, d)
	return true
}
