package game

import (
	"math"

	"github.com/mlange-42/ark/ecs"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/squadsim/components"
	"github.com/pthm-cable/squadsim/config"
	"github.com/pthm-cable/squadsim/systems"
)

const (
	// squadSpread is the half-width of the box a squad spawns in.
	squadSpread = 300.0
	// wallMargin keeps walls away from the spawn zones.
	wallMargin = 400.0
)

// teamYaw returns the facing toward the enemy side.
func teamYaw(team1 bool) float64 {
	if team1 {
		return math.Pi / 2
	}
	return -math.Pi / 2
}

// spawnZoneY returns a random depth inside the team's spawn zone.
func (g *Game) spawnZoneY(team1 bool) float64 {
	sc := g.cfg.Scenario
	y := g.rng.Float64() * sc.SpawnDepth
	if team1 {
		return y
	}
	return sc.FieldDepth - y
}

// generateWalls scatters wall boxes across the no-man's land between the
// spawn zones.
func (g *Game) generateWalls() []systems.Wall {
	sc := g.cfg.Scenario
	minY := sc.SpawnDepth + wallMargin
	maxY := sc.FieldDepth - sc.SpawnDepth - wallMargin
	if maxY <= minY || sc.Walls <= 0 {
		return nil
	}

	walls := make([]systems.Wall, 0, sc.Walls)
	for i := 0; i < sc.Walls; i++ {
		w := 200 + g.rng.Float64()*600
		d := 60 + g.rng.Float64()*90
		x := g.rng.Float64() * (sc.FieldWidth - w)
		y := minY + g.rng.Float64()*(maxY-minY-d)
		walls = append(walls, systems.Wall{Box: r3.Box{
			Min: r3.Vec{X: x, Y: y},
			Max: r3.Vec{X: x + w, Y: y + d, Z: sc.WallHeight},
		}})
	}
	return walls
}

// spawnScenario creates both armies and the player.
func (g *Game) spawnScenario() {
	sc := g.cfg.Scenario

	for _, team1 := range []bool{true, false} {
		var unit *systems.Unit
		var centerX, centerY float64
		for i := 0; i < sc.SoldiersPerTeam; i++ {
			if sc.SquadSize <= 0 || i%sc.SquadSize == 0 {
				unit = g.units.NewUnit(team1)
				centerX = squadSpread + g.rng.Float64()*(sc.FieldWidth-2*squadSpread)
				centerY = g.spawnZoneY(team1)
			}
			loc := r3.Vec{
				X: centerX + (g.rng.Float64()*2-1)*squadSpread,
				Y: centerY + (g.rng.Float64()*2-1)*squadSpread,
			}
			loc = g.clampToField(loc)
			e := g.spawnCombatant(loc, teamYaw(team1), team1, sc.Soldier, true)
			g.units.Join(unit, e)
		}
		for i := 0; i < sc.VehiclesPerTeam; i++ {
			loc := r3.Vec{X: g.rng.Float64() * sc.FieldWidth, Y: g.spawnZoneY(team1)}
			g.spawnCombatant(g.clampToField(loc), teamYaw(team1), team1, sc.Vehicle, false)
		}
	}

	if sc.SoldiersPerTeam > 0 {
		g.player = g.spawnPlayer(sc.PlayerOnTeam1)
	}

	// Give every squad and vehicle its first order.
	for _, e := range g.aiEntities() {
		g.assignTask(e)
	}
}

// spawnCombatant creates a soldier or vehicle from a template.
func (g *Game) spawnCombatant(loc r3.Vec, yaw float64, team1 bool, tmpl config.UnitTemplate, soldier bool) ecs.Entity {
	sub := g.sub
	t := components.Transform{Location: loc, Yaw: yaw}
	e := sub.Spawn(t)

	sub.Teams.Add(e, &components.TeamMember{IsOnTeam1: team1})
	g.addBody(e, tmpl, soldier)

	sub.Targets.Add(e, &components.TargetEntity{
		Caliber:         tmpl.Weapon.Caliber,
		EngagementRange: g.cfg.TargetFinder.EngagementRange,
		IsSoldier:       soldier,
	})
	sub.Weapons.Add(e, &components.Weapon{
		CooldownSeconds: tmpl.Weapon.CooldownSeconds,
		MuzzleDistance:  tmpl.Weapon.MuzzleDistance,
		ProjectileSpeed: tmpl.Weapon.ProjectileSpeed,
		Projectile: components.ProjectileDamage{
			DamagePerHit:    tmpl.Weapon.Damage,
			Caliber:         tmpl.Weapon.Caliber,
			SplashRadius:    tmpl.Weapon.SplashRadius,
			Radius:          tmpl.Weapon.ProjectileRadius,
			ExplosionEffect: g.cfg.EffectID(tmpl.Weapon.ExplosionEffect),
		},
	})
	sub.MoveTargets.Add(e, &components.MoveTarget{
		Center:       loc,
		Forward:      t.Forward(),
		DesiredSpeed: tmpl.Speed,
		Action:       components.ActionStand,
		IntentAtGoal: components.ActionStand,
	})
	sub.Stashed.Add(e, &components.StashedMoveTarget{})
	sub.Ghosts.Add(e, &components.Ghost{})

	if soldier {
		sub.UnitMembers.Add(e, &components.UnitMember{UnitID: -1})
	} else {
		sub.Colliders.Add(e, &components.Collider{
			Shape:      components.ColliderPill,
			Radius:     tmpl.AgentRadius,
			HalfLength: tmpl.CapsuleLength / 2,
		})
	}

	sub.AddTag(e, systems.TagNeedsEnemyTarget)
	sub.AddTag(e, systems.TagAvoidsObstacles)
	return e
}

// addBody attaches the fragments that make an entity targetable, damageable
// and an obstacle for others.
func (g *Game) addBody(e ecs.Entity, tmpl config.UnitTemplate, soldier bool) {
	sub := g.sub
	sub.Damageables.Add(e, &components.Damageable{
		MinCaliberForDamage: tmpl.MinCaliberForDamage,
		IsSoldier:           soldier,
	})
	sub.Capsules.Add(e, &components.CapsuleParams{
		AlongForward: tmpl.CapsuleAlongForward,
		Radius:       tmpl.CapsuleRadius,
		Length:       tmpl.CapsuleLength,
	})
	sub.TargetCells.Add(e, &components.TargetGridCell{})
	sub.Healths.Add(e, &components.Health{Value: tmpl.Health, Max: tmpl.Health})
	sub.Velocities.Add(e, &components.Velocity{})
	sub.Forces.Add(e, &components.Force{})
	sub.Radii.Add(e, &components.AgentRadius{Radius: tmpl.AgentRadius})
	sub.ObstacleCell.Add(e, &components.ObstacleGridCell{})
	if soldier {
		sub.AddTag(e, systems.TagSoldier)
	}
}

// spawnPlayer creates the player-controlled soldier at its team's spawn
// center. It can be shot but has no weapon or AI.
func (g *Game) spawnPlayer(team1 bool) ecs.Entity {
	sc := g.cfg.Scenario
	sp := components.SpawnPoint{
		Location: r3.Vec{X: sc.FieldWidth / 2, Y: sc.SpawnDepth / 2},
		Yaw:      teamYaw(team1),
	}
	if !team1 {
		sp.Location.Y = sc.FieldDepth - sc.SpawnDepth/2
	}

	t := components.Transform{Location: sp.Location, Yaw: sp.Yaw}
	e := g.sub.Spawn(t)
	g.sub.Teams.Add(e, &components.TeamMember{IsOnTeam1: team1})
	g.addBody(e, sc.Soldier, true)
	g.sub.MoveTargets.Add(e, &components.MoveTarget{
		Center:  sp.Location,
		Forward: t.Forward(),
		Action:  components.ActionStand,
	})
	g.sub.SpawnPoints.Add(e, &sp)
	g.sub.AddTag(e, systems.TagPlayerControlled)
	return e
}

// aiEntities lists everything the behavior layer gives orders to.
func (g *Game) aiEntities() []ecs.Entity {
	var out []ecs.Entity
	query := g.combatants.Query()
	for query.Next() {
		e := query.Entity()
		if !g.sub.HasTag(e, systems.TagPlayerControlled) {
			out = append(out, e)
		}
	}
	return out
}

func (g *Game) clampToField(v r3.Vec) r3.Vec {
	v.X = min(max(v.X, g.bounds.Min.X), g.bounds.Max.X)
	v.Y = min(max(v.Y, g.bounds.Min.Y), g.bounds.Max.Y)
	return v
}
