package game

import (
	"github.com/pthm-cable/squadsim/systems"
	"github.com/pthm-cable/squadsim/telemetry"
)

// flushTelemetry checks if the stats window should be flushed and handles bookmarks.
func (g *Game) flushTelemetry() {
	if !g.collector.ShouldFlush(g.tick) {
		return
	}

	stats := g.collector.Flush(g.tick, g.sampleForces())
	perfStats := g.perfCollector.Stats()

	if g.opts.LogStats {
		stats.LogStats(g.log)
		perfStats.LogStats(g.log)
		g.logWorldState(stats)
	}

	if err := g.outputManager.WriteCombat(stats); err != nil {
		g.log.Error("failed to write combat stats", "error", err)
	}
	if err := g.outputManager.WritePerf(perfStats, g.runID, stats.WindowEndTick); err != nil {
		g.log.Error("failed to write perf", "error", err)
	}

	for _, bm := range g.bookmarkDetector.Check(stats) {
		bm.LogBookmark(g.log)
		if err := g.outputManager.WriteBookmark(bm); err != nil {
			g.log.Error("failed to write bookmark", "error", err)
		}
		if g.outputManager != nil {
			g.saveSnapshot(&bm)
		}
	}
}

// sampleForces collects per-team health and counts at the end of a window.
func (g *Game) sampleForces() telemetry.Forces {
	var f telemetry.Forces
	query := g.combatants.Query()
	for query.Next() {
		_, team, h := query.Get()
		if g.sub.HasTag(query.Entity(), systems.TagPlayerControlled) {
			continue
		}
		if team.IsOnTeam1 {
			f.Team1Health = append(f.Team1Health, float64(h.Value))
		} else {
			f.Team2Health = append(f.Team2Health, float64(h.Value))
		}
	}
	f.Units = g.units.Len()
	pq := g.projectiles.Query()
	for pq.Next() {
		f.Projectiles++
	}
	return f
}

// saveSnapshot creates and saves a snapshot to disk.
func (g *Game) saveSnapshot(bookmark *telemetry.Bookmark) {
	snapshot := g.createSnapshot(false, bookmark)

	path, err := telemetry.SaveSnapshot(snapshot, g.outputManager.SnapshotDir())
	if err != nil {
		g.log.Error("failed to save snapshot", "error", err)
		return
	}
	g.log.Info("snapshot saved", "path", path, "tick", g.tick)
}

// publishSnapshot streams the battle state to the debug view.
func (g *Game) publishSnapshot(ctx *systems.TickContext) {
	every := int64(g.cfg.Debug.SnapshotEveryTicks)
	if g.opts.OnSnapshot == nil || every <= 0 || g.tick%every != 0 {
		return
	}
	data, err := g.createSnapshot(ctx.Toggles.DrawCapsules, nil).Encode()
	if err != nil {
		g.log.Error("failed to encode snapshot", "error", err)
		return
	}
	g.opts.OnSnapshot(data)
}

// createSnapshot builds a snapshot from the current state.
func (g *Game) createSnapshot(withCapsules bool, bookmark *telemetry.Bookmark) *telemetry.Snapshot {
	sub := g.sub
	snapshot := &telemetry.Snapshot{
		Version:  telemetry.SnapshotVersion,
		RunID:    g.runID,
		Seed:     g.opts.Seed,
		Tick:     g.tick,
		SimTime:  sub.Now,
		Bookmark: bookmark,
	}

	query := g.combatants.Query()
	for query.Next() {
		e := query.Entity()
		t, team, h := query.Get()
		state := telemetry.EntityState{
			ID:      e.ID(),
			X:       t.Location.X,
			Y:       t.Location.Y,
			Z:       t.Location.Z,
			Yaw:     t.Yaw,
			Team1:   team.IsOnTeam1,
			Soldier: sub.HasTag(e, systems.TagSoldier),
			Player:  sub.HasTag(e, systems.TagPlayerControlled),
			Health:  h.Value,
			UnitID:  -1,
		}
		if sub.Targets.Has(e) {
			if target := sub.Targets.Get(e).Entity; !target.IsZero() {
				state.Target = target.ID()
			}
		}
		if sub.MoveTargets.Has(e) {
			state.Action = sub.MoveTargets.Get(e).Action.String()
		}
		if sub.UnitMembers.Has(e) {
			state.UnitID = sub.UnitMembers.Get(e).UnitID
		}
		snapshot.Entities = append(snapshot.Entities, state)

		if withCapsules && sub.Capsules.Has(e) {
			c := systems.MakeCapsule(*sub.Capsules.Get(e), *t)
			snapshot.Capsules = append(snapshot.Capsules, telemetry.CapsuleState{
				AX: c.A.X, AY: c.A.Y, AZ: c.A.Z,
				BX: c.B.X, BY: c.B.Y, BZ: c.B.Z,
				Radius: c.R,
			})
		}
	}

	pq := g.projectiles.Query()
	for pq.Next() {
		t, dmg := pq.Get()
		snapshot.Projectiles = append(snapshot.Projectiles, telemetry.ProjectileState{
			X: t.Location.X, Y: t.Location.Y, Z: t.Location.Z,
			Team1: dmg.FromTeam1,
		})
	}

	for _, team1 := range []bool{true, false} {
		g.sounds.Visit(team1, func(s systems.SoundItem) {
			snapshot.Sounds = append(snapshot.Sounds, telemetry.SoundState{
				X: s.Location.X, Y: s.Location.Y, Z: s.Location.Z,
				HeardByTeam1:    team1,
				FromEnvironment: s.Source == systems.SourceEnvironment,
			})
		})
	}

	for _, w := range g.env.Walls() {
		snapshot.Walls = append(snapshot.Walls, telemetry.WallState{
			MinX: w.Box.Min.X, MinY: w.Box.Min.Y, MinZ: w.Box.Min.Z,
			MaxX: w.Box.Max.X, MaxY: w.Box.Max.Y, MaxZ: w.Box.Max.Z,
		})
	}
	return snapshot
}
