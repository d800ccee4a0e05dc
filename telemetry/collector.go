// Package telemetry provides combat statistics, performance tracking,
// bookmarking and snapshots.
package telemetry

import "github.com/pthm-cable/squadsim/systems"

// Forces is the state sampled at the end of a window.
type Forces struct {
	Team1Health []float64
	Team2Health []float64
	Units       int
	Projectiles int
}

// CombatCollector accumulates per-tick counters within time windows and
// produces CombatStats.
type CombatCollector struct {
	runID               string
	windowDurationTicks int64
	dt                  float64

	windowStartTick int64
	counts          systems.TickStats
	commandersLost  int
}

// NewCombatCollector creates a collector.
// windowDurationSec: how long each stats window lasts in simulation seconds
// dt: seconds per tick
func NewCombatCollector(runID string, windowDurationSec, dt float64) *CombatCollector {
	ticks := int64(windowDurationSec / dt)
	if ticks < 1 {
		ticks = 1
	}
	return &CombatCollector{
		runID:               runID,
		windowDurationTicks: ticks,
		dt:                  dt,
	}
}

// RecordTick adds one tick worth of counters.
func (c *CombatCollector) RecordTick(s systems.TickStats) {
	c.counts.TargetsAcquired += s.TargetsAcquired
	c.counts.TargetsLost += s.TargetsLost
	c.counts.SoundsEmitted += s.SoundsEmitted
	c.counts.SoundsTracked += s.SoundsTracked
	c.counts.ShotsFired += s.ShotsFired
	c.counts.Hits += s.Hits
	c.counts.Kills += s.Kills
	c.counts.PlayerDeaths += s.PlayerDeaths
	c.counts.Commands += s.Commands
}

// RecordUnitDeaths counts squad members removed from the roster.
func (c *CombatCollector) RecordUnitDeaths(notices []systems.DeathNotice) {
	for _, n := range notices {
		if n.WasCommander {
			c.commandersLost++
		}
	}
}

// ShouldFlush returns true if enough ticks have passed to flush the window.
func (c *CombatCollector) ShouldFlush(currentTick int64) bool {
	return currentTick-c.windowStartTick >= c.windowDurationTicks
}

// WindowDurationTicks returns the number of ticks per window.
func (c *CombatCollector) WindowDurationTicks() int64 {
	return c.windowDurationTicks
}

// Flush produces a CombatStats row and resets counters for the next window.
func (c *CombatCollector) Flush(currentTick int64, f Forces) CombatStats {
	var hitRate, killRate float64
	if c.counts.ShotsFired > 0 {
		hitRate = float64(c.counts.Hits) / float64(c.counts.ShotsFired)
	}
	if c.counts.Hits > 0 {
		killRate = float64(c.counts.Kills) / float64(c.counts.Hits)
	}

	t1 := SummarizeHealth(f.Team1Health)
	t2 := SummarizeHealth(f.Team2Health)

	stats := CombatStats{
		RunID:           c.runID,
		WindowStartTick: c.windowStartTick,
		WindowEndTick:   currentTick,
		SimTimeSec:      float64(currentTick) * c.dt,

		Team1Alive:      t1.Alive,
		Team1HealthMean: t1.Mean,
		Team1HealthStd:  t1.Std,
		Team1HealthP10:  t1.P10,
		Team1HealthP50:  t1.P50,
		Team1HealthP90:  t1.P90,
		Team2Alive:      t2.Alive,
		Team2HealthMean: t2.Mean,
		Team2HealthStd:  t2.Std,
		Team2HealthP10:  t2.P10,
		Team2HealthP50:  t2.P50,
		Team2HealthP90:  t2.P90,
		Units:           f.Units,
		Projectiles:     f.Projectiles,

		TargetsAcquired: c.counts.TargetsAcquired,
		TargetsLost:     c.counts.TargetsLost,
		SoundsEmitted:   c.counts.SoundsEmitted,
		SoundsTracked:   c.counts.SoundsTracked,
		ShotsFired:      c.counts.ShotsFired,
		Hits:            c.counts.Hits,
		Kills:           c.counts.Kills,
		PlayerDeaths:    c.counts.PlayerDeaths,
		CommandersLost:  c.commandersLost,
		Commands:        c.counts.Commands,

		HitRate:  hitRate,
		KillRate: killRate,
	}

	c.windowStartTick = currentTick
	c.counts.Reset()
	c.commandersLost = 0

	return stats
}
