package game

import (
	"fmt"
	"io"
	"time"

	"github.com/pthm-cable/squadsim/components"
	"github.com/pthm-cable/squadsim/systems"
	"github.com/pthm-cable/squadsim/telemetry"
)

// logWriter is the destination for log output.
var logWriter io.Writer

// SetLogWriter sets the log output destination.
func SetLogWriter(w io.Writer) {
	logWriter = w
}

// Logf writes a formatted log message.
func Logf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if logWriter != nil {
		fmt.Fprintln(logWriter, msg)
	} else {
		fmt.Println(msg)
	}
}

// logPerfStats prints the phase breakdown of the current perf window.
func (g *Game) logPerfStats() {
	stats := g.perfCollector.Stats()
	Logf("=== Perf @ Tick %d | %.0f ticks/s ===", g.tick, stats.TicksPerSecond)
	Logf("Avg tick: %s (min %s, max %s)",
		stats.AvgTickDuration.Round(time.Microsecond),
		stats.MinTickDuration.Round(time.Microsecond),
		stats.MaxTickDuration.Round(time.Microsecond))
	for _, name := range telemetry.Phases {
		avg, ok := stats.PhaseAvg[name]
		if !ok {
			continue
		}
		Logf("  %-14s %10s  %5.1f%%", name, avg.Round(time.Microsecond), stats.PhasePct[name])
	}
	Logf("")
}

// logWorldState prints a readable summary of the battle.
func (g *Game) logWorldState(stats telemetry.CombatStats) {
	var moving, standing, tracking, vehicles int
	query := g.combatants.Query()
	for query.Next() {
		e := query.Entity()
		if g.sub.HasTag(e, systems.TagPlayerControlled) {
			continue
		}
		if !g.sub.HasTag(e, systems.TagSoldier) {
			vehicles++
		}
		if g.sub.HasTag(e, systems.TagTrackTarget) {
			tracking++
		}
		if g.sub.MoveTargets.Has(e) {
			switch g.sub.MoveTargets.Get(e).Action {
			case components.ActionMove:
				moving++
			case components.ActionStand:
				standing++
			}
		}
	}

	Logf("=== Tick %d (%.1fs) ===", g.tick, stats.SimTimeSec)
	Logf("Team1: %d alive (health %.0f avg, p10 %.0f)", stats.Team1Alive, stats.Team1HealthMean, stats.Team1HealthP10)
	Logf("Team2: %d alive (health %.0f avg, p10 %.0f)", stats.Team2Alive, stats.Team2HealthMean, stats.Team2HealthP10)
	Logf("Vehicles: %d, Squads: %d, Projectiles: %d", vehicles, stats.Units, stats.Projectiles)
	Logf("Orders: moving=%d standing=%d engaging=%d", moving, standing, tracking)
	Logf("Window: shots=%d hits=%d kills=%d (hit rate %.2f) commanders lost=%d",
		stats.ShotsFired, stats.Hits, stats.Kills, stats.HitRate, stats.CommandersLost)
	Logf("")
	g.logPerfStats()
}
