package game

import (
	"github.com/pthm-cable/squadsim/systems"
	"github.com/pthm-cable/squadsim/telemetry"
)

// processor is one stage of the tick.
type processor interface {
	Execute(ctx *systems.TickContext)
}

// processorFunc adapts a function to processor.
type processorFunc func(ctx *systems.TickContext)

func (f processorFunc) Execute(ctx *systems.TickContext) { f(ctx) }

// phase groups processors under one perf timing label.
type phase struct {
	name  string
	procs []processor
}

// buildPhases creates every processor and fixes the tick order. Movement is
// split around avoidance so steering forces are reset before avoidance adds
// to them and integrated after.
func (g *Game) buildPhases() {
	cfg := g.cfg
	sub := g.sub

	g.moving = systems.NewMovingAvoidance(sub, g.obstacleGrid, g.env, cfg)
	g.standing = systems.NewStandingAvoidance(sub, g.obstacleGrid, cfg)
	g.damage = systems.NewProjectileDamageProcessor(sub, g.targetGrid, g.env, g.sounds, g.effects, cfg)
	g.damage.OnPlayerDeath = g.RespawnPlayer

	tolerance := cfg.TargetFinder.FacingToleranceRad

	g.phases = []phase{
		{telemetry.PhaseTargetGrid, []processor{g.targetGrid, g.obstacleGrid}},
		{telemetry.PhaseInvalidate, []processor{
			systems.NewDestroyedTargetFinder(sub, cfg.TargetFinder.DestroyedMaxRange),
			systems.NewInvalidTargetFinder(sub, g.targetGrid, g.env, g.params),
		}},
		{telemetry.PhaseFindTargets, []processor{
			systems.NewEnemyTargetFinder(sub, g.targetGrid, g.env, g.params),
		}},
		{telemetry.PhaseAudio, []processor{
			systems.SoundUpdater{Sounds: g.sounds},
			systems.NewAudioPerception(sub, g.sounds, g.env, g.params, cfg),
		}},
		{telemetry.PhaseTracking, []processor{
			systems.NewTargetTracker(sub),
			systems.NewForwardCompleteSignaler(sub, tolerance),
			systems.NewWeaponFire(sub, g.params, g.sounds, tolerance),
		}},
		{telemetry.PhaseMovement, []processor{systems.NewSteering(sub, cfg.Movement)}},
		{telemetry.PhaseAvoidance, []processor{g.moving, g.standing}},
		{telemetry.PhaseMovement, []processor{systems.NewIntegrator(sub, cfg.Movement, g.bounds)}},
		{telemetry.PhaseProjectiles, []processor{
			systems.NewProjectileIntegrator(sub, cfg.Simulation.Gravity, cfg.Projectile.MinZ),
		}},
		{telemetry.PhaseDamage, []processor{g.damage}},
		{telemetry.PhaseEffects, []processor{
			processorFunc(func(ctx *systems.TickContext) { g.effects.Drain(ctx) }),
			systems.NewDelayedDestroyer(sub),
		}},
		{telemetry.PhaseCommands, []processor{processorFunc(g.handleSignals)}},
	}
}

// newTickContext snapshots the toggles and builds this tick's context.
func (g *Game) newTickContext() *systems.TickContext {
	return &systems.TickContext{
		Sub:     g.sub,
		Cfg:     g.cfg,
		Toggles: g.takeToggles(),
		Runner:  g.pool,
		Cmds:    g.cmds,
		Stats:   &g.stats,
		Log:     g.log,
		Tick:    g.tick,
		DT:      g.cfg.Simulation.DT,
	}
}

// Step runs a single tick of the battle.
func (g *Game) Step() {
	g.perfCollector.StartTick()

	g.tick++
	g.sub.Now = float64(g.tick) * g.cfg.Simulation.DT
	g.stats.Reset()
	ctx := g.newTickContext()

	for _, ph := range g.phases {
		g.perfCollector.StartPhase(ph.name)
		for _, p := range ph.procs {
			p.Execute(ctx)
		}
	}
	// Anything a processor left behind is applied before the tick closes.
	ctx.Flush()

	g.perfCollector.StartPhase(telemetry.PhaseTelemetry)
	g.collector.RecordTick(g.stats)
	g.collector.RecordUnitDeaths(g.deaths)
	g.deaths = g.deaths[:0]
	g.flushTelemetry()
	g.publishSnapshot(ctx)

	g.perfCollector.EndTick()
}
