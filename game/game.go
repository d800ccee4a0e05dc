// Package game wires the processors into a headless squad battle: scenario
// setup, the fixed tick order, behavior glue and telemetry.
package game

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"

	"github.com/google/uuid"
	"github.com/mlange-42/ark/ecs"
	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/squadsim/components"
	"github.com/pthm-cable/squadsim/config"
	"github.com/pthm-cable/squadsim/systems"
	"github.com/pthm-cable/squadsim/telemetry"
)

// Game holds the complete battle state.
type Game struct {
	cfg   *config.Config
	opts  Options
	log   *slog.Logger
	rng   *rand.Rand
	runID string

	sub    *systems.Substrate
	cmds   *systems.Commands
	pool   *WorkerPool
	stats  systems.TickStats
	bounds r2.Box

	// Shared world services
	env          *systems.Environment
	targetGrid   *systems.TargetGrid
	obstacleGrid *systems.ObstacleGrid
	sounds       *systems.SoundPerception
	effects      *systems.EffectQueue
	units        *systems.UnitRegistry
	params       systems.FinderParams

	// Processors that callers tune at runtime
	moving   *systems.MovingAvoidance
	standing *systems.StandingAvoidance
	damage   *systems.ProjectileDamageProcessor

	phases []phase

	// Squad goals set by commanders
	unitGoals map[int32]r3.Vec
	player    ecs.Entity
	deaths    []systems.DeathNotice

	// Toggles queued from outside the tick
	togglesMu      sync.Mutex
	pendingToggles config.Toggles

	// Telemetry
	perfCollector    *telemetry.PerfCollector
	collector        *telemetry.CombatCollector
	bookmarkDetector *telemetry.BookmarkDetector
	outputManager    *telemetry.OutputManager

	// Sampling filters
	combatants  *ecs.Filter3[components.Transform, components.TeamMember, components.Health]
	projectiles *ecs.Filter2[components.Transform, components.ProjectileDamage]

	tick int64
}

// NewGame builds the world, spawns the scenario and opens the output files.
func NewGame(opts Options) (*Game, error) {
	cfg := opts.config()
	runID := uuid.NewString()
	log := opts.logger().With("run_id", runID)

	g := &Game{
		cfg:            cfg,
		opts:           opts,
		log:            log,
		rng:            rand.New(rand.NewSource(opts.Seed)),
		runID:          runID,
		sub:            systems.NewSubstrate(),
		pool:           NewWorkerPool(cfg.Simulation.Workers),
		unitGoals:      make(map[int32]r3.Vec),
		pendingToggles: cfg.Toggles,
	}
	g.cmds = systems.NewCommands(g.pool.Workers())

	g.bounds = r2.Box{
		Max: r2.Vec{X: cfg.Scenario.FieldWidth, Y: cfg.Scenario.FieldDepth},
	}
	g.env = systems.NewEnvironment(cfg.Grids.Environment, g.generateWalls())
	g.env.SetBounds(g.bounds)

	g.params = systems.NewFinderParams(cfg)
	g.targetGrid = systems.NewTargetGrid(g.sub, cfg.Grids.Target)
	g.obstacleGrid = systems.NewObstacleGrid(g.sub, cfg.Grids.Obstacle)
	g.sounds = systems.NewSoundPerception(cfg.Grids.Sound, cfg.Sound)
	g.effects = systems.NewEffectQueue(cfg.Effects)
	g.units = systems.NewUnitRegistry(g.sub)

	g.combatants = ecs.NewFilter3[components.Transform, components.TeamMember, components.Health](g.sub.World)
	g.projectiles = ecs.NewFilter2[components.Transform, components.ProjectileDamage](g.sub.World)

	g.buildPhases()
	g.spawnScenario()

	g.perfCollector = telemetry.NewPerfCollector(cfg.Telemetry.PerfCollectorWindow)
	g.collector = telemetry.NewCombatCollector(runID, cfg.Telemetry.StatsWindow, cfg.Simulation.DT)
	g.bookmarkDetector = telemetry.NewBookmarkDetector(10)

	om, err := telemetry.NewOutputManager(opts.OutputDir)
	if err != nil {
		g.pool.Stop()
		return nil, fmt.Errorf("creating output manager: %w", err)
	}
	g.outputManager = om
	if err := om.WriteConfig(cfg); err != nil {
		g.log.Error("failed to write config", "error", err)
	}

	g.log.Info("battle ready",
		"seed", opts.Seed,
		"workers", g.pool.Workers(),
		"walls", len(g.env.Walls()),
		"units", g.units.Len(),
		"team1", g.teamCount(true),
		"team2", g.teamCount(false),
	)
	return g, nil
}

// Run steps the battle until the context is done, MaxTicks is reached or a
// team is wiped out.
func (g *Game) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		g.Step()

		if g.opts.MaxTicks > 0 && g.tick >= g.opts.MaxTicks {
			g.log.Info("max ticks reached", "tick", g.tick)
			return nil
		}
		if t1, t2 := g.teamCount(true), g.teamCount(false); t1 == 0 || t2 == 0 {
			g.log.Info("battle over", "tick", g.tick, "team1", t1, "team2", t2)
			return nil
		}
	}
}

// Tick returns the number of completed ticks.
func (g *Game) Tick() int64 {
	return g.tick
}

// RunID returns the unique id of this run.
func (g *Game) RunID() string {
	return g.runID
}

// Substrate exposes the world for inspection.
func (g *Game) Substrate() *systems.Substrate {
	return g.sub
}

// Player returns the player-controlled entity, zero when none was spawned.
func (g *Game) Player() ecs.Entity {
	return g.player
}

// SetAvoidanceParams replaces the avoidance tuning of both processors.
func (g *Game) SetAvoidanceParams(moving config.MovingAvoidanceConfig, standing config.StandingAvoidanceConfig) {
	g.moving.SetParams(moving)
	g.standing.SetParams(standing)
}

// Close stops the worker pool and flushes output files.
func (g *Game) Close() error {
	g.pool.Stop()
	return g.outputManager.Close()
}

// teamCount counts live AI combatants of one team. The player respawns and
// never counts.
func (g *Game) teamCount(team1 bool) int {
	n := 0
	query := g.combatants.Query()
	for query.Next() {
		_, team, _ := query.Get()
		if team.IsOnTeam1 == team1 && !g.sub.HasTag(query.Entity(), systems.TagPlayerControlled) {
			n++
		}
	}
	return n
}
