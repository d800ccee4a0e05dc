package main

import (
	"io"
	"log/slog"
	"math"
	"sync"

	"gonum.org/v1/gonum/stat"

	"github.com/pthm-cable/squadsim/config"
	"github.com/pthm-cable/squadsim/game"
)

// Fitness weights. Overlap is measured in soldier radii per agent, time as a
// fraction of the run.
const (
	overlapWeight = 1.0
	timeWeight    = 1.0

	goalProgress = 0.75 // mean field fraction counted as "arrived"
	sampleEvery  = 10   // ticks between crowd samples
)

// CrossingScenario turns cfg into a crowd-crossing run: both sides advance
// through each other with targeting and damage off.
func CrossingScenario(cfg *config.Config, soldiersPerTeam, walls int) {
	cfg.Simulation.Workers = 1
	cfg.Scenario.SoldiersPerTeam = soldiersPerTeam
	cfg.Scenario.VehiclesPerTeam = 1
	cfg.Scenario.SquadSize = 6
	cfg.Scenario.FieldWidth = 2500
	cfg.Scenario.FieldDepth = 4000
	cfg.Scenario.SpawnDepth = 600
	cfg.Scenario.Walls = walls
	cfg.Toggles = config.Toggles{SkipFindingTargets: true, SkipDealingDamage: true}
}

// runResult holds the outcome of one crossing run.
type runResult struct {
	penetration []float64 // per-agent overlap per sample, in soldier radii
	goalTick    int64     // first tick the crowd reached goalProgress, 0 if never
	progress    float64   // final mean progress
}

// FitnessEvaluator runs headless crossing scenarios and scores them.
type FitnessEvaluator struct {
	params   *ParamVector
	maxTicks int64
	seeds    []int64
	base     *config.Config
	log      *slog.Logger

	mu           sync.Mutex
	lastOverlap  float64
	lastProgress float64
}

// NewFitnessEvaluator creates an evaluator over a prepared base config.
func NewFitnessEvaluator(params *ParamVector, maxTicks int64, seeds []int64, base *config.Config) *FitnessEvaluator {
	return &FitnessEvaluator{
		params:   params,
		maxTicks: maxTicks,
		seeds:    seeds,
		base:     base,
		log:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// LastStats returns the mean overlap and final progress of the most recent evaluation.
func (fe *FitnessEvaluator) LastStats() (overlap, progress float64) {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	return fe.lastOverlap, fe.lastProgress
}

// Evaluate computes fitness for raw parameter values (lower = better).
// Seeds run concurrently, each on its own single-worker game.
func (fe *FitnessEvaluator) Evaluate(x []float64) float64 {
	cfg := fe.copyConfig()
	fe.params.Apply(cfg, x)

	results := make([]runResult, len(fe.seeds))
	var wg sync.WaitGroup
	for i, seed := range fe.seeds {
		wg.Add(1)
		go func(idx int, s int64) {
			defer wg.Done()
			results[idx] = fe.runSimulation(cfg, s)
		}(i, seed)
	}
	wg.Wait()

	fitness := make([]float64, len(results))
	overlap := make([]float64, len(results))
	progress := make([]float64, len(results))
	for i, r := range results {
		fitness[i] = fe.score(r)
		overlap[i] = stat.Mean(r.penetration, nil)
		progress[i] = r.progress
	}

	fe.mu.Lock()
	fe.lastOverlap = stat.Mean(overlap, nil)
	fe.lastProgress = stat.Mean(progress, nil)
	fe.mu.Unlock()

	return stat.Mean(fitness, nil)
}

// runSimulation executes one crossing run with the avoidance section of
// tuned swapped in after spawn.
func (fe *FitnessEvaluator) runSimulation(tuned *config.Config, seed int64) runResult {
	var r runResult
	g, err := game.NewGame(game.Options{
		Config: fe.copyConfig(),
		Seed:   seed,
		Logger: fe.log,
	})
	if err != nil {
		// A config that cannot build a game scores as a total failure.
		r.penetration = []float64{math.Inf(1)}
		return r
	}
	defer g.Close()
	g.SetAvoidanceParams(tuned.Avoidance.Moving, tuned.Avoidance.Standing)

	radius := tuned.Scenario.Soldier.AgentRadius
	for g.Tick() < fe.maxTicks {
		g.Step()
		if g.Tick()%sampleEvery != 0 {
			continue
		}
		s := g.SampleCrowd()
		if s.Agents == 0 {
			break
		}
		r.penetration = append(r.penetration, s.Penetration/radius/float64(s.Agents))
		r.progress = s.Progress
		if r.goalTick == 0 && s.Progress >= goalProgress {
			r.goalTick = g.Tick()
		}
	}
	return r
}

// score combines mean overlap with the time taken to cross.
func (fe *FitnessEvaluator) score(r runResult) float64 {
	if len(r.penetration) == 0 {
		return math.Inf(1)
	}
	overlap := stat.Mean(r.penetration, nil)

	// Runs that never arrive are ranked by how far they got.
	timeFrac := 1 + (goalProgress - min(r.progress, goalProgress))
	if r.goalTick > 0 {
		timeFrac = float64(r.goalTick) / float64(fe.maxTicks)
	}
	return overlapWeight*overlap + timeWeight*timeFrac
}

// copyConfig returns a copy of the base config. Slices and maps are shared
// and treated as read-only.
func (fe *FitnessEvaluator) copyConfig() *config.Config {
	cp := *fe.base
	return &cp
}
