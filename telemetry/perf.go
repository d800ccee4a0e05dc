package telemetry

import (
	"log/slog"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"
)

// Phase names for the simulation step, in tick order.
const (
	PhaseTargetGrid  = "target_grid"
	PhaseInvalidate  = "invalidate"
	PhaseFindTargets = "find_targets"
	PhaseAudio       = "audio"
	PhaseTracking    = "tracking"
	PhaseMovement    = "movement"
	PhaseAvoidance   = "avoidance"
	PhaseProjectiles = "projectiles"
	PhaseDamage      = "damage"
	PhaseEffects     = "effects"
	PhaseCommands    = "commands"
	PhaseTelemetry   = "telemetry"
)

// Phases lists every phase in tick order.
var Phases = []string{
	PhaseTargetGrid, PhaseInvalidate, PhaseFindTargets, PhaseAudio,
	PhaseTracking, PhaseMovement, PhaseAvoidance, PhaseProjectiles,
	PhaseDamage, PhaseEffects, PhaseCommands, PhaseTelemetry,
}

// PerfSample holds timing data for a single tick.
type PerfSample struct {
	TickDuration time.Duration
	Phases       map[string]time.Duration
}

// PerfCollector tracks performance metrics over a rolling window.
type PerfCollector struct {
	windowSize    int
	samples       []PerfSample
	writeIndex    int
	sampleCount   int
	currentPhases map[string]time.Duration
	tickStart     time.Time
	phaseStart    time.Time
	lastPhase     string
}

// NewPerfCollector creates a new performance collector.
// windowSize: number of ticks to average over (e.g., 60 for 1 second at 60Hz).
func NewPerfCollector(windowSize int) *PerfCollector {
	if windowSize < 1 {
		windowSize = 60
	}
	return &PerfCollector{
		windowSize:    windowSize,
		samples:       make([]PerfSample, windowSize),
		currentPhases: make(map[string]time.Duration),
	}
}

// StartTick begins timing a new simulation tick.
func (p *PerfCollector) StartTick() {
	p.tickStart = time.Now()
	p.currentPhases = make(map[string]time.Duration, len(Phases))
	p.lastPhase = ""
}

// StartPhase ends the running phase and begins timing the next one.
// Re-entering a phase accumulates into it.
func (p *PerfCollector) StartPhase(phase string) {
	now := time.Now()
	if p.lastPhase != "" {
		p.currentPhases[p.lastPhase] += now.Sub(p.phaseStart)
	}
	p.phaseStart = now
	p.lastPhase = phase
}

// EndTick finishes timing the current tick and records the sample.
func (p *PerfCollector) EndTick() {
	now := time.Now()
	if p.lastPhase != "" {
		p.currentPhases[p.lastPhase] += now.Sub(p.phaseStart)
	}

	p.samples[p.writeIndex] = PerfSample{
		TickDuration: now.Sub(p.tickStart),
		Phases:       p.currentPhases,
	}
	p.writeIndex = (p.writeIndex + 1) % p.windowSize
	if p.sampleCount < p.windowSize {
		p.sampleCount++
	}
}

// PerfStats holds aggregated performance statistics.
type PerfStats struct {
	AvgTickDuration time.Duration
	MinTickDuration time.Duration
	MaxTickDuration time.Duration
	P95TickDuration time.Duration

	// Phase breakdown (average durations) and share of the tick
	PhaseAvg map[string]time.Duration
	PhasePct map[string]float64

	TicksPerSecond float64
}

// Stats computes aggregated statistics over the current window.
func (p *PerfCollector) Stats() PerfStats {
	stats := PerfStats{
		PhaseAvg: make(map[string]time.Duration),
		PhasePct: make(map[string]float64),
	}
	n := p.sampleCount
	if n == 0 {
		return stats
	}

	ticks := make([]float64, n)
	phaseSum := make(map[string]time.Duration)
	for i, s := range p.samples[:n] {
		ticks[i] = float64(s.TickDuration)
		for phase, dur := range s.Phases {
			phaseSum[phase] += dur
		}
	}
	sort.Float64s(ticks)

	mean := stat.Mean(ticks, nil)
	stats.AvgTickDuration = time.Duration(mean)
	stats.MinTickDuration = time.Duration(ticks[0])
	stats.MaxTickDuration = time.Duration(ticks[n-1])
	stats.P95TickDuration = time.Duration(stat.Quantile(0.95, stat.Empirical, ticks, nil))
	if mean > 0 {
		stats.TicksPerSecond = float64(time.Second) / mean
	}

	for phase, sum := range phaseSum {
		avg := sum / time.Duration(n)
		stats.PhaseAvg[phase] = avg
		if mean > 0 {
			stats.PhasePct[phase] = float64(avg) / mean * 100
		}
	}
	return stats
}

// LogStats logs performance statistics.
func (s PerfStats) LogStats(log *slog.Logger) {
	attrs := []any{
		"avg_tick_us", s.AvgTickDuration.Microseconds(),
		"min_tick_us", s.MinTickDuration.Microseconds(),
		"max_tick_us", s.MaxTickDuration.Microseconds(),
		"p95_tick_us", s.P95TickDuration.Microseconds(),
		"ticks_per_sec", int(s.TicksPerSecond),
	}
	for _, phase := range Phases {
		if pct, ok := s.PhasePct[phase]; ok && pct > 0.1 {
			attrs = append(attrs, phase+"_pct", float64(int(pct*10))/10.0)
		}
	}
	log.Info("perf", attrs...)
}

// LogValue implements slog.LogValuer for structured logging.
func (s PerfStats) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.Int64("avg_tick_us", s.AvgTickDuration.Microseconds()),
		slog.Int64("min_tick_us", s.MinTickDuration.Microseconds()),
		slog.Int64("max_tick_us", s.MaxTickDuration.Microseconds()),
		slog.Int64("p95_tick_us", s.P95TickDuration.Microseconds()),
		slog.Float64("ticks_per_sec", s.TicksPerSecond),
	}
	for _, phase := range Phases {
		if pct, ok := s.PhasePct[phase]; ok {
			attrs = append(attrs, slog.Float64(phase+"_pct", pct))
		}
	}
	return slog.GroupValue(attrs...)
}

// PerfStatsCSV is a flat struct for CSV export of performance stats.
type PerfStatsCSV struct {
	RunID          string  `csv:"run_id"`
	WindowEnd      int64   `csv:"window_end"`
	AvgTickUS      int64   `csv:"avg_tick_us"`
	MinTickUS      int64   `csv:"min_tick_us"`
	MaxTickUS      int64   `csv:"max_tick_us"`
	P95TickUS      int64   `csv:"p95_tick_us"`
	TicksPerSec    float64 `csv:"ticks_per_sec"`
	TargetGridPct  float64 `csv:"target_grid_pct"`
	InvalidatePct  float64 `csv:"invalidate_pct"`
	FindTargetsPct float64 `csv:"find_targets_pct"`
	AudioPct       float64 `csv:"audio_pct"`
	TrackingPct    float64 `csv:"tracking_pct"`
	MovementPct    float64 `csv:"movement_pct"`
	AvoidancePct   float64 `csv:"avoidance_pct"`
	ProjectilesPct float64 `csv:"projectiles_pct"`
	DamagePct      float64 `csv:"damage_pct"`
	EffectsPct     float64 `csv:"effects_pct"`
	CommandsPct    float64 `csv:"commands_pct"`
	TelemetryPct   float64 `csv:"telemetry_pct"`
}

// ToCSV converts PerfStats to a flat CSV-friendly struct.
func (s PerfStats) ToCSV(runID string, windowEnd int64) PerfStatsCSV {
	return PerfStatsCSV{
		RunID:          runID,
		WindowEnd:      windowEnd,
		AvgTickUS:      s.AvgTickDuration.Microseconds(),
		MinTickUS:      s.MinTickDuration.Microseconds(),
		MaxTickUS:      s.MaxTickDuration.Microseconds(),
		P95TickUS:      s.P95TickDuration.Microseconds(),
		TicksPerSec:    s.TicksPerSecond,
		TargetGridPct:  s.PhasePct[PhaseTargetGrid],
		InvalidatePct:  s.PhasePct[PhaseInvalidate],
		FindTargetsPct: s.PhasePct[PhaseFindTargets],
		AudioPct:       s.PhasePct[PhaseAudio],
		TrackingPct:    s.PhasePct[PhaseTracking],
		MovementPct:    s.PhasePct[PhaseMovement],
		AvoidancePct:   s.PhasePct[PhaseAvoidance],
		ProjectilesPct: s.PhasePct[PhaseProjectiles],
		DamagePct:      s.PhasePct[PhaseDamage],
		EffectsPct:     s.PhasePct[PhaseEffects],
		CommandsPct:    s.PhasePct[PhaseCommands],
		TelemetryPct:   s.PhasePct[PhaseTelemetry],
	}
}
