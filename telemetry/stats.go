package telemetry

import (
	"log/slog"
	"slices"

	"gonum.org/v1/gonum/stat"
)

// HealthSummary describes the health distribution of one team.
type HealthSummary struct {
	Alive int
	Mean  float64
	Std   float64
	P10   float64
	P50   float64
	P90   float64
}

// SummarizeHealth computes mean, sample standard deviation and empirical
// percentiles. The input is not modified.
func SummarizeHealth(values []float64) HealthSummary {
	n := len(values)
	if n == 0 {
		return HealthSummary{}
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)

	s := HealthSummary{Alive: n}
	if n == 1 {
		s.Mean = sorted[0]
	} else {
		s.Mean, s.Std = stat.MeanStdDev(sorted, nil)
	}
	s.P10 = stat.Quantile(0.10, stat.Empirical, sorted, nil)
	s.P50 = stat.Quantile(0.50, stat.Empirical, sorted, nil)
	s.P90 = stat.Quantile(0.90, stat.Empirical, sorted, nil)
	return s
}

// CombatStats holds aggregated statistics for a time window.
type CombatStats struct {
	RunID           string  `csv:"run_id"`
	WindowStartTick int64   `csv:"-"`
	WindowEndTick   int64   `csv:"window_end"`
	SimTimeSec      float64 `csv:"sim_time"`

	// Forces at window end
	Team1Alive      int     `csv:"team1_alive"`
	Team1HealthMean float64 `csv:"team1_health_mean"`
	Team1HealthStd  float64 `csv:"team1_health_std"`
	Team1HealthP10  float64 `csv:"team1_health_p10"`
	Team1HealthP50  float64 `csv:"team1_health_p50"`
	Team1HealthP90  float64 `csv:"team1_health_p90"`
	Team2Alive      int     `csv:"team2_alive"`
	Team2HealthMean float64 `csv:"team2_health_mean"`
	Team2HealthStd  float64 `csv:"team2_health_std"`
	Team2HealthP10  float64 `csv:"team2_health_p10"`
	Team2HealthP50  float64 `csv:"team2_health_p50"`
	Team2HealthP90  float64 `csv:"team2_health_p90"`
	Units           int     `csv:"units"`
	Projectiles     int     `csv:"projectiles"`

	// Events during window
	TargetsAcquired int `csv:"targets_acquired"`
	TargetsLost     int `csv:"targets_lost"`
	SoundsEmitted   int `csv:"sounds_emitted"`
	SoundsTracked   int `csv:"sounds_tracked"`
	ShotsFired      int `csv:"shots_fired"`
	Hits            int `csv:"hits"`
	Kills           int `csv:"kills"`
	PlayerDeaths    int `csv:"player_deaths"`
	CommandersLost  int `csv:"commanders_lost"`
	Commands        int `csv:"commands"`

	HitRate  float64 `csv:"hit_rate"`
	KillRate float64 `csv:"kill_rate"`
}

// LogValue implements slog.LogValuer for structured logging.
func (s CombatStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int64("window_start", s.WindowStartTick),
		slog.Int64("window_end", s.WindowEndTick),
		slog.Float64("sim_time", s.SimTimeSec),
		slog.Int("team1_alive", s.Team1Alive),
		slog.Int("team2_alive", s.Team2Alive),
		slog.Float64("team1_health_mean", s.Team1HealthMean),
		slog.Float64("team2_health_mean", s.Team2HealthMean),
		slog.Int("units", s.Units),
		slog.Int("projectiles", s.Projectiles),
		slog.Int("targets_acquired", s.TargetsAcquired),
		slog.Int("targets_lost", s.TargetsLost),
		slog.Int("shots_fired", s.ShotsFired),
		slog.Int("hits", s.Hits),
		slog.Int("kills", s.Kills),
		slog.Int("player_deaths", s.PlayerDeaths),
		slog.Int("commanders_lost", s.CommandersLost),
		slog.Float64("hit_rate", s.HitRate),
		slog.Float64("kill_rate", s.KillRate),
	)
}

// LogStats logs the window stats.
func (s CombatStats) LogStats(log *slog.Logger) {
	log.Info("stats",
		"window_end", s.WindowEndTick,
		"sim_time", s.SimTimeSec,
		"team1_alive", s.Team1Alive,
		"team2_alive", s.Team2Alive,
		"team1_health_p50", s.Team1HealthP50,
		"team2_health_p50", s.Team2HealthP50,
		"units", s.Units,
		"projectiles", s.Projectiles,
		"targets_acquired", s.TargetsAcquired,
		"targets_lost", s.TargetsLost,
		"sounds_emitted", s.SoundsEmitted,
		"sounds_tracked", s.SoundsTracked,
		"shots_fired", s.ShotsFired,
		"hits", s.Hits,
		"kills", s.Kills,
		"player_deaths", s.PlayerDeaths,
		"commanders_lost", s.CommandersLost,
		"hit_rate", s.HitRate,
		"kill_rate", s.KillRate,
	)
}
