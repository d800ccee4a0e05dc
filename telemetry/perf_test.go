package telemetry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPerfCollector_BasicTiming(t *testing.T) {
	pc := NewPerfCollector(10)

	for i := 0; i < 5; i++ {
		pc.StartTick()
		pc.StartPhase(PhaseTargetGrid)
		time.Sleep(100 * time.Microsecond)
		pc.StartPhase(PhaseFindTargets)
		time.Sleep(200 * time.Microsecond)
		pc.EndTick()
	}

	stats := pc.Stats()
	assert.Positive(t, stats.AvgTickDuration)
	assert.Contains(t, stats.PhaseAvg, PhaseTargetGrid)
	assert.Contains(t, stats.PhaseAvg, PhaseFindTargets)
	assert.LessOrEqual(t, stats.MinTickDuration, stats.AvgTickDuration)
	assert.GreaterOrEqual(t, stats.MaxTickDuration, stats.AvgTickDuration)
	assert.GreaterOrEqual(t, stats.P95TickDuration, stats.MinTickDuration)
	assert.LessOrEqual(t, stats.P95TickDuration, stats.MaxTickDuration)
}

func TestPerfCollector_ReenteredPhaseAccumulates(t *testing.T) {
	pc := NewPerfCollector(4)

	pc.StartTick()
	pc.StartPhase(PhaseMovement)
	time.Sleep(100 * time.Microsecond)
	pc.StartPhase(PhaseAvoidance)
	pc.StartPhase(PhaseMovement)
	time.Sleep(100 * time.Microsecond)
	pc.EndTick()

	stats := pc.Stats()
	assert.GreaterOrEqual(t, stats.PhaseAvg[PhaseMovement], 200*time.Microsecond)
}

func TestPerfCollector_RollingWindow(t *testing.T) {
	pc := NewPerfCollector(5)

	for i := 0; i < 10; i++ {
		pc.StartTick()
		pc.StartPhase(PhaseTargetGrid)
		time.Sleep(10 * time.Microsecond)
		pc.EndTick()
	}

	stats := pc.Stats()
	assert.Positive(t, stats.AvgTickDuration)
	assert.Positive(t, stats.TicksPerSecond)
}

func TestPerfCollector_PhasePercentages(t *testing.T) {
	pc := NewPerfCollector(10)

	for i := 0; i < 5; i++ {
		pc.StartTick()
		pc.StartPhase("fast")
		time.Sleep(10 * time.Microsecond)
		pc.StartPhase("slow")
		time.Sleep(500 * time.Microsecond)
		pc.EndTick()
	}

	stats := pc.Stats()
	assert.Greater(t, stats.PhasePct["slow"], stats.PhasePct["fast"])
	assert.LessOrEqual(t, stats.PhasePct["slow"], 100.0)
}

func TestPerfCollector_EmptyStats(t *testing.T) {
	stats := NewPerfCollector(10).Stats()

	assert.Zero(t, stats.AvgTickDuration)
	require.NotNil(t, stats.PhaseAvg)
	require.NotNil(t, stats.PhasePct)
}

func TestPerfStats_ToCSV(t *testing.T) {
	stats := PerfStats{
		AvgTickDuration: 2 * time.Millisecond,
		MinTickDuration: time.Millisecond,
		MaxTickDuration: 3 * time.Millisecond,
		P95TickDuration: 2500 * time.Microsecond,
		PhasePct: map[string]float64{
			PhaseFindTargets: 40,
			PhaseDamage:      12.5,
		},
		TicksPerSecond: 500,
	}

	row := stats.ToCSV("run", 600)
	assert.Equal(t, "run", row.RunID)
	assert.Equal(t, int64(600), row.WindowEnd)
	assert.Equal(t, int64(2000), row.AvgTickUS)
	assert.Equal(t, int64(2500), row.P95TickUS)
	assert.Equal(t, 40.0, row.FindTargetsPct)
	assert.Equal(t, 12.5, row.DamagePct)
	assert.Zero(t, row.AudioPct)
}
