package main

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pthm-cable/squadsim/config"
)

func TestParamVectorRoundTrip(t *testing.T) {
	pv := NewParamVector()
	cfg := config.Default()

	raw := pv.Extract(cfg)
	require.Len(t, raw, pv.Dim())
	back := pv.Denormalize(pv.Normalize(raw))
	for i := range raw {
		assert.InDelta(t, raw[i], back[i], 1e-9, pv.Specs[i].Name)
	}
}

func TestParamVectorApplyClamps(t *testing.T) {
	pv := NewParamVector()
	cfg := config.Default()

	values := make([]float64, pv.Dim())
	for i := range values {
		values[i] = 1e9
	}
	pv.Apply(cfg, values)

	got := pv.Extract(cfg)
	for i, spec := range pv.Specs {
		assert.Equal(t, spec.Max, got[i], spec.Name)
	}
	assert.Equal(t, pv.Specs[0].Max, cfg.Avoidance.Moving.ObstacleSeparationStiffness)
}

func TestDefaultsInsideBounds(t *testing.T) {
	pv := NewParamVector()
	raw := pv.Extract(config.Default())
	for i, spec := range pv.Specs {
		assert.GreaterOrEqual(t, raw[i], spec.Min, spec.Name)
		assert.LessOrEqual(t, raw[i], spec.Max, spec.Name)
	}
}

func TestScore(t *testing.T) {
	fe := &FitnessEvaluator{maxTicks: 1000}

	assert.True(t, math.IsInf(fe.score(runResult{}), 1))

	arrived := fe.score(runResult{penetration: []float64{0.2, 0.4}, goalTick: 500, progress: 0.9})
	assert.InDelta(t, 0.3+0.5, arrived, 1e-9)

	stuck := fe.score(runResult{penetration: []float64{0.3}, progress: 0.5})
	assert.InDelta(t, 0.3+1.25, stuck, 1e-9)
	assert.Greater(t, stuck, arrived)
}

func TestEvaluateCrossing(t *testing.T) {
	if testing.Short() {
		t.Skip("runs full simulations")
	}
	cfg := config.Default()
	CrossingScenario(cfg, 6, 0)
	pv := NewParamVector()
	fe := NewFitnessEvaluator(pv, 120, []int64{1, 2}, cfg)

	fitness := fe.Evaluate(pv.Extract(cfg))
	assert.False(t, math.IsInf(fitness, 0))
	assert.False(t, math.IsNaN(fitness))

	overlap, progress := fe.LastStats()
	assert.GreaterOrEqual(t, overlap, 0.0)
	assert.Greater(t, progress, 0.0)
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "1m05s", formatDuration(65_000_000_000))
	assert.Equal(t, "2h00m01s", formatDuration(7201_000_000_000))
}
