package main

import (
	"github.com/pthm-cable/squadsim/config"
)

// ParamSpec defines a single optimizable parameter.
type ParamSpec struct {
	Name  string  // yaml path for logging
	Min   float64 // lower bound
	Max   float64 // upper bound
	field func(*config.AvoidanceConfig) *float64
}

// ParamVector holds the set of all optimizable parameters.
type ParamVector struct {
	Specs []ParamSpec
}

// NewParamVector creates the avoidance parameters the crossing scenario is
// sensitive to. Everything else stays at the base config value.
func NewParamVector() *ParamVector {
	return &ParamVector{
		Specs: []ParamSpec{
			{Name: "moving.obstacle_separation_stiffness", Min: 50, Max: 800,
				field: func(a *config.AvoidanceConfig) *float64 { return &a.Moving.ObstacleSeparationStiffness }},
			{Name: "moving.obstacle_predictive_avoidance_stiffness", Min: 100, Max: 1500,
				field: func(a *config.AvoidanceConfig) *float64 { return &a.Moving.ObstaclePredictiveAvoidanceStiffness }},
			{Name: "moving.separation_radius_scale", Min: 0.5, Max: 2.0,
				field: func(a *config.AvoidanceConfig) *float64 { return &a.Moving.SeparationRadiusScale }},
			{Name: "moving.predictive_avoidance_radius_scale", Min: 0.3, Max: 1.5,
				field: func(a *config.AvoidanceConfig) *float64 { return &a.Moving.PredictiveAvoidanceRadiusScale }},
			{Name: "moving.predictive_avoidance_time", Min: 0.5, Max: 5.0,
				field: func(a *config.AvoidanceConfig) *float64 { return &a.Moving.PredictiveAvoidanceTime }},
			{Name: "moving.predictive_avoidance_distance", Min: 20, Max: 200,
				field: func(a *config.AvoidanceConfig) *float64 { return &a.Moving.PredictiveAvoidanceDistance }},
			{Name: "moving.standing_obstacle_avoidance_scale", Min: 0.1, Max: 1.5,
				field: func(a *config.AvoidanceConfig) *float64 { return &a.Moving.StandingObstacleAvoidanceScale }},
			{Name: "moving.end_of_path_avoidance_scale", Min: 0, Max: 1,
				field: func(a *config.AvoidanceConfig) *float64 { return &a.Moving.EndOfPathAvoidanceScale }},
			{Name: "standing.ghost_separation_stiffness", Min: 50, Max: 600,
				field: func(a *config.AvoidanceConfig) *float64 { return &a.Standing.GhostSeparationStiffness }},
			{Name: "standing.ghost_steering_reaction_time", Min: 0.2, Max: 4.0,
				field: func(a *config.AvoidanceConfig) *float64 { return &a.Standing.GhostSteeringReactionTime }},
			{Name: "standing.moving_obstacle_avoidance_scale", Min: 0.2, Max: 2.0,
				field: func(a *config.AvoidanceConfig) *float64 { return &a.Standing.MovingObstacleAvoidanceScale }},
			{Name: "standing.moving_obstacle_personal_space_scale", Min: 1.0, Max: 4.0,
				field: func(a *config.AvoidanceConfig) *float64 { return &a.Standing.MovingObstaclePersonalSpaceScale }},
		},
	}
}

// Dim returns the number of parameters.
func (pv *ParamVector) Dim() int {
	return len(pv.Specs)
}

// Normalize converts raw parameter values to the [0,1] range.
func (pv *ParamVector) Normalize(raw []float64) []float64 {
	normalized := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		normalized[i] = (raw[i] - spec.Min) / (spec.Max - spec.Min)
	}
	return normalized
}

// Denormalize converts [0,1] values back to raw parameter values.
func (pv *ParamVector) Denormalize(normalized []float64) []float64 {
	raw := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		raw[i] = spec.Min + normalized[i]*(spec.Max-spec.Min)
	}
	return raw
}

// Clamp ensures all values are within bounds.
func (pv *ParamVector) Clamp(v []float64) []float64 {
	clamped := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		clamped[i] = min(max(v[i], spec.Min), spec.Max)
	}
	return clamped
}

// Apply writes clamped values into the avoidance section of cfg.
func (pv *ParamVector) Apply(cfg *config.Config, values []float64) {
	clamped := pv.Clamp(values)
	for i, spec := range pv.Specs {
		*spec.field(&cfg.Avoidance) = clamped[i]
	}
}

// Extract reads the current parameter values from cfg.
func (pv *ParamVector) Extract(cfg *config.Config) []float64 {
	out := make([]float64, len(pv.Specs))
	a := cfg.Avoidance
	for i, spec := range pv.Specs {
		out[i] = *spec.field(&a)
	}
	return out
}
