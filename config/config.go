// Package config provides configuration loading and access for the simulation.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Config holds all simulation configuration parameters.
type Config struct {
	Simulation   SimulationConfig   `yaml:"simulation"`
	Grids        GridsConfig        `yaml:"grids"`
	TargetFinder TargetFinderConfig `yaml:"target_finder"`
	Projectile   ProjectileConfig   `yaml:"projectile"`
	Damage       DamageConfig       `yaml:"damage"`
	Sound        SoundConfig        `yaml:"sound"`
	Avoidance    AvoidanceConfig    `yaml:"avoidance"`
	Movement     MovementConfig     `yaml:"movement"`
	Scenario     ScenarioConfig     `yaml:"scenario"`
	Effects      []EffectConfig     `yaml:"effects"`
	Telemetry    TelemetryConfig    `yaml:"telemetry"`
	Debug        DebugConfig        `yaml:"debug"`
	Toggles      Toggles            `yaml:"toggles"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// SimulationConfig holds tick parameters.
type SimulationConfig struct {
	DT      float64 `yaml:"dt"`      // seconds per tick
	Gravity float64 `yaml:"gravity"` // world units per second squared, positive down
	Workers int     `yaml:"workers"` // 0 = GOMAXPROCS
}

// GridConfig tunes one hierarchical hash grid.
type GridConfig struct {
	CellSize float64 `yaml:"cell_size"`
	Levels   int     `yaml:"levels"`
	Ratio    int     `yaml:"ratio"`
}

// GridsConfig groups the spatial indexes.
type GridsConfig struct {
	Target      GridConfig `yaml:"target"`
	Obstacle    GridConfig `yaml:"obstacle"`
	Sound       GridConfig `yaml:"sound"`
	Environment GridConfig `yaml:"environment"`
}

// TargetFinderConfig holds target acquisition parameters.
type TargetFinderConfig struct {
	EngagementRange     float64 `yaml:"engagement_range"`
	DestroyedMaxRange   float64 `yaml:"destroyed_max_range"` // straight-line distance at which a target is dropped
	Phases              int     `yaml:"phases"`              // sub-box phases per axis; 1 = whole window each tick
	MaxCloseEntities    int     `yaml:"max_close_entities"`
	TraceRadius         float64 `yaml:"trace_radius"`       // sphere trace / shooter capsule radius
	ObstructionBuffer   float64 `yaml:"obstruction_buffer"` // padding on the obstruction query box
	SoldierSpawnZOffset float64 `yaml:"soldier_spawn_z_offset"`
	VehicleSpawnZOffset float64 `yaml:"vehicle_spawn_z_offset"`
	VehicleAimZOffset   float64 `yaml:"vehicle_aim_z_offset"`
	FacingToleranceRad  float64 `yaml:"facing_tolerance_rad"`
}

// ProjectileConfig holds projectile flight parameters.
type ProjectileConfig struct {
	MinZ          float64 `yaml:"min_z"`          // projectiles below this are removed
	MaxCandidates int     `yaml:"max_candidates"` // splash victims per impact, nearest first
}

// DamageConfig holds death handling parameters.
type DamageConfig struct {
	EmitImpactSound bool `yaml:"emit_impact_sound"`
}

// SoundConfig holds audio perception parameters.
type SoundConfig struct {
	TTLTicks    int     `yaml:"ttl_ticks"`
	QueryRadius float64 `yaml:"query_radius"`
	Extent      float64 `yaml:"extent"` // half-size of the bounds a sound is inserted with
}

// MovingAvoidanceConfig tunes avoidance for agents following a path.
type MovingAvoidanceConfig struct {
	ObstacleDetectionDistance               float64 `yaml:"obstacle_detection_distance"`
	ObstacleSeparationDistance              float64 `yaml:"obstacle_separation_distance"`
	ObstacleSeparationStiffness             float64 `yaml:"obstacle_separation_stiffness"`
	ObstaclePredictiveAvoidanceStiffness    float64 `yaml:"obstacle_predictive_avoidance_stiffness"`
	EnvironmentSeparationDistance           float64 `yaml:"environment_separation_distance"`
	EnvironmentSeparationStiffness          float64 `yaml:"environment_separation_stiffness"`
	EnvironmentPredictiveAvoidanceStiffness float64 `yaml:"environment_predictive_avoidance_stiffness"`
	SeparationRadiusScale                   float64 `yaml:"separation_radius_scale"`
	PredictiveAvoidanceRadiusScale          float64 `yaml:"predictive_avoidance_radius_scale"`
	PredictiveAvoidanceTime                 float64 `yaml:"predictive_avoidance_time"`
	PredictiveAvoidanceDistance             float64 `yaml:"predictive_avoidance_distance"`
	StandingObstacleAvoidanceScale          float64 `yaml:"standing_obstacle_avoidance_scale"`
	StaticObstacleClearanceScale            float64 `yaml:"static_obstacle_clearance_scale"`
	StartOfPathDuration                     float64 `yaml:"start_of_path_duration"`
	StartOfPathAvoidanceScale               float64 `yaml:"start_of_path_avoidance_scale"`
	EndOfPathDuration                       float64 `yaml:"end_of_path_duration"`
	EndOfPathAvoidanceScale                 float64 `yaml:"end_of_path_avoidance_scale"`
	MaxColliders                            int     `yaml:"max_colliders"`
}

// StandingAvoidanceConfig tunes the ghost simulation of standing agents.
type StandingAvoidanceConfig struct {
	GhostSteeringReactionTime        float64 `yaml:"ghost_steering_reaction_time"`
	GhostMaxSpeed                    float64 `yaml:"ghost_max_speed"`
	GhostMaxAcceleration             float64 `yaml:"ghost_max_acceleration"`
	GhostVelocityDampingTime         float64 `yaml:"ghost_velocity_damping_time"`
	GhostStandSlowdownRadius         float64 `yaml:"ghost_stand_slowdown_radius"`
	GhostToTargetMaxDeviation        float64 `yaml:"ghost_to_target_max_deviation"`
	GhostObstacleDetectionDistance   float64 `yaml:"ghost_obstacle_detection_distance"`
	GhostSeparationDistance          float64 `yaml:"ghost_separation_distance"`
	GhostSeparationStiffness         float64 `yaml:"ghost_separation_stiffness"`
	GhostSeparationRadiusScale       float64 `yaml:"ghost_separation_radius_scale"`
	MovingObstacleAvoidanceScale     float64 `yaml:"moving_obstacle_avoidance_scale"`
	MovingObstacleDirectionalScale   float64 `yaml:"moving_obstacle_directional_scale"`
	MovingObstaclePersonalSpaceScale float64 `yaml:"moving_obstacle_personal_space_scale"`
	MaxColliders                     int     `yaml:"max_colliders"`
}

// AvoidanceConfig groups moving and standing avoidance.
type AvoidanceConfig struct {
	MaxAcceleration float64                 `yaml:"max_acceleration"`
	Moving          MovingAvoidanceConfig   `yaml:"moving"`
	Standing        StandingAvoidanceConfig `yaml:"standing"`
}

// MovementConfig holds the downstream integrator parameters.
type MovementConfig struct {
	MaxSpeed        float64 `yaml:"max_speed"`
	TurnRate        float64 `yaml:"turn_rate"` // radians per second
	SteeringK       float64 `yaml:"steering_k"`
	ArrivalDistance float64 `yaml:"arrival_distance"`
}

// ScenarioConfig describes the headless battle set up by the game package.
type ScenarioConfig struct {
	SoldiersPerTeam int          `yaml:"soldiers_per_team"`
	VehiclesPerTeam int          `yaml:"vehicles_per_team"`
	SquadSize       int          `yaml:"squad_size"`
	FieldWidth      float64      `yaml:"field_width"`
	FieldDepth      float64      `yaml:"field_depth"`
	SpawnDepth      float64      `yaml:"spawn_depth"`
	Walls           int          `yaml:"walls"`
	WallHeight      float64      `yaml:"wall_height"`
	Soldier         UnitTemplate `yaml:"soldier"`
	Vehicle         UnitTemplate `yaml:"vehicle"`
	PlayerOnTeam1   bool         `yaml:"player_on_team1"`
}

// UnitTemplate is the spawn template for one unit kind.
type UnitTemplate struct {
	Health              int16          `yaml:"health"`
	MinCaliberForDamage float64        `yaml:"min_caliber_for_damage"`
	CapsuleRadius       float64        `yaml:"capsule_radius"`
	CapsuleLength       float64        `yaml:"capsule_length"`
	CapsuleAlongForward bool           `yaml:"capsule_along_forward"`
	AgentRadius         float64        `yaml:"agent_radius"`
	Speed               float64        `yaml:"speed"`
	Weapon              WeaponTemplate `yaml:"weapon"`
}

// WeaponTemplate is the spawn template for a weapon.
type WeaponTemplate struct {
	Caliber          float64 `yaml:"caliber"`
	Damage           int16   `yaml:"damage"`
	SplashRadius     float64 `yaml:"splash_radius"`
	ProjectileSpeed  float64 `yaml:"projectile_speed"`
	ProjectileRadius float64 `yaml:"projectile_radius"`
	CooldownSeconds  float64 `yaml:"cooldown_seconds"`
	MuzzleDistance   float64 `yaml:"muzzle_distance"`
	ExplosionEffect  string  `yaml:"explosion_effect"`
}

// EffectConfig registers a visual effect kind.
type EffectConfig struct {
	Name            string  `yaml:"name"`
	LifetimeSeconds float64 `yaml:"lifetime_seconds"`
}

// TelemetryConfig holds telemetry parameters.
type TelemetryConfig struct {
	StatsWindow         float64 `yaml:"stats_window"` // seconds
	PerfCollectorWindow int     `yaml:"perf_collector_window"`
}

// DebugConfig holds debug view parameters.
type DebugConfig struct {
	SnapshotEveryTicks int `yaml:"snapshot_every_ticks"`
	ClientBuffer       int `yaml:"client_buffer"`
}

// Toggles are operational knobs read at the start of each tick.
type Toggles struct {
	SkipFindingTargets   bool `yaml:"skip_finding_targets"`
	SkipDealingDamage    bool `yaml:"skip_dealing_damage"`
	DrawCapsules         bool `yaml:"draw_capsules"`
	InvalidateAllTargets bool `yaml:"invalidate_all_targets"` // resets after one tick
	DebugSoundPerception bool `yaml:"debug_sound_perception"`
}

// ErrUnknownToggle is returned when a toggle name does not exist.
var ErrUnknownToggle = errors.New("unknown toggle")

// Set assigns a toggle by its yaml name.
func (t *Toggles) Set(name string, value bool) error {
	switch name {
	case "skip_finding_targets":
		t.SkipFindingTargets = value
	case "skip_dealing_damage":
		t.SkipDealingDamage = value
	case "draw_capsules":
		t.DrawCapsules = value
	case "invalidate_all_targets":
		t.InvalidateAllTargets = value
	case "debug_sound_perception":
		t.DebugSoundPerception = value
	default:
		return fmt.Errorf("%w: %q", ErrUnknownToggle, name)
	}
	return nil
}

// DerivedConfig holds computed values derived from the loaded config.
type DerivedConfig struct {
	EffectIndex map[string]int16 // name -> effect id
}

// global holds the loaded configuration.
var global *Config

// Init loads configuration from the given path, or uses embedded defaults if path is empty.
// Must be called before Cfg().
func Init(path string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	global = cfg
	return nil
}

// MustInit is like Init but panics on error.
func MustInit(path string) {
	if err := Init(path); err != nil {
		panic(fmt.Sprintf("config: failed to initialize: %v", err))
	}
}

// Cfg returns the global configuration. Panics if Init was not called.
func Cfg() *Config {
	if global == nil {
		panic("config: Cfg() called before Init()")
	}
	return global
}

// Default returns a fresh copy of the embedded defaults.
func Default() *Config {
	cfg, err := Load("")
	if err != nil {
		panic(fmt.Sprintf("config: embedded defaults invalid: %v", err))
	}
	return cfg
}

// Load loads configuration from a YAML file, merging with embedded defaults.
// If path is empty, only embedded defaults are used.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Unmarshal into same struct - only overwrites fields present in file
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.computeDerived()

	return cfg, nil
}

// LoadToggles reads only the toggles section of a YAML file.
func LoadToggles(path string) (Toggles, error) {
	var doc struct {
		Toggles Toggles `yaml:"toggles"`
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Toggles{}, fmt.Errorf("reading toggles file: %w", err)
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Toggles{}, fmt.Errorf("parsing toggles file: %w", err)
	}
	return doc.Toggles, nil
}

// Validate rejects values that would break the tick.
func (c *Config) Validate() error {
	if c.Simulation.DT <= 0 {
		return fmt.Errorf("simulation.dt must be positive, got %v", c.Simulation.DT)
	}
	grids := map[string]GridConfig{
		"target":      c.Grids.Target,
		"obstacle":    c.Grids.Obstacle,
		"sound":       c.Grids.Sound,
		"environment": c.Grids.Environment,
	}
	for name, g := range grids {
		if g.CellSize <= 0 || g.Levels < 1 || g.Ratio < 1 {
			return fmt.Errorf("grids.%s: cell_size, levels and ratio must be positive", name)
		}
	}
	if c.Sound.TTLTicks < 1 {
		return fmt.Errorf("sound.ttl_ticks must be at least 1")
	}
	if c.TargetFinder.Phases < 1 {
		return fmt.Errorf("target_finder.phases must be at least 1")
	}
	return nil
}

// computeDerived calculates values derived from loaded config.
func (c *Config) computeDerived() {
	c.Derived.EffectIndex = make(map[string]int16, len(c.Effects))
	for i, e := range c.Effects {
		c.Derived.EffectIndex[e.Name] = int16(i)
	}

	// Clamp durations that are used as divisors
	const small = 1e-4
	m := &c.Avoidance.Moving
	m.PredictiveAvoidanceTime = max(m.PredictiveAvoidanceTime, small)
	m.ObstacleSeparationDistance = max(m.ObstacleSeparationDistance, small)
	m.PredictiveAvoidanceDistance = max(m.PredictiveAvoidanceDistance, small)
	m.EnvironmentSeparationDistance = max(m.EnvironmentSeparationDistance, small)
	m.StartOfPathDuration = max(m.StartOfPathDuration, small)
	m.EndOfPathDuration = max(m.EndOfPathDuration, small)
	s := &c.Avoidance.Standing
	s.GhostSteeringReactionTime = max(s.GhostSteeringReactionTime, small)
	s.GhostSeparationDistance = max(s.GhostSeparationDistance, small)
	s.GhostToTargetMaxDeviation = max(s.GhostToTargetMaxDeviation, small)
	s.MovingObstacleAvoidanceScale = max(s.MovingObstacleAvoidanceScale, small)
}

// EffectID resolves an effect name, returning -1 when unknown or empty.
func (c *Config) EffectID(name string) int16 {
	if name == "" {
		return -1
	}
	if id, ok := c.Derived.EffectIndex[name]; ok {
		return id
	}
	return -1
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
