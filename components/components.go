// Package components defines ECS fragments and tags for the squad simulation.
package components

import (
	"math"

	"github.com/mlange-42/ark/ecs"
	"gonum.org/v1/gonum/spatial/r3"
)

// Up is the world up axis.
var Up = r3.Vec{Z: 1}

// Transform is an entity's world placement. Ground units only rotate about Z.
type Transform struct {
	Location r3.Vec
	Yaw      float64 // radians, 0 = +X
}

// Forward returns the unit facing vector in the XY plane.
func (t Transform) Forward() r3.Vec {
	return r3.Vec{X: math.Cos(t.Yaw), Y: math.Sin(t.Yaw)}
}

// Velocity is the entity's linear velocity in world units per second.
type Velocity struct {
	Value r3.Vec
}

// Force is the steering force accumulated by avoidance, consumed by the integrator.
type Force struct {
	Value r3.Vec
}

// TeamMember marks which side an entity fights for. Immutable after spawn.
type TeamMember struct {
	IsOnTeam1 bool
}

// TargetEntity is the current target assignment of a shooter.
// A zero Entity means the shooter needs acquisition.
type TargetEntity struct {
	Entity            ecs.Entity
	Caliber           float64 // caliber delivered by this shooter's weapon
	VerticalAimOffset float64 // vertical launch velocity from the ballistic solve
	EngagementRange   float64
	IsSoldier         bool // shooter geometry: soldier or vehicle
}

// HasTarget reports whether a target handle is set (not whether it is alive).
func (t *TargetEntity) HasTarget() bool {
	return !t.Entity.IsZero()
}

// Damageable is the static armor profile of something that can be shot.
type Damageable struct {
	MinCaliberForDamage float64
	IsSoldier           bool
}

// ProjectileDamage describes what a projectile does on impact.
type ProjectileDamage struct {
	DamagePerHit    int16
	Caliber         float64
	SplashRadius    float64 // 0 = direct hit only
	Radius          float64 // swept capsule radius
	ExplosionEffect int16   // NoEffect when none
	FromTeam1       bool
}

// NoEffect is the explosion effect id meaning "spawn nothing".
const NoEffect int16 = -1

// Health is hit points. The entity dies when Value reaches zero or below.
type Health struct {
	Value int16
	Max   int16
}

// CapsuleParams derives a world-space capsule from the entity transform.
type CapsuleParams struct {
	AlongForward bool
	Radius       float64
	Length       float64
	CenterOffset r3.Vec // local space, rotated by yaw
}

// CellLocation is the opaque handle a hash grid returns on insert.
// It must be kept to move or remove the item later.
type CellLocation struct {
	Level                  int8
	MinX, MinY, MaxX, MaxY int32
}

// TargetGridCell caches where this entity lives in the target grid.
type TargetGridCell struct {
	Location CellLocation
}

// ObstacleGridCell caches where this entity lives in the avoidance obstacle grid.
type ObstacleGridCell struct {
	Location CellLocation
}

// PreviousLocation is the location at the end of the previous tick.
type PreviousLocation struct {
	Location r3.Vec
}

// AgentRadius is the navigation radius used by avoidance.
type AgentRadius struct {
	Radius float64
}

// ColliderShape selects how an obstacle is synthesized for avoidance.
type ColliderShape uint8

const (
	ColliderNone   ColliderShape = iota // use agent radius
	ColliderCircle                      // single point with Radius
	ColliderPill                        // two points at +-HalfLength along forward
)

// Collider is an optional avoidance shape override (vehicles use pills).
type Collider struct {
	Shape      ColliderShape
	Radius     float64
	HalfLength float64
}

// Weapon holds firing parameters for a shooter.
type Weapon struct {
	CooldownSeconds float64
	LastFireTime    float64 // sim seconds, 0 = never fired
	MuzzleDistance  float64
	ProjectileSpeed float64
	Projectile      ProjectileDamage
}

// DelayedDestruction counts down to entity removal.
type DelayedDestruction struct {
	SecondsLeft float64
}

// Effect is a spawned visual effect entity.
type Effect struct {
	ID int16
}

// SpawnPoint is where a player respawns.
type SpawnPoint struct {
	Location r3.Vec
	Yaw      float64
}

// UnitMember links a soldier to its squad in the unit registry.
type UnitMember struct {
	UnitID      int32
	IsCommander bool
}
