package systems

import (
	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/squadsim/components"
)

// Tag identifies a zero-size marker component for deferred add/remove.
type Tag uint8

const (
	TagNeedsEnemyTarget Tag = iota
	TagWillNeedEnemyTarget
	TagTrackTarget
	TagTrackSound
	TagInTargetGrid
	TagInObstacleGrid
	TagHasStashedMoveTarget
	TagNeedsForwardCompleteSignal
	TagSoldier
	TagPlayerControlled
	TagProjectileWithDamage
	TagAvoidsObstacles
	numTags
)

var tagNames = [numTags]string{
	"needs_enemy_target",
	"will_need_enemy_target",
	"track_target",
	"track_sound",
	"in_target_grid",
	"in_obstacle_grid",
	"has_stashed_move_target",
	"needs_forward_complete_signal",
	"soldier",
	"player_controlled",
	"projectile_with_damage",
	"avoids_obstacles",
}

func (t Tag) String() string {
	if t < numTags {
		return tagNames[t]
	}
	return "unknown"
}

type tagMapper interface {
	add(e ecs.Entity)
	remove(e ecs.Entity)
	has(e ecs.Entity) bool
}

type tagMap[T any] struct {
	m *ecs.Map[T]
}

func newTagMap[T any](w *ecs.World) tagMap[T] {
	return tagMap[T]{m: ecs.NewMap[T](w)}
}

func (t tagMap[T]) add(e ecs.Entity) {
	if !t.m.Has(e) {
		var v T
		t.m.Add(e, &v)
	}
}

func (t tagMap[T]) remove(e ecs.Entity) {
	if t.m.Has(e) {
		t.m.Remove(e)
	}
}

func (t tagMap[T]) has(e ecs.Entity) bool {
	return t.m.Has(e)
}

// DestroyHook runs while the entity is still alive and readable, right
// before the substrate removes it.
type DestroyHook func(e ecs.Entity)

// Substrate wraps the ark world with the typed mappers the processors share.
// Processors read through it freely during parallel phases; every structural
// change goes through a CommandBuffer drained on the main goroutine.
type Substrate struct {
	World *ecs.World

	Transforms   *ecs.Map[components.Transform]
	Velocities   *ecs.Map[components.Velocity]
	Forces       *ecs.Map[components.Force]
	Teams        *ecs.Map[components.TeamMember]
	Targets      *ecs.Map[components.TargetEntity]
	Damageables  *ecs.Map[components.Damageable]
	Projectiles  *ecs.Map[components.ProjectileDamage]
	Healths      *ecs.Map[components.Health]
	Capsules     *ecs.Map[components.CapsuleParams]
	TargetCells  *ecs.Map[components.TargetGridCell]
	ObstacleCell *ecs.Map[components.ObstacleGridCell]
	PrevLocs     *ecs.Map[components.PreviousLocation]
	Radii        *ecs.Map[components.AgentRadius]
	Colliders    *ecs.Map[components.Collider]
	MoveTargets  *ecs.Map[components.MoveTarget]
	Stashed      *ecs.Map[components.StashedMoveTarget]
	Ghosts       *ecs.Map[components.Ghost]
	Weapons      *ecs.Map[components.Weapon]
	Delayed      *ecs.Map[components.DelayedDestruction]
	Effects      *ecs.Map[components.Effect]
	SpawnPoints  *ecs.Map[components.SpawnPoint]
	UnitMembers  *ecs.Map[components.UnitMember]

	tags  [numTags]tagMapper
	hooks []DestroyHook

	// Now is the simulation clock in seconds, advanced by the game loop.
	Now float64
}

// NewSubstrate creates a world and all mappers.
func NewSubstrate() *Substrate {
	w := ecs.NewWorld()
	s := &Substrate{
		World:        w,
		Transforms:   ecs.NewMap[components.Transform](w),
		Velocities:   ecs.NewMap[components.Velocity](w),
		Forces:       ecs.NewMap[components.Force](w),
		Teams:        ecs.NewMap[components.TeamMember](w),
		Targets:      ecs.NewMap[components.TargetEntity](w),
		Damageables:  ecs.NewMap[components.Damageable](w),
		Projectiles:  ecs.NewMap[components.ProjectileDamage](w),
		Healths:      ecs.NewMap[components.Health](w),
		Capsules:     ecs.NewMap[components.CapsuleParams](w),
		TargetCells:  ecs.NewMap[components.TargetGridCell](w),
		ObstacleCell: ecs.NewMap[components.ObstacleGridCell](w),
		PrevLocs:     ecs.NewMap[components.PreviousLocation](w),
		Radii:        ecs.NewMap[components.AgentRadius](w),
		Colliders:    ecs.NewMap[components.Collider](w),
		MoveTargets:  ecs.NewMap[components.MoveTarget](w),
		Stashed:      ecs.NewMap[components.StashedMoveTarget](w),
		Ghosts:       ecs.NewMap[components.Ghost](w),
		Weapons:      ecs.NewMap[components.Weapon](w),
		Delayed:      ecs.NewMap[components.DelayedDestruction](w),
		Effects:      ecs.NewMap[components.Effect](w),
		SpawnPoints:  ecs.NewMap[components.SpawnPoint](w),
		UnitMembers:  ecs.NewMap[components.UnitMember](w),
	}
	s.tags = [numTags]tagMapper{
		TagNeedsEnemyTarget:           newTagMap[components.NeedsEnemyTarget](w),
		TagWillNeedEnemyTarget:        newTagMap[components.WillNeedEnemyTarget](w),
		TagTrackTarget:                newTagMap[components.TrackTarget](w),
		TagTrackSound:                 newTagMap[components.TrackSound](w),
		TagInTargetGrid:               newTagMap[components.InTargetGrid](w),
		TagInObstacleGrid:             newTagMap[components.InObstacleGrid](w),
		TagHasStashedMoveTarget:       newTagMap[components.HasStashedMoveTarget](w),
		TagNeedsForwardCompleteSignal: newTagMap[components.NeedsForwardCompleteSignal](w),
		TagSoldier:                    newTagMap[components.Soldier](w),
		TagPlayerControlled:           newTagMap[components.PlayerControlled](w),
		TagProjectileWithDamage:       newTagMap[components.ProjectileWithDamage](w),
		TagAvoidsObstacles:            newTagMap[components.AvoidsObstacles](w),
	}
	return s
}

// IsValid reports whether the handle refers to a live entity.
func (s *Substrate) IsValid(e ecs.Entity) bool {
	return !e.IsZero() && s.World.Alive(e)
}

// HasTag reports whether a live entity carries the tag.
func (s *Substrate) HasTag(e ecs.Entity, t Tag) bool {
	return s.tags[t].has(e)
}

// OnDestroy registers a teardown hook. Hooks run in registration order.
func (s *Substrate) OnDestroy(h DestroyHook) {
	s.hooks = append(s.hooks, h)
}

// Spawn creates an entity with a transform. Callers attach the rest with
// the mappers. Must not be called during a query or parallel phase.
func (s *Substrate) Spawn(t components.Transform) ecs.Entity {
	return s.Transforms.NewEntity(&t)
}

// AddTag attaches a tag immediately. Main goroutine only.
func (s *Substrate) AddTag(e ecs.Entity, t Tag) {
	s.tags[t].add(e)
}

// RemoveTag detaches a tag immediately. Main goroutine only.
func (s *Substrate) RemoveTag(e ecs.Entity, t Tag) {
	s.tags[t].remove(e)
}

// destroy runs the teardown hooks and removes the entity. It is only reached
// through CommandBuffer draining.
func (s *Substrate) destroy(e ecs.Entity) bool {
	if !s.IsValid(e) {
		return false
	}
	for _, h := range s.hooks {
		h(e)
	}
	s.World.RemoveEntity(e)
	return true
}
