package components

// Tags are zero-size components used as filter keys and state markers.

// NeedsEnemyTarget marks a shooter without a valid target.
type NeedsEnemyTarget struct{}

// WillNeedEnemyTarget marks a shooter holding a target; it will need a new one
// once the invalidators clear it.
type WillNeedEnemyTarget struct{}

// TrackTarget keeps the move-target forward pointed at the current target.
type TrackTarget struct{}

// TrackSound marks an entity turned toward a heard sound.
type TrackSound struct{}

// InTargetGrid marks an entity inserted into the target grid.
type InTargetGrid struct{}

// InObstacleGrid marks an entity inserted into the avoidance obstacle grid.
type InObstacleGrid struct{}

// HasStashedMoveTarget marks an entity whose StashedMoveTarget holds a saved goal.
type HasStashedMoveTarget struct{}

// NeedsForwardCompleteSignal asks for a signal once the entity faces its move-target forward.
type NeedsForwardCompleteSignal struct{}

// Soldier marks infantry (as opposed to vehicles).
type Soldier struct{}

// PlayerControlled marks the entity driven by a player. It is respawned, never destroyed.
type PlayerControlled struct{}

// ProjectileWithDamage marks live projectiles.
type ProjectileWithDamage struct{}

// AvoidsObstacles marks agents that run avoidance. Agents without it are
// non-avoiding colliders for others.
type AvoidsObstacles struct{}
