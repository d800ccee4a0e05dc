package systems

import (
	"github.com/mlange-42/ark/ecs"
	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/squadsim/components"
	"github.com/pthm-cable/squadsim/config"
)

// ObstacleItem is the avoidance view of an agent, captured when the grid is
// refreshed so avoidance never reads another entity's live fragments.
type ObstacleItem struct {
	Entity   ecs.Entity
	Location r3.Vec
	Forward  r3.Vec
	Velocity r3.Vec
	Radius   float64
	Collider components.Collider

	CanAvoid bool // has a move target of its own
	IsMoving bool

	HasGhost      bool // standing with a valid ghost
	GhostLocation r3.Vec
	MoveCenter    r3.Vec
}

// ObstacleGrid indexes agents for avoidance.
type ObstacleGrid struct {
	grid *HashGrid[ecs.Entity, ObstacleItem]

	addFilter    *ecs.Filter3[components.Transform, components.AgentRadius, components.ObstacleGridCell]
	updateFilter *ecs.Filter3[components.Transform, components.AgentRadius, components.ObstacleGridCell]

	added []ecs.Entity
}

// NewObstacleGrid creates the grid and registers its teardown hook.
func NewObstacleGrid(sub *Substrate, c config.GridConfig) *ObstacleGrid {
	og := &ObstacleGrid{
		grid: NewHashGridFromConfig[ecs.Entity, ObstacleItem](c),
		addFilter: ecs.NewFilter3[components.Transform, components.AgentRadius, components.ObstacleGridCell](sub.World).
			Without(ecs.C[components.InObstacleGrid]()),
		updateFilter: ecs.NewFilter3[components.Transform, components.AgentRadius, components.ObstacleGridCell](sub.World).
			With(ecs.C[components.InObstacleGrid]()),
	}
	sub.OnDestroy(func(e ecs.Entity) {
		if !sub.HasTag(e, TagInObstacleGrid) || !sub.ObstacleCell.Has(e) {
			return
		}
		og.grid.Remove(e, sub.ObstacleCell.Get(e).Location)
	})
	return og
}

func makeObstacleItem(sub *Substrate, e ecs.Entity, t *components.Transform, r *components.AgentRadius) (ObstacleItem, r2.Box) {
	item := ObstacleItem{
		Entity:   e,
		Location: t.Location,
		Forward:  t.Forward(),
		Radius:   r.Radius,
		IsMoving: true,
	}
	if sub.Velocities.Has(e) {
		item.Velocity = sub.Velocities.Get(e).Value
	}
	if sub.Colliders.Has(e) {
		item.Collider = *sub.Colliders.Get(e)
	}
	if sub.MoveTargets.Has(e) {
		mt := sub.MoveTargets.Get(e)
		item.CanAvoid = true
		item.IsMoving = mt.Action == components.ActionMove
		item.MoveCenter = mt.Center
		if mt.Action == components.ActionStand && sub.Ghosts.Has(e) {
			g := sub.Ghosts.Get(e)
			if g.IsValid(mt.ActionID) {
				item.HasGhost = true
				item.GhostLocation = g.Location
			}
		}
	}
	reach := r.Radius
	if item.Collider.Shape == components.ColliderPill {
		reach = max(reach, item.Collider.HalfLength+item.Collider.Radius)
	}
	return item, boxAround(t.Location, reach, reach)
}

// Execute adds new agents and refreshes the rest. Main goroutine only.
func (og *ObstacleGrid) Execute(ctx *TickContext) {
	og.added = og.added[:0]
	query := og.addFilter.Query()
	for query.Next() {
		e := query.Entity()
		t, r, cell := query.Get()
		item, box := makeObstacleItem(ctx.Sub, e, t, r)
		cell.Location = og.grid.Add(e, item, box)
		og.added = append(og.added, e)
	}
	for _, e := range og.added {
		ctx.Sub.AddTag(e, TagInObstacleGrid)
	}

	query = og.updateFilter.Query()
	for query.Next() {
		e := query.Entity()
		t, r, cell := query.Get()
		item, box := makeObstacleItem(ctx.Sub, e, t, r)
		cell.Location = og.grid.Move(e, item, cell.Location, box)
	}
}

// Query appends agents whose bounds intersect box.
func (og *ObstacleGrid) Query(box r2.Box, dst []ObstacleItem) []ObstacleItem {
	return og.grid.Query(box, dst)
}

// Len returns the number of indexed agents.
func (og *ObstacleGrid) Len() int {
	return og.grid.Len()
}
