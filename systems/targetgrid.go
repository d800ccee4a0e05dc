package systems

import (
	"github.com/mlange-42/ark/ecs"
	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/squadsim/components"
	"github.com/pthm-cable/squadsim/config"
)

// TargetGridItem is what the target grid stores for each damageable entity.
type TargetGridItem struct {
	Entity              ecs.Entity
	Capsule             Capsule
	Location            r3.Vec
	IsOnTeam1           bool
	MinCaliberForDamage float64
	IsSoldier           bool
}

// TargetGrid indexes damageable entities for target finding, obstruction
// checks and projectile hits.
type TargetGrid struct {
	grid *HashGrid[ecs.Entity, TargetGridItem]

	addFilter    *ecs.Filter5[components.Transform, components.TeamMember, components.Damageable, components.CapsuleParams, components.TargetGridCell]
	updateFilter *ecs.Filter5[components.Transform, components.TeamMember, components.Damageable, components.CapsuleParams, components.TargetGridCell]

	added []ecs.Entity
}

// NewTargetGrid creates the grid and registers its teardown hook.
func NewTargetGrid(sub *Substrate, c config.GridConfig) *TargetGrid {
	tg := &TargetGrid{
		grid: NewHashGridFromConfig[ecs.Entity, TargetGridItem](c),
		addFilter: ecs.NewFilter5[components.Transform, components.TeamMember, components.Damageable, components.CapsuleParams, components.TargetGridCell](sub.World).
			Without(ecs.C[components.InTargetGrid]()),
		updateFilter: ecs.NewFilter5[components.Transform, components.TeamMember, components.Damageable, components.CapsuleParams, components.TargetGridCell](sub.World).
			With(ecs.C[components.InTargetGrid]()),
	}
	sub.OnDestroy(func(e ecs.Entity) {
		if !sub.HasTag(e, TagInTargetGrid) || !sub.TargetCells.Has(e) {
			return
		}
		tg.grid.Remove(e, sub.TargetCells.Get(e).Location)
	})
	return tg
}

func makeTargetItem(e ecs.Entity, t *components.Transform, team *components.TeamMember, dmg *components.Damageable, cp *components.CapsuleParams) (TargetGridItem, r2.Box) {
	capsule := MakeCapsule(*cp, *t)
	return TargetGridItem{
		Entity:              e,
		Capsule:             capsule,
		Location:            t.Location,
		IsOnTeam1:           team.IsOnTeam1,
		MinCaliberForDamage: dmg.MinCaliberForDamage,
		IsSoldier:           dmg.IsSoldier,
	}, capsule.Bounds()
}

// Execute runs the add phase then the update phase. Both mutate the grid and
// therefore run sequentially on the main goroutine.
func (tg *TargetGrid) Execute(ctx *TickContext) {
	tg.added = tg.added[:0]

	query := tg.addFilter.Query()
	for query.Next() {
		e := query.Entity()
		t, team, dmg, cp, cell := query.Get()
		item, box := makeTargetItem(e, t, team, dmg, cp)
		cell.Location = tg.grid.Add(e, item, box)
		tg.added = append(tg.added, e)
	}

	// Tag after the query is closed. Newly added entities are also visited by
	// the update below, which rewrites the same bounds.
	for _, e := range tg.added {
		ctx.Sub.AddTag(e, TagInTargetGrid)
	}

	query = tg.updateFilter.Query()
	for query.Next() {
		e := query.Entity()
		t, team, dmg, cp, cell := query.Get()
		item, box := makeTargetItem(e, t, team, dmg, cp)
		cell.Location = tg.grid.Move(e, item, cell.Location, box)
	}
}

// Query appends items whose bounds intersect box.
func (tg *TargetGrid) Query(box r2.Box, dst []TargetGridItem) []TargetGridItem {
	return tg.grid.Query(box, dst)
}


// Visit walks items whose bounds intersect box.
func (tg *TargetGrid) Visit(box r2.Box, fn func(item TargetGridItem) bool) {
	tg.grid.Visit(box, func(_ ecs.Entity, v TargetGridItem, _ r2.Box) bool {
		return fn(v)
	})
}

// Len returns the number of indexed entities.
func (tg *TargetGrid) Len() int {
	return tg.grid.Len()
}
