package systems

import (
	"github.com/mlange-42/ark/ecs"
	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/squadsim/components"
)

// invalidateTargets clears assignments and sends the entities back to target
// acquisition. Main goroutine only.
func invalidateTargets(ctx *TickContext, entities []ecs.Entity) {
	buf := ctx.Cmds.Main()
	for _, e := range entities {
		if !ctx.Sub.Targets.Has(e) {
			continue
		}
		t := ctx.Sub.Targets.Get(e)
		t.Entity = ecs.Entity{}
		t.VerticalAimOffset = 0

		buf.AddTag(e, TagNeedsEnemyTarget)
		buf.RemoveTag(e, TagWillNeedEnemyTarget)
		buf.RemoveTag(e, TagTrackTarget)
		buf.RemoveTag(e, TagNeedsForwardCompleteSignal)
		buf.Signal(e, SignalTargetLost)
		UnstashMoveTarget(ctx.Sub, e)
	}
	ctx.Stats.TargetsLost += len(entities)
	ctx.Flush()
}

// DestroyedTargetFinder drops targets that are gone or far out of range.
// It is cheap and runs sequentially every tick.
type DestroyedTargetFinder struct {
	filter   *ecs.Filter2[components.Transform, components.TargetEntity]
	maxRange float64
	stale    []ecs.Entity
}

// NewDestroyedTargetFinder creates the processor.
func NewDestroyedTargetFinder(sub *Substrate, maxRange float64) *DestroyedTargetFinder {
	return &DestroyedTargetFinder{
		filter: ecs.NewFilter2[components.Transform, components.TargetEntity](sub.World).
			With(ecs.C[components.WillNeedEnemyTarget]()),
		maxRange: maxRange,
	}
}

// Execute collects stale assignments then invalidates them.
func (f *DestroyedTargetFinder) Execute(ctx *TickContext) {
	f.stale = f.stale[:0]
	maxSq := f.maxRange * f.maxRange
	query := f.filter.Query()
	for query.Next() {
		t, target := query.Get()
		if !ctx.Sub.IsValid(target.Entity) || !ctx.Sub.Transforms.Has(target.Entity) {
			f.stale = append(f.stale, query.Entity())
			continue
		}
		other := ctx.Sub.Transforms.Get(target.Entity).Location
		if r3.Norm2(r3.Sub(other, t.Location)) > maxSq {
			f.stale = append(f.stale, query.Entity())
		}
	}
	if len(f.stale) > 0 {
		invalidateTargets(ctx, f.stale)
	}
}

type validationRow struct {
	shooter Shooter
	target  ecs.Entity
}

// InvalidTargetFinder re-runs the range and obstruction checks of target
// acquisition against existing assignments.
type InvalidTargetFinder struct {
	grid   *TargetGrid
	env    *Environment
	params FinderParams

	filter *ecs.Filter3[components.Transform, components.TeamMember, components.TargetEntity]

	rows    []validationRow
	queues  [][]ecs.Entity
	scratch [][]TargetGridItem
	merged  []ecs.Entity
}

// NewInvalidTargetFinder creates the processor.
func NewInvalidTargetFinder(sub *Substrate, grid *TargetGrid, env *Environment, p FinderParams) *InvalidTargetFinder {
	return &InvalidTargetFinder{
		grid:   grid,
		env:    env,
		params: p,
		filter: ecs.NewFilter3[components.Transform, components.TeamMember, components.TargetEntity](sub.World).
			With(ecs.C[components.WillNeedEnemyTarget]()),
	}
}

// Execute validates assignments in parallel and invalidates the failures on
// the main goroutine.
func (f *InvalidTargetFinder) Execute(ctx *TickContext) {
	f.rows = f.rows[:0]
	query := f.filter.Query()
	for query.Next() {
		t, team, target := query.Get()
		f.rows = append(f.rows, validationRow{
			target: target.Entity,
			shooter: Shooter{
				Entity:    query.Entity(),
				Location:  t.Location,
				Forward:   t.Forward(),
				IsOnTeam1: team.IsOnTeam1,
				Caliber:   target.Caliber,
				Range:     target.EngagementRange,
				IsSoldier: target.IsSoldier,
			},
		})
	}
	if len(f.rows) == 0 {
		return
	}

	workers := ctx.Runner.Workers()
	if len(f.queues) < workers {
		f.queues = make([][]ecs.Entity, workers)
		f.scratch = make([][]TargetGridItem, workers)
	}
	for i := range f.queues {
		f.queues[i] = f.queues[i][:0]
	}

	invalidateAll := ctx.Toggles.InvalidateAllTargets
	ctx.Runner.ParallelFor(len(f.rows), func(worker, start, end int) {
		for i := start; i < end; i++ {
			r := &f.rows[i]
			if invalidateAll || !f.stillValid(ctx.Sub, r, &f.scratch[worker]) {
				f.queues[worker] = append(f.queues[worker], r.shooter.Entity)
			}
		}
	})

	f.merged = f.merged[:0]
	for _, q := range f.queues {
		f.merged = append(f.merged, q...)
	}
	if len(f.merged) > 0 {
		invalidateTargets(ctx, f.merged)
	}
}

// TargetItem builds the grid view of a live damageable entity.
func TargetItem(sub *Substrate, e ecs.Entity) (TargetGridItem, bool) {
	if !sub.IsValid(e) || !sub.Transforms.Has(e) || !sub.Damageables.Has(e) || !sub.Capsules.Has(e) || !sub.Teams.Has(e) {
		return TargetGridItem{}, false
	}
	item, _ := makeTargetItem(e, sub.Transforms.Get(e), sub.Teams.Get(e), sub.Damageables.Get(e), sub.Capsules.Get(e))
	return item, true
}

func (f *InvalidTargetFinder) stillValid(sub *Substrate, r *validationRow, scratch *[]TargetGridItem) bool {
	target, ok := TargetItem(sub, r.target)
	if !ok {
		return false
	}
	s := r.shooter
	if r3.Norm2(r3.Sub(target.Location, s.Location)) > s.Range*s.Range {
		return false
	}
	if target.IsOnTeam1 == s.IsOnTeam1 || !CanDamage(s.Caliber, target.MinCaliberForDamage) {
		return false
	}

	trace := f.params.TraceCapsule(s, target)
	pad := trace.R + f.params.ObstructionBuffer
	box := r2.Box{
		Min: r2.Vec{X: min(trace.A.X, trace.B.X) - pad, Y: min(trace.A.Y, trace.B.Y) - pad},
		Max: r2.Vec{X: max(trace.A.X, trace.B.X) + pad, Y: max(trace.A.Y, trace.B.Y) + pad},
	}
	blockers := f.grid.Query(box, (*scratch)[:0])
	n := 0
	for _, b := range blockers {
		if blocksShot(s, b) {
			blockers[n] = b
			n++
		}
	}
	*scratch = blockers
	return !IsShotObstructed(s, target, blockers[:n], f.env, f.params)
}
