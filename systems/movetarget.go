package systems

import (
	"log/slog"
	"math"

	"github.com/mlange-42/ark/ecs"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/squadsim/components"
)

// StashMoveTarget saves the current move target so a transient behavior can
// take over steering. Only an active Move action is worth saving. A second
// stash while one is outstanding overwrites it and logs an error, because an
// interrupt such as an enemy sound must win over the task it interrupts.
func StashMoveTarget(sub *Substrate, buf *CommandBuffer, e ecs.Entity, log *slog.Logger) bool {
	if !sub.MoveTargets.Has(e) || !sub.Stashed.Has(e) {
		log.Warn("stash skipped, missing move target", "entity", e)
		return false
	}
	mt := sub.MoveTargets.Get(e)
	if mt.Action != components.ActionMove || mt.ActionID == 0 {
		return false
	}
	if sub.HasTag(e, TagHasStashedMoveTarget) {
		log.Error("move target already stashed, overwriting", "entity", e, "action_id", mt.ActionID)
	}
	sub.Stashed.Get(e).MoveTarget = *mt
	buf.AddTag(e, TagHasStashedMoveTarget)
	return true
}

// UnstashMoveTarget restores a stashed move target as a fresh action.
// Main goroutine only.
func UnstashMoveTarget(sub *Substrate, e ecs.Entity) bool {
	if !sub.HasTag(e, TagHasStashedMoveTarget) || !sub.MoveTargets.Has(e) || !sub.Stashed.Has(e) {
		return false
	}
	stashed := sub.Stashed.Get(e).MoveTarget
	mt := sub.MoveTargets.Get(e)
	mt.CreateNewAction(stashed.Action, sub.Now)
	mt.Center = stashed.Center
	mt.Forward = stashed.Forward
	mt.DesiredSpeed = stashed.DesiredSpeed
	mt.DistanceToGoal = stashed.DistanceToGoal
	mt.SlackRadius = stashed.SlackRadius
	mt.IntentAtGoal = stashed.IntentAtGoal
	sub.RemoveTag(e, TagHasStashedMoveTarget)
	return true
}

// FinishTrackSound ends a sound track and restores the move order it
// interrupted. It reports whether a move order came back. Main goroutine only.
func FinishTrackSound(sub *Substrate, e ecs.Entity) bool {
	if !sub.HasTag(e, TagTrackSound) {
		return false
	}
	sub.RemoveTag(e, TagTrackSound)
	return UnstashMoveTarget(sub, e)
}

// LookAtTarget stops the entity in place facing its current target and keeps
// tracking it. Main goroutine only; tags are deferred into buf.
func LookAtTarget(sub *Substrate, buf *CommandBuffer, e ecs.Entity, log *slog.Logger) bool {
	if !sub.Targets.Has(e) || !sub.MoveTargets.Has(e) || !sub.Transforms.Has(e) {
		log.Warn("look at skipped, missing fragments", "entity", e)
		return false
	}
	target := sub.Targets.Get(e).Entity
	if !sub.IsValid(target) || !sub.Transforms.Has(target) {
		return false
	}
	StashMoveTarget(sub, buf, e, log)

	loc := sub.Transforms.Get(e).Location
	mt := sub.MoveTargets.Get(e)
	mt.CreateNewAction(components.ActionStand, sub.Now)
	mt.Center = loc
	mt.DistanceToGoal = 0
	mt.Forward = safeNormalOr(flat(r3.Sub(sub.Transforms.Get(target).Location, loc)), mt.Forward)

	buf.AddTag(e, TagTrackTarget)
	buf.AddTag(e, TagNeedsForwardCompleteSignal)
	return true
}

// FaceLocation points a move target's forward at a point.
func FaceLocation(mt *components.MoveTarget, from, to r3.Vec) {
	mt.Forward = safeNormalOr(flat(r3.Sub(to, from)), mt.Forward)
}

// YawDelta returns the signed smallest angle from a to b.
func YawDelta(a, b float64) float64 {
	d := math.Mod(b-a+math.Pi, 2*math.Pi)
	if d < 0 {
		d += 2 * math.Pi
	}
	return d - math.Pi
}

// IsFacing reports whether a transform looks along dir within tolerance.
func IsFacing(t components.Transform, dir r3.Vec, tolerance float64) bool {
	if r3.Norm2(flat(dir)) < smallNumber {
		return true
	}
	return math.Abs(YawDelta(t.Yaw, components.YawFromDirection(dir))) <= tolerance
}

// TargetTracker turns entities tagged TrackTarget toward their target.
type TargetTracker struct {
	filter *ecs.Filter3[components.Transform, components.TargetEntity, components.MoveTarget]
	rows   []trackRow
}

type trackRow struct {
	entity ecs.Entity
	mt     *components.MoveTarget
	from   r3.Vec
	target ecs.Entity
}

// NewTargetTracker creates the processor.
func NewTargetTracker(sub *Substrate) *TargetTracker {
	return &TargetTracker{
		filter: ecs.NewFilter3[components.Transform, components.TargetEntity, components.MoveTarget](sub.World).
			With(ecs.C[components.TrackTarget]()),
	}
}

// Execute updates each tracker's move-target forward. Every entity writes
// only its own move target.
func (tt *TargetTracker) Execute(ctx *TickContext) {
	tt.rows = tt.rows[:0]
	query := tt.filter.Query()
	for query.Next() {
		t, target, mt := query.Get()
		tt.rows = append(tt.rows, trackRow{entity: query.Entity(), mt: mt, from: t.Location, target: target.Entity})
	}
	ctx.Runner.ParallelFor(len(tt.rows), func(_, start, end int) {
		for i := start; i < end; i++ {
			r := &tt.rows[i]
			if !ctx.Sub.IsValid(r.target) || !ctx.Sub.Transforms.Has(r.target) {
				continue
			}
			FaceLocation(r.mt, r.from, ctx.Sub.Transforms.Get(r.target).Location)
		}
	})
}

// ForwardCompleteSignaler tells the behavior layer when an entity has turned
// to face its move-target forward.
type ForwardCompleteSignaler struct {
	filter    *ecs.Filter2[components.Transform, components.MoveTarget]
	tolerance float64
}

// NewForwardCompleteSignaler creates the processor.
func NewForwardCompleteSignaler(sub *Substrate, tolerance float64) *ForwardCompleteSignaler {
	return &ForwardCompleteSignaler{
		filter: ecs.NewFilter2[components.Transform, components.MoveTarget](sub.World).
			With(ecs.C[components.NeedsForwardCompleteSignal]()),
		tolerance: tolerance,
	}
}

// Execute signals and clears the tag for entities that finished turning.
func (fc *ForwardCompleteSignaler) Execute(ctx *TickContext) {
	buf := ctx.Cmds.Main()
	query := fc.filter.Query()
	for query.Next() {
		t, mt := query.Get()
		if !IsFacing(*t, mt.Forward, fc.tolerance) {
			continue
		}
		e := query.Entity()
		buf.Signal(e, SignalNewTaskRequired)
		buf.RemoveTag(e, TagNeedsForwardCompleteSignal)
	}
	ctx.Flush()
}
