package systems

import (
	"math"
	"sort"

	"github.com/mlange-42/ark/ecs"
	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/squadsim/components"
	"github.com/pthm-cable/squadsim/config"
)

// Shooter is the read-only view of an entity looking for a target.
type Shooter struct {
	Entity          ecs.Entity
	Location        r3.Vec
	Forward         r3.Vec
	IsOnTeam1       bool
	Caliber         float64
	Range           float64
	IsSoldier       bool
	ProjectileSpeed float64
}

// FinderParams holds the target finder constants resolved from config.
type FinderParams struct {
	Gravity             float64
	TraceRadius         float64
	ObstructionBuffer   float64
	SoldierSpawnZOffset float64
	VehicleSpawnZOffset float64
	VehicleAimZOffset   float64
	DestroyedMaxRange   float64
	Phases              int
	MaxCloseEntities    int
}

// NewFinderParams extracts finder constants from config.
func NewFinderParams(c *config.Config) FinderParams {
	tf := c.TargetFinder
	return FinderParams{
		Gravity:             c.Simulation.Gravity,
		TraceRadius:         tf.TraceRadius,
		ObstructionBuffer:   tf.ObstructionBuffer,
		SoldierSpawnZOffset: tf.SoldierSpawnZOffset,
		VehicleSpawnZOffset: tf.VehicleSpawnZOffset,
		VehicleAimZOffset:   tf.VehicleAimZOffset,
		DestroyedMaxRange:   tf.DestroyedMaxRange,
		Phases:              tf.Phases,
		MaxCloseEntities:    tf.MaxCloseEntities,
	}
}

// ProjectileSpawnZOffset is the muzzle height above the shooter's location.
func (p FinderParams) ProjectileSpawnZOffset(isSoldier bool) float64 {
	if isSoldier {
		return p.SoldierSpawnZOffset
	}
	return p.VehicleSpawnZOffset
}

// AimPoint is where a shooter aims at a target: mid-capsule for soldiers,
// a fixed height for vehicles.
func (p FinderParams) AimPoint(target TargetGridItem) r3.Vec {
	if target.IsSoldier {
		return r3.Vec{X: target.Location.X, Y: target.Location.Y, Z: target.Capsule.Center().Z}
	}
	return r3.Add(target.Location, r3.Vec{Z: p.VehicleAimZOffset})
}

// MuzzlePoint is where the shooter's projectile would start.
func (p FinderParams) MuzzlePoint(s Shooter) r3.Vec {
	return r3.Add(s.Location, r3.Vec{Z: p.ProjectileSpawnZOffset(s.IsSoldier)})
}

// TraceCapsule is the swept volume of a shot from s to target.
func (p FinderParams) TraceCapsule(s Shooter, target TargetGridItem) Capsule {
	return Capsule{A: p.MuzzlePoint(s), B: p.AimPoint(target), R: p.TraceRadius}
}

// CanDamage reports whether a caliber defeats an armor threshold.
func CanDamage(caliber, minCaliberForDamage float64) bool {
	return caliber >= minCaliberForDamage
}

// blocksShot reports whether item is something the shooter must not shoot
// through: a teammate or something its weapon cannot damage.
func blocksShot(s Shooter, item TargetGridItem) bool {
	return item.IsOnTeam1 == s.IsOnTeam1 || !CanDamage(s.Caliber, item.MinCaliberForDamage)
}

// SolveVerticalAim returns the vertical launch velocity that lands a
// projectile fired at horizontal speed on a point dz higher, dxy away.
func SolveVerticalAim(horizontalDist, dz, horizontalSpeed, gravity float64) float64 {
	if horizontalSpeed <= smallNumber {
		return 0
	}
	t := horizontalDist / horizontalSpeed
	if t <= smallNumber {
		return 0
	}
	return (dz + 0.5*gravity*t*t) / t
}

// VerticalAimOffset runs the ballistic solve for a shooter and target.
func (p FinderParams) VerticalAimOffset(s Shooter, target TargetGridItem) float64 {
	from := p.MuzzlePoint(s)
	to := p.AimPoint(target)
	d := r3.Sub(to, from)
	return SolveVerticalAim(math.Hypot(d.X, d.Y), d.Z, s.ProjectileSpeed, p.Gravity)
}

// SearchBox is the forward-biased window a shooter searches: centered half
// the engagement range ahead, half the range on each side.
func SearchBox(s Shooter) r2.Box {
	half := s.Range / 2
	center := r3.Add(s.Location, r3.Scale(half, s.Forward))
	return boxAround(center, half, half)
}

// BoxForPhase returns sub-box number phase of box split phases x phases.
func BoxForPhase(box r2.Box, phases, phase int) r2.Box {
	if phases <= 1 {
		return box
	}
	phase %= phases * phases
	w := (box.Max.X - box.Min.X) / float64(phases)
	h := (box.Max.Y - box.Min.Y) / float64(phases)
	col := phase % phases
	row := phase / phases
	minX := box.Min.X + float64(col)*w
	minY := box.Min.Y + float64(row)*h
	return r2.Box{Min: r2.Vec{X: minX, Y: minY}, Max: r2.Vec{X: minX + w, Y: minY + h}}
}

// IsShotObstructed checks the friendly/low-caliber blockers and the
// environment between shooter and target.
func IsShotObstructed(s Shooter, target TargetGridItem, blockers []TargetGridItem, env *Environment, p FinderParams) bool {
	trace := p.TraceCapsule(s, target)
	for _, b := range blockers {
		if b.Entity == s.Entity || b.Entity == target.Entity {
			continue
		}
		if TestCapsuleCapsule(trace, b.Capsule) {
			return true
		}
	}
	return env.SphereTrace(trace.A, trace.B, p.TraceRadius)
}

// finderScratch holds per-worker buffers.
type finderScratch struct {
	candidates []TargetGridItem
	potential  []TargetGridItem
	blockers   []TargetGridItem
}

// BestTarget picks the target among candidates: highest armor threshold
// group first, nearest within the group. Equal distances keep the
// candidate seen first.
func BestTarget(s Shooter, candidates []TargetGridItem, env *Environment, p FinderParams) (TargetGridItem, bool) {
	var scratch finderScratch
	return bestTarget(s, candidates, env, p, &scratch)
}

func bestTarget(s Shooter, candidates []TargetGridItem, env *Environment, p FinderParams, scratch *finderScratch) (TargetGridItem, bool) {
	scratch.potential = scratch.potential[:0]
	scratch.blockers = scratch.blockers[:0]
	rangeSq := s.Range * s.Range

	for _, c := range candidates {
		if c.Entity == s.Entity {
			continue
		}
		if blocksShot(s, c) {
			scratch.blockers = append(scratch.blockers, c)
			continue
		}
		if r3.Norm2(r3.Sub(c.Location, s.Location)) > rangeSq {
			continue
		}
		scratch.potential = append(scratch.potential, c)
	}

	var (
		best     TargetGridItem
		bestKey  = math.Inf(-1)
		bestDist = math.Inf(1)
		found    bool
	)
	for _, c := range scratch.potential {
		if IsShotObstructed(s, c, scratch.blockers, env, p) {
			continue
		}
		distSq := r3.Norm2(r3.Sub(c.Location, s.Location))
		key := c.MinCaliberForDamage
		if key > bestKey || (key == bestKey && distSq < bestDist) {
			best, bestKey, bestDist, found = c, key, distSq, true
		}
	}
	return best, found
}

type finderSnapshot struct {
	shooter Shooter
	index   int
}

type finderResult struct {
	found  bool
	target components.TargetEntity
}

// EnemyTargetFinder acquires targets for entities tagged NeedsEnemyTarget.
type EnemyTargetFinder struct {
	grid   *TargetGrid
	env    *Environment
	params FinderParams

	filter *ecs.Filter3[components.Transform, components.TeamMember, components.TargetEntity]

	snapshots []finderSnapshot
	results   []finderResult
	scratch   []finderScratch
}

// NewEnemyTargetFinder creates the processor.
func NewEnemyTargetFinder(sub *Substrate, grid *TargetGrid, env *Environment, p FinderParams) *EnemyTargetFinder {
	return &EnemyTargetFinder{
		grid:   grid,
		env:    env,
		params: p,
		filter: ecs.NewFilter3[components.Transform, components.TeamMember, components.TargetEntity](sub.World).
			With(ecs.C[components.NeedsEnemyTarget]()),
	}
}

// Execute snapshots shooters, searches in parallel and defers every
// mutation into the per-worker command buffers.
func (f *EnemyTargetFinder) Execute(ctx *TickContext) {
	if ctx.Toggles.SkipFindingTargets {
		return
	}

	// Phase A: snapshot (single-threaded)
	f.snapshots = f.snapshots[:0]
	query := f.filter.Query()
	for query.Next() {
		e := query.Entity()
		t, team, target := query.Get()
		speed := 0.0
		if w := ctx.Sub.Weapons; w.Has(e) {
			speed = w.Get(e).ProjectileSpeed
		}
		f.snapshots = append(f.snapshots, finderSnapshot{
			index: len(f.snapshots),
			shooter: Shooter{
				Entity:          e,
				Location:        t.Location,
				Forward:         t.Forward(),
				IsOnTeam1:       team.IsOnTeam1,
				Caliber:         target.Caliber,
				Range:           target.EngagementRange,
				IsSoldier:       target.IsSoldier,
				ProjectileSpeed: speed,
			},
		})
	}

	n := len(f.snapshots)
	if n == 0 {
		return
	}
	if cap(f.results) < n {
		f.results = make([]finderResult, n)
	}
	f.results = f.results[:n]
	if len(f.scratch) < ctx.Runner.Workers() {
		f.scratch = make([]finderScratch, ctx.Runner.Workers())
	}

	// Phase B: search (parallel, read-only)
	ctx.Runner.ParallelFor(n, func(worker, start, end int) {
		scratch := &f.scratch[worker]
		buf := ctx.Cmds.Buffer(worker)
		for i := start; i < end; i++ {
			f.results[i] = f.search(ctx, &f.snapshots[i], scratch)
			if !f.results[i].found {
				continue
			}
			e := f.snapshots[i].shooter.Entity
			SetFragment(buf, ctx.Sub.Targets, e, f.results[i].target)
			buf.RemoveTag(e, TagNeedsEnemyTarget)
			buf.AddTag(e, TagWillNeedEnemyTarget)
			buf.Signal(e, SignalTargetAcquired)
		}
	})

	for i := range f.results {
		if f.results[i].found {
			ctx.Stats.TargetsAcquired++
		}
	}

	// Phase C: apply (single-threaded)
	ctx.Flush()
}

func (f *EnemyTargetFinder) search(ctx *TickContext, snap *finderSnapshot, scratch *finderScratch) finderResult {
	s := snap.shooter
	box := SearchBox(s)
	p := f.params

	scratch.candidates = scratch.candidates[:0]
	if p.Phases > 1 {
		phase := (int(ctx.Tick) + snap.index) % (p.Phases * p.Phases)
		scratch.candidates = f.grid.Query(BoxForPhase(box, p.Phases, phase), scratch.candidates)
		scratch.candidates = closestN(s.Location, scratch.candidates, p.MaxCloseEntities)
	} else {
		scratch.candidates = f.grid.Query(box, scratch.candidates)
	}

	best, ok := bestTarget(s, scratch.candidates, f.env, p, scratch)
	if !ok {
		return finderResult{}
	}
	return finderResult{
		found: true,
		target: components.TargetEntity{
			Entity:            best.Entity,
			Caliber:           s.Caliber,
			VerticalAimOffset: p.VerticalAimOffset(s, best),
			EngagementRange:   s.Range,
			IsSoldier:         s.IsSoldier,
		},
	}
}

// closestN keeps the n items nearest to origin, nearest first.
func closestN(origin r3.Vec, items []TargetGridItem, n int) []TargetGridItem {
	if n <= 0 || len(items) <= n {
		return items
	}
	sort.SliceStable(items, func(i, j int) bool {
		return r3.Norm2(r3.Sub(items[i].Location, origin)) < r3.Norm2(r3.Sub(items[j].Location, origin))
	})
	return items[:n]
}
