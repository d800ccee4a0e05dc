package systems

import (
	"cmp"
	"math"
	"slices"

	"github.com/mlange-42/ark/ecs"
	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/squadsim/components"
	"github.com/pthm-cable/squadsim/config"
)

// SplashDamage scales base damage linearly from full at the impact point to
// zero at the splash radius.
func SplashDamage(base int16, radius, dist float64) float64 {
	if radius <= 0 || dist >= radius {
		return 0
	}
	return float64(base) * max((radius-dist)/radius, 0)
}

type damageRequest struct {
	target ecs.Entity
	amount int16
}

type projectileRow struct {
	entity ecs.Entity
	prev   r3.Vec
	cur    r3.Vec
	dmg    components.ProjectileDamage
}

type splashCandidate struct {
	entity  ecs.Entity
	closest r3.Vec
	dist    float64
}

type impactResult struct {
	impact   bool
	point    r3.Vec
	hit      ecs.Entity
	hitTeam1 bool
	worker   int
	first    int
	count    int
}

// DeathHandler receives player-controlled entities whose health ran out.
type DeathHandler func(e ecs.Entity)

// ProjectileDamageProcessor sweeps projectiles against the environment and
// the target grid, then deals direct and splash damage.
type ProjectileDamageProcessor struct {
	grid    *TargetGrid
	env     *Environment
	sounds  *SoundPerception
	effects *EffectQueue

	maxCandidates   int
	emitImpactSound bool

	// OnPlayerDeath is called after the drain for players that died.
	OnPlayerDeath DeathHandler

	filter *ecs.Filter3[components.Transform, components.PreviousLocation, components.ProjectileDamage]

	rows       []projectileRow
	results    []impactResult
	requests   [][]damageRequest
	candidates [][]TargetGridItem
	near       [][]splashCandidate
	queued     map[ecs.Entity]struct{}
	players    []ecs.Entity
}

// NewProjectileDamageProcessor creates the processor.
func NewProjectileDamageProcessor(sub *Substrate, grid *TargetGrid, env *Environment, sounds *SoundPerception, effects *EffectQueue, c *config.Config) *ProjectileDamageProcessor {
	return &ProjectileDamageProcessor{
		grid:            grid,
		env:             env,
		sounds:          sounds,
		effects:         effects,
		maxCandidates:   c.Projectile.MaxCandidates,
		emitImpactSound: c.Damage.EmitImpactSound,
		filter: ecs.NewFilter3[components.Transform, components.PreviousLocation, components.ProjectileDamage](sub.World).
			With(ecs.C[components.ProjectileWithDamage]()),
		queued: make(map[ecs.Entity]struct{}),
	}
}

// Execute resolves every projectile. Impacts and damage amounts are computed
// in parallel; destruction, sounds, effects and health changes are applied
// afterwards on the main goroutine.
func (p *ProjectileDamageProcessor) Execute(ctx *TickContext) {
	p.rows = p.rows[:0]
	query := p.filter.Query()
	for query.Next() {
		t, prev, dmg := query.Get()
		p.rows = append(p.rows, projectileRow{entity: query.Entity(), prev: prev.Location, cur: t.Location, dmg: *dmg})
	}
	n := len(p.rows)
	if n == 0 {
		return
	}
	if cap(p.results) < n {
		p.results = make([]impactResult, n)
	}
	p.results = p.results[:n]
	workers := ctx.Runner.Workers()
	if len(p.requests) < workers {
		p.requests = make([][]damageRequest, workers)
		p.candidates = make([][]TargetGridItem, workers)
		p.near = make([][]splashCandidate, workers)
	}
	for i := range p.requests {
		p.requests[i] = p.requests[i][:0]
	}

	ctx.Runner.ParallelFor(n, func(worker, start, end int) {
		for i := start; i < end; i++ {
			p.results[i] = p.resolve(ctx, &p.rows[i], worker)
		}
	})

	p.apply(ctx)
}

func (p *ProjectileDamageProcessor) resolve(ctx *TickContext, row *projectileRow, worker int) impactResult {
	res := impactResult{worker: worker}

	end := row.cur
	envHit, hitPoint := p.env.LineTrace(row.prev, row.cur)
	if envHit {
		end = hitPoint
	}

	// Every entity the sweep touches is a hit candidate; the earliest contact
	// along the path wins.
	swept := Capsule{A: row.prev, B: end, R: row.dmg.Radius}
	cands := p.grid.Query(sweptBox(row.prev, end, row.dmg.Radius), p.candidates[worker][:0])
	p.candidates[worker] = cands
	bestS := math.Inf(1)
	for _, c := range cands {
		if !ctx.Sub.IsValid(c.Entity) || !TestCapsuleCapsule(swept, c.Capsule) {
			continue
		}
		s, _, c1, _, _ := ClosestPointSegmentSegment(swept.A, swept.B, c.Capsule.A, c.Capsule.B)
		if s >= bestS {
			continue
		}
		bestS = s
		res.impact = true
		res.point = c1
		res.hit = c.Entity
		res.hitTeam1 = c.IsOnTeam1
	}
	if !res.impact && envHit {
		res.impact = true
		res.point = hitPoint
	}
	if !res.impact {
		return res
	}

	res.first = len(p.requests[worker])
	base := row.dmg.DamagePerHit
	if !res.hit.IsZero() {
		if item, ok := TargetItem(ctx.Sub, res.hit); ok && CanDamage(row.dmg.Caliber, item.MinCaliberForDamage) {
			p.requests[worker] = append(p.requests[worker], damageRequest{target: res.hit, amount: base})
		}
	}
	if row.dmg.SplashRadius > 0 {
		p.splash(ctx, row, &res, worker)
	}
	res.count = len(p.requests[worker]) - res.first
	return res
}

// splash queues damage for entities around the impact point, nearest first,
// up to maxCandidates of them besides the direct hit.
func (p *ProjectileDamageProcessor) splash(ctx *TickContext, row *projectileRow, res *impactResult, worker int) {
	radius := row.dmg.SplashRadius
	cands := p.grid.Query(boxAround(res.point, radius, radius), p.candidates[worker][:0])
	p.candidates[worker] = cands

	near := p.near[worker][:0]
	for _, c := range cands {
		if c.Entity == res.hit || !ctx.Sub.IsValid(c.Entity) || !CanDamage(row.dmg.Caliber, c.MinCaliberForDamage) {
			continue
		}
		closest := ClosestPointOnSegment(res.point, c.Capsule.A, c.Capsule.B)
		dist := r3.Norm(r3.Sub(closest, res.point))
		if dist >= radius {
			continue
		}
		near = append(near, splashCandidate{entity: c.Entity, closest: closest, dist: dist})
	}
	slices.SortStableFunc(near, func(a, b splashCandidate) int { return cmp.Compare(a.dist, b.dist) })
	p.near[worker] = near

	kept := 0
	for _, c := range near {
		if kept >= p.maxCandidates {
			break
		}
		amount := SplashDamage(row.dmg.DamagePerHit, radius, c.dist)
		if amount <= 0 {
			continue
		}
		if blocked, _ := p.env.LineTrace(res.point, c.closest); blocked {
			continue
		}
		rounded := int16(math.Round(amount))
		if rounded <= 0 {
			continue
		}
		p.requests[worker] = append(p.requests[worker], damageRequest{target: c.entity, amount: rounded})
		kept++
	}
}

func sweptBox(a, b r3.Vec, r float64) r2.Box {
	return r2.Box{
		Min: r2.Vec{X: min(a.X, b.X) - r, Y: min(a.Y, b.Y) - r},
		Max: r2.Vec{X: max(a.X, b.X) + r, Y: max(a.Y, b.Y) + r},
	}
}

func (p *ProjectileDamageProcessor) apply(ctx *TickContext) {
	buf := ctx.Cmds.Main()
	clear(p.queued)
	p.players = p.players[:0]

	for i := range p.results {
		res := &p.results[i]
		if !res.impact {
			continue
		}
		row := &p.rows[i]
		buf.Destroy(row.entity)

		if p.emitImpactSound && p.sounds != nil {
			source := SourceEnvironment
			if !res.hit.IsZero() {
				source = SourceForTeam(res.hitTeam1)
			}
			p.sounds.AddSoundPerception(res.point, source)
		}
		if row.dmg.ExplosionEffect != components.NoEffect && p.effects != nil {
			p.effects.Spawn(row.dmg.ExplosionEffect, res.point)
		}
		if !res.hit.IsZero() {
			ctx.Stats.Hits++
		}
		if ctx.Toggles.SkipDealingDamage {
			continue
		}
		for _, req := range p.requests[res.worker][res.first : res.first+res.count] {
			p.applyDamage(ctx, buf, req)
		}
	}

	ctx.Flush()

	for _, e := range p.players {
		ctx.Stats.PlayerDeaths++
		if p.OnPlayerDeath != nil {
			p.OnPlayerDeath(e)
		}
	}
}

// applyDamage subtracts health and queues death exactly once per entity.
func (p *ProjectileDamageProcessor) applyDamage(ctx *TickContext, buf *CommandBuffer, req damageRequest) {
	if !ctx.Sub.IsValid(req.target) || !ctx.Sub.Healths.Has(req.target) {
		return
	}
	h := ctx.Sub.Healths.Get(req.target)
	old := h.Value
	h.Value = int16(max(int32(old)-int32(req.amount), math.MinInt16))
	if old <= 0 || h.Value > 0 {
		return
	}
	if _, done := p.queued[req.target]; done {
		return
	}
	p.queued[req.target] = struct{}{}

	if ctx.Sub.HasTag(req.target, TagPlayerControlled) {
		p.players = append(p.players, req.target)
		return
	}
	buf.Signal(req.target, SignalDeath)
	buf.Destroy(req.target)
	ctx.Stats.Kills++
}
