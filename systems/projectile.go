package systems

import (
	"github.com/mlange-42/ark/ecs"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/squadsim/components"
)

// ProjectileSpawn is a queued projectile creation.
type ProjectileSpawn struct {
	Location r3.Vec
	Velocity r3.Vec
	Damage   components.ProjectileDamage
}

// FireProjectile launches a shot from shooter along its facing if the weapon
// is off cooldown. The projectile itself is created later on the main
// goroutine; the muzzle sound is queued immediately.
func FireProjectile(sub *Substrate, shooter ecs.Entity, p FinderParams, sounds *SoundPerception, out []ProjectileSpawn) ([]ProjectileSpawn, bool) {
	if !sub.Weapons.Has(shooter) || !sub.Transforms.Has(shooter) || !sub.Teams.Has(shooter) {
		return out, false
	}
	w := sub.Weapons.Get(shooter)
	if w.LastFireTime > 0 && sub.Now-w.LastFireTime < w.CooldownSeconds {
		return out, false
	}
	t := sub.Transforms.Get(shooter)
	isSoldier := sub.HasTag(shooter, TagSoldier)
	aim := 0.0
	if sub.Targets.Has(shooter) {
		aim = sub.Targets.Get(shooter).VerticalAimOffset
	}

	forward := t.Forward()
	spawn := r3.Add(t.Location, r3.Scale(w.MuzzleDistance, forward))
	spawn.Z += p.ProjectileSpawnZOffset(isSoldier)
	velocity := r3.Add(r3.Scale(w.ProjectileSpeed, forward), r3.Scale(aim, components.Up))

	dmg := w.Projectile
	dmg.FromTeam1 = sub.Teams.Get(shooter).IsOnTeam1
	w.LastFireTime = sub.Now

	if sounds != nil {
		sounds.AddSoundPerception(spawn, SourceForTeam(dmg.FromTeam1))
	}
	return append(out, ProjectileSpawn{Location: spawn, Velocity: velocity, Damage: dmg}), true
}

// SpawnProjectile creates a projectile entity. Main goroutine only.
func SpawnProjectile(sub *Substrate, s ProjectileSpawn) ecs.Entity {
	e := sub.Spawn(components.Transform{
		Location: s.Location,
		Yaw:      components.YawFromDirection(s.Velocity),
	})
	sub.Velocities.Add(e, &components.Velocity{Value: s.Velocity})
	sub.PrevLocs.Add(e, &components.PreviousLocation{Location: s.Location})
	dmg := s.Damage
	sub.Projectiles.Add(e, &dmg)
	sub.AddTag(e, TagProjectileWithDamage)
	return e
}

// WeaponFire makes entities facing a live target shoot at it.
type WeaponFire struct {
	params    FinderParams
	sounds    *SoundPerception
	tolerance float64

	filter *ecs.Filter3[components.Transform, components.TargetEntity, components.Weapon]
	spawns []ProjectileSpawn
	ready  []ecs.Entity
}

// NewWeaponFire creates the processor.
func NewWeaponFire(sub *Substrate, p FinderParams, sounds *SoundPerception, tolerance float64) *WeaponFire {
	return &WeaponFire{
		params:    p,
		sounds:    sounds,
		tolerance: tolerance,
		filter: ecs.NewFilter3[components.Transform, components.TargetEntity, components.Weapon](sub.World).
			With(ecs.C[components.TrackTarget]()),
	}
}

// Execute fires every ready weapon and spawns the projectiles.
func (wf *WeaponFire) Execute(ctx *TickContext) {
	wf.ready = wf.ready[:0]
	query := wf.filter.Query()
	for query.Next() {
		t, target, _ := query.Get()
		if !ctx.Sub.IsValid(target.Entity) || !ctx.Sub.Transforms.Has(target.Entity) {
			continue
		}
		dir := r3.Sub(ctx.Sub.Transforms.Get(target.Entity).Location, t.Location)
		if IsFacing(*t, dir, wf.tolerance) {
			wf.ready = append(wf.ready, query.Entity())
		}
	}

	wf.spawns = wf.spawns[:0]
	for _, e := range wf.ready {
		var fired bool
		wf.spawns, fired = FireProjectile(ctx.Sub, e, wf.params, wf.sounds, wf.spawns)
		if fired {
			ctx.Stats.ShotsFired++
		}
	}
	for _, s := range wf.spawns {
		SpawnProjectile(ctx.Sub, s)
	}
}

// ProjectileIntegrator applies gravity and advances projectiles, keeping the
// previous location for the damage sweep.
type ProjectileIntegrator struct {
	filter  *ecs.Filter3[components.Transform, components.Velocity, components.PreviousLocation]
	gravity float64
	minZ    float64
}

// NewProjectileIntegrator creates the processor.
func NewProjectileIntegrator(sub *Substrate, gravity, minZ float64) *ProjectileIntegrator {
	return &ProjectileIntegrator{
		filter: ecs.NewFilter3[components.Transform, components.Velocity, components.PreviousLocation](sub.World).
			With(ecs.C[components.ProjectileWithDamage]()),
		gravity: gravity,
		minZ:    minZ,
	}
}

// Execute moves every projectile one tick and removes those below MinZ.
func (pi *ProjectileIntegrator) Execute(ctx *TickContext) {
	buf := ctx.Cmds.Main()
	dt := ctx.DT
	query := pi.filter.Query()
	for query.Next() {
		t, v, prev := query.Get()
		prev.Location = t.Location
		v.Value.Z -= pi.gravity * dt
		t.Location = r3.Add(t.Location, r3.Scale(dt, v.Value))
		if t.Location.Z <= pi.minZ {
			buf.Destroy(query.Entity())
		}
	}
	ctx.Flush()
}
