package systems

import (
	"slices"

	"github.com/mlange-42/ark/ecs"
)

// Unit is one squad: a commander and its members.
type Unit struct {
	ID        int32
	IsOnTeam1 bool
	Commander ecs.Entity
	Members   []ecs.Entity
}

// DeathNotice reports a soldier removed from its unit.
type DeathNotice struct {
	Entity       ecs.Entity
	UnitID       int32
	IsOnTeam1    bool
	WasCommander bool
	Promoted     ecs.Entity // new commander, zero when none
}

// UnitRegistry is the squad roster. Entities leave it only through the
// substrate's destroy hook.
type UnitRegistry struct {
	sub    *Substrate
	units  map[int32]*Unit
	nextID int32
	deaths []DeathNotice
}

// NewUnitRegistry creates the roster and hooks entity destruction.
func NewUnitRegistry(sub *Substrate) *UnitRegistry {
	r := &UnitRegistry{sub: sub, units: make(map[int32]*Unit)}
	sub.OnDestroy(r.onDestroy)
	return r
}

// NewUnit allocates an empty unit.
func (r *UnitRegistry) NewUnit(isOnTeam1 bool) *Unit {
	r.nextID++
	u := &Unit{ID: r.nextID, IsOnTeam1: isOnTeam1}
	r.units[u.ID] = u
	return u
}

// Join adds an entity to a unit. The first member becomes commander.
func (r *UnitRegistry) Join(u *Unit, e ecs.Entity) {
	u.Members = append(u.Members, e)
	commander := u.Commander.IsZero()
	if commander {
		u.Commander = e
	}
	if r.sub.UnitMembers.Has(e) {
		m := r.sub.UnitMembers.Get(e)
		m.UnitID = u.ID
		m.IsCommander = commander
	}
}

// Unit looks up a unit by id.
func (r *UnitRegistry) Unit(id int32) (*Unit, bool) {
	u, ok := r.units[id]
	return u, ok
}

// Len returns the number of units that still have members.
func (r *UnitRegistry) Len() int {
	return len(r.units)
}

// TakeDeaths returns and clears the death notices.
func (r *UnitRegistry) TakeDeaths() []DeathNotice {
	out := r.deaths
	r.deaths = nil
	return out
}

func (r *UnitRegistry) onDestroy(e ecs.Entity) {
	if !r.sub.UnitMembers.Has(e) {
		return
	}
	m := r.sub.UnitMembers.Get(e)
	u, ok := r.units[m.UnitID]
	if !ok {
		return
	}
	u.Members = slices.DeleteFunc(u.Members, func(x ecs.Entity) bool { return x == e })

	notice := DeathNotice{Entity: e, UnitID: u.ID, IsOnTeam1: u.IsOnTeam1, WasCommander: u.Commander == e}
	if notice.WasCommander {
		u.Commander = ecs.Entity{}
		for _, next := range u.Members {
			if r.sub.IsValid(next) {
				u.Commander = next
				if r.sub.UnitMembers.Has(next) {
					r.sub.UnitMembers.Get(next).IsCommander = true
				}
				break
			}
		}
		notice.Promoted = u.Commander
	}
	if len(u.Members) == 0 {
		delete(r.units, u.ID)
	}
	r.deaths = append(r.deaths, notice)
}
