package game

import (
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/squadsim/systems"
)

// CrowdSample measures spacing and progress of the AI agents at one tick.
type CrowdSample struct {
	Agents      int
	Penetration float64 // summed radius overlap over all agent pairs, flat distance
	Progress    float64 // mean fraction of the field depth crossed toward the enemy side
}

// SampleCrowd scans every AI combatant pair. It is meant for tuning runs
// with small crowds, not for the per-tick hot path.
func (g *Game) SampleCrowd() CrowdSample {
	type agent struct {
		loc r3.Vec
		r   float64
	}
	var agents []agent
	var progress float64
	depth := g.cfg.Scenario.FieldDepth

	query := g.combatants.Query()
	for query.Next() {
		e := query.Entity()
		if g.sub.HasTag(e, systems.TagPlayerControlled) {
			continue
		}
		t, team, _ := query.Get()
		var r float64
		if g.sub.Radii.Has(e) {
			r = g.sub.Radii.Get(e).Radius
		}
		flat := r3.Vec{X: t.Location.X, Y: t.Location.Y}
		agents = append(agents, agent{loc: flat, r: r})

		if depth > 0 {
			p := t.Location.Y / depth
			if !team.IsOnTeam1 {
				p = 1 - p
			}
			progress += min(max(p, 0), 1)
		}
	}

	s := CrowdSample{Agents: len(agents)}
	if len(agents) == 0 {
		return s
	}
	s.Progress = progress / float64(len(agents))

	for i := range agents {
		for j := i + 1; j < len(agents); j++ {
			gap := agents[i].r + agents[j].r - r3.Norm(r3.Sub(agents[i].loc, agents[j].loc))
			if gap > 0 {
				s.Penetration += gap
			}
		}
	}
	return s
}
