package systems

import (
	"sort"
	"sync"

	"github.com/mlange-42/ark/ecs"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/squadsim/components"
	"github.com/pthm-cable/squadsim/config"
)

// SoundSource says who made a sound. Environmental sounds are heard by both
// teams.
type SoundSource uint8

const (
	SourceTeam1 SoundSource = iota
	SourceTeam2
	SourceEnvironment
)

// SourceForTeam maps a team flag to its sound source.
func SourceForTeam(isOnTeam1 bool) SoundSource {
	if isOnTeam1 {
		return SourceTeam1
	}
	return SourceTeam2
}

// SoundItem is one perceived sound.
type SoundItem struct {
	ID       uint32
	Location r3.Vec
	Source   SoundSource
}

type soundEntry struct {
	item SoundItem
	loc  components.CellLocation
	ttl  int
}

type soundTeam struct {
	grid    *HashGrid[uint32, SoundItem]
	entries []soundEntry
}

// SoundPerception keeps one grid of recent sounds per listening team.
// AddSoundPerception is safe from any goroutine; everything else runs on
// the main goroutine or reads during a parallel phase.
type SoundPerception struct {
	teams  [2]soundTeam // index 0 is heard by team 1
	ttl    int
	extent float64
	nextID uint32

	mu      sync.Mutex
	pending []SoundItem
}

// NewSoundPerception creates the per-team grids.
func NewSoundPerception(gridCfg config.GridConfig, c config.SoundConfig) *SoundPerception {
	sp := &SoundPerception{ttl: c.TTLTicks, extent: c.Extent}
	for i := range sp.teams {
		sp.teams[i].grid = NewHashGridFromConfig[uint32, SoundItem](gridCfg)
	}
	return sp
}

func listenerIndex(isOnTeam1 bool) int {
	if isOnTeam1 {
		return 0
	}
	return 1
}

// AddSoundPerception queues a sound for the teams that can hear it. Sounds
// become visible at the next Update.
func (sp *SoundPerception) AddSoundPerception(loc r3.Vec, source SoundSource) {
	sp.mu.Lock()
	sp.pending = append(sp.pending, SoundItem{Location: loc, Source: source})
	sp.mu.Unlock()
}

// Update ages and purges existing sounds, then inserts pending ones. It
// returns the number of sounds inserted.
func (sp *SoundPerception) Update() int {
	for i := range sp.teams {
		t := &sp.teams[i]
		n := 0
		for _, e := range t.entries {
			e.ttl--
			if e.ttl <= 0 {
				t.grid.Remove(e.item.ID, e.loc)
				continue
			}
			t.entries[n] = e
			n++
		}
		t.entries = t.entries[:n]
	}

	sp.mu.Lock()
	pending := sp.pending
	sp.pending = nil
	sp.mu.Unlock()

	for _, s := range pending {
		switch s.Source {
		case SourceTeam1:
			sp.insert(1, s)
		case SourceTeam2:
			sp.insert(0, s)
		default:
			sp.insert(0, s)
			sp.insert(1, s)
		}
	}
	return len(pending)
}

func (sp *SoundPerception) insert(team int, s SoundItem) {
	sp.nextID++
	s.ID = sp.nextID
	t := &sp.teams[team]
	loc := t.grid.Add(s.ID, s, boxAround(s.Location, sp.extent, sp.extent))
	t.entries = append(t.entries, soundEntry{item: s, loc: loc, ttl: sp.ttl})
}

// Len returns the number of live sounds a team can hear.
func (sp *SoundPerception) Len(listenerIsTeam1 bool) int {
	return len(sp.teams[listenerIndex(listenerIsTeam1)].entries)
}

// GetSoundsNearLocation appends the sounds a listener can hear within radius.
func (sp *SoundPerception) GetSoundsNearLocation(listenerIsTeam1 bool, loc r3.Vec, radius float64, dst []SoundItem) []SoundItem {
	grid := sp.teams[listenerIndex(listenerIsTeam1)].grid
	return grid.Query(boxAround(loc, radius, radius), dst)
}

// GetClosestSoundWithLineOfSight returns the nearest audible sound that the
// environment does not hide from the listener.
func (sp *SoundPerception) GetClosestSoundWithLineOfSight(listenerIsTeam1 bool, from r3.Vec, radius float64, env *Environment) (SoundItem, bool) {
	sounds := sp.GetSoundsNearLocation(listenerIsTeam1, from, radius, nil)
	sortByDistance(from, sounds)
	for _, s := range sounds {
		if hit, _ := env.LineTrace(from, s.Location); !hit {
			return s, true
		}
	}
	return SoundItem{}, false
}

// Visit walks every live sound a team can hear.
func (sp *SoundPerception) Visit(listenerIsTeam1 bool, fn func(SoundItem)) {
	for _, e := range sp.teams[listenerIndex(listenerIsTeam1)].entries {
		fn(e.item)
	}
}

func sortByDistance(from r3.Vec, sounds []SoundItem) {
	sort.SliceStable(sounds, func(i, j int) bool {
		return r3.Norm2(r3.Sub(sounds[i].Location, from)) < r3.Norm2(r3.Sub(sounds[j].Location, from))
	})
}

// maxSoundCandidates bounds the line traces queued per listener.
const maxSoundCandidates = 4

type listenerRow struct {
	entity   ecs.Entity
	mt       *components.MoveTarget
	location r3.Vec
	ear      r3.Vec
	team1    bool
	tracking bool
	facing   bool
	first    int // index into traces
	count    int
}

type soundTrace struct {
	from, to r3.Vec
	blocked  bool
}

// AudioPerception turns entities without a visual target toward the closest
// sound they can see the source of.
type AudioPerception struct {
	sounds    *SoundPerception
	env       *Environment
	params    FinderParams
	radius    float64
	tolerance float64

	filter *ecs.Filter3[components.Transform, components.TeamMember, components.MoveTarget]

	rows    []listenerRow
	traces  []soundTrace
	scratch []SoundItem
}

// NewAudioPerception creates the processor.
func NewAudioPerception(sub *Substrate, sounds *SoundPerception, env *Environment, p FinderParams, c *config.Config) *AudioPerception {
	return &AudioPerception{
		sounds:    sounds,
		env:       env,
		params:    p,
		radius:    c.Sound.QueryRadius,
		tolerance: c.TargetFinder.FacingToleranceRad,
		filter: ecs.NewFilter3[components.Transform, components.TeamMember, components.MoveTarget](sub.World).
			With(ecs.C[components.NeedsEnemyTarget]()),
	}
}

// Execute gathers candidate sounds per listener, resolves all line traces in
// one parallel sweep, then joins the results back sequentially.
func (ap *AudioPerception) Execute(ctx *TickContext) {
	ap.rows = ap.rows[:0]
	ap.traces = ap.traces[:0]

	query := ap.filter.Query()
	for query.Next() {
		e := query.Entity()
		t, team, mt := query.Get()
		isSoldier := ctx.Sub.HasTag(e, TagSoldier)
		ap.rows = append(ap.rows, listenerRow{
			entity:   e,
			mt:       mt,
			location: t.Location,
			ear:      r3.Add(t.Location, r3.Vec{Z: ap.params.ProjectileSpawnZOffset(isSoldier)}),
			team1:    team.IsOnTeam1,
			tracking: ctx.Sub.HasTag(e, TagTrackSound),
			facing:   IsFacing(*t, mt.Forward, ap.tolerance),
		})
	}

	buf := ctx.Cmds.Main()
	for i := range ap.rows {
		r := &ap.rows[i]
		if r.tracking {
			// The turn is finished by the forward-complete signal. A track
			// whose signal was taken over by a look-at is cleared here.
			if !ctx.Sub.HasTag(r.entity, TagNeedsForwardCompleteSignal) {
				buf.RemoveTag(r.entity, TagTrackSound)
			}
			continue
		}
		if !r.facing {
			continue
		}
		ap.scratch = ap.sounds.GetSoundsNearLocation(r.team1, r.location, ap.radius, ap.scratch[:0])
		if len(ap.scratch) == 0 {
			continue
		}
		sortByDistance(r.location, ap.scratch)
		r.first = len(ap.traces)
		for _, s := range ap.scratch[:min(len(ap.scratch), maxSoundCandidates)] {
			ap.traces = append(ap.traces, soundTrace{from: r.ear, to: s.Location})
		}
		r.count = len(ap.traces) - r.first
	}

	ctx.Runner.ParallelFor(len(ap.traces), func(_, start, end int) {
		for i := start; i < end; i++ {
			tr := &ap.traces[i]
			tr.blocked, _ = ap.env.LineTrace(tr.from, tr.to)
		}
	})

	for i := range ap.rows {
		r := &ap.rows[i]
		for j := r.first; j < r.first+r.count; j++ {
			tr := ap.traces[j]
			if tr.blocked {
				continue
			}
			ap.trackSound(ctx, buf, r, tr.to)
			break
		}
	}

	if ctx.Toggles.DebugSoundPerception {
		ctx.Log.Debug("sound perception",
			"team1_sounds", ap.sounds.Len(true),
			"team2_sounds", ap.sounds.Len(false),
			"listeners", len(ap.rows),
			"traces", len(ap.traces),
		)
	}
	ctx.Flush()
}

// trackSound stops the listener in place facing the sound. A move order in
// progress is stashed and restored by FinishTrackSound once the turn is done.
func (ap *AudioPerception) trackSound(ctx *TickContext, buf *CommandBuffer, r *listenerRow, to r3.Vec) {
	stashed := StashMoveTarget(ctx.Sub, buf, r.entity, ctx.Log)

	mt := r.mt
	mt.CreateNewAction(components.ActionStand, ctx.Sub.Now)
	mt.Center = r.location
	mt.DistanceToGoal = 0
	if stashed {
		mt.IntentAtGoal = components.ActionMove
	}
	FaceLocation(mt, r.location, to)

	buf.AddTag(r.entity, TagTrackSound)
	buf.AddTag(r.entity, TagNeedsForwardCompleteSignal)
	buf.Signal(r.entity, SignalSoundHeard)
	ctx.Stats.SoundsTracked++
}

// SoundUpdater ages the sound grids once per tick.
type SoundUpdater struct {
	Sounds *SoundPerception
}

// Execute runs the TTL countdown and flushes queued sounds into the grids.
func (su SoundUpdater) Execute(ctx *TickContext) {
	ctx.Stats.SoundsEmitted += su.Sounds.Update()
}
