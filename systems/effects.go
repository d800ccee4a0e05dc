package systems

import (
	"errors"
	"fmt"
	"sync"

	"github.com/mlange-42/ark/ecs"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/squadsim/components"
	"github.com/pthm-cable/squadsim/config"
)

// ErrUnknownEffect is returned for effect ids outside the configured table.
var ErrUnknownEffect = errors.New("unknown effect")

type effectRequest struct {
	id  int16
	loc r3.Vec
}

// EffectQueue collects visual effect spawns from any goroutine. Entities are
// created later by Drain on the main goroutine, never inside a parallel phase.
type EffectQueue struct {
	effects []config.EffectConfig

	mu      sync.Mutex
	pending []effectRequest
}

// NewEffectQueue creates a queue for the configured effect table.
func NewEffectQueue(effects []config.EffectConfig) *EffectQueue {
	return &EffectQueue{effects: effects}
}

// Spawn requests an effect. Fire and forget.
func (q *EffectQueue) Spawn(id int16, loc r3.Vec) {
	q.mu.Lock()
	q.pending = append(q.pending, effectRequest{id: id, loc: loc})
	q.mu.Unlock()
}

// Lookup returns the config of an effect id.
func (q *EffectQueue) Lookup(id int16) (config.EffectConfig, error) {
	if id < 0 || int(id) >= len(q.effects) {
		return config.EffectConfig{}, fmt.Errorf("%w: %d", ErrUnknownEffect, id)
	}
	return q.effects[id], nil
}

// Pending returns the number of queued spawns.
func (q *EffectQueue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Drain creates effect entities for every queued request. Unknown ids are
// logged and skipped.
func (q *EffectQueue) Drain(ctx *TickContext) int {
	q.mu.Lock()
	pending := q.pending
	q.pending = nil
	q.mu.Unlock()

	spawned := 0
	for _, r := range pending {
		cfg, err := q.Lookup(r.id)
		if err != nil {
			ctx.Log.Warn("effect spawn skipped", "error", err, "x", r.loc.X, "y", r.loc.Y)
			continue
		}
		e := ctx.Sub.Spawn(components.Transform{Location: r.loc})
		ctx.Sub.Effects.Add(e, &components.Effect{ID: r.id})
		ctx.Sub.Delayed.Add(e, &components.DelayedDestruction{SecondsLeft: cfg.LifetimeSeconds})
		spawned++
	}
	return spawned
}

// DelayedDestroyer counts down DelayedDestruction and destroys at zero.
type DelayedDestroyer struct {
	filter *ecs.Filter1[components.DelayedDestruction]
}

// NewDelayedDestroyer creates the processor.
func NewDelayedDestroyer(sub *Substrate) *DelayedDestroyer {
	return &DelayedDestroyer{filter: ecs.NewFilter1[components.DelayedDestruction](sub.World)}
}

// Execute advances every countdown by one tick.
func (d *DelayedDestroyer) Execute(ctx *TickContext) {
	buf := ctx.Cmds.Main()
	query := d.filter.Query()
	for query.Next() {
		dd := query.Get()
		dd.SecondsLeft -= ctx.DT
		if dd.SecondsLeft <= 0 {
			buf.Destroy(query.Entity())
		}
	}
	ctx.Flush()
}
