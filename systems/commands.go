package systems

import (
	"github.com/mlange-42/ark/ecs"
)

// CommandKind selects what a deferred command does.
type CommandKind uint8

const (
	CmdAddTag CommandKind = iota
	CmdRemoveTag
	CmdDestroyEntity
	CmdSetFragment
	CmdSignal
)

// Signal names raised for the behavior layer.
type Signal uint8

const (
	SignalNewTaskRequired Signal = iota
	SignalTargetAcquired
	SignalTargetLost
	SignalSoundHeard
	SignalDeath
)

// Command is one recorded operation.
type Command struct {
	Kind   CommandKind
	Entity ecs.Entity
	Tag    Tag
	Signal Signal
	set    func()
}

// SignalEvent is a drained signal.
type SignalEvent struct {
	Entity ecs.Entity
	Signal Signal
}

// CommandBuffer records mutations during a parallel phase. Each worker owns
// one buffer; they are never shared between goroutines.
type CommandBuffer struct {
	cmds []Command
}

// AddTag defers attaching a tag.
func (b *CommandBuffer) AddTag(e ecs.Entity, t Tag) {
	b.cmds = append(b.cmds, Command{Kind: CmdAddTag, Entity: e, Tag: t})
}

// RemoveTag defers detaching a tag.
func (b *CommandBuffer) RemoveTag(e ecs.Entity, t Tag) {
	b.cmds = append(b.cmds, Command{Kind: CmdRemoveTag, Entity: e, Tag: t})
}

// Destroy defers entity destruction.
func (b *CommandBuffer) Destroy(e ecs.Entity) {
	b.cmds = append(b.cmds, Command{Kind: CmdDestroyEntity, Entity: e})
}

// Signal defers a signal to the behavior layer.
func (b *CommandBuffer) Signal(e ecs.Entity, s Signal) {
	b.cmds = append(b.cmds, Command{Kind: CmdSignal, Entity: e, Signal: s})
}

// SetFragment defers writing a fragment value on another entity.
func SetFragment[T any](b *CommandBuffer, m *ecs.Map[T], e ecs.Entity, v T) {
	b.cmds = append(b.cmds, Command{
		Kind:   CmdSetFragment,
		Entity: e,
		set: func() {
			if m.Has(e) {
				*m.Get(e) = v
			}
		},
	})
}

// Len returns the number of pending commands.
func (b *CommandBuffer) Len() int {
	return len(b.cmds)
}

// Reset drops pending commands.
func (b *CommandBuffer) Reset() {
	b.cmds = b.cmds[:0]
}

// DrainStats counts what a drain applied.
type DrainStats struct {
	Applied   int
	Skipped   int // commands targeting dead entities
	Destroyed int
}

// Commands owns the per-worker buffers and the signal log for a tick.
type Commands struct {
	buffers []CommandBuffer
	signals []SignalEvent
	doomed  map[ecs.Entity]struct{}
}

// NewCommands creates one buffer per worker.
func NewCommands(workers int) *Commands {
	if workers < 1 {
		workers = 1
	}
	return &Commands{
		buffers: make([]CommandBuffer, workers),
		doomed:  make(map[ecs.Entity]struct{}),
	}
}

// Buffer returns the buffer owned by a worker.
func (c *Commands) Buffer(worker int) *CommandBuffer {
	return &c.buffers[worker]
}

// Main returns the buffer used by single-threaded code.
func (c *Commands) Main() *CommandBuffer {
	return &c.buffers[0]
}

// Pending returns the total number of recorded commands.
func (c *Commands) Pending() int {
	n := 0
	for i := range c.buffers {
		n += c.buffers[i].Len()
	}
	return n
}

// Drain replays every buffer in worker order on the calling goroutine.
// Commands on dead entities are skipped; repeated destroys collapse to one.
func (c *Commands) Drain(s *Substrate) DrainStats {
	var stats DrainStats
	clear(c.doomed)
	for bi := range c.buffers {
		buf := &c.buffers[bi]
		for _, cmd := range buf.cmds {
			if _, dead := c.doomed[cmd.Entity]; dead || !s.IsValid(cmd.Entity) {
				stats.Skipped++
				continue
			}
			switch cmd.Kind {
			case CmdAddTag:
				s.AddTag(cmd.Entity, cmd.Tag)
			case CmdRemoveTag:
				s.RemoveTag(cmd.Entity, cmd.Tag)
			case CmdSetFragment:
				cmd.set()
			case CmdSignal:
				c.signals = append(c.signals, SignalEvent{Entity: cmd.Entity, Signal: cmd.Signal})
			case CmdDestroyEntity:
				c.doomed[cmd.Entity] = struct{}{}
				if s.destroy(cmd.Entity) {
					stats.Destroyed++
				}
			}
			stats.Applied++
		}
		buf.Reset()
	}
	return stats
}

// Signals returns the signals drained since the last TakeSignals call.
func (c *Commands) Signals() []SignalEvent {
	return c.signals
}

// TakeSignals returns and clears the drained signals.
func (c *Commands) TakeSignals() []SignalEvent {
	out := c.signals
	c.signals = nil
	return out
}
