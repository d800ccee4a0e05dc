package systems

import (
	"log/slog"

	"github.com/pthm-cable/squadsim/config"
)

// Runner executes index ranges across workers. Implementations must call fn
// with disjoint [start,end) ranges and return only after all calls finish.
type Runner interface {
	Workers() int
	ParallelFor(n int, fn func(worker, start, end int))
}

// SerialRunner runs everything on the calling goroutine.
type SerialRunner struct{}

// Workers returns 1.
func (SerialRunner) Workers() int { return 1 }

// ParallelFor calls fn once with the full range.
func (SerialRunner) ParallelFor(n int, fn func(worker, start, end int)) {
	if n > 0 {
		fn(0, 0, n)
	}
}

// TickContext is handed to every processor invocation.
type TickContext struct {
	Sub     *Substrate
	Cfg     *config.Config
	Toggles config.Toggles // snapshot taken at tick start
	Runner  Runner
	Cmds    *Commands
	Stats   *TickStats
	Log     *slog.Logger
	Tick    int64
	DT      float64
}

// Flush drains deferred commands on the main goroutine.
func (ctx *TickContext) Flush() DrainStats {
	ds := ctx.Cmds.Drain(ctx.Sub)
	if ctx.Stats != nil {
		ctx.Stats.Commands += ds.Applied
	}
	return ds
}

// TickStats counts combat events during one tick. Processors only touch it
// from single-threaded phases.
type TickStats struct {
	TargetsAcquired int
	TargetsLost     int
	SoundsEmitted   int
	SoundsTracked   int
	ShotsFired      int
	Hits            int
	Kills           int
	PlayerDeaths    int
	Commands        int
}

// Reset zeroes the counters.
func (s *TickStats) Reset() {
	*s = TickStats{}
}
