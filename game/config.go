package game

import (
	"log/slog"

	"github.com/pthm-cable/squadsim/config"
)

// Options holds per-run settings that are not part of the simulation config.
type Options struct {
	Config    *config.Config // nil = embedded defaults
	Seed      int64
	MaxTicks  int64  // 0 = unlimited
	OutputDir string // empty = no CSV output
	LogStats  bool
	Logger    *slog.Logger // nil = slog.Default()

	// OnSnapshot receives debug snapshots every Debug.SnapshotEveryTicks.
	OnSnapshot func(data []byte)
}

func (o Options) config() *config.Config {
	if o.Config != nil {
		return o.Config
	}
	return config.Default()
}

func (o Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}
