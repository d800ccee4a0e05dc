package game

import (
	"fmt"

	"github.com/pthm-cable/squadsim/config"
)

// QueueToggle sets a toggle by name. It takes effect at the start of the
// next tick and is safe to call from any goroutine.
func (g *Game) QueueToggle(name string, value bool) error {
	g.togglesMu.Lock()
	defer g.togglesMu.Unlock()

	t := g.pendingToggles
	if err := t.Set(name, value); err != nil {
		return err
	}
	g.pendingToggles = t
	g.log.Info("toggle queued", "name", name, "value", value)
	return nil
}

// ReloadToggles replaces every toggle with the toggles section of a YAML
// file. Safe to call from any goroutine.
func (g *Game) ReloadToggles(path string) error {
	t, err := config.LoadToggles(path)
	if err != nil {
		return fmt.Errorf("reloading toggles: %w", err)
	}
	g.togglesMu.Lock()
	g.pendingToggles = t
	g.togglesMu.Unlock()
	g.log.Info("toggles reloaded", "path", path)
	return nil
}

// Toggles returns the toggles the next tick will see.
func (g *Game) Toggles() config.Toggles {
	g.togglesMu.Lock()
	defer g.togglesMu.Unlock()
	return g.pendingToggles
}

// takeToggles snapshots the toggles for one tick. InvalidateAllTargets is a
// one-shot request and is cleared once taken.
func (g *Game) takeToggles() config.Toggles {
	g.togglesMu.Lock()
	defer g.togglesMu.Unlock()
	t := g.pendingToggles
	g.pendingToggles.InvalidateAllTargets = false
	return t
}
