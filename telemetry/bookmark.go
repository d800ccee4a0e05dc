package telemetry

import (
	"fmt"
	"log/slog"
)

// BookmarkType identifies the type of bookmark.
type BookmarkType string

const (
	BookmarkFirstBlood BookmarkType = "first_blood"
	BookmarkKillSpike  BookmarkType = "kill_spike"
	BookmarkCollapse   BookmarkType = "collapse"
	BookmarkTeamWiped  BookmarkType = "team_wiped"
	BookmarkStalemate  BookmarkType = "stalemate"
)

// stalemateWindows is how many quiet windows in a row make a stalemate.
const stalemateWindows = 5

// Bookmark represents an automatically triggered bookmark.
type Bookmark struct {
	RunID       string       `csv:"run_id"`
	Type        BookmarkType `csv:"type"`
	Tick        int64        `csv:"tick"`
	Description string       `csv:"description"`
}

// LogBookmark logs the bookmark.
func (b Bookmark) LogBookmark(log *slog.Logger) {
	log.Info("bookmark",
		"type", string(b.Type),
		"tick", b.Tick,
		"description", b.Description,
	)
}

// BookmarkDetector detects interesting moments in a battle.
type BookmarkDetector struct {
	// Rolling history (circular buffer)
	history     []CombatStats
	historySize int
	historyIdx  int
	historyFull bool

	firstBloodSeen bool
	team1Peak      int
	team2Peak      int
	quietWindows   int
}

// NewBookmarkDetector creates a detector with the given history size.
func NewBookmarkDetector(historySize int) *BookmarkDetector {
	if historySize < 3 {
		historySize = 3
	}
	return &BookmarkDetector{
		history:     make([]CombatStats, historySize),
		historySize: historySize,
	}
}

// Check analyzes the latest stats and returns any triggered bookmarks.
func (bd *BookmarkDetector) Check(stats CombatStats) []Bookmark {
	var bookmarks []Bookmark
	add := func(b *Bookmark) {
		if b != nil {
			b.RunID = stats.RunID
			bookmarks = append(bookmarks, *b)
		}
	}

	add(bd.checkFirstBlood(stats))
	if bd.historyFull || bd.historyIdx > 0 {
		add(bd.checkKillSpike(stats))
		add(bd.checkWiped(stats))
	}
	add(bd.checkCollapse(stats, "team1", stats.Team1Alive, &bd.team1Peak))
	add(bd.checkCollapse(stats, "team2", stats.Team2Alive, &bd.team2Peak))
	add(bd.checkStalemate(stats))

	bd.addToHistory(stats)
	return bookmarks
}

func (bd *BookmarkDetector) addToHistory(stats CombatStats) {
	bd.history[bd.historyIdx] = stats
	bd.historyIdx = (bd.historyIdx + 1) % bd.historySize
	if bd.historyIdx == 0 {
		bd.historyFull = true
	}
}

func (bd *BookmarkDetector) getHistory() []CombatStats {
	if bd.historyFull {
		return bd.history
	}
	return bd.history[:bd.historyIdx]
}

func (bd *BookmarkDetector) previous() CombatStats {
	idx := (bd.historyIdx - 1 + bd.historySize) % bd.historySize
	return bd.history[idx]
}

func (bd *BookmarkDetector) checkFirstBlood(stats CombatStats) *Bookmark {
	if bd.firstBloodSeen || stats.Kills == 0 {
		return nil
	}
	bd.firstBloodSeen = true
	return &Bookmark{
		Type:        BookmarkFirstBlood,
		Tick:        stats.WindowEndTick,
		Description: fmt.Sprintf("%d kills in the first lethal window", stats.Kills),
	}
}

func (bd *BookmarkDetector) checkKillSpike(stats CombatStats) *Bookmark {
	history := bd.getHistory()
	if len(history) < 3 {
		return nil
	}
	var total int
	for _, h := range history {
		total += h.Kills
	}
	avg := float64(total) / float64(len(history))
	if avg == 0 {
		return nil
	}
	if float64(stats.Kills) > avg*2.0 && stats.Kills >= 3 {
		return &Bookmark{
			Type:        BookmarkKillSpike,
			Tick:        stats.WindowEndTick,
			Description: fmt.Sprintf("%d kills is %.1fx the rolling average (%.1f)", stats.Kills, float64(stats.Kills)/avg, avg),
		}
	}
	return nil
}

func (bd *BookmarkDetector) checkWiped(stats CombatStats) *Bookmark {
	prev := bd.previous()
	switch {
	case prev.Team1Alive > 0 && stats.Team1Alive == 0:
		return &Bookmark{Type: BookmarkTeamWiped, Tick: stats.WindowEndTick, Description: "team1 has no units left"}
	case prev.Team2Alive > 0 && stats.Team2Alive == 0:
		return &Bookmark{Type: BookmarkTeamWiped, Tick: stats.WindowEndTick, Description: "team2 has no units left"}
	}
	return nil
}

func (bd *BookmarkDetector) checkCollapse(stats CombatStats, team string, alive int, peak *int) *Bookmark {
	if alive > *peak {
		*peak = alive
		return nil
	}
	if *peak == 0 || alive == 0 {
		return nil
	}
	drop := 1.0 - float64(alive)/float64(*peak)
	if drop > 0.30 && alive < *peak-5 {
		old := *peak
		*peak = alive
		return &Bookmark{
			Type:        BookmarkCollapse,
			Tick:        stats.WindowEndTick,
			Description: fmt.Sprintf("%s dropped %.0f%% from %d to %d", team, drop*100, old, alive),
		}
	}
	return nil
}

func (bd *BookmarkDetector) checkStalemate(stats CombatStats) *Bookmark {
	if stats.Team1Alive == 0 || stats.Team2Alive == 0 || stats.ShotsFired > 0 {
		bd.quietWindows = 0
		return nil
	}
	bd.quietWindows++
	if bd.quietWindows == stalemateWindows {
		return &Bookmark{
			Type:        BookmarkStalemate,
			Tick:        stats.WindowEndTick,
			Description: fmt.Sprintf("no shots fired for %d windows with %d vs %d alive", stalemateWindows, stats.Team1Alive, stats.Team2Alive),
		}
	}
	return nil
}
