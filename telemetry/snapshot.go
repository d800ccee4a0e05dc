package telemetry

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
)

// SnapshotVersion is incremented when the format changes.
const SnapshotVersion = 1

// Snapshot is the observable battle state at one tick. It is written to disk
// on bookmarks and streamed to debug view clients.
type Snapshot struct {
	Version int     `msgpack:"version"`
	RunID   string  `msgpack:"run_id"`
	Seed    int64   `msgpack:"seed"`
	Tick    int64   `msgpack:"tick"`
	SimTime float64 `msgpack:"sim_time"`

	Entities    []EntityState     `msgpack:"entities"`
	Projectiles []ProjectileState `msgpack:"projectiles"`
	Sounds      []SoundState      `msgpack:"sounds"`
	Capsules    []CapsuleState    `msgpack:"capsules,omitempty"`
	Walls       []WallState       `msgpack:"walls,omitempty"`

	Bookmark *Bookmark `msgpack:"bookmark,omitempty"`
}

// EntityState is one combatant.
type EntityState struct {
	ID      uint32  `msgpack:"id"`
	X       float64 `msgpack:"x"`
	Y       float64 `msgpack:"y"`
	Z       float64 `msgpack:"z"`
	Yaw     float64 `msgpack:"yaw"`
	Team1   bool    `msgpack:"team1"`
	Soldier bool    `msgpack:"soldier"`
	Player  bool    `msgpack:"player"`
	Health  int16   `msgpack:"health"`
	Target  uint32  `msgpack:"target"` // 0 = none
	Action  string  `msgpack:"action"`
	UnitID  int32   `msgpack:"unit_id"`
}

// ProjectileState is one projectile in flight.
type ProjectileState struct {
	X, Y, Z float64
	Team1   bool
}

// SoundState is one live sound as heard by a team.
type SoundState struct {
	X, Y, Z         float64
	HeardByTeam1    bool `msgpack:"heard_by_team1"`
	FromEnvironment bool `msgpack:"from_environment"`
}

// CapsuleState is a world-space capsule for debug drawing.
type CapsuleState struct {
	AX, AY, AZ float64
	BX, BY, BZ float64
	Radius     float64
}

// WallState is a static wall box.
type WallState struct {
	MinX, MinY, MinZ float64
	MaxX, MaxY, MaxZ float64
}

// Encode serializes a snapshot with msgpack.
func (s *Snapshot) Encode() ([]byte, error) {
	data, err := msgpack.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	return data, nil
}

// DecodeSnapshot parses a msgpack snapshot.
func DecodeSnapshot(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := msgpack.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &s, nil
}

// SaveSnapshot writes a snapshot to disk.
// Returns the filepath where it was saved.
func SaveSnapshot(snapshot *Snapshot, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create snapshot dir: %w", err)
	}

	name := fmt.Sprintf("snapshot_%d", snapshot.Tick)
	if snapshot.Bookmark != nil {
		sanitized := strings.ReplaceAll(string(snapshot.Bookmark.Type), " ", "_")
		name = fmt.Sprintf("snapshot_%d_%s", snapshot.Tick, sanitized)
	}
	name += ".msgpack"

	path := filepath.Join(dir, name)

	data, err := snapshot.Encode()
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("write snapshot: %w", err)
	}
	return path, nil
}

// LoadSnapshot reads a snapshot from disk.
func LoadSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	return DecodeSnapshot(data)
}
