package telemetry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotSaveLoad(t *testing.T) {
	dir := t.TempDir()

	snap := &Snapshot{
		Version: SnapshotVersion,
		RunID:   "abc",
		Seed:    42,
		Tick:    1200,
		SimTime: 20,
		Entities: []EntityState{
			{ID: 7, X: 1, Y: 2, Z: 3, Yaw: 0.5, Team1: true, Soldier: true, Health: 80, Target: 9, Action: "Move", UnitID: 2},
			{ID: 9, X: 10, Y: 20, Health: 300, Action: "Stand", UnitID: -1},
		},
		Projectiles: []ProjectileState{{X: 5, Y: 6, Z: 150, Team1: true}},
		Sounds:      []SoundState{{X: 1, HeardByTeam1: true, FromEnvironment: true}},
		Walls:       []WallState{{MaxX: 10, MaxY: 10, MaxZ: 250}},
		Bookmark:    &Bookmark{Type: BookmarkFirstBlood, Tick: 1200, Description: "test"},
	}

	path, err := SaveSnapshot(snap, dir)
	require.NoError(t, err)
	assert.Equal(t, "snapshot_1200_first_blood.msgpack", filepath.Base(path))

	loaded, err := LoadSnapshot(path)
	require.NoError(t, err)
	assert.Equal(t, snap, loaded)
}

func TestSnapshotFilename(t *testing.T) {
	dir := t.TempDir()

	path, err := SaveSnapshot(&Snapshot{Version: SnapshotVersion, Tick: 5}, dir)
	require.NoError(t, err)
	assert.Equal(t, "snapshot_5.msgpack", filepath.Base(path))

	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestDecodeSnapshotRejectsGarbage(t *testing.T) {
	_, err := DecodeSnapshot([]byte{0xc1})
	assert.Error(t, err)
}
