package editor

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WhyIsSandwich/barctl/internal/apperr"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	e, dir := newTestEditor(t)
	configDir := filepath.Join(dir, "waybar")
	writeTree(t, configDir, map[string]string{
		"config.jsonc":                        `{"height": 30}`,
		"style.css":                           "* { margin: 0; }",
		"scripts/media.sh":                    "#!/bin/sh\necho hi\n",
		"config.backup.20250101-000000.jsonc": "old",
	})

	snap, err := e.Snapshot(configDir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(e.SnapshotDir(), "waybar-20261018-153000.tar.xz"), snap)

	snaps, err := e.ListSnapshots()
	require.NoError(t, err)
	assert.Equal(t, []string{"waybar-20261018-153000.tar.xz"}, snaps)

	restoreDir := filepath.Join(dir, "restored")
	restored, err := e.RestoreSnapshot(snaps[0], restoreDir)
	require.NoError(t, err)
	assert.Len(t, restored, 3)

	got, err := os.ReadFile(filepath.Join(restoreDir, "scripts", "media.sh"))
	require.NoError(t, err)
	assert.Equal(t, "#!/bin/sh\necho hi\n", string(got))

	_, err = os.Stat(filepath.Join(restoreDir, "config.backup.20250101-000000.jsonc"))
	assert.True(t, os.IsNotExist(err), "backups are not part of snapshots")
}

func TestRestoreSnapshotBacksUpExistingFiles(t *testing.T) {
	e, dir := newTestEditor(t)
	configDir := filepath.Join(dir, "waybar")
	writeTree(t, configDir, map[string]string{"style.css": "v1"})

	snap, err := e.Snapshot(configDir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(configDir, "style.css"), []byte("v2"), 0644))
	_, err = e.RestoreSnapshot(snap, configDir)
	require.NoError(t, err)

	got, _ := os.ReadFile(filepath.Join(configDir, "style.css"))
	assert.Equal(t, "v1", string(got))

	backups, err := e.ListBackups(configDir)
	require.NoError(t, err)
	require.Len(t, backups, 1)
	prev, _ := os.ReadFile(filepath.Join(configDir, backups[0]))
	assert.Equal(t, "v2", string(prev))
}

func TestSnapshotNamesAreUnique(t *testing.T) {
	e, dir := newTestEditor(t)
	configDir := filepath.Join(dir, "waybar")
	writeTree(t, configDir, map[string]string{"config.jsonc": "{}"})

	for i := 0; i < 11; i++ {
		_, err := e.Snapshot(configDir)
		require.NoError(t, err)
	}

	snaps, err := e.ListSnapshots()
	require.NoError(t, err)
	require.Len(t, snaps, 11)
	assert.Equal(t, "waybar-20261018-153000-10.tar.xz", snaps[0])
	assert.Equal(t, "waybar-20261018-153000-9.tar.xz", snaps[1])
	assert.Equal(t, "waybar-20261018-153000.tar.xz", snaps[10])
}

func TestListSnapshotsOrder(t *testing.T) {
	e := NewWithClock(t.TempDir(), time.Now)
	require.NoError(t, os.MkdirAll(e.SnapshotDir(), 0755))
	for _, n := range []string{
		"waybar-20250101-000000.tar.xz",
		"waybar-20261018-153000.tar.xz",
		"waybar-20260601-120000-1.tar.xz",
		"notes.txt",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(e.SnapshotDir(), n), nil, 0644))
	}

	snaps, err := e.ListSnapshots()
	require.NoError(t, err)
	assert.Equal(t, []string{
		"waybar-20261018-153000.tar.xz",
		"waybar-20260601-120000-1.tar.xz",
		"waybar-20250101-000000.tar.xz",
	}, snaps)
}

func TestRestoreSnapshotErrors(t *testing.T) {
	e, dir := newTestEditor(t)

	_, err := e.RestoreSnapshot("waybar-missing.tar.xz", dir)
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))

	bogus := filepath.Join(dir, "bogus.tar.xz")
	require.NoError(t, os.WriteFile(bogus, []byte("not xz"), 0644))
	_, err = e.RestoreSnapshot(bogus, dir)
	assert.Equal(t, apperr.Parse, apperr.KindOf(err))
}

func TestSafeJoin(t *testing.T) {
	got, err := safeJoin("/w", "scripts/a.sh")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/w", "scripts", "a.sh"), got)

	for _, name := range []string{"../etc/passwd", "a/../../b", ".."} {
		_, err := safeJoin("/w", name)
		assert.Error(t, err, name)
	}
}
