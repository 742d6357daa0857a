package editor

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WhyIsSandwich/barctl/internal/apperr"
	"github.com/WhyIsSandwich/barctl/internal/backup"
	"github.com/WhyIsSandwich/barctl/internal/jsonc"
)

var testTime = time.Date(2026, 10, 18, 15, 30, 0, 0, time.UTC)

func newTestEditor(t *testing.T) (*Editor, string) {
	t.Helper()
	dir := t.TempDir()
	return NewWithClock(filepath.Join(dir, "data"), func() time.Time { return testTime }), dir
}

func TestLoadConfig(t *testing.T) {
	e, dir := newTestEditor(t)

	t.Run("jsonc with comments", func(t *testing.T) {
		path := filepath.Join(dir, "config.jsonc")
		content := "{\n  // Comment\n  \"modules-left\": [\"cpu\"]\n}"
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))

		cfg, err := e.LoadConfig(path)
		require.NoError(t, err)
		assert.Equal(t, path, cfg.Path)
		assert.Contains(t, cfg.Content, "// Comment")
	})

	t.Run("broken json", func(t *testing.T) {
		path := filepath.Join(dir, "broken.jsonc")
		require.NoError(t, os.WriteFile(path, []byte("{\n  // c\n  \"height\": \n}"), 0644))

		_, err := e.LoadConfig(path)
		require.Error(t, err)
		assert.Equal(t, apperr.Parse, apperr.KindOf(err))
		assert.Contains(t, err.Error(), "broken.jsonc")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := e.LoadConfig(filepath.Join(dir, "missing.jsonc"))
		require.Error(t, err)
		assert.Equal(t, apperr.NotFound, apperr.KindOf(err))
		assert.Contains(t, err.Error(), "Config file not found")
	})
}

func TestSaveConfig(t *testing.T) {
	e, dir := newTestEditor(t)
	path := filepath.Join(dir, "config.json")

	backupPath, err := e.SaveConfig(path, `{"modules-left": ["cpu"]}`)
	require.NoError(t, err)
	assert.Empty(t, backupPath)

	saved, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(saved), "// Waybar Configuration\n// Saved by barctl on 2026-10-18 15:30:00\n"))
	assert.Contains(t, string(saved), "modules-left")
	assert.NoError(t, jsonc.ValidateJSONC(saved), "saved file must load again")

	backupPath, err = e.SaveConfig(path, `{"modules-left": ["memory"]}`)
	require.NoError(t, err)
	assert.Equal(t, backup.PathFor(path, testTime), backupPath)

	old, err := os.ReadFile(backupPath)
	require.NoError(t, err)
	assert.Equal(t, saved, old)

	cfg, err := e.LoadConfig(path)
	require.NoError(t, err)
	assert.Contains(t, cfg.Content, "memory")
}

func TestSaveConfigRejectsInvalidJSON(t *testing.T) {
	e, dir := newTestEditor(t)
	path := filepath.Join(dir, "config.jsonc")
	require.NoError(t, os.WriteFile(path, []byte(`{"a": 1}`), 0644))

	for _, content := range []string{`{"a":1,}`, "{\"a\": 1} // comment", ``} {
		_, err := e.SaveConfig(path, content)
		require.Error(t, err, content)
		assert.Equal(t, apperr.Validation, apperr.KindOf(err))
	}

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `{"a": 1}`, string(got))

	backups, err := e.ListBackups(dir)
	require.NoError(t, err)
	assert.Empty(t, backups)
}

func TestCSS(t *testing.T) {
	e, dir := newTestEditor(t)
	path := filepath.Join(dir, "style.css")

	_, err := e.LoadCSS(path)
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))

	_, err = e.SaveCSS(path, "  \n\t")
	assert.Equal(t, apperr.Validation, apperr.KindOf(err))
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))

	content := "* { margin: 0; }"
	_, err = e.SaveCSS(path, content)
	require.NoError(t, err)

	got, err := e.LoadCSS(path)
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestRestoreBackup(t *testing.T) {
	e, dir := newTestEditor(t)
	path := filepath.Join(dir, "style.css")
	require.NoError(t, os.WriteFile(path, []byte("old"), 0644))

	b1, err := e.SaveCSS(path, "new")
	require.NoError(t, err)

	backups, err := e.ListBackups(dir)
	require.NoError(t, err)
	require.Equal(t, []string{filepath.Base(b1)}, backups)

	target, err := TargetFor(ResolveBackup(dir, backups[0]))
	require.NoError(t, err)
	assert.Equal(t, path, target)

	b2, err := e.RestoreBackup(ResolveBackup(dir, backups[0]), target)
	require.NoError(t, err)
	assert.NotEqual(t, b1, b2)

	got, _ := os.ReadFile(path)
	assert.Equal(t, "old", string(got))
	undo, _ := os.ReadFile(b2)
	assert.Equal(t, "new", string(undo))

	_, err = e.RestoreBackup(filepath.Join(dir, "missing.backup.x.css"), path)
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))
}

func TestBackup(t *testing.T) {
	e, dir := newTestEditor(t)
	path := filepath.Join(dir, "style.css")
	require.NoError(t, os.WriteFile(path, []byte("a"), 0644))

	b, err := e.Backup(path)
	require.NoError(t, err)
	assert.Equal(t, backup.PathFor(path, testTime), b)

	got, _ := os.ReadFile(path)
	assert.Equal(t, "a", string(got))
}

func TestTargetFor(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "/w/config.backup.20261018-153000.jsonc", want: "/w/config.jsonc"},
		{in: "/w/config.backup.20261018-153000-3.jsonc", want: "/w/config.jsonc"},
		{in: "/w/config.backup.20261018-153000", want: "/w/config"},
		{in: "style.backup.20261018-153000.css", want: "style.css"},
		{in: "/w/config.jsonc", wantErr: true},
	}

	for _, tt := range tests {
		got, err := TargetFor(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestResolveBackup(t *testing.T) {
	assert.Equal(t, filepath.Join("/w", "a.backup.1.css"), ResolveBackup("/w", "a.backup.1.css"))
	assert.Equal(t, "/x/a.backup.1.css", ResolveBackup("/w", "/x/a.backup.1.css"))
}

func TestDetect(t *testing.T) {
	dir := t.TempDir()

	paths, err := Detect(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "config.jsonc"), paths.ConfigFile)
	assert.Equal(t, filepath.Join(dir, "style.css"), paths.StyleFile)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "config"), []byte("{}"), 0644))
	paths, err = Detect(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "config"), paths.ConfigFile)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.jsonc"), []byte("{}"), 0644))
	paths, err = Detect(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "config.jsonc"), paths.ConfigFile)

	_, err = Detect(filepath.Join(dir, "missing"))
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))
}

func TestDefaultPaths(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/xdg")

	paths, err := DefaultPaths()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/xdg", "waybar"), paths.ConfigDir)
	assert.Equal(t, filepath.Join("/xdg", "waybar", "config.jsonc"), paths.ConfigFile)

	p := PathsIn(filepath.Join(t.TempDir(), "new", "waybar"))
	assert.False(t, p.ConfigExists())
	require.NoError(t, p.EnsureConfigDir())
	assert.True(t, p.ConfigExists())
}
