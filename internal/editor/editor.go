// Package editor loads and saves Waybar's configuration and style files.
//
// Reads go through the JSONC stripper for validation but hand back the raw
// text, comments included. Writes always go through backup.Writer.
package editor

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"k8s.io/klog/v2"

	"github.com/WhyIsSandwich/barctl/internal/apperr"
	"github.com/WhyIsSandwich/barctl/internal/backup"
	"github.com/WhyIsSandwich/barctl/internal/jsonc"
)

// ConfigFile is the raw content of a Waybar config file
type ConfigFile struct {
	Content string `json:"content"`
	Path    string `json:"path"`
}

// Editor performs load and save operations on Waybar files
type Editor struct {
	writer  *backup.Writer
	now     func() time.Time
	dataDir string
}

// New creates an editor. dataDir holds configuration snapshots.
func New(dataDir string) *Editor {
	return &Editor{
		writer:  backup.NewWriter(),
		now:     time.Now,
		dataDir: dataDir,
	}
}

// NewWithClock creates an editor whose backups and headers use now
func NewWithClock(dataDir string, now func() time.Time) *Editor {
	return &Editor{
		writer:  backup.NewWriterWithClock(now),
		now:     now,
		dataDir: dataDir,
	}
}

// LoadConfig reads a JSONC config file and checks it parses once comments are
// removed. The returned content still has its comments.
func (e *Editor) LoadConfig(path string) (*ConfigFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &apperr.Error{Kind: apperr.NotFound, Msg: "Config file not found: " + path, Err: err}
		}
		return nil, apperr.FromOS("reading config", path, err)
	}

	if err := jsonc.ValidateJSONC(data); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	klog.V(3).Infof("Loaded config %s (%d bytes)", path, len(data))
	return &ConfigFile{Content: string(data), Path: path}, nil
}

// SaveConfig validates content as strict JSON, prefixes a comment header and
// writes it with a backup of the previous file.
func (e *Editor) SaveConfig(path, content string) (string, error) {
	if err := jsonc.Validate([]byte(content)); err != nil {
		return "", err
	}

	backupPath, err := e.writer.WriteWithBackup(path, e.withHeader(content))
	if err != nil {
		return "", err
	}

	klog.InfoS("Saved config", "path", path, "backup", backupPath)
	return backupPath, nil
}

// withHeader prepends the comment block written on every save
func (e *Editor) withHeader(content string) []byte {
	var buf bytes.Buffer
	buf.WriteString("// Waybar Configuration\n")
	fmt.Fprintf(&buf, "// Saved by barctl on %s\n", e.now().Format("2006-01-02 15:04:05"))
	buf.WriteString(content)
	if !strings.HasSuffix(content, "\n") {
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// LoadCSS reads a style file
func (e *Editor) LoadCSS(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", &apperr.Error{Kind: apperr.NotFound, Msg: "CSS file not found: " + path, Err: err}
		}
		return "", apperr.FromOS("reading CSS", path, err)
	}
	return string(data), nil
}

// SaveCSS writes a style file with a backup of the previous one. The content
// is written as given; only blank stylesheets are rejected.
func (e *Editor) SaveCSS(path, content string) (string, error) {
	if strings.TrimSpace(content) == "" {
		return "", apperr.New(apperr.Validation, "CSS content cannot be empty")
	}

	backupPath, err := e.writer.WriteWithBackup(path, []byte(content))
	if err != nil {
		return "", err
	}

	klog.InfoS("Saved stylesheet", "path", path, "backup", backupPath)
	return backupPath, nil
}

// Backup copies path to a new timestamped backup without changing it
func (e *Editor) Backup(path string) (string, error) {
	return e.writer.Backup(path)
}

// ListBackups returns the backup file names in dir, newest first
func (e *Editor) ListBackups(dir string) ([]string, error) {
	return backup.List(dir)
}

// RestoreBackup copies a backup over target. The current target is itself
// backed up first, so a restore can be undone.
func (e *Editor) RestoreBackup(backupPath, targetPath string) (string, error) {
	data, err := os.ReadFile(backupPath)
	if err != nil {
		return "", apperr.FromOS("reading backup", backupPath, err)
	}

	saved, err := e.writer.WriteWithBackup(targetPath, data)
	if err != nil {
		return "", err
	}

	klog.InfoS("Restored backup", "backup", backupPath, "target", targetPath, "previous", saved)
	return saved, nil
}

// ResolveBackup turns a backup name as printed by ListBackups into a path in
// dir. Paths are returned unchanged.
func ResolveBackup(dir, name string) string {
	if filepath.IsAbs(name) || strings.ContainsRune(name, filepath.Separator) {
		return name
	}
	return filepath.Join(dir, name)
}

// TargetFor returns the file a backup was taken from by removing the marker
// and timestamp: config.backup.20261018-153000.jsonc -> config.jsonc.
func TargetFor(backupPath string) (string, error) {
	dir, name := filepath.Split(backupPath)
	i := strings.LastIndex(name, backup.Marker)
	if i < 0 {
		return "", apperr.New(apperr.Validation, "%s is not a backup file", name)
	}
	stem := name[:i]
	rest := name[i+len(backup.Marker):]
	ext := ""
	if j := strings.IndexByte(rest, '.'); j >= 0 {
		ext = rest[j:]
	}
	return dir + stem + ext, nil
}
