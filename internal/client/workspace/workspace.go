package workspace

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"
	"github.com/openmined/appsync/internal/client/config"
	"github.com/openmined/appsync/internal/utils"
)

const (
	logsDir  = "logs"
	lockFile = "appsync.lock"
)

var (
	ErrWorkspaceLocked = errors.New("workspace locked by another process")
)

// Workspace is the on-disk layout of a project.
type Workspace struct {
	Root         string
	SourceDir    string
	BuildDir     string
	MetadataDir  string
	LogsDir      string
	ManifestPath string
	DiffPath     string
	IgnorePath   string

	flock *flock.Flock
}

func NewWorkspace(cfg *config.Config) (*Workspace, error) {
	root, err := utils.ResolvePath(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path %s: %w", cfg.Root, err)
	}

	metadataDir := filepath.Join(root, config.MetadataDirName)

	return &Workspace{
		Root:         root,
		SourceDir:    cfg.SourcePath(),
		BuildDir:     cfg.BuildPath(),
		MetadataDir:  metadataDir,
		LogsDir:      filepath.Join(metadataDir, logsDir),
		ManifestPath: filepath.Join(root, config.ManifestFileName),
		DiffPath:     filepath.Join(root, config.DiffFileName),
		IgnorePath:   filepath.Join(root, config.IgnoreFileName),
		flock:        flock.New(filepath.Join(metadataDir, lockFile)),
	}, nil
}

// Lock takes the project lock so that only one long running session syncs it.
func (w *Workspace) Lock() error {
	if err := utils.EnsureDir(w.MetadataDir); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", w.MetadataDir, err)
	}

	locked, err := w.flock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to lock workspace: %w", err)
	}
	if !locked {
		return ErrWorkspaceLocked
	}

	return nil
}

func (w *Workspace) Unlock() error {
	// if this process hasn't locked the workspace, then don't delete the lock file
	if !w.flock.Locked() {
		return nil
	}

	if err := w.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to unlock workspace: %w", err)
	}

	return os.Remove(w.flock.Path())
}

// Setup creates the source, build and metadata directories.
func (w *Workspace) Setup() error {
	slog.Debug("workspace", "root", w.Root, "source", w.SourceDir, "build", w.BuildDir)

	for _, dir := range []string{w.SourceDir, w.BuildDir, w.MetadataDir} {
		if err := utils.EnsureDir(dir); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// AbsPath resolves a path given relative to the project root
func (w *Workspace) AbsPath(path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(w.Root, filepath.FromSlash(path))
}

// RelPath returns the slash separated path of absPath relative to the project root
func (w *Workspace) RelPath(absPath string) (string, error) {
	relPath, err := filepath.Rel(w.Root, absPath)
	if err != nil {
		return "", err
	}
	return NormPath(relPath), nil
}

// NormPath normalizes a path by cleaning it, replacing backslashes with slashes, and trimming leading slashes
func NormPath(path string) string {
	path = filepath.Clean(path)
	path = strings.ReplaceAll(path, "\\", "/")
	path = strings.TrimLeft(path, "/")
	return path
}
