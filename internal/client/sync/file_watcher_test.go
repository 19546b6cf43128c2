package sync

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFileWatcher(t *testing.T) {
	fw := NewFileWatcher("/test/path")

	assert.Equal(t, "/test/path", fw.watchDir)
	assert.Nil(t, fw.paths)
	assert.Nil(t, fw.rawEvents)
	assert.NotNil(t, fw.done)
}

func TestFileWatcherReportsWrites(t *testing.T) {
	// tmpdir lives in /var/folders on macOS, which is a symlink to /private/var/folders
	tempDir, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err, "failed to evaluate symlinks")

	fw := NewFileWatcher(tempDir)
	fw.FilterPaths(func(path string) bool {
		return strings.HasSuffix(path, ".swp")
	})

	require.NoError(t, fw.Start(context.Background()), "failed to start file watcher")
	defer fw.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(tempDir, "script.js.swp"), []byte("x"), 0o644))
	testFile := filepath.Join(tempDir, "script.js")
	require.NoError(t, os.WriteFile(testFile, []byte("gs.info(1);"), 0o644))

	deadline := time.After(2 * time.Second)
	for {
		select {
		case path := <-fw.Paths():
			assert.False(t, strings.HasSuffix(path, ".swp"))
			if path == testFile {
				return
			}
		case <-deadline:
			assert.FailNow(t, "Timeout waiting for file event")
		}
	}
}
