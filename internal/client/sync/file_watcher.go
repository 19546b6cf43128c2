package sync

import (
	"context"
	"log/slog"
	"sync"

	"github.com/rjeczalik/notify"
)

const eventBufferSize = 64

// FilterCallback is a function that returns true if the event should be filtered
type FilterCallback func(path string) bool

// FileWatcher reports the paths of files written under a directory tree.
type FileWatcher struct {
	watchDir  string
	rawEvents chan notify.EventInfo
	paths     chan string
	done      chan struct{}
	wg        sync.WaitGroup

	ignoreCallback FilterCallback
	callbackMu     sync.RWMutex
}

func NewFileWatcher(watchDir string) *FileWatcher {
	return &FileWatcher{
		watchDir: watchDir,
		done:     make(chan struct{}),
	}
}

// FilterPaths sets a callback that returns true for paths to drop
func (fw *FileWatcher) FilterPaths(callback FilterCallback) {
	fw.callbackMu.Lock()
	defer fw.callbackMu.Unlock()
	fw.ignoreCallback = callback
}

func (fw *FileWatcher) Start(ctx context.Context) error {
	slog.Info("file watcher start", "dir", fw.watchDir)

	fw.rawEvents = make(chan notify.EventInfo, eventBufferSize)
	fw.paths = make(chan string, eventBufferSize)

	recursivePath := fw.watchDir + "/..."
	if err := notify.Watch(recursivePath, fw.rawEvents, notify.Write, notify.Create, notify.Rename); err != nil {
		return err
	}

	fw.wg.Add(1)
	go fw.forwardEvents(ctx)

	return nil
}

func (fw *FileWatcher) Stop() {
	slog.Debug("file watcher stopping")

	close(fw.done)
	if fw.rawEvents != nil {
		notify.Stop(fw.rawEvents)
	}
	fw.wg.Wait()

	slog.Info("file watcher stopped")
}

// Paths returns the channel of changed paths. It is closed when the watcher stops.
func (fw *FileWatcher) Paths() <-chan string {
	return fw.paths
}

func (fw *FileWatcher) shouldIgnore(path string) bool {
	fw.callbackMu.RLock()
	defer fw.callbackMu.RUnlock()
	return fw.ignoreCallback != nil && fw.ignoreCallback(path)
}

func (fw *FileWatcher) forwardEvents(ctx context.Context) {
	defer func() {
		fw.wg.Done()
		close(fw.paths)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-fw.done:
			return
		case event, ok := <-fw.rawEvents:
			if !ok {
				return
			}

			path := event.Path()
			if fw.shouldIgnore(path) {
				continue
			}

			select {
			case fw.paths <- path:
				slog.Debug("file watcher", "event", event.Event(), "path", path)
			default:
				slog.Warn("file watcher dropped", "reason", "channel full", "path", path)
			}
		}
	}
}
