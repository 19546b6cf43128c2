package sync

import (
	"context"
	"errors"
	"path/filepath"
	gosync "sync"
	"testing"
	"time"

	"github.com/openmined/appsync/internal/client/manifest"
	"github.com/openmined/appsync/internal/snapi"
	"github.com/openmined/appsync/internal/snapi/snapitest"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

const (
	testRoot = "/project"
)

var (
	testSource = filepath.Join(testRoot, "src")
	testBuild  = filepath.Join(testRoot, "build")
)

// fakeTransformer renders file content from afero, or fails for configured paths.
type fakeTransformer struct {
	fs    afero.Fs
	mu    gosync.Mutex
	fail  map[string]error
	calls int
}

func newFakeTransformer(fs afero.Fs) *fakeTransformer {
	return &fakeTransformer{fs: fs, fail: make(map[string]error)}
}

func (f *fakeTransformer) Render(_ context.Context, path string) (string, error) {
	f.mu.Lock()
	f.calls++
	err := f.fail[path]
	f.mu.Unlock()
	if err != nil {
		return "", err
	}
	data, err := afero.ReadFile(f.fs, path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func testManifest() *manifest.Manifest {
	m := manifest.New("x_widgets")
	m.Table("widget").Records["Hello"] = &manifest.Record{
		SysID: "abc123",
		Name:  "Hello",
		Files: []manifest.File{
			{Name: "script", Type: "js"},
			{Name: "template", Type: "html"},
		},
		Version: "v1",
	}
	m.Table("widget").Records["Other"] = &manifest.Record{
		SysID: "def456",
		Name:  "Other",
		Files: []manifest.File{{Name: "script", Type: "js"}},
	}
	m.Table("sys_script_include").Records["Util"] = &manifest.Record{
		SysID: "ghi789",
		Name:  "Util",
		Files: []manifest.File{{Name: "script", Type: "js"}},
	}
	return m
}

func writeFile(t *testing.T, fs afero.Fs, path, content string) {
	t.Helper()
	require.NoError(t, fs.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, afero.WriteFile(fs, path, []byte(content), 0o644))
}

func srcPath(parts ...string) string {
	return filepath.Join(append([]string{testSource}, parts...)...)
}

func fastRetry(attempts int) RetryPolicy {
	return RetryPolicy{Attempts: attempts, Wait: time.Millisecond}
}

type pushFixture struct {
	fs          afero.Fs
	remote      *snapitest.Store
	store       *manifest.MemStore
	transformer *fakeTransformer
	pusher      *Pusher
	status      *StatusTracker
}

func newPushFixture(t *testing.T) *pushFixture {
	t.Helper()
	fs := afero.NewMemMapFs()
	store := manifest.NewMemStore(testManifest())
	_, err := store.Load()
	require.NoError(t, err)

	remote := snapitest.New()
	remote.Add("widget", snapi.Row{"sys_id": "abc123", "script": "old", "template": "<p/>"})
	remote.Add("widget", snapi.Row{"sys_id": "def456", "script": "old"})

	tr := newFakeTransformer(fs)
	status := NewStatusTracker()
	builder := NewBuilder(tr, fs, testSource, testBuild)

	return &pushFixture{
		fs:          fs,
		remote:      remote,
		store:       store,
		transformer: tr,
		status:      status,
		pusher:      NewPusher(remote, store, builder, fastRetry(DefaultPushAttempts), status),
	}
}

func (f *pushFixture) records(t *testing.T, paths ...string) []*BuildableRecord {
	t.Helper()
	m, err := f.store.Current()
	require.NoError(t, err)
	ctxs := NewContextResolver(m, testSource).ResolveAll(paths)
	require.Len(t, ctxs, len(paths))
	return GroupAppFiles(ctxs)
}

func (f *pushFixture) trackedVersion(t *testing.T, table, name string) string {
	t.Helper()
	m, err := f.store.Current()
	require.NoError(t, err)
	rec, ok := m.Record(table, name)
	require.True(t, ok)
	return rec.Version
}

var errTransient = errors.New("connection reset by peer")
