package client

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/openmined/appsync/internal/client/config"
	"github.com/openmined/appsync/internal/client/manifest"
	"github.com/openmined/appsync/internal/client/sync"
	"github.com/openmined/appsync/internal/client/workspace"
	"github.com/openmined/appsync/internal/snapi"
	"github.com/openmined/appsync/internal/snapi/snapitest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testUser  = "admin"
	testScope = "x_widgets"
)

type fixture struct {
	client *Client
	remote *snapitest.Store
	store  *manifest.MemStore
	root   string
}

func testProject(root string) *config.Config {
	return &config.Config{
		SourceDirectory: config.DefaultSourceDirectory,
		BuildDirectory:  config.DefaultBuildDirectory,
		Includes: map[string]config.TableOptions{
			"widget": {Files: []config.FileOption{
				{Name: "script"},
				{Name: "template", Type: "html"},
			}},
			snapi.TableATFStep: {Files: []config.FileOption{{Name: "inputs"}}},
			"empty":            {},
		},
		Path: filepath.Join(root, "appsync.yaml"),
		Root: root,
	}
}

func seedRemote(remote *snapitest.Store) {
	remote.Add("sys_user", snapi.Row{"sys_id": "u1", "user_name": testUser})
	remote.Add(snapi.TableApp,
		snapi.Row{"sys_id": "app1", "scope": testScope},
		snapi.Row{"sys_id": "app2", "scope": "global"},
	)
	remote.Add(snapi.TableUserPreference, snapi.Row{
		"user": "u1", "user.user_name": testUser, "name": "apps.current_app", "value": "app1",
	})
	remote.Add("widget",
		snapi.Row{"sys_id": "abc123", "name": "Hello", "sys_scope.scope": testScope, "script": "let a = 1", "template": "<p/>"},
		snapi.Row{"sys_id": "zzz000", "name": "Elsewhere", "sys_scope.scope": "global", "script": "x"},
	)
	remote.Add(snapi.TableATFStep, snapi.Row{"sys_id": "atf1", "name": "Step", "sys_scope.scope": testScope})
	remote.Add(snapi.TableUpdateVersion, snapi.Row{
		"sys_id": "v1", "name": "widget_abc123", "state": "current",
	})
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	root := t.TempDir()
	remote := snapitest.New()
	seedRemote(remote)
	store := manifest.NewMemStore(nil)

	opts = append([]Option{
		WithManifestStore(store),
		WithRetryPolicy(sync.RetryPolicy{Attempts: 2, Wait: time.Millisecond}),
	}, opts...)
	c, err := NewWithStore(testProject(root), remote, testUser, opts...)
	require.NoError(t, err)
	t.Cleanup(c.Close)

	return &fixture{client: c, remote: remote, store: store, root: root}
}

func (f *fixture) src(parts ...string) string {
	return filepath.Join(append([]string{f.root, "src"}, parts...)...)
}

func (f *fixture) download(t *testing.T) {
	t.Helper()
	n, err := f.client.Download(context.Background(), testScope)
	require.NoError(t, err)
	require.Equal(t, 2, n)
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestFetchManifest(t *testing.T) {
	f := newFixture(t)
	f.remote.Add("widget", snapi.Row{"sys_id": "dup1", "name": "Hello", "sys_scope.scope": testScope})

	m, err := f.client.FetchManifest(context.Background(), testScope, false)
	require.NoError(t, err)

	assert.Equal(t, testScope, m.Scope)
	assert.Equal(t, []string{"widget"}, m.TableNames())
	assert.Equal(t, 2, m.RecordCount())

	rec, ok := m.Record("widget", "Hello")
	require.True(t, ok)
	assert.Equal(t, "abc123", rec.SysID)
	assert.Equal(t, "v1", rec.Version)
	assert.Equal(t, []manifest.File{{Name: "script", Type: "js"}, {Name: "template", Type: "html"}}, rec.Files)

	dup, ok := m.Record("widget", "Hello (dup1)")
	require.True(t, ok)
	assert.Empty(t, dup.Version)
}

func TestDownload(t *testing.T) {
	f := newFixture(t)
	f.download(t)

	assert.Equal(t, "let a = 1", readFile(t, f.src("widget", "Hello", "script.js")))
	assert.Equal(t, "<p/>", readFile(t, f.src("widget", "Hello", "template.html")))

	saved, saves := f.store.Saved()
	assert.Equal(t, 1, saves)
	rec, ok := saved.Record("widget", "Hello")
	require.True(t, ok)
	for _, file := range rec.Files {
		assert.Nil(t, file.Content)
	}
}

func TestRefreshRequiresManifest(t *testing.T) {
	f := newFixture(t)
	_, err := f.client.Refresh(context.Background(), false)
	assert.ErrorIs(t, err, manifest.ErrNoManifestLoaded)
}

func TestRefreshRestoresMissingFiles(t *testing.T) {
	f := newFixture(t)
	f.download(t)
	writeFile(t, f.src("widget", "Hello", "script.js"), "local edit")
	require.NoError(t, os.Remove(f.src("widget", "Hello", "template.html")))

	n, err := f.client.Refresh(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, "<p/>", readFile(t, f.src("widget", "Hello", "template.html")))
	assert.Equal(t, "local edit", readFile(t, f.src("widget", "Hello", "script.js")))
}

func TestRefreshCurrentUpdateSet(t *testing.T) {
	f := newFixture(t)
	f.download(t)

	f.remote.Add("widget", snapi.Row{"sys_id": "new1", "name": "Fresh", "sys_scope.scope": testScope, "script": "fresh", "template": "<b/>"})
	f.remote.Add("widget", snapi.Row{"sys_id": "new2", "name": "Unrelated", "sys_scope.scope": testScope, "script": "x", "template": "x"})
	f.remote.Remove(snapi.TableUpdateVersion, snapi.Where(snapi.Eq("name", "widget_abc123")))
	f.remote.Add(snapi.TableUpdateVersion, snapi.Row{"sys_id": "v9", "name": "widget_abc123", "state": "current"})
	f.remote.Add(snapi.TableUserPreference, snapi.Row{"user": "u1", "name": "sys_update_set", "value": "us1"})
	f.remote.Add(snapi.TableUpdateXML,
		snapi.Row{"update_set": "us1", "action": "INSERT_OR_UPDATE", "name": "widget_new1"},
		snapi.Row{"update_set": "us1", "action": "DELETE", "name": "widget_new2"},
	)

	n, err := f.client.Refresh(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	m, err := f.client.Manifest()
	require.NoError(t, err)
	assert.Equal(t, 2, m.RecordCount())
	_, ok := m.Record("widget", "Fresh")
	assert.True(t, ok)
	_, ok = m.Record("widget", "Unrelated")
	assert.False(t, ok)

	hello, ok := m.Record("widget", "Hello")
	require.True(t, ok)
	assert.Equal(t, "v1", hello.Version)

	assert.Equal(t, "fresh", readFile(t, f.src("widget", "Fresh", "script.js")))
}

func TestCheckScope(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// nothing to compare against yet
	require.NoError(t, f.client.CheckScope(ctx, false))

	f.download(t)
	require.NoError(t, f.client.CheckScope(ctx, false))

	require.NoError(t, f.store.Save(manifest.New("global")))
	err := f.client.CheckScope(ctx, false)
	require.ErrorIs(t, err, ErrScopeMismatch)
	var scopeErr *ScopeError
	require.ErrorAs(t, err, &scopeErr)
	assert.Equal(t, testScope, scopeErr.Session)
	assert.Equal(t, "global", scopeErr.Manifest)

	require.NoError(t, f.client.CheckScope(ctx, true))
	session, err := snapi.CurrentScope(ctx, f.remote, testUser)
	require.NoError(t, err)
	assert.Equal(t, "global", session.Scope)
}

func TestCheckScopeSwapUnknownApp(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.Save(manifest.New("x_missing")))

	err := f.client.CheckScope(context.Background(), true)
	assert.ErrorIs(t, err, snapi.ErrNotFound)
}

func TestCreateUpdateSet(t *testing.T) {
	f := newFixture(t)

	id, err := f.client.CreateUpdateSet(context.Background(), "STORY-12")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	sets := f.remote.Rows(snapi.TableUpdateSet)
	require.Len(t, sets, 1)
	assert.Equal(t, "STORY-12", sets[0]["name"])
	assert.Equal(t, "app1", sets[0]["application"])

	prefs, err := f.remote.Query(context.Background(), snapi.TableUserPreference,
		snapi.Where(snapi.Eq("user", "u1"), snapi.Eq("name", "sys_update_set")))
	require.NoError(t, err)
	require.Len(t, prefs, 1)
	assert.Equal(t, id, prefs[0]["value"])
}

func TestResolveTargets(t *testing.T) {
	var gotRef string
	f := newFixture(t, WithGitDiff(func(_ context.Context, dir, ref string) ([]string, error) {
		gotRef = ref
		return []string{"src/widget/Hello/script.js", "src/widget/Gone/script.js"}, nil
	}))
	f.download(t)
	writeFile(t, f.src("widget", "Hello", "scratch.tmp"), "tmp")
	writeFile(t, f.src("widget", "Other", "script.js"), "other")

	ctx := context.Background()
	src := f.client.Workspace().SourceDir

	all, err := f.client.ResolveTargets(ctx, Targets{}, src)
	require.NoError(t, err)
	assert.Equal(t, []string{
		f.src("widget", "Hello", "script.js"),
		f.src("widget", "Hello", "template.html"),
		f.src("widget", "Other", "script.js"),
	}, all)

	list, err := f.client.ResolveTargets(ctx, Targets{Paths: "src/widget/Other, src/widget/Hello/template.html"}, src)
	require.NoError(t, err)
	assert.Equal(t, []string{
		f.src("widget", "Hello", "template.html"),
		f.src("widget", "Other", "script.js"),
	}, list)

	glob, err := f.client.ResolveTargets(ctx, Targets{Paths: "src/**/*.js"}, src)
	require.NoError(t, err)
	assert.Equal(t, []string{
		f.src("widget", "Hello", "script.js"),
		f.src("widget", "Other", "script.js"),
	}, glob)

	diff, err := f.client.ResolveTargets(ctx, Targets{DiffRef: "main"}, src)
	require.NoError(t, err)
	assert.Equal(t, "main", gotRef)
	assert.Equal(t, []string{f.src("widget", "Hello", "script.js")}, diff)

	_, err = f.client.ResolveTargets(ctx, Targets{Paths: "src/nothing/*.js"}, src)
	assert.Error(t, err)
}

func TestPush(t *testing.T) {
	f := newFixture(t)
	f.download(t)
	writeFile(t, f.src("widget", "Hello", "script.js"), "let a = 2")

	results, err := f.client.Push(context.Background(), PushOptions{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Success, results[0].Message)
	assert.Equal(t, "widget > Hello pushed successfully!", results[0].Message)

	updates := f.remote.Updates()
	require.Len(t, updates, 1)
	assert.Equal(t, map[string]string{"script": "let a = 2", "template": "<p/>"}, updates[0].Fields)

	status, ok := f.client.RecordStatus().Get("widget/abc123")
	require.True(t, ok)
	assert.Equal(t, sync.StateUploaded, status.State)
}

func TestPushWithUpdateSet(t *testing.T) {
	f := newFixture(t)
	f.download(t)

	results, err := f.client.Push(context.Background(), PushOptions{
		Targets:   Targets{Paths: "src/widget/Hello/script.js"},
		UpdateSet: "STORY-1",
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Len(t, f.remote.Rows(snapi.TableUpdateSet), 1)
	assert.Equal(t, map[string]string{"script": "let a = 1"}, f.remote.Updates()[0].Fields)
}

func TestPushScopeMismatch(t *testing.T) {
	f := newFixture(t)
	f.download(t)
	require.NoError(t, f.store.Save(manifest.New("global")))

	_, err := f.client.Push(context.Background(), PushOptions{})
	assert.ErrorIs(t, err, ErrScopeMismatch)
	assert.Empty(t, f.remote.Updates())
}

func TestPushWithoutManifest(t *testing.T) {
	f := newFixture(t)
	_, err := f.client.Push(context.Background(), PushOptions{})
	assert.ErrorIs(t, err, manifest.ErrNoManifestLoaded)
}

func TestBuildAndDeploy(t *testing.T) {
	f := newFixture(t)
	f.download(t)
	ctx := context.Background()

	results, err := f.client.Build(ctx, Targets{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "widget > Hello built successfully", results[0].Message)

	built := filepath.Join(f.root, "build", "widget", "Hello", "script.js")
	assert.Equal(t, "let a = 1", readFile(t, built))

	writeFile(t, built, "deployed")
	results, err = f.client.Deploy(ctx, false)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Success, results[0].Message)
	assert.Equal(t, map[string]string{"script": "deployed", "template": "<p/>"}, f.remote.Updates()[0].Fields)

	// the diff file narrows the deploy
	writeFile(t, filepath.Join(f.root, config.DiffFileName), `{"changed": ["build/widget/Hello/template.html"]}`)
	_, err = f.client.Deploy(ctx, false)
	require.NoError(t, err)
	updates := f.remote.Updates()
	require.Len(t, updates, 2)
	assert.Equal(t, map[string]string{"template": "<p/>"}, updates[1].Fields)
}

func TestStatus(t *testing.T) {
	f := newFixture(t)
	f.download(t)
	require.NoError(t, os.Remove(f.src("widget", "Hello", "script.js")))

	st, err := f.client.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &Status{
		User:          testUser,
		SessionScope:  testScope,
		ManifestScope: testScope,
		Tables:        1,
		Records:       1,
		MissingFiles:  1,
	}, st)
}

func TestDevRefusesLockedWorkspace(t *testing.T) {
	f := newFixture(t)
	f.download(t)

	ws := f.client.Workspace()
	require.NoError(t, os.MkdirAll(ws.MetadataDir, 0o755))
	other := flock.New(filepath.Join(ws.MetadataDir, "appsync.lock"))
	locked, err := other.TryLock()
	require.NoError(t, err)
	require.True(t, locked)
	defer other.Unlock()

	err = f.client.Dev(context.Background())
	assert.ErrorIs(t, err, workspace.ErrWorkspaceLocked)
}

func TestDevStopsOnCancel(t *testing.T) {
	f := newFixture(t)
	f.download(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.client.Dev(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("dev mode did not stop")
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := &Config{}
	assert.ErrorIs(t, cfg.Validate(), config.ErrNoConfig)

	cfg.Project = testProject(t.TempDir())
	assert.ErrorIs(t, cfg.Validate(), snapi.ErrNoInstance)

	cfg.Remote = &snapi.Config{Instance: "dev1234.example.com"}
	assert.ErrorIs(t, cfg.Validate(), snapi.ErrNoCredentials)

	cfg.Remote.User, cfg.Remote.Password = "admin", "secret"
	assert.NoError(t, cfg.Validate())
}
