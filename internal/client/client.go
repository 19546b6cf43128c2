package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/openmined/appsync/internal/client/config"
	"github.com/openmined/appsync/internal/client/manifest"
	"github.com/openmined/appsync/internal/client/sync"
	"github.com/openmined/appsync/internal/client/transform"
	"github.com/openmined/appsync/internal/client/workspace"
	"github.com/openmined/appsync/internal/snapi"
	"github.com/spf13/afero"
)

// Client runs sync operations for one project against one instance.
type Client struct {
	project   *config.Config
	remote    snapi.Store
	user      string
	instance  string
	workspace *workspace.Workspace
	fs        afero.Fs
	manifest  manifest.Store
	renderer  sync.Transformer
	ignore    *sync.IgnoreList
	status    *sync.StatusTracker
	retry     sync.RetryPolicy
	gitDiff   GitDiffFunc
	closeFn   func()
}

type Option func(*Client)

// WithFs replaces the filesystem used for project files.
func WithFs(fs afero.Fs) Option {
	return func(c *Client) { c.fs = fs }
}

// WithManifestStore replaces the file backed manifest store.
func WithManifestStore(s manifest.Store) Option {
	return func(c *Client) { c.manifest = s }
}

func WithRetryPolicy(p sync.RetryPolicy) Option {
	return func(c *Client) { c.retry = p }
}

// WithGitDiff replaces the git invocation used to list changed files.
func WithGitDiff(fn GitDiffFunc) Option {
	return func(c *Client) { c.gitDiff = fn }
}

// WithTransformer replaces the rule based transform registry.
func WithTransformer(t sync.Transformer) Option {
	return func(c *Client) { c.renderer = t }
}

// New connects to the configured instance.
func New(cfg *Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	sn, err := snapi.New(cfg.Remote)
	if err != nil {
		return nil, fmt.Errorf("failed to create instance client: %w", err)
	}

	c, err := NewWithStore(cfg.Project, sn, cfg.Remote.User, opts...)
	if err != nil {
		sn.Close()
		return nil, err
	}
	c.instance = sn.BaseURL()
	c.closeFn = sn.Close
	return c, nil
}

// NewWithStore builds a client over an existing remote store.
func NewWithStore(project *config.Config, remote snapi.Store, user string, opts ...Option) (*Client, error) {
	if err := project.Validate(); err != nil {
		return nil, err
	}

	ws, err := workspace.NewWorkspace(project)
	if err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}

	c := &Client{
		project:   project,
		remote:    remote,
		user:      user,
		workspace: ws,
		fs:        afero.NewOsFs(),
		status:    sync.NewStatusTracker(),
		retry:     sync.DefaultRetryPolicy(),
		gitDiff:   gitDiffNames,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.manifest == nil {
		c.manifest = manifest.NewFileStore(ws.ManifestPath)
	}
	if c.renderer == nil {
		registry, err := transform.NewRegistry(ws.Root, c.fs, project.Rules)
		if err != nil {
			return nil, err
		}
		c.renderer = registry
	}
	c.ignore = sync.NewIgnoreList(ws.Root, ws.IgnorePath)
	c.ignore.Load()

	if _, err := c.manifest.Load(); err != nil && !errors.Is(err, manifest.ErrNotFound) {
		return nil, fmt.Errorf("failed to load manifest: %w", err)
	}

	return c, nil
}

func (c *Client) Close() {
	if c.closeFn != nil {
		c.closeFn()
	}
}

func (c *Client) Workspace() *workspace.Workspace {
	return c.workspace
}

// RecordStatus returns the tracker that follows every record pushed in this session.
func (c *Client) RecordStatus() *sync.StatusTracker {
	return c.status
}

// Manifest returns a snapshot of the tracked manifest.
func (c *Client) Manifest() (*manifest.Manifest, error) {
	return c.manifest.Current()
}

func (c *Client) sourceBuilder() *sync.Builder {
	return sync.NewBuilder(c.renderer, c.fs, c.workspace.SourceDir, c.workspace.BuildDir)
}

func (c *Client) writer() *sync.Writer {
	return sync.NewWriter(c.fs, c.workspace.SourceDir)
}

func (c *Client) pusher(builder *sync.Builder) *sync.Pusher {
	return sync.NewPusher(c.remote, c.manifest, builder, c.retry, c.status)
}

// resolver returns a FileContext resolver over the current manifest.
func (c *Client) resolver(roots ...string) (*sync.ContextResolver, error) {
	m, err := c.manifest.Current()
	if err != nil {
		return nil, err
	}
	return sync.NewContextResolver(m, roots...), nil
}

func (c *Client) records(paths []string, roots ...string) ([]*sync.BuildableRecord, error) {
	r, err := c.resolver(roots...)
	if err != nil {
		return nil, err
	}

	ctxs := make([]*sync.FileContext, 0, len(paths))
	for _, p := range paths {
		fc, ok := r.Resolve(p)
		if !ok {
			slog.Debug("skip path", "path", p, "reason", "not a tracked record field")
			continue
		}
		ctxs = append(ctxs, fc)
	}
	return sync.GroupAppFiles(ctxs), nil
}

func (c *Client) syncMissing(ctx context.Context, m *manifest.Manifest) (int, error) {
	missing, err := sync.NewMissingFileResolver(c.fs, c.workspace.SourceDir).FindMissing(ctx, m)
	if err != nil {
		return 0, fmt.Errorf("failed to find missing files: %w", err)
	}
	if missing.Count() == 0 {
		slog.Debug("no missing files")
		return 0, nil
	}
	slog.Info("downloading missing files", "count", missing.Count())

	tables, err := sync.NewDownloader(c.remote).DownloadMissing(ctx, m, missing)
	if err != nil {
		return 0, err
	}
	return c.writer().WriteTables(tables, false)
}
