package client

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/openmined/appsync/internal/client/manifest"
	"github.com/openmined/appsync/internal/client/sync"
	"github.com/openmined/appsync/internal/client/transform"
	"github.com/openmined/appsync/internal/snapi"
)

// PushOptions controls a push.
type PushOptions struct {
	Targets
	ScopeSwap bool
	UpdateSet string // name of an update set to create and make current first
}

// Push builds the targeted source files and uploads them, one result per record.
func (c *Client) Push(ctx context.Context, opts PushOptions) ([]sync.Result, error) {
	if err := c.CheckScope(ctx, opts.ScopeSwap); err != nil {
		return nil, err
	}
	if _, err := c.manifest.Current(); err != nil {
		return nil, err
	}
	if opts.UpdateSet != "" {
		if _, err := c.CreateUpdateSet(ctx, opts.UpdateSet); err != nil {
			return nil, err
		}
	}

	paths, err := c.ResolveTargets(ctx, opts.Targets, c.workspace.SourceDir)
	if err != nil {
		return nil, err
	}
	recs, err := c.records(paths, c.workspace.SourceDir)
	if err != nil {
		return nil, err
	}
	slog.Info("push", "files", len(paths), "records", len(recs))
	if len(recs) == 0 {
		return nil, nil
	}

	return c.pusher(c.sourceBuilder()).Push(ctx, recs), nil
}

// Build renders the targeted source files into the build directory.
func (c *Client) Build(ctx context.Context, t Targets) ([]sync.Result, error) {
	if _, err := c.manifest.Current(); err != nil {
		return nil, err
	}

	paths, err := c.ResolveTargets(ctx, t, c.workspace.SourceDir)
	if err != nil {
		return nil, err
	}
	recs, err := c.records(paths, c.workspace.SourceDir)
	if err != nil {
		return nil, err
	}
	slog.Info("build", "files", len(paths), "records", len(recs))
	if len(recs) == 0 {
		return nil, nil
	}

	return c.sourceBuilder().BuildRecords(ctx, recs), nil
}

// Deploy uploads the build directory as is. When the diff file lists changed files only
// those are deployed.
func (c *Client) Deploy(ctx context.Context, scopeSwap bool) ([]sync.Result, error) {
	if err := c.CheckScope(ctx, scopeSwap); err != nil {
		return nil, err
	}
	if _, err := c.manifest.Current(); err != nil {
		return nil, err
	}

	paths, err := c.deployPaths()
	if err != nil {
		return nil, err
	}
	recs, err := c.records(paths, c.workspace.BuildDir)
	if err != nil {
		return nil, err
	}
	slog.Info("deploy", "files", len(paths), "records", len(recs))
	if len(recs) == 0 {
		return nil, nil
	}

	builder := sync.NewBuilder(transform.NewPassthrough(c.fs), c.fs, c.workspace.BuildDir, c.workspace.BuildDir)
	return c.pusher(builder).Push(ctx, recs), nil
}

func (c *Client) deployPaths() ([]string, error) {
	diff, err := manifest.LoadDiffFile(c.workspace.DiffPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read diff file: %w", err)
	}
	if len(diff.Changed) == 0 {
		return c.listFiles(c.workspace.BuildDir)
	}

	paths := make([]string, 0, len(diff.Changed))
	for _, p := range diff.Changed {
		paths = append(paths, c.workspace.AbsPath(p))
	}
	return paths, nil
}

// Status summarizes the session and the local tree.
type Status struct {
	Instance      string
	User          string
	SessionScope  string
	ManifestScope string
	Tables        int
	Records       int
	MissingFiles  int
}

// Status reports the session scope and how the local tree compares to the manifest.
func (c *Client) Status(ctx context.Context) (*Status, error) {
	st := &Status{Instance: c.instance, User: c.user}

	session, err := snapi.CurrentScope(ctx, c.remote, c.user)
	if err != nil {
		return nil, fmt.Errorf("failed to read session scope: %w", err)
	}
	st.SessionScope = session.Scope

	m, err := c.manifest.Current()
	if err != nil {
		return st, err
	}
	st.ManifestScope = m.Scope
	st.Tables = len(m.Tables)
	st.Records = m.RecordCount()

	missing, err := sync.NewMissingFileResolver(c.fs, c.workspace.SourceDir).FindMissing(ctx, m)
	if err != nil {
		return st, err
	}
	st.MissingFiles = missing.Count()
	return st, nil
}
