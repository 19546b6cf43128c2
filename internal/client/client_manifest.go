package client

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	gosync "sync"
	"time"

	"github.com/openmined/appsync/internal/client/config"
	"github.com/openmined/appsync/internal/client/manifest"
	"github.com/openmined/appsync/internal/snapi"
	"golang.org/x/sync/errgroup"
)

// FetchManifest builds a manifest of every configured table in scope. With content set the
// file fields are fetched too and attached to the manifest files.
func (c *Client) FetchManifest(ctx context.Context, scope string, withContent bool) (*manifest.Manifest, error) {
	start := time.Now()
	m := manifest.New(scope)
	var mu gosync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	for _, table := range c.project.Tables() {
		if table == snapi.TableATFStep {
			slog.Warn("skipping table", "table", table, "reason", "test steps are not synced")
			continue
		}
		files := c.project.TableFiles(table)
		if len(files) == 0 {
			slog.Debug("skipping table", "table", table, "reason", "no files configured")
			continue
		}

		g.Go(func() error {
			entry, err := c.fetchTable(ctx, scope, table, files, withContent)
			if err != nil {
				return fmt.Errorf("fetch %s: %w", table, err)
			}
			if len(entry.Records) == 0 {
				return nil
			}
			mu.Lock()
			m.Tables[table] = entry
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if err := c.attachVersions(ctx, m); err != nil {
		return nil, err
	}

	slog.Info("manifest fetched", "scope", scope, "tables", len(m.Tables), "records", m.RecordCount(), "took", time.Since(start).Round(time.Millisecond))
	return m, nil
}

func (c *Client) fetchTable(ctx context.Context, scope, table string, files []config.FileOption, withContent bool) (*manifest.TableEntry, error) {
	opts := c.project.Includes[table]

	filter := snapi.Where(snapi.Eq("sys_scope.scope", scope))
	if opts.Query != "" {
		filter = filter.And(snapi.Encoded(opts.Query))
	}

	fields := []string{"name", "sys_id"}
	if opts.DisplayField != "" {
		fields = append(fields, opts.DisplayField)
	}
	fields = append(fields, opts.DifferentiatorField...)
	if withContent {
		for _, f := range files {
			fields = append(fields, f.Name)
		}
	}

	rows, err := c.remote.Query(ctx, table, filter, fields...)
	if err != nil {
		return nil, err
	}

	entry := &manifest.TableEntry{Records: make(map[string]*manifest.Record, len(rows))}
	for _, row := range rows {
		sysID := row["sys_id"]
		name := manifest.RecordName(row, opts.DisplayField, opts.DifferentiatorField)
		if _, taken := entry.Records[name]; taken {
			slog.Warn("duplicate record name", "table", table, "name", name, "sysId", sysID)
			name = fmt.Sprintf("%s (%s)", name, sysID)
		}

		rec := &manifest.Record{SysID: sysID, Name: name}
		for _, f := range files {
			file := manifest.File{Name: f.Name, Type: f.Type}
			if withContent {
				file = file.WithContent(row[f.Name])
			}
			rec.Files = append(rec.Files, file)
		}
		entry.Records[name] = rec
	}
	return entry, nil
}

func (c *Client) attachVersions(ctx context.Context, m *manifest.Manifest) error {
	byName := make(map[string]*manifest.Record, m.RecordCount())
	for _, table := range m.TableNames() {
		for _, rec := range m.Tables[table].Records {
			byName[snapi.VersionName(table, rec.SysID)] = rec
		}
	}
	if len(byName) == 0 {
		return nil
	}

	ids, err := snapi.CurrentVersionIDs(ctx, c.remote, slices.Sorted(maps.Keys(byName)))
	if err != nil {
		return fmt.Errorf("fetch versions: %w", err)
	}
	for name, id := range ids {
		if rec, ok := byName[name]; ok {
			rec.Version = id
		}
	}
	return nil
}

// Download replaces the manifest with a fresh one for scope and overwrites every local file
// with the remote content. It returns the number of files written.
func (c *Client) Download(ctx context.Context, scope string) (int, error) {
	m, err := c.FetchManifest(ctx, scope, true)
	if err != nil {
		return 0, err
	}
	if err := c.workspace.Setup(); err != nil {
		return 0, err
	}

	written, err := c.writer().WriteTables(m.Tables, true)
	if err != nil {
		return written, fmt.Errorf("failed to write files: %w", err)
	}
	if err := c.manifest.Save(m); err != nil {
		return written, fmt.Errorf("failed to save manifest: %w", err)
	}
	return written, nil
}

// Refresh fetches the manifest of the tracked scope again and downloads files that are
// missing locally. With currentUpdateSet only records changed in the user's current update
// set are refreshed; the rest of the manifest is kept as is.
func (c *Client) Refresh(ctx context.Context, currentUpdateSet bool) (int, error) {
	current, err := c.manifest.Current()
	if err != nil {
		return 0, err
	}

	fresh, err := c.FetchManifest(ctx, current.Scope, false)
	if err != nil {
		return 0, err
	}

	next := fresh
	if currentUpdateSet {
		next, err = c.mergeUpdateSet(ctx, current, fresh)
		if err != nil {
			return 0, err
		}
	}

	if err := c.manifest.Save(next); err != nil {
		return 0, fmt.Errorf("failed to save manifest: %w", err)
	}
	return c.syncMissing(ctx, next)
}

func (c *Client) mergeUpdateSet(ctx context.Context, current, fresh *manifest.Manifest) (*manifest.Manifest, error) {
	userID, err := snapi.UserSysID(ctx, c.remote, c.user)
	if err != nil {
		return nil, err
	}
	changes, err := snapi.CurrentUpdateSetChanges(ctx, c.remote, userID, c.project.UpdateSetChangeTypes)
	if err != nil {
		return nil, err
	}

	merged := current.Clone()
	n := 0
	for table, ids := range changes {
		for _, sysID := range ids {
			name, rec, ok := fresh.RecordBySysID(table, sysID)
			if !ok {
				continue
			}
			if oldName, _, ok := merged.RecordBySysID(table, sysID); ok {
				delete(merged.Tables[table].Records, oldName)
			}
			merged.Table(table).Records[name] = rec
			n++
		}
	}
	slog.Info("update set records merged", "records", n)
	return merged, nil
}
