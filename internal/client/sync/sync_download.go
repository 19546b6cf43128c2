package sync

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/openmined/appsync/internal/client/manifest"
	"github.com/openmined/appsync/internal/snapi"
	"golang.org/x/sync/errgroup"
)

// Downloader fetches the content of missing files from the remote instance.
type Downloader struct {
	remote snapi.Store
}

func NewDownloader(remote snapi.Store) *Downloader {
	return &Downloader{remote: remote}
}

// DownloadMissing fetches the missing files with one query per table and returns them keyed
// by table and record name with content attached. Rows without a matching manifest record are
// skipped, as are records that end up with no files.
func (d *Downloader) DownloadMissing(ctx context.Context, m *manifest.Manifest, missing MissingFiles) (map[string]*manifest.TableEntry, error) {
	result := make(map[string]*manifest.TableEntry, len(missing))
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	for table, records := range missing {
		if len(records) == 0 {
			continue
		}
		g.Go(func() error {
			entry, err := d.downloadTable(ctx, m, table, records)
			if err != nil {
				return err
			}
			if len(entry.Records) == 0 {
				return nil
			}
			mu.Lock()
			result[table] = entry
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return result, nil
}

func (d *Downloader) downloadTable(ctx context.Context, m *manifest.Manifest, table string, records map[string][]manifest.File) (*manifest.TableEntry, error) {
	ids := slices.Sorted(maps.Keys(records))

	fieldSet := map[string]struct{}{"sys_id": {}}
	for _, files := range records {
		for _, f := range files {
			fieldSet[f.Name] = struct{}{}
		}
	}
	fields := slices.Sorted(maps.Keys(fieldSet))

	rows, err := d.remote.Query(ctx, table, snapi.Where(snapi.In("sys_id", ids...)), fields...)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", table, err)
	}

	entry := &manifest.TableEntry{Records: make(map[string]*manifest.Record)}
	for _, row := range rows {
		sysID := row["sys_id"]
		name, rec, ok := m.RecordBySysID(table, sysID)
		if !ok {
			slog.Debug("download skip unknown record", "table", table, "sysId", sysID)
			continue
		}

		var files []manifest.File
		for _, f := range records[sysID] {
			content, ok := row[f.Name]
			if !ok {
				continue
			}
			files = append(files, manifest.File{Name: f.Name, Type: f.Type}.WithContent(content))
		}
		if len(files) == 0 {
			continue
		}

		entry.Records[name] = &manifest.Record{
			SysID:   rec.SysID,
			Name:    name,
			Files:   files,
			Version: rec.Version,
		}
	}
	return entry, nil
}
