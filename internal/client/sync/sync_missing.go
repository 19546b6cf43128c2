package sync

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/openmined/appsync/internal/client/manifest"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
)

// MissingFiles maps table -> record sys_id -> files absent from the local tree.
type MissingFiles map[string]map[string][]manifest.File

func (m MissingFiles) add(table, sysID string, files ...manifest.File) {
	if len(files) == 0 {
		return
	}
	if m[table] == nil {
		m[table] = make(map[string][]manifest.File)
	}
	m[table][sysID] = append(m[table][sysID], files...)
}

// Count returns the number of missing files.
func (m MissingFiles) Count() int {
	n := 0
	for _, records := range m {
		for _, files := range records {
			n += len(files)
		}
	}
	return n
}

// MissingFileResolver diffs a manifest against the files under the source directory.
type MissingFileResolver struct {
	fs        afero.Fs
	sourceDir string
}

func NewMissingFileResolver(fs afero.Fs, sourceDir string) *MissingFileResolver {
	return &MissingFileResolver{fs: fs, sourceDir: sourceDir}
}

// FindMissing returns every manifest file that has no local counterpart. Files are matched
// on their base name so that any extension satisfies the check.
func (r *MissingFileResolver) FindMissing(ctx context.Context, m *manifest.Manifest) (MissingFiles, error) {
	missing := make(MissingFiles)
	var mu sync.Mutex
	collect := func(table, sysID string, files []manifest.File) {
		mu.Lock()
		defer mu.Unlock()
		missing.add(table, sysID, files...)
	}

	g, ctx := errgroup.WithContext(ctx)
	for tableName, entry := range m.Tables {
		if entry == nil {
			continue
		}
		g.Go(func() error {
			return r.checkTable(ctx, tableName, entry, collect)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return missing, nil
}

func (r *MissingFileResolver) checkTable(ctx context.Context, table string, entry *manifest.TableEntry, collect func(string, string, []manifest.File)) error {
	tableDir := filepath.Join(r.sourceDir, table)
	exists, err := afero.DirExists(r.fs, tableDir)
	if err != nil {
		return fmt.Errorf("stat %s: %w", tableDir, err)
	}
	if !exists {
		for _, rec := range entry.Records {
			if rec != nil {
				collect(table, rec.SysID, rec.Files)
			}
		}
		return nil
	}

	g, ctx := errgroup.WithContext(ctx)
	for recordName, rec := range entry.Records {
		if rec == nil {
			continue
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			files, err := r.missingRecordFiles(filepath.Join(tableDir, recordName), rec.Files)
			if err != nil {
				return err
			}
			collect(table, rec.SysID, files)
			return nil
		})
	}
	return g.Wait()
}

func (r *MissingFileResolver) missingRecordFiles(recordDir string, files []manifest.File) ([]manifest.File, error) {
	exists, err := afero.DirExists(r.fs, recordDir)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", recordDir, err)
	}
	if !exists {
		return files, nil
	}

	entries, err := afero.ReadDir(r.fs, recordDir)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", recordDir, err)
	}

	var missing []manifest.File
	for _, f := range files {
		found := false
		for _, entry := range entries {
			if !entry.IsDir() && matchesBaseName(entry.Name(), f.Name) {
				found = true
				break
			}
		}
		if !found {
			missing = append(missing, f)
		}
	}
	return missing, nil
}

func matchesBaseName(entry, name string) bool {
	return entry == name || strings.HasPrefix(entry, name+".")
}
