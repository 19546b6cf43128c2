package sync

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/openmined/appsync/internal/client/manifest"
	"github.com/spf13/afero"
)

// Writer materializes record files under the source directory.
type Writer struct {
	fs        afero.Fs
	sourceDir string
}

func NewWriter(fs afero.Fs, sourceDir string) *Writer {
	return &Writer{fs: fs, sourceDir: sourceDir}
}

// FilePath returns source/table/record/file.type
func (w *Writer) FilePath(table, recordName string, f manifest.File) string {
	return filepath.Join(w.sourceDir, table, recordName, f.Name+"."+f.Type)
}

// WriteTables writes every file that carries content. Existing files are left untouched
// unless overwrite is set. It returns the number of files written.
func (w *Writer) WriteTables(tables map[string]*manifest.TableEntry, overwrite bool) (int, error) {
	var errs []error
	written := 0
	var bytes uint64

	for table, entry := range tables {
		if entry == nil {
			continue
		}
		for recordName, rec := range entry.Records {
			if rec == nil {
				continue
			}
			for _, f := range rec.Files {
				content, ok := f.Text()
				if !ok {
					continue
				}
				path := w.FilePath(table, recordName, f)
				ok, err := w.writeFile(path, content, overwrite)
				if err != nil {
					errs = append(errs, err)
					continue
				}
				if ok {
					written++
					bytes += uint64(len(content))
				}
			}
		}
	}

	slog.Info("files written", "count", written, "size", humanize.Bytes(bytes))
	return written, errors.Join(errs...)
}

func (w *Writer) writeFile(path, content string, overwrite bool) (bool, error) {
	if !overwrite {
		exists, err := afero.Exists(w.fs, path)
		if err != nil {
			return false, fmt.Errorf("stat %s: %w", path, err)
		}
		if exists {
			return false, nil
		}
	}

	if err := w.fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, fmt.Errorf("mkdir %s: %w", filepath.Dir(path), err)
	}
	if err := afero.WriteFile(w.fs, path, []byte(content), os.FileMode(0o644)); err != nil {
		return false, fmt.Errorf("write %s: %w", path, err)
	}
	return true, nil
}
