package sync

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/openmined/appsync/internal/utils"
	"github.com/spf13/afero"
)

const defaultBuildFailure = "Failed to build!"

// Transformer renders the remote content of a source file.
type Transformer interface {
	Render(ctx context.Context, path string) (string, error)
}

// FieldFailure is the failure of one field of a record build.
type FieldFailure struct {
	Index int
	Field string
	Err   error
}

// BuildError aggregates every field failure of a record build.
type BuildError struct {
	Failures []FieldFailure
}

func (e *BuildError) Error() string {
	var sb strings.Builder
	for _, f := range e.Failures {
		msg := defaultBuildFailure
		if f.Err != nil && f.Err.Error() != "" {
			msg = f.Err.Error()
		}
		fmt.Fprintf(&sb, "\n%d (%s):\n%s", f.Index, f.Field, msg)
	}
	return sb.String()
}

func (e *BuildError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		errs = append(errs, f.Err)
	}
	return errs
}

// Builder renders records through a Transformer and writes build output.
type Builder struct {
	transformer Transformer
	fs          afero.Fs
	sourceDir   string
	buildDir    string
}

func NewBuilder(t Transformer, fs afero.Fs, sourceDir, buildDir string) *Builder {
	return &Builder{transformer: t, fs: fs, sourceDir: sourceDir, buildDir: buildDir}
}

// Build renders every field of rec concurrently. Any failing field fails the whole record.
func (b *Builder) Build(ctx context.Context, rec *BuildableRecord) (map[string]string, error) {
	fields := rec.FieldNames()
	contents := make([]string, len(fields))
	errs := make([]error, len(fields))

	var wg sync.WaitGroup
	for i, field := range fields {
		wg.Add(1)
		go func() {
			defer wg.Done()
			contents[i], errs[i] = b.transformer.Render(ctx, rec.Fields[field].FilePath)
		}()
	}
	wg.Wait()

	var buildErr BuildError
	for i, err := range errs {
		if err != nil {
			buildErr.Failures = append(buildErr.Failures, FieldFailure{Index: i, Field: fields[i], Err: err})
		}
	}
	if len(buildErr.Failures) > 0 {
		return nil, &buildErr
	}

	built := make(map[string]string, len(fields))
	for i, field := range fields {
		built[field] = contents[i]
	}
	return built, nil
}

// BuildPath maps a source file to its build output: the path relative to the source
// directory, under the build directory, with everything after the first dot replaced by
// the field's type.
func (b *Builder) BuildPath(fc *FileContext) (string, error) {
	rel, ok := utils.RelativeTo(b.sourceDir, fc.FilePath)
	if !ok {
		return "", fmt.Errorf("%s is outside the source directory", fc.FilePath)
	}
	base, _, _ := strings.Cut(filepath.Base(rel), ".")
	ext := fc.Type
	if ext == "" {
		ext = fc.Ext
	}
	return filepath.Join(b.buildDir, filepath.Dir(rel), base+"."+ext), nil
}

// WriteBuild writes the rendered fields of rec to the build directory. Every field is
// attempted; files already written are kept when a sibling fails.
func (b *Builder) WriteBuild(rec *BuildableRecord, built map[string]string) error {
	var errs []error
	for _, field := range rec.FieldNames() {
		content, ok := built[field]
		if !ok {
			continue
		}
		path, err := b.BuildPath(rec.Fields[field])
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := b.fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			errs = append(errs, fmt.Errorf("mkdir %s: %w", filepath.Dir(path), err))
			continue
		}
		if err := afero.WriteFile(b.fs, path, []byte(content), 0o644); err != nil {
			errs = append(errs, fmt.Errorf("write %s: %w", path, err))
		}
	}
	return errors.Join(errs...)
}

// BuildRecords builds and writes every record concurrently. Results keep the input order.
func (b *Builder) BuildRecords(ctx context.Context, recs []*BuildableRecord) []Result {
	results := make([]Result, len(recs))

	var wg sync.WaitGroup
	for i, rec := range recs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = b.buildRecord(ctx, rec)
		}()
	}
	wg.Wait()
	return results
}

func (b *Builder) buildRecord(ctx context.Context, rec *BuildableRecord) Result {
	built, err := b.Build(ctx, rec)
	if err != nil {
		return Result{Record: rec, Message: rec.Summary() + " : " + err.Error()}
	}
	if err := b.WriteBuild(rec, built); err != nil {
		return Result{Record: rec, Message: rec.Summary() + " : " + err.Error()}
	}
	return Result{Record: rec, Success: true, Message: rec.Summary() + " built successfully"}
}
