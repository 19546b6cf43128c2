package sync

import (
	"path/filepath"
	"strings"

	"github.com/openmined/appsync/internal/client/manifest"
	"github.com/openmined/appsync/internal/utils"
)

// ContextResolver derives FileContexts from paths laid out as root/table/record/field.ext
type ContextResolver struct {
	roots    []string
	manifest *manifest.Manifest
}

// NewContextResolver resolves paths under any of roots against m.
func NewContextResolver(m *manifest.Manifest, roots ...string) *ContextResolver {
	return &ContextResolver{roots: roots, manifest: m}
}

// Resolve returns the context of path, or false when the path is not a tracked record field.
func (r *ContextResolver) Resolve(path string) (*FileContext, bool) {
	for _, root := range r.roots {
		rel, ok := utils.RelativeTo(root, path)
		if !ok {
			continue
		}
		if fc, ok := r.resolveRel(path, rel); ok {
			return fc, true
		}
	}
	return nil, false
}

// ResolveAll resolves every path, dropping those that are not record fields.
func (r *ContextResolver) ResolveAll(paths []string) []*FileContext {
	ctxs := make([]*FileContext, 0, len(paths))
	for _, p := range paths {
		if fc, ok := r.Resolve(p); ok {
			ctxs = append(ctxs, fc)
		}
	}
	return ctxs
}

func (r *ContextResolver) resolveRel(path, rel string) (*FileContext, bool) {
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) != 3 {
		return nil, false
	}
	table, recordName, fileName := parts[0], parts[1], parts[2]

	field, ext, _ := strings.Cut(fileName, ".")
	if field == "" {
		return nil, false
	}

	rec, ok := r.manifest.Record(table, recordName)
	if !ok {
		return nil, false
	}
	file, ok := rec.File(field)
	if !ok {
		return nil, false
	}

	return &FileContext{
		TableName:   table,
		RecordName:  recordName,
		SysID:       rec.SysID,
		TargetField: field,
		FilePath:    path,
		Ext:         ext,
		Type:        file.Type,
		Version:     rec.Version,
	}, true
}
