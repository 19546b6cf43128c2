package sync

import (
	"fmt"
	"slices"
)

// FileContext locates one record field on disk.
type FileContext struct {
	TableName   string
	RecordName  string
	SysID       string
	TargetField string
	FilePath    string
	Ext         string // source extension without the dot
	Type        string // build file type from the manifest
	Version     string // tracked version of the record
}

// RecordKey identifies a record across tables.
func RecordKey(table, sysID string) string {
	return table + "/" + sysID
}

func (fc *FileContext) Key() string {
	return RecordKey(fc.TableName, fc.SysID)
}

func (fc *FileContext) String() string {
	return fmt.Sprintf("%s > %s > %s", fc.TableName, fc.RecordName, fc.TargetField)
}

// BuildableRecord is one record's set of local fields, built and pushed as a unit.
type BuildableRecord struct {
	Table   string
	SysID   string
	Name    string
	Fields  map[string]*FileContext
	Primary string // field whose context carries the record's summary and tracked version
}

func (r *BuildableRecord) Key() string {
	return RecordKey(r.Table, r.SysID)
}

// PrimaryField returns the context of the primary field.
func (r *BuildableRecord) PrimaryField() *FileContext {
	return r.Fields[r.Primary]
}

// Summary is the human readable name of the record, `table > name`.
func (r *BuildableRecord) Summary() string {
	return r.Table + " > " + r.Name
}

// FieldNames returns the record's field names in sorted order.
func (r *BuildableRecord) FieldNames() []string {
	names := make([]string, 0, len(r.Fields))
	for name := range r.Fields {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// GroupAppFiles collapses file contexts that share a table and sys_id into one record.
// Records are returned in order of first appearance; a later context for the same field
// replaces an earlier one.
func GroupAppFiles(ctxs []*FileContext) []*BuildableRecord {
	byKey := make(map[string]*BuildableRecord, len(ctxs))
	records := make([]*BuildableRecord, 0, len(ctxs))

	for _, fc := range ctxs {
		if fc == nil {
			continue
		}
		rec, ok := byKey[fc.Key()]
		if !ok {
			rec = &BuildableRecord{
				Table:  fc.TableName,
				SysID:  fc.SysID,
				Name:   fc.RecordName,
				Fields: make(map[string]*FileContext),
			}
			byKey[fc.Key()] = rec
			records = append(records, rec)
		}
		rec.Fields[fc.TargetField] = fc
	}

	for _, rec := range records {
		rec.Primary = rec.FieldNames()[0]
		rec.Name = rec.PrimaryField().RecordName
	}
	return records
}

// Result is the outcome of building or pushing one record.
type Result struct {
	Record  *BuildableRecord
	Success bool
	Message string
}
