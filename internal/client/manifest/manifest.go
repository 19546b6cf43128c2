package manifest

import (
	"slices"
)

// Manifest is the last observed state of the remote application.
type Manifest struct {
	Scope  string                 `json:"scope"`
	Tables map[string]*TableEntry `json:"tables"`
}

type TableEntry struct {
	Records map[string]*Record `json:"records"`
}

// Record is one remote record, keyed by its on-disk name in TableEntry.Records.
type Record struct {
	SysID   string `json:"sys_id"`
	Name    string `json:"name"`
	Files   []File `json:"files"`
	Version string `json:"version,omitempty"`
}

// File is one content field of a record. Content is only set while downloading and is
// never persisted.
type File struct {
	Name    string  `json:"name"`
	Type    string  `json:"type"`
	Content *string `json:"content,omitempty"`
}

func New(scope string) *Manifest {
	return &Manifest{Scope: scope, Tables: make(map[string]*TableEntry)}
}

// Text returns the content of the file and whether it was set.
func (f File) Text() (string, bool) {
	if f.Content == nil {
		return "", false
	}
	return *f.Content, true
}

// WithContent returns a copy of the file carrying content.
func (f File) WithContent(content string) File {
	f.Content = &content
	return f
}

// Table returns the entry for table, creating it when missing.
func (m *Manifest) Table(table string) *TableEntry {
	if m.Tables == nil {
		m.Tables = make(map[string]*TableEntry)
	}
	entry, ok := m.Tables[table]
	if !ok {
		entry = &TableEntry{Records: make(map[string]*Record)}
		m.Tables[table] = entry
	}
	if entry.Records == nil {
		entry.Records = make(map[string]*Record)
	}
	return entry
}

// Record looks up a record by table and on-disk name.
func (m *Manifest) Record(table, name string) (*Record, bool) {
	entry, ok := m.Tables[table]
	if !ok || entry == nil {
		return nil, false
	}
	rec, ok := entry.Records[name]
	return rec, ok && rec != nil
}

// RecordBySysID scans the records of table for sysID.
func (m *Manifest) RecordBySysID(table, sysID string) (string, *Record, bool) {
	entry, ok := m.Tables[table]
	if !ok || entry == nil {
		return "", nil, false
	}
	for name, rec := range entry.Records {
		if rec != nil && rec.SysID == sysID {
			return name, rec, true
		}
	}
	return "", nil, false
}

// TableNames returns the table names in sorted order.
func (m *Manifest) TableNames() []string {
	names := make([]string, 0, len(m.Tables))
	for name := range m.Tables {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// RecordCount returns the number of records across all tables.
func (m *Manifest) RecordCount() int {
	n := 0
	for _, entry := range m.Tables {
		if entry != nil {
			n += len(entry.Records)
		}
	}
	return n
}

// Clone returns a deep copy, including file content.
func (m *Manifest) Clone() *Manifest {
	return m.copy(true)
}

// Stripped returns a deep copy without file content.
func (m *Manifest) Stripped() *Manifest {
	return m.copy(false)
}

func (m *Manifest) copy(withContent bool) *Manifest {
	if m == nil {
		return nil
	}
	out := New(m.Scope)
	for tableName, entry := range m.Tables {
		if entry == nil {
			continue
		}
		dst := out.Table(tableName)
		for name, rec := range entry.Records {
			if rec == nil {
				continue
			}
			dst.Records[name] = rec.copy(withContent)
		}
	}
	return out
}

func (r *Record) copy(withContent bool) *Record {
	out := *r
	out.Files = make([]File, len(r.Files))
	for i, f := range r.Files {
		out.Files[i] = File{Name: f.Name, Type: f.Type}
		if withContent && f.Content != nil {
			out.Files[i] = out.Files[i].WithContent(*f.Content)
		}
	}
	return &out
}

// FileNames returns the names of the record's files.
func (r *Record) FileNames() []string {
	names := make([]string, len(r.Files))
	for i, f := range r.Files {
		names[i] = f.Name
	}
	return names
}

// File looks up a record file by name.
func (r *Record) File(name string) (File, bool) {
	for _, f := range r.Files {
		if f.Name == name {
			return f, true
		}
	}
	return File{}, false
}
