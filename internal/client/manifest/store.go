package manifest

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/gofrs/flock"
	"github.com/goccy/go-json"
	"github.com/openmined/appsync/internal/utils"
)

var (
	ErrNotFound         = errors.New("manifest: not found")
	ErrNoManifestLoaded = errors.New("manifest: no manifest loaded")
	ErrRecordNotTracked = errors.New("manifest: record not tracked")
)

// Store owns the manifest of a project.
type Store interface {
	// Load reads the persisted manifest and makes it current. Returns ErrNotFound when none
	// has been persisted.
	Load() (*Manifest, error)
	// Save replaces the current manifest and persists it without file content.
	Save(m *Manifest) error
	// Current returns a snapshot of the current manifest, or ErrNoManifestLoaded.
	Current() (*Manifest, error)
	// UpdateRecordVersion sets the tracked version of the record with sysID and persists.
	UpdateRecordVersion(table, sysID, version string) error
}

// state holds the in-memory manifest. Every mutation runs under mu together with its
// persist step so concurrent version updates cannot lose each other.
type state struct {
	mu      sync.Mutex
	current *Manifest
	persist func(*Manifest) error
}

func (s *state) Current() (*Manifest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil, ErrNoManifestLoaded
	}
	return s.current.Clone(), nil
}

func (s *state) Save(m *Manifest) error {
	if m == nil {
		return errors.New("manifest: nil manifest")
	}
	stripped := m.Stripped()

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.persist(stripped); err != nil {
		return err
	}
	s.current = stripped
	return nil
}

func (s *state) UpdateRecordVersion(table, sysID, version string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return ErrNoManifestLoaded
	}

	_, rec, ok := s.current.RecordBySysID(table, sysID)
	if !ok {
		return fmt.Errorf("%s/%s: %w", table, sysID, ErrRecordNotTracked)
	}
	prev := rec.Version
	rec.Version = version

	if err := s.persist(s.current); err != nil {
		rec.Version = prev
		return err
	}
	return nil
}

// FileStore persists the manifest as a JSON file.
type FileStore struct {
	state
	path  string
	flock *flock.Flock
}

var _ Store = (*FileStore)(nil)

func NewFileStore(path string) *FileStore {
	fs := &FileStore{
		path:  path,
		flock: flock.New(path + ".lock"),
	}
	fs.persist = fs.write
	return fs
}

// Path returns the manifest file path
func (f *FileStore) Path() string {
	return f.path
}

func (f *FileStore) Load() (*Manifest, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", f.path, err)
	}
	if m.Tables == nil {
		m.Tables = make(map[string]*TableEntry)
	}

	f.mu.Lock()
	f.current = m.Stripped()
	f.mu.Unlock()

	slog.Debug("manifest loaded", "path", f.path, "scope", m.Scope, "records", m.RecordCount())
	return m.Clone(), nil
}

func (f *FileStore) write(m *Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}

	if err := utils.EnsureParent(f.path); err != nil {
		return fmt.Errorf("manifest dir: %w", err)
	}

	if err := f.flock.Lock(); err != nil {
		return fmt.Errorf("lock manifest: %w", err)
	}
	defer f.flock.Unlock()

	if err := utils.WriteFileAtomic(f.path, data, 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

// MemStore keeps the manifest in memory only.
type MemStore struct {
	state
	saved *Manifest
	saves int
}

var _ Store = (*MemStore)(nil)

// NewMemStore returns a store whose persisted manifest is m (may be nil).
func NewMemStore(m *Manifest) *MemStore {
	ms := &MemStore{}
	if m != nil {
		ms.saved = m.Stripped()
	}
	ms.persist = func(m *Manifest) error {
		ms.saved = m.Stripped()
		ms.saves++
		return nil
	}
	return ms
}

func (m *MemStore) Load() (*Manifest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saved == nil {
		return nil, ErrNotFound
	}
	m.current = m.saved.Stripped()
	return m.current.Clone(), nil
}

// Saved returns a copy of the last persisted manifest and the number of writes.
func (m *MemStore) Saved() (*Manifest, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saved.Clone(), m.saves
}
