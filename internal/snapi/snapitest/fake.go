// Package snapitest provides an in-memory snapi.Store for tests.
package snapitest

import (
	"context"
	"fmt"
	"maps"
	"net/http"
	"sync"

	"github.com/openmined/appsync/internal/snapi"
)

// UpdateCall records one Update invocation.
type UpdateCall struct {
	Table  string
	ID     string
	Fields map[string]string
}

// Store keeps rows per table and records every update.
type Store struct {
	mu      sync.Mutex
	tables  map[string][]snapi.Row
	updates []UpdateCall
	queries int
	nextID  int

	// UpdateFunc, when set, decides the outcome of Update.
	UpdateFunc func(call UpdateCall) (*snapi.Response, error)
	// QueryErr, when set, is returned by every Query.
	QueryErr error
}

var _ snapi.Store = (*Store)(nil)

func New() *Store {
	return &Store{tables: make(map[string][]snapi.Row)}
}

// Add inserts rows into table.
func (s *Store) Add(table string, rows ...snapi.Row) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range rows {
		s.tables[table] = append(s.tables[table], maps.Clone(r))
	}
}

// Remove deletes the rows of table matching filter and returns how many were removed.
func (s *Store) Remove(table string, filter snapi.Filter) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.tables[table][:0]
	removed := 0
	for _, row := range s.tables[table] {
		if filter.Match(row) {
			removed++
			continue
		}
		kept = append(kept, row)
	}
	s.tables[table] = kept
	return removed
}

// Rows returns a copy of the rows of table.
func (s *Store) Rows(table string) []snapi.Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]snapi.Row, 0, len(s.tables[table]))
	for _, r := range s.tables[table] {
		out = append(out, maps.Clone(r))
	}
	return out
}

// Updates returns the recorded update calls in order.
func (s *Store) Updates() []UpdateCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]UpdateCall(nil), s.updates...)
}

// Queries returns the number of Query calls served.
func (s *Store) Queries() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queries
}

func (s *Store) Query(ctx context.Context, table string, filter snapi.Filter, fields ...string) ([]snapi.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries++
	if s.QueryErr != nil {
		return nil, s.QueryErr
	}

	var out []snapi.Row
	for _, row := range s.tables[table] {
		if !filter.Match(row) {
			continue
		}
		if len(fields) == 0 {
			out = append(out, maps.Clone(row))
			continue
		}
		proj := make(snapi.Row, len(fields))
		for _, f := range fields {
			if v, ok := row[f]; ok {
				proj[f] = v
			}
			if v, ok := row[f+".display"]; ok {
				proj[f+".display"] = v
			}
		}
		out = append(out, proj)
	}
	return out, nil
}

func (s *Store) Update(ctx context.Context, table, id string, fields map[string]string) (*snapi.Response, error) {
	call := UpdateCall{Table: table, ID: id, Fields: maps.Clone(fields)}

	s.mu.Lock()
	s.updates = append(s.updates, call)
	fn := s.UpdateFunc
	s.mu.Unlock()

	if fn != nil {
		return fn(call)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range s.tables[table] {
		if row["sys_id"] == id {
			maps.Copy(row, fields)
			return &snapi.Response{Status: http.StatusOK}, nil
		}
	}
	return &snapi.Response{Status: http.StatusNotFound}, nil
}

func (s *Store) Create(ctx context.Context, table string, fields map[string]string) (snapi.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	row := snapi.Row(maps.Clone(fields))
	if row["sys_id"] == "" {
		row["sys_id"] = fmt.Sprintf("%s%04d", table, s.nextID)
	}
	s.tables[table] = append(s.tables[table], row)
	return maps.Clone(row), nil
}

func (s *Store) Upsert(ctx context.Context, table string, filter snapi.Filter, fields map[string]string) error {
	s.mu.Lock()
	for _, row := range s.tables[table] {
		if filter.Match(row) {
			maps.Copy(row, fields)
			s.mu.Unlock()
			return nil
		}
	}
	s.mu.Unlock()

	record := maps.Clone(fields)
	for _, c := range filter {
		if c.Op == snapi.OpEq {
			record[c.Field] = c.Values[0]
		}
	}
	_, err := s.Create(ctx, table, record)
	return err
}
