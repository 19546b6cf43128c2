package snapi

import (
	"context"
	"fmt"
	"strings"
)

// Row is one record returned by a table query. Reference and choice fields carry their raw
// value under the field name and their display value under "<field>.display".
type Row map[string]string

// Display returns the display value of a field, falling back to its raw value.
func (r Row) Display(field string) string {
	if v, ok := r[field+displaySuffix]; ok && v != "" {
		return v
	}
	return r[field]
}

const displaySuffix = ".display"

// Response is the outcome of a completed update request.
type Response struct {
	Status int
	Body   []byte
}

// OK reports whether the status is in the 2xx range.
func (r *Response) OK() bool {
	return r != nil && r.Status >= 200 && r.Status <= 299
}

// Store is a keyed record store on the remote instance.
type Store interface {
	// Query returns the rows of table matching filter, restricted to fields (all when empty).
	Query(ctx context.Context, table string, filter Filter, fields ...string) ([]Row, error)
	// Upsert updates the first row matching filter, or creates one from filter and fields.
	Upsert(ctx context.Context, table string, filter Filter, fields map[string]string) error
	// Update patches the record id. Transport failures and 429/5xx statuses are returned as
	// errors; any other status is returned in the Response.
	Update(ctx context.Context, table, id string, fields map[string]string) (*Response, error)
	// Create inserts a record and returns it.
	Create(ctx context.Context, table string, fields map[string]string) (Row, error)
}

// Operators supported in a Filter.
const (
	OpEq    = "="
	OpNotEq = "!="
	OpIn    = "IN"
	opRaw   = "raw"
)

// Condition is one clause of a Filter.
type Condition struct {
	Field  string
	Op     string
	Values []string
}

// Filter is a conjunction of conditions.
type Filter []Condition

func Where(conds ...Condition) Filter {
	return Filter(conds)
}

func Eq(field, value string) Condition {
	return Condition{Field: field, Op: OpEq, Values: []string{value}}
}

func NotEq(field, value string) Condition {
	return Condition{Field: field, Op: OpNotEq, Values: []string{value}}
}

func In(field string, values ...string) Condition {
	return Condition{Field: field, Op: OpIn, Values: values}
}

// Encoded appends an already encoded query fragment.
func Encoded(query string) Condition {
	return Condition{Op: opRaw, Values: []string{query}}
}

// And returns a new filter with conds appended.
func (f Filter) And(conds ...Condition) Filter {
	out := make(Filter, 0, len(f)+len(conds))
	out = append(out, f...)
	return append(out, conds...)
}

// Encode renders the filter as an encoded query: `a=1^b!=2^cINx,y`.
func (f Filter) Encode() string {
	parts := make([]string, 0, len(f))
	for _, c := range f {
		switch c.Op {
		case opRaw:
			if q := strings.TrimSpace(strings.Join(c.Values, "")); q != "" {
				parts = append(parts, q)
			}
		case OpIn:
			parts = append(parts, c.Field+OpIn+strings.Join(c.Values, ","))
		default:
			parts = append(parts, c.Field+c.Op+strings.Join(c.Values, ""))
		}
	}
	return strings.Join(parts, "^")
}

// Match evaluates the filter against a row. Encoded fragments are not interpreted and always
// match.
func (f Filter) Match(row Row) bool {
	for _, c := range f {
		v := row[c.Field]
		switch c.Op {
		case OpEq:
			if v != c.Values[0] {
				return false
			}
		case OpNotEq:
			if v == c.Values[0] {
				return false
			}
		case OpIn:
			found := false
			for _, want := range c.Values {
				if v == want {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
	}
	return true
}

func (f Filter) String() string {
	return f.Encode()
}

func (c Condition) String() string {
	return fmt.Sprintf("%s%s%s", c.Field, c.Op, strings.Join(c.Values, ","))
}
