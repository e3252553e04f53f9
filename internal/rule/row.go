package rule

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/bfv/edtable/internal/cast"
	"github.com/bfv/edtable/internal/source"
	"github.com/bfv/edtable/internal/store"
	"github.com/bfv/edtable/internal/uid"
)

// ErrMissingUID is returned when a transformed row carries no uid field.
var ErrMissingUID = errors.New("row has no uid field")

// CellError is a cast failure located in the source. The cell is dropped,
// the row continues.
type CellError struct {
	Source string
	Sheet  string
	Row    int
	Column int
	Header string
	Err    error
}

func (e *CellError) Error() string {
	return fmt.Sprintf("%s [%s] row %d, column %q: %v", e.Source, e.Sheet, e.Row, e.Header, e.Err)
}

func (e *CellError) Unwrap() error { return e.Err }

// MappingError is a non-empty cell whose header has no target field. It
// aborts the row.
type MappingError struct {
	Sheet  string
	Row    int
	Header string
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("[%s] row %d: header %q has no target field", e.Sheet, e.Row, e.Header)
}

// Layout holds a sheet's header and type rows. Both slices are 1-based;
// index 0 is an unused sentinel.
type Layout struct {
	Headers []string
	Tags    []string
}

// ReadLayout reads the header and type rows of sheet for r. Blank header or
// type cells fall back to the column number.
func (r *ImportRule) ReadLayout(sheet *source.Sheet) Layout {
	width := sheet.Width()
	l := Layout{Headers: make([]string, width+1), Tags: make([]string, width+1)}
	for col := 1; col <= width; col++ {
		l.Headers[col] = fallback(sheet.Cell(r.HeaderRow, col), col)
		l.Tags[col] = fallback(sheet.Cell(r.TypeRow, col), col)
	}
	return l
}

func fallback(s string, col int) string {
	if s = strings.TrimSpace(s); s != "" {
		return s
	}
	return strconv.Itoa(col)
}

// Row is one data row keyed by header in column order.
type Row struct {
	Index   int
	headers []string
	values  map[string]cast.Value
}

// Get returns the typed value under header.
func (r *Row) Get(header string) (cast.Value, bool) {
	v, ok := r.values[header]
	return v, ok
}

// Headers lists the headers present in this row in column order.
func (r *Row) Headers() []string { return r.headers }

// Len returns the number of cells present.
func (r *Row) Len() int { return len(r.headers) }

// ParseRow casts the non-empty cells of 1-based row index. Cells that fail
// to cast are reported and omitted. A cell under a header with no target
// field is kept uncast so Map can reject the row.
func (r *ImportRule) ParseRow(sheet *source.Sheet, l Layout, index int) (*Row, []*CellError) {
	row := &Row{Index: index, values: map[string]cast.Value{}}
	var failures []*CellError
	for col := 1; col < len(l.Headers); col++ {
		raw := sheet.Cell(index, col)
		if raw == "" {
			continue
		}
		header := l.Headers[col]
		if !r.mapped(header) {
			if !slices.Contains(row.headers, header) {
				row.headers = append(row.headers, header)
			}
			continue
		}
		v, err := cast.CastText(raw, l.Tags[col])
		if err != nil {
			failures = append(failures, &CellError{
				Source: sheet.Path, Sheet: sheet.Name, Row: index, Column: col, Header: header, Err: err,
			})
			continue
		}
		if _, dup := row.values[header]; !dup {
			row.headers = append(row.headers, header)
		}
		row.values[header] = v
	}
	return row, failures
}

func (r *ImportRule) mapped(header string) bool {
	if len(r.Columns) == 0 {
		return true
	}
	_, ok := r.Columns[header]
	return ok
}

// Fragment is a flat, ordered mapping from dotted field path to a
// JSON-compatible value.
type Fragment struct {
	keys   []string
	values map[string]any
}

// NewFragment returns an empty fragment.
func NewFragment() *Fragment {
	return &Fragment{values: map[string]any{}}
}

// Set assigns path, keeping first-insertion order.
func (f *Fragment) Set(path string, v any) {
	if _, ok := f.values[path]; !ok {
		f.keys = append(f.keys, path)
	}
	f.values[path] = v
}

// Get returns the value at path.
func (f *Fragment) Get(path string) (any, bool) {
	v, ok := f.values[path]
	return v, ok
}

// Delete removes path.
func (f *Fragment) Delete(path string) {
	if _, ok := f.values[path]; !ok {
		return
	}
	delete(f.values, path)
	for i, k := range f.keys {
		if k == path {
			f.keys = append(f.keys[:i], f.keys[i+1:]...)
			break
		}
	}
}

// Keys lists paths in insertion order.
func (f *Fragment) Keys() []string { return f.keys }

// Len returns the number of paths.
func (f *Fragment) Len() int { return len(f.keys) }

// Map returns the fragment as a plain map for nesting.
func (f *Fragment) Map() map[string]any {
	out := make(map[string]any, len(f.values))
	for k, v := range f.values {
		out[k] = v
	}
	return out
}

// Map applies the declared column mapping to row. With no declared columns
// every header is its own field path.
func (r *ImportRule) Map(sheetName string, row *Row) (*Fragment, error) {
	frag := NewFragment()
	for _, h := range row.headers {
		path := h
		if len(r.Columns) > 0 {
			target, ok := r.Columns[h]
			if !ok {
				return nil, &MappingError{Sheet: sheetName, Row: row.Index, Header: h}
			}
			if target == Ignore {
				continue
			}
			path = target
		}
		frag.Set(path, row.values[h].JSON())
	}
	return frag, nil
}

// Transform maps row and runs the rule's hooks in order. The result must
// carry a uid.
func (r *ImportRule) Transform(sheetName string, row *Row) (*Fragment, error) {
	frag := NewFragment()
	var err error
	for _, fn := range r.transforms {
		frag, err = fn(r, sheetName, row, frag)
		if err != nil {
			return nil, err
		}
	}
	v, ok := frag.Get(store.UIDField)
	if !ok {
		return nil, fmt.Errorf("[%s] row %d: %w", sheetName, row.Index, ErrMissingUID)
	}
	u, ok := store.UIDOf(v)
	if !ok {
		return nil, fmt.Errorf("[%s] row %d: uid %v is not an integer: %w", sheetName, row.Index, v, ErrMissingUID)
	}
	if !uid.Valid(u) {
		return nil, fmt.Errorf("[%s] row %d: uid %d: %w", sheetName, row.Index, u, uid.ErrInvalid)
	}
	return frag, nil
}
