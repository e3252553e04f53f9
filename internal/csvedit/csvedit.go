// Package csvedit edits the per-type CSV sheets that designers fill in
// before an import: adding rows with fresh UIDs, copying existing records
// in, and rewriting names or UIDs in place.
//
// Every sheet follows the import layout: header row, type row, then data.
package csvedit

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/bfv/edtable/internal/cast"
	"github.com/bfv/edtable/internal/source"
	"github.com/bfv/edtable/internal/tabletype"
	"github.com/bfv/edtable/internal/uid"
)

const (
	headerRow    = 1
	firstDataRow = 3 // after the type row
)

var (
	ErrNotFound  = errors.New("uid not found in csv sheets")
	ErrListed    = errors.New("uid already listed in csv sheet")
	ErrNoColumns = errors.New("sheet has no uid column")
)

// Entry is one data row of a CSV sheet.
type Entry struct {
	UID  int64          `json:"uid"`
	Name string         `json:"name"`
	Type tabletype.Type `json:"type"`
	Path string         `json:"path"`
	Row  int            `json:"row"`
}

// Editor reads and rewrites the CSV sheets under one root.
type Editor struct {
	root  string
	alloc *uid.Allocator
	log   zerolog.Logger
	mu    sync.Mutex
}

// New returns an Editor over root. The editor's own UIDs and those of
// others together form the scope checked by its allocator.
func New(root string, others []uid.Source, opts ...uid.Option) *Editor {
	ed := &Editor{
		root: root,
		log:  log.With().Str("component", "csvedit").Logger(),
	}
	ed.alloc = uid.New(append([]uid.Source{ed}, others...), opts...)
	return ed
}

// Root returns the CSV root directory.
func (ed *Editor) Root() string { return ed.root }

// Allocator returns the allocator whose scope covers the CSV sheets.
func (ed *Editor) Allocator() *uid.Allocator { return ed.alloc }

// Dir returns the folder holding the sheets of t.
func (ed *Editor) Dir(t tabletype.Type) string {
	return filepath.Join(ed.root, t.CSVFolder())
}

// Files lists the CSV sheets of t in name order.
func (ed *Editor) Files(t tabletype.Type) ([]string, error) {
	entries, err := os.ReadDir(ed.Dir(t))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing %s sheets: %w", t, err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".csv") {
			continue
		}
		files = append(files, filepath.Join(ed.Dir(t), e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

// ── Sheet access ──────────────────────────────────────────────────────────────

type sheet struct {
	path    string
	rows    [][]string
	uidCol  int // zero-based
	nameCol int // zero-based, -1 when absent
}

func isUIDHeader(h string) bool {
	return strings.EqualFold(strings.TrimSpace(h), "uid")
}

func isNameHeader(h string) bool {
	h = strings.TrimSpace(h)
	return strings.EqualFold(h, "name") || h == "名称"
}

func loadSheet(path string) (*sheet, error) {
	s, err := source.ReadCSV(path)
	if err != nil {
		return nil, err
	}
	sh := &sheet{path: path, rows: s.Rows, uidCol: -1, nameCol: -1}
	if len(sh.rows) >= headerRow {
		for i, h := range sh.rows[headerRow-1] {
			switch {
			case sh.uidCol < 0 && isUIDHeader(h):
				sh.uidCol = i
			case sh.nameCol < 0 && isNameHeader(h):
				sh.nameCol = i
			}
		}
	}
	if sh.uidCol < 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrNoColumns)
	}
	return sh, nil
}

func (sh *sheet) cell(row, col int) string {
	if col < 0 || row < 1 || row > len(sh.rows) || col >= len(sh.rows[row-1]) {
		return ""
	}
	return sh.rows[row-1][col]
}

func (sh *sheet) set(row, col int, v string) {
	r := sh.rows[row-1]
	for len(r) <= col {
		r = append(r, "")
	}
	r[col] = v
	sh.rows[row-1] = r
}

func (sh *sheet) width() int {
	w := 0
	for _, r := range sh.rows {
		if len(r) > w {
			w = len(r)
		}
	}
	return w
}

// entries returns the data rows that carry a parseable uid.
func (sh *sheet) entries(t tabletype.Type) []Entry {
	var out []Entry
	for row := firstDataRow; row <= len(sh.rows); row++ {
		u, ok := parseUID(sh.cell(row, sh.uidCol))
		if !ok {
			continue
		}
		out = append(out, Entry{
			UID:  u,
			Name: sh.cell(row, sh.nameCol),
			Type: t,
			Path: sh.path,
			Row:  row,
		})
	}
	return out
}

func (sh *sheet) save() error {
	if err := source.WriteCSV(sh.path, sh.rows); err != nil {
		return fmt.Errorf("writing %s: %w", sh.path, err)
	}
	return nil
}

// newSheet is the sheet created for a type that has none yet.
func newSheet(path string) *sheet {
	return &sheet{
		path:    path,
		rows:    [][]string{{"uid", "name"}, {string(cast.Integer), string(cast.String)}},
		uidCol:  0,
		nameCol: 1,
	}
}

// target returns the sheet new rows of t are appended to: the first sheet in
// name order, or a fresh one named after the type label.
func (ed *Editor) target(t tabletype.Type) (*sheet, error) {
	files, err := ed.Files(t)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return newSheet(filepath.Join(ed.Dir(t), t.CSVFolder()+".csv")), nil
	}
	return loadSheet(files[0])
}

// ── Queries ───────────────────────────────────────────────────────────────────

// Entries lists the data rows of every sheet of t.
func (ed *Editor) Entries(t tabletype.Type) ([]Entry, error) {
	files, err := ed.Files(t)
	if err != nil {
		return nil, err
	}
	var out []Entry
	for _, f := range files {
		sh, err := loadSheet(f)
		if errors.Is(err, ErrNoColumns) {
			ed.log.Debug().Str("path", f).Msg("sheet without uid column skipped")
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, sh.entries(t)...)
	}
	return out, nil
}

// UIDs lists the UIDs present in the sheets of t. It makes the Editor a
// uid.Source.
func (ed *Editor) UIDs(t tabletype.Type) ([]int64, error) {
	entries, err := ed.Entries(t)
	if err != nil {
		return nil, err
	}
	out := make([]int64, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.UID)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// Search returns the rows of every type whose UID, name or type label
// contains query, case-insensitively.
func (ed *Editor) Search(query string) ([]Entry, error) {
	q := strings.ToLower(strings.TrimSpace(query))
	var out []Entry
	for _, t := range tabletype.All {
		entries, err := ed.Entries(t)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if q == "" ||
				strings.Contains(strconv.FormatInt(e.UID, 10), q) ||
				strings.Contains(strings.ToLower(e.Name), q) ||
				strings.Contains(t.Label(), q) ||
				strings.Contains(string(t), q) {
				out = append(out, e)
			}
		}
	}
	return out, nil
}

// find locates the sheets of any type holding uid.
func (ed *Editor) find(u int64) ([]*sheet, []Entry, error) {
	var sheets []*sheet
	var hits []Entry
	for _, t := range tabletype.All {
		files, err := ed.Files(t)
		if err != nil {
			return nil, nil, err
		}
		for _, f := range files {
			sh, err := loadSheet(f)
			if errors.Is(err, ErrNoColumns) {
				continue
			}
			if err != nil {
				return nil, nil, err
			}
			found := false
			for _, e := range sh.entries(t) {
				if e.UID == u {
					hits = append(hits, e)
					found = true
				}
			}
			if found {
				sheets = append(sheets, sh)
			}
		}
	}
	if len(hits) == 0 {
		return nil, nil, fmt.Errorf("%d: %w", u, ErrNotFound)
	}
	return sheets, hits, nil
}

// ── Edits ─────────────────────────────────────────────────────────────────────

// AddNew allocates a UID free in t's scope and appends a row with name.
func (ed *Editor) AddNew(t tabletype.Type, name string) (int64, error) {
	ed.mu.Lock()
	defer ed.mu.Unlock()

	u, err := ed.alloc.Allocate(t)
	if err != nil {
		return 0, err
	}
	if err := ed.appendRow(t, u, name); err != nil {
		ed.alloc.Release(t, u)
		return 0, err
	}
	ed.log.Info().Str("type", string(t)).Int64("uid", u).Str("name", name).Msg("row added")
	return u, nil
}

// AddFromProject appends the uid and name of an existing record of t so the
// designer can fill in more columns for it.
func (ed *Editor) AddFromProject(t tabletype.Type, u int64, name string) error {
	ed.mu.Lock()
	defer ed.mu.Unlock()

	listed, err := ed.UIDs(t)
	if err != nil {
		return err
	}
	for _, l := range listed {
		if l == u {
			return fmt.Errorf("%s %d: %w", t, u, ErrListed)
		}
	}
	if err := ed.appendRow(t, u, name); err != nil {
		return err
	}
	ed.log.Info().Str("type", string(t)).Int64("uid", u).Msg("project item added to csv")
	return nil
}

func (ed *Editor) appendRow(t tabletype.Type, u int64, name string) error {
	sh, err := ed.target(t)
	if err != nil {
		return err
	}
	row := make([]string, max(sh.width(), sh.uidCol+1, sh.nameCol+1))
	row[sh.uidCol] = strconv.FormatInt(u, 10)
	if sh.nameCol >= 0 {
		row[sh.nameCol] = name
	}
	sh.rows = append(sh.rows, row)
	return sh.save()
}

// ModifyName sets the name of every row carrying uid.
func (ed *Editor) ModifyName(u int64, name string) error {
	ed.mu.Lock()
	defer ed.mu.Unlock()

	sheets, _, err := ed.find(u)
	if err != nil {
		return err
	}
	for _, sh := range sheets {
		if sh.nameCol < 0 {
			ed.log.Warn().Str("path", sh.path).Msg("sheet has no name column")
			continue
		}
		for row := firstDataRow; row <= len(sh.rows); row++ {
			if sameUID(sh.cell(row, sh.uidCol), u) {
				sh.set(row, sh.nameCol, name)
			}
		}
		if err := sh.save(); err != nil {
			return err
		}
	}
	ed.log.Info().Int64("uid", u).Str("name", name).Msg("csv name modified")
	return nil
}

// ModifyUID replaces uid by newUID in every row carrying it. newUID must be
// a valid UID free in the scope of the row's type; nothing is written
// otherwise.
func (ed *Editor) ModifyUID(u, newUID int64) error {
	if u == newUID {
		return nil
	}
	ed.mu.Lock()
	defer ed.mu.Unlock()

	sheets, hits, err := ed.find(u)
	if err != nil {
		return err
	}
	claimed := map[tabletype.Type]bool{}
	for _, h := range hits {
		if claimed[h.Type] {
			continue
		}
		if err := ed.alloc.Claim(h.Type, newUID); err != nil {
			for t := range claimed {
				ed.alloc.Release(t, newUID)
			}
			return err
		}
		claimed[h.Type] = true
	}
	newText := strconv.FormatInt(newUID, 10)
	for _, sh := range sheets {
		for row := firstDataRow; row <= len(sh.rows); row++ {
			if sameUID(sh.cell(row, sh.uidCol), u) {
				sh.set(row, sh.uidCol, newText)
			}
		}
		if err := sh.save(); err != nil {
			return err
		}
	}
	ed.log.Info().Int64("old", u).Int64("new", newUID).Msg("csv uid modified")
	return nil
}

func parseUID(text string) (int64, bool) {
	v, err := cast.Cast(text, cast.Integer)
	if err != nil {
		return 0, false
	}
	return v.Interface().(int64), true
}

func sameUID(text string, u int64) bool {
	n, ok := parseUID(text)
	return ok && n == u
}
