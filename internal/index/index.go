// Package index keeps an in-memory, searchable projection of the record
// store. The index is rebuilt by scanning the store and is never written to
// directly; renames go through the store first.
package index

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/bfv/edtable/internal/store"
	"github.com/bfv/edtable/internal/tabletype"
)

// State is the lifecycle state of an Index.
type State int

const (
	Uninitialized State = iota
	Scanning
	Ready
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Scanning:
		return "scanning"
	case Ready:
		return "ready"
	default:
		return "unknown"
	}
}

// errStale marks a scan superseded by a newer one. Its result is dropped.
var errStale = errors.New("scan superseded")

// Entry is the indexed summary of one record.
type Entry struct {
	UID  int64          `json:"uid"`
	Name string         `json:"name"`
	Type tabletype.Type `json:"type"`
	Path string         `json:"path"`
}

// Label returns the display label of the entry's type.
func (e Entry) Label() string { return e.Type.Label() }

type key struct {
	t   tabletype.Type
	uid int64
}

// Status describes the index for diagnostics.
type Status struct {
	State      string `json:"state"`
	Generation uint64 `json:"generation"`
	Applied    uint64 `json:"applied"`
	Entries    int    `json:"entries"`
}

// Index is the searchable view over one record store root.
type Index struct {
	st       *store.Store
	log      zerolog.Logger
	debounce time.Duration

	gen atomic.Uint64 // latest requested scan

	mu      sync.RWMutex
	state   State
	applied uint64 // generation of the scan that produced entries
	entries map[key]Entry

	timerMu sync.Mutex
	timer   *time.Timer
	cancel  context.CancelFunc

	scanHook func(t tabletype.Type) // called after each type folder, tests only
}

// New returns an uninitialized Index over st.
func New(st *store.Store) *Index {
	return &Index{
		st:       st,
		log:      log.With().Str("component", "index").Str("root", st.Root()).Logger(),
		debounce: 200 * time.Millisecond,
		entries:  map[key]Entry{},
	}
}

// SetDebounce sets how long the watcher waits for events to settle.
func (ix *Index) SetDebounce(d time.Duration) {
	if d > 0 {
		ix.debounce = d
	}
}

// State returns the current lifecycle state.
func (ix *Index) State() State {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.state
}

// Status returns a snapshot of the index counters.
func (ix *Index) Status() Status {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return Status{
		State:      ix.state.String(),
		Generation: ix.gen.Load(),
		Applied:    ix.applied,
		Entries:    len(ix.entries),
	}
}

// Rescan walks every type folder and replaces the index with the result.
// If another Rescan starts meanwhile, this one stops and its result is
// dropped.
func (ix *Index) Rescan(ctx context.Context) error {
	gen := ix.gen.Add(1)
	ix.mu.Lock()
	ix.state = Scanning
	ix.mu.Unlock()

	entries, err := ix.scan(ctx, gen)
	if errors.Is(err, errStale) {
		ix.log.Debug().Uint64("generation", gen).Msg("scan superseded")
		return nil
	}
	if err != nil {
		ix.mu.Lock()
		if ix.gen.Load() == gen {
			ix.state = stateAfterFailure(ix.applied)
		}
		ix.mu.Unlock()
		return err
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.gen.Load() != gen {
		ix.log.Debug().Uint64("generation", gen).Msg("scan superseded")
		return nil
	}
	ix.entries = entries
	ix.applied = gen
	ix.state = Ready
	ix.log.Debug().Uint64("generation", gen).Int("entries", len(entries)).Msg("index ready")
	return nil
}

func stateAfterFailure(applied uint64) State {
	if applied == 0 {
		return Uninitialized
	}
	return Ready
}

func (ix *Index) scan(ctx context.Context, gen uint64) (map[key]Entry, error) {
	entries := map[key]Entry{}
	for _, t := range tabletype.All {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if ix.gen.Load() != gen {
			return nil, errStale
		}
		dir := ix.st.Dir(t)
		files, err := os.ReadDir(dir)
		if errors.Is(err, fs.ErrNotExist) {
			ix.afterFolder(t)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", dir, err)
		}
		for _, f := range files {
			if f.IsDir() {
				continue
			}
			fileUID, ok := store.UIDFromFile(f.Name())
			if !ok {
				continue
			}
			e, ok := readEntry(filepath.Join(dir, f.Name()), t, fileUID)
			if !ok {
				continue
			}
			entries[key{t, e.UID}] = e
		}
		ix.afterFolder(t)
	}
	if ix.gen.Load() != gen {
		return nil, errStale
	}
	return entries, nil
}

func (ix *Index) afterFolder(t tabletype.Type) {
	if ix.scanHook != nil {
		ix.scanHook(t)
	}
}

// readEntry extracts the summary fields of a record file. Files that vanish
// or do not parse (e.g. written by another tool mid-save) are skipped.
func readEntry(path string, t tabletype.Type, fileUID int64) (Entry, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Entry{}, false
	}
	var head struct {
		UID  json.Number `json:"uid"`
		Name any         `json:"name"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		log.Debug().Str("path", path).Err(err).Msg("skipping unreadable record")
		return Entry{}, false
	}
	uid := fileUID
	if n, err := head.UID.Int64(); err == nil && n != fileUID {
		log.Warn().Str("path", path).Int64("uid", n).Msg("record uid does not match file name")
	}
	return Entry{UID: uid, Name: store.NameOf(head.Name), Type: t, Path: path}, true
}

// Get returns the entry for uid of type t.
func (ix *Index) Get(t tabletype.Type, uid int64) (Entry, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	e, ok := ix.entries[key{t, uid}]
	return e, ok
}

// Search returns the entries whose UID, name, type name or type label
// contains query, case-insensitively, ordered by type then UID. An empty
// query matches everything.
func (ix *Index) Search(query string) []Entry {
	q := strings.ToLower(strings.TrimSpace(query))
	ix.mu.RLock()
	out := make([]Entry, 0)
	for _, e := range ix.entries {
		if q == "" || matches(e, q) {
			out = append(out, e)
		}
	}
	ix.mu.RUnlock()
	sortEntries(out)
	return out
}

func matches(e Entry, q string) bool {
	return strings.Contains(strconv.FormatInt(e.UID, 10), q) ||
		strings.Contains(strings.ToLower(e.Name), q) ||
		strings.Contains(e.Type.Label(), q) ||
		strings.Contains(string(e.Type), q)
}

var typeOrder = func() map[tabletype.Type]int {
	m := map[tabletype.Type]int{}
	for i, t := range tabletype.All {
		m[t] = i
	}
	return m
}()

func sortEntries(es []Entry) {
	sort.Slice(es, func(i, j int) bool {
		if es[i].Type != es[j].Type {
			return typeOrder[es[i].Type] < typeOrder[es[j].Type]
		}
		return es[i].UID < es[j].UID
	})
}

// Tree groups all entries by type for tree browsing.
func (ix *Index) Tree() map[tabletype.Type][]Entry {
	tree := map[tabletype.Type][]Entry{}
	for _, e := range ix.Search("") {
		tree[e.Type] = append(tree[e.Type], e)
	}
	return tree
}

// UIDs lists the indexed UIDs of t. It lets the index serve as a uid.Source.
func (ix *Index) UIDs(t tabletype.Type) ([]int64, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	var out []int64
	for k := range ix.entries {
		if k.t == t {
			out = append(out, k.uid)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// Rename writes name into the record through the store and updates the
// entry in place.
func (ix *Index) Rename(t tabletype.Type, uid int64, name string) error {
	if err := ix.st.Rename(t, uid, name); err != nil {
		return err
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()
	k := key{t, uid}
	if e, ok := ix.entries[k]; ok {
		e.Name = name
		ix.entries[k] = e
	}
	return nil
}
