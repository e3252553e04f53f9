// Package store persists editor table records as one JSON file per UID,
// partitioned into one folder per table type.
package store

import (
	"bytes"
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

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/bfv/edtable/internal/nested"
	"github.com/bfv/edtable/internal/tabletype"
)

const (
	// UIDField and NameField are the top-level record keys for identity and display name.
	UIDField  = "uid"
	NameField = "name"

	fileExt = ".json"
)

var (
	ErrNoUID    = errors.New("record has no uid")
	ErrNotFound = errors.New("record not found")
	ErrExists   = errors.New("record already exists")
)

// PersistError wraps an I/O failure on a record file.
type PersistError struct {
	Op   string
	UID  int64
	Path string
	Err  error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("%s record %d (%s): %v", e.Op, e.UID, e.Path, e.Err)
}

func (e *PersistError) Unwrap() error { return e.Err }

// Item is one persisted editor table record.
type Item struct {
	UID    int64
	Name   string
	Type   tabletype.Type
	Path   string
	Fields map[string]any
}

// Store is the only writer of the record store. Writes to the same UID are
// serialized; each write replaces the whole file.
type Store struct {
	root  string
	log   zerolog.Logger
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New returns a Store rooted at root. The directory is created lazily on
// first write.
func New(root string) *Store {
	return &Store{
		root:  root,
		log:   log.With().Str("component", "store").Logger(),
		locks: map[string]*sync.Mutex{},
	}
}

// Root returns the record store root directory.
func (s *Store) Root() string { return s.root }

// Dir returns the canonical folder of t.
func (s *Store) Dir(t tabletype.Type) string {
	return filepath.Join(s.root, t.Folder())
}

// Path returns the file location of the record uid of type t.
func (s *Store) Path(t tabletype.Type, uid int64) string {
	return filepath.Join(s.Dir(t), strconv.FormatInt(uid, 10)+fileExt)
}

func (s *Store) lock(t tabletype.Type, uid int64) func() {
	key := string(t) + "/" + strconv.FormatInt(uid, 10)
	s.mu.Lock()
	m, ok := s.locks[key]
	if !ok {
		m = &sync.Mutex{}
		s.locks[key] = m
	}
	s.mu.Unlock()
	m.Lock()
	return m.Unlock
}

// Persist deep-merges tree into the record identified by its uid field,
// creating the record if it does not exist yet.
func (s *Store) Persist(tree map[string]any, t tabletype.Type) error {
	uid, ok := UIDOf(tree[UIDField])
	if !ok {
		return ErrNoUID
	}
	unlock := s.lock(t, uid)
	defer unlock()

	path := s.Path(t, uid)
	existing, err := readTree(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return &PersistError{Op: "read", UID: uid, Path: path, Err: err}
	}

	merged := nested.Merge(existing, tree)
	merged[UIDField] = uid
	if err := writeTree(path, merged); err != nil {
		return &PersistError{Op: "write", UID: uid, Path: path, Err: err}
	}
	s.log.Debug().Str("type", string(t)).Int64("uid", uid).Bool("created", existing == nil).Msg("record persisted")
	return nil
}

// Get reads the record uid of type t.
func (s *Store) Get(t tabletype.Type, uid int64) (*Item, error) {
	path := s.Path(t, uid)
	tree, err := readTree(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s %d: %w", t, uid, ErrNotFound)
	}
	if err != nil {
		return nil, &PersistError{Op: "read", UID: uid, Path: path, Err: err}
	}
	return &Item{UID: uid, Name: NameOf(tree[NameField]), Type: t, Path: path, Fields: tree}, nil
}

// Exists reports whether a record file for uid exists.
func (s *Store) Exists(t tabletype.Type, uid int64) bool {
	_, err := os.Stat(s.Path(t, uid))
	return err == nil
}

// Rename writes a new display name into the record uid.
func (s *Store) Rename(t tabletype.Type, uid int64, name string) error {
	if !s.Exists(t, uid) {
		return fmt.Errorf("%s %d: %w", t, uid, ErrNotFound)
	}
	return s.Persist(map[string]any{UIDField: uid, NameField: name}, t)
}

// RewriteUID moves the record oldUID to newUID and updates its uid field.
// Uniqueness of newUID across the configured scope is the caller's check;
// this refuses only to overwrite an existing file.
func (s *Store) RewriteUID(t tabletype.Type, oldUID, newUID int64) error {
	if oldUID == newUID {
		return nil
	}
	// Lock in a fixed order so two opposite rewrites cannot deadlock.
	first, second := oldUID, newUID
	if first > second {
		first, second = second, first
	}
	defer s.lock(t, first)()
	defer s.lock(t, second)()

	oldPath, newPath := s.Path(t, oldUID), s.Path(t, newUID)
	if _, err := os.Stat(newPath); err == nil {
		return fmt.Errorf("%s %d: %w", t, newUID, ErrExists)
	}
	tree, err := readTree(oldPath)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%s %d: %w", t, oldUID, ErrNotFound)
	}
	if err != nil {
		return &PersistError{Op: "read", UID: oldUID, Path: oldPath, Err: err}
	}
	tree[UIDField] = newUID
	if err := writeTree(newPath, tree); err != nil {
		return &PersistError{Op: "write", UID: newUID, Path: newPath, Err: err}
	}
	if err := os.Remove(oldPath); err != nil {
		return &PersistError{Op: "remove", UID: oldUID, Path: oldPath, Err: err}
	}
	s.log.Info().Str("type", string(t)).Int64("old", oldUID).Int64("new", newUID).Msg("record uid rewritten")
	return nil
}

// Delete removes the record uid.
func (s *Store) Delete(t tabletype.Type, uid int64) error {
	unlock := s.lock(t, uid)
	defer unlock()
	path := s.Path(t, uid)
	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%s %d: %w", t, uid, ErrNotFound)
		}
		return &PersistError{Op: "remove", UID: uid, Path: path, Err: err}
	}
	return nil
}

// UIDs lists the UIDs stored for t in ascending order, derived from file names.
func (s *Store) UIDs(t tabletype.Type) ([]int64, error) {
	entries, err := os.ReadDir(s.Dir(t))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", t, err)
	}
	var uids []int64
	for _, e := range entries {
		if uid, ok := UIDFromFile(e.Name()); ok && !e.IsDir() {
			uids = append(uids, uid)
		}
	}
	sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })
	return uids, nil
}

// ── Encoding helpers ──────────────────────────────────────────────────────────

// ReadFile decodes a record file. Numbers are kept as json.Number so values
// are written back exactly as read.
func ReadFile(path string) (map[string]any, error) {
	return readTree(path)
}

func readTree(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var tree map[string]any
	if err := dec.Decode(&tree); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", filepath.Base(path), err)
	}
	if tree == nil {
		tree = map[string]any{}
	}
	return tree, nil
}

// Encode renders a record deterministically: keys sorted, indented, no HTML escaping.
func Encode(tree map[string]any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(tree); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// writeTree materializes the full file content before replacing the target
// with a rename, so readers never observe a partial record.
func writeTree(path string, tree map[string]any) error {
	data, err := Encode(tree)
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// ── Value helpers ─────────────────────────────────────────────────────────────

// UIDOf interprets a decoded or cast value as a UID.
func UIDOf(v any) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case int:
		return int64(x), true
	case float64:
		if x == float64(int64(x)) {
			return int64(x), true
		}
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return n, true
		}
	case string:
		if n, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64); err == nil {
			return n, true
		}
	}
	return 0, false
}

// NameOf renders a name field for display.
func NameOf(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}

// UIDFromFile extracts the UID from a record file name.
func UIDFromFile(name string) (int64, bool) {
	if !strings.HasSuffix(name, fileExt) {
		return 0, false
	}
	n, err := strconv.ParseInt(strings.TrimSuffix(name, fileExt), 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
