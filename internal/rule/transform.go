package rule

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/bfv/edtable/internal/cast"
)

// TransformFunc is a row hook. It receives the fragment built by the hooks
// before it and returns the fragment handed to the next one.
type TransformFunc func(r *ImportRule, sheet string, row *Row, in *Fragment) (*Fragment, error)

// Built-in hook names.
const (
	TransformColumns   = "columns"
	TransformConcat    = "concat"
	TransformDropEmpty = "drop_empty"
	TransformDefaults  = "defaults"
)

// Registry maps hook names used in rules files to functions.
type Registry struct {
	mu sync.RWMutex
	m  map[string]TransformFunc
}

// NewRegistry returns a registry holding the built-in hooks.
func NewRegistry() *Registry {
	return &Registry{m: map[string]TransformFunc{
		TransformColumns:   Columns,
		TransformConcat:    Concat,
		TransformDropEmpty: DropEmpty,
		TransformDefaults:  Defaults,
	}}
}

// Default is the registry used by LoadFile.
var Default = NewRegistry()

// Register adds or replaces a named hook.
func (g *Registry) Register(name string, fn TransformFunc) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.m[name] = fn
}

// Lookup returns the hook registered under name.
func (g *Registry) Lookup(name string) (TransformFunc, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	fn, ok := g.m[strings.TrimSpace(name)]
	return fn, ok
}

// Columns applies the declarative column mapping on top of in.
func Columns(r *ImportRule, sheet string, row *Row, in *Fragment) (*Fragment, error) {
	mapped, err := r.Map(sheet, row)
	if err != nil {
		return nil, err
	}
	for _, k := range mapped.Keys() {
		v, _ := mapped.Get(k)
		in.Set(k, v)
	}
	return in, nil
}

// Concat joins several source columns into one field. Options:
// concat.target (field path), concat.sources (comma-separated headers),
// concat.sep (defaults to a single space).
func Concat(r *ImportRule, sheet string, row *Row, in *Fragment) (*Fragment, error) {
	target := r.Options["concat.target"]
	sources := r.Options["concat.sources"]
	if target == "" || sources == "" {
		return nil, fmt.Errorf("concat: concat.target and concat.sources are required")
	}
	sep, ok := r.Options["concat.sep"]
	if !ok {
		sep = " "
	}
	var parts []string
	for _, h := range strings.Split(sources, ",") {
		if v, ok := row.Get(strings.TrimSpace(h)); ok {
			parts = append(parts, cast.Render(v))
		}
	}
	if len(parts) > 0 {
		in.Set(target, strings.Join(parts, sep))
	}
	return in, nil
}

// DropEmpty removes fields holding an empty string.
func DropEmpty(_ *ImportRule, _ string, _ *Row, in *Fragment) (*Fragment, error) {
	for _, k := range append([]string(nil), in.Keys()...) {
		if v, _ := in.Get(k); v == "" {
			in.Delete(k)
		}
	}
	return in, nil
}

// Defaults fills fields absent from the fragment. Every option named
// "default.<path>" sets <path> to the option's text.
func Defaults(r *ImportRule, _ string, _ *Row, in *Fragment) (*Fragment, error) {
	keys := make([]string, 0, len(r.Options))
	for k := range r.Options {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		path, ok := strings.CutPrefix(k, "default.")
		if !ok || path == "" {
			continue
		}
		if _, exists := in.Get(path); !exists {
			in.Set(path, r.Options[k])
		}
	}
	return in, nil
}
