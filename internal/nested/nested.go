// Package nested expands dotted-key maps into trees and deep-merges trees.
package nested

import (
	"fmt"
	"sort"
	"strings"
)

// ConflictError reports a dotted path used both as a leaf and as a branch.
type ConflictError struct {
	Path string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("structural conflict at %q: used both as value and as object", e.Path)
}

// Object is a map-valued leaf, such as a decoded table cell. Merge replaces
// an Object wholesale instead of descending into it.
type Object map[string]any

// node keeps branches apart from leaf values, so a leaf that happens to be a
// map (a table cell) is never descended into.
type node struct {
	leaf     any
	isLeaf   bool
	children map[string]*node
}

// Expand splits every key of flat on sep and builds the nested tree. Keys are
// applied in sorted order; the result does not depend on map iteration.
func Expand(flat map[string]any, sep string) (map[string]any, error) {
	if sep == "" {
		sep = "."
	}
	keys := make([]string, 0, len(flat))
	for k := range flat {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	root := &node{children: map[string]*node{}}
	for _, key := range keys {
		segments := strings.Split(key, sep)
		cur := root
		for i, seg := range segments {
			if seg == "" {
				return nil, fmt.Errorf("invalid path %q: empty segment", key)
			}
			path := strings.Join(segments[:i+1], sep)
			next, exists := cur.children[seg]
			last := i == len(segments)-1
			switch {
			case last && exists:
				return nil, &ConflictError{Path: path}
			case last:
				cur.children[seg] = &node{leaf: asLeaf(flat[key]), isLeaf: true}
			case exists && next.isLeaf:
				return nil, &ConflictError{Path: path}
			case !exists:
				next = &node{children: map[string]*node{}}
				cur.children[seg] = next
			}
			cur = next
		}
	}
	return root.tree(), nil
}

func asLeaf(v any) any {
	if m, ok := v.(map[string]any); ok {
		return Object(m)
	}
	return v
}

func (n *node) tree() map[string]any {
	out := make(map[string]any, len(n.children))
	for k, c := range n.children {
		if c.isLeaf {
			out[k] = c.leaf
		} else {
			out[k] = c.tree()
		}
	}
	return out
}

// Merge returns a new tree holding dst with src laid over it. Where both sides
// hold a branch the merge recurses; any other value in src, an Object
// included, replaces dst's. Neither input is modified and the result holds
// plain maps only.
func Merge(dst, src map[string]any) map[string]any {
	out := Clone(dst)
	if out == nil {
		out = map[string]any{}
	}
	for k, sv := range src {
		sm, srcIsMap := sv.(map[string]any)
		dm, dstIsMap := out[k].(map[string]any)
		if srcIsMap && dstIsMap {
			out[k] = Merge(dm, sm)
			continue
		}
		out[k] = cloneValue(sv)
	}
	return out
}

// Clone deep-copies a tree.
func Clone(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		return Clone(x)
	case Object:
		return Clone(x)
	case []any:
		s := make([]any, len(x))
		for i, e := range x {
			s[i] = cloneValue(e)
		}
		return s
	default:
		return v
	}
}

// Lookup returns the value at a dotted path in tree.
func Lookup(tree map[string]any, path, sep string) (any, bool) {
	if sep == "" {
		sep = "."
	}
	var cur any = tree
	for _, seg := range strings.Split(path, sep) {
		var m map[string]any
		switch x := cur.(type) {
		case map[string]any:
			m = x
		case Object:
			m = x
		default:
			return nil, false
		}
		var ok bool
		if cur, ok = m[seg]; !ok {
			return nil, false
		}
	}
	return cur, true
}
