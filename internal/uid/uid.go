// Package uid allocates and validates nine-digit editor table UIDs.
package uid

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/bfv/edtable/internal/tabletype"
)

const (
	Min int64 = 100000000
	Max int64 = 999999999
)

var (
	ErrCollision = errors.New("uid already in use")
	ErrInvalid   = errors.New("uid must be a 9-digit integer")
	ErrExhausted = errors.New("no free uid left in range")
)

// CollisionError names the scope in which a UID is already taken.
type CollisionError struct {
	Type tabletype.Type
	UID  int64
}

func (e *CollisionError) Error() string {
	return fmt.Sprintf("uid %d already in use for %s", e.UID, e.Type)
}

func (e *CollisionError) Is(target error) bool { return target == ErrCollision }

// Source lists UIDs already known for a type, e.g. the record store or the
// CSV sources.
type Source interface {
	UIDs(t tabletype.Type) ([]int64, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(t tabletype.Type) ([]int64, error)

func (f SourceFunc) UIDs(t tabletype.Type) ([]int64, error) { return f(t) }

// Allocator hands out UIDs that are absent from every source and from the
// values it already handed out during this session.
type Allocator struct {
	mu       sync.Mutex
	sources  []Source
	global   bool
	min, max int64
	rng      *rand.Rand
	reserved map[tabletype.Type]map[int64]struct{}
}

// Option configures an Allocator.
type Option func(*Allocator)

// WithGlobalScope makes uniqueness span all table types instead of one.
func WithGlobalScope(global bool) Option {
	return func(a *Allocator) { a.global = global }
}

// WithRange narrows the candidate range.
func WithRange(min, max int64) Option {
	return func(a *Allocator) { a.min, a.max = min, max }
}

// WithSeed makes the candidate sequence reproducible.
func WithSeed(seed uint64) Option {
	return func(a *Allocator) { a.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)) }
}

// New returns an Allocator checking against sources.
func New(sources []Source, opts ...Option) *Allocator {
	now := uint64(time.Now().UnixNano())
	a := &Allocator{
		sources:  sources,
		min:      Min,
		max:      Max,
		rng:      rand.New(rand.NewPCG(now, now>>1)),
		reserved: map[tabletype.Type]map[int64]struct{}{},
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Valid reports whether uid has exactly nine digits.
func Valid(uid int64) bool { return uid >= Min && uid <= Max }

func (a *Allocator) scopeTypes(t tabletype.Type) []tabletype.Type {
	if a.global {
		return tabletype.All
	}
	return []tabletype.Type{t}
}

// taken collects every UID in t's scope. Caller holds a.mu.
func (a *Allocator) taken(t tabletype.Type) (map[int64]struct{}, error) {
	set := map[int64]struct{}{}
	for _, st := range a.scopeTypes(t) {
		for _, src := range a.sources {
			uids, err := src.UIDs(st)
			if err != nil {
				return nil, fmt.Errorf("listing %s uids: %w", st, err)
			}
			for _, u := range uids {
				set[u] = struct{}{}
			}
		}
		for u := range a.reserved[st] {
			set[u] = struct{}{}
		}
	}
	return set, nil
}

func (a *Allocator) reserve(t tabletype.Type, u int64) {
	if a.reserved[t] == nil {
		a.reserved[t] = map[int64]struct{}{}
	}
	a.reserved[t][u] = struct{}{}
}

// Allocate returns a fresh UID for t and reserves it for the session.
func (a *Allocator) Allocate(t tabletype.Type) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	taken, err := a.taken(t)
	if err != nil {
		return 0, err
	}
	span := a.max - a.min + 1
	start := a.min + a.rng.Int64N(span)
	for i := int64(0); i < span; i++ {
		candidate := a.min + (start-a.min+i)%span
		if _, used := taken[candidate]; used {
			continue
		}
		a.reserve(t, candidate)
		log.Debug().Str("type", string(t)).Int64("uid", candidate).Msg("uid allocated")
		return candidate, nil
	}
	return 0, fmt.Errorf("%s: %w", t, ErrExhausted)
}

// Claim validates that uid is well-formed and free in t's scope, then
// reserves it. Used before an explicit UID rewrite.
func (a *Allocator) Claim(t tabletype.Type, uid int64) error {
	if !Valid(uid) {
		return fmt.Errorf("%d: %w", uid, ErrInvalid)
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	taken, err := a.taken(t)
	if err != nil {
		return err
	}
	if _, used := taken[uid]; used {
		return &CollisionError{Type: t, UID: uid}
	}
	a.reserve(t, uid)
	return nil
}

// Release drops a reservation made by Allocate or Claim that was never committed.
func (a *Allocator) Release(t tabletype.Type, uid int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.reserved[t], uid)
}
