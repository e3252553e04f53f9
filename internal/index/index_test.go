package index

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bfv/edtable/internal/store"
	"github.com/bfv/edtable/internal/tabletype"
)

func seed(t *testing.T) *store.Store {
	t.Helper()
	st := store.New(t.TempDir())
	records := []struct {
		typ  tabletype.Type
		uid  int64
		name string
	}{
		{tabletype.Unit, 134274912, "Footman"},
		{tabletype.Unit, 134218426, "Archer"},
		{tabletype.Item, 100000001, "Sword"},
		{tabletype.Ability, 100000002, "Fireball"},
		{tabletype.Sound, 100000003, "footstep"},
	}
	for _, r := range records {
		require.NoError(t, st.Persist(map[string]any{"uid": r.uid, "name": r.name}, r.typ))
	}
	return st
}

func uids(es []Entry) []int64 {
	out := make([]int64, 0, len(es))
	for _, e := range es {
		out = append(out, e.UID)
	}
	return out
}

func TestRescanBuildsIndex(t *testing.T) {
	ix := New(seed(t))
	assert.Equal(t, Uninitialized, ix.State())

	require.NoError(t, ix.Rescan(context.Background()))
	assert.Equal(t, Ready, ix.State())
	assert.Equal(t, 5, ix.Status().Entries)

	e, ok := ix.Get(tabletype.Unit, 134274912)
	require.True(t, ok)
	assert.Equal(t, "Footman", e.Name)
	assert.Equal(t, "单位", e.Label())
	assert.Equal(t, ix.Store().Path(tabletype.Unit, 134274912), e.Path)
}

func TestRescanIsIdempotent(t *testing.T) {
	ix := New(seed(t))
	require.NoError(t, ix.Rescan(context.Background()))
	first := ix.Search("")
	require.NoError(t, ix.Rescan(context.Background()))
	assert.Equal(t, first, ix.Search(""))
}

func TestRescanSkipsJunk(t *testing.T) {
	st := seed(t)
	dir := st.Dir(tabletype.Item)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "100000099.json"), []byte("{broken"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "readme.md"), []byte("hi"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "100000098.json"), 0o755))

	ix := New(st)
	require.NoError(t, ix.Rescan(context.Background()))
	assert.Equal(t, 5, ix.Status().Entries)
}

func TestSearchByTypeLabel(t *testing.T) {
	ix := New(seed(t))
	require.NoError(t, ix.Rescan(context.Background()))

	got := ix.Search("单位")
	require.Len(t, got, 2)
	for _, e := range got {
		assert.Equal(t, tabletype.Unit, e.Type)
	}
	assert.Equal(t, []int64{134218426, 134274912}, uids(got), "ordered by uid within a type")

	assert.Len(t, ix.Search("unit"), 2)
}

func TestSearchByNameAndUID(t *testing.T) {
	ix := New(seed(t))
	require.NoError(t, ix.Rescan(context.Background()))

	got := ix.Search("FOOT")
	require.Len(t, got, 2)
	assert.Equal(t, tabletype.Unit, got[0].Type, "types in taxonomy order")
	assert.Equal(t, tabletype.Sound, got[1].Type)

	assert.Equal(t, []int64{100000001, 100000002, 100000003}, uids(ix.Search("10000000")))
	assert.Empty(t, ix.Search("zzz"))
	assert.Len(t, ix.Search(""), 5)
}

func TestTreeAndUIDs(t *testing.T) {
	ix := New(seed(t))
	require.NoError(t, ix.Rescan(context.Background()))

	tree := ix.Tree()
	assert.Len(t, tree[tabletype.Unit], 2)
	assert.Len(t, tree[tabletype.Item], 1)
	assert.Empty(t, tree[tabletype.Projectile])

	got, err := ix.UIDs(tabletype.Unit)
	require.NoError(t, err)
	assert.Equal(t, []int64{134218426, 134274912}, got)
}

func TestRenameUpdatesInPlace(t *testing.T) {
	st := seed(t)
	ix := New(st)
	require.NoError(t, ix.Rescan(context.Background()))
	gen := ix.Status().Generation

	require.NoError(t, ix.Rename(tabletype.Item, 100000001, "Great Sword"))
	e, _ := ix.Get(tabletype.Item, 100000001)
	assert.Equal(t, "Great Sword", e.Name)
	assert.Equal(t, gen, ix.Status().Generation, "rename does not rescan")

	item, err := st.Get(tabletype.Item, 100000001)
	require.NoError(t, err)
	assert.Equal(t, "Great Sword", item.Name)

	assert.ErrorIs(t, ix.Rename(tabletype.Item, 999999999, "x"), store.ErrNotFound)
}

func TestSupersededScanIsDiscarded(t *testing.T) {
	st := seed(t)
	ix := New(st)
	require.NoError(t, ix.Rescan(context.Background()))

	ix.scanHook = func(typ tabletype.Type) {
		if typ != tabletype.Unit {
			return
		}
		ix.scanHook = nil
		// The store changes while the outer scan is in flight and a newer
		// scan runs to completion before the outer one resumes.
		require.NoError(t, st.Delete(tabletype.Unit, 134218426))
		require.NoError(t, st.Persist(map[string]any{"uid": int64(134200000), "name": "Knight"}, tabletype.Unit))
		require.NoError(t, ix.Rescan(context.Background()))
	}
	require.NoError(t, ix.Rescan(context.Background()))

	status := ix.Status()
	assert.Equal(t, uint64(3), status.Generation)
	assert.Equal(t, uint64(3), status.Applied)
	assert.Equal(t, Ready, ix.State())

	_, ok := ix.Get(tabletype.Unit, 134218426)
	assert.False(t, ok, "deleted entry must not survive")
	_, ok = ix.Get(tabletype.Unit, 134200000)
	assert.True(t, ok)
	_, ok = ix.Get(tabletype.Item, 100000001)
	assert.True(t, ok, "entries present before the event stay")
}

func TestRescanCancelled(t *testing.T) {
	ix := New(seed(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, ix.Rescan(ctx), context.Canceled)
	assert.Equal(t, Uninitialized, ix.State())
}

func TestWatchFollowsStore(t *testing.T) {
	st := seed(t)
	ix := New(st)
	ix.SetDebounce(20 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- ix.Watch(ctx) }()

	require.Eventually(t, func() bool { return ix.State() == Ready }, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, st.Persist(map[string]any{"uid": int64(134299999), "name": "Mage"}, tabletype.Unit))
	require.Eventually(t, func() bool {
		_, ok := ix.Get(tabletype.Unit, 134299999)
		return ok
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, st.Delete(tabletype.Unit, 134274912))
	require.Eventually(t, func() bool {
		_, ok := ix.Get(tabletype.Unit, 134274912)
		return !ok
	}, 5*time.Second, 10*time.Millisecond)

	// A type folder that did not exist when watching started.
	require.NoError(t, st.Persist(map[string]any{"uid": int64(100000077), "name": "Arrow"}, tabletype.Projectile))
	require.Eventually(t, func() bool {
		_, ok := ix.Get(tabletype.Projectile, 100000077)
		return ok
	}, 5*time.Second, 10*time.Millisecond)

	ix.Close()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop")
	}
}

func TestRequestRescanCoalesces(t *testing.T) {
	ix := New(seed(t))
	ix.SetDebounce(30 * time.Millisecond)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		ix.RequestRescan(ctx)
		time.Sleep(time.Millisecond)
	}
	require.Eventually(t, func() bool { return ix.State() == Ready }, 5*time.Second, 5*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.EqualValues(t, 1, ix.Status().Generation)

	ix.RequestRescan(ctx)
	ix.RequestRescan(ctx)
	ix.Close()
	time.Sleep(100 * time.Millisecond)
	assert.EqualValues(t, 1, ix.Status().Generation, "no rescan after Close")
}

func TestRegistry(t *testing.T) {
	root := t.TempDir()
	a := ForRoot(root)
	b := ForRoot(filepath.Join(root, "."))
	assert.Same(t, a, b)
	assert.NotSame(t, a, ForRoot(t.TempDir()))

	Drop(root)
	assert.NotSame(t, a, ForRoot(root))
	Drop(root)
}
