package csvedit

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bfv/edtable/internal/source"
	"github.com/bfv/edtable/internal/store"
	"github.com/bfv/edtable/internal/tabletype"
	"github.com/bfv/edtable/internal/uid"
)

func fixture(t *testing.T) (*Editor, *store.Store) {
	t.Helper()
	dir := t.TempDir()
	st := store.New(filepath.Join(dir, "editor_table"))
	require.NoError(t, st.Persist(map[string]any{"uid": int64(100000005), "name": "Stored"}, tabletype.Unit))

	ed := New(filepath.Join(dir, "csv"), []uid.Source{st}, uid.WithSeed(7))
	require.NoError(t, source.WriteCSV(filepath.Join(ed.Dir(tabletype.Unit), "a_units.csv"), [][]string{
		{"UID", "名称", "生命"},
		{"integer", "string", "integer"},
		{"100000001", "Footman", "420"},
		{"100000002", "Archer", "300"},
	}))
	require.NoError(t, source.WriteCSV(filepath.Join(ed.Dir(tabletype.Unit), "b_heroes.csv"), [][]string{
		{"name", "uid"},
		{"string", "integer"},
		{"Paladin", "100000003"},
		{"", ""},
	}))
	return ed, st
}

func readRows(t *testing.T, path string) [][]string {
	t.Helper()
	s, err := source.ReadCSV(path)
	require.NoError(t, err)
	return s.Rows
}

func TestUIDsAcrossSheets(t *testing.T) {
	ed, _ := fixture(t)
	got, err := ed.UIDs(tabletype.Unit)
	require.NoError(t, err)
	assert.Equal(t, []int64{100000001, 100000002, 100000003}, got)

	none, err := ed.UIDs(tabletype.Item)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSearch(t *testing.T) {
	ed, _ := fixture(t)
	got, err := ed.Search("pal")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(100000003), got[0].UID)
	assert.Equal(t, 3, got[0].Row)

	got, err = ed.Search("单位")
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestAddNewAvoidsCSVAndStore(t *testing.T) {
	dir := t.TempDir()
	st := store.New(filepath.Join(dir, "editor_table"))
	require.NoError(t, st.Persist(map[string]any{"uid": int64(100000002), "name": "Stored"}, tabletype.Unit))
	ed := New(filepath.Join(dir, "csv"), []uid.Source{st}, uid.WithRange(100000000, 100000003))
	require.NoError(t, source.WriteCSV(filepath.Join(ed.Dir(tabletype.Unit), "units.csv"), [][]string{
		{"uid", "name"},
		{"integer", "string"},
		{"100000000", "a"},
		{"100000001", "b"},
	}))

	u, err := ed.AddNew(tabletype.Unit, "Knight")
	require.NoError(t, err)
	assert.Equal(t, int64(100000003), u)

	rows := readRows(t, filepath.Join(ed.Dir(tabletype.Unit), "units.csv"))
	assert.Equal(t, []string{"100000003", "Knight"}, rows[len(rows)-1])

	_, err = ed.AddNew(tabletype.Unit, "Squire")
	assert.ErrorIs(t, err, uid.ErrExhausted)
}

func TestAddNewCreatesSheet(t *testing.T) {
	ed, _ := fixture(t)
	u, err := ed.AddNew(tabletype.Item, "Sword")
	require.NoError(t, err)
	assert.True(t, uid.Valid(u))

	rows := readRows(t, filepath.Join(ed.Dir(tabletype.Item), "物品.csv"))
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"uid", "name"}, rows[0])
	assert.Equal(t, "Sword", rows[2][1])
}

func TestAddFromProject(t *testing.T) {
	ed, st := fixture(t)
	item, err := st.Get(tabletype.Unit, 100000005)
	require.NoError(t, err)

	require.NoError(t, ed.AddFromProject(item.Type, item.UID, item.Name))
	rows := readRows(t, filepath.Join(ed.Dir(tabletype.Unit), "a_units.csv"))
	assert.Equal(t, []string{"100000005", "Stored", ""}, rows[len(rows)-1])

	assert.ErrorIs(t, ed.AddFromProject(tabletype.Unit, 100000005, "Stored"), ErrListed)
}

func TestModifyName(t *testing.T) {
	ed, _ := fixture(t)
	require.NoError(t, ed.ModifyName(100000003, "Crusader"))

	rows := readRows(t, filepath.Join(ed.Dir(tabletype.Unit), "b_heroes.csv"))
	assert.Equal(t, []string{"Crusader", "100000003"}, rows[2])

	assert.ErrorIs(t, ed.ModifyName(999999999, "x"), ErrNotFound)
}

func TestModifyUID(t *testing.T) {
	ed, _ := fixture(t)
	path := filepath.Join(ed.Dir(tabletype.Unit), "a_units.csv")

	require.NoError(t, ed.ModifyUID(100000001, 123456789))
	assert.Equal(t, "123456789", readRows(t, path)[2][0])

	t.Run("collision with csv", func(t *testing.T) {
		err := ed.ModifyUID(100000002, 100000003)
		assert.ErrorIs(t, err, uid.ErrCollision)
		assert.Equal(t, "100000002", readRows(t, path)[3][0])
	})
	t.Run("collision with store", func(t *testing.T) {
		assert.ErrorIs(t, ed.ModifyUID(100000002, 100000005), uid.ErrCollision)
	})
	t.Run("not nine digits", func(t *testing.T) {
		assert.ErrorIs(t, ed.ModifyUID(100000002, 12345), uid.ErrInvalid)
	})
	t.Run("unknown uid", func(t *testing.T) {
		assert.ErrorIs(t, ed.ModifyUID(111111111, 222222222), ErrNotFound)
	})
}
