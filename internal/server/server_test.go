package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bfv/edtable/internal/csvedit"
	"github.com/bfv/edtable/internal/importer"
	"github.com/bfv/edtable/internal/index"
	"github.com/bfv/edtable/internal/source"
	"github.com/bfv/edtable/internal/store"
	"github.com/bfv/edtable/internal/tabletype"
	"github.com/bfv/edtable/internal/uid"
)

type fixture struct {
	dir string
	st  *store.Store
	ix  *index.Index
	csv *csvedit.Editor
	r   *gin.Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	dir := t.TempDir()
	st := store.New(filepath.Join(dir, "editor_table"))
	require.NoError(t, st.Persist(map[string]any{"uid": int64(134274912), "name": "Footman", "hp": int64(420)}, tabletype.Unit))
	require.NoError(t, st.Persist(map[string]any{"uid": int64(100000001), "name": "Sword"}, tabletype.Item))

	ix := index.New(st)
	require.NoError(t, ix.Rescan(context.Background()))
	ed := csvedit.New(filepath.Join(dir, "csv"), []uid.Source{st}, uid.WithSeed(1))

	require.NoError(t, source.WriteCSV(filepath.Join(dir, "units.csv"), [][]string{
		{"UID", "名称", "生命"},
		{"integer", "string", "integer"},
		{"134274912", "Captain", "500"},
		{"100000777", "Knight", "300"},
	}))
	rules := "rules:\n  - name: units\n    type: 单位\n    csv: units.csv\n    columns:\n      UID: uid\n      名称: name\n      生命: hp\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "rules.yaml"), []byte(rules), 0o644))

	s := New(ix, ed, importer.New(st), filepath.Join(dir, "rules.yaml"))
	return &fixture{dir: dir, st: st, ix: ix, csv: ed, r: s.Router()}
}

func (f *fixture) do(t *testing.T, method, path string, body any) (int, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.r.ServeHTTP(w, req)

	var out map[string]any
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	}
	return w.Code, out
}

func TestStatusAndSearch(t *testing.T) {
	f := newFixture(t)

	code, body := f.do(t, http.MethodGet, "/api/status", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ready", body["state"])
	assert.EqualValues(t, 2, body["entries"])

	code, body = f.do(t, http.MethodGet, "/api/search?q="+url.QueryEscape("单位"), nil)
	require.Equal(t, http.StatusOK, code)
	items := body["items"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, "Footman", items[0].(map[string]any)["name"])
}

func TestTree(t *testing.T) {
	f := newFixture(t)
	code, body := f.do(t, http.MethodGet, "/api/tree", nil)
	require.Equal(t, http.StatusOK, code)
	types := body["types"].([]any)
	require.Len(t, types, len(tabletype.All))
	first := types[0].(map[string]any)
	assert.Equal(t, "unit", first["type"])
	assert.Equal(t, "单位", first["label"])
}

func TestGetItem(t *testing.T) {
	f := newFixture(t)
	code, body := f.do(t, http.MethodGet, "/api/items/unit/134274912", nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 420, body["hp"])

	code, _ = f.do(t, http.MethodGet, "/api/items/unit/999999999", nil)
	assert.Equal(t, http.StatusNotFound, code)
	code, _ = f.do(t, http.MethodGet, "/api/items/wizard/1", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestRename(t *testing.T) {
	f := newFixture(t)
	code, body := f.do(t, http.MethodPut, "/api/items/"+url.PathEscape("物品")+"/100000001/name", map[string]string{"name": "Great Sword"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Great Sword", body["name"])

	item, err := f.st.Get(tabletype.Item, 100000001)
	require.NoError(t, err)
	assert.Equal(t, "Great Sword", item.Name)

	code, _ = f.do(t, http.MethodPut, "/api/items/item/100000001/name", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestRewriteUID(t *testing.T) {
	f := newFixture(t)
	code, _ := f.do(t, http.MethodPut, "/api/items/unit/134274912/uid", map[string]int64{"uid": 100000001})
	require.Equal(t, http.StatusOK, code, "item uid does not collide with units")

	assert.False(t, f.st.Exists(tabletype.Unit, 134274912))
	_, ok := f.ix.Get(tabletype.Unit, 100000001)
	assert.True(t, ok)

	require.NoError(t, f.st.Persist(map[string]any{"uid": int64(100000002), "name": "Archer"}, tabletype.Unit))
	code, _ = f.do(t, http.MethodPut, "/api/items/unit/100000001/uid", map[string]int64{"uid": 100000002})
	assert.Equal(t, http.StatusConflict, code)
	code, _ = f.do(t, http.MethodPut, "/api/items/unit/100000001/uid", map[string]int64{"uid": 42})
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = f.do(t, http.MethodPut, "/api/items/unit/555555555/uid", map[string]int64{"uid": 123456789})
	assert.Equal(t, http.StatusNotFound, code)
}

func TestAllocate(t *testing.T) {
	f := newFixture(t)
	code, body := f.do(t, http.MethodPost, "/api/uid/unit", nil)
	require.Equal(t, http.StatusCreated, code)
	u := int64(body["uid"].(float64))
	assert.True(t, uid.Valid(u))
	assert.NotEqual(t, int64(134274912), u)
}

func TestCSVWorkflow(t *testing.T) {
	f := newFixture(t)

	code, body := f.do(t, http.MethodPost, "/api/csv/unit", map[string]string{"name": "Mage"})
	require.Equal(t, http.StatusCreated, code)
	newUID := int64(body["uid"].(float64))

	code, _ = f.do(t, http.MethodPost, "/api/csv/unit/134274912", nil)
	require.Equal(t, http.StatusCreated, code)
	code, _ = f.do(t, http.MethodPost, "/api/csv/unit/134274912", nil)
	assert.Equal(t, http.StatusConflict, code)

	code, body = f.do(t, http.MethodGet, "/api/csv?q=mage", nil)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, body["rows"].([]any), 1)

	code, _ = f.do(t, http.MethodPut, "/api/csv/rows/134274912/name", map[string]string{"name": "Footman II"})
	require.Equal(t, http.StatusOK, code)

	code, _ = f.do(t, http.MethodPut, "/api/csv/rows/134274912/uid", map[string]int64{"uid": newUID})
	assert.Equal(t, http.StatusConflict, code)
	code, _ = f.do(t, http.MethodPut, "/api/csv/rows/134274912/uid", map[string]int64{"uid": 123123123})
	require.Equal(t, http.StatusOK, code)

	got, err := f.csv.UIDs(tabletype.Unit)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{newUID, 123123123}, got)
}

func TestImport(t *testing.T) {
	f := newFixture(t)
	code, body := f.do(t, http.MethodPost, "/api/import", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["ok"])
	assert.NotEmpty(t, body["run"])
	rules := body["rules"].([]any)
	require.Len(t, rules, 1)
	assert.EqualValues(t, 2, rules[0].(map[string]any)["persisted"])

	e, ok := f.ix.Get(tabletype.Unit, 134274912)
	require.True(t, ok)
	assert.Equal(t, "Captain", e.Name)
	_, ok = f.ix.Get(tabletype.Unit, 100000777)
	assert.True(t, ok)
}
