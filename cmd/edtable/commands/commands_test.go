package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bfv/edtable/internal/config"
	"github.com/bfv/edtable/internal/csvedit"
	"github.com/bfv/edtable/internal/index"
	"github.com/bfv/edtable/internal/rule"
	"github.com/bfv/edtable/internal/source"
	"github.com/bfv/edtable/internal/store"
	"github.com/bfv/edtable/internal/tabletype"
)

func useProject(t *testing.T) string {
	t.Helper()
	project := t.TempDir()
	v := viper.New()
	v.Set(config.KeyProject, project)
	c, err := config.Load(v, "")
	require.NoError(t, err)
	cfg = c
	t.Cleanup(func() {
		index.Drop(c.EditorTable)
		cfg = nil
	})
	return project
}

func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestPrintTable(t *testing.T) {
	var buf bytes.Buffer
	printTable(&buf, []string{"TYPE", "UID"}, [][]string{{"单位", "100000001"}, {"可破坏物", "7"}})
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "TYPE  UID", lines[0])
	assert.Equal(t, "----  ---------", lines[1])
	assert.Equal(t, "单位    100000001", lines[2])
	assert.Equal(t, "可破坏物  7", lines[3])
}

func TestDiffType(t *testing.T) {
	rows := []csvedit.Entry{
		{UID: 1, Name: "same"},
		{UID: 2, Name: "csv name"},
		{UID: 3, Name: "only csv"},
		{UID: 4, Name: ""},
	}
	stored := []index.Entry{
		{UID: 1, Name: "same"},
		{UID: 2, Name: "store name"},
		{UID: 4, Name: "unnamed in csv"},
		{UID: 5, Name: "only store"},
	}
	got := diffType(tabletype.Unit, rows, stored)
	require.Len(t, got, 3)
	assert.Equal(t, diffRow{tabletype.Unit, 2, "csv name", "store name", true, true}, got[0])
	assert.Equal(t, int64(3), got[1].uid)
	assert.False(t, got[1].inStore)
	assert.Equal(t, int64(5), got[2].uid)
	assert.False(t, got[2].inCSV)
}

func TestRulesInitThenCheck(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "units.csv")
	require.NoError(t, source.WriteCSV(src, [][]string{
		{"UID", "名称", "简易普攻.攻击点", ""},
		{"integer", "string", "number", "string"},
	}))
	rulesPath := filepath.Join(dir, "rules.yaml")

	_, err := execute(t, NewRulesCmd(), "init", src, "--type", "unit", "-o", rulesPath)
	require.NoError(t, err)

	rules, err := rule.LoadFile(rulesPath)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	r := rules[0]
	assert.Equal(t, tabletype.Unit, r.Type)
	assert.Equal(t, src, r.Source)
	assert.Equal(t, map[string]string{
		"UID":      "uid",
		"名称":       "name",
		"简易普攻.攻击点": "简易普攻.攻击点",
		"4":        "4",
	}, r.Columns)

	out, err := execute(t, NewRulesCmd(), "check", rulesPath)
	require.NoError(t, err)
	assert.Contains(t, out, "units")
}

func TestImportSearchAndDiff(t *testing.T) {
	project := useProject(t)
	src := filepath.Join(project, "units.csv")
	require.NoError(t, source.WriteCSV(src, [][]string{
		{"UID", "名称"},
		{"integer", "string"},
		{"100000001", "Footman"},
	}))
	rules := "rules:\n  - name: units\n    type: unit\n    csv: units.csv\n    columns:\n      UID: uid\n      名称: name\n"
	rulesPath := filepath.Join(project, "rules.yaml")
	require.NoError(t, os.WriteFile(rulesPath, []byte(rules), 0o644))

	out, err := execute(t, NewImportCmd(), rulesPath)
	require.NoError(t, err)
	assert.Contains(t, out, "units")

	st := store.New(cfg.EditorTable)
	assert.True(t, st.Exists(tabletype.Unit, 100000001))

	out, err = execute(t, NewSearchCmd(), "foot")
	require.NoError(t, err)
	assert.Contains(t, out, "100000001")
	assert.Contains(t, out, "Footman")

	out, err = execute(t, NewDiffCmd(), "--type", "unit")
	require.NoError(t, err)
	assert.Contains(t, out, "(not present)", "record is not in any csv sheet yet")

	report := filepath.Join(project, "diff.txt")
	out, err = execute(t, NewDiffCmd(), "--type", "unit", "-o", report)
	require.NoError(t, err)
	assert.Empty(t, out)
	data, err := os.ReadFile(report)
	require.NoError(t, err)
	assert.Contains(t, string(data), "STORE NAME")

	_, err = execute(t, NewCSVCmd(), "add-from-project", "unit", "100000001")
	require.NoError(t, err)
	out, err = execute(t, NewDiffCmd(), "--type", "unit")
	require.NoError(t, err)
	assert.Contains(t, out, "No differences found.")
}

func TestUIDCommands(t *testing.T) {
	useProject(t)
	st := store.New(cfg.EditorTable)
	require.NoError(t, st.Persist(map[string]any{"uid": int64(100000001), "name": "Footman"}, tabletype.Unit))

	out, err := execute(t, NewUIDCmd(), "allocate", "unit", "-n", "3")
	require.NoError(t, err)
	assert.Len(t, strings.Fields(out), 3)

	_, err = execute(t, NewUIDCmd(), "rewrite", "unit", "100000001", "123456789")
	require.NoError(t, err)
	assert.True(t, st.Exists(tabletype.Unit, 123456789))

	_, err = execute(t, NewUIDCmd(), "rewrite", "unit", "123456789", "42")
	assert.Error(t, err)
}
