package commands

import (
	"errors"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/bfv/edtable/internal/config"
	"github.com/bfv/edtable/internal/csvedit"
	"github.com/bfv/edtable/internal/index"
	"github.com/bfv/edtable/internal/store"
	"github.com/bfv/edtable/internal/uid"
)

var (
	cfgFile string
	cfg     *config.Config
)

// flagKeys maps command line flags to config keys. Flags a command does not
// define are skipped when binding.
var flagKeys = map[string]string{
	"project":      config.KeyProject,
	"editor-table": config.KeyEditorTable,
	"csv-root":     config.KeyCSVRoot,
	"uid-scope":    config.KeyUIDScope,
	"rules":        config.KeyRules,
	"listen":       config.KeyListen,
	"debounce":     config.KeyDebounce,
}

// AddConfigFlags registers the persistent flags shared by every command.
func AddConfigFlags(root *cobra.Command) {
	pf := root.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "Config file (default edtable.yaml in the project or working directory)")
	pf.StringP("project", "p", "", "Project root directory")
	pf.String("editor-table", "", "Record store root (default <project>/editor_table)")
	pf.String("csv-root", "", "CSV sheet root (default <project>/script/y3-helper/editor_table/csv)")
	pf.String("uid-scope", "", "UID uniqueness scope: type or global")
}

// LoadConfig binds the flags of cmd into viper and resolves the config.
func LoadConfig(cmd *cobra.Command) error {
	v := viper.GetViper()
	for flag, key := range flagKeys {
		f := cmd.Flags().Lookup(flag)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return err
		}
	}
	c, err := config.Load(v, cfgFile)
	if err != nil {
		return err
	}
	cfg = c
	return nil
}

// ── Workspace ─────────────────────────────────────────────────────────────────

// workspace wires the components one command works with.
type workspace struct {
	cfg *config.Config
	st  *store.Store
	ix  *index.Index
	csv *csvedit.Editor
}

func openWorkspace() (*workspace, error) {
	if cfg == nil {
		return nil, errors.New("configuration not loaded")
	}
	ix := index.ForRoot(cfg.EditorTable)
	ix.SetDebounce(cfg.Debounce)
	st := ix.Store()
	ed := csvedit.New(cfg.CSVRoot, []uid.Source{st}, uid.WithGlobalScope(cfg.GlobalUIDScope()))
	return &workspace{cfg: cfg, st: st, ix: ix, csv: ed}, nil
}

func (w *workspace) alloc() *uid.Allocator { return w.csv.Allocator() }
