package commands

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/bfv/edtable/internal/importer"
)

// NewImportCmd builds and returns the 'import' cobra command.
func NewImportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import [rules.yaml]",
		Short: "Run import rules and merge the rows into the record store",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rulesPath := cfg.Rules
			if len(args) == 1 {
				rulesPath = args[0]
			}
			return runImport(cmd, rulesPath)
		},
	}
	cmd.Flags().StringP("rules", "r", "", "Rules file (default from config)")
	return cmd
}

// runImport is the entry point for the import command.
func runImport(cmd *cobra.Command, rulesPath string) error {
	if rulesPath == "" {
		return errors.New("no rules file given; pass one or set 'rules' in the config")
	}
	ws, err := openWorkspace()
	if err != nil {
		return err
	}
	log.Debug().Str("rules", rulesPath).Str("store", ws.st.Root()).Msg("import started")

	rep, err := importer.New(ws.st).RunFile(cmd.Context(), rulesPath)
	if err != nil {
		return err
	}
	printReport(cmd.OutOrStdout(), rep)
	if !rep.OK() {
		return fmt.Errorf("import %s: some rules did not complete", rep.RunID)
	}
	return nil
}

func printReport(w io.Writer, rep *importer.Report) {
	rows := make([][]string, 0, len(rep.Results))
	for _, res := range rep.Results {
		status := "ok"
		if res.Err != nil {
			status = res.Err.Error()
		}
		rows = append(rows, []string{
			res.Rule,
			res.Type,
			strconv.Itoa(res.Rows),
			strconv.Itoa(res.Persisted),
			strconv.Itoa(len(res.CellErrors)),
			strconv.Itoa(len(res.RowErrors)),
			status,
		})
	}
	printTable(w, []string{"RULE", "TYPE", "ROWS", "PERSISTED", "CELL ERRORS", "ROW ERRORS", "STATUS"}, rows)

	for _, res := range rep.Results {
		for _, re := range res.RowErrors {
			fmt.Fprintf(w, "row skipped: %v\n", re)
		}
	}
	fmt.Fprintf(w, "run %s finished in %s\n", rep.RunID, rep.Finished.Sub(rep.Started).Round(time.Millisecond))
}
