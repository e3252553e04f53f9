package commands

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/bfv/edtable/internal/csvedit"
	"github.com/bfv/edtable/internal/index"
	"github.com/bfv/edtable/internal/tabletype"
)

// diffRow holds one line of diff output.
type diffRow struct {
	t         tabletype.Type
	uid       int64
	csvName   string
	storeName string
	inCSV     bool
	inStore   bool
}

// NewDiffCmd builds and returns the 'diff' cobra command.
func NewDiffCmd() *cobra.Command {
	var outputFile, typeFilter string

	cmd := &cobra.Command{
		Use:   "diff",
		Short: "Show records whose CSV rows and stored files disagree",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiff(cmd, typeFilter, outputFile)
		},
	}
	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Write output to file instead of stdout")
	cmd.Flags().StringVarP(&typeFilter, "type", "t", "", "Only compare this type")
	return cmd
}

// runDiff is the entry point for the diff command.
func runDiff(cmd *cobra.Command, typeFilter, outputPath string) (err error) {
	types := tabletype.All
	if typeFilter != "" {
		t, err := tabletype.Parse(typeFilter)
		if err != nil {
			return err
		}
		types = []tabletype.Type{t}
	}
	ws, err := openWorkspace()
	if err != nil {
		return err
	}
	if err := ws.ix.Rescan(cmd.Context()); err != nil {
		return fmt.Errorf("scanning store: %w", err)
	}
	tree := ws.ix.Tree()

	var rows []diffRow
	for _, t := range types {
		entries, err := ws.csv.Entries(t)
		if err != nil {
			return fmt.Errorf("reading %s sheets: %w", t, err)
		}
		rows = append(rows, diffType(t, entries, tree[t])...)
	}
	log.Debug().Int("differences", len(rows)).Msg("diff complete")

	if len(rows) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No differences found.")
		return nil
	}
	w, closeOut, err := outputWriter(cmd.OutOrStdout(), outputPath)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := closeOut(); cerr != nil && err == nil {
			err = fmt.Errorf("closing output: %w", cerr)
		}
	}()

	const missing = "(not present)"
	cells := make([][]string, 0, len(rows))
	for _, r := range rows {
		csvName, storeName := r.csvName, r.storeName
		if !r.inCSV {
			csvName = missing
		}
		if !r.inStore {
			storeName = missing
		}
		cells = append(cells, []string{r.t.Label(), strconv.FormatInt(r.uid, 10), csvName, storeName})
	}
	printTable(w, []string{"TYPE", "UID", "CSV NAME", "STORE NAME"}, cells)
	return nil
}

// diffType compares the CSV rows and stored records of one type. Rows with
// an empty CSV name are not reported as a rename.
func diffType(t tabletype.Type, rows []csvedit.Entry, stored []index.Entry) []diffRow {
	csvNames := map[int64]string{}
	for _, r := range rows {
		if _, dup := csvNames[r.UID]; !dup {
			csvNames[r.UID] = r.Name
		}
	}
	storeNames := map[int64]string{}
	for _, e := range stored {
		storeNames[e.UID] = e.Name
	}

	var out []diffRow
	for u, cn := range csvNames {
		sn, ok := storeNames[u]
		switch {
		case !ok:
			out = append(out, diffRow{t: t, uid: u, csvName: cn, inCSV: true})
		case sn != cn && cn != "":
			out = append(out, diffRow{t, u, cn, sn, true, true})
		}
	}
	for u, sn := range storeNames {
		if _, ok := csvNames[u]; !ok {
			out = append(out, diffRow{t: t, uid: u, storeName: sn, inStore: true})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].uid < out[j].uid })
	return out
}
