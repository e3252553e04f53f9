package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/bfv/edtable/internal/index"
	"github.com/bfv/edtable/internal/tabletype"
)

// NewSearchCmd builds and returns the 'search' cobra command.
func NewSearchCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Find records by UID, name or type label",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := ""
			if len(args) == 1 {
				query = args[0]
			}
			return runSearch(cmd, query, asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print entries as JSON")
	return cmd
}

// runSearch is the entry point for the search command.
func runSearch(cmd *cobra.Command, query string, asJSON bool) error {
	ws, err := openWorkspace()
	if err != nil {
		return err
	}
	if err := ws.ix.Rescan(cmd.Context()); err != nil {
		return fmt.Errorf("scanning store: %w", err)
	}
	entries := ws.ix.Search(query)
	log.Debug().Str("query", query).Int("matches", len(entries)).Msg("search complete")

	if asJSON {
		return writeJSON(cmd.OutOrStdout(), entries)
	}
	if len(entries) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No matching records.")
		return nil
	}
	printEntries(cmd.OutOrStdout(), entries)
	return nil
}

func printEntries(w io.Writer, entries []index.Entry) {
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{e.Label(), strconv.FormatInt(e.UID, 10), e.Name, e.Path})
	}
	printTable(w, []string{"TYPE", "UID", "NAME", "PATH"}, rows)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// NewRenameCmd builds and returns the 'rename' cobra command.
func NewRenameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rename <type> <uid> <name>",
		Short: "Write a new name into a record",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, u, err := parseTypeUID(args[0], args[1])
			if err != nil {
				return err
			}
			ws, err := openWorkspace()
			if err != nil {
				return err
			}
			if err := ws.ix.Rename(t, u, args[2]); err != nil {
				return fmt.Errorf("renaming %s %d: %w", t, u, err)
			}
			log.Info().Str("type", string(t)).Int64("uid", u).Str("name", args[2]).Msg("record renamed")
			return nil
		},
	}
}

// NewIndexCmd builds and returns the 'index' cobra command.
func NewIndexCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Scan the record store and print every record grouped by type",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace()
			if err != nil {
				return err
			}
			if err := ws.ix.Rescan(cmd.Context()); err != nil {
				return fmt.Errorf("scanning store: %w", err)
			}
			tree := ws.ix.Tree()
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), tree)
			}
			w := cmd.OutOrStdout()
			for _, t := range tabletype.All {
				fmt.Fprintf(w, "%s (%s) %d\n", t.Label(), t, len(tree[t]))
				for _, e := range tree[t] {
					fmt.Fprintf(w, "  %d  %s\n", e.UID, e.Name)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the tree as JSON")
	return cmd
}

func parseTypeUID(typeText, uidText string) (tabletype.Type, int64, error) {
	t, err := tabletype.Parse(typeText)
	if err != nil {
		return "", 0, err
	}
	u, err := parseUID(uidText)
	if err != nil {
		return "", 0, err
	}
	return t, u, nil
}

func parseUID(s string) (int64, error) {
	u, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid uid %q", s)
	}
	return u, nil
}
