package commands

import (
	"fmt"
	"strconv"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/bfv/edtable/internal/tabletype"
)

// NewCSVCmd builds and returns the 'csv' cobra command group.
func NewCSVCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "csv",
		Short: "Edit the per-type CSV sheets",
	}
	cmd.AddCommand(
		newCSVListCmd(),
		newCSVAddCmd(),
		newCSVAddFromProjectCmd(),
		newCSVRenameCmd(),
		newCSVRewriteUIDCmd(),
	)
	return cmd
}

func newCSVListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list [query]",
		Short: "List CSV rows matching UID, name or type label",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := ""
			if len(args) == 1 {
				query = args[0]
			}
			ws, err := openWorkspace()
			if err != nil {
				return err
			}
			found, err := ws.csv.Search(query)
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(found))
			for _, e := range found {
				rows = append(rows, []string{
					e.Type.Label(), strconv.FormatInt(e.UID, 10), e.Name, e.Path + ":" + strconv.Itoa(e.Row),
				})
			}
			printTable(cmd.OutOrStdout(), []string{"TYPE", "UID", "NAME", "LOCATION"}, rows)
			return nil
		},
	}
}

func newCSVAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <type> <name>",
		Short: "Append a row with a new conflict-free UID",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := tabletype.Parse(args[0])
			if err != nil {
				return err
			}
			ws, err := openWorkspace()
			if err != nil {
				return err
			}
			u, err := ws.csv.AddNew(t, args[1])
			if err != nil {
				return fmt.Errorf("adding %s row: %w", t, err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), u)
			return nil
		},
	}
}

func newCSVAddFromProjectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add-from-project <type> <uid>",
		Short: "Append the UID and name of an existing record to the type's sheet",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, u, err := parseTypeUID(args[0], args[1])
			if err != nil {
				return err
			}
			ws, err := openWorkspace()
			if err != nil {
				return err
			}
			item, err := ws.st.Get(t, u)
			if err != nil {
				return err
			}
			if err := ws.csv.AddFromProject(item.Type, item.UID, item.Name); err != nil {
				return err
			}
			log.Info().Str("type", string(t)).Int64("uid", u).Str("name", item.Name).Msg("record added to csv")
			return nil
		},
	}
}

func newCSVRenameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rename <uid> <name>",
		Short: "Change the name of the CSV rows carrying uid",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := parseUID(args[0])
			if err != nil {
				return err
			}
			ws, err := openWorkspace()
			if err != nil {
				return err
			}
			return ws.csv.ModifyName(u, args[1])
		},
	}
}

func newCSVRewriteUIDCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rewrite-uid <uid> <new-uid>",
		Short: "Replace a UID in the CSV sheets after checking the new one is free",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := parseUID(args[0])
			if err != nil {
				return err
			}
			newUID, err := parseUID(args[1])
			if err != nil {
				return err
			}
			ws, err := openWorkspace()
			if err != nil {
				return err
			}
			return ws.csv.ModifyUID(u, newUID)
		},
	}
}
