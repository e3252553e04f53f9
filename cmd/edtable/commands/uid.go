package commands

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/bfv/edtable/internal/tabletype"
)

// NewUIDCmd builds and returns the 'uid' cobra command group.
func NewUIDCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "uid",
		Short: "Allocate or rewrite record UIDs",
	}
	cmd.AddCommand(newUIDAllocateCmd(), newUIDRewriteCmd())
	return cmd
}

func newUIDAllocateCmd() *cobra.Command {
	var count int

	cmd := &cobra.Command{
		Use:   "allocate <type>",
		Short: "Print UIDs free in the type's scope (record store and CSV sheets)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := tabletype.Parse(args[0])
			if err != nil {
				return err
			}
			if count < 1 {
				return fmt.Errorf("count must be at least 1, got %d", count)
			}
			ws, err := openWorkspace()
			if err != nil {
				return err
			}
			for i := 0; i < count; i++ {
				u, err := ws.alloc().Allocate(t)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), u)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 1, "Number of UIDs to allocate")
	return cmd
}

func newUIDRewriteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rewrite <type> <uid> <new-uid>",
		Short: "Move a record to a new UID after checking it is free",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, oldUID, err := parseTypeUID(args[0], args[1])
			if err != nil {
				return err
			}
			newUID, err := parseUID(args[2])
			if err != nil {
				return err
			}
			ws, err := openWorkspace()
			if err != nil {
				return err
			}
			if _, err := ws.st.Get(t, oldUID); err != nil {
				return err
			}
			alloc := ws.alloc()
			if err := alloc.Claim(t, newUID); err != nil {
				return fmt.Errorf("rewriting %s %d: %w", t, oldUID, err)
			}
			if err := ws.st.RewriteUID(t, oldUID, newUID); err != nil {
				alloc.Release(t, newUID)
				return fmt.Errorf("rewriting %s %d: %w", t, oldUID, err)
			}
			log.Info().Str("type", string(t)).Int64("old", oldUID).Int64("new", newUID).Msg("uid rewritten")
			return nil
		},
	}
}
