package commands

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/bfv/edtable/internal/importer"
	"github.com/bfv/edtable/internal/server"
)

// NewWatchCmd builds and returns the 'watch' cobra command.
func NewWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep the record index current and log every rescan until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			log.Info().Str("store", ws.st.Root()).Dur("debounce", ws.cfg.Debounce).Msg("watch started")
			return ws.ix.Watch(ctx)
		},
	}
	cmd.Flags().Duration("debounce", 0, "Quiet period before a rescan (default from config)")
	return cmd
}

// NewServeCmd builds and returns the 'serve' cobra command.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve search, rename, UID and CSV operations over HTTP while watching the store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd)
		},
	}
	cmd.Flags().String("listen", "", "Listen address (default from config)")
	cmd.Flags().Duration("debounce", 0, "Quiet period before a rescan (default from config)")
	cmd.Flags().StringP("rules", "r", "", "Rules file run by POST /api/import (default from config)")
	return cmd
}

// runServe is the entry point for the serve command.
func runServe(cmd *cobra.Command) error {
	ws, err := openWorkspace()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	watchErr := make(chan error, 1)
	go func() { watchErr <- ws.ix.Watch(ctx) }()

	srv := server.New(ws.ix, ws.csv, importer.New(ws.st), ws.cfg.Rules)
	serveErr := srv.Run(ctx, ws.cfg.Listen)
	stop()
	ws.ix.Close()
	if err := <-watchErr; err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("watcher stopped")
	}
	return serveErr
}
