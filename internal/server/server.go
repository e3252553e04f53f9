// Package server exposes the record index, UID allocation, CSV editing and
// import over HTTP for editor tooling running next to the project.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/bfv/edtable/internal/csvedit"
	"github.com/bfv/edtable/internal/importer"
	"github.com/bfv/edtable/internal/index"
	"github.com/bfv/edtable/internal/store"
	"github.com/bfv/edtable/internal/uid"
)

// Server holds the components the handlers operate on.
type Server struct {
	ix    *index.Index
	st    *store.Store
	csv   *csvedit.Editor
	alloc *uid.Allocator
	imp   *importer.Importer
	rules string
	log   zerolog.Logger
}

// New returns a Server over ix. UIDs are allocated from csv's allocator so
// CSV edits and record rewrites share one session scope. rules is the rules
// file run by the import endpoint; it may be empty.
func New(ix *index.Index, csv *csvedit.Editor, imp *importer.Importer, rules string) *Server {
	return &Server{
		ix:    ix,
		st:    ix.Store(),
		csv:   csv,
		alloc: csv.Allocator(),
		imp:   imp,
		rules: rules,
		log:   log.With().Str("component", "server").Logger(),
	}
}

// Router builds the gin engine with every route registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(s.log))

	api := r.Group("/api")
	{
		api.GET("/status", StatusHandler(s))
		api.GET("/search", SearchHandler(s))
		api.GET("/tree", TreeHandler(s))

		api.GET("/items/:type/:uid", GetItemHandler(s))
		api.PUT("/items/:type/:uid/name", RenameHandler(s))
		api.PUT("/items/:type/:uid/uid", RewriteUIDHandler(s))

		api.POST("/uid/:type", AllocateHandler(s))

		api.GET("/csv", CSVSearchHandler(s))
		api.POST("/csv/:type", CSVAddHandler(s))
		api.POST("/csv/:type/:uid", CSVAddFromProjectHandler(s))
		api.PUT("/csv/rows/:uid/name", CSVRenameHandler(s))
		api.PUT("/csv/rows/:uid/uid", CSVRewriteUIDHandler(s))

		api.POST("/import", ImportHandler(s))
	}
	return r
}

// Run serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Router()}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.log.Info().Str("addr", addr).Msg("listening")

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func requestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("took", time.Since(start)).
			Msg("request")
	}
}
