package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bfv/edtable/internal/csvedit"
	"github.com/bfv/edtable/internal/importer"
	"github.com/bfv/edtable/internal/store"
	"github.com/bfv/edtable/internal/tabletype"
	"github.com/bfv/edtable/internal/uid"
)

type nameBody struct {
	Name string `json:"name" binding:"required"`
}

type uidBody struct {
	UID int64 `json:"uid" binding:"required"`
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, csvedit.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, uid.ErrCollision), errors.Is(err, store.ErrExists), errors.Is(err, csvedit.ErrListed):
		return http.StatusConflict
	case errors.Is(err, uid.ErrInvalid):
		return http.StatusBadRequest
	case errors.Is(err, uid.ErrExhausted):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func fail(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}

func typeParam(c *gin.Context) (tabletype.Type, bool) {
	t, err := tabletype.Parse(c.Param("type"))
	if err != nil {
		badRequest(c, err.Error())
		return "", false
	}
	return t, true
}

func uidParam(c *gin.Context) (int64, bool) {
	u, err := strconv.ParseInt(c.Param("uid"), 10, 64)
	if err != nil {
		badRequest(c, "uid must be an integer")
		return 0, false
	}
	return u, true
}

// GET /api/status
func StatusHandler(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, s.ix.Status())
	}
}

// GET /api/search?q=
func SearchHandler(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"items": s.ix.Search(c.Query("q"))})
	}
}

// GET /api/tree
func TreeHandler(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		tree := s.ix.Tree()
		groups := make([]gin.H, 0, len(tabletype.All))
		for _, t := range tabletype.All {
			groups = append(groups, gin.H{
				"type":  t,
				"label": t.Label(),
				"items": tree[t],
			})
		}
		c.JSON(http.StatusOK, gin.H{"types": groups})
	}
}

// GET /api/items/:type/:uid
func GetItemHandler(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		t, ok := typeParam(c)
		if !ok {
			return
		}
		u, ok := uidParam(c)
		if !ok {
			return
		}
		item, err := s.st.Get(t, u)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, item.Fields)
	}
}

// PUT /api/items/:type/:uid/name
func RenameHandler(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		t, ok := typeParam(c)
		if !ok {
			return
		}
		u, ok := uidParam(c)
		if !ok {
			return
		}
		var body nameBody
		if err := c.ShouldBindJSON(&body); err != nil {
			badRequest(c, "body must be {\"name\": ...}")
			return
		}
		if err := s.ix.Rename(t, u, body.Name); err != nil {
			fail(c, err)
			return
		}
		e, _ := s.ix.Get(t, u)
		c.JSON(http.StatusOK, e)
	}
}

// PUT /api/items/:type/:uid/uid
func RewriteUIDHandler(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		t, ok := typeParam(c)
		if !ok {
			return
		}
		u, ok := uidParam(c)
		if !ok {
			return
		}
		var body uidBody
		if err := c.ShouldBindJSON(&body); err != nil {
			badRequest(c, "body must be {\"uid\": ...}")
			return
		}
		if !s.st.Exists(t, u) {
			fail(c, fmt.Errorf("%s %d: %w", t, u, store.ErrNotFound))
			return
		}
		if err := s.alloc.Claim(t, body.UID); err != nil {
			fail(c, err)
			return
		}
		if err := s.st.RewriteUID(t, u, body.UID); err != nil {
			s.alloc.Release(t, body.UID)
			fail(c, err)
			return
		}
		if err := s.ix.Rescan(c.Request.Context()); err != nil {
			s.log.Warn().Err(err).Msg("rescan after uid rewrite failed")
		}
		c.JSON(http.StatusOK, gin.H{"type": t, "old": u, "uid": body.UID})
	}
}

// POST /api/uid/:type
func AllocateHandler(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		t, ok := typeParam(c)
		if !ok {
			return
		}
		u, err := s.alloc.Allocate(t)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"type": t, "uid": u})
	}
}

// GET /api/csv?q=
func CSVSearchHandler(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		rows, err := s.csv.Search(c.Query("q"))
		if err != nil {
			fail(c, err)
			return
		}
		if rows == nil {
			rows = []csvedit.Entry{}
		}
		c.JSON(http.StatusOK, gin.H{"rows": rows})
	}
}

// POST /api/csv/:type
func CSVAddHandler(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		t, ok := typeParam(c)
		if !ok {
			return
		}
		var body nameBody
		if err := c.ShouldBindJSON(&body); err != nil {
			badRequest(c, "body must be {\"name\": ...}")
			return
		}
		u, err := s.csv.AddNew(t, body.Name)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"type": t, "uid": u, "name": body.Name})
	}
}

// POST /api/csv/:type/:uid
func CSVAddFromProjectHandler(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		t, ok := typeParam(c)
		if !ok {
			return
		}
		u, ok := uidParam(c)
		if !ok {
			return
		}
		e, found := s.ix.Get(t, u)
		if !found {
			fail(c, fmt.Errorf("%s %d: %w", t, u, store.ErrNotFound))
			return
		}
		if err := s.csv.AddFromProject(e.Type, e.UID, e.Name); err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusCreated, e)
	}
}

// PUT /api/csv/rows/:uid/name
func CSVRenameHandler(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		u, ok := uidParam(c)
		if !ok {
			return
		}
		var body nameBody
		if err := c.ShouldBindJSON(&body); err != nil {
			badRequest(c, "body must be {\"name\": ...}")
			return
		}
		if err := s.csv.ModifyName(u, body.Name); err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"uid": u, "name": body.Name})
	}
}

// PUT /api/csv/rows/:uid/uid
func CSVRewriteUIDHandler(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		u, ok := uidParam(c)
		if !ok {
			return
		}
		var body uidBody
		if err := c.ShouldBindJSON(&body); err != nil {
			badRequest(c, "body must be {\"uid\": ...}")
			return
		}
		if err := s.csv.ModifyUID(u, body.UID); err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"old": u, "uid": body.UID})
	}
}

// POST /api/import
func ImportHandler(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.rules == "" {
			badRequest(c, "no rules file configured")
			return
		}
		rep, err := s.imp.RunFile(c.Request.Context(), s.rules)
		if err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}
		if err := s.ix.Rescan(c.Request.Context()); err != nil {
			s.log.Warn().Err(err).Msg("rescan after import failed")
		}
		c.JSON(http.StatusOK, reportView(rep))
	}
}

type ruleView struct {
	Rule       string   `json:"rule"`
	Type       string   `json:"type"`
	Source     string   `json:"source"`
	Rows       int      `json:"rows"`
	Persisted  int      `json:"persisted"`
	CellErrors []string `json:"cellErrors"`
	RowErrors  []string `json:"rowErrors"`
	Error      string   `json:"error,omitempty"`
}

func reportView(rep *importer.Report) gin.H {
	rules := make([]ruleView, 0, len(rep.Results))
	for _, res := range rep.Results {
		v := ruleView{
			Rule:       res.Rule,
			Type:       res.Type,
			Source:     res.Source,
			Rows:       res.Rows,
			Persisted:  res.Persisted,
			CellErrors: make([]string, 0, len(res.CellErrors)),
			RowErrors:  make([]string, 0, len(res.RowErrors)),
		}
		for _, ce := range res.CellErrors {
			v.CellErrors = append(v.CellErrors, ce.Error())
		}
		for _, re := range res.RowErrors {
			v.RowErrors = append(v.RowErrors, re.Error())
		}
		if res.Err != nil {
			v.Error = res.Err.Error()
		}
		rules = append(rules, v)
	}
	return gin.H{
		"run":      rep.RunID,
		"ok":       rep.OK(),
		"started":  rep.Started.Format(time.RFC3339),
		"finished": rep.Finished.Format(time.RFC3339),
		"rules":    rules,
	}
}
