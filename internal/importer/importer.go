// Package importer runs import rules against their sources and persists the
// resulting records.
package importer

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/bfv/edtable/internal/nested"
	"github.com/bfv/edtable/internal/rule"
	"github.com/bfv/edtable/internal/source"
	"github.com/bfv/edtable/internal/store"
)

// RowError is a row that was skipped: a mapping error, a structural conflict
// or a missing uid.
type RowError struct {
	Rule string
	Row  int
	Err  error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("rule %s, row %d: %v", e.Rule, e.Row, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }

// RuleResult summarizes one rule's run.
type RuleResult struct {
	Rule       string
	Type       string
	Source     string
	Rows       int
	Persisted  int
	CellErrors []*rule.CellError
	RowErrors  []*RowError
	// Err is set when the rule stopped early: its source could not be read
	// or a record failed to persist.
	Err error
}

// OK reports whether the rule ran to completion.
func (r *RuleResult) OK() bool { return r.Err == nil }

// Report is the outcome of one import run.
type Report struct {
	RunID    string
	Started  time.Time
	Finished time.Time
	Results  []*RuleResult
}

// OK reports whether every rule ran to completion.
func (r *Report) OK() bool {
	for _, res := range r.Results {
		if !res.OK() {
			return false
		}
	}
	return true
}

// Importer executes rules one at a time so that rules targeting the same
// record never interleave their read-modify-write cycles.
type Importer struct {
	store   *store.Store
	open    func(path, sheet string) (*source.Sheet, error)
	log     zerolog.Logger
	mu      sync.Mutex
	entropy io.Reader
}

// New returns an Importer writing into st.
func New(st *store.Store) *Importer {
	return &Importer{
		store:   st,
		open:    source.Open,
		log:     log.With().Str("component", "importer").Logger(),
		entropy: ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}
}

// RunFile loads the rules file and runs it. A rules file that cannot be
// loaded aborts before any row is processed.
func (im *Importer) RunFile(ctx context.Context, rulesPath string) (*Report, error) {
	rules, err := rule.LoadFile(rulesPath)
	if err != nil {
		return nil, fmt.Errorf("loading rules: %w", err)
	}
	return im.Run(ctx, rules)
}

// Run executes rules in order. A rule stops at its first persist failure;
// later rules still run.
func (im *Importer) Run(ctx context.Context, rules []*rule.ImportRule) (*Report, error) {
	im.mu.Lock()
	defer im.mu.Unlock()

	rep := &Report{
		RunID:   ulid.MustNew(ulid.Timestamp(time.Now()), im.entropy).String(),
		Started: time.Now(),
	}
	logger := im.log.With().Str("run", rep.RunID).Logger()
	logger.Info().Int("rules", len(rules)).Msg("import started")

	for _, r := range rules {
		if err := ctx.Err(); err != nil {
			rep.Finished = time.Now()
			return rep, err
		}
		res := im.runRule(ctx, logger, r)
		rep.Results = append(rep.Results, res)
	}

	rep.Finished = time.Now()
	logger.Info().Bool("ok", rep.OK()).Dur("took", rep.Finished.Sub(rep.Started)).Msg("import finished")
	return rep, nil
}

func (im *Importer) runRule(ctx context.Context, logger zerolog.Logger, r *rule.ImportRule) *RuleResult {
	res := &RuleResult{Rule: r.Label(), Type: string(r.Type), Source: r.Source}
	logger = logger.With().Str("rule", res.Rule).Str("type", res.Type).Logger()

	sheet, err := im.open(r.Source, r.Sheet)
	if err != nil {
		res.Err = fmt.Errorf("reading source: %w", err)
		logger.Error().Err(res.Err).Msg("rule aborted")
		return res
	}
	layout := r.ReadLayout(sheet)
	logger.Debug().Str("sheet", sheet.Name).Int("rows", sheet.RowCount()).Int("columns", len(layout.Headers)-1).Msg("sheet loaded")

	for i := r.FirstDataRow(); i <= sheet.RowCount(); i++ {
		if ctx.Err() != nil {
			res.Err = ctx.Err()
			return res
		}
		row, cellErrs := r.ParseRow(sheet, layout, i)
		for _, ce := range cellErrs {
			logger.Warn().Str("sheet", ce.Sheet).Int("row", ce.Row).Str("column", ce.Header).Err(ce.Err).Msg("cell dropped")
		}
		res.CellErrors = append(res.CellErrors, cellErrs...)
		if row.Len() == 0 {
			continue
		}
		res.Rows++

		tree, err := im.buildTree(r, sheet.Name, row)
		if err != nil {
			re := &RowError{Rule: res.Rule, Row: i, Err: err}
			res.RowErrors = append(res.RowErrors, re)
			logger.Warn().Int("row", i).Err(err).Msg("row skipped")
			continue
		}

		if err := im.store.Persist(tree, r.Type); err != nil {
			res.Err = fmt.Errorf("row %d: %w", i, err)
			logger.Error().Int("row", i).Err(err).Msg("persist failed, rule aborted")
			return res
		}
		res.Persisted++
	}

	logger.Info().Int("rows", res.Rows).Int("persisted", res.Persisted).
		Int("cellErrors", len(res.CellErrors)).Int("rowErrors", len(res.RowErrors)).Msg("rule imported")
	return res
}

func (im *Importer) buildTree(r *rule.ImportRule, sheetName string, row *rule.Row) (map[string]any, error) {
	frag, err := r.Transform(sheetName, row)
	if err != nil {
		return nil, err
	}
	tree, err := nested.Expand(frag.Map(), r.Separator)
	if err != nil {
		return nil, fmt.Errorf("nesting fields: %w", err)
	}
	return tree, nil
}
