// Package rule turns spreadsheet rows into flat dotted-path record fragments
// according to declarative import rules with pluggable transform hooks.
package rule

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/bfv/edtable/internal/tabletype"
)

const (
	defaultHeaderRow = 1
	defaultTypeRow   = 2
	defaultSeparator = "."

	// Ignore as a column target drops the column without a mapping error.
	Ignore = "-"
)

// ImportRule is a resolved, ready-to-run rule.
type ImportRule struct {
	Name      string
	Type      tabletype.Type
	Source    string // absolute workbook or CSV path
	Sheet     string
	Columns   map[string]string
	Options   map[string]string
	Hooks     []string
	HeaderRow int
	TypeRow   int
	Separator string

	transforms []TransformFunc
}

// Label identifies the rule in logs and reports.
func (r *ImportRule) Label() string {
	if r.Name != "" {
		return r.Name
	}
	if r.Sheet != "" {
		return filepath.Base(r.Source) + "#" + r.Sheet
	}
	return filepath.Base(r.Source)
}

// FirstDataRow is the 1-based row where records start.
func (r *ImportRule) FirstDataRow() int { return r.TypeRow + 1 }

// LoadFile reads and resolves the rules file at path. Any error here means
// no rule may run.
func LoadFile(path string) ([]*ImportRule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rf RulesFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	return Resolve(&rf, filepath.Dir(abs), Default)
}

// Resolve validates every rule spec and binds its transform hooks from reg.
func Resolve(rf *RulesFile, baseDir string, reg *Registry) ([]*ImportRule, error) {
	sep := rf.Separator
	if sep == "" {
		sep = defaultSeparator
	}
	var errs []error
	rules := make([]*ImportRule, 0, len(rf.Rules))
	for i, spec := range rf.Rules {
		r, err := resolveOne(spec, baseDir, sep, reg)
		if err != nil {
			errs = append(errs, fmt.Errorf("rule %d (%s): %w", i+1, spec.Name, err))
			continue
		}
		rules = append(rules, r)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	log.Debug().Int("rules", len(rules)).Str("separator", sep).Msg("import rules resolved")
	return rules, nil
}

func resolveOne(spec RuleSpec, baseDir, sep string, reg *Registry) (*ImportRule, error) {
	t, err := tabletype.Parse(spec.Type)
	if err != nil {
		return nil, err
	}
	var src string
	switch {
	case spec.Workbook != "" && spec.CSV != "":
		return nil, errors.New("workbook and csv are mutually exclusive")
	case spec.Workbook != "":
		src = spec.Workbook
	case spec.CSV != "":
		src = spec.CSV
	default:
		return nil, errors.New("no workbook or csv source")
	}
	if !filepath.IsAbs(src) {
		src = filepath.Join(baseDir, src)
	}

	hooks := spec.Transform
	if len(hooks) == 0 {
		hooks = []string{TransformColumns}
	}
	transforms := make([]TransformFunc, 0, len(hooks))
	for _, name := range hooks {
		fn, ok := reg.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("unknown transform %q", name)
		}
		transforms = append(transforms, fn)
	}

	r := &ImportRule{
		Name:       spec.Name,
		Type:       t,
		Source:     src,
		Sheet:      spec.Sheet,
		Columns:    map[string]string{},
		Options:    spec.Options,
		Hooks:      hooks,
		HeaderRow:  spec.HeaderRow,
		TypeRow:    spec.TypeRow,
		Separator:  sep,
		transforms: transforms,
	}
	for header, path := range spec.Columns {
		r.Columns[strings.TrimSpace(header)] = strings.TrimSpace(path)
	}
	if r.HeaderRow <= 0 {
		r.HeaderRow = defaultHeaderRow
	}
	if r.TypeRow <= 0 {
		r.TypeRow = defaultTypeRow
	}
	if r.TypeRow == r.HeaderRow {
		return nil, fmt.Errorf("header_row and type_row are both %d", r.HeaderRow)
	}
	return r, nil
}

// New builds a rule in code. Hooks default to the declarative column mapping.
func New(name string, t tabletype.Type, src, sheet string, columns map[string]string, hooks ...TransformFunc) *ImportRule {
	if len(hooks) == 0 {
		hooks = []TransformFunc{Columns}
	}
	return &ImportRule{
		Name:       name,
		Type:       t,
		Source:     src,
		Sheet:      sheet,
		Columns:    columns,
		HeaderRow:  defaultHeaderRow,
		TypeRow:    defaultTypeRow,
		Separator:  defaultSeparator,
		transforms: hooks,
	}
}
