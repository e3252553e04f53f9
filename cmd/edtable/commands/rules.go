package commands

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/bfv/edtable/internal/rule"
	"github.com/bfv/edtable/internal/source"
	"github.com/bfv/edtable/internal/tabletype"
)

// NewRulesCmd builds and returns the 'rules' cobra command group.
func NewRulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Author and check import rules files",
	}
	cmd.AddCommand(newRulesInitCmd(), newRulesCheckCmd())
	return cmd
}

func newRulesInitCmd() *cobra.Command {
	var outputFile, typeName, sheet string

	cmd := &cobra.Command{
		Use:   "init <source.xlsx|source.csv>",
		Short: "Generate a rules file from the header row of a sheet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRulesInit(cmd, args[0], typeName, sheet, outputFile)
		},
	}
	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Write output to file instead of stdout")
	cmd.Flags().StringVarP(&typeName, "type", "t", "", "Target editor table type (required)")
	cmd.Flags().StringVar(&sheet, "sheet", "", "Worksheet name (default first sheet)")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

// runRulesInit is the entry point for the rules init command.
func runRulesInit(cmd *cobra.Command, srcPath, typeName, sheetName, outputPath string) (err error) {
	t, err := tabletype.Parse(typeName)
	if err != nil {
		return err
	}
	sheet, err := source.Open(srcPath, sheetName)
	if err != nil {
		return fmt.Errorf("reading source: %w", err)
	}
	log.Debug().Str("source", srcPath).Str("sheet", sheet.Name).Int("columns", sheet.Width()).Msg("source read")

	spec := rule.RuleSpec{
		Name:    strings.TrimSuffix(filepath.Base(srcPath), filepath.Ext(srcPath)),
		Type:    t.Label(),
		Columns: map[string]string{},
	}
	// Absolute, since rules file paths resolve against the rules file's directory.
	absSrc, err := filepath.Abs(srcPath)
	if err != nil {
		return err
	}
	switch strings.ToLower(filepath.Ext(srcPath)) {
	case ".csv":
		spec.CSV = absSrc
	default:
		spec.Workbook = absSrc
		spec.Sheet = sheet.Name
	}
	for col := 1; col <= sheet.Width(); col++ {
		header := strings.TrimSpace(sheet.Cell(1, col))
		if header == "" {
			header = strconv.Itoa(col)
		}
		spec.Columns[header] = suggestPath(header)
	}

	out := rule.RulesFile{Version: 1, Rules: []rule.RuleSpec{spec}}
	data, err := yaml.Marshal(&out)
	if err != nil {
		return fmt.Errorf("marshalling yaml: %w", err)
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
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("writing output: %w", err)
	}
	log.Debug().Int("columns", len(spec.Columns)).Msg("rules generated")
	return nil
}

// suggestPath proposes a target field for a header. The uid and name
// columns map to the record's identity fields; everything else maps to
// itself and is meant to be edited by hand.
func suggestPath(header string) string {
	switch strings.ToLower(header) {
	case "uid":
		return "uid"
	case "name", "名称":
		return "name"
	}
	return header
}

func newRulesCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <rules.yaml>",
		Short: "Load a rules file and list the resolved rules",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rules, err := rule.LoadFile(args[0])
			if err != nil {
				return fmt.Errorf("loading rules: %w", err)
			}
			rows := make([][]string, 0, len(rules))
			for _, r := range rules {
				rows = append(rows, []string{
					r.Label(), r.Type.Label(), r.Source, r.Sheet,
					strconv.Itoa(len(r.Columns)), strings.Join(r.Hooks, ","),
				})
			}
			printTable(cmd.OutOrStdout(), []string{"RULE", "TYPE", "SOURCE", "SHEET", "COLUMNS", "TRANSFORM"}, rows)
			return nil
		},
	}
}
