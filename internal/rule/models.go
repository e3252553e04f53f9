package rule

// RulesFile is the top-level structure of the import rules YAML.
type RulesFile struct {
	Version   float64    `yaml:"version"`
	Separator string     `yaml:"separator,omitempty"`
	Rules     []RuleSpec `yaml:"rules"`
}

// RuleSpec is one import rule as written in the rules file. Paths are
// relative to the directory holding the rules file.
type RuleSpec struct {
	Name      string            `yaml:"name"`
	Type      string            `yaml:"type"`
	Workbook  string            `yaml:"workbook,omitempty"`
	Sheet     string            `yaml:"sheet,omitempty"`
	CSV       string            `yaml:"csv,omitempty"`
	Columns   map[string]string `yaml:"columns"`
	Transform []string          `yaml:"transform,omitempty"`
	Options   map[string]string `yaml:"options,omitempty"`
	HeaderRow int               `yaml:"header_row,omitempty"`
	TypeRow   int               `yaml:"type_row,omitempty"`
}
