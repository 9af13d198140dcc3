package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/couchcryptid/storm-alert-service/internal/domain"
	"gopkg.in/yaml.v3"
)

// Rules is the content of the rules file: which alerts to notify about and
// how to color them.
type Rules struct {
	Filters            []domain.RuleConfig
	Colors             domain.ColorTable
	ExpiredColor       int
	DefaultColor       int
	NoInstructionColor *int
}

// DefaultRules mirrors the stock configuration: tornado, thunderstorm and
// flash flood alerts, with the built-in color table.
func DefaultRules() Rules {
	noInstruction := domain.ColorNoInstruction
	return Rules{
		Filters: []domain.RuleConfig{
			{"event": {"Tornado", "Thunderstorm", "Flash Flood"}},
		},
		Colors:             domain.DefaultColorTable(),
		ExpiredColor:       domain.ColorExpired,
		DefaultColor:       domain.ColorDefault,
		NoInstructionColor: &noInstruction,
	}
}

type rulesFile struct {
	FilterRules        *[]map[string]patternList `yaml:"filter_rules"`
	Colors             *colorTable               `yaml:"colors"`
	ExpiredColor       *int                      `yaml:"expired_color"`
	DefaultColor       *int                      `yaml:"default_color"`
	NoInstructionColor *int                      `yaml:"no_instruction_color"`
}

// patternList accepts either a single pattern or a list of them.
type patternList []string

func (l *patternList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		*l = patternList{value.Value}
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := value.Decode(&list); err != nil {
			return err
		}
		*l = list
		return nil
	default:
		return fmt.Errorf("line %d: filter patterns must be a string or a list of strings", value.Line)
	}
}

// colorTable decodes a YAML mapping while keeping its key order, which
// decides precedence between overlapping event names.
type colorTable domain.ColorTable

func (t *colorTable) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: colors must be a mapping", value.Line)
	}
	table := make(colorTable, 0, len(value.Content)/2)
	for i := 0; i+1 < len(value.Content); i += 2 {
		key, val := value.Content[i], value.Content[i+1]
		var entry struct {
			Watch   *int `yaml:"watch"`
			Warning *int `yaml:"warning"`
		}
		if err := val.Decode(&entry); err != nil {
			return fmt.Errorf("colors %q: %w", key.Value, err)
		}
		if entry.Watch == nil || entry.Warning == nil {
			return fmt.Errorf("colors %q: watch and warning are both required", key.Value)
		}
		table = append(table, domain.ColorEntry{Match: key.Value, Watch: *entry.Watch, Warning: *entry.Warning})
	}
	*t = table
	return nil
}

// LoadRules reads the rules file at path. An empty path yields DefaultRules;
// keys missing from the file keep their defaults.
func LoadRules(path string) (Rules, error) {
	if path == "" {
		return DefaultRules(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Rules{}, fmt.Errorf("read rules file: %w", err)
	}
	return ParseRules(data)
}

// ParseRules decodes rules YAML over the defaults and checks that every
// filter compiles.
func ParseRules(data []byte) (Rules, error) {
	var f rulesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return Rules{}, fmt.Errorf("parse rules file: %w", err)
	}

	r := DefaultRules()
	if f.FilterRules != nil {
		r.Filters = make([]domain.RuleConfig, len(*f.FilterRules))
		for i, m := range *f.FilterRules {
			rule := make(domain.RuleConfig, len(m))
			for attr, patterns := range m {
				rule[attr] = []string(patterns)
			}
			r.Filters[i] = rule
		}
	}
	if f.Colors != nil {
		r.Colors = domain.ColorTable(*f.Colors)
	}
	if f.ExpiredColor != nil {
		r.ExpiredColor = *f.ExpiredColor
	}
	if f.DefaultColor != nil {
		r.DefaultColor = *f.DefaultColor
	}
	if f.NoInstructionColor != nil {
		r.NoInstructionColor = f.NoInstructionColor
	}

	if _, err := domain.CompileRuleSet(r.Filters); err != nil {
		return Rules{}, fmt.Errorf("rules file: %w", err)
	}
	for _, c := range append([]int{r.ExpiredColor, r.DefaultColor}, r.colorValues()...) {
		if c < 0 || c > 0xffffff {
			return Rules{}, errors.New("rules file: colors must be between 0x000000 and 0xffffff")
		}
	}
	return r, nil
}

func (r Rules) colorValues() []int {
	out := make([]int, 0, 2*len(r.Colors)+1)
	for _, e := range r.Colors {
		out = append(out, e.Watch, e.Warning)
	}
	if r.NoInstructionColor != nil {
		out = append(out, *r.NoInstructionColor)
	}
	return out
}
