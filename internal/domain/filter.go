package domain

import (
	"fmt"
	"regexp"
	"sort"
)

// RuleConfig is the configuration form of one filter rule: alert attribute
// name mapped to a list of regular expressions.
type RuleConfig map[string][]string

// Clause matches one attribute against a list of patterns.
type Clause struct {
	Attribute string
	Patterns  []*regexp.Regexp
}

// Rule is a compiled RuleConfig. Every clause must match.
type Rule struct {
	Clauses []Clause
}

// RuleSet is an ordered list of rules combined with AND.
type RuleSet []Rule

// CompileRuleSet compiles every pattern once. Unknown attribute names and
// invalid expressions are reported as errors.
func CompileRuleSet(configs []RuleConfig) (RuleSet, error) {
	rules := make(RuleSet, 0, len(configs))
	for i, cfg := range configs {
		// Sorted so that compiled rules are deterministic; clauses are ANDed so
		// the order does not change the result.
		attrs := make([]string, 0, len(cfg))
		for attr := range cfg {
			attrs = append(attrs, attr)
		}
		sort.Strings(attrs)

		var rule Rule
		for _, attr := range attrs {
			if _, ok := (Alert{}).Attribute(attr); !ok {
				return nil, fmt.Errorf("filter rule %d: unknown attribute %q", i, attr)
			}
			clause := Clause{Attribute: attr}
			for _, expr := range cfg[attr] {
				re, err := regexp.Compile(expr)
				if err != nil {
					return nil, fmt.Errorf("filter rule %d: attribute %q: %w", i, attr, err)
				}
				clause.Patterns = append(clause.Patterns, re)
			}
			rule.Clauses = append(rule.Clauses, clause)
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// Matches reports whether the alert passes every rule. Within a clause any
// pattern may match (regex search, not a full match). An empty rule set
// matches every alert.
func (rs RuleSet) Matches(alert Alert) bool {
	for _, rule := range rs {
		for _, clause := range rule.Clauses {
			if !clause.matches(alert) {
				return false
			}
		}
	}
	return true
}

func (c Clause) matches(alert Alert) bool {
	value, _ := alert.Attribute(c.Attribute)
	for _, re := range c.Patterns {
		if re.MatchString(value) {
			return true
		}
	}
	return false
}
