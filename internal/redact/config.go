package redact

import (
	"fmt"
	"regexp"
	"strings"
)

// Config holds operator-defined redaction customizations.
type Config struct {
	Mode          string       `yaml:"mode"           json:"mode"` // "auto", "always", "never"
	ExtraPatterns []PatternDef `yaml:"extra_patterns" json:"extra_patterns"`
	SafeHosts     []string     `yaml:"safe_hosts"     json:"safe_hosts"`
	Literals      []string     `yaml:"literals"       json:"literals"`
}

// PatternDef defines a custom pattern from config.
type PatternDef struct {
	Name  string `yaml:"name"  json:"name"`
	Regex string `yaml:"regex" json:"regex"`
}

// ExtraPattern is a compiled custom pattern ready for scanning.
type ExtraPattern struct {
	Name        string
	Regex       *regexp.Regexp
	TokenPrefix PatternType
}

// Compile validates cfg and builds scanner rules.
func Compile(cfg Config) (*Rules, error) {
	rules := &Rules{SafeHosts: make(map[string]bool, len(cfg.SafeHosts))}

	for i, def := range cfg.ExtraPatterns {
		if def.Name == "" {
			return nil, fmt.Errorf("extra_patterns[%d]: name is required", i)
		}
		if def.Regex == "" {
			return nil, fmt.Errorf("extra_patterns[%d]: regex is required", i)
		}
		re, err := regexp.Compile(def.Regex)
		if err != nil {
			return nil, fmt.Errorf("extra_patterns[%d] %q: invalid regex: %w", i, def.Name, err)
		}
		rules.Extra = append(rules.Extra, ExtraPattern{
			Name:        def.Name,
			Regex:       re,
			TokenPrefix: PatternType(strings.ToUpper(def.Name)),
		})
	}
	for _, h := range cfg.SafeHosts {
		rules.SafeHosts[strings.ToLower(strings.TrimSpace(h))] = true
	}
	for _, lit := range cfg.Literals {
		if lit = strings.TrimSpace(lit); lit != "" {
			rules.Literals = append(rules.Literals, lit)
		}
	}
	return rules, nil
}
