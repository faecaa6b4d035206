package scope

import (
	"fmt"
	"strings"

	"github.com/google/cel-go/cel"

	"github.com/ppiankov/scopeguard/internal/model"
)

// ExtensionSpec declares a rule that is added to the scope contract of every
// project for which When evaluates to true. When is a CEL expression over
// the variable "project" with keys id, name, description and deliverables.
type ExtensionSpec struct {
	ID   string `yaml:"id"   json:"id"`
	When string `yaml:"when" json:"when"`
	Text string `yaml:"text" json:"text"`
}

type extension struct {
	spec    ExtensionSpec
	program cel.Program
}

// ExtensionSet is an immutable list of compiled extensions.
type ExtensionSet struct {
	items []extension
}

// CompileExtensions compiles every spec once. Any invalid expression fails
// the whole set so a broken config never half-applies.
func CompileExtensions(specs []ExtensionSpec) (*ExtensionSet, error) {
	set := &ExtensionSet{}
	if len(specs) == 0 {
		return set, nil
	}

	env, err := cel.NewEnv(
		cel.Variable("project", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("scope: create CEL environment: %w", err)
	}

	seen := make(map[string]bool, len(specs))
	for i, spec := range specs {
		if strings.TrimSpace(spec.ID) == "" {
			return nil, fmt.Errorf("scope: extension %d: id is required", i)
		}
		if strings.HasPrefix(spec.ID, "platform.") {
			return nil, fmt.Errorf("scope: extension %q: the platform. prefix is reserved", spec.ID)
		}
		if seen[spec.ID] {
			return nil, fmt.Errorf("scope: extension %q: duplicate id", spec.ID)
		}
		seen[spec.ID] = true
		if strings.TrimSpace(spec.Text) == "" {
			return nil, fmt.Errorf("scope: extension %q: text is required", spec.ID)
		}
		when := spec.When
		if strings.TrimSpace(when) == "" {
			when = "true"
		}

		ast, issues := env.Compile(when)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("scope: extension %q: compile %q: %w", spec.ID, when, issues.Err())
		}
		prg, err := env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("scope: extension %q: program: %w", spec.ID, err)
		}
		set.items = append(set.items, extension{spec: spec, program: prg})
	}
	return set, nil
}

// Len returns the number of compiled extensions.
func (s *ExtensionSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.items)
}

// Apply returns the extension rules that match the project, in declaration
// order. Expressions that error or yield a non-bool are treated as no match.
func (s *ExtensionSet) Apply(p model.Project) []model.RuleStatement {
	if s.Len() == 0 {
		return nil
	}

	deliverables := p.Deliverables
	if deliverables == nil {
		deliverables = []string{}
	}
	vars := map[string]any{
		"project": map[string]any{
			"id":           p.ID,
			"name":         p.Name,
			"description":  p.Description,
			"deliverables": deliverables,
		},
	}

	var rules []model.RuleStatement
	for _, ext := range s.items {
		out, _, err := ext.program.Eval(vars)
		if err != nil {
			continue
		}
		if matched, ok := out.Value().(bool); ok && matched {
			rules = append(rules, model.RuleStatement{
				ID:     ext.spec.ID,
				Text:   strings.TrimSpace(ext.spec.Text),
				Source: model.RuleProject,
			})
		}
	}
	return rules
}
