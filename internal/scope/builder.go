package scope

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/ppiankov/scopeguard/internal/model"
)

// ProjectSource looks up project metadata. Implementations return
// model.ErrProjectNotFound (possibly wrapped) for unknown IDs.
type ProjectSource interface {
	Get(ctx context.Context, id string) (model.Project, error)
}

// Builder assembles scope contracts from project metadata, the platform
// rule floor, and the configured project extensions.
type Builder struct {
	source     ProjectSource
	extensions atomic.Pointer[ExtensionSet]
}

// NewBuilder creates a Builder. A nil extension set means no extensions.
func NewBuilder(source ProjectSource, extensions *ExtensionSet) *Builder {
	b := &Builder{source: source}
	b.SetExtensions(extensions)
	return b
}

// SetExtensions swaps the extension set used by subsequent builds.
// Builds already in progress keep the set they started with.
func (b *Builder) SetExtensions(extensions *ExtensionSet) {
	if extensions == nil {
		extensions = &ExtensionSet{}
	}
	b.extensions.Store(extensions)
}

// Build returns the scope contract for projectID.
func (b *Builder) Build(ctx context.Context, projectID string) (model.ScopeContext, error) {
	if strings.TrimSpace(projectID) == "" {
		return model.ScopeContext{}, fmt.Errorf("scope: empty project id: %w", model.ErrProjectNotFound)
	}

	p, err := b.source.Get(ctx, projectID)
	if err != nil {
		return model.ScopeContext{}, err
	}

	rules := PlatformRules()
	rules = append(rules, b.extensions.Load().Apply(p)...)

	return model.ScopeContext{
		ProjectID:        p.ID,
		ProjectName:      projectName(p),
		ScopeDescription: Render(p, rules),
		DomainRules:      rules,
	}, nil
}

// Render produces the scope contract text. The output depends only on the
// project's name, description and deliverables and on the rules, so equal
// inputs always render byte-identical text.
func Render(p model.Project, rules []model.RuleStatement) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Project: %s\n", projectName(p))

	desc := strings.TrimSpace(p.Description)
	if desc == "" {
		desc = NoDescription
	}
	fmt.Fprintf(&b, "Description: %s\n", desc)

	if len(p.Deliverables) > 0 {
		b.WriteString("Contracted deliverables:\n")
		for _, d := range p.Deliverables {
			if d = strings.TrimSpace(d); d != "" {
				fmt.Fprintf(&b, "- %s\n", d)
			}
		}
	}

	var platform, project []model.RuleStatement
	for _, r := range rules {
		if r.Source == model.RuleProject {
			project = append(project, r)
		} else {
			platform = append(platform, r)
		}
	}

	b.WriteString("\nPlatform rules:\n")
	for _, r := range platform {
		fmt.Fprintf(&b, "- %s\n", r.Text)
	}

	if len(project) > 0 {
		b.WriteString("\nProject extensions:\n")
		for _, r := range project {
			fmt.Fprintf(&b, "- %s\n", r.Text)
		}
	}

	return b.String()
}

// Fingerprint hashes the scope contract text for audit metadata.
func Fingerprint(sc model.ScopeContext) string {
	h := sha256.Sum256([]byte(sc.ScopeDescription))
	return "sha256:" + hex.EncodeToString(h[:])
}

func projectName(p model.Project) string {
	if name := strings.TrimSpace(p.Name); name != "" {
		return name
	}
	return "Untitled project"
}
