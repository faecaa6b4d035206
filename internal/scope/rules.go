package scope

import (
	"slices"

	"github.com/ppiankov/scopeguard/internal/model"
)

// NoDescription is rendered when a project carries no description.
const NoDescription = "No description provided."

// platformRules is the policy floor appended to every scope contract.
// Project data may add rules after it but never replaces it.
var platformRules = []model.RuleStatement{
	{
		ID:     "platform.web-deliverables",
		Text:   "Strict adherence to standard web development deliverables is required.",
		Source: model.RulePlatform,
	},
	{
		ID:     "platform.video-editing",
		Text:   "Video editing is in scope.",
		Source: model.RulePlatform,
	},
	{
		ID:     "platform.3d-animation",
		Text:   "3D Animation is OUT of scope unless specified.",
		Source: model.RulePlatform,
	},
}

// PlatformRules returns a copy of the platform rule floor.
func PlatformRules() []model.RuleStatement {
	return slices.Clone(platformRules)
}
