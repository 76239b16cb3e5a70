package persona

import (
	"strings"

	"github.com/abhinavprkash/ThreadPilot/internal/database"
)

// Persona bundles the ranking preferences applied for one recipient:
// per-type boosts, cross-team sensitivity, topics of interest, and the
// severity floor for main-digest placement.
type Persona struct {
	Name string

	// ItemBoosts maps item type to a multiplier; 1.0 means no change.
	ItemBoosts map[database.ItemType]float64

	// CrossTeamWeight in [0,1] scales the cross-team boost.
	CrossTeamWeight float64

	// Topics increase relevance when they appear in item text.
	Topics []string

	// MinSeverityForMain is the lowest severity shown in main sections.
	MinSeverityForMain database.Severity
}

// ItemBoost returns the multiplier for an item type, 1.0 when unset.
func (p Persona) ItemBoost(itemType database.ItemType) float64 {
	if boost, ok := p.ItemBoosts[itemType]; ok {
		return boost
	}
	return 1.0
}

// MatchesTopic reports whether the text contains any topic of interest.
func (p Persona) MatchesTopic(text string) bool {
	lower := strings.ToLower(text)
	for _, topic := range p.Topics {
		if strings.Contains(lower, strings.ToLower(topic)) {
			return true
		}
	}
	return false
}

// AllowsMain reports whether an item of the given severity clears this
// persona's floor for main-digest placement.
func (p Persona) AllowsMain(severity database.Severity) bool {
	return severity.Rank() >= p.MinSeverityForMain.Rank()
}

// Role personas capture job-function preferences.
var (
	leadPersona = Persona{
		Name: "lead",
		ItemBoosts: map[database.ItemType]float64{
			database.ItemBlocker:    1.5,
			database.ItemDecision:   1.4,
			database.ItemActionItem: 1.2,
			database.ItemUpdate:     0.9,
		},
		CrossTeamWeight: 0.9,
		Topics: []string{
			"risk", "timeline", "deadline", "blocked", "decision",
			"escalate", "priority", "sprint", "release", "demo",
		},
		MinSeverityForMain: database.SeverityLow, // leads see everything
	}

	icPersona = Persona{
		Name: "ic",
		ItemBoosts: map[database.ItemType]float64{
			database.ItemBlocker:    1.3,
			database.ItemDecision:   1.1,
			database.ItemActionItem: 1.4,
			database.ItemUpdate:     1.0,
		},
		CrossTeamWeight:    0.5,
		Topics:             nil, // filled by the team persona
		MinSeverityForMain: database.SeverityMedium,
	}
)

// Team personas capture domain vocabulary and cross-team coupling.
var (
	mechanicalPersona = Persona{
		Name: "mechanical",
		ItemBoosts: map[database.ItemType]float64{
			database.ItemBlocker:    1.2,
			database.ItemDecision:   1.1,
			database.ItemActionItem: 1.1,
			database.ItemUpdate:     1.0,
		},
		CrossTeamWeight: 0.6,
		Topics: []string{
			"FEA", "CAD", "tolerances", "surface finish", "wall thickness",
			"CNC", "machining", "fixture", "first article", "DFM", "prototype",
			"6061", "aluminum", "stock", "bracket", "housing", "chassis",
			"vendor", "supplier", "lead time", "expedite",
		},
		MinSeverityForMain: database.SeverityMedium,
	}

	electricalPersona = Persona{
		Name: "electrical",
		ItemBoosts: map[database.ItemType]float64{
			database.ItemBlocker:    1.3,
			database.ItemDecision:   1.1,
			database.ItemActionItem: 1.1,
			database.ItemUpdate:     1.0,
		},
		CrossTeamWeight: 0.7,
		Topics: []string{
			"PCB", "schematic", "layout", "DRC", "BOM", "copper pour",
			"power", "voltage", "current", "thermal", "heatsink",
			"stress test", "burn-in", "brown-out", "sequencing",
			"firmware", "connector", "board outline", "keepout",
		},
		MinSeverityForMain: database.SeverityMedium,
	}

	softwarePersona = Persona{
		Name: "software",
		ItemBoosts: map[database.ItemType]float64{
			database.ItemBlocker:    1.2,
			database.ItemDecision:   1.2,
			database.ItemActionItem: 1.1,
			database.ItemUpdate:     0.9,
		},
		CrossTeamWeight: 0.5,
		Topics: []string{
			"PR", "code review", "merge", "deploy", "release",
			"staging", "production", "API", "endpoint", "cache",
			"latency", "P99", "monitoring", "metrics",
			"firmware", "algorithm", "integration",
		},
		MinSeverityForMain: database.SeverityMedium,
	}

	generalPersona = Persona{
		Name:               "general",
		ItemBoosts:         map[database.ItemType]float64{},
		CrossTeamWeight:    0.5,
		Topics:             nil,
		MinSeverityForMain: database.SeverityMedium,
	}
)

// ForRole returns the role persona by name. Unknown roles fall back to the
// ic persona so personalization stays available.
func ForRole(role string) Persona {
	switch strings.ToLower(role) {
	case "lead", "manager":
		return leadPersona
	default:
		return icPersona
	}
}

// ForTeam returns the team persona by name or alias. Unknown teams fall
// back to the general persona.
func ForTeam(team string) Persona {
	switch strings.ToLower(team) {
	case "mechanical", "mech", "me":
		return mechanicalPersona
	case "electrical", "ee", "hardware", "hw":
		return electricalPersona
	case "software", "sw", "firmware", "fw":
		return softwarePersona
	default:
		return generalPersona
	}
}

// Combined computes the effective persona for a recipient. The role persona
// supplies boosts, cross-team weight, and the severity floor; user custom
// boosts fully override matching keys (a shallow overlay, never additive);
// topics are the union of the team persona's topics and the user's custom
// topics. Pure given its inputs, so persona edits take effect immediately.
func Combined(role, team string, custom *database.UserPersonaConfig) Persona {
	if custom != nil {
		if role == "" {
			role = custom.Role
		}
		if team == "" {
			team = custom.Team
		}
	}

	rolePersona := ForRole(role)
	teamPersona := ForTeam(team)

	boosts := make(map[database.ItemType]float64, len(rolePersona.ItemBoosts))
	for k, v := range rolePersona.ItemBoosts {
		boosts[k] = v
	}
	if custom != nil {
		for k, v := range custom.CustomBoosts {
			boosts[database.ItemType(k)] = v
		}
	}

	topics := unionTopics(teamPersona.Topics, customTopics(custom))

	return Persona{
		Name:               rolePersona.Name + "_" + teamPersona.Name,
		ItemBoosts:         boosts,
		CrossTeamWeight:    rolePersona.CrossTeamWeight,
		Topics:             topics,
		MinSeverityForMain: rolePersona.MinSeverityForMain,
	}
}

func customTopics(custom *database.UserPersonaConfig) []string {
	if custom == nil {
		return nil
	}
	return custom.CustomTopics
}

func unionTopics(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	var topics []string
	for _, list := range [][]string{a, b} {
		for _, topic := range list {
			key := strings.ToLower(strings.TrimSpace(topic))
			if key == "" {
				continue
			}
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			topics = append(topics, topic)
		}
	}
	return topics
}
