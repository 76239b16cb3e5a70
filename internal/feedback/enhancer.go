package feedback

import (
	"fmt"
	"strings"

	"github.com/abhinavprkash/ThreadPilot/internal/database"
)

// Directive lifecycle defaults.
const (
	DefaultMaxDirectives = 12 // bullets per team
	DefaultExpiryDays    = 14 // inactive unless reconfirmed
	DefaultRotationDays  = 7  // lookback for mining new patterns
)

// directiveTemplates are the fixed heuristic rules mined from feedback
// patterns. A deterministic lookup table, not a learner: every directive a
// team ever receives can be traced to one of these entries.
var directiveTemplates = map[string]string{
	"wrong_decision":           "Do not label as a decision unless explicit approval language exists (e.g., 'approved', 'decided', 'agreed').",
	"wrong_blocker":            "Only classify as blocker if there's clear blocking language (e.g., 'blocked by', 'waiting on', 'can't proceed').",
	"wrong_owner":              "Prefer naming owners only when an @mention or clear assignment exists.",
	"missing_context_decision": "Include context for decisions: who made it, when, and what alternatives were considered.",
	"missing_context_blocker":  "Include blocked-by entity and estimated impact when classifying blockers.",
	"irrelevant_update":        "Skip routine status updates that don't indicate meaningful progress or changes.",
	"irrelevant_action_item":   "Only surface action items with a clear owner or due date; drop vague follow-ups.",
	"wrong_severity":           "Reserve 'high' severity for items that block critical path or have deadline implications.",
}

// typeKeywords filter directives to those relevant for a given item type
// when building type-scoped prompt instructions.
var typeKeywords = map[database.ItemType][]string{
	database.ItemBlocker:    {"blocker", "blocking", "blocked"},
	database.ItemDecision:   {"decision", "decided", "approval"},
	database.ItemUpdate:     {"update", "status", "progress"},
	database.ItemActionItem: {"action", "task", "owner"},
}

// Enhancer mines feedback into a bounded, expiring set of natural-language
// directives injected into future generation prompts.
type Enhancer struct {
	store *database.DB

	MaxDirectives int
	ExpiryDays    int
	RotationDays  int
}

// NewEnhancer creates a prompt enhancer with default lifecycle windows.
func NewEnhancer(store *database.DB) *Enhancer {
	return &Enhancer{
		store:         store,
		MaxDirectives: DefaultMaxDirectives,
		ExpiryDays:    DefaultExpiryDays,
		RotationDays:  DefaultRotationDays,
	}
}

// GenerateDirectives refreshes a team's directive set: expires stale
// directives, mines the rotation window for new patterns, merges them with
// the surviving set (existing directives keep priority), persists genuinely
// new entries, and returns the formatted bullet block.
func (e *Enhancer) GenerateDirectives(team string) (string, error) {
	if _, err := e.store.ExpireDirectives(e.ExpiryDays); err != nil {
		return "", err
	}

	existing, err := e.store.GetActiveDirectives(team, e.MaxDirectives, e.ExpiryDays)
	if err != nil {
		return "", err
	}
	existingTexts := make([]string, len(existing))
	for i, d := range existing {
		existingTexts[i] = d.Directive
	}

	candidates, err := e.mineFeedbackPatterns(team)
	if err != nil {
		return "", err
	}

	merged := mergeDirectives(existingTexts, candidates, e.MaxDirectives)

	seen := normalizedSet(existingTexts)
	for _, directive := range candidates {
		if _, ok := seen[normalizeDirective(directive)]; ok {
			continue
		}
		if err := e.store.ReinforceDirective(team, directive); err != nil {
			return "", err
		}
	}

	return formatBullets(merged), nil
}

// mineFeedbackPatterns buckets the rotation window's feedback by
// (feedback type, item type) and applies the heuristic rule table.
// Feedback whose item cannot be resolved is skipped as no signal.
func (e *Enhancer) mineFeedbackPatterns(team string) ([]string, error) {
	recent, err := e.store.GetRecentFeedback(e.RotationDays, &team)
	if err != nil {
		return nil, err
	}

	wrong := make(map[database.ItemType]int)
	missing := make(map[database.ItemType]int)
	irrelevant := make(map[database.ItemType]int)

	for _, fb := range recent {
		item, err := e.store.GetItemByID(fb.DigestItemID)
		if err != nil {
			return nil, err
		}
		if item == nil {
			continue
		}
		switch fb.FeedbackType {
		case database.FeedbackWrong:
			wrong[item.ItemType]++
		case database.FeedbackMissingContext:
			missing[item.ItemType]++
		case database.FeedbackIrrelevant:
			irrelevant[item.ItemType]++
		}
	}

	var candidates []string
	if wrong[database.ItemDecision] >= 2 {
		candidates = append(candidates, directiveTemplates["wrong_decision"])
	}
	if wrong[database.ItemBlocker] >= 2 {
		candidates = append(candidates, directiveTemplates["wrong_blocker"])
	}
	if wrong[database.ItemUpdate] >= 3 {
		candidates = append(candidates, directiveTemplates["wrong_owner"])
	}
	if missing[database.ItemDecision] >= 2 {
		candidates = append(candidates, directiveTemplates["missing_context_decision"])
	}
	if missing[database.ItemBlocker] >= 2 {
		candidates = append(candidates, directiveTemplates["missing_context_blocker"])
	}
	if irrelevant[database.ItemUpdate] >= 3 {
		candidates = append(candidates, directiveTemplates["irrelevant_update"])
	}
	if irrelevant[database.ItemActionItem] >= 2 {
		candidates = append(candidates, directiveTemplates["irrelevant_action_item"])
	}
	if wrong[database.ItemBlocker] >= 2 {
		candidates = append(candidates, directiveTemplates["wrong_severity"])
	}

	return candidates, nil
}

// GetPromptInstructions renders a team's active directives as an instruction
// block for prompt injection, optionally filtered to one item type. An empty
// string means no augmentation, which callers must not treat as an error.
func (e *Enhancer) GetPromptInstructions(team string, itemType database.ItemType) (string, error) {
	if team == "" {
		return "", nil
	}

	directives, err := e.store.GetActiveDirectives(team, e.MaxDirectives, e.ExpiryDays)
	if err != nil {
		return "", err
	}

	var texts []string
	for _, d := range directives {
		texts = append(texts, d.Directive)
	}

	if itemType != "" {
		keywords := typeKeywords[itemType]
		var filtered []string
		for _, text := range texts {
			lower := strings.ToLower(text)
			for _, kw := range keywords {
				if strings.Contains(lower, kw) {
					filtered = append(filtered, text)
					break
				}
			}
		}
		texts = filtered
	}

	if len(texts) == 0 {
		return "", nil
	}
	return fmt.Sprintf("\n\n## Quality rules from user feedback (apply these):\n%s", formatBullets(texts)), nil
}

// ConfirmDirective extends a directive's lifespan after matching feedback.
func (e *Enhancer) ConfirmDirective(team, directive string) error {
	return e.store.ReinforceDirective(team, directive)
}

// ForceExpire manually deactivates a specific directive.
func (e *Enhancer) ForceExpire(team, directive string) error {
	return e.store.DeactivateDirective(team, directive)
}

// mergeDirectives combines existing and new directives with
// case/whitespace-insensitive dedup. Existing entries come first since they
// are already priority-ordered by confirmation count.
func mergeDirectives(existing, candidates []string, max int) []string {
	seen := make(map[string]struct{})
	var merged []string
	for _, lists := range [][]string{existing, candidates} {
		for _, d := range lists {
			key := normalizeDirective(d)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			merged = append(merged, d)
		}
	}
	if len(merged) > max {
		merged = merged[:max]
	}
	return merged
}

func normalizedSet(directives []string) map[string]struct{} {
	set := make(map[string]struct{}, len(directives))
	for _, d := range directives {
		set[normalizeDirective(d)] = struct{}{}
	}
	return set
}

func normalizeDirective(d string) string {
	return strings.ToLower(strings.TrimSpace(d))
}

func formatBullets(directives []string) string {
	if len(directives) == 0 {
		return ""
	}
	var b strings.Builder
	for i, d := range directives {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("- ")
		b.WriteString(d)
	}
	return b.String()
}
