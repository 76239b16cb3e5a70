package database

import "fmt"

// ItemType classifies a digest item.
type ItemType string

const (
	ItemBlocker    ItemType = "blocker"
	ItemDecision   ItemType = "decision"
	ItemUpdate     ItemType = "update"
	ItemActionItem ItemType = "action_item"
)

// ParseItemType validates an item type string at ingestion.
func ParseItemType(s string) (ItemType, error) {
	switch ItemType(s) {
	case ItemBlocker, ItemDecision, ItemUpdate, ItemActionItem:
		return ItemType(s), nil
	}
	return "", fmt.Errorf("unknown item type: %q", s)
}

// FeedbackType classifies a user reaction on a digest item.
type FeedbackType string

const (
	FeedbackAccurate       FeedbackType = "accurate"
	FeedbackWrong          FeedbackType = "wrong"
	FeedbackMissingContext FeedbackType = "missing_context"
	FeedbackIrrelevant     FeedbackType = "irrelevant"
)

// ParseFeedbackType validates a feedback type string at ingestion.
func ParseFeedbackType(s string) (FeedbackType, error) {
	switch FeedbackType(s) {
	case FeedbackAccurate, FeedbackWrong, FeedbackMissingContext, FeedbackIrrelevant:
		return FeedbackType(s), nil
	}
	return "", fmt.Errorf("unknown feedback type: %q", s)
}

// Severity grades a digest item.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// ParseSeverity validates a severity string. Blank defaults to medium.
func ParseSeverity(s string) (Severity, error) {
	switch Severity(s) {
	case SeverityLow, SeverityMedium, SeverityHigh:
		return Severity(s), nil
	case "":
		return SeverityMedium, nil
	}
	return "", fmt.Errorf("unknown severity: %q", s)
}

// Rank orders severities: low < medium < high.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 0
	case SeverityHigh:
		return 2
	default:
		return 1
	}
}

// DigestItem is a classified unit extracted from monitored conversations.
// Confidence is the only mutable field; items are never deleted.
type DigestItem struct {
	ID            string
	RunID         string
	Date          string // YYYY-MM-DD
	Team          string
	ItemType      ItemType
	Title         string
	Summary       string
	Severity      Severity
	Owners        []string
	Confidence    float64
	SourceChannel string // channel the item was distributed to, if any
	SourceRef     string // message token within that channel
	CreatedAt     *string
}

// FeedbackEvent is an append-only user reaction on a digest item.
type FeedbackEvent struct {
	ID           int64
	DigestItemID string
	UserID       string
	Team         string
	FeedbackType FeedbackType
	Comment      *string
	CreatedAt    string // RFC 3339; empty on insert means now
}

// Directive is a prompt rule mined from feedback, unique per (team, text).
type Directive struct {
	ID                int64
	Team              string
	Directive         string
	CreatedAt         string
	LastConfirmedAt   string
	ConfirmationCount int
	Active            bool
}

// UserPersonaConfig holds a user's stored personalization preferences.
type UserPersonaConfig struct {
	UserID       string
	Role         string
	Team         string
	CustomTopics []string
	CustomBoosts map[string]float64
	UpdatedAt    *string
}

// Stats contains aggregate database statistics.
type Stats struct {
	TotalItems       int
	TotalFeedback    int
	TotalDirectives  int
	ActiveDirectives int
	TotalPersonas    int
	TeamsWithItems   int
}
