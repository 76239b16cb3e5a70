package feedback

import (
	"log"
	"time"

	"github.com/abhinavprkash/ThreadPilot/internal/database"
)

// DefaultDailyFeedbackLimit caps how many feedback events one user may
// store per day.
const DefaultDailyFeedbackLimit = 10

// Snapshot aggregates feedback-loop health for a time window.
type Snapshot struct {
	PeriodStart string  `json:"period_start"`
	PeriodEnd   string  `json:"period_end"`
	Team        *string `json:"team,omitempty"`

	TotalItems    int     `json:"total_digest_items"`
	TotalFeedback int     `json:"total_feedback_events"`
	FeedbackRate  float64 `json:"feedback_rate"` // events per item

	AccurateCount       int `json:"accurate_count"`
	WrongCount          int `json:"wrong_count"`
	MissingContextCount int `json:"missing_context_count"`
	IrrelevantCount     int `json:"irrelevant_count"`

	AccuracyRatio       float64 `json:"accuracy_ratio"`
	WrongRatio          float64 `json:"wrong_ratio"`
	IrrelevantRatio     float64 `json:"irrelevant_ratio"`
	MissingContextRatio float64 `json:"missing_context_ratio"`

	ActiveDirectives int `json:"active_directives"`
}

// Metrics tracks feedback-loop health and enforces ingestion guardrails.
type Metrics struct {
	store      *database.DB
	dailyLimit int
}

// NewMetrics creates a metrics tracker. A dailyLimit of 0 uses the default.
func NewMetrics(store *database.DB, dailyLimit int) *Metrics {
	if dailyLimit <= 0 {
		dailyLimit = DefaultDailyFeedbackLimit
	}
	return &Metrics{store: store, dailyLimit: dailyLimit}
}

// CheckRateLimit reports whether a user may store more feedback today and
// how many events they have left.
func (m *Metrics) CheckRateLimit(userID string) (bool, int, error) {
	count, err := m.store.CountUserFeedbackToday(userID)
	if err != nil {
		return false, 0, err
	}
	remaining := m.dailyLimit - count
	if remaining < 0 {
		remaining = 0
	}
	return count < m.dailyLimit, remaining, nil
}

// IsUserSpamming reports whether the user already gave feedback on the item.
// Duplicate reactions are dropped silently at the ingestion boundary.
func (m *Metrics) IsUserSpamming(userID, itemID string) (bool, error) {
	return m.store.HasUserFeedback(userID, itemID)
}

// ComputeSnapshot aggregates item and feedback counts over the last `days`
// days, optionally filtered by team. Ratio computations guard division by
// zero and default to 0.
func (m *Metrics) ComputeSnapshot(days int, team *string) (*Snapshot, error) {
	now := time.Now().UTC()
	s := &Snapshot{
		PeriodStart: now.AddDate(0, 0, -days).Format(time.RFC3339),
		PeriodEnd:   now.Format(time.RFC3339),
		Team:        team,
	}

	items, err := m.store.GetRecentItems(days, team)
	if err != nil {
		return nil, err
	}
	counts, err := m.store.GetFeedbackCountsByType(days, team)
	if err != nil {
		return nil, err
	}

	s.TotalItems = len(items)
	s.AccurateCount = counts[database.FeedbackAccurate]
	s.WrongCount = counts[database.FeedbackWrong]
	s.MissingContextCount = counts[database.FeedbackMissingContext]
	s.IrrelevantCount = counts[database.FeedbackIrrelevant]
	s.TotalFeedback = s.AccurateCount + s.WrongCount + s.MissingContextCount + s.IrrelevantCount

	if s.TotalFeedback > 0 {
		total := float64(s.TotalFeedback)
		s.AccuracyRatio = float64(s.AccurateCount) / total
		s.WrongRatio = float64(s.WrongCount) / total
		s.IrrelevantRatio = float64(s.IrrelevantCount) / total
		s.MissingContextRatio = float64(s.MissingContextCount) / total
	}
	if s.TotalItems > 0 {
		s.FeedbackRate = float64(s.TotalFeedback) / float64(s.TotalItems)
	}

	if team != nil {
		directives, err := m.store.GetActiveDirectives(*team, 100, DefaultExpiryDays)
		if err != nil {
			return nil, err
		}
		s.ActiveDirectives = len(directives)
	}

	return s, nil
}

// LogSnapshot writes a one-line summary of a snapshot.
func (m *Metrics) LogSnapshot(s *Snapshot) {
	scope := "all teams"
	if s.Team != nil {
		scope = *s.Team
	}
	log.Printf("feedback metrics (%s): rate=%.2f, accuracy=%.1f%%, wrong=%.1f%%, irrelevant=%.1f%%",
		scope, s.FeedbackRate, s.AccuracyRatio*100, s.WrongRatio*100, s.IrrelevantRatio*100)
}
