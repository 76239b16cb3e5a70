package ingest

import (
	"fmt"
	"strings"
	"sync"

	"github.com/abhinavprkash/ThreadPilot/internal/database"
	"github.com/abhinavprkash/ThreadPilot/internal/feedback"
)

// emojiFeedback maps reaction emoji names to feedback types. Names are
// matched after stripping colons and lowercasing.
var emojiFeedback = map[string]database.FeedbackType{
	"white_check_mark": database.FeedbackAccurate,
	"+1":               database.FeedbackAccurate,
	"heavy_check_mark": database.FeedbackAccurate,
	"x":                database.FeedbackWrong,
	"no_entry":         database.FeedbackWrong,
	"jigsaw":           database.FeedbackMissingContext,
	"puzzle_piece":     database.FeedbackMissingContext,
	"no_bell":          database.FeedbackIrrelevant,
	"mute":             database.FeedbackIrrelevant,
}

// Outcome classifies what happened to one reaction.
type Outcome string

const (
	OutcomeStored      Outcome = "stored"
	OutcomeDuplicate   Outcome = "duplicate"
	OutcomeRateLimited Outcome = "rate_limited"
	OutcomeUnknownItem Outcome = "unknown_item"
	OutcomeIgnored     Outcome = "ignored"
)

// Reaction is one emoji reaction on a digest message.
type Reaction struct {
	Emoji     string
	UserID    string
	Team      string
	Channel   string
	SourceRef string
	Comment   string
}

// Result reports how a reaction was handled.
type Result struct {
	Outcome      Outcome
	FeedbackType database.FeedbackType
	FeedbackID   int64
	ItemID       string
	// NewConfidence is the item confidence after re-scoring, set only
	// when Outcome is OutcomeStored.
	NewConfidence float64
}

// Ingestor converts reactions into feedback events and keeps item
// confidences current. Per-user locks serialize the rate-limit check
// against the append so concurrent reactions cannot overshoot the cap.
type Ingestor struct {
	store     *database.DB
	processor *feedback.Processor
	metrics   *feedback.Metrics

	mu        sync.Mutex
	userLocks map[string]*sync.Mutex
}

// NewIngestor creates an ingestor with the given per-user daily limit;
// zero or negative selects the default.
func NewIngestor(store *database.DB, dailyLimit int) *Ingestor {
	return &Ingestor{
		store:     store,
		processor: feedback.NewProcessor(store),
		metrics:   feedback.NewMetrics(store, dailyLimit),
		userLocks: make(map[string]*sync.Mutex),
	}
}

func (in *Ingestor) userLock(userID string) *sync.Mutex {
	in.mu.Lock()
	defer in.mu.Unlock()
	lock, ok := in.userLocks[userID]
	if !ok {
		lock = &sync.Mutex{}
		in.userLocks[userID] = lock
	}
	return lock
}

// FeedbackTypeForEmoji resolves an emoji name to a feedback type. The
// second return is false for unmapped emoji, which carry no signal.
func FeedbackTypeForEmoji(emoji string) (database.FeedbackType, bool) {
	name := strings.ToLower(strings.Trim(strings.TrimSpace(emoji), ":"))
	ft, ok := emojiFeedback[name]
	return ft, ok
}

// HandleReaction processes one reaction end to end: resolve the emoji and
// the item, drop duplicates from the same user, enforce the daily limit,
// store the event, and fold the item's own feedback back into its
// confidence. Unknown emoji and unknown items are not errors.
func (in *Ingestor) HandleReaction(r Reaction) (*Result, error) {
	ft, ok := FeedbackTypeForEmoji(r.Emoji)
	if !ok {
		return &Result{Outcome: OutcomeIgnored}, nil
	}

	item, err := in.store.GetItemBySourceRef(r.Channel, r.SourceRef)
	if err != nil {
		return nil, fmt.Errorf("resolving item: %w", err)
	}
	if item == nil {
		return &Result{Outcome: OutcomeUnknownItem, FeedbackType: ft}, nil
	}

	lock := in.userLock(r.UserID)
	lock.Lock()
	defer lock.Unlock()

	spamming, err := in.metrics.IsUserSpamming(r.UserID, item.ID)
	if err != nil {
		return nil, fmt.Errorf("checking duplicate: %w", err)
	}
	if spamming {
		return &Result{Outcome: OutcomeDuplicate, FeedbackType: ft, ItemID: item.ID}, nil
	}

	allowed, _, err := in.metrics.CheckRateLimit(r.UserID)
	if err != nil {
		return nil, fmt.Errorf("checking rate limit: %w", err)
	}
	if !allowed {
		return &Result{Outcome: OutcomeRateLimited, FeedbackType: ft, ItemID: item.ID}, nil
	}

	event := database.FeedbackEvent{
		DigestItemID: item.ID,
		UserID:       r.UserID,
		Team:         r.Team,
		FeedbackType: ft,
	}
	if r.Comment != "" {
		event.Comment = &r.Comment
	}
	id, err := in.store.AppendFeedback(event)
	if err != nil {
		return nil, fmt.Errorf("storing feedback: %w", err)
	}

	confidence, err := in.processor.ApplyItemFeedback(item.ID)
	if err != nil {
		return nil, fmt.Errorf("rescoring item: %w", err)
	}
	if err := in.store.UpdateItemConfidence(item.ID, confidence); err != nil {
		return nil, fmt.Errorf("updating confidence: %w", err)
	}

	return &Result{
		Outcome:       OutcomeStored,
		FeedbackType:  ft,
		FeedbackID:    id,
		ItemID:        item.ID,
		NewConfidence: confidence,
	}, nil
}
