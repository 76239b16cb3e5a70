package feedback

import (
	"regexp"
	"strings"

	"github.com/abhinavprkash/ThreadPilot/internal/database"
)

// Adjustment thresholds. A type's wrong/irrelevant ratio must exceed the
// threshold before any penalty applies; penalties then scale with the ratio.
const (
	WrongThreshold      = 0.2
	IrrelevantThreshold = 0.2
	AccurateThreshold   = 0.5

	WrongPenalty      = 0.3
	IrrelevantPenalty = 0.2
	AccurateBoost     = 0.1
)

// Confidence thresholds for digest placement. These must stay identical to
// the ranker's partition thresholds.
const (
	HighConfidenceThreshold = 0.7
	LowConfidenceThreshold  = 0.4
)

// Channel noise filtering.
const (
	minChannelFeedback         = 5
	channelIrrelevantThreshold = 0.3
	channelWeightFloor         = 0.2
)

// Placement says where an item belongs in the rendered digest.
type Placement string

const (
	PlaceMain    Placement = "main"
	PlaceFYI     Placement = "fyi"
	PlaceExclude Placement = "exclude"
)

// Adjustments holds everything the processor derived from recent feedback.
type Adjustments struct {
	// TypeAdjustments maps item type to an additive confidence adjustment.
	// Types with no feedback in the window have no entry.
	TypeAdjustments map[database.ItemType]float64

	// ChannelWeights maps source channel to a contribution weight in
	// [channelWeightFloor, 1]. Channels with too little feedback are absent.
	ChannelWeights map[string]float64

	// RecurringTitles maps a normalized title seen more than twice in the
	// window to the IDs of the items carrying it.
	RecurringTitles map[string][]string
}

// Processor turns accumulated feedback into deterministic confidence
// adjustments and channel weights. It never calls a model; every rule here
// is a fixed threshold so behavior stays auditable.
type Processor struct {
	store *database.DB
}

// NewProcessor creates a feedback processor backed by the given store.
func NewProcessor(store *database.DB) *Processor {
	return &Processor{store: store}
}

// GetAdjustments analyzes items and feedback from the last `days` days and
// computes the adjustments to apply to the next ranking session.
func (p *Processor) GetAdjustments(days int) (*Adjustments, error) {
	items, err := p.store.GetRecentItems(days, nil)
	if err != nil {
		return nil, err
	}

	byType := make(map[database.ItemType][]database.DigestItem)
	byChannel := make(map[string][]database.DigestItem)
	byTitle := make(map[string][]database.DigestItem)
	for _, item := range items {
		byType[item.ItemType] = append(byType[item.ItemType], item)
		if item.SourceChannel != "" {
			byChannel[item.SourceChannel] = append(byChannel[item.SourceChannel], item)
		}
		title := NormalizeTitle(item.Title)
		byTitle[title] = append(byTitle[title], item)
	}

	adj := &Adjustments{
		TypeAdjustments: make(map[database.ItemType]float64),
		ChannelWeights:  make(map[string]float64),
		RecurringTitles: make(map[string][]string),
	}

	for itemType, typed := range byType {
		counts, err := p.tallyFeedback(typed)
		if err != nil {
			return nil, err
		}
		if adjustment, ok := typeAdjustment(counts); ok {
			adj.TypeAdjustments[itemType] = adjustment
		}
	}

	for channel, posted := range byChannel {
		counts, err := p.tallyFeedback(posted)
		if err != nil {
			return nil, err
		}
		if counts.total < minChannelFeedback {
			continue
		}
		ratio := float64(counts.irrelevant) / float64(counts.total)
		if ratio > channelIrrelevantThreshold {
			weight := 1.0 - ratio
			if weight < channelWeightFloor {
				weight = channelWeightFloor
			}
			adj.ChannelWeights[channel] = weight
		}
	}

	for title, sameTitle := range byTitle {
		if len(sameTitle) > 2 {
			ids := make([]string, len(sameTitle))
			for i, item := range sameTitle {
				ids[i] = item.ID
			}
			adj.RecurringTitles[title] = ids
		}
	}

	return adj, nil
}

// ApplyAdjustment returns an item's confidence with its type-level
// adjustment applied, clamped to [0,1].
func (p *Processor) ApplyAdjustment(item database.DigestItem, adj *Adjustments) float64 {
	confidence := item.Confidence
	if delta, ok := adj.TypeAdjustments[item.ItemType]; ok {
		confidence += delta
	}
	return clamp01(confidence)
}

// ApplyItemFeedback computes a replacement confidence for one item from its
// own feedback only. Returns 1.0 when the item has no feedback.
func (p *Processor) ApplyItemFeedback(itemID string) (float64, error) {
	events, err := p.store.GetFeedbackForItem(itemID)
	if err != nil {
		return 0, err
	}
	if len(events) == 0 {
		return 1.0, nil
	}

	var counts feedbackTally
	for _, e := range events {
		counts.add(e.FeedbackType)
	}
	adjustment, _ := typeAdjustment(counts)
	return clamp01(1.0 + adjustment), nil
}

// ShouldIncludeItem routes an item by confidence: main digest sections,
// the lower-confidence FYI section, or exclusion.
func (p *Processor) ShouldIncludeItem(confidence float64) Placement {
	switch {
	case confidence >= HighConfidenceThreshold:
		return PlaceMain
	case confidence >= LowConfidenceThreshold:
		return PlaceFYI
	default:
		return PlaceExclude
	}
}

// ChannelWeight returns a channel's contribution weight, 1.0 when unadjusted.
func (p *Processor) ChannelWeight(channel string, adj *Adjustments) float64 {
	if w, ok := adj.ChannelWeights[channel]; ok {
		return w
	}
	return 1.0
}

// IsRecurring returns the prior item IDs sharing this title, or nil.
func (p *Processor) IsRecurring(title string, adj *Adjustments) []string {
	return adj.RecurringTitles[NormalizeTitle(title)]
}

type feedbackTally struct {
	total      int
	wrong      int
	irrelevant int
	accurate   int
}

func (t *feedbackTally) add(ft database.FeedbackType) {
	t.total++
	switch ft {
	case database.FeedbackWrong:
		t.wrong++
	case database.FeedbackIrrelevant:
		t.irrelevant++
	case database.FeedbackAccurate:
		t.accurate++
	}
}

func (p *Processor) tallyFeedback(items []database.DigestItem) (feedbackTally, error) {
	var counts feedbackTally
	for _, item := range items {
		events, err := p.store.GetFeedbackForItem(item.ID)
		if err != nil {
			return counts, err
		}
		for _, e := range events {
			counts.add(e.FeedbackType)
		}
	}
	return counts, nil
}

// typeAdjustment computes the additive adjustment for a feedback tally.
// Penalties scale with how far past the threshold the ratio is; the same
// formula serves both the batch-window and single-item paths.
func typeAdjustment(counts feedbackTally) (float64, bool) {
	if counts.total == 0 {
		return 0, false
	}

	wrongRatio := float64(counts.wrong) / float64(counts.total)
	irrelevantRatio := float64(counts.irrelevant) / float64(counts.total)
	accurateRatio := float64(counts.accurate) / float64(counts.total)

	adjustment := 0.0
	if wrongRatio > WrongThreshold {
		adjustment -= WrongPenalty * (wrongRatio / WrongThreshold)
	}
	if irrelevantRatio > IrrelevantThreshold {
		adjustment -= IrrelevantPenalty * (irrelevantRatio / IrrelevantThreshold)
	}
	if accurateRatio > AccurateThreshold {
		adjustment += AccurateBoost
	}

	return adjustment, adjustment != 0.0
}

var (
	punctRe      = regexp.MustCompile(`[^\w\s]`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// NormalizeTitle lowercases a title, strips punctuation, and collapses
// whitespace so recurring items match across minor rephrasings.
func NormalizeTitle(title string) string {
	normalized := strings.ToLower(strings.TrimSpace(title))
	normalized = punctRe.ReplaceAllString(normalized, "")
	normalized = whitespaceRe.ReplaceAllString(normalized, " ")
	return normalized
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
