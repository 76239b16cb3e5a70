package rank

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/abhinavprkash/ThreadPilot/internal/database"
	"github.com/abhinavprkash/ThreadPilot/internal/feedback"
	"github.com/abhinavprkash/ThreadPilot/internal/persona"
)

// Boost amounts. Cross-team impact ranks highest, then actionability, then
// role preference (scaled down), topic matches, and feedback history.
const (
	CrossTeamBoost  = 0.3
	TopicMatchBoost = 0.1
	RoleBoostScale  = 0.1

	maxTopicMatches = 2
)

var actionabilityBoosts = map[database.ItemType]float64{
	database.ItemBlocker:    0.20,
	database.ItemActionItem: 0.15,
	database.ItemDecision:   0.10,
	database.ItemUpdate:     0.0,
}

// Confidence partition thresholds, shared with the processor's placement
// routing (feedback.HighConfidenceThreshold / LowConfidenceThreshold).
const (
	HighThreshold = feedback.HighConfidenceThreshold
	LowThreshold  = feedback.LowConfidenceThreshold
)

// RankedItem is a digest item with its computed score and breakdown.
type RankedItem struct {
	Item       database.DigestItem
	FinalScore float64

	BaseScore          float64
	CrossTeamBoostVal  float64
	ActionabilityBoost float64
	RoleBoost          float64
	TopicBoost         float64
	FeedbackAdjustment float64

	IsCrossTeam   bool
	MatchedTopics []string
}

// crossTeamPatterns flag explicit dependency or mention language.
var crossTeamPatterns = []*regexp.Regexp{
	regexp.MustCompile(`<@U\w+>`),
	regexp.MustCompile(`@\w+`),
	regexp.MustCompile(`waiting on (mechanical|electrical|software|firmware|mech|ee|sw)`),
	regexp.MustCompile(`blocked (by|on) (mechanical|electrical|software|firmware|mech|ee|sw)`),
	regexp.MustCompile(`need.* from (mechanical|electrical|software|firmware|mech|ee|sw)`),
	regexp.MustCompile(`(mechanical|electrical|software|firmware) team`),
	regexp.MustCompile(`cross[- ]team`),
}

// teamAliases map canonical team names to the words that reference them.
// Single-letter or pronoun-like shorthands are deliberately absent: alias
// detection is word-based and those would misfire on ordinary prose.
var teamAliases = map[string][]string{
	"mechanical": {"mechanical", "mech"},
	"electrical": {"electrical", "ee", "hardware", "hw"},
	"software":   {"software", "sw", "firmware", "fw"},
}

var wordRe = regexp.MustCompile(`[a-z0-9_]+`)

// Ranker produces a personalized, deterministic ordering of digest items.
// The processor's adjustments are fetched once and cached for the ranking
// session; callers invalidate explicitly after processing new feedback.
type Ranker struct {
	store      *database.DB
	processor  *feedback.Processor
	windowDays int

	mu     sync.Mutex
	cached *feedback.Adjustments
}

// NewRanker creates a ranker over the given store using a 7-day
// feedback-adjustment window.
func NewRanker(store *database.DB) *Ranker {
	return &Ranker{
		store:      store,
		processor:  feedback.NewProcessor(store),
		windowDays: 7,
	}
}

// InvalidateCache drops the cached adjustments. Call after feedback has
// been processed so the next ranking session sees it; there is no
// automatic invalidation on write.
func (r *Ranker) InvalidateCache() {
	r.mu.Lock()
	r.cached = nil
	r.mu.Unlock()
}

func (r *Ranker) adjustments() (*feedback.Adjustments, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cached == nil {
		adj, err := r.processor.GetAdjustments(r.windowDays)
		if err != nil {
			return nil, err
		}
		r.cached = adj
	}
	return r.cached, nil
}

// RankForUser ranks items for a stored user, combining their persisted
// persona config with optional role/team overrides.
func (r *Ranker) RankForUser(userID string, items []database.DigestItem, role, team, sourceTeam string) ([]RankedItem, error) {
	cfg, err := r.store.GetUserPersona(userID)
	if err != nil {
		return nil, err
	}
	p := persona.Combined(role, team, cfg)
	return r.Rank(items, p, sourceTeam)
}

// Rank scores items against a persona and returns them ordered by final
// score descending. Ties preserve input order, so identical inputs always
// produce identical output.
func (r *Ranker) Rank(items []database.DigestItem, p persona.Persona, sourceTeam string) ([]RankedItem, error) {
	adj, err := r.adjustments()
	if err != nil {
		return nil, err
	}

	ranked := make([]RankedItem, len(items))
	for i, item := range items {
		ranked[i] = scoreItem(item, p, sourceTeam, adj)
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].FinalScore > ranked[j].FinalScore
	})
	return ranked, nil
}

func scoreItem(item database.DigestItem, p persona.Persona, sourceTeam string, adj *feedback.Adjustments) RankedItem {
	base := item.Confidence

	isCrossTeam, crossBoost := crossTeamBoost(item, p, sourceTeam)
	actionability := actionabilityBoosts[item.ItemType]
	roleBoost := p.ItemBoost(item.ItemType) - 1.0
	matched, topicBoost := topicBoost(item, p)
	feedbackAdj := adj.TypeAdjustments[item.ItemType]

	final := base + crossBoost + actionability + roleBoost*RoleBoostScale + topicBoost + feedbackAdj
	if final < 0 {
		final = 0
	}
	if final > 1 {
		final = 1
	}

	return RankedItem{
		Item:               item,
		FinalScore:         final,
		BaseScore:          base,
		CrossTeamBoostVal:  crossBoost,
		ActionabilityBoost: actionability,
		RoleBoost:          roleBoost,
		TopicBoost:         topicBoost,
		FeedbackAdjustment: feedbackAdj,
		IsCrossTeam:        isCrossTeam,
		MatchedTopics:      matched,
	}
}

// crossTeamBoost flags items whose text implies relevance to, or dependency
// on, a team other than their own, then scales the structural boost by the
// persona's cross-team weight.
func crossTeamBoost(item database.DigestItem, p persona.Persona, sourceTeam string) (bool, float64) {
	text := strings.ToLower(item.Title + " " + item.Summary)
	itemTeam := strings.ToLower(item.Team)

	isCrossTeam := false
	for _, pattern := range crossTeamPatterns {
		if pattern.MatchString(text) {
			isCrossTeam = true
			break
		}
	}

	if !isCrossTeam && itemTeam != "" {
		words := wordSet(text)
		for teamName, aliases := range teamAliases {
			if teamName == itemTeam {
				continue
			}
			for _, alias := range aliases {
				if _, ok := words[alias]; ok {
					isCrossTeam = true
					break
				}
			}
			if isCrossTeam {
				break
			}
		}
	}

	if !isCrossTeam && sourceTeam != "" && itemTeam != "" && itemTeam != strings.ToLower(sourceTeam) {
		isCrossTeam = true
	}

	if !isCrossTeam {
		return false, 0.0
	}
	return true, CrossTeamBoost * p.CrossTeamWeight
}

// topicBoost counts distinct matched topics, boosting 0.1 each up to 0.2.
func topicBoost(item database.DigestItem, p persona.Persona) ([]string, float64) {
	text := strings.ToLower(item.Title + " " + item.Summary)
	var matched []string
	for _, topic := range p.Topics {
		if strings.Contains(text, strings.ToLower(topic)) {
			matched = append(matched, topic)
		}
	}
	if len(matched) == 0 {
		return nil, 0.0
	}
	n := len(matched)
	if n > maxTopicMatches {
		n = maxTopicMatches
	}
	return matched, TopicMatchBoost * float64(n)
}

func wordSet(text string) map[string]struct{} {
	words := wordRe.FindAllString(text, -1)
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

// PartitionByConfidence buckets ranked items into main, FYI, and excluded
// using the shared confidence thresholds.
func PartitionByConfidence(ranked []RankedItem, high, low float64) (main, fyi, excluded []RankedItem) {
	for _, item := range ranked {
		switch {
		case item.FinalScore >= high:
			main = append(main, item)
		case item.FinalScore >= low:
			fyi = append(fyi, item)
		default:
			excluded = append(excluded, item)
		}
	}
	return main, fyi, excluded
}

// CrossTeamItems filters to items flagged as cross-team.
func CrossTeamItems(ranked []RankedItem) []RankedItem {
	var out []RankedItem
	for _, item := range ranked {
		if item.IsCrossTeam {
			out = append(out, item)
		}
	}
	return out
}

// Explain renders a human-readable breakdown of one ranked item.
func Explain(r RankedItem) string {
	parts := []string{fmt.Sprintf("Score: %.2f", r.FinalScore)}
	if r.IsCrossTeam {
		parts = append(parts, fmt.Sprintf("Cross-team: +%.2f", r.CrossTeamBoostVal))
	}
	if r.ActionabilityBoost > 0 {
		parts = append(parts, fmt.Sprintf("Actionability (%s): +%.2f", r.Item.ItemType, r.ActionabilityBoost))
	}
	if r.RoleBoost != 0 {
		parts = append(parts, fmt.Sprintf("Role: %+.2f", r.RoleBoost))
	}
	if len(r.MatchedTopics) > 0 {
		topics := r.MatchedTopics
		if len(topics) > 3 {
			topics = topics[:3]
		}
		parts = append(parts, "Topics: "+strings.Join(topics, ", "))
	}
	if r.FeedbackAdjustment != 0 {
		parts = append(parts, fmt.Sprintf("Feedback: %+.2f", r.FeedbackAdjustment))
	}
	return strings.Join(parts, " | ")
}
