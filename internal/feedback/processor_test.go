package feedback

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/abhinavprkash/ThreadPilot/internal/database"
)

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func storeItem(t *testing.T, db *database.DB, id string, itemType database.ItemType, title, channel string) {
	t.Helper()
	err := db.UpsertItem(database.DigestItem{
		ID:            id,
		RunID:         "run-1",
		Date:          database.Today(),
		Team:          "software",
		ItemType:      itemType,
		Title:         title,
		Summary:       "summary",
		Severity:      database.SeverityMedium,
		Confidence:    0.8,
		SourceChannel: channel,
		SourceRef:     "ref-" + id,
	})
	if err != nil {
		t.Fatalf("storing item %s: %v", id, err)
	}
}

func storeFeedback(t *testing.T, db *database.DB, itemID, userID string, ft database.FeedbackType) {
	t.Helper()
	_, err := db.AppendFeedback(database.FeedbackEvent{
		DigestItemID: itemID,
		UserID:       userID,
		Team:         "software",
		FeedbackType: ft,
	})
	if err != nil {
		t.Fatalf("storing feedback: %v", err)
	}
}

func TestGetAdjustmentsWrongPenalty(t *testing.T) {
	db := openTestDB(t)
	p := NewProcessor(db)

	// A decision type with 3 wrong out of 4 feedback events.
	storeItem(t, db, "d1", database.ItemDecision, "Chose vendor A", "")
	storeFeedback(t, db, "d1", "U1", database.FeedbackWrong)
	storeFeedback(t, db, "d1", "U2", database.FeedbackWrong)
	storeFeedback(t, db, "d1", "U3", database.FeedbackWrong)
	storeFeedback(t, db, "d1", "U4", database.FeedbackAccurate)

	// An update type with no feedback at all.
	storeItem(t, db, "u1", database.ItemUpdate, "Weekly sync notes", "")

	adj, err := p.GetAdjustments(7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	delta, ok := adj.TypeAdjustments[database.ItemDecision]
	if !ok {
		t.Fatal("expected adjustment for decision type")
	}
	if delta >= 0 {
		t.Errorf("expected negative adjustment, got %f", delta)
	}
	// wrong_ratio 0.75 over threshold 0.2 scales the 0.3 penalty.
	want := -WrongPenalty * (0.75 / WrongThreshold)
	if diff := delta - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("expected %f, got %f", want, delta)
	}

	if _, ok := adj.TypeAdjustments[database.ItemUpdate]; ok {
		t.Error("expected no entry for type with zero feedback")
	}
}

func TestGetAdjustmentsAccurateBoost(t *testing.T) {
	db := openTestDB(t)
	p := NewProcessor(db)

	storeItem(t, db, "b1", database.ItemBlocker, "Firmware flash blocked", "")
	for i := 0; i < 4; i++ {
		storeFeedback(t, db, "b1", fmt.Sprintf("U%d", i), database.FeedbackAccurate)
	}

	adj, err := p.GetAdjustments(7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if adj.TypeAdjustments[database.ItemBlocker] != AccurateBoost {
		t.Errorf("expected +%f boost, got %f", AccurateBoost, adj.TypeAdjustments[database.ItemBlocker])
	}
}

func TestGetAdjustmentsChannelWeights(t *testing.T) {
	db := openTestDB(t)
	p := NewProcessor(db)

	// Noisy channel: 6 events, 3 irrelevant.
	storeItem(t, db, "n1", database.ItemUpdate, "Bot noise one", "C_NOISY")
	storeItem(t, db, "n2", database.ItemUpdate, "Bot noise two", "C_NOISY")
	for i, ft := range []database.FeedbackType{
		database.FeedbackIrrelevant, database.FeedbackIrrelevant, database.FeedbackIrrelevant,
		database.FeedbackAccurate, database.FeedbackAccurate, database.FeedbackAccurate,
	} {
		itemID := "n1"
		if i%2 == 0 {
			itemID = "n2"
		}
		storeFeedback(t, db, itemID, fmt.Sprintf("NU%d", i), ft)
	}

	// Quiet channel: plenty irrelevant but under the minimum event count.
	storeItem(t, db, "q1", database.ItemUpdate, "Quiet item", "C_QUIET")
	for i := 0; i < 4; i++ {
		storeFeedback(t, db, "q1", fmt.Sprintf("QU%d", i), database.FeedbackIrrelevant)
	}

	adj, err := p.GetAdjustments(7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	weight, ok := adj.ChannelWeights["C_NOISY"]
	if !ok {
		t.Fatal("expected weight for noisy channel")
	}
	if weight != 0.5 {
		t.Errorf("expected weight 0.5, got %f", weight)
	}

	if _, ok := adj.ChannelWeights["C_QUIET"]; ok {
		t.Error("expected no weight below minimum feedback count")
	}

	if p.ChannelWeight("C_QUIET", adj) != 1.0 {
		t.Error("expected default weight 1.0 for unadjusted channel")
	}
}

func TestChannelWeightFloor(t *testing.T) {
	db := openTestDB(t)
	p := NewProcessor(db)

	storeItem(t, db, "f1", database.ItemUpdate, "All noise", "C_FLOOR")
	for i := 0; i < 5; i++ {
		storeFeedback(t, db, "f1", fmt.Sprintf("FU%d", i), database.FeedbackIrrelevant)
	}

	adj, _ := p.GetAdjustments(7)
	if adj.ChannelWeights["C_FLOOR"] != channelWeightFloor {
		t.Errorf("expected floor weight %f, got %f", channelWeightFloor, adj.ChannelWeights["C_FLOOR"])
	}
}

func TestRecurringTitles(t *testing.T) {
	db := openTestDB(t)
	p := NewProcessor(db)

	storeItem(t, db, "r1", database.ItemUpdate, "Deploy blocked on CI!", "")
	storeItem(t, db, "r2", database.ItemUpdate, "deploy blocked on CI", "")
	storeItem(t, db, "r3", database.ItemUpdate, "Deploy  blocked   on CI.", "")
	storeItem(t, db, "r4", database.ItemUpdate, "Something else", "")

	adj, err := p.GetAdjustments(7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ids := p.IsRecurring("Deploy blocked on CI", adj)
	if len(ids) != 3 {
		t.Fatalf("expected 3 recurring items, got %d (%v)", len(ids), ids)
	}
	if p.IsRecurring("Something else", adj) != nil {
		t.Error("expected title seen once not to be flagged")
	}
}

func TestApplyItemFeedback(t *testing.T) {
	db := openTestDB(t)
	p := NewProcessor(db)
	storeItem(t, db, "i1", database.ItemDecision, "Decision", "")

	// No feedback yet.
	factor, err := p.ApplyItemFeedback("i1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if factor != 1.0 {
		t.Errorf("expected 1.0 with no feedback, got %f", factor)
	}

	// Heavy wrong feedback drives the factor to the floor.
	storeFeedback(t, db, "i1", "U1", database.FeedbackWrong)
	storeFeedback(t, db, "i1", "U2", database.FeedbackWrong)
	storeFeedback(t, db, "i1", "U3", database.FeedbackWrong)
	storeFeedback(t, db, "i1", "U4", database.FeedbackAccurate)

	factor, _ = p.ApplyItemFeedback("i1")
	if factor != 0.0 {
		t.Errorf("expected factor clamped to 0.0, got %f", factor)
	}

	// Purely accurate feedback stays clamped at 1.0.
	storeItem(t, db, "i2", database.ItemBlocker, "Blocker", "")
	storeFeedback(t, db, "i2", "U1", database.FeedbackAccurate)
	storeFeedback(t, db, "i2", "U2", database.FeedbackAccurate)

	factor, _ = p.ApplyItemFeedback("i2")
	if factor != 1.0 {
		t.Errorf("expected factor clamped to 1.0, got %f", factor)
	}
}

func TestApplyAdjustmentStaysClamped(t *testing.T) {
	p := NewProcessor(nil)
	item := database.DigestItem{ItemType: database.ItemDecision, Confidence: 0.3}
	adj := &Adjustments{TypeAdjustments: map[database.ItemType]float64{
		database.ItemDecision: -2.5,
	}}

	// Adversarial repeated penalties never escape [0,1].
	for i := 0; i < 10; i++ {
		item.Confidence = p.ApplyAdjustment(item, adj)
		if item.Confidence < 0 || item.Confidence > 1 {
			t.Fatalf("confidence escaped [0,1]: %f", item.Confidence)
		}
	}
	if item.Confidence != 0.0 {
		t.Errorf("expected 0.0, got %f", item.Confidence)
	}

	adj.TypeAdjustments[database.ItemDecision] = 3.0
	item.Confidence = p.ApplyAdjustment(item, adj)
	if item.Confidence != 1.0 {
		t.Errorf("expected 1.0, got %f", item.Confidence)
	}
}

func TestShouldIncludeItem(t *testing.T) {
	p := NewProcessor(nil)
	cases := []struct {
		confidence float64
		want       Placement
	}{
		{0.9, PlaceMain},
		{0.75, PlaceMain},
		{0.7, PlaceMain},
		{0.69, PlaceFYI},
		{0.4, PlaceFYI},
		{0.39, PlaceExclude},
		{0.3, PlaceExclude},
		{0.0, PlaceExclude},
	}
	for _, tc := range cases {
		if got := p.ShouldIncludeItem(tc.confidence); got != tc.want {
			t.Errorf("ShouldIncludeItem(%f) = %q, want %q", tc.confidence, got, tc.want)
		}
	}
}

func TestNormalizeTitle(t *testing.T) {
	cases := []struct{ in, want string }{
		{"Deploy Blocked!", "deploy blocked"},
		{"  lots   of\tspace  ", "lots of space"},
		{"Rev-C board: DRC re-run", "revc board drc rerun"},
	}
	for _, tc := range cases {
		if got := NormalizeTitle(tc.in); got != tc.want {
			t.Errorf("NormalizeTitle(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
