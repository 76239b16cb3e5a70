package feedback

import (
	"fmt"
	"testing"

	"github.com/abhinavprkash/ThreadPilot/internal/database"
)

func TestCheckRateLimit(t *testing.T) {
	db := openTestDB(t)
	m := NewMetrics(db, 10)
	storeItem(t, db, "i1", database.ItemUpdate, "Item", "")

	allowed, remaining, err := m.CheckRateLimit("U1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !allowed || remaining != 10 {
		t.Errorf("expected allowed with 10 remaining, got %v/%d", allowed, remaining)
	}

	for i := 0; i < 3; i++ {
		storeFeedback(t, db, "i1", "U1", database.FeedbackAccurate)
	}
	allowed, remaining, _ = m.CheckRateLimit("U1")
	if !allowed || remaining != 7 {
		t.Errorf("expected allowed with 7 remaining, got %v/%d", allowed, remaining)
	}

	for i := 0; i < 7; i++ {
		storeFeedback(t, db, "i1", "U1", database.FeedbackAccurate)
	}
	allowed, remaining, _ = m.CheckRateLimit("U1")
	if allowed || remaining != 0 {
		t.Errorf("expected limit reached, got %v/%d", allowed, remaining)
	}

	// Another user is unaffected.
	allowed, _, _ = m.CheckRateLimit("U2")
	if !allowed {
		t.Error("expected other user to be allowed")
	}
}

func TestIsUserSpamming(t *testing.T) {
	db := openTestDB(t)
	m := NewMetrics(db, 0)
	storeItem(t, db, "i1", database.ItemUpdate, "Item", "")

	spamming, err := m.IsUserSpamming("U1", "i1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if spamming {
		t.Error("expected no spam before any feedback")
	}

	storeFeedback(t, db, "i1", "U1", database.FeedbackAccurate)

	spamming, _ = m.IsUserSpamming("U1", "i1")
	if !spamming {
		t.Error("expected spam flag after exactly one stored event")
	}
}

func TestComputeSnapshotEmpty(t *testing.T) {
	db := openTestDB(t)
	m := NewMetrics(db, 0)

	s, err := m.ComputeSnapshot(7, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Division-by-zero guards: everything defaults to zero.
	if s.TotalItems != 0 || s.TotalFeedback != 0 {
		t.Errorf("expected empty snapshot, got %+v", s)
	}
	if s.AccuracyRatio != 0 || s.WrongRatio != 0 || s.FeedbackRate != 0 {
		t.Errorf("expected zero ratios, got %+v", s)
	}
}

func TestComputeSnapshot(t *testing.T) {
	db := openTestDB(t)
	m := NewMetrics(db, 0)

	storeItem(t, db, "i1", database.ItemBlocker, "Blocker", "")
	storeItem(t, db, "i2", database.ItemUpdate, "Update", "")
	for i, ft := range []database.FeedbackType{
		database.FeedbackAccurate, database.FeedbackAccurate,
		database.FeedbackWrong, database.FeedbackIrrelevant,
	} {
		storeFeedback(t, db, "i1", fmt.Sprintf("U%d", i), ft)
	}

	team := "software"
	db.ReinforceDirective(team, "Rule")

	s, err := m.ComputeSnapshot(7, &team)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.TotalItems != 2 {
		t.Errorf("expected 2 items, got %d", s.TotalItems)
	}
	if s.TotalFeedback != 4 {
		t.Errorf("expected 4 feedback events, got %d", s.TotalFeedback)
	}
	if s.AccurateCount != 2 || s.WrongCount != 1 || s.IrrelevantCount != 1 {
		t.Errorf("unexpected counts: %+v", s)
	}
	if s.AccuracyRatio != 0.5 || s.WrongRatio != 0.25 {
		t.Errorf("unexpected ratios: %+v", s)
	}
	if s.FeedbackRate != 2.0 {
		t.Errorf("expected feedback_rate 2.0, got %f", s.FeedbackRate)
	}
	if s.ActiveDirectives != 1 {
		t.Errorf("expected 1 active directive, got %d", s.ActiveDirectives)
	}
}
