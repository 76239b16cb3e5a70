package feedback

import (
	"fmt"
	"strings"
	"testing"

	"github.com/abhinavprkash/ThreadPilot/internal/database"
)

func TestGenerateDirectivesIrrelevantUpdates(t *testing.T) {
	db := openTestDB(t)
	e := NewEnhancer(db)

	// Three irrelevant reactions on update items within the rotation window.
	for i := 0; i < 3; i++ {
		id := fmt.Sprintf("u%d", i)
		storeItem(t, db, id, database.ItemUpdate, "Routine standup notes "+id, "")
		storeFeedback(t, db, id, fmt.Sprintf("U%d", i), database.FeedbackIrrelevant)
	}

	block, err := e.GenerateDirectives("software")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(block, "Skip routine status updates") {
		t.Errorf("expected skip-routine-updates directive, got:\n%s", block)
	}

	// The directive was persisted.
	directives, _ := db.GetActiveDirectives("software", 12, 14)
	if len(directives) != 1 {
		t.Fatalf("expected 1 persisted directive, got %d", len(directives))
	}
	if directives[0].ConfirmationCount != 1 {
		t.Errorf("expected confirmation_count 1, got %d", directives[0].ConfirmationCount)
	}
}

func TestGenerateDirectivesWrongDecisions(t *testing.T) {
	db := openTestDB(t)
	e := NewEnhancer(db)

	for i := 0; i < 2; i++ {
		id := fmt.Sprintf("d%d", i)
		storeItem(t, db, id, database.ItemDecision, "Decision "+id, "")
		storeFeedback(t, db, id, fmt.Sprintf("U%d", i), database.FeedbackWrong)
	}

	block, err := e.GenerateDirectives("software")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(block, "explicit approval language") {
		t.Errorf("expected wrong-decision directive, got:\n%s", block)
	}
}

func TestGenerateDirectivesBlockerEmitsSeverityRule(t *testing.T) {
	db := openTestDB(t)
	e := NewEnhancer(db)

	for i := 0; i < 2; i++ {
		id := fmt.Sprintf("b%d", i)
		storeItem(t, db, id, database.ItemBlocker, "Blocker "+id, "")
		storeFeedback(t, db, id, fmt.Sprintf("U%d", i), database.FeedbackWrong)
	}

	block, _ := e.GenerateDirectives("software")
	if !strings.Contains(block, "clear blocking language") {
		t.Errorf("expected wrong-blocker directive, got:\n%s", block)
	}
	if !strings.Contains(block, "Reserve 'high' severity") {
		t.Errorf("expected severity directive, got:\n%s", block)
	}
}

func TestGenerateDirectivesBelowThreshold(t *testing.T) {
	db := openTestDB(t)
	e := NewEnhancer(db)

	storeItem(t, db, "d0", database.ItemDecision, "Lone decision", "")
	storeFeedback(t, db, "d0", "U1", database.FeedbackWrong)

	block, err := e.GenerateDirectives("software")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if block != "" {
		t.Errorf("expected no directives below threshold, got:\n%s", block)
	}
}

func TestGenerateDirectivesDoesNotRestoreExisting(t *testing.T) {
	db := openTestDB(t)
	e := NewEnhancer(db)

	for i := 0; i < 3; i++ {
		id := fmt.Sprintf("u%d", i)
		storeItem(t, db, id, database.ItemUpdate, "Update "+id, "")
		storeFeedback(t, db, id, fmt.Sprintf("U%d", i), database.FeedbackIrrelevant)
	}

	if _, err := e.GenerateDirectives("software"); err != nil {
		t.Fatalf("first generate: %v", err)
	}
	if _, err := e.GenerateDirectives("software"); err != nil {
		t.Fatalf("second generate: %v", err)
	}

	// The candidate matched an existing directive the second time, so it
	// must not have been reinforced again.
	directives, _ := db.GetActiveDirectives("software", 12, 14)
	if len(directives) != 1 {
		t.Fatalf("expected 1 directive, got %d", len(directives))
	}
	if directives[0].ConfirmationCount != 1 {
		t.Errorf("expected confirmation_count to stay 1, got %d", directives[0].ConfirmationCount)
	}
}

func TestGenerateDirectivesCap(t *testing.T) {
	db := openTestDB(t)
	e := NewEnhancer(db)

	for i := 0; i < 15; i++ {
		db.ReinforceDirective("software", fmt.Sprintf("Manual rule %d", i))
	}

	block, err := e.GenerateDirectives("software")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	lines := strings.Split(block, "\n")
	if len(lines) != DefaultMaxDirectives {
		t.Errorf("expected %d bullets, got %d", DefaultMaxDirectives, len(lines))
	}
}

func TestGetPromptInstructions(t *testing.T) {
	db := openTestDB(t)
	e := NewEnhancer(db)

	// No team, no directives: empty, not an error.
	block, err := e.GetPromptInstructions("", "")
	if err != nil || block != "" {
		t.Errorf("expected empty block for blank team, got %q, %v", block, err)
	}
	block, err = e.GetPromptInstructions("software", "")
	if err != nil || block != "" {
		t.Errorf("expected empty block with no directives, got %q, %v", block, err)
	}

	db.ReinforceDirective("software", directiveTemplates["wrong_blocker"])
	db.ReinforceDirective("software", directiveTemplates["wrong_decision"])

	block, err = e.GetPromptInstructions("software", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(block, "Quality rules from user feedback") {
		t.Errorf("expected instruction heading, got:\n%s", block)
	}
	if !strings.Contains(block, "blocking language") || !strings.Contains(block, "approval language") {
		t.Errorf("expected both directives, got:\n%s", block)
	}

	// Type filter keeps only blocker-flavored directives.
	block, _ = e.GetPromptInstructions("software", database.ItemBlocker)
	if !strings.Contains(block, "blocking language") {
		t.Errorf("expected blocker directive, got:\n%s", block)
	}
	if strings.Contains(block, "approval language") {
		t.Errorf("expected decision directive filtered out, got:\n%s", block)
	}

	// A type matching nothing yields an empty block.
	block, _ = e.GetPromptInstructions("software", database.ItemUpdate)
	if block != "" {
		t.Errorf("expected empty block for unmatched type, got:\n%s", block)
	}
}

func TestConfirmDirectiveExtendsLifespan(t *testing.T) {
	db := openTestDB(t)
	e := NewEnhancer(db)

	e.ConfirmDirective("software", "Rule")
	e.ConfirmDirective("software", "Rule")

	directives, _ := db.GetActiveDirectives("software", 12, 14)
	if len(directives) != 1 || directives[0].ConfirmationCount != 2 {
		t.Errorf("expected one directive confirmed twice, got %+v", directives)
	}

	e.ForceExpire("software", "Rule")
	directives, _ = db.GetActiveDirectives("software", 12, 14)
	if len(directives) != 0 {
		t.Errorf("expected directive deactivated, got %+v", directives)
	}
}

func TestMergeDirectivesDedup(t *testing.T) {
	existing := []string{"Rule one.", "Rule two."}
	candidates := []string{"rule one.", "  Rule Two.  ", "Rule three."}

	merged := mergeDirectives(existing, candidates, 12)
	if len(merged) != 3 {
		t.Fatalf("expected 3 merged, got %d (%v)", len(merged), merged)
	}
	if merged[0] != "Rule one." || merged[2] != "Rule three." {
		t.Errorf("expected existing first then new, got %v", merged)
	}
}
