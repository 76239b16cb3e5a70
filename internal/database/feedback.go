package database

import "database/sql"

const feedbackColumns = `id, digest_item_id, user_id, team, feedback_type, comment, created_at`

// AppendFeedback stores a feedback event and returns its ID.
// An empty CreatedAt means now; callers importing historical events set it.
func (db *DB) AppendFeedback(event FeedbackEvent) (int64, error) {
	createdAt := event.CreatedAt
	if createdAt == "" {
		createdAt = nowStamp()
	}
	result, err := db.conn.Exec(
		`INSERT INTO feedback_events (digest_item_id, user_id, team, feedback_type, comment, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		event.DigestItemID, event.UserID, event.Team, string(event.FeedbackType),
		event.Comment, createdAt,
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// GetFeedbackForItem returns all feedback for an item, newest first.
func (db *DB) GetFeedbackForItem(itemID string) ([]FeedbackEvent, error) {
	rows, err := db.conn.Query(
		`SELECT `+feedbackColumns+` FROM feedback_events
		WHERE digest_item_id = ? ORDER BY created_at DESC, id DESC`, itemID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanFeedback(rows)
}

// GetRecentFeedback returns feedback events from the last `days` days,
// optionally filtered by team, newest first.
func (db *DB) GetRecentFeedback(days int, team *string) ([]FeedbackEvent, error) {
	cutoff := cutoffStamp(days)
	query := `SELECT ` + feedbackColumns + ` FROM feedback_events WHERE created_at >= ?`
	args := []any{cutoff}
	if team != nil {
		query += " AND team = ?"
		args = append(args, *team)
	}
	query += " ORDER BY created_at DESC, id DESC"

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanFeedback(rows)
}

// GetFeedbackCountsByType aggregates feedback counts by type over a window.
func (db *DB) GetFeedbackCountsByType(days int, team *string) (map[FeedbackType]int, error) {
	cutoff := cutoffStamp(days)
	query := `SELECT feedback_type, COUNT(*) FROM feedback_events WHERE created_at >= ?`
	args := []any{cutoff}
	if team != nil {
		query += " AND team = ?"
		args = append(args, *team)
	}
	query += " GROUP BY feedback_type"

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[FeedbackType]int)
	for rows.Next() {
		var ft string
		var n int
		if err := rows.Scan(&ft, &n); err != nil {
			return nil, err
		}
		counts[FeedbackType(ft)] = n
	}
	return counts, rows.Err()
}

// CountUserFeedbackToday returns how many feedback events a user stored today.
func (db *DB) CountUserFeedbackToday(userID string) (int, error) {
	var count int
	err := db.conn.QueryRow(
		`SELECT COUNT(*) FROM feedback_events WHERE user_id = ? AND created_at LIKE ?`,
		userID, Today()+"%",
	).Scan(&count)
	return count, err
}

// HasUserFeedback reports whether a user already gave feedback on an item.
func (db *DB) HasUserFeedback(userID, itemID string) (bool, error) {
	var one int
	err := db.conn.QueryRow(
		`SELECT 1 FROM feedback_events WHERE user_id = ? AND digest_item_id = ? LIMIT 1`,
		userID, itemID,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func scanFeedback(rows *sql.Rows) ([]FeedbackEvent, error) {
	var events []FeedbackEvent
	for rows.Next() {
		var e FeedbackEvent
		var ft string
		if err := rows.Scan(&e.ID, &e.DigestItemID, &e.UserID, &e.Team, &ft,
			&e.Comment, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.FeedbackType = FeedbackType(ft)
		events = append(events, e)
	}
	return events, rows.Err()
}
