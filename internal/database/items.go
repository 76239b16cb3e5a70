package database

import (
	"database/sql"
	"encoding/json"
)

const itemColumns = `digest_item_id, run_id, date, team, item_type, title, summary,
	severity, owners, confidence, source_channel, source_ref, created_at`

// UpsertItem inserts or replaces a digest item by its ID.
func (db *DB) UpsertItem(item DigestItem) error {
	owners, err := json.Marshal(item.Owners)
	if err != nil {
		return err
	}
	_, err = db.conn.Exec(
		`INSERT INTO digest_items (
			digest_item_id, run_id, date, team, item_type, title, summary,
			severity, owners, confidence, source_channel, source_ref
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(digest_item_id) DO UPDATE SET
			run_id = excluded.run_id,
			date = excluded.date,
			team = excluded.team,
			item_type = excluded.item_type,
			title = excluded.title,
			summary = excluded.summary,
			severity = excluded.severity,
			owners = excluded.owners,
			confidence = excluded.confidence,
			source_channel = excluded.source_channel,
			source_ref = excluded.source_ref`,
		item.ID, item.RunID, item.Date, item.Team, string(item.ItemType),
		item.Title, item.Summary, string(item.Severity), string(owners),
		clamp01(item.Confidence), item.SourceChannel, item.SourceRef,
	)
	return err
}

// GetItemByID returns a single digest item, or nil if not found.
func (db *DB) GetItemByID(itemID string) (*DigestItem, error) {
	row := db.conn.QueryRow(
		`SELECT `+itemColumns+` FROM digest_items WHERE digest_item_id = ?`, itemID,
	)
	item, err := scanItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return item, nil
}

// GetItemBySourceRef looks up a digest item by its distribution reference
// (channel plus message token). Returns nil if no item was posted there.
func (db *DB) GetItemBySourceRef(channel, ref string) (*DigestItem, error) {
	row := db.conn.QueryRow(
		`SELECT `+itemColumns+` FROM digest_items
		WHERE source_channel = ? AND source_ref = ?`, channel, ref,
	)
	item, err := scanItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return item, nil
}

// GetItemsByRun returns all digest items from a run.
func (db *DB) GetItemsByRun(runID string) ([]DigestItem, error) {
	rows, err := db.conn.Query(
		`SELECT `+itemColumns+` FROM digest_items WHERE run_id = ? ORDER BY date DESC, digest_item_id`,
		runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanItems(rows)
}

// GetRecentItems returns digest items dated within the last `days` days,
// optionally filtered by team.
func (db *DB) GetRecentItems(days int, team *string) ([]DigestItem, error) {
	cutoff := cutoffStamp(days)[:10]
	query := `SELECT ` + itemColumns + ` FROM digest_items WHERE date >= ?`
	args := []any{cutoff}
	if team != nil {
		query += " AND team = ?"
		args = append(args, *team)
	}
	query += " ORDER BY date DESC, digest_item_id"

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanItems(rows)
}

// UpdateItemConfidence sets an item's confidence, clamped to [0,1].
func (db *DB) UpdateItemConfidence(itemID string, confidence float64) error {
	_, err := db.conn.Exec(
		`UPDATE digest_items SET confidence = ? WHERE digest_item_id = ?`,
		clamp01(confidence), itemID,
	)
	return err
}

// GetStats returns aggregate counts for the status command.
func (db *DB) GetStats() (*Stats, error) {
	s := &Stats{}
	row := db.conn.QueryRow(`SELECT
		(SELECT COUNT(*) FROM digest_items),
		(SELECT COUNT(*) FROM feedback_events),
		(SELECT COUNT(*) FROM prompt_directives),
		(SELECT COUNT(*) FROM prompt_directives WHERE active = 1),
		(SELECT COUNT(*) FROM user_personas),
		(SELECT COUNT(DISTINCT team) FROM digest_items)`)
	if err := row.Scan(&s.TotalItems, &s.TotalFeedback, &s.TotalDirectives,
		&s.ActiveDirectives, &s.TotalPersonas, &s.TeamsWithItems); err != nil {
		return nil, err
	}
	return s, nil
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

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*DigestItem, error) {
	var item DigestItem
	var itemType, severity, owners string
	if err := row.Scan(&item.ID, &item.RunID, &item.Date, &item.Team, &itemType,
		&item.Title, &item.Summary, &severity, &owners, &item.Confidence,
		&item.SourceChannel, &item.SourceRef, &item.CreatedAt); err != nil {
		return nil, err
	}
	item.ItemType = ItemType(itemType)
	item.Severity = Severity(severity)
	if err := json.Unmarshal([]byte(owners), &item.Owners); err != nil {
		item.Owners = nil
	}
	return &item, nil
}

func scanItems(rows *sql.Rows) ([]DigestItem, error) {
	var items []DigestItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}
