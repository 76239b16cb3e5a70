package database

const directiveColumns = `id, team, directive, created_at, last_confirmed_at, confirmation_count, active`

// ReinforceDirective inserts a directive or, if (team, directive) exists,
// increments its confirmation count, refreshes last_confirmed_at, and
// reactivates it. The single upsert statement keeps reinforcement atomic.
func (db *DB) ReinforceDirective(team, directive string) error {
	now := nowStamp()
	_, err := db.conn.Exec(
		`INSERT INTO prompt_directives (team, directive, created_at, last_confirmed_at, confirmation_count, active)
		VALUES (?, ?, ?, ?, 1, 1)
		ON CONFLICT(team, directive) DO UPDATE SET
			confirmation_count = confirmation_count + 1,
			last_confirmed_at = excluded.last_confirmed_at,
			active = 1`,
		team, directive, now, now,
	)
	return err
}

// GetActiveDirectives returns active, non-expired directives for a team,
// ordered by confirmation count then recency, capped at maxCount.
func (db *DB) GetActiveDirectives(team string, maxCount, expiryDays int) ([]Directive, error) {
	cutoff := cutoffStamp(expiryDays)
	rows, err := db.conn.Query(
		`SELECT `+directiveColumns+` FROM prompt_directives
		WHERE team = ? AND active = 1 AND last_confirmed_at >= ?
		ORDER BY confirmation_count DESC, last_confirmed_at DESC
		LIMIT ?`,
		team, cutoff, maxCount,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var directives []Directive
	for rows.Next() {
		var d Directive
		var active int
		if err := rows.Scan(&d.ID, &d.Team, &d.Directive, &d.CreatedAt,
			&d.LastConfirmedAt, &d.ConfirmationCount, &active); err != nil {
			return nil, err
		}
		d.Active = active != 0
		directives = append(directives, d)
	}
	return directives, rows.Err()
}

// ExpireDirectives deactivates directives not reconfirmed within the expiry
// window. Returns the number of directives expired.
func (db *DB) ExpireDirectives(expiryDays int) (int64, error) {
	cutoff := cutoffStamp(expiryDays)
	result, err := db.conn.Exec(
		`UPDATE prompt_directives SET active = 0 WHERE last_confirmed_at < ? AND active = 1`,
		cutoff,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// DeactivateDirective manually deactivates a specific directive.
func (db *DB) DeactivateDirective(team, directive string) error {
	_, err := db.conn.Exec(
		`UPDATE prompt_directives SET active = 0 WHERE team = ? AND directive = ?`,
		team, directive,
	)
	return err
}
