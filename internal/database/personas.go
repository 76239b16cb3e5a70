package database

import (
	"database/sql"
	"encoding/json"
)

// SetUserPersona inserts or updates a user's persona configuration.
func (db *DB) SetUserPersona(cfg UserPersonaConfig) error {
	topics, err := json.Marshal(cfg.CustomTopics)
	if err != nil {
		return err
	}
	boosts, err := json.Marshal(cfg.CustomBoosts)
	if err != nil {
		return err
	}
	if cfg.CustomTopics == nil {
		topics = []byte("[]")
	}
	if cfg.CustomBoosts == nil {
		boosts = []byte("{}")
	}
	_, err = db.conn.Exec(
		`INSERT INTO user_personas (user_id, role, team, custom_topics, custom_boosts, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			role = excluded.role,
			team = excluded.team,
			custom_topics = excluded.custom_topics,
			custom_boosts = excluded.custom_boosts,
			updated_at = excluded.updated_at`,
		cfg.UserID, cfg.Role, cfg.Team, string(topics), string(boosts), nowStamp(),
	)
	return err
}

// GetUserPersona returns a user's persona configuration, or nil if unset.
func (db *DB) GetUserPersona(userID string) (*UserPersonaConfig, error) {
	row := db.conn.QueryRow(
		`SELECT user_id, role, team, custom_topics, custom_boosts, updated_at
		FROM user_personas WHERE user_id = ?`, userID,
	)
	cfg, err := scanPersona(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// GetAllUserPersonas returns every stored persona configuration.
func (db *DB) GetAllUserPersonas() ([]UserPersonaConfig, error) {
	rows, err := db.conn.Query(
		`SELECT user_id, role, team, custom_topics, custom_boosts, updated_at
		FROM user_personas ORDER BY user_id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var configs []UserPersonaConfig
	for rows.Next() {
		cfg, err := scanPersona(rows)
		if err != nil {
			return nil, err
		}
		configs = append(configs, *cfg)
	}
	return configs, rows.Err()
}

func scanPersona(row rowScanner) (*UserPersonaConfig, error) {
	var cfg UserPersonaConfig
	var topics, boosts string
	if err := row.Scan(&cfg.UserID, &cfg.Role, &cfg.Team, &topics, &boosts, &cfg.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(topics), &cfg.CustomTopics); err != nil {
		cfg.CustomTopics = nil
	}
	if err := json.Unmarshal([]byte(boosts), &cfg.CustomBoosts); err != nil {
		cfg.CustomBoosts = nil
	}
	return &cfg, nil
}
