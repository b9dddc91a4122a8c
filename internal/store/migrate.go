package store

import "fmt"

// The DDL sticks to types and syntax both SQLite and Postgres accept.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS players (
		steam_id BIGINT PRIMARY KEY,
		persona_name TEXT NOT NULL DEFAULT '',
		profile_url TEXT NOT NULL DEFAULT '',
		avatar TEXT NOT NULL DEFAULT '',
		avatar_medium TEXT NOT NULL DEFAULT '',
		avatar_full TEXT NOT NULL DEFAULT '',
		last_logoff TIMESTAMP,
		last_refresh TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_players_last_refresh ON players(last_refresh)`,
	`CREATE TABLE IF NOT EXISTS heroes (
		hero_id INTEGER PRIMARY KEY,
		client_name TEXT NOT NULL,
		name TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS items (
		item_id INTEGER PRIMARY KEY,
		client_name TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS match_seq_cursor (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		last_match_seq_num BIGINT NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS match_queue (
		match_id BIGINT PRIMARY KEY,
		match_seq_num BIGINT NOT NULL,
		start_time TIMESTAMP NOT NULL,
		lobby_type INTEGER NOT NULL,
		queued_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_match_queue_queued_at ON match_queue(queued_at)`,
	`CREATE TABLE IF NOT EXISTS match_queue_players (
		match_id BIGINT NOT NULL REFERENCES match_queue(match_id) ON DELETE CASCADE,
		account_id BIGINT,
		player_slot INTEGER NOT NULL,
		hero_id INTEGER NOT NULL,
		is_bot BOOLEAN NOT NULL DEFAULT FALSE,
		PRIMARY KEY (match_id, hero_id, player_slot)
	)`,
	`CREATE TABLE IF NOT EXISTS matches (
		match_id BIGINT PRIMARY KEY,
		match_seq_num BIGINT NOT NULL,
		season INTEGER NOT NULL,
		radiant_win BOOLEAN NOT NULL,
		duration INTEGER NOT NULL,
		start_time TIMESTAMP NOT NULL,
		tower_status_radiant INTEGER NOT NULL,
		tower_status_dire INTEGER NOT NULL,
		barracks_status_radiant INTEGER NOT NULL,
		barracks_status_dire INTEGER NOT NULL,
		cluster INTEGER NOT NULL,
		first_blood_time INTEGER NOT NULL,
		lobby_type INTEGER NOT NULL,
		human_players INTEGER NOT NULL,
		league_id INTEGER NOT NULL,
		positive_votes INTEGER NOT NULL,
		negative_votes INTEGER NOT NULL,
		game_mode INTEGER NOT NULL,
		last_refresh TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_matches_last_refresh ON matches(last_refresh)`,
	`CREATE TABLE IF NOT EXISTS match_picks_bans (
		match_id BIGINT NOT NULL REFERENCES matches(match_id) ON DELETE CASCADE,
		is_pick BOOLEAN NOT NULL,
		hero_id INTEGER NOT NULL,
		team INTEGER NOT NULL,
		pick_order INTEGER NOT NULL,
		PRIMARY KEY (match_id, hero_id, pick_order)
	)`,
	`CREATE TABLE IF NOT EXISTS match_players (
		match_id BIGINT NOT NULL REFERENCES matches(match_id) ON DELETE CASCADE,
		account_id BIGINT,
		player_slot INTEGER NOT NULL,
		hero_id INTEGER NOT NULL,
		item_0 INTEGER,
		item_1 INTEGER,
		item_2 INTEGER,
		item_3 INTEGER,
		item_4 INTEGER,
		item_5 INTEGER,
		kills BIGINT NOT NULL,
		deaths BIGINT NOT NULL,
		assists BIGINT NOT NULL,
		leaver_status INTEGER,
		gold BIGINT NOT NULL,
		last_hits BIGINT NOT NULL,
		denies BIGINT NOT NULL,
		gold_per_min BIGINT NOT NULL,
		xp_per_min BIGINT NOT NULL,
		gold_spent BIGINT NOT NULL,
		hero_damage BIGINT NOT NULL,
		tower_damage BIGINT NOT NULL,
		hero_healing BIGINT NOT NULL,
		level INTEGER NOT NULL,
		ability_upgrades TEXT,
		additional_units TEXT,
		is_bot BOOLEAN NOT NULL DEFAULT FALSE,
		PRIMARY KEY (match_id, hero_id, player_slot)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_match_players_account ON match_players(account_id)`,
}

func (s *SQLStore) migrate() error {
	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}
