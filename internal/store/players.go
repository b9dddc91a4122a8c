package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const playerColumns = `steam_id, persona_name, profile_url, avatar, avatar_medium, avatar_full, last_logoff, last_refresh`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPlayer(row rowScanner) (Player, error) {
	var p Player
	err := row.Scan(&p.SteamID, &p.PersonaName, &p.ProfileURL,
		&p.Avatar, &p.AvatarMedium, &p.AvatarFull, &p.LastLogoff, &p.LastRefresh)
	return p, err
}

func scanPlayers(rows *sql.Rows) ([]Player, error) {
	defer rows.Close()
	var players []Player
	for rows.Next() {
		p, err := scanPlayer(rows)
		if err != nil {
			return nil, err
		}
		players = append(players, p)
	}
	return players, rows.Err()
}

// GetPlayer retrieves a player by Steam id.
func (s *SQLStore) GetPlayer(ctx context.Context, steamID uint64) (*Player, error) {
	p, err := scanPlayer(s.queryRow(ctx, s.db,
		`SELECT `+playerColumns+` FROM players WHERE steam_id = ?`, steamID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// UpsertPlayers creates or updates player profiles in one transaction.
func (s *SQLStore) UpsertPlayers(ctx context.Context, players []Player) error {
	if len(players) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, p := range players {
		_, err := s.exec(ctx, tx,
			`INSERT INTO players (`+playerColumns+`)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(steam_id) DO UPDATE SET
			 	persona_name = excluded.persona_name,
			 	profile_url = excluded.profile_url,
			 	avatar = excluded.avatar,
			 	avatar_medium = excluded.avatar_medium,
			 	avatar_full = excluded.avatar_full,
			 	last_logoff = excluded.last_logoff,
			 	last_refresh = excluded.last_refresh`,
			p.SteamID, p.PersonaName, p.ProfileURL, p.Avatar, p.AvatarMedium, p.AvatarFull,
			utcPtr(p.LastLogoff), utc(p.LastRefresh),
		)
		if err != nil {
			return fmt.Errorf("upsert player %d: %w", p.SteamID, err)
		}
	}
	return tx.Commit()
}

// TouchPlayers restarts the refresh window of the given players without changing their profile.
func (s *SQLStore) TouchPlayers(ctx context.Context, steamIDs []uint64, at time.Time) error {
	if len(steamIDs) == 0 {
		return nil
	}
	args := make([]any, 0, len(steamIDs)+1)
	args = append(args, utc(at))
	for _, id := range steamIDs {
		args = append(args, id)
	}
	_, err := s.exec(ctx, s.db,
		`UPDATE players SET last_refresh = ? WHERE steam_id IN (`+placeholders(len(steamIDs))+`)`,
		args...)
	return err
}

// PlayersRefreshedBefore returns at most limit players whose last refresh is older than
// cutoff, oldest first.
func (s *SQLStore) PlayersRefreshedBefore(ctx context.Context, cutoff time.Time, limit int) ([]Player, error) {
	rows, err := s.query(ctx, s.db,
		`SELECT `+playerColumns+` FROM players
		 WHERE last_refresh < ?
		 ORDER BY last_refresh, steam_id
		 LIMIT ?`, utc(cutoff), limit)
	if err != nil {
		return nil, err
	}
	return scanPlayers(rows)
}

// SearchPlayers returns players whose name contains q.Name, or whose profile URL equals
// q.ProfileURL, or whose Steam id equals q.SteamID. Criteria are OR-ed.
func (s *SQLStore) SearchPlayers(ctx context.Context, q PlayerSearch) ([]Player, error) {
	var (
		conds []string
		args  []any
	)
	if q.Name != "" {
		conds = append(conds, `LOWER(persona_name) LIKE ?`)
		args = append(args, "%"+strings.ToLower(q.Name)+"%")
	}
	if q.ProfileURL != "" {
		conds = append(conds, `LOWER(profile_url) = ?`)
		args = append(args, strings.ToLower(q.ProfileURL))
	}
	if id, err := strconv.ParseUint(strings.TrimSpace(q.SteamID), 10, 64); err == nil {
		conds = append(conds, `steam_id = ?`)
		args = append(args, id)
	}
	if len(conds) == 0 {
		return nil, nil
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 25
	}
	args = append(args, limit)

	rows, err := s.query(ctx, s.db,
		`SELECT `+playerColumns+` FROM players
		 WHERE `+strings.Join(conds, " OR ")+`
		 ORDER BY persona_name, steam_id
		 LIMIT ?`, args...)
	if err != nil {
		return nil, err
	}
	return scanPlayers(rows)
}

// GetHero retrieves a hero by id.
func (s *SQLStore) GetHero(ctx context.Context, heroID int) (*Hero, error) {
	var h Hero
	err := s.queryRow(ctx, s.db,
		`SELECT hero_id, client_name, name FROM heroes WHERE hero_id = ?`, heroID).
		Scan(&h.ID, &h.ClientName, &h.Name)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &h, nil
}

func (s *SQLStore) UpsertHero(ctx context.Context, hero *Hero) error {
	_, err := s.exec(ctx, s.db,
		`INSERT INTO heroes (hero_id, client_name, name) VALUES (?, ?, ?)
		 ON CONFLICT(hero_id) DO UPDATE SET client_name = excluded.client_name, name = excluded.name`,
		hero.ID, hero.ClientName, hero.Name)
	return err
}

// GetItem retrieves an item by id.
func (s *SQLStore) GetItem(ctx context.Context, itemID int) (*Item, error) {
	var it Item
	err := s.queryRow(ctx, s.db,
		`SELECT item_id, client_name FROM items WHERE item_id = ?`, itemID).
		Scan(&it.ID, &it.ClientName)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &it, nil
}

func (s *SQLStore) UpsertItem(ctx context.Context, item *Item) error {
	_, err := s.exec(ctx, s.db,
		`INSERT INTO items (item_id, client_name) VALUES (?, ?)
		 ON CONFLICT(item_id) DO UPDATE SET client_name = excluded.client_name`,
		item.ID, item.ClientName)
	return err
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
