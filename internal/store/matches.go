package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/edvart/dotastats/internal/classify"
)

const matchColumns = `match_id, match_seq_num, season, radiant_win, duration, start_time,
	tower_status_radiant, tower_status_dire, barracks_status_radiant, barracks_status_dire,
	cluster, first_blood_time, lobby_type, human_players, league_id,
	positive_votes, negative_votes, game_mode, last_refresh`

const playerEntryColumns = `account_id, player_slot, hero_id,
	item_0, item_1, item_2, item_3, item_4, item_5,
	kills, deaths, assists, leaver_status, gold, last_hits, denies,
	gold_per_min, xp_per_min, gold_spent, hero_damage, tower_damage, hero_healing, level,
	ability_upgrades, additional_units, is_bot`

var lowPriorityFilter = fmt.Sprintf(
	`NOT (lobby_type = %d OR human_players < %d OR duration < %d
	      OR (tower_status_radiant = %d AND tower_status_dire = %d))`,
	classify.LobbyCoopBots, classify.MinHumanPlayers, classify.MinDurationSecond,
	classify.TowersIntact, classify.TowersIntact)

func scanMatch(row rowScanner) (Match, error) {
	var m Match
	err := row.Scan(&m.MatchID, &m.MatchSeqNum, &m.Season, &m.RadiantWin, &m.Duration, &m.StartTime,
		&m.TowerStatusRadiant, &m.TowerStatusDire, &m.BarracksStatusRadiant, &m.BarracksStatusDire,
		&m.Cluster, &m.FirstBloodTime, &m.LobbyType, &m.HumanPlayers, &m.LeagueID,
		&m.PositiveVotes, &m.NegativeVotes, &m.GameMode, &m.LastRefresh)
	return m, err
}

// CommitMatch stores a detailed match with its picks/bans and player entries in one
// transaction. An existing row for the same match id is replaced together with its
// children, so retrying a commit never duplicates rows. The match's queue entry is
// removed and human participants without a profile row get a stub that is due for
// refresh immediately.
func (s *SQLStore) CommitMatch(ctx context.Context, m *Match) error {
	if err := checkMatchChildren(m); err != nil {
		return fmt.Errorf("match %d: %w", m.MatchID, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = s.exec(ctx, tx,
		`INSERT INTO matches (`+matchColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(match_id) DO UPDATE SET
		 	match_seq_num = excluded.match_seq_num,
		 	season = excluded.season,
		 	radiant_win = excluded.radiant_win,
		 	duration = excluded.duration,
		 	start_time = excluded.start_time,
		 	tower_status_radiant = excluded.tower_status_radiant,
		 	tower_status_dire = excluded.tower_status_dire,
		 	barracks_status_radiant = excluded.barracks_status_radiant,
		 	barracks_status_dire = excluded.barracks_status_dire,
		 	cluster = excluded.cluster,
		 	first_blood_time = excluded.first_blood_time,
		 	lobby_type = excluded.lobby_type,
		 	human_players = excluded.human_players,
		 	league_id = excluded.league_id,
		 	positive_votes = excluded.positive_votes,
		 	negative_votes = excluded.negative_votes,
		 	game_mode = excluded.game_mode,
		 	last_refresh = excluded.last_refresh`,
		m.MatchID, m.MatchSeqNum, m.Season, m.RadiantWin, m.Duration, utc(m.StartTime),
		m.TowerStatusRadiant, m.TowerStatusDire, m.BarracksStatusRadiant, m.BarracksStatusDire,
		m.Cluster, m.FirstBloodTime, m.LobbyType, m.HumanPlayers, m.LeagueID,
		m.PositiveVotes, m.NegativeVotes, m.GameMode, utc(m.LastRefresh),
	)
	if err != nil {
		return fmt.Errorf("upsert match %d: %w", m.MatchID, err)
	}

	for _, table := range []string{"match_picks_bans", "match_players"} {
		if _, err := s.exec(ctx, tx, `DELETE FROM `+table+` WHERE match_id = ?`, m.MatchID); err != nil {
			return fmt.Errorf("clear %s for match %d: %w", table, m.MatchID, err)
		}
	}

	for _, pb := range m.PicksBans {
		if _, err := s.exec(ctx, tx,
			`INSERT INTO match_picks_bans (match_id, is_pick, hero_id, team, pick_order)
			 VALUES (?, ?, ?, ?, ?)`,
			m.MatchID, pb.IsPick, pb.HeroID, pb.Team, pb.Order,
		); err != nil {
			return fmt.Errorf("insert pick/ban %d/%d: %w", m.MatchID, pb.Order, err)
		}
	}

	for _, p := range m.Players {
		if _, err := s.exec(ctx, tx,
			`INSERT INTO match_players (match_id, `+playerEntryColumns+`)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			m.MatchID, p.AccountID, p.Slot, p.HeroID,
			p.Items[0], p.Items[1], p.Items[2], p.Items[3], p.Items[4], p.Items[5],
			p.Kills, p.Deaths, p.Assists, p.LeaverStatus, p.Gold, p.LastHits, p.Denies,
			p.GoldPerMin, p.XPPerMin, p.GoldSpent, p.HeroDamage, p.TowerDamage, p.HeroHealing, p.Level,
			p.AbilityUpgrades, p.AdditionalUnits, p.IsBot,
		); err != nil {
			return fmt.Errorf("insert player entry %d/%d: %w", m.MatchID, p.Slot, err)
		}

		if p.AccountID != nil {
			if _, err := s.exec(ctx, tx,
				`INSERT INTO players (steam_id, last_refresh) VALUES (?, ?)
				 ON CONFLICT(steam_id) DO NOTHING`,
				*p.AccountID, time.Unix(0, 0).UTC(),
			); err != nil {
				return fmt.Errorf("insert player stub %d: %w", *p.AccountID, err)
			}
		}
	}

	for _, table := range []string{"match_queue_players", "match_queue"} {
		if _, err := s.exec(ctx, tx, `DELETE FROM `+table+` WHERE match_id = ?`, m.MatchID); err != nil {
			return fmt.Errorf("dequeue match %d: %w", m.MatchID, err)
		}
	}

	return tx.Commit()
}

// GetMatch retrieves a match with its picks/bans and player entries.
func (s *SQLStore) GetMatch(ctx context.Context, matchID uint64) (*Match, error) {
	m, err := scanMatch(s.queryRow(ctx, s.db,
		`SELECT `+matchColumns+` FROM matches WHERE match_id = ?`, matchID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := s.loadChildren(ctx, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *SQLStore) loadChildren(ctx context.Context, m *Match) error {
	rows, err := s.query(ctx, s.db,
		`SELECT is_pick, hero_id, team, pick_order FROM match_picks_bans
		 WHERE match_id = ? ORDER BY pick_order`, m.MatchID)
	if err != nil {
		return err
	}
	for rows.Next() {
		var pb PickBan
		if err := rows.Scan(&pb.IsPick, &pb.HeroID, &pb.Team, &pb.Order); err != nil {
			rows.Close()
			return err
		}
		m.PicksBans = append(m.PicksBans, pb)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	rows, err = s.query(ctx, s.db,
		`SELECT `+playerEntryColumns+` FROM match_players
		 WHERE match_id = ? ORDER BY player_slot`, m.MatchID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var p PlayerEntry
		if err := rows.Scan(&p.AccountID, &p.Slot, &p.HeroID,
			&p.Items[0], &p.Items[1], &p.Items[2], &p.Items[3], &p.Items[4], &p.Items[5],
			&p.Kills, &p.Deaths, &p.Assists, &p.LeaverStatus, &p.Gold, &p.LastHits, &p.Denies,
			&p.GoldPerMin, &p.XPPerMin, &p.GoldSpent, &p.HeroDamage, &p.TowerDamage, &p.HeroHealing, &p.Level,
			&p.AbilityUpgrades, &p.AdditionalUnits, &p.IsBot,
		); err != nil {
			return err
		}
		m.Players = append(m.Players, p)
	}
	return rows.Err()
}

// ListMatches returns match rows (without children), newest match id first.
func (s *SQLStore) ListMatches(ctx context.Context, opts ListOptions) ([]Match, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + matchColumns + ` FROM matches`
	if opts.ExcludeLowPriority {
		query += ` WHERE ` + lowPriorityFilter
	}
	query += ` ORDER BY match_id DESC LIMIT ? OFFSET ?`

	rows, err := s.query(ctx, s.db, query, limit, opts.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, err
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// MatchRefreshedBefore returns the match with the oldest last refresh older than cutoff,
// or nil.
func (s *SQLStore) MatchRefreshedBefore(ctx context.Context, cutoff time.Time) (*Match, error) {
	m, err := scanMatch(s.queryRow(ctx, s.db,
		`SELECT `+matchColumns+` FROM matches
		 WHERE last_refresh < ?
		 ORDER BY last_refresh, match_id
		 LIMIT 1`, utc(cutoff)))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// TouchMatch restarts a match's refresh window.
func (s *SQLStore) TouchMatch(ctx context.Context, matchID uint64, at time.Time) error {
	_, err := s.exec(ctx, s.db,
		`UPDATE matches SET last_refresh = ? WHERE match_id = ?`, utc(at), matchID)
	return err
}

func checkMatchChildren(m *Match) error {
	type pickKey struct{ hero, order int }
	picks := make(map[pickKey]bool, len(m.PicksBans))
	for _, pb := range m.PicksBans {
		k := pickKey{pb.HeroID, pb.Order}
		if picks[k] {
			return fmt.Errorf("duplicate pick/ban hero %d order %d: %w", pb.HeroID, pb.Order, ErrConflict)
		}
		picks[k] = true
	}

	type slotKey struct{ hero, slot int }
	slots := make(map[slotKey]bool, len(m.Players))
	for _, p := range m.Players {
		k := slotKey{p.HeroID, p.Slot}
		if slots[k] {
			return fmt.Errorf("duplicate player entry hero %d slot %d: %w", p.HeroID, p.Slot, ErrConflict)
		}
		slots[k] = true
	}
	return nil
}
