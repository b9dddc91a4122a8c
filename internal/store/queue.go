package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrCursorMissing is returned when the cursor row has not been created by InitCursor.
var ErrCursorMissing = errors.New("match sequence cursor not initialized")

// InitCursor creates the singleton cursor row with 0 if it does not exist and returns
// the stored value.
func (s *SQLStore) InitCursor(ctx context.Context) (uint64, error) {
	if _, err := s.exec(ctx, s.db,
		`INSERT INTO match_seq_cursor (id, last_match_seq_num) VALUES (1, 0)
		 ON CONFLICT(id) DO NOTHING`); err != nil {
		return 0, fmt.Errorf("init cursor: %w", err)
	}
	return s.GetCursor(ctx)
}

func (s *SQLStore) GetCursor(ctx context.Context) (uint64, error) {
	var seq uint64
	err := s.queryRow(ctx, s.db,
		`SELECT last_match_seq_num FROM match_seq_cursor WHERE id = 1`).Scan(&seq)
	if err == sql.ErrNoRows {
		return 0, ErrCursorMissing
	}
	return seq, err
}

func (s *SQLStore) SetCursor(ctx context.Context, seq uint64) error {
	result, err := s.exec(ctx, s.db,
		`UPDATE match_seq_cursor SET last_match_seq_num = ? WHERE id = 1`, seq)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrCursorMissing
	}
	return nil
}

// KnownMatchIDs calls fn with the id of every queued or detailed match.
func (s *SQLStore) KnownMatchIDs(ctx context.Context, fn func(matchID uint64)) error {
	rows, err := s.query(ctx, s.db,
		`SELECT match_id FROM match_queue UNION SELECT match_id FROM matches`)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return err
		}
		fn(id)
	}
	return rows.Err()
}

func (s *SQLStore) matchKnown(ctx context.Context, q querier, matchID uint64) (bool, error) {
	var n int
	err := s.queryRow(ctx, q,
		`SELECT (SELECT COUNT(*) FROM match_queue WHERE match_id = ?)
		      + (SELECT COUNT(*) FROM matches WHERE match_id = ?)`,
		matchID, matchID).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// EnqueueMatch inserts a queue entry and its participants. It returns false without
// writing when the match is already queued or already detailed.
func (s *SQLStore) EnqueueMatch(ctx context.Context, entry *QueueEntry) (bool, error) {
	return s.enqueue(ctx, entry, true)
}

// InsertQueueEntry inserts a queue entry without looking for an existing detailed match.
// Callers must already know the match is new. An entry already in the queue is left
// untouched and false is returned.
func (s *SQLStore) InsertQueueEntry(ctx context.Context, entry *QueueEntry) (bool, error) {
	return s.enqueue(ctx, entry, false)
}

func (s *SQLStore) enqueue(ctx context.Context, entry *QueueEntry, checkKnown bool) (bool, error) {
	if err := checkQueuePlayers(entry.Players); err != nil {
		return false, fmt.Errorf("match %d: %w", entry.MatchID, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	if checkKnown {
		known, err := s.matchKnown(ctx, tx, entry.MatchID)
		if err != nil {
			return false, err
		}
		if known {
			return false, nil
		}
	}

	result, err := s.exec(ctx, tx,
		`INSERT INTO match_queue (match_id, match_seq_num, start_time, lobby_type, queued_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(match_id) DO NOTHING`,
		entry.MatchID, entry.MatchSeqNum, utc(entry.StartTime), entry.LobbyType, utc(entry.QueuedAt),
	)
	if err != nil {
		return false, fmt.Errorf("insert queue entry %d: %w", entry.MatchID, err)
	}
	inserted, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	if inserted == 0 {
		return false, nil
	}

	for _, p := range entry.Players {
		if _, err := s.exec(ctx, tx,
			`INSERT INTO match_queue_players (match_id, account_id, player_slot, hero_id, is_bot)
			 VALUES (?, ?, ?, ?, ?)`,
			entry.MatchID, p.AccountID, p.Slot, p.HeroID, p.IsBot,
		); err != nil {
			return false, fmt.Errorf("insert queue player %d/%d: %w", entry.MatchID, p.Slot, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

// OldestQueueEntry returns the entry queued first, or nil when the queue is empty.
func (s *SQLStore) OldestQueueEntry(ctx context.Context) (*QueueEntry, error) {
	return s.getQueueEntry(ctx,
		`SELECT match_id, match_seq_num, start_time, lobby_type, queued_at
		 FROM match_queue ORDER BY queued_at, match_id LIMIT 1`)
}

func (s *SQLStore) GetQueueEntry(ctx context.Context, matchID uint64) (*QueueEntry, error) {
	return s.getQueueEntry(ctx,
		`SELECT match_id, match_seq_num, start_time, lobby_type, queued_at
		 FROM match_queue WHERE match_id = ?`, matchID)
}

func (s *SQLStore) getQueueEntry(ctx context.Context, query string, args ...any) (*QueueEntry, error) {
	var e QueueEntry
	err := s.queryRow(ctx, s.db, query, args...).Scan(
		&e.MatchID, &e.MatchSeqNum, &e.StartTime, &e.LobbyType, &e.QueuedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.query(ctx, s.db,
		`SELECT account_id, player_slot, hero_id, is_bot
		 FROM match_queue_players WHERE match_id = ? ORDER BY player_slot`, e.MatchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var p QueuePlayer
		if err := rows.Scan(&p.AccountID, &p.Slot, &p.HeroID, &p.IsBot); err != nil {
			return nil, err
		}
		e.Players = append(e.Players, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &e, nil
}

// RequeueMatch moves a queue entry to the back of the queue.
func (s *SQLStore) RequeueMatch(ctx context.Context, matchID uint64, at time.Time) error {
	_, err := s.exec(ctx, s.db,
		`UPDATE match_queue SET queued_at = ? WHERE match_id = ?`, utc(at), matchID)
	return err
}

func (s *SQLStore) QueueLength(ctx context.Context) (int, error) {
	var n int
	err := s.queryRow(ctx, s.db, `SELECT COUNT(*) FROM match_queue`).Scan(&n)
	return n, err
}

func checkQueuePlayers(players []QueuePlayer) error {
	type key struct{ hero, slot int }
	seen := make(map[key]bool, len(players))
	for _, p := range players {
		k := key{p.HeroID, p.Slot}
		if seen[k] {
			return fmt.Errorf("duplicate participant hero %d slot %d: %w", p.HeroID, p.Slot, ErrConflict)
		}
		seen[k] = true
	}
	return nil
}
