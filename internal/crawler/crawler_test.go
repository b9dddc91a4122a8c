package crawler

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"

	"github.com/edvart/dotastats/internal/freshness"
	"github.com/edvart/dotastats/internal/ingest"
	"github.com/edvart/dotastats/internal/record"
	"github.com/edvart/dotastats/internal/store"
)

const accountOne = 76561197960265729

var (
	now            = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	errUnavailable = errors.New("unavailable")
)

type fakeSource struct {
	summaries   []record.Record
	details     map[uint64]record.Record
	profiles    map[uint64]record.Record
	historyFrom []uint64
	detailCalls []uint64
	summaryIDs  [][]uint64
}

func (f *fakeSource) MatchHistoryBySequence(ctx context.Context, startAt uint64, count int) ([]record.Record, error) {
	f.historyFrom = append(f.historyFrom, startAt)
	var out []record.Record
	for _, r := range f.summaries {
		seq, _ := r.Uint64("match_seq_num")
		if seq >= startAt && len(out) < count {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeSource) MatchDetails(ctx context.Context, matchID uint64) (record.Record, error) {
	f.detailCalls = append(f.detailCalls, matchID)
	r, ok := f.details[matchID]
	if !ok {
		return nil, fmt.Errorf("match %d: %w", matchID, errUnavailable)
	}
	return r, nil
}

func (f *fakeSource) PlayerSummaries(ctx context.Context, steamIDs []uint64) ([]record.Record, error) {
	f.summaryIDs = append(f.summaryIDs, steamIDs)
	var out []record.Record
	for _, id := range steamIDs {
		if r, ok := f.profiles[id]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func summaryRecord(matchID, seq uint64) record.Record {
	return record.Record{
		"match_id":      matchID,
		"match_seq_num": seq,
		"start_time":    now.Add(-2 * time.Hour).Unix(),
		"lobby_type":    0,
		"players": []any{
			map[string]any{"account_id": 1, "player_slot": 0, "hero_id": 10},
			map[string]any{"account_id": 4294967295, "player_slot": 128, "hero_id": 11},
		},
	}
}

func detailRecord(matchID, seq uint64) record.Record {
	player := func(account any, slot, hero int) map[string]any {
		p := map[string]any{
			"player_slot": slot, "hero_id": hero,
			"item_0": 1, "item_1": 0, "item_2": 0, "item_3": 0, "item_4": 0, "item_5": 0,
			"kills": 5, "deaths": 2, "assists": 9, "leaver_status": 0,
			"gold": 1200, "last_hits": 150, "denies": 10, "gold_per_min": 450, "xp_per_min": 520,
			"gold_spent": 15000, "hero_damage": 20000, "tower_damage": 3000, "hero_healing": 0,
			"level": 22,
		}
		if account != nil {
			p["account_id"] = account
		}
		return p
	}
	return record.Record{
		"match_id": matchID, "match_seq_num": seq, "season": 0, "radiant_win": true,
		"duration": 2300, "start_time": now.Add(-2 * time.Hour).Unix(),
		"tower_status_radiant": 1974, "tower_status_dire": 0,
		"barracks_status_radiant": 63, "barracks_status_dire": 0,
		"cluster": 111, "first_blood_time": 90, "lobby_type": 0, "human_players": 10,
		"leagueid": 0, "positive_votes": 0, "negative_votes": 0, "game_mode": 1,
		"picks_bans": []any{},
		"players": []any{
			player(1, 0, 10),
			player(4294967295, 128, 11),
			player(nil, 129, 0),
		},
	}
}

type fixture struct {
	store   *store.SQLStore
	source  *fakeSource
	crawler *Crawler
	queue   *ingest.Queue
}

func newFixture(t *testing.T, src *fakeSource) *fixture {
	t.Helper()
	ctx := context.Background()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "crawler.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	cursor, err := ingest.InitCursor(ctx, s)
	if err != nil {
		t.Fatalf("InitCursor: %v", err)
	}
	clock := func() time.Time { return now }
	logger, _ := test.NewNullLogger()
	q, err := ingest.NewQueue(ctx, s, cursor, logger, ingest.WithClock(clock))
	if err != nil {
		t.Fatalf("NewQueue: %v", err)
	}
	p, err := freshness.New(s, freshness.Config{MatchTTL: 24 * time.Hour, PlayerTTL: 24 * time.Hour},
		freshness.WithClock(clock))
	if err != nil {
		t.Fatalf("freshness.New: %v", err)
	}
	return &fixture{
		store:   s,
		source:  src,
		queue:   q,
		crawler: New(src, s, q, p, Config{PageSize: 10, DrainBatch: 10}, logger),
	}
}

func TestRunCycleIngestsDiscoveredMatches(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{
		summaries: []record.Record{
			summaryRecord(1001, 5),
			{"match_seq_num": 6}, // invalid, still moves the cursor
			summaryRecord(1002, 7),
		},
		details: map[uint64]record.Record{1001: detailRecord(1001, 5)},
		profiles: map[uint64]record.Record{
			accountOne: {"steamid": "76561197960265729", "personaname": "Alice", "profileurl": "https://steamcommunity.com/id/alice/"},
		},
	}
	f := newFixture(t, src)

	stats, err := f.crawler.RunCycle(ctx)
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if stats.Scanned != 3 || stats.Enqueued != 2 || stats.Detailed != 1 || stats.Requeued != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if got := f.queue.LastSequenceCursor(); got != 7 {
		t.Errorf("cursor = %d, want 7", got)
	}

	m, err := f.store.GetMatch(ctx, 1001)
	if err != nil || m == nil {
		t.Fatalf("GetMatch = %v, %v", m, err)
	}
	if len(m.Players) != 2 {
		t.Fatalf("players = %d, want 2", len(m.Players))
	}
	if m.Players[0].AccountID == nil || *m.Players[0].AccountID != accountOne || m.Players[0].IsBot {
		t.Errorf("human entry = %+v", m.Players[0])
	}
	if m.Players[1].AccountID != nil || m.Players[1].IsBot {
		t.Errorf("anonymous entry = %+v, want nil identity and not a bot", m.Players[1])
	}

	// The stub created by the commit was refreshed in the same cycle.
	p, err := f.store.GetPlayer(ctx, accountOne)
	if err != nil || p == nil {
		t.Fatalf("GetPlayer = %v, %v", p, err)
	}
	if p.PersonaName != "Alice" || !p.LastRefresh.Equal(now) {
		t.Errorf("player = %+v", p)
	}
	if stats.PlayersRefreshed != 1 {
		t.Errorf("players refreshed = %d, want 1", stats.PlayersRefreshed)
	}

	// Match 1002 had no details and stays queued.
	if e, _ := f.store.GetQueueEntry(ctx, 1002); e == nil {
		t.Error("match 1002 left the queue")
	}
}

func TestRunCycleResumesAfterCursor(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{summaries: []record.Record{summaryRecord(1, 10), summaryRecord(2, 11)}}
	f := newFixture(t, src)

	for i := 0; i < 2; i++ {
		if _, err := f.crawler.RunCycle(ctx); err != nil {
			t.Fatalf("cycle %d: %v", i+1, err)
		}
	}
	if len(src.historyFrom) != 2 || src.historyFrom[0] != 1 || src.historyFrom[1] != 12 {
		t.Errorf("scans started at %v, want [1 12]", src.historyFrom)
	}
	n, err := f.queue.Len(ctx)
	if err != nil {
		t.Fatalf("Len: %v", err)
	}
	if n != 2 {
		t.Errorf("queue length = %d, want 2", n)
	}
}

func TestRefreshPlayersTouchesMissingProfiles(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{profiles: map[uint64]record.Record{}}
	f := newFixture(t, src)

	stale := []store.Player{{SteamID: accountOne, LastRefresh: time.Unix(0, 0)}}
	if err := f.store.UpsertPlayers(ctx, stale); err != nil {
		t.Fatalf("UpsertPlayers: %v", err)
	}

	stats, err := f.crawler.RunCycle(ctx)
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if stats.PlayersMissing != 1 {
		t.Errorf("missing = %d, want 1", stats.PlayersMissing)
	}
	p, _ := f.store.GetPlayer(ctx, accountOne)
	if p == nil || !p.LastRefresh.Equal(now) {
		t.Errorf("player = %+v, want last refresh %v", p, now)
	}
}

func TestRefreshMatchTouchesOnFailure(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{details: map[uint64]record.Record{}}
	f := newFixture(t, src)

	old := now.Add(-72 * time.Hour)
	if err := f.store.CommitMatch(ctx, &store.Match{MatchID: 9, MatchSeqNum: 1, StartTime: old, LastRefresh: old}); err != nil {
		t.Fatalf("CommitMatch: %v", err)
	}

	if _, err := f.crawler.RunCycle(ctx); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	m, _ := f.store.GetMatch(ctx, 9)
	if m == nil || !m.LastRefresh.Equal(now) {
		t.Errorf("match = %+v, want last refresh %v", m, now)
	}
	if len(src.detailCalls) != 1 || src.detailCalls[0] != 9 {
		t.Errorf("detail calls = %v, want [9]", src.detailCalls)
	}
}

func TestRefreshMatchRefreshesItsPlayers(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{
		details: map[uint64]record.Record{9: detailRecord(9, 1)},
		profiles: map[uint64]record.Record{
			accountOne: {"steamid": "76561197960265729", "personaname": "Alice"},
		},
	}
	f := newFixture(t, src)

	// The profile is not stale on its own, only the match is.
	recent := now.Add(-time.Hour)
	if err := f.store.UpsertPlayers(ctx, []store.Player{{SteamID: accountOne, PersonaName: "old", LastRefresh: recent}}); err != nil {
		t.Fatalf("UpsertPlayers: %v", err)
	}
	old := now.Add(-72 * time.Hour)
	if err := f.store.CommitMatch(ctx, &store.Match{MatchID: 9, MatchSeqNum: 1, StartTime: old, LastRefresh: old}); err != nil {
		t.Fatalf("CommitMatch: %v", err)
	}

	stats, err := f.crawler.RunCycle(ctx)
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if stats.MatchesRefreshed != 1 || stats.PlayersRefreshed != 1 {
		t.Errorf("stats = %+v", stats)
	}
	// The anonymous participant has no identity and is not requested.
	if len(src.summaryIDs) != 1 || len(src.summaryIDs[0]) != 1 || src.summaryIDs[0][0] != accountOne {
		t.Errorf("summary requests = %v, want [[%d]]", src.summaryIDs, uint64(accountOne))
	}
	p, err := f.store.GetPlayer(ctx, accountOne)
	if err != nil || p == nil {
		t.Fatalf("GetPlayer = %v, %v", p, err)
	}
	if p.PersonaName != "Alice" || !p.LastRefresh.Equal(now) {
		t.Errorf("player = %+v, want Alice refreshed at %v", p, now)
	}
	m, _ := f.store.GetMatch(ctx, 9)
	if m == nil || !m.LastRefresh.Equal(now) || len(m.Players) != 2 {
		t.Errorf("match = %+v, want refreshed with 2 players", m)
	}
}
