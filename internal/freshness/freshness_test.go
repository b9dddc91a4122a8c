package freshness

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/edvart/dotastats/internal/store"
)

var now = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newStore(t *testing.T) *store.SQLStore {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "freshness.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newPolicy(t *testing.T, s store.Store) *Policy {
	t.Helper()
	p, err := New(s, Config{MatchTTL: 48 * time.Hour, PlayerTTL: 24 * time.Hour},
		WithClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func TestNewRejectsNonPositiveTTL(t *testing.T) {
	tests := []Config{
		{MatchTTL: 0, PlayerTTL: time.Hour},
		{MatchTTL: time.Hour, PlayerTTL: -time.Second},
	}
	for _, cfg := range tests {
		if _, err := New(nil, cfg); !errors.Is(err, ErrInvalidTTL) {
			t.Errorf("New(%+v) error = %v, want ErrInvalidTTL", cfg, err)
		}
	}
}

func TestPlayersDueForRefresh(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	p := newPolicy(t, s)

	players := []store.Player{
		{SteamID: 76561197960265729, PersonaName: "fresh", LastRefresh: now.Add(-time.Hour)},
		{SteamID: 76561197960265730, PersonaName: "boundary", LastRefresh: now.Add(-24 * time.Hour)},
		{SteamID: 76561197960265731, PersonaName: "stale", LastRefresh: now.Add(-25 * time.Hour)},
		{SteamID: 76561197960265732, PersonaName: "never", LastRefresh: time.Unix(0, 0)},
	}
	if err := s.UpsertPlayers(ctx, players); err != nil {
		t.Fatalf("UpsertPlayers: %v", err)
	}

	due, err := p.PlayersDueForRefresh(ctx)
	if err != nil {
		t.Fatalf("PlayersDueForRefresh: %v", err)
	}
	if len(due) != 2 {
		t.Fatalf("got %d players due, want 2", len(due))
	}
	if due[0].PersonaName != "never" || due[1].PersonaName != "stale" {
		t.Errorf("order = [%s %s], want [never stale]", due[0].PersonaName, due[1].PersonaName)
	}
}

func TestPlayersDueForRefreshCapsBatch(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	p := newPolicy(t, s)

	var players []store.Player
	for i := 0; i < PlayerRefreshLimit+20; i++ {
		players = append(players, store.Player{
			SteamID:     76561197960265729 + uint64(i),
			LastRefresh: now.Add(-48*time.Hour - time.Duration(i)*time.Minute),
		})
	}
	if err := s.UpsertPlayers(ctx, players); err != nil {
		t.Fatalf("UpsertPlayers: %v", err)
	}

	due, err := p.PlayersDueForRefresh(ctx)
	if err != nil {
		t.Fatalf("PlayersDueForRefresh: %v", err)
	}
	if len(due) != PlayerRefreshLimit {
		t.Fatalf("got %d players, want %d", len(due), PlayerRefreshLimit)
	}
	// The oldest refresh belongs to the highest index.
	if want := players[len(players)-1].SteamID; due[0].SteamID != want {
		t.Errorf("first due = %d, want %d", due[0].SteamID, want)
	}
}

func commitMatch(t *testing.T, s store.Store, id uint64, refreshed time.Time) {
	t.Helper()
	m := &store.Match{
		MatchID:     id,
		MatchSeqNum: id * 10,
		Duration:    2000,
		StartTime:   refreshed.Add(-time.Hour),
		LastRefresh: refreshed,
	}
	if err := s.CommitMatch(context.Background(), m); err != nil {
		t.Fatalf("CommitMatch(%d): %v", id, err)
	}
}

func TestNextMatchDueForRefresh(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	p := newPolicy(t, s)

	m, err := p.NextMatchDueForRefresh(ctx)
	if err != nil {
		t.Fatalf("NextMatchDueForRefresh: %v", err)
	}
	if m != nil {
		t.Fatalf("empty store returned match %d", m.MatchID)
	}

	commitMatch(t, s, 1, now.Add(-time.Hour))
	commitMatch(t, s, 2, now.Add(-48*time.Hour))
	if m, err = p.NextMatchDueForRefresh(ctx); err != nil {
		t.Fatalf("NextMatchDueForRefresh: %v", err)
	}
	if m != nil {
		t.Fatalf("match %d is exactly at the interval and must not be due", m.MatchID)
	}

	commitMatch(t, s, 3, now.Add(-72*time.Hour))
	commitMatch(t, s, 4, now.Add(-50*time.Hour))
	if m, err = p.NextMatchDueForRefresh(ctx); err != nil {
		t.Fatalf("NextMatchDueForRefresh: %v", err)
	}
	if m == nil || m.MatchID != 3 {
		t.Fatalf("got %+v, want match 3", m)
	}
}
