// Package freshness decides which stored players and matches are stale enough to be
// fetched from the Web API again.
package freshness

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/edvart/dotastats/internal/store"
)

// PlayerRefreshLimit caps one player refresh batch. GetPlayerSummaries accepts at most
// 100 Steam ids per call.
const PlayerRefreshLimit = 100

// ErrInvalidTTL is returned by New when a refresh interval is zero or negative.
var ErrInvalidTTL = errors.New("refresh interval must be positive")

// Config holds how long matches and players stay fresh.
type Config struct {
	MatchTTL  time.Duration
	PlayerTTL time.Duration
}

func (c Config) Validate() error {
	if c.MatchTTL <= 0 {
		return fmt.Errorf("match: %w", ErrInvalidTTL)
	}
	if c.PlayerTTL <= 0 {
		return fmt.Errorf("player: %w", ErrInvalidTTL)
	}
	return nil
}

// Policy answers refresh queries against the store. It holds no state besides the
// configured intervals.
type Policy struct {
	store store.Store
	cfg   Config
	now   func() time.Time
}

type Option func(*Policy)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(p *Policy) { p.now = now }
}

// New creates a Policy. Both TTLs must be positive.
func New(s store.Store, cfg Config, opts ...Option) (*Policy, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p := &Policy{store: s, cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func (p *Policy) Config() Config { return p.cfg }

// Now returns the policy's current time.
func (p *Policy) Now() time.Time { return p.now() }

// PlayersDueForRefresh returns up to PlayerRefreshLimit players whose last refresh is
// strictly older than the player interval, oldest first. Players that have never been
// refreshed sort first.
func (p *Policy) PlayersDueForRefresh(ctx context.Context) ([]store.Player, error) {
	cutoff := p.now().Add(-p.cfg.PlayerTTL)
	players, err := p.store.PlayersRefreshedBefore(ctx, cutoff, PlayerRefreshLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale players: %w", err)
	}
	return players, nil
}

// NextMatchDueForRefresh returns the single match with the oldest last refresh, provided
// it is strictly older than the match interval, or nil.
func (p *Policy) NextMatchDueForRefresh(ctx context.Context) (*store.Match, error) {
	cutoff := p.now().Add(-p.cfg.MatchTTL)
	m, err := p.store.MatchRefreshedBefore(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to find stale match: %w", err)
	}
	return m, nil
}
