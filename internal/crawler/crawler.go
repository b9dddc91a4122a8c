// Package crawler drives ingestion: each cycle scans new match summaries by sequence
// number, details queued matches, and refreshes stale matches and players.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/edvart/dotastats/internal/freshness"
	"github.com/edvart/dotastats/internal/ingest"
	"github.com/edvart/dotastats/internal/record"
	"github.com/edvart/dotastats/internal/store"
)

// Source is the upstream Web API.
type Source interface {
	MatchHistoryBySequence(ctx context.Context, startAt uint64, count int) ([]record.Record, error)
	MatchDetails(ctx context.Context, matchID uint64) (record.Record, error)
	PlayerSummaries(ctx context.Context, steamIDs []uint64) ([]record.Record, error)
}

// Config sizes one crawl cycle. Zero values take the defaults.
type Config struct {
	PageSize   int // summaries requested per scan
	DrainBatch int // queue entries detailed per cycle
}

// Stats counts what one cycle did.
type Stats struct {
	Scanned          int
	Enqueued         int
	Detailed         int
	Requeued         int
	MatchesRefreshed int
	PlayersRefreshed int
	PlayersMissing   int
}

// Crawler runs the ingestion cycle against a Source.
type Crawler struct {
	source Source
	store  store.Store
	queue  *ingest.Queue
	policy *freshness.Policy
	cfg    Config
	log    logrus.FieldLogger
}

// New creates a Crawler.
func New(src Source, s store.Store, q *ingest.Queue, p *freshness.Policy, cfg Config, log logrus.FieldLogger) *Crawler {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	if cfg.DrainBatch <= 0 {
		cfg.DrainBatch = 50
	}
	return &Crawler{source: src, store: s, queue: q, policy: p, cfg: cfg, log: log}
}

// Run runs a cycle immediately and then every interval until ctx is done.
func (c *Crawler) Run(ctx context.Context, interval time.Duration) {
	c.log.WithField("interval", interval).Info("Crawler started")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := c.RunCycle(ctx); err != nil && ctx.Err() == nil {
			c.log.WithError(err).Warn("Crawl cycle finished with errors")
		}
		select {
		case <-ctx.Done():
			c.log.Info("Crawler shutting down")
			return
		case <-ticker.C:
		}
	}
}

// RunCycle performs scan, drain, match refresh and player refresh in that order. A failing
// step does not prevent the following ones; their errors are joined.
func (c *Crawler) RunCycle(ctx context.Context) (Stats, error) {
	var stats Stats
	log := c.log.WithField("cycle_id", uuid.NewString())
	start := time.Now()

	var errs []error
	steps := []struct {
		name string
		run  func(context.Context, logrus.FieldLogger, *Stats) error
	}{
		{"scan", c.scan},
		{"drain", c.drain},
		{"match refresh", c.refreshMatch},
		{"player refresh", c.refreshPlayers},
	}
	for _, step := range steps {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		if err := step.run(ctx, log, &stats); err != nil {
			log.WithError(err).WithField("step", step.name).Error("Crawl step failed")
			errs = append(errs, fmt.Errorf("%s: %w", step.name, err))
		}
	}

	log.WithFields(logrus.Fields{
		"scanned":           stats.Scanned,
		"enqueued":          stats.Enqueued,
		"detailed":          stats.Detailed,
		"requeued":          stats.Requeued,
		"matches_refreshed": stats.MatchesRefreshed,
		"players_refreshed": stats.PlayersRefreshed,
		"cursor":            c.queue.LastSequenceCursor(),
		"elapsed":           time.Since(start).Round(time.Millisecond),
	}).Info("Crawl cycle complete")
	return stats, errors.Join(errs...)
}

// scan requests the next page of summaries after the cursor, queues new matches, and
// moves the cursor to the highest sequence number on the page. Records that fail
// validation are skipped but still count toward the cursor.
func (c *Crawler) scan(ctx context.Context, log logrus.FieldLogger, stats *Stats) error {
	from := c.queue.ResumeFrom()
	recs, err := c.source.MatchHistoryBySequence(ctx, from, c.cfg.PageSize)
	if err != nil {
		return fmt.Errorf("fetch summaries from %d: %w", from, err)
	}

	high := c.queue.LastSequenceCursor()
	for _, r := range recs {
		stats.Scanned++
		if seq, err := r.Uint64("match_seq_num"); err == nil && seq > high {
			high = seq
		}

		entry, err := record.QueueEntry(r)
		if err != nil {
			log.WithError(err).Warn("Skipping invalid match summary")
			continue
		}
		added, err := c.queue.EnqueueDiscovered(ctx, entry)
		if errors.Is(err, store.ErrConflict) {
			log.WithError(err).Warn("Skipping inconsistent match summary")
			continue
		}
		if err != nil {
			return err
		}
		if added {
			stats.Enqueued++
		}
	}

	return c.queue.AdvanceSequenceCursor(ctx, high)
}

// drain details up to DrainBatch queue entries. An entry that cannot be fetched or
// stored goes to the back of the queue and is not retried within the same cycle.
func (c *Crawler) drain(ctx context.Context, log logrus.FieldLogger, stats *Stats) error {
	attempted := make(map[uint64]bool)
	for i := 0; i < c.cfg.DrainBatch; i++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		entry, err := c.queue.NextQueueEntryToDetail(ctx)
		if err != nil {
			return err
		}
		if entry == nil || attempted[entry.MatchID] {
			return nil
		}
		attempted[entry.MatchID] = true

		elog := log.WithField("match_id", entry.MatchID)
		if _, err := c.detail(ctx, entry.MatchID); err != nil {
			elog.WithError(err).Warn("Failed to detail queued match")
			if err := c.queue.Requeue(ctx, entry.MatchID); err != nil {
				return err
			}
			stats.Requeued++
			continue
		}
		stats.Detailed++
	}
	return nil
}

func (c *Crawler) detail(ctx context.Context, matchID uint64) (store.Match, error) {
	rec, err := c.source.MatchDetails(ctx, matchID)
	if err != nil {
		return store.Match{}, err
	}
	m, err := record.Match(rec)
	if err != nil {
		return store.Match{}, err
	}
	if err := c.queue.CommitMatchDetails(ctx, matchID, m, m.PicksBans, m.Players); err != nil {
		return store.Match{}, err
	}
	return m, nil
}

// refreshMatch refetches the stalest match and then the profiles of its players. On
// failure the match's refresh window restarts so one broken match cannot block the others.
func (c *Crawler) refreshMatch(ctx context.Context, log logrus.FieldLogger, stats *Stats) error {
	due, err := c.policy.NextMatchDueForRefresh(ctx)
	if err != nil {
		return err
	}
	if due == nil {
		return nil
	}

	mlog := log.WithField("match_id", due.MatchID)
	m, err := c.detail(ctx, due.MatchID)
	if err != nil {
		mlog.WithError(err).Warn("Failed to refresh match")
		return c.store.TouchMatch(ctx, due.MatchID, c.policy.Now())
	}
	stats.MatchesRefreshed++

	var ids []uint64
	seen := make(map[uint64]bool, len(m.Players))
	for _, p := range m.Players {
		if p.AccountID != nil && !seen[*p.AccountID] {
			seen[*p.AccountID] = true
			ids = append(ids, *p.AccountID)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	// The match itself is stored; a profile failure is left to the player refresh step.
	if err := c.refreshProfiles(ctx, log, ids, stats); err != nil {
		mlog.WithError(err).Warn("Failed to refresh players of refreshed match")
	}
	return nil
}

// refreshPlayers refetches one batch of stale profiles.
func (c *Crawler) refreshPlayers(ctx context.Context, log logrus.FieldLogger, stats *Stats) error {
	due, err := c.policy.PlayersDueForRefresh(ctx)
	if err != nil {
		return err
	}
	if len(due) == 0 {
		return nil
	}
	ids := make([]uint64, len(due))
	for i, p := range due {
		ids[i] = p.SteamID
	}
	return c.refreshProfiles(ctx, log, ids, stats)
}

// refreshProfiles fetches and stores the given profiles. Players the API does not return
// (deleted or invalid accounts) are touched so they stop coming back every cycle.
func (c *Crawler) refreshProfiles(ctx context.Context, log logrus.FieldLogger, ids []uint64, stats *Stats) error {
	requested := make(map[uint64]bool, len(ids))
	for _, id := range ids {
		requested[id] = true
	}

	recs, err := c.source.PlayerSummaries(ctx, ids)
	if err != nil {
		return fmt.Errorf("fetch %d player summaries: %w", len(ids), err)
	}

	now := c.policy.Now()
	var profiles []store.Player
	for _, r := range recs {
		p, err := record.Player(r)
		if err != nil {
			log.WithError(err).Warn("Skipping invalid player summary")
			continue
		}
		if !requested[p.SteamID] {
			continue
		}
		p.LastRefresh = now
		profiles = append(profiles, p)
		delete(requested, p.SteamID)
	}

	if err := c.store.UpsertPlayers(ctx, profiles); err != nil {
		return err
	}
	stats.PlayersRefreshed += len(profiles)

	if len(requested) > 0 {
		missing := make([]uint64, 0, len(requested))
		for _, id := range ids {
			if requested[id] {
				missing = append(missing, id)
			}
		}
		if err := c.store.TouchPlayers(ctx, missing, now); err != nil {
			return err
		}
		stats.PlayersMissing += len(missing)
	}
	return nil
}
