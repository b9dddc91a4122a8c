// Package ingest owns the ingestion queue: discovered matches waiting for details, the
// atomic commit of detailed matches, and the sequence cursor of the discovery scan.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/sirupsen/logrus"

	"github.com/edvart/dotastats/internal/store"
)

// ErrMatchIDMismatch is returned when a detail record belongs to another match.
var ErrMatchIDMismatch = errors.New("match id does not match detail record")

// Expected number of distinct matches seen by one process between restarts.
const bloomCapacity = 1_000_000

// Queue holds discovered matches until their details are stored.
type Queue struct {
	store  store.Store
	cursor *Cursor
	log    logrus.FieldLogger
	now    func() time.Time

	seenMu sync.Mutex
	seen   *bloom.BloomFilter
}

type Option func(*Queue)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

// NewQueue builds a queue and seeds its seen-filter with every match already queued or
// detailed, so that a filter miss is authoritative for the lifetime of the process.
func NewQueue(ctx context.Context, s store.Store, cursor *Cursor, log logrus.FieldLogger, opts ...Option) (*Queue, error) {
	q := &Queue{
		store:  s,
		cursor: cursor,
		log:    log,
		now:    time.Now,
		seen:   bloom.NewWithEstimates(bloomCapacity, 0.001),
	}
	for _, opt := range opts {
		opt(q)
	}

	known := 0
	err := s.KnownMatchIDs(ctx, func(matchID uint64) {
		q.seen.AddString(strconv.FormatUint(matchID, 10))
		known++
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load known matches: %w", err)
	}
	log.WithField("known_matches", known).Debug("Seen-filter loaded")
	return q, nil
}

func (q *Queue) maybeSeen(matchID uint64) bool {
	q.seenMu.Lock()
	defer q.seenMu.Unlock()
	return q.seen.TestString(strconv.FormatUint(matchID, 10))
}

func (q *Queue) markSeen(matchID uint64) {
	q.seenMu.Lock()
	defer q.seenMu.Unlock()
	q.seen.AddString(strconv.FormatUint(matchID, 10))
}

// EnqueueDiscovered queues a match summary from the sequence scan. It returns false when
// the match is already queued or already detailed; such a match is never queued again.
func (q *Queue) EnqueueDiscovered(ctx context.Context, summary store.QueueEntry) (bool, error) {
	if summary.QueuedAt.IsZero() {
		summary.QueuedAt = q.now()
	}

	// A miss means the match was never queued or detailed, so the insert skips the
	// lookup. A hit may be a false positive and goes through the checked insert.
	insert := q.store.InsertQueueEntry
	if q.maybeSeen(summary.MatchID) {
		insert = q.store.EnqueueMatch
	}
	added, err := insert(ctx, &summary)
	if err != nil {
		return false, fmt.Errorf("failed to enqueue match %d: %w", summary.MatchID, err)
	}
	q.markSeen(summary.MatchID)
	if added {
		q.log.WithFields(logrus.Fields{
			"match_id":      summary.MatchID,
			"match_seq_num": summary.MatchSeqNum,
			"players":       len(summary.Players),
		}).Debug("Match queued")
	}
	return added, nil
}

// NextQueueEntryToDetail returns the entry queued earliest, or nil when the queue is empty.
func (q *Queue) NextQueueEntryToDetail(ctx context.Context) (*store.QueueEntry, error) {
	e, err := q.store.OldestQueueEntry(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read queue: %w", err)
	}
	return e, nil
}

// CommitMatchDetails stores a detailed match, its picks/bans and player entries, and
// removes its queue entry, all in one transaction. Committing the same match again
// replaces the previous rows. Participants with hero id 0 are dropped.
func (q *Queue) CommitMatchDetails(ctx context.Context, matchID uint64, detail store.Match,
	picksBans []store.PickBan, players []store.PlayerEntry) error {
	if matchID == 0 {
		return fmt.Errorf("commit match: %w", ErrMatchIDMismatch)
	}
	if detail.MatchID == 0 {
		detail.MatchID = matchID
	}
	if detail.MatchID != matchID {
		return fmt.Errorf("commit match %d (detail %d): %w", matchID, detail.MatchID, ErrMatchIDMismatch)
	}

	detail.PicksBans = picksBans
	detail.Players = make([]store.PlayerEntry, 0, len(players))
	for _, p := range players {
		if p.HeroID == 0 {
			continue
		}
		detail.Players = append(detail.Players, p)
	}
	detail.LastRefresh = q.now()

	if err := q.store.CommitMatch(ctx, &detail); err != nil {
		return fmt.Errorf("failed to commit match %d: %w", matchID, err)
	}
	q.markSeen(matchID)
	q.log.WithFields(logrus.Fields{
		"match_id":     matchID,
		"picks_bans":   len(picksBans),
		"players":      len(detail.Players),
		"low_priority": detail.IsLowPriority(),
	}).Info("Match details stored")
	return nil
}

// Requeue moves an entry whose details could not be fetched to the back of the queue.
func (q *Queue) Requeue(ctx context.Context, matchID uint64) error {
	if err := q.store.RequeueMatch(ctx, matchID, q.now()); err != nil {
		return fmt.Errorf("failed to requeue match %d: %w", matchID, err)
	}
	return nil
}

func (q *Queue) Len(ctx context.Context) (int, error) {
	return q.store.QueueLength(ctx)
}

func (q *Queue) LastSequenceCursor() uint64 {
	return q.cursor.Value()
}

func (q *Queue) AdvanceSequenceCursor(ctx context.Context, v uint64) error {
	return q.cursor.Advance(ctx, v)
}

// ResumeFrom is the first sequence number the next discovery scan should request.
func (q *Queue) ResumeFrom() uint64 {
	return q.cursor.ResumeFrom()
}
