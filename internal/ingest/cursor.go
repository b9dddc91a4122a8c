package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/edvart/dotastats/internal/store"
)

// ErrCursorRegression is returned when advancing the cursor to a lower value.
var ErrCursorRegression = errors.New("match sequence cursor cannot move backwards")

// Cursor is the persisted high-water mark of the sequence scan: the highest match
// sequence number whose summary has been seen. It only moves forward.
type Cursor struct {
	mu    sync.Mutex
	store store.Store
	value uint64
}

// InitCursor loads the cursor, creating it at 0 on first start.
func InitCursor(ctx context.Context, s store.Store) (*Cursor, error) {
	v, err := s.InitCursor(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize sequence cursor: %w", err)
	}
	return &Cursor{store: s, value: v}, nil
}

func (c *Cursor) Value() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

// ResumeFrom is the first sequence number the next scan should request.
func (c *Cursor) ResumeFrom() uint64 {
	return c.Value() + 1
}

// Advance persists v. Moving to the current value is a no-op.
func (c *Cursor) Advance(ctx context.Context, v uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case v == c.value:
		return nil
	case v < c.value:
		return fmt.Errorf("%w: %d < %d", ErrCursorRegression, v, c.value)
	}
	if err := c.store.SetCursor(ctx, v); err != nil {
		return fmt.Errorf("failed to persist sequence cursor: %w", err)
	}
	c.value = v
	return nil
}
