package content

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"jokeline/internal/storage"
	logx "jokeline/pkg/logx"
)

const DefaultMaxAttempts = 25

// Selector returns items that are not yet in the ledger, recording each one
// before handing it out.
type Selector struct {
	source Source
	ledger storage.ContentLedger
	log    logx.Logger

	maxAttempts atomic.Int64
}

func NewSelector(source Source, ledger storage.ContentLedger, maxAttempts int, log logx.Logger) *Selector {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Selector{source: source, ledger: ledger, log: log}
	s.SetMaxAttempts(maxAttempts)
	return s
}

// SetMaxAttempts changes the retry cap for later calls. Values <= 0 restore the default.
func (s *Selector) SetMaxAttempts(n int) {
	if n <= 0 {
		n = DefaultMaxAttempts
	}
	s.maxAttempts.Store(int64(n))
}

func (s *Selector) MaxAttempts() int { return int(s.maxAttempts.Load()) }

// SelectUnused fetches until it finds an unseen item, up to MaxAttempts fetches.
// Source errors and ledger errors end the loop immediately.
func (s *Selector) SelectUnused(ctx context.Context) (Item, error) {
	max := s.MaxAttempts()
	for attempt := 1; attempt <= max; attempt++ {
		if err := ctx.Err(); err != nil {
			return Item{}, err
		}
		item, err := s.source.Fetch(ctx)
		if err != nil {
			if errors.Is(err, ErrSource) {
				return Item{}, err
			}
			return Item{}, fmt.Errorf("%w: %v", ErrSource, err)
		}

		_, seen, err := s.ledger.FindContent(ctx, item.ID)
		if err != nil {
			return Item{}, fmt.Errorf("ledger lookup %s: %w", item.ID, err)
		}
		if seen {
			s.log.Debug("content already sent", logx.String("id", item.ID), logx.Int("attempt", attempt))
			continue
		}

		created, err := s.ledger.RecordContent(ctx, item.ID)
		if err != nil {
			return Item{}, fmt.Errorf("ledger record %s: %w", item.ID, err)
		}
		if !created {
			s.log.Debug("content recorded concurrently", logx.String("id", item.ID), logx.Int("attempt", attempt))
			continue
		}
		s.log.Info("content selected", logx.String("id", item.ID), logx.Int("attempts", attempt))
		return item, nil
	}
	return Item{}, fmt.Errorf("%w after %d attempts", ErrExhausted, max)
}
