package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
)

// ErrCommitFailed indicates the unit of work's persistence step failed. No
// domain events survive it and no invalidation flush runs.
var ErrCommitFailed = errors.New("identity: commit failed")

// TxBeginner is satisfied by *pgxpool.Pool.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Work is the per-request context handed to a unit-of-work body: a
// transaction-scoped store plus the aggregates whose events should be
// dispatched after commit.
type Work struct {
	Store Store

	tracked []eventSource
}

type eventSource interface {
	Events() []Event
	ClearEvents()
}

// Track registers an aggregate so its event buffer is dispatched and cleared
// by the unit of work. Tracking the same aggregate twice is harmless but
// dispatches its events twice, so callers track each aggregate once.
func (w *Work) Track(src eventSource) {
	w.tracked = append(w.tracked, src)
}

// UnitOfWork runs a mutation atomically: body, then synchronous dispatch of
// the raised domain events, then commit, then exactly one collector flush.
// A failed commit prevents both the event effects and the flush, so a retried
// transaction re-raises everything it owes.
type UnitOfWork struct {
	db         TxBeginner
	dispatcher *Dispatcher
	publisher  Publisher
	logger     *slog.Logger
}

// NewUnitOfWork constructs a unit-of-work runner.
func NewUnitOfWork(db TxBeginner, dispatcher *Dispatcher, publisher Publisher, logger *slog.Logger) *UnitOfWork {
	return &UnitOfWork{db: db, dispatcher: dispatcher, publisher: publisher, logger: logger}
}

// Execute runs fn inside a transaction. Each call gets a fresh collector; no
// cross-request shared mutable state exists.
func (u *UnitOfWork) Execute(ctx context.Context, fn func(ctx context.Context, w *Work) error) error {
	tx, err := u.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("identity: begin: %w", err)
	}

	work := &Work{Store: NewStore(tx)}
	if err := fn(ctx, work); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}

	// Handlers run inside the transaction so a failing projection aborts the
	// whole commit.
	collector := NewCollector(u.publisher)
	for _, src := range work.tracked {
		for _, ev := range src.Events() {
			if err := u.dispatcher.Dispatch(ctx, ev, collector); err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		_ = tx.Rollback(ctx)
		return fmt.Errorf("%w: %v", ErrCommitFailed, err)
	}

	for _, src := range work.tracked {
		src.ClearEvents()
	}

	if err := collector.Flush(ctx); err != nil {
		// The mutation is durable; a lost invalidation self-heals on the next
		// event for the same key, but it is still worth surfacing.
		if u.logger != nil {
			u.logger.Error("invalidation flush failed", slog.Any("error", err))
		}
		return err
	}
	return nil
}
