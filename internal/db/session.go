package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/sony/gobreaker/v2"

	"weatheringest/internal/config"
	"weatheringest/internal/types"
)

// SessionFactory opens one transactional Session per ingestion invocation.
// Opening goes through a circuit breaker: after BreakerMaxFailures
// consecutive failures a warm container fails fast until BreakerOpenTimeout
// has passed.
type SessionFactory struct {
	pool           TxBeginner
	table          string
	dedupeByDate   bool
	connectTimeout time.Duration
	breaker        *gobreaker.CircuitBreaker[pgx.Tx]
}

// NewSessionFactory creates a SessionFactory over the pool.
func NewSessionFactory(pool TxBeginner, cfg config.DatabaseConfig, dedupeByDate bool, logger *slog.Logger) *SessionFactory {
	maxFailures := cfg.BreakerMaxFailures
	cb := gobreaker.NewCircuitBreaker[pgx.Tx](gobreaker.Settings{
		Name:        "postgres-session",
		MaxRequests: 1,
		Timeout:     cfg.BreakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if logger != nil {
				logger.Warn("circuit breaker state change",
					"breaker", name,
					"from", from.String(),
					"to", to.String(),
				)
			}
		},
	})

	return &SessionFactory{
		pool:           pool,
		table:          cfg.Table,
		dedupeByDate:   dedupeByDate,
		connectTimeout: cfg.ConnectTimeout,
		breaker:        cb,
	}
}

// Open begins a transaction. The caller must Commit or Rollback the session.
func (f *SessionFactory) Open(ctx context.Context) (*Session, error) {
	tx, err := f.breaker.Execute(func() (pgx.Tx, error) {
		openCtx, cancel := context.WithTimeout(ctx, f.connectTimeout)
		defer cancel()
		return f.pool.Begin(openCtx)
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, types.NewAppError(types.ErrCodeInternalTimeout, "invocation deadline reached while opening store session", err)
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, types.NewAppError(types.ErrCodeUpstreamDatabase, "store circuit breaker is open", err)
		}
		return nil, types.NewAppError(types.ErrCodeUpstreamDatabase, "failed to open store session", err)
	}

	return &Session{
		tx:           tx,
		observations: NewObservationRepository(tx, f.table, f.dedupeByDate),
		runs:         NewRunRepository(tx),
	}, nil
}

// Session stages observations inside a single transaction. Each write runs
// in its own savepoint so a failed row leaves the rest of the transaction
// usable. A Session is not safe for concurrent use.
type Session struct {
	tx           pgx.Tx
	observations *ObservationRepository
	runs         *RunRepository
	aborted      bool
}

// Stage inserts one observation. An error wrapping types.ErrSessionAborted
// means the transaction can no longer be committed; any other error only
// concerns this row.
func (s *Session) Stage(ctx context.Context, obs types.Observation) error {
	return s.savepoint(ctx, func(db DBTX) error {
		return s.observations.WithDB(db).Insert(ctx, obs)
	})
}

// PriorRuns counts ledger entries for the object.
func (s *Session) PriorRuns(ctx context.Context, ref types.ObjectRef) (int, error) {
	var n int
	err := s.savepoint(ctx, func(db DBTX) error {
		var err error
		n, err = s.runs.WithDB(db).CountForObject(ctx, ref)
		return err
	})
	return n, err
}

// RecordRun appends the run to the ledger in the same transaction.
func (s *Session) RecordRun(ctx context.Context, report types.IngestReport) error {
	return s.savepoint(ctx, func(db DBTX) error {
		return s.runs.WithDB(db).Record(ctx, report)
	})
}

// Commit makes every staged row durable.
func (s *Session) Commit(ctx context.Context) error {
	if s.aborted {
		return types.NewAppError(types.ErrCodeInternalDB, "cannot commit aborted store session", types.ErrSessionAborted)
	}
	if err := s.tx.Commit(ctx); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to commit store session", err)
	}
	return nil
}

// Rollback discards the transaction. It is a no-op after Commit, so it can
// be deferred unconditionally.
func (s *Session) Rollback(ctx context.Context) error {
	err := s.tx.Rollback(ctx)
	if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to roll back store session", err)
	}
	return nil
}

// savepoint runs fn inside a nested transaction and rolls it back when fn
// fails. Any failure of the savepoint statements themselves marks the
// session aborted.
func (s *Session) savepoint(ctx context.Context, fn func(DBTX) error) error {
	if s.aborted {
		return types.ErrSessionAborted
	}

	sp, err := s.tx.Begin(ctx)
	if err != nil {
		s.aborted = true
		return fmt.Errorf("%w: open savepoint: %w", types.ErrSessionAborted, err)
	}

	if err := fn(sp); err != nil {
		if rbErr := sp.Rollback(ctx); rbErr != nil {
			s.aborted = true
			return fmt.Errorf("%w: roll back savepoint: %w", types.ErrSessionAborted, errors.Join(err, rbErr))
		}
		return err
	}

	if err := sp.Commit(ctx); err != nil {
		s.aborted = true
		return fmt.Errorf("%w: release savepoint: %w", types.ErrSessionAborted, err)
	}
	return nil
}
