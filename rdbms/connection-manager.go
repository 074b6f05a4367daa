package rdbms

import (
	"time"

	"golang.org/x/net/context"

	"github.com/BenjaminRains/etlpipe/constants"
	"github.com/BenjaminRains/etlpipe/logger"
	"github.com/BenjaminRains/etlpipe/rdbms/shared"
)

// ConnectionManager hands out one reusable connection for a sequence of
// operations against one database, with bounded retry and optional pacing.
// A manager is owned by a single worker; give each parallel table cycle its
// own manager rather than sharing one across goroutines.
type ConnectionManager struct {
	log          logger.Logger
	details      shared.ConnectionDetails
	openFn       func() (shared.Connector, error)
	db           shared.Connector
	maxAttempts  int
	backoffStart time.Duration
	rateInterval time.Duration
	lastCall     time.Time
}

func NewConnectionManager(log logger.Logger, details shared.ConnectionDetails) *ConnectionManager {
	m := newConnectionManager(log, details)
	m.openFn = func() (shared.Connector, error) {
		return OpenDbConnection(log, details)
	}
	return m
}

// NewConnectionManagerWithConnector builds a manager around an already-open
// Connector. Retries will reuse the same Connector after discarding it.
func NewConnectionManagerWithConnector(log logger.Logger, db shared.Connector) *ConnectionManager {
	m := newConnectionManager(log, shared.ConnectionDetails{Type: db.GetType(), LogicalName: db.GetType()})
	m.openFn = func() (shared.Connector, error) {
		return db, nil
	}
	return m
}

func newConnectionManager(log logger.Logger, details shared.ConnectionDetails) *ConnectionManager {
	return &ConnectionManager{
		log:          log,
		details:      details,
		maxAttempts:  constants.RetryMaxAttempts,
		backoffStart: constants.RetryBackoffStart,
		rateInterval: constants.RateLimitMinInterval,
	}
}

// SetRetryPolicy overrides the default retry budget and initial backoff.
func (m *ConnectionManager) SetRetryPolicy(maxAttempts int, backoffStart time.Duration) {
	if maxAttempts > 0 {
		m.maxAttempts = maxAttempts
	}
	if backoffStart > 0 {
		m.backoffStart = backoffStart
	}
}

// Details returns the connection details this manager opens with, so callers
// can build sibling managers for parallel workers.
func (m *ConnectionManager) Details() shared.ConnectionDetails {
	return m.details
}

// GetConnection returns the existing open connection if present, otherwise it
// opens and caches one. Failure to open is a ConnectionError and is not retried.
func (m *ConnectionManager) GetConnection() (shared.Connector, error) {
	if m.db != nil {
		return m.db, nil
	}
	db, err := m.openFn()
	if err != nil {
		return nil, &ConnectionError{Name: m.details.LogicalName, Err: err}
	}
	m.db = db
	return m.db, nil
}

// ExecuteWithRetry runs one statement with bounded retry and exponential
// backoff, discarding the held connection before each retry so a fresh one is
// obtained. When rateLimited is true a minimum inter-call spacing is enforced
// first to protect a possibly-shared source server.
func (m *ConnectionManager) ExecuteWithRetry(ctx context.Context, sqltext string, args []interface{}, rateLimited bool) (shared.Result, error) {
	var result shared.Result
	err := m.withRetry(ctx, sqltext, rateLimited, func(db shared.Connector) error {
		var err error
		result, err = db.ExecContext(ctx, sqltext, args...)
		return err
	})
	return result, err
}

// QueryWithRetry is ExecuteWithRetry for row-returning statements. Retries
// apply to issuing the query only; scan errors after the first row belong to
// the caller.
func (m *ConnectionManager) QueryWithRetry(ctx context.Context, sqltext string, args []interface{}, rateLimited bool) (shared.Rows, error) {
	var rows shared.Rows
	err := m.withRetry(ctx, sqltext, rateLimited, func(db shared.Connector) error {
		var err error
		rows, err = db.QueryContext(ctx, sqltext, args...)
		return err
	})
	return rows, err
}

func (m *ConnectionManager) withRetry(ctx context.Context, sqltext string, rateLimited bool, fn func(db shared.Connector) error) error {
	var lastErr error
	backoff := m.backoffStart
	for attempt := 1; attempt <= m.maxAttempts; attempt++ {
		if err := m.pace(ctx, rateLimited); err != nil {
			return err
		}
		db, err := m.GetConnection()
		if err != nil {
			return err // connection acquisition is not retried here.
		}
		lastErr = fn(db)
		if lastErr == nil {
			return nil
		}
		m.log.Warn("statement failed (attempt ", attempt, " of ", m.maxAttempts, "): ", lastErr)
		m.discard() // force a fresh connection on the next attempt.
		if attempt < m.maxAttempts {
			if err := sleepCtx(ctx, backoff); err != nil {
				return err
			}
			backoff *= 2
		}
	}
	return &TransientQueryError{Sql: sqltext, Attempts: m.maxAttempts, Err: lastErr}
}

// pace enforces the minimum spacing between rate-limited calls on this manager.
// The delay is local to one connection so it never throttles unrelated tables.
func (m *ConnectionManager) pace(ctx context.Context, rateLimited bool) error {
	if !rateLimited {
		return nil
	}
	if wait := m.rateInterval - time.Since(m.lastCall); wait > 0 {
		if err := sleepCtx(ctx, wait); err != nil {
			return err
		}
	}
	m.lastCall = time.Now()
	return nil
}

func (m *ConnectionManager) discard() {
	if m.db != nil {
		m.db.Close()
		m.db = nil
	}
}

// Close releases the held connection. Idempotent; safe on all teardown paths.
func (m *ConnectionManager) Close() {
	m.discard()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
