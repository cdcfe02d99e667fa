// Package store implements the store gateway and the sim/param/
// fout/job_info row access on top of it. The gateway's defining
// discipline is the opposite of a connection pool: every exec opens a
// fresh connection and closes it before returning, because the store
// enforces a cap on concurrent connections and this daemon runs many
// short-lived workers rather than a handful of long-lived ones.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/surrealdb/surrealdb.go"

	"github.com/mdsuper/mdsuper/internal/common"
)

// ErrNotFound is returned by row accessors when the requested row does not
// exist.
var ErrNotFound = errors.New("store: not found")

// Credentials identifies the store to connect to. One gateway is
// constructed per daemon process and handed to every worker; it holds no
// live connection of its own between calls.
type Credentials struct {
	Address   string // e.g. "ws://localhost:8000" or "http://localhost:8000"
	Namespace string
	Database  string
	User      string
	Password  string
}

// Gateway runs every statement on a connection of its own: exec(sql,
// vars) opens a connection, runs the statement, and closes the connection,
// retrying the whole sequence on failure.
type Gateway struct {
	creds   Credentials
	logger  *common.Logger
	retries int
	backoff time.Duration
}

// NewGateway constructs a Gateway with the default retry policy: 10
// retries after the first attempt, 2s fixed back-off.
func NewGateway(creds Credentials, logger *common.Logger) *Gateway {
	return NewGatewayWithRetry(creds, logger, 10, 2*time.Second)
}

// NewGatewayWithRetry constructs a Gateway with an explicit retry policy;
// non-positive values fall back to the defaults.
func NewGatewayWithRetry(creds Credentials, logger *common.Logger, retries int, backoff time.Duration) *Gateway {
	if retries <= 0 {
		retries = 10
	}
	if backoff <= 0 {
		backoff = 2 * time.Second
	}
	return &Gateway{
		creds:   creds,
		logger:  logger,
		retries: retries,
		backoff: backoff,
	}
}

// connect opens one fresh connection, authenticates, and selects the
// configured namespace/database. The caller must close it.
func (g *Gateway) connect(ctx context.Context) (*surrealdb.DB, error) {
	db, err := surrealdb.New(g.creds.Address)
	if err != nil {
		return nil, fmt.Errorf("store: connect: %w", err)
	}

	if _, err := db.SignIn(ctx, map[string]interface{}{
		"user": g.creds.User,
		"pass": g.creds.Password,
	}); err != nil {
		db.Close(ctx)
		return nil, fmt.Errorf("store: sign in: %w", err)
	}

	if err := db.Use(ctx, g.creds.Namespace, g.creds.Database); err != nil {
		db.Close(ctx)
		return nil, fmt.Errorf("store: select namespace/database: %w", err)
	}

	return db, nil
}

// withConn opens a fresh connection, runs fn, closes the connection, and
// retries the entire sequence up to g.retries times on failure — the
// eventually-successful-or-raised contract every higher layer assumes.
func (g *Gateway) withConn(ctx context.Context, fn func(db *surrealdb.DB) error) error {
	var lastErr error
	for attempt := 0; attempt <= g.retries; attempt++ {
		if attempt > 0 {
			g.logger.Warn().
				Int("attempt", attempt).
				Err(lastErr).
				Msg("store: retrying after failure")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(g.backoff):
			}
		}

		err := func() error {
			db, err := g.connect(ctx)
			if err != nil {
				return err
			}
			defer db.Close(ctx)
			return fn(db)
		}()
		if err == nil {
			return nil
		}
		lastErr = err
	}
	return fmt.Errorf("store: exhausted %d retries: %w", g.retries, lastErr)
}

// queryRows runs sql against a fresh connection and returns the decoded
// result slice for type T, retrying per the gateway's policy.
func queryRows[T any](ctx context.Context, g *Gateway, sql string, vars map[string]interface{}) ([]T, error) {
	var out []T
	err := g.withConn(ctx, func(db *surrealdb.DB) error {
		results, err := surrealdb.Query[[]T](ctx, db, sql, vars)
		if err != nil {
			return err
		}
		if results == nil || len(*results) == 0 {
			out = nil
			return nil
		}
		out = (*results)[0].Result
		return nil
	})
	return out, err
}

// exec runs sql against a fresh connection for side effects only, retrying
// per the gateway's policy. SurrealDB statements commit implicitly per
// query, so the literal BEGIN/COMMIT wrap is only added when the caller
// explicitly asks for one (multi-statement transactions).
func (g *Gateway) exec(ctx context.Context, sql string, vars map[string]interface{}, commit bool) error {
	stmt := sql
	if commit {
		stmt = "BEGIN TRANSACTION; " + sql + "; COMMIT TRANSACTION;"
	}
	return g.withConn(ctx, func(db *surrealdb.DB) error {
		_, err := surrealdb.Query[any](ctx, db, stmt, vars)
		return err
	})
}
