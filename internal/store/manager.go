package store

import (
	"context"
	"fmt"
	"time"

	"github.com/surrealdb/surrealdb.go"

	"github.com/mdsuper/mdsuper/internal/common"
	"github.com/mdsuper/mdsuper/internal/interfaces"
)

// Manager implements interfaces.StoreManager. Unlike the gateway it builds
// on, Manager itself holds no live connection — construction only checks
// the store is reachable and defines any of the four tables that do not
// exist yet, then closes that connection immediately, preserving the
// short-lived-connection discipline for every subsequent operation.
type Manager struct {
	gw       *Gateway
	sims     *SimStore
	params   *ParamStore
	fouts    *FoutStore
	jobInfos *JobInfoStore
}

// NewManager connects once to check reachability and define the tables
// (DEFINE TABLE IF NOT EXISTS), then returns
// a Manager whose store accessors each open their own short-lived
// connections per operation. retries/backoff are the gateway's
// retry policy; pass 0 for both to use the built-in defaults.
func NewManager(ctx context.Context, creds Credentials, logger *common.Logger, retries int, backoff time.Duration) (*Manager, error) {
	gw := NewGatewayWithRetry(creds, logger, retries, backoff)

	tables := []string{"sim", "param", "fout", "job_info"}
	err := gw.withConn(ctx, func(db *surrealdb.DB) error {
		for _, table := range tables {
			sql := fmt.Sprintf("DEFINE TABLE IF NOT EXISTS %s SCHEMALESS", table)
			if _, err := surrealdb.Query[any](ctx, db, sql, nil); err != nil {
				return fmt.Errorf("define table %s: %w", table, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store: initial connectivity check failed: %w", err)
	}

	logger.Info().
		Str("namespace", creds.Namespace).
		Str("database", creds.Database).
		Msg("store reachable, schema verified")

	return &Manager{
		gw:       gw,
		sims:     NewSimStore(gw),
		params:   NewParamStore(gw),
		fouts:    NewFoutStore(gw),
		jobInfos: NewJobInfoStore(gw),
	}, nil
}

func (m *Manager) Sims() interfaces.SimStore         { return m.sims }
func (m *Manager) Params() interfaces.ParamStore     { return m.params }
func (m *Manager) Fouts() interfaces.FoutStore       { return m.fouts }
func (m *Manager) JobInfos() interfaces.JobInfoStore { return m.jobInfos }

// Close is a no-op beyond satisfying the interface: the gateway never
// holds a connection between calls, so there is nothing to release.
func (m *Manager) Close() error { return nil }

var _ interfaces.StoreManager = (*Manager)(nil)
