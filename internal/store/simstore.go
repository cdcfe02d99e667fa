package store

import (
	"context"
	"fmt"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/mdsuper/mdsuper/internal/interfaces"
	"github.com/mdsuper/mdsuper/internal/model"
)

// SimStore implements interfaces.SimStore on top of a Gateway.
type SimStore struct {
	gw *Gateway
}

// NewSimStore constructs a SimStore.
func NewSimStore(gw *Gateway) *SimStore {
	return &SimStore{gw: gw}
}

func (s *SimStore) Get(ctx context.Context, id int64) (*model.Sim, error) {
	rows, err := queryRows[model.Sim](ctx, s.gw, "SELECT id, stat_id, parent_id FROM sim WHERE id = $id", map[string]interface{}{
		"id": id,
	})
	if err != nil {
		return nil, fmt.Errorf("store: get sim %d: %w", id, err)
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return &rows[0], nil
}

func (s *SimStore) ListActionable(ctx context.Context) ([]*model.Sim, error) {
	rows, err := queryRows[model.Sim](ctx, s.gw,
		"SELECT id, stat_id, parent_id FROM sim WHERE stat_id IN [$submitted, $running, $depend]",
		map[string]interface{}{
			"submitted": model.StatusSubmitted,
			"running":   model.StatusRunning,
			"depend":    model.StatusDepend,
		})
	if err != nil {
		return nil, fmt.Errorf("store: list actionable sims: %w", err)
	}
	out := make([]*model.Sim, len(rows))
	for i := range rows {
		out[i] = &rows[i]
	}
	return out, nil
}

func (s *SimStore) SetStatus(ctx context.Context, id int64, status model.Status) error {
	err := s.gw.exec(ctx, "UPDATE $rid SET stat_id = $status", map[string]interface{}{
		"rid":    surrealmodels.NewRecordID("sim", id),
		"status": status,
	}, false)
	if err != nil {
		return fmt.Errorf("store: set sim %d status to %s: %w", id, status, err)
	}
	return nil
}

var _ interfaces.SimStore = (*SimStore)(nil)
