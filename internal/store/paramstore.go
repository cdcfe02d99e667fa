package store

import (
	"context"
	"fmt"

	"github.com/mdsuper/mdsuper/internal/interfaces"
	"github.com/mdsuper/mdsuper/internal/model"
)

// ParamStore implements interfaces.ParamStore on top of a Gateway.
type ParamStore struct {
	gw *Gateway
}

// NewParamStore constructs a ParamStore.
func NewParamStore(gw *Gateway) *ParamStore {
	return &ParamStore{gw: gw}
}

func (s *ParamStore) ListBySim(ctx context.Context, simID int64) ([]*model.Param, error) {
	rows, err := queryRows[model.Param](ctx, s.gw,
		"SELECT sim_id, path, cmd, args FROM param WHERE sim_id = $sim_id",
		map[string]interface{}{"sim_id": simID})
	if err != nil {
		return nil, fmt.Errorf("store: list params for sim %d: %w", simID, err)
	}
	out := make([]*model.Param, len(rows))
	for i := range rows {
		out[i] = &rows[i]
	}
	return out, nil
}

var _ interfaces.ParamStore = (*ParamStore)(nil)
