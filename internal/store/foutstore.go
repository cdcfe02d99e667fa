package store

import (
	"context"
	"fmt"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/mdsuper/mdsuper/internal/interfaces"
	"github.com/mdsuper/mdsuper/internal/model"
)

// FoutStore implements interfaces.FoutStore on top of a Gateway. One fout
// row per sim is modeled as a single record keyed by sim_id, which is what
// makes Upsert a single UPSERT statement rather than an
// INSERT-if-absent-else-UPDATE decision.
type FoutStore struct {
	gw *Gateway
}

// NewFoutStore constructs a FoutStore.
func NewFoutStore(gw *Gateway) *FoutStore {
	return &FoutStore{gw: gw}
}

func (s *FoutStore) Get(ctx context.Context, simID int64) (*model.Fout, error) {
	rows, err := queryRows[model.Fout](ctx, s.gw,
		"SELECT sim_id, files FROM fout WHERE sim_id = $sim_id",
		map[string]interface{}{"sim_id": simID})
	if err != nil {
		return nil, fmt.Errorf("store: get fout for sim %d: %w", simID, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (s *FoutStore) Upsert(ctx context.Context, simID int64, files map[string]interface{}) error {
	err := s.gw.exec(ctx,
		"UPSERT $rid SET sim_id = $sim_id, files = $files",
		map[string]interface{}{
			"rid":    surrealmodels.NewRecordID("fout", simID),
			"sim_id": simID,
			"files":  files,
		}, false)
	if err != nil {
		return fmt.Errorf("store: upsert fout for sim %d: %w", simID, err)
	}
	return nil
}

var _ interfaces.FoutStore = (*FoutStore)(nil)
