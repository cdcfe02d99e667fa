package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/mdsuper/mdsuper/internal/interfaces"
	"github.com/mdsuper/mdsuper/internal/model"
)

// JobInfoStore implements interfaces.JobInfoStore on top of a Gateway.
// Each batch job id gets its own row, flat, with no attempt to group
// multi-job submissions into an array.
type JobInfoStore struct {
	gw *Gateway
}

// NewJobInfoStore constructs a JobInfoStore.
func NewJobInfoStore(gw *Gateway) *JobInfoStore {
	return &JobInfoStore{gw: gw}
}

func (s *JobInfoStore) Insert(ctx context.Context, simID int64, jobID int64) error {
	id := uuid.New().String()[:12]
	err := s.gw.exec(ctx,
		"UPSERT $rid SET sim_id = $sim_id, job_id = $job_id",
		map[string]interface{}{
			"rid":    surrealmodels.NewRecordID("job_info", id),
			"sim_id": simID,
			"job_id": jobID,
		}, false)
	if err != nil {
		return fmt.Errorf("store: insert job_info for sim %d: %w", simID, err)
	}
	return nil
}

func (s *JobInfoStore) ListBySim(ctx context.Context, simID int64) ([]int64, error) {
	rows, err := queryRows[model.JobInfo](ctx, s.gw,
		"SELECT sim_id, job_id FROM job_info WHERE sim_id = $sim_id",
		map[string]interface{}{"sim_id": simID})
	if err != nil {
		return nil, fmt.Errorf("store: list job_info for sim %d: %w", simID, err)
	}
	out := make([]int64, len(rows))
	for i, r := range rows {
		out[i] = r.JobID
	}
	return out, nil
}

var _ interfaces.JobInfoStore = (*JobInfoStore)(nil)
