package intake

import (
	"context"

	"github.com/google/uuid"
)

type RecordRepository interface {
	Create(ctx context.Context, r *Record) error
	GetByID(ctx context.Context, id uuid.UUID) (*Record, error)
	Update(ctx context.Context, r *Record) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status string, errMsg *string) error
	UpdateChainResult(ctx context.Context, id uuid.UUID, runID, viewURL string) error
	List(ctx context.Context, limit, offset int, channel, status string) ([]*Record, int, error)
	ListBySourceID(ctx context.Context, sourceID string) ([]*Record, error)
}
