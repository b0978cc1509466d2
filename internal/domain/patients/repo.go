package patients

import (
	"context"

	"github.com/google/uuid"
)

type PatientRepository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetBySourceID(ctx context.Context, sourceID string) (*Patient, error)
	Upsert(ctx context.Context, p *Patient) (created bool, err error)
	Update(ctx context.Context, p *Patient) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, limit, offset int, status string) ([]*Patient, int, error)
	Search(ctx context.Context, query string, limit, offset int) ([]*Patient, int, error)
	SearchByName(ctx context.Context, firstName, lastName string) ([]*Patient, error)
	Count(ctx context.Context) (int, error)
}
