package documents

import (
	"context"

	"github.com/google/uuid"
)

type DocumentRepository interface {
	Create(ctx context.Context, d *Document) error
	GetByID(ctx context.Context, id uuid.UUID) (*Document, error)
	SetPatient(ctx context.Context, id, patientID uuid.UUID) error
	SetIntakeRecord(ctx context.Context, id, recordID uuid.UUID) error
	SetExtractionResult(ctx context.Context, id uuid.UUID, status string, extractedText *string) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, limit, offset int) ([]*Document, int, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Document, int, error)
}
