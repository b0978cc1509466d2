package documents

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/jeffbander/leqvio-patient-management-sub002/internal/platform/blobstore"
)

type Service struct {
	repo  DocumentRepository
	store blobstore.BlobStore
}

func NewService(repo DocumentRepository, store blobstore.BlobStore) *Service {
	return &Service{repo: repo, store: store}
}

// StoreDocument writes the content to the blob store and records the
// metadata row. The blob is removed again if the row cannot be written.
func (s *Service) StoreDocument(ctx context.Context, fileName, contentType, source string, content io.Reader) (*Document, error) {
	if fileName == "" {
		return nil, fmt.Errorf("file name is required")
	}
	if !blobstore.AllowedContentTypes[contentType] {
		return nil, fmt.Errorf("unsupported content type: %s", contentType)
	}
	if source == "" {
		source = SourceUpload
	}

	blobID := uuid.New().String()
	res, err := s.store.Put(ctx, blobID, content)
	if err != nil {
		return nil, err
	}

	doc := &Document{
		FileName:    fileName,
		ContentType: contentType,
		SizeBytes:   res.Size,
		Hash:        res.Hash,
		BlobID:      blobID,
		Source:      source,
		Status:      StatusReceived,
	}
	if err := s.repo.Create(ctx, doc); err != nil {
		_ = s.store.Delete(ctx, blobID)
		return nil, err
	}
	return doc, nil
}

func (s *Service) GetDocument(ctx context.Context, id uuid.UUID) (*Document, error) {
	return s.repo.GetByID(ctx, id)
}

// OpenDocument returns the metadata row together with a reader over the
// stored content. The caller closes the reader.
func (s *Service) OpenDocument(ctx context.Context, id uuid.UUID) (*Document, io.ReadCloser, error) {
	doc, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	rc, err := s.store.Get(ctx, doc.BlobID)
	if err != nil {
		return nil, nil, err
	}
	return doc, rc, nil
}

func (s *Service) AttachPatient(ctx context.Context, id, patientID uuid.UUID) error {
	return s.repo.SetPatient(ctx, id, patientID)
}

func (s *Service) AttachIntakeRecord(ctx context.Context, id, recordID uuid.UUID) error {
	return s.repo.SetIntakeRecord(ctx, id, recordID)
}

// RecordExtractionOutcome moves the document through its extraction
// lifecycle and stores whatever text the provider read out of it.
func (s *Service) RecordExtractionOutcome(ctx context.Context, id uuid.UUID, status string, extractedText *string) error {
	switch status {
	case StatusExtracted, StatusUnsupported, StatusFailed:
	default:
		return fmt.Errorf("invalid extraction status: %s", status)
	}
	return s.repo.SetExtractionResult(ctx, id, status, extractedText)
}

// DeleteDocument removes the metadata row and then the blob. A missing blob
// is not an error; the row is authoritative.
func (s *Service) DeleteDocument(ctx context.Context, id uuid.UUID) error {
	doc, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	_ = s.store.Delete(ctx, doc.BlobID)
	return nil
}

func (s *Service) ListDocuments(ctx context.Context, limit, offset int) ([]*Document, int, error) {
	return s.repo.List(ctx, limit, offset)
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Document, int, error) {
	return s.repo.ListByPatient(ctx, patientID, limit, offset)
}
