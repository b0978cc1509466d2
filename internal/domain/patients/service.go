package patients

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/jeffbander/leqvio-patient-management-sub002/internal/extraction"
)

type Service struct {
	repo PatientRepository
}

func NewService(repo PatientRepository) *Service {
	return &Service{repo: repo}
}

// dobShape checks the stored format only. Out-of-range components like
// 13/40/2020 are accepted: the key derivation treats the date as an opaque
// normalized string and rejecting here would orphan records that upstream
// channels already produced.
var dobShape = regexp.MustCompile(`^\d{2}/\d{2}/\d{4}$`)

// statusTransitions defines valid enrollment status transitions.
var statusTransitions = map[string][]string{
	StatusPending:  {StatusEnrolled, StatusDeclined},
	StatusEnrolled: {StatusDeclined, StatusInactive},
	StatusDeclined: {StatusPending},
	StatusInactive: {StatusEnrolled},
}

// ValidateTransition checks if an enrollment status change is allowed.
func ValidateTransition(from, to string) error {
	allowed, ok := statusTransitions[from]
	if !ok {
		return fmt.Errorf("unknown from-status: %s", from)
	}
	for _, s := range allowed {
		if s == to {
			return nil
		}
	}
	return fmt.Errorf("invalid status transition from %s to %s", from, to)
}

func (s *Service) validate(p *Patient) error {
	if p.FirstName == "" || p.LastName == "" {
		return fmt.Errorf("first and last name are required")
	}
	if p.DateOfBirth == "" {
		return fmt.Errorf("date of birth is required")
	}
	if !dobShape.MatchString(p.DateOfBirth) {
		return fmt.Errorf("date of birth must be MM/DD/YYYY: %s", p.DateOfBirth)
	}
	return nil
}

// FromIdentity builds a Patient from a complete extracted identity.
func FromIdentity(id extraction.Identity) (*Patient, error) {
	if !id.Complete() {
		return nil, fmt.Errorf("incomplete identity: missing %s", strings.Join(id.Missing(), ", "))
	}
	return &Patient{
		SourceID:    strVal(id.CanonicalKey),
		FirstName:   strVal(id.FirstName),
		LastName:    strVal(id.LastName),
		DateOfBirth: strVal(id.DateOfBirth),
	}, nil
}

func (s *Service) CreatePatient(ctx context.Context, p *Patient) error {
	if err := s.validate(p); err != nil {
		return err
	}
	if p.SourceID == "" {
		p.SourceID = extraction.DeriveKey(p.LastName, p.FirstName, p.DateOfBirth)
	}
	if p.Status == "" {
		p.Status = StatusPending
	}
	return s.repo.Create(ctx, p)
}

// UpsertPatient inserts or merges the patient keyed on the canonical
// source ID, deriving it from the identity triple when absent. Reports
// whether a new row was created.
func (s *Service) UpsertPatient(ctx context.Context, p *Patient) (bool, error) {
	if err := s.validate(p); err != nil {
		return false, err
	}
	if p.SourceID == "" {
		p.SourceID = extraction.DeriveKey(p.LastName, p.FirstName, p.DateOfBirth)
	}
	if p.Status == "" {
		p.Status = StatusPending
	}
	return s.repo.Upsert(ctx, p)
}

func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) GetPatientBySourceID(ctx context.Context, sourceID string) (*Patient, error) {
	return s.repo.GetBySourceID(ctx, sourceID)
}

// UpdatePatient rewrites the row. The source ID is re-derived so it always
// matches the stored identity triple; editing the triple is effectively a
// re-enrollment under a new key.
func (s *Service) UpdatePatient(ctx context.Context, p *Patient) error {
	if err := s.validate(p); err != nil {
		return err
	}
	p.SourceID = extraction.DeriveKey(p.LastName, p.FirstName, p.DateOfBirth)
	if p.Status == "" {
		p.Status = StatusPending
	}
	return s.repo.Update(ctx, p)
}

// ChangeStatus moves a patient through the enrollment lifecycle, rejecting
// transitions the lifecycle does not allow.
func (s *Service) ChangeStatus(ctx context.Context, id uuid.UUID, status string) (*Patient, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := ValidateTransition(p.Status, status); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateStatus(ctx, id, status); err != nil {
		return nil, err
	}
	p.Status = status
	return p, nil
}

func (s *Service) DeletePatient(ctx context.Context, id uuid.UUID) error {
	return s.repo.Delete(ctx, id)
}

func (s *Service) ListPatients(ctx context.Context, limit, offset int, status string) ([]*Patient, int, error) {
	if status != "" {
		if _, ok := statusTransitions[status]; !ok {
			return nil, 0, fmt.Errorf("unknown status filter: %s", status)
		}
	}
	return s.repo.List(ctx, limit, offset, status)
}

func (s *Service) SearchPatients(ctx context.Context, query string, limit, offset int) ([]*Patient, int, error) {
	return s.repo.Search(ctx, query, limit, offset)
}

func (s *Service) CountPatients(ctx context.Context) (int, error) {
	return s.repo.Count(ctx)
}
