package patients

import (
	"context"

	"github.com/jeffbander/leqvio-patient-management-sub002/internal/extraction"
)

// NameLookupResolver fills a missing date of birth by matching the extracted
// name against already-enrolled patients. It only answers when the match is
// unambiguous; zero or multiple hits supply nothing and the record stays in
// the review queue.
type NameLookupResolver struct {
	repo PatientRepository
}

func NewNameLookupResolver(repo PatientRepository) *NameLookupResolver {
	return &NameLookupResolver{repo: repo}
}

func (r *NameLookupResolver) ResolveMissing(ctx context.Context, partial extraction.Identity) (extraction.Fields, error) {
	if partial.FirstName == nil || partial.LastName == nil {
		// Nothing to look up by. A DOB-only record cannot be matched
		// safely against the registry.
		return extraction.Fields{}, nil
	}

	matches, err := r.repo.SearchByName(ctx, *partial.FirstName, *partial.LastName)
	if err != nil {
		return extraction.Fields{}, err
	}
	if len(matches) != 1 {
		return extraction.Fields{}, nil
	}

	dob := matches[0].DateOfBirth
	return extraction.Fields{DateOfBirth: &dob}, nil
}
