// Package docai extracts structured intake fields from referral documents
// and call transcripts using vision-capable language models. Providers are
// interchangeable behind the Extractor interface; a caching decorator avoids
// re-billing identical documents.
package docai

import (
	"context"

	"github.com/jeffbander/leqvio-patient-management-sub002/internal/extraction"
)

// Fields is the normalized shape we want from the model.
type Fields struct {
	FirstName         *string `json:"first_name,omitempty"`
	LastName          *string `json:"last_name,omitempty"`
	DateOfBirth       *string `json:"date_of_birth,omitempty"` // MM/DD/YYYY
	InsurancePlan     *string `json:"insurance_plan,omitempty"`
	InsuranceMemberID *string `json:"insurance_member_id,omitempty"`
	InsuranceGroupID  *string `json:"insurance_group_id,omitempty"`
	Phone             *string `json:"phone,omitempty"`
	Email             *string `json:"email,omitempty"`
	Address           *string `json:"address,omitempty"`
	PrescriberName    *string `json:"prescriber_name,omitempty"`
	ModelConfidence   float64 `json:"confidence,omitempty"` // optional (0..1)
}

// IdentityFields narrows the document fields to the identity triple used by
// the extraction pipeline.
func (f Fields) IdentityFields() extraction.Fields {
	return extraction.Fields{
		FirstName:   f.FirstName,
		LastName:    f.LastName,
		DateOfBirth: f.DateOfBirth,
	}
}

// Request carries the inputs for one extraction call. Text-only requests
// leave ImageData nil; document requests attach the page image so the model
// can read it directly.
type Request struct {
	Text      string
	ImageData []byte
	ImageMIME string
}

// Result is the provider response after schema validation.
type Result struct {
	Fields         Fields
	TranscriptText string
	Provider       string
	Model          string
	RawJSON        []byte
}

// Extractor is the interface the intake pipeline depends on.
type Extractor interface {
	// Name returns the provider name.
	Name() string

	// Available checks if the provider is properly configured and accessible.
	Available(ctx context.Context) bool

	// ExtractFields runs one extraction call and returns validated fields.
	ExtractFields(ctx context.Context, req Request) (*Result, error)
}
