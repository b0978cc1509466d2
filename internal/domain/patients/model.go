package patients

import (
	"time"

	"github.com/google/uuid"
)

// Enrollment statuses. A patient enters the registry pending and moves to
// enrolled once the practice confirms; declined and inactive are terminal
// apart from reactivation.
const (
	StatusPending  = "pending"
	StatusEnrolled = "enrolled"
	StatusDeclined = "declined"
	StatusInactive = "inactive"
)

// Patient maps to the patients table. SourceID is the canonical dedup key
// derived from the identity triple; it is unique and doubles as the external
// identifier sent to the automation chain.
type Patient struct {
	ID                uuid.UUID `db:"id" json:"id"`
	SourceID          string    `db:"source_id" json:"source_id"`
	FirstName         string    `db:"first_name" json:"first_name"`
	LastName          string    `db:"last_name" json:"last_name"`
	DateOfBirth       string    `db:"date_of_birth" json:"date_of_birth"` // MM/DD/YYYY
	Status            string    `db:"status" json:"status"`
	Phone             *string   `db:"phone" json:"phone,omitempty"`
	Email             *string   `db:"email" json:"email,omitempty"`
	AddressLine1      *string   `db:"address_line1" json:"address_line1,omitempty"`
	City              *string   `db:"city" json:"city,omitempty"`
	State             *string   `db:"state" json:"state,omitempty"`
	PostalCode        *string   `db:"postal_code" json:"postal_code,omitempty"`
	InsurancePlan     *string   `db:"insurance_plan" json:"insurance_plan,omitempty"`
	InsuranceMemberID *string   `db:"insurance_member_id" json:"insurance_member_id,omitempty"`
	InsuranceGroup    *string   `db:"insurance_group" json:"insurance_group,omitempty"`
	PrescriberName    *string   `db:"prescriber_name" json:"prescriber_name,omitempty"`
	PrescriberNPI     *string   `db:"prescriber_npi" json:"prescriber_npi,omitempty"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
}

func strVal(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
