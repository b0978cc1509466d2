// Package extraction turns free-text intake transcripts into structured
// patient identities and derives the canonical source ID used as the
// cross-system dedup and join key. Extraction is a pure function of the
// input text: no I/O, no shared state, safe for concurrent use.
package extraction

import "strings"

// Confidence contribution per successfully filled field type. A full name
// (both tokens) and a date of birth each count once, so a complete identity
// scores 1.0 and an empty one 0.0.
const (
	nameConfidence = 0.5
	dateConfidence = 0.5
)

// Identity is the result of extracting a patient identity from free text.
// Fields are nil when no pattern matched and no resolver supplied them.
// CanonicalKey is set exactly when FirstName, LastName and DateOfBirth are
// all present; once set it is treated as immutable by callers.
type Identity struct {
	FirstName    *string `json:"first_name,omitempty"`
	LastName     *string `json:"last_name,omitempty"`
	DateOfBirth  *string `json:"date_of_birth,omitempty"` // MM/DD/YYYY
	CanonicalKey *string `json:"canonical_key,omitempty"`
	Confidence   float64 `json:"confidence"`
}

// Complete reports whether all three identity fields are present.
func (id Identity) Complete() bool {
	return id.FirstName != nil && id.LastName != nil && id.DateOfBirth != nil
}

// Missing returns the JSON names of the identity fields that are still
// absent, in a fixed order.
func (id Identity) Missing() []string {
	var missing []string
	if id.FirstName == nil {
		missing = append(missing, "first_name")
	}
	if id.LastName == nil {
		missing = append(missing, "last_name")
	}
	if id.DateOfBirth == nil {
		missing = append(missing, "date_of_birth")
	}
	return missing
}

// DeriveKey builds the canonical source ID from an identity triple:
//
//	{LAST}_{FIRST}__{MM}_{DD}_{YYYY}
//
// The two name fields are joined by a single underscore and a double
// underscore separates the name portion from the date portion, whose
// components are single-underscore joined. Case is preserved exactly as
// extracted. The separator convention is a wire contract shared with
// downstream consumers (the key travels as source_id / Patient_ID) and must
// not change. Underscores already inside a name are not escaped, so such
// names produce ambiguous keys.
func DeriveKey(lastName, firstName, dob string) string {
	return lastName + "_" + firstName + "__" + strings.ReplaceAll(dob, "/", "_")
}

// NewIdentity assembles an Identity directly from already-known fields,
// bypassing text extraction. Used for manually entered enrollments, where
// confidence and canonical key are still computed by the usual rules.
func NewIdentity(firstName, lastName, dateOfBirth *string) Identity {
	return finalize(Identity{
		FirstName:   firstName,
		LastName:    lastName,
		DateOfBirth: dateOfBirth,
	})
}

// finalize recomputes the confidence score and canonical key from the
// fields currently present. Confidence counts a field type when it is
// filled, whether by pattern match or by a resolver, so it never decreases
// as fields are added.
func finalize(id Identity) Identity {
	conf := 0.0
	if id.FirstName != nil && id.LastName != nil {
		conf += nameConfidence
	}
	if id.DateOfBirth != nil {
		conf += dateConfidence
	}
	id.Confidence = conf

	if id.Complete() {
		key := DeriveKey(*id.LastName, *id.FirstName, *id.DateOfBirth)
		id.CanonicalKey = &key
	} else {
		id.CanonicalKey = nil
	}
	return id
}
