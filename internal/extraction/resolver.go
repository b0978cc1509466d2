package extraction

import (
	"context"
	"fmt"
	"strings"
)

// Fields carries identity values supplied by a resolver. Nil (or empty)
// entries mean the resolver had nothing for that field.
type Fields struct {
	FirstName   *string `json:"first_name,omitempty"`
	LastName    *string `json:"last_name,omitempty"`
	DateOfBirth *string `json:"date_of_birth,omitempty"`
}

// Resolver supplies identity fields that pattern extraction could not find.
// Implementations range from interactive prompts to record lookups to fixed
// merges; they may block (the context carries cancellation) but are invoked
// at most once per extraction, and only when the canonical key is absent.
// The partial identity passed in shows which fields are already filled, so
// a resolver only needs to produce the missing ones.
type Resolver interface {
	ResolveMissing(ctx context.Context, partial Identity) (Fields, error)
}

// ResolverFunc adapts a plain function to the Resolver interface.
type ResolverFunc func(ctx context.Context, partial Identity) (Fields, error)

// ResolveMissing implements Resolver.
func (f ResolverFunc) ResolveMissing(ctx context.Context, partial Identity) (Fields, error) {
	return f(ctx, partial)
}

// StaticResolver returns a Resolver that always answers with the given
// fields. Useful when a caller already holds pre-structured values, such as
// document-extraction output, that should fill whatever the text scan
// missed.
func StaticResolver(fields Fields) Resolver {
	return ResolverFunc(func(context.Context, Identity) (Fields, error) {
		return fields, nil
	})
}

// IncompleteIdentityError reports that an identity still lacks required
// fields after resolution. It is the pipeline's one hard failure: callers
// must not hand the identity to downstream automation while this error is
// set. Err carries the resolver's own failure when resolution itself broke.
type IncompleteIdentityError struct {
	Missing []string
	Err     error
}

func (e *IncompleteIdentityError) Error() string {
	msg := fmt.Sprintf("incomplete identity: missing %s", strings.Join(e.Missing, ", "))
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *IncompleteIdentityError) Unwrap() error { return e.Err }

// ResolveIncomplete completes a partially extracted identity through the
// given resolver. An identity that already carries its canonical key is
// returned untouched and the resolver is never called. Otherwise the
// resolver runs exactly once; fields it supplies fill only the absent slots
// (extracted values always win), the confidence and key are recomputed, and
// an *IncompleteIdentityError is returned when any of the three required
// fields is still missing. A nil resolver skips straight to that error.
// There is no retry here: re-prompting is the caller's concern.
func ResolveIncomplete(ctx context.Context, id Identity, r Resolver) (Identity, error) {
	if id.CanonicalKey != nil {
		return id, nil
	}

	if r == nil {
		return id, &IncompleteIdentityError{Missing: id.Missing()}
	}

	fields, err := r.ResolveMissing(ctx, id)
	if err != nil {
		return id, &IncompleteIdentityError{Missing: id.Missing(), Err: err}
	}

	merged := id
	if merged.FirstName == nil && present(fields.FirstName) {
		merged.FirstName = fields.FirstName
	}
	if merged.LastName == nil && present(fields.LastName) {
		merged.LastName = fields.LastName
	}
	if merged.DateOfBirth == nil && present(fields.DateOfBirth) {
		merged.DateOfBirth = fields.DateOfBirth
	}
	merged = finalize(merged)

	if merged.CanonicalKey == nil {
		return merged, &IncompleteIdentityError{Missing: merged.Missing()}
	}
	return merged, nil
}

// present treats an empty string the same as an unset pointer: supplying ""
// for a field is not supplying it.
func present(s *string) bool {
	return s != nil && *s != ""
}
