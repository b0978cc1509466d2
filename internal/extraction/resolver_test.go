package extraction

import (
	"context"
	"errors"
	"testing"
)

// countingResolver records how it was called and answers with fixed fields.
type countingResolver struct {
	calls    int
	lastSeen Identity
	fields   Fields
	err      error
}

func (r *countingResolver) ResolveMissing(_ context.Context, partial Identity) (Fields, error) {
	r.calls++
	r.lastSeen = partial
	return r.fields, r.err
}

func TestResolveIncompleteSuppliesMissingDOB(t *testing.T) {
	id := Extract("The patient named John Smith came in today.")
	resolver := &countingResolver{fields: Fields{DateOfBirth: ptrStr("01/01/1990")}}

	resolved, err := ResolveIncomplete(context.Background(), id, resolver)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if resolver.calls != 1 {
		t.Fatalf("expected exactly one resolver call, got %d", resolver.calls)
	}
	// The resolver sees the partial identity: names already extracted, so
	// only the date of birth is actually needed from it.
	if resolver.lastSeen.FirstName == nil || resolver.lastSeen.LastName == nil {
		t.Error("resolver should have seen the already-extracted names")
	}
	if resolver.lastSeen.DateOfBirth != nil {
		t.Error("resolver should have been asked while the date of birth was absent")
	}

	if resolved.CanonicalKey == nil || *resolved.CanonicalKey != "Smith_John__01_01_1990" {
		t.Fatalf("expected key Smith_John__01_01_1990, got %v", resolved.CanonicalKey)
	}
	if resolved.Confidence != 1.0 {
		t.Errorf("expected confidence 1.0 after resolution, got %v", resolved.Confidence)
	}
}

func TestResolveIncompleteSkipsCompleteIdentity(t *testing.T) {
	id := Extract("I'm seeing patient John Smith today. He was born on March 15th, 1985.")
	if id.CanonicalKey == nil {
		t.Fatal("precondition: extraction should be complete")
	}

	resolver := &countingResolver{}
	resolved, err := ResolveIncomplete(context.Background(), id, resolver)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolver.calls != 0 {
		t.Errorf("resolver must not run for a complete identity, got %d calls", resolver.calls)
	}
	if resolved.CanonicalKey == nil || *resolved.CanonicalKey != *id.CanonicalKey {
		t.Errorf("identity should pass through unchanged")
	}
}

// Extracted values always win: the resolver cannot overwrite a field the
// text scan already filled.
func TestResolveIncompleteExtractionPrecedence(t *testing.T) {
	id := Extract("The patient named John Smith came in today.")
	resolver := &countingResolver{fields: Fields{
		FirstName:   ptrStr("Robert"),
		LastName:    ptrStr("Jones"),
		DateOfBirth: ptrStr("02/02/1992"),
	}}

	resolved, err := ResolveIncomplete(context.Background(), id, resolver)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if *resolved.FirstName != "John" || *resolved.LastName != "Smith" {
		t.Errorf("resolver overwrote extracted names: %s %s", *resolved.FirstName, *resolved.LastName)
	}
	if *resolved.CanonicalKey != "Smith_John__02_02_1992" {
		t.Errorf("unexpected key %q", *resolved.CanonicalKey)
	}
}

func TestResolveIncompleteStillMissing(t *testing.T) {
	id := Extract("The patient named John Smith came in today.")
	resolver := &countingResolver{} // supplies nothing

	_, err := ResolveIncomplete(context.Background(), id, resolver)
	if err == nil {
		t.Fatal("expected an error for a still-incomplete identity")
	}

	var incomplete *IncompleteIdentityError
	if !errors.As(err, &incomplete) {
		t.Fatalf("expected *IncompleteIdentityError, got %T", err)
	}
	if len(incomplete.Missing) != 1 || incomplete.Missing[0] != "date_of_birth" {
		t.Errorf("unexpected missing fields: %v", incomplete.Missing)
	}
	if resolver.calls != 1 {
		t.Errorf("expected exactly one resolver call, got %d", resolver.calls)
	}
}

func TestResolveIncompleteNilResolver(t *testing.T) {
	id := Extract("dob: 3/15/85")

	_, err := ResolveIncomplete(context.Background(), id, nil)
	var incomplete *IncompleteIdentityError
	if !errors.As(err, &incomplete) {
		t.Fatalf("expected *IncompleteIdentityError, got %v", err)
	}
	if len(incomplete.Missing) != 2 {
		t.Errorf("expected first and last name missing, got %v", incomplete.Missing)
	}
}

func TestResolveIncompleteResolverError(t *testing.T) {
	cause := errors.New("prompt aborted")
	id := Extract("The patient named John Smith came in today.")
	resolver := &countingResolver{err: cause}

	_, err := ResolveIncomplete(context.Background(), id, resolver)
	var incomplete *IncompleteIdentityError
	if !errors.As(err, &incomplete) {
		t.Fatalf("expected *IncompleteIdentityError, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Error("expected the resolver failure to be wrapped")
	}
}

// Empty strings from a resolver count as not supplied.
func TestResolveIncompleteIgnoresEmptyFields(t *testing.T) {
	id := Extract("The patient named John Smith came in today.")
	resolver := &countingResolver{fields: Fields{DateOfBirth: ptrStr("")}}

	_, err := ResolveIncomplete(context.Background(), id, resolver)
	var incomplete *IncompleteIdentityError
	if !errors.As(err, &incomplete) {
		t.Fatalf("expected *IncompleteIdentityError, got %v", err)
	}
}

func TestStaticResolver(t *testing.T) {
	id := Extract("dob: 3/15/85")
	static := StaticResolver(Fields{FirstName: ptrStr("Maria"), LastName: ptrStr("Lopez")})

	resolved, err := ResolveIncomplete(context.Background(), id, static)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if *resolved.CanonicalKey != "Lopez_Maria__03_15_2085" {
		t.Errorf("unexpected key %q", *resolved.CanonicalKey)
	}
}

func TestIncompleteIdentityErrorMessage(t *testing.T) {
	err := &IncompleteIdentityError{Missing: []string{"first_name", "date_of_birth"}}
	want := "incomplete identity: missing first_name, date_of_birth"
	if err.Error() != want {
		t.Errorf("expected %q, got %q", want, err.Error())
	}
}
