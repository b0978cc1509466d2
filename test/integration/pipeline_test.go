package integration

import (
	"context"
	"strings"
	"testing"

	"github.com/jeffbander/leqvio-patient-management-sub002/internal/domain/documents"
	"github.com/jeffbander/leqvio-patient-management-sub002/internal/domain/intake"
	"github.com/jeffbander/leqvio-patient-management-sub002/internal/domain/patients"
)

func TestPipeline_TranscriptToPatient(t *testing.T) {
	ctx := context.Background()
	truncateAll(t, ctx)
	svcs := newServices(t)

	rec, err := svcs.Intake.ProcessTranscript(ctx,
		"Enrolling patient John Smith, born 3/15/1985, for LEQVIO.", intake.ChannelTranscript)
	if err != nil {
		t.Fatalf("process transcript: %v", err)
	}
	if rec.Status != intake.StatusComplete {
		t.Fatalf("status = %q, want complete", rec.Status)
	}
	if rec.SourceID == nil || *rec.SourceID != "Smith_John__03_15_1985" {
		t.Fatalf("unexpected source ID: %v", rec.SourceID)
	}

	// The record round-trips through the database.
	stored, err := svcs.Intake.GetRecord(ctx, rec.ID)
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	if stored.Channel != intake.ChannelTranscript || stored.Status != intake.StatusComplete {
		t.Errorf("stored record = %q/%q, want transcript/complete", stored.Channel, stored.Status)
	}
	if stored.PatientID == nil {
		t.Fatal("stored record must link the patient")
	}

	p, err := svcs.Patients.GetPatientBySourceID(ctx, "Smith_John__03_15_1985")
	if err != nil {
		t.Fatalf("get patient: %v", err)
	}
	if p.FirstName != "John" || p.LastName != "Smith" || p.DateOfBirth != "03/15/1985" {
		t.Errorf("patient identity = %s %s %s", p.FirstName, p.LastName, p.DateOfBirth)
	}
	if p.Status != patients.StatusPending {
		t.Errorf("new patient status = %q, want pending", p.Status)
	}
	if p.ID != *stored.PatientID {
		t.Error("record patient link does not match the patient row")
	}
}

func TestPipeline_RepeatIntakeReusesPatient(t *testing.T) {
	ctx := context.Background()
	truncateAll(t, ctx)
	svcs := newServices(t)

	phrasings := []string{
		"patient John Smith born 3/15/1985",
		"Mr. John Smith, DOB 03-15-1985, called about enrollment.",
	}
	for _, text := range phrasings {
		if _, err := svcs.Intake.ProcessTranscript(ctx, text, intake.ChannelTranscript); err != nil {
			t.Fatalf("process %q: %v", text, err)
		}
	}

	total, err := svcs.Patients.CountPatients(ctx)
	if err != nil {
		t.Fatalf("count patients: %v", err)
	}
	if total != 1 {
		t.Errorf("patient count = %d, want 1 despite two intakes", total)
	}

	recs, err := svcs.Intake.ListRecordsBySourceID(ctx, "Smith_John__03_15_1985")
	if err != nil {
		t.Fatalf("list records: %v", err)
	}
	if len(recs) != 2 {
		t.Errorf("expected both intake attempts on the source ID, got %d", len(recs))
	}
}

func TestPipeline_ParkAndResolve(t *testing.T) {
	ctx := context.Background()
	truncateAll(t, ctx)
	svcs := newServices(t)

	rec, err := svcs.Intake.ProcessTranscript(ctx,
		"The patient named John Smith came in for a consult.", intake.ChannelTranscript)
	if err == nil {
		t.Fatal("expected incomplete identity error")
	}
	if rec.Status != intake.StatusNeedsReview {
		t.Fatalf("status = %q, want needs_review", rec.Status)
	}
	if _, err := svcs.Patients.GetPatientBySourceID(ctx, "Smith_John__03_15_1985"); err == nil {
		t.Fatal("parked record must not create a patient")
	}

	resolved, err := svcs.Intake.ResolveRecord(ctx, rec.ID, intake.ResolveFields{
		DateOfBirth: ptrStr("3/15/1985"),
	})
	if err != nil {
		t.Fatalf("resolve record: %v", err)
	}
	if resolved.Status != intake.StatusComplete {
		t.Fatalf("resolved status = %q, want complete", resolved.Status)
	}
	if resolved.SourceID == nil || *resolved.SourceID != "Smith_John__03_15_1985" {
		t.Errorf("unexpected source ID after resolution: %v", resolved.SourceID)
	}
	if _, err := svcs.Patients.GetPatientBySourceID(ctx, "Smith_John__03_15_1985"); err != nil {
		t.Errorf("resolution must create the patient: %v", err)
	}
}

func TestPipeline_RegistryFillsMissingDOB(t *testing.T) {
	ctx := context.Background()
	truncateAll(t, ctx)
	svcs := newServices(t)

	// First intake enrolls the patient with a full identity.
	if _, err := svcs.Intake.ProcessTranscript(ctx,
		"patient John Smith born 3/15/1985", intake.ChannelTranscript); err != nil {
		t.Fatalf("seed intake: %v", err)
	}

	// A later transcript without a DOB resolves against the registry.
	rec, err := svcs.Intake.ProcessTranscript(ctx,
		"The patient named John Smith came in for a follow-up.", intake.ChannelTranscript)
	if err != nil {
		t.Fatalf("expected registry lookup to complete the identity: %v", err)
	}
	if rec.Status != intake.StatusComplete {
		t.Fatalf("status = %q, want complete", rec.Status)
	}
	if rec.SourceID == nil || *rec.SourceID != "Smith_John__03_15_1985" {
		t.Errorf("unexpected source ID: %v", rec.SourceID)
	}

	total, err := svcs.Patients.CountPatients(ctx)
	if err != nil {
		t.Fatalf("count patients: %v", err)
	}
	if total != 1 {
		t.Errorf("patient count = %d, want 1", total)
	}
}

func TestPipeline_ManualEnrollmentMergesAttributes(t *testing.T) {
	ctx := context.Background()
	truncateAll(t, ctx)
	svcs := newServices(t)

	if _, err := svcs.Intake.ProcessManual(ctx, intake.ManualEnrollment{
		FirstName:   "Jane",
		LastName:    "Doe",
		DateOfBirth: "7/4/1990",
		Phone:       ptrStr("555-0100"),
	}); err != nil {
		t.Fatalf("first manual enrollment: %v", err)
	}

	// A second form for the same person adds email but must not overwrite
	// the phone already on file.
	if _, err := svcs.Intake.ProcessManual(ctx, intake.ManualEnrollment{
		FirstName:   "Jane",
		LastName:    "Doe",
		DateOfBirth: "07/04/1990",
		Phone:       ptrStr("555-9999"),
		Email:       ptrStr("jane@example.com"),
	}); err != nil {
		t.Fatalf("second manual enrollment: %v", err)
	}

	p, err := svcs.Patients.GetPatientBySourceID(ctx, "Doe_Jane__07_04_1990")
	if err != nil {
		t.Fatalf("get patient: %v", err)
	}
	if p.Phone == nil || *p.Phone != "555-0100" {
		t.Errorf("phone = %v, want the original 555-0100", p.Phone)
	}
	if p.Email == nil || *p.Email != "jane@example.com" {
		t.Errorf("email = %v, want jane@example.com", p.Email)
	}
}

func TestPipeline_DocumentUpload(t *testing.T) {
	ctx := context.Background()
	truncateAll(t, ctx)
	svcs := newServices(t)

	rec, doc, err := svcs.Intake.ProcessDocument(ctx, intake.DocumentUpload{
		FileName:    "referral.txt",
		ContentType: "text/plain",
		Source:      documents.SourceUpload,
		Content:     strings.NewReader("Referral for patient John Smith, DOB 3/15/1985."),
	})
	if err != nil {
		t.Fatalf("process document: %v", err)
	}
	if rec.Status != intake.StatusComplete {
		t.Fatalf("record status = %q, want complete", rec.Status)
	}
	if rec.Channel != intake.ChannelDocument {
		t.Errorf("channel = %q, want document", rec.Channel)
	}

	stored, err := svcs.Documents.GetDocument(ctx, doc.ID)
	if err != nil {
		t.Fatalf("get document: %v", err)
	}
	if stored.Status != documents.StatusExtracted {
		t.Errorf("document status = %q, want extracted", stored.Status)
	}
	if stored.IntakeRecordID == nil || *stored.IntakeRecordID != rec.ID {
		t.Error("document must link its intake record")
	}
	if stored.PatientID == nil {
		t.Error("document must link the identified patient")
	}

	// The stored bytes are retrievable.
	meta, body, err := svcs.Documents.OpenDocument(ctx, doc.ID)
	if err != nil {
		t.Fatalf("open document: %v", err)
	}
	defer body.Close()
	if meta.FileName != "referral.txt" {
		t.Errorf("file name = %q", meta.FileName)
	}
}

func TestPipeline_PatientStatusLifecycle(t *testing.T) {
	ctx := context.Background()
	truncateAll(t, ctx)
	svcs := newServices(t)

	rec, err := svcs.Intake.ProcessTranscript(ctx,
		"patient John Smith born 3/15/1985", intake.ChannelTranscript)
	if err != nil {
		t.Fatalf("process transcript: %v", err)
	}

	p, err := svcs.Patients.ChangeStatus(ctx, *rec.PatientID, patients.StatusEnrolled)
	if err != nil {
		t.Fatalf("change status: %v", err)
	}
	if p.Status != patients.StatusEnrolled {
		t.Errorf("status = %q, want enrolled", p.Status)
	}

	stored, err := svcs.Patients.GetPatient(ctx, p.ID)
	if err != nil {
		t.Fatalf("get patient: %v", err)
	}
	if stored.Status != patients.StatusEnrolled {
		t.Errorf("stored status = %q, want enrolled", stored.Status)
	}

	if _, err := svcs.Patients.ChangeStatus(ctx, p.ID, "discharged"); err == nil {
		t.Error("expected unknown status to be rejected")
	}
}
