package intake

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jeffbander/leqvio-patient-management-sub002/internal/domain/documents"
	"github.com/jeffbander/leqvio-patient-management-sub002/internal/domain/patients"
	"github.com/jeffbander/leqvio-patient-management-sub002/internal/extraction"
	"github.com/jeffbander/leqvio-patient-management-sub002/internal/platform/blobstore"
	"github.com/jeffbander/leqvio-patient-management-sub002/internal/platform/chain"
	"github.com/jeffbander/leqvio-patient-management-sub002/internal/platform/docai"
	"github.com/jeffbander/leqvio-patient-management-sub002/internal/platform/metrics"
)

// ErrNotReviewable is returned when resolution is attempted on a record that
// is not parked in needs_review.
var ErrNotReviewable = errors.New("record is not awaiting review")

// Service runs the intake pipeline: extract an identity from whatever the
// channel delivered, resolve what the patterns missed, persist the attempt,
// and for completed identities upsert the patient and hand off to the
// automation chain. An incomplete identity never reaches the chain.
type Service struct {
	repo      RecordRepository
	patients  *patients.Service
	documents *documents.Service
	resolver  extraction.Resolver
	extractor docai.Extractor
	chain     chain.Triggerer
	logger    zerolog.Logger
}

func NewService(repo RecordRepository, ps *patients.Service, ds *documents.Service,
	resolver extraction.Resolver, extractor docai.Extractor, trigger chain.Triggerer,
	logger zerolog.Logger) *Service {
	return &Service{
		repo:      repo,
		patients:  ps,
		documents: ds,
		resolver:  resolver,
		extractor: extractor,
		chain:     trigger,
		logger:    logger,
	}
}

// ManualEnrollment is the operator-entered enrollment form. The identity
// triple is mandatory; everything else is carried onto the patient row.
type ManualEnrollment struct {
	FirstName         string  `json:"first_name"`
	LastName          string  `json:"last_name"`
	DateOfBirth       string  `json:"date_of_birth"`
	Phone             *string `json:"phone,omitempty"`
	Email             *string `json:"email,omitempty"`
	AddressLine1      *string `json:"address_line1,omitempty"`
	City              *string `json:"city,omitempty"`
	State             *string `json:"state,omitempty"`
	PostalCode        *string `json:"postal_code,omitempty"`
	InsurancePlan     *string `json:"insurance_plan,omitempty"`
	InsuranceMemberID *string `json:"insurance_member_id,omitempty"`
	InsuranceGroup    *string `json:"insurance_group,omitempty"`
	PrescriberName    *string `json:"prescriber_name,omitempty"`
	PrescriberNPI     *string `json:"prescriber_npi,omitempty"`
}

// DocumentUpload is an incoming file plus where it came from.
type DocumentUpload struct {
	FileName    string
	ContentType string
	Source      string // documents.SourceUpload or documents.SourceInbox
	Content     io.Reader
}

// ResolveFields carries the operator-supplied values that complete a
// needs_review record.
type ResolveFields struct {
	FirstName   *string `json:"first_name,omitempty"`
	LastName    *string `json:"last_name,omitempty"`
	DateOfBirth *string `json:"date_of_birth,omitempty"`
}

// manualDOB accepts M/D/YYYY with optional zero padding. Two-digit years are
// rejected rather than guessed: on a typed form there is no transcription
// context to justify expanding them.
var manualDOB = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{4})$`)

func normalizeManualDOB(s string) (string, error) {
	m := manualDOB.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return "", fmt.Errorf("date of birth must be M/D/YYYY or MM/DD/YYYY with a 4-digit year: %s", s)
	}
	return pad2(m[1]) + "/" + pad2(m[2]) + "/" + m[3], nil
}

func pad2(s string) string {
	if len(s) == 1 {
		return "0" + s
	}
	return s
}

func strVal(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func has(s *string) bool { return s != nil && *s != "" }

// ProcessTranscript runs the pipeline on free text. The returned error is an
// *extraction.IncompleteIdentityError when the record was parked for review;
// the record itself is persisted and returned in both outcomes.
func (s *Service) ProcessTranscript(ctx context.Context, text, channel string) (*Record, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("transcript text is required")
	}
	if channel == "" {
		channel = ChannelTranscript
	}

	id := extraction.Extract(text)
	id, rerr := extraction.ResolveIncomplete(ctx, id, s.resolver)
	return s.finishIntake(ctx, channel, text, id, rerr, nil, identityFields(id))
}

// ProcessManual enrolls a typed form. All three identity fields are required
// up front, so the outcome is complete unless the pipeline itself fails.
func (s *Service) ProcessManual(ctx context.Context, form ManualEnrollment) (*Record, error) {
	form.FirstName = strings.TrimSpace(form.FirstName)
	form.LastName = strings.TrimSpace(form.LastName)
	if form.FirstName == "" || form.LastName == "" || strings.TrimSpace(form.DateOfBirth) == "" {
		return nil, fmt.Errorf("first name, last name and date of birth are required")
	}
	dob, err := normalizeManualDOB(form.DateOfBirth)
	if err != nil {
		return nil, err
	}

	id := extraction.NewIdentity(&form.FirstName, &form.LastName, &dob)

	decorate := func(p *patients.Patient) {
		p.Phone = form.Phone
		p.Email = form.Email
		p.AddressLine1 = form.AddressLine1
		p.City = form.City
		p.State = form.State
		p.PostalCode = form.PostalCode
		p.InsurancePlan = form.InsurancePlan
		p.InsuranceMemberID = form.InsuranceMemberID
		p.InsuranceGroup = form.InsuranceGroup
		p.PrescriberName = form.PrescriberName
		p.PrescriberNPI = form.PrescriberNPI
	}

	structured := identityFields(id)
	addField(structured, "phone", form.Phone)
	addField(structured, "email", form.Email)
	addField(structured, "address_line1", form.AddressLine1)
	addField(structured, "city", form.City)
	addField(structured, "state", form.State)
	addField(structured, "postal_code", form.PostalCode)
	addField(structured, "insurance_plan", form.InsurancePlan)
	addField(structured, "insurance_member_id", form.InsuranceMemberID)
	addField(structured, "insurance_group", form.InsuranceGroup)
	addField(structured, "prescriber_name", form.PrescriberName)
	addField(structured, "prescriber_npi", form.PrescriberNPI)

	return s.finishIntake(ctx, ChannelManual, "", id, nil, decorate, structured)
}

// ProcessDocument stores the file, pulls text and pre-structured fields out
// of it, and runs the transcript pipeline on the result. The document row is
// linked to the intake record and, when the identity completed, to the
// patient.
func (s *Service) ProcessDocument(ctx context.Context, upload DocumentUpload) (*Record, *documents.Document, error) {
	data, err := io.ReadAll(io.LimitReader(upload.Content, blobstore.MaxFileSize+1))
	if err != nil {
		return nil, nil, err
	}
	if int64(len(data)) > blobstore.MaxFileSize {
		return nil, nil, blobstore.ErrFileTooLarge
	}

	doc, err := s.documents.StoreDocument(ctx, upload.FileName, upload.ContentType, upload.Source, bytes.NewReader(data))
	if err != nil {
		return nil, nil, err
	}

	channel := ChannelDocument
	if upload.Source == documents.SourceInbox {
		channel = ChannelInbox
	}

	text, docFields, derr := s.extractDocumentText(ctx, doc, data, upload.ContentType)
	if derr != nil {
		rec := &Record{Channel: channel, Status: StatusFailed}
		msg := "field extraction failed: " + derr.Error()
		rec.Error = &msg
		if err := s.repo.Create(ctx, rec); err != nil {
			return nil, doc, err
		}
		s.linkDocument(ctx, doc, rec)
		metrics.RecordIntakeRequest(channel, StatusFailed)
		return rec, doc, derr
	}

	id := extraction.Extract(text)
	resolver := s.resolver
	if docFields != nil {
		resolver = fallbackResolver{
			primary:   extraction.StaticResolver(docFields.IdentityFields()),
			secondary: s.resolver,
		}
	}
	id, rerr := extraction.ResolveIncomplete(ctx, id, resolver)

	decorate := func(p *patients.Patient) {
		if docFields == nil {
			return
		}
		p.Phone = docFields.Phone
		p.Email = docFields.Email
		p.AddressLine1 = docFields.Address
		p.InsurancePlan = docFields.InsurancePlan
		p.InsuranceMemberID = docFields.InsuranceMemberID
		p.InsuranceGroup = docFields.InsuranceGroupID
		p.PrescriberName = docFields.PrescriberName
	}

	structured := identityFields(id)
	structured["document_id"] = doc.ID.String()
	structured["file_name"] = doc.FileName
	if docFields != nil {
		addField(structured, "phone", docFields.Phone)
		addField(structured, "email", docFields.Email)
		addField(structured, "address", docFields.Address)
		addField(structured, "insurance_plan", docFields.InsurancePlan)
		addField(structured, "insurance_member_id", docFields.InsuranceMemberID)
		addField(structured, "insurance_group", docFields.InsuranceGroupID)
		addField(structured, "prescriber_name", docFields.PrescriberName)
	}

	rec, err := s.finishIntake(ctx, channel, text, id, rerr, decorate, structured)
	if rec != nil {
		s.linkDocument(ctx, doc, rec)
	}
	return rec, doc, err
}

// ResolveRecord completes a parked needs_review record with operator-supplied
// fields: the stored partial identity is merged, the key derived, the patient
// upserted and the chain triggered, exactly as if the identity had resolved
// on first pass.
func (s *Service) ResolveRecord(ctx context.Context, id uuid.UUID, fields ResolveFields) (*Record, error) {
	rec, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.Status != StatusNeedsReview {
		return rec, ErrNotReviewable
	}

	supplied := extraction.Fields{FirstName: fields.FirstName, LastName: fields.LastName}
	if has(fields.DateOfBirth) {
		dob, err := normalizeManualDOB(*fields.DateOfBirth)
		if err != nil {
			return rec, err
		}
		supplied.DateOfBirth = &dob
	}

	partial := extraction.NewIdentity(rec.FirstName, rec.LastName, rec.DateOfBirth)
	merged, rerr := extraction.ResolveIncomplete(ctx, partial, extraction.StaticResolver(supplied))

	rec.FirstName = merged.FirstName
	rec.LastName = merged.LastName
	rec.DateOfBirth = merged.DateOfBirth
	rec.Confidence = merged.Confidence
	rec.SourceID = merged.CanonicalKey

	if rerr != nil {
		msg := rerr.Error()
		rec.Error = &msg
		if err := s.repo.Update(ctx, rec); err != nil {
			return nil, err
		}
		return rec, rerr
	}

	patient, err := patients.FromIdentity(merged)
	if err != nil {
		return nil, err
	}
	if _, err := s.patients.UpsertPatient(ctx, patient); err != nil {
		// Stay in needs_review so the operator can retry the resolution.
		msg := "patient upsert failed: " + err.Error()
		rec.Error = &msg
		if uerr := s.repo.Update(ctx, rec); uerr != nil {
			s.logger.Error().Err(uerr).Str("record_id", rec.ID.String()).
				Msg("intake: record update failed after upsert failure")
		}
		return rec, err
	}

	rec.PatientID = &patient.ID
	rec.Status = StatusComplete
	rec.Error = nil
	s.triggerChain(ctx, rec, rec.RawText, identityFields(merged))

	if err := s.repo.Update(ctx, rec); err != nil {
		return nil, err
	}
	metrics.RecordIntakeRequest(rec.Channel, StatusComplete)
	s.logger.Info().Str("channel", rec.Channel).Str("source_id", strVal(rec.SourceID)).
		Msg("intake record resolved")
	return rec, nil
}

func (s *Service) GetRecord(ctx context.Context, id uuid.UUID) (*Record, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) ListRecords(ctx context.Context, limit, offset int, channel, status string) ([]*Record, int, error) {
	switch channel {
	case "", ChannelManual, ChannelTranscript, ChannelDocument, ChannelDictation, ChannelInbox:
	default:
		return nil, 0, fmt.Errorf("unknown channel filter: %s", channel)
	}
	switch status {
	case "", StatusComplete, StatusNeedsReview, StatusFailed:
	default:
		return nil, 0, fmt.Errorf("unknown status filter: %s", status)
	}
	return s.repo.List(ctx, limit, offset, channel, status)
}

func (s *Service) ListRecordsBySourceID(ctx context.Context, sourceID string) ([]*Record, error) {
	return s.repo.ListBySourceID(ctx, sourceID)
}

// finishIntake persists the intake outcome. For a resolved identity the
// patient is upserted (decorate fills channel-specific attributes first) and
// the chain is triggered; an incomplete identity is parked for review and
// never triggers.
func (s *Service) finishIntake(ctx context.Context, channel, text string, id extraction.Identity,
	rerr error, decorate func(*patients.Patient), structured map[string]interface{}) (*Record, error) {
	metrics.RecordExtractionConfidence(id.Confidence)

	rec := &Record{
		Channel:     channel,
		RawText:     text,
		FirstName:   id.FirstName,
		LastName:    id.LastName,
		DateOfBirth: id.DateOfBirth,
		Confidence:  id.Confidence,
		SourceID:    id.CanonicalKey,
	}

	if rerr != nil {
		rec.Status = StatusNeedsReview
		msg := rerr.Error()
		rec.Error = &msg
		if err := s.repo.Create(ctx, rec); err != nil {
			return nil, err
		}
		metrics.RecordIntakeRequest(channel, StatusNeedsReview)
		s.logger.Info().Str("channel", channel).Strs("missing", rec.MissingFields()).
			Msg("intake parked for review")
		return rec, rerr
	}

	patient, err := patients.FromIdentity(id)
	if err != nil {
		return nil, err
	}
	if decorate != nil {
		decorate(patient)
	}

	created, err := s.patients.UpsertPatient(ctx, patient)
	if err != nil {
		rec.Status = StatusFailed
		msg := "patient upsert failed: " + err.Error()
		rec.Error = &msg
		if cerr := s.repo.Create(ctx, rec); cerr != nil {
			s.logger.Error().Err(cerr).Str("channel", channel).
				Msg("intake: record write failed after upsert failure")
		}
		metrics.RecordIntakeRequest(channel, StatusFailed)
		return rec, err
	}

	rec.PatientID = &patient.ID
	rec.Status = StatusComplete
	s.triggerChain(ctx, rec, text, structured)

	if err := s.repo.Create(ctx, rec); err != nil {
		return nil, err
	}
	metrics.RecordIntakeRequest(channel, StatusComplete)
	s.logger.Info().Str("channel", channel).Str("source_id", strVal(rec.SourceID)).
		Bool("new_patient", created).Msg("intake complete")
	return rec, nil
}

// triggerChain hands a completed intake to the automation chain. Failures
// are recorded on the record and in metrics but do not fail the intake: the
// patient row is already written and the trigger can be replayed.
func (s *Service) triggerChain(ctx context.Context, rec *Record, text string, structured map[string]interface{}) {
	res, err := s.chain.Trigger(ctx, chain.TriggerRequest{
		SourceID:         strVal(rec.SourceID),
		TranscriptText:   text,
		StructuredFields: structured,
	})
	switch {
	case errors.Is(err, chain.ErrDisabled):
		metrics.RecordChainTrigger("disabled")
	case err != nil:
		metrics.RecordChainTrigger("failed")
		msg := "chain trigger failed: " + err.Error()
		rec.Error = &msg
		s.logger.Warn().Err(err).Str("source_id", strVal(rec.SourceID)).Msg("chain trigger failed")
	default:
		metrics.RecordChainTrigger("triggered")
		rec.ChainRunID = &res.ChainRunID
		rec.ChainViewURL = &res.ViewURL
	}
}

// extractDocumentText decides how to read a stored document: plain text is
// used as-is, anything else goes through the configured extraction provider.
// The document's lifecycle status is advanced as a side effect.
func (s *Service) extractDocumentText(ctx context.Context, doc *documents.Document, data []byte, contentType string) (string, *docai.Fields, error) {
	if contentType == "text/plain" {
		text := string(data)
		s.markDocument(ctx, doc, documents.StatusExtracted, &text)
		return text, nil, nil
	}

	if s.extractor == nil {
		s.markDocument(ctx, doc, documents.StatusUnsupported, nil)
		return "", nil, nil
	}

	res, err := s.extractor.ExtractFields(ctx, docai.Request{ImageData: data, ImageMIME: contentType})
	if err != nil {
		metrics.RecordDocAIRequest(s.extractor.Name(), "error")
		s.markDocument(ctx, doc, documents.StatusFailed, nil)
		return "", nil, err
	}
	metrics.RecordDocAIRequest(s.extractor.Name(), "ok")

	var transcript *string
	if res.TranscriptText != "" {
		transcript = &res.TranscriptText
	}
	s.markDocument(ctx, doc, documents.StatusExtracted, transcript)
	return res.TranscriptText, &res.Fields, nil
}

func (s *Service) markDocument(ctx context.Context, doc *documents.Document, status string, text *string) {
	if err := s.documents.RecordExtractionOutcome(ctx, doc.ID, status, text); err != nil {
		s.logger.Warn().Err(err).Str("document_id", doc.ID.String()).
			Msg("document status update failed")
		return
	}
	doc.Status = status
	doc.ExtractedText = text
}

func (s *Service) linkDocument(ctx context.Context, doc *documents.Document, rec *Record) {
	if err := s.documents.AttachIntakeRecord(ctx, doc.ID, rec.ID); err != nil {
		s.logger.Warn().Err(err).Str("document_id", doc.ID.String()).
			Msg("document record link failed")
	} else {
		doc.IntakeRecordID = &rec.ID
	}
	if rec.PatientID != nil {
		if err := s.documents.AttachPatient(ctx, doc.ID, *rec.PatientID); err != nil {
			s.logger.Warn().Err(err).Str("document_id", doc.ID.String()).
				Msg("document patient link failed")
		} else {
			doc.PatientID = rec.PatientID
		}
	}
}

// fallbackResolver consults pre-structured document fields first and asks
// the secondary resolver only for slots the document did not cover. It runs
// as the single resolver invocation of an extraction.
type fallbackResolver struct {
	primary   extraction.Resolver
	secondary extraction.Resolver
}

func (r fallbackResolver) ResolveMissing(ctx context.Context, partial extraction.Identity) (extraction.Fields, error) {
	fields, err := r.primary.ResolveMissing(ctx, partial)
	if err != nil {
		return extraction.Fields{}, err
	}

	merged := partial
	if merged.FirstName == nil && has(fields.FirstName) {
		merged.FirstName = fields.FirstName
	}
	if merged.LastName == nil && has(fields.LastName) {
		merged.LastName = fields.LastName
	}
	if merged.DateOfBirth == nil && has(fields.DateOfBirth) {
		merged.DateOfBirth = fields.DateOfBirth
	}
	if r.secondary == nil || merged.Complete() {
		return fields, nil
	}

	more, err := r.secondary.ResolveMissing(ctx, merged)
	if err != nil {
		return fields, err
	}
	if !has(fields.FirstName) {
		fields.FirstName = more.FirstName
	}
	if !has(fields.LastName) {
		fields.LastName = more.LastName
	}
	if !has(fields.DateOfBirth) {
		fields.DateOfBirth = more.DateOfBirth
	}
	return fields, nil
}

func identityFields(id extraction.Identity) map[string]interface{} {
	return map[string]interface{}{
		"first_name":    strVal(id.FirstName),
		"last_name":     strVal(id.LastName),
		"date_of_birth": strVal(id.DateOfBirth),
		"confidence":    id.Confidence,
	}
}

func addField(m map[string]interface{}, key string, v *string) {
	if has(v) {
		m[key] = *v
	}
}
