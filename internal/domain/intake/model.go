package intake

import (
	"time"

	"github.com/google/uuid"
)

// Intake channels. Every enrollment enters through exactly one of these.
const (
	ChannelManual     = "manual"
	ChannelTranscript = "transcript"
	ChannelDocument   = "document"
	ChannelDictation  = "dictation"
	ChannelInbox      = "inbox"
)

// Record statuses. complete means the identity resolved and the patient row
// was written; needs_review parks the record for manual completion; failed
// marks a pipeline error after which the input may be submitted again.
const (
	StatusComplete    = "complete"
	StatusNeedsReview = "needs_review"
	StatusFailed      = "failed"
)

// Record maps to the intake_records table: one row per intake attempt, in
// any state. The extracted identity fields are kept even when incomplete so
// a reviewer sees exactly what the pipeline found, and SourceID is only set
// once the identity completed and the canonical key existed.
type Record struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	Channel      string     `db:"channel" json:"channel"`
	Status       string     `db:"status" json:"status"`
	RawText      string     `db:"raw_text" json:"raw_text"`
	FirstName    *string    `db:"first_name" json:"first_name,omitempty"`
	LastName     *string    `db:"last_name" json:"last_name,omitempty"`
	DateOfBirth  *string    `db:"date_of_birth" json:"date_of_birth,omitempty"`
	Confidence   float64    `db:"confidence" json:"confidence"`
	SourceID     *string    `db:"source_id" json:"source_id,omitempty"`
	PatientID    *uuid.UUID `db:"patient_id" json:"patient_id,omitempty"`
	ChainRunID   *string    `db:"chain_run_id" json:"chain_run_id,omitempty"`
	ChainViewURL *string    `db:"chain_view_url" json:"chain_view_url,omitempty"`
	Error        *string    `db:"error" json:"error,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
}

// MissingFields lists the identity fields the record still lacks, using the
// same JSON names the extraction layer reports.
func (r *Record) MissingFields() []string {
	var missing []string
	if r.FirstName == nil {
		missing = append(missing, "first_name")
	}
	if r.LastName == nil {
		missing = append(missing, "last_name")
	}
	if r.DateOfBirth == nil {
		missing = append(missing, "date_of_birth")
	}
	return missing
}
