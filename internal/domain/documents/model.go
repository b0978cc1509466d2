package documents

import (
	"time"

	"github.com/google/uuid"
)

// Document source values.
const (
	SourceUpload = "upload"
	SourceInbox  = "inbox"
)

// Extraction lifecycle statuses. A document starts received; extraction
// moves it to extracted, unsupported (no provider configured or content type
// the providers cannot read) or failed.
const (
	StatusReceived    = "received"
	StatusExtracted   = "extracted"
	StatusUnsupported = "unsupported"
	StatusFailed      = "failed"
)

// Document maps to the documents table. The row is metadata only; content
// lives in the blob store under BlobID. PatientID and IntakeRecordID are
// attached after the extraction pipeline identifies who the document belongs
// to and which intake run handled it.
type Document struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	PatientID      *uuid.UUID `db:"patient_id" json:"patient_id,omitempty"`
	IntakeRecordID *uuid.UUID `db:"intake_record_id" json:"intake_record_id,omitempty"`
	FileName       string     `db:"file_name" json:"file_name"`
	ContentType    string     `db:"content_type" json:"content_type"`
	SizeBytes      int64      `db:"size_bytes" json:"size_bytes"`
	Hash           string     `db:"hash" json:"hash"`
	BlobID         string     `db:"blob_id" json:"blob_id"`
	Source         string     `db:"source" json:"source"`
	Status         string     `db:"status" json:"status"`
	ExtractedText  *string    `db:"extracted_text" json:"extracted_text,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
}
