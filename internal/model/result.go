package model

import "time"

// Classification is the outcome of document type detection.
type Classification struct {
	Type       DocType `json:"type"`
	Confidence float64 `json:"confidence"`
	Source     string  `json:"source"` // "model", "hint" or "keyword"
}

// ValidationResult scores one record against its schema.
type ValidationResult struct {
	RecordID     string   `json:"record_id"`
	DocType      DocType  `json:"doc_type"`
	IsValid      bool     `json:"is_valid"`
	Errors       []string `json:"errors"`
	Warnings     []string `json:"warnings"`
	Completeness int      `json:"completeness"`
	Filled       int      `json:"filled"`
	Checklist    int      `json:"checklist"`
}

// Status is the rolled-up verdict of a cross-document verification.
type Status string

const (
	StatusVerified             Status = "verified"
	StatusVerifiedWithWarnings Status = "verified_with_warnings"
	StatusPartialMatch         Status = "partial_match"
	StatusNeedsReview          Status = "needs_review"
	StatusFailed               Status = "failed"
	StatusNoData               Status = "no_data"
)

// IsMismatch reports whether the status is a terminal mismatch verdict.
func (s Status) IsMismatch() bool {
	return s == StatusPartialMatch || s == StatusFailed
}

// Check is one named comparison between two records.
type Check struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Note   string `json:"note"`
}

// ComparedField is a snapshot of one compared field pair.
type ComparedField struct {
	Check     string `json:"check"`
	Reference string `json:"reference"`
	Dependent string `json:"dependent"`
}

// VerificationResult is the verdict of comparing a reference record (the
// invoice) with a dependent record.
type VerificationResult struct {
	ID           string          `json:"id"`
	Pair         string          `json:"pair"`
	ReferenceID  string          `json:"reference_id,omitempty"`
	DependentID  string          `json:"dependent_id,omitempty"`
	ShipmentID   string          `json:"shipment_id,omitempty"`
	Verified     bool            `json:"verified"`
	Status       Status          `json:"status"`
	Checks       []Check         `json:"checks"`
	PassedChecks int             `json:"passed_checks"`
	TotalChecks  int             `json:"total_checks"`
	Notes        string          `json:"notes"`
	Compared     []ComparedField `json:"compared"`
	CreatedAt    time.Time       `json:"created_at"`
}

// StoredDocument is a persisted record with its validation result.
type StoredDocument struct {
	Record     *Record          `json:"record"`
	Validation ValidationResult `json:"validation"`
	Source     string           `json:"source,omitempty"`
}
