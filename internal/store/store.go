// Package store persists extracted documents and verification results.
package store

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/sells-group/docverify/internal/model"
)

// ErrNotFound is returned (wrapped) when a document or verification does not exist.
var ErrNotFound = eris.New("store: not found")

const defaultListLimit = 100

// DocumentFilter specifies criteria for listing documents.
type DocumentFilter struct {
	ShipmentID string        `json:"shipment_id,omitempty"`
	DocType    model.DocType `json:"doc_type,omitempty"`
	Limit      int           `json:"limit,omitempty"`
	Offset     int           `json:"offset,omitempty"`
}

// VerificationFilter specifies criteria for listing verification results.
type VerificationFilter struct {
	ShipmentID string       `json:"shipment_id,omitempty"`
	Status     model.Status `json:"status,omitempty"`
	Limit      int          `json:"limit,omitempty"`
	Offset     int          `json:"offset,omitempty"`
}

// Store defines the persistence interface for documents and verdicts.
type Store interface {
	// Documents
	SaveDocument(ctx context.Context, doc *model.StoredDocument) error
	GetDocument(ctx context.Context, id string) (*model.StoredDocument, error)
	ListDocuments(ctx context.Context, filter DocumentFilter) ([]model.StoredDocument, error)

	// Verifications
	SaveVerification(ctx context.Context, res *model.VerificationResult) error
	GetVerification(ctx context.Context, id string) (*model.VerificationResult, error)
	ListVerifications(ctx context.Context, filter VerificationFilter) ([]model.VerificationResult, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

func limitOf(n int) int {
	if n <= 0 {
		return defaultListLimit
	}
	return n
}

func checkDocument(doc *model.StoredDocument) error {
	if doc == nil || doc.Record == nil {
		return eris.New("store: document has no record")
	}
	if doc.Record.ID() == "" {
		return eris.New("store: document record has no id")
	}
	return nil
}

func encodeDocument(doc *model.StoredDocument) (record, validation []byte, err error) {
	record, err = json.Marshal(doc.Record)
	if err != nil {
		return nil, nil, eris.Wrap(err, "store: marshal record")
	}
	validation, err = json.Marshal(doc.Validation)
	if err != nil {
		return nil, nil, eris.Wrap(err, "store: marshal validation")
	}
	return record, validation, nil
}

func decodeDocument(record, validation []byte, source string) (*model.StoredDocument, error) {
	doc := &model.StoredDocument{Record: &model.Record{}, Source: source}
	if err := json.Unmarshal(record, doc.Record); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal record")
	}
	if err := json.Unmarshal(validation, &doc.Validation); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal validation")
	}
	return doc, nil
}

func decodeVerification(data []byte) (*model.VerificationResult, error) {
	var res model.VerificationResult
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal verification")
	}
	return &res, nil
}
