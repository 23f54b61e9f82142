package model

import (
	"encoding/json"
	"maps"
	"time"
)

// Derived field names computed at record creation.
const (
	DerivedItemCount  = "item_count"
	DerivedItemsTotal = "items_total"
	DerivedSignature  = "signature_detected"
)

// SectionOutcome is the diagnostic trail of one section extraction.
type SectionOutcome struct {
	Name     string `json:"name"`
	Attempts int    `json:"attempts"`
	Error    string `json:"error,omitempty"`
}

// Record is the structured field map extracted from one raw document. It is
// immutable: accessors return copies, and re-extraction builds a new Record.
type Record struct {
	id         string
	shipmentID string
	docType    DocType
	fields     map[string]Value
	derived    map[string]Value
	excerpt    string
	sections   []SectionOutcome
	createdAt  time.Time
}

// RecordParams carries the inputs of NewRecord.
type RecordParams struct {
	ID         string
	ShipmentID string
	DocType    DocType
	Fields     map[string]Value
	Derived    map[string]Value
	Excerpt    string
	Sections   []SectionOutcome
	CreatedAt  time.Time
}

// NewRecord builds a Record, copying every map and slice in p.
func NewRecord(p RecordParams) *Record {
	created := p.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	r := &Record{
		id:         p.ID,
		shipmentID: p.ShipmentID,
		docType:    p.DocType,
		fields:     make(map[string]Value, len(p.Fields)),
		derived:    make(map[string]Value, len(p.Derived)),
		excerpt:    p.Excerpt,
		sections:   append([]SectionOutcome(nil), p.Sections...),
		createdAt:  created,
	}
	maps.Copy(r.fields, p.Fields)
	maps.Copy(r.derived, p.Derived)
	return r
}

func (r *Record) ID() string           { return r.id }
func (r *Record) ShipmentID() string   { return r.shipmentID }
func (r *Record) DocType() DocType     { return r.docType }
func (r *Record) Excerpt() string      { return r.excerpt }
func (r *Record) CreatedAt() time.Time { return r.createdAt }

// Field returns the named field, unresolved when absent.
func (r *Record) Field(name string) Value {
	if r == nil {
		return Unresolved()
	}
	return r.fields[name]
}

// Derived returns the named derived field, unresolved when absent.
func (r *Record) Derived(name string) Value {
	if r == nil {
		return Unresolved()
	}
	return r.derived[name]
}

// Fields returns a copy of the field map.
func (r *Record) Fields() map[string]Value {
	return maps.Clone(r.fields)
}

// DerivedFields returns a copy of the derived field map.
func (r *Record) DerivedFields() map[string]Value {
	return maps.Clone(r.derived)
}

// Sections returns a copy of the per-section outcomes.
func (r *Record) Sections() []SectionOutcome {
	return append([]SectionOutcome(nil), r.sections...)
}

type recordJSON struct {
	ID         string           `json:"id"`
	ShipmentID string           `json:"shipment_id,omitempty"`
	DocType    DocType          `json:"doc_type"`
	Fields     map[string]Value `json:"fields"`
	Derived    map[string]Value `json:"derived,omitempty"`
	Excerpt    string           `json:"excerpt,omitempty"`
	Sections   []SectionOutcome `json:"sections,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
}

// MarshalJSON implements json.Marshaler.
func (r *Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(recordJSON{
		ID:         r.id,
		ShipmentID: r.shipmentID,
		DocType:    r.docType,
		Fields:     r.fields,
		Derived:    r.derived,
		Excerpt:    r.excerpt,
		Sections:   r.sections,
		CreatedAt:  r.createdAt,
	})
}

// UnmarshalJSON implements json.Unmarshaler. It is meant for decoding
// persisted records; the decoded record is as immutable as any other.
func (r *Record) UnmarshalJSON(data []byte) error {
	var w recordJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*r = *NewRecord(RecordParams(w))
	return nil
}
