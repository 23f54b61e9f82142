package model

// DocType identifies a trade document category.
type DocType string

const (
	DocCommercialInvoice      DocType = "commercial_invoice"
	DocPackingList            DocType = "packing_list"
	DocExportDeclaration      DocType = "export_declaration"
	DocFumigationCertificate  DocType = "fumigation_certificate"
	DocAirwayBill             DocType = "airway_bill"
	DocExportValueDeclaration DocType = "export_value_declaration"
	DocUnknown                DocType = "unknown"
)

// AllDocTypes returns the closed label set used by the classifier, without
// the unknown sentinel.
func AllDocTypes() []DocType {
	return []DocType{
		DocCommercialInvoice,
		DocPackingList,
		DocExportDeclaration,
		DocFumigationCertificate,
		DocAirwayBill,
		DocExportValueDeclaration,
	}
}

// ParseDocType returns the DocType for s, or DocUnknown when s is not a
// known label.
func ParseDocType(s string) DocType {
	for _, dt := range AllDocTypes() {
		if string(dt) == s {
			return dt
		}
	}
	return DocUnknown
}

// FieldType is the value type of an extracted field.
type FieldType string

const (
	FieldString  FieldType = "string"
	FieldNumber  FieldType = "number"
	FieldBoolean FieldType = "boolean"
	FieldDate    FieldType = "date"
	FieldEnum    FieldType = "enum"
	FieldItems   FieldType = "items"
)

// Valid reports whether t is a known field type.
func (t FieldType) Valid() bool {
	switch t {
	case FieldString, FieldNumber, FieldBoolean, FieldDate, FieldEnum, FieldItems:
		return true
	}
	return false
}

// Tier controls how the validator treats a missing field.
type Tier string

const (
	TierCritical    Tier = "critical"
	TierInformative Tier = "informative"
)

// Structural facts that may appear in a document checklist.
const (
	FactLineItems = "line_items"
	FactSignature = "signature"
)

// FieldSchema describes one extractable field.
type FieldSchema struct {
	Name      string    `yaml:"name" json:"name"`
	Hint      string    `yaml:"hint" json:"hint,omitempty"`
	Type      FieldType `yaml:"type" json:"type"`
	Tier      Tier      `yaml:"tier" json:"tier"`
	Options   []string  `yaml:"options,omitempty" json:"options,omitempty"`
	Canonical string    `yaml:"canonical,omitempty" json:"canonical,omitempty"`
	Min       *float64  `yaml:"min,omitempty" json:"min,omitempty"`
	Max       *float64  `yaml:"max,omitempty" json:"max,omitempty"`
	Pattern   string    `yaml:"pattern,omitempty" json:"pattern,omitempty"`
	Strict    bool      `yaml:"strict,omitempty" json:"strict,omitempty"`
}

// IsCritical reports whether absence of the field invalidates a document.
func (f FieldSchema) IsCritical() bool {
	return f.Tier == TierCritical
}

// Section is a group of fields extracted by one model call.
type Section struct {
	Name             string        `yaml:"name" json:"name"`
	Instruction      string        `yaml:"instruction" json:"instruction"`
	RetryInstruction string        `yaml:"retry_instruction,omitempty" json:"retry_instruction,omitempty"`
	LineItems        bool          `yaml:"line_items,omitempty" json:"line_items,omitempty"`
	Fields           []FieldSchema `yaml:"fields" json:"fields"`
}

// CriticalFields returns the names of the section's critical fields.
func (s Section) CriticalFields() []string {
	var out []string
	for _, f := range s.Fields {
		if f.IsCritical() {
			out = append(out, f.Name)
		}
	}
	return out
}

// DateOrder declares that After must not precede Before within one document.
type DateOrder struct {
	Before string `yaml:"before" json:"before"`
	After  string `yaml:"after" json:"after"`
}

// DocumentSchema is the extraction and validation contract for one DocType.
type DocumentSchema struct {
	Type      DocType     `yaml:"type" json:"type"`
	Sections  []Section   `yaml:"sections" json:"sections"`
	Facts     []string    `yaml:"facts,omitempty" json:"facts,omitempty"`
	DateOrder []DateOrder `yaml:"date_order,omitempty" json:"date_order,omitempty"`
}

// Fields returns every field in section order.
func (d *DocumentSchema) Fields() []FieldSchema {
	var out []FieldSchema
	for _, s := range d.Sections {
		out = append(out, s.Fields...)
	}
	return out
}

// Field returns the field schema with the given name.
func (d *DocumentSchema) Field(name string) (FieldSchema, bool) {
	for _, s := range d.Sections {
		for _, f := range s.Fields {
			if f.Name == name {
				return f, true
			}
		}
	}
	return FieldSchema{}, false
}
