package report

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/docverify/internal/model"
)

func fixtures() ([]model.StoredDocument, []model.VerificationResult) {
	inv := model.NewRecord(model.RecordParams{
		ID:         "inv-1",
		ShipmentID: "SHP-1",
		DocType:    model.DocCommercialInvoice,
		Fields: map[string]model.Value{
			"invoice_no":   model.Present("222500187"),
			"total_amount": model.Present(1250.5),
			"incoterm":     model.Unresolved(),
			"line_items": model.Present([]any{
				map[string]any{"description": "Pine boards", "hs_code": "4407.11", "quantity": 12.0},
				map[string]any{"description": "Spruce beams"},
			}),
		},
		Derived:   map[string]model.Value{model.DerivedItemCount: model.Present(2.0)},
		CreatedAt: time.Date(2025, 7, 17, 9, 0, 0, 0, time.UTC),
	})
	docs := []model.StoredDocument{{
		Record: inv,
		Validation: model.ValidationResult{
			RecordID: "inv-1", IsValid: false, Completeness: 64,
			Errors: []string{"missing critical field: exporter_name"}, Warnings: []string{"missing field: incoterm", "no signature detected"},
		},
		Source: "invoice.pdf",
	}}
	results := []model.VerificationResult{{
		ID: "v-1", Pair: "invoice_packing_list", ShipmentID: "SHP-1", ReferenceID: "inv-1", DependentID: "pl-1",
		Status: model.StatusVerifiedWithWarnings, Verified: true, PassedChecks: 4, TotalChecks: 5,
		Checks: []model.Check{
			{Name: "invoiceNumberMatch", Passed: true, Note: "match (222500187)"},
			{Name: "consigneeMatch", Passed: false, Note: "near match (similarity 0.70)"},
		},
		Compared: []model.ComparedField{{Check: "invoiceNumberMatch", Reference: "222500187", Dependent: "222500187"}},
	}}
	return docs, results
}

func cellValues(row *xlsx.Row) []string {
	out := make([]string, len(row.Cells))
	for i, c := range row.Cells {
		out[i] = c.String()
	}
	return out
}

func TestBuild(t *testing.T) {
	docs, results := fixtures()
	f, err := Build(docs, results)
	require.NoError(t, err)

	require.Len(t, f.Sheets, 4)
	assert.Equal(t, SheetDocuments, f.Sheets[0].Name)

	documents := f.Sheet[SheetDocuments]
	require.Len(t, documents.Rows, 2)
	assert.Equal(t, documentHeader, cellValues(documents.Rows[0]))
	row := cellValues(documents.Rows[1])
	assert.Equal(t, []string{"inv-1", "SHP-1", "commercial_invoice", "invoice.pdf"}, row[:4])
	assert.Equal(t, "64", row[5])
	assert.Equal(t, "missing field: incoterm; no signature detected", row[7])

	fields := f.Sheet[SheetFields]
	require.Len(t, fields.Rows, 5, "header, 3 present fields, 1 derived")
	assert.Equal(t, "invoice_no", cellValues(fields.Rows[1])[2])
	assert.Equal(t, "Pine boards (4407.11) x 12\nSpruce beams", cellValues(fields.Rows[2])[3])
	assert.Equal(t, model.DerivedItemCount, cellValues(fields.Rows[4])[2])

	checks := f.Sheet[SheetChecks]
	require.Len(t, checks.Rows, 3)
	assert.Equal(t, []string{"v-1", "invoice_packing_list", "invoiceNumberMatch"}, cellValues(checks.Rows[1])[:3])
	assert.Equal(t, "222500187", cellValues(checks.Rows[1])[5])
	assert.Equal(t, "", cellValues(checks.Rows[2])[5])
}

func TestBuild_Empty(t *testing.T) {
	f, err := Build(nil, nil)
	require.NoError(t, err)
	for _, s := range f.Sheets {
		assert.Len(t, s.Rows, 1, s.Name)
	}
}

func TestSaveAndReopen(t *testing.T) {
	docs, results := fixtures()
	path := filepath.Join(t.TempDir(), "SHP-1.xlsx")
	require.NoError(t, Save(path, docs, results))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	ver := f.Sheet[SheetVerifications]
	require.NotNil(t, ver)
	require.Len(t, ver.Rows, 2)
	assert.Equal(t, "verified_with_warnings", cellValues(ver.Rows[1])[5])
}

func TestWrite(t *testing.T) {
	docs, results := fixtures()
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, docs, results))
	assert.Greater(t, buf.Len(), 0)
}
