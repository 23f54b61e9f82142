package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/docverify/internal/model"
	"github.com/sells-group/docverify/internal/registry"
	"github.com/sells-group/docverify/internal/store"
	"github.com/sells-group/docverify/internal/validate"
	"github.com/sells-group/docverify/internal/verify"
)

const invoiceText = "COMMERCIAL INVOICE No. 222500187 dated 17.07.2025 TOTAL USD 1,250.50"

func newProcessor(t *testing.T, cls *mockClassifier, ext *mockExtractor, st store.Store) *Processor {
	t.Helper()
	reg, err := registry.Default()
	require.NoError(t, err)
	eng, err := verify.Default()
	require.NoError(t, err)
	return NewProcessor(Deps{
		Classifier: cls,
		Extractor:  ext,
		Validator:  validate.New(),
		Registry:   reg,
		Engine:     eng,
		Store:      st,
	})
}

func rec(id string, dt model.DocType, fields map[string]any) *model.Record {
	vals := make(map[string]model.Value, len(fields))
	for k, v := range fields {
		vals[k] = model.Present(v)
	}
	return model.NewRecord(model.RecordParams{ID: id, ShipmentID: "SHP-1", DocType: dt, Fields: vals})
}

func stored(r *model.Record, valid bool, completeness int) *model.StoredDocument {
	return &model.StoredDocument{
		Record:     r,
		Validation: model.ValidationResult{RecordID: r.ID(), DocType: r.DocType(), IsValid: valid, Completeness: completeness},
	}
}

func invoiceFields() map[string]any {
	return map[string]any{
		"invoice_no":     "222500187",
		"invoice_date":   "17.07.2025",
		"exporter_name":  "Nordic Timber AB",
		"consignee_name": "Cargo Pro S.A.R.L",
		"total_amount":   1250.5,
	}
}

func packingFields() map[string]any {
	return map[string]any{
		"invoice_no":     "222500187",
		"invoice_date":   "17.07.2025",
		"exporter_name":  "NORDIC TIMBER AB",
		"consignee_name": "CARGOPRO SARL",
		"total_boxes":    10.0,
	}
}

func TestProcess_ClassifiesExtractsValidatesSaves(t *testing.T) {
	cls := &mockClassifier{}
	ext := &mockExtractor{}
	st := &mockStore{}
	p := newProcessor(t, cls, ext, st)

	cls.On("Classify", mock.Anything, invoiceText, "").
		Return(model.Classification{Type: model.DocCommercialInvoice, Confidence: 0.95, Source: "model"})
	ext.On("ExtractDocument", mock.Anything, invoiceText,
		mock.MatchedBy(func(s *model.DocumentSchema) bool { return s.Type == model.DocCommercialInvoice }), "SHP-1").
		Return(rec("inv-1", model.DocCommercialInvoice, invoiceFields()))
	st.On("SaveDocument", mock.Anything, mock.MatchedBy(func(d *model.StoredDocument) bool {
		return d.Record.ID() == "inv-1" && d.Validation.IsValid && d.Source == "inv.pdf"
	})).Return(nil)

	out, err := p.Process(context.Background(), Input{Text: invoiceText, ShipmentID: "SHP-1", Source: "inv.pdf"})
	require.NoError(t, err)
	assert.True(t, out.Validation.IsValid)
	assert.Equal(t, "inv-1", out.Validation.RecordID)
	assert.Equal(t, "model", out.Classification.Source)
	cls.AssertExpectations(t)
	ext.AssertExpectations(t)
	st.AssertExpectations(t)
}

func TestProcess_UnknownUsesDefaultSchema(t *testing.T) {
	cls := &mockClassifier{}
	ext := &mockExtractor{}
	p := newProcessor(t, cls, ext, nil)

	cls.On("Classify", mock.Anything, "???", "").
		Return(model.Classification{Type: model.DocUnknown, Source: "keyword"})
	ext.On("ExtractDocument", mock.Anything, "???",
		mock.MatchedBy(func(s *model.DocumentSchema) bool { return s.Type == model.DocCommercialInvoice }), "").
		Return(rec("x", model.DocCommercialInvoice, nil))

	out, err := p.Process(context.Background(), Input{Text: "???"})
	require.NoError(t, err)
	assert.False(t, out.Validation.IsValid)
	assert.Contains(t, out.Validation.Errors, "missing critical field: invoice_no")
	assert.Equal(t, model.DocUnknown, out.Classification.Type)
}

func TestProcess_SaveFailure(t *testing.T) {
	cls := &mockClassifier{}
	ext := &mockExtractor{}
	st := &mockStore{}
	p := newProcessor(t, cls, ext, st)

	cls.On("Classify", mock.Anything, mock.Anything, "packing_list").
		Return(model.Classification{Type: model.DocPackingList, Confidence: 0.6, Source: "hint"})
	ext.On("ExtractDocument", mock.Anything, mock.Anything, mock.Anything, "").
		Return(rec("pl-1", model.DocPackingList, packingFields()))
	st.On("SaveDocument", mock.Anything, mock.Anything).Return(errors.New("disk full"))

	out, err := p.Process(context.Background(), Input{Text: "packing", Hint: "packing_list"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "save document")
	require.NotNil(t, out)
	assert.Equal(t, "pl-1", out.Record.ID())
}

func TestVerify_EitherOrder(t *testing.T) {
	p := newProcessor(t, &mockClassifier{}, &mockExtractor{}, nil)
	inv := stored(rec("inv-1", model.DocCommercialInvoice, invoiceFields()), true, 80)
	pl := stored(rec("pl-1", model.DocPackingList, packingFields()), true, 70)

	for _, res := range []model.VerificationResult{p.Verify(inv, pl), p.Verify(pl, inv)} {
		assert.Equal(t, verify.PairInvoicePackingList, res.Pair)
		assert.Equal(t, "inv-1", res.ReferenceID)
		assert.Equal(t, "pl-1", res.DependentID)
		assert.Equal(t, model.StatusVerified, res.Status)
		assert.True(t, res.Verified)
		assert.Equal(t, 4, res.TotalChecks)
	}
}

func TestVerify_InvalidRecordNeedsReview(t *testing.T) {
	p := newProcessor(t, &mockClassifier{}, &mockExtractor{}, nil)
	inv := stored(rec("inv-1", model.DocCommercialInvoice, invoiceFields()), true, 80)
	pl := stored(rec("pl-1", model.DocPackingList, packingFields()), false, 40)

	res := p.Verify(inv, pl)

	assert.Equal(t, model.StatusNeedsReview, res.Status)
	assert.False(t, res.Verified)
	assert.Equal(t, 4, res.PassedChecks)
	assert.NotEmpty(t, res.Checks)
	assert.Contains(t, res.Notes, "needs review: packing_list pl-1 failed validation")
}

func TestVerify_UnsupportedPair(t *testing.T) {
	p := newProcessor(t, &mockClassifier{}, &mockExtractor{}, nil)
	pl := stored(rec("pl-1", model.DocPackingList, packingFields()), true, 70)
	dec := stored(rec("dec-1", model.DocExportDeclaration, nil), true, 70)

	res := p.Verify(pl, dec)
	assert.Equal(t, model.StatusNoData, res.Status)
	assert.Contains(t, res.Notes, "no check list for packing_list and export_declaration")

	res = p.Verify(nil, dec)
	assert.Equal(t, model.StatusNoData, res.Status)
	assert.Zero(t, res.TotalChecks)
}

func TestVerifyPair(t *testing.T) {
	st := &mockStore{}
	p := newProcessor(t, &mockClassifier{}, &mockExtractor{}, st)
	inv := stored(rec("inv-1", model.DocCommercialInvoice, invoiceFields()), true, 80)
	pl := stored(rec("pl-1", model.DocPackingList, packingFields()), true, 70)

	st.On("GetDocument", mock.Anything, "pl-1").Return(pl, nil)
	st.On("GetDocument", mock.Anything, "inv-1").Return(inv, nil)
	st.On("SaveVerification", mock.Anything, mock.MatchedBy(func(r *model.VerificationResult) bool {
		return r.Status == model.StatusVerified && r.ReferenceID == "inv-1"
	})).Return(nil)

	res, err := p.VerifyPair(context.Background(), "pl-1", "inv-1")
	require.NoError(t, err)
	assert.Equal(t, verify.PairInvoicePackingList, res.Pair)
	st.AssertExpectations(t)
}

func TestVerifyPair_Errors(t *testing.T) {
	_, err := newProcessor(t, &mockClassifier{}, &mockExtractor{}, nil).VerifyPair(context.Background(), "a", "b")
	require.Error(t, err)

	st := &mockStore{}
	p := newProcessor(t, &mockClassifier{}, &mockExtractor{}, st)
	st.On("GetDocument", mock.Anything, "a").Return(nil, store.ErrNotFound)

	_, err = p.VerifyPair(context.Background(), "a", "b")
	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func TestVerifyShipment(t *testing.T) {
	st := &mockStore{}
	p := newProcessor(t, &mockClassifier{}, &mockExtractor{}, st)

	weak := stored(rec("inv-0", model.DocCommercialInvoice, map[string]any{"invoice_no": "000"}), false, 20)
	inv := stored(rec("inv-1", model.DocCommercialInvoice, invoiceFields()), true, 80)
	pl := stored(rec("pl-1", model.DocPackingList, packingFields()), true, 70)
	dec := stored(rec("dec-1", model.DocExportDeclaration, map[string]any{
		"invoice_no": "222500187", "exporter_name": "Nordic Timber AB", "total_value": "1250.50",
	}), true, 60)
	awb := stored(rec("awb-1", model.DocAirwayBill, nil), true, 50)

	st.On("ListDocuments", mock.Anything, store.DocumentFilter{ShipmentID: "SHP-1"}).
		Return([]model.StoredDocument{*weak, *pl, *inv, *dec, *awb}, nil)
	st.On("SaveVerification", mock.Anything, mock.Anything).Return(nil).Times(2)

	results, err := p.VerifyShipment(context.Background(), "SHP-1")
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, verify.PairInvoicePackingList, results[0].Pair)
	assert.Equal(t, "inv-1", results[0].ReferenceID)
	assert.Equal(t, verify.PairInvoiceDeclaration, results[1].Pair)
	assert.Equal(t, model.StatusVerified, results[1].Status)
	st.AssertExpectations(t)
}

func TestVerifyShipment_NoData(t *testing.T) {
	tests := []struct {
		name string
		docs []model.StoredDocument
		note string
	}{
		{"empty shipment", []model.StoredDocument{}, "no commercial invoice"},
		{"invoice only", []model.StoredDocument{*stored(rec("inv-1", model.DocCommercialInvoice, invoiceFields()), true, 80)}, "no dependent documents"},
		{"dependents only", []model.StoredDocument{*stored(rec("pl-1", model.DocPackingList, packingFields()), true, 70)}, "no commercial invoice"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := &mockStore{}
			p := newProcessor(t, &mockClassifier{}, &mockExtractor{}, st)
			st.On("ListDocuments", mock.Anything, mock.Anything).Return(tt.docs, nil)
			st.On("SaveVerification", mock.Anything, mock.Anything).Return(nil).Once()

			results, err := p.VerifyShipment(context.Background(), "SHP-1")
			require.NoError(t, err)
			require.Len(t, results, 1)
			assert.Equal(t, model.StatusNoData, results[0].Status)
			assert.False(t, results[0].Verified)
			assert.Zero(t, results[0].TotalChecks)
			assert.Equal(t, "SHP-1", results[0].ShipmentID)
			assert.Contains(t, results[0].Notes, tt.note)
		})
	}
}
