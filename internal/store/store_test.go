package store

import (
	"time"

	"github.com/sells-group/docverify/internal/model"
)

func testDocument(id, shipment string, dt model.DocType, valid bool) *model.StoredDocument {
	rec := model.NewRecord(model.RecordParams{
		ID:         id,
		ShipmentID: shipment,
		DocType:    dt,
		Fields: map[string]model.Value{
			"invoice_no":     model.Present("222500187"),
			"consignee_name": model.Present("Cargo Pro S.A.R.L"),
			"total_amount":   model.Present(1250.5),
			"hs_code":        model.Unresolved(),
		},
		Derived:   map[string]model.Value{model.DerivedItemCount: model.Present(2.0)},
		Excerpt:   "COMMERCIAL INVOICE No. 222500187",
		CreatedAt: time.Date(2025, 7, 17, 9, 0, 0, 0, time.UTC),
	})
	return &model.StoredDocument{
		Record: rec,
		Validation: model.ValidationResult{
			RecordID:     id,
			DocType:      dt,
			IsValid:      valid,
			Errors:       []string{},
			Warnings:     []string{"missing field: hs_code"},
			Completeness: 75,
			Filled:       3,
			Checklist:    4,
		},
		Source: id + ".pdf",
	}
}

func testVerification(id, shipment string, status model.Status) *model.VerificationResult {
	return &model.VerificationResult{
		ID:           id,
		Pair:         "invoice_packing_list",
		ReferenceID:  "inv-1",
		DependentID:  "pl-1",
		ShipmentID:   shipment,
		Verified:     status == model.StatusVerified,
		Status:       status,
		Checks:       []model.Check{{Name: "invoiceNumberMatch", Passed: true, Note: "match (222500187)"}, {Name: "exporterMatch", Passed: false, Note: "mismatch"}},
		PassedChecks: 1,
		TotalChecks:  2,
		Notes:        "invoiceNumberMatch: match (222500187)\nexporterMatch: mismatch",
		Compared:     []model.ComparedField{{Check: "invoiceNumberMatch", Reference: "222500187", Dependent: "222500187"}},
		CreatedAt:    time.Date(2025, 7, 18, 9, 0, 0, 0, time.UTC),
	}
}
