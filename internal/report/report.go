// Package report exports a shipment's documents and verdicts as a workbook.
package report

import (
	"io"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/docverify/internal/model"
)

// Sheet names.
const (
	SheetDocuments     = "Documents"
	SheetFields        = "Fields"
	SheetVerifications = "Verifications"
	SheetChecks        = "Checks"
)

var (
	documentHeader     = []string{"Document ID", "Shipment", "Type", "Source", "Valid", "Completeness %", "Errors", "Warnings", "Created"}
	fieldHeader        = []string{"Document ID", "Type", "Field", "Value", "Derived"}
	verificationHeader = []string{"Verification ID", "Shipment", "Pair", "Reference", "Dependent", "Status", "Verified", "Passed", "Total", "Created"}
	checkHeader        = []string{"Verification ID", "Pair", "Check", "Passed", "Note", "Reference value", "Dependent value"}
)

// Build lays out the workbook: one row per document, per extracted field,
// per verification and per check.
func Build(docs []model.StoredDocument, results []model.VerificationResult) (*xlsx.File, error) {
	f := xlsx.NewFile()

	sheet, err := addSheet(f, SheetDocuments, documentHeader)
	if err != nil {
		return nil, err
	}
	for _, d := range docs {
		rec := d.Record
		row := sheet.AddRow()
		addStrings(row, rec.ID(), rec.ShipmentID(), string(rec.DocType()), d.Source)
		row.AddCell().SetBool(d.Validation.IsValid)
		row.AddCell().SetInt(d.Validation.Completeness)
		addStrings(row,
			strings.Join(d.Validation.Errors, "; "),
			strings.Join(d.Validation.Warnings, "; "),
			rec.CreatedAt().UTC().Format(time.RFC3339),
		)
	}

	sheet, err = addSheet(f, SheetFields, fieldHeader)
	if err != nil {
		return nil, err
	}
	for _, d := range docs {
		addFieldRows(sheet, d.Record, d.Record.Fields(), false)
		addFieldRows(sheet, d.Record, d.Record.DerivedFields(), true)
	}

	sheet, err = addSheet(f, SheetVerifications, verificationHeader)
	if err != nil {
		return nil, err
	}
	for _, r := range results {
		row := sheet.AddRow()
		addStrings(row, r.ID, r.ShipmentID, r.Pair, r.ReferenceID, r.DependentID, string(r.Status))
		row.AddCell().SetBool(r.Verified)
		row.AddCell().SetInt(r.PassedChecks)
		row.AddCell().SetInt(r.TotalChecks)
		addStrings(row, r.CreatedAt.UTC().Format(time.RFC3339))
	}

	sheet, err = addSheet(f, SheetChecks, checkHeader)
	if err != nil {
		return nil, err
	}
	for _, r := range results {
		compared := make(map[string]model.ComparedField, len(r.Compared))
		for _, c := range r.Compared {
			compared[c.Check] = c
		}
		for _, c := range r.Checks {
			row := sheet.AddRow()
			addStrings(row, r.ID, r.Pair, c.Name)
			row.AddCell().SetBool(c.Passed)
			cf := compared[c.Name]
			addStrings(row, c.Note, cf.Reference, cf.Dependent)
		}
	}
	return f, nil
}

// Write builds the workbook and writes it to w.
func Write(w io.Writer, docs []model.StoredDocument, results []model.VerificationResult) error {
	f, err := Build(docs, results)
	if err != nil {
		return err
	}
	return eris.Wrap(f.Write(w), "report: write workbook")
}

// Save builds the workbook and saves it to path.
func Save(path string, docs []model.StoredDocument, results []model.VerificationResult) error {
	f, err := Build(docs, results)
	if err != nil {
		return err
	}
	return eris.Wrapf(f.Save(path), "report: save %s", path)
}

func addSheet(f *xlsx.File, name string, header []string) (*xlsx.Sheet, error) {
	sheet, err := f.AddSheet(name)
	if err != nil {
		return nil, eris.Wrapf(err, "report: add sheet %s", name)
	}
	addStrings(sheet.AddRow(), header...)
	return sheet, nil
}

func addStrings(row *xlsx.Row, values ...string) {
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}

func addFieldRows(sheet *xlsx.Sheet, rec *model.Record, fields map[string]model.Value, derived bool) {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		v := fields[name]
		if !v.IsPresent() {
			continue
		}
		row := sheet.AddRow()
		addStrings(row, rec.ID(), string(rec.DocType()), name, renderValue(v))
		row.AddCell().SetBool(derived)
	}
}

// renderValue flattens line items to one "description (hs_code) x qty" entry
// per line.
func renderValue(v model.Value) string {
	items := v.Items()
	if items == nil {
		return v.String()
	}
	lines := make([]string, 0, len(items))
	for _, it := range items {
		desc, _ := it["description"].(string)
		line := desc
		if hs := model.Present(it["hs_code"]).String(); hs != "" {
			line += " (" + hs + ")"
		}
		if qty := model.Present(it["quantity"]).String(); qty != "" {
			line += " x " + qty
		}
		lines = append(lines, strings.TrimSpace(line))
	}
	return strings.Join(lines, "\n")
}
