package extract

import (
	"context"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/docverify/internal/model"
)

var signatureCue = regexp.MustCompile(`(?i)\b(signature|signed|authori[sz]ed\s+signatory|stamp(ed)?)\b`)

// DetectSignature reports whether text carries a signature or stamp cue.
func DetectSignature(text string) bool {
	return signatureCue.MatchString(text)
}

// SectionResult is the isolated outcome of one section extraction.
type SectionResult struct {
	Section  string
	Fields   map[string]model.Value
	Attempts int
	Err      error
}

// Extractor runs every section of a document schema concurrently against the
// same text and assembles an immutable record.
type Extractor struct {
	client *Client
	now    func() time.Time
}

// NewExtractor creates an Extractor over client.
func NewExtractor(client *Client) *Extractor {
	return &Extractor{client: client, now: time.Now}
}

// ExtractDocument never fails: a section whose call times out, errors or
// returns unparsable output leaves its fields unresolved.
func (e *Extractor) ExtractDocument(ctx context.Context, text string, schema *model.DocumentSchema, shipmentID string) *model.Record {
	results := e.ExtractSections(ctx, text, schema)

	fields := make(map[string]model.Value)
	outcomes := make([]model.SectionOutcome, 0, len(results))
	for _, r := range results {
		for name, v := range r.Fields {
			fields[name] = v
		}
		outcome := model.SectionOutcome{Name: r.Section, Attempts: r.Attempts}
		if r.Err != nil {
			outcome.Error = r.Err.Error()
		}
		outcomes = append(outcomes, outcome)
	}

	// The excerpt is truncated and signature blocks sit at the end, so the
	// cue is read from the full text here.
	derived := Derive(fields)
	if DetectSignature(text) {
		if derived == nil {
			derived = make(map[string]model.Value, 1)
		}
		derived[model.DerivedSignature] = model.Present(true)
	}

	return model.NewRecord(model.RecordParams{
		ID:         uuid.New().String(),
		ShipmentID: shipmentID,
		DocType:    schema.Type,
		Fields:     fields,
		Derived:    derived,
		Excerpt:    TruncateRunes(text, e.client.cfg.MaxTextChars),
		Sections:   outcomes,
		CreatedAt:  e.now().UTC(),
	})
}

// ExtractSections fans out one goroutine per section. Each goroutine writes
// only its own slot and never returns an error to the group, so a failing
// section cannot cancel its siblings. Results are in schema order.
func (e *Extractor) ExtractSections(ctx context.Context, text string, schema *model.DocumentSchema) []SectionResult {
	results := make([]SectionResult, len(schema.Sections))

	var g errgroup.Group
	for i, section := range schema.Sections {
		g.Go(func() error {
			results[i] = e.extractSection(ctx, text, section, schema.Type)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (e *Extractor) extractSection(ctx context.Context, text string, section model.Section, docType model.DocType) SectionResult {
	raw, attempts, err := e.client.extract(ctx, text, section, section.Instruction)
	if section.LineItems && raw != nil {
		raw, attempts = e.checkLineItems(ctx, text, section, raw, attempts)
	}

	if err != nil {
		zap.L().Warn("extract: section failed",
			zap.String("section", section.Name),
			zap.String("doc_type", string(docType)),
			zap.Error(err),
		)
	}

	fields := make(map[string]model.Value, len(section.Fields))
	for _, f := range section.Fields {
		fields[f.Name] = Normalize(f, raw[f.Name])
	}
	return SectionResult{
		Section:  section.Name,
		Fields:   fields,
		Attempts: attempts,
		Err:      err,
	}
}

// Derive computes item_count and items_total from the line_items field.
// items_total sums each item's amount, or quantity × unit_price when the
// amount is missing, rounded to two places.
func Derive(fields map[string]model.Value) map[string]model.Value {
	v, ok := fields[model.FactLineItems]
	if !ok || !v.IsPresent() {
		return nil
	}
	items := v.Items()

	total := decimal.Zero
	for _, it := range items {
		if amount, ok := parseDecimal(it["amount"]); ok {
			total = total.Add(amount)
			continue
		}
		qty, okQty := parseDecimal(it["quantity"])
		price, okPrice := parseDecimal(it["unit_price"])
		if okQty && okPrice {
			total = total.Add(qty.Mul(price))
		}
	}

	return map[string]model.Value{
		model.DerivedItemCount:  model.Present(float64(len(items))),
		model.DerivedItemsTotal: model.Present(total.Round(2).InexactFloat64()),
	}
}
