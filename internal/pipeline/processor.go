// Package pipeline wires classification, extraction, validation, persistence
// and cross-document verification into one document flow.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/docverify/internal/model"
	"github.com/sells-group/docverify/internal/registry"
	"github.com/sells-group/docverify/internal/store"
	"github.com/sells-group/docverify/internal/verify"
)

// Classifier tags document text with a type. It never fails.
type Classifier interface {
	Classify(ctx context.Context, text, hint string) model.Classification
}

// Extractor turns text into a record for a schema. It never fails.
type Extractor interface {
	ExtractDocument(ctx context.Context, text string, schema *model.DocumentSchema, shipmentID string) *model.Record
}

// Validator scores a record against its schema.
type Validator interface {
	Validate(rec *model.Record, schema *model.DocumentSchema) model.ValidationResult
}

// Deps are the collaborators of a Processor. Store may be nil, in which case
// nothing is persisted and the verification lookups are unavailable.
type Deps struct {
	Classifier  Classifier
	Extractor   Extractor
	Validator   Validator
	Registry    *registry.Registry
	Engine      *verify.Engine
	Store       store.Store
	DefaultType model.DocType
}

// Processor runs documents through the pipeline.
type Processor struct {
	classifier  Classifier
	extractor   Extractor
	validator   Validator
	registry    *registry.Registry
	engine      *verify.Engine
	store       store.Store
	defaultType model.DocType
}

// NewProcessor creates a Processor.
func NewProcessor(d Deps) *Processor {
	dt := d.DefaultType
	if dt == "" || dt == model.DocUnknown {
		dt = model.DocCommercialInvoice
	}
	return &Processor{
		classifier:  d.Classifier,
		extractor:   d.Extractor,
		validator:   d.Validator,
		registry:    d.Registry,
		engine:      d.Engine,
		store:       d.Store,
		defaultType: dt,
	}
}

// Input is one raw document.
type Input struct {
	Text       string `json:"text"`
	Hint       string `json:"hint,omitempty"`
	ShipmentID string `json:"shipment_id,omitempty"`
	Source     string `json:"source,omitempty"`
}

// Outcome is the processed document.
type Outcome struct {
	Record         *model.Record          `json:"record"`
	Validation     model.ValidationResult `json:"validation"`
	Classification model.Classification   `json:"classification"`
	Source         string                 `json:"source,omitempty"`
}

// Stored returns the outcome in its persisted shape.
func (o *Outcome) Stored() *model.StoredDocument {
	return &model.StoredDocument{Record: o.Record, Validation: o.Validation, Source: o.Source}
}

// Process classifies, extracts and validates one document, then saves it when
// a store is configured. Extraction gaps are reported in the validation
// result; the error is non-nil only when no schema applies or the save fails.
func (p *Processor) Process(ctx context.Context, in Input) (*Outcome, error) {
	start := time.Now()
	log := zap.L().With(
		zap.String("shipment_id", in.ShipmentID),
		zap.String("source", in.Source),
		zap.Int("text_len", len(in.Text)),
	)

	cls := p.classifier.Classify(ctx, in.Text, in.Hint)
	schema, used, err := p.registry.Resolve(cls.Type, p.defaultType)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: resolve schema")
	}
	if used != cls.Type {
		log.Info("pipeline: using default schema",
			zap.String("classified", string(cls.Type)),
			zap.String("schema", string(used)),
		)
	}

	rec := p.extractor.ExtractDocument(ctx, in.Text, schema, in.ShipmentID)
	val := p.validator.Validate(rec, schema)

	out := &Outcome{Record: rec, Validation: val, Classification: cls, Source: in.Source}
	log.Info("pipeline: document processed",
		zap.String("record_id", rec.ID()),
		zap.String("doc_type", string(rec.DocType())),
		zap.String("classified_by", cls.Source),
		zap.Bool("valid", val.IsValid),
		zap.Int("completeness", val.Completeness),
		zap.Duration("elapsed", time.Since(start)),
	)

	if p.store != nil {
		if err := p.store.SaveDocument(ctx, out.Stored()); err != nil {
			return out, eris.Wrap(err, "pipeline: save document")
		}
	}
	return out, nil
}

// Verify compares two processed documents in either order. When either
// failed validation the verdict is needs_review and not verified, with the
// checks still attached.
func (p *Processor) Verify(a, b *model.StoredDocument) model.VerificationResult {
	if a == nil || b == nil || a.Record == nil || b.Record == nil {
		return p.engine.Verify("", nil, nil)
	}
	cl, swapped, ok := p.engine.PairFor(a.Record.DocType(), b.Record.DocType())
	if !ok {
		return p.engine.NoData("", a.Record.ShipmentID(),
			fmt.Sprintf("no check list for %s and %s", a.Record.DocType(), b.Record.DocType()))
	}
	ref, dep := a, b
	if swapped {
		ref, dep = b, a
	}

	res := p.engine.Verify(cl.Pair, ref.Record, dep.Record)
	applyReview(&res, ref, dep)
	return res
}

func applyReview(res *model.VerificationResult, docs ...*model.StoredDocument) {
	var invalid []string
	for _, d := range docs {
		if !d.Validation.IsValid {
			invalid = append(invalid, fmt.Sprintf("%s %s failed validation", d.Record.DocType(), d.Record.ID()))
		}
	}
	if len(invalid) == 0 {
		return
	}
	res.Status = model.StatusNeedsReview
	res.Verified = false
	notes := "needs review: " + strings.Join(invalid, "; ")
	if res.Notes != "" {
		notes = res.Notes + "\n" + notes
	}
	res.Notes = notes
}

// VerifyPair loads two stored documents, verifies them and saves the result.
func (p *Processor) VerifyPair(ctx context.Context, refID, depID string) (*model.VerificationResult, error) {
	if p.store == nil {
		return nil, eris.New("pipeline: verification requires a store")
	}
	a, err := p.store.GetDocument(ctx, refID)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: load document %s", refID)
	}
	b, err := p.store.GetDocument(ctx, depID)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: load document %s", depID)
	}

	res := p.Verify(a, b)
	if err := p.store.SaveVerification(ctx, &res); err != nil {
		return &res, eris.Wrap(err, "pipeline: save verification")
	}
	return &res, nil
}

// VerifyShipment verifies the shipment's invoice against every dependent
// document it has a check list for. With no invoice or no dependents it
// returns a single no_data result.
func (p *Processor) VerifyShipment(ctx context.Context, shipmentID string) ([]model.VerificationResult, error) {
	if p.store == nil {
		return nil, eris.New("pipeline: verification requires a store")
	}
	docs, err := p.store.ListDocuments(ctx, store.DocumentFilter{ShipmentID: shipmentID})
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: list documents for shipment %s", shipmentID)
	}

	invoice := pickReference(docs)
	var results []model.VerificationResult
	if invoice != nil {
		for i := range docs {
			d := &docs[i]
			if d.Record.ID() == invoice.Record.ID() {
				continue
			}
			if _, _, ok := p.engine.PairFor(invoice.Record.DocType(), d.Record.DocType()); !ok {
				continue
			}
			results = append(results, p.Verify(invoice, d))
		}
	}
	if len(results) == 0 {
		note := "no commercial invoice on file"
		if invoice != nil {
			note = "no dependent documents on file"
		}
		results = append(results, p.engine.NoData("", shipmentID, note))
	}

	for i := range results {
		if err := p.store.SaveVerification(ctx, &results[i]); err != nil {
			return results, eris.Wrap(err, "pipeline: save verification")
		}
	}
	zap.L().Info("pipeline: shipment verified",
		zap.String("shipment_id", shipmentID),
		zap.Int("documents", len(docs)),
		zap.Int("results", len(results)),
	)
	return results, nil
}

// pickReference returns the most complete commercial invoice, preferring
// valid ones.
func pickReference(docs []model.StoredDocument) *model.StoredDocument {
	var best *model.StoredDocument
	for i := range docs {
		d := &docs[i]
		if d.Record.DocType() != model.DocCommercialInvoice {
			continue
		}
		switch {
		case best == nil:
			best = d
		case d.Validation.IsValid && !best.Validation.IsValid:
			best = d
		case d.Validation.IsValid == best.Validation.IsValid && d.Validation.Completeness > best.Validation.Completeness:
			best = d
		}
	}
	return best
}
