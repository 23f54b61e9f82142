// Package classify tags raw document text with a document type.
package classify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/docverify/internal/extract"
	"github.com/sells-group/docverify/internal/llm"
	"github.com/sells-group/docverify/internal/model"
)

// Classification sources.
const (
	SourceModel   = "model"
	SourceHint    = "hint"
	SourceKeyword = "keyword"
)

const (
	hintConfidence    = 0.6
	keywordConfidence = 0.5
)

const classifyUserPrompt = `%s
Document text (first %d characters):
"""
%s
"""`

// Config controls classification calls.
type Config struct {
	Model        string
	Timeout      time.Duration
	MaxTextChars int
	MaxTokens    int64
}

func (c Config) withDefaults() Config {
	if c.Model == "" {
		c.Model = "claude-haiku-4-5-20251001"
	}
	if c.Timeout <= 0 {
		c.Timeout = 20 * time.Second
	}
	if c.MaxTextChars <= 0 {
		c.MaxTextChars = 3000
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 128
	}
	return c
}

// Classifier asks the model for a document type and falls back to the hint
// and then a keyword scan when the model cannot answer.
type Classifier struct {
	model  llm.Model
	cfg    Config
	system string
}

// New creates a Classifier. A nil model classifies by hint and keywords only.
func New(m llm.Model, cfg Config) *Classifier {
	labels := make([]string, 0, len(model.AllDocTypes())+1)
	for _, dt := range model.AllDocTypes() {
		labels = append(labels, string(dt))
	}
	labels = append(labels, string(model.DocUnknown))

	return &Classifier{
		model: m,
		cfg:   cfg.withDefaults(),
		system: "Classify trade-compliance documents into exactly one of these labels: " +
			strings.Join(labels, ", ") + ". " +
			`Respond with a valid JSON object only: {"document_type": "<label>", "confidence": <0.0-1.0>}`,
	}
}

// Classify never fails. hint may be empty or an invalid label, in which case
// it is ignored.
func (c *Classifier) Classify(ctx context.Context, text, hint string) model.Classification {
	hintType := model.ParseDocType(strings.TrimSpace(hint))

	if c.model != nil {
		result, err := c.ask(ctx, text, hintType)
		if err == nil && result.Type != model.DocUnknown {
			return result
		}
		if err != nil {
			zap.L().Warn("classify: model classification failed, using fallback",
				zap.String("source", SourceModel),
				zap.Error(err),
			)
		}
		fallback := c.fallback(text, hintType)
		if fallback.Type == model.DocUnknown && err == nil {
			return result
		}
		return fallback
	}
	return c.fallback(text, hintType)
}

func (c *Classifier) ask(ctx context.Context, text string, hint model.DocType) (model.Classification, error) {
	hintLine := ""
	if hint != model.DocUnknown {
		hintLine = fmt.Sprintf("The sender labelled this document %q; confirm or correct it.\n", hint)
	}
	prompt := fmt.Sprintf(classifyUserPrompt, hintLine, c.cfg.MaxTextChars, extract.TruncateRunes(text, c.cfg.MaxTextChars))

	callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	out, err := c.model.Generate(callCtx, llm.Request{
		Model:     c.cfg.Model,
		System:    c.system,
		Prompt:    prompt,
		MaxTokens: c.cfg.MaxTokens,
		Phase:     "classify",
	})
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) && !errors.Is(err, llm.ErrModelTimeout) {
			err = eris.Wrap(llm.ErrModelTimeout, err.Error())
		}
		return model.Classification{}, eris.Wrap(err, "classify: generate")
	}

	obj, err := extract.ParseObject(out, "")
	if err != nil {
		return model.Classification{}, eris.Wrap(err, "classify: parse response")
	}

	label, _ := obj["document_type"].(string)
	label = strings.ToLower(strings.TrimSpace(label))
	dt := model.ParseDocType(label)
	if dt == model.DocUnknown && label != string(model.DocUnknown) {
		return model.Classification{}, eris.Errorf("classify: label %q outside the label set", label)
	}

	confidence := extract.ParseNumber(obj["confidence"])
	confidence = min(max(confidence, 0), 1)

	return model.Classification{Type: dt, Confidence: confidence, Source: SourceModel}, nil
}

func (c *Classifier) fallback(text string, hint model.DocType) model.Classification {
	if hint != model.DocUnknown {
		return model.Classification{Type: hint, Confidence: hintConfidence, Source: SourceHint}
	}
	dt := KeywordScan(text)
	conf := keywordConfidence
	if dt == model.DocUnknown {
		conf = 0
	}
	return model.Classification{Type: dt, Confidence: conf, Source: SourceKeyword}
}

var declarationKeywords = []string{
	"export control",
	"dual-use",
	"dual use",
	"export declaration",
	"declaration of export",
	"customs declaration",
}

// KeywordScan is the deterministic fallback: declaration keywords first,
// then invoice together with total, otherwise unknown.
func KeywordScan(text string) model.DocType {
	lower := strings.ToLower(text)
	for _, kw := range declarationKeywords {
		if strings.Contains(lower, kw) {
			return model.DocExportDeclaration
		}
	}
	if strings.Contains(lower, "invoice") && strings.Contains(lower, "total") {
		return model.DocCommercialInvoice
	}
	return model.DocUnknown
}
