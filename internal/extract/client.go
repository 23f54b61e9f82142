// Package extract turns raw document text into structured fields: it drives
// model calls per schema section, repairs and parses the JSON they return,
// re-prompts when critical fields come back empty, and normalizes values.
package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/docverify/internal/llm"
	"github.com/sells-group/docverify/internal/model"
)

const systemPrompt = "You extract structured data from trade-compliance documents. " +
	"Respond with exactly one JSON object and nothing else: no prose, no markdown fences, no comments. " +
	"Use the field names given in the schema. Use null for any field not present in the document. " +
	"Never invent values."

const genericRetryInstruction = "Your previous answer was missing required fields. " +
	"Read the document again and return only a JSON object containing every field in the schema, " +
	"copying values exactly as printed. Use null only if the value truly does not appear."

const userPromptTemplate = `Schema (JSON field list):
%s

Task:
%s

Document text:
"""
%s
"""`

// Config is the model endpoint configuration injected into a Client.
type Config struct {
	Model        string
	Temperature  float64
	MaxTokens    int64
	Timeout      time.Duration
	MaxTextChars int
}

// DefaultConfig returns the configuration used when none is supplied.
func DefaultConfig() Config {
	return Config{
		Model:        "claude-haiku-4-5-20251001",
		Temperature:  0,
		MaxTokens:    2048,
		Timeout:      60 * time.Second,
		MaxTextChars: 12000,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Model == "" {
		c.Model = d.Model
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = d.MaxTokens
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.MaxTextChars <= 0 {
		c.MaxTextChars = d.MaxTextChars
	}
	return c
}

// Client runs single section extractions against a Model.
type Client struct {
	model llm.Model
	cfg   Config
}

// NewClient creates a Client. Zero fields of cfg take their defaults.
func NewClient(m llm.Model, cfg Config) *Client {
	return &Client{model: m, cfg: cfg.withDefaults()}
}

// Config returns the effective configuration.
func (c *Client) Config() Config {
	return c.cfg
}

// Extract runs one section extraction with the given instruction. When a
// critical field of the section is missing afterwards, it re-prompts exactly
// once with the section's retry instruction and overlays the non-empty
// values of the second answer. The error is nil or wraps one of
// llm.ErrModelTimeout, llm.ErrModelUnavailable or ErrMalformedOutput.
func (c *Client) Extract(ctx context.Context, text string, section model.Section, instruction string) (map[string]any, error) {
	fields, _, err := c.extract(ctx, text, section, instruction)
	return fields, err
}

// extract is Extract reporting the number of model calls made.
func (c *Client) extract(ctx context.Context, text string, section model.Section, instruction string) (map[string]any, int, error) {
	fields, err := c.call(ctx, text, section, instruction, "extract/"+section.Name)
	attempts := 1

	missing := missingCritical(section, fields)
	if len(missing) == 0 {
		return fields, attempts, err
	}
	if ctx.Err() != nil {
		return fields, attempts, firstErr(err, ctx.Err())
	}

	zap.L().Info("extract: retrying section for critical fields",
		zap.String("section", section.Name),
		zap.Strings("missing", missing),
		zap.NamedError("first_error", err),
	)

	retryInstruction := section.RetryInstruction
	if retryInstruction == "" {
		retryInstruction = genericRetryInstruction
	}
	retried, retryErr := c.call(ctx, text, section, retryInstruction, "extract/"+section.Name+"/retry")
	attempts++

	if retryErr != nil {
		if fields == nil {
			return nil, attempts, firstErr(err, retryErr)
		}
		return fields, attempts, nil
	}
	return overlay(fields, retried), attempts, nil
}

// call issues a single model call under the per-call time budget and parses
// the response into a JSON object.
func (c *Client) call(ctx context.Context, text string, section model.Section, instruction, phase string) (map[string]any, error) {
	prompt, err := c.buildPrompt(text, section, instruction)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	out, err := c.model.Generate(callCtx, llm.Request{
		Model:       c.cfg.Model,
		System:      systemPrompt,
		Prompt:      prompt,
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
		Phase:       phase,
	})
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) && !errors.Is(err, llm.ErrModelTimeout) {
			err = eris.Wrap(llm.ErrModelTimeout, err.Error())
		}
		return nil, eris.Wrapf(err, "extract: section %s", section.Name)
	}

	obj, err := ParseObject(out, itemsKey(section))
	if err != nil {
		return nil, eris.Wrapf(err, "extract: section %s", section.Name)
	}
	return obj, nil
}

type promptField struct {
	Name    string   `json:"name"`
	Type    string   `json:"type"`
	Hint    string   `json:"hint,omitempty"`
	Options []string `json:"options,omitempty"`
}

func (c *Client) buildPrompt(text string, section model.Section, instruction string) (string, error) {
	fields := make([]promptField, 0, len(section.Fields))
	for _, f := range section.Fields {
		fields = append(fields, promptField{
			Name:    f.Name,
			Type:    string(f.Type),
			Hint:    f.Hint,
			Options: f.Options,
		})
	}
	schemaJSON, err := json.MarshalIndent(fields, "", "  ")
	if err != nil {
		return "", eris.Wrap(err, "extract: encode schema")
	}
	return fmt.Sprintf(userPromptTemplate,
		schemaJSON,
		strings.TrimSpace(instruction),
		TruncateRunes(text, c.cfg.MaxTextChars),
	), nil
}

// TruncateRunes returns at most n runes of s.
func TruncateRunes(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

// missingCritical lists critical fields of the section that are absent, null
// or blank in fields.
func missingCritical(section model.Section, fields map[string]any) []string {
	var missing []string
	for _, name := range section.CriticalFields() {
		if isEmptyRaw(fields[name]) {
			missing = append(missing, name)
		}
	}
	return missing
}

func isEmptyRaw(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []any:
		return len(t) == 0
	}
	return false
}

// overlay copies the non-empty values of next onto a copy of base.
func overlay(base, next map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(next))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range next {
		if !isEmptyRaw(v) {
			out[k] = v
		} else if _, ok := out[k]; !ok {
			out[k] = v
		}
	}
	return out
}

// itemsKey returns the name of the section's single items field, if any, so
// a bare JSON array answer can be accepted for line-item sections.
func itemsKey(section model.Section) string {
	for _, f := range section.Fields {
		if f.Type == model.FieldItems {
			return f.Name
		}
	}
	return ""
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
