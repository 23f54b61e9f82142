// Package validate scores a single extracted document for completeness and
// validity against its schema.
package validate

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.uber.org/zap"

	"github.com/sells-group/docverify/internal/extract"
	"github.com/sells-group/docverify/internal/model"
)

// TariffCodePattern is the HS code shape checked inside line items.
const TariffCodePattern = `^[0-9]{4}(\.?[0-9]{2}){0,3}$`

var tariffCode = regexp.MustCompile(TariffCodePattern)

// Validator checks records against their document schemas. Compiled type
// schemas and field patterns are cached per document type.
type Validator struct {
	mu       sync.Mutex
	typed    map[model.DocType]*jsonschema.Schema
	patterns map[string]*regexp.Regexp
}

// New creates a Validator.
func New() *Validator {
	return &Validator{
		typed:    make(map[model.DocType]*jsonschema.Schema),
		patterns: make(map[string]*regexp.Regexp),
	}
}

// Validate never fails. IsValid is false exactly when Errors is non-empty:
// a critical field is missing or a strict field has the wrong type. Every
// other finding is a warning.
func (v *Validator) Validate(rec *model.Record, schema *model.DocumentSchema) model.ValidationResult {
	res := model.ValidationResult{
		DocType:  schema.Type,
		Errors:   []string{},
		Warnings: []string{},
	}
	if rec != nil {
		res.RecordID = rec.ID()
	}

	fields := schema.Fields()
	var missingInformative []string
	for _, f := range fields {
		// An informative field listed as a fact is scored once, as the fact.
		if !f.IsCritical() && slices.Contains(schema.Facts, f.Name) {
			continue
		}
		res.Checklist++
		if rec.Field(f.Name).IsFilled() {
			res.Filled++
			continue
		}
		if f.IsCritical() {
			res.Errors = append(res.Errors, fmt.Sprintf("missing critical field: %s", f.Name))
		} else {
			missingInformative = append(missingInformative, fmt.Sprintf("missing field: %s", f.Name))
		}
	}

	var missingFacts []string
	for _, fact := range schema.Facts {
		res.Checklist++
		if factPresent(rec, fact) {
			res.Filled++
			continue
		}
		missingFacts = append(missingFacts, factWarning(fact))
	}

	res.Errors = append(res.Errors, v.typeErrors(rec, schema)...)

	res.Warnings = append(res.Warnings, missingInformative...)
	res.Warnings = append(res.Warnings, missingFacts...)
	res.Warnings = append(res.Warnings, v.sanityWarnings(rec, schema)...)

	res.Completeness = Completeness(res.Filled, res.Checklist)
	res.IsValid = len(res.Errors) == 0
	return res
}

// Completeness is round(100 * filled / size), 0 for an empty checklist.
func Completeness(filled, size int) int {
	if size <= 0 {
		return 0
	}
	filled = min(max(filled, 0), size)
	return int(math.Round(100 * float64(filled) / float64(size)))
}

func factPresent(rec *model.Record, fact string) bool {
	switch fact {
	case model.FactLineItems:
		return len(rec.Field(model.FactLineItems).Items()) > 0
	case model.FactSignature:
		if rec == nil {
			return false
		}
		return rec.Derived(model.DerivedSignature).IsFilled() || extract.DetectSignature(rec.Excerpt())
	}
	return rec.Field(fact).IsFilled()
}

func factWarning(fact string) string {
	switch fact {
	case model.FactLineItems:
		return "no line items found"
	case model.FactSignature:
		return "no signature detected"
	}
	return fmt.Sprintf("missing fact: %s", fact)
}

// typeErrors validates strict fields with a JSON Schema compiled once per
// document type. Unresolved fields are skipped; their absence is reported
// separately.
func (v *Validator) typeErrors(rec *model.Record, schema *model.DocumentSchema) []string {
	compiled, order, err := v.compiled(schema)
	if err != nil {
		zap.L().Error("validate: compile type schema", zap.String("doc_type", string(schema.Type)), zap.Error(err))
		return nil
	}
	if compiled == nil {
		return nil
	}

	instance := make(map[string]any)
	for name := range order {
		if val := rec.Field(name); val.IsPresent() {
			instance[name] = val.Raw()
		}
	}

	err = compiled.Validate(instance)
	if err == nil {
		return nil
	}
	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return []string{fmt.Sprintf("type check failed: %v", err)}
	}

	type leaf struct {
		field string
		msg   string
	}
	var leaves []leaf
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			name := strings.TrimPrefix(e.InstanceLocation, "/")
			leaves = append(leaves, leaf{field: name, msg: e.Message})
			return
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(verr)

	sort.SliceStable(leaves, func(i, j int) bool {
		return order[leaves[i].field] < order[leaves[j].field]
	})
	out := make([]string, 0, len(leaves))
	for _, l := range leaves {
		out = append(out, fmt.Sprintf("invalid type for %s: %s", l.field, l.msg))
	}
	return out
}

var jsonTypes = map[model.FieldType]string{
	model.FieldString:  "string",
	model.FieldDate:    "string",
	model.FieldEnum:    "string",
	model.FieldNumber:  "number",
	model.FieldBoolean: "boolean",
	model.FieldItems:   "array",
}

// compiled returns the JSON Schema for the strict fields of schema, and the
// schema-order index of each strict field. A nil schema means there are no
// strict fields.
func (v *Validator) compiled(schema *model.DocumentSchema) (*jsonschema.Schema, map[string]int, error) {
	order := make(map[string]int)
	props := make(map[string]any)
	for i, f := range schema.Fields() {
		if !f.Strict {
			continue
		}
		order[f.Name] = i
		props[f.Name] = map[string]any{"type": jsonTypes[f.Type]}
	}
	if len(props) == 0 {
		return nil, order, nil
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if s, ok := v.typed[schema.Type]; ok {
		return s, order, nil
	}

	doc, err := json.Marshal(map[string]any{
		"$schema":    "https://json-schema.org/draft/2020-12/schema",
		"type":       "object",
		"properties": props,
	})
	if err != nil {
		return nil, nil, eris.Wrap(err, "validate: encode type schema")
	}

	url := string(schema.Type) + ".json"
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(url, bytes.NewReader(doc)); err != nil {
		return nil, nil, eris.Wrap(err, "validate: add type schema")
	}
	s, err := compiler.Compile(url)
	if err != nil {
		return nil, nil, eris.Wrap(err, "validate: compile type schema")
	}
	v.typed[schema.Type] = s
	return s, order, nil
}

func (v *Validator) pattern(expr string) (*regexp.Regexp, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if re, ok := v.patterns[expr]; ok {
		return re, nil
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, eris.Wrapf(err, "validate: compile pattern %q", expr)
	}
	v.patterns[expr] = re
	return re, nil
}

// sanityWarnings covers numeric ranges, identifier shapes and date ordering.
func (v *Validator) sanityWarnings(rec *model.Record, schema *model.DocumentSchema) []string {
	var out []string
	for _, f := range schema.Fields() {
		val := rec.Field(f.Name)
		if !val.IsFilled() {
			continue
		}

		if n, ok := val.Float(); ok {
			if f.Min != nil && n < *f.Min {
				out = append(out, fmt.Sprintf("%s: %s is below the minimum %s", f.Name, val.String(), trimFloat(*f.Min)))
			}
			if f.Max != nil && n > *f.Max {
				out = append(out, fmt.Sprintf("%s: %s is above the maximum %s", f.Name, val.String(), trimFloat(*f.Max)))
			}
		}

		if f.Pattern != "" {
			re, err := v.pattern(f.Pattern)
			if err != nil {
				zap.L().Warn("validate: bad field pattern", zap.String("field", f.Name), zap.Error(err))
			} else if !re.MatchString(strings.TrimSpace(val.String())) {
				out = append(out, fmt.Sprintf("%s: %q does not match the expected format", f.Name, val.String()))
			}
		}

		if f.Type == model.FieldItems {
			for i, item := range val.Items() {
				code, ok := item["hs_code"].(string)
				if !ok || code == "" {
					continue
				}
				if !tariffCode.MatchString(strings.TrimSpace(code)) {
					out = append(out, fmt.Sprintf("%s[%d].hs_code: %q does not match the expected format", f.Name, i, code))
				}
			}
		}
	}

	for _, pair := range schema.DateOrder {
		before, okBefore := extract.ParseDate(rec.Field(pair.Before).String())
		after, okAfter := extract.ParseDate(rec.Field(pair.After).String())
		if okBefore && okAfter && after.Before(before) {
			out = append(out, fmt.Sprintf("%s %s precedes %s %s",
				pair.After, rec.Field(pair.After).String(), pair.Before, rec.Field(pair.Before).String()))
		}
	}
	return out
}

func trimFloat(f float64) string {
	return model.Present(f).String()
}
