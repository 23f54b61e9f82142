package verify

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/sells-group/docverify/internal/extract"
	"github.com/sells-group/docverify/internal/model"
)

// DefaultContainerPattern is the ISO 6346 container number shape.
const DefaultContainerPattern = `[A-Z]{4}\d{7}`

// Inputs is what a comparator sees for one check.
type Inputs struct {
	Spec      CheckSpec
	Reference *model.Record
	Dependent *model.Record
}

// Outcome is the result of one comparable check.
type Outcome struct {
	Passed    bool
	Note      string
	Reference string
	Dependent string
}

// Comparator evaluates one check. It reports false when the inputs are not
// comparable (a value is missing on either side); a non-comparable Outcome
// may still carry a Note, which the engine keeps.
type Comparator func(in Inputs) (Outcome, bool)

// Comparators returns the built-in comparator registry.
func Comparators() map[string]Comparator {
	return map[string]Comparator{
		"exact":       compareExact,
		"fuzzy":       compareFuzzy,
		"date":        compareDate,
		"amount":      compareAmount,
		"pattern_ref": comparePatternRef,
		"box_count":   compareBoxCount,
	}
}

// lookup returns the named extracted field, or the derived field of the same
// name when no extracted field is present.
func lookup(rec *model.Record, name string) model.Value {
	if v := rec.Field(name); v.IsPresent() {
		return v
	}
	return rec.Derived(name)
}

func pair(in Inputs) (model.Value, model.Value, bool) {
	l := lookup(in.Reference, in.Spec.Left)
	r := lookup(in.Dependent, in.Spec.Right)
	return l, r, l.IsFilled() && r.IsFilled()
}

func compareExact(in Inputs) (Outcome, bool) {
	l, r, ok := pair(in)
	if !ok {
		return Outcome{}, false
	}
	a, b := l.String(), r.String()
	out := Outcome{Reference: a, Dependent: b, Passed: normalizeID(a) == normalizeID(b)}
	if out.Passed {
		out.Note = fmt.Sprintf("match (%s)", a)
	} else {
		out.Note = fmt.Sprintf("mismatch (%s vs %s)", a, b)
	}
	return out, true
}

func compareFuzzy(in Inputs) (Outcome, bool) {
	l, r, ok := pair(in)
	if !ok {
		return Outcome{}, false
	}
	a, b := l.String(), r.String()
	sim := Similarity(foldName(a), foldName(b))
	out := Outcome{Reference: a, Dependent: b}
	switch {
	case sim >= PassSimilarity:
		out.Passed = true
		out.Note = fmt.Sprintf("match (similarity %.2f)", sim)
	case sim >= NearSimilarity:
		out.Note = fmt.Sprintf("near match (similarity %.2f): %q vs %q", sim, a, b)
	default:
		out.Note = fmt.Sprintf("mismatch (similarity %.2f): %q vs %q", sim, a, b)
	}
	return out, true
}

func compareDate(in Inputs) (Outcome, bool) {
	l := lookup(in.Reference, in.Spec.Left)
	r := lookup(in.Dependent, in.Spec.Right)
	warning := dateWindowWarning(in, l)
	if !l.IsFilled() || !r.IsFilled() {
		// The window still applies when only the dependent's own date is known.
		return Outcome{Note: warning}, false
	}
	a, b := l.String(), r.String()
	out := Outcome{Reference: a, Dependent: b}

	refDate, okRef := extract.ParseDate(a)
	depDate, okDep := extract.ParseDate(b)
	switch {
	case !okRef || !okDep:
		out.Note = fmt.Sprintf("unparsable date (%s vs %s)", a, b)
	case refDate.Equal(depDate):
		out.Passed = true
		out.Note = fmt.Sprintf("match (%s)", a)
	default:
		out.Note = fmt.Sprintf("mismatch (%s vs %s)", a, b)
	}
	if warning != "" {
		out.Note += "; " + warning
	}
	return out, true
}

// dateWindowWarning compares the dependent's window date against the
// reference date. It returns "" when either date is unknown or the gap is
// inside the tolerance.
func dateWindowWarning(in Inputs, ref model.Value) string {
	if !ref.IsFilled() {
		return ""
	}
	refDate, ok := extract.ParseDate(ref.String())
	if !ok {
		return ""
	}
	windowField := in.Spec.Params.String("window_field", in.Spec.Right)
	windowRaw := lookup(in.Dependent, windowField).String()
	windowDate, ok := extract.ParseDate(windowRaw)
	if !ok {
		return ""
	}
	tolerance := in.Spec.Params.Int("tolerance_days", 0)
	gap := int(math.Round(windowDate.Sub(refDate).Hours() / 24))
	switch {
	case gap < 0:
		return fmt.Sprintf("warning: %s %s precedes %s %s", windowField, windowRaw, in.Spec.Left, ref.String())
	case tolerance > 0 && gap > tolerance:
		return fmt.Sprintf("warning: %s %s is %d days after %s, beyond the %d-day window",
			windowField, windowRaw, gap, in.Spec.Left, tolerance)
	}
	return ""
}

func compareAmount(in Inputs) (Outcome, bool) {
	l, r, ok := pair(in)
	if !ok {
		return Outcome{}, false
	}
	a, b := extract.ParseNumber(l.Raw()), extract.ParseNumber(r.Raw())
	tolerance := in.Spec.Params.Float("tolerance", 0.01)
	diff := math.Abs(a - b)
	limit := tolerance * math.Max(math.Abs(a), math.Abs(b))

	out := Outcome{Reference: l.String(), Dependent: r.String(), Passed: diff <= limit}
	if out.Passed {
		out.Note = fmt.Sprintf("match (%s)", l.String())
	} else {
		out.Note = fmt.Sprintf("mismatch (%s vs %s, difference %.2f)", l.String(), r.String(), diff)
	}
	return out, true
}

func comparePatternRef(in Inputs) (Outcome, bool) {
	l := lookup(in.Reference, in.Spec.Left)
	if !l.IsFilled() {
		return Outcome{}, false
	}

	var haystack string
	if in.Spec.Params.String("source", "field") == "text" {
		haystack = in.Dependent.Excerpt()
	} else {
		haystack = lookup(in.Dependent, in.Spec.Right).String()
	}
	re, err := regexp.Compile(in.Spec.Params.String("pattern", DefaultContainerPattern))
	if err != nil {
		return Outcome{}, false
	}
	found := re.FindAllString(strings.ToUpper(haystack), -1)
	if len(found) == 0 {
		return Outcome{}, false
	}

	want := normalizeID(l.String())
	out := Outcome{Reference: l.String(), Dependent: strings.Join(found, ", ")}
	for _, f := range found {
		if normalizeID(f) == want {
			out.Passed = true
			break
		}
	}
	if out.Passed {
		out.Note = fmt.Sprintf("match (%s)", l.String())
	} else {
		out.Note = fmt.Sprintf("mismatch (%s vs %s)", l.String(), out.Dependent)
	}
	return out, true
}

func compareBoxCount(in Inputs) (Outcome, bool) {
	l, r, ok := pair(in)
	if !ok {
		return Outcome{}, false
	}
	items := extract.ParseNumber(l.Raw())
	boxes := extract.ParseNumber(r.Raw())
	factor := in.Spec.Params.Float("factor", 3)

	out := Outcome{Reference: l.String(), Dependent: r.String()}
	out.Passed = boxes > 0 && boxes <= factor*items
	if out.Passed {
		out.Note = fmt.Sprintf("plausible (%s boxes for %s items)", r.String(), l.String())
	} else {
		out.Note = fmt.Sprintf("implausible (%s boxes for %s items, limit %s)",
			r.String(), l.String(), model.Present(factor*items).String())
	}
	return out, true
}
