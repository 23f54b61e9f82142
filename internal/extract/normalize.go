package extract

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/docverify/internal/model"
)

// Fold lowercases s, strips diacritics, replaces punctuation with spaces and
// collapses whitespace.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	folded = strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			return unicode.ToLower(r)
		default:
			return ' '
		}
	}, folded)
	return strings.Join(strings.Fields(folded), " ")
}

// ParseNumber coerces a model value to a number. Currency symbols, spaces and
// thousands separators are removed; when both ',' and '.' appear the last one
// is the decimal mark. Anything unparsable yields 0.
func ParseNumber(v any) float64 {
	d, ok := parseDecimal(v)
	if !ok {
		return 0
	}
	return d.InexactFloat64()
}

func parseDecimal(v any) (decimal.Decimal, bool) {
	switch t := v.(type) {
	case float64:
		return decimal.NewFromFloat(t), true
	case float32:
		return decimal.NewFromFloat32(t), true
	case int:
		return decimal.NewFromInt(int64(t)), true
	case int64:
		return decimal.NewFromInt(t), true
	case json.Number:
		d, err := decimal.NewFromString(t.String())
		return d, err == nil
	case string:
		return parseNumericString(t)
	}
	return decimal.Zero, false
}

func parseNumericString(s string) (decimal.Decimal, bool) {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r == '.', r == ',', r == '\'', r == '-':
			b.WriteRune(r)
		}
	}
	clean := strings.ReplaceAll(b.String(), "'", "")
	clean = strings.Trim(clean, ".,")
	if clean == "" || clean == "-" {
		return decimal.Zero, false
	}

	lastDot := strings.LastIndex(clean, ".")
	lastComma := strings.LastIndex(clean, ",")
	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastComma > lastDot {
			clean = strings.ReplaceAll(clean, ".", "")
			clean = strings.Replace(clean, ",", ".", 1)
		} else {
			clean = strings.ReplaceAll(clean, ",", "")
		}
	case lastComma >= 0:
		clean = resolveSingleSeparator(clean, ",")
	case lastDot >= 0:
		clean = resolveSingleSeparator(clean, ".")
	}

	d, err := decimal.NewFromString(clean)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// resolveSingleSeparator decides whether sep is a thousands separator or the
// decimal mark. Repeated separators, or a single one followed by exactly three
// digits, are thousands separators.
func resolveSingleSeparator(s, sep string) string {
	if strings.Count(s, sep) > 1 {
		return strings.ReplaceAll(s, sep, "")
	}
	idx := strings.Index(s, sep)
	if len(s)-idx-1 == 3 && idx > 0 && strings.TrimPrefix(s[:idx], "-") != "0" {
		return strings.Replace(s, sep, "", 1)
	}
	return strings.Replace(s, sep, ".", 1)
}

// ParseBool coerces true/false and 1/0 in bool, numeric or string form.
// Other values are returned unchanged.
func ParseBool(v any) any {
	switch t := v.(type) {
	case bool:
		return t
	case float64:
		switch t {
		case 1:
			return true
		case 0:
			return false
		}
	case int:
		switch t {
		case 1:
			return true
		case 0:
			return false
		}
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "1":
			return true
		case "false", "0":
			return false
		}
	}
	return v
}

// portAliases maps folded port and airport names to city codes.
var portAliases = map[string]string{
	"jebel ali":        "DXB",
	"jebel ali port":   "DXB",
	"dubai":            "DXB",
	"port rashid":      "DXB",
	"abu dhabi":        "AUH",
	"khalifa port":     "AUH",
	"sharjah":          "SHJ",
	"nhava sheva":      "BOM",
	"jawaharlal nehru": "BOM",
	"jnpt":             "BOM",
	"mumbai":           "BOM",
	"bombay":           "BOM",
	"chennai":          "MAA",
	"madras":           "MAA",
	"mundra":           "MUN",
	"karachi":          "KHI",
	"colombo":          "CMB",
	"shanghai":         "SHA",
	"ningbo":           "NGB",
	"shenzhen":         "SZX",
	"yantian":          "SZX",
	"hong kong":        "HKG",
	"singapore":        "SIN",
	"jeddah":           "JED",
	"dammam":           "DMM",
	"istanbul":         "IST",
	"rotterdam":        "RTM",
	"antwerp":          "ANR",
	"hamburg":          "HAM",
	"felixstowe":       "FXT",
	"london":           "LON",
	"heathrow":         "LON",
	"le havre":         "LEH",
	"marseille":        "MRS",
	"fos sur mer":      "MRS",
	"genoa":            "GOA",
	"valencia":         "VLC",
	"barcelona":        "BCN",
	"casablanca":       "CAS",
	"tanger med":       "TNG",
	"tangier":          "TNG",
	"dakar":            "DKR",
	"abidjan":          "ABJ",
	"lagos":            "LOS",
	"apapa":            "LOS",
	"mombasa":          "MBA",
	"durban":           "DUR",
	"new york":         "NYC",
	"jfk":              "NYC",
	"newark":           "NYC",
	"los angeles":      "LAX",
	"long beach":       "LAX",
}

// aliasesByLength lists alias keys longest first so "jebel ali port" wins
// over "jebel ali" in substring matches.
var aliasesByLength = func() []string {
	keys := make([]string, 0, len(portAliases))
	for k := range portAliases {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	return keys
}()

// CanonicalPort reduces a free-text port name to a city code through the
// alias table, falling back to the first token uppercased.
func CanonicalPort(s string) string {
	folded := Fold(s)
	if folded == "" {
		return ""
	}
	if code, ok := portAliases[folded]; ok {
		return code
	}
	padded := " " + folded + " "
	for _, alias := range aliasesByLength {
		if strings.Contains(padded, " "+alias+" ") {
			return portAliases[alias]
		}
	}
	tokens := strings.Fields(folded)
	if tokens[0] == "port" && len(tokens) > 2 && tokens[1] == "of" {
		return strings.ToUpper(tokens[2])
	}
	return strings.ToUpper(tokens[0])
}

// itemNumberKeys are line-item attributes coerced to numbers.
var itemNumberKeys = map[string]bool{
	"quantity":        true,
	"unit_price":      true,
	"amount":          true,
	"net_weight_kg":   true,
	"gross_weight_kg": true,
	"boxes":           true,
}

// Normalize coerces a raw model value to the field's type. Nil and blank
// strings are unresolved.
func Normalize(f model.FieldSchema, raw any) model.Value {
	if raw == nil {
		return model.Unresolved()
	}
	if s, ok := raw.(string); ok && strings.TrimSpace(s) == "" {
		return model.Unresolved()
	}

	switch f.Type {
	case model.FieldNumber:
		return model.Present(ParseNumber(raw))
	case model.FieldBoolean:
		return model.Present(ParseBool(raw))
	case model.FieldEnum:
		s := toText(raw)
		for _, opt := range f.Options {
			if strings.EqualFold(opt, s) {
				return model.Present(opt)
			}
		}
		return model.Present(s)
	case model.FieldItems:
		return model.Present(normalizeItems(raw))
	}

	s := toText(raw)
	if f.Canonical == "port" {
		s = CanonicalPort(s)
	}
	return model.Present(s)
}

func normalizeItems(raw any) []any {
	list, ok := raw.([]any)
	if !ok {
		if obj, isObj := raw.(map[string]any); isObj {
			list = []any{obj}
		}
	}
	out := make([]any, 0, len(list))
	for _, it := range list {
		obj, ok := it.(map[string]any)
		if !ok {
			continue
		}
		item := make(map[string]any, len(obj))
		for k, v := range obj {
			switch {
			case v == nil:
				item[k] = nil
			case itemNumberKeys[k]:
				item[k] = ParseNumber(v)
			default:
				if n, isNum := v.(float64); isNum && k != "hs_code" {
					item[k] = n
				} else {
					item[k] = toText(v)
				}
			}
		}
		out = append(out, item)
	}
	return out
}

func toText(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case json.Number:
		return t.String()
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
