package extract

import (
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ErrMalformedOutput means a model response could not be parsed as JSON even
// after cleanup and one quote-balancing repair.
var ErrMalformedOutput = eris.New("extract: malformed model output")

// CleanJSON strips markdown fences and any prose around the outermost JSON
// object or array.
func CleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		// Drop the info string ("json", "JSON", ...) on the fence line.
		if nl := strings.IndexByte(text, '\n'); nl >= 0 && !strings.ContainsAny(text[:nl], "{[") {
			text = text[nl+1:]
		}
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.IndexAny(text, "{[")
	if start < 0 {
		return strings.TrimSpace(text)
	}
	closer := "}"
	if text[start] == '[' {
		closer = "]"
	}
	if end := strings.LastIndex(text, closer); end > start {
		text = text[start : end+1]
	} else {
		text = text[start:]
	}
	return strings.TrimSpace(text)
}

// RepairQuotes balances an odd number of unescaped double quotes by inserting
// one quote immediately before the final closing brace. Input with an even
// count is returned unchanged, so the repair is idempotent on valid JSON.
func RepairQuotes(text string) string {
	if countQuotes(text)%2 == 0 {
		return text
	}
	idx := strings.LastIndex(text, "}")
	if idx < 0 {
		return text
	}
	return text[:idx] + `"` + text[idx:]
}

func countQuotes(s string) int {
	n := 0
	escaped := false
	for i := 0; i < len(s); i++ {
		switch {
		case escaped:
			escaped = false
		case s[i] == '\\':
			escaped = true
		case s[i] == '"':
			n++
		}
	}
	return n
}

// ParseJSON cleans a model response and decodes it. A failed strict parse
// gets one RepairQuotes pass and one reparse; after that the response is
// reported as ErrMalformedOutput.
func ParseJSON(text string) (any, error) {
	cleaned := CleanJSON(text)
	if cleaned == "" {
		return nil, eris.Wrap(ErrMalformedOutput, "empty response")
	}

	var v any
	err := json.Unmarshal([]byte(cleaned), &v)
	if err == nil {
		return v, nil
	}

	repaired := RepairQuotes(cleaned)
	if repaired == cleaned {
		return nil, eris.Wrap(ErrMalformedOutput, err.Error())
	}
	zap.L().Debug("extract: attempting quote repair", zap.Int("length", len(cleaned)))
	if err := json.Unmarshal([]byte(repaired), &v); err != nil {
		return nil, eris.Wrap(ErrMalformedOutput, err.Error())
	}
	return v, nil
}

// ParseObject is ParseJSON narrowed to a JSON object. A bare array is
// accepted when wrapKey is set and becomes {wrapKey: array}.
func ParseObject(text, wrapKey string) (map[string]any, error) {
	v, err := ParseJSON(text)
	if err != nil {
		return nil, err
	}
	switch t := v.(type) {
	case map[string]any:
		return t, nil
	case []any:
		if wrapKey != "" {
			return map[string]any{wrapKey: t}, nil
		}
	}
	return nil, eris.Wrap(ErrMalformedOutput, "response is not a JSON object")
}
