package extract

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/docverify/internal/model"
)

var (
	countCues = []*regexp.Regexp{
		regexp.MustCompile(`(?i)total\s+(?:no\.?\s+of\s+)?(?:line\s+)?items?\s*[:#=-]?\s*(\d{1,4})\b`),
		regexp.MustCompile(`(?i)(?:no\.?|number)\s+of\s+(?:line\s+)?items\s*[:#=-]?\s*(\d{1,4})\b`),
		regexp.MustCompile(`(?i)\b(\d{1,4})\s+line\s+items\b`),
	}
	labeledHSCode = regexp.MustCompile(`(?i)\b(?:hs|hts|h\.s\.)\s*(?:code)?\s*[:#]?\s*(\d{4}\.?\d{2}(?:\.?\d{2,4})?)\b`)
	dottedHSCode  = regexp.MustCompile(`\b\d{4}\.\d{2}\.\d{2,4}\b`)
	numberedRow   = regexp.MustCompile(`^\s*(\d{1,3})[.)]?\s+\S`)
)

// ExpectedItemCount estimates how many goods lines the text describes. It
// takes the largest of an explicit count cue, the number of distinct tariff
// codes, and the length of the 1, 2, 3, ... run of numbered rows.
func ExpectedItemCount(text string) int {
	best := 0
	for _, re := range countCues {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			if n, err := strconv.Atoi(m[1]); err == nil && n > best {
				best = n
			}
		}
	}

	codes := make(map[string]struct{})
	for _, m := range labeledHSCode.FindAllStringSubmatch(text, -1) {
		codes[strings.ReplaceAll(m[1], ".", "")] = struct{}{}
	}
	for _, m := range dottedHSCode.FindAllString(text, -1) {
		codes[strings.ReplaceAll(m, ".", "")] = struct{}{}
	}
	best = max(best, len(codes))

	next := 1
	for _, line := range strings.Split(text, "\n") {
		m := numberedRow.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		if n, _ := strconv.Atoi(m[1]); n == next {
			next++
		}
	}
	return max(best, next-1)
}

// checkLineItems re-prompts once for an exact count when the answer holds
// fewer items than the text implies, and keeps whichever answer has more.
func (e *Extractor) checkLineItems(ctx context.Context, text string, section model.Section, fields map[string]any, attempts int) (map[string]any, int) {
	key := itemsKey(section)
	if key == "" || ctx.Err() != nil {
		return fields, attempts
	}

	got := countItems(fields[key])
	want := ExpectedItemCount(text)
	if want <= got {
		return fields, attempts
	}

	zap.L().Info("extract: line item count below textual cues",
		zap.String("section", section.Name),
		zap.Int("got", got),
		zap.Int("expected", want),
	)

	instruction := fmt.Sprintf("%s\nThe document lists %d goods lines. Return a JSON object {\"%s\": [...]} "+
		"with exactly %d entries, one per goods line, in document order. Do not merge or skip lines.",
		strings.TrimSpace(section.Instruction), want, key, want)
	retried, err := e.client.call(ctx, text, section, instruction, "extract/"+section.Name+"/count")
	attempts++
	if err != nil {
		zap.L().Warn("extract: line item count retry failed",
			zap.String("section", section.Name),
			zap.Error(err),
		)
		return fields, attempts
	}

	if countItems(retried[key]) > got {
		return retried, attempts
	}
	return fields, attempts
}

func countItems(v any) int {
	switch t := v.(type) {
	case []any:
		n := 0
		for _, it := range t {
			if _, ok := it.(map[string]any); ok {
				n++
			}
		}
		return n
	case map[string]any:
		return 1
	}
	return 0
}
