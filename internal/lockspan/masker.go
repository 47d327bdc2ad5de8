package lockspan

import (
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"tonebridge/internal/domain"
	"tonebridge/internal/logging"
)

// placeholderRe tolerates minor model variations such as spacing and
// hyphen separators: {{DATE_1}}, {{ DATE_1 }}, {{DATE-1}}.
var placeholderRe = regexp.MustCompile(`\{\{\s*([A-Z]+)[-_](\d+)\s*\}\}`)

// UnmaskResult carries the restored text and the spans whose
// placeholder never appeared in the model output.
type UnmaskResult struct {
	Text         string
	MissingSpans []domain.LockedSpan
}

// Mask replaces spans in text with their placeholders. Spans must be
// non-overlapping and sorted by StartPos ascending, as Extract returns
// them. Assembly is positional so repeated literals cannot collide.
func Mask(text string, spans []domain.LockedSpan) string {
	if len(spans) == 0 {
		return text
	}

	var b strings.Builder
	lastEnd := 0
	for _, span := range spans {
		b.WriteString(text[lastEnd:span.StartPos])
		b.WriteString(span.Placeholder)
		lastEnd = span.EndPos
	}
	b.WriteString(text[lastEnd:])
	return b.String()
}

// Unmask restores placeholders in the model output with the original
// span text. A span counts as missing only when its placeholder is
// absent and the original text does not appear verbatim either.
func Unmask(output string, spans []domain.LockedSpan) UnmaskResult {
	if len(spans) == 0 {
		return UnmaskResult{Text: output}
	}
	log := logging.For(logging.CategoryPipeline)

	spanMap := make(map[string]domain.LockedSpan, len(spans))
	for _, span := range spans {
		spanMap[span.Placeholder] = span
	}

	restored := make(map[string]bool)
	result := placeholderRe.ReplaceAllStringFunc(output, func(m string) string {
		groups := placeholderRe.FindStringSubmatch(m)
		canonical := fmt.Sprintf("{{%s_%s}}", groups[1], groups[2])
		span, ok := spanMap[canonical]
		if !ok {
			log.Warn("placeholder not found in span map", zap.String("placeholder", canonical))
			return m
		}
		restored[canonical] = true
		return span.OriginalText
	})

	var missing []domain.LockedSpan
	for _, span := range spans {
		if restored[span.Placeholder] {
			continue
		}
		if !strings.Contains(result, span.OriginalText) {
			log.Warn("locked span missing in output",
				zap.String("placeholder", span.Placeholder),
				zap.String("type", string(span.Type)))
			missing = append(missing, span)
		}
	}

	return UnmaskResult{Text: result, MissingSpans: missing}
}
