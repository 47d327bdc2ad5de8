// Package lockspan finds and protects factual spans (numbers, dates,
// contacts, identifiers, names) so the generation model cannot alter
// them. Spans are replaced by {{PREFIX_N}} placeholders before any LLM
// sees the text and restored afterwards.
package lockspan

import (
	"fmt"
	"regexp"
	"sort"

	"tonebridge/internal/domain"
)

// patternDef binds a compiled pattern to the span type it produces.
// Order is priority order: on equal start and length the earlier
// pattern wins.
type patternDef struct {
	re  *regexp.Regexp
	typ domain.SpanType
}

var patterns = []patternDef{
	{regexp.MustCompile(`[\p{L}\p{N}_]+(?:[.+\-][\p{L}\p{N}_]+)*@[\p{L}\p{N}_]+(?:-[\p{L}\p{N}_]+)*(?:\.[a-zA-Z]{2,})+`), domain.SpanEmail},
	{regexp.MustCompile(`(?:https?://|www\.)[\w\-.~:/?#\[\]@!$&'()*+,;=%]+[\w/=]`), domain.SpanURL},
	{regexp.MustCompile(`0\d{1,2}[-.]\d{3,4}[-.]\d{4}`), domain.SpanPhone},
	{regexp.MustCompile(`\d{2,6}-\d{2,6}-\d{4,12}`), domain.SpanAccount},
	{regexp.MustCompile(`(?:\d{2,4}년\s*)?\d{1,2}월\s*\d{1,2}일|\d{2,4}년\s*\d{1,2}월|\d{4}[./-]\d{1,2}[./-]\d{1,2}`), domain.SpanDate},
	{regexp.MustCompile(`(?:오전|오후|새벽|저녁|밤)?\s*\d{1,2}(?:시\s*\d{1,2}분?)?(?:\s*~\s*\d{1,2}(?:시(?:\s*\d{1,2}분?)?)?)?(?:시|분)`), domain.SpanTime},
	{regexp.MustCompile(`(?:[01]?\d|2[0-3]):\d{2}`), domain.SpanTimeHHMM},
	{regexp.MustCompile(`\d[\d,]*(?:\.\d+)?\s*(?:만\s*)?원`), domain.SpanMoney},
	{regexp.MustCompile(`\d[\d,]*(?:\.\d+)?\s*(?:자리|개|건|명|장|통|호|층|평|kg|cm|mm|km|%|주|일|개월|년|시간|분|초)`), domain.SpanUnitNumber},
	{regexp.MustCompile(`\d{1,3}(?:,\d{3})+(?:\.\d+)?|\d{5,}`), domain.SpanLargeNumber},
	{regexp.MustCompile(`[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`), domain.SpanUUID},
	{regexp.MustCompile(`(?i)(?:[\p{L}\p{N}_./\\-]+/)?[\p{L}\p{N}_.-]+\.(?:pdf|doc|docx|xls|xlsx|ppt|pptx|csv|txt|md|json|xml|yaml|yml|html|css|js|ts|tsx|jsx|java|py|rb|go|rs|cpp|c|h|hpp|sh|bat|sql|log|zip|tar|gz|rar|7z|png|jpg|jpeg|gif|svg|mp4|mp3|wav|avi|exe|app|msi|dmg|apk|ipa|iso|img|bak|cfg|ini|env|toml|lock|pid)\b`), domain.SpanFilePath},
	{regexp.MustCompile(`#\d{1,6}|[A-Z]{2,10}-\d{1,6}`), domain.SpanIssueTicket},
	{regexp.MustCompile(`v?\d{1,4}\.\d{1,4}(?:\.\d{1,4})?`), domain.SpanVersion},
	{regexp.MustCompile(`"([^"]{2,60})"|'([^']{2,60})'|\x{201C}([^\x{201C}\x{201D}]{2,60})\x{201D}|\x{2018}([^\x{2018}\x{2019}]{2,60})\x{2019}`), domain.SpanQuotedText},
	{regexp.MustCompile(`\b(?:[a-z][a-zA-Z0-9]*[A-Z][a-zA-Z0-9]{2,}|[a-z]+(?:_[a-z]+)+|[A-Z][a-z]+(?:[A-Z][a-z]+)+)(?:\(\))?\b`), domain.SpanIdentifier},
	{regexp.MustCompile(`\b[0-9a-f]{7,40}\b`), domain.SpanHashCommit},
}

type rawMatch struct {
	start int
	end   int
	text  string
	typ   domain.SpanType
}

// Extract finds all locked spans in text. Overlaps are resolved by
// keeping, per start position, the longest match (pattern priority
// breaks exact ties). Returned spans are non-overlapping, sorted by
// start, with per-prefix placeholder counters starting at 1.
func Extract(text string) []domain.LockedSpan {
	if text == "" {
		return nil
	}

	var raw []rawMatch
	for _, p := range patterns {
		for _, loc := range p.re.FindAllStringIndex(text, -1) {
			raw = append(raw, rawMatch{
				start: loc[0],
				end:   loc[1],
				text:  text[loc[0]:loc[1]],
				typ:   p.typ,
			})
		}
	}

	sort.SliceStable(raw, func(i, j int) bool {
		if raw[i].start != raw[j].start {
			return raw[i].start < raw[j].start
		}
		return (raw[i].end - raw[i].start) > (raw[j].end - raw[j].start)
	})

	var spans []domain.LockedSpan
	counters := make(map[string]int)
	lastEnd := -1
	for _, m := range raw {
		if m.start < lastEnd {
			continue
		}
		lastEnd = m.end

		prefix := m.typ.PlaceholderPrefix()
		counters[prefix]++
		n := counters[prefix]
		spans = append(spans, domain.LockedSpan{
			Index:        n,
			OriginalText: m.text,
			Placeholder:  fmt.Sprintf("{{%s_%d}}", prefix, n),
			Type:         m.typ,
			StartPos:     m.start,
			EndPos:       m.end,
		})
	}
	return spans
}
