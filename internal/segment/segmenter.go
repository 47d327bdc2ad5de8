// Package segment splits masked Korean text into meaning units. The
// splitter is precision-first and fully deterministic; an optional LLM
// refiner (refiner.go) re-splits only the units that stay long.
//
// Seven stages, each with a confidence attached to the cuts it makes:
//
//  1. strong structural boundaries (blank lines, ---/===/___ rules,
//     bullets, numbered items)                      1.0
//  2. Korean sentence endings, with suppression of
//     ambiguous connective endings                  0.95
//  3. weak punctuation boundaries                   0.9
//  4. length-based safety split near the midpoint   0.85
//  5. enumeration lists (comma / delimiter / ~고)    0.9
//  6. sentence-initial discourse markers            0.88
//  7. merge of over-segmented short runs
//
// Placeholder ranges are never split; parenthetical and quoted ranges
// are protected from everything except strong boundaries.
package segment

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"tonebridge/internal/domain"
	"tonebridge/internal/logging"
)

// Options tunes the splitter. Lengths are rune counts.
type Options struct {
	MaxSegmentLength         int
	DiscourseMarkerMinLength int
	EnumerationMinLength     int
}

// DefaultOptions matches the production tuning.
func DefaultOptions() Options {
	return Options{
		MaxSegmentLength:         180,
		DiscourseMarkerMinLength: 80,
		EnumerationMinLength:     60,
	}
}

const (
	minSegmentLength    = 5
	minShortConsecutive = 3
	forceSplitWindow    = 60
	forceSplitMaxRounds = 5
)

type splitUnit struct {
	text       string
	start      int // byte offset into the masked text
	end        int
	confidence float64
}

type protectedKind int

const (
	protPlaceholder protectedKind = iota
	protParenthetical
	protQuoted
)

type protectedRange struct {
	start, end int
	kind       protectedKind
}

// boundary is one cut: text before start belongs to the left unit,
// text from end onward to the right one.
type boundary struct {
	start, end int
}

var (
	placeholderRe = regexp.MustCompile(`\{\{[A-Z]+_\d+\}\}`)

	// Stage 1.
	blankLineRe    = regexp.MustCompile(`\n\n+`)
	separatorRe    = regexp.MustCompile(`(?m)(?:^|\n)[-=_]{3,}\s*(?:\n|$)`)
	bulletRe       = regexp.MustCompile(`\n[-*\x{2022}]\s`)
	numberedListRe = regexp.MustCompile(`\n(?:\d{1,3}[.)]\s|[\x{2460}-\x{2473}] ?)`)

	// Stage 2: sentence-ending families. The separator after the
	// ending is captured so the cut lands between ending and
	// separator, mirroring the lookbehind form.
	endingFormalRe = regexp.MustCompile(
		`(?:겠습니다|하십시오|겠습니까|습니다|입니다|됩니다|합니다|답니다|랍니다|십니다|습니까|입니까|됩니까|합니까|십니까|십시오)(\s+|[.!?…~;]\s*)`)
	endingPoliteRe = regexp.MustCompile(
		`(?:는데요|거든요|잖아요|니까요|라서요|던가요|텐데요|다고요|라고요|냐고요|자고요|은데요|던데요|세요|에요|해요|예요|네요|군요|지요|어요|아요|게요|래요|나요|가요|고요|서요|걸요|대요|까요|셔요|구요)(\s+|[.!?…~;]\s*)`)
	endingCasualRe = regexp.MustCompile(
		`(?:[았었했됐갔왔봤줬났겠셨]어|같어|않아|없어|있어|못해|[았었했됐겠셨]지|거든|잖아|는데|인데|한데|은데|던데|텐데|더라|니까|할래|할게|갈게|볼게|줄게|을래|을게|을걸|하자|해라|해봐|구나|구먼|이야|거야|건데|다며|다더라|그치|시죠|던가)(\s+|[.!?…~;]\s*)`)
	endingNarrativeRe = regexp.MustCompile(
		`(?:하게|하네|하세|[했됐봤왔갔줬났]음|같음|있음|없음|아님|맞음|모름|드림|올림|알림|바람|나름|받음|보냄|[했됐봤왔갔줬났겠]다|있다|없다|같다|한다|된다|간다|온다|는다|됨|임|함|죠|ㅋㅋ|ㅎㅎ|ㅠㅠ|ㅜㅜ)(\s+|[.!?…~;]\s*)`)
	endingPatterns = []*regexp.Regexp{endingFormalRe, endingPoliteRe, endingCasualRe, endingNarrativeRe}

	// Stage 3: weak punctuation. Group 1+2 cover sentence punctuation
	// followed by whitespace or line end; group 3+4 cover ellipsis and
	// dash variants that split even without trailing whitespace.
	weakBoundaryRe = regexp.MustCompile(`(?m)([.!?;])(\s+|$)|(…|\.\.\.|[—–])(\s*)`)

	// Stage 5.
	commaListRe     = regexp.MustCompile(`,\s*`)
	delimiterListRe = regexp.MustCompile(`[/·|]\s*`)
	parallelGoRe    = regexp.MustCompile(`[가-힣](고\s+)[가-힣]`)

	// Stage 6: discourse markers at sentence start.
	discourseMarkerSplitRe = regexp.MustCompile(
		`([.!?;…]\s|\n)(` + discourseMarkerAlternatives + `)\s`)

	parenRe = regexp.MustCompile(`\([^)]*\)`)
	quoteRe = regexp.MustCompile(`"[^"]*"|'[^']*'|\x{201C}[^\x{201D}]*\x{201D}|\x{2018}[^\x{2019}]*\x{2019}`)
)

const discourseMarkerAlternatives = "그리고|또한|게다가|더구나|심지어|" +
	"그런데|근데|하지만|그러나|그래도|반면|한편|오히려|그렇지만|" +
	"그래서|그러므로|결국|그러니까|그러니|결과적으로|" +
	"그러면|그럼|그렇다면|만약|만일|아니면|" +
	"아무튼|어쨌든|어쨌거나|그나저나|암튼|" +
	"마지막으로|끝으로|첫째|둘째|셋째|" +
	"결론적으로|왜냐하면|왜냐면"

var discourseMarkers = strings.Split(discourseMarkerAlternatives, "|")

// Endings that often act as connectives rather than sentence ends.
var ambiguousEndings = map[string]bool{
	"는데": true, "인데": true, "한데": true, "은데": true, "던데": true,
	"텐데": true, "니까": true, "거든": true, "고": true, "건데": true,
}

var postpositions = map[string]bool{
	"은": true, "는": true, "이": true, "가": true, "을": true, "를": true,
	"에": true, "의": true, "와": true, "과": true, "로": true, "도": true,
	"만": true, "까지": true, "부터": true, "에서": true, "처럼": true,
	"보다": true, "마다": true, "밖에": true, "조차": true, "든지": true,
	"이나": true, "에게": true, "한테": true, "께": true,
}

// Marker sequences that look like a discourse marker but continue into
// a longer word and must not be cut.
var compoundSuffixes = []string{"그런데도", "그래서인지", "그러나마나", "하지만서도", "그래도역시"}

// Segmenter is a configured splitter. The zero value is not usable;
// construct with New.
type Segmenter struct {
	opts Options
}

// New returns a Segmenter with the given options; zero fields fall
// back to defaults.
func New(opts Options) *Segmenter {
	def := DefaultOptions()
	if opts.MaxSegmentLength <= 0 {
		opts.MaxSegmentLength = def.MaxSegmentLength
	}
	if opts.DiscourseMarkerMinLength <= 0 {
		opts.DiscourseMarkerMinLength = def.DiscourseMarkerMinLength
	}
	if opts.EnumerationMinLength <= 0 {
		opts.EnumerationMinLength = def.EnumerationMinLength
	}
	return &Segmenter{opts: opts}
}

// Segment splits the masked text into meaning units T1..Tn. Start/End
// are byte offsets into the masked text.
func (s *Segmenter) Segment(maskedText string) []domain.Segment {
	if strings.TrimSpace(maskedText) == "" {
		return nil
	}

	protected := collectProtectedRanges(maskedText)
	units := []splitUnit{{text: maskedText, start: 0, end: len(maskedText), confidence: 1.0}}

	units = splitStrongBoundaries(units, protected)
	units = splitKoreanEndings(units, protected)
	units = applySplitBoundaries(units, weakBoundaries, protected, 0.9, false)
	units = forceSplitLong(units, protected, s.opts.MaxSegmentLength)
	units = splitEnumerations(units, protected, s.opts.EnumerationMinLength)
	units = splitDiscourseMarkers(units, protected, s.opts.DiscourseMarkerMinLength)
	units = mergeShortUnits(units)

	segments := make([]domain.Segment, len(units))
	minConf, sumConf := 1.0, 0.0
	for i, u := range units {
		segments[i] = domain.Segment{
			ID:    "T" + strconv.Itoa(i+1),
			Text:  u.text,
			Start: u.start,
			End:   u.end,
		}
		sumConf += u.confidence
		if u.confidence < minConf {
			minConf = u.confidence
		}
	}
	if len(units) > 0 {
		logging.For(logging.CategoryPipeline).Debug("segmented",
			zap.Int("segments", len(segments)),
			zap.Int("chars", utf8.RuneCountInString(maskedText)),
			zap.Float64("avg_confidence", sumConf/float64(len(units))),
			zap.Float64("min_confidence", minConf))
	}
	return segments
}

// ── Protected ranges ──

func collectProtectedRanges(text string) []protectedRange {
	var ranges []protectedRange
	for _, loc := range placeholderRe.FindAllStringIndex(text, -1) {
		ranges = append(ranges, protectedRange{loc[0], loc[1], protPlaceholder})
	}
	for _, loc := range parenRe.FindAllStringIndex(text, -1) {
		if !overlapsPlaceholder(loc[0], loc[1], ranges) {
			ranges = append(ranges, protectedRange{loc[0], loc[1], protParenthetical})
		}
	}
	for _, loc := range quoteRe.FindAllStringIndex(text, -1) {
		if !overlapsPlaceholder(loc[0], loc[1], ranges) {
			ranges = append(ranges, protectedRange{loc[0], loc[1], protQuoted})
		}
	}
	return ranges
}

func overlapsPlaceholder(start, end int, ranges []protectedRange) bool {
	for _, r := range ranges {
		if r.kind == protPlaceholder && start < r.end && end > r.start {
			return true
		}
	}
	return false
}

// isProtected reports whether a cut at globalPos must be suppressed.
// Strong boundaries may still cut inside paren/quote ranges.
func isProtected(globalPos int, ranges []protectedRange, strongBoundary bool) bool {
	for _, r := range ranges {
		if r.start <= globalPos && globalPos < r.end {
			if r.kind == protPlaceholder {
				return true
			}
			if !strongBoundary {
				return true
			}
		}
	}
	return false
}

// ── Boundary finders ──

// boundaryFinder enumerates cut positions within a unit's text.
type boundaryFinder func(text string) []boundary

func simpleBoundaries(re *regexp.Regexp) boundaryFinder {
	return func(text string) []boundary {
		var out []boundary
		for _, loc := range re.FindAllStringIndex(text, -1) {
			out = append(out, boundary{loc[0], loc[1]})
		}
		return out
	}
}

// leadingNewlineBoundaries drops the consumed \n from the cut so only
// the marker itself is removed, like the lookbehind original.
func leadingNewlineBoundaries(re *regexp.Regexp) boundaryFinder {
	return func(text string) []boundary {
		var out []boundary
		for _, loc := range re.FindAllStringIndex(text, -1) {
			out = append(out, boundary{loc[0] + 1, loc[1]})
		}
		return out
	}
}

// endingBoundaries places the cut at the captured separator, i.e.
// right after the sentence ending.
func endingBoundaries(re *regexp.Regexp) boundaryFinder {
	return func(text string) []boundary {
		var out []boundary
		for _, loc := range re.FindAllStringSubmatchIndex(text, -1) {
			out = append(out, boundary{loc[2], loc[3]})
		}
		return out
	}
}

// weakBoundaries places the cut after the punctuation token.
func weakBoundaries(text string) []boundary {
	var out []boundary
	for _, loc := range weakBoundaryRe.FindAllStringSubmatchIndex(text, -1) {
		if loc[2] >= 0 {
			out = append(out, boundary{loc[3], loc[5]})
		} else {
			out = append(out, boundary{loc[7], loc[9]})
		}
	}
	return out
}

// parallelGoBoundaries finds ~고 between Hangul words. The trailing
// Hangul rune is part of the next item, so matches are re-scanned from
// just before it.
func parallelGoBoundaries(text string) []boundary {
	var out []boundary
	from := 0
	for {
		loc := parallelGoRe.FindStringSubmatchIndex(text[from:])
		if loc == nil {
			return out
		}
		out = append(out, boundary{from + loc[2], from + loc[3]})
		from += loc[3]
	}
}

// ── Generic split ──

func applySplitBoundaries(
	units []splitUnit,
	find boundaryFinder,
	protected []protectedRange,
	stageConfidence float64,
	strongBoundary bool,
) []splitUnit {
	var result []splitUnit
	for _, unit := range units {
		if utf8.RuneCountInString(unit.text) < 3 {
			result = append(result, unit)
			continue
		}

		lastEnd := 0
		split := false
		for _, b := range find(unit.text) {
			if b.start < lastEnd {
				continue
			}
			if isProtected(unit.start+b.start, protected, strongBoundary) {
				continue
			}
			sub := strings.TrimSpace(unit.text[lastEnd:b.start])
			if sub != "" {
				subStart := unit.start + findSubstringStart(unit.text, lastEnd, sub)
				result = append(result, splitUnit{sub, subStart, subStart + len(sub), minConf(unit.confidence, stageConfidence)})
				split = true
			}
			lastEnd = b.end
		}

		if split {
			tail := strings.TrimSpace(unit.text[lastEnd:])
			if tail != "" {
				tailStart := unit.start + findSubstringStart(unit.text, lastEnd, tail)
				result = append(result, splitUnit{tail, tailStart, tailStart + len(tail), minConf(unit.confidence, stageConfidence)})
			}
		} else {
			result = append(result, unit)
		}
	}
	return result
}

func minConf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func findSubstringStart(parent string, searchFrom int, trimmed string) int {
	if pos := strings.Index(parent[searchFrom:], trimmed); pos >= 0 {
		return searchFrom + pos
	}
	return searchFrom
}

// ── Stage 1 ──

func splitStrongBoundaries(units []splitUnit, protected []protectedRange) []splitUnit {
	finders := []boundaryFinder{
		simpleBoundaries(blankLineRe),
		simpleBoundaries(separatorRe),
		leadingNewlineBoundaries(bulletRe),
		leadingNewlineBoundaries(numberedListRe),
	}
	result := units
	for _, f := range finders {
		result = applySplitBoundaries(result, f, protected, 1.0, true)
	}
	return result
}

// ── Stage 2 ──

func splitKoreanEndings(units []splitUnit, protected []protectedRange) []splitUnit {
	result := units
	for _, re := range endingPatterns {
		result = splitEndingsFiltered(result, endingBoundaries(re), protected)
	}
	return result
}

// splitEndingsFiltered is applySplitBoundaries plus suppression of
// ambiguous connective endings (는데/니까/...): those cut only when the
// left side is already very long, the remainder is empty, or the
// remainder starts with a discourse marker.
func splitEndingsFiltered(units []splitUnit, find boundaryFinder, protected []protectedRange) []splitUnit {
	var result []splitUnit
	for _, unit := range units {
		if utf8.RuneCountInString(unit.text) < 3 {
			result = append(result, unit)
			continue
		}

		var cuts []boundary
		lastEnd := 0
		for _, b := range find(unit.text) {
			if b.start < lastEnd {
				continue
			}
			if isProtected(unit.start+b.start, protected, false) {
				continue
			}
			if ending := extractEndingBefore(unit.text, b.start); ending != "" {
				before := utf8.RuneCountInString(unit.text[lastEnd:b.start])
				if !shouldSplitAmbiguousEnding(unit.text, b.end, before) {
					continue
				}
			}
			cuts = append(cuts, b)
			lastEnd = b.end
		}

		if len(cuts) == 0 {
			result = append(result, unit)
			continue
		}
		prevEnd := 0
		for _, b := range cuts {
			sub := strings.TrimSpace(unit.text[prevEnd:b.start])
			if sub != "" {
				subStart := unit.start + findSubstringStart(unit.text, prevEnd, sub)
				result = append(result, splitUnit{sub, subStart, subStart + len(sub), minConf(unit.confidence, 0.95)})
			}
			prevEnd = b.end
		}
		tail := strings.TrimSpace(unit.text[prevEnd:])
		if tail != "" {
			tailStart := unit.start + findSubstringStart(unit.text, prevEnd, tail)
			result = append(result, splitUnit{tail, tailStart, tailStart + len(tail), minConf(unit.confidence, 0.95)})
		}
	}
	return result
}

// extractEndingBefore returns the ambiguous ending ending right before
// matchStart, if any. Checked longest first.
func extractEndingBefore(text string, matchStart int) string {
	head := text[:matchStart]
	for _, n := range []int{3, 2, 1} {
		candidate := lastRunes(head, n)
		if candidate != "" && ambiguousEndings[candidate] {
			return candidate
		}
	}
	return ""
}

func lastRunes(s string, n int) string {
	pos := len(s)
	for i := 0; i < n; i++ {
		if pos == 0 {
			return ""
		}
		_, size := utf8.DecodeLastRuneInString(s[:pos])
		pos -= size
	}
	return s[pos:]
}

func shouldSplitAmbiguousEnding(chunk string, afterMatchEnd int, runesBefore int) bool {
	if runesBefore > 250 {
		return true
	}
	remaining := strings.TrimSpace(chunk[afterMatchEnd:])
	if remaining == "" {
		return true
	}
	for _, marker := range discourseMarkers {
		if remaining == marker ||
			strings.HasPrefix(remaining, marker+" ") ||
			strings.HasPrefix(remaining, marker+"\n") {
			return true
		}
	}
	return false
}

// ── Stage 4 ──

func forceSplitLong(units []splitUnit, protected []protectedRange, maxSegmentLength int) []splitUnit {
	current := units
	for round := 0; round < forceSplitMaxRounds; round++ {
		var result []splitUnit
		didSplit := false

		for _, unit := range current {
			runes := []rune(unit.text)
			if len(runes) <= maxSegmentLength {
				result = append(result, unit)
				continue
			}

			// Byte offset of each rune, plus the terminating length.
			offsets := make([]int, len(runes)+1)
			pos := 0
			for i, r := range runes {
				offsets[i] = pos
				pos += utf8.RuneLen(r)
			}
			offsets[len(runes)] = pos

			mid := len(runes) / 2
			searchStart := mid - forceSplitWindow
			if searchStart < 10 {
				searchStart = 10
			}
			searchEnd := mid + forceSplitWindow
			if max := len(runes) - 5; searchEnd > max {
				searchEnd = max
			}

			bestSplit := -1
			bestDist := int(^uint(0) >> 1)
			for pass := 0; pass < 2 && bestSplit < 0; pass++ {
				avoidPostpositions := pass == 0
				for i := searchStart; i < searchEnd; i++ {
					c := runes[i]
					if c != ' ' && c != ',' && c != '\n' {
						continue
					}
					if isProtected(unit.start+offsets[i], protected, false) {
						continue
					}
					if avoidPostpositions && isAfterPostposition(unit.text, offsets[i]) {
						continue
					}
					dist := i - mid
					if dist < 0 {
						dist = -dist
					}
					if dist < bestDist {
						bestDist = dist
						bestSplit = offsets[i+1]
					}
				}
			}

			if bestSplit > 0 {
				left := strings.TrimSpace(unit.text[:bestSplit])
				right := strings.TrimSpace(unit.text[bestSplit:])
				if left != "" {
					ls := unit.start + findSubstringStart(unit.text, 0, left)
					result = append(result, splitUnit{left, ls, ls + len(left), minConf(unit.confidence, 0.85)})
				}
				if right != "" {
					rs := unit.start + findSubstringStart(unit.text, bestSplit, right)
					result = append(result, splitUnit{right, rs, rs + len(right), minConf(unit.confidence, 0.85)})
				}
				didSplit = true
			} else {
				result = append(result, unit)
			}
		}

		current = result
		if !didSplit {
			break
		}
	}
	return current
}

func isAfterPostposition(chunk string, splitPos int) bool {
	head := chunk[:splitPos]
	for _, n := range []int{3, 2, 1} {
		if candidate := lastRunes(head, n); candidate != "" && postpositions[candidate] {
			return true
		}
	}
	return false
}

// ── Stage 5 ──

func splitEnumerations(units []splitUnit, protected []protectedRange, enumerationMinLength int) []splitUnit {
	finders := []boundaryFinder{
		simpleBoundaries(commaListRe),
		simpleBoundaries(delimiterListRe),
		parallelGoBoundaries,
	}

	var result []splitUnit
	for _, unit := range units {
		if utf8.RuneCountInString(unit.text) <= enumerationMinLength {
			result = append(result, unit)
			continue
		}
		split := false
		for _, f := range finders {
			if parts := trySplitByDelimiter(unit, f, protected, 3, 15); parts != nil {
				result = append(result, parts...)
				split = true
				break
			}
		}
		if !split {
			result = append(result, unit)
		}
	}
	return result
}

// trySplitByDelimiter splits only when every resulting part is
// substantial; otherwise nil and the unit stays whole.
func trySplitByDelimiter(
	unit splitUnit,
	find boundaryFinder,
	protected []protectedRange,
	minParts, minPartLength int,
) []splitUnit {
	var cuts []boundary
	for _, b := range find(unit.text) {
		if !isProtected(unit.start+b.start, protected, false) {
			cuts = append(cuts, b)
		}
	}
	if len(cuts) < minParts-1 {
		return nil
	}

	var parts []splitUnit
	prevEnd := 0
	for _, b := range cuts {
		part := strings.TrimSpace(unit.text[prevEnd:b.start])
		if part != "" {
			ps := unit.start + findSubstringStart(unit.text, prevEnd, part)
			parts = append(parts, splitUnit{part, ps, ps + len(part), minConf(unit.confidence, 0.9)})
		}
		prevEnd = b.end
	}
	tail := strings.TrimSpace(unit.text[prevEnd:])
	if tail != "" {
		ts := unit.start + findSubstringStart(unit.text, prevEnd, tail)
		parts = append(parts, splitUnit{tail, ts, ts + len(tail), minConf(unit.confidence, 0.9)})
	}

	if len(parts) < minParts {
		return nil
	}
	for _, p := range parts {
		if utf8.RuneCountInString(p.text) < minPartLength {
			return nil
		}
	}
	return parts
}

// ── Stage 6 ──

func splitDiscourseMarkers(units []splitUnit, protected []protectedRange, discourseMarkerMinLength int) []splitUnit {
	var result []splitUnit
	for _, unit := range units {
		if utf8.RuneCountInString(unit.text) <= discourseMarkerMinLength {
			result = append(result, unit)
			continue
		}

		var splitPoints []int
		for _, p := range discourseMarkerPositions(unit.text) {
			if isProtected(unit.start+p, protected, false) {
				continue
			}
			remaining := unit.text[p:]
			if isCompoundMarker(remaining) {
				continue
			}
			if utf8.RuneCountInString(strings.TrimSpace(remaining)) <= 4 {
				continue
			}
			splitPoints = append(splitPoints, p)
		}

		if len(splitPoints) == 0 {
			result = append(result, unit)
			continue
		}
		prevEnd := 0
		for _, sp := range splitPoints {
			sub := strings.TrimSpace(unit.text[prevEnd:sp])
			if sub != "" {
				ss := unit.start + findSubstringStart(unit.text, prevEnd, sub)
				result = append(result, splitUnit{sub, ss, ss + len(sub), minConf(unit.confidence, 0.88)})
			}
			prevEnd = sp
		}
		tail := strings.TrimSpace(unit.text[prevEnd:])
		if tail != "" {
			ts := unit.start + findSubstringStart(unit.text, prevEnd, tail)
			result = append(result, splitUnit{tail, ts, ts + len(tail), minConf(unit.confidence, 0.88)})
		}
	}
	return result
}

// discourseMarkerPositions returns positions right before a
// sentence-initial discourse marker (after .!?;… plus whitespace, or a
// newline). The marker itself is not consumed by the cut.
func discourseMarkerPositions(text string) []int {
	var out []int
	from := 0
	for {
		loc := discourseMarkerSplitRe.FindStringSubmatchIndex(text[from:])
		if loc == nil {
			return out
		}
		p := from + loc[3] // end of the punctuation/newline group
		out = append(out, p)
		from = p + 1
	}
}

func isCompoundMarker(remaining string) bool {
	trimmed := strings.TrimSpace(remaining)
	for _, compound := range compoundSuffixes {
		if strings.HasPrefix(trimmed, compound) {
			return true
		}
	}
	for _, marker := range discourseMarkers {
		if strings.HasPrefix(trimmed, marker) && len(trimmed) > len(marker) {
			next, _ := utf8.DecodeRuneInString(trimmed[len(marker):])
			if next != ' ' && next != '\n' && isHangul(next) {
				return true
			}
		}
	}
	return false
}

func isHangul(r rune) bool {
	return (r >= 0xAC00 && r <= 0xD7A3) || (r >= 0x3131 && r <= 0x318E)
}

// ── Stage 7 ──

func mergeShortUnits(units []splitUnit) []splitUnit {
	if len(units) <= 1 {
		return units
	}

	var result []splitUnit
	i := 0
	for i < len(units) {
		shortStart := i
		for i < len(units) && utf8.RuneCountInString(units[i].text) < minSegmentLength {
			i++
		}
		shortCount := i - shortStart

		if shortCount >= minShortConsecutive {
			for _, group := range groupByPlaceholderBoundary(units[shortStart:i]) {
				if len(group) >= minShortConsecutive {
					result = append(result, mergeGroup(group))
				} else {
					result = append(result, group...)
				}
			}
		} else {
			result = append(result, units[shortStart:i]...)
		}

		if i < len(units) {
			result = append(result, units[i])
			i++
		}
	}
	return result
}

// groupByPlaceholderBoundary keeps placeholder-carrying units at group
// edges so a merge never buries a placeholder mid-run.
func groupByPlaceholderBoundary(units []splitUnit) [][]splitUnit {
	var groups [][]splitUnit
	var current []splitUnit
	for _, unit := range units {
		hasPlaceholder := placeholderRe.MatchString(unit.text)
		if hasPlaceholder && len(current) > 0 {
			groups = append(groups, current)
			current = nil
		}
		current = append(current, unit)
		if hasPlaceholder {
			groups = append(groups, current)
			current = nil
		}
	}
	if len(current) > 0 {
		groups = append(groups, current)
	}
	return groups
}

func mergeGroup(group []splitUnit) splitUnit {
	texts := make([]string, len(group))
	conf := group[0].confidence
	for i, u := range group {
		texts[i] = u.text
		if u.confidence < conf {
			conf = u.confidence
		}
	}
	return splitUnit{
		text:       strings.Join(texts, " "),
		start:      group[0].start,
		end:        group[len(group)-1].end,
		confidence: conf,
	}
}
