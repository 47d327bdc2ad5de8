// Package validate runs the rule-based checks on generated output:
// meta-commentary, hallucinated facts, placeholder loss, redacted
// content re-entry and structural regressions. ERROR issues trigger a
// generation retry; WARNINGs are reported but do not block.
package validate

import (
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"tonebridge/internal/domain"
	"tonebridge/internal/logging"
	"tonebridge/internal/template"
)

const maxAbsoluteOutputLength = 6000

var emojiRe = regexp.MustCompile(`[` +
	`\x{1F600}-\x{1F64F}` + // emoticons
	`\x{1F300}-\x{1F5FF}` + // misc symbols and pictographs
	`\x{1F680}-\x{1F6FF}` + // transport and map
	`\x{1F1E0}-\x{1F1FF}` + // flags
	`\x{FE00}-\x{FE0F}` + // variation selectors
	`\x{1F3FB}-\x{1F3FF}` + // skin tone modifiers
	`\x{200D}` + // zero-width joiner
	`\x{1F900}-\x{1F9FF}` + // supplemental symbols
	`\x{1FA00}-\x{1FA6F}` +
	`\x{1FA70}-\x{1FAFF}` +
	`\x{2600}-\x{26FF}` + // misc symbols
	`\x{2700}-\x{27BF}` + // dingbats
	`\x{231A}-\x{231B}` +
	`\x{23E9}-\x{23F3}` +
	`\x{23F8}-\x{23FA}` +
	`\x{25AA}-\x{25AB}` +
	`\x{25B6}\x{25C0}` +
	`\x{25FB}-\x{25FE}` +
	`\x{2934}-\x{2935}` +
	`\x{2B05}-\x{2B07}` +
	`\x{2B1B}-\x{2B1C}` +
	`\x{2B50}\x{2B55}` +
	`\x{3030}\x{303D}\x{3297}\x{3299}` +
	`]`)

var forbiddenPhrases = []string{
	"변환 결과",
	"다음과 같이",
	"도움이 되셨으면",
	"변환해 드리겠",
	"아래와 같이",
	"다음은 변환",
	"변환된 텍스트",
	"이렇게 변환",
	"존댓말로 바꾸",
	"다듬어 보았",
}

var (
	endingRe = regexp.MustCompile(`(?m)[가-힣]*?(드리겠습니다|겠습니다|드립니다|할게요|합니다|됩니다|됩니까|십시오|습니다|니다|세요|에요|해요|예요|네요|군요|는데요|거든요|잖아요|지요|죠|요)[.!?]?\s*$`)

	deurigetRe = regexp.MustCompile(`드리겠습니다`)

	bareNumberRe       = regexp.MustCompile(`\d{3,}`)
	safeNumberCtxRe    = regexp.MustCompile(`\d{2,4}년|제\d+|\d+호|\d+층|\d+차|\d+번째`)
	koreanNumberRe     = regexp.MustCompile(`(?:약\s*)?(?:\d+)?(?:십|백|천|만|억|조)\s*(?:십|백|천|만|억|조)?\s*(?:원|명|개|건|일|시간|분|배)`)
	coreNumberRe       = regexp.MustCompile(`\d{1,3}(?:,\d{3})+|\d{3,}`)
	dateSepNormalizeRe = regexp.MustCompile(`[./-]`)
	digitsRe           = regexp.MustCompile(`\d+`)
	reentryStripRe     = regexp.MustCompile(`[^가-힣a-zA-Z0-9]`)
	meaningWordRe      = regexp.MustCompile(`[가-힣]{2,}`)
	s2EffortRe         = regexp.MustCompile(`확인|점검|검토|살펴|조사|파악|내부.*결과|담당.*확인|로그.*기준`)
	informalConjRe     = regexp.MustCompile(`(?:^|[\s,.!?~(])(어쨌든|아무튼|암튼|근데|걍)`)
)

var perspectivePhrases = []string{
	"확인해 드리겠습니다",
	"접수되었습니다",
	"처리해 드리겠습니다",
	"안내해 드리겠습니다",
	"도와드리겠습니다",
	"답변드리겠습니다",
	"알려드리겠습니다",
	"연락드리겠습니다",
	"보내드리겠습니다",
	"전달드리겠습니다",
	"안내 드리겠습니다",
	"처리 드리겠습니다",
}

var datePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\d{4}[./-]\d{1,2}(?:[./-]\d{1,2})?`),
	regexp.MustCompile(`\d{1,2}월\s*\d{1,2}일`),
	regexp.MustCompile(`\d{1,2}:\d{2}`),
}

var validationStopwords = map[string]bool{
	"은": true, "는": true, "이": true, "가": true, "을": true, "를": true,
	"에": true, "의": true, "와": true, "과": true, "로": true, "도": true,
	"만": true, "까지": true, "부터": true, "에서": true, "처럼": true, "보다": true,
	"그리고": true, "하지만": true, "또한": true, "그래서": true, "그런데": true, "따라서": true,
	"문제": true, "확인": true, "요청": true, "부분": true, "경우": true, "상황": true,
	"내용": true, "것": true, "수": true, "등": true, "및": true,
	"위해": true, "대해": true, "통해": true,
}

var censorshipTraces = []string{
	"[삭제됨]", "[REDACTED", "삭제된 내용", "제거된 부분", "삭제된 부분",
	"일부 내용을 삭제", "부적절한 내용이 제거",
}

// Input bundles everything the checks look at. RawLLMOutput is the
// pre-unmask model text; FinalText is after placeholder restoration.
type Input struct {
	FinalText          string
	OriginalText       string
	RawLLMOutput       string
	Persona            domain.Persona
	Spans              []domain.LockedSpan
	RedactionMap       map[string]string
	YellowSegmentTexts []string
	EffectiveSections  []template.Section
	Labeled            []domain.LabeledSegment
}

// Validate runs every check and reports pass/fail. Passed means no
// ERROR-severity issue was found.
func Validate(in Input) domain.ValidationResult {
	var issues []domain.ValidationIssue

	issues = checkEmoji(in.FinalText, issues)
	issues = checkForbiddenPhrases(in.FinalText, issues)
	issues = checkHallucinatedFacts(in.FinalText, in.OriginalText, in.Spans, issues)
	issues = checkEndingRepetition(in.FinalText, issues)
	issues = checkLengthOverexpansion(in.FinalText, in.OriginalText, issues)
	issues = checkPerspectiveError(in.FinalText, in.Persona, issues)
	issues = checkLockedSpanMissing(in.RawLLMOutput, in.FinalText, in.Spans, issues)
	issues = checkRedactedReentry(in.FinalText, in.RedactionMap, issues)
	issues = checkCoreNumberMissing(in.FinalText, in.OriginalText, in.Spans, issues)
	issues = checkCoreDateMissing(in.FinalText, in.OriginalText, in.Spans, issues)
	issues = checkSoftenContentDropped(in.FinalText, in.YellowSegmentTexts, issues)
	issues = checkInformalConjunction(in.FinalText, issues)
	issues = checkSectionS2Missing(in.FinalText, in.EffectiveSections, in.Labeled, issues)

	result := domain.ValidationResult{Issues: issues}
	result.Passed = len(result.Errors()) == 0

	if len(issues) > 0 {
		logging.For(logging.CategoryPipeline).Info("validation completed",
			zap.Int("issues", len(issues)),
			zap.Int("errors", len(result.Errors())),
			zap.Int("warnings", len(result.Warnings())))
	}

	return result
}

// BuildLockedSpanRetryHint renders the retry suffix listing every
// missing placeholder with its original text. Empty when no
// LOCKED_SPAN_MISSING error is present.
func BuildLockedSpanRetryHint(issues []domain.ValidationIssue, spans []domain.LockedSpan) string {
	missing := make(map[string]bool)
	for _, issue := range issues {
		if issue.Type == domain.IssueLockedSpanMissing && issue.Severity == domain.SeverityError &&
			issue.MatchedText != "" {
			missing[issue.MatchedText] = true
		}
	}
	if len(missing) == 0 || len(spans) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("\n\n[고정 표현 누락 오류] 다음 고정 표현이 출력에 반드시 포함되어야 합니다:\n")
	for _, span := range spans {
		if missing[span.Placeholder] {
			fmt.Fprintf(&sb, "- %s → \"%s\"\n", span.Placeholder, span.OriginalText)
		}
	}
	sb.WriteString("위 플레이스홀더를 변환 결과에 반드시 자연스럽게 포함하세요. 절대 누락하지 마세요.")
	return sb.String()
}

func checkEmoji(output string, issues []domain.ValidationIssue) []domain.ValidationIssue {
	for _, m := range emojiRe.FindAllString(output, -1) {
		issues = append(issues, domain.ValidationIssue{
			Type:        domain.IssueEmoji,
			Severity:    domain.SeverityError,
			Message:     fmt.Sprintf("이모지 감지: \"%s\"", m),
			MatchedText: m,
		})
	}
	return issues
}

func checkForbiddenPhrases(output string, issues []domain.ValidationIssue) []domain.ValidationIssue {
	for _, phrase := range forbiddenPhrases {
		if strings.Contains(output, phrase) {
			issues = append(issues, domain.ValidationIssue{
				Type:        domain.IssueForbiddenPhrase,
				Severity:    domain.SeverityError,
				Message:     fmt.Sprintf("금지 구문 감지: \"%s\"", phrase),
				MatchedText: phrase,
			})
		}
	}
	return issues
}

func checkHallucinatedFacts(output, original string, spans []domain.LockedSpan, issues []domain.ValidationIssue) []domain.ValidationIssue {
	for _, loc := range bareNumberRe.FindAllStringIndex(output, -1) {
		found := output[loc[0]:loc[1]]
		if strings.Contains(original, found) || spanTextsContain(spans, found) {
			continue
		}
		ctxStart := loc[0] - 2
		if ctxStart < 0 {
			ctxStart = 0
		}
		ctxEnd := loc[1] + 3
		if ctxEnd > len(output) {
			ctxEnd = len(output)
		}
		if safeNumberCtxRe.MatchString(output[ctxStart:ctxEnd]) {
			continue
		}
		issues = append(issues, domain.ValidationIssue{
			Type:        domain.IssueHallucinatedFact,
			Severity:    domain.SeverityWarning,
			Message:     fmt.Sprintf("원문에 없는 숫자/날짜 감지: \"%s\"", found),
			MatchedText: found,
		})
	}

	compactOriginal := strings.ReplaceAll(original, " ", "")
	for _, found := range koreanNumberRe.FindAllString(output, -1) {
		if strings.Contains(original, found) {
			continue
		}
		core := strings.TrimLeft(strings.Join(strings.Fields(found), ""), "약")
		if strings.Contains(compactOriginal, core) {
			continue
		}
		issues = append(issues, domain.ValidationIssue{
			Type:        domain.IssueHallucinatedFact,
			Severity:    domain.SeverityWarning,
			Message:     fmt.Sprintf("원문에 없는 한국어 수량 표현 감지: \"%s\"", found),
			MatchedText: found,
		})
	}
	return issues
}

func checkEndingRepetition(output string, issues []domain.ValidationIssue) []domain.ValidationIssue {
	var endings []string
	for _, m := range endingRe.FindAllStringSubmatch(output, -1) {
		endings = append(endings, m[1])
	}
	for i := 0; i+2 < len(endings); i++ {
		if endings[i] == endings[i+1] && endings[i] == endings[i+2] {
			issues = append(issues, domain.ValidationIssue{
				Type:        domain.IssueEndingRepetition,
				Severity:    domain.SeverityWarning,
				Message:     fmt.Sprintf("동일 종결어미 3회 연속: \"%s\"", endings[i]),
				MatchedText: endings[i],
			})
			break
		}
	}

	if count := len(deurigetRe.FindAllString(output, -1)); count >= 3 {
		issues = append(issues, domain.ValidationIssue{
			Type:        domain.IssueEndingRepetition,
			Severity:    domain.SeverityWarning,
			Message:     fmt.Sprintf("\"드리겠습니다\" %d회 사용 (3회 이상)", count),
			MatchedText: "드리겠습니다",
		})
	}
	return issues
}

func checkLengthOverexpansion(output, original string, issues []domain.ValidationIssue) []domain.ValidationIssue {
	outLen := len([]rune(output))
	origLen := len([]rune(original))
	if origLen >= 20 && outLen > origLen*3 {
		issues = append(issues, domain.ValidationIssue{
			Type:     domain.IssueLengthOverexpansion,
			Severity: domain.SeverityWarning,
			Message: fmt.Sprintf("출력 길이 과확장: 입력 %d자 → 출력 %d자 (%.1f배)",
				origLen, outLen, float64(outLen)/float64(origLen)),
		})
	}
	if outLen > maxAbsoluteOutputLength {
		issues = append(issues, domain.ValidationIssue{
			Type:     domain.IssueLengthOverexpansion,
			Severity: domain.SeverityWarning,
			Message: fmt.Sprintf("출력 길이 절대 상한 초과: %d자 (상한: %d자)",
				outLen, maxAbsoluteOutputLength),
		})
	}
	return issues
}

func checkPerspectiveError(output string, persona domain.Persona, issues []domain.ValidationIssue) []domain.ValidationIssue {
	if persona == domain.PersonaClient || persona == domain.PersonaOfficial {
		return issues
	}
	for _, phrase := range perspectivePhrases {
		if strings.Contains(output, phrase) {
			issues = append(issues, domain.ValidationIssue{
				Type:        domain.IssuePerspectiveError,
				Severity:    domain.SeverityWarning,
				Message:     fmt.Sprintf("관점 오류 힌트: \"%s\" (받는 사람이 %s일 때 부적절)", phrase, persona),
				MatchedText: phrase,
			})
		}
	}
	return issues
}

func checkLockedSpanMissing(rawOutput, finalText string, spans []domain.LockedSpan, issues []domain.ValidationIssue) []domain.ValidationIssue {
	if len(spans) == 0 || rawOutput == "" {
		return issues
	}
	for _, span := range spans {
		if strings.Contains(rawOutput, span.Placeholder) {
			continue
		}
		flexible := regexp.MustCompile(fmt.Sprintf(`\{\{\s*%s[-_]?%d\s*\}\}`,
			regexp.QuoteMeta(span.Type.PlaceholderPrefix()), span.Index))
		if flexible.MatchString(rawOutput) {
			continue
		}
		if strings.Contains(rawOutput, span.OriginalText) {
			continue
		}
		if finalText != "" && strings.Contains(finalText, span.OriginalText) {
			continue
		}
		issues = append(issues, domain.ValidationIssue{
			Type:        domain.IssueLockedSpanMissing,
			Severity:    domain.SeverityError,
			Message:     fmt.Sprintf("LockedSpan 누락: %s (\"%s\")", span.Placeholder, span.OriginalText),
			MatchedText: span.Placeholder,
		})
	}
	return issues
}

func checkRedactedReentry(finalText string, redactionMap map[string]string, issues []domain.ValidationIssue) []domain.ValidationIssue {
	if len(redactionMap) > 0 {
		normalizedOutput := reentryStripRe.ReplaceAllString(finalText, "")
		for marker, originalText := range redactionMap {
			if len([]rune(originalText)) < 6 {
				continue
			}
			normalizedOriginal := reentryStripRe.ReplaceAllString(originalText, "")
			if len([]rune(normalizedOriginal)) >= 4 && strings.Contains(normalizedOutput, normalizedOriginal) {
				issues = append(issues, domain.ValidationIssue{
					Type:        domain.IssueRedactedReentry,
					Severity:    domain.SeverityError,
					Message:     fmt.Sprintf("제거된 내용 재유입: \"%s...\"", truncateRunes(originalText, 30)),
					MatchedText: marker,
				})
			}
		}

		for marker, originalText := range redactionMap {
			var distinctive []string
			for _, w := range meaningWords(originalText) {
				if len([]rune(w)) >= 3 && !validationStopwords[w] {
					distinctive = append(distinctive, w)
				}
			}
			if len(distinctive) < 2 {
				continue
			}
			matched := 0
			for _, w := range distinctive {
				if strings.Contains(finalText, w) {
					matched++
				}
			}
			if matched >= 2 {
				issues = append(issues, domain.ValidationIssue{
					Type:     domain.IssueRedactedReentry,
					Severity: domain.SeverityWarning,
					Message: fmt.Sprintf("제거된 내용 의미적 재유입 의심: \"%s...\" (키워드 %d개 일치)",
						truncateRunes(originalText, 30), matched),
					MatchedText: marker,
				})
			}
		}
	}

	for _, trace := range censorshipTraces {
		if strings.Contains(finalText, trace) {
			issues = append(issues, domain.ValidationIssue{
				Type:        domain.IssueRedactionTrace,
				Severity:    domain.SeverityError,
				Message:     fmt.Sprintf("검열 흔적 문구 감지: \"%s\"", trace),
				MatchedText: trace,
			})
		}
	}
	return issues
}

func checkCoreNumberMissing(finalText, original string, spans []domain.LockedSpan, issues []domain.ValidationIssue) []domain.ValidationIssue {
	lockedNumbers := make(map[string]bool)
	for _, span := range spans {
		for _, n := range coreNumberRe.FindAllString(span.OriginalText, -1) {
			lockedNumbers[strings.ReplaceAll(n, ",", "")] = true
		}
	}

	compactFinal := strings.ReplaceAll(finalText, ",", "")
	for _, loc := range coreNumberRe.FindAllStringIndex(original, -1) {
		number := original[loc[0]:loc[1]]
		normalized := strings.ReplaceAll(number, ",", "")
		if lockedNumbers[normalized] {
			continue
		}
		if strings.Contains(finalText, number) || strings.Contains(finalText, normalized) {
			continue
		}
		if strings.Contains(compactFinal, normalized) {
			continue
		}
		ctxStart := loc[0] - 8
		if ctxStart < 0 {
			ctxStart = 0
		}
		ctxEnd := loc[1] + 8
		if ctxEnd > len(original) {
			ctxEnd = len(original)
		}
		if safeNumberCtxRe.MatchString(original[ctxStart:ctxEnd]) {
			continue
		}
		issues = append(issues, domain.ValidationIssue{
			Type:        domain.IssueCoreNumberMissing,
			Severity:    domain.SeverityWarning,
			Message:     fmt.Sprintf("원문 숫자 누락: \"%s\"", number),
			MatchedText: number,
		})
	}
	return issues
}

func checkCoreDateMissing(finalText, original string, spans []domain.LockedSpan, issues []domain.ValidationIssue) []domain.ValidationIssue {
	normalizedOutput := dateSepNormalizeRe.ReplaceAllString(finalText, "-")

	for _, pattern := range datePatterns {
		for _, dateStr := range pattern.FindAllString(original, -1) {
			if spanTextsContain(spans, dateStr) {
				continue
			}
			if strings.Contains(finalText, dateStr) {
				continue
			}
			if strings.Contains(normalizedOutput, dateSepNormalizeRe.ReplaceAllString(dateStr, "-")) {
				continue
			}
			dateNums := dateNumbers(dateStr)
			numericMatch := false
			for _, outDate := range pattern.FindAllString(finalText, -1) {
				if equalInts(dateNumbers(outDate), dateNums) {
					numericMatch = true
					break
				}
			}
			if numericMatch {
				continue
			}
			issues = append(issues, domain.ValidationIssue{
				Type:        domain.IssueCoreDateMissing,
				Severity:    domain.SeverityWarning,
				Message:     fmt.Sprintf("원문 날짜/시간 누락: \"%s\"", dateStr),
				MatchedText: dateStr,
			})
		}
	}
	return issues
}

func checkSoftenContentDropped(finalText string, yellowTexts []string, issues []domain.ValidationIssue) []domain.ValidationIssue {
	for _, segText := range yellowTexts {
		if len([]rune(segText)) < 15 {
			continue
		}
		words := meaningWords(segText)
		if len(words) < 2 {
			continue
		}

		wordMatch := false
		for _, w := range words {
			if containsWithParticleVariation(finalText, w) {
				wordMatch = true
				break
			}
		}
		if wordMatch {
			continue
		}

		numberMatch := false
		for _, n := range bareNumberRe.FindAllString(segText, -1) {
			if strings.Contains(finalText, n) {
				numberMatch = true
				break
			}
		}
		if numberMatch {
			continue
		}

		issues = append(issues, domain.ValidationIssue{
			Type:     domain.IssueSoftenContentDropped,
			Severity: domain.SeverityWarning,
			Message:  fmt.Sprintf("SOFTEN 대상 내용 완전 소실: \"%s...\"", truncateRunes(segText, 30)),
		})
	}
	return issues
}

func checkInformalConjunction(finalText string, issues []domain.ValidationIssue) []domain.ValidationIssue {
	seen := make(map[string]bool)
	for _, m := range informalConjRe.FindAllStringSubmatch(finalText, -1) {
		word := m[1]
		if seen[word] {
			continue
		}
		seen[word] = true
		issues = append(issues, domain.ValidationIssue{
			Type:        domain.IssueInformalConjunction,
			Severity:    domain.SeverityWarning,
			Message:     fmt.Sprintf("구어체 접속사 감지: \"%s\"", word),
			MatchedText: word,
		})
	}
	return issues
}

func checkSectionS2Missing(finalText string, sections []template.Section, labeled []domain.LabeledSegment, issues []domain.ValidationIssue) []domain.ValidationIssue {
	if len(sections) == 0 || len(labeled) == 0 {
		return issues
	}
	hasS2 := false
	for _, s := range sections {
		if s == template.S2OurEffort {
			hasS2 = true
			break
		}
	}
	if !hasS2 {
		return issues
	}

	relevant := false
	for _, ls := range labeled {
		if ls.Label == domain.LabelAccountability || ls.Label == domain.LabelNegativeFeedback {
			relevant = true
			break
		}
	}
	if !relevant {
		return issues
	}

	if !s2EffortRe.MatchString(finalText) {
		issues = append(issues, domain.ValidationIssue{
			Type:     domain.IssueSectionS2Missing,
			Severity: domain.SeverityWarning,
			Message:  "S2(내부 확인/점검) 섹션 누락: 템플릿에 포함되어 있으나 출력에 확인/점검 표현 없음",
		})
	}
	return issues
}

func spanTextsContain(spans []domain.LockedSpan, s string) bool {
	for _, span := range spans {
		if strings.Contains(span.OriginalText, s) {
			return true
		}
	}
	return false
}

func meaningWords(text string) []string {
	var words []string
	for _, w := range meaningWordRe.FindAllString(text, -1) {
		if !validationStopwords[w] {
			words = append(words, w)
		}
	}
	return words
}

// containsWithParticleVariation also matches a word with its trailing
// particle syllables shaved off, down to two fewer runes.
func containsWithParticleVariation(text, word string) bool {
	if strings.Contains(text, word) {
		return true
	}
	runes := []rune(word)
	floor := len(runes) - 3
	if floor < 1 {
		floor = 1
	}
	for length := len(runes) - 1; length > floor; length-- {
		if strings.Contains(text, string(runes[:length])) {
			return true
		}
	}
	return false
}

func dateNumbers(dateStr string) []int {
	var nums []int
	for _, d := range digitsRe.FindAllString(dateStr, -1) {
		n := 0
		for _, r := range d {
			n = n*10 + int(r-'0')
		}
		nums = append(nums, n)
	}
	return nums
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
