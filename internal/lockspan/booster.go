package lockspan

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"

	"tonebridge/internal/domain"
	"tonebridge/internal/llm"
	"tonebridge/internal/logging"
)

// Identity boost model parameters. Speed matters here, so no thinking
// budget and a tight token cap.
const (
	boosterTemperature = 0.2
	boosterMaxTokens   = 300
)

const boosterSystemPrompt = "당신은 텍스트에서 변경 불가능한 고유 표현을 추출하는 전문가입니다.\n" +
	"정규식으로 잡을 수 없는, 대체하면 의미가 달라지는 고유 식별자만 찾습니다.\n\n" +
	"이미 마스킹된 {{TYPE_N}} 형식의 플레이스홀더(예: {{DATE_1}}, {{PHONE_1}})는 무시하세요.\n" +
	"날짜, 시간, 전화번호, 이메일, URL, 금액 등은 이미 처리되었으므로 제외하세요.\n\n" +
	"## 추출 대상 (고유 식별자만)\n" +
	"- 사람/회사/기관의 고유 이름 (예: 김민수, ㈜한빛소프트)\n" +
	"- 프로젝트/제품/서비스 고유 명칭 (예: Project Alpha, 스터디플랜 v2)\n" +
	"- 파일명, 코드명, 시스템명 (예: report_final.xlsx, ERP)\n\n" +
	"## 제외 대상 (절대 추출 금지)\n" +
	"- 일반 명사, 보통 명사, 일상 어휘\n" +
	"- 관계/역할 호칭 (학부모, 담임, 교수, 팀장, 고객, 선생님 등)\n" +
	"- 메타데이터에 이미 명시된 정보 (받는 사람, 상황 등)\n" +
	"- 누구나 쓸 수 있는 범용 단어\n\n" +
	"기준: \"이 단어를 다른 말로 바꾸면 지칭 대상이 달라지는가?\" → Yes만 추출.\n\n" +
	"변경 불가 표현을 한 줄에 하나씩, \"- \" 접두사로 작성하세요.\n" +
	"예:\n" +
	"- 김민수\n" +
	"- report_final.xlsx\n" +
	"- ㈜한빛소프트\n\n" +
	"예시 (추출 없음):\n" +
	"원문: 내일까지 보고서 제출 부탁드립니다\n" +
	"출력: 없음\n\n" +
	"변경 불가 표현이 없으면 \"없음\"이라고만 작성하세요."

// BoostResult carries the booster's new spans and token accounting.
type BoostResult struct {
	ExtraSpans       []domain.LockedSpan
	PromptTokens     int
	CompletionTokens int
}

// BoostIdentity asks the analysis model for proper names the regex
// extractor cannot catch and converts them to SEMANTIC spans anchored
// in the normalized text. Existing spans are never touched; on model
// failure the caller keeps the original span set.
func BoostIdentity(
	ctx context.Context,
	client llm.Client,
	normalizedText string,
	currentSpans []domain.LockedSpan,
	maskedText string,
) (BoostResult, error) {
	res, err := client.Complete(ctx, llm.Request{
		System:      boosterSystemPrompt,
		User:        "원문:\n" + maskedText,
		Temperature: boosterTemperature,
		MaxTokens:   boosterMaxTokens,
	})
	if err != nil {
		return BoostResult{}, fmt.Errorf("identity boost call: %w", err)
	}

	extra := parseSemanticSpans(normalizedText, currentSpans, res.Content)
	if len(extra) > 0 {
		logging.For(logging.CategoryPipeline).Info("identity booster found semantic spans",
			zap.Int("count", len(extra)))
	}
	return BoostResult{
		ExtraSpans:       extra,
		PromptTokens:     res.PromptTokens,
		CompletionTokens: res.CompletionTokens,
	}, nil
}

// MergeSpans combines extractor and booster spans sorted by start
// position, ready for re-masking.
func MergeSpans(spans, extra []domain.LockedSpan) []domain.LockedSpan {
	merged := make([]domain.LockedSpan, 0, len(spans)+len(extra))
	merged = append(merged, spans...)
	merged = append(merged, extra...)
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].StartPos < merged[j].StartPos
	})
	return merged
}

func parseSemanticSpans(normalizedText string, existing []domain.LockedSpan, output string) []domain.LockedSpan {
	output = strings.TrimSpace(output)
	if output == "" || output == "없음" {
		return nil
	}

	known := make([]domain.LockedSpan, len(existing))
	copy(known, existing)

	nameIndex := 0
	for _, s := range existing {
		if s.Type.PlaceholderPrefix() == "NAME" {
			nameIndex++
		}
	}

	var result []domain.LockedSpan
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "- ") {
			continue
		}
		text := strings.TrimSpace(line[2:])
		if utf8.RuneCountInString(text) < 2 {
			continue
		}

		for _, pos := range findWordBounded(normalizedText, text) {
			end := pos + len(text)
			if overlapsAny(pos, end, known) {
				continue
			}
			nameIndex++
			span := domain.LockedSpan{
				Index:        nameIndex,
				OriginalText: text,
				Placeholder:  fmt.Sprintf("{{NAME_%d}}", nameIndex),
				Type:         domain.SpanSemantic,
				StartPos:     pos,
				EndPos:       end,
			}
			result = append(result, span)
			known = append(known, span)
		}
	}
	return result
}

func overlapsAny(start, end int, spans []domain.LockedSpan) bool {
	for _, s := range spans {
		if start < s.EndPos && end > s.StartPos {
			return true
		}
	}
	return false
}

// findWordBounded returns the byte offsets of word-bounded occurrences
// of needle in haystack. Korean edges require the adjacent rune to be
// non-Korean; ASCII word edges follow \b semantics.
func findWordBounded(haystack, needle string) []int {
	var offsets []int
	firstRune, _ := utf8.DecodeRuneInString(needle)
	lastRune, _ := utf8.DecodeLastRuneInString(needle)

	from := 0
	for {
		i := strings.Index(haystack[from:], needle)
		if i < 0 {
			return offsets
		}
		start := from + i
		end := start + len(needle)

		prev, _ := utf8.DecodeLastRuneInString(haystack[:start])
		next, _ := utf8.DecodeRuneInString(haystack[end:])

		if boundaryOK(firstRune, prev) && boundaryOK(lastRune, next) {
			offsets = append(offsets, start)
			from = end
		} else {
			from = start + 1
		}
	}
}

// boundaryOK reports whether neighbor may sit next to an occurrence
// whose edge rune is edge. utf8.RuneError from an empty decode means
// text boundary, which always qualifies.
func boundaryOK(edge, neighbor rune) bool {
	if neighbor == utf8.RuneError {
		return true
	}
	if isKoreanRune(edge) {
		return !isKoreanRune(neighbor)
	}
	if isWordRune(edge) {
		return !isWordRune(neighbor)
	}
	return true
}

func isKoreanRune(r rune) bool {
	return (r >= 0xAC00 && r <= 0xD7A3) || // syllables
		(r >= 0x3131 && r <= 0x314E) || // jamo consonants
		(r >= 0x314F && r <= 0x3163) // jamo vowels
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
