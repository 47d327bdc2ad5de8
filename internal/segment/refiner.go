package segment

import (
	"context"
	"strconv"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"tonebridge/internal/domain"
	"tonebridge/internal/llm"
	"tonebridge/internal/logging"
)

// Refiner parameters. Temperature zero keeps the split deterministic.
const (
	RefineMinLengthDefault = 30
	refineTemperature      = 0.0
	refineMaxTokens        = 600
)

const refineSystemPrompt = "당신은 한국어 텍스트 의미 분절 전문가입니다.\n\n" +
	"각 항목이 둘 이상의 독립된 의미 단위(완결된 생각/주장/사실)를 포함할 때만 분리하세요.\n" +
	"하나의 의미 단위라면 길더라도 원문 그대로 출력하세요. 무리하게 쪼개지 마세요.\n\n" +
	"규칙:\n" +
	"1. 분리 시 ||| 를 삽입하세요\n" +
	"2. 원문 텍스트를 정확히 보존하세요 (한 글자도 변경/추가/삭제 금지)\n" +
	"3. {{TYPE_N}} 형식 플레이스홀더(예: {{DATE_1}}, {{PHONE_1}})는 절대 분리하지 마세요\n" +
	"4. 너무 짧은 조각(10자 미만)이 생기지 않도록 하세요\n" +
	"5. [N] 번호를 유지하고, 각 항목을 한 줄에 출력하세요"

// RefineResult carries the (possibly re-split) segments plus token
// accounting for the single batched call.
type RefineResult struct {
	Segments         []domain.Segment
	PromptTokens     int
	CompletionTokens int
	// Refined is false when no segment was long enough to batch.
	Refined bool
}

// Refine batches every segment longer than minLength into one model
// call that inserts ||| at semantic boundaries, then rebuilds the full
// list with fresh T1..Tn IDs. Any model or validation failure keeps
// the original segments.
func Refine(
	ctx context.Context,
	client llm.Client,
	segments []domain.Segment,
	maskedText string,
	minLength int,
) RefineResult {
	if minLength <= 0 {
		minLength = RefineMinLengthDefault
	}
	log := logging.For(logging.CategoryPipeline)

	var longIndices []int
	for i, seg := range segments {
		if utf8.RuneCountInString(seg.Text) > minLength {
			longIndices = append(longIndices, i)
		}
	}
	if len(longIndices) == 0 {
		return RefineResult{Segments: segments}
	}

	var sb strings.Builder
	for i, idx := range longIndices {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString("[" + strconv.Itoa(i+1) + "] ")
		sb.WriteString(segments[idx].Text)
	}

	res, err := client.Complete(ctx, llm.Request{
		System:      refineSystemPrompt,
		User:        sb.String(),
		Temperature: refineTemperature,
		MaxTokens:   refineMaxTokens,
	})
	if err != nil {
		log.Warn("segment refiner call failed, keeping original segments", zap.Error(err))
		return RefineResult{Segments: segments}
	}

	splits := parseRefineResponse(res.Content, segments, longIndices)
	refined := rebuildSegments(segments, longIndices, splits, maskedText)
	log.Info("segment refiner applied",
		zap.Int("before", len(segments)),
		zap.Int("after", len(refined)),
		zap.Int("long_segments", len(longIndices)))

	return RefineResult{
		Segments:         refined,
		PromptTokens:     res.PromptTokens,
		CompletionTokens: res.CompletionTokens,
		Refined:          true,
	}
}

// parseRefineResponse maps each batched entry back to its parts.
// Entries the model skipped or mangled keep the original text.
func parseRefineResponse(response string, segments []domain.Segment, longIndices []int) [][]string {
	result := make([][]string, len(longIndices))
	for i, idx := range longIndices {
		result[i] = []string{segments[idx].Text}
	}

	for _, line := range strings.Split(response, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || !strings.HasPrefix(line, "[") {
			continue
		}
		bracket := strings.Index(line, "]")
		if bracket < 0 {
			continue
		}
		entryNum, err := strconv.Atoi(line[1:bracket])
		if err != nil || entryNum < 1 || entryNum > len(longIndices) {
			continue
		}
		content := strings.TrimSpace(line[bracket+1:])
		originalText := segments[longIndices[entryNum-1]].Text

		var parts []string
		for _, p := range strings.Split(content, "|||") {
			if p = strings.TrimSpace(p); p != "" {
				parts = append(parts, p)
			}
		}

		switch {
		case len(parts) > 1 && validateParts(parts, originalText):
			result[entryNum-1] = parts
		case len(parts) == 1:
			result[entryNum-1] = []string{originalText}
		}
	}
	return result
}

// validateParts requires every part to appear in the original text in
// order. Whitespace-collapsed fallback tolerates minor respacing.
func validateParts(parts []string, originalText string) bool {
	searchFrom := 0
	for _, part := range parts {
		pos := indexFrom(originalText, part, searchFrom)
		if pos < 0 {
			normalized := strings.Join(strings.Fields(part), " ")
			pos = indexFrom(originalText, normalized, searchFrom)
			if pos < 0 {
				return false
			}
		}
		searchFrom = pos + len(part)
	}
	return true
}

func indexFrom(s, substr string, from int) int {
	if from >= len(s) {
		return -1
	}
	if pos := strings.Index(s[from:], substr); pos >= 0 {
		return from + pos
	}
	return -1
}

// rebuildSegments walks the original order, expanding refined entries
// in place, recovering positions against the masked text with a moving
// cursor.
func rebuildSegments(
	original []domain.Segment,
	longIndices []int,
	splits [][]string,
	maskedText string,
) []domain.Segment {
	var result []domain.Segment
	longIdx := 0
	segID := 1

	for i, seg := range original {
		if longIdx < len(longIndices) && longIndices[longIdx] == i {
			searchFrom := seg.Start
			for _, part := range splits[longIdx] {
				pos := indexFrom(maskedText, part, searchFrom)
				if pos < 0 {
					pos = searchFrom
					logging.For(logging.CategoryPipeline).Warn("refined part not found in masked text",
						zap.Int("fallback_pos", pos))
				}
				end := pos + len(part)
				if end > len(maskedText) {
					end = len(maskedText)
				}
				result = append(result, domain.Segment{
					ID: "T" + strconv.Itoa(segID), Text: part, Start: pos, End: end,
				})
				segID++
				searchFrom = end
			}
			longIdx++
		} else {
			result = append(result, domain.Segment{
				ID: "T" + strconv.Itoa(segID), Text: seg.Text, Start: seg.Start, End: seg.End,
			})
			segID++
		}
	}
	return result
}
