// Package situation extracts objective facts and the sender's intent
// from the masked text, giving the final model grounded context. The
// analysis runs concurrently with the labeling stages and is joined
// after redaction, where facts grounded in RED segments are dropped.
package situation

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"tonebridge/internal/domain"
	"tonebridge/internal/llm"
	"tonebridge/internal/logging"
	"tonebridge/internal/promptbuild"
)

const (
	analyzeTemperature = 0.2
	analyzeMaxTokens   = 500
)

const systemPrompt = "당신은 한국어 메시지 상황 분석 전문가입니다.\n" +
	"원문과 메타데이터를 분석하여 객관적 사실(facts)과 화자의 핵심 목적(intent)을 추출합니다.\n\n" +
	"## 규칙\n" +
	"1. facts: 원문에서 직접 읽히는 객관적 사실만 추출 (최대 5개)\n" +
	"2. 각 fact의 content: 사실을 명확한 1문장으로 요약\n" +
	"3. 각 fact의 source: 해당 사실의 근거가 되는 원문 구절을 **정확히 인용** (변형 금지)\n" +
	"4. intent: 화자의 핵심 전달 목적을 1~2문장으로 요약\n" +
	"5. 지시대명사(\"그거\", \"이것\", \"저기\") → 원문 맥락에서 해석하여 구체적 대상으로 복원\n" +
	"6. 생략된 주어 → 문맥에서 추론하여 복원\n" +
	"7. `{{TYPE_N}}` 형식 플레이스홀더(예: {{DATE_1}}, {{PHONE_1}})는 그대로 유지\n" +
	"8. 근거 없는 추측 금지. 원문에서 직접 읽히는 것만\n\n" +
	"## 출력 형식 (JSON만, 다른 텍스트 금지)\n" +
	"{\n" +
	"  \"facts\": [\n" +
	"    {\"content\": \"사실 요약\", \"source\": \"원문 그대로 인용\"},\n" +
	"    ...\n" +
	"  ],\n" +
	"  \"intent\": \"화자의 핵심 목적\"\n" +
	"}\n\n" +
	"## 예시\n\n" +
	"입력:\n" +
	"받는 사람: 학부모\n" +
	"상황: 피드백\n" +
	"원문:\n" +
	"아이가 수학 시험에서 {{UNIT_NUMBER_1}} 맞았는데 그거 반 평균보다 낮은 거잖아요. " +
	"선생님이 보충수업 해주신다고 했는데 아직 연락이 없어서요.\n\n" +
	"출력:\n" +
	"{\n" +
	"  \"facts\": [\n" +
	"    {\"content\": \"아이의 수학 시험 점수가 {{UNIT_NUMBER_1}}이다\", " +
	"\"source\": \"아이가 수학 시험에서 {{UNIT_NUMBER_1}} 맞았는데\"},\n" +
	"    {\"content\": \"아이의 점수가 반 평균보다 낮다\", " +
	"\"source\": \"그거 반 평균보다 낮은 거잖아요\"},\n" +
	"    {\"content\": \"선생님이 보충수업을 해주기로 했으나 아직 연락이 없다\", " +
	"\"source\": \"선생님이 보충수업 해주신다고 했는데 아직 연락이 없어서요\"}\n" +
	"  ],\n" +
	"  \"intent\": \"보충수업 일정을 확인하고, 아이의 성적 개선을 위한 후속 조치를 요청하려는 목적\"\n" +
	"}"

// Fact is one extracted statement with its verbatim source quote.
type Fact struct {
	Content string `json:"content"`
	Source  string `json:"source"`
}

// Result is the analysis outcome. Fired is false when the call or
// parse failed and the result is empty.
type Result struct {
	Facts            []Fact
	Intent           string
	PromptTokens     int
	CompletionTokens int
	Fired            bool
}

// Input carries the request metadata for the analysis call.
type Input struct {
	Persona    domain.Persona
	Contexts   []domain.SituationContext
	Tone       domain.ToneLevel
	MaskedText string
	UserPrompt string
	SenderInfo string
}

// Analyze runs the situation analysis call. Failures degrade to an
// empty result, never an error: the pipeline continues without the
// analysis block.
func Analyze(ctx context.Context, client llm.Client, in Input) Result {
	log := logging.For(logging.CategoryLLM)

	var parts []string
	parts = append(parts, "받는 사람: "+promptbuild.PersonaLabel(in.Persona))
	parts = append(parts, "상황: "+promptbuild.ContextLabelList(in.Contexts))
	parts = append(parts, "말투 강도: "+promptbuild.ToneLabel(in.Tone))
	if s := strings.TrimSpace(in.SenderInfo); s != "" {
		parts = append(parts, "보내는 사람: "+in.SenderInfo)
	}
	if s := strings.TrimSpace(in.UserPrompt); s != "" {
		parts = append(parts, "참고 맥락: "+in.UserPrompt)
	}
	parts = append(parts, "\n원문:\n"+in.MaskedText)

	res, err := client.Complete(ctx, llm.Request{
		System:      systemPrompt,
		User:        strings.Join(parts, "\n"),
		Temperature: analyzeTemperature,
		MaxTokens:   analyzeMaxTokens,
		JSONMode:    true,
	})
	if err != nil {
		log.Warn("situation analysis call failed, continuing without it", zap.Error(err))
		return Result{}
	}

	parsed, ok := parseResult(res.Content)
	if !ok {
		log.Warn("situation analysis parse failed, continuing without it")
		return Result{PromptTokens: res.PromptTokens, CompletionTokens: res.CompletionTokens}
	}
	parsed.PromptTokens = res.PromptTokens
	parsed.CompletionTokens = res.CompletionTokens
	parsed.Fired = true
	return parsed
}

func parseResult(content string) (Result, bool) {
	var root struct {
		Facts []struct {
			Content string `json:"content"`
			Source  string `json:"source"`
		} `json:"facts"`
		Intent string `json:"intent"`
	}
	cleaned := strings.TrimSpace(content)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	if err := json.Unmarshal([]byte(cleaned), &root); err != nil {
		return Result{}, false
	}

	var out Result
	for _, f := range root.Facts {
		if f.Content != "" {
			out.Facts = append(out.Facts, Fact{Content: f.Content, Source: f.Source})
		}
	}
	out.Intent = root.Intent
	return out, true
}

var (
	koreanWordRe  = regexp.MustCompile(`[가-힣]{2,}`)
	matchStripRe  = regexp.MustCompile(`[^가-힣a-zA-Z0-9]`)
	factStopwords = map[string]bool{
		"그리고": true, "하지만": true, "그래서": true, "때문에": true, "그런데": true,
		"그러나": true, "또한": true, "이런": true, "저런": true, "그런": true,
		"이것": true, "저것": true, "그것": true, "여기": true, "거기": true,
		"저기": true, "우리": true, "너희": true, "이번": true, "다음": true,
	}
)

// FilterRedFacts drops facts whose source overlaps a RED segment, so
// deleted content cannot leak back through the analysis block. Three
// matching tiers: positional overlap in the masked text, normalized
// containment in a RED segment, and 2+ meaningful words shared with
// one RED segment.
func FilterRedFacts(res Result, maskedText string, labeled []domain.LabeledSegment) Result {
	var redSegments []domain.LabeledSegment
	for _, ls := range labeled {
		if ls.Label.Tier() == domain.TierRed {
			redSegments = append(redSegments, ls)
		}
	}
	if len(redSegments) == 0 {
		return res
	}

	log := logging.For(logging.CategoryPipeline)
	var kept []Fact

facts:
	for _, fact := range res.Facts {
		if strings.TrimSpace(fact.Source) == "" {
			kept = append(kept, fact)
			continue
		}

		if start := strings.Index(maskedText, fact.Source); start >= 0 {
			end := start + len(fact.Source)
			for _, red := range redSegments {
				if start < red.End && end > red.Start {
					log.Info("filtered RED-overlapping fact", zap.String("content", fact.Content))
					continue facts
				}
			}
			kept = append(kept, fact)
			continue
		}

		if normalized := normalizeForMatch(fact.Source); normalized != "" {
			for _, red := range redSegments {
				if strings.Contains(normalizeForMatch(red.Text), normalized) {
					log.Info("filtered RED-overlapping fact", zap.String("content", fact.Content))
					continue facts
				}
			}
		}

		if words := meaningWords(fact.Source); len(words) >= 2 {
			for _, red := range redSegments {
				hits := 0
				for _, w := range words {
					if strings.Contains(red.Text, w) {
						hits++
					}
				}
				if hits >= 2 {
					log.Info("filtered RED-overlapping fact", zap.String("content", fact.Content))
					continue facts
				}
			}
		}

		kept = append(kept, fact)
	}

	res.Facts = kept
	return res
}

func normalizeForMatch(text string) string {
	return strings.ToLower(matchStripRe.ReplaceAllString(text, ""))
}

func meaningWords(text string) []string {
	var words []string
	for _, w := range koreanWordRe.FindAllString(text, -1) {
		if !factStopwords[w] {
			words = append(words, w)
		}
	}
	return words
}
