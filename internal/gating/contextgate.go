package gating

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"tonebridge/internal/domain"
	"tonebridge/internal/llm"
	"tonebridge/internal/logging"
)

const (
	gateTemperature = 0.2
	gateMaxTokens   = 300
	gateTextLimit   = 1200

	// OverrideConfidenceThreshold is the minimum model confidence
	// before an override is applied to the user's metadata.
	OverrideConfidenceThreshold = 0.72
)

const gateSystemPrompt = "당신은 한국어 메시지의 메타데이터 검증 전문가입니다.\n" +
	"사용자가 선택한 메타데이터(수신자/상황/주제/목적)와 실제 텍스트 내용이 일치하는지 검증하세요.\n\n" +
	"응답은 반드시 JSON 형식으로:\n" +
	"{\n" +
	"  \"should_override\": true/false,\n" +
	"  \"confidence\": 0.0~1.0,\n" +
	"  \"inferred\": {\n" +
	"    \"topic\": \"ENUM값 또는 null\",\n" +
	"    \"purpose\": \"ENUM값 또는 null\",\n" +
	"    \"primary_context\": \"ENUM값 또는 null\",\n" +
	"    \"template_id\": \"T01~T12 또는 null\"\n" +
	"  },\n" +
	"  \"reasons\": [\"이유1\", \"이유2\"],\n" +
	"  \"safety_notes\": [\"주의사항\"]\n" +
	"}\n\n" +
	"Topic: REFUND_CANCEL, OUTAGE_ERROR, ACCOUNT_PERMISSION, DATA_FILE, SCHEDULE_DEADLINE, " +
	"COST_BILLING, CONTRACT_TERMS, HR_EVALUATION, ACADEMIC_GRADE, COMPLAINT_REGULATION, OTHER\n" +
	"Purpose: INFO_DELIVERY, DATA_REQUEST, SCHEDULE_COORDINATION, APOLOGY_RECOVERY, " +
	"RESPONSIBILITY_SEPARATION, REJECTION_NOTICE, REFUND_REJECTION, WARNING_PREVENTION, " +
	"RELATIONSHIP_RECOVERY, NEXT_ACTION_CONFIRM, ANNOUNCEMENT\n" +
	"Context: REQUEST, SCHEDULE_DELAY, URGING, REJECTION, APOLOGY, COMPLAINT, ANNOUNCEMENT, " +
	"FEEDBACK, BILLING, SUPPORT, CONTRACT, RECRUITING, CIVIL_COMPLAINT, GRATITUDE\n\n" +
	"규칙:\n" +
	"- 메타데이터가 텍스트 내용과 명백히 불일치할 때만 should_override=true\n" +
	"- 애매한 경우 should_override=false (사용자 의도 존중)\n" +
	"- inferred 값은 확신이 있을 때만 제공, 아니면 null"

// GateInput is the request metadata plus labeling outcome the check
// verifies against.
type GateInput struct {
	Persona    domain.Persona
	Contexts   []domain.SituationContext
	Topic      domain.Topic
	Purpose    domain.Purpose
	Tone       domain.ToneLevel
	MaskedText string
	Labeled    []domain.LabeledSegment
}

// GateResult is the parsed verdict. A failed call or parse degrades to
// a no-override result carrying a safety note.
type GateResult struct {
	ShouldOverride         bool
	Confidence             float64
	InferredTopic          domain.Topic
	InferredPurpose        domain.Purpose
	InferredPrimaryContext domain.SituationContext
	InferredTemplateID     string
	Reasons                []string
	SafetyNotes            []string
	PromptTokens           int
	CompletionTokens       int
}

// MeetsThreshold reports whether the override should actually apply.
func (r GateResult) MeetsThreshold() bool {
	return r.ShouldOverride && r.Confidence >= OverrideConfidenceThreshold
}

// EvaluateContextGate runs the mismatch check on the secondary model.
func EvaluateContextGate(ctx context.Context, client llm.Client, in GateInput) GateResult {
	log := logging.For(logging.CategoryLLM)

	var labelParts []string
	for _, ls := range in.Labeled {
		labelParts = append(labelParts, fmt.Sprintf("%s:%s", ls.SegmentID, ls.Label))
	}

	text := in.MaskedText
	if len([]rune(text)) > gateTextLimit {
		text = string([]rune(text)[:gateTextLimit]) + "..."
	}

	topic := "미지정"
	if in.Topic != "" {
		topic = string(in.Topic)
	}
	purpose := "미지정"
	if in.Purpose != "" {
		purpose = string(in.Purpose)
	}
	var ctxNames []string
	for _, c := range in.Contexts {
		ctxNames = append(ctxNames, string(c))
	}

	user := "사용자 메타:\n" +
		"- 수신자: " + string(in.Persona) + "\n" +
		"- 상황: " + strings.Join(ctxNames, ", ") + "\n" +
		"- 주제: " + topic + "\n" +
		"- 목적: " + purpose + "\n" +
		"- 톤: " + string(in.Tone) + "\n\n" +
		"라벨 요약: " + strings.Join(labelParts, ", ") + "\n\n" +
		"텍스트 (마스킹):\n" + text

	res, err := client.Complete(ctx, llm.Request{
		System:      gateSystemPrompt,
		User:        user,
		Temperature: gateTemperature,
		MaxTokens:   gateMaxTokens,
		JSONMode:    true,
	})
	if err != nil {
		log.Warn("context gate call failed, keeping user metadata", zap.Error(err))
		return GateResult{SafetyNotes: []string{fmt.Sprintf("LLM call failed: %v", err)}}
	}

	out, perr := parseGateResult(res.Content)
	out.PromptTokens = res.PromptTokens
	out.CompletionTokens = res.CompletionTokens
	if perr != nil {
		log.Warn("context gate parse failed, keeping user metadata", zap.Error(perr))
		return GateResult{
			SafetyNotes:      []string{fmt.Sprintf("Parse failed: %v", perr)},
			PromptTokens:     res.PromptTokens,
			CompletionTokens: res.CompletionTokens,
		}
	}
	return out
}

func parseGateResult(content string) (GateResult, error) {
	var root struct {
		ShouldOverride bool    `json:"should_override"`
		Confidence     float64 `json:"confidence"`
		Inferred       struct {
			Topic          string `json:"topic"`
			Purpose        string `json:"purpose"`
			PrimaryContext string `json:"primary_context"`
			TemplateID     string `json:"template_id"`
		} `json:"inferred"`
		Reasons     []string `json:"reasons"`
		SafetyNotes []string `json:"safety_notes"`
	}

	cleaned := strings.TrimSpace(content)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	if err := json.Unmarshal([]byte(cleaned), &root); err != nil {
		return GateResult{}, err
	}

	out := GateResult{
		ShouldOverride: root.ShouldOverride,
		Confidence:     root.Confidence,
		Reasons:        root.Reasons,
		SafetyNotes:    root.SafetyNotes,
	}
	if t, ok := domain.ParseTopic(nullable(root.Inferred.Topic)); ok {
		out.InferredTopic = t
	}
	if p, ok := domain.ParsePurpose(nullable(root.Inferred.Purpose)); ok {
		out.InferredPurpose = p
	}
	if c, ok := domain.ParseSituationContext(nullable(root.Inferred.PrimaryContext)); ok {
		out.InferredPrimaryContext = c
	}
	if id := nullable(root.Inferred.TemplateID); id != "" {
		out.InferredTemplateID = id
	}
	return out, nil
}

func nullable(v string) string {
	if v == "null" {
		return ""
	}
	return v
}
