package gating

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tonebridge/internal/domain"
	"tonebridge/internal/llm"
)

func gateInput() GateInput {
	return GateInput{
		Persona:    domain.PersonaClient,
		Contexts:   []domain.SituationContext{domain.ContextRequest},
		Tone:       domain.TonePolite,
		MaskedText: "환불 처리 관련하여 문의드립니다.",
		Labeled: []domain.LabeledSegment{
			{SegmentID: "T1", Label: domain.LabelCoreIntent},
			{SegmentID: "T2", Label: domain.LabelRequest},
		},
	}
}

func TestEvaluateContextGateOverride(t *testing.T) {
	client := llm.NewScriptedClient("gpt-4o-mini").Queue(`{
		"should_override": true,
		"confidence": 0.85,
		"inferred": {
			"topic": "REFUND_CANCEL",
			"purpose": "REFUND_REJECTION",
			"primary_context": "REJECTION",
			"template_id": "T11_REFUND_REJECTION"
		},
		"reasons": ["텍스트가 환불 거절 안내"],
		"safety_notes": []
	}`)

	res := EvaluateContextGate(context.Background(), client, gateInput())
	require.True(t, res.MeetsThreshold())
	assert.Equal(t, domain.TopicRefundCancel, res.InferredTopic)
	assert.Equal(t, domain.PurposeRefundRejection, res.InferredPurpose)
	assert.Equal(t, domain.ContextRejection, res.InferredPrimaryContext)
	assert.Equal(t, "T11_REFUND_REJECTION", res.InferredTemplateID)
	assert.Len(t, res.Reasons, 1)

	calls := client.Calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].User, "사용자 메타:")
	assert.Contains(t, calls[0].User, "- 수신자: CLIENT")
	assert.Contains(t, calls[0].User, "- 주제: 미지정")
	assert.Contains(t, calls[0].User, "라벨 요약: T1:CORE_INTENT, T2:REQUEST")
	assert.True(t, calls[0].JSONMode)
}

func TestEvaluateContextGateBelowThreshold(t *testing.T) {
	client := llm.NewScriptedClient("gpt-4o-mini").
		Queue(`{"should_override": true, "confidence": 0.5, "inferred": {}, "reasons": [], "safety_notes": []}`)
	res := EvaluateContextGate(context.Background(), client, gateInput())
	assert.True(t, res.ShouldOverride)
	assert.False(t, res.MeetsThreshold())
}

func TestEvaluateContextGateNullInferred(t *testing.T) {
	client := llm.NewScriptedClient("gpt-4o-mini").Queue(`{
		"should_override": false,
		"confidence": 0.9,
		"inferred": {"topic": "null", "purpose": null, "primary_context": "", "template_id": "null"}
	}`)
	res := EvaluateContextGate(context.Background(), client, gateInput())
	assert.False(t, res.MeetsThreshold())
	assert.Empty(t, res.InferredTopic)
	assert.Empty(t, res.InferredPurpose)
	assert.Empty(t, res.InferredPrimaryContext)
	assert.Empty(t, res.InferredTemplateID)
}

func TestEvaluateContextGateCallFailure(t *testing.T) {
	client := llm.NewScriptedClient("gpt-4o-mini").QueueError(errors.New("upstream 500"))
	res := EvaluateContextGate(context.Background(), client, gateInput())
	assert.False(t, res.ShouldOverride)
	require.Len(t, res.SafetyNotes, 1)
	assert.Contains(t, res.SafetyNotes[0], "LLM call failed")
}

func TestEvaluateContextGateParseFailure(t *testing.T) {
	client := llm.NewScriptedClient("gpt-4o-mini").Queue("죄송하지만 분석할 수 없습니다")
	res := EvaluateContextGate(context.Background(), client, gateInput())
	assert.False(t, res.ShouldOverride)
	require.Len(t, res.SafetyNotes, 1)
	assert.Contains(t, res.SafetyNotes[0], "Parse failed")
	// Token usage still counted on parse failures.
	assert.Equal(t, 10, res.PromptTokens)
}

func TestEvaluateContextGateTruncatesLongText(t *testing.T) {
	in := gateInput()
	long := make([]rune, 1500)
	for i := range long {
		long[i] = '가'
	}
	in.MaskedText = string(long)

	client := llm.NewScriptedClient("gpt-4o-mini").
		Queue(`{"should_override": false, "confidence": 0.1, "inferred": {}}`)
	EvaluateContextGate(context.Background(), client, in)

	calls := client.Calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].User, "...")
	assert.NotContains(t, calls[0].User, in.MaskedText)
}
