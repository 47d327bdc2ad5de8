package label

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tonebridge/internal/domain"
	"tonebridge/internal/llm"
)

func makeSegments(texts ...string) []domain.Segment {
	segs := make([]domain.Segment, len(texts))
	pos := 0
	for i, t := range texts {
		segs[i] = domain.Segment{
			ID:    "T" + string(rune('1'+i)),
			Text:  t,
			Start: pos,
			End:   pos + len(t),
		}
		pos += len(t) + 1
	}
	return segs
}

func basicInput(segs []domain.Segment) Input {
	var texts []string
	for _, s := range segs {
		texts = append(texts, s.Text)
	}
	return Input{
		Persona:    domain.PersonaBoss,
		Contexts:   []domain.SituationContext{domain.ContextRequest},
		Tone:       domain.TonePolite,
		Segments:   segs,
		MaskedText: strings.Join(texts, " "),
	}
}

func TestLabelParsesHappyPath(t *testing.T) {
	segs := makeSegments("보고서 제출이 늦어졌습니다", "내일까지 제출하겠습니다")
	client := llm.NewScriptedClient("primary").
		Queue("T1|CORE_FACT\nT2|CORE_INTENT\nSUMMARY: 보고서 지연 안내")

	res, err := New(client, client).Label(context.Background(), basicInput(segs))
	require.NoError(t, err)
	require.Len(t, res.Labeled, 2)
	assert.Equal(t, domain.LabelCoreFact, res.Labeled[0].Label)
	assert.Equal(t, domain.LabelCoreIntent, res.Labeled[1].Label)
	assert.Equal(t, "보고서 지연 안내", res.Summary)
	assert.False(t, res.YellowRecoveryApplied)
}

func TestLabelUserMessageShape(t *testing.T) {
	segs := makeSegments("첫 문장", "둘째 문장")
	client := llm.NewScriptedClient("primary").Queue("T1|CORE_FACT\nT2|REQUEST")

	in := basicInput(segs)
	in.SenderInfo = "개발팀 김OO"
	in.UserPrompt = "사내 공지입니다"
	_, err := New(client, client).Label(context.Background(), in)
	require.NoError(t, err)

	calls := client.Calls()
	require.Len(t, calls, 1)
	msg := calls[0].User
	assert.Contains(t, msg, "받는 사람: 직장 상사")
	assert.Contains(t, msg, "상황: 요청")
	assert.Contains(t, msg, "말투 강도: 공손")
	assert.Contains(t, msg, "보내는 사람: 개발팀 김OO")
	assert.Contains(t, msg, "참고 맥락: 사내 공지입니다")
	assert.Contains(t, msg, "[서버 세그먼트]")
	assert.Contains(t, msg, "T1: 첫 문장")
	assert.Contains(t, msg, "[마스킹된 원문]")
}

func TestLabelToleratesMarkdownNoise(t *testing.T) {
	segs := makeSegments("사실 전달", "부탁드립니다")
	client := llm.NewScriptedClient("primary").
		Queue("```\n# 분석\n**T1**|CORE_FACT\n- T2|REQUEST\n---\n```")

	res, err := New(client, client).Label(context.Background(), basicInput(segs))
	require.NoError(t, err)
	require.Len(t, res.Labeled, 2)
	assert.Equal(t, domain.LabelCoreFact, res.Labeled[0].Label)
	assert.Equal(t, domain.LabelRequest, res.Labeled[1].Label)
}

func TestLabelMigratesLegacyNames(t *testing.T) {
	segs := makeSegments("디자인팀 자료가 늦었습니다", "핵심 요청입니다")
	client := llm.NewScriptedClient("primary").
		Queue("T1|SELF_DEFENSIVE\nT2|CORE_INTENT")

	res, err := New(client, client).Label(context.Background(), basicInput(segs))
	require.NoError(t, err)
	assert.Equal(t, domain.LabelSelfJustification, res.Labeled[0].Label)
}

func TestLabelUnknownLabelDefaultsCourtesy(t *testing.T) {
	segs := makeSegments("안녕하세요", "확인 부탁드립니다")
	client := llm.NewScriptedClient("primary").
		Queue("T1|NOT_A_LABEL\nT2|REQUEST")

	res, err := New(client, client).Label(context.Background(), basicInput(segs))
	require.NoError(t, err)
	assert.Equal(t, domain.LabelCourtesy, res.Labeled[0].Label)
}

func TestLabelRetriesOnLowCoverage(t *testing.T) {
	segs := makeSegments("하나", "둘", "셋", "넷")
	client := llm.NewScriptedClient("primary").
		Queue("T1|CORE_FACT").
		Queue("T1|CORE_FACT\nT2|REQUEST\nT3|COURTESY\nT4|COURTESY")

	res, err := New(client, client).Label(context.Background(), basicInput(segs))
	require.NoError(t, err)
	require.Len(t, res.Labeled, 4)

	calls := client.Calls()
	require.Len(t, calls, 2)
	assert.Contains(t, calls[1].User, "[시스템 경고]")
	assert.Contains(t, calls[1].User, "T2, T3, T4")
}

func TestLabelAllCourtesyFallback(t *testing.T) {
	segs := makeSegments("하나", "둘", "셋")
	client := llm.NewScriptedClient("primary").
		Queue("의미 없는 응답").
		Queue("또 의미 없는 응답")

	res, err := New(client, client).Label(context.Background(), basicInput(segs))
	require.NoError(t, err)
	require.Len(t, res.Labeled, 3)
	for _, ls := range res.Labeled {
		assert.Equal(t, domain.LabelCourtesy, ls.Label)
	}
}

func TestLabelPrimaryErrorPropagates(t *testing.T) {
	segs := makeSegments("하나")
	client := llm.NewScriptedClient("primary").QueueError(errors.New("quota"))

	_, err := New(client, client).Label(context.Background(), basicInput(segs))
	assert.Error(t, err)
}

func TestLabelAllGreenYellowScannerRecovery(t *testing.T) {
	// Segment 2 carries generalizer+recipient blame — the scanner
	// upgrades it without a second model call.
	segs := makeSegments(
		"안녕하세요",
		"담당자님이 매번 회신을 안 주셔서요",
		"자료 요청드립니다",
		"감사합니다",
	)
	primary := llm.NewScriptedClient("primary").
		Queue("T1|COURTESY\nT2|CORE_FACT\nT3|REQUEST\nT4|COURTESY")
	fallback := llm.NewScriptedClient("fallback")

	res, err := New(primary, fallback).Label(context.Background(), basicInput(segs))
	require.NoError(t, err)
	assert.True(t, res.YellowRecoveryApplied)
	assert.Equal(t, 1, res.YellowUpgradeCount)
	assert.Empty(t, fallback.Calls())

	byID := map[string]domain.SegmentLabel{}
	for _, ls := range res.Labeled {
		byID[ls.SegmentID] = ls.Label
	}
	assert.Equal(t, domain.LabelAccountability, byID["T2"])
}

func TestLabelAllGreenDiversityRetry(t *testing.T) {
	// No scanner triggers: the fallback model runs and its non-GREEN
	// answer wins.
	segs := makeSegments("인사말", "사실 전달", "요청 사항", "마무리 인사")
	primary := llm.NewScriptedClient("primary").
		Queue("T1|COURTESY\nT2|CORE_FACT\nT3|REQUEST\nT4|COURTESY")
	fallback := llm.NewScriptedClient("fallback").
		Queue("T1|COURTESY\nT2|ACCOUNTABILITY\nT3|REQUEST\nT4|COURTESY")

	res, err := New(primary, fallback).Label(context.Background(), basicInput(segs))
	require.NoError(t, err)
	require.Len(t, fallback.Calls(), 1)

	byID := map[string]domain.SegmentLabel{}
	for _, ls := range res.Labeled {
		byID[ls.SegmentID] = ls.Label
	}
	assert.Equal(t, domain.LabelAccountability, byID["T2"])
	assert.False(t, res.YellowRecoveryApplied)
}

func TestLabelAllGreenDiversityAlsoGreenKeepsOriginal(t *testing.T) {
	segs := makeSegments("인사말", "사실 전달", "요청 사항", "마무리 인사")
	primary := llm.NewScriptedClient("primary").
		Queue("T1|COURTESY\nT2|CORE_FACT\nT3|REQUEST\nT4|COURTESY")
	fallback := llm.NewScriptedClient("fallback").
		Queue("T1|COURTESY\nT2|CORE_FACT\nT3|REQUEST\nT4|COURTESY")

	res, err := New(primary, fallback).Label(context.Background(), basicInput(segs))
	require.NoError(t, err)

	byID := map[string]domain.SegmentLabel{}
	for _, ls := range res.Labeled {
		byID[ls.SegmentID] = ls.Label
	}
	assert.Equal(t, domain.LabelCoreFact, byID["T2"])
}

func TestLabelThreeSegmentsSkipAllGreenRecovery(t *testing.T) {
	// Fewer than 4 segments never triggers recovery.
	segs := makeSegments("하나", "둘", "셋")
	primary := llm.NewScriptedClient("primary").
		Queue("T1|COURTESY\nT2|CORE_FACT\nT3|REQUEST")
	fallback := llm.NewScriptedClient("fallback")

	res, err := New(primary, fallback).Label(context.Background(), basicInput(segs))
	require.NoError(t, err)
	require.Len(t, res.Labeled, 3)
	assert.Empty(t, fallback.Calls())
}

func TestLabelDuplicateKeepsFirst(t *testing.T) {
	segs := makeSegments("사실입니다", "요청입니다")
	client := llm.NewScriptedClient("primary").
		Queue("T1|CORE_FACT\nT1|PURE_GRUMBLE\nT2|REQUEST")

	res, err := New(client, client).Label(context.Background(), basicInput(segs))
	require.NoError(t, err)
	require.Len(t, res.Labeled, 2)
	assert.Equal(t, domain.LabelCoreFact, res.Labeled[0].Label)
}

func TestLabelTokensAccumulateAcrossRetry(t *testing.T) {
	segs := makeSegments("하나", "둘", "셋", "넷")
	client := llm.NewScriptedClient("primary").
		QueueResult(&llm.Result{Content: "T1|CORE_FACT", PromptTokens: 100, CompletionTokens: 20}).
		QueueResult(&llm.Result{
			Content:          "T1|CORE_FACT\nT2|REQUEST\nT3|COURTESY\nT4|COURTESY",
			PromptTokens:     120,
			CompletionTokens: 40,
		})

	res, err := New(client, client).Label(context.Background(), basicInput(segs))
	require.NoError(t, err)
	assert.Equal(t, 220, res.PromptTokens)
	assert.Equal(t, 60, res.CompletionTokens)
}
