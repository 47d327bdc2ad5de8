package lockspan

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tonebridge/internal/domain"
	"tonebridge/internal/llm"
)

func TestBoostIdentityFindsNames(t *testing.T) {
	text := "김민수 팀장님께 report_final 건 전달 부탁드립니다"
	client := llm.NewScriptedClient("test").Queue("- 김민수\n")

	res, err := BoostIdentity(context.Background(), client, text, nil, text)
	require.NoError(t, err)
	require.Len(t, res.ExtraSpans, 1)

	span := res.ExtraSpans[0]
	assert.Equal(t, domain.SpanSemantic, span.Type)
	assert.Equal(t, "김민수", span.OriginalText)
	assert.Equal(t, "{{NAME_1}}", span.Placeholder)
	assert.Equal(t, text[span.StartPos:span.EndPos], "김민수")
}

func TestBoostIdentityNone(t *testing.T) {
	client := llm.NewScriptedClient("test").Queue("없음")
	res, err := BoostIdentity(context.Background(), client, "내일까지 부탁드립니다", nil, "내일까지 부탁드립니다")
	require.NoError(t, err)
	assert.Empty(t, res.ExtraSpans)
}

func TestBoostIdentityError(t *testing.T) {
	client := llm.NewScriptedClient("test").QueueError(errors.New("boom"))
	_, err := BoostIdentity(context.Background(), client, "텍스트", nil, "텍스트")
	assert.Error(t, err)
}

func TestBoostIdentityKoreanWordBoundary(t *testing.T) {
	// 김민수가 embeds the name but continues with a Korean particle;
	// the standalone occurrence later is the only valid match.
	text := "김민수가 아니라 김민수 님이 맞습니다"
	client := llm.NewScriptedClient("test").Queue("- 김민수")

	res, err := BoostIdentity(context.Background(), client, text, nil, text)
	require.NoError(t, err)
	require.Len(t, res.ExtraSpans, 1)
	assert.Equal(t, "김민수", text[res.ExtraSpans[0].StartPos:res.ExtraSpans[0].EndPos])
	assert.Greater(t, res.ExtraSpans[0].StartPos, 0)
}

func TestBoostIdentitySkipsOverlaps(t *testing.T) {
	text := "김민수 팀장님"
	existing := Extract(text)
	// Force an artificial span covering the name.
	existing = append(existing, domain.LockedSpan{
		Index: 1, OriginalText: "김민수", Placeholder: "{{QUOTE_1}}",
		Type: domain.SpanQuotedText, StartPos: 0, EndPos: len("김민수"),
	})

	client := llm.NewScriptedClient("test").Queue("- 김민수")
	res, err := BoostIdentity(context.Background(), client, text, existing, text)
	require.NoError(t, err)
	assert.Empty(t, res.ExtraSpans)
}

func TestBoostIdentitySkipsShortNames(t *testing.T) {
	client := llm.NewScriptedClient("test").Queue("- 김\n- ㈜한빛소프트")
	text := "김 부장님과 ㈜한빛소프트 계약 건"
	res, err := BoostIdentity(context.Background(), client, text, nil, text)
	require.NoError(t, err)
	require.Len(t, res.ExtraSpans, 1)
	assert.Equal(t, "㈜한빛소프트", res.ExtraSpans[0].OriginalText)
}

func TestMergeSpansSorted(t *testing.T) {
	a := domain.LockedSpan{StartPos: 10, EndPos: 14}
	b := domain.LockedSpan{StartPos: 2, EndPos: 5}
	merged := MergeSpans([]domain.LockedSpan{a}, []domain.LockedSpan{b})
	require.Len(t, merged, 2)
	assert.Equal(t, 2, merged[0].StartPos)
	assert.Equal(t, 10, merged[1].StartPos)
}

func TestBoosterNameIndexContinues(t *testing.T) {
	text := "박지훈 그리고 이서연"
	client := llm.NewScriptedClient("test").Queue("- 박지훈\n- 이서연")
	existing := []domain.LockedSpan{{
		Index: 1, OriginalText: "홍길동", Placeholder: "{{NAME_1}}",
		Type: domain.SpanSemantic, StartPos: 100, EndPos: 109,
	}}

	res, err := BoostIdentity(context.Background(), client, text, existing, text)
	require.NoError(t, err)
	require.Len(t, res.ExtraSpans, 2)
	assert.Equal(t, "{{NAME_2}}", res.ExtraSpans[0].Placeholder)
	assert.Equal(t, "{{NAME_3}}", res.ExtraSpans[1].Placeholder)
}
