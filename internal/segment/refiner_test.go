package segment

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tonebridge/internal/domain"
	"tonebridge/internal/llm"
)

func TestRefineSkipsWhenAllShort(t *testing.T) {
	segs := []domain.Segment{{ID: "T1", Text: "짧은 문장", Start: 0, End: 12}}
	client := llm.NewScriptedClient("test")

	res := Refine(context.Background(), client, segs, "짧은 문장", 30)
	assert.False(t, res.Refined)
	assert.Equal(t, segs, res.Segments)
	assert.Empty(t, client.Calls())
}

func TestRefineSplitsLongSegment(t *testing.T) {
	long := "어제 회의에서 일정 변경이 결정되었고 담당자 배정도 다시 해야 하는 상황이라 공유드립니다"
	masked := long
	segs := []domain.Segment{{ID: "T1", Text: long, Start: 0, End: len(long)}}

	client := llm.NewScriptedClient("test").
		Queue("[1] 어제 회의에서 일정 변경이 결정되었고 ||| 담당자 배정도 다시 해야 하는 상황이라 공유드립니다")

	res := Refine(context.Background(), client, segs, masked, 30)
	require.True(t, res.Refined)
	require.Len(t, res.Segments, 2)
	assert.Equal(t, "T1", res.Segments[0].ID)
	assert.Equal(t, "T2", res.Segments[1].ID)
	assert.Equal(t, "어제 회의에서 일정 변경이 결정되었고", res.Segments[0].Text)
	// Positions recovered against the masked text.
	assert.Equal(t, res.Segments[1].Text, masked[res.Segments[1].Start:res.Segments[1].End])
}

func TestRefineRejectsAlteredParts(t *testing.T) {
	long := "이 문장은 충분히 길어서 정제 대상이 되는 테스트 문장입니다 내용이 이어집니다"
	segs := []domain.Segment{{ID: "T1", Text: long, Start: 0, End: len(long)}}

	// The model mangled the text; parts no longer appear in order.
	client := llm.NewScriptedClient("test").
		Queue("[1] 완전히 다른 텍스트 ||| 또 다른 텍스트")

	res := Refine(context.Background(), client, segs, long, 30)
	require.Len(t, res.Segments, 1)
	assert.Equal(t, long, res.Segments[0].Text)
}

func TestRefineKeepsOriginalsOnError(t *testing.T) {
	long := "이 문장은 충분히 길어서 정제 대상이 되는 테스트 문장입니다 내용이 이어집니다"
	segs := []domain.Segment{{ID: "T1", Text: long, Start: 0, End: len(long)}}
	client := llm.NewScriptedClient("test").QueueError(errors.New("timeout"))

	res := Refine(context.Background(), client, segs, long, 30)
	assert.False(t, res.Refined)
	assert.Equal(t, segs, res.Segments)
}

func TestRefineRenumbersMixedList(t *testing.T) {
	short := "짧은 것"
	long := "길이가 충분히 길어서 정제 대상으로 배치되는 두 번째 문장이 여기에 있습니다"
	masked := short + " " + long
	segs := []domain.Segment{
		{ID: "T1", Text: short, Start: 0, End: len(short)},
		{ID: "T2", Text: long, Start: len(short) + 1, End: len(masked)},
	}

	client := llm.NewScriptedClient("test").
		Queue("[1] 길이가 충분히 길어서 ||| 정제 대상으로 배치되는 두 번째 문장이 여기에 있습니다")

	res := Refine(context.Background(), client, segs, masked, 30)
	require.Len(t, res.Segments, 3)
	assert.Equal(t, []string{"T1", "T2", "T3"}, []string{
		res.Segments[0].ID, res.Segments[1].ID, res.Segments[2].ID,
	})
	assert.Equal(t, short, res.Segments[0].Text)
}
