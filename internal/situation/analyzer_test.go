package situation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tonebridge/internal/domain"
	"tonebridge/internal/llm"
)

func analyzeInput() Input {
	return Input{
		Persona:    domain.PersonaParent,
		Contexts:   []domain.SituationContext{domain.ContextFeedback},
		Tone:       domain.TonePolite,
		MaskedText: "아이가 수학 시험에서 {{UNIT_NUMBER_1}} 맞았는데 아직 연락이 없어서요.",
	}
}

func TestAnalyzeHappyPath(t *testing.T) {
	client := llm.NewScriptedClient("gpt-4o-mini").Queue(`{
		"facts": [
			{"content": "아이의 수학 시험 점수가 {{UNIT_NUMBER_1}}이다", "source": "수학 시험에서 {{UNIT_NUMBER_1}} 맞았는데"},
			{"content": "보충수업 연락이 아직 없다", "source": "아직 연락이 없어서요"}
		],
		"intent": "보충수업 일정 확인 요청"
	}`)

	res := Analyze(context.Background(), client, analyzeInput())
	require.True(t, res.Fired)
	require.Len(t, res.Facts, 2)
	assert.Equal(t, "보충수업 일정 확인 요청", res.Intent)
	assert.Equal(t, 10, res.PromptTokens)

	calls := client.Calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].User, "받는 사람: 학부모")
	assert.Contains(t, calls[0].User, "상황: 피드백")
	assert.Contains(t, calls[0].User, "\n원문:\n아이가")
	assert.True(t, calls[0].JSONMode)
}

func TestAnalyzeOptionalMetadata(t *testing.T) {
	in := analyzeInput()
	in.SenderInfo = "담임 교사"
	in.UserPrompt = "정중하게"
	client := llm.NewScriptedClient("gpt-4o-mini").Queue(`{"facts": [], "intent": ""}`)

	Analyze(context.Background(), client, in)

	calls := client.Calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].User, "보내는 사람: 담임 교사")
	assert.Contains(t, calls[0].User, "참고 맥락: 정중하게")
}

func TestAnalyzeDropsEmptyContentFacts(t *testing.T) {
	client := llm.NewScriptedClient("gpt-4o-mini").
		Queue(`{"facts": [{"content": "", "source": "x"}, {"content": "유효", "source": ""}], "intent": "목적"}`)
	res := Analyze(context.Background(), client, analyzeInput())
	require.Len(t, res.Facts, 1)
	assert.Equal(t, "유효", res.Facts[0].Content)
}

func TestAnalyzeCallFailure(t *testing.T) {
	client := llm.NewScriptedClient("gpt-4o-mini").QueueError(errors.New("timeout"))
	res := Analyze(context.Background(), client, analyzeInput())
	assert.False(t, res.Fired)
	assert.Empty(t, res.Facts)
}

func TestAnalyzeParseFailureKeepsTokens(t *testing.T) {
	client := llm.NewScriptedClient("gpt-4o-mini").Queue("분석 결과를 드릴 수 없습니다")
	res := Analyze(context.Background(), client, analyzeInput())
	assert.False(t, res.Fired)
	assert.Equal(t, 10, res.PromptTokens)
}

func TestAnalyzeStripsCodeFence(t *testing.T) {
	client := llm.NewScriptedClient("gpt-4o-mini").
		Queue("```json\n{\"facts\": [{\"content\": \"사실\", \"source\": \"근거\"}], \"intent\": \"목적\"}\n```")
	res := Analyze(context.Background(), client, analyzeInput())
	require.True(t, res.Fired)
	require.Len(t, res.Facts, 1)
}

func redSegment(start, end int, text string) domain.LabeledSegment {
	return domain.LabeledSegment{
		SegmentID: "T9",
		Label:     domain.LabelPureGrumble,
		Text:      text,
		Start:     start,
		End:       end,
	}
}

func TestFilterRedFactsPositionalOverlap(t *testing.T) {
	masked := "처리 부탁드립니다. 이게 말이 됩니까."
	redStart := len("처리 부탁드립니다. ")
	res := Result{Facts: []Fact{
		{Content: "불만", Source: "이게 말이 됩니까"},
		{Content: "요청", Source: "처리 부탁드립니다"},
	}}
	labeled := []domain.LabeledSegment{redSegment(redStart, len(masked), "이게 말이 됩니까.")}

	out := FilterRedFacts(res, masked, labeled)
	require.Len(t, out.Facts, 1)
	assert.Equal(t, "요청", out.Facts[0].Content)
}

func TestFilterRedFactsPositionalHitNoOverlapKeeps(t *testing.T) {
	// The source is found in the masked text outside the RED range, so
	// the looser fallback tiers never run even though the words match.
	masked := "답답해서 문의드립니다. 정말 답답해서 미치겠네요."
	redStart := len("답답해서 문의드립니다. ")
	res := Result{Facts: []Fact{{Content: "문의", Source: "답답해서 문의드립니다"}}}
	labeled := []domain.LabeledSegment{redSegment(redStart, len(masked), "정말 답답해서 미치겠네요.")}

	out := FilterRedFacts(res, masked, labeled)
	assert.Len(t, out.Facts, 1)
}

func TestFilterRedFactsNormalizedContainment(t *testing.T) {
	masked := "본문입니다."
	res := Result{Facts: []Fact{{Content: "불만", Source: "말이 됩니까"}}}
	labeled := []domain.LabeledSegment{redSegment(100, 120, "이게 말이... 됩니까!!")}

	out := FilterRedFacts(res, masked, labeled)
	assert.Empty(t, out.Facts)
}

func TestFilterRedFactsMeaningWordOverlap(t *testing.T) {
	masked := "본문입니다."
	res := Result{Facts: []Fact{{Content: "불만", Source: "담당자 응대 불만이 있다"}}}
	labeled := []domain.LabeledSegment{redSegment(100, 130, "담당자 응대 수준이 말이 안 됨")}

	out := FilterRedFacts(res, masked, labeled)
	assert.Empty(t, out.Facts)
}

func TestFilterRedFactsStopwordsDoNotCount(t *testing.T) {
	masked := "본문입니다."
	res := Result{Facts: []Fact{{Content: "사실", Source: "그리고 이번 확인 부탁"}}}
	// Only one meaning word ("확인") appears in the RED text; the
	// stopwords 그리고/이번 are ignored.
	labeled := []domain.LabeledSegment{redSegment(100, 130, "그리고 이번 확인은 말이 안 됨")}

	out := FilterRedFacts(res, masked, labeled)
	assert.Len(t, out.Facts, 1)
}

func TestFilterRedFactsEmptySourceKept(t *testing.T) {
	res := Result{Facts: []Fact{{Content: "사실", Source: ""}}}
	labeled := []domain.LabeledSegment{redSegment(0, 10, "욕설")}
	out := FilterRedFacts(res, "본문", labeled)
	assert.Len(t, out.Facts, 1)
}

func TestFilterRedFactsNoRedSegments(t *testing.T) {
	res := Result{Facts: []Fact{{Content: "사실", Source: "근거"}}}
	out := FilterRedFacts(res, "본문", []domain.LabeledSegment{
		{SegmentID: "T1", Label: domain.LabelCoreFact, Text: "근거"},
	})
	assert.Len(t, out.Facts, 1)
}
