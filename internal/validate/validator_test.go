package validate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tonebridge/internal/domain"
	"tonebridge/internal/template"
)

func issuesOfType(res domain.ValidationResult, t domain.ValidationIssueType) []domain.ValidationIssue {
	var out []domain.ValidationIssue
	for _, i := range res.Issues {
		if i.Type == t {
			out = append(out, i)
		}
	}
	return out
}

func TestValidateCleanOutputPasses(t *testing.T) {
	res := Validate(Input{
		FinalText:    "보고서 제출 부탁드립니다.",
		OriginalText: "보고서 제출해주세요.",
		Persona:      domain.PersonaBoss,
	})
	assert.True(t, res.Passed)
	assert.Empty(t, res.Issues)
}

func TestValidateEmojiError(t *testing.T) {
	res := Validate(Input{
		FinalText:    "확인 부탁드립니다 😊",
		OriginalText: "확인해주세요",
		Persona:      domain.PersonaBoss,
	})
	require.NotEmpty(t, issuesOfType(res, domain.IssueEmoji))
	assert.False(t, res.Passed)
	assert.Equal(t, domain.SeverityError, issuesOfType(res, domain.IssueEmoji)[0].Severity)
}

func TestValidateForbiddenPhraseError(t *testing.T) {
	res := Validate(Input{
		FinalText:    "다음과 같이 정리했습니다. 확인 부탁드립니다.",
		OriginalText: "정리해주세요",
		Persona:      domain.PersonaBoss,
	})
	found := issuesOfType(res, domain.IssueForbiddenPhrase)
	require.NotEmpty(t, found)
	assert.Equal(t, "다음과 같이", found[0].MatchedText)
	assert.False(t, res.Passed)
}

func TestValidateHallucinatedNumberWarning(t *testing.T) {
	res := Validate(Input{
		FinalText:    "비용은 50000원입니다.",
		OriginalText: "비용 안내 부탁드립니다.",
		Persona:      domain.PersonaBoss,
	})
	found := issuesOfType(res, domain.IssueHallucinatedFact)
	require.NotEmpty(t, found)
	assert.Equal(t, domain.SeverityWarning, found[0].Severity)
	// Warnings alone do not fail validation.
	assert.True(t, res.Passed)
}

func TestValidateHallucinatedNumberSafeContext(t *testing.T) {
	res := Validate(Input{
		FinalText:    "2024년 계획을 공유드립니다.",
		OriginalText: "내년 계획 공유 바랍니다.",
		Persona:      domain.PersonaBoss,
	})
	assert.Empty(t, issuesOfType(res, domain.IssueHallucinatedFact))
}

func TestValidateNumberInLockedSpanNotHallucinated(t *testing.T) {
	res := Validate(Input{
		FinalText:    "010-1234-5678로 연락 부탁드립니다.",
		OriginalText: "{{PHONE_1}}로 연락주세요.",
		RawLLMOutput: "{{PHONE_1}}로 연락 부탁드립니다.",
		Persona:      domain.PersonaBoss,
		Spans: []domain.LockedSpan{{
			Index: 1, Placeholder: "{{PHONE_1}}", OriginalText: "010-1234-5678",
			Type: domain.SpanPhone,
		}},
	})
	assert.Empty(t, issuesOfType(res, domain.IssueHallucinatedFact))
}

func TestValidateEndingRepetition(t *testing.T) {
	res := Validate(Input{
		FinalText:    "확인했습니다.\n전달했습니다.\n정리했습니다.",
		OriginalText: strings.Repeat("확인 ", 10),
		Persona:      domain.PersonaBoss,
	})
	found := issuesOfType(res, domain.IssueEndingRepetition)
	require.NotEmpty(t, found)
	assert.Equal(t, "습니다", found[0].MatchedText)
}

func TestValidateDeurigetFrequency(t *testing.T) {
	res := Validate(Input{
		FinalText:    "확인해 드리겠습니다. 전달해 드리겠습니다. 정리해 드리겠습니다.",
		OriginalText: "확인, 전달, 정리 부탁",
		Persona:      domain.PersonaClient,
	})
	found := issuesOfType(res, domain.IssueEndingRepetition)
	var hit bool
	for _, i := range found {
		if i.MatchedText == "드리겠습니다" {
			hit = true
		}
	}
	assert.True(t, hit)
}

func TestValidateLengthOverexpansion(t *testing.T) {
	res := Validate(Input{
		FinalText:    strings.Repeat("정중한 문장입니다. ", 30),
		OriginalText: "보고서 제출이 늦어져서 정말 죄송합니다.",
		Persona:      domain.PersonaBoss,
	})
	assert.NotEmpty(t, issuesOfType(res, domain.IssueLengthOverexpansion))
}

func TestValidatePerspectiveErrorSkipsClientOfficial(t *testing.T) {
	in := Input{
		FinalText:    "확인해 드리겠습니다.",
		OriginalText: "확인 바랍니다.",
	}

	in.Persona = domain.PersonaBoss
	assert.NotEmpty(t, issuesOfType(Validate(in), domain.IssuePerspectiveError))

	in.Persona = domain.PersonaClient
	assert.Empty(t, issuesOfType(Validate(in), domain.IssuePerspectiveError))

	in.Persona = domain.PersonaOfficial
	assert.Empty(t, issuesOfType(Validate(in), domain.IssuePerspectiveError))
}

func TestValidateLockedSpanMissing(t *testing.T) {
	span := domain.LockedSpan{
		Index: 1, Placeholder: "{{DATE_1}}", OriginalText: "3월 4일", Type: domain.SpanDate,
	}
	res := Validate(Input{
		FinalText:    "기한 내 제출 부탁드립니다.",
		OriginalText: "{{DATE_1}}까지 제출해주세요.",
		RawLLMOutput: "기한 내 제출 부탁드립니다.",
		Persona:      domain.PersonaBoss,
		Spans:        []domain.LockedSpan{span},
	})
	found := issuesOfType(res, domain.IssueLockedSpanMissing)
	require.Len(t, found, 1)
	assert.Equal(t, domain.SeverityError, found[0].Severity)
	assert.Equal(t, "{{DATE_1}}", found[0].MatchedText)
	assert.False(t, res.Passed)
}

func TestValidateLockedSpanFlexiblePattern(t *testing.T) {
	span := domain.LockedSpan{
		Index: 1, Placeholder: "{{DATE_1}}", OriginalText: "3월 4일", Type: domain.SpanDate,
	}
	res := Validate(Input{
		FinalText:    "{{ DATE-1 }}까지 제출 부탁드립니다.",
		OriginalText: "{{DATE_1}}까지 제출해주세요.",
		RawLLMOutput: "{{ DATE-1 }}까지 제출 부탁드립니다.",
		Persona:      domain.PersonaBoss,
		Spans:        []domain.LockedSpan{span},
	})
	assert.Empty(t, issuesOfType(res, domain.IssueLockedSpanMissing))
}

func TestValidateLockedSpanOriginalTextAccepted(t *testing.T) {
	span := domain.LockedSpan{
		Index: 1, Placeholder: "{{DATE_1}}", OriginalText: "3월 4일", Type: domain.SpanDate,
	}
	res := Validate(Input{
		FinalText:    "3월 4일까지 제출 부탁드립니다.",
		OriginalText: "{{DATE_1}}까지 제출해주세요.",
		RawLLMOutput: "3월 4일까지 제출 부탁드립니다.",
		Persona:      domain.PersonaBoss,
		Spans:        []domain.LockedSpan{span},
	})
	assert.Empty(t, issuesOfType(res, domain.IssueLockedSpanMissing))
}

func TestValidateRedactedReentryError(t *testing.T) {
	res := Validate(Input{
		FinalText:    "이게 정말 말이 됩니까 싶은 부분이 있었습니다.",
		OriginalText: "원문",
		Persona:      domain.PersonaBoss,
		RedactionMap: map[string]string{
			"[REDACTED:PURE_GRUMBLE_1]": "이게 정말 말이 됩니까",
		},
	})
	found := issuesOfType(res, domain.IssueRedactedReentry)
	require.NotEmpty(t, found)
	assert.Equal(t, domain.SeverityError, found[0].Severity)
	assert.False(t, res.Passed)
}

func TestValidateRedactedKeywordReentryWarning(t *testing.T) {
	res := Validate(Input{
		FinalText:    "담당자의 불성실한 응대방식 관련 말씀드립니다. 개선 바랍니다.",
		OriginalText: "원문",
		Persona:      domain.PersonaBoss,
		RedactionMap: map[string]string{
			"[REDACTED:AGGRESSION_1]": "불성실한 응대방식 수준이 한심하다",
		},
	})
	var warning bool
	for _, i := range issuesOfType(res, domain.IssueRedactedReentry) {
		if i.Severity == domain.SeverityWarning {
			warning = true
		}
	}
	assert.True(t, warning)
}

func TestValidateCensorshipTrace(t *testing.T) {
	res := Validate(Input{
		FinalText:    "일부 내용을 삭제하고 전달드립니다.",
		OriginalText: "원문",
		Persona:      domain.PersonaBoss,
	})
	found := issuesOfType(res, domain.IssueRedactionTrace)
	require.NotEmpty(t, found)
	assert.False(t, res.Passed)
}

func TestValidateCoreNumberMissing(t *testing.T) {
	res := Validate(Input{
		FinalText:    "금액을 확인해주세요.",
		OriginalText: "50000원을 입금해주세요.",
		Persona:      domain.PersonaBoss,
	})
	found := issuesOfType(res, domain.IssueCoreNumberMissing)
	require.NotEmpty(t, found)
	assert.Equal(t, domain.SeverityWarning, found[0].Severity)
}

func TestValidateCoreNumberCommaNormalized(t *testing.T) {
	res := Validate(Input{
		FinalText:    "50000원 입금 확인 부탁드립니다.",
		OriginalText: "50,000원을 입금해주세요.",
		Persona:      domain.PersonaBoss,
	})
	assert.Empty(t, issuesOfType(res, domain.IssueCoreNumberMissing))
}

func TestValidateCoreDateMissing(t *testing.T) {
	res := Validate(Input{
		FinalText:    "기한을 확인해주세요.",
		OriginalText: "2024-03-15까지 제출해주세요.",
		Persona:      domain.PersonaBoss,
	})
	assert.NotEmpty(t, issuesOfType(res, domain.IssueCoreDateMissing))
}

func TestValidateCoreDateSeparatorNormalized(t *testing.T) {
	res := Validate(Input{
		FinalText:    "2024.03.15까지 제출 부탁드립니다.",
		OriginalText: "2024-03-15까지 제출해주세요.",
		Persona:      domain.PersonaBoss,
	})
	assert.Empty(t, issuesOfType(res, domain.IssueCoreDateMissing))
}

func TestValidateSoftenContentDropped(t *testing.T) {
	res := Validate(Input{
		FinalText:    "확인 부탁드립니다.",
		OriginalText: "원문",
		Persona:      domain.PersonaBoss,
		YellowSegmentTexts: []string{
			"납품지연 원인이 귀사 검수절차 때문이라고 생각합니다",
		},
	})
	assert.NotEmpty(t, issuesOfType(res, domain.IssueSoftenContentDropped))
}

func TestValidateSoftenContentPreservedByParticleVariation(t *testing.T) {
	res := Validate(Input{
		FinalText:    "납품지연이 발생한 배경을 공유드립니다.",
		OriginalText: "원문",
		Persona:      domain.PersonaBoss,
		YellowSegmentTexts: []string{
			"납품지연 원인이 귀사 검수절차 때문이라고 생각합니다",
		},
	})
	assert.Empty(t, issuesOfType(res, domain.IssueSoftenContentDropped))
}

func TestValidateInformalConjunction(t *testing.T) {
	res := Validate(Input{
		FinalText:    "어쨌든 확인 부탁드립니다. 아무튼 일정을 조율하겠습니다.",
		OriginalText: "어쨌든 확인해주세요. 아무튼 일정 조율합시다.",
		Persona:      domain.PersonaBoss,
	})
	found := issuesOfType(res, domain.IssueInformalConjunction)
	require.Len(t, found, 2)
	assert.Equal(t, domain.SeverityWarning, found[0].Severity)
}

func TestValidateInformalConjunctionCleanText(t *testing.T) {
	res := Validate(Input{
		FinalText:    "확인 부탁드립니다. 이에 따라 일정을 조율하겠습니다.",
		OriginalText: "확인해주세요.",
		Persona:      domain.PersonaBoss,
	})
	assert.Empty(t, issuesOfType(res, domain.IssueInformalConjunction))
}

func TestValidateSectionS2Missing(t *testing.T) {
	in := Input{
		FinalText:         "안녕하세요. 일정 관련 말씀드립니다. 감사합니다.",
		OriginalText:      "일정 지연 관련",
		Persona:           domain.PersonaBoss,
		EffectiveSections: []template.Section{template.S0Greeting, template.S2OurEffort, template.S8Closing},
		Labeled: []domain.LabeledSegment{
			{SegmentID: "T1", Label: domain.LabelAccountability, Text: "귀사 쪽 지연"},
		},
	}
	assert.NotEmpty(t, issuesOfType(Validate(in), domain.IssueSectionS2Missing))

	// An effort expression in the output satisfies the check.
	in.FinalText = "안녕하세요. 점검해 본 결과 일정이 지연되었습니다. 감사합니다."
	assert.Empty(t, issuesOfType(Validate(in), domain.IssueSectionS2Missing))

	// No accountability labels, no check.
	in.FinalText = "안녕하세요. 일정 관련 말씀드립니다."
	in.Labeled = []domain.LabeledSegment{{SegmentID: "T1", Label: domain.LabelCoreFact}}
	assert.Empty(t, issuesOfType(Validate(in), domain.IssueSectionS2Missing))
}

func TestBuildLockedSpanRetryHint(t *testing.T) {
	spans := []domain.LockedSpan{
		{Index: 1, Placeholder: "{{DATE_1}}", OriginalText: "3월 4일", Type: domain.SpanDate},
		{Index: 1, Placeholder: "{{PHONE_1}}", OriginalText: "010-1234-5678", Type: domain.SpanPhone},
	}
	issues := []domain.ValidationIssue{
		{Type: domain.IssueLockedSpanMissing, Severity: domain.SeverityError, MatchedText: "{{DATE_1}}"},
		{Type: domain.IssueEmoji, Severity: domain.SeverityError, MatchedText: "😊"},
	}

	hint := BuildLockedSpanRetryHint(issues, spans)
	assert.Contains(t, hint, "[고정 표현 누락 오류]")
	assert.Contains(t, hint, "- {{DATE_1}} → \"3월 4일\"")
	assert.NotContains(t, hint, "{{PHONE_1}}")
	assert.Contains(t, hint, "절대 누락하지 마세요")
}

func TestBuildLockedSpanRetryHintEmpty(t *testing.T) {
	issues := []domain.ValidationIssue{
		{Type: domain.IssueEmoji, Severity: domain.SeverityError},
	}
	assert.Empty(t, BuildLockedSpanRetryHint(issues, []domain.LockedSpan{{Index: 1}}))
	assert.Empty(t, BuildLockedSpanRetryHint(nil, nil))
}
