package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSegmentLabelTier(t *testing.T) {
	assert.Equal(t, TierGreen, LabelCoreFact.Tier())
	assert.Equal(t, TierYellow, LabelAccountability.Tier())
	assert.Equal(t, TierRed, LabelPureGrumble.Tier())
	// Unknown labels degrade to GREEN so nothing gets redacted by accident.
	assert.Equal(t, TierGreen, SegmentLabel("MYSTERY").Tier())
}

func TestParseSegmentLabel(t *testing.T) {
	assert.Equal(t, LabelRequest, ParseSegmentLabel("  request "))
	// Legacy names from older labeler prompts migrate.
	assert.Equal(t, LabelAccountability, ParseSegmentLabel("BLAME"))
	assert.Equal(t, LabelSelfJustification, ParseSegmentLabel("SELF_DEFENSE"))
	assert.Equal(t, LabelCourtesy, ParseSegmentLabel("???"))
}

func TestParsePersona(t *testing.T) {
	assert.Equal(t, PersonaBoss, ParsePersona("boss"))
	assert.Equal(t, PersonaOther, ParsePersona("ALIEN"))
	assert.Equal(t, PersonaOther, ParsePersona(""))
}

func TestParseSituationContext(t *testing.T) {
	sc, ok := ParseSituationContext("complaint")
	assert.True(t, ok)
	assert.Equal(t, ContextComplaint, sc)

	_, ok = ParseSituationContext("NOT_A_CONTEXT")
	assert.False(t, ok)
}

func TestParseToneLevel(t *testing.T) {
	assert.Equal(t, ToneNeutral, ParseToneLevel("neutral"))
	assert.Equal(t, ToneVeryPolite, ParseToneLevel("VERY_POLITE"))
	assert.Equal(t, TonePolite, ParseToneLevel("whatever"))
}

func TestParseTopicAndPurpose(t *testing.T) {
	topic, ok := ParseTopic("refund_cancel")
	assert.True(t, ok)
	assert.Equal(t, TopicRefundCancel, topic)
	_, ok = ParseTopic("")
	assert.False(t, ok)

	purpose, ok := ParsePurpose("rejection_notice")
	assert.True(t, ok)
	assert.Equal(t, PurposeRejectionNotice, purpose)
	_, ok = ParsePurpose("nope")
	assert.False(t, ok)
}

func TestPlaceholderPrefix(t *testing.T) {
	assert.Equal(t, "DATE", SpanDate.PlaceholderPrefix())
	assert.Equal(t, "TICKET", SpanIssueTicket.PlaceholderPrefix())
}

func TestValidationResultSplits(t *testing.T) {
	r := ValidationResult{Issues: []ValidationIssue{
		{Type: IssueEmoji, Severity: SeverityError},
		{Type: IssueEndingRepetition, Severity: SeverityWarning},
	}}
	assert.True(t, r.HasErrors())
	assert.Len(t, r.Errors(), 1)
	assert.Len(t, r.Warnings(), 1)
}

func TestLabelStatsFromSegments(t *testing.T) {
	stats := LabelStatsFromSegments([]LabeledSegment{
		{Label: LabelCoreFact},
		{Label: LabelAccountability},
		{Label: LabelNegativeFeedback},
		{Label: LabelPureGrumble},
	})
	assert.Equal(t, 1, stats.GreenCount)
	assert.Equal(t, 2, stats.YellowCount)
	assert.Equal(t, 1, stats.RedCount)
	assert.True(t, stats.HasAccountability)
	assert.True(t, stats.HasNegativeFeedback)
}