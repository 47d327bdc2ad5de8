package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tonebridge/internal/domain"
)

func TestRegistryCompleteness(t *testing.T) {
	r := NewRegistry()
	all := r.All()
	require.Len(t, all, 12)
	assert.Equal(t, "T01_GENERAL", all[0].ID)
	assert.Equal(t, "T12_WARNING_PREVENTION", all[11].ID)
	// Unknown IDs resolve to the default.
	assert.Equal(t, "T01_GENERAL", r.Get("T99_UNKNOWN").ID)
}

func TestSelectByPurpose(t *testing.T) {
	r := NewRegistry()
	res := Select(r, domain.PersonaOther,
		[]domain.SituationContext{domain.ContextRequest},
		domain.TopicOther, domain.PurposeApologyRecovery,
		domain.LabelStats{}, "")
	// Purpose beats the context mapping.
	assert.Equal(t, "T05_APOLOGY", res.Template.ID)
}

func TestSelectByPrimaryContext(t *testing.T) {
	r := NewRegistry()
	res := Select(r, domain.PersonaOther,
		[]domain.SituationContext{domain.ContextUrging, domain.ContextApology},
		domain.TopicOther, "", domain.LabelStats{}, "")
	assert.Equal(t, "T03_NAGGING_REMINDER", res.Template.ID)
}

func TestSelectDefault(t *testing.T) {
	r := NewRegistry()
	res := Select(r, domain.PersonaOther, nil, domain.TopicOther, "", domain.LabelStats{}, "")
	assert.Equal(t, "T01_GENERAL", res.Template.ID)
}

func TestSelectTopicRefundOverride(t *testing.T) {
	r := NewRegistry()
	res := Select(r, domain.PersonaClient,
		[]domain.SituationContext{domain.ContextRejection},
		domain.TopicRefundCancel, "", domain.LabelStats{}, "")
	assert.Equal(t, "T11_REFUND_REJECTION", res.Template.ID)
}

func TestSelectTopicRefundNeedsRejectionLike(t *testing.T) {
	r := NewRegistry()
	// Refund topic alone without any rejection signal stays on the
	// context mapping.
	res := Select(r, domain.PersonaClient,
		[]domain.SituationContext{domain.ContextRequest},
		domain.TopicRefundCancel, "", domain.LabelStats{}, "")
	assert.Equal(t, "T02_DATA_REQUEST", res.Template.ID)
}

func TestSelectKeywordOverride(t *testing.T) {
	r := NewRegistry()
	res := Select(r, domain.PersonaClient,
		[]domain.SituationContext{domain.ContextComplaint},
		domain.TopicOther, "",
		domain.LabelStats{HasNegativeFeedback: true},
		"환불 처리가 되지 않아 문의드립니다")
	assert.Equal(t, "T11_REFUND_REJECTION", res.Template.ID)
}

func TestSelectKeywordWithoutLabelsNoOverride(t *testing.T) {
	r := NewRegistry()
	res := Select(r, domain.PersonaClient,
		[]domain.SituationContext{domain.ContextComplaint},
		domain.TopicOther, "", domain.LabelStats{},
		"환불 처리가 되지 않아 문의드립니다")
	assert.Equal(t, "T09_BLAME_SEPARATION", res.Template.ID)
}

func TestSelectS2Enforcement(t *testing.T) {
	r := NewRegistry()
	res := Select(r, domain.PersonaOther,
		[]domain.SituationContext{domain.ContextFeedback},
		domain.TopicOther, "",
		domain.LabelStats{HasAccountability: true}, "")
	require.True(t, res.S2Enforced)

	// S2 lands right after S1.
	i := indexOfSection(res.EffectiveSections, S1Acknowledge)
	require.GreaterOrEqual(t, i, 0)
	assert.Equal(t, S2OurEffort, res.EffectiveSections[i+1])
}

func TestSelectS2EnforcementAfterS0WhenNoS1(t *testing.T) {
	r := NewRegistry()
	// T07 has no S1 section.
	res := Select(r, domain.PersonaOther,
		[]domain.SituationContext{domain.ContextAnnouncement},
		domain.TopicOther, "",
		domain.LabelStats{HasNegativeFeedback: true}, "")
	require.True(t, res.S2Enforced)
	assert.Equal(t, S0Greeting, res.EffectiveSections[0])
	assert.Equal(t, S2OurEffort, res.EffectiveSections[1])
}

func TestSelectS2AlreadyPresentNotEnforced(t *testing.T) {
	r := NewRegistry()
	res := Select(r, domain.PersonaClient,
		[]domain.SituationContext{domain.ContextApology},
		domain.TopicOther, "",
		domain.LabelStats{HasAccountability: true}, "")
	// T05 already contains S2.
	assert.False(t, res.S2Enforced)
}

func TestSelectPersonaShortenRules(t *testing.T) {
	r := NewRegistry()
	res := Select(r, domain.PersonaBoss,
		[]domain.SituationContext{domain.ContextRecruiting},
		domain.TopicOther, "", domain.LabelStats{}, "")
	assert.True(t, res.ShortenSections[S1Acknowledge])
	assert.Empty(t, res.ExpandSections)
}

func TestSelectPersonaExpandRules(t *testing.T) {
	r := NewRegistry()
	res := Select(r, domain.PersonaClient,
		[]domain.SituationContext{domain.ContextApology},
		domain.TopicOther, "", domain.LabelStats{}, "")
	assert.True(t, res.ExpandSections[S1Acknowledge])
	assert.True(t, res.ExpandSections[S2OurEffort])
}

func TestSectionMetadata(t *testing.T) {
	assert.Equal(t, "내부 확인/점검", S2OurEffort.Label())
	assert.NotEmpty(t, S2OurEffort.ExpressionPool())
	assert.Equal(t, "1문장", S0Greeting.LengthHint())
	assert.Empty(t, S3Facts.ExpressionPool())
}
