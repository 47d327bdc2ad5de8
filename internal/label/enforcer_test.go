package label

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"tonebridge/internal/domain"
)

func ls(id string, label domain.SegmentLabel, text string) domain.LabeledSegment {
	return domain.LabeledSegment{SegmentID: id, Label: label, Text: text}
}

func TestEnforceProfanityOverride(t *testing.T) {
	out := Enforce([]domain.LabeledSegment{
		ls("T1", domain.LabelCoreFact, "진짜 시발 왜 이렇게 된 거죠"),
	})
	assert.Equal(t, domain.LabelAggression, out[0].Label)
}

func TestEnforceProfanityBypassNormalization(t *testing.T) {
	// Spaces and dots between jamo do not evade the check.
	out := Enforce([]domain.LabeledSegment{
		ls("T1", domain.LabelCourtesy, "ㅅ.ㅂ 말이 됩니까"),
	})
	assert.Equal(t, domain.LabelAggression, out[0].Label)
}

func TestEnforceMockeryOverride(t *testing.T) {
	out := Enforce([]domain.LabeledSegment{
		ls("T1", domain.LabelCourtesy, "참 잘하시네요 ㅋㅋ"),
	})
	assert.Equal(t, domain.LabelAggression, out[0].Label)
}

func TestEnforceAbilityDenialOverride(t *testing.T) {
	out := Enforce([]domain.LabeledSegment{
		ls("T1", domain.LabelNegativeFeedback, "그것도 못 하면 어떡합니까"),
	})
	assert.Equal(t, domain.LabelPersonalAttack, out[0].Label)
}

func TestEnforceSoftProfanityUpgradesGreenOnly(t *testing.T) {
	out := Enforce([]domain.LabeledSegment{
		ls("T1", domain.LabelCoreFact, "미친 일정이지만 해보겠습니다"),
		ls("T2", domain.LabelAccountability, "미친 일정 때문에 밀렸습니다"),
	})
	// GREEN upgrades to EMOTIONAL, YELLOW stays put.
	assert.Equal(t, domain.LabelEmotional, out[0].Label)
	assert.Equal(t, domain.LabelAccountability, out[1].Label)
}

func TestEnforceRedPassesThrough(t *testing.T) {
	out := Enforce([]domain.LabeledSegment{
		ls("T1", domain.LabelPureGrumble, "시발 이게 뭡니까"),
	})
	assert.Equal(t, domain.LabelPureGrumble, out[0].Label)
}

func TestEnforceCleanTextUntouched(t *testing.T) {
	in := []domain.LabeledSegment{
		ls("T1", domain.LabelCoreFact, "보고서는 내일 제출하겠습니다"),
		ls("T2", domain.LabelRequest, "검토 부탁드립니다"),
	}
	out := Enforce(in)
	assert.Equal(t, in, out)
}

func TestEnforceIdempotent(t *testing.T) {
	in := []domain.LabeledSegment{
		ls("T1", domain.LabelCoreFact, "진짜 시발 왜 이렇게 된 거죠"),
		ls("T2", domain.LabelCoreFact, "미친 일정이네요"),
	}
	once := Enforce(in)
	twice := Enforce(once)
	assert.Equal(t, once, twice)
}
