package redact

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"tonebridge/internal/domain"
)

func seg(id string, label domain.SegmentLabel, text string) domain.LabeledSegment {
	return domain.LabeledSegment{SegmentID: id, Label: label, Text: text}
}

func TestProcessCountsAndMarkers(t *testing.T) {
	res := Process([]domain.LabeledSegment{
		seg("T1", domain.LabelCoreFact, "사실"),
		seg("T2", domain.LabelAccountability, "귀책"),
		seg("T3", domain.LabelPrivateTMI, "허리가 아프고"),
		seg("T4", domain.LabelPrivateTMI, "이사 준비 중이라"),
		seg("T5", domain.LabelPureGrumble, "이게 말이 됩니까"),
	})

	assert.Equal(t, 3, res.RedCount)
	assert.Equal(t, 1, res.YellowCount)
	// Counters run per label.
	assert.Equal(t, "허리가 아프고", res.RedactionMap["[REDACTED:PRIVATE_TMI_1]"])
	assert.Equal(t, "이사 준비 중이라", res.RedactionMap["[REDACTED:PRIVATE_TMI_2]"])
	assert.Equal(t, "이게 말이 됩니까", res.RedactionMap["[REDACTED:PURE_GRUMBLE_1]"])
}

func TestProcessAllGreen(t *testing.T) {
	res := Process([]domain.LabeledSegment{
		seg("T1", domain.LabelCoreFact, "사실"),
		seg("T2", domain.LabelRequest, "요청"),
	})
	assert.Zero(t, res.RedCount)
	assert.Zero(t, res.YellowCount)
	assert.Empty(t, res.RedactionMap)
}

func TestProcessEmpty(t *testing.T) {
	res := Process(nil)
	assert.Zero(t, res.RedCount)
	assert.NotNil(t, res.RedactionMap)
}
