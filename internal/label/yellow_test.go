package label

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tonebridge/internal/domain"
)

func greenLabeled(segs []domain.Segment) []domain.LabeledSegment {
	out := make([]domain.LabeledSegment, len(segs))
	for i, s := range segs {
		out[i] = domain.LabeledSegment{
			SegmentID: s.ID, Label: domain.LabelCoreFact,
			Text: s.Text, Start: s.Start, End: s.End,
		}
	}
	return out
}

func TestScanBlameWithRecipient(t *testing.T) {
	segs := makeSegments("담당자님이 매번 누락하셔서 문제가 반복됩니다")
	ups := ScanYellowTriggers(segs, greenLabeled(segs))
	require.Len(t, ups, 1)
	assert.Equal(t, domain.LabelAccountability, ups[0].NewLabel)
	assert.GreaterOrEqual(t, ups[0].Score, 2)
}

func TestScanGeneralizerAloneBelowThreshold(t *testing.T) {
	// A lone generalizer scores 1 and does not reach the threshold.
	segs := makeSegments("맨날 늦어지는 것 아시죠")
	ups := ScanYellowTriggers(segs, greenLabeled(segs))
	assert.Empty(t, ups)
}

func TestScanEmotionalStrong(t *testing.T) {
	segs := makeSegments("일정이 밀려서 너무 답답합니다")
	ups := ScanYellowTriggers(segs, greenLabeled(segs))
	require.Len(t, ups, 1)
	// Strong 답답 (+2) plus soft 너무 (+1).
	assert.Equal(t, domain.LabelEmotional, ups[0].NewLabel)
	assert.Equal(t, 3, ups[0].Score)
}

func TestScanSpeculationCombination(t *testing.T) {
	segs := makeSegments("틀림없이 설정 문제인 것 같다")
	ups := ScanYellowTriggers(segs, greenLabeled(segs))
	require.Len(t, ups, 1)
	assert.Equal(t, domain.LabelExcessDetail, ups[0].NewLabel)
}

func TestScanDefenseStrong(t *testing.T) {
	segs := makeSegments("내 탓 하려는 건 아니지만 말씀드립니다")
	// Strong defense alone is exactly the threshold.
	ups := ScanYellowTriggers(segs, greenLabeled(segs))
	require.Len(t, ups, 1)
	assert.Equal(t, domain.LabelSelfJustification, ups[0].NewLabel)
}

func TestScanSkipsNonGreen(t *testing.T) {
	segs := makeSegments("일정이 밀려서 너무 답답합니다")
	labeled := greenLabeled(segs)
	labeled[0].Label = domain.LabelEmotional
	assert.Empty(t, ScanYellowTriggers(segs, labeled))
}

func TestScanCapsUpgrades(t *testing.T) {
	segs := makeSegments(
		"담당자님이 매번 누락하십니다",
		"정말 너무 답답하고 화가 납니다",
		"틀림없이 또 그럴 것 같다",
	)
	ups := ScanYellowTriggers(segs, greenLabeled(segs))
	require.Len(t, ups, 2)
	// Sorted by score descending.
	assert.GreaterOrEqual(t, ups[0].Score, ups[1].Score)
}

func TestScanCleanTextNoUpgrades(t *testing.T) {
	segs := makeSegments("보고서를 검토했습니다", "내일까지 회신드리겠습니다")
	assert.Empty(t, ScanYellowTriggers(segs, greenLabeled(segs)))
}
