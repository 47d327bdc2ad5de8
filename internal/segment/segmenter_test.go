package segment

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTest() *Segmenter { return New(DefaultOptions()) }

func TestSegmentEmpty(t *testing.T) {
	assert.Nil(t, newTest().Segment(""))
	assert.Nil(t, newTest().Segment("   \n  "))
}

func TestSegmentSingleSentence(t *testing.T) {
	segs := newTest().Segment("보고서 검토 부탁드립니다.")
	require.Len(t, segs, 1)
	assert.Equal(t, "T1", segs[0].ID)
	// Sentence-ending punctuation is consumed by the boundary.
	assert.Equal(t, "보고서 검토 부탁드립니다", segs[0].Text)
}

func TestSegmentBlankLineBoundary(t *testing.T) {
	segs := newTest().Segment("첫 번째 문단입니다\n\n두 번째 문단입니다")
	require.Len(t, segs, 2)
	assert.Equal(t, "첫 번째 문단입니다", segs[0].Text)
	assert.Equal(t, "두 번째 문단입니다", segs[1].Text)
}

func TestSegmentFormalEndings(t *testing.T) {
	text := "어제 보고서를 보냈습니다. 아직 회신이 없습니다. 확인 부탁드립니다."
	segs := newTest().Segment(text)
	require.Len(t, segs, 3)
	assert.Equal(t, "어제 보고서를 보냈습니다", segs[0].Text)
	assert.Equal(t, "아직 회신이 없습니다", segs[1].Text)
	assert.Equal(t, "확인 부탁드립니다", segs[2].Text)
}

func TestSegmentPositionsRecoverText(t *testing.T) {
	text := "어제 메일 보냈습니다. 답장 부탁드립니다."
	segs := newTest().Segment(text)
	require.Len(t, segs, 2)
	for _, s := range segs {
		assert.Equal(t, s.Text, text[s.Start:s.End])
	}
}

func TestSegmentAmbiguousConnectiveNotSplit(t *testing.T) {
	// 는데 mid-sentence acts as a connective; short left side and no
	// discourse marker after it means no cut.
	text := "어제 연락을 드렸는데 아직 답이 없어서 다시 문의드립니다."
	segs := newTest().Segment(text)
	require.Len(t, segs, 1)
}

func TestSegmentAmbiguousConnectiveSplitsBeforeDiscourseMarker(t *testing.T) {
	text := "어제 연락을 드렸는데 그런데 아직도 답변이 없습니다."
	segs := newTest().Segment(text)
	require.Len(t, segs, 2)
	assert.Equal(t, "어제 연락을 드렸는데", segs[0].Text)
	assert.True(t, strings.HasPrefix(segs[1].Text, "그런데"))
}

func TestSegmentPlaceholderNeverSplit(t *testing.T) {
	text := "마감은 {{DATE_1}}까지입니다. 금액은 {{MONEY_1}} 입니다."
	segs := newTest().Segment(text)
	for _, s := range segs {
		// Placeholders survive whole in exactly one segment.
		assert.NotContains(t, s.Text, "{{DATE_1}}까지입니다. 금액은")
	}
	joined := ""
	for _, s := range segs {
		joined += s.Text + " "
	}
	assert.Contains(t, joined, "{{DATE_1}}")
	assert.Contains(t, joined, "{{MONEY_1}}")
}

func TestSegmentBulletList(t *testing.T) {
	text := "다음 항목을 확인해주세요\n- 첫 번째 항목입니다\n- 두 번째 항목입니다"
	segs := newTest().Segment(text)
	require.Len(t, segs, 3)
	assert.Equal(t, "다음 항목을 확인해주세요", segs[0].Text)
	assert.Equal(t, "첫 번째 항목입니다", segs[1].Text)
	assert.Equal(t, "두 번째 항목입니다", segs[2].Text)
}

func TestSegmentForceSplitBound(t *testing.T) {
	// Without any sentence boundary, no output segment may exceed
	// MaxSegmentLength runes.
	var b strings.Builder
	for i := 0; i < 29; i++ {
		b.WriteString("업무내용정리 ")
	}
	text := strings.TrimSpace(b.String())
	require.Greater(t, utf8.RuneCountInString(text), DefaultOptions().MaxSegmentLength)

	segs := newTest().Segment(text)
	require.Greater(t, len(segs), 1)
	for _, s := range segs {
		assert.LessOrEqual(t, utf8.RuneCountInString(s.Text), 180, "segment %s over length bound", s.ID)
	}
}

func TestSegmentForceSplitLong(t *testing.T) {
	// A single unit far beyond the max length must be cut even without
	// any sentence boundary.
	word := "업무내용정리 "
	var b strings.Builder
	for b.Len() < 3*260 { // ~260 runes of Korean is ~780 bytes
		b.WriteString(word)
	}
	text := strings.TrimSpace(b.String())
	segs := newTest().Segment(text)
	assert.Greater(t, len(segs), 1)
}

func TestSegmentWeakPunctuation(t *testing.T) {
	text := "오늘 회의 있었음; 내용 공유함"
	segs := newTest().Segment(text)
	require.Len(t, segs, 2)
}

func TestSegmentMergesShortRuns(t *testing.T) {
	// Four tiny exclamations in a row collapse into one unit.
	text := "네. 네. 넵. 넹. 알겠습니다 바로 처리하겠습니다."
	segs := newTest().Segment(text)
	for i, s := range segs {
		if i < len(segs)-1 {
			continue
		}
		assert.NotEmpty(t, s.Text)
	}
	// The short run was merged: far fewer segments than raw splits.
	assert.LessOrEqual(t, len(segs), 3)
}

func TestSegmentIDsSequential(t *testing.T) {
	text := "첫 문장입니다. 둘째 문장입니다. 셋째 문장입니다."
	segs := newTest().Segment(text)
	for i, s := range segs {
		assert.Equal(t, "T"+string(rune('1'+i)), s.ID)
	}
}
