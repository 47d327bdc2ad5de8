package lockspan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tonebridge/internal/domain"
)

func TestExtractEmpty(t *testing.T) {
	assert.Nil(t, Extract(""))
	assert.Nil(t, Extract("안녕하세요 잘 부탁드립니다"))
}

func TestExtractEmail(t *testing.T) {
	spans := Extract("문의는 hong.gildong+dev@example.co.kr 으로 주세요")
	require.Len(t, spans, 1)
	assert.Equal(t, domain.SpanEmail, spans[0].Type)
	assert.Equal(t, "hong.gildong+dev@example.co.kr", spans[0].OriginalText)
	assert.Equal(t, "{{EMAIL_1}}", spans[0].Placeholder)
}

func TestExtractKoreanDateAndMoney(t *testing.T) {
	spans := Extract("3월 15일까지 50,000원 입금 부탁드립니다")
	require.Len(t, spans, 2)
	assert.Equal(t, domain.SpanDate, spans[0].Type)
	assert.Equal(t, "3월 15일", spans[0].OriginalText)
	assert.Equal(t, domain.SpanMoney, spans[1].Type)
	assert.Equal(t, "50,000원", spans[1].OriginalText)
	assert.Equal(t, "{{MONEY_1}}", spans[1].Placeholder)
}

func TestExtractPhoneBeatsAccount(t *testing.T) {
	// A phone number also matches the account pattern; phone has
	// higher priority at equal start and length.
	spans := Extract("연락처 010-1234-5678 입니다")
	require.Len(t, spans, 1)
	assert.Equal(t, domain.SpanPhone, spans[0].Type)
}

func TestExtractOverlapKeepsLongest(t *testing.T) {
	// v1.2.3 contains 1.2 and 2.3; only the full version survives.
	spans := Extract("배포 버전은 v1.2.3 입니다")
	require.Len(t, spans, 1)
	assert.Equal(t, domain.SpanVersion, spans[0].Type)
	assert.Equal(t, "v1.2.3", spans[0].OriginalText)
}

func TestExtractPerPrefixCounters(t *testing.T) {
	spans := Extract("a@b.com 그리고 c@d.com, 그리고 3월 1일")
	require.Len(t, spans, 3)
	assert.Equal(t, "{{EMAIL_1}}", spans[0].Placeholder)
	assert.Equal(t, "{{EMAIL_2}}", spans[1].Placeholder)
	assert.Equal(t, "{{DATE_1}}", spans[2].Placeholder)
}

func TestExtractSharedNumberPrefix(t *testing.T) {
	// UNIT_NUMBER and LARGE_NUMBER share the NUMBER prefix, so the
	// counter is continuous across both types.
	spans := Extract("3개 항목 중 12,345 건이 실패했습니다")
	require.Len(t, spans, 2)
	assert.Equal(t, "{{NUMBER_1}}", spans[0].Placeholder)
	assert.Equal(t, "{{NUMBER_2}}", spans[1].Placeholder)
}

func TestExtractTicketAndFile(t *testing.T) {
	spans := Extract("PROJ-123 관련해서 report_final.xlsx 확인 부탁드립니다")
	require.Len(t, spans, 2)
	assert.Equal(t, domain.SpanIssueTicket, spans[0].Type)
	assert.Equal(t, domain.SpanFilePath, spans[1].Type)
	assert.Equal(t, "{{FILE_1}}", spans[1].Placeholder)
}

func TestExtractQuotedText(t *testing.T) {
	spans := Extract("담당자가 \"처리 불가\"라고 답했습니다")
	require.Len(t, spans, 1)
	assert.Equal(t, domain.SpanQuotedText, spans[0].Type)
	assert.Equal(t, "\"처리 불가\"", spans[0].OriginalText)
}

func TestExtractSortedNonOverlapping(t *testing.T) {
	spans := Extract("2024-03-15 오전 10시 회의, 자료는 https://example.com/doc 참고")
	require.NotEmpty(t, spans)
	for i := 1; i < len(spans); i++ {
		assert.GreaterOrEqual(t, spans[i].StartPos, spans[i-1].EndPos)
	}
}
