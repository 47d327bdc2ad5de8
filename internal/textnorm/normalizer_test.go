package textnorm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeNFC(t *testing.T) {
	// Decomposed Hangul jamo compose to the precomposed syllable.
	decomposed := "한글"
	assert.Equal(t, "한글", Normalize(decomposed))
}

func TestNormalizeStripsInvisibles(t *testing.T) {
	assert.Equal(t, "보고서 제출", Normalize("보고서​ 제출\uFEFF"))
	assert.Equal(t, "안녕하세요", Normalize("안녕\x00하세요\x1F"))
}

func TestNormalizeWhitespace(t *testing.T) {
	assert.Equal(t, "첫 줄\n둘째 줄", Normalize("첫  \t줄\r\n둘째   줄"))
	// Newline runs collapse to a single blank line.
	assert.Equal(t, "위\n\n아래", Normalize("위\n\n\n\n아래"))
	assert.Equal(t, "본문", Normalize("  본문  \n"))
}

func TestNormalizeEmpty(t *testing.T) {
	assert.Empty(t, Normalize(""))
	assert.Empty(t, Normalize("  \n\n  "))
}
