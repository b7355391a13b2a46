package ocr

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasDigitSpan(t *testing.T) {
	assert.True(t, hasDigitSpan([]Candidate{
		{Text: "客户名称"},
		{Text: "销货出库单号: 1403-202402130001"},
	}))
	assert.False(t, hasDigitSpan([]Candidate{
		{Text: "客户名称"},
		{Text: "石家庄分公司"},
	}))
	assert.False(t, hasDigitSpan(nil))
}

func TestNewTesseractProviderDefaultLanguages(t *testing.T) {
	p := newTesseractProvider(Config{})
	assert.Equal(t, []string{"chi_sim", "eng"}, p.languages)

	p = newTesseractProvider(Config{Languages: []string{"eng"}})
	assert.Equal(t, []string{"eng"}, p.languages)
}

func TestTesseractPassOrder(t *testing.T) {
	require.Len(t, tesseractPasses, 3)

	// The first pass restricts to digits and separators so order
	// numbers come through without Chinese-glyph noise.
	for _, r := range tesseractPasses[0] {
		assert.True(t, strings.ContainsRune("0123456789-_：: ", r))
	}
	// Later passes only widen the whitelist; the last is unrestricted.
	for _, r := range tesseractPasses[0] {
		assert.True(t, strings.ContainsRune(tesseractPasses[1], r))
	}
	assert.Empty(t, tesseractPasses[2])
}
