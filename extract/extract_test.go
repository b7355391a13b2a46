package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdf-rename/ocr"
)

func mergedFrom(pairs ...interface{}) ocr.MergedResult {
	var merged ocr.MergedResult
	for i := 0; i < len(pairs); i += 2 {
		conf := pairs[i+1].(float64)
		merged.Candidates = append(merged.Candidates, ocr.MergedCandidate{
			Candidate: ocr.Candidate{Text: pairs[i].(string), Confidence: conf, Engine: "test"},
			Combined:  conf,
		})
	}
	return merged
}

func TestLabelAnchoredBeatsBareTokenConfidence(t *testing.T) {
	// The bare token outranks the labeled span on confidence, but the
	// label-anchored pattern has strictly higher priority.
	merged := mergedFrom(
		"SO2024001", 0.9,
		"销货出库单号: SO2024001", 0.6,
	)

	got, ok := New().Extract(merged)
	require.True(t, ok)
	assert.Equal(t, "SO2024001", got.Number)
	assert.Equal(t, "kw-outbound", got.PatternID)
	assert.InDelta(t, 0.6, got.Confidence, 0.0001)
}

func TestExtractStrictInvoiceFormat(t *testing.T) {
	merged := mergedFrom("发货日期 2024-02-13 1403-202402130001 客户", 0.7)

	got, ok := New().Extract(merged)
	require.True(t, ok)
	assert.Equal(t, "1403-202402130001", got.Number)
	assert.Equal(t, "bare-strict", got.PatternID)
}

func TestExtractNormalizesSeparators(t *testing.T) {
	merged := mergedFrom("出库单号：1403_202402130001", 0.8)

	got, ok := New().Extract(merged)
	require.True(t, ok)
	assert.Equal(t, "1403-202402130001", got.Number)
}

func TestExtractFirstMatchWithinCandidate(t *testing.T) {
	merged := mergedFrom("出库单号: 1403-202400000001 出库单号: 1403-202400000002", 0.8)

	got, ok := New().Extract(merged)
	require.True(t, ok)
	assert.Equal(t, "1403-202400000001", got.Number)
}

func TestExtractRespectsCandidateRank(t *testing.T) {
	// Same pattern matches both candidates; the higher-ranked one wins.
	merged := mergedFrom(
		"出库单号: 1403-202400000009", 0.9,
		"出库单号: 1403-202400000001", 0.5,
	)

	got, ok := New().Extract(merged)
	require.True(t, ok)
	assert.Equal(t, "1403-202400000009", got.Number)
}

func TestExtractNotFound(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"no digits", "客户名称 石家庄分公司"},
		{"excluded word", "INVOICE"},
		{"too short", "A1"},
		{"partial token must not be truncated", "编号: 0000000000000000000000000000001"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := New().Extract(mergedFrom(tt.text, 0.9))
			assert.False(t, ok)
		})
	}
}

func TestExtractRejectsCourierNumbers(t *testing.T) {
	tests := []string{
		"SF123456789012",      // 顺丰
		"JD1234567890123",     // 京东
		"YT1234567890123",     // two letters + 13 digits
		"1234567890123",       // 13 pure digits
		"123456789012345",     // 15 pure digits
		"单号: SF123456789012", // label does not rescue a courier number
	}
	for _, text := range tests {
		_, ok := New().Extract(mergedFrom(text, 0.9))
		assert.False(t, ok, "should reject %q", text)
	}
}

func TestExtractDigitConfusionFallback(t *testing.T) {
	// OCR read the second 0 as the letter O; no pattern matches the
	// raw text, the corrected variant matches the strict format.
	merged := mergedFrom("发货 14O3-2O2402130001 客户", 0.7)

	got, ok := New().Extract(merged)
	require.True(t, ok)
	assert.Equal(t, "1403-202402130001", got.Number)
}

func TestNormalizeToken(t *testing.T) {
	got, ok := normalizeToken("1403_202402130001")
	require.True(t, ok)
	assert.Equal(t, "1403-202402130001", got)

	got, ok = normalizeToken("SO:2024:001")
	require.True(t, ok)
	assert.Equal(t, "SO-2024-001", got)

	_, ok = normalizeToken("---")
	assert.False(t, ok)
}

func TestValidate(t *testing.T) {
	e := New()
	assert.True(t, e.validate("1403-202402130001"))
	assert.True(t, e.validate("SO2024001"))
	assert.False(t, e.validate("1111111111111111"))
	assert.False(t, e.validate("ORDER"))
	assert.False(t, e.validate("12"))
}
