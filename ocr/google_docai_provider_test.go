package ocr

import (
	"image"
	"testing"

	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"github.com/stretchr/testify/assert"
)

func TestAnchorText(t *testing.T) {
	doc := &documentaipb.Document{Text: "销货出库单号: 1403-202402130001"}

	anchor := &documentaipb.Document_TextAnchor{
		TextSegments: []*documentaipb.Document_TextAnchor_TextSegment{
			{StartIndex: 0, EndIndex: 18},
		},
	}
	assert.Equal(t, "销货出库单号", anchorText(doc, anchor))

	// Segments are concatenated; out-of-range segments are skipped.
	anchor = &documentaipb.Document_TextAnchor{
		TextSegments: []*documentaipb.Document_TextAnchor_TextSegment{
			{StartIndex: 0, EndIndex: 18},
			{StartIndex: 9999, EndIndex: 10000},
			{StartIndex: 20, EndIndex: int64(len(doc.Text))},
		},
	}
	assert.Equal(t, "销货出库单号1403-202402130001", anchorText(doc, anchor))

	assert.Equal(t, "", anchorText(doc, nil))
}

func TestNormalizedPolyToRect(t *testing.T) {
	poly := &documentaipb.BoundingPoly{
		NormalizedVertices: []*documentaipb.NormalizedVertex{
			{X: 0.1, Y: 0.2},
			{X: 0.9, Y: 0.2},
			{X: 0.9, Y: 0.8},
			{X: 0.1, Y: 0.8},
		},
	}
	assert.Equal(t, image.Rect(100, 100, 900, 400), normalizedPolyToRect(poly, 1000, 500))

	// Degenerate polygons yield no region rather than a bogus one.
	assert.Equal(t, image.Rectangle{}, normalizedPolyToRect(&documentaipb.BoundingPoly{}, 1000, 500))
}

func TestAverageConfidence(t *testing.T) {
	candidates := []Candidate{
		{Confidence: 0.9},
		{Confidence: 0.5},
		{Confidence: 0.7},
	}
	assert.InDelta(t, 0.7, averageConfidence(candidates), 0.0001)

	// No line candidates: fall back to a neutral score.
	assert.InDelta(t, 0.5, averageConfidence(nil), 0.0001)
}

func TestIsImageMIMEType(t *testing.T) {
	assert.True(t, isImageMIMEType("image/png"))
	assert.True(t, isImageMIMEType("image/tiff"))
	assert.True(t, isImageMIMEType("application/pdf"))
	assert.False(t, isImageMIMEType("text/plain"))
	assert.False(t, isImageMIMEType("application/zip"))
}
