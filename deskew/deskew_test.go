package deskew

import (
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
)

// stripePage paints a synthetic page of horizontal text rows: black
// bands separated by white gaps, the projection profile of clean
// upright text.
func stripePage() *image.NRGBA {
	img := imaging.New(400, 300, color.White)
	for band := 40; band < 280; band += 40 {
		for y := band; y < band+10; y++ {
			for x := 20; x < 380; x++ {
				img.Set(x, y, color.Black)
			}
		}
	}
	return img
}

func TestCorrectUprightPage(t *testing.T) {
	corrected, angle := New().Correct(stripePage())
	assert.InDelta(t, 0, angle, 1.0)
	assert.NotNil(t, corrected)
}

func TestCorrectQuarterTurnedPage(t *testing.T) {
	rotated := imaging.Rotate90(stripePage())

	_, angle := New().Correct(rotated)

	// 90 and -90 are equivalent for orientation recovery; the
	// downstream recognizer resolves the remaining 180 ambiguity.
	folded := math.Abs(math.Mod(angle, 180))
	assert.InDelta(t, 90, folded, 3.0)
}

func TestCorrectThreeQuarterTurnedPage(t *testing.T) {
	rotated := imaging.Rotate270(stripePage())

	_, angle := New().Correct(rotated)

	folded := math.Abs(math.Mod(angle, 180))
	assert.InDelta(t, 90, folded, 3.0)
}

func TestCorrectSmallSkew(t *testing.T) {
	skewed := imaging.Rotate(stripePage(), 7, color.White)

	_, angle := New().Correct(skewed)
	assert.InDelta(t, -7, angle, 2.5)
}

func TestCorrectBlankPage(t *testing.T) {
	blank := imaging.New(300, 200, color.White)

	corrected, angle := New().Correct(blank)
	assert.Equal(t, 0.0, angle)
	assert.Equal(t, blank.Bounds(), corrected.Bounds())
}

func TestCorrectDoesNotMutateInput(t *testing.T) {
	page := stripePage()
	before := imaging.Clone(page)

	New().Correct(page)
	assert.Equal(t, before.Pix, page.Pix)
}

func TestSplitAngle(t *testing.T) {
	tests := []struct {
		angle  float64
		coarse int
		fine   float64
	}{
		{0, 0, 0},
		{-5, 0, -5},
		{87, 90, -3},
		{92, 90, 2},
		{180, 180, 0},
	}
	for _, tt := range tests {
		coarse, fine := splitAngle(tt.angle)
		assert.Equal(t, tt.coarse, coarse)
		assert.InDelta(t, tt.fine, fine, 0.0001)
	}
}

func TestArbitrate(t *testing.T) {
	// Agreement within tolerance: highest confidence wins.
	angle := arbitrate([]Estimate{
		{Angle: -5, Confidence: 0.9},
		{Angle: -4.5, Confidence: 0.8},
		{Angle: 0, Confidence: 0.1},
	}, 2.0)
	assert.Equal(t, -5.0, angle)

	// Top two disagree: median suppresses the outlier.
	angle = arbitrate([]Estimate{
		{Angle: 90, Confidence: 0.9},
		{Angle: 0, Confidence: 0.85},
		{Angle: 1, Confidence: 0.3},
	}, 2.0)
	assert.Equal(t, 1.0, angle)

	assert.Equal(t, 0.0, arbitrate(nil, 2.0))
}
