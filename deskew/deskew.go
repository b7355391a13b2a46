// Package deskew estimates and corrects the in-plane rotation of
// scanned page images before OCR. Three independent estimators vote
// and an explicit arbitration rule picks the applied angle.
package deskew

import (
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"
)

var log = logrus.New()

// SetLogLevel sets the logging level for the deskew package.
func SetLogLevel(level logrus.Level) {
	log.SetLevel(level)
}

// Estimate is one estimator's vote: a correction angle in degrees
// (counter-clockwise) and a self-reported confidence in [0, 1].
type Estimate struct {
	Angle      float64
	Confidence float64
}

// Corrector detects page rotation and returns a corrected copy.
type Corrector struct {
	// MaxDimension bounds the working copy used for estimation.
	MaxDimension int

	// Tolerance is the maximum disagreement in degrees between the two
	// most confident estimators before arbitration falls back to the
	// median of all votes.
	Tolerance float64

	// MinInkRatio is the dark-pixel fraction below which a page is
	// treated as blank and passed through unrotated.
	MinInkRatio float64
}

// New returns a Corrector with default tuning.
func New() *Corrector {
	return &Corrector{
		MaxDimension: 800,
		Tolerance:    2.0,
		MinInkRatio:  0.002,
	}
}

// Correct estimates the page rotation and returns a corrected copy of
// the image together with the applied angle in degrees. The input is
// never mutated. Correction never fails: estimator panics are treated
// as absent votes and a blank page comes back unrotated.
func (c *Corrector) Correct(img image.Image) (image.Image, float64) {
	working := imaging.Grayscale(imaging.Fit(img, c.MaxDimension, c.MaxDimension, imaging.Linear))
	gray := toGray(working)

	if inkRatio(gray) < c.MinInkRatio {
		log.Debug("Near-blank page, skipping rotation")
		return imaging.Clone(img), 0
	}

	votes := make([]Estimate, 0, 3)
	for _, est := range []struct {
		name string
		fn   func(*image.Gray) Estimate
	}{
		{"lines", estimateByLines},
		{"projection", c.estimateByProjection},
		{"morphology", estimateByMorphology},
	} {
		if e, ok := runEstimator(est.fn, gray); ok {
			log.WithFields(logrus.Fields{
				"estimator":  est.name,
				"angle":      e.Angle,
				"confidence": e.Confidence,
			}).Debug("Angle estimate")
			votes = append(votes, e)
		} else {
			log.WithField("estimator", est.name).Warn("Angle estimator panicked, vote dropped")
		}
	}

	angle := arbitrate(votes, c.Tolerance)
	if angle == 0 {
		return imaging.Clone(img), 0
	}

	coarse, fine := splitAngle(angle)
	corrected := rotateCoarse(img, coarse)
	if fine != 0 {
		corrected = imaging.Rotate(corrected, fine, color.White)
	}
	return corrected, angle
}

// runEstimator shields the arbitration from a panicking estimator.
func runEstimator(fn func(*image.Gray) Estimate, gray *image.Gray) (est Estimate, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()
	return fn(gray), true
}

// arbitrate picks the most confident vote unless the two strongest
// votes disagree by more than tolerance degrees, in which case the
// median of all votes wins to suppress single-estimator outliers.
func arbitrate(votes []Estimate, tolerance float64) float64 {
	if len(votes) == 0 {
		return 0
	}
	sorted := make([]Estimate, len(votes))
	copy(sorted, votes)
	for i := 0; i < len(sorted); i++ {
		for j := i + 1; j < len(sorted); j++ {
			if sorted[j].Confidence > sorted[i].Confidence {
				sorted[i], sorted[j] = sorted[j], sorted[i]
			}
		}
	}
	if len(sorted) >= 2 && math.Abs(sorted[0].Angle-sorted[1].Angle) > tolerance {
		angles := make([]float64, len(votes))
		for i, v := range votes {
			angles[i] = v.Angle
		}
		return median(angles)
	}
	return sorted[0].Angle
}

// splitAngle separates a correction into the nearest 90-degree
// orientation and the fine residual within it.
func splitAngle(angle float64) (coarse int, fine float64) {
	coarse = int(math.Round(angle/90)) * 90
	fine = angle - float64(coarse)
	return coarse, fine
}

func rotateCoarse(img image.Image, coarse int) *image.NRGBA {
	switch ((coarse % 360) + 360) % 360 {
	case 90:
		return imaging.Rotate90(img)
	case 180:
		return imaging.Rotate180(img)
	case 270:
		return imaging.Rotate270(img)
	default:
		return imaging.Clone(img)
	}
}

func median(values []float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	for i := 0; i < len(sorted); i++ {
		for j := i + 1; j < len(sorted); j++ {
			if sorted[j] < sorted[i] {
				sorted[i], sorted[j] = sorted[j], sorted[i]
			}
		}
	}
	return sorted[len(sorted)/2]
}

func toGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	bounds := img.Bounds()
	gray := image.NewGray(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			gray.Set(x, y, img.At(x, y))
		}
	}
	return gray
}

const darkThreshold = 128

func inkRatio(gray *image.Gray) float64 {
	bounds := gray.Bounds()
	total := bounds.Dx() * bounds.Dy()
	if total == 0 {
		return 0
	}
	dark := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			if gray.GrayAt(x, y).Y < darkThreshold {
				dark++
			}
		}
	}
	return float64(dark) / float64(total)
}

// normalizeHalf maps an angle to (-45, 135] so that equivalent
// corrections (e.g. -90 and +90 for line orientation, which is
// 180-degree ambiguous) compare as the same vote.
func normalizeHalf(angle float64) float64 {
	for angle <= -45 {
		angle += 180
	}
	for angle > 135 {
		angle -= 180
	}
	return angle
}
