package deskew

import (
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
)

// estimateByLines builds a histogram of edge orientations (Sobel
// gradients) and votes for the correction that brings the dominant
// line direction back to horizontal.
func estimateByLines(gray *image.Gray) Estimate {
	bounds := gray.Bounds()
	const bins = 180
	hist := make([]int, bins)
	total := 0

	const magThreshold = 200

	for y := bounds.Min.Y + 1; y < bounds.Max.Y-1; y++ {
		for x := bounds.Min.X + 1; x < bounds.Max.X-1; x++ {
			gx := int(gray.GrayAt(x+1, y-1).Y) + 2*int(gray.GrayAt(x+1, y).Y) + int(gray.GrayAt(x+1, y+1).Y) -
				int(gray.GrayAt(x-1, y-1).Y) - 2*int(gray.GrayAt(x-1, y).Y) - int(gray.GrayAt(x-1, y+1).Y)
			gy := int(gray.GrayAt(x-1, y+1).Y) + 2*int(gray.GrayAt(x, y+1).Y) + int(gray.GrayAt(x+1, y+1).Y) -
				int(gray.GrayAt(x-1, y-1).Y) - 2*int(gray.GrayAt(x, y-1).Y) - int(gray.GrayAt(x+1, y-1).Y)
			if gx*gx+gy*gy < magThreshold*magThreshold {
				continue
			}
			// Gradient angle in pixel coordinates (y grows downward).
			// A text line tilted by theta (counter-clockwise on
			// screen) produces gradients at 90-theta here.
			gradDeg := math.Atan2(float64(gy), float64(gx)) * 180 / math.Pi
			lineDeg := 90 - gradDeg
			for lineDeg < 0 {
				lineDeg += 180
			}
			for lineDeg >= 180 {
				lineDeg -= 180
			}
			hist[int(lineDeg)%bins]++
			total++
		}
	}

	if total < 50 {
		return Estimate{Angle: 0, Confidence: 0.05}
	}

	// Mode over a 3-bin window to tolerate anti-aliasing spread.
	best, bestCount := 0, -1
	for i := 0; i < bins; i++ {
		count := hist[i] + hist[(i+1)%bins] + hist[(i+bins-1)%bins]
		if count > bestCount {
			best, bestCount = i, count
		}
	}

	confidence := float64(bestCount) / float64(total)
	if confidence > 0.95 {
		confidence = 0.95
	}
	return Estimate{Angle: normalizeHalf(-float64(best)), Confidence: confidence}
}

// projectionTrials are the corrections tried by the projection-profile
// estimator: fine skews around level plus the 90-degree orientation.
func projectionTrials() []float64 {
	trials := make([]float64, 0, 32)
	for t := -15; t <= 15; t++ {
		trials = append(trials, float64(t))
	}
	trials = append(trials, 90)
	return trials
}

// estimateByProjection rotates the page by each trial correction and
// keeps the one maximizing the variance of per-row ink counts: text
// rows separated by blank gaps produce a strongly uneven profile only
// when the text is level.
func (c *Corrector) estimateByProjection(gray *image.Gray) Estimate {
	trials := projectionTrials()

	bestIdx, bestVar, sumVar := 0, -1.0, 0.0
	for i, t := range trials {
		v := rowVariance(imaging.Rotate(gray, t, color.White))
		sumVar += v
		if v > bestVar {
			bestIdx, bestVar = i, v
		}
	}

	if bestVar <= 0 {
		return Estimate{Angle: 0, Confidence: 0.05}
	}
	meanVar := sumVar / float64(len(trials))
	confidence := 1 - meanVar/bestVar
	if confidence < 0 {
		confidence = 0
	}
	return Estimate{Angle: trials[bestIdx], Confidence: confidence}
}

func rowVariance(img *image.NRGBA) float64 {
	bounds := img.Bounds()
	h := bounds.Dy()
	if h == 0 {
		return 0
	}
	counts := make([]float64, h)
	for y := 0; y < h; y++ {
		row := 0
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			if img.NRGBAAt(x, bounds.Min.Y+y).R < darkThreshold {
				row++
			}
		}
		counts[y] = float64(row)
	}
	mean := 0.0
	for _, c := range counts {
		mean += c
	}
	mean /= float64(h)
	variance := 0.0
	for _, c := range counts {
		d := c - mean
		variance += d * d
	}
	return variance / float64(h)
}

// estimateByMorphology compares horizontal against vertical dark run
// lengths. Upright text produces long horizontal runs (words, rules);
// a sideways page flips the ratio.
func estimateByMorphology(gray *image.Gray) Estimate {
	const minRun = 12

	bounds := gray.Bounds()
	horizontal := countRuns(bounds.Dy(), bounds.Dx(), minRun, func(line, i int) bool {
		return gray.GrayAt(bounds.Min.X+i, bounds.Min.Y+line).Y < darkThreshold
	})
	vertical := countRuns(bounds.Dx(), bounds.Dy(), minRun, func(line, i int) bool {
		return gray.GrayAt(bounds.Min.X+line, bounds.Min.Y+i).Y < darkThreshold
	})

	if horizontal == 0 && vertical == 0 {
		return Estimate{Angle: 0, Confidence: 0.05}
	}

	var angle float64
	var ratio float64
	if float64(vertical) > 1.3*float64(horizontal) {
		angle = 90
		ratio = float64(vertical) / math.Max(float64(horizontal), 1)
	} else {
		angle = 0
		ratio = float64(horizontal) / math.Max(float64(vertical), 1)
	}

	confidence := (ratio - 1) / 4
	if confidence < 0.1 {
		confidence = 0.1
	}
	if confidence > 0.7 {
		confidence = 0.7
	}
	return Estimate{Angle: angle, Confidence: confidence}
}

// countRuns sums pixels belonging to dark runs of at least minRun
// along each of lines scan lines of length n.
func countRuns(lines, n, minRun int, dark func(line, i int) bool) int {
	totalPixels := 0
	for line := 0; line < lines; line++ {
		run := 0
		for i := 0; i <= n; i++ {
			if i < n && dark(line, i) {
				run++
				continue
			}
			if run >= minRun {
				totalPixels += run
			}
			run = 0
		}
	}
	return totalPixels
}
