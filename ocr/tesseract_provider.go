package ocr

import (
	"context"
	"fmt"
	"strings"

	"github.com/otiai10/gosseract/v2"
	"github.com/sirupsen/logrus"
)

// Character whitelists tried in order, narrowest first. Invoice order
// numbers are digits plus separators, so the narrow pass is both
// faster and less noisy; the unrestricted pass picks up the Chinese
// label text around the number.
var tesseractPasses = []string{
	"0123456789-_：: ",
	"0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz-_：: ",
	"",
}

// TesseractProvider implements OCR using a local Tesseract install via
// the gosseract binding.
type TesseractProvider struct {
	languages []string
}

func newTesseractProvider(config Config) *TesseractProvider {
	languages := config.Languages
	if len(languages) == 0 {
		languages = []string{"chi_sim", "eng"}
	}
	return &TesseractProvider{languages: languages}
}

func (p *TesseractProvider) Name() string { return "tesseract" }

// ProcessImage runs up to three recognition passes with narrowing
// character whitelists and stops at the first pass that produces a
// digit-bearing span.
func (p *TesseractProvider) ProcessImage(ctx context.Context, imageContent []byte, pageNumber int) (*Result, error) {
	logger := log.WithFields(logrus.Fields{
		"engine": "tesseract",
		"page":   pageNumber,
	})

	var lastErr error
	for pass, whitelist := range tesseractPasses {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		res, err := p.runPass(imageContent, pageNumber, whitelist)
		if err != nil {
			logger.WithField("pass", pass+1).WithError(err).Warn("Tesseract pass failed")
			lastErr = err
			continue
		}
		if hasDigitSpan(res.Candidates) || pass == len(tesseractPasses)-1 {
			logger.WithFields(logrus.Fields{
				"pass":       pass + 1,
				"candidates": len(res.Candidates),
			}).Debug("Tesseract pass accepted")
			return res, nil
		}
	}
	if lastErr != nil {
		return nil, fmt.Errorf("all tesseract passes failed: %w", lastErr)
	}
	return &Result{Engine: "tesseract", Metadata: map[string]string{"provider": "tesseract"}}, nil
}

func (p *TesseractProvider) runPass(imageContent []byte, pageNumber int, whitelist string) (*Result, error) {
	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(p.languages...); err != nil {
		return nil, fmt.Errorf("setting languages: %w", err)
	}
	if err := client.SetPageSegMode(gosseract.PSM_SINGLE_BLOCK); err != nil {
		return nil, fmt.Errorf("setting page segmentation mode: %w", err)
	}
	if whitelist != "" {
		if err := client.SetWhitelist(whitelist); err != nil {
			return nil, fmt.Errorf("setting whitelist: %w", err)
		}
	}
	if err := client.SetImageFromBytes(imageContent); err != nil {
		return nil, fmt.Errorf("setting image: %w", err)
	}

	text, err := client.Text()
	if err != nil {
		return nil, fmt.Errorf("recognizing text: %w", err)
	}
	text = strings.TrimSpace(text)

	result := &Result{
		Engine: "tesseract",
		Text:   text,
		Metadata: map[string]string{
			"provider":  "tesseract",
			"languages": strings.Join(p.languages, "+"),
		},
	}

	boxes, err := client.GetBoundingBoxes(gosseract.RIL_TEXTLINE)
	if err != nil || len(boxes) == 0 {
		// Fall back to the whole page as a single span.
		if text != "" {
			result.Candidates = []Candidate{{
				Text:       text,
				Confidence: 0.5,
				Engine:     "tesseract",
				Page:       pageNumber,
			}}
		}
		return result, nil
	}

	var confSum float64
	for _, box := range boxes {
		line := strings.TrimSpace(box.Word)
		if line == "" {
			continue
		}
		conf := box.Confidence / 100.0
		confSum += conf
		result.Candidates = append(result.Candidates, Candidate{
			Text:       line,
			Confidence: conf,
			Engine:     "tesseract",
			Page:       pageNumber,
			Region:     box.Box,
		})
	}

	// A whole-page span lets the extractor match labels that wrap
	// across line boundaries.
	if text != "" && len(result.Candidates) > 0 {
		result.Candidates = append(result.Candidates, Candidate{
			Text:       text,
			Confidence: confSum / float64(len(result.Candidates)),
			Engine:     "tesseract",
			Page:       pageNumber,
		})
	}

	return result, nil
}

func hasDigitSpan(candidates []Candidate) bool {
	for _, c := range candidates {
		if strings.ContainsAny(c.Text, "0123456789") {
			return true
		}
	}
	return false
}
