package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// EasyOCRProvider implements OCR via an EasyOCR sidecar server.
type EasyOCRProvider struct {
	baseURL    string
	languages  []string
	httpClient *retryablehttp.Client
	limiter    *rate.Limiter
}

func newEasyOCRProvider(config Config) (*EasyOCRProvider, error) {
	logger := log.WithField("url", config.EasyOCRURL)
	logger.Info("Creating new EasyOCR provider")

	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.RetryWaitMin = 1 * time.Second
	client.RetryWaitMax = 10 * time.Second
	client.Logger = logger

	var limiter *rate.Limiter
	if config.EasyOCRRequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(config.EasyOCRRequestsPerMinute/60.0), 1)
	}

	return &EasyOCRProvider{
		baseURL:    strings.TrimRight(config.EasyOCRURL, "/"),
		languages:  config.Languages,
		httpClient: client,
		limiter:    limiter,
	}, nil
}

func (p *EasyOCRProvider) Name() string { return "easyocr" }

// easyOCRSpan mirrors one entry of the sidecar's /ocr JSON response.
type easyOCRSpan struct {
	Text       string      `json:"text"`
	Confidence float64     `json:"confidence"`
	Box        [][]float64 `json:"box"` // four [x, y] corner points
}

type easyOCRResponse struct {
	Results []easyOCRSpan `json:"results"`
	Error   string        `json:"error"`
}

// ProcessImage sends the page image to the EasyOCR server and converts
// its spans into candidates.
func (p *EasyOCRProvider) ProcessImage(ctx context.Context, imageContent []byte, pageNumber int) (*Result, error) {
	logger := log.WithFields(logrus.Fields{
		"engine": "easyocr",
		"page":   pageNumber,
	})

	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait failed: %w", err)
		}
	}

	mtype := mimetype.Detect(imageContent)

	var requestBody bytes.Buffer
	writer := multipart.NewWriter(&requestBody)
	part, err := writer.CreateFormFile("file", "page"+mtype.Extension())
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, bytes.NewReader(imageContent)); err != nil {
		return nil, fmt.Errorf("failed to copy image content to form: %w", err)
	}
	_ = writer.WriteField("languages", strings.Join(p.languages, ","))
	_ = writer.WriteField("detail", "true")
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, "POST", p.baseURL+"/ocr", &requestBody)
	if err != nil {
		return nil, fmt.Errorf("error creating EasyOCR request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	logger.Debug("Sending request to EasyOCR server")
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error sending request to EasyOCR: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading EasyOCR response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("easyocr API returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed easyOCRResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("error parsing EasyOCR JSON response: %w", err)
	}
	if parsed.Error != "" {
		return nil, fmt.Errorf("easyocr processing failed: %s", parsed.Error)
	}

	result := &Result{
		Engine: "easyocr",
		Metadata: map[string]string{
			"provider": "easyocr",
		},
	}

	var texts []string
	for _, span := range parsed.Results {
		text := strings.TrimSpace(span.Text)
		if text == "" {
			continue
		}
		texts = append(texts, text)
		result.Candidates = append(result.Candidates, Candidate{
			Text:       text,
			Confidence: span.Confidence,
			Engine:     "easyocr",
			Page:       pageNumber,
			Region:     quadToRect(span.Box),
		})
	}
	result.Text = strings.Join(texts, "\n")

	logger.WithField("candidates", len(result.Candidates)).Info("Successfully processed image with EasyOCR")
	return result, nil
}

// quadToRect converts EasyOCR's four-corner polygon into the enclosing
// pixel rectangle.
func quadToRect(box [][]float64) image.Rectangle {
	if len(box) == 0 {
		return image.Rectangle{}
	}
	minX, minY := box[0][0], box[0][1]
	maxX, maxY := minX, minY
	for _, pt := range box {
		if len(pt) < 2 {
			continue
		}
		if pt[0] < minX {
			minX = pt[0]
		}
		if pt[0] > maxX {
			maxX = pt[0]
		}
		if pt[1] < minY {
			minY = pt[1]
		}
		if pt[1] > maxY {
			maxY = pt[1]
		}
	}
	return image.Rect(int(minX), int(minY), int(maxX), int(maxY))
}
