package ocr

import (
	"context"
	"fmt"
	"image"
	"strings"

	documentai "cloud.google.com/go/documentai/apiv1"
	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"github.com/gabriel-vasile/mimetype"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"
)

// GoogleDocAIProvider implements OCR using Google Document AI.
type GoogleDocAIProvider struct {
	projectID   string
	location    string
	processorID string
	client      *documentai.DocumentProcessorClient
}

func newGoogleDocAIProvider(config Config) (*GoogleDocAIProvider, error) {
	logger := log.WithFields(logrus.Fields{
		"location":     config.GoogleLocation,
		"processor_id": config.GoogleProcessorID,
	})
	logger.Info("Creating new Google Document AI provider")

	ctx := context.Background()
	endpoint := fmt.Sprintf("%s-documentai.googleapis.com:443", config.GoogleLocation)

	client, err := documentai.NewDocumentProcessorClient(ctx, option.WithEndpoint(endpoint))
	if err != nil {
		return nil, fmt.Errorf("error creating Document AI client: %w", err)
	}

	return &GoogleDocAIProvider{
		projectID:   config.GoogleProjectID,
		location:    config.GoogleLocation,
		processorID: config.GoogleProcessorID,
		client:      client,
	}, nil
}

func (p *GoogleDocAIProvider) Name() string { return "google_docai" }

func (p *GoogleDocAIProvider) ProcessImage(ctx context.Context, imageContent []byte, pageNumber int) (*Result, error) {
	logger := log.WithFields(logrus.Fields{
		"engine":       "google_docai",
		"processor_id": p.processorID,
		"page":         pageNumber,
	})
	logger.Debug("Starting Document AI processing")

	mtype := mimetype.Detect(imageContent)
	if !isImageMIMEType(mtype.String()) {
		return nil, fmt.Errorf("unsupported file type: %s", mtype.String())
	}

	name := fmt.Sprintf("projects/%s/locations/%s/processors/%s", p.projectID, p.location, p.processorID)
	req := &documentaipb.ProcessRequest{
		Name: name,
		Source: &documentaipb.ProcessRequest_RawDocument{
			RawDocument: &documentaipb.RawDocument{
				Content:  imageContent,
				MimeType: mtype.String(),
			},
		},
	}

	resp, err := p.client.ProcessDocument(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("error processing document: %w", err)
	}
	if resp == nil || resp.Document == nil {
		return nil, fmt.Errorf("received nil response or document from Document AI")
	}
	if resp.Document.Error != nil {
		return nil, fmt.Errorf("document processing error: %s", resp.Document.Error.Message)
	}

	doc := resp.Document
	result := &Result{
		Engine: "google_docai",
		Text:   doc.GetText(),
		Metadata: map[string]string{
			"provider":     "google_docai",
			"mime_type":    mtype.String(),
			"processor_id": p.processorID,
		},
	}

	for _, page := range doc.GetPages() {
		width := page.GetDimension().GetWidth()
		height := page.GetDimension().GetHeight()
		for _, line := range page.GetLines() {
			layout := line.GetLayout()
			text := strings.TrimSpace(anchorText(doc, layout.GetTextAnchor()))
			if text == "" {
				continue
			}
			result.Candidates = append(result.Candidates, Candidate{
				Text:       text,
				Confidence: float64(layout.GetConfidence()),
				Engine:     "google_docai",
				Page:       pageNumber,
				Region:     normalizedPolyToRect(layout.GetBoundingPoly(), width, height),
			})
		}
	}
	if text := strings.TrimSpace(doc.GetText()); text != "" {
		result.Candidates = append(result.Candidates, Candidate{
			Text:       text,
			Confidence: averageConfidence(result.Candidates),
			Engine:     "google_docai",
			Page:       pageNumber,
		})
	}

	logger.WithField("candidates", len(result.Candidates)).Info("Successfully processed document")
	return result, nil
}

// Close releases resources used by the provider.
func (p *GoogleDocAIProvider) Close() error {
	if p.client != nil {
		return p.client.Close()
	}
	return nil
}

// anchorText resolves a text anchor's segments against the document text.
func anchorText(doc *documentaipb.Document, anchor *documentaipb.Document_TextAnchor) string {
	if anchor == nil {
		return ""
	}
	var b strings.Builder
	text := doc.GetText()
	for _, seg := range anchor.GetTextSegments() {
		start, end := seg.GetStartIndex(), seg.GetEndIndex()
		if start < 0 || end > int64(len(text)) || start > end {
			continue
		}
		b.WriteString(text[start:end])
	}
	return b.String()
}

func normalizedPolyToRect(poly *documentaipb.BoundingPoly, width, height float32) image.Rectangle {
	vertices := poly.GetNormalizedVertices()
	if len(vertices) < 4 {
		return image.Rectangle{}
	}
	x1 := int(vertices[0].GetX() * width)
	y1 := int(vertices[0].GetY() * height)
	x2 := int(vertices[2].GetX() * width)
	y2 := int(vertices[2].GetY() * height)
	return image.Rect(x1, y1, x2, y2)
}

func averageConfidence(candidates []Candidate) float64 {
	if len(candidates) == 0 {
		return 0.5
	}
	var sum float64
	for _, c := range candidates {
		sum += c.Confidence
	}
	return sum / float64(len(candidates))
}

// isImageMIMEType checks if the given MIME type is a supported image type.
func isImageMIMEType(mimeType string) bool {
	supportedTypes := map[string]bool{
		"image/jpeg":      true,
		"image/jpg":       true,
		"image/png":       true,
		"image/tiff":      true,
		"image/bmp":       true,
		"application/pdf": true,
	}
	return supportedTypes[mimeType]
}
