package ocr

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
)

var log = logrus.New()

// Provider defines the interface for a single OCR engine.
type Provider interface {
	// Name returns the engine identifier used in priority lists.
	Name() string

	// ProcessImage runs recognition on one page image (PNG or JPEG bytes).
	ProcessImage(ctx context.Context, imageContent []byte, pageNumber int) (*Result, error)
}

// Config holds the OCR engine configuration shared by all providers.
type Config struct {
	// Recognition languages in tesseract notation (e.g. "chi_sim", "eng")
	Languages []string

	// EasyOCR sidecar settings
	EasyOCRURL               string
	EasyOCRRequestsPerMinute float64

	// Vision LLM settings
	VisionLLMProvider string
	VisionLLMModel    string
	VisionLLMPrompt   string

	// Google Document AI settings
	GoogleProjectID   string
	GoogleLocation    string
	GoogleProcessorID string
}

// NewProvider creates a single OCR engine by identifier.
func NewProvider(engine string, config Config) (Provider, error) {
	switch engine {
	case "tesseract":
		log.WithField("languages", config.Languages).Info("Using Tesseract engine")
		return newTesseractProvider(config), nil

	case "easyocr":
		if config.EasyOCRURL == "" {
			return nil, fmt.Errorf("missing required EasyOCR configuration (EASYOCR_URL)")
		}
		log.WithField("url", config.EasyOCRURL).Info("Using EasyOCR engine")
		return newEasyOCRProvider(config)

	case "llm":
		if config.VisionLLMProvider == "" || config.VisionLLMModel == "" {
			return nil, fmt.Errorf("missing required vision LLM configuration")
		}
		log.WithFields(logrus.Fields{
			"provider": config.VisionLLMProvider,
			"model":    config.VisionLLMModel,
		}).Info("Using vision LLM engine")
		return newLLMProvider(config)

	case "google_docai":
		if config.GoogleProjectID == "" || config.GoogleLocation == "" || config.GoogleProcessorID == "" {
			return nil, fmt.Errorf("missing required Google Document AI configuration")
		}
		log.WithFields(logrus.Fields{
			"location":     config.GoogleLocation,
			"processor_id": config.GoogleProcessorID,
		}).Info("Using Google Document AI engine")
		return newGoogleDocAIProvider(config)

	default:
		return nil, fmt.Errorf("unsupported OCR engine: %s", engine)
	}
}

// NewEngines instantiates engines in the given priority order.
func NewEngines(priority []string, config Config) ([]Provider, error) {
	if len(priority) == 0 {
		return nil, fmt.Errorf("engine priority list is empty")
	}
	engines := make([]Provider, 0, len(priority))
	for _, id := range priority {
		p, err := NewProvider(id, config)
		if err != nil {
			return nil, fmt.Errorf("initializing engine %q: %w", id, err)
		}
		engines = append(engines, p)
	}
	return engines, nil
}

// SetLogLevel sets the logging level for the OCR package.
func SetLogLevel(level logrus.Level) {
	log.SetLevel(level)
}
