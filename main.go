package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"pdf-rename/deskew"
	"pdf-rename/extract"
	"pdf-rename/ocr"
)

// Global Variables and Constants
var (

	// Logger
	log = logrus.New()

	// Environment Variables
	ocrEngines        = os.Getenv("OCR_ENGINES")
	ocrLanguages      = os.Getenv("OCR_LANGUAGES")
	easyOcrURL        = os.Getenv("EASYOCR_URL")
	easyOcrRPM        = os.Getenv("EASYOCR_REQUESTS_PER_MINUTE")
	visionLlmProvider = os.Getenv("VISION_LLM_PROVIDER")
	visionLlmModel    = os.Getenv("VISION_LLM_MODEL")
	visionLlmPrompt   = os.Getenv("VISION_LLM_PROMPT")
	googleProjectID   = os.Getenv("GOOGLE_PROJECT_ID")
	googleLocation    = os.Getenv("GOOGLE_LOCATION")
	googleProcessorID = os.Getenv("GOOGLE_PROCESSOR_ID")
	backupDir         = os.Getenv("BACKUP_DIR")
	listenAddr        = os.Getenv("LISTEN_ADDR")
	logLevel          = strings.ToLower(os.Getenv("LOG_LEVEL"))
)

// App struct to hold dependencies
type App struct {
	Processor  *BatchProcessor
	Database   *gorm.DB
	BackupRoot string
}

func main() {
	initLogger()
	loadSettings()

	if backupDir == "" {
		backupDir = "backups"
	}
	if listenAddr == "" {
		listenAddr = ":8080"
	}

	engines, err := ocr.NewEngines(enginePriority(), ocrConfig())
	if err != nil {
		log.Fatalf("Failed to initialize OCR engines: %v", err)
	}
	orchestrator := ocr.NewOrchestrator(engines, ocr.OrchestratorConfig{
		PerPageTimeout: perPageTimeout(),
		Weights:        engineWeights(),
	})

	database := InitializeDB()

	app := &App{
		Processor: &BatchProcessor{
			Rasterizer: newFitzRasterizer(),
			Corrector:  deskew.New(),
			Recognizer: orchestrator,
			Extractor:  extract.New(),
			Backup:     &BackupManager{Root: backupDir},
			NewRecognizer: func(priority []string, timeout time.Duration) (PageRecognizer, error) {
				if len(priority) == 0 {
					priority = enginePriority()
				}
				if timeout <= 0 {
					timeout = perPageTimeout()
				}
				engines, err := ocr.NewEngines(priority, ocrConfig())
				if err != nil {
					return nil, err
				}
				return ocr.NewOrchestrator(engines, ocr.OrchestratorConfig{
					PerPageTimeout: timeout,
					Weights:        engineWeights(),
				}), nil
			},
			Database: database,
		},
		Database:   database,
		BackupRoot: backupDir,
	}

	// With file arguments the program runs one batch and exits;
	// without arguments it serves the API.
	if len(os.Args) > 1 {
		os.Exit(runCLI(app, os.Args[1:]))
	}

	startWorkerPool(app, 1)

	router := gin.Default()

	api := router.Group("/api")
	{
		api.POST("/batches", app.submitBatchHandler)
		api.GET("/batches", app.getAllBatchesHandler)
		api.GET("/batches/:id", app.getBatchHandler)
		api.POST("/batches/:id/cancel", app.cancelBatchHandler)

		api.GET("/history", app.getHistoryHandler)
		api.GET("/backups", app.getBackupsHandler)

		api.GET("/settings", getSettingsHandler)
		api.POST("/settings", updateSettingsHandler)
	}

	log.Infoln("Server started on", listenAddr)
	if err := router.Run(listenAddr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// runCLI processes the given files and directories as one synchronous
// batch and prints a summary. The exit code is non-zero when any
// document failed.
func runCLI(app *App, args []string) int {
	paths, err := collectPDFs(args)
	if err != nil {
		log.Errorf("Failed to collect documents: %v", err)
		return 1
	}
	if len(paths) == 0 {
		log.Error("No PDF files found in the given paths")
		return 1
	}

	report := app.Processor.Process(context.Background(), generateBatchID(), paths, currentOptions(), nil)
	printReport(report)

	if report.Failed > 0 {
		return 1
	}
	return 0
}

// collectPDFs expands the argument list into PDF file paths.
// Directories are walked recursively; explicit file arguments are
// taken as-is so that validation can report on them individually.
func collectPDFs(args []string) ([]string, error) {
	var paths []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			paths = append(paths, arg)
			continue
		}
		err = filepath.Walk(arg, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if !info.IsDir() && strings.EqualFold(filepath.Ext(path), ".pdf") {
				paths = append(paths, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	sort.Strings(paths)
	return paths, nil
}

func printReport(report Report) {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()

	for _, doc := range report.Documents {
		switch doc.Status {
		case StatusSucceeded:
			fmt.Printf("%s  %s -> %s\n", green("renamed"), doc.Path, doc.NewPath)
		case StatusSkipped:
			fmt.Printf("%s  %s (%s)\n", yellow("skipped"), doc.Path, doc.Error)
		default:
			fmt.Printf("%s   %s (%s)\n", red("failed"), doc.Path, doc.Error)
		}
	}
	fmt.Printf("\n%d renamed, %d failed, %d skipped (%.1fs)\n",
		report.Succeeded, report.Failed, report.Skipped,
		report.FinishedAt.Sub(report.StartedAt).Seconds())
}

func enginePriority() []string {
	if ocrEngines != "" {
		var priority []string
		for _, id := range strings.Split(ocrEngines, ",") {
			if id = strings.TrimSpace(id); id != "" {
				priority = append(priority, id)
			}
		}
		return priority
	}
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settings.EnginePriority
}

func engineWeights() []float64 {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settings.EngineWeights
}

func ocrConfig() ocr.Config {
	languages := []string{"chi_sim", "eng"}
	if ocrLanguages != "" {
		languages = strings.Split(ocrLanguages, ",")
		for i := range languages {
			languages[i] = strings.TrimSpace(languages[i])
		}
	}

	rpm := 0.0
	if easyOcrRPM != "" {
		parsed, err := strconv.ParseFloat(easyOcrRPM, 64)
		if err != nil {
			log.Fatalf("Invalid EASYOCR_REQUESTS_PER_MINUTE value %q: %v", easyOcrRPM, err)
		}
		rpm = parsed
	}

	return ocr.Config{
		Languages:                languages,
		EasyOCRURL:               easyOcrURL,
		EasyOCRRequestsPerMinute: rpm,
		VisionLLMProvider:        visionLlmProvider,
		VisionLLMModel:           visionLlmModel,
		VisionLLMPrompt:          visionLlmPrompt,
		GoogleProjectID:          googleProjectID,
		GoogleLocation:           googleLocation,
		GoogleProcessorID:        googleProcessorID,
	}
}

func initLogger() {
	switch logLevel {
	case "debug":
		log.SetLevel(logrus.DebugLevel)
	case "warn":
		log.SetLevel(logrus.WarnLevel)
	case "error":
		log.SetLevel(logrus.ErrorLevel)
	default:
		log.SetLevel(logrus.InfoLevel)
	}
	ocr.SetLogLevel(log.GetLevel())
	deskew.SetLogLevel(log.GetLevel())
	extract.SetLogLevel(log.GetLevel())

	log.SetFormatter(&logrus.TextFormatter{
		DisableColors: true,
		FullTimestamp: true,
	})
}
