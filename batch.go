package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"pdf-rename/extract"
	"pdf-rename/ocr"
)

var (
	// ErrUnreadablePDF marks documents that failed validation or could
	// not be opened. The batch continues with the remaining documents.
	ErrUnreadablePDF = errors.New("unreadable PDF")

	// ErrPageOutOfRange is returned when a page index beyond the
	// document's page count is requested.
	ErrPageOutOfRange = errors.New("page index out of range")

	// ErrBackupVerification marks a backup copy that could not be
	// verified. The original file is never renamed in that case.
	ErrBackupVerification = errors.New("backup verification failed")

	// ErrNoOrderNumber marks documents where no page yielded a valid
	// order number.
	ErrNoOrderNumber = errors.New("no order number found")
)

// Rasterizer turns PDF pages into images.
type Rasterizer interface {
	// PageCount validates the file and returns its page count.
	PageCount(path string) (int, error)

	// RenderPage rasterizes the zero-based page at the given DPI.
	RenderPage(ctx context.Context, path string, page, dpi int) (image.Image, error)
}

// PageRecognizer runs OCR on one page image and returns ranked
// candidates merged across engines.
type PageRecognizer interface {
	Recognize(ctx context.Context, imageContent []byte, page int) (ocr.MergedResult, error)
}

// AngleCorrector straightens a page image before recognition.
type AngleCorrector interface {
	Correct(img image.Image) (image.Image, float64)
}

// NumberExtractor finds the order number in merged OCR output.
type NumberExtractor interface {
	Extract(merged ocr.MergedResult) (extract.Extracted, bool)
}

// Backupper copies a file into the backup tree and verifies the copy.
type Backupper interface {
	Backup(path string) (string, error)
}

// BatchProcessor drives the rename pipeline for a set of PDFs:
// validate, rasterize, deskew, recognize, extract, backup, rename.
type BatchProcessor struct {
	Rasterizer Rasterizer
	Corrector  AngleCorrector
	Recognizer PageRecognizer
	Extractor  NumberExtractor
	Backup     Backupper

	// NewRecognizer, when set, builds a batch-specific recognizer for
	// submissions that override the engine priority or the per-page
	// time budget.
	NewRecognizer func(enginePriority []string, perPageTimeout time.Duration) (PageRecognizer, error)

	// Database records rename history when non-nil.
	Database *gorm.DB
}

const (
	defaultDPI        = 300
	defaultMaxPages   = 10
	defaultMaxWorkers = 2
)

// Process runs the pipeline over paths with a bounded worker pool and
// returns a report in submission order. Each document fails or
// succeeds independently; a cancelled context fails the documents not
// yet finished. progress, when non-nil, is called after each document
// with the number completed so far.
func (p *BatchProcessor) Process(ctx context.Context, batchID string, paths []string, opts Options, progress func(done int)) Report {
	report := Report{
		BatchID:   batchID,
		StartedAt: time.Now(),
		Documents: make([]Document, len(paths)),
	}

	recognizer, err := p.batchRecognizer(opts)
	if err != nil {
		log.WithError(err).Error("Batch rejected: engine configuration invalid")
		report.FinishedAt = time.Now()
		report.Failed = len(paths)
		for i, path := range paths {
			report.Documents[i] = Document{Path: path, Status: StatusFailed, Error: err.Error()}
		}
		return report
	}

	workers := opts.MaxWorkers
	if workers <= 0 {
		workers = defaultMaxWorkers
	}
	if workers > len(paths) {
		workers = len(paths)
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	var done int32

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				report.Documents[idx] = p.processDocument(ctx, paths[idx], batchID, opts, recognizer)
				if progress != nil {
					progress(int(atomic.AddInt32(&done, 1)))
				}
			}
		}()
	}
	for i := range paths {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	report.FinishedAt = time.Now()
	for _, doc := range report.Documents {
		switch doc.Status {
		case StatusSucceeded:
			report.Succeeded++
		case StatusSkipped:
			report.Skipped++
		default:
			report.Failed++
		}
	}
	return report
}

// batchRecognizer returns the recognizer for one batch, building a
// dedicated one when the submission overrides engine priority or the
// page budget.
func (p *BatchProcessor) batchRecognizer(opts Options) (PageRecognizer, error) {
	if p.NewRecognizer == nil || (len(opts.EnginePriority) == 0 && opts.PerPageTimeoutMs <= 0) {
		return p.Recognizer, nil
	}
	return p.NewRecognizer(opts.EnginePriority, time.Duration(opts.PerPageTimeoutMs)*time.Millisecond)
}

// processDocument runs the full pipeline for one PDF. It never
// panics the batch: every failure is captured in the returned
// Document.
func (p *BatchProcessor) processDocument(ctx context.Context, path, batchID string, opts Options, recognizer PageRecognizer) Document {
	doc := Document{Path: path, Status: StatusProcessing}

	if err := ctx.Err(); err != nil {
		doc.Status = StatusFailed
		doc.Error = "batch cancelled"
		return doc
	}

	pages, err := p.Rasterizer.PageCount(path)
	if err != nil {
		log.WithField("path", path).WithError(err).Error("Document rejected")
		doc.Status = StatusFailed
		doc.Error = fmt.Sprintf("%v: %v", ErrUnreadablePDF, err)
		return doc
	}
	doc.Pages = pages

	maxPages := opts.MaxPages
	if maxPages <= 0 {
		maxPages = defaultMaxPages
	}
	if pages < maxPages {
		maxPages = pages
	}
	dpi := opts.DPI
	if dpi <= 0 {
		dpi = defaultDPI
	}

	var found extract.Extracted
	matched := false
	for page := 0; page < maxPages && !matched; page++ {
		if ctx.Err() != nil {
			doc.Status = StatusFailed
			doc.Error = "batch cancelled"
			return doc
		}

		img, err := p.Rasterizer.RenderPage(ctx, path, page, dpi)
		if err != nil {
			log.WithFields(logrus.Fields{"path": path, "page": page}).
				WithError(err).Warn("Page could not be rasterized, continuing")
			continue
		}

		corrected, angle := p.Corrector.Correct(img)
		if angle != 0 {
			log.WithFields(logrus.Fields{"path": path, "page": page, "angle": angle}).
				Debug("Page rotation corrected")
		}
		doc.PagesScanned++

		found, matched, err = p.recognizePage(ctx, recognizer, corrected, page)
		if err != nil {
			log.WithFields(logrus.Fields{"path": path, "page": page}).
				WithError(err).Warn("Recognition failed for page, continuing")
			continue
		}
		if !matched {
			// The skew estimators cannot tell an upside-down page from
			// an upright one. One flipped retry covers that case.
			found, matched, _ = p.recognizePage(ctx, recognizer, imaging.Rotate180(corrected), page)
		}
	}

	if !matched {
		if opts.OnNoMatchPolicy == "fail" {
			doc.Status = StatusFailed
			doc.Error = ErrNoOrderNumber.Error()
		} else {
			doc.Status = StatusSkipped
			doc.Error = ErrNoOrderNumber.Error()
		}
		return doc
	}

	doc.OrderNumber = found.Number
	doc.PatternID = found.PatternID
	doc.Engine = found.Candidate.Engine
	doc.Confidence = found.Confidence

	backupPath, err := p.Backup.Backup(path)
	if err != nil {
		log.WithField("path", path).WithError(err).Error("Backup failed, file left untouched")
		doc.Status = StatusFailed
		doc.Error = err.Error()
		return doc
	}
	doc.BackupPath = backupPath

	newPath, err := renameWithCollision(path, found.Number)
	if err != nil {
		doc.Status = StatusFailed
		doc.Error = err.Error()
		return doc
	}
	doc.NewPath = newPath
	doc.Status = StatusSucceeded

	log.WithFields(logrus.Fields{
		"path":         path,
		"new_path":     newPath,
		"order_number": found.Number,
	}).Info("Document renamed")

	if p.Database != nil {
		record := RenameRecord{
			BatchID:      batchID,
			OriginalPath: path,
			NewPath:      newPath,
			BackupPath:   backupPath,
			OrderNumber:  found.Number,
		}
		if err := InsertRenameRecord(p.Database, record); err != nil {
			log.WithError(err).Error("Failed to record rename in history database")
		}
	}
	return doc
}

// recognizePage encodes the page image, runs the engine orchestrator
// and scans the merged candidates for an order number.
func (p *BatchProcessor) recognizePage(ctx context.Context, recognizer PageRecognizer, img image.Image, page int) (extract.Extracted, bool, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return extract.Extracted{}, false, fmt.Errorf("encoding page image: %w", err)
	}
	merged, err := recognizer.Recognize(ctx, buf.Bytes(), page)
	if err != nil {
		return extract.Extracted{}, false, err
	}
	found, ok := p.Extractor.Extract(merged)
	return found, ok, nil
}
