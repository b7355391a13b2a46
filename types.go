package main

import (
	"time"
)

// DocumentStatus is the lifecycle state of one PDF within a batch.
type DocumentStatus string

const (
	StatusPending    DocumentStatus = "pending"
	StatusProcessing DocumentStatus = "processing"
	StatusSucceeded  DocumentStatus = "succeeded"
	StatusFailed     DocumentStatus = "failed"
	StatusSkipped    DocumentStatus = "skipped"
)

// Document is the per-file outcome inside a batch report.
type Document struct {
	Path         string         `json:"path"`
	Status       DocumentStatus `json:"status"`
	OrderNumber  string         `json:"order_number,omitempty"`
	NewPath      string         `json:"new_path,omitempty"`
	BackupPath   string         `json:"backup_path,omitempty"`
	PatternID    string         `json:"pattern_id,omitempty"`
	Engine       string         `json:"engine,omitempty"`
	Confidence   float64        `json:"confidence,omitempty"`
	Pages        int            `json:"pages,omitempty"`
	PagesScanned int            `json:"pages_scanned,omitempty"`
	Error        string         `json:"error,omitempty"`
}

// Report summarizes one finished batch. Documents preserves submission
// order regardless of worker completion order.
type Report struct {
	BatchID    string     `json:"batch_id"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt time.Time  `json:"finished_at"`
	Documents  []Document `json:"documents"`
	Succeeded  int        `json:"succeeded"`
	Failed     int        `json:"failed"`
	Skipped    int        `json:"skipped"`
}

// Options tunes one batch run. Zero values fall back to the defaults
// noted per field.
type Options struct {
	// EnginePriority overrides the configured engine order for this
	// batch. Empty keeps the engines the process started with.
	EnginePriority []string `json:"engine_priority,omitempty"`

	// PerPageTimeoutMs overrides the per-engine page budget for this
	// batch. Zero keeps the configured budget.
	PerPageTimeoutMs int `json:"per_page_timeout_ms,omitempty"`

	// DPI for page rasterization (default 300)
	DPI int `json:"dpi"`

	// MaxPages bounds how many pages are scanned per document before
	// giving up (default 10)
	MaxPages int `json:"max_pages"`

	// MaxWorkers bounds concurrent documents (default 2)
	MaxWorkers int `json:"max_workers"`

	// OnNoMatchPolicy decides what happens when no order number is
	// found: "skip" leaves the file untouched, "fail" marks the
	// document failed (default "skip")
	OnNoMatchPolicy string `json:"on_no_match_policy"`
}

// Settings is the persisted runtime configuration, stored in
// config/settings.json and adjustable over the API.
type Settings struct {
	EnginePriority   []string  `json:"engine_priority"`
	EngineWeights    []float64 `json:"engine_weights"`
	RasterDPI        int       `json:"raster_dpi"`
	PerPageTimeoutMs int       `json:"per_page_timeout_ms"`
	MaxWorkers       int       `json:"max_workers"`
	MaxPages         int       `json:"max_pages"`
	OnNoMatchPolicy  string    `json:"on_no_match_policy"`
}

// submitBatchRequest is the payload for POST /api/batches. Options,
// when present, overrides the persisted settings field by field.
type submitBatchRequest struct {
	Paths   []string `json:"paths"`
	Options *Options `json:"options,omitempty"`
}

// backupEntry describes one file in the backup tree.
type backupEntry struct {
	Path     string    `json:"path"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
}
