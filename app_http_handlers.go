package main

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
)

// submitBatchHandler handles the POST /api/batches endpoint
func (app *App) submitBatchHandler(c *gin.Context) {
	var req submitBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Invalid request payload: %v", err)})
		return
	}
	if len(req.Paths) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No document paths provided"})
		return
	}
	for _, path := range req.Paths {
		if _, err := os.Stat(path); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Document not found: %s", path)})
			return
		}
	}

	batch := &Batch{
		ID:        generateBatchID(),
		Status:    "pending",
		Paths:     req.Paths,
		Options:   mergeOptions(currentOptions(), req.Options),
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	batchStore.addBatch(batch)

	select {
	case batchQueue <- batch:
		c.JSON(http.StatusAccepted, gin.H{"batch_id": batch.ID})
	default:
		batchStore.updateBatchStatus(batch.ID, "cancelled", nil)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Batch queue is full"})
	}
}

// mergeOptions overlays the per-request overrides onto the persisted
// defaults, field by field.
func mergeOptions(base Options, override *Options) Options {
	if override == nil {
		return base
	}
	if len(override.EnginePriority) > 0 {
		base.EnginePriority = override.EnginePriority
	}
	if override.PerPageTimeoutMs > 0 {
		base.PerPageTimeoutMs = override.PerPageTimeoutMs
	}
	if override.DPI > 0 {
		base.DPI = override.DPI
	}
	if override.MaxPages > 0 {
		base.MaxPages = override.MaxPages
	}
	if override.MaxWorkers > 0 {
		base.MaxWorkers = override.MaxWorkers
	}
	if override.OnNoMatchPolicy != "" {
		base.OnNoMatchPolicy = override.OnNoMatchPolicy
	}
	return base
}

// getBatchHandler handles the GET /api/batches/:id endpoint
func (app *App) getBatchHandler(c *gin.Context) {
	batch, exists := batchStore.getBatch(c.Param("id"))
	if !exists {
		c.JSON(http.StatusNotFound, gin.H{"error": "Batch not found"})
		return
	}
	c.JSON(http.StatusOK, batch)
}

// getAllBatchesHandler handles the GET /api/batches endpoint
func (app *App) getAllBatchesHandler(c *gin.Context) {
	c.JSON(http.StatusOK, batchStore.GetAllBatches())
}

// cancelBatchHandler handles the POST /api/batches/:id/cancel endpoint
func (app *App) cancelBatchHandler(c *gin.Context) {
	batchID := c.Param("id")
	if _, exists := batchStore.getBatch(batchID); !exists {
		c.JSON(http.StatusNotFound, gin.H{"error": "Batch not found"})
		return
	}
	if !cancelBatch(batchID) {
		c.JSON(http.StatusConflict, gin.H{"error": "Batch is not running"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cancelling"})
}

// getHistoryHandler handles the GET /api/history endpoint
func (app *App) getHistoryHandler(c *gin.Context) {
	records, err := GetRenameHistory(app.Database)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Error fetching rename history: %v", err)})
		log.Errorf("Error fetching rename history: %v", err)
		return
	}
	c.JSON(http.StatusOK, records)
}

// getBackupsHandler handles the GET /api/backups endpoint
func (app *App) getBackupsHandler(c *gin.Context) {
	entries := make([]backupEntry, 0)
	err := filepath.Walk(app.BackupRoot, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(app.BackupRoot, path)
		if err != nil {
			return err
		}
		entries = append(entries, backupEntry{
			Path:     rel,
			Size:     info.Size(),
			Modified: info.ModTime(),
		})
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Error listing backups: %v", err)})
		log.Errorf("Error listing backups: %v", err)
		return
	}
	c.JSON(http.StatusOK, entries)
}

// getSettingsHandler handles the GET /api/settings endpoint
func getSettingsHandler(c *gin.Context) {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	c.JSON(http.StatusOK, settings)
}

// updateSettingsHandler handles the POST /api/settings endpoint.
// Engine priority and per-page timeout changes take effect after a
// restart; the remaining fields apply to the next submitted batch.
func updateSettingsHandler(c *gin.Context) {
	var req Settings
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Invalid request payload: %v", err)})
		return
	}
	if req.OnNoMatchPolicy != "skip" && req.OnNoMatchPolicy != "fail" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "on_no_match_policy must be \"skip\" or \"fail\""})
		return
	}
	if req.RasterDPI <= 0 || req.PerPageTimeoutMs <= 0 || req.MaxWorkers <= 0 || req.MaxPages <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "raster_dpi, per_page_timeout_ms, max_workers and max_pages must be positive"})
		return
	}
	for _, w := range req.EngineWeights {
		if w <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "engine_weights must all be positive"})
			return
		}
	}

	settingsMutex.Lock()
	settings = req
	err := saveSettingsLocked()
	settingsMutex.Unlock()

	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to save settings: %v", err)})
		log.Errorf("Failed to save settings: %v", err)
		return
	}
	c.Status(http.StatusOK)
}
