package main

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	batchCancellersMu sync.Mutex
	batchCancellers   = make(map[string]context.CancelFunc)
)

// Batch represents one queued rename run
type Batch struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"` // "pending", "in_progress", "completed", "cancelled"
	Paths     []string  `json:"paths"`
	Options   Options   `json:"options"`
	DocsDone  int       `json:"docs_done"`
	Report    *Report   `json:"report,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BatchStore manages batches and their statuses
type BatchStore struct {
	sync.RWMutex
	batches map[string]*Batch
}

var (
	batchStore = &BatchStore{
		batches: make(map[string]*Batch),
	}
	batchQueue = make(chan *Batch, 100) // Buffered channel with capacity of 100 batches
)

func generateBatchID() string {
	return uuid.New().String()
}

func (store *BatchStore) addBatch(batch *Batch) {
	store.Lock()
	defer store.Unlock()
	store.batches[batch.ID] = batch
	log.Infof("Batch added: %s (%d documents)", batch.ID, len(batch.Paths))
}

// getBatch returns a snapshot of the batch so that readers never
// observe worker mutations happening under the store lock.
func (store *BatchStore) getBatch(batchID string) (Batch, bool) {
	store.RLock()
	defer store.RUnlock()
	batch, exists := store.batches[batchID]
	if !exists {
		return Batch{}, false
	}
	return *batch, true
}

func (store *BatchStore) GetAllBatches() []Batch {
	store.RLock()
	defer store.RUnlock()

	batches := make([]Batch, 0, len(store.batches))
	for _, batch := range store.batches {
		batches = append(batches, *batch)
	}

	sort.Slice(batches, func(i, j int) bool {
		return batches[i].CreatedAt.After(batches[j].CreatedAt)
	})

	return batches
}

func (store *BatchStore) updateBatchStatus(batchID, status string, report *Report) {
	store.Lock()
	defer store.Unlock()
	if batch, exists := store.batches[batchID]; exists {
		batch.Status = status
		if report != nil {
			batch.Report = report
		}
		batch.UpdatedAt = time.Now()
		log.Infof("Batch status updated: %s -> %s", batchID, status)
	}
}

func (store *BatchStore) updateDocsDone(batchID string, docsDone int) {
	store.Lock()
	defer store.Unlock()
	if batch, exists := store.batches[batchID]; exists {
		batch.DocsDone = docsDone
		batch.UpdatedAt = time.Now()
	}
}

func startWorkerPool(app *App, numWorkers int) {
	for i := 0; i < numWorkers; i++ {
		go func(workerID int) {
			log.Infof("Worker %d started", workerID)
			for batch := range batchQueue {
				log.Infof("Worker %d processing batch: %s", workerID, batch.ID)
				processBatch(app, batch)
			}
		}(i)
	}
}

func processBatch(app *App, batch *Batch) {
	batchStore.updateBatchStatus(batch.ID, "in_progress", nil)

	batchCtx, cancel := context.WithCancel(context.Background())
	batchCancellersMu.Lock()
	batchCancellers[batch.ID] = cancel
	batchCancellersMu.Unlock()
	defer func() {
		cancel()
		batchCancellersMu.Lock()
		delete(batchCancellers, batch.ID)
		batchCancellersMu.Unlock()
	}()

	report := app.Processor.Process(batchCtx, batch.ID, batch.Paths, batch.Options, func(done int) {
		batchStore.updateDocsDone(batch.ID, done)
	})

	if batchCtx.Err() == context.Canceled {
		batchStore.updateBatchStatus(batch.ID, "cancelled", &report)
		log.Infof("Batch cancelled: %s", batch.ID)
		return
	}

	batchStore.updateBatchStatus(batch.ID, "completed", &report)
	log.Infof("Batch completed: %s (%d succeeded, %d failed, %d skipped)",
		batch.ID, report.Succeeded, report.Failed, report.Skipped)
}

func cancelBatch(batchID string) bool {
	batchCancellersMu.Lock()
	defer batchCancellersMu.Unlock()
	if cancel, exists := batchCancellers[batchID]; exists {
		cancel()
		return true
	}
	return false
}
