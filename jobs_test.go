package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetBatchReturnsSnapshot(t *testing.T) {
	batch := &Batch{
		ID:        generateBatchID(),
		Status:    "pending",
		Paths:     []string{"a.pdf"},
		CreatedAt: time.Now(),
	}
	batchStore.addBatch(batch)

	snapshot, ok := batchStore.getBatch(batch.ID)
	require.True(t, ok)

	// Worker-side mutations must not show through an already-taken
	// snapshot.
	batchStore.updateDocsDone(batch.ID, 7)
	batchStore.updateBatchStatus(batch.ID, "in_progress", nil)

	assert.Equal(t, 0, snapshot.DocsDone)
	assert.Equal(t, "pending", snapshot.Status)

	fresh, ok := batchStore.getBatch(batch.ID)
	require.True(t, ok)
	assert.Equal(t, 7, fresh.DocsDone)
	assert.Equal(t, "in_progress", fresh.Status)
}

func TestGetBatchUnknownID(t *testing.T) {
	_, ok := batchStore.getBatch("no-such-batch")
	assert.False(t, ok)
}

func TestGetAllBatchesNewestFirst(t *testing.T) {
	older := &Batch{ID: generateBatchID(), Status: "completed", CreatedAt: time.Now().Add(-time.Hour)}
	newer := &Batch{ID: generateBatchID(), Status: "pending", CreatedAt: time.Now()}
	batchStore.addBatch(older)
	batchStore.addBatch(newer)

	all := batchStore.GetAllBatches()
	newerIdx, olderIdx := -1, -1
	for i, b := range all {
		switch b.ID {
		case newer.ID:
			newerIdx = i
		case older.ID:
			olderIdx = i
		}
	}
	require.NotEqual(t, -1, newerIdx)
	require.NotEqual(t, -1, olderIdx)
	assert.Less(t, newerIdx, olderIdx)
}
