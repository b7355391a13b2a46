package main

import (
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// RenameRecord is one completed rename in the rename_history table.
type RenameRecord struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	BatchID      string    `gorm:"size:64;index" json:"batch_id"`
	OriginalPath string    `gorm:"size:4096;not null" json:"original_path"`
	NewPath      string    `gorm:"size:4096;not null" json:"new_path"`
	BackupPath   string    `gorm:"size:4096" json:"backup_path"`
	OrderNumber  string    `gorm:"size:255;not null" json:"order_number"`
	CreatedAt    time.Time `json:"created_at"`
}

// InitializeDB opens the SQLite history database and migrates the schema
func InitializeDB() *gorm.DB {
	dbDir := "db"
	if err := os.MkdirAll(dbDir, os.ModePerm); err != nil {
		log.Fatalf("Failed to create db directory: %v", err)
	}

	dbPath := filepath.Join(dbDir, "rename_history.db")

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	if err := db.AutoMigrate(&RenameRecord{}); err != nil {
		log.Fatalf("Failed to migrate database schema: %v", err)
	}

	return db
}

// InsertRenameRecord inserts a completed rename into the history
func InsertRenameRecord(db *gorm.DB, record RenameRecord) error {
	result := db.Create(&record)
	return result.Error
}

// GetRenameHistory retrieves all rename records, newest first
func GetRenameHistory(db *gorm.DB) ([]RenameRecord, error) {
	var records []RenameRecord
	result := db.Order("created_at desc").Find(&records)
	return records, result.Error
}
