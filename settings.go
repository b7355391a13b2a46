package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	configDir    = "config"
	settingsFile = "settings.json"
)

var (
	settings      Settings
	settingsMutex sync.RWMutex
)

func defaultSettings() Settings {
	return Settings{
		EnginePriority:   []string{"tesseract"},
		EngineWeights:    []float64{},
		RasterDPI:        300,
		PerPageTimeoutMs: 60000,
		MaxWorkers:       2,
		MaxPages:         10,
		OnNoMatchPolicy:  "skip",
	}
}

// currentOptions snapshots the settings as per-batch options.
func currentOptions() Options {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return Options{
		DPI:             settings.RasterDPI,
		MaxPages:        settings.MaxPages,
		MaxWorkers:      settings.MaxWorkers,
		OnNoMatchPolicy: settings.OnNoMatchPolicy,
	}
}

func perPageTimeout() time.Duration {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return time.Duration(settings.PerPageTimeoutMs) * time.Millisecond
}

// saveSettings saves the current settings to the settings.json file.
func saveSettings() error {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()
	return saveSettingsLocked()
}

// saveSettingsLocked performs the actual saving without locking the mutex.
// This is to be called from functions that already hold the lock.
func saveSettingsLocked() error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(filepath.Join(configDir, settingsFile), data, 0644)
}

// loadSettings loads the settings from settings.json, creating it with defaults if it doesn't exist or is corrupt.
func loadSettings() {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	settingsPath := filepath.Join(configDir, settingsFile)
	data, err := os.ReadFile(settingsPath)

	if err != nil {
		if os.IsNotExist(err) {
			log.Infof("Settings file not found at %s, creating with default values.", settingsPath)
			settings = defaultSettings()
			if err := saveSettingsLocked(); err != nil {
				log.Fatalf("Failed to create default settings file: %v", err)
			}
		} else {
			log.Warnf("Failed to read settings file: %v. Loading default settings.", err)
			settings = defaultSettings()
		}
		return
	}

	if err := json.Unmarshal(data, &settings); err != nil {
		log.Warnf("Failed to parse settings file, please check its format. Loading default settings. Error: %v", err)
		settings = defaultSettings()
		return
	}

	log.Info("Successfully loaded settings from settings.json")
}
