package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func settingsRouter(t *testing.T) *gin.Engine {
	t.Helper()
	t.Chdir(t.TempDir())
	gin.SetMode(gin.TestMode)

	settingsMutex.Lock()
	settings = defaultSettings()
	settingsMutex.Unlock()

	router := gin.New()
	router.GET("/api/settings", getSettingsHandler)
	router.POST("/api/settings", updateSettingsHandler)
	return router
}

func postSettings(router *gin.Engine, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/settings", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	return w
}

func TestUpdateSettingsHandler(t *testing.T) {
	router := settingsRouter(t)

	body := `{"engine_priority":["tesseract"],"engine_weights":[1,0.5],"raster_dpi":200,
		"per_page_timeout_ms":30000,"max_workers":4,"max_pages":5,"on_no_match_policy":"fail"}`
	w := postSettings(router, body)
	require.Equal(t, http.StatusOK, w.Code)

	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	assert.Equal(t, "fail", settings.OnNoMatchPolicy)
	assert.Equal(t, 200, settings.RasterDPI)
	assert.Equal(t, 4, settings.MaxWorkers)
}

func TestUpdateSettingsHandlerRejectsInvalidValues(t *testing.T) {
	router := settingsRouter(t)

	tests := []struct {
		name string
		body string
	}{
		{"unknown policy", `{"raster_dpi":300,"per_page_timeout_ms":60000,"max_workers":2,"max_pages":10,"on_no_match_policy":"retry"}`},
		{"negative timeout", `{"raster_dpi":300,"per_page_timeout_ms":-1,"max_workers":2,"max_pages":10,"on_no_match_policy":"skip"}`},
		{"zero workers", `{"raster_dpi":300,"per_page_timeout_ms":60000,"max_workers":0,"max_pages":10,"on_no_match_policy":"skip"}`},
		{"zero dpi", `{"raster_dpi":0,"per_page_timeout_ms":60000,"max_workers":2,"max_pages":10,"on_no_match_policy":"skip"}`},
		{"non-positive weight", `{"engine_weights":[1,0],"raster_dpi":300,"per_page_timeout_ms":60000,"max_workers":2,"max_pages":10,"on_no_match_policy":"skip"}`},
		{"malformed json", `{"raster_dpi":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postSettings(router, tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}

	// Rejected updates leave the persisted settings untouched.
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	assert.Equal(t, defaultSettings(), settings)
}

func TestMergeOptions(t *testing.T) {
	base := Options{DPI: 300, MaxPages: 10, MaxWorkers: 2, OnNoMatchPolicy: "skip"}

	assert.Equal(t, base, mergeOptions(base, nil))

	merged := mergeOptions(base, &Options{
		EnginePriority:   []string{"easyocr", "tesseract"},
		PerPageTimeoutMs: 15000,
		MaxWorkers:       8,
	})
	assert.Equal(t, []string{"easyocr", "tesseract"}, merged.EnginePriority)
	assert.Equal(t, 15000, merged.PerPageTimeoutMs)
	assert.Equal(t, 8, merged.MaxWorkers)
	// Untouched fields keep the persisted defaults.
	assert.Equal(t, 300, merged.DPI)
	assert.Equal(t, 10, merged.MaxPages)
	assert.Equal(t, "skip", merged.OnNoMatchPolicy)
}
