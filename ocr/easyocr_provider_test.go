package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPageImage(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	img.Set(1, 1, color.Black)
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestEasyOCRProcessImage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "POST", r.Method)
		require.Equal(t, "/ocr", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "chi_sim,eng", r.FormValue("languages"))
		assert.Equal(t, "true", r.FormValue("detail"))

		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		assert.Equal(t, "page.png", header.Filename)

		_ = json.NewEncoder(w).Encode(easyOCRResponse{
			Results: []easyOCRSpan{
				{
					Text:       "销货出库单号: 1403-202402130001",
					Confidence: 0.92,
					Box:        [][]float64{{10, 20}, {110, 20}, {110, 60}, {10, 60}},
				},
				{Text: "   ", Confidence: 0.5},
				{Text: "客户名称", Confidence: 0.71},
			},
		})
	}))
	defer server.Close()

	provider, err := newEasyOCRProvider(Config{
		EasyOCRURL: server.URL,
		Languages:  []string{"chi_sim", "eng"},
	})
	require.NoError(t, err)

	result, err := provider.ProcessImage(context.Background(), testPageImage(t), 2)
	require.NoError(t, err)

	// Blank spans are dropped; the rest become candidates in order.
	require.Len(t, result.Candidates, 2)
	first := result.Candidates[0]
	assert.Equal(t, "销货出库单号: 1403-202402130001", first.Text)
	assert.InDelta(t, 0.92, first.Confidence, 0.0001)
	assert.Equal(t, "easyocr", first.Engine)
	assert.Equal(t, 2, first.Page)
	assert.Equal(t, image.Rect(10, 20, 110, 60), first.Region)

	assert.Equal(t, "销货出库单号: 1403-202402130001\n客户名称", result.Text)
}

func TestEasyOCRProcessImageServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// A 4xx is not retried, so the test stays fast.
		http.Error(w, "unsupported language", http.StatusBadRequest)
	}))
	defer server.Close()

	provider, err := newEasyOCRProvider(Config{EasyOCRURL: server.URL})
	require.NoError(t, err)

	_, err = provider.ProcessImage(context.Background(), testPageImage(t), 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400")
}

func TestEasyOCRProcessImageErrorField(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(easyOCRResponse{Error: "gpu out of memory"})
	}))
	defer server.Close()

	provider, err := newEasyOCRProvider(Config{EasyOCRURL: server.URL})
	require.NoError(t, err)

	_, err = provider.ProcessImage(context.Background(), testPageImage(t), 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gpu out of memory")
}

func TestQuadToRect(t *testing.T) {
	// Corners may arrive in any order; the enclosing rectangle wins.
	rect := quadToRect([][]float64{{110, 60}, {10, 20}, {110, 20}, {10, 60}})
	assert.Equal(t, image.Rect(10, 20, 110, 60), rect)

	assert.Equal(t, image.Rectangle{}, quadToRect(nil))
	assert.Equal(t, image.Rectangle{}, quadToRect([][]float64{}))
}
