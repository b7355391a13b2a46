package main

import (
	"context"
	"fmt"
	"image"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"
	"github.com/gen2brain/go-fitz"
	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// maxRenderDimension bounds the longer edge of rendered page images.
// High-DPI renders of large pages would otherwise slow down the
// estimators and the engines without improving recognition.
const maxRenderDimension = 1500

// fitzRasterizer renders PDF pages through MuPDF. The underlying C
// library is not safe for concurrent use, so all rendering is
// serialized behind a mutex.
type fitzRasterizer struct {
	mu sync.Mutex
}

func newFitzRasterizer() *fitzRasterizer {
	return &fitzRasterizer{}
}

// PageCount validates that path is a readable PDF and returns its page
// count. Content sniffing catches files with a .pdf name but foreign
// content before MuPDF ever touches them.
func (r *fitzRasterizer) PageCount(path string) (int, error) {
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return 0, fmt.Errorf("detecting file type: %w", err)
	}
	if !mt.Is("application/pdf") {
		return 0, fmt.Errorf("not a PDF file (detected %s)", mt.String())
	}

	count, err := api.PageCountFile(path)
	if err != nil {
		return 0, fmt.Errorf("reading PDF structure: %w", err)
	}
	if count < 1 {
		return 0, fmt.Errorf("PDF has no pages")
	}
	return count, nil
}

// RenderPage rasterizes the zero-based page at the given DPI and
// downscales oversized renders.
func (r *fitzRasterizer) RenderPage(ctx context.Context, path string, page, dpi int) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	doc, err := fitz.New(path)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer doc.Close()

	if page < 0 || page >= doc.NumPage() {
		return nil, fmt.Errorf("%w: page %d of %d", ErrPageOutOfRange, page, doc.NumPage())
	}

	img, err := doc.ImageDPI(page, float64(dpi))
	if err != nil {
		return nil, fmt.Errorf("rendering page %d: %w", page, err)
	}

	bounds := img.Bounds()
	if bounds.Dx() > maxRenderDimension || bounds.Dy() > maxRenderDimension {
		return imaging.Fit(img, maxRenderDimension, maxRenderDimension, imaging.Lanczos), nil
	}
	return img, nil
}
