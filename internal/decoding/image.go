package decoding

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	_ "image/png"  // Register PNG decoder
	"math"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/gen2brain/heic"
	"golang.org/x/image/draw"
)

// DefaultMaxDimension bounds the longer edge of an image before any strategy runs
const DefaultMaxDimension = 1000

// MaxPixels caps the decoded size of an upload. A 48 MP phone photo fits; anything
// larger is refused from its header before pixels are allocated.
const MaxPixels = 64_000_000

// loadImage decodes capture bytes into an image.
// Supports JPEG, PNG, GIF, HEIC/HEIF (phone cameras) and the first page of a PDF.
func loadImage(data []byte, contentType string) (image.Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrInvalidImage)
	}

	mimeType := strings.ToLower(strings.TrimSpace(contentType))

	var (
		img image.Image
		err error
	)
	switch {
	case mimeType == "application/pdf" || isPDFFormat(data):
		img, err = pdfFirstPage(data)
	case isHEICFormat(data) || isHEICMimeType(mimeType):
		var cfg image.Config
		if cfg, err = heic.DecodeConfig(bytes.NewReader(data)); err != nil {
			err = fmt.Errorf("reading HEIC/HEIF header: %w", err)
		} else if err = checkPixels(cfg); err == nil {
			img, err = heic.Decode(bytes.NewReader(data))
			if err != nil {
				err = fmt.Errorf("decoding HEIC/HEIF image: %w", err)
			}
		}
	default:
		var cfg image.Config
		if cfg, _, err = image.DecodeConfig(bytes.NewReader(data)); err != nil {
			err = fmt.Errorf("decoding image (supported: JPEG, PNG, GIF, HEIC, HEIF, PDF): %w", err)
		} else if err = checkPixels(cfg); err == nil {
			img, _, err = image.Decode(bytes.NewReader(data))
			if err != nil {
				err = fmt.Errorf("decoding image (supported: JPEG, PNG, GIF, HEIC, HEIF, PDF): %w", err)
			}
		}
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}

	if b := img.Bounds(); b.Dx() == 0 || b.Dy() == 0 {
		return nil, fmt.Errorf("%w: zero-sized image", ErrInvalidImage)
	}
	return img, nil
}

// checkPixels refuses images whose header declares more than MaxPixels
func checkPixels(cfg image.Config) error {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return fmt.Errorf("zero-sized image")
	}
	if int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return fmt.Errorf("image is %dx%d, larger than %d pixels", cfg.Width, cfg.Height, MaxPixels)
	}
	return nil
}

// pdfFirstPage renders the first page of a PDF
func pdfFirstPage(data []byte) (image.Image, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer doc.Close()

	img, err := doc.Image(0)
	if err != nil {
		return nil, fmt.Errorf("rendering PDF page: %w", err)
	}
	return img, nil
}

func isPDFFormat(data []byte) bool {
	return bytes.HasPrefix(data, []byte("%PDF-"))
}

// isHEICFormat checks if the image data is in HEIC/HEIF format
// HEIC files carry an ftyp box at offset 4 with a HEIC-related brand
func isHEICFormat(data []byte) bool {
	if len(data) < 12 || string(data[4:8]) != "ftyp" {
		return false
	}
	brand := string(data[8:12])
	return brand == "heic" || brand == "heif" || brand == "mif1" || brand == "msf1"
}

// isHEICMimeType checks if the MIME type indicates HEIC/HEIF format
func isHEICMimeType(mimeType string) bool {
	return strings.Contains(mimeType, "heic") || strings.Contains(mimeType, "heif")
}

// downscale shrinks img so its longer edge is at most maxDim.
// Images already within the bound are returned unchanged.
func downscale(img image.Image, maxDim int) image.Image {
	if maxDim <= 0 {
		maxDim = DefaultMaxDimension
	}

	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	longer := max(w, h)
	if longer <= maxDim {
		return img
	}

	scale := float64(maxDim) / float64(longer)
	nw := max(1, int(math.Round(float64(w)*scale)))
	nh := max(1, int(math.Round(float64(h)*scale)))

	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}
