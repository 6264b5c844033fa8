package decoding

import (
	"context"
	"fmt"
	"image"

	"github.com/makiuchi-d/gozxing"
	zxqr "github.com/makiuchi-d/gozxing/qrcode"
)

// Inversion selects which polarity the gozxing strategy tries
type Inversion int

const (
	DontInvert Inversion = iota
	OnlyInvert
	AttemptBoth
)

// ZXing decodes with the gozxing QR reader
type ZXing struct {
	name      string
	inversion Inversion
	tryHarder bool
}

// NewZXing creates a gozxing strategy for the given inversion mode.
// AttemptBoth also enables the TRY_HARDER hint.
func NewZXing(inversion Inversion) *ZXing {
	z := &ZXing{inversion: inversion}
	switch inversion {
	case OnlyInvert:
		z.name = "gozxing-inverted"
	case AttemptBoth:
		z.name = "gozxing-both"
		z.tryHarder = true
	default:
		z.name = "gozxing-normal"
	}
	return z
}

func (z *ZXing) Name() string { return z.name }

// Decode runs the reader over the image in the configured polarities
func (z *ZXing) Decode(ctx context.Context, img image.Image) (string, error) {
	var variants []image.Image
	switch z.inversion {
	case OnlyInvert:
		variants = []image.Image{invert(img)}
	case AttemptBoth:
		variants = []image.Image{img, invert(img)}
	default:
		variants = []image.Image{img}
	}

	hints := map[gozxing.DecodeHintType]interface{}{
		gozxing.DecodeHintType_POSSIBLE_FORMATS: []gozxing.BarcodeFormat{gozxing.BarcodeFormat_QR_CODE},
	}
	if z.tryHarder {
		hints[gozxing.DecodeHintType_TRY_HARDER] = true
	}

	for _, v := range variants {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		text, err := zxingDecode(v, hints)
		if err != nil {
			return "", err
		}
		if text != "" {
			return text, nil
		}
	}
	return "", ErrNoCode
}

// zxingDecode returns "" with a nil error when the reader finds nothing
func zxingDecode(img image.Image, hints map[gozxing.DecodeHintType]interface{}) (string, error) {
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return "", fmt.Errorf("%w: building bitmap: %v", ErrUnavailable, err)
	}

	result, err := zxqr.NewQRCodeReader().Decode(bmp, hints)
	if err != nil || result == nil {
		// NotFound, Checksum and Format exceptions all mean "no readable code here"
		return "", nil
	}
	return result.GetText(), nil
}

// Enhanced applies binary contrast enhancement and retries the primary reader once
type Enhanced struct {
	inner Strategy
}

// NewEnhanced wraps inner so it runs over a thresholded copy of the image.
// A nil inner uses the normal gozxing reader.
func NewEnhanced(inner Strategy) *Enhanced {
	if inner == nil {
		inner = NewZXing(DontInvert)
	}
	return &Enhanced{inner: inner}
}

func (e *Enhanced) Name() string { return "contrast-enhanced" }

func (e *Enhanced) Decode(ctx context.Context, img image.Image) (string, error) {
	return e.inner.Decode(ctx, binarize(img))
}
