package decoding

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"

	"github.com/liyue201/goqr"
	tuotoo "github.com/tuotoo/qrcode"
	"github.com/valyala/bytebufferpool"
)

// Quirc decodes with goqr, a port of the quirc recognizer
type Quirc struct{}

func (Quirc) Name() string { return "goqr" }

func (Quirc) Decode(ctx context.Context, img image.Image) (string, error) {
	codes, err := goqr.Recognize(img)
	if err != nil {
		return "", ErrNoCode
	}
	for _, c := range codes {
		if c != nil && len(c.Payload) > 0 {
			return string(c.Payload), nil
		}
	}
	return "", ErrNoCode
}

// Tuotoo decodes with tuotoo/qrcode, which reads an encoded image stream
type Tuotoo struct{}

func (Tuotoo) Name() string { return "tuotoo" }

func (Tuotoo) Decode(ctx context.Context, img image.Image) (string, error) {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	if err := png.Encode(buf, img); err != nil {
		return "", fmt.Errorf("%w: encoding PNG: %v", ErrUnavailable, err)
	}

	matrix, err := tuotoo.Decode(bytes.NewReader(buf.B))
	if err != nil || matrix == nil || matrix.Content == "" {
		return "", ErrNoCode
	}
	return matrix.Content, nil
}
