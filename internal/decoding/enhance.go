package decoding

import (
	"image"
	"image/color"
)

// LuminanceCutoff is the fixed threshold used by contrast enhancement.
// Pixels with luminance >= LuminanceCutoff become white, the rest black.
const LuminanceCutoff = 128

// luminance returns 1000x the BT.601 perceptual luminance of c (0.299R + 0.587G + 0.114B).
// Integer weights keep the cutoff comparison exact.
func luminance(c color.Color) uint32 {
	r, g, b, _ := c.RGBA()
	return 299*(r>>8) + 587*(g>>8) + 114*(b>>8)
}

// grayscale converts img to 8-bit luminance
func grayscale(img image.Image) *image.Gray {
	b := img.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			l := luminance(img.At(x, y))
			out.Pix[(y-b.Min.Y)*out.Stride+(x-b.Min.X)] = uint8((l + 500) / 1000)
		}
	}
	return out
}

// invert returns a grayscale negative of img
func invert(img image.Image) *image.Gray {
	out := grayscale(img)
	for i, v := range out.Pix {
		out.Pix[i] = 255 - v
	}
	return out
}

// binarize converts img to pure black and white around LuminanceCutoff
func binarize(img image.Image) *image.Gray {
	b := img.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			var v uint8
			if luminance(img.At(x, y)) >= LuminanceCutoff*1000 {
				v = 255
			}
			out.Pix[(y-b.Min.Y)*out.Stride+(x-b.Min.X)] = v
		}
	}
	return out
}
