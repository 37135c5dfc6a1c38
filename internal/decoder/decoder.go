// Package decoder turns uploaded bytes into 3-channel pixel data.
package decoder

import (
	"bytes"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/pkg/errors"
	"golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ErrDecode is returned when the bytes are not a readable image container.
var ErrDecode = errors.New("invalid image")

// MaxPixels caps width*height of an accepted image. Larger images are
// rejected from their header before any pixel buffer is allocated.
const MaxPixels = 2 * 89478485

// Decode reads an image and converts it to an opaque RGB canvas of the
// same size. The alpha channel of the result is always 0xff.
func Decode(data []byte) (*image.RGBA, error) {
	if len(data) == 0 {
		return nil, errors.Wrap(ErrDecode, "empty file")
	}

	mime := mimetype.Detect(data)
	if !strings.HasPrefix(mime.String(), "image/") {
		return nil, errors.Wrapf(ErrDecode, "unsupported content %s", mime.String())
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrapf(ErrDecode, "cannot identify image file: %v", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, errors.Wrapf(ErrDecode, "invalid image size %dx%d", cfg.Width, cfg.Height)
	}
	if int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return nil, errors.Wrapf(ErrDecode, "image too large: %dx%d exceeds %d pixels", cfg.Width, cfg.Height, MaxPixels)
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrapf(ErrDecode, "cannot identify image file: %v", err)
	}

	return ToRGB(src), nil
}

// ToRGB converts any color model to opaque RGB. Alpha is dropped: the stored
// color channels of translucent pixels are kept as they are.
func ToRGB(src image.Image) *image.RGBA {
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))

	if o, ok := src.(interface{ Opaque() bool }); ok && o.Opaque() {
		draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
		return dst
	}

	if nrgba, ok := src.(*image.NRGBA); ok {
		for y := 0; y < b.Dy(); y++ {
			srcRow := nrgba.Pix[nrgba.PixOffset(b.Min.X, b.Min.Y+y):]
			dstRow := dst.Pix[dst.PixOffset(0, y):]
			for x := 0; x < b.Dx(); x++ {
				copy(dstRow[x*4:x*4+3], srcRow[x*4:x*4+3])
				dstRow[x*4+3] = 0xff
			}
		}
		return dst
	}

	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			c := color.NRGBAModel.Convert(src.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
			dst.SetRGBA(x, y, color.RGBA{R: c.R, G: c.G, B: c.B, A: 0xff})
		}
	}
	return dst
}
