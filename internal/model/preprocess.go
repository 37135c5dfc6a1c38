package model

import (
	"image"
	"image/color"
	"math"

	"github.com/nfnt/resize"
	"golang.org/x/image/draw"
)

// padColor is the gray the YOLO exporter letterboxes with.
var padColor = color.RGBA{R: 114, G: 114, B: 114, A: 255}

// letterbox records how an image was fitted into the model input so boxes
// can be mapped back.
type letterbox struct {
	scale      float64
	newW, newH int
	padX, padY float64
	srcW, srcH int
}

func newLetterbox(srcW, srcH, dstW, dstH int) letterbox {
	scale := math.Min(float64(dstW)/float64(srcW), float64(dstH)/float64(srcH))
	newW := max(1, int(math.Round(float64(srcW)*scale)))
	newH := max(1, int(math.Round(float64(srcH)*scale)))
	return letterbox{
		scale: scale,
		newW:  newW,
		newH:  newH,
		padX:  float64((dstW - newW) / 2),
		padY:  float64((dstH - newH) / 2),
		srcW:  srcW,
		srcH:  srcH,
	}
}

// unmap converts a point in model input space to source image space,
// clipped to the source bounds.
func (l letterbox) unmap(x, y float64) (float64, float64) {
	sx := (x - l.padX) / l.scale
	sy := (y - l.padY) / l.scale
	return clip(sx, float64(l.srcW)), clip(sy, float64(l.srcH))
}

func clip(v, upper float64) float64 {
	return math.Max(0, math.Min(v, upper))
}

// preprocessImage letterboxes img into a width x height canvas and returns
// the planar (CHW) float32 tensor data normalized to [0, 1].
func preprocessImage(img image.Image, width, height int) ([]float32, letterbox) {
	b := img.Bounds()
	lb := newLetterbox(b.Dx(), b.Dy(), width, height)

	resized := resize.Resize(uint(lb.newW), uint(lb.newH), img, resize.Bilinear)

	canvas := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(padColor), image.Point{}, draw.Src)
	offset := image.Pt(int(lb.padX), int(lb.padY))
	draw.Draw(canvas, resized.Bounds().Add(offset), resized, resized.Bounds().Min, draw.Src)

	plane := width * height
	inputData := make([]float32, 3*plane)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			px := canvas.RGBAAt(x, y)
			i := y*width + x
			inputData[i] = float32(px.R) / 255.0
			inputData[plane+i] = float32(px.G) / 255.0
			inputData[2*plane+i] = float32(px.B) / 255.0
		}
	}

	return inputData, lb
}
