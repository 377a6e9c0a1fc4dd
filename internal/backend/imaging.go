package backend

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"math"
	"math/rand/v2"

	"scanmaster/internal/scanapi"
)

const (
	minMarginRatio = 0.05
	maxMarginRatio = 0.15
	outlineWidth   = 3
)

var outlineColor = color.RGBA{R: 0x22, G: 0xc5, B: 0x5e, A: 0xff}

// decodeImage decodes PNG, JPEG or GIF bytes.
func decodeImage(data []byte) (image.Image, string, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("decode image: %w", err)
	}
	return img, format, nil
}

// detectBoundary picks a document box inset from each edge by a random
// 5-15% margin per axis.
func detectBoundary(bounds image.Rectangle, rng *rand.Rand) scanapi.Boundary {
	width := float64(bounds.Dx())
	height := float64(bounds.Dy())
	marginX := width * (minMarginRatio + rng.Float64()*(maxMarginRatio-minMarginRatio))
	marginY := height * (minMarginRatio + rng.Float64()*(maxMarginRatio-minMarginRatio))
	return scanapi.Boundary{
		X:      marginX,
		Y:      marginY,
		Width:  width - marginX*2,
		Height: height - marginY*2,
	}
}

// boundaryRect converts a boundary into pixel coordinates clamped to bounds.
func boundaryRect(bounds image.Rectangle, b scanapi.Boundary) (image.Rectangle, error) {
	if b.Width <= 0 || b.Height <= 0 {
		return image.Rectangle{}, fmt.Errorf("boundary %.0fx%.0f is empty", b.Width, b.Height)
	}
	x0 := bounds.Min.X + int(math.Round(b.X))
	y0 := bounds.Min.Y + int(math.Round(b.Y))
	rect := image.Rect(x0, y0, x0+int(math.Round(b.Width)), y0+int(math.Round(b.Height))).Intersect(bounds)
	if rect.Empty() {
		return image.Rectangle{}, fmt.Errorf("boundary lies outside the %dx%d image", bounds.Dx(), bounds.Dy())
	}
	return rect, nil
}

// cropImage copies the boundary region into a new image anchored at the origin.
func cropImage(src image.Image, b scanapi.Boundary) (image.Image, error) {
	rect, err := boundaryRect(src.Bounds(), b)
	if err != nil {
		return nil, err
	}
	dst := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	draw.Draw(dst, dst.Bounds(), src, rect.Min, draw.Src)
	return dst, nil
}

// previewImage draws the detected boundary over a copy of src.
func previewImage(src image.Image, b scanapi.Boundary) (image.Image, error) {
	rect, err := boundaryRect(src.Bounds(), b)
	if err != nil {
		return nil, err
	}
	bounds := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(dst, dst.Bounds(), src, bounds.Min, draw.Src)

	rect = rect.Sub(bounds.Min)
	stroke := image.NewUniform(outlineColor)
	edges := []image.Rectangle{
		image.Rect(rect.Min.X, rect.Min.Y, rect.Max.X, rect.Min.Y+outlineWidth),
		image.Rect(rect.Min.X, rect.Max.Y-outlineWidth, rect.Max.X, rect.Max.Y),
		image.Rect(rect.Min.X, rect.Min.Y, rect.Min.X+outlineWidth, rect.Max.Y),
		image.Rect(rect.Max.X-outlineWidth, rect.Min.Y, rect.Max.X, rect.Max.Y),
	}
	for _, edge := range edges {
		draw.Draw(dst, edge.Intersect(dst.Bounds()), stroke, image.Point{}, draw.Src)
	}
	return dst, nil
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
