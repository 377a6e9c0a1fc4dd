package testsupport

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"
)

// PNG encodes a solid w×h image with a dark rectangle in the middle.
func PNG(t testing.TB, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, document(w, h)); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

// JPEG encodes the same test image as JPEG.
func JPEG(t testing.TB, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, document(w, h), &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	return buf.Bytes()
}

func document(w, h int) image.Image {
	if w <= 0 {
		w = 1
	}
	if h <= 0 {
		h = 1
	}
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	paper := color.RGBA{R: 240, G: 240, B: 235, A: 255}
	ink := color.RGBA{R: 30, G: 30, B: 30, A: 255}
	for y := range h {
		for x := range w {
			c := paper
			if x > w/4 && x < 3*w/4 && y > h/4 && y < 3*h/4 {
				c = ink
			}
			img.Set(x, y, c)
		}
	}
	return img
}
