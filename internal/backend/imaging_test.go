package backend

import (
	"image"
	"math"
	"math/rand/v2"
	"testing"

	"scanmaster/internal/scanapi"
)

func TestDetectBoundaryMargins(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	bounds := image.Rect(0, 0, 1000, 500)
	for range 200 {
		box := detectBoundary(bounds, rng)
		if box.X < 50 || box.X > 150 || box.Y < 25 || box.Y > 75 {
			t.Fatalf("margin out of range: %+v", box)
		}
		if math.Abs(box.X*2+box.Width-1000) > 1e-9 || math.Abs(box.Y*2+box.Height-500) > 1e-9 {
			t.Fatalf("box not centred: %+v", box)
		}
	}
}

func TestCropImage(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 100, 80))
	tests := []struct {
		name    string
		box     scanapi.Boundary
		wantW   int
		wantH   int
		wantErr bool
	}{
		{name: "inset", box: scanapi.Boundary{X: 10, Y: 8, Width: 80, Height: 64}, wantW: 80, wantH: 64},
		{name: "clamped", box: scanapi.Boundary{X: 50, Y: 40, Width: 100, Height: 100}, wantW: 50, wantH: 40},
		{name: "empty", box: scanapi.Boundary{X: 10, Y: 10}, wantErr: true},
		{name: "outside", box: scanapi.Boundary{X: 200, Y: 200, Width: 10, Height: 10}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := cropImage(src, tt.box)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("cropImage: %v", err)
			}
			if b := out.Bounds(); b.Dx() != tt.wantW || b.Dy() != tt.wantH || b.Min != (image.Point{}) {
				t.Fatalf("unexpected bounds %v", b)
			}
		})
	}
}

func TestPreviewKeepsSourceSize(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 40, 30))
	out, err := previewImage(src, scanapi.Boundary{X: 4, Y: 3, Width: 32, Height: 24})
	if err != nil {
		t.Fatalf("previewImage: %v", err)
	}
	if out.Bounds().Dx() != 40 || out.Bounds().Dy() != 30 {
		t.Fatalf("unexpected preview bounds %v", out.Bounds())
	}
	if _, _, _, a := out.At(4, 3).RGBA(); a == 0 {
		t.Fatal("expected outline pixel to be drawn")
	}
}
