package emotion

import (
	"errors"
	"image"
	"image/color"
	"math"
	"testing"
)

func TestNormalize_ShapeAndRange(t *testing.T) {
	frame := splitFrame(120, 80)
	n := NewNormalizer(48, 48)

	tests := []struct {
		name   string
		region image.Rectangle
	}{
		{"1x1", image.Rect(5, 5, 6, 6)},
		{"tall sliver", image.Rect(0, 0, 1, 80)},
		{"wide sliver", image.Rect(0, 40, 120, 43)},
		{"odd aspect", image.Rect(13, 7, 90, 30)},
		{"near frame", image.Rect(1, 1, 119, 79)},
		{"full frame", image.Rect(0, 0, 120, 80)},
		{"exact input size", image.Rect(10, 10, 58, 58)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tensor, err := n.Normalize(frame, tt.region)
			if err != nil {
				t.Fatalf("Normalize failed: %v", err)
			}
			if err := tensor.Check(48, 48, 3); err != nil {
				t.Fatalf("unexpected shape: %v", err)
			}
			for i, v := range tensor.Data {
				if v < 0 || v > 1 || math.IsNaN(float64(v)) {
					t.Fatalf("value %d = %v out of [0,1]", i, v)
				}
			}
		})
	}
}

func TestNormalize_ReplicatesGrayscale(t *testing.T) {
	frame := uniformFrame(60, 60, color.RGBA{R: 200, G: 30, B: 90, A: 255})
	tensor, err := NewNormalizer(48, 48).Normalize(frame, image.Rect(5, 5, 55, 55))
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}

	// BT.601 luma, as OpenCV's BGR2GRAY.
	want := math.Round(0.299*200+0.587*30+0.114*90) / 255
	for y := 0; y < 48; y++ {
		for x := 0; x < 48; x++ {
			r, g, b := tensor.At(y, x, 0), tensor.At(y, x, 1), tensor.At(y, x, 2)
			if r != g || g != b {
				t.Fatalf("channels differ at (%d,%d): %v %v %v", x, y, r, g, b)
			}
			if math.Abs(float64(r)-want) > 1.0/255 {
				t.Fatalf("pixel (%d,%d) = %v, expected %v", x, y, r, want)
			}
		}
	}
}

func TestNormalize_CustomResolution(t *testing.T) {
	tensor, err := NewNormalizer(64, 32).Normalize(uniformFrame(100, 100, color.White), image.Rect(0, 0, 10, 10))
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if err := tensor.Check(64, 32, 3); err != nil {
		t.Fatalf("unexpected shape: %v", err)
	}
	if tensor.At(31, 63, 2) != 1 {
		t.Errorf("expected white pixel to be 1, got %v", tensor.At(31, 63, 2))
	}
}

func TestNormalize_InvalidRegion(t *testing.T) {
	frame := uniformFrame(50, 50, color.White)
	n := NewNormalizer(48, 48)

	regions := []image.Rectangle{
		{},
		image.Rect(10, 10, 10, 20),
		image.Rect(40, 40, 60, 60),
		image.Rect(-5, 0, 10, 10),
	}
	for _, r := range regions {
		if _, err := n.Normalize(frame, r); !errors.Is(err, ErrInvalidRegion) {
			t.Errorf("Normalize(%v) error = %v, expected ErrInvalidRegion", r, err)
		}
	}
}

func TestNormalize_NonZeroOrigin(t *testing.T) {
	// Sub-images keep their parent's coordinates.
	parent := splitFrame(200, 100)
	sub := parent.SubImage(image.Rect(50, 0, 150, 100))

	tensor, err := NewNormalizer(48, 48).Normalize(sub, image.Rect(60, 10, 90, 40))
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if tensor.At(0, 0, 0) != 1 {
		t.Errorf("expected region on white half, got %v", tensor.At(0, 0, 0))
	}
}
