package ai

import (
	"fmt"
	"image"
	"image/color"

	"emotionserver/internal/service/emotion"

	"gocv.io/x/gocv"
)

// AnnotationColor is the overlay colour (blue).
var AnnotationColor = color.RGBA{R: 0, G: 0, B: 255, A: 0}

// Overlay style of the live view.
const (
	AnnotationFontScale = 0.9
	AnnotationThickness = 2
	// AnnotationTextOffset is how far above the box the label baseline sits.
	AnnotationTextOffset = 10
)

// Draw overlays the decision on display. NoFace leaves display untouched.
func Draw(display *gocv.Mat, d emotion.Decision) error {
	e, ok := d.Emotion()
	if !ok {
		return nil
	}

	if err := gocv.Rectangle(display, d.Region, AnnotationColor, AnnotationThickness); err != nil {
		return fmt.Errorf("failed to draw rectangle: %w", err)
	}
	pt := image.Pt(d.Region.Min.X, d.Region.Min.Y-AnnotationTextOffset)
	if err := gocv.PutText(display, e.String(), pt, gocv.FontHersheySimplex, AnnotationFontScale, AnnotationColor, AnnotationThickness); err != nil {
		return fmt.Errorf("failed to draw text: %w", err)
	}
	return nil
}

// Annotate converts frame into a new BGR Mat and draws d on it. The caller owns
// the returned Mat. Region coordinates are shifted when frame does not start at
// the origin.
func Annotate(frame image.Image, d emotion.Decision) (gocv.Mat, error) {
	mat, err := gocv.ImageToMatRGB(frame)
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("failed to convert frame: %w", err)
	}
	d.Region = d.Region.Sub(frame.Bounds().Min)
	if err := Draw(&mat, d); err != nil {
		mat.Close()
		return gocv.Mat{}, err
	}
	return mat, nil
}

// AnnotateJPEG returns the annotated frame encoded as JPEG.
func AnnotateJPEG(frame image.Image, d emotion.Decision) ([]byte, error) {
	mat, err := Annotate(frame, d)
	if err != nil {
		return nil, err
	}
	defer mat.Close()

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, mat)
	if err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	defer buf.Close()

	out := make([]byte, len(buf.GetBytes()))
	copy(out, buf.GetBytes())
	return out, nil
}
