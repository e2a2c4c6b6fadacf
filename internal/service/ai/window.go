package ai

import (
	"image"

	"emotionserver/internal/service/emotion"

	"gocv.io/x/gocv"
)

// QuitKey stops the live window.
const QuitKey = 'q'

// WindowRenderer shows annotated frames in a HighGUI window.
type WindowRenderer struct {
	window *gocv.Window
}

// NewWindowRenderer opens a window titled name.
func NewWindowRenderer(name string) *WindowRenderer {
	return &WindowRenderer{window: gocv.NewWindow(name)}
}

// Render draws the decision and reports whether the user pressed QuitKey.
func (r *WindowRenderer) Render(frame image.Image, d emotion.Decision) (bool, error) {
	mat, err := Annotate(frame, d)
	if err != nil {
		return false, err
	}
	defer mat.Close()

	r.window.IMShow(mat)
	key := r.window.WaitKey(1)
	return key&0xFF == QuitKey, nil
}

// Close destroys the window.
func (r *WindowRenderer) Close() error {
	return r.window.Close()
}
