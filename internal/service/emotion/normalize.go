package emotion

import (
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// Channels is the classifier input depth. The grayscale face is replicated into
// all three channels because the model was trained on such input.
const Channels = 3

// Normalizer turns a face region into the classifier's input tensor.
type Normalizer struct {
	width  int
	height int
}

// NewNormalizer returns a Normalizer producing width x height x 3 tensors.
func NewNormalizer(width, height int) *Normalizer {
	return &Normalizer{width: width, height: height}
}

// Size returns the output resolution.
func (n *Normalizer) Size() (width, height int) {
	return n.width, n.height
}

// Normalize crops the grayscale frame to region, resizes it bilinearly to the
// configured resolution, replicates it into 3 channels and scales to [0,1].
func (n *Normalizer) Normalize(frame image.Image, region image.Rectangle) (Tensor, error) {
	if region.Empty() || !region.In(frame.Bounds()) {
		return Tensor{}, fmt.Errorf("%w: %v not inside %v", ErrInvalidRegion, region, frame.Bounds())
	}

	face := imaging.Grayscale(imaging.Crop(frame, region))
	face = imaging.Resize(face, n.width, n.height, imaging.Linear)

	t := NewTensor(n.width, n.height, Channels)
	for y := 0; y < n.height; y++ {
		row := face.Pix[y*face.Stride:]
		for x := 0; x < n.width; x++ {
			v := float32(row[x*4]) / 255.0
			i := (y*n.width + x) * Channels
			t.Data[i] = v
			t.Data[i+1] = v
			t.Data[i+2] = v
		}
	}
	return t, nil
}
