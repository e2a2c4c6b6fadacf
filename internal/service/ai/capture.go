package ai

import (
	"context"
	"fmt"
	"image"
	"io"
	"sync"

	"emotionserver/internal/logger"

	"gocv.io/x/gocv"
)

// Capture reads frames from a camera index, a video file or a stream URL.
type Capture struct {
	device string
	webcam *gocv.VideoCapture
	mat    gocv.Mat
	closed bool
	mutex  sync.Mutex
	logger *logger.Logger
}

// OpenCapture opens device. A numeric device is a camera index.
func OpenCapture(device string, logger *logger.Logger) (*Capture, error) {
	webcam, err := gocv.OpenVideoCapture(device)
	if err != nil {
		return nil, fmt.Errorf("failed to open capture device %s: %w", device, err)
	}
	if !webcam.IsOpened() {
		webcam.Close()
		return nil, fmt.Errorf("capture device %s is not available", device)
	}

	logger.Info("Capture device %s opened", device)
	return &Capture{
		device: device,
		webcam: webcam,
		mat:    gocv.NewMat(),
		logger: logger,
	}, nil
}

// Read grabs the next frame. It returns io.EOF when the device stops
// producing frames.
func (c *Capture) Read(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.closed {
		return nil, ErrClosed
	}

	if ok := c.webcam.Read(&c.mat); !ok || c.mat.Empty() {
		return nil, io.EOF
	}
	img, err := c.mat.ToImage()
	if err != nil {
		return nil, fmt.Errorf("failed to convert frame: %w", err)
	}
	return img, nil
}

// Close releases the device.
func (c *Capture) Close() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.mat.Close()
	c.logger.Info("Capture device %s closed", c.device)
	return c.webcam.Close()
}
