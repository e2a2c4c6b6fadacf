package ai

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"runtime"
	"slices"
	"strings"
	"sync"

	"emotionserver/internal/logger"
	"emotionserver/internal/service/emotion"

	"gocv.io/x/gocv"
)

// ModelOptions describe the classifier artifact and its input.
type ModelOptions struct {
	ModelPath   string
	ConfigPath  string
	Labels      []string
	InputWidth  int
	InputHeight int
	// Layout is "nhwc" (Keras exports) or "nchw".
	Layout  string
	Backend string
	Target  string
}

// EmotionModel is the DNN classifier. It is loaded once and shared; forward
// passes are serialized because gocv.Net is not re-entrant.
type EmotionModel struct {
	net    gocv.Net
	labels []string
	width  int
	height int
	nchw   bool
	closed bool
	mutex  sync.Mutex
	logger *logger.Logger
}

// NewEmotionModel reads the network and probes it once with a zero tensor to
// make sure its output width matches the label set.
func NewEmotionModel(opts ModelOptions, logger *logger.Logger) (*EmotionModel, error) {
	if _, err := os.Stat(opts.ModelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: model file not found: %s", ErrModelLoad, opts.ModelPath)
	}
	if opts.ConfigPath != "" {
		if _, err := os.Stat(opts.ConfigPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: config file not found: %s", ErrModelLoad, opts.ConfigPath)
		}
	}

	net := gocv.ReadNet(opts.ModelPath, opts.ConfigPath)
	if net.Empty() {
		return nil, fmt.Errorf("%w: %s", ErrModelLoad, opts.ModelPath)
	}
	errBackend := net.SetPreferableBackend(gocv.ParseNetBackend(opts.Backend))
	errTarget := net.SetPreferableTarget(gocv.ParseNetTarget(opts.Target))
	if errBackend != nil || errTarget != nil {
		net.Close()
		return nil, fmt.Errorf("%w: failed to set preferable backend or target", ErrModelLoad)
	}

	m := &EmotionModel{
		net:    net,
		labels: slices.Clone(opts.Labels),
		width:  opts.InputWidth,
		height: opts.InputHeight,
		nchw:   strings.EqualFold(opts.Layout, "nchw"),
		logger: logger,
	}

	probe, err := m.forward(emotion.NewTensor(m.width, m.height, emotion.Channels))
	if err != nil {
		m.Close()
		return nil, fmt.Errorf("%w: probe failed: %v", ErrModelLoad, err)
	}
	if len(probe) != len(m.labels) {
		m.Close()
		return nil, fmt.Errorf("%w: model has %d outputs, %d labels configured", emotion.ErrLabelMismatch, len(probe), len(m.labels))
	}

	logger.Info("Emotion model loaded from %s (%dx%d %s, %d labels)", opts.ModelPath, m.width, m.height, strings.ToLower(opts.Layout), len(m.labels))
	return m, nil
}

// Labels returns the label set in model output order.
func (m *EmotionModel) Labels() []string {
	return m.labels
}

// Classify runs one forward pass.
func (m *EmotionModel) Classify(t emotion.Tensor) (emotion.Distribution, error) {
	if err := t.Check(m.width, m.height, emotion.Channels); err != nil {
		return nil, err
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.classifyLocked(t)
}

// ClassifyBatch classifies each tensor independently while holding the net
// once, so a batch is never interleaved with other callers.
func (m *EmotionModel) ClassifyBatch(tensors []emotion.Tensor) ([]emotion.Distribution, error) {
	for i, t := range tensors {
		if err := t.Check(m.width, m.height, emotion.Channels); err != nil {
			return nil, fmt.Errorf("tensor %d: %w", i, err)
		}
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	out := make([]emotion.Distribution, len(tensors))
	for i, t := range tensors {
		d, err := m.classifyLocked(t)
		if err != nil {
			return nil, fmt.Errorf("tensor %d: %w", i, err)
		}
		out[i] = d
	}
	return out, nil
}

func (m *EmotionModel) classifyLocked(t emotion.Tensor) (emotion.Distribution, error) {
	if m.closed {
		return nil, ErrClosed
	}
	probs, err := m.forwardLocked(t)
	if err != nil {
		return nil, err
	}
	return emotion.NewDistribution(m.labels, probs)
}

func (m *EmotionModel) forward(t emotion.Tensor) ([]float32, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.forwardLocked(t)
}

func (m *EmotionModel) forwardLocked(t emotion.Tensor) ([]float32, error) {
	shape, buf := m.blobData(t)
	blob, err := gocv.NewMatWithSizesFromBytes(shape, gocv.MatTypeCV32F, buf)
	if err != nil {
		return nil, fmt.Errorf("failed to build input blob: %w", err)
	}
	defer blob.Close()

	m.net.SetInput(blob, "")
	output := m.net.Forward("")
	defer output.Close()
	runtime.KeepAlive(buf)

	if output.Empty() {
		return nil, fmt.Errorf("empty network output")
	}
	data, err := output.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("failed to read network output: %w", err)
	}
	return slices.Clone(data), nil
}

// blobData lays the HWC tensor out as a 4-D float32 blob in the model's layout.
func (m *EmotionModel) blobData(t emotion.Tensor) ([]int, []byte) {
	h, w, c := t.Height, t.Width, t.Channels
	buf := make([]byte, 4*len(t.Data))

	if !m.nchw {
		for i, v := range t.Data {
			binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
		}
		return []int{1, h, w, c}, buf
	}

	i := 0
	for ch := 0; ch < c; ch++ {
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(t.At(y, x, ch)))
				i++
			}
		}
	}
	return []int{1, c, h, w}, buf
}

// Close releases the network. Further Classify calls fail with ErrClosed.
func (m *EmotionModel) Close() error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	return m.net.Close()
}
