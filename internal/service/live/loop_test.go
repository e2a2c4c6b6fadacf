package live

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"io"
	"net"
	"testing"
	"time"

	"emotionserver/internal/logger"
	"emotionserver/internal/service/emotion"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var labels = []string{"angry", "disgusted", "fearful", "happy", "neutral", "sad", "surprised"}

type sliceSource struct {
	frames []image.Image
	reads  int
}

func (s *sliceSource) Read(ctx context.Context) (image.Image, error) {
	if s.reads >= len(s.frames) {
		return nil, io.EOF
	}
	f := s.frames[s.reads]
	s.reads++
	return f, nil
}

// whiteBoxLocator reports the white square of a frame, if any.
type whiteBoxLocator struct{}

func (whiteBoxLocator) Locate(frame image.Image) ([]image.Rectangle, error) {
	b := frame.Bounds()
	var box image.Rectangle
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if r, _, _, _ := frame.At(x, y).RGBA(); r == 0xFFFF {
				box = box.Union(image.Rect(x, y, x+1, y+1))
			}
		}
	}
	if box.Empty() {
		return nil, nil
	}
	return []image.Rectangle{box}, nil
}

// fixedClassifier returns probs for every face, "happy" at 0.9 when unset.
type fixedClassifier struct {
	probs []float32
	calls int
}

func (c *fixedClassifier) Labels() []string { return labels }

func (c *fixedClassifier) Classify(t emotion.Tensor) (emotion.Distribution, error) {
	c.calls++
	if c.probs != nil {
		return emotion.NewDistribution(labels, c.probs)
	}
	return emotion.NewDistribution(labels, []float32{0, 0, 0, 0.9, 0.1, 0, 0})
}

type recordingRenderer struct {
	frames    []image.Image
	decisions []emotion.Decision
	stopAfter int
}

func (r *recordingRenderer) Render(frame image.Image, d emotion.Decision) (bool, error) {
	r.frames = append(r.frames, frame)
	r.decisions = append(r.decisions, d)
	return r.stopAfter > 0 && len(r.decisions) >= r.stopAfter, nil
}

type fakeHub struct {
	clients  int
	messages [][]byte
}

func (h *fakeHub) Broadcast(message []byte) bool {
	h.messages = append(h.messages, message)
	return true
}

func (h *fakeHub) GetClientCount() int { return h.clients }

func frameWithBox(box image.Rectangle) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.Black}, image.Point{}, draw.Src)
	if !box.Empty() {
		draw.Draw(img, box, &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	}
	return img
}

func TestLoop_NoStateLeaksBetweenFrames(t *testing.T) {
	face := image.Rect(10, 10, 30, 30)
	source := &sliceSource{frames: []image.Image{
		frameWithBox(face),
		frameWithBox(image.Rectangle{}),
		frameWithBox(face),
	}}
	classifier := &fixedClassifier{}
	renderer := &recordingRenderer{}

	pipeline := emotion.NewPipeline(whiteBoxLocator{}, classifier)
	loop := NewLoop(source, pipeline, false, logger.NewNop(), renderer)

	require.NoError(t, loop.Run(context.Background()))
	require.Len(t, renderer.decisions, 3)
	assert.Equal(t, 3, loop.Frames())

	first, ok := renderer.decisions[0].Emotion()
	require.True(t, ok)
	assert.Equal(t, "happy", first.Label)
	assert.InDelta(t, 0.9, first.Confidence, 1e-6)
	assert.Equal(t, face, renderer.decisions[0].Region)

	assert.Equal(t, emotion.NoFace{}, renderer.decisions[1].Result)
	assert.True(t, renderer.decisions[1].Region.Empty(), "no-face frame must carry no region")

	assert.Equal(t, renderer.decisions[0], renderer.decisions[2])
	assert.Equal(t, 2, classifier.calls)
}

func TestLoop_NoFaceAfterEmotion(t *testing.T) {
	face := image.Rect(8, 8, 24, 24)
	source := &sliceSource{frames: []image.Image{
		frameWithBox(image.Rectangle{}),
		frameWithBox(face),
		frameWithBox(image.Rectangle{}),
	}}
	classifier := &fixedClassifier{probs: []float32{0.05, 0.05, 0.05, 0.05, 0.1, 0.7, 0}}
	renderer := &recordingRenderer{}

	loop := NewLoop(source, emotion.NewPipeline(whiteBoxLocator{}, classifier), false, logger.NewNop(), renderer)
	require.NoError(t, loop.Run(context.Background()))
	require.Len(t, renderer.decisions, 3)

	assert.Equal(t, emotion.NoFace{}, renderer.decisions[0].Result)
	assert.True(t, renderer.decisions[0].Region.Empty())

	sad, ok := renderer.decisions[1].Emotion()
	require.True(t, ok)
	assert.Equal(t, "sad", sad.Label)
	assert.InDelta(t, 0.7, sad.Confidence, 1e-6)
	assert.Equal(t, face, renderer.decisions[1].Region)

	assert.Equal(t, emotion.NoFace{}, renderer.decisions[2].Result)
	assert.True(t, renderer.decisions[2].Region.Empty(), "region of the previous face must not carry over")
	assert.Equal(t, 1, classifier.calls)
}

func TestLoop_MirrorsBeforeDetection(t *testing.T) {
	source := &sliceSource{frames: []image.Image{frameWithBox(image.Rect(0, 0, 10, 10))}}
	renderer := &recordingRenderer{}
	loop := NewLoop(source, emotion.NewPipeline(whiteBoxLocator{}, &fixedClassifier{}), true, logger.NewNop(), renderer)

	require.NoError(t, loop.Run(context.Background()))
	require.Len(t, renderer.decisions, 1)
	assert.Equal(t, image.Rect(54, 0, 64, 10), renderer.decisions[0].Region)

	r, _, _, _ := renderer.frames[0].At(60, 5).RGBA()
	assert.Equal(t, uint32(0xFFFF), r, "renderer must receive the mirrored frame")
}

func TestLoop_StopsWhenRendererAsks(t *testing.T) {
	frames := make([]image.Image, 10)
	for i := range frames {
		frames[i] = frameWithBox(image.Rectangle{})
	}
	source := &sliceSource{frames: frames}
	renderer := &recordingRenderer{stopAfter: 2}
	loop := NewLoop(source, emotion.NewPipeline(whiteBoxLocator{}, &fixedClassifier{}), false, logger.NewNop(), renderer)

	require.NoError(t, loop.Run(context.Background()))
	assert.Equal(t, 2, source.reads)
}

func TestLoop_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	source := &sliceSource{frames: []image.Image{frameWithBox(image.Rectangle{})}}
	loop := NewLoop(source, emotion.NewPipeline(whiteBoxLocator{}, &fixedClassifier{}), false, logger.NewNop())

	require.NoError(t, loop.Run(ctx))
	assert.Equal(t, 0, loop.Frames())
}

type failingSource struct{}

func (failingSource) Read(ctx context.Context) (image.Image, error) {
	return nil, errors.New("device unplugged")
}

func TestLoop_SourceFailure(t *testing.T) {
	loop := NewLoop(failingSource{}, emotion.NewPipeline(whiteBoxLocator{}, &fixedClassifier{}), false, logger.NewNop())
	assert.EqualError(t, loop.Run(context.Background()), "device unplugged")
}

func TestBroadcastRenderer(t *testing.T) {
	encode := func(frame image.Image, d emotion.Decision) ([]byte, error) {
		return []byte("jpeg"), nil
	}
	d := emotion.Decision{Region: image.Rect(0, 0, 5, 5), Result: emotion.Emotion{Label: "sad", Confidence: 0.75}}

	idle := &fakeHub{}
	stop, err := NewBroadcastRenderer(idle, encode, "webcam").Render(frameWithBox(image.Rectangle{}), d)
	require.NoError(t, err)
	assert.False(t, stop)
	assert.Empty(t, idle.messages, "nothing is sent without viewers")

	hub := &fakeHub{clients: 1}
	r := NewBroadcastRenderer(hub, encode, "webcam")
	_, err = r.Render(frameWithBox(image.Rectangle{}), d)
	require.NoError(t, err)
	_, err = r.Render(frameWithBox(image.Rectangle{}), emotion.Decision{Result: emotion.NoFace{}})
	require.NoError(t, err)
	require.Len(t, hub.messages, 2)

	var msg ViewerFrame
	require.NoError(t, json.Unmarshal(hub.messages[0], &msg))
	assert.Equal(t, "webcam", msg.Camera)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("jpeg")), msg.Image)
	assert.Equal(t, "sad", msg.Emotion)
	assert.Equal(t, 0.75, msg.Confidence)

	assert.NotContains(t, string(hub.messages[1]), "emotion")
}

func TestUDPSource_ReassemblesFrames(t *testing.T) {
	src, err := ListenUDP("udp://127.0.0.1:0", logger.NewNop())
	require.NoError(t, err)
	defer src.Close()

	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, frameWithBox(image.Rect(5, 5, 20, 20)), nil))
	data := buf.Bytes()

	conn, err := net.Dial("udp", src.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	// Garbage before the frame is discarded once the JPEG header arrives.
	_, err = conn.Write([]byte{0x01, 0x02})
	require.NoError(t, err)
	for start := 0; start < len(data); start += 512 {
		end := min(start+512, len(data))
		_, err := conn.Write(data[start:end])
		require.NoError(t, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	img, err := src.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 64, 48), img.Bounds())
}

func TestUDPSource_HonoursContext(t *testing.T) {
	src, err := ListenUDP("127.0.0.1:0", logger.NewNop())
	require.NoError(t, err)
	defer src.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = src.Read(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func newReassembler() *UDPSource {
	return &UDPSource{buffers: make(map[string]*senderBuffer), logger: logger.NewNop()}
}

func TestUDPSource_IgnoresDataOutsideFrames(t *testing.T) {
	s := newReassembler()
	packet := bytes.Repeat([]byte{0x42}, 2000)

	for i := 0; i < 2000; i++ {
		_, ok := s.ingest("10.0.0.1", packet)
		require.False(t, ok)
	}
	assert.Empty(t, s.buffers)
}

func TestUDPSource_CapsFrameSize(t *testing.T) {
	s := newReassembler()
	packet := bytes.Repeat([]byte{0x42}, 2000)

	_, ok := s.ingest("10.0.0.1", append(bytes.Clone(jpegHeader), packet...))
	require.False(t, ok)
	for i := 0; i < 4000; i++ {
		_, ok := s.ingest("10.0.0.1", packet)
		require.False(t, ok)
		require.LessOrEqual(t, s.buffers["10.0.0.1"].Len(), MaxUDPFrameBytes)
	}

	// A new frame after the overflow is reassembled normally.
	_, ok = s.ingest("10.0.0.1", []byte{0xFF, 0xD8, 0x01})
	require.False(t, ok)
	data, ok := s.ingest("10.0.0.1", []byte{0x02, 0xFF, 0xD9})
	require.True(t, ok)
	assert.Equal(t, []byte{0xFF, 0xD8, 0x01, 0x02, 0xFF, 0xD9}, data)
}

func TestUDPSource_EvictsLeastRecentSender(t *testing.T) {
	s := newReassembler()
	start := []byte{0xFF, 0xD8, 0x00}

	for i := 0; i < MaxUDPSenders+10; i++ {
		s.ingest(fmt.Sprintf("10.0.%d.%d", i/256, i%256), start)
		// keep the first sender active
		s.ingest("10.0.0.0", []byte{0x01})
	}
	assert.Len(t, s.buffers, MaxUDPSenders)
	assert.Contains(t, s.buffers, "10.0.0.0")
	assert.NotContains(t, s.buffers, "10.0.0.1")
}
