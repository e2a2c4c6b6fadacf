package live

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"

	"emotionserver/internal/service/emotion"
)

// Broadcaster is the viewer hub.
type Broadcaster interface {
	Broadcast(message []byte) bool
	GetClientCount() int
}

// EncodeFunc turns an annotated frame into JPEG bytes.
type EncodeFunc func(frame image.Image, d emotion.Decision) ([]byte, error)

// ViewerFrame is the message pushed to websocket viewers.
type ViewerFrame struct {
	Camera     string  `json:"camera"`
	Image      string  `json:"image"`
	Emotion    string  `json:"emotion,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
}

// BroadcastRenderer streams annotated frames to websocket viewers. It never
// asks the loop to stop.
type BroadcastRenderer struct {
	hub    Broadcaster
	encode EncodeFunc
	camera string
}

// NewBroadcastRenderer creates a renderer publishing under camera.
func NewBroadcastRenderer(hub Broadcaster, encode EncodeFunc, camera string) *BroadcastRenderer {
	return &BroadcastRenderer{hub: hub, encode: encode, camera: camera}
}

// Render encodes and broadcasts the frame. Nothing is encoded without viewers.
func (r *BroadcastRenderer) Render(frame image.Image, d emotion.Decision) (bool, error) {
	if r.hub.GetClientCount() == 0 {
		return false, nil
	}

	jpeg, err := r.encode(frame, d)
	if err != nil {
		return false, fmt.Errorf("failed to encode frame: %w", err)
	}

	msg := ViewerFrame{
		Camera: r.camera,
		Image:  base64.StdEncoding.EncodeToString(jpeg),
	}
	if e, ok := d.Emotion(); ok {
		msg.Emotion = e.Label
		msg.Confidence = e.Confidence
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return false, err
	}
	r.hub.Broadcast(payload)
	return false, nil
}
