// Package config holds the process configuration of the emotion server.
package config

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

// DefaultLabels is the column order of the bundled emotion model.
var DefaultLabels = []string{"angry", "disgusted", "fearful", "happy", "neutral", "sad", "surprised"}

// Config contains every tunable of the server, the live loop and the inference pipeline.
type Config struct {
	Addr     string `koanf:"addr"`
	LogLevel string `koanf:"log_level"`
	LogDir   string `koanf:"log_dir"`
	APIToken string `koanf:"api_token"`

	MaxUploadMB    int           `koanf:"max_upload_mb"`
	MaxFramePixels int           `koanf:"max_frame_pixels"`
	RequestTimeout time.Duration `koanf:"request_timeout"`

	// Classifier artifact.
	ModelPath   string   `koanf:"model_path"`
	ModelConfig string   `koanf:"model_config"`
	Labels      []string `koanf:"labels"`
	LabelsPath  string   `koanf:"labels_path"`
	InputWidth  int      `koanf:"input_width"`
	InputHeight int      `koanf:"input_height"`
	InputLayout string   `koanf:"input_layout"` // nhwc or nchw
	NetBackend  string   `koanf:"net_backend"`
	NetTarget   string   `koanf:"net_target"`

	// Face locator.
	Detector       string  `koanf:"detector"` // haar or pigo
	CascadePath    string  `koanf:"cascade_path"`
	ScaleFactor    float64 `koanf:"scale_factor"`
	MinNeighbors   int     `koanf:"min_neighbors"`
	MinFaceSize    int     `koanf:"min_face_size"`
	PigoShift      float64 `koanf:"pigo_shift_factor"`
	PigoIoU        float64 `koanf:"pigo_iou"`
	PigoMinQuality float64 `koanf:"pigo_min_quality"`

	// Persistence.
	DBDriver    string `koanf:"db_driver"` // sqlite or postgres
	DBPath      string `koanf:"db_path"`
	DatabaseURL string `koanf:"database_url"`

	// Live mode.
	CameraDevice  string `koanf:"camera_device"`
	CameraEnabled bool   `koanf:"camera_enabled"`
	CameraName    string `koanf:"camera_name"`
	Mirror        bool   `koanf:"mirror"`
	WindowName    string `koanf:"window_name"`
	// Live predictions are stored every interval; 0 keeps them out of the history.
	CameraRecordInterval time.Duration `koanf:"camera_record_interval"`
}

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		Addr:           ":8080",
		LogLevel:       "info",
		LogDir:         filepath.Join(".", "logs"),
		MaxUploadMB:    10,
		MaxFramePixels: 40_000_000,
		RequestTimeout: 30 * time.Second,

		ModelPath:   filepath.Join(".", "models", "emotion_model.onnx"),
		Labels:      slices.Clone(DefaultLabels),
		InputWidth:  48,
		InputHeight: 48,
		InputLayout: "nhwc",
		NetBackend:  "default",
		NetTarget:   "cpu",

		Detector:       "haar",
		CascadePath:    filepath.Join(".", "models", "haarcascade_frontalface_default.xml"),
		ScaleFactor:    1.3,
		MinNeighbors:   5,
		MinFaceSize:    30,
		PigoShift:      0.1,
		PigoIoU:        0.2,
		PigoMinQuality: 5.0,

		DBDriver: "sqlite",
		DBPath:   filepath.Join(".", "data", "predictions.db"),

		CameraDevice: "0",
		CameraName:   "webcam",
		Mirror:       true,
		WindowName:   "Live Emotion Recognition",
	}
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	}
	if c.InputWidth <= 0 || c.InputHeight <= 0 {
		return fmt.Errorf("%w: input resolution %dx%d", ErrInvalidConfig, c.InputWidth, c.InputHeight)
	}
	if c.ScaleFactor <= 1.0 {
		return fmt.Errorf("%w: scale_factor must be > 1, got %v", ErrInvalidConfig, c.ScaleFactor)
	}
	if c.MinNeighbors < 0 {
		return fmt.Errorf("%w: min_neighbors must be >= 0", ErrInvalidConfig)
	}
	if c.CameraRecordInterval < 0 {
		return fmt.Errorf("%w: camera_record_interval must not be negative", ErrInvalidConfig)
	}
	if c.MaxUploadMB <= 0 {
		return fmt.Errorf("%w: max_upload_mb must be positive", ErrInvalidConfig)
	}
	if c.MaxFramePixels <= 0 {
		return fmt.Errorf("%w: max_frame_pixels must be positive", ErrInvalidConfig)
	}
	if len(c.Labels) == 0 {
		return fmt.Errorf("%w: label set is empty", ErrInvalidConfig)
	}
	seen := make(map[string]bool, len(c.Labels))
	for _, l := range c.Labels {
		if l == "" || seen[l] {
			return fmt.Errorf("%w: labels must be unique and non-empty, got %q", ErrInvalidConfig, c.Labels)
		}
		seen[l] = true
	}

	switch strings.ToLower(c.InputLayout) {
	case "nhwc", "nchw":
	default:
		return fmt.Errorf("%w: input_layout %q", ErrInvalidConfig, c.InputLayout)
	}
	switch strings.ToLower(c.Detector) {
	case "haar":
		if c.MinFaceSize < 0 {
			return fmt.Errorf("%w: min_face_size must be >= 0", ErrInvalidConfig)
		}
	case "pigo":
		// The pigo window grows by int(size*scale_factor) per step and
		// never terminates when that rounds back to size.
		if int(float64(c.MinFaceSize)*c.ScaleFactor) <= c.MinFaceSize {
			return fmt.Errorf("%w: min_face_size %d does not grow with scale_factor %v", ErrInvalidConfig, c.MinFaceSize, c.ScaleFactor)
		}
	default:
		return fmt.Errorf("%w: detector %q", ErrInvalidConfig, c.Detector)
	}
	switch strings.ToLower(c.DBDriver) {
	case "sqlite":
		if c.DBPath == "" {
			return fmt.Errorf("%w: db_path must not be empty", ErrInvalidConfig)
		}
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("%w: database_url must not be empty", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: db_driver %q", ErrInvalidConfig, c.DBDriver)
	}
	return nil
}

// MaxUploadBytes is the request body limit for uploads.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) << 20
}
