package detection

import (
	"errors"
	"image"
	"time"
)

var (
	// ErrModelNotFound means the weights path does not exist.
	ErrModelNotFound = errors.New("model file not found")
	// ErrModelLoad wraps any failure while building the network.
	ErrModelLoad = errors.New("failed to load model")
	// ErrInvalidFrame is returned for a nil or empty frame. The caller should skip it.
	ErrInvalidFrame = errors.New("invalid frame received")
	// ErrModelNotLoaded is a sequencing error: Detect before LoadModel.
	ErrModelNotLoaded = errors.New("model not loaded, call LoadModel first")
	// ErrInference wraps a failed forward pass. The next frame may succeed.
	ErrInference = errors.New("detection failed")
)

// Detection is one box produced by the network.
type Detection struct {
	Box        image.Rectangle
	ClassID    int
	ClassName  string
	Confidence float64
}

// Result is the outcome of one Detect call. The annotated frame is the Mat
// that was passed in.
type Result struct {
	Count      int
	Detections []Detection
}

// ProviderInfo contains information about the inference provider
type ProviderInfo struct {
	Type         string        // "GPU" or "CPU"
	Backend      string        // "OpenCV CUDA", "OpenCV CPU"
	Device       string        // Device identifier
	EstimatedFPS int           // Estimated inference FPS
	InitTime     time.Duration // Time taken to initialize
}

// Info describes the loaded model for startup logs.
type Info struct {
	ModelPath string
	Format    string
	Threshold float64
	Loaded    bool
	Provider  ProviderInfo
}
