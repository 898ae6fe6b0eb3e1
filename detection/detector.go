package detection

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// Config is the fixed detector configuration.
type Config struct {
	ModelPath     string
	ConfigPath    string
	Format        string
	Backend       string
	Threshold     float64
	NMSThreshold  float64
	PersonClassID int
	InputSize     int
}

// DefaultConfig mirrors the stock yolov8n setup.
func DefaultConfig() Config {
	return Config{
		ModelPath:     "yolov8n.onnx",
		Format:        "yolov8",
		Backend:       "auto",
		Threshold:     0.4,
		NMSThreshold:  0.45,
		PersonClassID: PersonClassID,
		InputSize:     640,
	}
}

// Detector finds people in frames and draws them.
type Detector struct {
	cfg      Config
	manager  *ProviderManager
	provider InferenceProvider
	logger   *zap.Logger
}

// NewDetector creates a detector with no model loaded.
func NewDetector(cfg Config, logger *zap.Logger) *Detector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Detector{
		cfg:    cfg,
		logger: logger.Named("detector"),
	}
}

// LoadModel loads the weights at path, replacing any loaded model.
func (d *Detector) LoadModel(path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			d.logger.Error("model file not found", zap.String("path", path))
			return fmt.Errorf("%w: %s", ErrModelNotFound, path)
		}
		return fmt.Errorf("%w: %v", ErrModelLoad, err)
	}

	d.logger.Info("loading model", zap.String("path", path), zap.String("format", d.cfg.Format))

	manager := NewProviderManager(d.logger)
	spec := ModelSpec{
		WeightsPath:  path,
		ConfigPath:   d.cfg.ConfigPath,
		Format:       d.cfg.Format,
		InputSize:    d.cfg.InputSize,
		ScoreFloor:   d.cfg.Threshold,
		NMSThreshold: d.cfg.NMSThreshold,
		Classes:      []int{d.cfg.PersonClassID},
	}
	if err := manager.Initialize(spec, d.cfg.Backend); err != nil {
		d.logger.Error("failed to load model", zap.Error(err))
		return fmt.Errorf("%w: %v", ErrModelLoad, err)
	}

	d.Close()
	d.cfg.ModelPath = path
	d.manager = manager
	d.provider = manager.GetProvider()
	d.logger.Info("model loaded successfully")
	return nil
}

// Detect runs inference on frame, draws every accepted person box onto it,
// and returns the count. On error the frame and detector are left untouched.
func (d *Detector) Detect(frame gocv.Mat) (Result, error) {
	if !isValidFrame(frame) {
		d.logger.Warn("invalid frame received")
		return Result{}, ErrInvalidFrame
	}
	if d.provider == nil {
		d.logger.Error("model not loaded")
		return Result{}, ErrModelNotLoaded
	}

	raw, err := d.infer(frame)
	if err != nil {
		d.logger.Error("error during detection", zap.Error(err))
		return Result{}, fmt.Errorf("%w: %v", ErrInference, err)
	}

	people := FilterPersons(raw, d.cfg.Threshold, d.cfg.PersonClassID)
	Annotate(&frame, people)

	if len(people) > 0 {
		d.logger.Debug("detected humans in frame", zap.Int("count", len(people)))
	}
	return Result{Count: len(people), Detections: people}, nil
}

func (d *Detector) infer(frame gocv.Mat) (detections []Detection, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("inference panicked: %v", r)
		}
	}()
	return d.provider.Infer(frame)
}

// ModelInfo reports what is loaded.
func (d *Detector) ModelInfo() Info {
	info := Info{
		ModelPath: d.cfg.ModelPath,
		Format:    d.cfg.Format,
		Threshold: d.cfg.Threshold,
		Loaded:    d.provider != nil,
	}
	if d.manager != nil {
		info.Provider = d.manager.GetProviderInfo()
	}
	return info
}

// Close releases the network.
func (d *Detector) Close() error {
	var err error
	if d.manager != nil {
		err = d.manager.Close()
	} else if d.provider != nil {
		err = d.provider.Close()
	}
	d.manager = nil
	d.provider = nil
	return err
}

// FilterPersons keeps detections of personClassID with confidence >= threshold.
func FilterPersons(detections []Detection, threshold float64, personClassID int) []Detection {
	var people []Detection
	for _, det := range detections {
		if det.ClassID == personClassID && det.Confidence >= threshold {
			people = append(people, det)
		}
	}
	return people
}

// isValidFrame checks a frame without touching a nil Mat pointer
func isValidFrame(frame gocv.Mat) bool {
	if frame.Ptr() == nil {
		return false
	}
	return !frame.Empty() && frame.Rows() > 0 && frame.Cols() > 0
}
