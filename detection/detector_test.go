package detection

import (
	"errors"
	"image"
	"path/filepath"
	"testing"

	"gocv.io/x/gocv"
)

// fakeProvider returns canned detections.
type fakeProvider struct {
	detections  []Detection
	err         error
	panics      bool
	initErr     error
	initialized bool
	closed      int
	calls       int
}

func (f *fakeProvider) Initialize(spec ModelSpec) error {
	f.initialized = f.initErr == nil
	return f.initErr
}

func (f *fakeProvider) Infer(frame gocv.Mat) ([]Detection, error) {
	f.calls++
	if f.panics {
		panic("forward pass blew up")
	}
	return f.detections, f.err
}

func (f *fakeProvider) Close() error {
	f.closed++
	return nil
}

func (f *fakeProvider) GetProviderInfo() ProviderInfo {
	return ProviderInfo{Type: "FAKE"}
}

func person(conf float64, box image.Rectangle) Detection {
	return Detection{Box: box, ClassID: PersonClassID, ClassName: "person", Confidence: conf}
}

func TestFilterPersons(t *testing.T) {
	box := image.Rect(0, 0, 10, 10)
	tests := []struct {
		name      string
		in        []Detection
		threshold float64
		want      int
	}{
		{"empty", nil, 0.4, 0},
		{"one above one below", []Detection{person(0.6, box), person(0.3, box)}, 0.4, 1},
		{"exactly at threshold is kept", []Detection{person(0.4, box)}, 0.4, 1},
		{"other classes ignored", []Detection{{ClassID: 16, Confidence: 0.99}, person(0.5, box)}, 0.4, 1},
		{"zero threshold keeps all people", []Detection{person(0.01, box), person(0, box)}, 0, 2},
		{"threshold one", []Detection{person(0.99, box), person(1.0, box)}, 1.0, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FilterPersons(tt.in, tt.threshold, PersonClassID)
			if len(got) != tt.want {
				t.Errorf("FilterPersons kept %d, want %d", len(got), tt.want)
			}
			for _, det := range got {
				if det.ClassID != PersonClassID || det.Confidence < tt.threshold {
					t.Errorf("FilterPersons kept %+v", det)
				}
			}
		})
	}
}

func TestDetectInvalidFrame(t *testing.T) {
	provider := &fakeProvider{}
	d := NewDetector(DefaultConfig(), nil)
	d.provider = provider

	if _, err := d.Detect(gocv.Mat{}); !errors.Is(err, ErrInvalidFrame) {
		t.Errorf("nil Mat: expected ErrInvalidFrame, got %v", err)
	}

	empty := gocv.NewMat()
	defer empty.Close()
	if _, err := d.Detect(empty); !errors.Is(err, ErrInvalidFrame) {
		t.Errorf("empty Mat: expected ErrInvalidFrame, got %v", err)
	}

	if provider.calls != 0 {
		t.Errorf("provider should not run on invalid frames, ran %d times", provider.calls)
	}
}

func TestDetectModelNotLoaded(t *testing.T) {
	d := NewDetector(DefaultConfig(), nil)
	frame := gocv.NewMatWithSize(100, 100, gocv.MatTypeCV8UC3)
	defer frame.Close()

	_, err := d.Detect(frame)
	if !errors.Is(err, ErrModelNotLoaded) {
		t.Fatalf("expected ErrModelNotLoaded, got %v", err)
	}
	if d.ModelInfo().Loaded {
		t.Error("ModelInfo should report not loaded")
	}
}

func TestDetectCountsAndDrawsPeople(t *testing.T) {
	frame := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), 120, 160, gocv.MatTypeCV8UC3)
	defer frame.Close()

	drawn := image.Rect(10, 40, 60, 100)
	skipped := image.Rect(90, 40, 140, 100)
	d := NewDetector(DefaultConfig(), nil)
	d.provider = &fakeProvider{detections: []Detection{
		person(0.6, drawn),
		person(0.3, skipped),
	}}

	result, err := d.Detect(frame)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if result.Count != 1 || len(result.Detections) != 1 {
		t.Fatalf("expected exactly one person, got %+v", result)
	}

	// Left edge of the drawn box is green in BGR
	px := frame.GetVecbAt(70, 10)
	if px[0] != 0 || px[1] != 255 || px[2] != 0 {
		t.Errorf("expected green box edge, got %v", px)
	}
	// The rejected box is not drawn
	px = frame.GetVecbAt(70, 90)
	if px[0] != 0 || px[1] != 0 || px[2] != 0 {
		t.Errorf("low confidence box should not be drawn, got %v", px)
	}
}

func TestDetectInferenceFailure(t *testing.T) {
	frame := gocv.NewMatWithSize(64, 64, gocv.MatTypeCV8UC3)
	defer frame.Close()

	tests := []struct {
		name     string
		provider *fakeProvider
	}{
		{"provider error", &fakeProvider{err: errors.New("cuda out of memory")}},
		{"provider panic", &fakeProvider{panics: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDetector(DefaultConfig(), nil)
			d.provider = tt.provider

			_, err := d.Detect(frame)
			if !errors.Is(err, ErrInference) {
				t.Errorf("expected ErrInference, got %v", err)
			}
		})
	}
}

func TestLoadModelMissingFile(t *testing.T) {
	d := NewDetector(DefaultConfig(), nil)
	err := d.LoadModel(filepath.Join(t.TempDir(), "yolov8n.onnx"))
	if !errors.Is(err, ErrModelNotFound) {
		t.Fatalf("expected ErrModelNotFound, got %v", err)
	}
	if d.ModelInfo().Loaded {
		t.Error("detector must stay unloaded")
	}
}

func TestModelInfo(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ModelPath = "test.onnx"
	cfg.Threshold = 0.6
	d := NewDetector(cfg, nil)

	info := d.ModelInfo()
	if info.ModelPath != "test.onnx" || info.Threshold != 0.6 || info.Loaded {
		t.Errorf("unexpected info %+v", info)
	}
}

func TestCloseReleasesProvider(t *testing.T) {
	provider := &fakeProvider{}
	d := NewDetector(DefaultConfig(), nil)
	d.provider = provider

	if err := d.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if provider.closed != 1 {
		t.Errorf("provider closed %d times, want 1", provider.closed)
	}
	if d.ModelInfo().Loaded {
		t.Error("detector should be unloaded after Close")
	}
}
