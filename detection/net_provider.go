package detection

import (
	"fmt"
	"image"
	"sync"

	"gocv.io/x/gocv"
)

// netProvider is the OpenCV DNN plumbing shared by the CPU and GPU providers.
type netProvider struct {
	net         gocv.Net
	spec        ModelSpec
	outputNames []string
	loaded      bool
	mu          sync.Mutex
}

func (np *netProvider) load(spec ModelSpec, backend gocv.NetBackendType, target gocv.NetTargetType) error {
	np.mu.Lock()
	defer np.mu.Unlock()

	if spec.InputSize <= 0 {
		spec.InputSize = 640
	}
	if spec.Format == "darknet" && spec.ConfigPath == "" {
		return fmt.Errorf("darknet model %s needs a .cfg path", spec.WeightsPath)
	}

	net := gocv.ReadNet(spec.WeightsPath, spec.ConfigPath)
	if net.Empty() {
		net.Close()
		return fmt.Errorf("failed to load network from %s", spec.WeightsPath)
	}

	if err := net.SetPreferableBackend(backend); err != nil {
		net.Close()
		return fmt.Errorf("set backend: %w", err)
	}
	if err := net.SetPreferableTarget(target); err != nil {
		net.Close()
		return fmt.Errorf("set target: %w", err)
	}

	var names []string
	for _, id := range net.GetUnconnectedOutLayers() {
		layer := net.GetLayer(id)
		names = append(names, layer.GetName())
		layer.Close()
	}

	np.net = net
	np.spec = spec
	np.outputNames = names
	np.loaded = true
	return nil
}

func (np *netProvider) infer(frame gocv.Mat) ([]Detection, error) {
	np.mu.Lock()
	defer np.mu.Unlock()

	if !np.loaded {
		return nil, fmt.Errorf("network not initialized")
	}

	size := np.spec.InputSize
	blob := gocv.BlobFromImage(frame, 1.0/255.0, image.Pt(size, size), gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	np.net.SetInput(blob, "")
	outputs := np.net.ForwardLayers(np.outputNames)
	defer func() {
		for i := range outputs {
			outputs[i].Close()
		}
	}()

	frameW := float32(frame.Cols())
	frameH := float32(frame.Rows())
	floor := float32(np.spec.ScoreFloor)

	var candidates []candidate
	for i := range outputs {
		var (
			found []candidate
			err   error
		)
		if np.spec.Format == "darknet" {
			found, err = decodeDarknetOutput(&outputs[i], frameW, frameH, floor)
		} else {
			found, err = decodeYOLOv8Output(&outputs[i], frameW/float32(size), frameH/float32(size), floor)
		}
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, found...)
	}

	return suppress(candidates, np.spec.Classes, floor, float32(np.spec.NMSThreshold)), nil
}

func (np *netProvider) close() error {
	np.mu.Lock()
	defer np.mu.Unlock()

	if !np.loaded {
		return nil
	}
	np.loaded = false
	return np.net.Close()
}

// decodeYOLOv8Output handles the [1, 4+classes, anchors] ONNX export layout.
func decodeYOLOv8Output(out *gocv.Mat, scaleX, scaleY, floor float32) ([]candidate, error) {
	sizes := out.Size()
	if len(sizes) != 3 {
		return nil, fmt.Errorf("unexpected yolov8 output shape %v", sizes)
	}

	flat := out.Reshape(1, sizes[1])
	defer flat.Close()
	transposed := gocv.NewMat()
	defer transposed.Close()
	gocv.Transpose(flat, &transposed)

	data, err := transposed.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("read yolov8 output: %w", err)
	}
	return decodeYOLOv8(data, transposed.Rows(), transposed.Cols(), scaleX, scaleY, floor), nil
}

// decodeDarknetOutput handles the [anchors, 5+classes] darknet layout.
func decodeDarknetOutput(out *gocv.Mat, frameW, frameH, floor float32) ([]candidate, error) {
	data, err := out.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("read darknet output: %w", err)
	}
	return decodeDarknet(data, out.Rows(), out.Cols(), frameW, frameH, floor), nil
}
