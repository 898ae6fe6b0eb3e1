package detection

import "gocv.io/x/gocv"

// GPUProvider implements YOLO inference using OpenCV CUDA backend
type GPUProvider struct {
	netProvider
}

// Initialize initializes the GPU provider with model files
func (gp *GPUProvider) Initialize(spec ModelSpec) error {
	return gp.load(spec, gocv.NetBackendCUDA, gocv.NetTargetCUDA)
}

// Infer performs object detection on a frame using GPU
func (gp *GPUProvider) Infer(frame gocv.Mat) ([]Detection, error) {
	return gp.infer(frame)
}

// Close releases resources used by the GPU provider
func (gp *GPUProvider) Close() error {
	return gp.close()
}

// GetProviderInfo returns information about the GPU provider
func (gp *GPUProvider) GetProviderInfo() ProviderInfo {
	return ProviderInfo{
		Type:         "GPU",
		Backend:      "OpenCV CUDA",
		Device:       "NVIDIA GPU",
		EstimatedFPS: 200,
	}
}
