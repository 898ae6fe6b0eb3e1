package detection

import "gocv.io/x/gocv"

// CPUProvider implements YOLO inference using OpenCV CPU backend
type CPUProvider struct {
	netProvider
}

// Initialize initializes the CPU provider with model files
func (cp *CPUProvider) Initialize(spec ModelSpec) error {
	return cp.load(spec, gocv.NetBackendDefault, gocv.NetTargetCPU)
}

// Infer performs object detection on a frame using CPU
func (cp *CPUProvider) Infer(frame gocv.Mat) ([]Detection, error) {
	return cp.infer(frame)
}

// Close releases resources used by the CPU provider
func (cp *CPUProvider) Close() error {
	return cp.close()
}

// GetProviderInfo returns information about the CPU provider
func (cp *CPUProvider) GetProviderInfo() ProviderInfo {
	return ProviderInfo{
		Type:         "CPU",
		Backend:      "OpenCV CPU",
		Device:       "CPU",
		EstimatedFPS: 15, // yolov8n at 640 on a laptop CPU
	}
}
