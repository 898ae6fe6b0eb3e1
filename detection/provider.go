package detection

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// ModelSpec tells a provider what to load and how to decode it.
type ModelSpec struct {
	WeightsPath  string
	ConfigPath   string  // darknet .cfg; empty for ONNX
	Format       string  // "yolov8" or "darknet"
	InputSize    int     // square network input, e.g. 640
	ScoreFloor   float64 // candidates below this never leave the provider
	NMSThreshold float64
	Classes      []int // class ids kept before NMS; empty keeps all
}

// InferenceProvider runs the network on a frame.
type InferenceProvider interface {
	Initialize(spec ModelSpec) error
	Infer(frame gocv.Mat) ([]Detection, error)
	Close() error
	GetProviderInfo() ProviderInfo
}

// ProviderManager handles automatic provider selection and fallback
type ProviderManager struct {
	currentProvider InferenceProvider
	providerInfo    ProviderInfo
	logger          *zap.Logger

	// overridable for tests
	gpuAvailable func() bool
	newGPU       func() InferenceProvider
	newCPU       func() InferenceProvider
}

// NewProviderManager creates a new provider manager with auto-detection
func NewProviderManager(logger *zap.Logger) *ProviderManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProviderManager{
		logger:       logger,
		gpuAvailable: hasGPUCapability,
		newGPU:       func() InferenceProvider { return &GPUProvider{} },
		newCPU:       func() InferenceProvider { return &CPUProvider{} },
	}
}

// Initialize picks a provider. backend is "auto" (GPU when usable, else
// CPU), "gpu" or "cpu".
func (pm *ProviderManager) Initialize(spec ModelSpec, backend string) error {
	if backend == "" {
		backend = "auto"
	}

	if backend == "auto" || backend == "gpu" {
		switch {
		case pm.gpuAvailable():
			pm.logger.Info("GPU capability detected, attempting GPU initialization")
			err := pm.try(pm.newGPU(), spec)
			if err == nil {
				return nil
			}
			if backend == "gpu" {
				return fmt.Errorf("GPU provider failed: %w", err)
			}
			pm.logger.Warn("GPU initialization failed, falling back to CPU", zap.Error(err))
		case backend == "gpu":
			return fmt.Errorf("GPU backend requested but no usable GPU found")
		default:
			pm.logger.Info("no GPU capability detected")
		}
	}

	pm.logger.Info("initializing CPU provider")
	if err := pm.try(pm.newCPU(), spec); err != nil {
		return fmt.Errorf("CPU provider failed: %w", err)
	}
	return nil
}

func (pm *ProviderManager) try(provider InferenceProvider, spec ModelSpec) error {
	startTime := time.Now()
	if err := provider.Initialize(spec); err != nil {
		provider.Close()
		return err
	}

	// Test inference to make sure the backend really works
	if err := testProvider(provider, spec.InputSize); err != nil {
		provider.Close()
		return fmt.Errorf("test inference failed: %w", err)
	}

	pm.currentProvider = provider
	pm.providerInfo = provider.GetProviderInfo()
	pm.providerInfo.InitTime = time.Since(startTime)
	pm.logger.Info("inference provider ready",
		zap.String("type", pm.providerInfo.Type),
		zap.String("backend", pm.providerInfo.Backend),
		zap.Duration("init_time", pm.providerInfo.InitTime))
	return nil
}

// GetProvider returns the current active provider
func (pm *ProviderManager) GetProvider() InferenceProvider {
	return pm.currentProvider
}

// GetProviderInfo returns information about the current provider
func (pm *ProviderManager) GetProviderInfo() ProviderInfo {
	return pm.providerInfo
}

// Close closes the current provider
func (pm *ProviderManager) Close() error {
	if pm.currentProvider != nil {
		err := pm.currentProvider.Close()
		pm.currentProvider = nil
		return err
	}
	return nil
}

// hasGPUCapability checks if GPU inference is possible
func hasGPUCapability() bool {
	if !hasNVIDIAGPU() {
		return false
	}
	// CUDA itself is tested during provider initialization
	return hasNVIDIADriver()
}

// hasNVIDIAGPU checks if NVIDIA GPU is present
func hasNVIDIAGPU() bool {
	output, err := exec.Command("lspci").Output()
	if err != nil {
		return false
	}
	return strings.Contains(strings.ToLower(string(output)), "nvidia")
}

// hasNVIDIADriver checks if NVIDIA drivers are loaded
func hasNVIDIADriver() bool {
	if err := exec.Command("nvidia-smi", "--query-gpu=name", "--format=csv,noheader").Run(); err != nil {
		return false
	}
	matches, _ := filepath.Glob("/dev/nvidia*")
	return len(matches) > 0
}

// testProvider performs a quick test inference on a blank frame
func testProvider(provider InferenceProvider, size int) error {
	if size <= 0 {
		size = 640
	}
	testFrame := gocv.NewMatWithSize(size, size, gocv.MatTypeCV8UC3)
	defer testFrame.Close()

	_, err := provider.Infer(testFrame)
	return err
}
