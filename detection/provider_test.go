package detection

import (
	"errors"
	"testing"
)

func newTestManager(gpu bool, gpuProvider, cpuProvider *fakeProvider) *ProviderManager {
	pm := NewProviderManager(nil)
	pm.gpuAvailable = func() bool { return gpu }
	pm.newGPU = func() InferenceProvider { return gpuProvider }
	pm.newCPU = func() InferenceProvider { return cpuProvider }
	return pm
}

func TestProviderManagerSelection(t *testing.T) {
	spec := ModelSpec{InputSize: 32}

	t.Run("auto without GPU uses CPU", func(t *testing.T) {
		gpu, cpu := &fakeProvider{}, &fakeProvider{}
		pm := newTestManager(false, gpu, cpu)

		if err := pm.Initialize(spec, "auto"); err != nil {
			t.Fatalf("Initialize failed: %v", err)
		}
		if pm.GetProvider() != cpu {
			t.Error("expected CPU provider")
		}
		if gpu.initialized {
			t.Error("GPU provider should not be touched")
		}
	})

	t.Run("auto prefers GPU", func(t *testing.T) {
		gpu, cpu := &fakeProvider{}, &fakeProvider{}
		pm := newTestManager(true, gpu, cpu)

		if err := pm.Initialize(spec, ""); err != nil {
			t.Fatalf("Initialize failed: %v", err)
		}
		if pm.GetProvider() != gpu {
			t.Error("expected GPU provider")
		}
		if gpu.calls != 1 {
			t.Errorf("expected one test inference, got %d", gpu.calls)
		}
	})

	t.Run("GPU failure falls back to CPU", func(t *testing.T) {
		gpu := &fakeProvider{err: errors.New("no kernel image")}
		cpu := &fakeProvider{}
		pm := newTestManager(true, gpu, cpu)

		if err := pm.Initialize(spec, "auto"); err != nil {
			t.Fatalf("Initialize failed: %v", err)
		}
		if pm.GetProvider() != cpu {
			t.Error("expected CPU fallback")
		}
		if gpu.closed != 1 {
			t.Errorf("failed GPU provider closed %d times, want 1", gpu.closed)
		}
	})

	t.Run("forced GPU without hardware fails", func(t *testing.T) {
		pm := newTestManager(false, &fakeProvider{}, &fakeProvider{})
		if err := pm.Initialize(spec, "gpu"); err == nil {
			t.Fatal("expected error")
		}
		if pm.GetProvider() != nil {
			t.Error("no provider should be active")
		}
	})

	t.Run("forced CPU skips GPU", func(t *testing.T) {
		gpu, cpu := &fakeProvider{}, &fakeProvider{}
		pm := newTestManager(true, gpu, cpu)
		if err := pm.Initialize(spec, "cpu"); err != nil {
			t.Fatalf("Initialize failed: %v", err)
		}
		if pm.GetProvider() != cpu || gpu.initialized {
			t.Error("expected CPU only")
		}
	})

	t.Run("CPU failure is reported", func(t *testing.T) {
		cpu := &fakeProvider{initErr: errors.New("bad weights")}
		pm := newTestManager(false, &fakeProvider{}, cpu)
		if err := pm.Initialize(spec, "auto"); err == nil {
			t.Fatal("expected error")
		}
	})
}

func TestProviderManagerClose(t *testing.T) {
	cpu := &fakeProvider{}
	pm := newTestManager(false, &fakeProvider{}, cpu)
	if err := pm.Initialize(ModelSpec{InputSize: 16}, "cpu"); err != nil {
		t.Fatal(err)
	}

	pm.Close()
	pm.Close()
	if cpu.closed != 1 {
		t.Errorf("provider closed %d times, want 1", cpu.closed)
	}
	if pm.GetProvider() != nil {
		t.Error("provider should be cleared")
	}
}
