package overlay

import (
	"math"
	"testing"
	"time"

	"gocv.io/x/gocv"
)

// fakeSurface replays scripted keys and counts calls
type fakeSurface struct {
	keys   []int
	shown  int
	closed int
}

func (f *fakeSurface) IMShow(img gocv.Mat) { f.shown++ }

func (f *fakeSurface) WaitKey(delay int) int {
	if len(f.keys) == 0 {
		return -1
	}
	k := f.keys[0]
	f.keys = f.keys[1:]
	return k
}

func (f *fakeSurface) Close() error {
	f.closed++
	return nil
}

func blankFrame() gocv.Mat {
	return gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), 120, 320, gocv.MatTypeCV8UC3)
}

func TestOverlayFPS(t *testing.T) {
	frame := blankFrame()
	defer frame.Close()

	r := NewRenderer(&fakeSurface{}, 'q', nil)
	t0 := time.Unix(100, 0)

	if fps := r.OverlayFPS(&frame, t0); fps != 0 {
		t.Errorf("first call fps = %v, want 0", fps)
	}
	if fps := r.OverlayFPS(&frame, t0.Add(50*time.Millisecond)); math.Abs(fps-20) > 1e-9 {
		t.Errorf("fps = %v, want 20", fps)
	}
	if fps := r.OverlayFPS(&frame, t0.Add(50*time.Millisecond)); fps != 0 {
		t.Errorf("zero delta fps = %v, want 0", fps)
	}

	// something was drawn in blue around the FPS baseline
	drawn := false
	for x := 10; x < 120 && !drawn; x++ {
		for y := 10; y <= 25; y++ {
			px := frame.GetVecbAt(y, x)
			if px[0] > 0 && px[1] == 0 && px[2] == 0 {
				drawn = true
				break
			}
		}
	}
	if !drawn {
		t.Error("expected blue FPS text on the frame")
	}
}

func TestFPSText(t *testing.T) {
	if got := FPSText(29.978); got != "FPS: 29.98" {
		t.Errorf("FPSText = %q", got)
	}
}

func TestOverlayInfoDrawsStatusBlock(t *testing.T) {
	frame := blankFrame()
	defer frame.Close()

	r := NewRenderer(&fakeSurface{}, 'q', nil)
	r.OverlayInfo(&frame, 2, "Laptop/USB Camera", "High Beep (2000Hz)")

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(frame, &gray, gocv.ColorBGRToGray)
	if gocv.CountNonZero(gray) == 0 {
		t.Error("expected overlay text on the frame")
	}
}

func TestPollQuitLatches(t *testing.T) {
	surface := &fakeSurface{keys: []int{-1, 'a', 0x100 | 'q', 'q'}}
	r := NewRenderer(surface, 'q', nil)

	if r.PollQuit() {
		t.Error("no key should not quit")
	}
	if r.PollQuit() {
		t.Error("other key should not quit")
	}
	if !r.PollQuit() {
		t.Error("quit key with modifier bits should quit")
	}
	if r.PollQuit() {
		t.Error("quit should be reported only once")
	}
}

func TestDisplayAndClose(t *testing.T) {
	frame := blankFrame()
	defer frame.Close()

	surface := &fakeSurface{keys: []int{'q'}}
	r := NewRenderer(surface, 0, nil)

	r.Display(frame)
	if surface.shown != 1 {
		t.Errorf("shown %d frames, want 1", surface.shown)
	}

	if err := r.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
	if surface.closed != 1 {
		t.Errorf("surface closed %d times, want 1", surface.closed)
	}

	r.Display(frame)
	if surface.shown != 1 {
		t.Error("closed renderer should not show frames")
	}
	if r.PollQuit() {
		t.Error("closed renderer should not poll keys")
	}
}
