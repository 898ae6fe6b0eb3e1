package overlay

import (
	"fmt"
	"image"
	"image/color"
	"sync"
	"time"

	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// Text layout of the status block in the top-left corner
var (
	fpsPos        = image.Pt(10, 25)
	detectionsPos = image.Pt(10, 50)
	sourcePos     = image.Pt(10, 75)
	alertPos      = image.Pt(10, 100)
)

const (
	textFont      = gocv.FontHersheySimplex
	textScale     = 0.7
	textThickness = 2
)

// systemBlue is drawn as BGR (255, 0, 0)
var systemBlue = color.RGBA{R: 0, G: 0, B: 255, A: 0}

// Surface is the window frames are shown in. *gocv.Window satisfies it.
type Surface interface {
	IMShow(img gocv.Mat)
	WaitKey(delay int) int
	Close() error
}

// Renderer draws the status overlay and drives the display window
type Renderer struct {
	surface  Surface
	quitKey  int
	logger   *zap.Logger
	lastTick time.Time
	quitSeen bool
	closed   bool
	mu       sync.Mutex
}

// NewRenderer creates a renderer for surface. quitKey is matched against the
// low byte of WaitKey.
func NewRenderer(surface Surface, quitKey byte, logger *zap.Logger) *Renderer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if quitKey == 0 {
		quitKey = 'q'
	}
	return &Renderer{
		surface: surface,
		quitKey: int(quitKey),
		logger:  logger.Named("overlay"),
	}
}

// NewWindow opens a HighGUI window as the display surface
func NewWindow(name string, quitKey byte, logger *zap.Logger) *Renderer {
	return NewRenderer(gocv.NewWindow(name), quitKey, logger)
}

// OverlayFPS draws the instantaneous frame rate since the previous call.
// The first call has no prior sample and reports 0.
func (r *Renderer) OverlayFPS(frame *gocv.Mat, now time.Time) float64 {
	fps := 0.0
	if !r.lastTick.IsZero() {
		if delta := now.Sub(r.lastTick).Seconds(); delta > 0 {
			fps = 1 / delta
		}
	}
	r.lastTick = now

	gocv.PutText(frame, FPSText(fps), fpsPos, textFont, textScale, systemBlue, textThickness)
	return fps
}

// OverlayInfo draws the detection count, source label and alert label
func (r *Renderer) OverlayInfo(frame *gocv.Mat, count int, source, alert string) {
	gocv.PutText(frame, fmt.Sprintf("Detections: %d", count), detectionsPos, textFont, textScale, systemBlue, textThickness)
	gocv.PutText(frame, "Source: "+source, sourcePos, textFont, textScale, systemBlue, textThickness)
	gocv.PutText(frame, "Alert: "+alert, alertPos, textFont, textScale, systemBlue, textThickness)
}

// Display shows frame on the surface
func (r *Renderer) Display(frame gocv.Mat) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	r.surface.IMShow(frame)
}

// PollQuit checks for the quit key without blocking. It returns true once,
// on the first poll that sees the key.
func (r *Renderer) PollQuit() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed || r.quitSeen {
		return false
	}
	if r.surface.WaitKey(1)&0xFF == r.quitKey {
		r.quitSeen = true
		r.logger.Info("quit key pressed")
		return true
	}
	return false
}

// Close destroys the window. Safe to call more than once.
func (r *Renderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true
	return r.surface.Close()
}

// FPSText formats the frame rate label
func FPSText(fps float64) string {
	return fmt.Sprintf("FPS: %.2f", fps)
}
