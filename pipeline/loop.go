package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"humanwatch/detection"

	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

var (
	// ErrReconnectExhausted means the camera stayed unreadable after
	// MaxReconnects reconnects in a row.
	ErrReconnectExhausted = errors.New("maximum connection retries exceeded")
	// ErrTooManyErrors means MaxConsecutiveErrors iterations failed in a row.
	ErrTooManyErrors = errors.New("too many consecutive errors")
)

// FrameSource is the camera
type FrameSource interface {
	Connect(ctx context.Context) error
	Reconnect(ctx context.Context) error
	ReadFrame(frame *gocv.Mat) error
	Release()
	SourceLabel() string
}

// FrameDetector finds and draws people
type FrameDetector interface {
	Detect(frame gocv.Mat) (detection.Result, error)
}

// Alerter plays the rate-limited alert
type Alerter interface {
	MaybeFire(now time.Time) bool
	DisplayLabel() string
}

// Renderer overlays status text and owns the window
type Renderer interface {
	OverlayFPS(frame *gocv.Mat, now time.Time) float64
	OverlayInfo(frame *gocv.Mat, count int, source, alert string)
	Display(frame gocv.Mat)
	PollQuit() bool
	Close() error
}

// Persister saves frames on its own cadence
type Persister interface {
	MaybePersist(frame gocv.Mat, count int) (string, error)
}

// Recorder keeps a history of saved frames and fired alerts
type Recorder interface {
	RecordSnapshot(ctx context.Context, at time.Time, count int, path string) error
	RecordAlert(ctx context.Context, at time.Time, count int) error
}

// Config bounds the loop's error handling
type Config struct {
	MaxReconnects        int
	ErrorPause           time.Duration
	MaxConsecutiveErrors int
	StatsInterval        time.Duration
}

// DefaultConfig returns the stock limits
func DefaultConfig() Config {
	return Config{
		MaxReconnects:        3,
		ErrorPause:           time.Second,
		MaxConsecutiveErrors: 30,
		StatsInterval:        15 * time.Second,
	}
}

// Components are the parts the loop drives. Persister and Recorder may be nil.
type Components struct {
	Source    FrameSource
	Detector  FrameDetector
	Alerter   Alerter
	Renderer  Renderer
	Persister Persister
	Recorder  Recorder
}

// Option configures a Loop
type Option func(*Loop)

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(l *Loop) {
		if logger != nil {
			l.logger = logger.Named("pipeline")
		}
	}
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(l *Loop) { l.now = now }
}

// WithSleep replaces the pause taken after a failed iteration
func WithSleep(sleep func(ctx context.Context, d time.Duration)) Option {
	return func(l *Loop) { l.sleep = sleep }
}

// WithStateCallback is called synchronously on every state change
func WithStateCallback(fn func(oldState, newState State)) Option {
	return func(l *Loop) { l.onStateChanged = fn }
}

// Loop reads, detects, alerts, renders and persists one frame at a time
type Loop struct {
	cfg Config
	c   Components

	state          State
	readFailures   int
	iterErrors     int
	stats          *Stats
	onStateChanged func(oldState, newState State)

	logger *zap.Logger
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration)
}

// New creates a loop in the Idle state
func New(cfg Config, c Components, opts ...Option) *Loop {
	def := DefaultConfig()
	if cfg.MaxReconnects < 0 {
		cfg.MaxReconnects = def.MaxReconnects
	}
	if cfg.MaxConsecutiveErrors < 1 {
		cfg.MaxConsecutiveErrors = def.MaxConsecutiveErrors
	}
	if cfg.ErrorPause < 0 {
		cfg.ErrorPause = 0
	}

	l := &Loop{
		cfg:    cfg,
		c:      c,
		state:  Idle,
		logger: zap.NewNop(),
		now:    time.Now,
		sleep:  sleepContext,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.stats = NewStats(l.now())
	return l
}

// Run connects the source and processes frames until the quit key, ctx
// cancellation, or a fatal error. The camera and window are released on
// every return path. Quit and cancellation return nil.
func (l *Loop) Run(ctx context.Context) error {
	defer l.shutdown()

	l.setState(Connecting)
	if err := l.c.Source.Connect(ctx); err != nil {
		if ctx.Err() != nil {
			l.logger.Info("interrupt received while connecting, stopping")
			l.setState(ShuttingDown)
			return nil
		}
		l.logger.Error("failed to connect to camera", zap.Error(err))
		return fmt.Errorf("initial connect: %w", err)
	}
	l.logger.Info("camera connected", zap.String("source", l.c.Source.SourceLabel()))
	l.setState(Running)

	frame := gocv.NewMat()
	defer frame.Close()

	for {
		if ctx.Err() != nil {
			l.logger.Info("interrupt received, stopping")
			l.setState(ShuttingDown)
			return nil
		}

		if err := l.c.Source.ReadFrame(&frame); err != nil {
			if fatal := l.handleReadFailure(ctx, err); fatal != nil {
				return fatal
			}
			continue
		}
		l.readFailures = 0

		if err := l.iterate(ctx, &frame); err != nil {
			if errors.Is(err, detection.ErrModelNotLoaded) {
				l.logger.Error("detector has no model", zap.Error(err))
				l.setState(ShuttingDown)
				return err
			}

			l.iterErrors++
			l.stats.UpdateError()
			l.logger.Error("error in main loop",
				zap.Error(err),
				zap.Int("consecutive", l.iterErrors))
			if l.iterErrors >= l.cfg.MaxConsecutiveErrors {
				l.setState(ShuttingDown)
				return fmt.Errorf("%w: %d in a row, last: %v", ErrTooManyErrors, l.iterErrors, err)
			}
			l.sleep(ctx, l.cfg.ErrorPause)
		} else {
			l.iterErrors = 0
		}

		if l.c.Renderer.PollQuit() {
			l.logger.Info("quit requested")
			l.setState(ShuttingDown)
			return nil
		}

		if now := l.now(); l.stats.ReportDue(now, l.cfg.StatsInterval) {
			l.reportStats(now)
		}
	}
}

// handleReadFailure reconnects after a failed read. It returns a non-nil
// error only when the loop must stop.
func (l *Loop) handleReadFailure(ctx context.Context, readErr error) error {
	l.readFailures++
	l.stats.UpdateReadFailure()
	l.logger.Warn("failed to read frame",
		zap.Error(readErr),
		zap.Int("consecutive", l.readFailures))

	if l.readFailures > l.cfg.MaxReconnects {
		l.logger.Error("maximum connection retries exceeded, exiting",
			zap.Int("max_reconnects", l.cfg.MaxReconnects))
		l.setState(Terminated)
		return fmt.Errorf("%w: last read error: %v", ErrReconnectExhausted, readErr)
	}

	l.setState(Reconnecting)
	if err := l.c.Source.Reconnect(ctx); err != nil {
		if ctx.Err() == nil {
			l.logger.Error("reconnection failed", zap.Error(err))
		}
		return nil
	}

	l.readFailures = 0
	l.stats.UpdateReconnect()
	l.logger.Info("camera reconnected")
	l.setState(Running)
	return nil
}

// iterate runs detect, alert, overlay, persist and display on one frame.
// A persist failure is returned after the frame has been displayed.
func (l *Loop) iterate(ctx context.Context, frame *gocv.Mat) error {
	start := l.now()
	result, err := l.c.Detector.Detect(*frame)
	if err != nil {
		return err
	}
	now := l.now()
	l.stats.UpdateDetect(now.Sub(start), result.Count)

	if result.Count > 0 && l.c.Alerter.MaybeFire(now) {
		l.stats.UpdateAlert()
		l.logger.Info("person detected, alert fired", zap.Int("count", result.Count))
		l.record(func() error { return l.c.Recorder.RecordAlert(ctx, now, result.Count) })
	}

	l.c.Renderer.OverlayFPS(frame, now)
	l.c.Renderer.OverlayInfo(frame, result.Count, l.c.Source.SourceLabel(), l.c.Alerter.DisplayLabel())

	var persistErr error
	if l.c.Persister != nil {
		path, err := l.c.Persister.MaybePersist(*frame, result.Count)
		switch {
		case err != nil:
			persistErr = err
		case path != "":
			l.stats.UpdateSnapshot()
			l.logger.Info("saved detection frame", zap.String("path", path))
			l.record(func() error { return l.c.Recorder.RecordSnapshot(ctx, now, result.Count, path) })
		}
	}

	l.c.Renderer.Display(*frame)
	return persistErr
}

func (l *Loop) record(fn func() error) {
	if l.c.Recorder == nil {
		return
	}
	if err := fn(); err != nil {
		l.logger.Warn("failed to record event", zap.Error(err))
	}
}

// shutdown releases the camera and window, then terminates
func (l *Loop) shutdown() {
	l.c.Source.Release()
	if err := l.c.Renderer.Close(); err != nil {
		l.logger.Warn("failed to close window", zap.Error(err))
	}
	l.reportStats(l.now())
	if l.state != Terminated {
		l.setState(Terminated)
	}
}

func (l *Loop) reportStats(now time.Time) {
	w := l.stats.TakeWindow(now)
	s := l.stats.Summary(now)
	l.logger.Info("pipeline stats",
		zap.Float64("process_fps", w.ProcessFPS),
		zap.Duration("avg_detect", w.AvgDetect),
		zap.Int64("frames", s.Frames),
		zap.Int64("detections", s.Detections),
		zap.Int64("alerts", s.Alerts),
		zap.Int64("snapshots", s.Snapshots),
		zap.Int64("read_failures", s.ReadFailures),
		zap.Int64("reconnects", s.Reconnects),
		zap.Int64("errors", s.Errors),
		zap.Duration("uptime", s.Uptime))
}

func (l *Loop) setState(newState State) {
	oldState := l.state
	if oldState == newState {
		return
	}
	l.state = newState
	l.logger.Debug("state change", zap.Stringer("from", oldState), zap.Stringer("to", newState))

	if l.onStateChanged != nil {
		l.onStateChanged(oldState, newState)
	}
}

// State returns the current state
func (l *Loop) State() State {
	return l.state
}

// ReadFailures is the number of consecutive failed reads
func (l *Loop) ReadFailures() int {
	return l.readFailures
}

// Stats returns the run totals
func (l *Loop) Stats() Summary {
	return l.stats.Summary(l.now())
}

func sleepContext(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
