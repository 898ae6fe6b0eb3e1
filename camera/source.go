package camera

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

var (
	// ErrConnection means the source could not be opened and read after all attempts.
	ErrConnection = errors.New("camera connection failed")
	// ErrNotConnected is returned by ReadFrame when no capture handle is held.
	ErrNotConnected = errors.New("camera not connected")
	// ErrReadFailed is returned when the capture reports a failed read.
	ErrReadFailed = errors.New("camera read failed")
	// ErrEmptyFrame is returned when the capture hands back an empty Mat.
	ErrEmptyFrame = errors.New("camera returned empty frame")
)

const (
	DefaultMaxAttempts = 3
	DefaultRetryDelay  = 2 * time.Second
)

// Descriptor identifies a capture source: a local device index or a stream URL.
type Descriptor struct {
	Index int
	URL   string
}

// ParseDescriptor turns "0", "1", ... into a device index and anything else
// into a stream URL.
func ParseDescriptor(s string) (Descriptor, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Descriptor{}, fmt.Errorf("empty camera source")
	}
	if idx, err := strconv.Atoi(s); err == nil {
		if idx < 0 {
			return Descriptor{}, fmt.Errorf("invalid camera index %d", idx)
		}
		return Descriptor{Index: idx}, nil
	}
	return Descriptor{URL: s}, nil
}

// IsDevice reports whether the descriptor names a local device.
func (d Descriptor) IsDevice() bool {
	return d.URL == ""
}

// Label is the human readable source type shown on the overlay.
func (d Descriptor) Label() string {
	if d.IsDevice() {
		return "Laptop/USB Camera"
	}
	return "IP Camera"
}

// Target is the value handed to gocv.OpenVideoCapture.
func (d Descriptor) Target() interface{} {
	if d.IsDevice() {
		return d.Index
	}
	return d.URL
}

func (d Descriptor) String() string {
	if d.IsDevice() {
		return fmt.Sprintf("device %d", d.Index)
	}
	return d.URL
}

// Capture is the subset of *gocv.VideoCapture the source relies on.
type Capture interface {
	IsOpened() bool
	Read(m *gocv.Mat) bool
	Close() error
}

// Opener opens a capture for a descriptor.
type Opener func(d Descriptor) (Capture, error)

// videoCapture is a Capture whose backend properties can be tuned.
type videoCapture interface {
	Capture
	Set(prop gocv.VideoCaptureProperties, param float64)
}

// openVideoCapture wraps gocv.OpenVideoCapture. gocv hands back the
// allocated handle alongside the error when the open fails.
func openVideoCapture(target interface{}) (videoCapture, error) {
	vc, err := gocv.OpenVideoCapture(target)
	if vc == nil {
		return nil, err
	}
	return vc, err
}

// DefaultOpener opens sources through OpenCV. bufferSize > 0 shrinks the
// backend queue so a slow consumer sees recent frames.
func DefaultOpener(bufferSize int) Opener {
	return newOpener(openVideoCapture, bufferSize)
}

func newOpener(open func(target interface{}) (videoCapture, error), bufferSize int) Opener {
	return func(d Descriptor) (Capture, error) {
		if strings.HasPrefix(strings.ToLower(d.URL), "rtsp://") && os.Getenv("OPENCV_FFMPEG_CAPTURE_OPTIONS") == "" {
			// Low latency RTSP over TCP
			os.Setenv("OPENCV_FFMPEG_CAPTURE_OPTIONS", "rtsp_transport;tcp|buffer_size;65536|stimeout;5000000")
		}

		capture, err := open(d.Target())
		if err != nil {
			if capture != nil {
				capture.Close()
			}
			return nil, err
		}
		if capture == nil {
			return nil, fmt.Errorf("no capture for %s", d)
		}
		if bufferSize > 0 {
			capture.Set(gocv.VideoCaptureBufferSize, float64(bufferSize))
		}
		return capture, nil
	}
}

// Option configures a Source.
type Option func(*Source)

// WithOpener replaces the OpenCV opener.
func WithOpener(open Opener) Option {
	return func(s *Source) { s.open = open }
}

// WithRetry sets the number of open attempts and the pause between them.
func WithRetry(maxAttempts int, delay time.Duration) Option {
	return func(s *Source) {
		if maxAttempts > 0 {
			s.maxAttempts = maxAttempts
		}
		if delay >= 0 {
			s.retryDelay = delay
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Source) {
		if logger != nil {
			s.logger = logger.Named("camera")
		}
	}
}

// Source owns a single capture handle. It is not safe for concurrent use;
// the pipeline loop is its only caller.
type Source struct {
	descriptor  Descriptor
	open        Opener
	capture     Capture
	maxAttempts int
	retryDelay  time.Duration
	logger      *zap.Logger
}

// NewSource records the descriptor. No I/O happens until Connect.
func NewSource(d Descriptor, opts ...Option) *Source {
	s := &Source{
		descriptor:  d,
		open:        DefaultOpener(0),
		maxAttempts: DefaultMaxAttempts,
		retryDelay:  DefaultRetryDelay,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Connect opens the source, confirming it with one test read. It tries up to
// maxAttempts times with retryDelay between attempts.
func (s *Source) Connect(ctx context.Context) error {
	s.logger.Info("connecting to camera", zap.Stringer("source", s.descriptor))

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		if attempt > 1 {
			s.logger.Warn("retrying connection",
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", s.maxAttempts),
				zap.Duration("delay", s.retryDelay))

			select {
			case <-time.After(s.retryDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		capture, err := s.tryOpen()
		if err != nil {
			s.logger.Warn("connection attempt failed", zap.Int("attempt", attempt), zap.Error(err))
			continue
		}

		s.capture = capture
		s.logger.Info("connected to camera", zap.Stringer("source", s.descriptor), zap.Int("attempt", attempt))
		return nil
	}

	return fmt.Errorf("%w: %s after %d attempts", ErrConnection, s.descriptor, s.maxAttempts)
}

// tryOpen performs one open + test read. Any partially opened handle is
// closed before returning an error.
func (s *Source) tryOpen() (capture Capture, err error) {
	defer func() {
		if r := recover(); r != nil {
			if capture != nil {
				capture.Close()
			}
			capture = nil
			err = fmt.Errorf("open panicked: %v", r)
		}
	}()

	capture, err = s.open(s.descriptor)
	if err != nil {
		if capture != nil {
			capture.Close()
		}
		return nil, err
	}
	if capture == nil {
		return nil, fmt.Errorf("opener returned no capture")
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, fmt.Errorf("capture did not open")
	}

	probe := gocv.NewMat()
	defer probe.Close()
	if ok := capture.Read(&probe); !ok || probe.Empty() {
		capture.Close()
		return nil, fmt.Errorf("could not read test frame")
	}

	return capture, nil
}

// Reconnect drops the current handle and connects again.
func (s *Source) Reconnect(ctx context.Context) error {
	s.logger.Warn("connection lost, reconnecting", zap.Stringer("source", s.descriptor))
	s.Release()
	return s.Connect(ctx)
}

// ReadFrame reads the next frame into frame. It never panics.
func (s *Source) ReadFrame(frame *gocv.Mat) (err error) {
	if s.capture == nil {
		return ErrNotConnected
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrReadFailed, r)
		}
	}()

	if ok := s.capture.Read(frame); !ok {
		return ErrReadFailed
	}
	if frame.Empty() {
		return ErrEmptyFrame
	}
	return nil
}

// Release closes the capture handle. Safe to call repeatedly.
func (s *Source) Release() {
	if s.capture == nil {
		return
	}
	if err := s.capture.Close(); err != nil {
		s.logger.Warn("error releasing capture", zap.Error(err))
	}
	s.capture = nil
}

// IsConnected reports whether a capture handle is held.
func (s *Source) IsConnected() bool {
	return s.capture != nil
}

// SourceLabel is the overlay text for the source type.
func (s *Source) SourceLabel() string {
	return s.descriptor.Label()
}

// Descriptor returns the configured descriptor.
func (s *Source) Descriptor() Descriptor {
	return s.descriptor
}
