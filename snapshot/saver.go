package snapshot

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// ErrWrite is returned when the encoder refuses a frame.
var ErrWrite = errors.New("failed to write snapshot")

// DefaultInterval persists at most one in ten processed frames
const DefaultInterval = 10

// Encoder writes img to path and reports success, like gocv.IMWrite
type Encoder func(path string, img gocv.Mat) bool

// Saver persists every interval-th frame that contains detections
type Saver struct {
	dir          string
	interval     int
	frameCounter int
	encode       Encoder
	now          func() time.Time
	logger       *zap.Logger
}

// Option configures a Saver
type Option func(*Saver)

// WithEncoder replaces gocv.IMWrite
func WithEncoder(enc Encoder) Option {
	return func(s *Saver) { s.encode = enc }
}

// WithClock replaces time.Now for file naming
func WithClock(now func() time.Time) Option {
	return func(s *Saver) { s.now = now }
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(s *Saver) {
		if logger != nil {
			s.logger = logger.Named("snapshot")
		}
	}
}

// NewSaver creates dir if needed and returns a saver writing into it
func NewSaver(dir string, interval int, opts ...Option) (*Saver, error) {
	if interval < 1 {
		return nil, fmt.Errorf("snapshot interval must be at least 1, got %d", interval)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory '%s': %w", dir, err)
	}

	s := &Saver{
		dir:      dir,
		interval: interval,
		encode:   gocv.IMWrite,
		now:      time.Now,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// MaybePersist writes frame when count > 0 and the frame counter is a
// multiple of the interval, then advances the counter whatever happened.
// It returns the written path, or "" when nothing was written.
func (s *Saver) MaybePersist(frame gocv.Mat, count int) (string, error) {
	defer func() { s.frameCounter++ }()

	if count <= 0 || s.frameCounter%s.interval != 0 {
		return "", nil
	}

	path := filepath.Join(s.dir, FileName(s.now()))
	if !s.encode(path, frame) {
		s.logger.Error("failed to save frame", zap.String("path", path))
		return "", fmt.Errorf("%w: %s", ErrWrite, path)
	}

	s.logger.Debug("saved frame", zap.String("path", path), zap.Int("detections", count))
	return path, nil
}

// FrameCounter is the number of frames seen so far
func (s *Saver) FrameCounter() int {
	return s.frameCounter
}

// Dir is the output directory
func (s *Saver) Dir() string {
	return s.dir
}

// FileName is the snapshot name for t at second resolution. Two snapshots
// within the same second overwrite each other.
func FileName(t time.Time) string {
	return "detected_" + t.Format("20060102_150405") + ".jpg"
}
