package alert

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrPlayback wraps failures of the underlying player.
var ErrPlayback = errors.New("sound playback failed")

const (
	DefaultCooldown = 3 * time.Second
	DefaultDuration = 500 * time.Millisecond
)

// Player produces audio. Implementations may block until playback ends.
type Player interface {
	Tone(ctx context.Context, hz int, d time.Duration) error
	File(ctx context.Context, path string) error
}

// NopPlayer discards every request.
type NopPlayer struct{}

func (NopPlayer) Tone(context.Context, int, time.Duration) error { return nil }
func (NopPlayer) File(context.Context, string) error             { return nil }

// Config configures a Sound.
type Config struct {
	Choice     Choice
	CustomFile string
	Cooldown   time.Duration
	Duration   time.Duration
}

// Playback is one request, copied by value into its playback goroutine.
type Playback struct {
	Frequency int
	Duration  time.Duration
	File      string
}

// Sound rate-limits alerts and plays each one on its own goroutine.
type Sound struct {
	choice      Choice
	playback    Playback
	cooldown    time.Duration
	lastFiredAt time.Time

	player Player
	logger *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
}

// New validates cfg. A custom sound whose file is missing falls back to the
// high beep.
func New(cfg Config, player Player, logger *zap.Logger) *Sound {
	if logger == nil {
		logger = zap.NewNop()
	}
	if player == nil {
		player = NopPlayer{}
	}
	if cfg.Duration <= 0 {
		cfg.Duration = DefaultDuration
	}
	if cfg.Cooldown < 0 {
		cfg.Cooldown = DefaultCooldown
	}
	if cfg.Choice < HighBeep || cfg.Choice > CustomSound {
		cfg.Choice = HighBeep
	}

	logger = logger.Named("alert")
	if cfg.Choice == CustomSound {
		if _, err := os.Stat(cfg.CustomFile); err != nil {
			logger.Warn("custom sound file not found, using high frequency beep instead",
				zap.String("file", cfg.CustomFile))
			cfg.Choice = HighBeep
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Sound{
		choice:   cfg.Choice,
		cooldown: cfg.Cooldown,
		player:   player,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		playback: Playback{
			Frequency: cfg.Choice.Frequency(),
			Duration:  cfg.Duration,
		},
	}
	if cfg.Choice == CustomSound {
		s.playback.File = cfg.CustomFile
	}

	logger.Info("alert sound configured",
		zap.String("sound", s.DisplayLabel()),
		zap.Duration("cooldown", s.cooldown))
	return s
}

// MaybeFire plays the alert if the cooldown has elapsed since the last
// fire and reports whether it did. It never blocks on playback, and a due
// fire is dispatched even while an earlier sound is still playing.
func (s *Sound) MaybeFire(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	if !s.lastFiredAt.IsZero() && now.Sub(s.lastFiredAt) < s.cooldown {
		return false
	}

	s.lastFiredAt = now
	s.wg.Add(1)
	go s.run(s.playback)
	return true
}

// LastFiredAt is the time of the last successful fire, zero if none.
func (s *Sound) LastFiredAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastFiredAt
}

// Choice is the effective sound after any fallback.
func (s *Sound) Choice() Choice {
	return s.choice
}

// DisplayLabel describes the sound for the overlay.
func (s *Sound) DisplayLabel() string {
	return s.choice.Label()
}

// Close cancels any playback in progress and waits for every playback
// goroutine to exit. Safe to call more than once.
func (s *Sound) Close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		s.cancel()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Sound) run(pb Playback) {
	defer s.wg.Done()

	if err := s.play(pb); err != nil {
		s.logger.Warn("alert playback failed", zap.Error(err))
	}
}

func (s *Sound) play(pb Playback) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: player panicked: %v", ErrPlayback, r)
		}
	}()

	if pb.File != "" {
		err = s.player.File(s.ctx, pb.File)
	} else {
		err = s.player.Tone(s.ctx, pb.Frequency, pb.Duration)
	}
	if err != nil && s.ctx.Err() == nil {
		return fmt.Errorf("%w: %v", ErrPlayback, err)
	}
	return nil
}
