package ffmpeg

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultBinary is looked up on PATH when no explicit path is configured
const DefaultBinary = "ffplay"

// stderrLines is how much ffplay output is kept for error reports
const stderrLines = 20

// Player plays tones and audio files by running ffplay without a window.
// Only one child process runs at a time.
type Player struct {
	path   string
	logger *zap.Logger
	stderr *OutputBuffer
	mu     sync.Mutex
}

// NewPlayer creates a player for the ffplay binary at path
func NewPlayer(path string, logger *zap.Logger) *Player {
	if path == "" {
		path = DefaultBinary
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Player{
		path:   path,
		logger: logger.Named("ffplay"),
		stderr: NewOutputBuffer(stderrLines),
	}
}

// Available reports whether the binary can be found
func (p *Player) Available() bool {
	_, err := exec.LookPath(p.path)
	return err == nil
}

// Tone plays a sine wave of hz for duration d.
func (p *Player) Tone(ctx context.Context, hz int, d time.Duration) error {
	if hz <= 0 {
		return fmt.Errorf("invalid tone frequency %d", hz)
	}
	return p.run(ctx, ToneArgs(hz, d))
}

// File plays an audio file to completion.
func (p *Player) File(ctx context.Context, path string) error {
	if path == "" {
		return errors.New("no audio file given")
	}
	return p.run(ctx, FileArgs(path))
}

// ToneArgs builds the ffplay arguments for a lavfi sine source
func ToneArgs(hz int, d time.Duration) []string {
	source := fmt.Sprintf("sine=frequency=%d:duration=%.3f", hz, d.Seconds())
	return append(baseArgs(), "-f", "lavfi", "-i", source)
}

// FileArgs builds the ffplay arguments for an audio file
func FileArgs(path string) []string {
	return append(baseArgs(), path)
}

func baseArgs() []string {
	return []string{"-nodisp", "-autoexit", "-hide_banner", "-loglevel", "error"}
}

func (p *Player) run(ctx context.Context, args []string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stderr.Reset()
	cmd := exec.CommandContext(ctx, p.path, args...)

	pipe, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to create stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", p.path, err)
	}

	p.collect(pipe)

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		recent := p.stderr.GetRecent()
		if len(recent) > 0 {
			return fmt.Errorf("%s exited: %w: %s", p.path, err, strings.Join(recent, "; "))
		}
		return fmt.Errorf("%s exited: %w", p.path, err)
	}
	return nil
}

// collect drains stderr into the crash buffer until the process closes it
func (p *Player) collect(pipe io.Reader) {
	scanner := bufio.NewScanner(pipe)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		p.stderr.Add(line)
		p.logger.Debug(line)
	}
	if err := scanner.Err(); err != nil {
		p.stderr.Add(fmt.Sprintf("SCANNER_ERROR: %v", err))
	}
}

// RecentOutput returns what the last run wrote to stderr
func (p *Player) RecentOutput() []string {
	return p.stderr.GetRecent()
}
