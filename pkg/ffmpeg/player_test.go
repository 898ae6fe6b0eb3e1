package ffmpeg

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestOutputBufferKeepsMostRecent(t *testing.T) {
	ob := NewOutputBuffer(3)
	ob.now = func() time.Time { return time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC) }

	if got := ob.GetRecent(); len(got) != 0 {
		t.Fatalf("expected empty buffer, got %v", got)
	}

	for _, line := range []string{"a", "b", "c", "d", "e"} {
		ob.Add(line)
	}

	got := ob.GetRecent()
	want := []string{"c", "d", "e"}
	if len(got) != len(want) {
		t.Fatalf("got %d lines, want %d", len(got), len(want))
	}
	for i := range want {
		if !strings.HasSuffix(got[i], " "+want[i]) {
			t.Errorf("line %d = %q, want suffix %q", i, got[i], want[i])
		}
		if !strings.HasPrefix(got[i], "[12:00:00.000]") {
			t.Errorf("line %d missing timestamp: %q", i, got[i])
		}
	}

	ob.Reset()
	if got := ob.GetRecent(); len(got) != 0 {
		t.Errorf("expected empty buffer after reset, got %v", got)
	}
}

func TestToneArgs(t *testing.T) {
	args := strings.Join(ToneArgs(2000, 500*time.Millisecond), " ")
	if !strings.Contains(args, "-nodisp -autoexit") {
		t.Errorf("missing headless flags: %s", args)
	}
	if !strings.HasSuffix(args, "-f lavfi -i sine=frequency=2000:duration=0.500") {
		t.Errorf("unexpected tone source: %s", args)
	}

	fileArgs := FileArgs("alert.mp3")
	if fileArgs[len(fileArgs)-1] != "alert.mp3" {
		t.Errorf("file should be the last argument: %v", fileArgs)
	}
}

func TestPlayerExitStatus(t *testing.T) {
	ok := NewPlayer("true", nil)
	if !ok.Available() {
		t.Skip("true(1) not on PATH")
	}
	if err := ok.Tone(context.Background(), 1000, time.Millisecond); err != nil {
		t.Errorf("expected success, got %v", err)
	}

	failing := NewPlayer("false", nil)
	if err := failing.File(context.Background(), "alert.mp3"); err == nil {
		t.Error("expected error from non-zero exit")
	}
}

func TestPlayerRejectsBadInput(t *testing.T) {
	p := NewPlayer("", nil)
	if err := p.Tone(context.Background(), 0, time.Second); err == nil {
		t.Error("expected error for zero frequency")
	}
	if err := p.File(context.Background(), ""); err == nil {
		t.Error("expected error for empty path")
	}

	missing := NewPlayer("definitely-not-a-real-ffplay", nil)
	if missing.Available() {
		t.Fatal("binary should not be found")
	}
	if err := missing.Tone(context.Background(), 500, time.Millisecond); err == nil {
		t.Error("expected start failure")
	}
}
