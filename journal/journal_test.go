package journal

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func openTestJournal(t *testing.T, path, source string) *Journal {
	t.Helper()
	j, err := Open(context.Background(), path, source, nil)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func TestRecordAndListNewestFirst(t *testing.T) {
	ctx := context.Background()
	j := openTestJournal(t, filepath.Join(t.TempDir(), "journal.db"), "Laptop/USB Camera")

	t0 := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	if err := j.RecordAlert(ctx, t0, 1); err != nil {
		t.Fatal(err)
	}
	if err := j.RecordSnapshot(ctx, t0.Add(time.Second), 2, "detected_frames/detected_20240601_080001.jpg"); err != nil {
		t.Fatal(err)
	}
	if err := j.RecordAlert(ctx, t0.Add(5*time.Second), 3); err != nil {
		t.Fatal(err)
	}

	events, err := j.List(ctx, j.Session().ID, 0)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}

	wantKinds := []Kind{KindAlert, KindSnapshot, KindAlert}
	wantCounts := []int{3, 2, 1}
	for i, ev := range events {
		if ev.Kind != wantKinds[i] || ev.Count != wantCounts[i] {
			t.Errorf("event %d = %+v, want kind %s count %d", i, ev, wantKinds[i], wantCounts[i])
		}
		if ev.SessionID != j.Session().ID || ev.ID == "" {
			t.Errorf("event %d has bad ids: %+v", i, ev)
		}
	}
	if !events[0].OccurredAt.Equal(t0.Add(5 * time.Second)) {
		t.Errorf("OccurredAt = %v", events[0].OccurredAt)
	}
	if events[1].Path == "" {
		t.Error("snapshot path not stored")
	}

	limited, err := j.List(ctx, j.Session().ID, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 1 || limited[0].Count != 3 {
		t.Errorf("limit 1 returned %+v", limited)
	}
}

func TestSessionsAreIsolated(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "journal.db")

	first := openTestJournal(t, path, "0")
	if err := first.RecordAlert(ctx, time.Now(), 1); err != nil {
		t.Fatal(err)
	}
	first.Close()

	second := openTestJournal(t, path, "rtsp://cam/stream")
	if second.Session().ID == first.Session().ID {
		t.Fatal("each Open should start a new session")
	}

	events, err := second.List(ctx, second.Session().ID, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 0 {
		t.Errorf("new session should be empty, got %d events", len(events))
	}

	old, err := second.List(ctx, first.Session().ID, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(old) != 1 {
		t.Errorf("previous session should keep its event, got %d", len(old))
	}

	sessions, err := second.Sessions(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 2 || sessions[0].Source != "rtsp://cam/stream" {
		t.Errorf("unexpected sessions %+v", sessions)
	}
}

func TestWriteHistoryShowsLatestSession(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "journal.db")

	old := openTestJournal(t, path, "0")
	if err := old.RecordAlert(ctx, time.Now(), 9); err != nil {
		t.Fatal(err)
	}
	old.Close()

	latest := openTestJournal(t, path, "rtsp://cam/stream")
	t0 := time.Date(2024, 6, 1, 8, 0, 0, 0, time.Local)
	if err := latest.RecordAlert(ctx, t0, 1); err != nil {
		t.Fatal(err)
	}
	if err := latest.RecordSnapshot(ctx, t0.Add(time.Second), 2, "detected_frames/detected_20240601_080001.jpg"); err != nil {
		t.Fatal(err)
	}
	latest.Close()

	history, err := OpenHistory(ctx, path, nil)
	if err != nil {
		t.Fatalf("OpenHistory failed: %v", err)
	}
	defer history.Close()

	var buf bytes.Buffer
	if err := history.WriteHistory(ctx, &buf, 10); err != nil {
		t.Fatalf("WriteHistory failed: %v", err)
	}
	out := buf.String()
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header and 2 events, got:\n%s", out)
	}
	if !strings.Contains(lines[0], "rtsp://cam/stream") || !strings.Contains(lines[0], "2 events") {
		t.Errorf("header = %q", lines[0])
	}
	if !strings.Contains(lines[1], "snapshot") || !strings.Contains(lines[1], "people=2") ||
		!strings.HasSuffix(lines[1], "detected_20240601_080001.jpg") {
		t.Errorf("newest event line = %q", lines[1])
	}
	if !strings.Contains(lines[2], "2024-06-01 08:00:00") || !strings.Contains(lines[2], "alert") {
		t.Errorf("oldest event line = %q", lines[2])
	}
	if strings.Contains(out, "people=9") {
		t.Error("events of older sessions should not be shown")
	}

	sessions, err := history.Sessions(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 2 {
		t.Errorf("OpenHistory must not start a session, found %d", len(sessions))
	}
}

func TestWriteHistoryEmpty(t *testing.T) {
	history, err := OpenHistory(context.Background(), filepath.Join(t.TempDir(), "journal.db"), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer history.Close()

	var buf bytes.Buffer
	if err := history.WriteHistory(context.Background(), &buf, 10); err != nil {
		t.Fatal(err)
	}
	if got := strings.TrimSpace(buf.String()); got != "No recorded sessions" {
		t.Errorf("WriteHistory = %q", got)
	}
}
