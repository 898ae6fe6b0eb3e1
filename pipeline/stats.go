package pipeline

import (
	"sync"
	"time"
)

// Stats tracks counters for the whole run and for the current report window
type Stats struct {
	mu sync.Mutex

	startTime      time.Time
	lastReportTime time.Time

	// totals
	frames       int64
	detections   int64
	alerts       int64
	snapshots    int64
	readFailures int64
	reconnects   int64
	errors       int64

	// report window
	windowFrames    int64
	detectTimeTotal time.Duration
	detectCount     int64
}

// Summary is a point-in-time copy of Stats
type Summary struct {
	Frames       int64
	Detections   int64
	Alerts       int64
	Snapshots    int64
	ReadFailures int64
	Reconnects   int64
	Errors       int64
	Uptime       time.Duration
}

// Window covers the frames since the previous report
type Window struct {
	ProcessFPS float64
	AvgDetect  time.Duration
}

// NewStats starts tracking at now
func NewStats(now time.Time) *Stats {
	return &Stats{
		startTime:      now,
		lastReportTime: now,
	}
}

// UpdateDetect records one processed frame, its inference time and the
// number of people found
func (s *Stats) UpdateDetect(duration time.Duration, count int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames++
	s.windowFrames++
	s.detections += int64(count)
	s.detectTimeTotal += duration
	s.detectCount++
}

// UpdateAlert counts a fired alert
func (s *Stats) UpdateAlert() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts++
}

// UpdateSnapshot counts a saved frame
func (s *Stats) UpdateSnapshot() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots++
}

// UpdateReadFailure counts a failed frame read
func (s *Stats) UpdateReadFailure() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readFailures++
}

// UpdateReconnect counts a successful reconnect
func (s *Stats) UpdateReconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reconnects++
}

// UpdateError counts a failed iteration
func (s *Stats) UpdateError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors++
}

// Summary returns the run totals
func (s *Stats) Summary(now time.Time) Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Summary{
		Frames:       s.frames,
		Detections:   s.detections,
		Alerts:       s.alerts,
		Snapshots:    s.snapshots,
		ReadFailures: s.readFailures,
		Reconnects:   s.reconnects,
		Errors:       s.errors,
		Uptime:       now.Sub(s.startTime),
	}
}

// ReportDue reports whether interval has passed since the last window
func (s *Stats) ReportDue(now time.Time, interval time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return interval > 0 && now.Sub(s.lastReportTime) >= interval
}

// TakeWindow returns the window rates and starts a new window
func (s *Stats) TakeWindow(now time.Time) Window {
	s.mu.Lock()
	defer s.mu.Unlock()

	var w Window
	if elapsed := now.Sub(s.lastReportTime).Seconds(); elapsed > 0 {
		w.ProcessFPS = float64(s.windowFrames) / elapsed
	}
	if s.detectCount > 0 {
		w.AvgDetect = s.detectTimeTotal / time.Duration(s.detectCount)
	}

	s.windowFrames = 0
	s.detectTimeTotal = 0
	s.detectCount = 0
	s.lastReportTime = now
	return w
}
