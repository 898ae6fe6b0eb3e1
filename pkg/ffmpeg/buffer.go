package ffmpeg

import (
	"fmt"
	"sync"
	"time"
)

// OutputBuffer stores the most recent output lines of a child process
type OutputBuffer struct {
	lines    []string
	maxLines int
	index    int
	full     bool
	now      func() time.Time
	mutex    sync.RWMutex
}

// NewOutputBuffer creates a circular buffer holding up to maxLines lines
func NewOutputBuffer(maxLines int) *OutputBuffer {
	if maxLines < 1 {
		maxLines = 1
	}
	return &OutputBuffer{
		lines:    make([]string, maxLines),
		maxLines: maxLines,
		now:      time.Now,
	}
}

// Add stores a timestamped line, overwriting the oldest one when full
func (ob *OutputBuffer) Add(line string) {
	ob.mutex.Lock()
	defer ob.mutex.Unlock()

	ob.lines[ob.index] = fmt.Sprintf("[%s] %s", ob.now().Format("15:04:05.000"), line)
	ob.index = (ob.index + 1) % ob.maxLines
	if ob.index == 0 {
		ob.full = true
	}
}

// GetRecent returns the stored lines, oldest first
func (ob *OutputBuffer) GetRecent() []string {
	ob.mutex.RLock()
	defer ob.mutex.RUnlock()

	start, n := 0, ob.index
	if ob.full {
		start, n = ob.index, ob.maxLines
	}

	result := make([]string, 0, n)
	for i := 0; i < n; i++ {
		if line := ob.lines[(start+i)%ob.maxLines]; line != "" {
			result = append(result, line)
		}
	}
	return result
}

// Reset drops all stored lines
func (ob *OutputBuffer) Reset() {
	ob.mutex.Lock()
	defer ob.mutex.Unlock()

	for i := range ob.lines {
		ob.lines[i] = ""
	}
	ob.index = 0
	ob.full = false
}
