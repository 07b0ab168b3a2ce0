// Package diag carries best-effort diagnostic lines out of the capture path.
package diag

import (
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
)

// Sink accepts diagnostic lines. Notice must not block for long: it may be
// called while a decoder holds its critical section.
type Sink interface {
	Notice(format string, args ...any)
}

// Discard drops every line.
var Discard Sink = discard{}

type discard struct{}

func (discard) Notice(string, ...any) {}

// LogSink queues lines for a background goroutine that writes them to a
// logger. When the queue is full the line is dropped and counted.
type LogSink struct {
	logger  *log.Logger
	lines   chan string
	dropped atomic.Uint64

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewLogSink starts a LogSink holding up to capacity queued lines.
func NewLogSink(logger *log.Logger, capacity int) *LogSink {
	if capacity < 1 {
		capacity = 1
	}
	s := &LogSink{
		logger: logger,
		lines:  make(chan string, capacity),
		done:   make(chan struct{}),
	}
	go s.run()
	return s
}

// Notice queues a formatted line without blocking.
func (s *LogSink) Notice(format string, args ...any) {
	line := fmt.Sprintf(format, args...)

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.dropped.Add(1)
		return
	}
	select {
	case s.lines <- line:
	default:
		s.dropped.Add(1)
	}
}

// Dropped returns how many lines were discarded.
func (s *LogSink) Dropped() uint64 {
	return s.dropped.Load()
}

// Close flushes queued lines and stops the writer.
func (s *LogSink) Close() error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.lines)
	}
	s.mu.Unlock()

	<-s.done
	return nil
}

func (s *LogSink) run() {
	defer close(s.done)
	for line := range s.lines {
		s.logger.Print(line)
	}
}

// FakeSink records lines for test assertions.
type FakeSink struct {
	mu    sync.Mutex
	Lines []string
}

// Notice records the formatted line.
func (f *FakeSink) Notice(format string, args ...any) {
	f.mu.Lock()
	f.Lines = append(f.Lines, fmt.Sprintf(format, args...))
	f.mu.Unlock()
}

// Count returns how many recorded lines contain substr.
func (f *FakeSink) Count(substr string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := 0
	for _, l := range f.Lines {
		if strings.Contains(l, substr) {
			n++
		}
	}
	return n
}

// Last returns the most recent line, or "" if none.
func (f *FakeSink) Last() string {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.Lines) == 0 {
		return ""
	}
	return f.Lines[len(f.Lines)-1]
}
