package modbus

import (
	"strings"
	"sync"
)

// StatusLog is an append-only record of exchange events, one line each.
// It is safe for concurrent use.
type StatusLog struct {
	mu      sync.Mutex
	entries []string
}

// Add appends one line.
func (s *StatusLog) Add(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, line)
}

// Entries returns a copy of all lines so far.
func (s *StatusLog) Entries() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.entries))
	copy(out, s.entries)
	return out
}

// Reset drops all lines.
func (s *StatusLog) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
}

// Len returns the number of lines.
func (s *StatusLog) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// String joins the lines, each terminated by a newline.
func (s *StatusLog) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.entries) == 0 {
		return ""
	}
	return strings.Join(s.entries, "\n") + "\n"
}
