// Package frame acquires camera frames and keeps the most recent one
// available for capture.
package frame

import (
	"sync"
	"time"
)

// Frame is one published image. Data must not be modified after Put.
type Frame struct {
	Data []byte
	Seq  uint64
	At   time.Time
}

// Slot holds the latest frame. Writers replace it; readers get whatever was
// most recently published.
type Slot struct {
	mu    sync.Mutex
	frame Frame
	now   func() time.Time
}

// NewSlot returns an empty slot.
func NewSlot() *Slot {
	return &Slot{now: time.Now}
}

// Put publishes data as the latest frame and returns its sequence number.
// The slice is retained as-is; callers hand over ownership.
func (s *Slot) Put(data []byte) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.frame = Frame{Data: data, Seq: s.frame.Seq + 1, At: s.clock()}
	return s.frame.Seq
}

// Latest returns the most recent frame, or false if none was ever published.
func (s *Slot) Latest() (Frame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.frame.Seq == 0 || len(s.frame.Data) == 0 {
		return Frame{}, false
	}
	return s.frame, true
}

func (s *Slot) clock() time.Time {
	if s.now == nil {
		return time.Now()
	}
	return s.now()
}
