// Package viewer hands finished capture records to whatever displays them.
package viewer

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// Handoff identifies a finished record for a viewer.
type Handoff struct {
	// StorePath is the datastore file the record lives in.
	StorePath string
	RecordID  int64
}

// Viewer receives hand-offs from the capture pipeline.
type Viewer interface {
	Show(ctx context.Context, h Handoff) error
}

// Func adapts a function to the Viewer interface.
type Func func(ctx context.Context, h Handoff) error

func (f Func) Show(ctx context.Context, h Handoff) error { return f(ctx, h) }

// Log records each hand-off at info level.
type Log struct {
	Logger *slog.Logger
}

func (l Log) Show(_ context.Context, h Handoff) error {
	log := l.Logger
	if log == nil {
		log = slog.Default()
	}
	log.Info("capture ready", "record_id", h.RecordID, "store", h.StorePath)
	return nil
}

// Latest remembers the most recent hand-off.
type Latest struct {
	mu   sync.RWMutex
	last Handoff
	ok   bool
}

func (l *Latest) Show(_ context.Context, h Handoff) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.last, l.ok = h, true
	return nil
}

// Get returns the last hand-off, or false if none happened yet.
func (l *Latest) Get() (Handoff, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.last, l.ok
}

// Multi fans a hand-off out to every viewer in order. All viewers are
// called even if one fails; the errors are joined.
type Multi []Viewer

func (m Multi) Show(ctx context.Context, h Handoff) error {
	var errs []error
	for _, v := range m {
		if v == nil {
			continue
		}
		if err := v.Show(ctx, h); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
