package pipeline

import (
	"context"
	"sync/atomic"
	"time"
)

// Outcome is the terminal result of a capture task.
type Outcome struct {
	TaskID string `json:"task_id"`
	State  State  `json:"-"`
	// PersistedID is the row inserted by the pipeline; zero if the insert failed.
	PersistedID int64 `json:"persisted_id,omitempty"`
	// ConfirmedID is the row reported by the generator, if it wrote one.
	ConfirmedID int64 `json:"confirmed_id,omitempty"`
	// RecordID is the ID handed to the viewer.
	RecordID   int64     `json:"record_id,omitempty"`
	Profession string    `json:"profession"`
	Age        int       `json:"age"`
	Started    time.Time `json:"started"`
	Finished   time.Time `json:"finished"`
	// Err is set when State is StateFailed.
	Err error `json:"-"`
	// HandoffErr is set when the viewer rejected a completed record. It does
	// not change State.
	HandoffErr error `json:"-"`
}

// Task tracks one capture running in the background.
type Task struct {
	ID         string
	Profession string
	Age        int
	Started    time.Time

	state   atomic.Int32
	done    chan struct{}
	outcome Outcome
}

func newTask(id, profession string, age int, started time.Time) *Task {
	t := &Task{
		ID:         id,
		Profession: profession,
		Age:        age,
		Started:    started,
		done:       make(chan struct{}),
	}
	t.state.Store(int32(StateCaptured))
	return t
}

// State returns the current state.
func (t *Task) State() State {
	return State(t.state.Load())
}

// advance moves the task forward; it never goes back.
func (t *Task) advance(s State) {
	for {
		cur := t.state.Load()
		if int32(s) <= cur {
			return
		}
		if t.state.CompareAndSwap(cur, int32(s)) {
			return
		}
	}
}

// Done is closed once the task reaches a terminal state.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the task finishes or ctx is done. The returned error is
// ctx.Err() or the outcome's failure.
func (t *Task) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-t.done:
		return t.outcome, t.outcome.Err
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

// Outcome returns the result without blocking; false while still running.
func (t *Task) Outcome() (Outcome, bool) {
	select {
	case <-t.done:
		return t.outcome, true
	default:
		return Outcome{}, false
	}
}

func (t *Task) finish(o Outcome) {
	t.outcome = o
	t.advance(o.State)
	close(t.done)
}
