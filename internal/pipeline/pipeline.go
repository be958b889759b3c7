// Package pipeline runs a capture from frame to finished record: persist the
// raw image, generate a past life for it, finalize the record and hand it to
// the viewer.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/previouslives/internal/frame"
	"github.com/kalambet/previouslives/internal/generation"
	"github.com/kalambet/previouslives/internal/imaging"
	"github.com/kalambet/previouslives/internal/storage"
	"github.com/kalambet/previouslives/internal/viewer"
)

var (
	ErrBusy    = errors.New("a capture is already in progress")
	ErrNoFrame = errors.New("no frame available")
)

const maxTrackedTasks = 64

// FrameSource provides the most recent camera frame.
type FrameSource interface {
	Latest() (frame.Frame, bool)
}

// RecordStore is the persistence the pipeline needs.
type RecordStore interface {
	Insert(ctx context.Context, timestamp int64, rawImage []byte) (int64, error)
	Update(ctx context.Context, id int64, u storage.RecordUpdate) error
	Path() string
}

// Pipeline orchestrates captures. Only one capture runs at a time.
type Pipeline struct {
	frames    FrameSource
	store     RecordStore
	generator generation.Generator
	viewer    viewer.Viewer
	policy    IDPolicy
	now       func() time.Time
	rng       *rand.Rand
	logger    *slog.Logger

	busy atomic.Bool
	wg   sync.WaitGroup

	mu    sync.Mutex
	tasks map[string]*Task
	order []string
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithViewer sets the hand-off target for completed records.
func WithViewer(v viewer.Viewer) Option {
	return func(p *Pipeline) { p.viewer = v }
}

// WithIDPolicy sets which ID is handed off for confirmed results.
func WithIDPolicy(policy IDPolicy) Option {
	return func(p *Pipeline) { p.policy = policy }
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// WithRand overrides the profession and age source.
func WithRand(r *rand.Rand) Option {
	return func(p *Pipeline) { p.rng = r }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// New creates a Pipeline. frames may be nil when only CaptureImage is used.
func New(frames FrameSource, store RecordStore, gen generation.Generator, opts ...Option) *Pipeline {
	p := &Pipeline{
		frames:    frames,
		store:     store,
		generator: gen,
		viewer:    viewer.Log{},
		policy:    PreferConfirmed,
		now:       time.Now,
		rng:       rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		logger:    slog.Default(),
		tasks:     make(map[string]*Task),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Capture takes the latest frame and starts processing it in the background.
// It fails immediately with ErrBusy or ErrNoFrame; otherwise the returned
// task reports progress and the final outcome.
func (p *Pipeline) Capture(ctx context.Context) (*Task, error) {
	if !p.busy.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}

	var (
		f  frame.Frame
		ok bool
	)
	if p.frames != nil {
		f, ok = p.frames.Latest()
	}
	if !ok {
		p.busy.Store(false)
		return nil, ErrNoFrame
	}
	return p.start(ctx, f.Data), nil
}

// CaptureImage runs the pipeline on a supplied image instead of the latest frame.
func (p *Pipeline) CaptureImage(ctx context.Context, raw []byte) (*Task, error) {
	if !p.busy.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	if len(raw) == 0 {
		p.busy.Store(false)
		return nil, ErrNoFrame
	}
	return p.start(ctx, raw), nil
}

// Busy reports whether a capture is in flight.
func (p *Pipeline) Busy() bool {
	return p.busy.Load()
}

// Task looks up a recent task by ID.
func (p *Pipeline) Task(id string) (*Task, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.tasks[id]
	return t, ok
}

// Drain waits for the in-flight capture, if any, to finish.
func (p *Pipeline) Drain() {
	p.wg.Wait()
}

// start is called with the busy flag held. The flag is released when the
// task ends, including when the capture panics.
func (p *Pipeline) start(ctx context.Context, raw []byte) *Task {
	profession, age := Pick(p.rng)
	task := newTask(uuid.NewString(), profession, age, p.now())
	p.track(task)

	// The work outlives the caller's request but keeps its values.
	bg := context.WithoutCancel(ctx)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		var out Outcome
		defer func() {
			if r := recover(); r != nil {
				out = p.panicked(task, r)
			}
			// busy is cleared before done closes.
			p.busy.Store(false)
			task.finish(out)
		}()
		out = p.run(bg, task, p.normalize(raw))
	}()
	return task
}

// normalize converts the frame to PNG. Frames that cannot be decoded, or are
// too large to decode, are stored as they arrived.
func (p *Pipeline) normalize(raw []byte) (img []byte) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Warn("frame normalization panicked; storing frame as-is", "panic", r)
			img = raw
		}
	}()
	img, err := imaging.NormalizePNG(raw)
	if err != nil {
		p.logger.Debug("storing frame without normalization", "error", err)
		return raw
	}
	return img
}

func (p *Pipeline) panicked(task *Task, r any) Outcome {
	err := fmt.Errorf("capture panicked: %v", r)
	p.logger.Error("capture failed", "task_id", task.ID, "error", err)
	return Outcome{
		TaskID:     task.ID,
		State:      StateFailed,
		Profession: task.Profession,
		Age:        task.Age,
		Started:    task.Started,
		Finished:   p.now(),
		Err:        err,
	}
}

func (p *Pipeline) run(ctx context.Context, task *Task, img []byte) Outcome {
	log := p.logger.With("task_id", task.ID)
	out := Outcome{
		TaskID:     task.ID,
		Profession: task.Profession,
		Age:        task.Age,
		Started:    task.Started,
	}
	fail := func(err error) Outcome {
		out.State = StateFailed
		out.Err = err
		out.Finished = p.now()
		log.Error("capture failed", "record_id", out.PersistedID, "error", err)
		return out
	}

	id, err := p.store.Insert(ctx, p.now().Unix(), img)
	if err != nil {
		return fail(fmt.Errorf("persisting capture: %w", err))
	}
	out.PersistedID = id
	task.advance(StatePersisted)
	log.Info("capture persisted", "record_id", id, "bytes", len(img))

	task.advance(StateGenerating)
	log.Info("generating past life", "record_id", id, "profession", task.Profession, "age", task.Age)
	res, err := p.generator.Generate(ctx, generation.Request{
		RawImage:   img,
		Profession: task.Profession,
		Age:        task.Age,
		StorePath:  p.store.Path(),
	})
	if err != nil {
		return fail(err)
	}

	switch res.Kind {
	case generation.ResultNarrative:
		upd := storage.RecordUpdate{Description: &res.Narrative}
		if len(res.EditedImage) > 0 {
			upd.EditedImage = res.EditedImage
		}
		if err := p.store.Update(ctx, id, upd); err != nil {
			return fail(fmt.Errorf("finalizing record %d: %w", id, err))
		}
		out.RecordID = id
	case generation.ResultConfirmed:
		out.ConfirmedID = res.RecordID
		out.RecordID = res.RecordID
		if p.policy == PreferPersisted {
			out.RecordID = id
		}
	default:
		return fail(&generation.Error{Kind: generation.ErrFailed, Err: fmt.Errorf("unexpected result kind %v", res.Kind)})
	}

	out.State = StateCompleted
	out.Finished = p.now()
	log.Info("capture completed", "record_id", out.RecordID, "persisted_id", id, "confirmed_id", out.ConfirmedID)

	h := viewer.Handoff{StorePath: p.store.Path(), RecordID: out.RecordID}
	if err := p.viewer.Show(ctx, h); err != nil {
		out.HandoffErr = err
		log.Warn("viewer hand-off failed", "record_id", out.RecordID, "error", err)
	}
	return out
}

func (p *Pipeline) track(t *Task) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.tasks[t.ID] = t
	p.order = append(p.order, t.ID)
	if len(p.order) > maxTrackedTasks {
		delete(p.tasks, p.order[0])
		p.order = p.order[1:]
	}
}
