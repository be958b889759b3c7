package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/kalambet/previouslives/internal/engine"
)

const DefaultModel = "gpt-3.5-turbo"

// ImageEditor produces an edited rendition of the captured frame.
type ImageEditor interface {
	Edit(ctx context.Context, image []byte, profession string, age int) ([]byte, error)
}

// APIGenerator asks a chat engine for the narrative and, when an editor is
// set, an image service for the edited frame. The caller persists both.
type APIGenerator struct {
	Engine engine.Engine
	Model  string
	Gender string
	// Editor is optional; without it EditedImage stays empty.
	Editor ImageEditor
	// Timeout bounds the whole call; zero means no limit beyond ctx.
	Timeout time.Duration
	Logger  *slog.Logger
}

func (g *APIGenerator) Generate(ctx context.Context, req Request) (Result, error) {
	log := g.logger()
	model := g.Model
	if model == "" {
		model = DefaultModel
	}

	if g.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.Timeout)
		defer cancel()
	}

	prompt := BuildPrompt(g.Gender, req.Profession, req.Age)
	text, err := g.Engine.Chat(ctx, model, []engine.Message{{Role: "user", Content: prompt}})
	if err != nil {
		return Result{}, classify(fmt.Errorf("chat completion: %w", err))
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return Result{}, &Error{Kind: ErrFailed, Err: errors.New("empty completion")}
	}

	res := Result{Kind: ResultNarrative, Narrative: text}
	if g.Editor == nil {
		return res, nil
	}

	edited, err := g.Editor.Edit(ctx, req.RawImage, req.Profession, req.Age)
	if err != nil {
		return Result{}, classify(fmt.Errorf("image edit: %w", err))
	}
	log.Debug("edited image received", "bytes", len(edited))
	res.EditedImage = edited
	return res, nil
}

func (g *APIGenerator) logger() *slog.Logger {
	if g.Logger != nil {
		return g.Logger
	}
	return slog.Default()
}

// classify maps a backend error onto a kind: anything that never got an
// answer from the remote side is Unavailable, everything else is Failed.
func classify(err error) *Error {
	var (
		urlErr *url.Error
		netErr net.Error
	)
	switch {
	case errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &urlErr),
		errors.As(err, &netErr):
		return &Error{Kind: ErrUnavailable, Err: err}
	default:
		return &Error{Kind: ErrFailed, Err: err}
	}
}
