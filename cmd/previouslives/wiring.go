package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kalambet/previouslives/internal/config"
	"github.com/kalambet/previouslives/internal/engine"
	"github.com/kalambet/previouslives/internal/frame"
	"github.com/kalambet/previouslives/internal/generation"
	"github.com/kalambet/previouslives/internal/pipeline"
	"github.com/kalambet/previouslives/internal/storage"
	"github.com/kalambet/previouslives/internal/viewer"
)

// generationConfig maps user configuration onto the generation factory.
func generationConfig(cfg config.Config) generation.Config {
	model := cfg.API.Model
	if cfg.API.Provider == engine.ProviderOllama {
		model = cfg.Ollama.Model
	}
	return generation.Config{
		Backend: cfg.Generation.Backend,
		Gender:  cfg.Generation.Gender,
		Timeout: cfg.Generation.Timeout,
		Engine: engine.SelectConfig{
			Provider:      cfg.API.Provider,
			OpenAIBaseURL: cfg.API.BaseURL,
			OpenAIAPIKey:  cfg.API.OpenAIAPIKey,
			OllamaBaseURL: cfg.Ollama.BaseURL,
		},
		Model:            model,
		StabilityAPIKey:  cfg.Imaging.StabilityAPIKey,
		StabilityBaseURL: cfg.Imaging.BaseURL,
		Interpreter:      cfg.Process.Interpreter,
		Script:           cfg.Process.Script,
	}
}

// buildGenerator creates the configured generator. For the API backend the
// chat engine is probed first; an unreachable engine is reported but not
// fatal, since every capture reports its own availability failure.
func buildGenerator(ctx context.Context, cfg config.Config, logger *slog.Logger) (generation.Generator, error) {
	if err := cfg.CheckGeneration(); err != nil {
		return nil, err
	}
	gen, err := generation.New(generationConfig(cfg), logger)
	if err != nil {
		return nil, fmt.Errorf("building generator: %w", err)
	}

	if g, ok := gen.(*generation.APIGenerator); ok {
		if err := engine.EnsureReady(ctx, g.Engine, g.Model, logWriter{logger}); err != nil {
			printWarning("%v", err)
		}
	}
	return gen, nil
}

// buildViewer assembles the hand-off chain: log, in-memory latest, optional
// directory export and optional S3 archive.
func buildViewer(ctx context.Context, cfg config.Config, store *storage.Store, logger *slog.Logger) (viewer.Viewer, *viewer.Latest, error) {
	latest := &viewer.Latest{}
	chain := viewer.Multi{viewer.Log{Logger: logger}, latest}

	if cfg.Archive.Dir != "" {
		chain = append(chain, &viewer.Exporter{Store: store, Dir: cfg.Archive.Dir})
	}
	if cfg.Archive.S3Bucket != "" {
		archive, err := viewer.NewS3Archive(ctx, store, viewer.S3Config{
			Bucket:    cfg.Archive.S3Bucket,
			Prefix:    cfg.Archive.S3Prefix,
			Region:    cfg.Archive.S3Region,
			Endpoint:  cfg.Archive.S3Endpoint,
			AccessKey: cfg.Archive.S3AccessKey,
			SecretKey: cfg.Archive.S3SecretKey,
		})
		if err != nil {
			return nil, nil, err
		}
		chain = append(chain, archive)
	}
	return chain, latest, nil
}

// buildFeed returns the configured frame source, or nil when frames only
// arrive by upload.
func buildFeed(cfg config.Config, logger *slog.Logger) frame.Feed {
	switch {
	case cfg.Frame.WatchFile != "":
		return &frame.DirFeed{Path: cfg.Frame.WatchFile, Logger: logger}
	case cfg.Frame.Device != "":
		return &frame.FFmpegFeed{
			InputFormat: cfg.Frame.InputFormat,
			Device:      cfg.Frame.Device,
			FPS:         cfg.Frame.FPS,
			Logger:      logger,
		}
	default:
		return nil
	}
}

func buildPipeline(frames pipeline.FrameSource, store *storage.Store, gen generation.Generator, v viewer.Viewer, cfg config.Config, logger *slog.Logger) (*pipeline.Pipeline, error) {
	policy, ok := pipeline.ParseIDPolicy(cfg.Generation.IDPolicy)
	if !ok {
		return nil, fmt.Errorf("unknown id policy %q", cfg.Generation.IDPolicy)
	}
	return pipeline.New(frames, store, gen,
		pipeline.WithViewer(v),
		pipeline.WithIDPolicy(policy),
		pipeline.WithLogger(logger),
	), nil
}

// logWriter adapts progress output to the logger, one line per write.
type logWriter struct{ logger *slog.Logger }

func (w logWriter) Write(p []byte) (int, error) {
	w.logger.Info(string(trimNewline(p)))
	return len(p), nil
}

func trimNewline(p []byte) []byte {
	for len(p) > 0 && (p[len(p)-1] == '\n' || p[len(p)-1] == '\r') {
		p = p[:len(p)-1]
	}
	return p
}
