package generation

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/kalambet/previouslives/internal/engine"
	"github.com/kalambet/previouslives/internal/imaging"
)

const (
	BackendAPI     = "api"
	BackendProcess = "process"
)

// Config selects and parameterizes exactly one backend.
type Config struct {
	Backend string
	Gender  string
	Timeout time.Duration

	Engine engine.SelectConfig
	Model  string

	StabilityAPIKey  string
	StabilityBaseURL string

	Interpreter string
	Script      string
}

// New builds the Generator named by cfg.Backend.
func New(cfg Config, logger *slog.Logger) (Generator, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch cfg.Backend {
	case "", BackendAPI:
		eng, err := engine.Select(cfg.Engine)
		if err != nil {
			return nil, err
		}
		g := &APIGenerator{
			Engine:  eng,
			Model:   cfg.Model,
			Gender:  cfg.Gender,
			Timeout: cfg.Timeout,
			Logger:  logger,
		}
		if cfg.StabilityAPIKey != "" {
			g.Editor = imaging.NewEditor(cfg.StabilityAPIKey, cfg.StabilityBaseURL)
		}
		return g, nil

	case BackendProcess:
		if cfg.Script == "" {
			return nil, fmt.Errorf("process backend requires a script path")
		}
		return &ProcessGenerator{
			Interpreter: cfg.Interpreter,
			Script:      cfg.Script,
			Timeout:     cfg.Timeout,
			Logger:      logger,
		}, nil

	default:
		return nil, fmt.Errorf("unknown generation backend %q", cfg.Backend)
	}
}
