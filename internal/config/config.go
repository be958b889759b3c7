package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator"
)

const keychainService = "previouslives"

type Config struct {
	Server     ServerConfig
	Storage    StorageConfig
	Log        LogConfig
	Generation GenerationConfig
	API        APIConfig
	Ollama     OllamaConfig
	Imaging    ImagingConfig
	Process    ProcessConfig
	Frame      FrameConfig
	MCP        MCPConfig
	Archive    ArchiveConfig
}

type ServerConfig struct {
	Port  int `validate:"min=1,max=65535"`
	Token string
}

type StorageConfig struct {
	DataDir string `validate:"required"`
}

type LogConfig struct {
	Level string `validate:"oneof=debug info warn error"`
}

type GenerationConfig struct {
	Backend  string        `validate:"oneof=api process"`
	Gender   string        `validate:"required"`
	IDPolicy string        `validate:"oneof=confirmed persisted"`
	Timeout  time.Duration `validate:"gt=0"`
}

type APIConfig struct {
	Provider     string `validate:"oneof=openai ollama"`
	BaseURL      string `validate:"omitempty,url"`
	Model        string
	OpenAIAPIKey string
}

type OllamaConfig struct {
	BaseURL string `validate:"url"`
	Model   string
}

type ImagingConfig struct {
	BaseURL         string `validate:"omitempty,url"`
	StabilityAPIKey string
}

type ProcessConfig struct {
	Interpreter string `validate:"required"`
	Script      string
}

type FrameConfig struct {
	Device      string
	InputFormat string
	FPS         int `validate:"min=0,max=60"`
	// WatchFile replaces the camera with a file or directory of images.
	WatchFile string
}

type MCPConfig struct {
	Enabled bool
}

type ArchiveConfig struct {
	Dir         string
	S3Bucket    string
	S3Prefix    string
	S3Region    string
	S3Endpoint  string `validate:"omitempty,url"`
	S3AccessKey string
	S3SecretKey string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4100,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level: "info",
		},
		Generation: GenerationConfig{
			Backend:  "api",
			Gender:   "male",
			IDPolicy: "confirmed",
			Timeout:  2 * time.Minute,
		},
		API: APIConfig{
			Provider: "openai",
			Model:    "gpt-3.5-turbo",
		},
		Ollama: OllamaConfig{
			BaseURL: "http://localhost:11434",
			Model:   "llama3.2",
		},
		Process: ProcessConfig{
			Interpreter: "python3",
		},
		Frame: FrameConfig{
			Device:      defaultDevice(),
			InputFormat: defaultInputFormat(),
			FPS:         5,
		},
		Archive: ArchiveConfig{
			S3Region: "us-east-1",
		},
	}
}

// Load reads configuration from the platform-native backend, environment
// variables, and platform secret store.
//
// On macOS the backend is UserDefaults (domain: com.previouslives.app) and
// secrets fall back to macOS Keychain.
// On Linux the backend is a JSON file at
// $XDG_CONFIG_HOME/previouslives/config.json and secrets fall back to
// $XDG_DATA_HOME/previouslives/secrets.json.
//
// Environment variables (PREVIOUSLIVES_*) override backend values on all
// platforms.
func Load() (Config, error) {
	return loadWith(newPlatformBackend(), keychainReader{})
}

// keychain abstracts secret store access for testing.
type keychain interface {
	Get(service, account string) (string, error)
}

func loadWith(b ConfigBackend, kc keychain) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)
	applySecrets(&cfg, kc)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applySecrets fills secrets not set in the environment from the secret store.
func applySecrets(cfg *Config, kc keychain) {
	for _, s := range specs {
		if !s.secret || s.extract(*cfg).(string) != "" {
			continue
		}
		if v, err := kc.Get(keychainService, s.key); err == nil && v != "" {
			s.apply(cfg, v)
		}
	}
}

// Validate checks field constraints.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if (c.Archive.S3AccessKey == "") != (c.Archive.S3SecretKey == "") {
		return errors.New("invalid config: archive.s3_access_key and archive.s3_secret_key must be set together")
	}
	return nil
}

// CheckGeneration reports settings the selected generation backend needs
// but does not have. Commands that only read the store skip it.
func (c Config) CheckGeneration() error {
	switch c.Generation.Backend {
	case "api":
		if c.API.Provider == "openai" && c.API.OpenAIAPIKey == "" {
			return fmt.Errorf("missing required config: OpenAI API key. "+
				"Set it via environment variable PREVIOUSLIVES_OPENAI_API_KEY%s", secretHint("api.openai_api_key"))
		}
	case "process":
		if c.Process.Script == "" {
			return errors.New("missing required config: process.script must name the generation script")
		}
	}
	return nil
}

// keychainReader reads from the platform secret store.
type keychainReader struct{}

func (keychainReader) Get(service, account string) (string, error) {
	out, err := keychainGet(service, account)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
