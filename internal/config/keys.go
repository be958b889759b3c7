package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
	kDuration
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "PREVIOUSLIVES_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.token", typ: kString, env: "PREVIOUSLIVES_API_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Server.Token = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.Token },
	},
	{
		key: "storage.data_dir", typ: kString, env: "PREVIOUSLIVES_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "log.level", typ: kString, env: "PREVIOUSLIVES_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "generation.backend", typ: kString, env: "PREVIOUSLIVES_GENERATION_BACKEND",
		apply:   func(cfg *Config, v any) { cfg.Generation.Backend = v.(string) },
		extract: func(cfg Config) any { return cfg.Generation.Backend },
	},
	{
		key: "generation.gender", typ: kString, env: "PREVIOUSLIVES_GENERATION_GENDER",
		apply:   func(cfg *Config, v any) { cfg.Generation.Gender = v.(string) },
		extract: func(cfg Config) any { return cfg.Generation.Gender },
	},
	{
		key: "generation.id_policy", typ: kString, env: "PREVIOUSLIVES_GENERATION_ID_POLICY",
		apply:   func(cfg *Config, v any) { cfg.Generation.IDPolicy = v.(string) },
		extract: func(cfg Config) any { return cfg.Generation.IDPolicy },
	},
	{
		key: "generation.timeout", typ: kDuration, env: "PREVIOUSLIVES_GENERATION_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Generation.Timeout = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Generation.Timeout },
	},
	{
		key: "api.provider", typ: kString, env: "PREVIOUSLIVES_API_PROVIDER",
		apply:   func(cfg *Config, v any) { cfg.API.Provider = v.(string) },
		extract: func(cfg Config) any { return cfg.API.Provider },
	},
	{
		key: "api.base_url", typ: kString, env: "PREVIOUSLIVES_API_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.API.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.API.BaseURL },
	},
	{
		key: "api.model", typ: kString, env: "PREVIOUSLIVES_API_MODEL",
		apply:   func(cfg *Config, v any) { cfg.API.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.API.Model },
	},
	{
		key: "api.openai_api_key", typ: kString, env: "PREVIOUSLIVES_OPENAI_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.API.OpenAIAPIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.API.OpenAIAPIKey },
	},
	{
		key: "ollama.base_url", typ: kString, env: "PREVIOUSLIVES_OLLAMA_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.BaseURL },
	},
	{
		key: "ollama.model", typ: kString, env: "PREVIOUSLIVES_OLLAMA_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.Model },
	},
	{
		key: "imaging.base_url", typ: kString, env: "PREVIOUSLIVES_IMAGING_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Imaging.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Imaging.BaseURL },
	},
	{
		key: "imaging.stability_api_key", typ: kString, env: "PREVIOUSLIVES_STABILITY_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Imaging.StabilityAPIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Imaging.StabilityAPIKey },
	},
	{
		key: "process.interpreter", typ: kString, env: "PREVIOUSLIVES_PROCESS_INTERPRETER",
		apply:   func(cfg *Config, v any) { cfg.Process.Interpreter = v.(string) },
		extract: func(cfg Config) any { return cfg.Process.Interpreter },
	},
	{
		key: "process.script", typ: kString, env: "PREVIOUSLIVES_PROCESS_SCRIPT",
		apply:   func(cfg *Config, v any) { cfg.Process.Script = v.(string) },
		extract: func(cfg Config) any { return cfg.Process.Script },
	},
	{
		key: "frame.device", typ: kString, env: "PREVIOUSLIVES_FRAME_DEVICE",
		apply:   func(cfg *Config, v any) { cfg.Frame.Device = v.(string) },
		extract: func(cfg Config) any { return cfg.Frame.Device },
	},
	{
		key: "frame.input_format", typ: kString, env: "PREVIOUSLIVES_FRAME_INPUT_FORMAT",
		apply:   func(cfg *Config, v any) { cfg.Frame.InputFormat = v.(string) },
		extract: func(cfg Config) any { return cfg.Frame.InputFormat },
	},
	{
		key: "frame.fps", typ: kInt, env: "PREVIOUSLIVES_FRAME_FPS",
		apply:   func(cfg *Config, v any) { cfg.Frame.FPS = v.(int) },
		extract: func(cfg Config) any { return cfg.Frame.FPS },
	},
	{
		key: "frame.watch_file", typ: kString, env: "PREVIOUSLIVES_FRAME_WATCH_FILE",
		apply:   func(cfg *Config, v any) { cfg.Frame.WatchFile = v.(string) },
		extract: func(cfg Config) any { return cfg.Frame.WatchFile },
	},
	{
		key: "mcp.enabled", typ: kBool, env: "PREVIOUSLIVES_MCP_ENABLED",
		apply:   func(cfg *Config, v any) { cfg.MCP.Enabled = v.(bool) },
		extract: func(cfg Config) any { return cfg.MCP.Enabled },
	},
	{
		key: "archive.dir", typ: kString, env: "PREVIOUSLIVES_ARCHIVE_DIR",
		apply:   func(cfg *Config, v any) { cfg.Archive.Dir = v.(string) },
		extract: func(cfg Config) any { return cfg.Archive.Dir },
	},
	{
		key: "archive.s3_bucket", typ: kString, env: "PREVIOUSLIVES_ARCHIVE_S3_BUCKET",
		apply:   func(cfg *Config, v any) { cfg.Archive.S3Bucket = v.(string) },
		extract: func(cfg Config) any { return cfg.Archive.S3Bucket },
	},
	{
		key: "archive.s3_prefix", typ: kString, env: "PREVIOUSLIVES_ARCHIVE_S3_PREFIX",
		apply:   func(cfg *Config, v any) { cfg.Archive.S3Prefix = v.(string) },
		extract: func(cfg Config) any { return cfg.Archive.S3Prefix },
	},
	{
		key: "archive.s3_region", typ: kString, env: "PREVIOUSLIVES_ARCHIVE_S3_REGION",
		apply:   func(cfg *Config, v any) { cfg.Archive.S3Region = v.(string) },
		extract: func(cfg Config) any { return cfg.Archive.S3Region },
	},
	{
		key: "archive.s3_endpoint", typ: kString, env: "PREVIOUSLIVES_ARCHIVE_S3_ENDPOINT",
		apply:   func(cfg *Config, v any) { cfg.Archive.S3Endpoint = v.(string) },
		extract: func(cfg Config) any { return cfg.Archive.S3Endpoint },
	},
	{
		key: "archive.s3_access_key", typ: kString, env: "PREVIOUSLIVES_ARCHIVE_S3_ACCESS_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Archive.S3AccessKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Archive.S3AccessKey },
	},
	{
		key: "archive.s3_secret_key", typ: kString, env: "PREVIOUSLIVES_ARCHIVE_S3_SECRET_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Archive.S3SecretKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Archive.S3SecretKey },
	},
}

func lookupSpec(key string) (keySpec, bool) {
	for _, s := range specs {
		if s.key == key {
			return s, true
		}
	}
	return keySpec{}, false
}

// parse converts raw into the key's value type.
func (s keySpec) parse(raw string) (any, error) {
	switch s.typ {
	case kInt:
		return strconv.Atoi(raw)
	case kBool:
		return strconv.ParseBool(raw)
	case kDuration:
		return time.ParseDuration(raw)
	default:
		return raw, nil
	}
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kBool, kDuration:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if !ok || v == "" {
				continue
			}
			if pv, err := s.parse(v); err == nil {
				s.apply(cfg, pv)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse config key %s=%q: %v. Using default value.\n", s.key, v, err)
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		v, err := s.parse(raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] could not parse env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			continue
		}
		s.apply(cfg, v)
	}
}
