package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind. Used by
// [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm":           {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"transcription": {"deepgram", "whispercpp"},
	"stt":           {"deepgram", "whisper"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults fills in the fixed defaults named in §6.6.
func applyDefaults(cfg *Config) {
	if cfg.Stream.Name == "" {
		cfg.Stream.Name = "eq-interactions-stream-dev"
	}
	if cfg.Bus.Name == "" {
		cfg.Bus.Name = "default"
	}
	if cfg.Bus.Source == "" {
		cfg.Bus.Source = "com.yourapp.transcription"
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "gpt-4o"
	}
	if cfg.STT.Name == "" {
		cfg.STT.Name = "deepgram"
	}
	if cfg.Upload.PresignTTLSeconds <= 0 {
		cfg.Upload.PresignTTLSeconds = 300
	}
	if cfg.Database.MaxOpenConns <= 0 {
		cfg.Database.MaxOpenConns = 5
	}
	if cfg.Database.MaxIdleConns <= 0 {
		cfg.Database.MaxIdleConns = 2
	}
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":8080"
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogLevelInfo
	}
	if cfg.Mock.TenantID == "" {
		cfg.Mock.TenantID = "00000000-0000-0000-0000-000000000000"
	}
	if cfg.Mock.UserID == "" {
		cfg.Mock.UserID = "dev-user"
	}
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	validateProviderName("llm", cfg.LLM.Name)
	validateProviderName("transcription", cfg.Transcription.Name)
	validateProviderName("stt", cfg.STT.Name)

	if cfg.Database.URL == "" {
		errs = append(errs, errors.New("database.url is required"))
	}

	if cfg.Auth.AllowLegacyHeaderAuth {
		slog.Warn("legacy header auth is enabled; this mode must not be used in production")
	} else if cfg.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("auth.jwt_secret is required unless auth.allow_legacy_header_auth is set"))
	}

	if cfg.Upload.BucketName == "" {
		slog.Warn("upload.bucket_name is empty; upload/init will fail until it is configured")
	}

	if cfg.SessionBuffer.URL == "" {
		slog.Warn("session_buffer.url is empty; falling back to an in-memory, single-instance session buffer")
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
