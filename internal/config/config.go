// Package config provides the configuration schema, loader, and provider
// registry for the ingestion gateway.
package config

// Config is the root configuration structure for the gateway. It is
// typically loaded from a YAML file using [Load] or [LoadFromReader] and
// checked with [Validate].
type Config struct {
	Server         ServerConfig         `yaml:"server"`
	Auth           AuthConfig           `yaml:"auth"`
	Upload         UploadConfig         `yaml:"upload"`
	Stream         StreamConfig         `yaml:"stream"`
	Bus            BusConfig            `yaml:"bus"`
	LLM            ProviderEntry        `yaml:"llm"`
	Transcription  ProviderEntry        `yaml:"transcription"`
	STT            ProviderEntry        `yaml:"stt"`
	Database       DatabaseConfig       `yaml:"database"`
	SessionBuffer  SessionBufferConfig  `yaml:"session_buffer"`
	Mock           MockConfig           `yaml:"mock"`
}

// ServerConfig holds network and logging settings for the HTTP server.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. Valid values: "debug", "info", "warn", "error".
	LogLevel LogLevel `yaml:"log_level"`
}

// LogLevel is a validated slog level name.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// IsValid reports whether l is one of the recognised level names.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		return true
	}
	return false
}

// AuthConfig configures §4.1 identity resolution: signed-token verification
// and the legacy dev-mode header fallback.
type AuthConfig struct {
	// JWTSecret is the shared HMAC-SHA256 secret for signed-token mode.
	JWTSecret string `yaml:"jwt_secret"`

	// JWTIssuer and JWTAudience are the required iss/aud claim values.
	JWTIssuer   string `yaml:"jwt_issuer"`
	JWTAudience string `yaml:"jwt_audience"`

	// AllowLegacyHeaderAuth enables the X-Tenant-ID/X-User-ID header mode.
	// Must be false in production.
	AllowLegacyHeaderAuth bool `yaml:"allow_legacy_header_auth"`
}

// UploadConfig configures the presigned-upload object store.
type UploadConfig struct {
	BucketName string `yaml:"bucket_name"`
	Region     string `yaml:"region"`

	// AccessKeyID and SecretAccessKey are optional; when empty the AWS SDK's
	// default credential chain (env vars, instance role, etc.) is used.
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`

	// PresignTTLSeconds defaults to 300 (5 minutes). The object store does not
	// read it: issued PUT URLs always use objectstore.PutURLTTL.
	PresignTTLSeconds int `yaml:"presign_ttl_seconds"`
}

// StreamConfig configures the partitioned ordered event stream (Kinesis).
type StreamConfig struct {
	Name   string `yaml:"name"`
	Region string `yaml:"region"`
}

// BusConfig configures the event-routing bus (EventBridge).
type BusConfig struct {
	Name   string `yaml:"name"`
	Region string `yaml:"region"`
	Source string `yaml:"source"`
}

// ProviderEntry is the common configuration block shared by the LLM,
// transcription, and STT provider slots. Name selects the registered factory.
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "openai", "deepgram").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "gpt-4o").
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by the
	// standard fields above.
	Options map[string]any `yaml:"options"`
}

// DatabaseConfig configures the relational persistence layer.
type DatabaseConfig struct {
	// URL is the Postgres DSN. Required.
	URL string `yaml:"url"`

	// MaxOpenConns defaults to 5. The pool does not read it: its size comes
	// from storage.DefaultPoolConfig.
	MaxOpenConns int `yaml:"max_open_conns"`

	// MaxIdleConns defaults to 2. The pool does not read it.
	MaxIdleConns int `yaml:"max_idle_conns"`
}

// SessionBufferConfig configures the live-session stitching buffer store.
type SessionBufferConfig struct {
	// URL is a redis:// DSN. Empty falls back to an in-memory store.
	URL string `yaml:"url"`
}

// MockConfig holds dev-only identity fallbacks used only when legacy header
// auth is enabled and the caller omits the corresponding header.
type MockConfig struct {
	TenantID string `yaml:"tenant_id"`
	UserID   string `yaml:"user_id"`
}
