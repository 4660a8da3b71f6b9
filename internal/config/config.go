// Package config provides the configuration schema and loader for the Loqui
// voice session server.
package config

// LogLevel controls log verbosity for the server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure. It is typically loaded from a
// YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Realtime RealtimeConfig `yaml:"realtime"`
	Database DatabaseConfig `yaml:"database"`
	Analyzer AnalyzerConfig `yaml:"analyzer"`
	Session  SessionConfig  `yaml:"session"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// RealtimeConfig configures the negotiation endpoint used to establish
// realtime voice sessions.
type RealtimeConfig struct {
	// APIKey authenticates credential minting. Overridable via the
	// LOQUI_OPENAI_API_KEY environment variable.
	APIKey string `yaml:"api_key"`

	// Model selects the realtime model. Empty means the client default.
	Model string `yaml:"model"`

	// BaseURL overrides the endpoint's default API URL.
	BaseURL string `yaml:"base_url"`

	// Voice selects the default synthesised voice for new sessions.
	Voice string `yaml:"voice"`
}

// DatabaseConfig configures session persistence.
type DatabaseConfig struct {
	// PostgresDSN is the connection string for the session store. Empty
	// selects the in-memory store (sessions are lost on restart).
	// Overridable via the LOQUI_POSTGRES_DSN environment variable.
	PostgresDSN string `yaml:"postgres_dsn"`
}

// AnalyzerConfig tunes the audio activity analyzers. Zero values select the
// built-in defaults.
type AnalyzerConfig struct {
	// CaptureThreshold is the activation level for the microphone
	// analyzer, in the normalised [0, 1] range.
	CaptureThreshold float64 `yaml:"capture_threshold"`

	// PlaybackThreshold is the activation level for the remote-audio
	// analyzer.
	PlaybackThreshold float64 `yaml:"playback_threshold"`

	// Smoothing is the exponential smoothing factor applied to the
	// spectrum between ticks, in [0, 1).
	Smoothing float64 `yaml:"smoothing"`

	// WindowSize is the FFT window length in samples. Must be a power of
	// two.
	WindowSize int `yaml:"window_size"`
}

// SessionConfig holds per-session defaults.
type SessionConfig struct {
	// Instructions is the default persona prompt when a start request
	// carries none.
	Instructions string `yaml:"instructions"`

	// PersistTimeoutMS bounds each background persistence write, in
	// milliseconds. Zero selects the built-in default.
	PersistTimeoutMS int `yaml:"persist_timeout_ms"`
}
