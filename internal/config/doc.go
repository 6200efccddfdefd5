// Package config handles configuration loading, saving, and schema
// definition, plus the YAML table of outbound connection targets.
package config

// Config is the top-level botlink configuration.
// Uses json tags in camelCase to match the JSON config file format; env tags
// allow container-style overrides without a config file.
type Config struct {
	Server    ServerConfig    `json:"server"`
	Transport TransportConfig `json:"transport"`
	Redis     RedisConfig     `json:"redis"`

	// TargetsFile points at the YAML table of outbound targets (client mode).
	TargetsFile string `json:"targetsFile,omitempty" env:"BOTLINK_TARGETS_FILE"`
}

// ServerConfig holds accepting-server settings.
type ServerConfig struct {
	Host string `json:"host,omitempty" env:"BOTLINK_SERVER_HOST"`
	Port int    `json:"port,omitempty" env:"BOTLINK_SERVER_PORT"`

	// Tokens maps api_key → expected bearer token presented on handshake.
	// Empty disables token checks.
	Tokens map[string]string `json:"tokens,omitempty"`
}

// TransportConfig holds per-connection tuning shared by both roles.
// Timeouts are in seconds.
type TransportConfig struct {
	QueueSize         int `json:"queueSize,omitempty"         env:"BOTLINK_QUEUE_SIZE"`
	MaxForwardDepth   int `json:"maxForwardDepth,omitempty"   env:"BOTLINK_MAX_FORWARD_DEPTH"`
	ReconnectAttempts int `json:"reconnectAttempts,omitempty" env:"BOTLINK_RECONNECT_ATTEMPTS"`
	ConnectTimeout    int `json:"connectTimeout,omitempty"    env:"BOTLINK_CONNECT_TIMEOUT"`
	DrainTimeout      int `json:"drainTimeout,omitempty"      env:"BOTLINK_DRAIN_TIMEOUT"`
}

// RedisConfig holds presence-store settings.
type RedisConfig struct {
	URL      string `json:"url,omitempty"      env:"BOTLINK_REDIS_URL"`
	Password string `json:"password,omitempty" env:"BOTLINK_REDIS_PASSWORD"`
	DB       int    `json:"db,omitempty"       env:"BOTLINK_REDIS_DB"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 18800,
		},
		Transport: TransportConfig{
			QueueSize:         64,
			MaxForwardDepth:   3,
			ReconnectAttempts: 5,
			ConnectTimeout:    10,
			DrainTimeout:      5,
		},
	}
}
