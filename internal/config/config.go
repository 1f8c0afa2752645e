// Package config handles TOML/YAML configuration loading and validation.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// DefaultUserAgent is the desktop-browser User-Agent sent to proxied sites.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// configSearchPaths lists paths checked in order when no explicit config is given.
var configSearchPaths = []string{
	"/etc/xivi/config.toml",
	"configs/config.toml",
}

// CLI holds command-line arguments parsed by Kong.
type CLI struct {
	Config     string `kong:"short='c',help='Path to TOML or YAML config file.',env='CONFIG_PATH'"`
	Host       string `kong:"help='Listen host (overrides config).',env='HOST'"`
	Port       int    `kong:"short='p',help='Listen port (overrides config).',env='PORT'"`
	ChatAPIKey string `kong:"help='Chat completion API key (overrides config).',env='CHAT_API_KEY'"`
	LogLevel   string `kong:"help='Log level: debug|info|warn|error (overrides config).',env='LOG_LEVEL'"`
}

// Config is the top-level application configuration.
type Config struct {
	Server  ServerConfig  `toml:"server" yaml:"server"`
	Proxy   ProxyConfig   `toml:"proxy" yaml:"proxy"`
	Music   MusicConfig   `toml:"music" yaml:"music"`
	Chat    ChatConfig    `toml:"chat" yaml:"chat"`
	SysInfo SysInfoConfig `toml:"sysinfo" yaml:"sysinfo"`
	Log     LogConfig     `toml:"log" yaml:"log"`
	Metrics MetricsConfig `toml:"metrics" yaml:"metrics"`

	filePath string // resolved config file path (unexported)
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string          `toml:"host" yaml:"host"`
	Port         int             `toml:"port" yaml:"port"` // 0 means "use default" (8080)
	BodyMaxBytes int64           `toml:"body_max_bytes" yaml:"body_max_bytes"`
	StaticDir    string          `toml:"static_dir" yaml:"static_dir"`
	RateLimit    RateLimitConfig `toml:"rate_limit" yaml:"rate_limit"`
}

// RateLimitConfig controls per-IP request rate limiting.
type RateLimitConfig struct {
	Enabled           bool    `toml:"enabled" yaml:"enabled"`
	RequestsPerSecond float64 `toml:"requests_per_second" yaml:"requests_per_second"`
}

// ProxyConfig holds settings for the rewriting proxy's upstream fetches.
type ProxyConfig struct {
	TimeoutSeconds       int    `toml:"timeout_seconds" yaml:"timeout_seconds"`
	IdleConnections      int    `toml:"idle_connections" yaml:"idle_connections"`
	MaxHTMLBytes         int64  `toml:"max_html_bytes" yaml:"max_html_bytes"`
	UserAgent            string `toml:"user_agent" yaml:"user_agent"`
	BlockPrivateNetworks bool   `toml:"block_private_networks" yaml:"block_private_networks"`
}

// MusicConfig points at a Piped-compatible search/stream API.
type MusicConfig struct {
	BaseURL        string `toml:"base_url" yaml:"base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds" yaml:"timeout_seconds"`
}

// ChatConfig holds the OpenAI-compatible completion API settings.
type ChatConfig struct {
	BaseURL        string `toml:"base_url" yaml:"base_url"`
	APIKey         string `toml:"api_key" yaml:"api_key"`
	Model          string `toml:"model" yaml:"model"`
	TimeoutSeconds int    `toml:"timeout_seconds" yaml:"timeout_seconds"`
}

// SysInfoConfig locates the checkout reported by /api/sysinfo.
type SysInfoConfig struct {
	RepoDir    string `toml:"repo_dir" yaml:"repo_dir"`
	Repository string `toml:"repository" yaml:"repository"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `toml:"level" yaml:"level"`
	Format string `toml:"format" yaml:"format"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled" yaml:"enabled"`
	Path    string `toml:"path" yaml:"path"`
}

// Load reads the config file and applies CLI overrides.
// When no explicit path is given (via --config or CONFIG_PATH), it searches
// /etc/xivi/config.toml then configs/config.toml, and falls back to the
// built-in defaults when neither exists.
func Load(cli *CLI) (*Config, error) {
	path := cli.Config
	if path == "" {
		path = findConfig()
	}

	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := decode(path, data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
		cfg.filePath = path
	}

	cfg.applyCLI(cli)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}

	cfg.setDefaults()
	return &cfg, nil
}

// decode picks the decoder from the file extension; TOML is the default.
func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, cfg)
	default:
		return toml.Unmarshal(data, cfg)
	}
}

// applyCLI overrides config values with non-zero CLI flags.
func (c *Config) applyCLI(cli *CLI) {
	if cli.Host != "" {
		c.Server.Host = cli.Host
	}
	if cli.Port != 0 {
		c.Server.Port = cli.Port
	}
	if cli.ChatAPIKey != "" {
		c.Chat.APIKey = cli.ChatAPIKey
	}
	if cli.LogLevel != "" {
		c.Log.Level = cli.LogLevel
	}
}

func (c *Config) validate() error {
	if c.Chat.APIKey == "YOUR_API_KEY_HERE" {
		return fmt.Errorf("chat.api_key contains placeholder value; set a real key or leave it empty to disable /api/chat")
	}

	// Upstream API URLs are optional but must be absolute http(s) when set.
	for name, raw := range map[string]string{
		"music.base_url": c.Music.BaseURL,
		"chat.base_url":  c.Chat.BaseURL,
	} {
		if raw == "" {
			continue
		}
		u, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("%s is not a valid URL: %w", name, err)
		}
		if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("%s must be an absolute http(s) URL; got %q", name, raw)
		}
	}

	// Numeric bounds.
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 0–65535; got %d", c.Server.Port)
	}
	if c.Server.BodyMaxBytes < 0 {
		return fmt.Errorf("server.body_max_bytes must be non-negative; got %d", c.Server.BodyMaxBytes)
	}
	if c.Proxy.TimeoutSeconds < 0 {
		return fmt.Errorf("proxy.timeout_seconds must be non-negative; got %d", c.Proxy.TimeoutSeconds)
	}
	if c.Proxy.IdleConnections < 0 {
		return fmt.Errorf("proxy.idle_connections must be non-negative; got %d", c.Proxy.IdleConnections)
	}
	if c.Proxy.MaxHTMLBytes < 0 {
		return fmt.Errorf("proxy.max_html_bytes must be non-negative; got %d", c.Proxy.MaxHTMLBytes)
	}
	if c.Music.TimeoutSeconds < 0 {
		return fmt.Errorf("music.timeout_seconds must be non-negative; got %d", c.Music.TimeoutSeconds)
	}
	if c.Chat.TimeoutSeconds < 0 {
		return fmt.Errorf("chat.timeout_seconds must be non-negative; got %d", c.Chat.TimeoutSeconds)
	}
	if c.Server.RateLimit.Enabled && c.Server.RateLimit.RequestsPerSecond <= 0 {
		return fmt.Errorf("server.rate_limit.requests_per_second must be > 0 when rate limiting is enabled; got %v", c.Server.RateLimit.RequestsPerSecond)
	}

	// Log fields.
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error", "":
		// valid
	default:
		return fmt.Errorf("log.level must be one of: debug, info, warn, error; got %q", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text", "":
		// valid
	default:
		return fmt.Errorf("log.format must be one of: json, text; got %q", c.Log.Format)
	}

	// Metrics path validation (only when metrics are enabled).
	if c.Metrics.Enabled && c.Metrics.Path != "" {
		p := c.Metrics.Path
		if p[0] != '/' {
			return fmt.Errorf("metrics.path must start with '/'; got %q", p)
		}
		for _, reserved := range []string{"/ric", "/api", "/healthz", "/proxy/status"} {
			if p == reserved || strings.HasPrefix(p, reserved+"/") {
				return fmt.Errorf("metrics.path %q conflicts with reserved route %q", p, reserved)
			}
		}
	}

	return nil
}

// setDefaults fills zero-valued fields with sensible defaults.
// Zero means "unset" for integer fields because TOML cannot distinguish an
// explicit 0 from an omitted key.
func (c *Config) setDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.BodyMaxBytes == 0 {
		c.Server.BodyMaxBytes = 1024 * 1024 // 1 MB
	}
	if c.Server.StaticDir == "" {
		c.Server.StaticDir = "public"
	}
	if c.Proxy.TimeoutSeconds == 0 {
		c.Proxy.TimeoutSeconds = 30
	}
	if c.Proxy.IdleConnections == 0 {
		c.Proxy.IdleConnections = 100
	}
	if c.Proxy.MaxHTMLBytes == 0 {
		c.Proxy.MaxHTMLBytes = 16 * 1024 * 1024 // 16 MB
	}
	if c.Proxy.UserAgent == "" {
		c.Proxy.UserAgent = DefaultUserAgent
	}
	if c.Music.BaseURL == "" {
		c.Music.BaseURL = "https://pipedapi.kavin.rocks"
	}
	if c.Music.TimeoutSeconds == 0 {
		c.Music.TimeoutSeconds = 15
	}
	if c.Chat.BaseURL == "" {
		c.Chat.BaseURL = "https://api.openai.com/v1"
	}
	if c.Chat.TimeoutSeconds == 0 {
		c.Chat.TimeoutSeconds = 60
	}
	if c.Chat.Model == "" {
		c.Chat.Model = "gpt-4o-mini"
	}
	if c.SysInfo.RepoDir == "" {
		c.SysInfo.RepoDir = "."
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// findConfig returns the first config path that exists, or empty string.
func findConfig() string {
	return findConfigInPaths(configSearchPaths)
}

// findConfigInPaths returns the first path that exists on disk, or empty string.
func findConfigInPaths(paths []string) string {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Addr returns the server listen address as host:port.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// WarnPermissions logs a warning if the config file is readable by group or others.
func (c *Config) WarnPermissions(logger *slog.Logger) {
	if c.filePath == "" || c.Chat.APIKey == "" {
		return
	}
	info, err := os.Stat(c.filePath)
	if err != nil {
		return
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		logger.Warn("config file holds an API key and is readable by group/others; consider chmod 600",
			"path", c.filePath,
			"mode", fmt.Sprintf("%04o", perm),
		)
	}
}
