// ABOUTME: Configuration loading and parsing for the autoclaimer relay
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/Asiandegen/autoclaimer/internal/dispatch"
	"github.com/Asiandegen/autoclaimer/internal/extract"
)

// EnvConfigPath overrides the default config location.
const EnvConfigPath = "AUTOCLAIMER_CONFIG"

// Config represents the complete autoclaimer configuration
type Config struct {
	Server   ServerConfig   `yaml:"server" toml:"server"`
	Dedupe   DedupeConfig   `yaml:"dedupe" toml:"dedupe"`
	Extract  ExtractConfig  `yaml:"extract" toml:"extract"`
	Dispatch DispatchConfig `yaml:"dispatch" toml:"dispatch"`
	Sources  SourcesConfig  `yaml:"sources" toml:"sources"`
	History  HistoryConfig  `yaml:"history" toml:"history"`
	Logging  LoggingConfig  `yaml:"logging" toml:"logging"`
}

// ServerConfig describes the downstream consumer and how to stay connected to it
type ServerConfig struct {
	URL        string `yaml:"url" toml:"url"`
	ClientID   string `yaml:"client_id" toml:"client_id"`
	ClientType string `yaml:"client_type" toml:"client_type"`

	ReconnectDelay time.Duration `yaml:"-" toml:"-"`
	ConnectTimeout time.Duration `yaml:"-" toml:"-"`
	WriteTimeout   time.Duration `yaml:"-" toml:"-"`
	PingInterval   time.Duration `yaml:"-" toml:"-"`

	// Raw string values for unmarshaling
	ReconnectDelayRaw string `yaml:"reconnect_delay" toml:"reconnect_delay"`
	ConnectTimeoutRaw string `yaml:"connect_timeout" toml:"connect_timeout"`
	WriteTimeoutRaw   string `yaml:"write_timeout" toml:"write_timeout"`
	PingIntervalRaw   string `yaml:"ping_interval" toml:"ping_interval"`
}

// DedupeConfig holds the duplicate suppression window
type DedupeConfig struct {
	Window        time.Duration `yaml:"-" toml:"-"`
	SweepInterval time.Duration `yaml:"-" toml:"-"`
	MaxEntries    int           `yaml:"max_entries" toml:"max_entries"`

	WindowRaw        string `yaml:"window" toml:"window"`
	SweepIntervalRaw string `yaml:"sweep_interval" toml:"sweep_interval"`
}

// ExtractConfig holds the code extraction pattern
type ExtractConfig struct {
	Pattern string `yaml:"pattern" toml:"pattern"`
}

// DispatchConfig sizes the worker pool between sources and the relay
type DispatchConfig struct {
	Workers   int    `yaml:"workers" toml:"workers"`
	QueueSize int    `yaml:"queue_size" toml:"queue_size"`
	Overflow  string `yaml:"overflow" toml:"overflow"`
}

// SourcesConfig holds configuration for all inbound chat sources
type SourcesConfig struct {
	Matrix  MatrixConfig  `yaml:"matrix" toml:"matrix"`
	Discord DiscordConfig `yaml:"discord" toml:"discord"`
	Stdin   StdinConfig   `yaml:"stdin" toml:"stdin"`
}

// MatrixConfig holds Matrix source configuration
type MatrixConfig struct {
	Enabled     bool     `yaml:"enabled" toml:"enabled"`
	Homeserver  string   `yaml:"homeserver" toml:"homeserver"`
	UserID      string   `yaml:"user_id" toml:"user_id"`
	AccessToken string   `yaml:"access_token" toml:"access_token"`
	Rooms       []string `yaml:"rooms" toml:"rooms"`
}

// DiscordConfig holds Discord source configuration
type DiscordConfig struct {
	Enabled  bool     `yaml:"enabled" toml:"enabled"`
	Token    string   `yaml:"token" toml:"token"`
	Channels []string `yaml:"channels" toml:"channels"`
}

// StdinConfig enables reading messages line by line from standard input
type StdinConfig struct {
	Enabled bool `yaml:"enabled" toml:"enabled"`
}

// HistoryConfig holds the optional delivery history database
type HistoryConfig struct {
	Enabled   bool          `yaml:"enabled" toml:"enabled"`
	Path      string        `yaml:"path" toml:"path"`
	Retention time.Duration `yaml:"-" toml:"-"`

	RetentionRaw string `yaml:"retention" toml:"retention"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// Default returns a configuration with every optional field filled in.
// No source is enabled.
func Default() *Config {
	cfg := &Config{
		Server: ServerConfig{
			URL:               "ws://localhost:8765/",
			ClientID:          "TelegramMonitor_VPS_v1_DupCheck",
			ClientType:        "telegram_monitor",
			ReconnectDelayRaw: "5s",
			ConnectTimeoutRaw: "10s",
			WriteTimeoutRaw:   "10s",
			PingIntervalRaw:   "0s",
		},
		Dedupe: DedupeConfig{
			WindowRaw:        "5m",
			SweepIntervalRaw: "1m",
			MaxEntries:       100000,
		},
		Extract: ExtractConfig{
			Pattern: extract.DefaultPattern,
		},
		Dispatch: DispatchConfig{
			Workers:   dispatch.DefaultWorkers,
			QueueSize: dispatch.DefaultQueueSize,
			Overflow:  string(dispatch.OverflowBlock),
		},
		History: HistoryConfig{
			Path:         DefaultHistoryPath(),
			RetentionRaw: "720h",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
	_ = parseDurations(cfg) // defaults are known-good
	return cfg
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw content
	expanded := expandEnvVars(string(data))

	cfg := Default()
	if isTOML(path) {
		if _, err := toml.Decode(expanded, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.History.Path = expandHome(cfg.History.Path)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Save writes the configuration to path, as TOML or YAML by extension.
// Parent directories are created and the file is private to the user since
// it may hold tokens.
func (c *Config) Save(path string) error {
	var buf bytes.Buffer
	buf.WriteString("# autoclaimer configuration\n\n")

	if isTOML(path) {
		if err := toml.NewEncoder(&buf).Encode(c); err != nil {
			return fmt.Errorf("encoding config: %w", err)
		}
	} else {
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(c); err != nil {
			return fmt.Errorf("encoding config: %w", err)
		}
		if err := enc.Close(); err != nil {
			return fmt.Errorf("encoding config: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

// ResolvePath returns the config file location.
// Priority: AUTOCLAIMER_CONFIG env var > XDG_CONFIG_HOME/autoclaimer/config.yaml > ~/.config/autoclaimer/config.yaml
func ResolvePath() string {
	if envPath := os.Getenv(EnvConfigPath); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "autoclaimer", "config.yaml")
}

// DefaultHistoryPath returns the default delivery history database location.
// Priority: XDG_DATA_HOME/autoclaimer > ~/.local/share/autoclaimer
func DefaultHistoryPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "deliveries.db" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "autoclaimer", "deliveries.db")
}

// expandHome replaces a leading ~/ with the user's home directory.
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(homeDir, path[2:])
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}

	if c.Dedupe.Window < 0 {
		return errors.New("dedupe.window must not be negative (use 0s to never expire)")
	}
	if c.Dedupe.SweepInterval <= 0 {
		return errors.New("dedupe.sweep_interval must be positive")
	}
	if c.Dedupe.MaxEntries < 0 {
		return errors.New("dedupe.max_entries must not be negative (use 0 for unbounded)")
	}

	if _, err := extract.New(c.Extract.Pattern); err != nil {
		return fmt.Errorf("extract.pattern: %w", err)
	}

	if c.Dispatch.Workers <= 0 {
		return errors.New("dispatch.workers must be positive")
	}
	if c.Dispatch.QueueSize <= 0 {
		return errors.New("dispatch.queue_size must be positive")
	}
	if _, err := dispatch.ParseOverflow(c.Dispatch.Overflow); err != nil {
		return fmt.Errorf("dispatch.overflow: %w", err)
	}

	if err := c.validateSources(); err != nil {
		return err
	}

	if c.History.Enabled && c.History.Path == "" {
		return errors.New("history.path is required when history is enabled")
	}
	if c.History.Retention < 0 {
		return errors.New("history.retention must not be negative")
	}

	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format %q is not one of text, json", c.Logging.Format)
	}

	return nil
}

func (c *Config) validateServer() error {
	if c.Server.URL == "" {
		return errors.New("server.url is required")
	}
	u, err := url.Parse(c.Server.URL)
	if err != nil {
		return fmt.Errorf("server.url is not a valid URL: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return errors.New("server.url must use ws or wss scheme")
	}
	if c.Server.ClientID == "" {
		return errors.New("server.client_id is required")
	}
	if c.Server.ReconnectDelay <= 0 {
		return errors.New("server.reconnect_delay must be positive")
	}
	if c.Server.ConnectTimeout <= 0 {
		return errors.New("server.connect_timeout must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		return errors.New("server.write_timeout must be positive")
	}
	if c.Server.PingInterval < 0 {
		return errors.New("server.ping_interval must not be negative (use 0s to disable)")
	}
	return nil
}

func (c *Config) validateSources() error {
	m := c.Sources.Matrix
	if m.Enabled {
		if m.Homeserver == "" {
			return errors.New("sources.matrix.homeserver is required when matrix is enabled")
		}
		if _, err := url.Parse(m.Homeserver); err != nil {
			return fmt.Errorf("sources.matrix.homeserver is not a valid URL: %w", err)
		}
		if m.UserID == "" {
			return errors.New("sources.matrix.user_id is required when matrix is enabled")
		}
		if m.AccessToken == "" {
			return errors.New("sources.matrix.access_token is required when matrix is enabled")
		}
	}

	if c.Sources.Discord.Enabled && c.Sources.Discord.Token == "" {
		return errors.New("sources.discord.token is required when discord is enabled")
	}

	if !m.Enabled && !c.Sources.Discord.Enabled && !c.Sources.Stdin.Enabled {
		return errors.New("at least one source must be enabled (matrix, discord or stdin)")
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"server.reconnect_delay", cfg.Server.ReconnectDelayRaw, &cfg.Server.ReconnectDelay},
		{"server.connect_timeout", cfg.Server.ConnectTimeoutRaw, &cfg.Server.ConnectTimeout},
		{"server.write_timeout", cfg.Server.WriteTimeoutRaw, &cfg.Server.WriteTimeout},
		{"server.ping_interval", cfg.Server.PingIntervalRaw, &cfg.Server.PingInterval},
		{"dedupe.window", cfg.Dedupe.WindowRaw, &cfg.Dedupe.Window},
		{"dedupe.sweep_interval", cfg.Dedupe.SweepIntervalRaw, &cfg.Dedupe.SweepInterval},
		{"history.retention", cfg.History.RetentionRaw, &cfg.History.Retention},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}

	return nil
}
