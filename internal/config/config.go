// Package config handles TOML-based configuration loading and validation.
// Values are layered: defaults < config file < environment (.env included) <
// command-line flags.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Duration is a time.Duration written as a string such as "30s" in TOML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Config holds all application configuration.
type Config struct {
	DownloadsDir string    `toml:"downloads_dir"`
	MaxFileSize  int64     `toml:"max_file_size"`
	LogLevel     string    `toml:"log_level"`
	Debug        bool      `toml:"debug"`
	Timeouts     Timeouts  `toml:"timeouts"`
	RateLimit    RateLimit `toml:"rate_limit"`
	Retention    Retention `toml:"retention"`
	Browser      Browser   `toml:"browser"`
	API          API       `toml:"api"`
	Telegram     Telegram  `toml:"telegram"`
	Metrics      Metrics   `toml:"metrics"`
}

// Timeouts bounds each stage of a resolution.
type Timeouts struct {
	API      Duration `toml:"api"`       // One API lookup
	Browser  Duration `toml:"browser"`   // Whole automation attempt, including queueing for a session
	HTTP     Duration `toml:"http"`      // One heuristic page request
	Fetch    Duration `toml:"fetch"`     // Media retrieval
	PageLoad Duration `toml:"page_load"` // Browser navigation
	Settle   Duration `toml:"settle"`    // Wait for client-side content after load
}

type RateLimit struct {
	Enabled       bool     `toml:"enabled"`
	PerMinute     int      `toml:"per_minute"`
	PerHour       int      `toml:"per_hour"`
	PruneInterval Duration `toml:"prune_interval"`
}

type Retention struct {
	MaxAge       Duration `toml:"max_age"`
	InitialDelay Duration `toml:"initial_delay"`
}

type Browser struct {
	MaxSessions int    `toml:"max_sessions"`
	ExecPath    string `toml:"exec_path"`
	Headless    bool   `toml:"headless"`
}

type API struct {
	RapidAPIKey string `toml:"rapidapi_key"`
}

type Telegram struct {
	Token string `toml:"token"`
}

type Metrics struct {
	Addr string `toml:"addr"` // Empty disables the /metrics listener
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		DownloadsDir: "./downloads",
		MaxFileSize:  50 * 1024 * 1024,
		LogLevel:     "info",
		Timeouts: Timeouts{
			API:      Duration{20 * time.Second},
			Browser:  Duration{50 * time.Second},
			HTTP:     Duration{15 * time.Second},
			Fetch:    Duration{60 * time.Second},
			PageLoad: Duration{30 * time.Second},
			Settle:   Duration{5 * time.Second},
		},
		RateLimit: RateLimit{
			Enabled:       true,
			PerMinute:     10,
			PerHour:       50,
			PruneInterval: Duration{time.Minute},
		},
		Retention: Retention{
			MaxAge:       Duration{time.Hour},
			InitialDelay: Duration{5 * time.Second},
		},
		Browser: Browser{
			MaxSessions: 3,
			Headless:    true,
		},
	}
}

// configDir returns the XDG-compliant config directory.
func configDir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "postfetch"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(home, ".config", "postfetch"), nil
}

// ConfigPath returns the path to the config file.
func ConfigPath() (string, error) {
	dir, err := configDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// Load reads the config file at path (the XDG location when empty), merges
// it over the defaults and applies environment overrides. A missing file is
// not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		p, err := ConfigPath()
		if err == nil {
			path = p
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := toml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config %s: %w", path, err)
			}
		case !os.IsNotExist(err):
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	_ = godotenv.Load() // .env is optional
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// ApplyEnv overrides values from the process environment.
func (c *Config) ApplyEnv() error {
	c.Telegram.Token = getEnv("BOT_TOKEN", c.Telegram.Token)
	c.API.RapidAPIKey = getEnv("RAPIDAPI_KEY", c.API.RapidAPIKey)
	c.DownloadsDir = getEnv("DOWNLOADS_DIR", c.DownloadsDir)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.Metrics.Addr = getEnv("METRICS_ADDR", c.Metrics.Addr)

	var err error
	if c.MaxFileSize, err = envInt64("MAX_FILE_SIZE", c.MaxFileSize); err != nil {
		return err
	}
	if c.RateLimit.PerMinute, err = envInt("MAX_REQUESTS_PER_MINUTE", c.RateLimit.PerMinute); err != nil {
		return err
	}
	if c.RateLimit.PerHour, err = envInt("MAX_REQUESTS_PER_HOUR", c.RateLimit.PerHour); err != nil {
		return err
	}
	if c.Browser.MaxSessions, err = envInt("CONCURRENT_DOWNLOADS", c.Browser.MaxSessions); err != nil {
		return err
	}
	if c.Retention.MaxAge.Duration, err = envMillis("CLEANUP_INTERVAL", c.Retention.MaxAge.Duration); err != nil {
		return err
	}
	if c.Timeouts.Fetch.Duration, err = envMillis("DOWNLOAD_TIMEOUT", c.Timeouts.Fetch.Duration); err != nil {
		return err
	}
	if v, ok := os.LookupEnv("DEBUG"); ok {
		c.Debug = v == "true" || v == "1"
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func envInt64(key string, fallback int64) (int64, error) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

// envMillis reads a duration given either in milliseconds or as a Go
// duration string.
func envMillis(key string, fallback time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback, nil
	}
	if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

// Validate checks config values are within acceptable bounds.
func (c *Config) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[strings.ToLower(c.LogLevel)] {
		return fmt.Errorf("unsupported log level %q (valid: debug, info, warn, error)", c.LogLevel)
	}

	if c.DownloadsDir == "" {
		return fmt.Errorf("downloads directory cannot be empty")
	}
	if c.MaxFileSize <= 0 {
		return fmt.Errorf("max file size must be positive, got %d", c.MaxFileSize)
	}

	durations := map[string]time.Duration{
		"timeouts.api":              c.Timeouts.API.Duration,
		"timeouts.browser":          c.Timeouts.Browser.Duration,
		"timeouts.http":             c.Timeouts.HTTP.Duration,
		"timeouts.fetch":            c.Timeouts.Fetch.Duration,
		"timeouts.page_load":        c.Timeouts.PageLoad.Duration,
		"rate_limit.prune_interval": c.RateLimit.PruneInterval.Duration,
		"retention.max_age":         c.Retention.MaxAge.Duration,
	}
	for name, d := range durations {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}
	if c.Timeouts.Settle.Duration < 0 || c.Retention.InitialDelay.Duration < 0 {
		return fmt.Errorf("delays cannot be negative")
	}
	if c.Timeouts.PageLoad.Duration+c.Timeouts.Settle.Duration > c.Timeouts.Browser.Duration {
		return fmt.Errorf("timeouts.browser (%s) must cover page_load + settle (%s)",
			c.Timeouts.Browser, c.Timeouts.PageLoad.Duration+c.Timeouts.Settle.Duration)
	}

	if c.RateLimit.Enabled && (c.RateLimit.PerMinute <= 0 || c.RateLimit.PerHour <= 0) {
		return fmt.Errorf("rate limit ceilings must be positive")
	}
	if c.RateLimit.PerHour < c.RateLimit.PerMinute {
		return fmt.Errorf("per_hour (%d) cannot be below per_minute (%d)", c.RateLimit.PerHour, c.RateLimit.PerMinute)
	}

	if c.Browser.MaxSessions <= 0 {
		return fmt.Errorf("browser.max_sessions must be positive, got %d", c.Browser.MaxSessions)
	}

	return nil
}

// ExpandDownloadsDir resolves ~ in the downloads directory path.
func (c *Config) ExpandDownloadsDir() (string, error) {
	dir := c.DownloadsDir
	if strings.HasPrefix(dir, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("expanding home dir: %w", err)
		}
		dir = filepath.Join(home, dir[2:])
	}
	return filepath.Abs(dir)
}
