// Package config handles TOML runtime configuration for vigil.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/yairfalse/vigil/types"
)

// Config is the root configuration structure.
type Config struct {
	Centreon CentreonConfig `toml:"centreon"`
	Defaults DefaultsConfig `toml:"defaults"`
	OTEL     OTELConfig     `toml:"otel"`
	Log      LogConfig      `toml:"log"`
	Storage  StorageConfig  `toml:"storage"`
	Policy   PolicyConfig   `toml:"policy"`
	Daemon   DaemonConfig   `toml:"daemon"`
}

// CentreonConfig holds the remote API connection.
type CentreonConfig struct {
	URL           string  `toml:"url"`
	Username      string  `toml:"username"`
	Password      string  `toml:"password"`
	ValidateCerts *bool   `toml:"validate_certs"`
	TimeoutStr    string  `toml:"timeout"`
	Timeout       time.Duration
	RateLimit     float64 `toml:"rate_limit"`
}

// VerifyTLS reports whether certificates are checked; defaults to true.
func (c CentreonConfig) VerifyTLS() bool {
	return c.ValidateCerts == nil || *c.ValidateCerts
}

// DefaultsConfig holds values applied to manifest entries that leave them unset.
type DefaultsConfig struct {
	Instance    string `toml:"instance"`
	ApplyConfig *bool  `toml:"apply_config"`
}

// OTELConfig holds OpenTelemetry settings.
type OTELConfig struct {
	Endpoint    string `toml:"endpoint"`
	Insecure    bool   `toml:"insecure"`
	ServiceName string `toml:"service_name"`
	Environment string `toml:"environment"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `toml:"level"`
	JSON  bool   `toml:"json"`
}

// StorageConfig holds the run history and journal locations.
type StorageConfig struct {
	Dir            string `toml:"dir"`
	KeepRevisions  int64  `toml:"keep_revisions"`
	JournalEnabled *bool  `toml:"journal"`
	RetentionDays  int    `toml:"journal_retention_days"`
}

// Journal reports whether remote operations are journaled; defaults to true.
func (s StorageConfig) Journal() bool {
	return s.JournalEnabled == nil || *s.JournalEnabled
}

// JournalDir is where journal files are written.
func (s StorageConfig) JournalDir() string {
	return s.Dir + "/wal"
}

// PolicyConfig holds the admission policy bundle location.
type PolicyConfig struct {
	Dir string `toml:"dir"`
}

// DaemonConfig holds daemon mode settings.
type DaemonConfig struct {
	IntervalStr string `toml:"interval"`
	Interval    time.Duration
	MetricsAddr string `toml:"metrics_addr"`
	OneShot     bool   `toml:"one_shot"`
}

// Load reads and parses a TOML config file. ${VAR} and ${VAR:default}
// references in string values are expanded from the environment after
// decoding, so values never reach the TOML parser.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path is intentional user input
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(string(data))
}

// Parse decodes TOML content, applies defaults and parses durations.
func Parse(content string) (*Config, error) {
	cfg := &Config{}
	if _, err := toml.Decode(content, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	expandFields(cfg)
	applyDefaults(cfg)

	if err := parseDurations(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	_ = parseDurations(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Centreon.TimeoutStr == "" {
		cfg.Centreon.TimeoutStr = "30s"
	}
	if cfg.Defaults.Instance == "" {
		cfg.Defaults.Instance = types.DefaultInstance
	}
	if cfg.OTEL.ServiceName == "" {
		cfg.OTEL.ServiceName = "vigil"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Storage.Dir == "" {
		cfg.Storage.Dir = ".vigil"
	}
	if cfg.Storage.KeepRevisions == 0 {
		cfg.Storage.KeepRevisions = 10000
	}
	if cfg.Storage.RetentionDays == 0 {
		cfg.Storage.RetentionDays = 30
	}
	if cfg.Daemon.IntervalStr == "" {
		cfg.Daemon.IntervalStr = "5m"
	}
	if cfg.Daemon.MetricsAddr == "" {
		cfg.Daemon.MetricsAddr = ":9090"
	}
}

func parseDurations(cfg *Config) error {
	d, err := time.ParseDuration(cfg.Centreon.TimeoutStr)
	if err != nil {
		return fmt.Errorf("parse centreon timeout %q: %w", cfg.Centreon.TimeoutStr, err)
	}
	cfg.Centreon.Timeout = d

	d, err = time.ParseDuration(cfg.Daemon.IntervalStr)
	if err != nil {
		return fmt.Errorf("parse daemon interval %q: %w", cfg.Daemon.IntervalStr, err)
	}
	cfg.Daemon.Interval = d
	return nil
}

// Validate checks the configuration is usable for talking to the remote.
func (c *Config) Validate() error {
	if c.Centreon.URL == "" {
		return fmt.Errorf("centreon: url is required")
	}
	if !strings.HasPrefix(c.Centreon.URL, "http://") && !strings.HasPrefix(c.Centreon.URL, "https://") {
		return fmt.Errorf("centreon: url must start with http:// or https:// (got %q)", c.Centreon.URL)
	}
	if c.Centreon.Username == "" {
		return fmt.Errorf("centreon: username is required")
	}
	if c.Centreon.Timeout <= 0 {
		return fmt.Errorf("centreon: timeout must be positive")
	}
	if c.Centreon.RateLimit < 0 {
		return fmt.Errorf("centreon: rate_limit cannot be negative")
	}
	if c.Daemon.Interval <= 0 {
		return fmt.Errorf("daemon: interval must be positive")
	}
	return nil
}

func expandFields(cfg *Config) {
	for _, field := range []*string{
		&cfg.Centreon.URL,
		&cfg.Centreon.Username,
		&cfg.Centreon.Password,
		&cfg.Centreon.TimeoutStr,
		&cfg.Defaults.Instance,
		&cfg.OTEL.Endpoint,
		&cfg.OTEL.ServiceName,
		&cfg.OTEL.Environment,
		&cfg.Log.Level,
		&cfg.Storage.Dir,
		&cfg.Policy.Dir,
		&cfg.Daemon.IntervalStr,
		&cfg.Daemon.MetricsAddr,
	} {
		*field = expandEnvVars(*field)
	}
}

var envPattern = regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

// expandEnvVars expands ${VAR} and ${VAR:default}
func expandEnvVars(input string) string {
	return envPattern.ReplaceAllStringFunc(input, func(match string) string {
		parts := envPattern.FindStringSubmatch(match)
		if val := os.Getenv(parts[1]); val != "" {
			return val
		}
		return parts[2]
	})
}
