// Package config handles configuration loading for scanblock.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/inercia/scanblock/internal/expr"
	"github.com/inercia/scanblock/internal/logging"
	"github.com/inercia/scanblock/internal/registry"
	"github.com/inercia/scanblock/internal/report"
	"github.com/inercia/scanblock/internal/rules"
	"github.com/inercia/scanblock/internal/scanblock"
)

// DefaultListen is the address the server listens on when none is configured.
const DefaultListen = ":8080"

// ListingConfig configures the host score listing endpoint.
type ListingConfig struct {
	// Path is the listing path, compared case-insensitively.
	Path string
	// Format selects the report formatter: plain, json, markdown or html.
	Format string
	// Allow is a CEL expression deciding who may read the listing.
	Allow string
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is the console log level (debug, info, warn, error).
	Level string
	// File enables a rotated log file.
	File       string
	MaxSizeMB  int
	MaxBackups int
	Compress   bool
	// JSON switches to JSON records.
	JSON bool
}

// AccessLogConfig configures the rotated request log.
type AccessLogConfig struct {
	// Path is the access log file. Empty disables access logging.
	Path       string
	MaxSizeMB  int
	MaxBackups int
}

// Config represents the complete scanblock configuration.
type Config struct {
	// Listen is the HTTP listen address.
	Listen string
	// Upstream is the URL requests are proxied to once they pass. Empty
	// serves a built-in health endpoint and 404 for everything else.
	Upstream string
	// TrustedProxies are IPs and CIDR ranges allowed to set forwarding headers.
	TrustedProxies []string

	BlockThreshold          uint16
	Rules                   rules.Set
	PermanentlyAllowedHosts []string
	Listing                 ListingConfig
	// SkipScoring is a CEL expression exempting requests from scoring.
	SkipScoring   string
	RequestMarker string
	SweepInterval time.Duration

	Log       LogConfig
	AccessLog AccessLogConfig
}

type rawScores struct {
	FullPath       *uint16 `yaml:"full_path"`
	PartialURL     *uint16 `yaml:"partial_url"`
	BadSuffix      *uint16 `yaml:"bad_suffix"`
	BadPartialPath *uint16 `yaml:"bad_partial_path"`
}

// rawConfig is used for YAML unmarshaling. Pointers distinguish unset keys
// from zero values.
type rawConfig struct {
	Listen                  string    `yaml:"listen"`
	Upstream                string    `yaml:"upstream"`
	TrustedProxies          []string  `yaml:"trusted_proxies"`
	BlockThreshold          *int      `yaml:"block_threshold"`
	Scores                  rawScores `yaml:"scores"`
	PermanentlyAllowedHosts []string  `yaml:"permanently_allowed_hosts"`
	Rules                   struct {
		FullPaths       []string `yaml:"full_paths"`
		PartialURLs     []string `yaml:"partial_urls"`
		BadSuffixes     []string `yaml:"bad_suffixes"`
		BadPartialPaths []string `yaml:"bad_partial_paths"`
		Extend          bool     `yaml:"extend"`
	} `yaml:"rules"`
	Listing struct {
		Path   *string `yaml:"path"`
		Format string  `yaml:"format"`
		Allow  *string `yaml:"allow"`
	} `yaml:"listing"`
	SkipScoring   *string `yaml:"skip_scoring"`
	RequestMarker string  `yaml:"request_marker"`
	SweepInterval string  `yaml:"sweep_interval"`
	Log           struct {
		Level      string `yaml:"level"`
		File       string `yaml:"file"`
		MaxSizeMB  int    `yaml:"max_size_mb"`
		MaxBackups *int   `yaml:"max_backups"`
		Compress   bool   `yaml:"compress"`
		JSON       bool   `yaml:"json"`
	} `yaml:"log"`
	AccessLog struct {
		Path       string `yaml:"path"`
		MaxSizeMB  int    `yaml:"max_size_mb"`
		MaxBackups *int   `yaml:"max_backups"`
	} `yaml:"access_log"`
}

// Default returns the configuration used when no file exists: default rules
// and threshold, listing and scoring exemptions disabled.
func Default() *Config {
	engine := scanblock.DefaultConfig()
	return &Config{
		Listen:                  DefaultListen,
		BlockThreshold:          engine.BlockThreshold,
		Rules:                   engine.Rules,
		PermanentlyAllowedHosts: engine.PermanentlyAllowedHosts,
		Listing: ListingConfig{
			Path:   engine.ListingPath,
			Format: "plain",
			Allow:  "false",
		},
		SkipScoring:   "false",
		RequestMarker: engine.RequestMarker,
		SweepInterval: engine.SweepInterval,
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  logging.DefaultFileConfig().MaxSizeMB,
			MaxBackups: logging.DefaultFileConfig().MaxBackups,
		},
		AccessLog: AccessLogConfig{
			MaxSizeMB:  10,
			MaxBackups: 1,
		},
	}
}

// DefaultConfigPath returns the configuration file path: $SCANBLOCK_CONFIG
// if set, otherwise scanblock/config.yaml under the XDG config directory.
func DefaultConfigPath() string {
	if envPath := os.Getenv("SCANBLOCK_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		home, _ := os.UserHomeDir()
		configDir = filepath.Join(home, ".config")
	}
	return filepath.Join(configDir, "scanblock", "config.yaml")
}

// Load reads and parses the configuration file from the given path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// LoadOrDefault loads path, falling back to Default when the file does not
// exist and allowMissing is set.
func LoadOrDefault(path string, allowMissing bool) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) && allowMissing {
		logging.ConfigFile().Debug("config_not_found", "path", path)
		return Default(), nil
	}
	return Load(path)
}

// Parse parses YAML configuration data. Unknown keys are rejected, and the
// listing.allow and skip_scoring expressions are required.
func Parse(data []byte) (*Config, error) {
	var raw rawConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if raw.Listing.Allow == nil {
		return nil, fmt.Errorf("listing.allow is required")
	}
	if raw.SkipScoring == nil {
		return nil, fmt.Errorf("skip_scoring is required")
	}

	cfg := Default()
	cfg.Listing.Allow = *raw.Listing.Allow
	cfg.SkipScoring = *raw.SkipScoring

	if raw.Listen != "" {
		cfg.Listen = raw.Listen
	}
	cfg.Upstream = raw.Upstream
	cfg.TrustedProxies = raw.TrustedProxies

	if raw.BlockThreshold != nil {
		t := *raw.BlockThreshold
		if t < 1 || t > int(registry.MaxScore) {
			return nil, fmt.Errorf("block_threshold %d must be between 1 and %d", t, registry.MaxScore)
		}
		cfg.BlockThreshold = uint16(t)
	}

	applyScore(&cfg.Rules.Scores.FullPath, raw.Scores.FullPath)
	applyScore(&cfg.Rules.Scores.PartialURL, raw.Scores.PartialURL)
	applyScore(&cfg.Rules.Scores.BadSuffix, raw.Scores.BadSuffix)
	applyScore(&cfg.Rules.Scores.BadPartialPath, raw.Scores.BadPartialPath)

	cfg.Rules.FullPaths = mergeRules(cfg.Rules.FullPaths, raw.Rules.FullPaths, raw.Rules.Extend)
	cfg.Rules.PartialURLs = mergeRules(cfg.Rules.PartialURLs, raw.Rules.PartialURLs, raw.Rules.Extend)
	cfg.Rules.BadSuffixes = mergeRules(cfg.Rules.BadSuffixes, raw.Rules.BadSuffixes, raw.Rules.Extend)
	cfg.Rules.BadPartialPaths = mergeRules(cfg.Rules.BadPartialPaths, raw.Rules.BadPartialPaths, raw.Rules.Extend)

	if raw.PermanentlyAllowedHosts != nil {
		cfg.PermanentlyAllowedHosts = raw.PermanentlyAllowedHosts
	}

	if raw.Listing.Path != nil {
		cfg.Listing.Path = *raw.Listing.Path
	}
	if raw.Listing.Format != "" {
		cfg.Listing.Format = raw.Listing.Format
	}
	if raw.RequestMarker != "" {
		cfg.RequestMarker = raw.RequestMarker
	}
	if raw.SweepInterval != "" {
		d, err := time.ParseDuration(raw.SweepInterval)
		if err != nil || d < 0 {
			return nil, fmt.Errorf("invalid sweep_interval %q", raw.SweepInterval)
		}
		cfg.SweepInterval = d
	}

	if raw.Log.Level != "" {
		cfg.Log.Level = raw.Log.Level
	}
	cfg.Log.File = raw.Log.File
	if raw.Log.MaxSizeMB > 0 {
		cfg.Log.MaxSizeMB = raw.Log.MaxSizeMB
	}
	if raw.Log.MaxBackups != nil {
		cfg.Log.MaxBackups = *raw.Log.MaxBackups
	}
	cfg.Log.Compress = raw.Log.Compress
	cfg.Log.JSON = raw.Log.JSON

	cfg.AccessLog.Path = raw.AccessLog.Path
	if raw.AccessLog.MaxSizeMB > 0 {
		cfg.AccessLog.MaxSizeMB = raw.AccessLog.MaxSizeMB
	}
	if raw.AccessLog.MaxBackups != nil {
		cfg.AccessLog.MaxBackups = *raw.AccessLog.MaxBackups
	}

	return cfg, nil
}

func applyScore(dst *uint16, v *uint16) {
	if v != nil {
		*dst = *v
	}
}

// mergeRules replaces the defaults with configured signatures, or appends
// them when extend is set. No configured signatures keeps the defaults.
func mergeRules(defaults, configured []string, extend bool) []string {
	if len(configured) == 0 {
		return defaults
	}
	if !extend {
		return configured
	}
	out := make([]string, 0, len(defaults)+len(configured))
	out = append(out, defaults...)
	return append(out, configured...)
}

// Validate checks everything that can be checked without starting the
// server: rules, expressions, the listing format, the upstream URL and the
// log level.
func (c *Config) Validate() error {
	if err := c.Rules.Validate(); err != nil {
		return err
	}
	if _, err := c.EngineConfig(); err != nil {
		return err
	}
	if c.Upstream != "" {
		u, err := url.Parse(c.Upstream)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid upstream %q: must be an absolute URL", c.Upstream)
		}
	}
	if !logging.ValidLevel(c.Log.Level) {
		return fmt.Errorf("invalid log level %q", c.Log.Level)
	}
	return nil
}

// EngineConfig converts the file configuration into an engine configuration,
// compiling the predicate expressions, selecting the formatter and building
// the trusted proxy host resolver. Hooks and the logger are left for the caller.
func (c *Config) EngineConfig() (scanblock.Config, error) {
	allow, err := expr.Compile(c.Listing.Allow)
	if err != nil {
		return scanblock.Config{}, fmt.Errorf("listing.allow: %w", err)
	}
	skip, err := expr.Compile(c.SkipScoring)
	if err != nil {
		return scanblock.Config{}, fmt.Errorf("skip_scoring: %w", err)
	}
	formatter, err := report.ByName(c.Listing.Format)
	if err != nil {
		return scanblock.Config{}, fmt.Errorf("listing.format: %w", err)
	}

	ec := scanblock.DefaultConfig()
	ec.BlockThreshold = c.BlockThreshold
	ec.Rules = c.Rules
	ec.PermanentlyAllowedHosts = c.PermanentlyAllowedHosts
	ec.ListingPath = c.Listing.Path
	ec.RequestMarker = c.RequestMarker
	ec.Formatter = formatter
	ec.AllowListing = allow
	ec.SkipScoring = skip
	ec.SweepInterval = c.SweepInterval
	ec.HostFunc = scanblock.NewProxyTrust(c.TrustedProxies).HostFunc()
	return ec, nil
}

// LoggingConfig converts the log section into a logging configuration.
func (c *Config) LoggingConfig() logging.Config {
	lc := logging.Config{
		Level: c.Log.Level,
		JSON:  c.Log.JSON,
	}
	if c.Log.File != "" {
		lc.File = &logging.FileConfig{
			Path:       c.Log.File,
			MaxSizeMB:  c.Log.MaxSizeMB,
			MaxBackups: c.Log.MaxBackups,
			Compress:   c.Log.Compress,
		}
	}
	return lc
}
