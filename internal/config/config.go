package config

import (
	"errors"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Leads     LeadsConfig     `yaml:"leads" mapstructure:"leads"`
	Retry     RetryConfig     `yaml:"retry" mapstructure:"retry"`
	Search    SearchConfig    `yaml:"search" mapstructure:"search"`
	Browser   BrowserConfig   `yaml:"browser" mapstructure:"browser"`
	Target    TargetConfig    `yaml:"target" mapstructure:"target"`
	Form      FormConfig      `yaml:"form" mapstructure:"form"`
	Rules     RulesConfig     `yaml:"rules" mapstructure:"rules"`
	History   HistoryConfig   `yaml:"history" mapstructure:"history"`
	Artifacts ArtifactsConfig `yaml:"artifacts" mapstructure:"artifacts"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// LeadsConfig locates the input lead list.
type LeadsConfig struct {
	CSV string `yaml:"csv" mapstructure:"csv"`
}

// RetryConfig configures per-lead retries.
type RetryConfig struct {
	MaxRetries  int `yaml:"max_retries" mapstructure:"max_retries"`
	BaseDelayMs int `yaml:"base_delay_ms" mapstructure:"base_delay_ms"`
}

// BaseDelay returns the linear backoff unit.
func (c RetryConfig) BaseDelay() time.Duration { return Millis(c.BaseDelayMs) }

// SearchConfig configures the search-engine fetchers.
type SearchConfig struct {
	BaseURL                 string `yaml:"base_url" mapstructure:"base_url"`
	ProfileKeyword          string `yaml:"profile_keyword" mapstructure:"profile_keyword"`
	PatternKeyword          string `yaml:"pattern_keyword" mapstructure:"pattern_keyword"`
	RequestsPerMinute       int    `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`
	NavTimeoutSecs          int    `yaml:"nav_timeout_secs" mapstructure:"nav_timeout_secs"`
	CircuitFailureThreshold int    `yaml:"circuit_failure_threshold" mapstructure:"circuit_failure_threshold"`
	CircuitResetSecs        int    `yaml:"circuit_reset_secs" mapstructure:"circuit_reset_secs"`
}

// BrowserConfig selects and tunes the page backend.
type BrowserConfig struct {
	Backend   string `yaml:"backend" mapstructure:"backend"`
	Headless  bool   `yaml:"headless" mapstructure:"headless"`
	ExecPath  string `yaml:"exec_path" mapstructure:"exec_path"`
	UserAgent string `yaml:"user_agent" mapstructure:"user_agent"`
	SettleMs  int    `yaml:"settle_ms" mapstructure:"settle_ms"`
}

// TargetConfig describes the contact-management application.
type TargetConfig struct {
	BaseURL      string `yaml:"base_url" mapstructure:"base_url"`
	LoginPath    string `yaml:"login_path" mapstructure:"login_path"`
	ContactsPath string `yaml:"contacts_path" mapstructure:"contacts_path"`
	RulesPath    string `yaml:"rules_path" mapstructure:"rules_path"`
	ReadyText    string `yaml:"ready_text" mapstructure:"ready_text"`
	AuthFile     string `yaml:"auth_file" mapstructure:"auth_file"`
}

// LoginURL returns the absolute login page URL.
func (t TargetConfig) LoginURL() string { return joinURL(t.BaseURL, t.LoginPath) }

// ContactsURL returns the absolute contacts page URL.
func (t TargetConfig) ContactsURL() string { return joinURL(t.BaseURL, t.ContactsPath) }

// RulesURL returns the absolute automation rules page URL.
func (t TargetConfig) RulesURL() string { return joinURL(t.BaseURL, t.RulesPath) }

// FormConfig tunes contact entry.
type FormConfig struct {
	MinKeyDelayMs    int    `yaml:"min_key_delay_ms" mapstructure:"min_key_delay_ms"`
	MaxKeyDelayMs    int    `yaml:"max_key_delay_ms" mapstructure:"max_key_delay_ms"`
	PostSubmitWaitMs int    `yaml:"post_submit_wait_ms" mapstructure:"post_submit_wait_ms"`
	PhoneRegion      string `yaml:"phone_region" mapstructure:"phone_region"`
}

// RulesConfig holds the automation rule settings applied before a run.
type RulesConfig struct {
	Enabled             bool   `yaml:"enabled" mapstructure:"enabled"`
	InvalidEmailLimit   int    `yaml:"invalid_email_limit" mapstructure:"invalid_email_limit"`
	InvalidAction       string `yaml:"invalid_action" mapstructure:"invalid_action"`
	ProofpointProtected bool   `yaml:"proofpoint_protected" mapstructure:"proofpoint_protected"`
	CatchAllRestricted  bool   `yaml:"catch_all_restricted" mapstructure:"catch_all_restricted"`
	GenericRestricted   bool   `yaml:"generic_restricted" mapstructure:"generic_restricted"`
	AutosaveWaitMs      int    `yaml:"autosave_wait_ms" mapstructure:"autosave_wait_ms"`
}

// HistoryConfig configures the external history-log API.
type HistoryConfig struct {
	URL   string `yaml:"url" mapstructure:"url"`
	Agent string `yaml:"agent" mapstructure:"agent"`
}

// ArtifactsConfig configures screenshot uploads.
type ArtifactsConfig struct {
	Endpoint  string `yaml:"endpoint" mapstructure:"endpoint"`
	AccessKey string `yaml:"access_key" mapstructure:"access_key"`
	SecretKey string `yaml:"secret_key" mapstructure:"secret_key"`
	Bucket    string `yaml:"bucket" mapstructure:"bucket"`
	UseSSL    bool   `yaml:"use_ssl" mapstructure:"use_ssl"`
	Region    string `yaml:"region" mapstructure:"region"`
}

// ServerConfig configures the history API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// DefaultUserAgent is a desktop Chrome user agent.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// Load reads configuration from .env, config.yaml and ENRICH_* variables,
// in increasing order of precedence.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, eris.Wrap(err, "config: load .env")
	}

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("ENRICH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "enricher.db")
	v.SetDefault("leads.csv", "leads.csv")
	v.SetDefault("retry.max_retries", 3)
	v.SetDefault("retry.base_delay_ms", 1000)
	v.SetDefault("search.base_url", "https://www.google.com/search")
	v.SetDefault("search.profile_keyword", "zoominfo")
	v.SetDefault("search.pattern_keyword", "rocketreach")
	v.SetDefault("search.requests_per_minute", 30)
	v.SetDefault("search.nav_timeout_secs", 30)
	v.SetDefault("search.circuit_failure_threshold", 10)
	v.SetDefault("search.circuit_reset_secs", 60)
	v.SetDefault("browser.backend", "chromedp")
	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.exec_path", "")
	v.SetDefault("browser.user_agent", DefaultUserAgent)
	v.SetDefault("browser.settle_ms", 1500)
	v.SetDefault("target.base_url", "https://buildata.pharosiq.com")
	v.SetDefault("target.login_path", "/login")
	v.SetDefault("target.contacts_path", "/contacts")
	v.SetDefault("target.rules_path", "/automation-rules")
	v.SetDefault("target.ready_text", "Contacts")
	v.SetDefault("target.auth_file", "auth.json")
	v.SetDefault("form.min_key_delay_ms", 40)
	v.SetDefault("form.max_key_delay_ms", 80)
	v.SetDefault("form.post_submit_wait_ms", 1500)
	v.SetDefault("form.phone_region", "")
	v.SetDefault("rules.enabled", true)
	v.SetDefault("rules.invalid_email_limit", 5)
	v.SetDefault("rules.invalid_action", "Skip Company")
	v.SetDefault("rules.proofpoint_protected", true)
	v.SetDefault("rules.catch_all_restricted", false)
	v.SetDefault("rules.generic_restricted", false)
	v.SetDefault("rules.autosave_wait_ms", 2000)
	v.SetDefault("history.url", "")
	v.SetDefault("history.agent", "Lead Enrichment Agent")
	v.SetDefault("artifacts.endpoint", "")
	v.SetDefault("artifacts.access_key", "")
	v.SetDefault("artifacts.secret_key", "")
	v.SetDefault("artifacts.bucket", "enrichment-artifacts")
	v.SetDefault("artifacts.use_ssl", true)
	v.SetDefault("artifacts.region", "")
	v.SetDefault("server.port", 8080)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command mode depends on. Modes: run, login,
// rules, serve.
func (c *Config) Validate(mode string) error {
	var errs []string
	switch mode {
	case "run":
		if c.Retry.MaxRetries < 1 {
			errs = append(errs, "retry.max_retries must be >= 1")
		}
		if c.Retry.BaseDelayMs < 0 {
			errs = append(errs, "retry.base_delay_ms must be >= 0")
		}
		if c.Search.BaseURL == "" {
			errs = append(errs, "search.base_url is required")
		}
		if c.Form.MinKeyDelayMs < 0 || c.Form.MaxKeyDelayMs < c.Form.MinKeyDelayMs {
			errs = append(errs, "form key delays must satisfy 0 <= min_key_delay_ms <= max_key_delay_ms")
		}
		switch c.Browser.Backend {
		case "chromedp", "http":
		default:
			errs = append(errs, "browser.backend must be chromedp or http")
		}
		errs = append(errs, c.validateStore()...)
		errs = append(errs, c.validateTarget()...)
	case "login", "rules":
		errs = append(errs, c.validateTarget()...)
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, "server.port must be > 0 and <= 65535")
		}
		errs = append(errs, c.validateStore()...)
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateStore() []string {
	var errs []string
	switch c.Store.Driver {
	case "sqlite", "postgres", "postgresql":
	default:
		errs = append(errs, "store.driver must be sqlite or postgres")
	}
	if c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
	}
	return errs
}

func (c *Config) validateTarget() []string {
	var errs []string
	if u, err := url.Parse(c.Target.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, "target.base_url must be an absolute URL")
	}
	if c.Target.AuthFile == "" {
		errs = append(errs, "target.auth_file is required")
	}
	return errs
}

// Redacted returns a copy with secrets masked.
func (c Config) Redacted() Config {
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return "********"
	}
	c.Artifacts.AccessKey = mask(c.Artifacts.AccessKey)
	c.Artifacts.SecretKey = mask(c.Artifacts.SecretKey)
	if u, err := url.Parse(c.Store.DatabaseURL); err == nil && u.User != nil {
		c.Store.DatabaseURL = u.Redacted()
	}
	return c
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}

// Millis converts a millisecond setting to a duration.
func Millis(n int) time.Duration { return time.Duration(n) * time.Millisecond }

func joinURL(base, path string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}
