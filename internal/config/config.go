// File: internal/config/config.go
package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/viper"
)

// DefaultRegistrationURL is the signup page the provisioning workflow drives by default.
const DefaultRegistrationURL = "https://stackblitz.com/register?redirect_to=/oauth/authorize?client_id=bolt&response_type=code&redirect_uri=https%3A%2F%2Fbolt.new%2Foauth2&code_challenge_method=S256&code_challenge=ARGuTD1lpTZHCQWoHSbB5FkpFaQw2xXeUBWdIEW46uU&state=f0d2aaed-3c6d-4cf2-b0d7-1473411ffe4e&scope=public"

// DefaultUserAgent is presented by every browser session.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/96.0.4664.110 Safari/537.36"

// Config holds the entire application configuration.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	Mailbox   MailboxConfig   `mapstructure:"mailbox" yaml:"mailbox"`
	Browser   BrowserConfig   `mapstructure:"browser" yaml:"browser"`
	Target    TargetConfig    `mapstructure:"target" yaml:"target"`
	Form      FormConfig      `mapstructure:"form" yaml:"form"`
	Provision ProvisionConfig `mapstructure:"provision" yaml:"provision"`
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Store     StoreConfig     `mapstructure:"store" yaml:"store"`
	Remote    RemoteConfig    `mapstructure:"remote" yaml:"remote"`
}

// LoggerConfig defines all the settings for the logging system.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// MailboxConfig configures the disposable mailbox provider client.
type MailboxConfig struct {
	BaseURL        string        `mapstructure:"base_url" yaml:"base_url"`
	ItemsKey       string        `mapstructure:"items_key" yaml:"items_key"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	// RateLimit is the sustained request rate (requests per second) against the provider.
	RateLimit    float64       `mapstructure:"rate_limit" yaml:"rate_limit"`
	RateBurst    int           `mapstructure:"rate_burst" yaml:"rate_burst"`
	PollAttempts int           `mapstructure:"poll_attempts" yaml:"poll_attempts"`
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
}

// BrowserConfig holds settings for the headless browser instances.
type BrowserConfig struct {
	Headless          bool           `mapstructure:"headless" yaml:"headless"`
	UserAgent         string         `mapstructure:"user_agent" yaml:"user_agent"`
	ExecPath          string         `mapstructure:"exec_path" yaml:"exec_path"`
	Args              []string       `mapstructure:"args" yaml:"args"`
	NavigationTimeout time.Duration  `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	Debug             bool           `mapstructure:"debug" yaml:"debug"`
	// Locale and Timezone are emulated per tab; empty leaves the host's value.
	Locale            string         `mapstructure:"locale" yaml:"locale"`
	Timezone          string         `mapstructure:"timezone" yaml:"timezone"`
	Humanoid          HumanoidConfig `mapstructure:"humanoid" yaml:"humanoid"`
}

// TargetConfig describes the signup page and the waits around it.
type TargetConfig struct {
	RegistrationURL string        `mapstructure:"registration_url" yaml:"registration_url"`
	PostSubmitWait  time.Duration `mapstructure:"post_submit_wait" yaml:"post_submit_wait"`
	PostConfirmWait time.Duration `mapstructure:"post_confirm_wait" yaml:"post_confirm_wait"`
}

// FormConfig lists the selectors used to find the signup form's controls.
// Entries prefixed with "xpath:" are evaluated as XPath expressions.
type FormConfig struct {
	EmailSelector      string        `mapstructure:"email_selector" yaml:"email_selector"`
	UsernameSelector   string        `mapstructure:"username_selector" yaml:"username_selector"`
	PasswordSelector   string        `mapstructure:"password_selector" yaml:"password_selector"`
	ConfirmSelectors   []string      `mapstructure:"confirm_selectors" yaml:"confirm_selectors"`
	ConfirmFallback    string        `mapstructure:"confirm_fallback" yaml:"confirm_fallback"`
	ConfirmFallbackNth int           `mapstructure:"confirm_fallback_nth" yaml:"confirm_fallback_nth"`
	TermsSelector      string        `mapstructure:"terms_selector" yaml:"terms_selector"`
	SubmitSelectors    []string      `mapstructure:"submit_selectors" yaml:"submit_selectors"`
	FieldWaitTimeout   time.Duration `mapstructure:"field_wait_timeout" yaml:"field_wait_timeout"`
}

// ProvisionConfig bounds how attempts run.
type ProvisionConfig struct {
	MaxConcurrent  int           `mapstructure:"max_concurrent" yaml:"max_concurrent"`
	AttemptTimeout time.Duration `mapstructure:"attempt_timeout" yaml:"attempt_timeout"`
}

// ServerConfig configures the HTTP service wrapping the orchestrator.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr" yaml:"addr"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins" yaml:"allowed_origins"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	Metrics         bool          `mapstructure:"metrics" yaml:"metrics"`
	// ExposeResults serves stored results (without passwords) under /api/results.
	ExposeResults   bool          `mapstructure:"expose_results" yaml:"expose_results"`
}

// StoreConfig selects where provisioning results are persisted.
type StoreConfig struct {
	// Type is one of "none", "file" or "postgres".
	Type      string `mapstructure:"type" yaml:"type"`
	OutputDir string `mapstructure:"output_dir" yaml:"output_dir"`
	DSN       string `mapstructure:"dsn" yaml:"dsn"`
}

// RemoteConfig points the companion client at a running service.
type RemoteConfig struct {
	BaseURL string        `mapstructure:"base_url" yaml:"base_url"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// NewDefaultConfig creates a new configuration populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "autoreg")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Mailbox --
	v.SetDefault("mailbox.base_url", "https://api.mail.tm")
	v.SetDefault("mailbox.items_key", "hydra:member")
	v.SetDefault("mailbox.request_timeout", "30s")
	v.SetDefault("mailbox.rate_limit", 8.0)
	v.SetDefault("mailbox.rate_burst", 4)
	v.SetDefault("mailbox.poll_attempts", 30)
	v.SetDefault("mailbox.poll_interval", "5s")

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.user_agent", DefaultUserAgent)
	v.SetDefault("browser.exec_path", "")
	v.SetDefault("browser.args", []string{"no-sandbox", "disable-setuid-sandbox"})
	v.SetDefault("browser.navigation_timeout", "60s")
	v.SetDefault("browser.debug", false)
	v.SetDefault("browser.locale", "en-US")
	v.SetDefault("browser.timezone", "")
	setHumanoidDefaults(v)

	// -- Target --
	v.SetDefault("target.registration_url", DefaultRegistrationURL)
	v.SetDefault("target.post_submit_wait", "5s")
	v.SetDefault("target.post_confirm_wait", "5s")

	// -- Form --
	v.SetDefault("form.email_selector", `input[name="email"]`)
	v.SetDefault("form.username_selector", `input[name="username"]`)
	v.SetDefault("form.password_selector", `input[name="password"]`)
	v.SetDefault("form.confirm_selectors", []string{
		`input[name="passwordConfirmation"]`,
		`input[name="password_confirmation"]`,
		`input[name="confirmPassword"]`,
		`input[name="confirm_password"]`,
	})
	v.SetDefault("form.confirm_fallback", `input[type="password"]`)
	v.SetDefault("form.confirm_fallback_nth", 1)
	v.SetDefault("form.terms_selector", `input[type="checkbox"]`)
	v.SetDefault("form.submit_selectors", []string{
		`button[type="submit"]`,
		`input[type="submit"]`,
		`button.submit-button`,
		`xpath://button[contains(., 'Sign up')]`,
		`xpath://button[contains(., 'Register')]`,
	})
	v.SetDefault("form.field_wait_timeout", "30s")

	// -- Provision --
	v.SetDefault("provision.max_concurrent", 2)
	v.SetDefault("provision.attempt_timeout", "10m")

	// -- Server --
	v.SetDefault("server.addr", ":3001")
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("server.metrics", true)
	v.SetDefault("server.expose_results", false)

	// -- Store --
	v.SetDefault("store.type", "file")
	v.SetDefault("store.output_dir", "./bolt_account_result")
	v.SetDefault("store.dsn", "")

	// -- Remote --
	v.SetDefault("remote.base_url", "http://localhost:3001")
	v.SetDefault("remote.timeout", "15m")
}

// NewConfigFromViper unmarshals a Viper instance into a validated Config.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// The DSN usually carries a password, so it gets its own variable.
	_ = v.BindEnv("store.dsn", "AUTOREG_STORE_DSN")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if _, err := url.ParseRequestURI(c.Mailbox.BaseURL); err != nil {
		return fmt.Errorf("mailbox.base_url is invalid: %w", err)
	}
	if c.Mailbox.PollAttempts <= 0 {
		return fmt.Errorf("mailbox.poll_attempts must be a positive integer")
	}
	if c.Mailbox.PollInterval < 0 {
		return fmt.Errorf("mailbox.poll_interval must not be negative")
	}
	if c.Mailbox.RateLimit < 0 {
		return fmt.Errorf("mailbox.rate_limit must not be negative")
	}
	if _, err := url.ParseRequestURI(c.Target.RegistrationURL); err != nil {
		return fmt.Errorf("target.registration_url is invalid: %w", err)
	}
	if c.Browser.NavigationTimeout < 60*time.Second {
		return fmt.Errorf("browser.navigation_timeout must be at least 60s")
	}
	if c.Provision.MaxConcurrent <= 0 {
		return fmt.Errorf("provision.max_concurrent must be a positive integer")
	}
	if err := c.Browser.Humanoid.Validate(); err != nil {
		return fmt.Errorf("browser.humanoid configuration invalid: %w", err)
	}
	if _, err := url.ParseRequestURI(c.Remote.BaseURL); err != nil {
		return fmt.Errorf("remote.base_url is invalid: %w", err)
	}
	if err := c.Store.Validate(); err != nil {
		return fmt.Errorf("store configuration invalid: %w", err)
	}
	return nil
}

// Validate checks the store selection.
func (s *StoreConfig) Validate() error {
	switch s.Type {
	case "", "none":
		return nil
	case "file":
		if s.OutputDir == "" {
			return fmt.Errorf("output_dir is required for the file store")
		}
		return nil
	case "postgres":
		if s.DSN == "" {
			return fmt.Errorf("dsn is required for the postgres store")
		}
		return nil
	default:
		return fmt.Errorf("unknown store type %q", s.Type)
	}
}
