// Package config loads apicache settings from a file, the environment and
// built-in defaults.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/jonwraymond/apicache/cache"
	"github.com/jonwraymond/apicache/observe"
	"github.com/jonwraymond/apicache/resilience"
)

// EnvPrefix prefixes environment overrides: cache.default_ttl is read from
// APICACHE_CACHE_DEFAULT_TTL.
const EnvPrefix = "APICACHE"

var (
	// ErrInvalidConfig indicates a setting failed validation.
	ErrInvalidConfig = errors.New("config: invalid configuration")

	// ErrMissingEnv indicates ${VAR} references an unset variable.
	ErrMissingEnv = errors.New("config: missing required environment variables")
)

// Config holds all configuration.
type Config struct {
	Cache   CacheConfig   `mapstructure:"cache"`
	Server  ServerConfig  `mapstructure:"server"`
	Observe ObserveConfig `mapstructure:"observe"`
}

// CacheConfig holds request cache configuration.
type CacheConfig struct {
	Disabled        bool          `mapstructure:"disabled"`
	DefaultTTL      time.Duration `mapstructure:"default_ttl"`
	MaxTTL          time.Duration `mapstructure:"max_ttl"`
	Methods         []string      `mapstructure:"methods"`
	Rules           []RuleConfig  `mapstructure:"rules"`
	Denylist        []string      `mapstructure:"denylist"` // "re:" prefix marks a regex
	JanitorInterval time.Duration `mapstructure:"janitor_interval"`
	WarmLimit       int           `mapstructure:"warm_limit"`
}

// RuleConfig is one TTL rule. The first matching rule wins.
type RuleConfig struct {
	Pattern string        `mapstructure:"pattern"`
	Regex   bool          `mapstructure:"regex"`
	TTL     time.Duration `mapstructure:"ttl"`
}

// ServerConfig holds the HTTP front configuration.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	Upstream        string        `mapstructure:"upstream"`
	UpstreamTimeout time.Duration `mapstructure:"upstream_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxPending      int           `mapstructure:"max_pending"`

	Retry     RetryConfig     `mapstructure:"retry"`
	Breaker   BreakerConfig   `mapstructure:"breaker"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Admin     AdminConfig     `mapstructure:"admin"`
}

// RetryConfig configures retries of failed upstream calls.
// MaxAttempts of 1 disables retrying.
type RetryConfig struct {
	MaxAttempts  int           `mapstructure:"max_attempts"`
	InitialDelay time.Duration `mapstructure:"initial_delay"`
	MaxDelay     time.Duration `mapstructure:"max_delay"`
	Backoff      string        `mapstructure:"backoff"` // exponential, linear or constant
	Jitter       bool          `mapstructure:"jitter"`
}

// BreakerConfig configures the upstream circuit breaker.
type BreakerConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	MaxFailures  int           `mapstructure:"max_failures"`
	ResetTimeout time.Duration `mapstructure:"reset_timeout"`
}

// RateLimitConfig limits upstream attempts. PerSecond of 0 is unlimited.
type RateLimitConfig struct {
	PerSecond float64 `mapstructure:"per_second"`
	Burst     int     `mapstructure:"burst"`
}

// AdminConfig protects the /cache endpoints. With no keys and no secret the
// endpoints are open.
type AdminConfig struct {
	APIKeys     []string `mapstructure:"api_keys"`
	JWTSecret   string   `mapstructure:"jwt_secret"`
	JWTIssuer   string   `mapstructure:"jwt_issuer"`
	JWTAudience string   `mapstructure:"jwt_audience"`
	Role        string   `mapstructure:"role"`
}

// Protected reports whether any admin credential is configured.
func (a AdminConfig) Protected() bool {
	return len(a.APIKeys) > 0 || a.JWTSecret != ""
}

// ObserveConfig holds telemetry configuration.
type ObserveConfig struct {
	ServiceName string        `mapstructure:"service_name"`
	Tracing     TracingConfig `mapstructure:"tracing"`
	Metrics     MetricsConfig `mapstructure:"metrics"`
	Logging     LoggingConfig `mapstructure:"logging"`
}

// TracingConfig configures tracing.
type TracingConfig struct {
	Enabled   bool    `mapstructure:"enabled"`
	Exporter  string  `mapstructure:"exporter"`
	Endpoint  string  `mapstructure:"endpoint"`
	SamplePct float64 `mapstructure:"sample_pct"`
}

// MetricsConfig configures metrics.
type MetricsConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Exporter string `mapstructure:"exporter"`
	Endpoint string `mapstructure:"endpoint"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Default returns the built-in configuration.
func Default() Config {
	v := viper.New()
	setDefaults(v)
	cfg, err := loadViper(v)
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from path, then applies APICACHE_* environment
// overrides on top of the defaults. An empty path searches for apicache.yaml
// in the working directory and $HOME/.config/apicache and tolerates its absence.
func Load(path string) (Config, error) {
	v := newViper()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		v.SetConfigName("apicache")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/apicache")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	return loadViper(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// setDefaults sets default values for configuration.
func setDefaults(v *viper.Viper) {
	p := cache.DefaultPolicy()

	v.SetDefault("cache.disabled", false)
	v.SetDefault("cache.default_ttl", p.DefaultTTL)
	v.SetDefault("cache.max_ttl", p.MaxTTL)
	v.SetDefault("cache.methods", p.Methods)
	v.SetDefault("cache.janitor_interval", cache.DefaultJanitorInterval)
	v.SetDefault("cache.warm_limit", 8)

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.upstream", "")
	v.SetDefault("server.upstream_timeout", 15*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.max_pending", 0)
	v.SetDefault("server.retry.max_attempts", 3)
	v.SetDefault("server.retry.initial_delay", 100*time.Millisecond)
	v.SetDefault("server.retry.max_delay", 2*time.Second)
	v.SetDefault("server.retry.backoff", "exponential")
	v.SetDefault("server.retry.jitter", true)
	v.SetDefault("server.breaker.enabled", true)
	v.SetDefault("server.breaker.max_failures", 5)
	v.SetDefault("server.breaker.reset_timeout", 30*time.Second)
	v.SetDefault("server.rate_limit.per_second", 0.0)
	v.SetDefault("server.rate_limit.burst", 10)
	v.SetDefault("server.admin.api_keys", []string{})
	v.SetDefault("server.admin.jwt_secret", "")
	v.SetDefault("server.admin.jwt_issuer", "")
	v.SetDefault("server.admin.jwt_audience", "")
	v.SetDefault("server.admin.role", "admin")

	v.SetDefault("observe.service_name", "apicache")
	v.SetDefault("observe.tracing.enabled", false)
	v.SetDefault("observe.tracing.exporter", "none")
	v.SetDefault("observe.tracing.endpoint", "")
	v.SetDefault("observe.tracing.sample_pct", 1.0)
	v.SetDefault("observe.metrics.enabled", true)
	v.SetDefault("observe.metrics.exporter", "prometheus")
	v.SetDefault("observe.metrics.endpoint", "")
	v.SetDefault("observe.logging.level", "info")
	v.SetDefault("observe.logging.format", "json")
}

func loadViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Rules and denylist fall back to the built-in tables unless the key is
	// present, so an explicit empty list disables them.
	if !v.IsSet("cache.rules") {
		cfg.Cache.Rules = DefaultRules()
	}
	if !v.IsSet("cache.denylist") {
		for _, p := range cache.DefaultDenylist() {
			cfg.Cache.Denylist = append(cfg.Cache.Denylist, p.String())
		}
	}

	expand := map[string]*string{
		"server.upstream":          &cfg.Server.Upstream,
		"server.admin.jwt_secret":  &cfg.Server.Admin.JWTSecret,
		"observe.tracing.endpoint": &cfg.Observe.Tracing.Endpoint,
		"observe.metrics.endpoint": &cfg.Observe.Metrics.Endpoint,
	}
	for i := range cfg.Server.Admin.APIKeys {
		expand[fmt.Sprintf("server.admin.api_keys[%d]", i)] = &cfg.Server.Admin.APIKeys[i]
	}
	if err := expandAll(expand); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// DefaultRules returns cache.DefaultRules in config form.
func DefaultRules() []RuleConfig {
	rules := cache.DefaultRules()
	out := make([]RuleConfig, len(rules))
	for i, r := range rules {
		out[i] = RuleConfig{Pattern: r.Pattern.Expr, Regex: r.Pattern.Regex, TTL: r.TTL}
	}
	return out
}

// Validate checks settings that the consuming packages do not validate themselves.
func (c Config) Validate() error {
	if _, err := c.Cache.Policy(); err != nil {
		return fmt.Errorf("%w: cache: %w", ErrInvalidConfig, err)
	}
	if c.Cache.WarmLimit < 0 {
		return fmt.Errorf("%w: cache.warm_limit must be >= 0", ErrInvalidConfig)
	}
	if c.Server.Addr == "" {
		return fmt.Errorf("%w: server.addr is required", ErrInvalidConfig)
	}
	if c.Server.Upstream != "" {
		u, err := url.Parse(c.Server.Upstream)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("%w: server.upstream must be an absolute http(s) URL, got %q", ErrInvalidConfig, c.Server.Upstream)
		}
	}
	if c.Server.UpstreamTimeout < 0 || c.Server.ShutdownTimeout < 0 {
		return fmt.Errorf("%w: server timeouts must be >= 0", ErrInvalidConfig)
	}
	if err := c.Server.validateGuard(); err != nil {
		return err
	}
	for i, k := range c.Server.Admin.APIKeys {
		if strings.TrimSpace(k) == "" {
			return fmt.Errorf("%w: server.admin.api_keys[%d] is empty", ErrInvalidConfig, i)
		}
	}
	obs := c.Observe.ToObserve("")
	if err := obs.Validate(); err != nil {
		return fmt.Errorf("%w: observe: %w", ErrInvalidConfig, err)
	}
	return nil
}

func (s ServerConfig) validateGuard() error {
	if s.Retry.MaxAttempts < 1 {
		return fmt.Errorf("%w: server.retry.max_attempts must be >= 1", ErrInvalidConfig)
	}
	if s.Retry.InitialDelay < 0 || s.Retry.MaxDelay < 0 {
		return fmt.Errorf("%w: server.retry delays must be >= 0", ErrInvalidConfig)
	}
	if _, err := resilience.ParseBackoff(s.Retry.Backoff); err != nil {
		return fmt.Errorf("%w: server.retry.backoff: %w", ErrInvalidConfig, err)
	}
	if s.Breaker.MaxFailures < 0 || s.Breaker.ResetTimeout < 0 {
		return fmt.Errorf("%w: server.breaker values must be >= 0", ErrInvalidConfig)
	}
	if s.RateLimit.PerSecond < 0 || s.RateLimit.Burst < 0 {
		return fmt.Errorf("%w: server.rate_limit values must be >= 0", ErrInvalidConfig)
	}
	return nil
}

// GuardHooks customizes the guard built by ServerConfig.Guard. All fields are optional.
type GuardHooks struct {
	// Retryable decides which errors are retried and counted as breaker
	// failures. Default: resilience.Transient.
	Retryable     func(error) bool
	OnRetry       func(attempt int, err error, delay time.Duration)
	OnStateChange func(from, to resilience.State)
}

// Guard builds the upstream breaker, retry and rate limit.
func (s ServerConfig) Guard(hooks GuardHooks) resilience.Guard {
	var g resilience.Guard
	if s.Retry.MaxAttempts > 1 {
		backoff, _ := resilience.ParseBackoff(s.Retry.Backoff)
		g.Retry = resilience.NewRetry(resilience.RetryConfig{
			MaxAttempts:  s.Retry.MaxAttempts,
			InitialDelay: s.Retry.InitialDelay,
			MaxDelay:     s.Retry.MaxDelay,
			Strategy:     backoff,
			Jitter:       s.Retry.Jitter,
			RetryIf:      hooks.Retryable,
			OnRetry:      hooks.OnRetry,
		})
	}
	if s.Breaker.Enabled {
		g.Breaker = resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			MaxFailures:   s.Breaker.MaxFailures,
			ResetTimeout:  s.Breaker.ResetTimeout,
			IsFailure:     hooks.Retryable,
			OnStateChange: hooks.OnStateChange,
		})
	}
	g.Limiter = resilience.NewLimiter(s.RateLimit.PerSecond, s.RateLimit.Burst)
	return g
}

// Policy builds and validates the cache policy. Disabled yields NoCachePolicy.
func (c CacheConfig) Policy() (cache.Policy, error) {
	if c.Disabled {
		return cache.NoCachePolicy(), nil
	}

	p := cache.Policy{
		DefaultTTL: c.DefaultTTL,
		MaxTTL:     c.MaxTTL,
		Methods:    c.Methods,
	}
	for _, r := range c.Rules {
		p.Rules = append(p.Rules, cache.Rule{
			Pattern: cache.Pattern{Expr: r.Pattern, Regex: r.Regex},
			TTL:     r.TTL,
		})
	}
	for _, d := range c.Denylist {
		p.Denylist = append(p.Denylist, parsePattern(d))
	}
	return p.Validate()
}

// parsePattern reads the form Pattern.String writes.
func parsePattern(s string) cache.Pattern {
	if expr, ok := strings.CutPrefix(s, "re:"); ok {
		return cache.Pattern{Expr: expr, Regex: true}
	}
	return cache.Substring(s)
}

// ToObserve converts to observe.Config. Logging is always enabled.
func (c ObserveConfig) ToObserve(version string) observe.Config {
	return observe.Config{
		ServiceName: c.ServiceName,
		Version:     version,
		Tracing: observe.TracingConfig{
			Enabled:   c.Tracing.Enabled,
			Exporter:  c.Tracing.Exporter,
			Endpoint:  c.Tracing.Endpoint,
			SamplePct: c.Tracing.SamplePct,
		},
		Metrics: observe.MetricsConfig{
			Enabled:  c.Metrics.Enabled,
			Exporter: c.Metrics.Exporter,
			Endpoint: c.Metrics.Endpoint,
		},
		Logging: observe.LoggingConfig{
			Enabled: true,
			Level:   c.Logging.Level,
			Format:  c.Logging.Format,
		},
	}
}
