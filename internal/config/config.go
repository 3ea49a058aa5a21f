package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. GIVEAWAY_ENGINE_WORKERS
const EnvPrefix = "GIVEAWAY"

// Config represents the application configuration
type Config struct {
	v *viper.Viper
}

// New creates a new configuration instance from the default search path
func New() (*Config, error) {
	return Load("")
}

// Load reads the configuration from path, or searches the default
// locations when path is empty. A missing file in the search path is not
// an error; defaults and environment variables still apply.
func Load(path string) (*Config, error) {
	v := NewEmptyViper()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/giveaway-engine/")
		v.AddConfigPath("$HOME/.giveaway-engine")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return &Config{v: v}, nil
}

// NewFromViper creates a new configuration instance from an existing Viper instance
func NewFromViper(v *viper.Viper) *Config {
	return &Config{v: v}
}

// NewEmptyViper creates a new Viper instance with defaults and environment
// overrides but no file
func NewEmptyViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	return v
}

// setDefaults sets the default configuration values
func setDefaults(v *viper.Viper) {
	// Engine defaults
	v.SetDefault("engine.legitimacy_threshold", 0.8)
	v.SetDefault("engine.confidence_floor", 0.6)
	v.SetDefault("engine.workers", 4)
	v.SetDefault("engine.max_attempts", 3)
	v.SetDefault("engine.retry_base", "30s")
	v.SetDefault("engine.retry_max", "30m")
	v.SetDefault("engine.lease", "5m")
	v.SetDefault("engine.acquire_timeout", "30s")
	v.SetDefault("engine.poll_interval", "1h")
	v.SetDefault("engine.resume_batch", 32)
	v.SetDefault("engine.max_deferrals", 5)
	v.SetDefault("engine.blocked_domains", []string{})

	// Rate limit defaults
	v.SetDefault("ratelimit.actions", 10)
	v.SetDefault("ratelimit.window", "1m")
	v.SetDefault("ratelimit.max_in_flight", 2)

	// Automation defaults
	v.SetDefault("automation.deadline", "2m")
	v.SetDefault("automation.navigation_timeout", "30s")
	v.SetDefault("automation.form_timeout", "20s")
	v.SetDefault("automation.confirmation_timeout", "30s")
	v.SetDefault("automation.form_selector", "form")
	v.SetDefault("automation.submit_selector", "button[type=submit], input[type=submit]")
	v.SetDefault("automation.confirmation_patterns", []string{
		"thank you",
		"thanks for entering",
		"you're entered",
		"entry received",
		"good luck",
	})

	// Browser defaults
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.exec_path", "")
	v.SetDefault("browser.user_agent", "")

	// Store defaults
	v.SetDefault("store.type", "sqlite")
	v.SetDefault("store.sqlite_path", "/data/giveaway.db")
	v.SetDefault("store.mysql_dsn", "user:password@tcp(localhost:3306)/giveaway")

	// Classifier defaults
	v.SetDefault("classifier.provider", "openai")
	v.SetDefault("classifier.timeout", "20s")
	v.SetDefault("classifier.max_body_size", 4096)

	// Bedrock defaults
	v.SetDefault("bedrock.region", "us-east-1")
	v.SetDefault("bedrock.model_id", "anthropic.claude-v2")
	v.SetDefault("bedrock.max_tokens", 1000)
	v.SetDefault("bedrock.temperature", 0.1)
	v.SetDefault("bedrock.top_p", 0.9)

	// Gemini defaults
	v.SetDefault("gemini.api_key", "")
	v.SetDefault("gemini.model_name", "gemini-pro")
	v.SetDefault("gemini.max_tokens", 1000)
	v.SetDefault("gemini.temperature", 0.1)
	v.SetDefault("gemini.top_p", 0.9)

	// OpenAI defaults
	v.SetDefault("openai.api_key", "")
	v.SetDefault("openai.model_name", "gpt-4o-mini")
	v.SetDefault("openai.max_tokens", 1000)
	v.SetDefault("openai.temperature", 0.1)
	v.SetDefault("openai.top_p", 0.9)

	// HTTP scoring service defaults
	v.SetDefault("httpscore.url", "http://localhost:8501/score")

	// Source defaults
	v.SetDefault("source.type", "gmail")
	v.SetDefault("source.gmail.credentials_path", "credentials.json")
	v.SetDefault("source.gmail.token_path", "token.json")
	v.SetDefault("source.gmail.user", "me")
	v.SetDefault("source.gmail.label", "Giveaway")
	v.SetDefault("source.gmail.unread_only", true)
	v.SetDefault("source.gmail.max_results", 10)
	v.SetDefault("source.smtp.listen_address", "127.0.0.1:10026")
	v.SetDefault("source.smtp.domain", "localhost")
	v.SetDefault("source.smtp.max_message_bytes", 10*1024*1024)
	v.SetDefault("source.smtp.queue_size", 256)
	v.SetDefault("source.dir.path", "./inbox")

	// Notify defaults
	v.SetDefault("notify.type", "log")
	v.SetDefault("notify.smtp.address", "localhost")
	v.SetDefault("notify.smtp.port", 587)
	v.SetDefault("notify.smtp.username", "")
	v.SetDefault("notify.smtp.password", "")
	v.SetDefault("notify.smtp.from", "giveaway-engine@localhost")
	v.SetDefault("notify.smtp.to", []string{})
	v.SetDefault("notify.smtp.starttls", true)

	// Audit defaults
	v.SetDefault("audit.type", "file")
	v.SetDefault("audit.path", "/data/audit.jsonl")
	v.SetDefault("audit.buffer", 256)

	// Profile defaults
	v.SetDefault("profile.fields", map[string]string{})
	v.SetDefault("profile.aliases", map[string]string{})

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Tracing defaults
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.service_name", "giveaway-engine")
	v.SetDefault("tracing.insecure", false)
}

// GetString gets a string value from the configuration
func (c *Config) GetString(key string) string {
	return c.v.GetString(key)
}

// GetInt gets an integer value from the configuration
func (c *Config) GetInt(key string) int {
	return c.v.GetInt(key)
}

// GetFloat64 gets a float64 value from the configuration
func (c *Config) GetFloat64(key string) float64 {
	return c.v.GetFloat64(key)
}

// GetBool gets a boolean value from the configuration
func (c *Config) GetBool(key string) bool {
	return c.v.GetBool(key)
}

// GetStringSlice gets a string slice value from the configuration
func (c *Config) GetStringSlice(key string) []string {
	return c.v.GetStringSlice(key)
}

// GetStringMap gets a string map value from the configuration
func (c *Config) GetStringMap(key string) map[string]string {
	return c.v.GetStringMapString(key)
}

// GetDuration gets a duration value from the configuration
func (c *Config) GetDuration(key string) time.Duration {
	return c.v.GetDuration(key)
}

// Set overrides a value, mostly for flags and tests
func (c *Config) Set(key string, value any) {
	c.v.Set(key, value)
}

// GetViper returns the underlying Viper instance
func (c *Config) GetViper() *viper.Viper {
	return c.v
}
