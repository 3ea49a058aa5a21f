package config

import "time"

// EngineConfig represents the decision engine settings
type EngineConfig struct {
	LegitimacyThreshold float64
	ConfidenceFloor     float64
	Workers             int
	MaxAttempts         int
	RetryBase           time.Duration
	RetryMax            time.Duration
	Lease               time.Duration
	AcquireTimeout      time.Duration
	PollInterval        time.Duration
	ResumeBatch         int
	MaxDeferrals        int
	BlockedDomains      []string
}

// RateLimitConfig represents the outbound action limits
type RateLimitConfig struct {
	Actions     int
	Window      time.Duration
	MaxInFlight int
}

// AutomationConfig represents the page automation deadlines and selectors
type AutomationConfig struct {
	Deadline             time.Duration
	NavigationTimeout    time.Duration
	FormTimeout          time.Duration
	ConfirmationTimeout  time.Duration
	FormSelector         string
	SubmitSelector       string
	ConfirmationPatterns []string
}

// BrowserConfig represents the headless browser settings
type BrowserConfig struct {
	Headless  bool
	ExecPath  string
	UserAgent string
}

// StoreConfig represents the participation store backend
type StoreConfig struct {
	Type       string
	SQLitePath string
	MySQLDSN   string
}

// ClassifierConfig represents the classifier provider selection
type ClassifierConfig struct {
	Provider    string
	Timeout     time.Duration
	MaxBodySize int
}

// BedrockConfig represents the configuration for Amazon Bedrock
type BedrockConfig struct {
	Region      string
	ModelID     string
	MaxTokens   int
	Temperature float32
	TopP        float32
	MaxBodySize int
}

// GeminiConfig represents the configuration for Google Gemini
type GeminiConfig struct {
	APIKey      string
	ModelName   string
	MaxTokens   int
	Temperature float32
	TopP        float32
	MaxBodySize int
}

// OpenAIConfig represents the configuration for OpenAI
type OpenAIConfig struct {
	APIKey      string
	ModelName   string
	MaxTokens   int
	Temperature float32
	TopP        float32
	MaxBodySize int
}

// HTTPScoreConfig represents a plain HTTP scoring service
type HTTPScoreConfig struct {
	URL         string
	MaxBodySize int
}

// GmailConfig represents the Gmail API source
type GmailConfig struct {
	CredentialsPath string
	TokenPath       string
	User            string
	Label           string
	UnreadOnly      bool
	MaxResults      int64
}

// SMTPSourceConfig represents the SMTP intake listener
type SMTPSourceConfig struct {
	ListenAddress   string
	Domain          string
	MaxMessageBytes int64
	QueueSize       int
}

// SourceConfig represents the email source selection
type SourceConfig struct {
	Type  string
	Gmail GmailConfig
	SMTP  SMTPSourceConfig
	Dir   string
}

// SMTPNotifyConfig represents the escalation mail relay
type SMTPNotifyConfig struct {
	Address  string
	Port     int
	Username string
	Password string
	From     string
	To       []string
	StartTLS bool
}

// NotifyConfig represents the escalation channel
type NotifyConfig struct {
	Type string
	SMTP SMTPNotifyConfig
}

// AuditConfig represents the audit sink
type AuditConfig struct {
	Type   string
	Path   string
	Buffer int
}

// ProfileConfig represents the form values used for entries
type ProfileConfig struct {
	Fields  map[string]string
	Aliases map[string]string
}

// TracingConfig represents the OpenTelemetry exporter
type TracingConfig struct {
	Enabled     bool
	Endpoint    string
	ServiceName string
	Insecure    bool
}

// GetEngine returns the engine configuration
func (c *Config) GetEngine() EngineConfig {
	return EngineConfig{
		LegitimacyThreshold: c.GetFloat64("engine.legitimacy_threshold"),
		ConfidenceFloor:     c.GetFloat64("engine.confidence_floor"),
		Workers:             c.GetInt("engine.workers"),
		MaxAttempts:         c.GetInt("engine.max_attempts"),
		RetryBase:           c.GetDuration("engine.retry_base"),
		RetryMax:            c.GetDuration("engine.retry_max"),
		Lease:               c.GetDuration("engine.lease"),
		AcquireTimeout:      c.GetDuration("engine.acquire_timeout"),
		PollInterval:        c.GetDuration("engine.poll_interval"),
		ResumeBatch:         c.GetInt("engine.resume_batch"),
		MaxDeferrals:        c.GetInt("engine.max_deferrals"),
		BlockedDomains:      c.GetStringSlice("engine.blocked_domains"),
	}
}

// GetRateLimit returns the rate limiter configuration
func (c *Config) GetRateLimit() RateLimitConfig {
	return RateLimitConfig{
		Actions:     c.GetInt("ratelimit.actions"),
		Window:      c.GetDuration("ratelimit.window"),
		MaxInFlight: c.GetInt("ratelimit.max_in_flight"),
	}
}

// GetAutomation returns the automation configuration
func (c *Config) GetAutomation() AutomationConfig {
	return AutomationConfig{
		Deadline:             c.GetDuration("automation.deadline"),
		NavigationTimeout:    c.GetDuration("automation.navigation_timeout"),
		FormTimeout:          c.GetDuration("automation.form_timeout"),
		ConfirmationTimeout:  c.GetDuration("automation.confirmation_timeout"),
		FormSelector:         c.GetString("automation.form_selector"),
		SubmitSelector:       c.GetString("automation.submit_selector"),
		ConfirmationPatterns: c.GetStringSlice("automation.confirmation_patterns"),
	}
}

// GetBrowser returns the browser configuration
func (c *Config) GetBrowser() BrowserConfig {
	return BrowserConfig{
		Headless:  c.GetBool("browser.headless"),
		ExecPath:  c.GetString("browser.exec_path"),
		UserAgent: c.GetString("browser.user_agent"),
	}
}

// GetStore returns the store configuration
func (c *Config) GetStore() StoreConfig {
	return StoreConfig{
		Type:       c.GetString("store.type"),
		SQLitePath: c.GetString("store.sqlite_path"),
		MySQLDSN:   c.GetString("store.mysql_dsn"),
	}
}

// GetClassifier returns the classifier configuration
func (c *Config) GetClassifier() ClassifierConfig {
	return ClassifierConfig{
		Provider:    c.GetString("classifier.provider"),
		Timeout:     c.GetDuration("classifier.timeout"),
		MaxBodySize: c.GetInt("classifier.max_body_size"),
	}
}

// GetBedrock returns the Bedrock configuration
func (c *Config) GetBedrock() BedrockConfig {
	return BedrockConfig{
		Region:      c.GetString("bedrock.region"),
		ModelID:     c.GetString("bedrock.model_id"),
		MaxTokens:   c.GetInt("bedrock.max_tokens"),
		Temperature: float32(c.GetFloat64("bedrock.temperature")),
		TopP:        float32(c.GetFloat64("bedrock.top_p")),
		MaxBodySize: c.GetInt("classifier.max_body_size"),
	}
}

// GetGemini returns the Gemini configuration
func (c *Config) GetGemini() GeminiConfig {
	return GeminiConfig{
		APIKey:      c.GetString("gemini.api_key"),
		ModelName:   c.GetString("gemini.model_name"),
		MaxTokens:   c.GetInt("gemini.max_tokens"),
		Temperature: float32(c.GetFloat64("gemini.temperature")),
		TopP:        float32(c.GetFloat64("gemini.top_p")),
		MaxBodySize: c.GetInt("classifier.max_body_size"),
	}
}

// GetOpenAI returns the OpenAI configuration
func (c *Config) GetOpenAI() OpenAIConfig {
	return OpenAIConfig{
		APIKey:      c.GetString("openai.api_key"),
		ModelName:   c.GetString("openai.model_name"),
		MaxTokens:   c.GetInt("openai.max_tokens"),
		Temperature: float32(c.GetFloat64("openai.temperature")),
		TopP:        float32(c.GetFloat64("openai.top_p")),
		MaxBodySize: c.GetInt("classifier.max_body_size"),
	}
}

// GetHTTPScore returns the HTTP scoring service configuration
func (c *Config) GetHTTPScore() HTTPScoreConfig {
	return HTTPScoreConfig{
		URL:         c.GetString("httpscore.url"),
		MaxBodySize: c.GetInt("classifier.max_body_size"),
	}
}

// GetSource returns the email source configuration
func (c *Config) GetSource() SourceConfig {
	return SourceConfig{
		Type: c.GetString("source.type"),
		Gmail: GmailConfig{
			CredentialsPath: c.GetString("source.gmail.credentials_path"),
			TokenPath:       c.GetString("source.gmail.token_path"),
			User:            c.GetString("source.gmail.user"),
			Label:           c.GetString("source.gmail.label"),
			UnreadOnly:      c.GetBool("source.gmail.unread_only"),
			MaxResults:      int64(c.GetInt("source.gmail.max_results")),
		},
		SMTP: SMTPSourceConfig{
			ListenAddress:   c.GetString("source.smtp.listen_address"),
			Domain:          c.GetString("source.smtp.domain"),
			MaxMessageBytes: int64(c.GetInt("source.smtp.max_message_bytes")),
			QueueSize:       c.GetInt("source.smtp.queue_size"),
		},
		Dir: c.GetString("source.dir.path"),
	}
}

// GetNotify returns the escalation channel configuration
func (c *Config) GetNotify() NotifyConfig {
	return NotifyConfig{
		Type: c.GetString("notify.type"),
		SMTP: SMTPNotifyConfig{
			Address:  c.GetString("notify.smtp.address"),
			Port:     c.GetInt("notify.smtp.port"),
			Username: c.GetString("notify.smtp.username"),
			Password: c.GetString("notify.smtp.password"),
			From:     c.GetString("notify.smtp.from"),
			To:       c.GetStringSlice("notify.smtp.to"),
			StartTLS: c.GetBool("notify.smtp.starttls"),
		},
	}
}

// GetAudit returns the audit sink configuration
func (c *Config) GetAudit() AuditConfig {
	return AuditConfig{
		Type:   c.GetString("audit.type"),
		Path:   c.GetString("audit.path"),
		Buffer: c.GetInt("audit.buffer"),
	}
}

// GetProfile returns the entry profile
func (c *Config) GetProfile() ProfileConfig {
	return ProfileConfig{
		Fields:  c.GetStringMap("profile.fields"),
		Aliases: c.GetStringMap("profile.aliases"),
	}
}

// GetTracing returns the tracing configuration
func (c *Config) GetTracing() TracingConfig {
	return TracingConfig{
		Enabled:     c.GetBool("tracing.enabled"),
		Endpoint:    c.GetString("tracing.endpoint"),
		ServiceName: c.GetString("tracing.service_name"),
		Insecure:    c.GetBool("tracing.insecure"),
	}
}
