package config

import "time"

// Config represents the complete leasehook configuration.
//
// Every scalar field can be overridden from the environment with the
// LEASEHOOK_ prefix, e.g. LEASEHOOK_STATE_PATH or LEASEHOOK_API_AUTH_API_KEY.
type Config struct {
	Service      ServiceConfig      `yaml:"service" envPrefix:"SERVICE_"`
	State        StateConfig        `yaml:"state" envPrefix:"STATE_"`
	Webhooks     WebhooksConfig     `yaml:"webhooks" envPrefix:"WEBHOOKS_"`
	API          APIConfig          `yaml:"api" envPrefix:"API_"`
	Secrets      SecretsConfig      `yaml:"secrets" envPrefix:"SECRETS_"`
	Verification VerificationConfig `yaml:"verification" envPrefix:"VERIFICATION_"`
	Queue        QueueConfig        `yaml:"queue" envPrefix:"QUEUE_"`
	Vendor       VendorConfig       `yaml:"vendor" envPrefix:"VENDOR_"`
	Payload      PayloadConfig      `yaml:"payload" envPrefix:"PAYLOAD_"`
	Automation   AutomationConfig   `yaml:"automation" envPrefix:"AUTOMATION_"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name            string        `yaml:"name" env:"NAME"`
	LogLevel        string        `yaml:"log_level" env:"LOG_LEVEL"`
	LogFormat       string        `yaml:"log_format" env:"LOG_FORMAT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

// StateConfig defines local SQLite storage settings.
type StateConfig struct {
	Path             string `yaml:"path" env:"PATH"`
	AllowNetworkFS   bool   `yaml:"allow_network_fs" env:"ALLOW_NETWORK_FS"`
	MaxDocumentBytes int    `yaml:"max_document_bytes" env:"MAX_DOCUMENT_BYTES"`
}

// WebhooksConfig defines the public webhook listener.
type WebhooksConfig struct {
	Listen       string   `yaml:"listen" env:"LISTEN"`
	MaxBodyBytes int64    `yaml:"max_body_bytes" env:"MAX_BODY_BYTES"`
	Vendors      []string `yaml:"vendors" env:"VENDORS" envSeparator:","`
}

// APIConfig defines the internal API listener (queue push target, job inspection).
type APIConfig struct {
	Enabled bool          `yaml:"enabled" env:"ENABLED"`
	Listen  string        `yaml:"listen" env:"LISTEN"`
	Auth    APIAuthConfig `yaml:"auth" envPrefix:"AUTH_"`
}

// APIAuthConfig defines API authentication settings.
type APIAuthConfig struct {
	// APIKey is a single bearer token with every scope.
	// Prefer Tokens for scoped access.
	APIKey string     `yaml:"api_key" env:"API_KEY"`
	Tokens []APIToken `yaml:"tokens,omitempty"`
}

// APIToken defines a bearer token and its scopes.
type APIToken struct {
	Token  string   `yaml:"token"`
	Scopes []string `yaml:"scopes"`
}

// SecretsConfig controls how bare secret references are qualified.
type SecretsConfig struct {
	ProjectID      string `yaml:"project_id" env:"PROJECT_ID"`
	DefaultVersion string `yaml:"default_version" env:"DEFAULT_VERSION"`
}

// VerificationConfig tunes signature verification.
type VerificationConfig struct {
	Tolerance time.Duration `yaml:"tolerance" env:"TOLERANCE"`
}

// QueueConfig defines the durable queue and how jobs are delivered.
type QueueConfig struct {
	// Delivery is "inprocess" or "http".
	Delivery        string        `yaml:"delivery" env:"DELIVERY"`
	PushURL         string        `yaml:"push_url" env:"PUSH_URL"`
	PushToken       string        `yaml:"push_token" env:"PUSH_TOKEN"`
	PollInterval    time.Duration `yaml:"poll_interval" env:"POLL_INTERVAL"`
	MaxAttempts     int           `yaml:"max_attempts" env:"MAX_ATTEMPTS"`
	BackoffBase     time.Duration `yaml:"backoff_base" env:"BACKOFF_BASE"`
	DeliveryTimeout time.Duration `yaml:"delivery_timeout" env:"DELIVERY_TIMEOUT"`
	JobLogRetention time.Duration `yaml:"job_log_retention" env:"JOB_LOG_RETENTION"`
	Revalidate      bool          `yaml:"revalidate" env:"REVALIDATE"`
}

// VendorConfig defines the upstream vendor REST API client.
type VendorConfig struct {
	BaseURL   string        `yaml:"base_url" env:"BASE_URL"`
	RateLimit float64       `yaml:"rate_limit" env:"RATE_LIMIT"`
	Burst     int           `yaml:"burst" env:"BURST"`
	Timeout   time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// PayloadConfig defines the chunk codec settings.
type PayloadConfig struct {
	MaxChunkBytes int `yaml:"max_chunk_bytes" env:"MAX_CHUNK_BYTES"`
	KeyVersion    int `yaml:"key_version" env:"KEY_VERSION"`
	// Secret keys chunk obfuscation. Empty means the tenant webhook secret.
	Secret string `yaml:"secret" env:"SECRET"`
}

// AutomationConfig defines automation handler settings.
type AutomationConfig struct {
	CategoryName      string  `yaml:"category_name" env:"CATEGORY_NAME"`
	UploadConcurrency int     `yaml:"upload_concurrency" env:"UPLOAD_CONCURRENCY"`
	N1IncreasePercent float64 `yaml:"n1_increase_percent" env:"N1_INCREASE_PERCENT"`
	N1NoticeDays      int     `yaml:"n1_notice_days" env:"N1_NOTICE_DAYS"`
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:            "leasehook",
			LogLevel:        "info",
			LogFormat:       "json",
			ShutdownTimeout: 5 * time.Second,
		},
		State: StateConfig{
			Path:             "./data/leasehook.db",
			MaxDocumentBytes: 1 << 20,
		},
		Webhooks: WebhooksConfig{
			Listen:       ":8081",
			MaxBodyBytes: 1 << 20,
			Vendors:      []string{"vendor"},
		},
		API: APIConfig{
			Enabled: false,
			Listen:  "127.0.0.1:8080",
		},
		Secrets: SecretsConfig{
			DefaultVersion: "latest",
		},
		Verification: VerificationConfig{
			Tolerance: 300 * time.Second,
		},
		Queue: QueueConfig{
			Delivery:        "inprocess",
			PollInterval:    time.Second,
			MaxAttempts:     4,
			BackoffBase:     30 * time.Second,
			DeliveryTimeout: 2 * time.Minute,
			JobLogRetention: 30 * 24 * time.Hour,
		},
		Vendor: VendorConfig{
			RateLimit: 5,
			Burst:     5,
			Timeout:   30 * time.Second,
		},
		Payload: PayloadConfig{
			MaxChunkBytes: 900_000,
			KeyVersion:    1,
		},
		Automation: AutomationConfig{
			CategoryName:      "Automated Tasks",
			UploadConcurrency: 4,
			N1IncreasePercent: 3,
			N1NoticeDays:      60,
		},
	}
}
