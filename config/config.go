package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment override, e.g. PUSHD_GATEWAY_PROJECT_ID.
const EnvPrefix = "PUSHD"

// Config represents the overall application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server" envconfig:"server"`
	Database   DatabaseConfig   `yaml:"database" envconfig:"database"`
	Gateway    GatewayConfig    `yaml:"gateway" envconfig:"gateway"`
	Push       PushConfig       `yaml:"push" envconfig:"push"`
	Dispatch   DispatchConfig   `yaml:"dispatch" envconfig:"dispatch"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool" envconfig:"worker_pool"`
	Registry   RegistryConfig   `yaml:"registry" envconfig:"registry"`
	Log        LogConfig        `yaml:"log" envconfig:"log"`
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port             int     `yaml:"port" envconfig:"port"`
	RequestIPHeader  string  `yaml:"request_ip_header" envconfig:"request_ip_header"`
	SubscriberHeader string  `yaml:"subscriber_header" envconfig:"subscriber_header"`
	AdminToken       string  `yaml:"admin_token" envconfig:"admin_token"`
	RateLimitPerSec  float64 `yaml:"rate_limit_per_sec" envconfig:"rate_limit_per_sec"`
	RateLimitBurst   int     `yaml:"rate_limit_burst" envconfig:"rate_limit_burst"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	Driver                 string `yaml:"driver" envconfig:"driver"`
	DSN                    string `yaml:"dsn" envconfig:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns" envconfig:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns" envconfig:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes" envconfig:"conn_max_lifetime_minutes"`
	LogQueries             bool   `yaml:"log_queries" envconfig:"log_queries"`
}

// GatewayConfig holds the service-account secrets and endpoints of the push gateway.
type GatewayConfig struct {
	ServiceAccountFile string `yaml:"service_account_file" envconfig:"service_account_file"`
	ClientEmail        string `yaml:"client_email" envconfig:"client_email"`
	PrivateKey         string `yaml:"private_key" envconfig:"private_key"`
	ProjectID          string `yaml:"project_id" envconfig:"project_id"`
	TokenURL           string `yaml:"token_url" envconfig:"token_url"`
	BaseURL            string `yaml:"base_url" envconfig:"base_url"`
	Scope              string `yaml:"scope" envconfig:"scope"`
	RequestTimeoutSec  int    `yaml:"request_timeout_seconds" envconfig:"request_timeout_seconds"`
	HTTPProxy          string `yaml:"http_proxy" envconfig:"http_proxy"`
}

// PushConfig holds the VAPID keys for direct web push delivery.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key" envconfig:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key" envconfig:"vapid_private_key"`
	Subject    string `yaml:"subject" envconfig:"subject"`
	TTL        int    `yaml:"ttl" envconfig:"ttl"`
}

// DispatchConfig bounds a single dispatch call.
type DispatchConfig struct {
	TimeoutSeconds int           `yaml:"timeout_seconds" envconfig:"timeout_seconds"`
	Timeout        time.Duration `yaml:"-" ignored:"true"`
	MaxConcurrency int           `yaml:"max_concurrency" envconfig:"max_concurrency"`
}

// WorkerPoolConfig holds the configuration for the async dispatch worker pool.
type WorkerPoolConfig struct {
	Size      int `yaml:"size" envconfig:"size"`
	QueueSize int `yaml:"queue_size" envconfig:"queue_size"`
}

// RegistryConfig controls registration policy and stale endpoint pruning.
type RegistryConfig struct {
	AllowAnonymous       bool          `yaml:"allow_anonymous" envconfig:"allow_anonymous"`
	StaleAfterDays       int           `yaml:"stale_after_days" envconfig:"stale_after_days"`
	StaleAfter           time.Duration `yaml:"-" ignored:"true"`
	PruneIntervalMinutes int           `yaml:"prune_interval_minutes" envconfig:"prune_interval_minutes"`
	PruneInterval        time.Duration `yaml:"-" ignored:"true"`
}

// LogConfig selects the logrus level and formatter.
type LogConfig struct {
	Level  string `yaml:"level" envconfig:"level"`
	Format string `yaml:"format" envconfig:"format"`
}

// ConfigurationError reports a missing or malformed setting.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

// Load reads the configuration from the given path, applies environment
// overrides and fills defaults. An empty path skips the file.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()

		decoder := yaml.NewDecoder(f)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, errors.Wrapf(err, "decode %s", path)
		}
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, errors.Wrap(err, "apply environment overrides")
	}

	if err := cfg.loadServiceAccount(); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.SubscriberHeader == "" {
		cfg.Server.SubscriberHeader = "X-Subscriber-ID"
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 5
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}

	if cfg.Gateway.TokenURL == "" {
		cfg.Gateway.TokenURL = "https://oauth2.googleapis.com/token"
	}
	if cfg.Gateway.BaseURL == "" {
		cfg.Gateway.BaseURL = "https://fcm.googleapis.com"
	}
	if cfg.Gateway.Scope == "" {
		cfg.Gateway.Scope = "https://www.googleapis.com/auth/firebase.messaging"
	}
	if cfg.Gateway.RequestTimeoutSec <= 0 {
		cfg.Gateway.RequestTimeoutSec = 10
	}
	// Keys pasted into env vars usually carry escaped newlines.
	cfg.Gateway.PrivateKey = strings.ReplaceAll(cfg.Gateway.PrivateKey, `\n`, "\n")

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}

	if cfg.Dispatch.TimeoutSeconds <= 0 {
		cfg.Dispatch.TimeoutSeconds = 30
	}
	cfg.Dispatch.Timeout = time.Duration(cfg.Dispatch.TimeoutSeconds) * time.Second

	if cfg.WorkerPool.Size <= 0 {
		logrus.Info("worker_pool.size is not set or invalid; defaulting to 1")
		cfg.WorkerPool.Size = 1
	}
	if cfg.WorkerPool.QueueSize <= 0 {
		cfg.WorkerPool.QueueSize = cfg.WorkerPool.Size * 16
	}

	if cfg.Registry.StaleAfterDays > 0 {
		cfg.Registry.StaleAfter = time.Duration(cfg.Registry.StaleAfterDays) * 24 * time.Hour
	}
	if cfg.Registry.PruneIntervalMinutes <= 0 {
		cfg.Registry.PruneIntervalMinutes = 60
	}
	cfg.Registry.PruneInterval = time.Duration(cfg.Registry.PruneIntervalMinutes) * time.Minute

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}

type serviceAccountFile struct {
	ClientEmail string `json:"client_email"`
	PrivateKey  string `json:"private_key"`
	ProjectID   string `json:"project_id"`
	TokenURI    string `json:"token_uri"`
}

// loadServiceAccount fills gateway secrets that were not set explicitly from
// the service-account JSON file.
func (cfg *Config) loadServiceAccount() error {
	path := cfg.Gateway.ServiceAccountFile
	if path == "" {
		return nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return &ConfigurationError{Field: "gateway.service_account_file", Reason: err.Error()}
	}

	var sa serviceAccountFile
	if err := json.Unmarshal(raw, &sa); err != nil {
		return &ConfigurationError{Field: "gateway.service_account_file", Reason: "not a service account JSON file: " + err.Error()}
	}

	if cfg.Gateway.ClientEmail == "" {
		cfg.Gateway.ClientEmail = sa.ClientEmail
	}
	if cfg.Gateway.PrivateKey == "" {
		cfg.Gateway.PrivateKey = sa.PrivateKey
	}
	if cfg.Gateway.ProjectID == "" {
		cfg.Gateway.ProjectID = sa.ProjectID
	}
	if cfg.Gateway.TokenURL == "" {
		cfg.Gateway.TokenURL = sa.TokenURI
	}
	return nil
}

// Verify checks the settings every dispatch depends on. It must be called
// once at startup, before any dispatch is attempted.
func (cfg *Config) Verify() error {
	if cfg.Gateway.ClientEmail == "" {
		return &ConfigurationError{Field: "gateway.client_email", Reason: "service account email is required"}
	}
	if cfg.Gateway.PrivateKey == "" {
		return &ConfigurationError{Field: "gateway.private_key", Reason: "service account private key is required"}
	}
	if !strings.Contains(cfg.Gateway.PrivateKey, "PRIVATE KEY") {
		return &ConfigurationError{Field: "gateway.private_key", Reason: "private key must be PEM encoded"}
	}
	if cfg.Gateway.ProjectID == "" {
		return &ConfigurationError{Field: "gateway.project_id", Reason: "gateway project identifier is required"}
	}
	if (cfg.Push.PublicKey == "") != (cfg.Push.PrivateKey == "") {
		return &ConfigurationError{Field: "push", Reason: "vapid_public_key and vapid_private_key must be set together"}
	}
	if cfg.Push.PublicKey != "" && cfg.Push.Subject == "" {
		return &ConfigurationError{Field: "push.subject", Reason: "a contact subject is required when VAPID keys are configured"}
	}
	switch cfg.Database.Driver {
	case "postgres", "sqlite":
	default:
		return &ConfigurationError{Field: "database.driver", Reason: fmt.Sprintf("unsupported driver %q", cfg.Database.Driver)}
	}
	if cfg.Database.DSN == "" {
		return &ConfigurationError{Field: "database.dsn", Reason: "database DSN is required"}
	}
	if cfg.Server.AdminToken == "" {
		logrus.Warn("server.admin_token is empty; the send endpoint will reject every request")
	}
	return nil
}

// WebPushEnabled reports whether VAPID keys are configured.
func (cfg *Config) WebPushEnabled() bool {
	return cfg.Push.PublicKey != "" && cfg.Push.PrivateKey != ""
}
