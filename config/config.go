package config

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Provider kinds accepted in the chain order
const (
	ProviderAzure     = "azure"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
	ProviderScripted  = "scripted"
)

// DefaultProviderOrder is the chain used when CHAT_PROVIDER_ORDER is unset
var DefaultProviderOrder = []string{ProviderAzure, ProviderAnthropic, ProviderGemini}

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig
	Database      *DatabaseConfig // Optional: transcripts are only persisted when set
	Chat          ChatConfig
	Providers     ProvidersConfig
	Observability ObservabilityConfig
	Auth          AuthConfig
	Sessions      SessionsConfig
	Environment   string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int `validate:"gt=0,lte=65535"`
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	TLS             struct {
		Enabled  bool
		CertFile string
		KeyFile  string
	}
}

// DatabaseConfig holds PostgreSQL configuration, read from DATABASE_URL
type DatabaseConfig struct {
	ConnectionString string `validate:"required"`
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
}

// ChatConfig holds the turn-taking defaults shared by every session
type ChatConfig struct {
	Temperature  float64 `validate:"gte=0,lte=2"`
	MaxTokens    int     `validate:"gt=0"`
	SystemPrompt string

	// ProviderOrder is the fallback chain, most preferred first
	ProviderOrder []string `validate:"min=1,dive,oneof=azure anthropic gemini scripted"`

	// RequireAllProviders fails startup when any adapter in the chain
	// cannot be constructed instead of skipping it
	RequireAllProviders bool

	// FallbackStopOn lists error kinds that abort the chain
	FallbackStopOn []string
}

// ProvidersConfig holds the per-backend settings. Secrets only come from
// the environment.
type ProvidersConfig struct {
	Azure     AzureConfig
	Anthropic AnthropicConfig
	Gemini    GeminiConfig
	Scripted  ScriptedConfig
	Timeout   time.Duration
}

// AzureConfig holds Azure OpenAI configuration
type AzureConfig struct {
	APIKey     string `yaml:"-"`
	Endpoint   string `yaml:"endpoint"`
	Deployment string `yaml:"deployment"`
	APIVersion string `yaml:"api_version"`
}

// AnthropicConfig holds Anthropic configuration
type AnthropicConfig struct {
	APIKey  string `yaml:"-"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
}

// GeminiConfig holds Gemini configuration
type GeminiConfig struct {
	APIKey  string `yaml:"-"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
}

// ScriptedConfig holds the offline provider's canned reply
type ScriptedConfig struct {
	Reply string `yaml:"reply"`
}

// ObservabilityConfig holds monitoring and logging configuration
type ObservabilityConfig struct {
	LogLevel       string `validate:"required"`
	LogFormat      string `validate:"oneof=json text console"`
	MetricsEnabled bool
}

// AuthConfig holds bearer-token settings for the HTTP gateway.
// Authentication is disabled when JWTSecret is empty.
type AuthConfig struct {
	JWTSecret string
	Issuer    string
	TokenTTL  time.Duration
}

// SessionsConfig holds the gateway's in-memory session settings
type SessionsConfig struct {
	IdleTTL        time.Duration
	SweepInterval  time.Duration
	ExpertsFile    string
	DocsDir        string
	AllowedOrigins []string
}

// providersFile is the layout of CHAT_PROVIDERS_FILE
type providersFile struct {
	Order        []string         `yaml:"order"`
	Temperature  *float64         `yaml:"temperature"`
	MaxTokens    *int             `yaml:"max_tokens"`
	SystemPrompt *string          `yaml:"system_prompt"`
	Timeout      string           `yaml:"timeout"`
	Azure        *AzureConfig     `yaml:"azure"`
	Anthropic    *AnthropicConfig `yaml:"anthropic"`
	Gemini       *GeminiConfig    `yaml:"gemini"`
	Scripted     *ScriptedConfig  `yaml:"scripted"`
}

var validate = validator.New()

// New creates a new Config instance by loading environment variables
func New(ctx context.Context) (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getPort(),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 5*time.Minute),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			TLS: struct {
				Enabled  bool
				CertFile string
				KeyFile  string
			}{
				Enabled:  getEnvAsBool("TLS_ENABLED", false),
				CertFile: getEnv("TLS_CERT_FILE", "certs/cert.pem"),
				KeyFile:  getEnv("TLS_KEY_FILE", "certs/key.pem"),
			},
		},
		Database: loadDatabaseConfig(),
		Chat: ChatConfig{
			Temperature:         getEnvAsFloat("CHAT_TEMPERATURE", 0.7),
			MaxTokens:           getEnvAsInt("CHAT_MAX_TOKENS", 1024),
			SystemPrompt:        getEnv("CHAT_SYSTEM_PROMPT", ""),
			ProviderOrder:       getEnvAsList("CHAT_PROVIDER_ORDER", DefaultProviderOrder),
			RequireAllProviders: getEnvAsBool("CHAT_REQUIRE_ALL_PROVIDERS", false),
			FallbackStopOn:      getEnvAsList("FALLBACK_STOP_ON", nil),
		},
		Providers: ProvidersConfig{
			Azure: AzureConfig{
				APIKey:     getEnv("AZURE_OPENAI_API_KEY", ""),
				Endpoint:   getEnv("AZURE_OPENAI_ENDPOINT", ""),
				Deployment: getEnv("AZURE_OPENAI_DEPLOYMENT_NAME", ""),
				APIVersion: getEnv("AZURE_OPENAI_API_VERSION", ""),
			},
			Anthropic: AnthropicConfig{
				APIKey:  getEnv("ANTHROPIC_API_KEY", ""),
				Model:   getEnv("ANTHROPIC_MODEL", ""),
				BaseURL: getEnv("ANTHROPIC_BASE_URL", ""),
			},
			Gemini: GeminiConfig{
				APIKey:  getEnv("GEMINI_API_KEY", ""),
				Model:   getEnv("GEMINI_MODEL", ""),
				BaseURL: getEnv("GEMINI_BASE_URL", ""),
			},
			Scripted: ScriptedConfig{
				Reply: getEnv("SCRIPTED_REPLY", ""),
			},
			Timeout: getEnvAsDuration("PROVIDER_TIMEOUT", 60*time.Second),
		},
		Observability: ObservabilityConfig{
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			LogFormat:      getEnv("LOG_FORMAT", "json"),
			MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("AUTH_JWT_SECRET", ""),
			Issuer:    getEnv("AUTH_JWT_ISSUER", ""),
			TokenTTL:  getEnvAsDuration("AUTH_TOKEN_TTL", time.Hour),
		},
		Sessions: SessionsConfig{
			IdleTTL:        getEnvAsDuration("SESSION_IDLE_TTL", 30*time.Minute),
			SweepInterval:  getEnvAsDuration("SESSION_SWEEP_INTERVAL", time.Minute),
			ExpertsFile:    getEnv("CHAT_EXPERTS_FILE", ""),
			DocsDir:        getEnv("CHAT_DOCS_DIR", ""),
			AllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		},
	}

	if path := getEnv("CHAT_PROVIDERS_FILE", ""); path != "" {
		if err := cfg.LoadProvidersFile(path); err != nil {
			return nil, err
		}
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadProvidersFile overlays the non-secret settings of a YAML chain file.
// Fields present in the file win over the environment.
func (c *Config) LoadProvidersFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read providers file: %w", err)
	}

	var f providersFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse providers file %s: %w", path, err)
	}

	if len(f.Order) > 0 {
		c.Chat.ProviderOrder = normalizeList(f.Order)
	}
	if f.Temperature != nil {
		c.Chat.Temperature = *f.Temperature
	}
	if f.MaxTokens != nil {
		c.Chat.MaxTokens = *f.MaxTokens
	}
	if f.SystemPrompt != nil {
		c.Chat.SystemPrompt = *f.SystemPrompt
	}
	if f.Timeout != "" {
		d, err := time.ParseDuration(f.Timeout)
		if err != nil {
			return fmt.Errorf("parse providers file %s: timeout: %w", path, err)
		}
		c.Providers.Timeout = d
	}
	if f.Azure != nil {
		overlay(&c.Providers.Azure.Endpoint, f.Azure.Endpoint)
		overlay(&c.Providers.Azure.Deployment, f.Azure.Deployment)
		overlay(&c.Providers.Azure.APIVersion, f.Azure.APIVersion)
	}
	if f.Anthropic != nil {
		overlay(&c.Providers.Anthropic.Model, f.Anthropic.Model)
		overlay(&c.Providers.Anthropic.BaseURL, f.Anthropic.BaseURL)
	}
	if f.Gemini != nil {
		overlay(&c.Providers.Gemini.Model, f.Gemini.Model)
		overlay(&c.Providers.Gemini.BaseURL, f.Gemini.BaseURL)
	}
	if f.Scripted != nil {
		overlay(&c.Providers.Scripted.Reply, f.Scripted.Reply)
	}
	return nil
}

func overlay(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// Validate checks if all required configuration fields are set
func (c *Config) Validate() error {
	if err := validate.Struct(c.Server); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	if err := validate.Struct(c.Chat); err != nil {
		return fmt.Errorf("chat: %w", err)
	}
	if err := validate.Struct(c.Observability); err != nil {
		return fmt.Errorf("observability: %w", err)
	}
	if c.Database != nil {
		if err := validate.Struct(c.Database); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}

	seen := make(map[string]bool, len(c.Chat.ProviderOrder))
	for _, p := range c.Chat.ProviderOrder {
		if seen[p] {
			return fmt.Errorf("provider %q listed more than once in the chain", p)
		}
		seen[p] = true
	}

	if c.Providers.Timeout <= 0 {
		return errors.New("provider timeout must be positive")
	}

	if c.Sessions.IdleTTL <= 0 || c.Sessions.SweepInterval <= 0 {
		return errors.New("session idle TTL and sweep interval must be positive")
	}

	if c.IsProduction() && c.Auth.JWTSecret == "" {
		return errors.New("auth JWT secret is required in production")
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// DSN returns the PostgreSQL connection string
func (c *DatabaseConfig) DSN() string {
	return c.ConnectionString
}

// LogString returns a safe string for logging (no password)
func (c *DatabaseConfig) LogString() string {
	u, err := url.Parse(c.ConnectionString)
	if err != nil || u.Host == "" {
		return "host=<from DATABASE_URL>"
	}
	port := u.Port()
	if port == "" {
		port = "5432"
	}
	return fmt.Sprintf("host=%s port=%s database=%s", u.Hostname(), port, strings.TrimPrefix(u.Path, "/"))
}

// loadDatabaseConfig returns nil when DATABASE_URL is unset
func loadDatabaseConfig() *DatabaseConfig {
	dbURL := getEnv("DATABASE_URL", "")
	if dbURL == "" {
		return nil
	}
	return &DatabaseConfig{
		ConnectionString: dbURL,
		MaxOpenConns:     getEnvAsInt("DB_MAX_OPEN_CONNS", 10),
		MaxIdleConns:     getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime:  getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
	}
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Helper functions

// getPort returns the server port from PORT or SERVER_PORT env vars (default: 8080)
func getPort() int {
	if value := os.Getenv("PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	return getEnvAsInt("SERVER_PORT", 8080)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsList splits a comma separated value, lowercasing and dropping blanks
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return append([]string(nil), defaultValue...)
	}
	list := normalizeList(strings.Split(valueStr, ","))
	if len(list) == 0 {
		return append([]string(nil), defaultValue...)
	}
	return list
}

func normalizeList(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.ToLower(strings.TrimSpace(item))
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}
