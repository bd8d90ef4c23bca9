package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config file location.
const ConfigPath = "config.yaml"

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port      string `yaml:"port" validate:"required,numeric"`
	LogLevel  string `yaml:"logLevel" validate:"omitempty,oneof=debug info warn error"`
	LogFormat string `yaml:"logFormat" validate:"omitempty,oneof=json text"`

	DatabaseURL   string `yaml:"databaseURL" validate:"required"`
	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`
	CacheTTL      string `yaml:"cacheTTL"`

	// Log jobs go to a Redis stream or a RabbitMQ queue.
	QueueDriver string `yaml:"queueDriver" validate:"omitempty,oneof=redis rabbitmq none"`
	QueueStream string `yaml:"queueStream"`
	AMQPURL     string `yaml:"amqpURL"`
	AMQPQueue   string `yaml:"amqpQueue"`
	LogBuffer   int    `yaml:"logBuffer" validate:"gte=0"`
	LogWorkers  int    `yaml:"logWorkers" validate:"gte=0"`

	// Chat providers, tried in ProviderOrder. Providers without credentials are skipped.
	ProviderOrder   []string `yaml:"providerOrder" validate:"dive,oneof=groq ollama gemini openai"`
	ProviderTimeout string   `yaml:"providerTimeout"`
	GroqAPIKey      string   `yaml:"groqAPIKey"`
	GroqModel       string   `yaml:"groqModel"`
	OllamaBaseURL   string   `yaml:"ollamaBaseURL" validate:"omitempty,url"`
	OllamaModel     string   `yaml:"ollamaModel"`
	GeminiAPIKey    string   `yaml:"geminiAPIKey"`
	GeminiModel     string   `yaml:"geminiModel"`
	GeminiBaseURL   string   `yaml:"geminiBaseURL" validate:"omitempty,url"`
	OpenAIAPIKey    string   `yaml:"openaiAPIKey"`
	OpenAIBaseURL   string   `yaml:"openaiBaseURL" validate:"omitempty,url"`
	OpenAIModel     string   `yaml:"openaiModel"`

	HuggingFaceToken string `yaml:"huggingfaceToken"`
	HuggingFaceModel string `yaml:"huggingfaceModel"`
	OpenAIImageModel string `yaml:"openaiImageModel"`
	GoogleImageModel string `yaml:"googleImageModel"`
	GoogleAPIBaseURL string `yaml:"googleAPIBaseURL" validate:"omitempty,url"`

	GatewayURL     string `yaml:"gatewayURL" validate:"omitempty,url"`
	GatewayAPIKey  string `yaml:"gatewayAPIKey"`
	GatewayTimeout string `yaml:"gatewayTimeout"`

	MinioEndpoint  string `yaml:"minioEndpoint"`
	MinioAccessKey string `yaml:"minioAccessKey"`
	MinioSecretKey string `yaml:"minioSecretKey"`
	MinioBucket    string `yaml:"minioBucket"`
	MinioUseSSL    bool   `yaml:"minioUseSSL"`
	PresignExpiry  string `yaml:"presignExpiry"`

	Sufficiency       Thresholds `yaml:"sufficiency"`
	AIRateLimitPerMin int        `yaml:"aiRateLimitPerMinute" validate:"gte=0"`

	AuthJWKSURL string `yaml:"authJWKSURL" validate:"required,url"`
	JWTIssuer   string `yaml:"jwtIssuer" validate:"required"`
	JWTAudience string `yaml:"jwtAudience"`
	JWTLeeway   string `yaml:"jwtLeeway"`
	SealingKey  string `yaml:"sealingKey"`
	StateSecret string `yaml:"stateSecret"`

	OAuthClientID     string `yaml:"googleOAuthClientID"`
	OAuthClientSecret string `yaml:"googleOAuthClientSecret"`
	OAuthRedirectURL  string `yaml:"googleOAuthRedirectURL" validate:"omitempty,url"`
	OAuthReturnURL    string `yaml:"oauthReturnURL" validate:"omitempty,url"`

	TelephonyAuthToken string `yaml:"telephonyAuthToken"`
	PublicBaseURL      string `yaml:"publicBaseURL" validate:"omitempty,url"`
	TelephonyVoice     string `yaml:"telephonyVoice"`
	TelephonyLanguage  string `yaml:"telephonyLanguage"`
	GatherActionURL    string `yaml:"gatherActionURL"`

	CORSOrigins    []string `yaml:"corsOrigins"`
	TrustedProxies []string `yaml:"trustedProxies"`
}

// Thresholds is the signal-count table of the chat sufficiency check.
type Thresholds struct {
	High   int `yaml:"high" validate:"gte=0"`
	Medium int `yaml:"medium" validate:"gte=0"`
}

// Load reads config from path (defaults to config.yaml).
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	applyEnv(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyEnv overrides file values with environment variables.
func applyEnv(cfg *FileConfig) {
	envString(&cfg.Port, "PORT")
	envString(&cfg.LogLevel, "LOG_LEVEL")
	envString(&cfg.DatabaseURL, "DATABASE_URL")
	envString(&cfg.RedisAddr, "REDIS_ADDR")
	envString(&cfg.RedisPassword, "REDIS_PASSWORD")
	envString(&cfg.QueueDriver, "QUEUE_DRIVER")
	envString(&cfg.AMQPURL, "AMQP_URL")
	envString(&cfg.GroqAPIKey, "GROQ_API_KEY")
	envString(&cfg.OllamaBaseURL, "OLLAMA_BASE_URL")
	envString(&cfg.GeminiAPIKey, "GEMINI_API_KEY")
	envString(&cfg.GeminiBaseURL, "GEMINI_BASE_URL")
	envString(&cfg.OpenAIAPIKey, "OPENAI_API_KEY")
	envString(&cfg.HuggingFaceToken, "HUGGINGFACE_API_TOKEN")
	envString(&cfg.GatewayURL, "AI_GATEWAY_URL")
	envString(&cfg.GatewayAPIKey, "AI_GATEWAY_API_KEY")
	envString(&cfg.MinioEndpoint, "MINIO_ENDPOINT")
	envString(&cfg.MinioAccessKey, "MINIO_ACCESS_KEY")
	envString(&cfg.MinioSecretKey, "MINIO_SECRET_KEY")
	envString(&cfg.MinioBucket, "MINIO_BUCKET")
	envBool(&cfg.MinioUseSSL, "MINIO_USE_SSL")
	envString(&cfg.AuthJWKSURL, "AUTH_JWKS_URL")
	envString(&cfg.JWTIssuer, "JWT_ISSUER")
	envString(&cfg.JWTAudience, "JWT_AUDIENCE")
	envString(&cfg.JWTLeeway, "JWT_LEEWAY")
	envString(&cfg.SealingKey, "INTEGRATION_SEALING_KEY")
	envString(&cfg.StateSecret, "OAUTH_STATE_SECRET")
	envString(&cfg.OAuthClientID, "GOOGLE_OAUTH_CLIENT_ID")
	envString(&cfg.OAuthClientSecret, "GOOGLE_OAUTH_CLIENT_SECRET")
	envString(&cfg.OAuthRedirectURL, "GOOGLE_OAUTH_REDIRECT_URL")
	envString(&cfg.TelephonyAuthToken, "TWILIO_AUTH_TOKEN")
	envString(&cfg.PublicBaseURL, "PUBLIC_BASE_URL")
	envInt(&cfg.AIRateLimitPerMin, "AI_RATE_LIMIT_PER_MINUTE")
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		cfg.CORSOrigins = splitList(v)
	}
	if v := os.Getenv("TRUSTED_PROXIES"); v != "" {
		cfg.TrustedProxies = splitList(v)
	}
}

func envString(dst *string, name string) {
	if v := os.Getenv(name); v != "" {
		*dst = v
	}
}

func envInt(dst *int, name string) {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envBool(dst *bool, name string) {
	if v := os.Getenv(name); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml or PORT)")
	}
	if cfg.DatabaseURL == "" {
		return errors.New("config: databaseURL is required (set in config.yaml or DATABASE_URL)")
	}
	if cfg.AuthJWKSURL == "" {
		return errors.New("config: authJWKSURL is required (set in config.yaml or AUTH_JWKS_URL)")
	}
	if cfg.JWTIssuer == "" {
		return errors.New("config: jwtIssuer is required (set in config.yaml or JWT_ISSUER)")
	}
	switch cfg.queueDriver() {
	case "redis":
		if strings.TrimSpace(cfg.RedisAddr) == "" {
			return errors.New("config: redisAddr is required for queueDriver redis (set REDIS_ADDR or queueDriver: none)")
		}
	case "rabbitmq":
		if strings.TrimSpace(cfg.AMQPURL) == "" {
			return errors.New("config: amqpURL is required for queueDriver rabbitmq (set in config.yaml or AMQP_URL)")
		}
	}
	if cfg.SealingKey != "" {
		key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(cfg.SealingKey))
		if err != nil || len(key) != 32 {
			return errors.New("config: sealingKey must be a base64-encoded 32-byte key (INTEGRATION_SEALING_KEY)")
		}
	}
	if cfg.OAuthClientID != "" {
		if cfg.OAuthClientSecret == "" || cfg.OAuthRedirectURL == "" {
			return errors.New("config: googleOAuthClientID requires googleOAuthClientSecret and googleOAuthRedirectURL")
		}
		if len(cfg.StateSecret) < 32 {
			return errors.New("config: stateSecret of at least 32 characters is required for Google OAuth (OAUTH_STATE_SECRET)")
		}
		if cfg.SealingKey == "" {
			return errors.New("config: sealingKey is required for Google OAuth (INTEGRATION_SEALING_KEY)")
		}
	}
	if cfg.MinioEndpoint != "" && cfg.MinioBucket == "" {
		return errors.New("config: minioBucket is required when minioEndpoint is set")
	}
	if cfg.Sufficiency.High > 0 && cfg.Sufficiency.High < cfg.Sufficiency.Medium {
		return errors.New("config: sufficiency.high must be >= sufficiency.medium")
	}
	for _, d := range []struct{ name, value string }{
		{"cacheTTL", cfg.CacheTTL},
		{"providerTimeout", cfg.ProviderTimeout},
		{"gatewayTimeout", cfg.GatewayTimeout},
		{"presignExpiry", cfg.PresignExpiry},
		{"jwtLeeway", cfg.JWTLeeway},
	} {
		if _, err := ParseDuration(d.value); err != nil {
			return fmt.Errorf("config: %s: %w", d.name, err)
		}
	}
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// EffectiveQueueDriver returns the effective log queue driver.
func (c FileConfig) EffectiveQueueDriver() string {
	return c.queueDriver()
}

func (c FileConfig) queueDriver() string {
	driver := strings.ToLower(strings.TrimSpace(c.QueueDriver))
	if driver == "" {
		if strings.TrimSpace(c.RedisAddr) == "" {
			return "none"
		}
		return "redis"
	}
	return driver
}

// ParseDuration parses an optional duration string; empty means zero.
func ParseDuration(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	dur, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	return dur, nil
}
