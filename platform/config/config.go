// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// JWTConfig provides JWT validation settings for middleware.
type JWTConfig interface {
	GetJWTAccessSecret() string
}

// AuthServiceConfig provides settings needed by the auth service.
type AuthServiceConfig interface {
	JWTConfig
	GetAccessTokenTTL() time.Duration
	GetAdminToken() string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
	GetCORSAllowCreds() bool
}

// TwilioConfig provides settings for the Twilio messaging provider.
type TwilioConfig interface {
	GetTwilioAccountSID() string
	GetTwilioAuthTokenREST() string
	GetTwilioAuthTokenSig() string
	GetTwilioWhatsAppFrom() string
}

// TemplateConfig provides settings for reopen template dispatching.
type TemplateConfig interface {
	GetReopenTemplateSIDDefault() string
	GetReopenTemplateSIDPendingHandoff() string
	GetReopenTemplateSIDBot() string
	GetTemplateTimezone() string
	GetTemplateHonorific() string
}

// SchedulerConfig provides settings for the asynq scheduler.
type SchedulerConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
}

// SweepConfig provides settings for the batch reopen sweep.
type SweepConfig interface {
	GetSweepInterval() time.Duration
	GetSweepConcurrency() int
}

// SendConfig provides settings for outbound free-text sends.
type SendConfig interface {
	GetSendRatePerConversation() float64
}

// AgentDirectoryConfig provides the identity to display-name mapping.
type AgentDirectoryConfig interface {
	GetAgentDisplayNames() map[string]string
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env      string
	HTTPAddr string

	DatabaseURL string

	JWTAccessSecret string
	AccessTokenTTL  time.Duration
	AdminToken      string

	CORSAllowAll   bool
	CORSOrigins    []string
	CORSAllowCreds bool

	TwilioAccountSID    string
	TwilioAuthTokenREST string
	TwilioAuthTokenSig  string
	TwilioWhatsAppFrom  string

	ReopenTemplateSIDDefault        string
	ReopenTemplateSIDPendingHandoff string
	ReopenTemplateSIDBot            string
	TemplateTimezone                string
	TemplateHonorific               string

	RedisURL         string
	RedisTLSInsecure bool
	AsynqQueueName   string
	AsynqConcurrency int

	SweepInterval    time.Duration
	SweepConcurrency int

	SendRatePerConversation float64

	AgentDisplayNames map[string]string
}

// Load reads configuration from environment variables, optionally seeded from
// a .env file in development.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Env:      getEnv("ENV", "development"),
		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),

		DatabaseURL: os.Getenv("DATABASE_URL"),

		JWTAccessSecret: os.Getenv("JWT_ACCESS_SECRET"),
		AccessTokenTTL:  getDurationEnv("ACCESS_TOKEN_TTL", 8*time.Hour),
		AdminToken:      strings.TrimSpace(os.Getenv("CRM_ADMIN_TOKEN")),

		CORSAllowAll:   getBoolEnv("CORS_ALLOW_ALL", false),
		CORSOrigins:    getListEnv("CORS_ORIGINS"),
		CORSAllowCreds: getBoolEnv("CORS_ALLOW_CREDENTIALS", true),

		TwilioAccountSID:    strings.TrimSpace(os.Getenv("TWILIO_ACCOUNT_SID")),
		TwilioAuthTokenREST: strings.TrimSpace(os.Getenv("TWILIO_AUTH_TOKEN_REST")),
		TwilioAuthTokenSig:  strings.TrimSpace(os.Getenv("TWILIO_AUTH_TOKEN")),
		TwilioWhatsAppFrom:  strings.TrimSpace(os.Getenv("TWILIO_WHATSAPP_FROM")),

		TemplateTimezone:  getEnv("TEMPLATE_TIMEZONE", "America/Sao_Paulo"),
		TemplateHonorific: getEnv("TEMPLATE_HONORIFIC", "Sr(a)"),

		RedisURL:         strings.TrimSpace(os.Getenv("REDIS_URL")),
		RedisTLSInsecure: getBoolEnv("REDIS_TLS_INSECURE", false),
		AsynqQueueName:   getEnv("ASYNQ_QUEUE", "default"),
		AsynqConcurrency: getIntEnv("ASYNQ_CONCURRENCY", 10),

		SweepInterval:    getDurationEnv("SWEEP_INTERVAL", time.Hour),
		SweepConcurrency: getIntEnv("SWEEP_CONCURRENCY", 4),

		SendRatePerConversation: getFloatEnv("RATE_LIMIT_SEND_PER_CONVO_PER_SEC", 1),

		AgentDisplayNames: parseDisplayNames(os.Getenv("AGENT_DISPLAY_NAMES")),
	}

	// Template SIDs fall back to the default SID so a single-template deployment
	// only needs one variable set.
	cfg.ReopenTemplateSIDDefault = strings.TrimSpace(os.Getenv("TWILIO_REOPEN_TEMPLATE_SID"))
	cfg.ReopenTemplateSIDPendingHandoff = getEnv("TWILIO_REOPEN_TEMPLATE_SID_PENDING_HANDOFF", cfg.ReopenTemplateSIDDefault)
	cfg.ReopenTemplateSIDBot = getEnv("TWILIO_REOPEN_TEMPLATE_SID_BOT", cfg.ReopenTemplateSIDDefault)

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.JWTAccessSecret == "" {
		return nil, fmt.Errorf("JWT_ACCESS_SECRET is required")
	}

	return cfg, nil
}

// parseDisplayNames parses "id=Name,id2=Name Two" into a map.
func parseDisplayNames(raw string) map[string]string {
	out := map[string]string{}
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		k = strings.TrimSpace(k)
		v = strings.TrimSpace(v)
		if k != "" && v != "" {
			out[k] = v
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getBoolEnv(key string, fallback bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return parsed
}

func getIntEnv(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func getFloatEnv(key string, fallback float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(raw, 64)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func getListEnv(key string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// Interface implementations.

func (c *Config) GetDatabaseURL() string     { return c.DatabaseURL }
func (c *Config) GetJWTAccessSecret() string { return c.JWTAccessSecret }
func (c *Config) GetAccessTokenTTL() time.Duration {
	return c.AccessTokenTTL
}
func (c *Config) GetAdminToken() string { return c.AdminToken }

func (c *Config) GetHTTPAddr() string       { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool     { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string  { return c.CORSOrigins }
func (c *Config) GetCORSAllowCreds() bool   { return c.CORSAllowCreds }

func (c *Config) GetTwilioAccountSID() string    { return c.TwilioAccountSID }
func (c *Config) GetTwilioAuthTokenREST() string { return c.TwilioAuthTokenREST }
func (c *Config) GetTwilioAuthTokenSig() string  { return c.TwilioAuthTokenSig }
func (c *Config) GetTwilioWhatsAppFrom() string  { return c.TwilioWhatsAppFrom }

func (c *Config) GetReopenTemplateSIDDefault() string { return c.ReopenTemplateSIDDefault }
func (c *Config) GetReopenTemplateSIDPendingHandoff() string {
	return c.ReopenTemplateSIDPendingHandoff
}
func (c *Config) GetReopenTemplateSIDBot() string { return c.ReopenTemplateSIDBot }
func (c *Config) GetTemplateTimezone() string     { return c.TemplateTimezone }
func (c *Config) GetTemplateHonorific() string    { return c.TemplateHonorific }

func (c *Config) GetRedisURL() string       { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int  { return c.AsynqConcurrency }

func (c *Config) GetSweepInterval() time.Duration { return c.SweepInterval }
func (c *Config) GetSweepConcurrency() int        { return c.SweepConcurrency }

func (c *Config) GetSendRatePerConversation() float64 { return c.SendRatePerConversation }

func (c *Config) GetAgentDisplayNames() map[string]string { return c.AgentDisplayNames }
