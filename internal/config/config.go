// Package config defines the configuration contract and handles loading and validating environment configuration.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	// Canonical environment variable keys.
	KeyTelegramToken     = "TELEGRAM_TOKEN"
	KeySessionSecret     = "SESSION_SECRET"
	KeyMongoURI          = "MONGO_URI"
	KeyMongoDB           = "MONGO_DB"
	KeyAdminIDs          = "ADMIN_IDS"
	KeyAppEnv            = "APP_ENV"
	KeyLogLevel          = "LOG_LEVEL"
	KeyHTTPPort          = "HTTP_PORT"
	KeyAuthMaxAge        = "AUTH_MAX_AGE"
	KeySessionTTL        = "SESSION_TTL"
	KeyWhitelistTimeout  = "WHITELIST_TIMEOUT"
	KeyAuthRateLimit     = "AUTH_RATE_LIMIT"
	KeyCORSAllowedOrigin = "CORS_ALLOWED_ORIGIN"
	KeyMiniAppURL        = "MINI_APP_URL"
	KeySupportURL        = "SUPPORT_URL"

	// Allowed environment values.
	EnvDevelopment = "development"
	EnvProduction  = "production"

	// Defaults for optional settings.
	DefaultAppEnv            = EnvProduction
	DefaultLogLevel          = "info"
	DefaultHTTPPort          = 8080
	DefaultAuthMaxAge        = 24 * time.Hour
	DefaultSessionTTL        = 24 * time.Hour
	DefaultWhitelistTimeout  = 3 * time.Second
	DefaultAuthRateLimit     = 30
	DefaultCORSAllowedOrigin = "*"
	DefaultMiniAppURL        = "https://t.me/ai_trade_bot/app"
	DefaultSupportURL        = "https://t.me/ai_trade_support"

	// MinSessionSecretLength is the minimum accepted SESSION_SECRET size in bytes.
	MinSessionSecretLength = 32

	// Recommended database names by environment.
	DefaultMongoDBProd = "ai_trade"
	DefaultMongoDBDev  = "ai_trade_dev"
)

// VarSpec describes a single configuration key.
type VarSpec struct {
	Key         string // environment variable name
	Example     string // human-friendly sample value
	Required    bool   // whether the gateway must refuse to start without this value
	Default     string // default when unset (empty when required)
	Description string // what the variable controls
	Notes       string // extra guidance or policies
}

// Contract enumerates the authoritative configuration keys for the gateway.
// .env loading is only permitted when APP_ENV=development; production must rely
// on environment variables supplied by the runtime.
var Contract = []VarSpec{
	{
		Key:         KeyTelegramToken,
		Example:     "123:ABC",
		Required:    true,
		Description: "Telegram Bot Token issued by BotFather; also the initData signing secret.",
	},
	{
		Key:         KeySessionSecret,
		Example:     "change-me-to-at-least-32-random-bytes",
		Required:    true,
		Description: "HMAC secret for session tokens.",
		Notes:       "Must be at least " + strconv.Itoa(MinSessionSecretLength) + " bytes.",
	},
	{
		Key:         KeyMongoURI,
		Example:     "mongodb://localhost:27017",
		Required:    true,
		Description: "MongoDB connection string.",
	},
	{
		Key:         KeyMongoDB,
		Example:     DefaultMongoDBProd + " / " + DefaultMongoDBDev,
		Required:    true,
		Description: "MongoDB database name.",
		Notes:       "Recommended: production=" + DefaultMongoDBProd + ", development=" + DefaultMongoDBDev + ".",
	},
	{
		Key:         KeyAdminIDs,
		Example:     "123456789,987654321",
		Description: "Comma-separated Telegram user ids allowed to manage the whitelist.",
	},
	{
		Key:         KeyAppEnv,
		Example:     EnvDevelopment + " / " + EnvProduction,
		Default:     DefaultAppEnv,
		Description: "Runtime environment; controls log format and dotenv usage.",
		Notes:       "Load .env files only when APP_ENV=" + EnvDevelopment + ".",
	},
	{
		Key:         KeyLogLevel,
		Example:     DefaultLogLevel,
		Default:     DefaultLogLevel,
		Description: "Overrides default log level.",
	},
	{
		Key:         KeyHTTPPort,
		Example:     strconv.Itoa(DefaultHTTPPort),
		Default:     strconv.Itoa(DefaultHTTPPort),
		Description: "HTTP API, health and metrics port.",
	},
	{
		Key:         KeyAuthMaxAge,
		Example:     "24h",
		Default:     DefaultAuthMaxAge.String(),
		Description: "Maximum accepted age of Mini App initData.",
	},
	{
		Key:         KeySessionTTL,
		Example:     "24h",
		Default:     DefaultSessionTTL.String(),
		Description: "Lifetime of issued session tokens.",
	},
	{
		Key:         KeyWhitelistTimeout,
		Example:     "3s",
		Default:     DefaultWhitelistTimeout.String(),
		Description: "Deadline for a single whitelist lookup.",
	},
	{
		Key:         KeyAuthRateLimit,
		Example:     strconv.Itoa(DefaultAuthRateLimit),
		Default:     strconv.Itoa(DefaultAuthRateLimit),
		Description: "Authentication requests per minute per client IP.",
	},
	{
		Key:         KeyCORSAllowedOrigin,
		Example:     "https://app.example.com",
		Default:     DefaultCORSAllowedOrigin,
		Description: "Access-Control-Allow-Origin value for the HTTP API.",
	},
	{
		Key:         KeyMiniAppURL,
		Example:     DefaultMiniAppURL,
		Default:     DefaultMiniAppURL,
		Description: "Mini App link attached to the bot /start button.",
	},
	{
		Key:         KeySupportURL,
		Example:     DefaultSupportURL,
		Default:     DefaultSupportURL,
		Description: "Support contact shown to users without access.",
	},
}

// Config mirrors resolved configuration values after loading.
type Config struct {
	TelegramToken     string
	SessionSecret     string
	MongoURI          string
	MongoDB           string
	AdminIDs          []int64
	AppEnv            string
	LogLevel          string
	HTTPPort          int
	AuthMaxAge        time.Duration
	SessionTTL        time.Duration
	WhitelistTimeout  time.Duration
	AuthRateLimit     int
	CORSAllowedOrigin string
	MiniAppURL        string
	SupportURL        string
}

// Load resolves configuration from the environment (with optional dotenv in development).
func Load() (Config, error) {
	appEnv, err := resolveAppEnv()
	if err != nil {
		return Config{}, err
	}

	if err := loadDotEnv(appEnv); err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppEnv:            firstNonEmpty(normalizeEnv(os.Getenv(KeyAppEnv)), appEnv),
		TelegramToken:     strings.TrimSpace(os.Getenv(KeyTelegramToken)),
		SessionSecret:     strings.TrimSpace(os.Getenv(KeySessionSecret)),
		MongoURI:          strings.TrimSpace(os.Getenv(KeyMongoURI)),
		MongoDB:           strings.TrimSpace(os.Getenv(KeyMongoDB)),
		LogLevel:          firstNonEmpty(strings.TrimSpace(os.Getenv(KeyLogLevel)), DefaultLogLevel),
		HTTPPort:          DefaultHTTPPort,
		AuthMaxAge:        DefaultAuthMaxAge,
		SessionTTL:        DefaultSessionTTL,
		WhitelistTimeout:  DefaultWhitelistTimeout,
		AuthRateLimit:     DefaultAuthRateLimit,
		CORSAllowedOrigin: firstNonEmpty(os.Getenv(KeyCORSAllowedOrigin), DefaultCORSAllowedOrigin),
		MiniAppURL:        firstNonEmpty(os.Getenv(KeyMiniAppURL), DefaultMiniAppURL),
		SupportURL:        firstNonEmpty(os.Getenv(KeySupportURL), DefaultSupportURL),
	}

	if err := validateAppEnv(cfg.AppEnv); err != nil {
		return Config{}, err
	}

	missing := make([]string, 0)

	if cfg.TelegramToken == "" {
		missing = append(missing, KeyTelegramToken)
	}
	if cfg.SessionSecret == "" {
		missing = append(missing, KeySessionSecret)
	}
	if cfg.MongoURI == "" {
		missing = append(missing, KeyMongoURI)
	}
	if cfg.MongoDB == "" {
		missing = append(missing, KeyMongoDB)
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required environment variable(s): %s", strings.Join(missing, ", "))
	}

	if len(cfg.SessionSecret) < MinSessionSecretLength {
		return Config{}, fmt.Errorf("%s must be at least %d bytes", KeySessionSecret, MinSessionSecretLength)
	}

	if err := validateMongoURI(cfg.MongoURI); err != nil {
		return Config{}, err
	}

	adminIDs, err := parseAdminIDs(os.Getenv(KeyAdminIDs))
	if err != nil {
		return Config{}, err
	}
	cfg.AdminIDs = adminIDs

	if cfg.HTTPPort, err = positiveInt(KeyHTTPPort, DefaultHTTPPort); err != nil {
		return Config{}, err
	}
	if cfg.AuthRateLimit, err = positiveInt(KeyAuthRateLimit, DefaultAuthRateLimit); err != nil {
		return Config{}, err
	}
	if cfg.AuthMaxAge, err = positiveDuration(KeyAuthMaxAge, DefaultAuthMaxAge); err != nil {
		return Config{}, err
	}
	if cfg.SessionTTL, err = positiveDuration(KeySessionTTL, DefaultSessionTTL); err != nil {
		return Config{}, err
	}
	if cfg.WhitelistTimeout, err = positiveDuration(KeyWhitelistTimeout, DefaultWhitelistTimeout); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// IsDevelopment reports if APP_ENV is development.
func (c Config) IsDevelopment() bool {
	return c.AppEnv == EnvDevelopment
}

// IsAdmin reports whether the Telegram user id is listed in ADMIN_IDS.
func (c Config) IsAdmin(userID int64) bool {
	for _, id := range c.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// FormatRedacted renders the configuration for diagnostics with secrets masked.
func FormatRedacted(cfg Config) string {
	admins := make([]string, 0, len(cfg.AdminIDs))
	for _, id := range cfg.AdminIDs {
		admins = append(admins, strconv.FormatInt(id, 10))
	}

	lines := []string{
		"app_env: " + cfg.AppEnv,
		"log_level: " + cfg.LogLevel,
		"http_port: " + strconv.Itoa(cfg.HTTPPort),
		"telegram_token: " + maskSecret(cfg.TelegramToken),
		"session_secret: " + maskSecret(cfg.SessionSecret),
		"mongo_uri: " + redactMongoURI(cfg.MongoURI),
		"mongo_db: " + cfg.MongoDB,
		"admin_ids: " + strings.Join(admins, ","),
		"auth_max_age: " + cfg.AuthMaxAge.String(),
		"session_ttl: " + cfg.SessionTTL.String(),
		"whitelist_timeout: " + cfg.WhitelistTimeout.String(),
		"auth_rate_limit: " + strconv.Itoa(cfg.AuthRateLimit),
		"cors_allowed_origin: " + cfg.CORSAllowedOrigin,
		"mini_app_url: " + cfg.MiniAppURL,
		"support_url: " + cfg.SupportURL,
	}

	return strings.Join(lines, "\n")
}

func resolveAppEnv() (string, error) {
	if explicit := normalizeEnv(os.Getenv(KeyAppEnv)); explicit != "" {
		return explicit, nil
	}

	dotEnvValues, err := godotenv.Read()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultAppEnv, nil
		}
		return "", fmt.Errorf("read .env: %w", err)
	}

	if envFromFile := normalizeEnv(dotEnvValues[KeyAppEnv]); envFromFile != "" {
		return envFromFile, nil
	}

	return DefaultAppEnv, nil
}

func loadDotEnv(appEnv string) error {
	if appEnv != EnvDevelopment {
		return nil
	}

	if err := godotenv.Load(); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load .env: %w", err)
	}

	return nil
}

func validateAppEnv(appEnv string) error {
	if appEnv == EnvDevelopment || appEnv == EnvProduction {
		return nil
	}

	return fmt.Errorf("invalid %s: must be %q or %q", KeyAppEnv, EnvDevelopment, EnvProduction)
}

func validateMongoURI(raw string) error {
	if strings.HasPrefix(raw, "mongodb://") || strings.HasPrefix(raw, "mongodb+srv://") {
		return nil
	}

	return fmt.Errorf("invalid %s: must start with mongodb:// or mongodb+srv://", KeyMongoURI)
}

func parseAdminIDs(raw string) ([]int64, error) {
	ids := make([]int64, 0)
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid %s entry %q: %w", KeyAdminIDs, part, err)
		}
		if id <= 0 {
			return nil, fmt.Errorf("invalid %s entry %q: must be positive", KeyAdminIDs, part)
		}
		ids = append(ids, id)
	}

	return ids, nil
}

func positiveInt(key string, fallback int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}

	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if value <= 0 {
		return 0, fmt.Errorf("%s must be greater than 0", key)
	}

	return value, nil
}

func positiveDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}

	value, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if value <= 0 {
		return 0, fmt.Errorf("%s must be greater than 0", key)
	}

	return value, nil
}

func maskSecret(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 4 {
		return "...redacted"
	}

	return secret[:4] + "...redacted"
}

func redactMongoURI(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return "redacted"
	}

	parsed.User = nil
	return parsed.String()
}

func normalizeEnv(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func firstNonEmpty(values ...string) string {
	for _, val := range values {
		if strings.TrimSpace(val) != "" {
			return strings.TrimSpace(val)
		}
	}
	return ""
}
