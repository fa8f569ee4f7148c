// Package config defines the configuration contract and handles loading and
// validating environment configuration.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	// Canonical environment variable keys.
	KeyTelegramToken   = "TELEGRAM_TOKEN"
	KeyStripeAPIKey    = "STRIPE_API_KEY"
	KeyOnlyWhitelisted = "ONLY_WHITELISTED"
	KeyAccessDir       = "ACCESS_DIR"
	KeyCurrency        = "CURRENCY"
	KeyMongoURI        = "MONGO_URI"
	KeyMongoDB         = "MONGO_DB"
	KeyAppEnv          = "APP_ENV"
	KeyLogLevel        = "LOG_LEVEL"
	KeyHTTPPort        = "HTTP_PORT"

	// Allowed environment values.
	EnvDevelopment = "development"
	EnvProduction  = "production"

	// Defaults for optional settings.
	DefaultAppEnv    = EnvProduction
	DefaultLogLevel  = "info"
	DefaultHTTPPort  = 8080
	DefaultAccessDir = "config"
	DefaultCurrency  = "usd"

	// Recommended database names by environment when Mongo-backed sessions
	// are enabled.
	DefaultMongoDBProd = "payment_link_bot"
	DefaultMongoDBDev  = "payment_link_bot_dev"
)

// VarSpec describes a single configuration key.
type VarSpec struct {
	Key         string // environment variable name
	Example     string // human-friendly sample value
	Required    bool   // whether the bot must refuse to start without this value
	Default     string // default when unset (empty when required)
	Description string // what the variable controls
	Notes       string // extra guidance or policies
}

// Contract enumerates the authoritative configuration keys for the bot.
// .env loading is only permitted when APP_ENV=development; production must rely
// on environment variables supplied by the runtime.
var Contract = []VarSpec{
	{
		Key:         KeyTelegramToken,
		Example:     "123:ABC",
		Required:    true,
		Description: "Telegram Bot Token issued by BotFather.",
	},
	{
		Key:         KeyStripeAPIKey,
		Example:     "sk_test_...",
		Required:    true,
		Description: "Stripe secret API key used for catalog, price, and payment-link calls.",
	},
	{
		Key:         KeyOnlyWhitelisted,
		Example:     "0 / 1",
		Default:     "0",
		Description: "When 1, only whitelisted users may use the bot; otherwise the blacklist applies.",
	},
	{
		Key:         KeyAccessDir,
		Example:     DefaultAccessDir,
		Default:     DefaultAccessDir,
		Description: "Directory containing whitelist.csv and blacklist.csv (user_id column).",
		Notes:       "A missing list file is treated as an empty list.",
	},
	{
		Key:         KeyCurrency,
		Example:     DefaultCurrency,
		Default:     DefaultCurrency,
		Description: "Currency code for newly created prices.",
	},
	{
		Key:         KeyMongoURI,
		Example:     "mongodb://localhost:27017",
		Description: "Optional MongoDB connection string for durable session storage.",
		Notes:       "When unset, sessions are held in process memory.",
	},
	{
		Key:         KeyMongoDB,
		Example:     DefaultMongoDBProd + " / " + DefaultMongoDBDev,
		Description: "MongoDB database name; required when " + KeyMongoURI + " is set.",
		Notes:       "Recommended: production=" + DefaultMongoDBProd + ", development=" + DefaultMongoDBDev + ".",
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
		Description: "HTTP health/diagnostics port.",
	},
}

// Config mirrors resolved configuration values after loading.
type Config struct {
	TelegramToken   string
	StripeAPIKey    string
	OnlyWhitelisted bool
	AccessDir       string
	Currency        string
	MongoURI        string
	MongoDB         string
	AppEnv          string
	LogLevel        string
	HTTPPort        int
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
		AppEnv:        firstNonEmpty(normalizeEnv(os.Getenv(KeyAppEnv)), appEnv),
		TelegramToken: strings.TrimSpace(os.Getenv(KeyTelegramToken)),
		StripeAPIKey:  strings.TrimSpace(os.Getenv(KeyStripeAPIKey)),
		AccessDir:     firstNonEmpty(strings.TrimSpace(os.Getenv(KeyAccessDir)), DefaultAccessDir),
		Currency:      firstNonEmpty(strings.ToLower(strings.TrimSpace(os.Getenv(KeyCurrency))), DefaultCurrency),
		MongoURI:      strings.TrimSpace(os.Getenv(KeyMongoURI)),
		MongoDB:       strings.TrimSpace(os.Getenv(KeyMongoDB)),
		LogLevel:      firstNonEmpty(strings.TrimSpace(os.Getenv(KeyLogLevel)), DefaultLogLevel),
		HTTPPort:      DefaultHTTPPort,
	}

	if err := validateAppEnv(cfg.AppEnv); err != nil {
		return Config{}, err
	}

	missing := make([]string, 0)

	if cfg.TelegramToken == "" {
		missing = append(missing, KeyTelegramToken)
	}

	if cfg.StripeAPIKey == "" {
		missing = append(missing, KeyStripeAPIKey)
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required environment variable(s): %s", strings.Join(missing, ", "))
	}

	onlyRaw := strings.TrimSpace(os.Getenv(KeyOnlyWhitelisted))
	if onlyRaw != "" {
		only, parseErr := strconv.ParseBool(onlyRaw)
		if parseErr != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", KeyOnlyWhitelisted, parseErr)
		}
		cfg.OnlyWhitelisted = only
	}

	if cfg.MongoURI != "" {
		if !strings.HasPrefix(cfg.MongoURI, "mongodb://") && !strings.HasPrefix(cfg.MongoURI, "mongodb+srv://") {
			return Config{}, fmt.Errorf("invalid %s: must start with mongodb:// or mongodb+srv://", KeyMongoURI)
		}
		if cfg.MongoDB == "" {
			return Config{}, fmt.Errorf("%s is required when %s is set", KeyMongoDB, KeyMongoURI)
		}
	}

	httpPortRaw := strings.TrimSpace(os.Getenv(KeyHTTPPort))
	if httpPortRaw != "" {
		port, parseErr := strconv.Atoi(httpPortRaw)
		if parseErr != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", KeyHTTPPort, parseErr)
		}
		if port <= 0 {
			return Config{}, fmt.Errorf("%s must be greater than 0", KeyHTTPPort)
		}
		cfg.HTTPPort = port
	}

	return cfg, nil
}

// IsDevelopment reports if APP_ENV is development.
func (c Config) IsDevelopment() bool {
	return c.AppEnv == EnvDevelopment
}

// SessionsInMongo reports whether a durable Mongo session store is configured.
func (c Config) SessionsInMongo() bool {
	return c.MongoURI != ""
}

// FormatRedacted renders the configuration for diagnostics with secrets masked.
func FormatRedacted(cfg Config) string {
	var b strings.Builder

	fmt.Fprintf(&b, "telegram_token: %s\n", maskSecret(cfg.TelegramToken))
	fmt.Fprintf(&b, "stripe_api_key: %s\n", maskSecret(cfg.StripeAPIKey))
	fmt.Fprintf(&b, "only_whitelisted: %t\n", cfg.OnlyWhitelisted)
	fmt.Fprintf(&b, "access_dir: %s\n", cfg.AccessDir)
	fmt.Fprintf(&b, "currency: %s\n", cfg.Currency)
	if cfg.MongoURI != "" {
		fmt.Fprintf(&b, "mongo_uri: %s\n", redactURI(cfg.MongoURI))
		fmt.Fprintf(&b, "mongo_db: %s\n", cfg.MongoDB)
	}
	fmt.Fprintf(&b, "app_env: %s\n", cfg.AppEnv)
	fmt.Fprintf(&b, "log_level: %s\n", cfg.LogLevel)
	fmt.Fprintf(&b, "http_port: %d", cfg.HTTPPort)

	return b.String()
}

func maskSecret(value string) string {
	if value == "" {
		return "(unset)"
	}
	if len(value) <= 4 {
		return "...redacted"
	}

	return value[:4] + "...redacted"
}

func redactURI(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil || parsed.User == nil {
		return raw
	}

	parsed.User = nil
	return parsed.String()
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
