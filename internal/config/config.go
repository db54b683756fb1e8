package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is looked up in the working directory when --config is not given.
const DefaultConfigPath = "tienditabot.yaml"

// Config is the root configuration for tienditabot. It is built once at
// startup and passed to every component that needs it.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	WhatsApp  WhatsAppConfig  `yaml:"whatsapp"`
	Templates TemplatesConfig `yaml:"templates"`
	Bot       BotConfig       `yaml:"bot"`
	Store     StoreConfig     `yaml:"store"`
	Events    EventsConfig    `yaml:"events"`
	Notify    NotifyConfig    `yaml:"notify"`
	Media     MediaConfig     `yaml:"media"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

type ServerConfig struct {
	Host        string `yaml:"host" env:"LISTEN_HOST"`
	Port        int    `yaml:"port" env:"PORT"`
	SandboxPath string `yaml:"sandboxPath" env:"SANDBOX_PATH"`
}

type LogConfig struct {
	Level string `yaml:"level" env:"LOG_LEVEL"` // debug | info | warn | error
}

type WhatsAppConfig struct {
	VerifyToken        string `yaml:"verifyToken" env:"VERIFY_TOKEN"`
	AccessToken        string `yaml:"accessToken" env:"WHATSAPP_TOKEN"`
	PhoneNumberID      string `yaml:"phoneNumberId" env:"PHONE_NUMBER_ID"`
	AppSecret          string `yaml:"appSecret,omitempty" env:"WHATSAPP_APP_SECRET"`
	HumanContact       string `yaml:"humanContact" env:"HUMAN_CONTACT_NUMBER"`
	APIBase            string `yaml:"apiBase" env:"WHATSAPP_API_BASE"`
	APIVersion         string `yaml:"apiVersion" env:"WHATSAPP_API_VERSION"`
	LanguageCode       string `yaml:"languageCode" env:"WHATSAPP_LANGUAGE"`
	WelcomeHeaderImage string `yaml:"welcomeHeaderImage,omitempty" env:"WELCOME_HEADER_IMAGE"`
	WebhookPath        string `yaml:"webhookPath" env:"WEBHOOK_PATH"`
	TimeoutSeconds     int    `yaml:"timeoutSeconds" env:"WHATSAPP_TIMEOUT_SECONDS"`
}

// TemplatesConfig holds the exact names of the approved message templates.
type TemplatesConfig struct {
	Welcome   string `yaml:"welcome" env:"TEMPLATE_WELCOME"`
	Order     string `yaml:"order" env:"TEMPLATE_ORDER"`
	Question  string `yaml:"question" env:"TEMPLATE_QUESTION"`
	Attention string `yaml:"attention" env:"TEMPLATE_ATTENTION"`
}

type BotConfig struct {
	GreetingKeywords    []string `yaml:"greetingKeywords" env:"GREETING_KEYWORDS" envSeparator:","`
	OrderConfirmPhrases []string `yaml:"orderConfirmPhrases" env:"ORDER_CONFIRM_PHRASES" envSeparator:","`
	OrderConfirmText    string   `yaml:"orderConfirmText" env:"ORDER_CONFIRM_TEXT"`
	// HumanContactText may contain {link}, replaced by the wa.me link of WhatsApp.HumanContact.
	HumanContactText string `yaml:"humanContactText" env:"HUMAN_CONTACT_TEXT"`
	FallbackName     string `yaml:"fallbackName" env:"FALLBACK_NAME"`
}

type StoreConfig struct {
	Enabled bool   `yaml:"enabled" env:"STORE_ENABLED"`
	Path    string `yaml:"path" env:"STORE_PATH"`
}

// EventsConfig enables publishing every exchange to RabbitMQ. Empty URL = disabled.
type EventsConfig struct {
	URL        string `yaml:"url,omitempty" env:"RABBITMQ_URL"`
	Exchange   string `yaml:"exchange" env:"RABBITMQ_EXCHANGE"`
	RoutingKey string `yaml:"routingKey" env:"RABBITMQ_ROUTING_KEY"`
	Producer   string `yaml:"producer" env:"RABBITMQ_PRODUCER"`
}

type NotifyConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

// TelegramConfig enables hand-off alerts when both token and chat are set.
type TelegramConfig struct {
	Token  string `yaml:"token,omitempty" env:"TELEGRAM_TOKEN"`
	ChatID int64  `yaml:"chatId,omitempty" env:"TELEGRAM_CHAT_ID"`
}

func (t TelegramConfig) Enabled() bool { return t.Token != "" && t.ChatID != 0 }

type MediaConfig struct {
	WelcomeImagePath string `yaml:"welcomeImagePath,omitempty" env:"WELCOME_IMAGE_PATH"`
}

type MetricsConfig struct {
	Enabled  bool   `yaml:"enabled" env:"METRICS_ENABLED"`
	Endpoint string `yaml:"endpoint" env:"METRICS_ENDPOINT"`
}

// Addr returns the listen address for the HTTP server.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// SlogLevel maps the configured level name to a slog.Level (info when unknown).
func (l LogConfig) SlogLevel() slog.Level {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// HumanContactLink returns the wa.me link customers are sent on hand-off.
func (c *Config) HumanContactLink() string {
	return "https://wa.me/" + strings.TrimPrefix(c.WhatsApp.HumanContact, "+")
}

// LoadDotEnv loads variables from the given .env files (default ".env") into
// the process environment. Missing files are not an error.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	var existing []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	return godotenv.Load(existing...)
}

// Read builds a Config from defaults, the optional YAML file at path and the
// process environment, without validating it. An empty path skips the file.
func Read(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		path = ExpandPath(path)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
		}

		// Substitute environment variables: ${VAR} and ${VAR:-default}
		data = []byte(ExpandEnvVars(string(data)))

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("cannot parse environment: %w", err)
	}

	cfg.Store.Path = ExpandPath(cfg.Store.Path)
	cfg.Media.WelcomeImagePath = ExpandPath(cfg.Media.WelcomeImagePath)

	return cfg, nil
}

// Load is Read followed by Validate.
func Load(path string) (*Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(varName)
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match // Keep original if no env var and no default
		}
		return val
	})
}

// Save writes cfg as YAML, creating the parent directory when needed.
func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o600)
}

// Validate checks that the config has every value the webhook needs.
func Validate(cfg *Config) error {
	var errs []string

	if cfg.WhatsApp.VerifyToken == "" {
		errs = append(errs, "whatsapp.verifyToken is required (VERIFY_TOKEN)")
	}
	if cfg.WhatsApp.AccessToken == "" {
		errs = append(errs, "whatsapp.accessToken is required (WHATSAPP_TOKEN)")
	}
	if cfg.WhatsApp.PhoneNumberID == "" {
		errs = append(errs, "whatsapp.phoneNumberId is required (PHONE_NUMBER_ID)")
	}
	if cfg.WhatsApp.HumanContact == "" {
		errs = append(errs, "whatsapp.humanContact is required (HUMAN_CONTACT_NUMBER)")
	}
	for name, val := range map[string]string{
		"whatsapp.verifyToken":   cfg.WhatsApp.VerifyToken,
		"whatsapp.accessToken":   cfg.WhatsApp.AccessToken,
		"whatsapp.phoneNumberId": cfg.WhatsApp.PhoneNumberID,
		"whatsapp.humanContact":  cfg.WhatsApp.HumanContact,
	} {
		if strings.Contains(val, "${") {
			errs = append(errs, name+" references an unset environment variable")
		}
	}
	if !strings.HasPrefix(cfg.WhatsApp.APIBase, "http://") && !strings.HasPrefix(cfg.WhatsApp.APIBase, "https://") {
		errs = append(errs, "whatsapp.apiBase must be an http(s) URL")
	}
	if cfg.WhatsApp.TimeoutSeconds < 1 || cfg.WhatsApp.TimeoutSeconds > 300 {
		errs = append(errs, "whatsapp.timeoutSeconds must be between 1 and 300")
	}
	if !strings.HasPrefix(cfg.WhatsApp.WebhookPath, "/") {
		errs = append(errs, "whatsapp.webhookPath must start with /")
	}

	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 0 and 65535")
	}
	if !strings.HasPrefix(cfg.Server.SandboxPath, "/") {
		errs = append(errs, "server.sandboxPath must start with /")
	}
	if cfg.Server.SandboxPath == cfg.WhatsApp.WebhookPath {
		errs = append(errs, "server.sandboxPath must differ from whatsapp.webhookPath")
	}

	for name, val := range map[string]string{
		"templates.welcome":   cfg.Templates.Welcome,
		"templates.order":     cfg.Templates.Order,
		"templates.question":  cfg.Templates.Question,
		"templates.attention": cfg.Templates.Attention,
	} {
		if val == "" {
			errs = append(errs, name+" is required")
		}
	}

	if len(cfg.Bot.GreetingKeywords) == 0 {
		errs = append(errs, "bot.greetingKeywords must not be empty")
	}
	if len(cfg.Bot.OrderConfirmPhrases) == 0 {
		errs = append(errs, "bot.orderConfirmPhrases must not be empty")
	}

	switch strings.ToLower(cfg.Log.Level) {
	case "", "debug", "info", "warn", "warning", "error":
		// valid
	default:
		errs = append(errs, "log.level must be one of: debug, info, warn, error")
	}

	if cfg.Store.Enabled && cfg.Store.Path == "" {
		errs = append(errs, "store.path is required when the store is enabled")
	}
	if cfg.Events.URL != "" && cfg.Events.Exchange == "" {
		errs = append(errs, "events.exchange is required when events.url is set")
	}
	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Endpoint, "/") {
		errs = append(errs, "metrics.endpoint must start with /")
	}

	if len(errs) > 0 {
		sort.Strings(errs)
		return errors.New("config validation errors:\n  - " + strings.Join(errs, "\n  - "))
	}
	return nil
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
