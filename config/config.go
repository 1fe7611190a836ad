package config

import (
	"os"
	"strings"
	"time"

	"chatdesk/models"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultAPIURL     = "https://openrouter.ai/api/v1/chat/completions"
	DefaultStorageKey = "chatbot_conversations"
	DefaultPort       = 8080
)

type StoreConfig struct {
	Driver   string
	Key      string
	Path     string
	DSN      string
	Table    string
	Endpoint string
	Region   string
}

type Config struct {
	APIKey    string
	APIURL    string
	Model     string
	Models    []models.ModelOption
	Transport string
	// Zero disables the request timeout.
	Timeout  time.Duration
	Store    StoreConfig
	Port     int
	Mode     string
	LogLevel string
}

// GetAPIKey returns the gateway credential straight from the environment.
func GetAPIKey() string {
	if key := os.Getenv("CHATDESK_API_KEY"); key != "" {
		return key
	}
	return os.Getenv("OPENROUTER_API_KEY")
}

func SetDefaults(v *viper.Viper) {
	v.SetDefault("api-url", DefaultAPIURL)
	v.SetDefault("transport", "resty")
	v.SetDefault("timeout", time.Duration(0))
	v.SetDefault("store.driver", "pebble")
	v.SetDefault("store.key", DefaultStorageKey)
	v.SetDefault("store.path", "data/chatdesk")
	v.SetDefault("store.table", "ChatState")
	v.SetDefault("store.endpoint", "http://localhost:8000")
	v.SetDefault("store.region", "us-east-1")
	v.SetDefault("port", DefaultPort)
	v.SetDefault("mode", "debug")
	v.SetDefault("log-level", "info")
}

// BindFlags registers the shared flags on fs and binds them into v.
func BindFlags(fs *pflag.FlagSet, v *viper.Viper) error {
	fs.String("api-url", DefaultAPIURL, "chat completions endpoint")
	fs.String("model", "", "model id to start with (defaults to the first configured model)")
	fs.String("transport", "resty", `completion transport, "resty" or "openai"`)
	fs.Duration("timeout", 0, "completion request timeout, 0 disables it")
	fs.String("store-driver", "pebble", "store driver (memory, pebble, bolt, sqlite, postgres, dynamodb)")
	fs.String("store-path", "data/chatdesk", "path for file backed stores")
	fs.String("store-dsn", "", "database source name for sql stores")
	fs.String("log-level", "info", "log level (trace, debug, info, warn, error)")

	binds := map[string]string{
		"api-url":      "api-url",
		"model":        "model",
		"transport":    "transport",
		"timeout":      "timeout",
		"store.driver": "store-driver",
		"store.path":   "store-path",
		"store.dsn":    "store-dsn",
		"log-level":    "log-level",
	}
	for key, flag := range binds {
		if err := v.BindPFlag(key, fs.Lookup(flag)); err != nil {
			return errors.Wrapf(err, "bind flag %s", flag)
		}
	}
	return nil
}

// BindEnv wires CHATDESK_* variables into v. The API key also falls back to
// OPENROUTER_API_KEY.
func BindEnv(v *viper.Viper) error {
	v.SetEnvPrefix("chatdesk")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("api-key", "CHATDESK_API_KEY", "OPENROUTER_API_KEY"); err != nil {
		return errors.Wrap(err, "bind api key env")
	}
	return nil
}

func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		APIKey:    v.GetString("api-key"),
		APIURL:    v.GetString("api-url"),
		Model:     v.GetString("model"),
		Transport: strings.ToLower(v.GetString("transport")),
		Timeout:   v.GetDuration("timeout"),
		Store: StoreConfig{
			Driver:   strings.ToLower(v.GetString("store.driver")),
			Key:      v.GetString("store.key"),
			Path:     v.GetString("store.path"),
			DSN:      v.GetString("store.dsn"),
			Table:    v.GetString("store.table"),
			Endpoint: v.GetString("store.endpoint"),
			Region:   v.GetString("store.region"),
		},
		Port:     v.GetInt("port"),
		Mode:     v.GetString("mode"),
		LogLevel: v.GetString("log-level"),
	}

	if err := v.UnmarshalKey("models", &cfg.Models); err != nil {
		return nil, errors.Wrap(err, "decode models")
	}
	if len(cfg.Models) == 0 {
		cfg.Models = models.DefaultModelOptions()
	}
	if cfg.Model == "" {
		cfg.Model = cfg.Models[0].ID
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.APIURL == "" {
		return errors.New("api-url is required")
	}
	if _, ok := models.FindModelOption(c.Models, c.Model); !ok {
		return errors.Errorf("model %q is not in the configured model list", c.Model)
	}
	switch c.Transport {
	case "resty", "openai":
	default:
		return errors.Errorf("unknown transport %q", c.Transport)
	}
	if c.Timeout < 0 {
		return errors.New("timeout must not be negative")
	}
	if c.Store.Key == "" {
		return errors.New("store.key is required")
	}
	switch c.Mode {
	case "debug", "release", "test":
	default:
		return errors.Errorf("unknown mode %q", c.Mode)
	}
	if c.Port <= 0 {
		return errors.Errorf("invalid port %d", c.Port)
	}
	return nil
}

// BaseURL is the endpoint without the /chat/completions suffix, as the
// go-openai client expects it.
func (c *Config) BaseURL() string {
	return strings.TrimSuffix(strings.TrimRight(c.APIURL, "/"), "/chat/completions")
}
