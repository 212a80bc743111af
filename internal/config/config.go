package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix             = "LUMINA"
	defaultHTTPAddress    = "0.0.0.0:8080"
	defaultDatabasePath   = "lumina.db"
	defaultLogLevel       = "info"
	defaultStorageKey     = "lumina_notes_data"
	defaultDebounceMillis = 500
	defaultGeminiLocation = "us-central1"
	defaultGeminiModel    = "gemini-2.5-flash"
	defaultAITimeout      = 30
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress    string
	DatabasePath   string
	LogLevel       string
	StorageKey     string
	SearchDebounce time.Duration
	GeminiProject  string
	GeminiLocation string
	GeminiModel    string
	AITimeout      time.Duration
}

// AIEnabled reports whether a Gemini project is configured.
func (c AppConfig) AIEnabled() bool {
	return c.GeminiProject != ""
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("storage.key", defaultStorageKey)
	configViper.SetDefault("search.debounce_ms", defaultDebounceMillis)
	configViper.SetDefault("gemini.project", "")
	configViper.SetDefault("gemini.location", defaultGeminiLocation)
	configViper.SetDefault("gemini.model", defaultGeminiModel)
	configViper.SetDefault("ai.timeout_seconds", defaultAITimeout)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	debounceMillis := configViper.GetInt("search.debounce_ms")
	timeoutSeconds := configViper.GetInt("ai.timeout_seconds")
	cfg := AppConfig{
		HTTPAddress:    configViper.GetString("http.address"),
		DatabasePath:   configViper.GetString("database.path"),
		LogLevel:       configViper.GetString("log.level"),
		StorageKey:     configViper.GetString("storage.key"),
		SearchDebounce: time.Duration(debounceMillis) * time.Millisecond,
		GeminiProject:  strings.TrimSpace(configViper.GetString("gemini.project")),
		GeminiLocation: configViper.GetString("gemini.location"),
		GeminiModel:    configViper.GetString("gemini.model"),
		AITimeout:      time.Duration(timeoutSeconds) * time.Second,
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if strings.TrimSpace(c.StorageKey) == "" {
		return fmt.Errorf("storage.key is required")
	}
	if c.SearchDebounce <= 0 {
		return fmt.Errorf("search.debounce_ms must be positive")
	}
	if c.AITimeout <= 0 {
		return fmt.Errorf("ai.timeout_seconds must be positive")
	}
	if c.AIEnabled() && strings.TrimSpace(c.GeminiLocation) == "" {
		return fmt.Errorf("gemini.location is required when gemini.project is set")
	}
	return nil
}
