// Package cfg loads process settings from the environment with an optional
// YAML file (CONFIG_FILE). Environment variables win over file values so a
// deployment can override single knobs without editing the file.
package cfg

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Settings is everything the process needs to run one bot.
type Settings struct {
	BotID    string
	BotFile  string // optional YAML seed for the bot record
	DataPath string

	Tick              time.Duration
	FillsSyncInterval time.Duration

	BaseURL     string
	WsURL       string
	Key         string
	Secret      string
	Memo        string
	RESTTimeout time.Duration

	MetricsPort int

	TelegramToken  string
	TelegramChatID string
}

// ConfigFile is the YAML shape of CONFIG_FILE.
type ConfigFile struct {
	Bot struct {
		ID   string `yaml:"id"`
		File string `yaml:"file"`
		Tick string `yaml:"tick"`
	} `yaml:"bot"`

	API struct {
		Key     string `yaml:"key"`
		Secret  string `yaml:"secret"`
		Memo    string `yaml:"memo"`
		BaseURL string `yaml:"baseURL"`
		WsURL   string `yaml:"wsURL"`
	} `yaml:"api"`

	System struct {
		DataPath          string `yaml:"dataPath"`
		MetricsPort       int    `yaml:"metricsPort"`
		RESTTimeout       string `yaml:"restTimeout"`
		FillsSyncInterval string `yaml:"fillsSyncInterval"`
	} `yaml:"system"`

	Alerts struct {
		TelegramToken  string `yaml:"telegramToken"`
		TelegramChatID string `yaml:"telegramChatId"`
	} `yaml:"alerts"`
}

// Load reads settings from CONFIG_FILE when set, then applies environment
// overrides and validates the result.
func Load() (Settings, error) {
	var file ConfigFile
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Settings{}, fmt.Errorf("read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &file); err != nil {
			return Settings{}, fmt.Errorf("parse config file: %w", err)
		}
	}

	s := Settings{
		BotID:             getEnvOrDefault("BOT_ID", file.Bot.ID),
		BotFile:           getEnvOrDefault("BOT_FILE", file.Bot.File),
		DataPath:          getEnvOrDefault("DATA_PATH", defaultStr(file.System.DataPath, "data")),
		Tick:              durationOr("TICK_INTERVAL", file.Bot.Tick, 800*time.Millisecond),
		FillsSyncInterval: durationOr("FILLS_SYNC_INTERVAL", file.System.FillsSyncInterval, 30*time.Second),
		BaseURL:           getEnvOrDefault("BITMART_BASE_URL", defaultStr(file.API.BaseURL, "https://api-cloud.bitmart.com")),
		WsURL:             getEnvOrDefault("BITMART_WS_URL", file.API.WsURL),
		Key:               getEnvOrDefault("BITMART_API_KEY", file.API.Key),
		Secret:            getEnvOrDefault("BITMART_API_SECRET", file.API.Secret),
		Memo:              getEnvOrDefault("BITMART_API_MEMO", file.API.Memo),
		RESTTimeout:       durationOr("REST_TIMEOUT", file.System.RESTTimeout, 5*time.Second),
		MetricsPort:       intOr("METRICS_PORT", file.System.MetricsPort, 9090),
		TelegramToken:     getEnvOrDefault("TELEGRAM_BOT_TOKEN", file.Alerts.TelegramToken),
		TelegramChatID:    getEnvOrDefault("TELEGRAM_CHAT_ID", file.Alerts.TelegramChatID),
	}

	if err := validate(&s); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}
	return s, nil
}

func validate(s *Settings) error {
	if s.BotID == "" {
		return fmt.Errorf("bot id is required (BOT_ID)")
	}
	if s.Key == "" || s.Secret == "" {
		return fmt.Errorf("API key and secret are required")
	}
	if s.BaseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}
	if s.Tick < 100*time.Millisecond || s.Tick > time.Minute {
		return fmt.Errorf("tick interval must be between 100ms and 1m, got %v", s.Tick)
	}
	if s.RESTTimeout < time.Second || s.RESTTimeout > time.Minute {
		return fmt.Errorf("REST timeout must be between 1s and 1m, got %v", s.RESTTimeout)
	}
	if s.FillsSyncInterval < 5*time.Second || s.FillsSyncInterval > time.Hour {
		return fmt.Errorf("fills sync interval must be between 5s and 1h, got %v", s.FillsSyncInterval)
	}
	if s.MetricsPort < 1024 || s.MetricsPort > 65535 {
		return fmt.Errorf("metrics port must be between 1024 and 65535, got %d", s.MetricsPort)
	}
	return nil
}

func getEnvOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func defaultStr(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

func durationOr(key, fileValue string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	if fileValue != "" {
		if d, err := time.ParseDuration(fileValue); err == nil {
			return d
		}
	}
	return def
}

func intOr(key string, fileValue, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	if fileValue != 0 {
		return fileValue
	}
	return def
}
