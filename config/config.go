package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Feed     FeedConfig     `mapstructure:"feed"`
	Monitor  MonitorConfig  `mapstructure:"monitor"`
	Alert    AlertConfig    `mapstructure:"alert"`
	Notify   NotifyConfig   `mapstructure:"notify"`
	Status   StatusConfig   `mapstructure:"status"`
	History  HistoryConfig  `mapstructure:"history"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	Log      LogConfig      `mapstructure:"log"`
}

type FeedConfig struct {
	URL               string          `mapstructure:"url"`
	ConnectTimeout    time.Duration   `mapstructure:"connect_timeout"`
	HeartbeatInterval time.Duration   `mapstructure:"heartbeat_interval"`
	SettleDelay       time.Duration   `mapstructure:"settle_delay"`
	Reconnect         ReconnectConfig `mapstructure:"reconnect"`
}

type ReconnectConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	BaseDelay   time.Duration `mapstructure:"base_delay"`
}

type MonitorConfig struct {
	// ChangeFraction is the half-width of a rebased band relative to the
	// crossing price (0.01 = ±1%).
	ChangeFraction float64            `mapstructure:"change_fraction"`
	Symbols        []SymbolBandConfig `mapstructure:"symbols"`
}

type SymbolBandConfig struct {
	Symbol string  `mapstructure:"symbol"`
	Min    float64 `mapstructure:"min"`
	Max    float64 `mapstructure:"max"`
}

type AlertConfig struct {
	Cooldown      time.Duration `mapstructure:"cooldown"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	MaxAge        time.Duration `mapstructure:"max_age"`
}

type NotifyConfig struct {
	WebhookURL string        `mapstructure:"webhook_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type StatusConfig struct {
	Listen string `mapstructure:"listen"`
}

type HistoryConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Retention time.Duration `mapstructure:"retention"`
}

// LogConfig defines the logger configuration options.
type LogConfig struct {
	Level       string `mapstructure:"level"`       // log level: "debug", "info", "warn", "error"
	Format      string `mapstructure:"format"`      // log format: "json" or "console"
	OutputFile  string `mapstructure:"output_file"` // file path to store logs (optional)
	Environment string `mapstructure:"environment"` // environment: "dev" or "prod"
}

// Load loads application configuration using Viper.
// It reads from config.yaml and overrides with environment variables.
func Load() *Config {
	v := viper.New()

	v.SetConfigName("config") // config.yaml
	v.SetConfigType("yaml")

	ex, _ := os.Executable()
	if strings.Contains(ex, "go-build") {
		pwd, _ := os.Getwd()
		v.AddConfigPath(filepath.Join(pwd, "../../config"))
	} else {
		v.AddConfigPath(filepath.Join(filepath.Dir(ex), "../config"))
	}

	setDefaults(v)

	// Support environment variables with dot notation (e.g., FEED_URL)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		log.Fatalf("failed to read config: %v", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		log.Fatalf("failed to unmarshal config: %v", err)
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("feed.url", "wss://ws.okx.com:8443/ws/v5/public")
	v.SetDefault("feed.connect_timeout", 10*time.Second)
	v.SetDefault("feed.heartbeat_interval", 30*time.Second)
	v.SetDefault("feed.settle_delay", 100*time.Millisecond)
	v.SetDefault("feed.reconnect.max_attempts", 5)
	v.SetDefault("feed.reconnect.base_delay", 5*time.Second)
	v.SetDefault("monitor.change_fraction", 0.01)
	v.SetDefault("alert.cooldown", time.Minute)
	v.SetDefault("alert.sweep_interval", 15*time.Minute)
	v.SetDefault("alert.max_age", time.Hour)
	v.SetDefault("notify.timeout", 5*time.Second)
	v.SetDefault("history.retention", 30*24*time.Hour)
}

// Validate checks the invariants that defaults cannot guarantee.
func (cfg *Config) Validate() error {
	if len(cfg.Monitor.Symbols) == 0 {
		return fmt.Errorf("monitor.symbols must list at least one symbol")
	}
	for _, s := range cfg.Monitor.Symbols {
		if s.Min > s.Max {
			return fmt.Errorf("band for %s has min %v > max %v", s.Symbol, s.Min, s.Max)
		}
	}
	if cfg.Monitor.ChangeFraction <= 0 || cfg.Monitor.ChangeFraction >= 1 {
		return fmt.Errorf("monitor.change_fraction must be in (0, 1), got %v", cfg.Monitor.ChangeFraction)
	}
	return nil
}
