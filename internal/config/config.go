package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"balance-telemetry/internal/logging"
	"balance-telemetry/internal/model"
)

// Config materialises application configuration.
type Config struct {
	App         AppConfig         `mapstructure:"app"`
	Logging     logging.Config    `mapstructure:"logging"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Feed        FeedConfig        `mapstructure:"feed"`
	Dashboard   DashboardConfig   `mapstructure:"dashboard"`
	Remediation RemediationConfig `mapstructure:"remediation"`
	Ethereum    EthereumConfig    `mapstructure:"ethereum"`
	Alerting    AlertingConfig    `mapstructure:"alerting"`
	Export      ExportConfig      `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN               string        `mapstructure:"dsn"`
	MaxOpenConns      int           `mapstructure:"max_open_conns"`
	MaxIdleConns      int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime   time.Duration `mapstructure:"conn_max_lifetime"`
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
	PingOnStart       bool          `mapstructure:"ping_on_start"`
}

// FeedConfig covers the live balance stream.
type FeedConfig struct {
	URL            string        `mapstructure:"url"`
	ReconnectDelay time.Duration `mapstructure:"reconnect_delay"`
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	PongTimeout    time.Duration `mapstructure:"pong_timeout"`
	BufferCapacity int           `mapstructure:"buffer_capacity"`
	Debounce       time.Duration `mapstructure:"debounce"`
	Persist        bool          `mapstructure:"persist"`
}

// DashboardConfig governs the display pipeline.
type DashboardConfig struct {
	DefaultRange    string        `mapstructure:"default_range"`
	CustomDays      int           `mapstructure:"custom_days"`
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
	AlignRefresh    bool          `mapstructure:"align_refresh"`
}

// RemediationConfig bounds the anomaly purge loop.
type RemediationConfig struct {
	Thresholds      model.Thresholds `mapstructure:"thresholds"`
	PageSize        int              `mapstructure:"page_size"`
	MaxIterations   int              `mapstructure:"max_iterations"`
	AdvisoryLockKey int64            `mapstructure:"advisory_lock_key"`
}

// EthereumConfig covers on-chain balance reconciliation.
type EthereumConfig struct {
	RPCURL         string        `mapstructure:"rpc_url"`
	RLBAddress     string        `mapstructure:"rlb_address"`
	WalletAddress  string        `mapstructure:"wallet_address"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// AlertingConfig routes remediation reports.
type AlertingConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig describes the Telegram bot target.
type TelegramConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	BotToken string        `mapstructure:"bot_token"`
	ChatID   string        `mapstructure:"chat_id"`
	APIBase  string        `mapstructure:"api_base"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// ExportConfig sets chart export behaviour.
type ExportConfig struct {
	Width  int `mapstructure:"width"`
	Height int `mapstructure:"height"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("BALANCETELEMETRY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "balance-telemetry")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.health_check_period", "1m")
	v.SetDefault("database.ping_on_start", true)

	v.SetDefault("feed.reconnect_delay", "5s")
	v.SetDefault("feed.ping_interval", "15s")
	v.SetDefault("feed.pong_timeout", "45s")
	v.SetDefault("feed.buffer_capacity", 200)
	v.SetDefault("feed.debounce", "2s")
	v.SetDefault("feed.persist", false)

	v.SetDefault("dashboard.default_range", "24h")
	v.SetDefault("dashboard.custom_days", 0)
	v.SetDefault("dashboard.refresh_interval", "5m")
	v.SetDefault("dashboard.align_refresh", true)

	v.SetDefault("remediation.thresholds.stable_delta", 500.0)
	v.SetDefault("remediation.thresholds.token_delta", 100000.0)
	v.SetDefault("remediation.page_size", 500)
	v.SetDefault("remediation.max_iterations", 100)
	v.SetDefault("remediation.advisory_lock_key", int64(0x726c6221))

	v.SetDefault("ethereum.rlb_address", "0x046EeE2cc3188071C02BfC1745A6b17c656e3f3d")
	v.SetDefault("ethereum.request_timeout", "10s")

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")
	v.SetDefault("alerting.telegram.timeout", "10s")

	v.SetDefault("export.width", 1280)
	v.SetDefault("export.height", 720)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Feed.BufferCapacity <= 0 {
		return fmt.Errorf("feed.buffer_capacity must be greater than zero")
	}
	if c.Feed.Debounce <= 0 {
		return fmt.Errorf("feed.debounce must be greater than zero")
	}
	if c.Dashboard.RefreshInterval <= 0 {
		return fmt.Errorf("dashboard.refresh_interval must be greater than zero")
	}
	if c.Dashboard.CustomDays < 0 {
		return fmt.Errorf("dashboard.custom_days cannot be negative")
	}
	if c.Remediation.Thresholds.StableDelta <= 0 || c.Remediation.Thresholds.TokenDelta <= 0 {
		return fmt.Errorf("remediation.thresholds must be greater than zero")
	}
	if c.Remediation.PageSize <= 0 {
		return fmt.Errorf("remediation.page_size must be greater than zero")
	}
	if c.Remediation.MaxIterations <= 0 {
		return fmt.Errorf("remediation.max_iterations must be greater than zero")
	}
	if c.Export.Width <= 0 || c.Export.Height <= 0 {
		return fmt.Errorf("export.width and export.height must be greater than zero")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token is required")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id is required")
		}
	}
	return nil
}
