// File: internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	Meroshare MeroshareConfig `mapstructure:"meroshare" yaml:"meroshare"`
	Browser   BrowserConfig   `mapstructure:"browser" yaml:"browser"`
	Network   NetworkConfig   `mapstructure:"network" yaml:"network"`
	Telegram  TelegramConfig  `mapstructure:"telegram" yaml:"telegram"`
	Database  DatabaseConfig  `mapstructure:"database" yaml:"database"`
	Schedule  ScheduleConfig  `mapstructure:"schedule" yaml:"schedule"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// Account holds the portal credentials and application details for one investor.
type Account struct {
	Name           string `mapstructure:"account_name" yaml:"account_name"`
	Username       string `mapstructure:"username" yaml:"username"`
	Password       string `mapstructure:"password" yaml:"-"`
	DPName         string `mapstructure:"dp_name" yaml:"dp_name"`
	ClientID       string `mapstructure:"client_id" yaml:"client_id"`
	CRN            string `mapstructure:"crn" yaml:"crn"`
	TransactionPIN string `mapstructure:"transaction_pin" yaml:"-"`
	BankName       string `mapstructure:"bank_name" yaml:"bank_name"`
	AppliedKitta   int    `mapstructure:"applied_kitta" yaml:"applied_kitta"`
}

// Label returns the human-facing identifier used in logs and notifications.
func (a Account) Label() string {
	if a.Name != "" {
		return a.Name
	}
	return a.Username
}

// Validate checks that the account carries every field the portal flow needs.
func (a Account) Validate() error {
	missing := []string{}
	if a.Username == "" {
		missing = append(missing, "username")
	}
	if a.Password == "" {
		missing = append(missing, "password")
	}
	if a.CRN == "" {
		missing = append(missing, "crn")
	}
	if a.BankName == "" {
		missing = append(missing, "bank_name")
	}
	if a.TransactionPIN == "" {
		missing = append(missing, "transaction_pin")
	}
	if len(missing) > 0 {
		return fmt.Errorf("account %q is missing required fields: %v", a.Label(), missing)
	}
	return nil
}

// MeroshareConfig describes the portal and the accounts to run against it.
// The flat credential fields mirror the accounts entries; when Accounts is
// empty and the flat fields are set, they degrade to a single account.
type MeroshareConfig struct {
	BaseURL  string    `mapstructure:"base_url" yaml:"base_url"`
	Accounts []Account `mapstructure:"accounts" yaml:"accounts"`

	Name           string `mapstructure:"account_name" yaml:"-"`
	Username       string `mapstructure:"username" yaml:"-"`
	Password       string `mapstructure:"password" yaml:"-"`
	DPName         string `mapstructure:"dp_name" yaml:"-"`
	ClientID       string `mapstructure:"client_id" yaml:"-"`
	CRN            string `mapstructure:"crn" yaml:"-"`
	TransactionPIN string `mapstructure:"transaction_pin" yaml:"-"`
	BankName       string `mapstructure:"bank_name" yaml:"-"`
	AppliedKitta   int    `mapstructure:"applied_kitta" yaml:"-"`
}

// AccountList resolves the effective account set, folding the legacy flat
// block into a one-element list when no accounts entry is present.
func (m MeroshareConfig) AccountList() []Account {
	if len(m.Accounts) > 0 {
		return m.Accounts
	}
	if m.Username == "" {
		return nil
	}
	return []Account{{
		Name:           m.Name,
		Username:       m.Username,
		Password:       m.Password,
		DPName:         m.DPName,
		ClientID:       m.ClientID,
		CRN:            m.CRN,
		TransactionPIN: m.TransactionPIN,
		BankName:       m.BankName,
		AppliedKitta:   m.AppliedKitta,
	}}
}

// BrowserConfig holds settings for the headless browser instance.
type BrowserConfig struct {
	Headless     bool     `mapstructure:"headless" yaml:"headless"`
	DisableCache bool     `mapstructure:"disable_cache" yaml:"disable_cache"`
	Debug        bool     `mapstructure:"debug" yaml:"debug"`
	Args         []string `mapstructure:"args" yaml:"args"`
	ExecPath     string   `mapstructure:"exec_path" yaml:"exec_path"`
}

// NetworkConfig tunes navigation timeouts and retry behavior.
type NetworkConfig struct {
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	IdleQuietPeriod   time.Duration `mapstructure:"idle_quiet_period" yaml:"idle_quiet_period"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
	RetryAttempts     int           `mapstructure:"retry_attempts" yaml:"retry_attempts"`
	RetryBackoff      time.Duration `mapstructure:"retry_backoff" yaml:"retry_backoff"`
	ChallengeWait     time.Duration `mapstructure:"challenge_wait" yaml:"challenge_wait"`
}

// TelegramConfig holds the bot credentials for run notifications.
type TelegramConfig struct {
	Enabled  bool          `mapstructure:"enabled" yaml:"enabled"`
	BotToken string        `mapstructure:"bot_token" yaml:"-"`
	ChatID   string        `mapstructure:"chat_id" yaml:"chat_id"`
	Timeout  time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// DatabaseConfig locates the application ledger.
type DatabaseConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// ScheduleConfig lists the cron expressions for watch mode.
type ScheduleConfig struct {
	Crons []string `mapstructure:"crons" yaml:"crons"`
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "meroapply")
	v.SetDefault("logger.log_file", "meroapply.log")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Portal --
	v.SetDefault("meroshare.base_url", "https://meroshare.cdsc.com.np")

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.disable_cache", true)
	v.SetDefault("browser.debug", false)

	// -- Network --
	v.SetDefault("network.navigation_timeout", "90s")
	v.SetDefault("network.idle_quiet_period", "2s")
	v.SetDefault("network.idle_timeout", "30s")
	v.SetDefault("network.retry_attempts", 5)
	v.SetDefault("network.retry_backoff", "10s")
	v.SetDefault("network.challenge_wait", "120s")

	// -- Telegram --
	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.timeout", "15s")

	// -- Database --
	v.SetDefault("database.path", "meroapply.db")

	// -- Schedule --
	v.SetDefault("schedule.crons", []string{"0 11 * * *"})
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data.
	v.BindEnv("telegram.bot_token", "MEROAPPLY_TELEGRAM_BOT_TOKEN")
	v.BindEnv("telegram.chat_id", "MEROAPPLY_TELEGRAM_CHAT_ID")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	accounts := c.Meroshare.AccountList()
	if len(accounts) == 0 {
		return fmt.Errorf("no meroshare accounts configured")
	}
	for _, acct := range accounts {
		if err := acct.Validate(); err != nil {
			return err
		}
	}
	if c.Meroshare.BaseURL == "" {
		return fmt.Errorf("meroshare.base_url is a required configuration field")
	}
	if c.Network.RetryAttempts <= 0 {
		return fmt.Errorf("network.retry_attempts must be a positive integer")
	}
	if c.Network.NavigationTimeout <= 0 {
		return fmt.Errorf("network.navigation_timeout must be a positive duration")
	}
	if c.Telegram.Enabled && (c.Telegram.BotToken == "" || c.Telegram.ChatID == "") {
		return fmt.Errorf("telegram.bot_token and telegram.chat_id are required when telegram is enabled")
	}
	return nil
}
