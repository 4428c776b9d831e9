package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix                 = "QUICKHELP"
	defaultDatabasePath       = "quickhelp.db"
	defaultLogLevel           = "info"
	defaultLogFormat          = "json"
	defaultSessionTTLMinutes  = 720
	defaultRetentionDays      = 90
	defaultRetentionSchedule  = "@daily"
	defaultChangeFeedSchedule = "@every 15s"
	defaultAdminDashboard     = "/admin"
)

// AppConfig captures runtime configuration for the QuickHelp core.
type AppConfig struct {
	DatabasePath         string
	LogLevel             string
	LogFormat            string
	SessionSigningSecret string
	SessionTTL           time.Duration
	SearchRetention      time.Duration
	RetentionSchedule    string
	ChangeFeedSchedule   string
	AdminDashboardLink   string
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

	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("log.format", defaultLogFormat)
	configViper.SetDefault("session.ttl_minutes", defaultSessionTTLMinutes)
	configViper.SetDefault("search.retention_days", defaultRetentionDays)
	configViper.SetDefault("search.retention_schedule", defaultRetentionSchedule)
	configViper.SetDefault("store.change_feed_schedule", defaultChangeFeedSchedule)
	configViper.SetDefault("portal.admin_dashboard", defaultAdminDashboard)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		DatabasePath:         configViper.GetString("database.path"),
		LogLevel:             configViper.GetString("log.level"),
		LogFormat:            configViper.GetString("log.format"),
		SessionSigningSecret: configViper.GetString("session.signing_secret"),
		SessionTTL:           time.Duration(configViper.GetInt("session.ttl_minutes")) * time.Minute,
		SearchRetention:      time.Duration(configViper.GetInt("search.retention_days")) * 24 * time.Hour,
		RetentionSchedule:    configViper.GetString("search.retention_schedule"),
		ChangeFeedSchedule:   configViper.GetString("store.change_feed_schedule"),
		AdminDashboardLink:   configViper.GetString("portal.admin_dashboard"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.SessionSigningSecret) == "" {
		return fmt.Errorf("session.signing_secret is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("session.ttl_minutes must be positive")
	}
	if c.SearchRetention <= 0 {
		return fmt.Errorf("search.retention_days must be positive")
	}
	if strings.TrimSpace(c.RetentionSchedule) == "" {
		return fmt.Errorf("search.retention_schedule is required")
	}
	if strings.TrimSpace(c.ChangeFeedSchedule) == "" {
		return fmt.Errorf("store.change_feed_schedule is required")
	}
	return nil
}
