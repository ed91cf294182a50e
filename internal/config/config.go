package config

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration
type Config struct {
	Port                   int
	Environment            string
	JWTSecret              string
	CORSOrigins            []string
	AllowPrivateIPs        bool
	AllowMetadataEndpoints bool
	Database               DatabaseConfig
	Monitoring             MonitoringConfig
	Retention              RetentionConfig
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
}

// MonitoringConfig tunes the check pipeline.
type MonitoringConfig struct {
	DefaultIntervalMinutes int
	Workers                int
	QueueSize              int
	ScheduledTimeout       time.Duration
	ManualTimeout          time.Duration
	AlertCooldown          time.Duration
}

// RetentionConfig controls how long raw and aggregated data is kept.
type RetentionConfig struct {
	ResultDays        int
	HourlySummaryDays int
	DailySummaryDays  int
}

// Load reads configuration from an optional config file and the
// environment. Environment variables win over file values.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("port", 8080)
	v.SetDefault("environment", "production")
	v.SetDefault("app_url", "")
	v.SetDefault("allow_private_ips", false)
	v.SetDefault("allow_metadata_endpoints", false)

	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", "5432")
	v.SetDefault("postgres_user", "sslmonitor")
	v.SetDefault("postgres_password", "secret")
	v.SetDefault("postgres_db", "sslmonitor")
	v.SetDefault("postgres_sslmode", "disable")
	v.SetDefault("database_dsn", "")
	v.SetDefault("db_max_open_conns", 25)
	v.SetDefault("db_max_idle_conns", 5)

	v.SetDefault("check_interval_minutes", 720)
	v.SetDefault("check_workers", 8)
	v.SetDefault("check_queue_size", 256)
	v.SetDefault("scheduled_check_timeout", "60s")
	v.SetDefault("manual_check_timeout", "120s")
	v.SetDefault("alert_cooldown", "24h")

	v.SetDefault("result_retention_days", 90)
	v.SetDefault("hourly_summary_retention_days", 30)
	v.SetDefault("daily_summary_retention_days", 365)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/sslmonitor")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}
	v.AutomaticEnv()

	env := v.GetString("environment")
	jwtSecret, err := loadJWTSecret(v, env)
	if err != nil {
		return nil, err
	}

	dsn := v.GetString("database_dsn")
	if dsn == "" {
		dsn = buildPostgresDSN(v)
	}

	cfg := &Config{
		Port:                   v.GetInt("port"),
		Environment:            env,
		JWTSecret:              jwtSecret,
		CORSOrigins:            loadCORSOrigins(v, env),
		AllowPrivateIPs:        v.GetBool("allow_private_ips"),
		AllowMetadataEndpoints: v.GetBool("allow_metadata_endpoints"),
		Database: DatabaseConfig{
			DSN:          dsn,
			MaxOpenConns: v.GetInt("db_max_open_conns"),
			MaxIdleConns: v.GetInt("db_max_idle_conns"),
		},
		Monitoring: MonitoringConfig{
			DefaultIntervalMinutes: v.GetInt("check_interval_minutes"),
			Workers:                v.GetInt("check_workers"),
			QueueSize:              v.GetInt("check_queue_size"),
			ScheduledTimeout:       v.GetDuration("scheduled_check_timeout"),
			ManualTimeout:          v.GetDuration("manual_check_timeout"),
			AlertCooldown:          v.GetDuration("alert_cooldown"),
		},
		Retention: RetentionConfig{
			ResultDays:        v.GetInt("result_retention_days"),
			HourlySummaryDays: v.GetInt("hourly_summary_retention_days"),
			DailySummaryDays:  v.GetInt("daily_summary_retention_days"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func buildPostgresDSN(v *viper.Viper) string {
	u := url.URL{
		Scheme: "postgresql",
		User:   url.UserPassword(v.GetString("postgres_user"), v.GetString("postgres_password")),
		Host:   fmt.Sprintf("%s:%s", v.GetString("postgres_host"), v.GetString("postgres_port")),
		Path:   v.GetString("postgres_db"),
	}
	query := u.Query()
	query.Set("sslmode", v.GetString("postgres_sslmode"))
	u.RawQuery = query.Encode()
	return u.String()
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Environment == "production" {
		if len(c.JWTSecret) < 32 {
			return fmt.Errorf("JWT_SECRET must be at least 32 characters in production")
		}

		insecureSecrets := []string{
			"change-this-secret-in-production",
			"change-me-in-production",
			"secret",
			"password",
			"changeme",
		}
		for _, insecure := range insecureSecrets {
			if c.JWTSecret == insecure {
				return fmt.Errorf("JWT_SECRET is set to an insecure default value")
			}
		}
	}

	if len(c.CORSOrigins) == 0 {
		return fmt.Errorf("at least one CORS origin must be configured")
	}
	if c.Monitoring.DefaultIntervalMinutes <= 0 {
		return fmt.Errorf("check_interval_minutes must be positive")
	}
	if c.Retention.ResultDays <= 0 {
		return fmt.Errorf("result_retention_days must be positive")
	}
	return nil
}

func loadJWTSecret(v *viper.Viper, env string) (string, error) {
	secret := v.GetString("jwt_secret")
	if secret == "" {
		if env == "production" {
			return "", fmt.Errorf("JWT_SECRET is required in production")
		}
		// Development convenience only; the secret changes on restart.
		return generateRandomSecret()
	}
	if len(secret) < 16 {
		return "", fmt.Errorf("JWT_SECRET must be at least 16 characters long")
	}
	return secret, nil
}

func loadCORSOrigins(v *viper.Viper, env string) []string {
	if appURL := strings.TrimRight(v.GetString("app_url"), "/"); appURL != "" {
		return []string{appURL}
	}
	if env == "development" {
		return []string{"http://localhost:3000", "http://localhost:8080"}
	}
	return []string{"http://localhost:3000", "http://localhost:8080"}
}

func generateRandomSecret() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("generating random secret: %w", err)
	}
	return base64.URLEncoding.EncodeToString(bytes), nil
}
