package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// FrequentBusRoutes is the default tracked-route set: MBTA's frequent bus network
var FrequentBusRoutes = []string{
	"1", "15", "22", "23", "28", "32", "39", "57", "66",
	"71", "73", "77", "104", "109", "110", "111", "116",
}

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	RoutesPlaceholder = "{routes}"

	LastStopModeLast         = "last"
	LastStopModeSecondToLast = "second_to_last"
)

type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Stream   StreamConfig   `yaml:"stream"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Logging  LoggingConfig  `yaml:"logging"`
	Reporter ReporterConfig `yaml:"reporter"`
	Health   HealthConfig   `yaml:"health"`
}

type DatabaseConfig struct {
	Driver   string `yaml:"driver" validate:"oneof=sqlite postgres"`
	Path     string `yaml:"path"`
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

// StreamConfig for the MBTA vehicles event stream
type StreamConfig struct {
	URLTemplate     string        `yaml:"url_template" validate:"required"`
	APIKey          string        `yaml:"-"`
	CredentialsFile string        `yaml:"credentials_file"`
	TrackedRoutes   []string      `yaml:"tracked_routes" validate:"min=1,dive,required"`
	StreamRoutes    []string      `yaml:"stream_routes" validate:"dive,required"`
	Backoff         BackoffConfig `yaml:"backoff"`
}

// BackoffConfig controls reconnect delays: min(Base*2^n, Max) scaled by a
// factor drawn uniformly from [JitterMin, JitterMax].
type BackoffConfig struct {
	Base      time.Duration `yaml:"base" validate:"gt=0"`
	Max       time.Duration `yaml:"max" validate:"gtefield=Base"`
	JitterMin float64       `yaml:"jitter_min" validate:"gt=0"`
	JitterMax float64       `yaml:"jitter_max" validate:"gtefield=JitterMin"`
}

// ScheduleConfig for the first/last stop lookup client
type ScheduleConfig struct {
	BaseURL      string `yaml:"base_url" validate:"required,url"`
	LastStopMode string `yaml:"last_stop_mode" validate:"oneof=last second_to_last"`
}

type LoggingConfig struct {
	Level      string `yaml:"level"`
	FilePath   string `yaml:"file_path"`
	DiscordURL string `yaml:"discord_url" validate:"omitempty,url"`
}

// ReporterConfig for the periodic stored-event summary; zero disables it
type ReporterConfig struct {
	Interval time.Duration `yaml:"interval" validate:"gte=0"`
}

// HealthConfig for the status HTTP server; empty address disables it
type HealthConfig struct {
	Addr string `yaml:"addr"`
}

// Defaults returns the built-in configuration before file and env overrides
func Defaults() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:  DriverSQLite,
			Path:    "stop_events.db",
			Host:    "localhost",
			Port:    "5432",
			User:    "postgres",
			DBName:  "mbtatracker",
			SSLMode: "disable",
		},
		Stream: StreamConfig{
			URLTemplate:     "https://api-v3.mbta.com/vehicles?filter[route]={routes}&filter[revenue]=REVENUE",
			CredentialsFile: "mbta_api_creds",
			TrackedRoutes:   append([]string(nil), FrequentBusRoutes...),
			Backoff: BackoffConfig{
				Base:      5 * time.Second,
				Max:       60 * time.Second,
				JitterMin: 0.5,
				JitterMax: 1.5,
			},
		},
		Schedule: ScheduleConfig{
			BaseURL:      "https://api-v3.mbta.com",
			LastStopMode: LastStopModeSecondToLast,
		},
		Logging: LoggingConfig{
			Level:    "info",
			FilePath: "mbtatracker.log",
		},
		Reporter: ReporterConfig{
			Interval: 15 * time.Minute,
		},
		Health: HealthConfig{
			Addr: ":8080",
		},
	}
}

// Load builds the configuration from defaults, the optional YAML file named by
// CONFIG_FILE, then environment variables, and validates the result.
func Load() (*Config, error) {
	return LoadFile(os.Getenv("CONFIG_FILE"))
}

// LoadFile is Load with an explicit YAML path; an empty path skips the file
func LoadFile(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if len(cfg.Stream.StreamRoutes) == 0 {
		cfg.Stream.StreamRoutes = append([]string(nil), cfg.Stream.TrackedRoutes...)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Database.Driver = getEnv("DB_DRIVER", c.Database.Driver)
	c.Database.Path = getEnv("DB_PATH", c.Database.Path)
	c.Database.Host = getEnv("DB_HOST", c.Database.Host)
	c.Database.Port = getEnv("DB_PORT", c.Database.Port)
	c.Database.User = getEnv("DB_USER", c.Database.User)
	c.Database.Password = getEnv("DB_PASSWORD", c.Database.Password)
	c.Database.DBName = getEnv("DB_NAME", c.Database.DBName)
	c.Database.SSLMode = getEnv("DB_SSLMODE", c.Database.SSLMode)

	c.Stream.URLTemplate = getEnv("MBTA_STREAM_URL", c.Stream.URLTemplate)
	c.Stream.APIKey = getEnv("MBTA_API_KEY", c.Stream.APIKey)
	c.Stream.CredentialsFile = getEnv("MBTA_API_CREDS_FILE", c.Stream.CredentialsFile)
	c.Stream.TrackedRoutes = getListEnv("TRACKED_ROUTES", c.Stream.TrackedRoutes)
	c.Stream.StreamRoutes = getListEnv("STREAM_ROUTES", c.Stream.StreamRoutes)
	c.Stream.Backoff.Base = getDurationEnv("BACKOFF_BASE", c.Stream.Backoff.Base)
	c.Stream.Backoff.Max = getDurationEnv("BACKOFF_MAX", c.Stream.Backoff.Max)
	c.Stream.Backoff.JitterMin = getFloatEnv("BACKOFF_JITTER_MIN", c.Stream.Backoff.JitterMin)
	c.Stream.Backoff.JitterMax = getFloatEnv("BACKOFF_JITTER_MAX", c.Stream.Backoff.JitterMax)

	c.Schedule.BaseURL = getEnv("MBTA_API_URL", c.Schedule.BaseURL)
	c.Schedule.LastStopMode = getEnv("SCHEDULE_LAST_STOP_MODE", c.Schedule.LastStopMode)

	c.Logging.Level = getEnv("LOG_LEVEL", c.Logging.Level)
	c.Logging.FilePath = getEnv("LOG_FILE", c.Logging.FilePath)
	c.Logging.DiscordURL = getEnv("LOG_DISCORD_WEBHOOK", c.Logging.DiscordURL)

	c.Reporter.Interval = getDurationEnv("REPORT_INTERVAL", c.Reporter.Interval)
	c.Health.Addr = getEnv("HEALTH_ADDR", c.Health.Addr)
}

// Validate checks struct tags and the cross-field rules tags cannot express
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := c.Database.Validate(); err != nil {
		return fmt.Errorf("invalid database configuration: %w", err)
	}
	if !strings.Contains(c.Stream.URLTemplate, RoutesPlaceholder) {
		return fmt.Errorf("invalid configuration: stream url template must contain %s", RoutesPlaceholder)
	}
	return nil
}

func (c *DatabaseConfig) Validate() error {
	switch c.Driver {
	case DriverSQLite:
		if c.Path == "" {
			return fmt.Errorf("sqlite path is required")
		}
	case DriverPostgres:
		if c.Host == "" || c.DBName == "" {
			return fmt.Errorf("postgres host and dbname are required")
		}
	default:
		return fmt.Errorf("unsupported driver %q", c.Driver)
	}
	return nil
}

// DSN returns the data source name for the configured driver
func (c *DatabaseConfig) DSN() string {
	if c.Driver == DriverPostgres {
		return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
			c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
	}
	return c.Path
}

// StreamURL expands the url template with the comma-separated route filter
func (c *StreamConfig) StreamURL() string {
	return strings.ReplaceAll(c.URLTemplate, RoutesPlaceholder, strings.Join(c.StreamRoutes, ","))
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
