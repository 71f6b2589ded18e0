package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App        AppConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Cache      CacheConfig
	Log        LogConfig
	HTTP       HTTPConfig
	Telemetry  TelemetryConfig
	Platforms  PlatformsConfig
	Collection CollectionConfig
	Scoring    ScoringConfig
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Driver          string // sqlite, postgres, mysql
	Path            string // sqlite file path
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
	LogLevel        string
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// Addr returns host:port
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// CacheConfig holds query result cache settings
type CacheConfig struct {
	Enabled bool
	Backend string // memory, redis
	TTL     time.Duration
	Prefix  string
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxHeaderBytes int
	TrustedProxies []string
	AllowOrigins   []string
	RateLimitRPS   float64 // per client, 0 disables
	RateLimitBurst int
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool   // Whether to enable OpenTelemetry
	CollectorEndpoint string // OTEL Collector endpoint (e.g., "localhost:4317")
	ServiceName       string
	Insecure          bool // Use insecure (non-TLS) connection (development only)
	ExportInterval    time.Duration
}

// PlatformConfig holds the settings of one marketplace
type PlatformConfig struct {
	Enabled    bool
	Mode       string // live, mock
	APIKey     string
	APISecret  string
	PartnerID  int64
	BaseURL    string
	PageSize   int
	Categories []string
}

// PlatformsConfig holds the settings of every marketplace
type PlatformsConfig struct {
	TikTok PlatformConfig
	Amazon PlatformConfig
	Shopee PlatformConfig
}

// CollectionConfig holds collection run settings
type CollectionConfig struct {
	ScheduleIntervalHours    int
	MaxProductsPerCollection int
	RetryCount               int
	RetryDelay               time.Duration
	Timeout                  time.Duration
	Proxy                    string
	RequestsPerSecond        float64
	DefaultCategories        []string
}

// ScheduleInterval returns the interval between scheduled runs
func (c CollectionConfig) ScheduleInterval() time.Duration {
	return time.Duration(c.ScheduleIntervalHours) * time.Hour
}

// ScoringConfig holds popularity score weights
type ScoringConfig struct {
	SalesWeight   float64
	RatingWeight  float64
	RecencyWeight float64
	HalfLifeHours float64
}

// Load loads configuration from a .env file, TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with TRACKER_ prefix (e.g., TRACKER_DATABASE_PASSWORD)
// 2. .env file in the working directory
// 3. config.toml
// 4. Built-in defaults
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile loads configuration like Load but from an explicit TOML file when path is set
func LoadFile(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("error reading .env file: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("toml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/tracker")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	v.SetEnvPrefix("TRACKER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Driver:          strings.ToLower(v.GetString("database.driver")),
			Path:            v.GetString("database.path"),
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
			LogLevel:        v.GetString("database.log_level"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Cache: CacheConfig{
			Enabled: v.GetBool("cache.enabled"),
			Backend: v.GetString("cache.backend"),
			TTL:     v.GetDuration("cache.ttl"),
			Prefix:  v.GetString("cache.prefix"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:    v.GetDuration("http.read_timeout"),
			WriteTimeout:   v.GetDuration("http.write_timeout"),
			IdleTimeout:    v.GetDuration("http.idle_timeout"),
			MaxHeaderBytes: v.GetInt("http.max_header_bytes"),
			TrustedProxies: v.GetStringSlice("http.trusted_proxies"),
			AllowOrigins:   v.GetStringSlice("http.allow_origins"),
			RateLimitRPS:   v.GetFloat64("http.rate_limit_rps"),
			RateLimitBurst: v.GetInt("http.rate_limit_burst"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			ExportInterval:    v.GetDuration("telemetry.export_interval"),
		},
		Platforms: PlatformsConfig{
			TikTok: loadPlatform(v, "tiktok"),
			Amazon: loadPlatform(v, "amazon"),
			Shopee: loadPlatform(v, "shopee"),
		},
		Collection: CollectionConfig{
			ScheduleIntervalHours:    v.GetInt("collection.schedule_interval_hours"),
			MaxProductsPerCollection: v.GetInt("collection.max_products_per_collection"),
			RetryCount:               v.GetInt("collection.retry_count"),
			RetryDelay:               durationOrSeconds(v, "collection.retry_delay"),
			Timeout:                  durationOrSeconds(v, "collection.timeout"),
			Proxy:                    v.GetString("collection.proxy"),
			RequestsPerSecond:        v.GetFloat64("collection.requests_per_second"),
			DefaultCategories:        v.GetStringSlice("collection.default_categories"),
		},
		Scoring: ScoringConfig{
			SalesWeight:   v.GetFloat64("scoring.sales_weight"),
			RatingWeight:  v.GetFloat64("scoring.rating_weight"),
			RecencyWeight: v.GetFloat64("scoring.recency_weight"),
			HalfLifeHours: v.GetFloat64("scoring.half_life_hours"),
		},
	}

	// Apply defaults for empty values
	applyDefaults(cfg)

	// Validate configuration
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// setDefaults registers defaults that cannot be told apart from zero values
// after unmarshalling
func setDefaults(v *viper.Viper) {
	v.SetDefault("cache.enabled", true)
	v.SetDefault("http.rate_limit_rps", 10.0)
	v.SetDefault("scoring.sales_weight", 1.0)
	v.SetDefault("scoring.rating_weight", 0.2)
	v.SetDefault("scoring.recency_weight", 1.0)
	v.SetDefault("scoring.half_life_hours", 168.0)
	for _, p := range []string{"tiktok", "amazon", "shopee"} {
		v.SetDefault("platforms."+p+".enabled", false)
		v.SetDefault("platforms."+p+".mode", "live")
	}
}

func loadPlatform(v *viper.Viper, name string) PlatformConfig {
	key := "platforms." + name + "."
	return PlatformConfig{
		Enabled:    v.GetBool(key + "enabled"),
		Mode:       strings.ToLower(v.GetString(key + "mode")),
		APIKey:     v.GetString(key + "api_key"),
		APISecret:  v.GetString(key + "api_secret"),
		PartnerID:  v.GetInt64(key + "partner_id"),
		BaseURL:    v.GetString(key + "base_url"),
		PageSize:   v.GetInt(key + "page_size"),
		Categories: v.GetStringSlice(key + "categories"),
	}
}

// durationOrSeconds reads a duration; bare numbers are taken as seconds
func durationOrSeconds(v *viper.Viper, key string) time.Duration {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return 0
	}
	if secs, err := strconv.ParseFloat(raw, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	return v.GetDuration(key)
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "bestseller-tracker"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "data/tracker.db"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		switch cfg.Database.Driver {
		case "mysql":
			cfg.Database.Port = 3306
		default:
			cfg.Database.Port = 5432
		}
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "tracker"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}
	if cfg.Database.LogLevel == "" {
		cfg.Database.LogLevel = "warn"
	}

	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}

	if cfg.Cache.Backend == "" {
		cfg.Cache.Backend = "memory"
	}
	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = 10 * time.Minute
	}
	if cfg.Cache.Prefix == "" {
		cfg.Cache.Prefix = "tracker:"
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}

	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 60 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20 // 1MB
	}
	if cfg.HTTP.RateLimitBurst == 0 {
		cfg.HTTP.RateLimitBurst = 20
	}

	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317" // Default gRPC endpoint
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = cfg.App.Name
	}
	if cfg.Telemetry.ExportInterval == 0 {
		cfg.Telemetry.ExportInterval = 30 * time.Second
	}

	if cfg.Collection.ScheduleIntervalHours == 0 {
		cfg.Collection.ScheduleIntervalHours = 24
	}
	if cfg.Collection.MaxProductsPerCollection == 0 {
		cfg.Collection.MaxProductsPerCollection = 100
	}
	if cfg.Collection.RetryCount == 0 {
		cfg.Collection.RetryCount = 3
	}
	if cfg.Collection.RetryDelay == 0 {
		cfg.Collection.RetryDelay = 5 * time.Second
	}
	if cfg.Collection.Timeout == 0 {
		cfg.Collection.Timeout = 30 * time.Second
	}
	if len(cfg.Collection.DefaultCategories) == 0 {
		cfg.Collection.DefaultCategories = []string{"electronics", "home", "beauty"}
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres", "mysql":
	default:
		return fmt.Errorf("database.driver must be one of sqlite, postgres, mysql, got %q", c.Database.Driver)
	}

	switch c.Cache.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("cache.backend must be memory or redis, got %q", c.Cache.Backend)
	}

	if c.Collection.RetryCount < 1 {
		return fmt.Errorf("collection.retry_count must be at least 1, got %d", c.Collection.RetryCount)
	}
	if c.Collection.RetryDelay < 0 || c.Collection.Timeout < 0 {
		return fmt.Errorf("collection.retry_delay and collection.timeout must not be negative")
	}
	if c.Collection.MaxProductsPerCollection < 1 {
		return fmt.Errorf("collection.max_products_per_collection must be positive")
	}
	if c.Collection.Proxy != "" {
		u, err := url.Parse(c.Collection.Proxy)
		if err != nil || u.Host == "" {
			return fmt.Errorf("collection.proxy is not a valid URL: %q", c.Collection.Proxy)
		}
	}

	if c.HTTP.RateLimitRPS < 0 || c.HTTP.RateLimitBurst < 0 {
		return fmt.Errorf("http.rate_limit_rps and http.rate_limit_burst must not be negative")
	}

	if c.Scoring.SalesWeight < 0 || c.Scoring.RatingWeight < 0 || c.Scoring.RecencyWeight < 0 {
		return fmt.Errorf("scoring weights must not be negative")
	}
	if c.Scoring.HalfLifeHours <= 0 {
		return fmt.Errorf("scoring.half_life_hours must be positive")
	}

	for name, p := range map[string]PlatformConfig{
		"tiktok": c.Platforms.TikTok,
		"amazon": c.Platforms.Amazon,
		"shopee": c.Platforms.Shopee,
	} {
		if err := p.validate(name); err != nil {
			return err
		}
	}

	if c.App.Env == "production" {
		if c.Database.Driver == "postgres" && c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
	}

	return nil
}

func (p PlatformConfig) validate(name string) error {
	if p.Mode != "live" && p.Mode != "mock" {
		return fmt.Errorf("platforms.%s.mode must be live or mock, got %q", name, p.Mode)
	}
	if !p.Enabled || p.Mode == "mock" {
		return nil
	}
	switch name {
	case "tiktok":
		if p.APIKey == "" || p.APISecret == "" {
			return fmt.Errorf("platforms.tiktok.api_key and api_secret are required when enabled")
		}
	case "shopee":
		if p.PartnerID == 0 || p.APIKey == "" || p.APISecret == "" {
			return fmt.Errorf("platforms.shopee.partner_id, api_key and api_secret are required when enabled")
		}
	}
	return nil
}

// EnabledPlatforms returns the names of enabled platforms in fixed order
func (c *Config) EnabledPlatforms() []string {
	var out []string
	if c.Platforms.TikTok.Enabled {
		out = append(out, "tiktok")
	}
	if c.Platforms.Amazon.Enabled {
		out = append(out, "amazon")
	}
	if c.Platforms.Shopee.Enabled {
		out = append(out, "shopee")
	}
	return out
}

// DSN returns the driver-specific connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	switch d.Driver {
	case "sqlite":
		return d.Path
	case "mysql":
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
			d.User, d.Password, d.Host, d.Port, d.DBName)
	default:
		u := url.URL{
			Scheme: "postgres",
			User:   url.UserPassword(d.User, d.Password),
			Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
			Path:   d.DBName,
		}
		q := u.Query()
		q.Set("sslmode", d.SSLMode)
		u.RawQuery = q.Encode()
		return u.String()
	}
}
