package config

import (
	"errors"
	"fmt"
	"os"

	"fitbook/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Geocoder   GeocoderConfig   `yaml:"geocoder"`
	Cache      CacheConfig      `yaml:"cache"`
	Booking    BookingConfig    `yaml:"booking"`
	API        APIConfig        `yaml:"api"`
	Exports    ExportConfig     `yaml:"exports"`
	Google     GoogleConfig     `yaml:"google"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
	SeedFile   string           `yaml:"seed_file"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type GeocoderConfig struct {
	BaseURL         string  `yaml:"base_url"`
	UserAgent       string  `yaml:"user_agent"`
	TimeoutSeconds  int     `yaml:"timeout_seconds"`
	RequestsPerSec  float64 `yaml:"requests_per_sec"`
	CountryCodeBias string  `yaml:"country_code_bias"`
}

type CacheConfig struct {
	TTLSeconds     int  `yaml:"ttl_seconds"`
	MaxResults     int  `yaml:"max_results"`
	UseRedis       bool `yaml:"use_redis"`
	FailoverMemory bool `yaml:"failover_memory"`
}

type BookingConfig struct {
	CancellationNoticeMinutes int `yaml:"cancellation_notice_minutes"`
	WorkerQueueSize           int `yaml:"worker_queue_size"`
}

type APIConfig struct {
	Enabled   bool               `yaml:"enabled"`
	HTTP      APIHTTPConfig      `yaml:"http"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIHTTPConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	HeaderExtra  string         `yaml:"header_extra"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key         string   `yaml:"key"`
	Extra       string   `yaml:"extra"`
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type ExportConfig struct {
	Path string `yaml:"path"`
}

type GoogleConfig struct {
	GoogleCredentialsFile string `yaml:"credentials_file"`
	ScheduleSpreadSheetID string `yaml:"schedule_spreadsheet_id"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
	HealthCheckPort   int  `yaml:"health_check_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

func Load(configPath string) (*Config, error) {
	// Загружаем .env файл если существует
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	// Предварительная замена переменных окружения в YAML
	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}
	if c.Cache.UseRedis && c.Redis.Address == "" {
		return errors.New("redis address is required when cache.use_redis is set")
	}
	if c.Cache.TTLSeconds < 0 {
		return fmt.Errorf("cache ttl must not be negative: %d", c.Cache.TTLSeconds)
	}
	if c.Geocoder.BaseURL == "" {
		return errors.New("geocoder base_url is required")
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	// auth enabled by default when API is enabled
	if !c.API.Auth.Enabled {
		c.API.Auth.Enabled = true
	}
	if !c.API.HTTP.Enabled && c.API.Enabled {
		c.API.HTTP.Enabled = true
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.API.Auth.HeaderExtra == "" {
		c.API.Auth.HeaderExtra = "x-api-extra"
	}
	if c.API.RateLimit.RPS == 0 {
		c.API.RateLimit.RPS = 10
	}
	if c.API.RateLimit.Burst == 0 {
		c.API.RateLimit.Burst = 20
	}
	if c.Cache.TTLSeconds == 0 {
		c.Cache.TTLSeconds = models.RecommendationCacheTTL
	}
	if c.Cache.MaxResults == 0 {
		c.Cache.MaxResults = models.MaxRecommendations
	}
	if c.Booking.CancellationNoticeMinutes == 0 {
		c.Booking.CancellationNoticeMinutes = models.CancellationNoticeMinutes
	}
	if c.Booking.WorkerQueueSize == 0 {
		c.Booking.WorkerQueueSize = models.WorkerQueueSize
	}
	if c.Geocoder.UserAgent == "" {
		c.Geocoder.UserAgent = c.App.Name
	}
	if c.Geocoder.TimeoutSeconds == 0 {
		c.Geocoder.TimeoutSeconds = 10
	}
	if c.Geocoder.RequestsPerSec == 0 {
		c.Geocoder.RequestsPerSec = 1.0 / float64(models.GeocoderMinInterval)
	}
	if c.Exports.Path == "" {
		c.Exports.Path = "exports"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}
